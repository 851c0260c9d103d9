package height

import "errors"

var (
	// ErrHeightOverflow is returned when height arithmetic would wrap past
	// the maximum representable height.
	ErrHeightOverflow = errors.New("height overflow")

	// ErrBeforeGenesis is returned when converting a wall clock time that
	// precedes the configured genesis.
	ErrBeforeGenesis = errors.New("time is before genesis")

	// ErrInvalidBlockDuration is returned when a clock is created with a
	// non positive block duration.
	ErrInvalidBlockDuration = errors.New("block duration must be positive")
)
