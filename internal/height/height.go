package height

import (
	"math"
	"time"

	"github.com/eigerco/beacon/internal/safemath"
)

// Height is the position of a transition in the ordered log. It plays the
// role a block number plays on a chain.
type Height uint64

// Next returns the following height, saturating at the maximum value
func (h Height) Next() Height {
	if h == math.MaxUint64 {
		return h
	}
	return h + 1
}

// Add returns h+n or ErrHeightOverflow
func (h Height) Add(n uint64) (Height, error) {
	v, ok := safemath.Add64(uint64(h), n)
	if !ok {
		return 0, ErrHeightOverflow
	}
	return Height(v), nil
}

// Plus is Add that saturates instead of failing. Deadlines computed from
// governable parameters use it so that a huge timeout means "never".
func (h Height) Plus(n uint64) Height {
	v, ok := safemath.Add64(uint64(h), n)
	if !ok {
		return math.MaxUint64
	}
	return Height(v)
}

// Since returns the number of heights elapsed from start to h, zero if h is before start
func (h Height) Since(start Height) uint64 {
	v, ok := safemath.Sub64(uint64(h), uint64(start))
	if !ok {
		return 0
	}
	return v
}

// Window is a half open range of heights [Start, Start+Length).
type Window struct {
	Start  Height
	Length uint64
}

// End returns the first height outside the window
func (w Window) End() Height {
	return w.Start.Plus(w.Length)
}

// Contains reports whether h falls inside the window
func (w Window) Contains(h Height) bool {
	return h >= w.Start && h < w.End()
}

// Closed reports whether the window has been fully passed at h
func (w Window) Closed(h Height) bool {
	return h >= w.End()
}

// Exceeded reports whether h is strictly after the last height a submission
// tied to this window may be accepted at, that is h > Start+Length.
func (w Window) Exceeded(h Height) bool {
	return h > w.End()
}

// Remaining returns how many heights are left before the window closes
func (w Window) Remaining(h Height) uint64 {
	return w.End().Since(h)
}

// Clock maps wall clock time to heights. Height zero starts at Genesis and
// each height lasts BlockDuration.
type Clock struct {
	Genesis       time.Time
	BlockDuration time.Duration
	now           func() time.Time
}

// NewClock creates a clock with the given genesis and block duration
func NewClock(genesis time.Time, blockDuration time.Duration) (*Clock, error) {
	if blockDuration <= 0 {
		return nil, ErrInvalidBlockDuration
	}
	return &Clock{Genesis: genesis, BlockDuration: blockDuration, now: time.Now}, nil
}

// Now returns the current height. Before genesis it returns zero.
func (c *Clock) Now() Height {
	h, err := c.At(c.now())
	if err != nil {
		return 0
	}
	return h
}

// At converts a wall clock time to a height
func (c *Clock) At(t time.Time) (Height, error) {
	if t.Before(c.Genesis) {
		return 0, ErrBeforeGenesis
	}
	return Height(t.Sub(c.Genesis) / c.BlockDuration), nil
}

// StartOf returns the wall clock time at which the height begins
func (c *Clock) StartOf(h Height) time.Time {
	return c.Genesis.Add(time.Duration(h) * c.BlockDuration)
}

// UntilNext returns the time left until the next height begins
func (c *Clock) UntilNext() time.Duration {
	return c.StartOf(c.Now().Next()).Sub(c.now())
}
