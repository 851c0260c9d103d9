package ledger

import "errors"

var (
	ErrStopped        = errors.New("ledger stopped")
	ErrAlreadyRunning = errors.New("ledger already running")
)
