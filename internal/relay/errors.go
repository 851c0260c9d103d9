package relay

import "errors"

var (
	ErrBeaconBusy          = errors.New("Beacon is busy")
	ErrInsufficientPayment = errors.New("Payment is less than required minimum")
	ErrCallbackGasTooHigh  = errors.New("Callback gas exceeds the limit")
	ErrNoEntryInProgress   = errors.New("Entry was submitted")
	ErrEntryTimedOut       = errors.New("Entry timed out")
	ErrEntryNotTimedOut    = errors.New("Entry did not time out")
	ErrInvalidG1Length     = errors.New("Invalid G1 bytes length")
	ErrInvalidSignature    = errors.New("Invalid signature")
)
