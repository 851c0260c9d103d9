package governance

import "errors"

var (
	ErrNotOwner           = errors.New("Ownable: caller is not the owner")
	ErrChangeNotInitiated = errors.New("Change not initiated")
	ErrDelayNotElapsed    = errors.New("Governance delay has not elapsed")

	ErrInvalidCallbackGasLimit   = errors.New("Callback gas limit must be > 0 and < 1000000")
	ErrInvalidGroupActiveTime    = errors.New("Group lifetime must be > 0")
	ErrInvalidRelayEntryTimeout  = errors.New("Relay entry timeout must be > 0")
	ErrInvalidContributionMargin = errors.New("DKG contribution margin must be <= 100")
	ErrInvalidGasPriceCeiling    = errors.New("Gas price ceiling must be > 0")
	ErrInvalidGroupSize          = errors.New("Group size must be > 0")
	ErrInvalidThreshold          = errors.New("Signature threshold must be > 0 and <= group size")
	ErrInvalidWindow             = errors.New("Window length must be > 0")
)
