package groups

import "errors"

var (
	ErrGroupNotFound           = errors.New("Group does not exist")
	ErrNoActiveGroups          = errors.New("No active groups")
	ErrGroupAlreadyTerminated  = errors.New("Group already terminated")
	ErrGroupNotExpiredAndStale = errors.New("Group must be expired and stale")
	ErrRewardsAlreadyWithdrawn = errors.New("Rewards already withdrawn")
	ErrDuplicatePublicKey      = errors.New("Group with this public key already registered")
)
