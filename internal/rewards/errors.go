package rewards

import "errors"

var (
	ErrIntervalNotEnded     = errors.New("Interval hasn't ended yet")
	ErrAlreadyAllocated     = errors.New("Rewards already allocated")
	ErrIntervalNotAllocated = errors.New("Interval rewards not allocated yet")
	ErrNotInInterval        = errors.New("Group was created before the first interval")
	ErrGroupNotClosed       = errors.New("Group is not closed")
	ErrGroupNotTerminated   = errors.New("Group is not terminated")
	ErrNotEligible          = errors.New("Group was not eligible for the interval allocation")
	ErrRewardAlreadyClaimed = errors.New("Rewards already claimed")
)
