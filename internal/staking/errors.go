package staking

import "errors"

var (
	ErrStakeNotActive       = errors.New("stake is not active")
	ErrAlreadyStaked        = errors.New("operator already has a stake")
	ErrZeroStake            = errors.New("stake amount must be greater than zero")
)
