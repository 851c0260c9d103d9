package statetransition

import "errors"

var (
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrDKGTimedOut        = errors.New("DKG timed out")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrGroupsExist        = errors.New("Groups exist")
	ErrSelectionRunning   = errors.New("Group selection in progress")
	ErrInsufficientPool   = errors.New("Not enough funds in the DKG fee pool")
)
