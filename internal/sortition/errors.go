package sortition

import "errors"

var (
	// ErrNoSelectionInProgress is returned when tickets are submitted or
	// participants queried while no group selection round is open.
	ErrNoSelectionInProgress = errors.New("Group selection not in progress")

	// ErrTicketSubmissionOver is returned for tickets arriving at or after
	// the end of the submission window.
	ErrTicketSubmissionOver = errors.New("Ticket submission is over")

	// ErrInvalidTicket is returned when the virtual index is out of the
	// operator weight or the value does not match the recomputed one.
	ErrInvalidTicket = errors.New("Invalid ticket")

	// ErrDuplicateTicket is returned when the same operator and virtual
	// index pair is submitted twice in a round.
	ErrDuplicateTicket = errors.New("Duplicate ticket")

	// ErrTicketSubmissionInProgress is returned when the selected
	// participants are queried before the submission window closed.
	ErrTicketSubmissionInProgress = errors.New("Ticket submission in progress")
)
