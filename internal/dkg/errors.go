package dkg

import "errors"

var (
	ErrNoDKGInProgress           = errors.New("DKG is not in progress")
	ErrUnexpectedSubmitterIndex  = errors.New("Unexpected submitter index")
	ErrSubmitterNotEligible      = errors.New("Submitter not eligible")
	ErrMalformedGroupPublicKey   = errors.New("Malformed group public key")
	ErrMalformedMisbehaved       = errors.New("Malformed misbehaved")
	ErrMalformedSignatures       = errors.New("Malformed signatures array")
	ErrUnexpectedSignaturesCount = errors.New("Unexpected signatures count")
	ErrTooFewSignatures          = errors.New("Too few signatures")
	ErrTooManySignatures         = errors.New("Too many signatures")
	ErrInvalidMemberIndex        = errors.New("Invalid index")
	ErrDuplicateMemberIndex      = errors.New("Duplicate member index")
	ErrInvalidSignature          = errors.New("Invalid signature")
	ErrDKGNotTimedOut            = errors.New("DKG has not timed out")
)
