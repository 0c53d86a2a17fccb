package types

import "errors"

// Domain errors. All of these are user-attributable and recoverable: they are
// surfaced as a plain message to the caller and never crash the process.
var (
	// Order session layer
	ErrSessionNotFound = errors.New("no pending order found: it may have expired or already been executed")
	ErrSessionMismatch = errors.New("order does not match your pending approval")

	// Governance layer
	ErrNotAuthorized       = errors.New("not authorized for this action")
	ErrPollClosed          = errors.New("poll is closed")
	ErrDuplicateVote       = errors.New("vote already cast")
	ErrConsensusNotReached = errors.New("consensus threshold not reached")
	ErrPollExpired         = errors.New("poll has expired")

	// Ledger layer
	ErrCapacityExceeded    = errors.New("group is full")
	ErrInsufficientBalance = errors.New("insufficient group balance")
	ErrGroupEnded          = errors.New("group has ended")
	ErrGroupNotFound       = errors.New("group not found")
	ErrMemberNotFound      = errors.New("not a member of this group")
	ErrAlreadyMember       = errors.New("already a member of this group")

	// External collaborators
	ErrExternalService = errors.New("execution service failure")
)
