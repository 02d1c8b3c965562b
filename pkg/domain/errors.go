package domain

import "errors"

// Validation errors: a size or threshold bound was violated. Terminal for
// the call; the caller must change its input.
var (
	ErrInvalidQuorumThreshold = errors.New("quorum threshold out of range")
	ErrNameTooLong            = errors.New("name length out of range")
	ErrDescriptionTooLong     = errors.New("description too long")
	ErrTitleTooLong           = errors.New("title too long")
	ErrExecutionDataTooLarge  = errors.New("execution data too large")
	ErrInvalidVotingPeriod    = errors.New("voting period must be positive")
	ErrReasoningTooLong       = errors.New("reasoning too long")
)

// State errors: a precondition on status, time, or uniqueness was
// violated. Terminal for the call; the caller must re-read state, not
// blindly retry.
var (
	ErrVotingPeriodEnded       = errors.New("voting period has ended")
	ErrProposalNotActive       = errors.New("proposal is not active")
	ErrAlreadyVoted            = errors.New("voter has already voted on this proposal")
	ErrProposalNotExecutable   = errors.New("proposal is not executable")
	ErrProposalAlreadyExecuted = errors.New("proposal has already been executed")
	ErrDuplicateMember         = errors.New("member already registered")
	ErrDAOAlreadyExists        = errors.New("dao already exists")
	ErrNotAuthorized           = errors.New("not authorized")
	ErrMemberNotFound          = errors.New("member not found")
	ErrMemberNotActive         = errors.New("member is not active")
	ErrVoterClassMismatch      = errors.New("voter class does not match registry record")
	ErrInsufficientTreasury    = errors.New("insufficient treasury balance")
	ErrNotFound                = errors.New("record not found")
)

// ErrVersionConflict is returned by ledger implementations when an
// optimistic write observed a stale record version. Unlike the errors
// above it is safe to retry after re-reading.
var ErrVersionConflict = errors.New("record version conflict")

// ErrorCode returns the stable machine-readable code for a governance
// error, or "INTERNAL" when the error is not part of the taxonomy.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuorumThreshold):
		return "INVALID_QUORUM_THRESHOLD"
	case errors.Is(err, ErrNameTooLong):
		return "NAME_TOO_LONG"
	case errors.Is(err, ErrDescriptionTooLong):
		return "DESCRIPTION_TOO_LONG"
	case errors.Is(err, ErrTitleTooLong):
		return "TITLE_TOO_LONG"
	case errors.Is(err, ErrExecutionDataTooLarge):
		return "EXECUTION_DATA_TOO_LARGE"
	case errors.Is(err, ErrInvalidVotingPeriod):
		return "INVALID_VOTING_PERIOD"
	case errors.Is(err, ErrReasoningTooLong):
		return "REASONING_TOO_LONG"
	case errors.Is(err, ErrVotingPeriodEnded):
		return "VOTING_PERIOD_ENDED"
	case errors.Is(err, ErrProposalNotActive):
		return "PROPOSAL_NOT_ACTIVE"
	case errors.Is(err, ErrAlreadyVoted):
		return "ALREADY_VOTED"
	case errors.Is(err, ErrProposalNotExecutable):
		return "PROPOSAL_NOT_EXECUTABLE"
	case errors.Is(err, ErrProposalAlreadyExecuted):
		return "PROPOSAL_ALREADY_EXECUTED"
	case errors.Is(err, ErrDuplicateMember):
		return "DUPLICATE_MEMBER"
	case errors.Is(err, ErrDAOAlreadyExists):
		return "DAO_ALREADY_EXISTS"
	case errors.Is(err, ErrNotAuthorized):
		return "NOT_AUTHORIZED"
	case errors.Is(err, ErrMemberNotFound):
		return "MEMBER_NOT_FOUND"
	case errors.Is(err, ErrMemberNotActive):
		return "MEMBER_NOT_ACTIVE"
	case errors.Is(err, ErrVoterClassMismatch):
		return "VOTER_CLASS_MISMATCH"
	case errors.Is(err, ErrInsufficientTreasury):
		return "INSUFFICIENT_TREASURY"
	case errors.Is(err, ErrVersionConflict):
		return "VERSION_CONFLICT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// GovernanceError wraps a taxonomy error with call context.
type GovernanceError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *GovernanceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *GovernanceError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the standard JSON error model returned by the API.
// It avoids exposing internals while providing a stable machine-readable
// code. TraceID carries the current trace identifier when available.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}
