package domain

import "fmt"

// VoterClass partitions the electorate for quorum and majority math.
type VoterClass string

const (
	ClassHuman        VoterClass = "human"
	ClassAI           VoterClass = "ai"
	ClassOrganization VoterClass = "organization"
)

// ParseVoterClass converts a wire string into a VoterClass.
func ParseVoterClass(s string) (VoterClass, error) {
	switch VoterClass(s) {
	case ClassHuman, ClassAI, ClassOrganization:
		return VoterClass(s), nil
	default:
		return "", fmt.Errorf("unknown voter class %q", s)
	}
}

// VoteChoice is a voter's position on a proposal. Abstain is recorded for
// participation but never tallied into the for/against counters.
type VoteChoice string

const (
	ChoiceFor     VoteChoice = "for"
	ChoiceAgainst VoteChoice = "against"
	ChoiceAbstain VoteChoice = "abstain"
)

// ParseVoteChoice converts a wire string into a VoteChoice.
func ParseVoteChoice(s string) (VoteChoice, error) {
	switch VoteChoice(s) {
	case ChoiceFor, ChoiceAgainst, ChoiceAbstain:
		return VoteChoice(s), nil
	default:
		return "", fmt.Errorf("unknown vote choice %q", s)
	}
}

// ProposalStatus is the proposal lifecycle state. Transitions only move
// forward: Active -> Succeeded -> Executed. Failed and Cancelled are
// defined terminal states with no instruction that reaches them.
type ProposalStatus string

const (
	StatusActive    ProposalStatus = "active"
	StatusSucceeded ProposalStatus = "succeeded"
	StatusExecuted  ProposalStatus = "executed"
	StatusFailed    ProposalStatus = "failed"
	StatusCancelled ProposalStatus = "cancelled"
)

// Rank orders statuses along the forward-only lifecycle. Terminal states
// that are unreachable by the instruction set rank above Executed so that
// "never decreases" holds for any conceivable future transition into them.
func (s ProposalStatus) Rank() int {
	switch s {
	case StatusActive:
		return 0
	case StatusSucceeded:
		return 1
	case StatusExecuted:
		return 2
	case StatusFailed, StatusCancelled:
		return 3
	default:
		return -1
	}
}

// Terminal reports whether no further transition is possible.
func (s ProposalStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed || s == StatusCancelled
}

// ProposalType categorizes the governance work a proposal carries.
type ProposalType string

const (
	ProposalTreasury   ProposalType = "treasury"
	ProposalPolicy     ProposalType = "policy"
	ProposalMembership ProposalType = "membership"
	ProposalText       ProposalType = "text"
)

// ParseProposalType converts a wire string into a ProposalType.
func ParseProposalType(s string) (ProposalType, error) {
	switch ProposalType(s) {
	case ProposalTreasury, ProposalPolicy, ProposalMembership, ProposalText:
		return ProposalType(s), nil
	default:
		return "", fmt.Errorf("unknown proposal type %q", s)
	}
}
