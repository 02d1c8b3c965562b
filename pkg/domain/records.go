package domain

import "time"

// Field size limits enforced by the instruction surface. A failing limit
// check aborts the instruction before any write is staged.
const (
	MaxDAONameLen        = 64
	MaxDAODescriptionLen = 256
	MaxTitleLen          = 128
	MaxDescriptionLen    = 512
	MaxExecutionDataLen  = 1024
	MaxReasoningLen      = 256

	MinQuorumThreshold = 1
	MaxQuorumThreshold = 100
)

// ComplianceInfo carries the legal-entity metadata recorded at DAO
// formation. It is informational and never consulted by governance logic.
type ComplianceInfo struct {
	LegalName                string `json:"legal_name" yaml:"legal_name"`
	RegisteredAgentAddress   string `json:"registered_agent_address" yaml:"registered_agent_address"`
	PrincipalPlaceOfBusiness string `json:"principal_place_of_business" yaml:"principal_place_of_business"`
	FormationDate            string `json:"formation_date" yaml:"formation_date"`
	Jurisdiction             string `json:"jurisdiction" yaml:"jurisdiction"`
	EntityType               string `json:"entity_type" yaml:"entity_type"`
}

// DAO is the governance aggregate. It owns the proposal sequence and
// caches per-class counts of active members; the registry is the source
// of truth for membership and keeps the counts synchronized inside the
// same transaction that mutates a member.
type DAO struct {
	Name        string `json:"name"`
	Authority   string `json:"authority"`
	Description string `json:"description"`

	HumanQuorumThreshold uint8 `json:"human_quorum_threshold"`
	AIQuorumThreshold    uint8 `json:"ai_quorum_threshold"`

	TotalMembers      uint64 `json:"total_members"`
	TotalHumanMembers uint64 `json:"total_human_members"`
	TotalAIMembers    uint64 `json:"total_ai_members"`

	ProposalCount uint64 `json:"proposal_count"`

	Compliance ComplianceInfo `json:"compliance"`
	CreatedAt  time.Time      `json:"created_at"`

	// Version is the optimistic-concurrency stamp maintained by the ledger.
	Version uint64 `json:"-"`
}

// MemberCount returns the cached active-member count for a voter class.
// Organization members participate in neither quorum pool.
func (d *DAO) MemberCount(class VoterClass) uint64 {
	switch class {
	case ClassHuman:
		return d.TotalHumanMembers
	case ClassAI:
		return d.TotalAIMembers
	default:
		return 0
	}
}

// QuorumThreshold returns the configured percentage threshold for a class.
func (d *DAO) QuorumThreshold(class VoterClass) uint8 {
	switch class {
	case ClassHuman:
		return d.HumanQuorumThreshold
	case ClassAI:
		return d.AIQuorumThreshold
	default:
		return 0
	}
}

// Registry tracks who may be enrolled as a member and by whom. MemberCount
// counts every record ever added; the DAO's per-class counts track only
// active members.
type Registry struct {
	DAO         string    `json:"dao"`
	Authority   string    `json:"authority"`
	MemberCount uint64    `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`

	Version uint64 `json:"-"`
}

// Member is one registry entry. Owned exclusively by the registry; the
// DAO sees membership only through its cached aggregate counts.
type Member struct {
	DAO         string     `json:"dao"`
	Identity    string     `json:"identity"`
	Class       VoterClass `json:"class"`
	VotingPower uint64     `json:"voting_power"`
	IsActive    bool       `json:"is_active"`
	JoinedAt    time.Time  `json:"joined_at"`

	Version uint64 `json:"-"`
}

// Proposal is a votable unit of governance work, keyed by (dao, id) where
// id is allocated from the DAO's monotonic proposal sequence.
type Proposal struct {
	DAO         string       `json:"dao"`
	ID          uint64       `json:"id"`
	Proposer    string       `json:"proposer"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Type        ProposalType `json:"type"`

	Status ProposalStatus `json:"status"`

	// ExecutionData is opaque to voting; for treasury proposals it holds a
	// JSON transfer request decoded at execution time.
	ExecutionData []byte `json:"execution_data,omitempty"`

	HumanVotesFor     uint64 `json:"human_votes_for"`
	HumanVotesAgainst uint64 `json:"human_votes_against"`
	AIVotesFor        uint64 `json:"ai_votes_for"`
	AIVotesAgainst    uint64 `json:"ai_votes_against"`

	CreatedAt    time.Time  `json:"created_at"`
	VotingEndsAt time.Time  `json:"voting_ends_at"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`

	Version uint64 `json:"-"`
}

// Tally returns the weighted for/against counters for a quorum class.
func (p *Proposal) Tally(class VoterClass) (votesFor, votesAgainst uint64) {
	switch class {
	case ClassHuman:
		return p.HumanVotesFor, p.HumanVotesAgainst
	case ClassAI:
		return p.AIVotesFor, p.AIVotesAgainst
	default:
		return 0, 0
	}
}

// VoteRecord is the uniqueness witness for one voter's one vote on one
// proposal. Created exactly once and immutable thereafter.
type VoteRecord struct {
	DAO        string     `json:"dao"`
	ProposalID uint64     `json:"proposal_id"`
	Voter      string     `json:"voter"`
	Class      VoterClass `json:"class"`
	Choice     VoteChoice `json:"choice"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Weight     uint64     `json:"weight"`
	VotedAt    time.Time  `json:"voted_at"`
}

// TreasuryAccount holds fund balances. The DAO's own treasury occupies
// the TreasuryHolder slot at formation; recipient accounts are created
// on first credit. Only proposal execution moves funds.
type TreasuryAccount struct {
	DAO     string `json:"dao"`
	Holder  string `json:"holder"`
	Balance uint64 `json:"balance"`

	Version uint64 `json:"-"`
}

// TransferRequest is the decoded execution payload of a treasury proposal.
type TransferRequest struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}
