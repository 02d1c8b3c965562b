package governance

import "github.com/microaidao/governance/pkg/domain"

// ClassProgress describes how far one voter class has come toward
// approving a proposal. Participation counts vote records of any choice;
// the majority comparison uses weighted for/against tallies only.
type ClassProgress struct {
	Class           domain.VoterClass `json:"class"`
	MemberCount     uint64            `json:"member_count"`
	VotesCast       uint64            `json:"votes_cast"`
	QuorumThreshold uint8             `json:"quorum_threshold"`
	QuorumPercent   uint64            `json:"quorum_percent"`
	QuorumMet       bool              `json:"quorum_met"`
	VotesFor        uint64            `json:"votes_for"`
	VotesAgainst    uint64            `json:"votes_against"`
	MajorityMet     bool              `json:"majority_met"`
}

// QuorumProgress is the combined dual-quorum evaluation for a proposal.
type QuorumProgress struct {
	Human    ClassProgress `json:"human"`
	AI       ClassProgress `json:"ai"`
	Approved bool          `json:"approved"`
}

// classProgress evaluates one voter class. A class with zero members can
// never meet quorum, so a DAO with an empty voter class cannot approve
// anything.
func classProgress(dao *domain.DAO, p *domain.Proposal, class domain.VoterClass, votesCast uint64) ClassProgress {
	members := dao.MemberCount(class)
	threshold := dao.QuorumThreshold(class)
	votesFor, votesAgainst := p.Tally(class)

	cp := ClassProgress{
		Class:           class,
		MemberCount:     members,
		VotesCast:       votesCast,
		QuorumThreshold: threshold,
		VotesFor:        votesFor,
		VotesAgainst:    votesAgainst,
		MajorityMet:     votesFor > votesAgainst,
	}
	if members > 0 {
		cp.QuorumPercent = votesCast * 100 / members
		cp.QuorumMet = cp.QuorumPercent >= uint64(threshold)
	}
	return cp
}

// EvaluateQuorum applies the dual-quorum-and-majority rule: approval
// requires both the human and AI classes to simultaneously clear their
// quorum threshold and hold a strict weighted majority.
func EvaluateQuorum(dao *domain.DAO, p *domain.Proposal, votesCast map[domain.VoterClass]uint64) QuorumProgress {
	human := classProgress(dao, p, domain.ClassHuman, votesCast[domain.ClassHuman])
	ai := classProgress(dao, p, domain.ClassAI, votesCast[domain.ClassAI])

	return QuorumProgress{
		Human:    human,
		AI:       ai,
		Approved: human.QuorumMet && human.MajorityMet && ai.QuorumMet && ai.MajorityMet,
	}
}
