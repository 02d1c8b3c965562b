package ledger

import (
	"time"

	"github.com/microaidao/governance/pkg/domain"
)

// gorm row types for the SQLite backend. Composite primary keys mirror
// the deterministic record keys, so uniqueness violations surface as
// duplicate-key errors that the store maps back into the domain taxonomy.

type daoRow struct {
	Name        string `gorm:"primaryKey"`
	Authority   string
	Description string

	HumanQuorumThreshold uint8
	AIQuorumThreshold    uint8

	TotalMembers      uint64
	TotalHumanMembers uint64
	TotalAIMembers    uint64
	ProposalCount     uint64

	LegalName                string
	RegisteredAgentAddress   string
	PrincipalPlaceOfBusiness string
	FormationDate            string
	Jurisdiction             string
	EntityType               string

	CreatedAt time.Time
	Version   uint64
}

func (daoRow) TableName() string { return "daos" }

type registryRow struct {
	DAO         string `gorm:"primaryKey;column:dao"`
	Authority   string
	MemberCount uint64
	CreatedAt   time.Time
	Version     uint64
}

func (registryRow) TableName() string { return "registries" }

type memberRow struct {
	DAO         string `gorm:"primaryKey;column:dao"`
	Identity    string `gorm:"primaryKey"`
	Class       string
	VotingPower uint64
	IsActive    bool
	JoinedAt    time.Time
	Version     uint64
}

func (memberRow) TableName() string { return "members" }

type proposalRow struct {
	DAO         string `gorm:"primaryKey;column:dao"`
	ID          uint64 `gorm:"primaryKey;autoIncrement:false"`
	Proposer    string
	Title       string
	Description string
	Type        string
	Status      string

	ExecutionData []byte

	HumanVotesFor     uint64
	HumanVotesAgainst uint64
	AIVotesFor        uint64
	AIVotesAgainst    uint64

	CreatedAt    time.Time
	VotingEndsAt time.Time
	ExecutedAt   *time.Time
	Version      uint64
}

func (proposalRow) TableName() string { return "proposals" }

type voteRow struct {
	DAO        string `gorm:"primaryKey;column:dao"`
	ProposalID uint64 `gorm:"primaryKey;autoIncrement:false"`
	Voter      string `gorm:"primaryKey"`
	Class      string `gorm:"index"`
	Choice     string
	Reasoning  string
	Weight     uint64
	VotedAt    time.Time
}

func (voteRow) TableName() string { return "votes" }

type treasuryRow struct {
	DAO     string `gorm:"primaryKey;column:dao"`
	Holder  string `gorm:"primaryKey"`
	Balance uint64
	Version uint64
}

func (treasuryRow) TableName() string { return "treasury_accounts" }

func daoToRow(d *domain.DAO) daoRow {
	return daoRow{
		Name:                     d.Name,
		Authority:                d.Authority,
		Description:              d.Description,
		HumanQuorumThreshold:     d.HumanQuorumThreshold,
		AIQuorumThreshold:        d.AIQuorumThreshold,
		TotalMembers:             d.TotalMembers,
		TotalHumanMembers:        d.TotalHumanMembers,
		TotalAIMembers:           d.TotalAIMembers,
		ProposalCount:            d.ProposalCount,
		LegalName:                d.Compliance.LegalName,
		RegisteredAgentAddress:   d.Compliance.RegisteredAgentAddress,
		PrincipalPlaceOfBusiness: d.Compliance.PrincipalPlaceOfBusiness,
		FormationDate:            d.Compliance.FormationDate,
		Jurisdiction:             d.Compliance.Jurisdiction,
		EntityType:               d.Compliance.EntityType,
		CreatedAt:                d.CreatedAt,
		Version:                  d.Version,
	}
}

func rowToDAO(r daoRow) *domain.DAO {
	return &domain.DAO{
		Name:                 r.Name,
		Authority:            r.Authority,
		Description:          r.Description,
		HumanQuorumThreshold: r.HumanQuorumThreshold,
		AIQuorumThreshold:    r.AIQuorumThreshold,
		TotalMembers:         r.TotalMembers,
		TotalHumanMembers:    r.TotalHumanMembers,
		TotalAIMembers:       r.TotalAIMembers,
		ProposalCount:        r.ProposalCount,
		Compliance: domain.ComplianceInfo{
			LegalName:                r.LegalName,
			RegisteredAgentAddress:   r.RegisteredAgentAddress,
			PrincipalPlaceOfBusiness: r.PrincipalPlaceOfBusiness,
			FormationDate:            r.FormationDate,
			Jurisdiction:             r.Jurisdiction,
			EntityType:               r.EntityType,
		},
		CreatedAt: r.CreatedAt,
		Version:   r.Version,
	}
}

func registryToRow(r *domain.Registry) registryRow {
	return registryRow{
		DAO:         r.DAO,
		Authority:   r.Authority,
		MemberCount: r.MemberCount,
		CreatedAt:   r.CreatedAt,
		Version:     r.Version,
	}
}

func rowToRegistry(r registryRow) *domain.Registry {
	return &domain.Registry{
		DAO:         r.DAO,
		Authority:   r.Authority,
		MemberCount: r.MemberCount,
		CreatedAt:   r.CreatedAt,
		Version:     r.Version,
	}
}

func memberToRow(m *domain.Member) memberRow {
	return memberRow{
		DAO:         m.DAO,
		Identity:    m.Identity,
		Class:       string(m.Class),
		VotingPower: m.VotingPower,
		IsActive:    m.IsActive,
		JoinedAt:    m.JoinedAt,
		Version:     m.Version,
	}
}

func rowToMember(r memberRow) *domain.Member {
	return &domain.Member{
		DAO:         r.DAO,
		Identity:    r.Identity,
		Class:       domain.VoterClass(r.Class),
		VotingPower: r.VotingPower,
		IsActive:    r.IsActive,
		JoinedAt:    r.JoinedAt,
		Version:     r.Version,
	}
}

func proposalToRow(p *domain.Proposal) proposalRow {
	return proposalRow{
		DAO:               p.DAO,
		ID:                p.ID,
		Proposer:          p.Proposer,
		Title:             p.Title,
		Description:       p.Description,
		Type:              string(p.Type),
		Status:            string(p.Status),
		ExecutionData:     p.ExecutionData,
		HumanVotesFor:     p.HumanVotesFor,
		HumanVotesAgainst: p.HumanVotesAgainst,
		AIVotesFor:        p.AIVotesFor,
		AIVotesAgainst:    p.AIVotesAgainst,
		CreatedAt:         p.CreatedAt,
		VotingEndsAt:      p.VotingEndsAt,
		ExecutedAt:        p.ExecutedAt,
		Version:           p.Version,
	}
}

func rowToProposal(r proposalRow) *domain.Proposal {
	return &domain.Proposal{
		DAO:               r.DAO,
		ID:                r.ID,
		Proposer:          r.Proposer,
		Title:             r.Title,
		Description:       r.Description,
		Type:              domain.ProposalType(r.Type),
		Status:            domain.ProposalStatus(r.Status),
		ExecutionData:     r.ExecutionData,
		HumanVotesFor:     r.HumanVotesFor,
		HumanVotesAgainst: r.HumanVotesAgainst,
		AIVotesFor:        r.AIVotesFor,
		AIVotesAgainst:    r.AIVotesAgainst,
		CreatedAt:         r.CreatedAt,
		VotingEndsAt:      r.VotingEndsAt,
		ExecutedAt:        r.ExecutedAt,
		Version:           r.Version,
	}
}

func voteToRow(v *domain.VoteRecord) voteRow {
	return voteRow{
		DAO:        v.DAO,
		ProposalID: v.ProposalID,
		Voter:      v.Voter,
		Class:      string(v.Class),
		Choice:     string(v.Choice),
		Reasoning:  v.Reasoning,
		Weight:     v.Weight,
		VotedAt:    v.VotedAt,
	}
}

func rowToVote(r voteRow) *domain.VoteRecord {
	return &domain.VoteRecord{
		DAO:        r.DAO,
		ProposalID: r.ProposalID,
		Voter:      r.Voter,
		Class:      domain.VoterClass(r.Class),
		Choice:     domain.VoteChoice(r.Choice),
		Reasoning:  r.Reasoning,
		Weight:     r.Weight,
		VotedAt:    r.VotedAt,
	}
}
