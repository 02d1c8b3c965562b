// Package ledger provides the transactional record store backing the
// governance state machine. Every instruction runs inside a single
// all-or-nothing transaction: either every staged write commits or none
// does. Implementations must serialize Update transactions per store so
// that a proposal's tallies and status mutate through one linearizable
// sequence, and must reject key collisions on create rather than
// overwrite.
package ledger

import (
	"context"

	"github.com/microaidao/governance/pkg/domain"
)

// ReadTxn exposes consistent point-in-time reads. Returned records are
// private copies; mutating them has no effect until written back through
// a write transaction.
type ReadTxn interface {
	GetDAO(name string) (*domain.DAO, error)
	GetRegistry(dao string) (*domain.Registry, error)
	GetMember(dao, identity string) (*domain.Member, error)
	ListMembers(dao string) ([]*domain.Member, error)
	GetProposal(dao string, id uint64) (*domain.Proposal, error)
	ListProposals(dao string) ([]*domain.Proposal, error)
	GetVote(dao string, proposalID uint64, voter string) (*domain.VoteRecord, error)
	ListVotes(dao string, proposalID uint64) ([]*domain.VoteRecord, error)
	// CountVotesByClass tallies participation (vote records, any choice)
	// per voter class for one proposal.
	CountVotesByClass(dao string, proposalID uint64) (map[domain.VoterClass]uint64, error)
	GetTreasury(dao, holder string) (*domain.TreasuryAccount, error)
	ListDAOs() ([]*domain.DAO, error)
}

// Txn adds staged writes on top of ReadTxn. Create methods enforce the
// deterministic-key uniqueness invariants; Put methods perform an
// optimistic write and fail with domain.ErrVersionConflict when the
// record changed since it was read.
type Txn interface {
	ReadTxn

	CreateDAO(d *domain.DAO) error
	PutDAO(d *domain.DAO) error
	CreateRegistry(r *domain.Registry) error
	PutRegistry(r *domain.Registry) error
	CreateMember(m *domain.Member) error
	PutMember(m *domain.Member) error
	CreateProposal(p *domain.Proposal) error
	PutProposal(p *domain.Proposal) error
	CreateVote(v *domain.VoteRecord) error
	PutTreasury(t *domain.TreasuryAccount) error
}

// Ledger is the shared, totally-ordered record store.
type Ledger interface {
	// Update runs fn in a write transaction. If fn returns an error the
	// transaction aborts with zero writes applied.
	Update(ctx context.Context, fn func(tx Txn) error) error
	// View runs fn against a read-only snapshot.
	View(ctx context.Context, fn func(tx ReadTxn) error) error
	Close() error
}
