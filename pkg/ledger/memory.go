package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/microaidao/governance/pkg/domain"
)

// MemoryLedger is an in-memory Ledger. A single writer lock serializes
// Update transactions, which makes every instruction trivially atomic and
// linearizable; writes are staged in the transaction and only folded into
// the committed maps when the instruction callback succeeds.
type MemoryLedger struct {
	mu sync.RWMutex

	daos       map[string]domain.DAO
	registries map[string]domain.Registry
	members    map[string]domain.Member
	proposals  map[string]domain.Proposal
	votes      map[string]domain.VoteRecord
	treasuries map[string]domain.TreasuryAccount
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		daos:       make(map[string]domain.DAO),
		registries: make(map[string]domain.Registry),
		members:    make(map[string]domain.Member),
		proposals:  make(map[string]domain.Proposal),
		votes:      make(map[string]domain.VoteRecord),
		treasuries: make(map[string]domain.TreasuryAccount),
	}
}

// Update implements Ledger.
func (l *MemoryLedger) Update(ctx context.Context, fn func(tx Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &memoryTxn{ledger: l, staged: newStage()}
	if err := fn(tx); err != nil {
		return err
	}
	tx.staged.applyTo(l)
	return nil
}

// View implements Ledger.
func (l *MemoryLedger) View(ctx context.Context, fn func(tx ReadTxn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return fn(&memoryTxn{ledger: l, staged: newStage()})
}

// Close implements Ledger.
func (l *MemoryLedger) Close() error { return nil }

// stage buffers uncommitted writes keyed exactly like the backing maps.
type stage struct {
	daos       map[string]domain.DAO
	registries map[string]domain.Registry
	members    map[string]domain.Member
	proposals  map[string]domain.Proposal
	votes      map[string]domain.VoteRecord
	treasuries map[string]domain.TreasuryAccount
}

func newStage() *stage {
	return &stage{
		daos:       make(map[string]domain.DAO),
		registries: make(map[string]domain.Registry),
		members:    make(map[string]domain.Member),
		proposals:  make(map[string]domain.Proposal),
		votes:      make(map[string]domain.VoteRecord),
		treasuries: make(map[string]domain.TreasuryAccount),
	}
}

func (s *stage) applyTo(l *MemoryLedger) {
	for k, v := range s.daos {
		l.daos[k] = v
	}
	for k, v := range s.registries {
		l.registries[k] = v
	}
	for k, v := range s.members {
		l.members[k] = v
	}
	for k, v := range s.proposals {
		l.proposals[k] = v
	}
	for k, v := range s.votes {
		l.votes[k] = v
	}
	for k, v := range s.treasuries {
		l.treasuries[k] = v
	}
}

type memoryTxn struct {
	ledger *MemoryLedger
	staged *stage
}

func (t *memoryTxn) GetDAO(name string) (*domain.DAO, error) {
	if d, ok := t.staged.daos[domain.DAOKey(name)]; ok {
		return cloneDAO(d), nil
	}
	if d, ok := t.ledger.daos[domain.DAOKey(name)]; ok {
		return cloneDAO(d), nil
	}
	return nil, fmt.Errorf("dao %q: %w", name, domain.ErrNotFound)
}

func (t *memoryTxn) GetRegistry(dao string) (*domain.Registry, error) {
	if r, ok := t.staged.registries[domain.RegistryKey(dao)]; ok {
		return &r, nil
	}
	if r, ok := t.ledger.registries[domain.RegistryKey(dao)]; ok {
		return &r, nil
	}
	return nil, fmt.Errorf("registry for dao %q: %w", dao, domain.ErrNotFound)
}

func (t *memoryTxn) GetMember(dao, identity string) (*domain.Member, error) {
	if m, ok := t.staged.members[domain.MemberKey(dao, identity)]; ok {
		return &m, nil
	}
	if m, ok := t.ledger.members[domain.MemberKey(dao, identity)]; ok {
		return &m, nil
	}
	return nil, fmt.Errorf("member %q in dao %q: %w", identity, dao, domain.ErrMemberNotFound)
}

func (t *memoryTxn) ListMembers(dao string) ([]*domain.Member, error) {
	merged := make(map[string]domain.Member)
	prefix := domain.MemberPrefix(dao)
	for k, v := range t.ledger.members {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	for k, v := range t.staged.members {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	out := make([]*domain.Member, 0, len(merged))
	for _, v := range merged {
		m := v
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (t *memoryTxn) GetProposal(dao string, id uint64) (*domain.Proposal, error) {
	if p, ok := t.staged.proposals[domain.ProposalKey(dao, id)]; ok {
		return cloneProposal(p), nil
	}
	if p, ok := t.ledger.proposals[domain.ProposalKey(dao, id)]; ok {
		return cloneProposal(p), nil
	}
	return nil, fmt.Errorf("proposal %d in dao %q: %w", id, dao, domain.ErrNotFound)
}

func (t *memoryTxn) ListProposals(dao string) ([]*domain.Proposal, error) {
	merged := make(map[string]domain.Proposal)
	prefix := domain.ProposalPrefix(dao)
	for k, v := range t.ledger.proposals {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	for k, v := range t.staged.proposals {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	out := make([]*domain.Proposal, 0, len(merged))
	for _, v := range merged {
		out = append(out, cloneProposal(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTxn) GetVote(dao string, proposalID uint64, voter string) (*domain.VoteRecord, error) {
	if v, ok := t.staged.votes[domain.VoteKey(dao, proposalID, voter)]; ok {
		return &v, nil
	}
	if v, ok := t.ledger.votes[domain.VoteKey(dao, proposalID, voter)]; ok {
		return &v, nil
	}
	return nil, fmt.Errorf("vote by %q on proposal %d: %w", voter, proposalID, domain.ErrNotFound)
}

func (t *memoryTxn) ListVotes(dao string, proposalID uint64) ([]*domain.VoteRecord, error) {
	merged := make(map[string]domain.VoteRecord)
	prefix := domain.VotePrefix(dao, proposalID)
	for k, v := range t.ledger.votes {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	for k, v := range t.staged.votes {
		if strings.HasPrefix(k, prefix) {
			merged[k] = v
		}
	}
	out := make([]*domain.VoteRecord, 0, len(merged))
	for _, v := range merged {
		r := v
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Voter < out[j].Voter })
	return out, nil
}

func (t *memoryTxn) CountVotesByClass(dao string, proposalID uint64) (map[domain.VoterClass]uint64, error) {
	votes, err := t.ListVotes(dao, proposalID)
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.VoterClass]uint64)
	for _, v := range votes {
		counts[v.Class]++
	}
	return counts, nil
}

func (t *memoryTxn) GetTreasury(dao, holder string) (*domain.TreasuryAccount, error) {
	if a, ok := t.staged.treasuries[domain.TreasuryKey(dao, holder)]; ok {
		return &a, nil
	}
	if a, ok := t.ledger.treasuries[domain.TreasuryKey(dao, holder)]; ok {
		return &a, nil
	}
	return nil, fmt.Errorf("treasury account %q in dao %q: %w", holder, dao, domain.ErrNotFound)
}

func (t *memoryTxn) ListDAOs() ([]*domain.DAO, error) {
	merged := make(map[string]domain.DAO)
	for k, v := range t.ledger.daos {
		merged[k] = v
	}
	for k, v := range t.staged.daos {
		merged[k] = v
	}
	out := make([]*domain.DAO, 0, len(merged))
	for _, v := range merged {
		out = append(out, cloneDAO(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memoryTxn) exists(key string, kind string) bool {
	switch kind {
	case "dao":
		_, inStage := t.staged.daos[key]
		_, inBase := t.ledger.daos[key]
		return inStage || inBase
	case "registry":
		_, inStage := t.staged.registries[key]
		_, inBase := t.ledger.registries[key]
		return inStage || inBase
	case "member":
		_, inStage := t.staged.members[key]
		_, inBase := t.ledger.members[key]
		return inStage || inBase
	case "proposal":
		_, inStage := t.staged.proposals[key]
		_, inBase := t.ledger.proposals[key]
		return inStage || inBase
	case "vote":
		_, inStage := t.staged.votes[key]
		_, inBase := t.ledger.votes[key]
		return inStage || inBase
	}
	return false
}

func (t *memoryTxn) CreateDAO(d *domain.DAO) error {
	if t.exists(domain.DAOKey(d.Name), "dao") {
		return fmt.Errorf("dao %q: %w", d.Name, domain.ErrDAOAlreadyExists)
	}
	c := *cloneDAO(*d)
	c.Version = 1
	t.staged.daos[domain.DAOKey(d.Name)] = c
	return nil
}

func (t *memoryTxn) PutDAO(d *domain.DAO) error {
	c := *cloneDAO(*d)
	c.Version = d.Version + 1
	t.staged.daos[domain.DAOKey(d.Name)] = c
	return nil
}

func (t *memoryTxn) CreateRegistry(r *domain.Registry) error {
	if _, inStage := t.staged.registries[domain.RegistryKey(r.DAO)]; inStage {
		return fmt.Errorf("registry for dao %q already exists", r.DAO)
	}
	if _, inBase := t.ledger.registries[domain.RegistryKey(r.DAO)]; inBase {
		return fmt.Errorf("registry for dao %q already exists", r.DAO)
	}
	c := *r
	c.Version = 1
	t.staged.registries[domain.RegistryKey(r.DAO)] = c
	return nil
}

func (t *memoryTxn) PutRegistry(r *domain.Registry) error {
	c := *r
	c.Version = r.Version + 1
	t.staged.registries[domain.RegistryKey(r.DAO)] = c
	return nil
}

func (t *memoryTxn) CreateMember(m *domain.Member) error {
	if t.exists(domain.MemberKey(m.DAO, m.Identity), "member") {
		return fmt.Errorf("member %q: %w", m.Identity, domain.ErrDuplicateMember)
	}
	c := *m
	c.Version = 1
	t.staged.members[domain.MemberKey(m.DAO, m.Identity)] = c
	return nil
}

func (t *memoryTxn) PutMember(m *domain.Member) error {
	c := *m
	c.Version = m.Version + 1
	t.staged.members[domain.MemberKey(m.DAO, m.Identity)] = c
	return nil
}

func (t *memoryTxn) CreateProposal(p *domain.Proposal) error {
	if t.exists(domain.ProposalKey(p.DAO, p.ID), "proposal") {
		return fmt.Errorf("proposal %d in dao %q already exists", p.ID, p.DAO)
	}
	c := *cloneProposal(*p)
	c.Version = 1
	t.staged.proposals[domain.ProposalKey(p.DAO, p.ID)] = c
	return nil
}

func (t *memoryTxn) PutProposal(p *domain.Proposal) error {
	c := *cloneProposal(*p)
	c.Version = p.Version + 1
	t.staged.proposals[domain.ProposalKey(p.DAO, p.ID)] = c
	return nil
}

func (t *memoryTxn) CreateVote(v *domain.VoteRecord) error {
	if t.exists(domain.VoteKey(v.DAO, v.ProposalID, v.Voter), "vote") {
		return fmt.Errorf("voter %q on proposal %d: %w", v.Voter, v.ProposalID, domain.ErrAlreadyVoted)
	}
	t.staged.votes[domain.VoteKey(v.DAO, v.ProposalID, v.Voter)] = *v
	return nil
}

func (t *memoryTxn) PutTreasury(a *domain.TreasuryAccount) error {
	c := *a
	c.Version = a.Version + 1
	t.staged.treasuries[domain.TreasuryKey(a.DAO, a.Holder)] = c
	return nil
}

func cloneDAO(d domain.DAO) *domain.DAO {
	c := d
	return &c
}

func cloneProposal(p domain.Proposal) *domain.Proposal {
	c := p
	if p.ExecutionData != nil {
		c.ExecutionData = append([]byte(nil), p.ExecutionData...)
	}
	if p.ExecutedAt != nil {
		ts := *p.ExecutedAt
		c.ExecutedAt = &ts
	}
	return &c
}
