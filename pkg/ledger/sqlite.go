package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/microaidao/governance/pkg/domain"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SqliteLedger is a durable Ledger backed by SQLite through gorm. Each
// Update runs inside a database transaction, and optimistic version
// checks on every Put keep concurrent writers from clobbering each
// other's reads even if the store is ever moved off SQLite's serialized
// writer model.
type SqliteLedger struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSqliteLedger opens (or creates) the ledger database. An empty
// dataDir selects a shared in-memory database, which is what the tests
// use.
func NewSqliteLedger(dataDir string, logger *slog.Logger) (*SqliteLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := "file::memory:?cache=shared"
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "governance.sqlite") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	if err := db.AutoMigrate(
		&daoRow{}, &registryRow{}, &memberRow{},
		&proposalRow{}, &voteRow{}, &treasuryRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}

	return &SqliteLedger{db: db, logger: logger}, nil
}

// Update implements Ledger.
func (l *SqliteLedger) Update(ctx context.Context, fn func(tx Txn) error) error {
	return l.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		return fn(&sqliteTxn{tx: dbtx})
	})
}

// View implements Ledger. Reads run inside their own transaction so a
// multi-read view observes one point-in-time snapshot even while writers
// commit concurrently.
func (l *SqliteLedger) View(ctx context.Context, fn func(tx ReadTxn) error) error {
	return l.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		return fn(&sqliteTxn{tx: dbtx})
	})
}

// Close implements Ledger.
func (l *SqliteLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqliteTxn struct {
	tx *gorm.DB
}

func (t *sqliteTxn) GetDAO(name string) (*domain.DAO, error) {
	var row daoRow
	if err := t.tx.Where("name = ?", name).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dao %q: %w", name, domain.ErrNotFound)
		}
		return nil, err
	}
	return rowToDAO(row), nil
}

func (t *sqliteTxn) GetRegistry(dao string) (*domain.Registry, error) {
	var row registryRow
	if err := t.tx.Where("dao = ?", dao).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("registry for dao %q: %w", dao, domain.ErrNotFound)
		}
		return nil, err
	}
	return rowToRegistry(row), nil
}

func (t *sqliteTxn) GetMember(dao, identity string) (*domain.Member, error) {
	var row memberRow
	if err := t.tx.Where("dao = ? AND identity = ?", dao, identity).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("member %q in dao %q: %w", identity, dao, domain.ErrMemberNotFound)
		}
		return nil, err
	}
	return rowToMember(row), nil
}

func (t *sqliteTxn) ListMembers(dao string) ([]*domain.Member, error) {
	var rows []memberRow
	if err := t.tx.Where("dao = ?", dao).Order("identity").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Member, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToMember(r))
	}
	return out, nil
}

func (t *sqliteTxn) GetProposal(dao string, id uint64) (*domain.Proposal, error) {
	var row proposalRow
	if err := t.tx.Where("dao = ? AND id = ?", dao, id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("proposal %d in dao %q: %w", id, dao, domain.ErrNotFound)
		}
		return nil, err
	}
	return rowToProposal(row), nil
}

func (t *sqliteTxn) ListProposals(dao string) ([]*domain.Proposal, error) {
	var rows []proposalRow
	if err := t.tx.Where("dao = ?", dao).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Proposal, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToProposal(r))
	}
	return out, nil
}

func (t *sqliteTxn) GetVote(dao string, proposalID uint64, voter string) (*domain.VoteRecord, error) {
	var row voteRow
	err := t.tx.Where("dao = ? AND proposal_id = ? AND voter = ?", dao, proposalID, voter).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("vote by %q on proposal %d: %w", voter, proposalID, domain.ErrNotFound)
		}
		return nil, err
	}
	return rowToVote(row), nil
}

func (t *sqliteTxn) ListVotes(dao string, proposalID uint64) ([]*domain.VoteRecord, error) {
	var rows []voteRow
	if err := t.tx.Where("dao = ? AND proposal_id = ?", dao, proposalID).Order("voter").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.VoteRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToVote(r))
	}
	return out, nil
}

func (t *sqliteTxn) CountVotesByClass(dao string, proposalID uint64) (map[domain.VoterClass]uint64, error) {
	type classCount struct {
		Class string
		N     uint64
	}
	var rows []classCount
	err := t.tx.Model(&voteRow{}).
		Select("class, count(*) as n").
		Where("dao = ? AND proposal_id = ?", dao, proposalID).
		Group("class").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.VoterClass]uint64, len(rows))
	for _, r := range rows {
		counts[domain.VoterClass(r.Class)] = r.N
	}
	return counts, nil
}

func (t *sqliteTxn) GetTreasury(dao, holder string) (*domain.TreasuryAccount, error) {
	var row treasuryRow
	if err := t.tx.Where("dao = ? AND holder = ?", dao, holder).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("treasury account %q in dao %q: %w", holder, dao, domain.ErrNotFound)
		}
		return nil, err
	}
	return &domain.TreasuryAccount{DAO: row.DAO, Holder: row.Holder, Balance: row.Balance, Version: row.Version}, nil
}

func (t *sqliteTxn) ListDAOs() ([]*domain.DAO, error) {
	var rows []daoRow
	if err := t.tx.Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.DAO, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToDAO(r))
	}
	return out, nil
}

func (t *sqliteTxn) CreateDAO(d *domain.DAO) error {
	row := daoToRow(d)
	row.Version = 1
	if err := t.tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("dao %q: %w", d.Name, domain.ErrDAOAlreadyExists)
		}
		return err
	}
	return nil
}

func (t *sqliteTxn) PutDAO(d *domain.DAO) error {
	row := daoToRow(d)
	row.Version = d.Version + 1
	res := t.tx.Model(&daoRow{}).
		Where("name = ? AND version = ?", d.Name, d.Version).
		Select("*").Omit("name", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("dao %q: %w", d.Name, domain.ErrVersionConflict)
	}
	return nil
}

func (t *sqliteTxn) CreateRegistry(r *domain.Registry) error {
	row := registryToRow(r)
	row.Version = 1
	if err := t.tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("registry for dao %q already exists", r.DAO)
		}
		return err
	}
	return nil
}

func (t *sqliteTxn) PutRegistry(r *domain.Registry) error {
	row := registryToRow(r)
	row.Version = r.Version + 1
	res := t.tx.Model(&registryRow{}).
		Where("dao = ? AND version = ?", r.DAO, r.Version).
		Select("*").Omit("dao", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("registry for dao %q: %w", r.DAO, domain.ErrVersionConflict)
	}
	return nil
}

func (t *sqliteTxn) CreateMember(m *domain.Member) error {
	row := memberToRow(m)
	row.Version = 1
	if err := t.tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("member %q: %w", m.Identity, domain.ErrDuplicateMember)
		}
		return err
	}
	return nil
}

func (t *sqliteTxn) PutMember(m *domain.Member) error {
	row := memberToRow(m)
	row.Version = m.Version + 1
	res := t.tx.Model(&memberRow{}).
		Where("dao = ? AND identity = ? AND version = ?", m.DAO, m.Identity, m.Version).
		Select("*").Omit("dao", "identity", "joined_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("member %q: %w", m.Identity, domain.ErrVersionConflict)
	}
	return nil
}

func (t *sqliteTxn) CreateProposal(p *domain.Proposal) error {
	row := proposalToRow(p)
	row.Version = 1
	if err := t.tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("proposal %d in dao %q already exists", p.ID, p.DAO)
		}
		return err
	}
	return nil
}

func (t *sqliteTxn) PutProposal(p *domain.Proposal) error {
	row := proposalToRow(p)
	row.Version = p.Version + 1
	res := t.tx.Model(&proposalRow{}).
		Where("dao = ? AND id = ? AND version = ?", p.DAO, p.ID, p.Version).
		Select("*").Omit("dao", "id", "created_at").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("proposal %d: %w", p.ID, domain.ErrVersionConflict)
	}
	return nil
}

func (t *sqliteTxn) CreateVote(v *domain.VoteRecord) error {
	row := voteToRow(v)
	if err := t.tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("voter %q on proposal %d: %w", v.Voter, v.ProposalID, domain.ErrAlreadyVoted)
		}
		return err
	}
	return nil
}

func (t *sqliteTxn) PutTreasury(a *domain.TreasuryAccount) error {
	if a.Version == 0 {
		row := treasuryRow{DAO: a.DAO, Holder: a.Holder, Balance: a.Balance, Version: 1}
		if err := t.tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("treasury account %q: %w", a.Holder, domain.ErrVersionConflict)
			}
			return err
		}
		return nil
	}
	res := t.tx.Model(&treasuryRow{}).
		Where("dao = ? AND holder = ? AND version = ?", a.DAO, a.Holder, a.Version).
		Updates(map[string]any{"balance": a.Balance, "version": a.Version + 1})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("treasury account %q: %w", a.Holder, domain.ErrVersionConflict)
	}
	return nil
}
