// Package governance implements the instruction surface of the DAO
// governance state machine: DAO and registry lifecycle, proposal
// creation, vote casting with dual-quorum evaluation, and one-shot
// authority-gated execution. Every instruction runs in a single ledger
// transaction; a failing instruction performs zero writes.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/microaidao/governance/pkg/domain"
	"github.com/microaidao/governance/pkg/ledger"
)

// conflictRetries bounds how often an instruction is replayed after an
// optimistic version conflict before the error is surfaced to the caller.
const conflictRetries = 3

// MetricsRecorder receives governance telemetry. Implemented by
// telemetry.Metrics; a nil recorder disables recording.
type MetricsRecorder interface {
	RecordInstruction(instruction, status string, duration time.Duration)
	RecordVote(dao, class, choice string)
	RecordProposalTransition(dao, status string)
	RecordTreasuryMove(dao string, amount uint64)
}

// Service executes governance instructions against a ledger.
type Service struct {
	ledger  ledger.Ledger
	logger  *slog.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service clock. Tests use it to step through
// voting windows deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a governance service over the given ledger.
func NewService(l ledger.Ledger, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		ledger: l,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger exposes the backing store for read-only consumers.
func (s *Service) Ledger() ledger.Ledger { return s.ledger }

// run wraps an instruction with conflict retries and telemetry.
func (s *Service) run(ctx context.Context, instruction string, fn func(tx ledger.Txn) error) error {
	start := s.now()
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err = s.ledger.Update(ctx, fn)
		if !errors.Is(err, domain.ErrVersionConflict) {
			break
		}
		s.logger.Debug("retrying after version conflict", "instruction", instruction, "attempt", attempt+1)
	}

	status := "ok"
	if err != nil {
		status = domain.ErrorCode(err)
	}
	if s.metrics != nil {
		s.metrics.RecordInstruction(instruction, status, s.now().Sub(start))
	}
	return err
}

// InitializeDAOParams are the inputs of the initialize instruction.
type InitializeDAOParams struct {
	Name        string
	Description string
	Authority   string

	HumanQuorumThreshold uint8
	AIQuorumThreshold    uint8

	Compliance      domain.ComplianceInfo
	InitialTreasury uint64
}

// InitializeDAO creates a DAO keyed deterministically by name, its
// registry, and its treasury account. Re-initialization under the same
// name is rejected as a collision.
func (s *Service) InitializeDAO(ctx context.Context, params InitializeDAOParams) (*domain.DAO, error) {
	if len(params.Name) < 1 || len(params.Name) > domain.MaxDAONameLen || !domain.ValidKeySeed(params.Name) {
		return nil, fmt.Errorf("dao name %q: %w", params.Name, domain.ErrNameTooLong)
	}
	if len(params.Description) > domain.MaxDAODescriptionLen {
		return nil, fmt.Errorf("dao description: %w", domain.ErrDescriptionTooLong)
	}
	for _, threshold := range []uint8{params.HumanQuorumThreshold, params.AIQuorumThreshold} {
		if threshold < domain.MinQuorumThreshold || threshold > domain.MaxQuorumThreshold {
			return nil, fmt.Errorf("threshold %d: %w", threshold, domain.ErrInvalidQuorumThreshold)
		}
	}
	if !domain.ValidKeySeed(params.Authority) {
		return nil, fmt.Errorf("authority: %w", domain.ErrNotAuthorized)
	}

	dao := &domain.DAO{
		Name:                 params.Name,
		Authority:            params.Authority,
		Description:          params.Description,
		HumanQuorumThreshold: params.HumanQuorumThreshold,
		AIQuorumThreshold:    params.AIQuorumThreshold,
		Compliance:           params.Compliance,
		CreatedAt:            s.now().UTC(),
	}

	err := s.run(ctx, "initialize", func(tx ledger.Txn) error {
		if err := tx.CreateDAO(dao); err != nil {
			return err
		}
		return tx.PutTreasury(&domain.TreasuryAccount{
			DAO:     dao.Name,
			Holder:  domain.TreasuryHolder,
			Balance: params.InitialTreasury,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dao initialized",
		"dao", dao.Name,
		"human_quorum", dao.HumanQuorumThreshold,
		"ai_quorum", dao.AIQuorumThreshold,
	)
	return dao, nil
}

// InitializeRegistryParams are the inputs of the initialize_registry
// instruction.
type InitializeRegistryParams struct {
	DAO       string
	Authority string
}

// InitializeRegistry creates the member registry of a DAO with a zero
// member count. The caller becomes the registry authority; a second
// initialization for the same DAO is rejected as a key collision.
func (s *Service) InitializeRegistry(ctx context.Context, params InitializeRegistryParams) (*domain.Registry, error) {
	if !domain.ValidKeySeed(params.Authority) {
		return nil, fmt.Errorf("registry authority: %w", domain.ErrNotAuthorized)
	}

	registry := &domain.Registry{
		DAO:       params.DAO,
		Authority: params.Authority,
		CreatedAt: s.now().UTC(),
	}

	err := s.run(ctx, "initialize_registry", func(tx ledger.Txn) error {
		if _, err := tx.GetDAO(params.DAO); err != nil {
			return err
		}
		return tx.CreateRegistry(registry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registry initialized", "dao", params.DAO, "authority", params.Authority)
	return registry, nil
}

// AddMemberParams are the inputs of the add_member instruction.
type AddMemberParams struct {
	DAO         string
	Authority   string
	Identity    string
	Class       domain.VoterClass
	VotingPower uint64
}

// AddMember enrolls a new active member and synchronizes the DAO's
// aggregate counts in the same transaction, keeping quorum math aligned
// with the registry.
func (s *Service) AddMember(ctx context.Context, params AddMemberParams) (*domain.Member, error) {
	if !domain.ValidKeySeed(params.Identity) {
		return nil, fmt.Errorf("member identity %q: %w", params.Identity, domain.ErrMemberNotFound)
	}

	member := &domain.Member{
		DAO:         params.DAO,
		Identity:    params.Identity,
		Class:       params.Class,
		VotingPower: params.VotingPower,
		IsActive:    true,
		JoinedAt:    s.now().UTC(),
	}

	err := s.run(ctx, "add_member", func(tx ledger.Txn) error {
		registry, err := tx.GetRegistry(params.DAO)
		if err != nil {
			return err
		}
		if registry.Authority != params.Authority {
			return fmt.Errorf("add_member requires the registry authority: %w", domain.ErrNotAuthorized)
		}

		dao, err := tx.GetDAO(params.DAO)
		if err != nil {
			return err
		}

		if err := tx.CreateMember(member); err != nil {
			return err
		}

		registry.MemberCount++
		if err := tx.PutRegistry(registry); err != nil {
			return err
		}

		dao.TotalMembers++
		switch params.Class {
		case domain.ClassHuman:
			dao.TotalHumanMembers++
		case domain.ClassAI:
			dao.TotalAIMembers++
		}
		return tx.PutDAO(dao)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member registered",
		"dao", params.DAO,
		"identity", params.Identity,
		"class", string(params.Class),
		"voting_power", params.VotingPower,
	)
	return member, nil
}

// UpdateMemberParams are the inputs of the update_member instruction.
// Nil fields are left unchanged.
type UpdateMemberParams struct {
	DAO       string
	Authority string
	Identity  string

	VotingPower *uint64
	IsActive    *bool
}

// UpdateMember mutates an existing member. The registry's member_count is
// untouched, but the DAO's active-member counts follow is_active flips so
// that quorum denominators keep matching the active electorate.
func (s *Service) UpdateMember(ctx context.Context, params UpdateMemberParams) (*domain.Member, error) {
	var updated *domain.Member

	err := s.run(ctx, "update_member", func(tx ledger.Txn) error {
		registry, err := tx.GetRegistry(params.DAO)
		if err != nil {
			return err
		}
		if registry.Authority != params.Authority {
			return fmt.Errorf("update_member requires the registry authority: %w", domain.ErrNotAuthorized)
		}

		member, err := tx.GetMember(params.DAO, params.Identity)
		if err != nil {
			return err
		}

		activeDelta := 0
		if params.VotingPower != nil {
			member.VotingPower = *params.VotingPower
		}
		if params.IsActive != nil && *params.IsActive != member.IsActive {
			if *params.IsActive {
				activeDelta = 1
			} else {
				activeDelta = -1
			}
			member.IsActive = *params.IsActive
		}

		if err := tx.PutMember(member); err != nil {
			return err
		}

		if activeDelta != 0 {
			dao, err := tx.GetDAO(params.DAO)
			if err != nil {
				return err
			}
			applyDelta := func(n uint64) uint64 {
				if activeDelta > 0 {
					return n + 1
				}
				if n == 0 {
					return 0
				}
				return n - 1
			}
			dao.TotalMembers = applyDelta(dao.TotalMembers)
			switch member.Class {
			case domain.ClassHuman:
				dao.TotalHumanMembers = applyDelta(dao.TotalHumanMembers)
			case domain.ClassAI:
				dao.TotalAIMembers = applyDelta(dao.TotalAIMembers)
			}
			if err := tx.PutDAO(dao); err != nil {
				return err
			}
		}

		updated = member
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreateProposalParams are the inputs of the create_proposal instruction.
type CreateProposalParams struct {
	DAO           string
	Proposer      string
	Title         string
	Description   string
	Type          domain.ProposalType
	ExecutionData []byte
	VotingPeriod  time.Duration
}

// CreateProposal validates its inputs, allocates the proposal at the
// DAO's next sequence number, and advances the sequence — all in one
// transaction, so a failed validation leaves the counter untouched.
func (s *Service) CreateProposal(ctx context.Context, params CreateProposalParams) (*domain.Proposal, error) {
	if len(params.Title) > domain.MaxTitleLen {
		return nil, fmt.Errorf("proposal title: %w", domain.ErrTitleTooLong)
	}
	if len(params.Description) > domain.MaxDescriptionLen {
		return nil, fmt.Errorf("proposal description: %w", domain.ErrDescriptionTooLong)
	}
	if len(params.ExecutionData) > domain.MaxExecutionDataLen {
		return nil, fmt.Errorf("execution data: %w", domain.ErrExecutionDataTooLarge)
	}
	if params.VotingPeriod <= 0 {
		return nil, fmt.Errorf("voting period %s: %w", params.VotingPeriod, domain.ErrInvalidVotingPeriod)
	}

	var proposal *domain.Proposal
	err := s.run(ctx, "create_proposal", func(tx ledger.Txn) error {
		dao, err := tx.GetDAO(params.DAO)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		proposal = &domain.Proposal{
			DAO:           dao.Name,
			ID:            dao.ProposalCount,
			Proposer:      params.Proposer,
			Title:         params.Title,
			Description:   params.Description,
			Type:          params.Type,
			Status:        domain.StatusActive,
			ExecutionData: params.ExecutionData,
			CreatedAt:     now,
			VotingEndsAt:  now.Add(params.VotingPeriod),
		}
		if err := tx.CreateProposal(proposal); err != nil {
			return err
		}

		dao.ProposalCount++
		return tx.PutDAO(dao)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordProposalTransition(params.DAO, string(domain.StatusActive))
	}
	s.logger.Info("proposal created",
		"dao", params.DAO,
		"proposal", proposal.ID,
		"type", string(proposal.Type),
		"voting_ends_at", proposal.VotingEndsAt,
	)
	return proposal, nil
}

// CastVoteParams are the inputs of the cast_vote instruction.
type CastVoteParams struct {
	DAO        string
	ProposalID uint64
	Voter      string
	Class      domain.VoterClass
	Choice     domain.VoteChoice
	Reasoning  string
}

// CastVoteResult reports the vote record along with the proposal state
// and quorum progress observed immediately after the vote applied.
type CastVoteResult struct {
	Vote     *domain.VoteRecord `json:"vote"`
	Proposal *domain.Proposal   `json:"proposal"`
	Progress QuorumProgress     `json:"progress"`
}

// CastVote records one voter's one vote on one proposal, updates the
// matching class tally, and re-evaluates the dual-quorum rule. The first
// vote that satisfies the combined condition flips the proposal to
// Succeeded; the transition is one-way and never re-evaluated, so later
// votes cannot revert it.
func (s *Service) CastVote(ctx context.Context, params CastVoteParams) (*CastVoteResult, error) {
	var result *CastVoteResult

	err := s.run(ctx, "cast_vote", func(tx ledger.Txn) error {
		dao, err := tx.GetDAO(params.DAO)
		if err != nil {
			return err
		}
		proposal, err := tx.GetProposal(params.DAO, params.ProposalID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if now.After(proposal.VotingEndsAt) {
			return fmt.Errorf("voting ended at %s: %w", proposal.VotingEndsAt, domain.ErrVotingPeriodEnded)
		}
		if proposal.Status != domain.StatusActive {
			return fmt.Errorf("proposal status %q: %w", proposal.Status, domain.ErrProposalNotActive)
		}
		if _, err := tx.GetVote(params.DAO, params.ProposalID, params.Voter); err == nil {
			return fmt.Errorf("voter %q: %w", params.Voter, domain.ErrAlreadyVoted)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if len(params.Reasoning) > domain.MaxReasoningLen {
			return fmt.Errorf("vote reasoning: %w", domain.ErrReasoningTooLong)
		}

		member, err := tx.GetMember(params.DAO, params.Voter)
		if err != nil {
			return err
		}
		if !member.IsActive {
			return fmt.Errorf("voter %q: %w", params.Voter, domain.ErrMemberNotActive)
		}
		if member.Class != params.Class {
			return fmt.Errorf("voter %q is registered as %q: %w", params.Voter, member.Class, domain.ErrVoterClassMismatch)
		}

		vote := &domain.VoteRecord{
			DAO:        params.DAO,
			ProposalID: params.ProposalID,
			Voter:      params.Voter,
			Class:      member.Class,
			Choice:     params.Choice,
			Reasoning:  params.Reasoning,
			Weight:     member.VotingPower,
			VotedAt:    now,
		}
		if err := tx.CreateVote(vote); err != nil {
			return err
		}

		// Abstain is recorded for participation but never tallied.
		switch {
		case member.Class == domain.ClassHuman && params.Choice == domain.ChoiceFor:
			proposal.HumanVotesFor += member.VotingPower
		case member.Class == domain.ClassHuman && params.Choice == domain.ChoiceAgainst:
			proposal.HumanVotesAgainst += member.VotingPower
		case member.Class == domain.ClassAI && params.Choice == domain.ChoiceFor:
			proposal.AIVotesFor += member.VotingPower
		case member.Class == domain.ClassAI && params.Choice == domain.ChoiceAgainst:
			proposal.AIVotesAgainst += member.VotingPower
		}

		votesCast, err := tx.CountVotesByClass(params.DAO, params.ProposalID)
		if err != nil {
			return err
		}

		progress := EvaluateQuorum(dao, proposal, votesCast)
		if progress.Approved {
			proposal.Status = domain.StatusSucceeded
		}

		if err := tx.PutProposal(proposal); err != nil {
			return err
		}

		result = &CastVoteResult{Vote: vote, Proposal: proposal, Progress: progress}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordVote(params.DAO, string(result.Vote.Class), string(result.Vote.Choice))
		if result.Proposal.Status == domain.StatusSucceeded {
			s.metrics.RecordProposalTransition(params.DAO, string(domain.StatusSucceeded))
		}
	}
	s.logger.Info("vote cast",
		"dao", params.DAO,
		"proposal", params.ProposalID,
		"voter", params.Voter,
		"class", string(result.Vote.Class),
		"choice", string(result.Vote.Choice),
		"status", string(result.Proposal.Status),
	)
	return result, nil
}

// ExecuteProposalParams are the inputs of the execute_proposal instruction.
type ExecuteProposalParams struct {
	DAO        string
	ProposalID uint64
	Executor   string
}

// ExecuteProposal performs the one-shot execution of a Succeeded
// proposal. For treasury proposals the execution payload names a
// recipient and an amount, moved from the DAO treasury under the DAO
// authority. Executed_at is set at most once; a second call fails with
// ErrProposalAlreadyExecuted and moves no funds.
func (s *Service) ExecuteProposal(ctx context.Context, params ExecuteProposalParams) (*domain.Proposal, error) {
	var executed *domain.Proposal
	var moved uint64

	err := s.run(ctx, "execute_proposal", func(tx ledger.Txn) error {
		moved = 0
		dao, err := tx.GetDAO(params.DAO)
		if err != nil {
			return err
		}
		if dao.Authority != params.Executor {
			return fmt.Errorf("execute_proposal requires the dao authority: %w", domain.ErrNotAuthorized)
		}

		proposal, err := tx.GetProposal(params.DAO, params.ProposalID)
		if err != nil {
			return err
		}
		if proposal.ExecutedAt != nil || proposal.Status == domain.StatusExecuted {
			return fmt.Errorf("proposal %d: %w", params.ProposalID, domain.ErrProposalAlreadyExecuted)
		}
		if proposal.Status != domain.StatusSucceeded {
			return fmt.Errorf("proposal %d status %q: %w", params.ProposalID, proposal.Status, domain.ErrProposalNotExecutable)
		}

		if proposal.Type == domain.ProposalTreasury && len(proposal.ExecutionData) > 0 {
			var transfer domain.TransferRequest
			if err := json.Unmarshal(proposal.ExecutionData, &transfer); err != nil {
				return fmt.Errorf("decode execution data: %w", err)
			}
			if transfer.Amount > 0 {
				if err := s.moveFunds(tx, params.DAO, transfer); err != nil {
					return err
				}
				moved = transfer.Amount
			}
		}

		now := s.now().UTC()
		proposal.Status = domain.StatusExecuted
		proposal.ExecutedAt = &now
		if err := tx.PutProposal(proposal); err != nil {
			return err
		}

		executed = proposal
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordProposalTransition(params.DAO, string(domain.StatusExecuted))
		if moved > 0 {
			s.metrics.RecordTreasuryMove(params.DAO, moved)
		}
	}
	s.logger.Info("proposal executed",
		"dao", params.DAO,
		"proposal", params.ProposalID,
		"amount_moved", moved,
	)
	return executed, nil
}

// moveFunds debits the DAO treasury and credits the recipient inside the
// caller's transaction.
func (s *Service) moveFunds(tx ledger.Txn, dao string, transfer domain.TransferRequest) error {
	if !domain.ValidKeySeed(transfer.Recipient) {
		return fmt.Errorf("transfer recipient %q: %w", transfer.Recipient, domain.ErrNotFound)
	}

	treasury, err := tx.GetTreasury(dao, domain.TreasuryHolder)
	if err != nil {
		return err
	}
	if treasury.Balance < transfer.Amount {
		return &domain.GovernanceError{
			Err:     domain.ErrInsufficientTreasury,
			Code:    domain.ErrorCode(domain.ErrInsufficientTreasury),
			Message: fmt.Sprintf("treasury balance %d cannot cover transfer of %d", treasury.Balance, transfer.Amount),
			Details: map[string]any{
				"dao":       dao,
				"balance":   treasury.Balance,
				"requested": transfer.Amount,
			},
		}
	}

	recipient, err := tx.GetTreasury(dao, transfer.Recipient)
	if errors.Is(err, domain.ErrNotFound) {
		recipient = &domain.TreasuryAccount{DAO: dao, Holder: transfer.Recipient}
	} else if err != nil {
		return err
	}

	treasury.Balance -= transfer.Amount
	recipient.Balance += transfer.Amount

	if err := tx.PutTreasury(treasury); err != nil {
		return err
	}
	return tx.PutTreasury(recipient)
}

// ProposalProgress computes the current quorum progress of a proposal for
// read-only consumers; it never writes.
func (s *Service) ProposalProgress(ctx context.Context, dao string, proposalID uint64) (*QuorumProgress, error) {
	var progress QuorumProgress
	err := s.ledger.View(ctx, func(tx ledger.ReadTxn) error {
		d, err := tx.GetDAO(dao)
		if err != nil {
			return err
		}
		p, err := tx.GetProposal(dao, proposalID)
		if err != nil {
			return err
		}
		votesCast, err := tx.CountVotesByClass(dao, proposalID)
		if err != nil {
			return err
		}
		progress = EvaluateQuorum(d, p, votesCast)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &progress, nil
}
