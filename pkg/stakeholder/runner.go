package stakeholder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/microaidao/governance/pkg/api"
	"github.com/microaidao/governance/pkg/domain"
)

// RunnerConfig configures the stakeholder poll loop.
type RunnerConfig struct {
	DAO          string
	Voter        string
	PollInterval time.Duration
}

// Runner drives the evaluate-and-vote loop against one DAO.
type Runner struct {
	client *api.Client
	engine *Engine
	logger *slog.Logger
	cfg    RunnerConfig
}

// NewRunner builds a runner over a governance API client and a policy
// engine.
func NewRunner(client *api.Client, engine *Engine, logger *slog.Logger, cfg RunnerConfig) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Runner{client: client, engine: engine, logger: logger, cfg: cfg}
}

// Run polls until the context is cancelled. Errors from individual polls
// are logged, not fatal: the loop keeps going so a transient API outage
// does not kill the voter.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("stakeholder started",
		"dao", r.cfg.DAO,
		"voter", r.cfg.Voter,
		"poll_interval", r.cfg.PollInterval,
	)

	for {
		if err := r.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll evaluates every active proposal the voter has not voted on yet
// and casts the policy's verdict.
func (r *Runner) Poll(ctx context.Context) error {
	proposals, err := r.client.ListProposals(ctx, r.cfg.DAO)
	if err != nil {
		return err
	}

	for _, proposal := range proposals {
		if proposal.Status != domain.StatusActive {
			continue
		}
		voted, err := r.hasVoted(ctx, proposal.ID)
		if err != nil {
			return err
		}
		if voted {
			continue
		}
		if err := r.vote(ctx, proposal); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) hasVoted(ctx context.Context, proposalID uint64) (bool, error) {
	votes, err := r.client.ListVotes(ctx, r.cfg.DAO, proposalID)
	if err != nil {
		return false, err
	}
	for _, vote := range votes {
		if vote.Voter == r.cfg.Voter {
			return true, nil
		}
	}
	return false, nil
}

func (r *Runner) vote(ctx context.Context, proposal *domain.Proposal) error {
	decision, err := r.engine.Evaluate(ctx, proposal, transferAmount(proposal))
	if err != nil {
		return err
	}

	_, err = r.client.CastVote(ctx, r.cfg.DAO, proposal.ID, api.CastVoteRequest{
		Voter:     r.cfg.Voter,
		Class:     string(domain.ClassAI),
		Choice:    string(decision.Choice),
		Reasoning: decision.Reason,
	})
	if err != nil {
		// Another replica may have voted first, or the window closed
		// between the list and the vote. Both are benign races.
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case domain.ErrorCode(domain.ErrAlreadyVoted), domain.ErrorCode(domain.ErrVotingPeriodEnded), domain.ErrorCode(domain.ErrProposalNotActive):
				r.logger.Debug("vote skipped", "proposal", proposal.ID, "code", apiErr.Code)
				return nil
			}
		}
		return err
	}

	r.logger.Info("vote cast",
		"dao", r.cfg.DAO,
		"proposal", proposal.ID,
		"choice", string(decision.Choice),
		"reason", decision.Reason,
	)
	return nil
}

// transferAmount decodes the treasury amount a proposal would move; zero
// for non-treasury proposals or malformed payloads.
func transferAmount(proposal *domain.Proposal) uint64 {
	if proposal.Type != domain.ProposalTreasury || len(proposal.ExecutionData) == 0 {
		return 0
	}
	var transfer domain.TransferRequest
	if err := json.Unmarshal(proposal.ExecutionData, &transfer); err != nil {
		return 0
	}
	return transfer.Amount
}
