package stakeholder

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microaidao/governance/pkg/api"
	"github.com/microaidao/governance/pkg/domain"
	"github.com/microaidao/governance/pkg/governance"
	"github.com/microaidao/governance/pkg/ledger"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), "")
	require.NoError(t, err)
	return engine
}

func TestEngineDefaultPolicy(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		proposal   domain.Proposal
		amount     uint64
		wantChoice domain.VoteChoice
	}{
		{
			name:       "small budget approved",
			proposal:   domain.Proposal{Title: "grant", Description: "Budget for research tooling", Type: domain.ProposalTreasury},
			amount:     400,
			wantChoice: domain.ChoiceFor,
		},
		{
			name:       "large budget rejected",
			proposal:   domain.Proposal{Title: "grant", Description: "Budget for a new office", Type: domain.ProposalTreasury},
			amount:     50000,
			wantChoice: domain.ChoiceAgainst,
		},
		{
			name:       "ai rights supported",
			proposal:   domain.Proposal{Title: "charter", Description: "Extend AI rights to all registered agents", Type: domain.ProposalPolicy},
			wantChoice: domain.ChoiceFor,
		},
		{
			name:       "security work supported",
			proposal:   domain.Proposal{Title: "audit", Description: "Commission a security review", Type: domain.ProposalText},
			wantChoice: domain.ChoiceFor,
		},
		{
			name:       "unmatched proposal abstains",
			proposal:   domain.Proposal{Title: "renaming", Description: "Rename the weekly sync", Type: domain.ProposalText},
			wantChoice: domain.ChoiceAbstain,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := engine.Evaluate(ctx, &tt.proposal, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantChoice, decision.Choice)
			assert.NotEmpty(t, decision.Reason)
		})
	}
}

func TestEngineCustomPolicy(t *testing.T) {
	const policy = `package stakeholder.vote

import rego.v1

default decision := {"choice": "against", "reason": "deny by default"}

decision := {"choice": "for", "reason": "treasury work is welcome"} if {
	input.type == "treasury"
}
`
	engine, err := NewEngine(context.Background(), policy)
	require.NoError(t, err)

	decision, err := engine.Evaluate(context.Background(), &domain.Proposal{Type: domain.ProposalTreasury}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ChoiceFor, decision.Choice)

	decision, err = engine.Evaluate(context.Background(), &domain.Proposal{Type: domain.ProposalText}, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ChoiceAgainst, decision.Choice)
}

func TestEngineRejectsBrokenPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package stakeholder.vote\n\ndecision :=")
	assert.Error(t, err)
}

func TestEngineRejectsUnknownChoice(t *testing.T) {
	const policy = `package stakeholder.vote

import rego.v1

default decision := {"choice": "maybe", "reason": "indecisive"}
`
	engine, err := NewEngine(context.Background(), policy)
	require.NoError(t, err)
	_, err = engine.Evaluate(context.Background(), &domain.Proposal{}, 0)
	assert.Error(t, err)
}

func TestTransferAmount(t *testing.T) {
	treasury := &domain.Proposal{
		Type:          domain.ProposalTreasury,
		ExecutionData: []byte(`{"recipient":"lab","amount":750}`),
	}
	assert.Equal(t, uint64(750), transferAmount(treasury))

	assert.Zero(t, transferAmount(&domain.Proposal{Type: domain.ProposalText}))
	assert.Zero(t, transferAmount(&domain.Proposal{
		Type:          domain.ProposalTreasury,
		ExecutionData: []byte("not json"),
	}))
	assert.Zero(t, transferAmount(&domain.Proposal{Type: domain.ProposalTreasury}))
}

// startGovernance brings up a real API server over a memory ledger with
// one DAO, a human proposer, and the AI voter enrolled.
func startGovernance(t *testing.T, voter string) (*api.Client, *governance.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := governance.NewService(ledger.NewMemoryLedger(), logger)
	srv := api.NewServer(svc, logger, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	client := api.NewClient(ts.URL, api.WithHTTPClient(&http.Client{}))

	ctx := context.Background()
	_, err := client.InitializeDAO(ctx, api.InitializeDAORequest{
		Name: "dao", Authority: "alice", HumanQuorumThreshold: 50, AIQuorumThreshold: 50,
	})
	require.NoError(t, err)
	_, err = client.InitializeRegistry(ctx, "dao", "alice")
	require.NoError(t, err)
	_, err = client.AddMember(ctx, "dao", api.AddMemberRequest{Authority: "alice", Identity: "bob", Class: "human", VotingPower: 1})
	require.NoError(t, err)
	_, err = client.AddMember(ctx, "dao", api.AddMemberRequest{Authority: "alice", Identity: voter, Class: "ai", VotingPower: 1})
	require.NoError(t, err)
	return client, svc
}

func TestRunnerPollVotesOnce(t *testing.T) {
	client, _ := startGovernance(t, "hal")
	ctx := context.Background()

	_, err := client.CreateProposal(ctx, "dao", api.CreateProposalRequest{
		Proposer: "bob", Title: "audit", Description: "Commission a security review",
		Type: "text", VotingPeriod: 3600,
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := NewRunner(client, newEngine(t), logger, RunnerConfig{DAO: "dao", Voter: "hal"})

	require.NoError(t, runner.Poll(ctx))

	votes, err := client.ListVotes(ctx, "dao", 0)
	require.NoError(t, err)
	require.Len(t, votes, 1)
	assert.Equal(t, "hal", votes[0].Voter)
	assert.Equal(t, domain.ChoiceFor, votes[0].Choice)
	assert.Equal(t, domain.ClassAI, votes[0].Class)

	// A second poll sees the existing vote and stays idle.
	require.NoError(t, runner.Poll(ctx))
	votes, err = client.ListVotes(ctx, "dao", 0)
	require.NoError(t, err)
	assert.Len(t, votes, 1)
}

func TestRunnerSkipsSettledProposals(t *testing.T) {
	client, _ := startGovernance(t, "hal")
	ctx := context.Background()

	_, err := client.CreateProposal(ctx, "dao", api.CreateProposalRequest{
		Proposer: "bob", Title: "audit", Description: "Commission a security review",
		Type: "text", VotingPeriod: 3600,
	})
	require.NoError(t, err)

	// Settle the proposal before the runner sees it.
	_, err = client.CastVote(ctx, "dao", 0, api.CastVoteRequest{Voter: "bob", Class: "human", Choice: "for"})
	require.NoError(t, err)
	_, err = client.CastVote(ctx, "dao", 0, api.CastVoteRequest{Voter: "hal", Class: "ai", Choice: "for"})
	require.NoError(t, err)

	detail, err := client.GetProposal(ctx, "dao", 0)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSucceeded, detail.Status)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := NewRunner(client, newEngine(t), logger, RunnerConfig{DAO: "dao", Voter: "hal"})
	require.NoError(t, runner.Poll(ctx))

	votes, err := client.ListVotes(ctx, "dao", 0)
	require.NoError(t, err)
	assert.Len(t, votes, 2)
}
