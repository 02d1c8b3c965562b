package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microaidao/governance/internal/ratelimit"
	"github.com/microaidao/governance/pkg/domain"
	"github.com/microaidao/governance/pkg/governance"
	"github.com/microaidao/governance/pkg/ledger"
	"github.com/microaidao/governance/pkg/telemetry"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := governance.NewService(ledger.NewMemoryLedger(), logger)
	srv := NewServer(svc, logger, telemetry.NewMetrics(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, payload
}

// seedViaAPI drives the full instruction surface over HTTP: DAO,
// registry, and a human plus an AI member.
func seedViaAPI(t *testing.T, base string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, base+"/v1/daos", InitializeDAORequest{
		Name: "dao", Authority: "alice", HumanQuorumThreshold: 50, AIQuorumThreshold: 50, InitialTreasury: 1000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, base+"/v1/daos/dao/registry", map[string]string{"authority": "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, m := range []AddMemberRequest{
		{Authority: "alice", Identity: "bob", Class: "human", VotingPower: 3},
		{Authority: "alice", Identity: "ava", Class: "ai", VotingPower: 5},
	} {
		resp, _ = doJSON(t, http.MethodPost, base+"/v1/daos/dao/members", m)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
}

func TestGovernanceFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	seedViaAPI(t, ts.URL)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/daos/dao/proposals", CreateProposalRequest{
		Proposer: "bob", Title: "fund lab", Type: "treasury",
		ExecutionData: mustJSON(t, domain.TransferRequest{Recipient: "lab", Amount: 400}),
		VotingPeriod:  3600,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var proposal domain.Proposal
	require.NoError(t, json.Unmarshal(body, &proposal))
	assert.Equal(t, uint64(0), proposal.ID)

	votesURL := fmt.Sprintf("%s/v1/daos/dao/proposals/%d/votes", ts.URL, proposal.ID)
	resp, _ = doJSON(t, http.MethodPost, votesURL, CastVoteRequest{Voter: "bob", Class: "human", Choice: "for"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, votesURL, CastVoteRequest{Voter: "ava", Class: "ai", Choice: "for", Reasoning: "sound plan"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result governance.CastVoteResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, domain.StatusSucceeded, result.Proposal.Status)
	assert.True(t, result.Progress.Approved)

	// Proposal detail includes the quorum progress.
	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/daos/dao/proposals/%d", ts.URL, proposal.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail struct {
		Status   domain.ProposalStatus      `json:"status"`
		Progress *governance.QuorumProgress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, domain.StatusSucceeded, detail.Status)
	require.NotNil(t, detail.Progress)
	assert.True(t, detail.Progress.Approved)

	execURL := fmt.Sprintf("%s/v1/daos/dao/proposals/%d/execute", ts.URL, proposal.ID)
	resp, _ = doJSON(t, http.MethodPost, execURL, map[string]string{"executor": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/daos/dao/treasury/lab", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var account domain.TreasuryAccount
	require.NoError(t, json.Unmarshal(body, &account))
	assert.Equal(t, uint64(400), account.Balance)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return out
}

func TestErrorModelOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	seedViaAPI(t, ts.URL)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/daos/dao/proposals", CreateProposalRequest{
		Proposer: "bob", Title: "p", Type: "text", VotingPeriod: 3600,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	votesURL := ts.URL + "/v1/daos/dao/proposals/0/votes"
	resp, _ = doJSON(t, http.MethodPost, votesURL, CastVoteRequest{Voter: "bob", Class: "human", Choice: "for"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tests := []struct {
		name       string
		method     string
		url        string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:   "duplicate vote conflicts",
			method: http.MethodPost, url: votesURL,
			body:       CastVoteRequest{Voter: "bob", Class: "human", Choice: "against"},
			wantStatus: http.StatusConflict, wantCode: "ALREADY_VOTED",
		},
		{
			name:   "unknown member",
			method: http.MethodPost, url: votesURL,
			body:       CastVoteRequest{Voter: "ghost", Class: "human", Choice: "for"},
			wantStatus: http.StatusNotFound, wantCode: "MEMBER_NOT_FOUND",
		},
		{
			name:   "class mismatch",
			method: http.MethodPost, url: votesURL,
			body:       CastVoteRequest{Voter: "ava", Class: "human", Choice: "for"},
			wantStatus: http.StatusBadRequest, wantCode: "VOTER_CLASS_MISMATCH",
		},
		{
			name:   "executing an active proposal",
			method: http.MethodPost, url: ts.URL + "/v1/daos/dao/proposals/0/execute",
			body:       map[string]string{"executor": "alice"},
			wantStatus: http.StatusConflict, wantCode: "PROPOSAL_NOT_EXECUTABLE",
		},
		{
			name:   "executor is not the authority",
			method: http.MethodPost, url: ts.URL + "/v1/daos/dao/proposals/0/execute",
			body:       map[string]string{"executor": "bob"},
			wantStatus: http.StatusForbidden, wantCode: "NOT_AUTHORIZED",
		},
		{
			name:   "duplicate dao",
			method: http.MethodPost, url: ts.URL + "/v1/daos",
			body:       InitializeDAORequest{Name: "dao", Authority: "eve", HumanQuorumThreshold: 50, AIQuorumThreshold: 50},
			wantStatus: http.StatusConflict, wantCode: "DAO_ALREADY_EXISTS",
		},
		{
			name:   "invalid threshold",
			method: http.MethodPost, url: ts.URL + "/v1/daos",
			body:       InitializeDAORequest{Name: "dao2", Authority: "eve", HumanQuorumThreshold: 0, AIQuorumThreshold: 50},
			wantStatus: http.StatusBadRequest, wantCode: "INVALID_QUORUM_THRESHOLD",
		},
		{
			name:   "missing dao",
			method: http.MethodGet, url: ts.URL + "/v1/daos/nope",
			wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, tt.method, tt.url, tt.body)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			var errResp domain.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, tt.wantCode, errResp.Code)
			assert.NotEmpty(t, errResp.Message)
		})
	}
}

func TestInitializeDAOAppliesConfiguredDefaults(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := governance.NewService(ledger.NewMemoryLedger(), logger)
	srv := NewServer(svc, logger, nil, nil, WithDAODefaults(DAODefaults{
		InitialTreasury: 500,
		Compliance:      domain.ComplianceInfo{Jurisdiction: "Wyoming", EntityType: "DAO LLC"},
	}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	// A request that omits compliance and treasury picks up the
	// deployment defaults.
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/daos", InitializeDAORequest{
		Name: "dao", Authority: "alice", HumanQuorumThreshold: 50, AIQuorumThreshold: 50,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var dao domain.DAO
	require.NoError(t, json.Unmarshal(body, &dao))
	assert.Equal(t, "Wyoming", dao.Compliance.Jurisdiction)
	assert.Equal(t, "DAO LLC", dao.Compliance.EntityType)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/daos/dao/treasury/treasury", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var account domain.TreasuryAccount
	require.NoError(t, json.Unmarshal(body, &account))
	assert.Equal(t, uint64(500), account.Balance)

	// Explicit request values still win over the defaults.
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/daos", InitializeDAORequest{
		Name: "dao2", Authority: "alice", HumanQuorumThreshold: 50, AIQuorumThreshold: 50,
		InitialTreasury: 9000,
		Compliance:      &domain.ComplianceInfo{Jurisdiction: "Delaware", EntityType: "LLC"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &dao))
	assert.Equal(t, "Delaware", dao.Compliance.Jurisdiction)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/daos/dao2/treasury/treasury", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &account))
	assert.Equal(t, uint64(9000), account.Balance)
}

func TestMalformedRequestsRejected(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/daos", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-numeric proposal id in the path.
	resp2, body := doJSON(t, http.MethodGet, ts.URL+"/v1/daos/dao/proposals/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	var errResp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "BAD_REQUEST", errResp.Code)
}

func TestRateLimitOverHTTP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := governance.NewService(ledger.NewMemoryLedger(), logger)
	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: 1, BurstSize: 2})
	srv := NewServer(svc, logger, nil, limiter)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	var limited bool
	for i := 0; i < 5; i++ {
		resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/daos", nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			var errResp domain.ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, "RATE_LIMITED", errResp.Code)
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.True(t, limited, "burst of 2 should limit within 5 requests")
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	// Generate one counted request, then scrape.
	_, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/daos", nil)
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "governance_http_requests_total")
}

func TestRequestIDPropagation(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/daos", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/daos", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, "req-42", resp2.Header.Get("X-Request-ID"))
}

func TestClientAgainstServer(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	client := NewClient(ts.URL)

	_, err := client.InitializeDAO(ctx, InitializeDAORequest{
		Name: "dao", Authority: "alice", HumanQuorumThreshold: 50, AIQuorumThreshold: 50,
	})
	require.NoError(t, err)
	_, err = client.InitializeRegistry(ctx, "dao", "alice")
	require.NoError(t, err)
	_, err = client.AddMember(ctx, "dao", AddMemberRequest{Authority: "alice", Identity: "bob", Class: "human", VotingPower: 1})
	require.NoError(t, err)

	proposal, err := client.CreateProposal(ctx, "dao", CreateProposalRequest{
		Proposer: "bob", Title: "p", Type: "text", VotingPeriod: int64((time.Hour).Seconds()),
	})
	require.NoError(t, err)

	result, err := client.CastVote(ctx, "dao", proposal.ID, CastVoteRequest{Voter: "bob", Class: "human", Choice: "for"})
	require.NoError(t, err)
	assert.Equal(t, domain.ChoiceFor, result.Vote.Choice)

	// Taxonomy errors surface as typed APIErrors, not retries.
	_, err = client.CastVote(ctx, "dao", proposal.ID, CastVoteRequest{Voter: "bob", Class: "human", Choice: "for"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ALREADY_VOTED", apiErr.Code)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	daos, err := client.ListDAOs(ctx)
	require.NoError(t, err)
	require.Len(t, daos, 1)
	assert.Equal(t, "dao", daos[0].Name)
}
