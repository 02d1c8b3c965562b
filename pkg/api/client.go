package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/microaidao/governance/internal/resilience"
	"github.com/microaidao/governance/pkg/domain"
	"github.com/microaidao/governance/pkg/governance"
)

// APIError is the client-side form of the server's JSON error model.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	TraceID    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Client talks to the governance HTTP API. Read requests are retried
// with exponential backoff; all requests go through a circuit breaker so
// a down server is not hammered.
type Client struct {
	baseURL string
	httpc   *http.Client
	retry   *resilience.RetryPolicy
	breaker *resilience.Breaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) { c.httpc = httpc }
}

// WithRetryConfig overrides the read-request retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = resilience.NewRetryPolicy(cfg) }
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		retry:   resilience.NewRetryPolicy(resilience.DefaultRetryConfig()),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryable reports whether an error is worth another attempt: network
// failures and server-side congestion, never the governance taxonomy.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return !errors.Is(err, resilience.ErrCircuitOpen) && !errors.Is(err, context.Canceled)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			reader = bytes.NewReader(buf)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusBadRequest {
			var errResp domain.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
				errResp.Code = "UNKNOWN"
				errResp.Message = resp.Status
			}
			return &APIError{
				StatusCode: resp.StatusCode,
				Code:       errResp.Code,
				Message:    errResp.Message,
				TraceID:    errResp.TraceID,
			}
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

// get issues a retried GET; reads are idempotent so retrying is safe.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.retry.Execute(ctx, retryable, func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}

// InitializeDAO creates a new DAO.
func (c *Client) InitializeDAO(ctx context.Context, req InitializeDAORequest) (*domain.DAO, error) {
	var dao domain.DAO
	if err := c.do(ctx, http.MethodPost, "/v1/daos", req, &dao); err != nil {
		return nil, err
	}
	return &dao, nil
}

// InitializeRegistry creates the member registry of a DAO.
func (c *Client) InitializeRegistry(ctx context.Context, dao, authority string) (*domain.Registry, error) {
	var registry domain.Registry
	body := initializeRegistryRequest{Authority: authority}
	if err := c.do(ctx, http.MethodPost, "/v1/daos/"+dao+"/registry", body, &registry); err != nil {
		return nil, err
	}
	return &registry, nil
}

// AddMember enrolls a member.
func (c *Client) AddMember(ctx context.Context, dao string, req AddMemberRequest) (*domain.Member, error) {
	var member domain.Member
	if err := c.do(ctx, http.MethodPost, "/v1/daos/"+dao+"/members", req, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMember mutates a member's voting power or active flag.
func (c *Client) UpdateMember(ctx context.Context, dao, identity string, req UpdateMemberRequest) (*domain.Member, error) {
	var member domain.Member
	if err := c.do(ctx, http.MethodPatch, "/v1/daos/"+dao+"/members/"+identity, req, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// CreateProposal submits a proposal.
func (c *Client) CreateProposal(ctx context.Context, dao string, req CreateProposalRequest) (*domain.Proposal, error) {
	var proposal domain.Proposal
	if err := c.do(ctx, http.MethodPost, "/v1/daos/"+dao+"/proposals", req, &proposal); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// CastVote records a vote on a proposal.
func (c *Client) CastVote(ctx context.Context, dao string, proposalID uint64, req CastVoteRequest) (*governance.CastVoteResult, error) {
	var result governance.CastVoteResult
	path := fmt.Sprintf("/v1/daos/%s/proposals/%d/votes", dao, proposalID)
	if err := c.do(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecuteProposal triggers execution of a Succeeded proposal.
func (c *Client) ExecuteProposal(ctx context.Context, dao string, proposalID uint64, executor string) (*domain.Proposal, error) {
	var proposal domain.Proposal
	path := fmt.Sprintf("/v1/daos/%s/proposals/%d/execute", dao, proposalID)
	if err := c.do(ctx, http.MethodPost, path, executeProposalRequest{Executor: executor}, &proposal); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// ListDAOs returns all DAOs.
func (c *Client) ListDAOs(ctx context.Context) ([]*domain.DAO, error) {
	var daos []*domain.DAO
	if err := c.get(ctx, "/v1/daos", &daos); err != nil {
		return nil, err
	}
	return daos, nil
}

// GetDAO returns one DAO by name.
func (c *Client) GetDAO(ctx context.Context, dao string) (*domain.DAO, error) {
	var d domain.DAO
	if err := c.get(ctx, "/v1/daos/"+dao, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListMembers returns the members of a DAO.
func (c *Client) ListMembers(ctx context.Context, dao string) ([]*domain.Member, error) {
	var members []*domain.Member
	if err := c.get(ctx, "/v1/daos/"+dao+"/members", &members); err != nil {
		return nil, err
	}
	return members, nil
}

// ListProposals returns the proposals of a DAO.
func (c *Client) ListProposals(ctx context.Context, dao string) ([]*domain.Proposal, error) {
	var proposals []*domain.Proposal
	if err := c.get(ctx, "/v1/daos/"+dao+"/proposals", &proposals); err != nil {
		return nil, err
	}
	return proposals, nil
}

// ProposalDetail is a proposal decorated with its quorum progress.
type ProposalDetail struct {
	domain.Proposal
	Progress *governance.QuorumProgress `json:"progress,omitempty"`
}

// GetProposal returns one proposal with its quorum progress.
func (c *Client) GetProposal(ctx context.Context, dao string, proposalID uint64) (*ProposalDetail, error) {
	var detail ProposalDetail
	path := fmt.Sprintf("/v1/daos/%s/proposals/%d", dao, proposalID)
	if err := c.get(ctx, path, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListVotes returns the vote records of a proposal.
func (c *Client) ListVotes(ctx context.Context, dao string, proposalID uint64) ([]*domain.VoteRecord, error) {
	var votes []*domain.VoteRecord
	path := fmt.Sprintf("/v1/daos/%s/proposals/%d/votes", dao, proposalID)
	if err := c.get(ctx, path, &votes); err != nil {
		return nil, err
	}
	return votes, nil
}

// GetTreasury returns a treasury account of a DAO.
func (c *Client) GetTreasury(ctx context.Context, dao, holder string) (*domain.TreasuryAccount, error) {
	var account domain.TreasuryAccount
	if err := c.get(ctx, "/v1/daos/"+dao+"/treasury/"+holder, &account); err != nil {
		return nil, err
	}
	return &account, nil
}
