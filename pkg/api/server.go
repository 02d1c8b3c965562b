// Package api exposes the governance instruction surface and the
// read-only query surface consumed by dashboards and indexers over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/microaidao/governance/internal/ratelimit"
	"github.com/microaidao/governance/pkg/domain"
	"github.com/microaidao/governance/pkg/governance"
	"github.com/microaidao/governance/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Server routes governance API requests.
type Server struct {
	svc      *governance.Service
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	limiter  *ratelimit.Limiter
	defaults DAODefaults
	mux      *http.ServeMux
}

// DAODefaults seed initialize requests that omit compliance metadata or
// an initial treasury balance. Deployments configure these once instead
// of repeating them in every request.
type DAODefaults struct {
	InitialTreasury uint64
	Compliance      domain.ComplianceInfo
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithDAODefaults sets deployment-level defaults for DAO initialization.
func WithDAODefaults(defaults DAODefaults) ServerOption {
	return func(s *Server) { s.defaults = defaults }
}

// NewServer builds the API server. Metrics and limiter may be nil.
func NewServer(svc *governance.Service, logger *slog.Logger, metrics *telemetry.Metrics, limiter *ratelimit.Limiter, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:     svc,
		logger:  logger,
		metrics: metrics,
		limiter: limiter,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Instruction surface. Every write endpoint is rate limited.
	s.handle("POST /v1/daos", "initialize", s.handleInitializeDAO)
	s.handle("POST /v1/daos/{dao}/registry", "initialize_registry", s.handleInitializeRegistry)
	s.handle("POST /v1/daos/{dao}/members", "add_member", s.handleAddMember)
	s.handle("PATCH /v1/daos/{dao}/members/{identity}", "update_member", s.handleUpdateMember)
	s.handle("POST /v1/daos/{dao}/proposals", "create_proposal", s.handleCreateProposal)
	s.handle("POST /v1/daos/{dao}/proposals/{id}/votes", "cast_vote", s.handleCastVote)
	s.handle("POST /v1/daos/{dao}/proposals/{id}/execute", "execute_proposal", s.handleExecuteProposal)

	// Read-only query surface; never writes.
	s.handle("GET /v1/daos", "list_daos", s.handleListDAOs)
	s.handle("GET /v1/daos/{dao}", "get_dao", s.handleGetDAO)
	s.handle("GET /v1/daos/{dao}/members", "list_members", s.handleListMembers)
	s.handle("GET /v1/daos/{dao}/proposals", "list_proposals", s.handleListProposals)
	s.handle("GET /v1/daos/{dao}/proposals/{id}", "get_proposal", s.handleGetProposal)
	s.handle("GET /v1/daos/{dao}/proposals/{id}/votes", "list_votes", s.handleListVotes)
	s.handle("GET /v1/daos/{dao}/treasury/{holder}", "get_treasury", s.handleGetTreasury)

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handle(pattern, endpoint string, h http.HandlerFunc) {
	var handler http.Handler = h
	handler = s.withRequestID(handler)
	handler = s.withRateLimit(endpoint, handler)
	if s.metrics != nil {
		handler = s.metrics.Middleware(endpoint, handler)
	}
	s.mux.Handle(pattern, handler)
}

// Handler returns the root HTTP handler; callers may wrap it with
// tracing middleware.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRateLimit(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(endpoint) {
			s.writeError(w, r, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var errRateLimited = errors.New("rate limit exceeded")

// writeJSON serializes a success payload.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Error("encode response", "error", err)
		}
	}
}

// writeError maps a governance error onto the standard JSON error model.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := domain.ErrorResponse{
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
	}
	if errors.Is(err, errRateLimited) {
		resp.Code = "RATE_LIMITED"
	}
	if span := trace.SpanFromContext(r.Context()); span.SpanContext().HasTraceID() {
		resp.TraceID = span.SpanContext().TraceID().String()
	}

	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// httpStatus classifies taxonomy errors: validation errors map to 400,
// uniqueness and lifecycle preconditions to 409, authority to 403,
// missing records to 404.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidQuorumThreshold),
		errors.Is(err, domain.ErrNameTooLong),
		errors.Is(err, domain.ErrDescriptionTooLong),
		errors.Is(err, domain.ErrTitleTooLong),
		errors.Is(err, domain.ErrExecutionDataTooLarge),
		errors.Is(err, domain.ErrInvalidVotingPeriod),
		errors.Is(err, domain.ErrReasoningTooLong),
		errors.Is(err, domain.ErrVoterClassMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDAOAlreadyExists),
		errors.Is(err, domain.ErrDuplicateMember),
		errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrVotingPeriodEnded),
		errors.Is(err, domain.ErrProposalNotActive),
		errors.Is(err, domain.ErrProposalNotExecutable),
		errors.Is(err, domain.ErrProposalAlreadyExecuted),
		errors.Is(err, domain.ErrMemberNotActive),
		errors.Is(err, domain.ErrInsufficientTreasury),
		errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
