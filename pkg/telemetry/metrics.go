package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the governance service.
type Metrics struct {
	// Instruction metrics
	instructionsTotal   *prometheus.CounterVec
	instructionDuration *prometheus.HistogramVec

	// Governance metrics
	votesTotal          *prometheus.CounterVec
	proposalTransitions *prometheus.CounterVec
	treasuryMoved       *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance with its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		instructionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_instructions_total",
				Help: "Total number of governance instructions by outcome",
			},
			[]string{"instruction", "status"},
		),

		instructionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governance_instruction_duration_seconds",
				Help:    "Instruction processing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"instruction"},
		),

		votesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_votes_total",
				Help: "Total number of votes recorded by class and choice",
			},
			[]string{"dao", "class", "choice"},
		),

		proposalTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_proposal_transitions_total",
				Help: "Proposal lifecycle transitions by destination status",
			},
			[]string{"dao", "status"},
		),

		treasuryMoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_treasury_moved_units_total",
				Help: "Units moved out of DAO treasuries by proposal execution",
			},
			[]string{"dao"},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governance_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.instructionsTotal,
		m.instructionDuration,
		m.votesTotal,
		m.proposalTransitions,
		m.treasuryMoved,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

// RecordInstruction records an instruction outcome and latency.
func (m *Metrics) RecordInstruction(instruction, status string, duration time.Duration) {
	m.instructionsTotal.WithLabelValues(instruction, status).Inc()
	m.instructionDuration.WithLabelValues(instruction).Observe(duration.Seconds())
}

// RecordVote records one accepted vote.
func (m *Metrics) RecordVote(dao, class, choice string) {
	m.votesTotal.WithLabelValues(dao, class, choice).Inc()
}

// RecordProposalTransition records a proposal entering a lifecycle status.
func (m *Metrics) RecordProposalTransition(dao, status string) {
	m.proposalTransitions.WithLabelValues(dao, status).Inc()
}

// RecordTreasuryMove records units moved by an executed proposal.
func (m *Metrics) RecordTreasuryMove(dao string, amount uint64) {
	m.treasuryMoved.WithLabelValues(dao).Add(float64(amount))
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware creates HTTP middleware that records request metrics.
func (m *Metrics) Middleware(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		m.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(wrapped.statusCode), time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
