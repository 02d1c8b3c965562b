// Package resilience provides retry with exponential backoff and a
// circuit breaker for callers of the governance API.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

var (
	// ErrMaxRetriesExceeded is returned when all retry attempts are spent.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryPolicy replays a function on retryable errors with exponential
// backoff between attempts.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, filling zero fields with defaults.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 5 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	return &RetryPolicy{config: config}
}

// Backoff returns the delay before retry attempt n.
func (rp *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := time.Duration(float64(rp.config.InitialBackoff) * math.Pow(rp.config.BackoffMultiplier, float64(attempt)))
	if backoff > rp.config.MaxBackoff {
		backoff = rp.config.MaxBackoff
	}
	if rp.config.Jitter && backoff > 0 {
		// #nosec G404 - non-cryptographic random is fine for jitter
		backoff += time.Duration(rand.Int63n(int64(backoff / 4)))
	}
	return backoff
}

// Execute runs fn until it succeeds, reports a non-retryable error, or
// the retry budget runs out. The retryable callback decides which errors
// are worth another attempt.
func (rp *RetryPolicy) Execute(ctx context.Context, retryable func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rp.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		if attempt < rp.config.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rp.Backoff(attempt)):
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// BreakerState represents the state of a circuit breaker.
type BreakerState string

const (
	// StateClosed allows calls through.
	StateClosed BreakerState = "closed"
	// StateOpen rejects calls until the timeout elapses.
	StateOpen BreakerState = "open"
	// StateHalfOpen admits a bounded number of probe calls.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig defines thresholds for circuit breaking.
type BreakerConfig struct {
	// MaxFailures is the consecutive failure count that opens the circuit.
	MaxFailures int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// MaxHalfOpenRequests bounds probe calls in half-open state.
	MaxHalfOpenRequests int
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 3,
	}
}

// Breaker implements a consecutive-failure circuit breaker.
type Breaker struct {
	mu     sync.Mutex
	state  BreakerState
	config BreakerConfig

	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenRequests     int
	openUntil            time.Time
}

// NewBreaker creates a breaker, filling zero fields with defaults.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxHalfOpenRequests <= 0 {
		config.MaxHalfOpenRequests = 3
	}
	return &Breaker{state: StateClosed, config: config}
}

// Execute wraps fn with circuit breaker protection.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := b.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterCall(err)
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Now().After(b.openUntil) {
			b.transition(StateHalfOpen)
			b.halfOpenRequests++
			return nil
		}
		return ErrCircuitOpen
	default: // half-open
		if b.halfOpenRequests < b.config.MaxHalfOpenRequests {
			b.halfOpenRequests++
			return nil
		}
		return ErrCircuitOpen
	}
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutiveSuccesses++
		b.consecutiveFailures = 0
		if b.state == StateHalfOpen && b.consecutiveSuccesses >= b.config.MaxHalfOpenRequests {
			b.transition(StateClosed)
		}
		return
	}

	b.consecutiveFailures++
	b.consecutiveSuccesses = 0
	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		if b.consecutiveFailures >= b.config.MaxFailures {
			b.transition(StateOpen)
		}
	}
}

func (b *Breaker) transition(state BreakerState) {
	if b.state == state {
		return
	}
	b.state = state
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.halfOpenRequests = 0
	if state == StateOpen {
		b.openUntil = time.Now().Add(b.config.Timeout)
	} else {
		b.openUntil = time.Time{}
	}
}
