// Package ratelimit implements per-endpoint token bucket rate limiting
// for the instruction API.
package ratelimit

import (
	"sync"
	"time"
)

// Config defines token bucket settings shared by all endpoints.
type Config struct {
	RequestsPerSecond int
	BurstSize         int
}

// Limiter hands out one token bucket per endpoint. A zero or negative
// rate disables limiting entirely.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	buckets map[string]*bucket
}

// New creates a limiter with the provided configuration.
func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

// Configure replaces the limiter settings; existing buckets adopt the new
// rate on their next refill.
func (l *Limiter) Configure(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	l.buckets = make(map[string]*bucket)
}

// Allow reports whether a request for the given endpoint may proceed.
func (l *Limiter) Allow(endpoint string) bool {
	l.mu.Lock()
	cfg := l.cfg
	if cfg.RequestsPerSecond <= 0 {
		l.mu.Unlock()
		return true
	}
	b, ok := l.buckets[endpoint]
	if !ok {
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = cfg.RequestsPerSecond
		}
		b = &bucket{
			rate:       float64(cfg.RequestsPerSecond),
			capacity:   float64(burst),
			tokens:     float64(burst),
			lastRefill: time.Now(),
		}
		l.buckets[endpoint] = b
	}
	l.mu.Unlock()

	return b.take()
}

type bucket struct {
	mu         sync.Mutex
	rate       float64
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

func (b *bucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}
