// Package quota implements the fixed-window rate limiter that guards
// outbound AI calls.
package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/normanking/jarvis/internal/apperr"
)

// Default window parameters.
const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute
)

// Limits defines how many units may be consumed per window.
type Limits struct {
	Limit  int           `yaml:"limit" json:"limit"`
	Window time.Duration `yaml:"window" json:"window"`
}

// DefaultLimits returns 60 units per minute.
func DefaultLimits() Limits {
	return Limits{Limit: DefaultLimit, Window: DefaultWindow}
}

// Status is a snapshot of the current window.
type Status struct {
	Used      int   `json:"used"`
	Limit     int   `json:"limit"`
	ResetInMs int64 `json:"resetInMs"`
}

// Metrics tracks usage statistics for monitoring.
type Metrics struct {
	TotalConsumed int64     `json:"total_consumed"`
	RejectedCount int64     `json:"rejected_count"`
	WindowResets  int64     `json:"window_resets"`
	LastConsumeAt time.Time `json:"last_consume_at"`
}

// Limiter counts consumption inside a fixed window. The window resets lazily
// on the first access after it has elapsed; no timer runs in the background.
type Limiter struct {
	mu          sync.Mutex
	limits      Limits
	windowStart time.Time
	used        int
	metrics     Metrics
	now         func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter whose first window starts now.
func New(limits Limits, opts ...Option) *Limiter {
	if limits.Limit <= 0 {
		limits.Limit = DefaultLimit
	}
	if limits.Window <= 0 {
		limits.Window = DefaultWindow
	}

	l := &Limiter{
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.windowStart = l.now()
	return l
}

// rollLocked starts a new window when the current one has elapsed.
// Caller must hold l.mu.
func (l *Limiter) rollLocked(now time.Time) {
	if now.Sub(l.windowStart) > l.limits.Window {
		l.windowStart = now
		l.used = 0
		l.metrics.WindowResets++
	}
}

// CanConsume reports whether n units fit in the current window. It does
// not change the consumed count.
func (l *Limiter) CanConsume(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollLocked(l.now())
	return l.used+n <= l.limits.Limit
}

// Consume charges n units or returns apperr.ErrQuotaExceeded without
// charging anything.
func (l *Limiter) Consume(n int) error {
	if n < 0 {
		return fmt.Errorf("quota: negative consumption %d", n)
	}
	if !l.TryConsume(n) {
		return fmt.Errorf("consume %d of %d: %w", n, l.limits.Limit, apperr.ErrQuotaExceeded)
	}
	return nil
}

// TryConsume checks and charges n units as one step. It returns false,
// charging nothing, when the window cannot absorb n or n is negative.
func (l *Limiter) TryConsume(n int) bool {
	if n < 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.rollLocked(now)
	if l.used+n > l.limits.Limit {
		l.metrics.RejectedCount++
		return false
	}

	l.used += n
	l.metrics.TotalConsumed += int64(n)
	l.metrics.LastConsumeAt = now
	return true
}

// Status returns used units, the limit and milliseconds until the window
// resets (never negative).
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.rollLocked(now)

	reset := l.limits.Window - now.Sub(l.windowStart)
	if reset < 0 {
		reset = 0
	}
	return Status{
		Used:      l.used,
		Limit:     l.limits.Limit,
		ResetInMs: reset.Milliseconds(),
	}
}

// Metrics returns a copy of the usage statistics.
func (l *Limiter) Metrics() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics
}

// Limits returns the configured limits.
func (l *Limiter) Limits() Limits {
	return l.limits
}
