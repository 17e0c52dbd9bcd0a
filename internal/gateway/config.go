package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/jarvis/internal/bus"
)

// Config holds the gateway's request, retry and queue parameters.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int

	ClassifyTemperature float64
	ClassifyMaxTokens   int

	Retry   RetryConfig
	Breaker BreakerConfig

	// QueueMax bounds the offline queue; the oldest entries are evicted.
	QueueMax int
	// AutoDrain replays queued completions after a successful completion.
	AutoDrain bool
	// DrainReserve is how many quota units a drain leaves free in the
	// current window for live requests.
	DrainReserve int

	// ContextExchanges is how many user/assistant exchanges enrich prompts.
	ContextExchanges int
}

// RetryConfig is the attempt budget and the exponential backoff between
// attempts.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// BreakerConfig configures the circuit breaker around provider calls.
type BreakerConfig struct {
	Enabled             bool
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// DefaultConfig returns the stock gateway configuration.
func DefaultConfig() Config {
	return Config{
		Model:               "gpt-4o-mini",
		Temperature:         0.6,
		MaxTokens:           1000,
		ClassifyTemperature: 0.1,
		ClassifyMaxTokens:   50,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			Multiplier:  2,
		},
		Breaker: BreakerConfig{
			Enabled:             true,
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
		},
		QueueMax:         DefaultQueueMax,
		AutoDrain:        true,
		DrainReserve:     DefaultDrainReserve,
		ContextExchanges: DefaultContextExchanges,
	}
}

// Validate rejects configurations the gateway cannot run with.
func (c Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("gateway: retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("gateway: retry.base_delay must not be negative")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("gateway: retry.multiplier must be at least 1")
	}
	if c.QueueMax < 1 {
		return fmt.Errorf("gateway: queue.max_entries must be at least 1")
	}
	if c.DrainReserve < 0 {
		return fmt.Errorf("gateway: queue.drain_reserve must not be negative")
	}
	if c.ContextExchanges < 0 {
		return fmt.Errorf("gateway: context.max_exchanges must not be negative")
	}
	if c.MaxTokens < 1 || c.ClassifyMaxTokens < 1 {
		return fmt.Errorf("gateway: max_tokens must be positive")
	}
	return nil
}

// Delay returns the wait after the n-th failed attempt (n >= 1):
// BaseDelay * Multiplier^(n-1).
func (r RetryConfig) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(float64(r.BaseDelay) * math.Pow(r.Multiplier, float64(n-1)))
}

// Delays returns every wait a fully failing call sleeps through, in order.
func (r RetryConfig) Delays() []time.Duration {
	if r.MaxAttempts < 2 {
		return nil
	}
	out := make([]time.Duration, r.MaxAttempts-1)
	for i := range out {
		out[i] = r.Delay(i + 1)
	}
	return out
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(g *Gateway) { g.cfg = cfg }
}

// WithLogger sets the gateway logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithBus publishes gateway events on p.
func WithBus(p bus.Publisher) Option {
	return func(g *Gateway) { g.events = p }
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(g *Gateway) { g.sleep = s }
}

// WithClock injects a time source for queue timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}
