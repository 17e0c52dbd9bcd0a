package gateway

import (
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/normanking/jarvis/internal/bus"
)

// newBreaker builds the circuit breaker guarding provider calls. It trips
// after ConsecutiveFailures failed calls and probes again after OpenTimeout.
// While open, calls fail immediately and count as failed attempts.
func newBreaker(cfg BreakerConfig, logger zerolog.Logger, events bus.Publisher) *gobreaker.CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-gateway",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")

			e := bus.NewEvent(bus.EventBreakerStateChanged)
			e.Component = "gateway"
			e.State = to.String()
			bus.Emit(events, e)
		},
	})
}
