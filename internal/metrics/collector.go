// Package metrics turns bus events into Prometheus series and a small
// in-memory session summary.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/normanking/jarvis/internal/bus"
)

const namespace = "jarvis"

// Collector subscribes to the event bus and aggregates metrics.
type Collector struct {
	bus      *bus.Bus
	registry *prometheus.Registry

	resolved       *prometheus.CounterVec
	confidence     *prometheus.HistogramVec
	gatewayReqs    *prometheus.CounterVec
	attemptFails   *prometheus.CounterVec
	exhausted      *prometheus.CounterVec
	quotaRejected  prometheus.Counter
	queueDepth     prometheus.Gauge
	replayed       prometheus.Counter
	breakerState   *prometheus.GaugeVec
	messages       *prometheus.CounterVec
	messageLatency *prometheus.HistogramVec
	credential     *prometheus.CounterVec

	mu           sync.RWMutex
	session      SessionStats
	recentEvents []bus.Event
	maxEvents    int
	subID        bus.SubscriptionID
	started      bool
}

// SessionStats holds current session counters for the CLI.
type SessionStats struct {
	StartTime     time.Time
	Resolutions   int
	BySource      map[string]int
	Completions   int
	Failures      int
	Queued        int
	QueueDepth    int
	Replayed      int
	QuotaRejected int
	Messages      int
	LastEvent     string
	LastEventTime time.Time
}

// NewCollector registers the jarvis series on reg. A nil registry gets a
// fresh one, available through Registry.
func NewCollector(b *bus.Bus, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Collector{
		bus:      b,
		registry: reg,
		resolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_resolved_total",
			Help:      "Utterances resolved, by winning tier and action.",
		}, []string{"source", "action"}),
		confidence: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intent_confidence",
			Help:      "Confidence of resolved intents.",
			Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
		}, []string{"source"}),
		gatewayReqs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Successful remote requests.",
		}, []string{"kind"}),
		attemptFails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_attempt_failures_total",
			Help:      "Failed remote attempts.",
		}, []string{"kind"}),
		exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_exhausted_total",
			Help:      "Requests that used every retry attempt.",
		}, []string{"kind"}),
		quotaRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejected_total",
			Help:      "Requests refused by the rate limiter.",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_queue_depth",
			Help:      "Entries waiting in the offline queue.",
		}),
		replayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_replayed_total",
			Help:      "Queued completions replayed successfully.",
		}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "1 for the circuit breaker's current state.",
		}, []string{"state"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Router messages handled, by type and result code.",
		}, []string{"type", "code"}),
		messageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_duration_seconds",
			Help:      "Router handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		credential: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_changes_total",
			Help:      "Credential writes and clears.",
		}, []string{"change"}),
		session:   SessionStats{StartTime: time.Now(), BySource: make(map[string]int)},
		maxEvents: 50,
	}
}

// Registry returns the registry the collector's series live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Start begins listening to the bus.
func (c *Collector) Start() {
	if c.bus == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.subID = c.bus.Subscribe("", c.handleEvent)
}

// Stop stops listening.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	_ = c.bus.Unsubscribe(c.subID)
}

// SessionStats returns a copy of the session counters.
func (c *Collector) SessionStats() SessionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.session
	stats.BySource = make(map[string]int, len(c.session.BySource))
	for k, v := range c.session.BySource {
		stats.BySource[k] = v
	}
	return stats
}

// RecentEvents returns up to n recent events, oldest first.
func (c *Collector) RecentEvents(n int) []bus.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.recentEvents) || n <= 0 {
		n = len(c.recentEvents)
	}
	events := make([]bus.Event, n)
	copy(events, c.recentEvents[len(c.recentEvents)-n:])
	return events
}

// Observe applies a single event. Start calls it for every bus event; tests
// may call it directly.
func (c *Collector) Observe(e bus.Event) {
	c.handleEvent(e)
}

func (c *Collector) handleEvent(e bus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentEvents = append(c.recentEvents, e)
	if len(c.recentEvents) > c.maxEvents {
		c.recentEvents = c.recentEvents[1:]
	}
	c.session.LastEvent = string(e.Type)
	c.session.LastEventTime = e.Timestamp

	switch e.Type {
	case bus.EventIntentResolved:
		c.resolved.WithLabelValues(e.Source, e.Action).Inc()
		c.confidence.WithLabelValues(e.Source).Observe(e.Confidence)
		c.session.Resolutions++
		c.session.BySource[e.Source]++

	case bus.EventGatewayRequest:
		c.gatewayReqs.WithLabelValues(e.Kind).Inc()
		c.session.Completions++

	case bus.EventGatewayAttemptFailed:
		c.attemptFails.WithLabelValues(e.Kind).Inc()

	case bus.EventGatewayExhausted:
		c.exhausted.WithLabelValues(e.Kind).Inc()
		c.session.Failures++

	case bus.EventQuotaRejected:
		c.quotaRejected.Inc()
		c.session.QuotaRejected++

	case bus.EventRequestQueued:
		c.queueDepth.Set(float64(e.QueueDepth))
		c.session.Queued++
		c.session.QueueDepth = e.QueueDepth

	case bus.EventQueueReplayed:
		c.replayed.Inc()
		c.queueDepth.Set(float64(e.QueueDepth))
		c.session.Replayed++
		c.session.QueueDepth = e.QueueDepth

	case bus.EventBreakerStateChanged:
		c.breakerState.Reset()
		c.breakerState.WithLabelValues(e.State).Set(1)

	case bus.EventCredentialChanged:
		c.credential.WithLabelValues(e.State).Inc()

	case bus.EventMessageHandled:
		code := e.Code
		if code == "" {
			code = "OK"
		}
		c.messages.WithLabelValues(e.MessageType, code).Inc()
		c.messageLatency.WithLabelValues(e.MessageType).Observe(float64(e.DurationMs) / 1000)
		c.session.Messages++
	}
}
