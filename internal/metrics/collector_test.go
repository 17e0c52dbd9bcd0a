package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/jarvis/internal/bus"
)

func resolvedEvent(source, action string, confidence float64) bus.Event {
	e := bus.NewEvent(bus.EventIntentResolved)
	e.Source = source
	e.Action = action
	e.Confidence = confidence
	return e
}

func TestCollector_Resolutions(t *testing.T) {
	c := NewCollector(nil, nil)

	c.Observe(resolvedEvent("heuristic", "pause", 0.95))
	c.Observe(resolvedEvent("heuristic", "pause", 0.95))
	c.Observe(resolvedEvent("grammar", "search", 0.9))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.resolved.WithLabelValues("heuristic", "pause")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resolved.WithLabelValues("grammar", "search")))

	stats := c.SessionStats()
	assert.Equal(t, 3, stats.Resolutions)
	assert.Equal(t, 2, stats.BySource["heuristic"])
	assert.Equal(t, string(bus.EventIntentResolved), stats.LastEvent)
}

func TestCollector_GatewayAndQueue(t *testing.T) {
	c := NewCollector(nil, nil)

	fail := bus.NewEvent(bus.EventGatewayAttemptFailed)
	fail.Kind = "complete"
	c.Observe(fail)
	c.Observe(fail)

	exhausted := bus.NewEvent(bus.EventGatewayExhausted)
	exhausted.Kind = "complete"
	c.Observe(exhausted)

	queued := bus.NewEvent(bus.EventRequestQueued)
	queued.QueueDepth = 3
	c.Observe(queued)

	replayed := bus.NewEvent(bus.EventQueueReplayed)
	replayed.QueueDepth = 2
	c.Observe(replayed)

	c.Observe(bus.NewEvent(bus.EventQuotaRejected))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.attemptFails.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.exhausted.WithLabelValues("complete")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.replayed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.quotaRejected))

	stats := c.SessionStats()
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 2, stats.QueueDepth)
	assert.Equal(t, 1, stats.QuotaRejected)
}

func TestCollector_BreakerStateIsExclusive(t *testing.T) {
	c := NewCollector(nil, nil)

	open := bus.NewEvent(bus.EventBreakerStateChanged)
	open.State = "open"
	c.Observe(open)

	halfOpen := bus.NewEvent(bus.EventBreakerStateChanged)
	halfOpen.State = "half-open"
	c.Observe(halfOpen)

	assert.Equal(t, 1, testutil.CollectAndCount(c.breakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerState.WithLabelValues("half-open")))
}

func TestCollector_MessagesExposition(t *testing.T) {
	c := NewCollector(nil, nil)

	ok := bus.NewEvent(bus.EventMessageHandled)
	ok.MessageType = "GET_QUOTA"
	ok.DurationMs = 2
	c.Observe(ok)

	failed := bus.NewEvent(bus.EventMessageHandled)
	failed.MessageType = "AI_COMPLETE"
	failed.Code = "QUOTA_EXCEEDED"
	c.Observe(failed)

	expected := `
# HELP jarvis_messages_handled_total Router messages handled, by type and result code.
# TYPE jarvis_messages_handled_total counter
jarvis_messages_handled_total{code="OK",type="GET_QUOTA"} 1
jarvis_messages_handled_total{code="QUOTA_EXCEEDED",type="AI_COMPLETE"} 1
`
	require.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "jarvis_messages_handled_total"))
}

func TestCollector_FromBus(t *testing.T) {
	b := bus.New()
	defer b.Close()

	c := NewCollector(b, nil)
	c.Start()
	c.Start()
	defer c.Stop()

	require.NoError(t, b.Publish(resolvedEvent("cache", "mute", 0.95)))

	assert.Eventually(t, func() bool {
		return c.SessionStats().Resolutions == 1
	}, time.Second, 5*time.Millisecond)

	recent := c.RecentEvents(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "mute", recent[0].Action)
}

func TestCollector_RecentEventsBounded(t *testing.T) {
	c := NewCollector(nil, nil)
	for i := 0; i < 60; i++ {
		c.Observe(bus.NewEvent(bus.EventGatewayRequest))
	}
	assert.Len(t, c.RecentEvents(0), 50)
	assert.Len(t, c.RecentEvents(5), 5)
}
