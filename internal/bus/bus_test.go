package bus

import (
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// ============================================================================
// Bus Tests
// ============================================================================

func TestSubscribeAndPublish(t *testing.T) {
	b := New()
	defer b.Close()

	got := make(chan Event, 1)
	id := b.Subscribe(EventIntentResolved, func(e Event) { got <- e })
	require.NotEmpty(t, id)

	e := NewEvent(EventIntentResolved)
	e.Action = "pause"
	require.NoError(t, b.Publish(e))

	received := waitFor(t, got)
	assert.Equal(t, "pause", received.Action)
	assert.Equal(t, e.ID, received.ID)
}

func TestTypedAndWildcardSubscriptions(t *testing.T) {
	b := New()
	defer b.Close()

	var typed, wildcard atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	b.Subscribe(EventQuotaRejected, func(Event) { typed.Add(1); wg.Done() })
	b.Subscribe("", func(Event) { wildcard.Add(1); wg.Done() })

	require.NoError(t, b.Publish(NewEvent(EventQuotaRejected)))
	require.NoError(t, b.Publish(NewEvent(EventRequestQueued)))

	wg.Wait()
	assert.Equal(t, int32(1), typed.Load())
	assert.Equal(t, int32(2), wildcard.Load())
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	id := b.Subscribe(EventIntentResolved, func(Event) {})
	assert.Equal(t, 1, b.SubscriptionsCount())

	require.NoError(t, b.Unsubscribe(id))
	assert.Equal(t, 0, b.SubscriptionsCount())
	assert.Error(t, b.Unsubscribe(id))
}

func TestHistory(t *testing.T) {
	b := NewWithHistory(3)
	defer b.Close()

	for i := 0; i < 5; i++ {
		e := NewEvent(EventMessageHandled)
		e.Attempt = i
		require.NoError(t, b.Publish(e))
	}

	all := b.History(0)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].Attempt)
	assert.Equal(t, 4, all[2].Attempt)

	last := b.History(1)
	require.Len(t, last, 1)
	assert.Equal(t, 4, last[0].Attempt)
}

func TestPublishAfterClose(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())
	assert.Error(t, b.Publish(NewEvent(EventIntentResolved)))
	assert.Error(t, b.Close())
	assert.Empty(t, b.Subscribe(EventIntentResolved, func(Event) {}))
}

func TestNilBusAndEmit(t *testing.T) {
	var b *Bus
	assert.NoError(t, b.Publish(NewEvent(EventIntentResolved)))

	Emit(nil, NewEvent(EventIntentResolved))
	Emit(b, NewEvent(EventIntentResolved))
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	defer b.Close()

	release := make(chan struct{})
	b.Subscribe(EventGatewayRequest, func(Event) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultChannelBuffer*2; i++ {
			_ = b.Publish(NewEvent(EventGatewayRequest))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	close(release)
	assert.Greater(t, b.Dropped(), int64(0))
}

func TestConcurrentPublish(t *testing.T) {
	b := New()
	defer b.Close()

	var count atomic.Int64
	b.Subscribe("", func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_ = b.Publish(NewEvent(EventMessageHandled))
			}
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return count.Load() == 50 }, time.Second, 5*time.Millisecond)
}

// ============================================================================
// Observer Tests
// ============================================================================

func TestObserver_StreamsEvents(t *testing.T) {
	b := New()
	defer b.Close()

	require.NoError(t, b.Publish(NewEvent(EventCredentialChanged)))

	obs := NewObserver(b, zerolog.Nop())
	srv := httptest.NewServer(obs)
	defer srv.Close()
	defer obs.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?replay=5"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), string(EventCredentialChanged))

	assert.Eventually(t, func() bool { return obs.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	e := NewEvent(EventIntentResolved)
	e.Action = "mute"
	require.NoError(t, b.Publish(e))

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"mute"`)
}
