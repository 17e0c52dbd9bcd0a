package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/normanking/jarvis/internal/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

var pause = intent.Intent{Action: intent.ActionPause, Confidence: 1, Source: intent.SourceHeuristic}

func TestResultCache_HitAndExpiry(t *testing.T) {
	clk := newClock()
	c := New(5*time.Minute, 10, WithClock(clk.Now))

	c.Set("pause", pause)

	got, ok := c.Get("pause")
	require.True(t, ok)
	assert.Equal(t, pause, got)

	clk.Advance(5*time.Minute - time.Second)
	_, ok = c.Get("pause")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("pause")
	assert.False(t, ok, "entry must expire at its deadline")
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on read")

	st := c.Stats()
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Expired)
}

func TestResultCache_Miss(t *testing.T) {
	c := New(time.Minute, 10)
	_, ok := c.Get("never")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestResultCache_SetOverwrites(t *testing.T) {
	c := New(time.Minute, 10)
	play := intent.Intent{Action: intent.ActionPlay, Confidence: 0.9, Source: intent.SourceRemote}

	c.Set("go", pause)
	c.Set("go", play)

	got, ok := c.Get("go")
	require.True(t, ok)
	assert.Equal(t, play, got)
}

func TestResultCache_SetIfAbsent(t *testing.T) {
	clk := newClock()
	c := New(time.Minute, 10, WithClock(clk.Now))
	remote := intent.Intent{Action: intent.ActionSpeedUp, Parameter: intent.Number(100), Confidence: 0.95, Source: intent.SourceRemote}
	weak := intent.Intent{Action: intent.ActionSpeedUp, Confidence: 0.85, Source: intent.SourceGrammar}

	c.Set("faster please", remote)
	assert.False(t, c.SetIfAbsent("faster please", weak))

	got, _ := c.Get("faster please")
	assert.Equal(t, remote, got)

	clk.Advance(2 * time.Minute)
	assert.True(t, c.SetIfAbsent("faster please", weak), "expired entries do not block")
	got, _ = c.Get("faster please")
	assert.Equal(t, weak, got)
}

func TestResultCache_LRUBound(t *testing.T) {
	c := New(time.Hour, 3)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), pause)
	}
	// Touch k0 so k1 becomes least recently used.
	_, ok := c.Get("k0")
	require.True(t, ok)

	c.Set("k3", pause)

	assert.Equal(t, 3, c.Len())
	_, ok = c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k0")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestResultCache_DefaultsAndPurge(t *testing.T) {
	c := New(0, 0)
	assert.Equal(t, DefaultTTL, c.TTL())

	c.Set("a", pause)
	c.Purge()
	assert.Equal(t, 0, c.Len())
}
