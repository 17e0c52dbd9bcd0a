package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/quota"
)

func TestDashboard_RenderQuota(t *testing.T) {
	d := NewDashboard(nil)

	out := d.RenderQuota(quota.Status{Used: 12, Limit: 60, ResetInMs: 42_300})
	assert.Contains(t, out, "QUOTA")
	assert.Contains(t, out, "12 / 60")
	assert.Contains(t, out, "42s")

	out = d.RenderQuota(quota.Status{Used: 0, Limit: 60, ResetInMs: 0})
	assert.Contains(t, out, "now")
}

func TestDashboard_Render(t *testing.T) {
	c := NewCollector(nil, nil)
	c.Observe(resolvedEvent("heuristic", "pause", 0.95))
	c.Observe(resolvedEvent("remote", "search", 0.8))

	d := NewDashboard(c)
	out := d.Render()
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "heuristic=1")
	assert.Contains(t, out, "remote=1")

	compact := d.RenderCompact()
	assert.Contains(t, compact, "2 resolved")
	assert.Contains(t, compact, "●●○○○")
}

func TestDashboard_NilCollector(t *testing.T) {
	d := NewDashboard(nil)
	assert.Empty(t, d.Render())
	assert.Empty(t, d.RenderCompact())

	c := NewCollector(nil, nil)
	c.Observe(bus.NewEvent(bus.EventGatewayRequest))
	assert.NotEmpty(t, NewDashboard(c).Render())
}

func TestFormatResetIn(t *testing.T) {
	assert.Equal(t, "now", formatResetIn(0))
	assert.Equal(t, "1m0s", formatResetIn(60_000))
	assert.Equal(t, "3s", formatResetIn(2_600))
}
