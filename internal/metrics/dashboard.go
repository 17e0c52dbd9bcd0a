package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/normanking/jarvis/internal/quota"
)

// Dashboard renders session counters and quota usage for the terminal.
type Dashboard struct {
	collector *Collector
	styles    DashboardStyles
	width     int
}

// DashboardStyles defines the styling for the dashboard.
type DashboardStyles struct {
	Border    lipgloss.Style
	Header    lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}

// NewDashboard creates a dashboard renderer. collector may be nil when only
// quota rendering is needed.
func NewDashboard(collector *Collector) *Dashboard {
	return &Dashboard{
		collector: collector,
		width:     72,
		styles:    defaultDashboardStyles(),
	}
}

func defaultDashboardStyles() DashboardStyles {
	return DashboardStyles{
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		Value: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")),
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("82")),
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")),
		Highlight: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")),
	}
}

// SetWidth sets the dashboard width.
func (d *Dashboard) SetWidth(w int) {
	d.width = w
}

// RenderQuota renders limiter usage as a bar with the reset countdown.
func (d *Dashboard) RenderQuota(s quota.Status) string {
	var content strings.Builder
	content.WriteString(d.styles.Header.Render("QUOTA"))
	content.WriteString("\n")

	fmt.Fprintf(&content, "%s %s  %s\n",
		d.styles.Label.Render("Used:"),
		d.usageValue(s),
		d.usageBar(s, 24),
	)
	fmt.Fprintf(&content, "%s %s",
		d.styles.Label.Render("Resets in:"),
		d.styles.Value.Render(formatResetIn(s.ResetInMs)),
	)

	return d.styles.Border.Width(d.width - 4).Render(content.String())
}

// Render returns the session summary.
func (d *Dashboard) Render() string {
	if d.collector == nil {
		return ""
	}
	stats := d.collector.SessionStats()

	var content strings.Builder
	content.WriteString(d.styles.Header.Render("SESSION"))
	content.WriteString("\n")

	fmt.Fprintf(&content, "%s %s │ %s %s │ %s %s\n",
		d.styles.Label.Render("Resolved:"),
		d.styles.Value.Render(fmt.Sprintf("%d", stats.Resolutions)),
		d.styles.Label.Render("Remote:"),
		d.styles.Value.Render(fmt.Sprintf("%d ok", stats.Completions)),
		d.styles.Label.Render("Failed:"),
		d.failureValue(stats.Failures),
	)
	fmt.Fprintf(&content, "%s %s │ %s %s │ %s %s\n",
		d.styles.Label.Render("Queued:"),
		d.styles.Highlight.Render(fmt.Sprintf("%d", stats.QueueDepth)),
		d.styles.Label.Render("Replayed:"),
		d.styles.Value.Render(fmt.Sprintf("%d", stats.Replayed)),
		d.styles.Label.Render("Throttled:"),
		d.failureValue(stats.QuotaRejected),
	)
	fmt.Fprintf(&content, "%s %s", d.styles.Label.Render("Tiers:"), d.renderSources(stats.BySource))

	return d.styles.Border.Width(d.width - 4).Render(content.String())
}

// RenderCompact returns a single-line summary.
func (d *Dashboard) RenderCompact() string {
	if d.collector == nil {
		return ""
	}
	stats := d.collector.SessionStats()
	return fmt.Sprintf("[jarvis] %d resolved │ %d remote │ %d failed │ %d queued │ %s",
		stats.Resolutions,
		stats.Completions,
		stats.Failures,
		stats.QueueDepth,
		d.renderEventActivity(),
	)
}

func (d *Dashboard) usageValue(s quota.Status) string {
	text := fmt.Sprintf("%d / %d", s.Used, s.Limit)
	switch {
	case s.Limit > 0 && s.Used >= s.Limit:
		return d.styles.Error.Render(text)
	case s.Limit > 0 && s.Used*10 >= s.Limit*8:
		return d.styles.Highlight.Render(text)
	default:
		return d.styles.Success.Render(text)
	}
}

func (d *Dashboard) usageBar(s quota.Status, width int) string {
	filled := 0
	if s.Limit > 0 {
		filled = s.Used * width / s.Limit
	}
	if filled > width {
		filled = width
	}
	return d.styles.Highlight.Render(strings.Repeat("█", filled)) +
		d.styles.Label.Render(strings.Repeat("░", width-filled))
}

func (d *Dashboard) failureValue(n int) string {
	if n > 0 {
		return d.styles.Error.Render(fmt.Sprintf("%d", n))
	}
	return d.styles.Success.Render("0")
}

func (d *Dashboard) renderSources(bySource map[string]int) string {
	if len(bySource) == 0 {
		return d.styles.Value.Render("none")
	}
	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, bySource[name]))
	}
	return d.styles.Value.Render(strings.Join(parts, " "))
}

// renderEventActivity renders a visual indicator of recent event activity.
func (d *Dashboard) renderEventActivity() string {
	events := d.collector.RecentEvents(5)

	activity := make([]string, 5)
	for i := 0; i < 5; i++ {
		if i < len(events) {
			activity[i] = "●"
		} else {
			activity[i] = "○"
		}
	}
	return strings.Join(activity, "")
}

func formatResetIn(ms int64) string {
	if ms <= 0 {
		return "now"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}
