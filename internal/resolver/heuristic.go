package resolver

import (
	"regexp"
	"strings"

	"github.com/normanking/jarvis/internal/intent"
)

// Heuristics matches the highest-frequency bare commands by exact text.
// It runs before anything else and never allocates a regex per call.
type Heuristics struct {
	exact    map[string]intent.Intent
	patterns []heuristicPattern
}

type heuristicPattern struct {
	regex  *regexp.Regexp
	result intent.Intent
}

func heuristic(action string, confidence float64) intent.Intent {
	return intent.Intent{Action: action, Confidence: confidence, Source: intent.SourceHeuristic}
}

// NewHeuristics creates the exact-match table.
func NewHeuristics() *Heuristics {
	return &Heuristics{
		exact: map[string]intent.Intent{
			"play":   heuristic(intent.ActionPlay, 1.0),
			"pause":  heuristic(intent.ActionPause, 1.0),
			"stop":   heuristic(intent.ActionPause, 0.95),
			"mute":   heuristic(intent.ActionMute, 1.0),
			"unmute": heuristic(intent.ActionUnmute, 1.0),
		},
		patterns: []heuristicPattern{
			{regexp.MustCompile(`^(play|resume|start)$`), heuristic(intent.ActionPlay, 0.95)},
			{regexp.MustCompile(`^(pause|stop)$`), heuristic(intent.ActionPause, 0.95)},
		},
	}
}

// Match returns the heuristic intent for normalized text. Trailing
// punctuation from speech recognition is ignored.
func (h *Heuristics) Match(normalized string) (intent.Intent, bool) {
	normalized = strings.TrimRight(normalized, ".!?,")
	if in, ok := h.exact[normalized]; ok {
		return in, true
	}
	for _, p := range h.patterns {
		if p.regex.MatchString(normalized) {
			return p.result, true
		}
	}
	return intent.Intent{}, false
}
