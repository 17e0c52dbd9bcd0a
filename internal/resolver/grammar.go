package resolver

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/normanking/jarvis/internal/intent"
)

// paramMode says how a grammar rule fills the intent parameter.
type paramMode uint8

const (
	paramNone paramMode = iota
	paramNumberRequired
	paramNumberOptional
)

// grammarRule maps a phrasing to an action.
type grammarRule struct {
	action     string
	regex      *regexp.Regexp
	confidence float64
	param      paramMode
}

// Grammar is the ordered pattern tier. The first matching rule wins; the
// search sub-grammar is tried before everything else.
type Grammar struct {
	rules []grammarRule
}

var (
	numberRe = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

	searchTriggers = []*regexp.Regexp{
		regexp.MustCompile(`\b(search|find|play|show|watch|video|look for)\b.*\b(video|videos|on|about|for|tutorial|tutorials|guide)\b`),
		regexp.MustCompile(`\b(play|show)\s+(a|an|the)?\s*videos?\b`),
		regexp.MustCompile(`\bvideos?\s+(on|about|for)\b`),
	}
	searchLeadingCommand = regexp.MustCompile(`^(search|find|play|show me|show|watch|look for)\s+(for\s+)?`)
	searchLeadingVideo   = regexp.MustCompile(`^(a|an|the|some)?\s*videos?\s+(on|about|for)\s+`)
	searchTrailingVideo  = regexp.MustCompile(`\s+videos?$`)
	searchInnerVideo     = regexp.MustCompile(`videos?\s+(on|about|for)\s+(.+)`)

	// Questions about the current video are conversation, not searches.
	questionLead = regexp.MustCompile(`^(what|why|who|when|where|which|is|are|was|does|do|did|can you tell|tell me)\b`)
)

// minSearchQuery is the shortest query text accepted as a search.
const minSearchQuery = 3

// NewGrammar creates the grammar with its rules compiled.
func NewGrammar() *Grammar {
	rule := func(action, pattern string, confidence float64, mode paramMode) grammarRule {
		return grammarRule{
			action:     action,
			regex:      regexp.MustCompile(pattern),
			confidence: confidence,
			param:      mode,
		}
	}

	return &Grammar{
		rules: []grammarRule{
			rule(intent.ActionPlay, `^(play|resume|start|continue)$`, 0.9, paramNone),
			rule(intent.ActionPause, `\b(pause|stop|wait|hold)\b`, 0.9, paramNone),
			rule(intent.ActionSeek, `\b(go|jump|seek|skip) to\b`, 0.85, paramNumberRequired),
			rule(intent.ActionSkip, `\b(skip|forward|ahead)\b`, 0.85, paramNumberRequired),
			rule(intent.ActionRewind, `\b(rewind|back|backward|backwards|previous)\b`, 0.85, paramNumberRequired),
			rule(intent.ActionNormalSpeed, `\b(normal speed|reset (the )?speed|1x)\b`, 0.9, paramNone),
			rule(intent.ActionSpeedUp, `\b(speed up|faster|increase (the )?speed)\b`, 0.85, paramNumberOptional),
			rule(intent.ActionSlowDown, `\b(slow down|slower|decrease (the )?speed)\b`, 0.85, paramNumberOptional),
			rule(intent.ActionSetVolume, `\b(set (the )?volume|volume to)\b`, 0.85, paramNumberRequired),
			rule(intent.ActionIncreaseVolume, `\b(louder|volume up|turn (it )?up|increase (the )?volume)\b`, 0.85, paramNumberOptional),
			rule(intent.ActionDecreaseVolume, `\b(quieter|softer|volume down|turn (it )?down|decrease (the )?volume)\b`, 0.85, paramNumberOptional),
			rule(intent.ActionUnmute, `\b(unmute|sound on|audio on)\b`, 0.9, paramNone),
			rule(intent.ActionMute, `\b(mute|silence)\b`, 0.9, paramNone),
			rule(intent.ActionSummarize, `\b(summarize|summarise|summary|tldr)\b`, 0.9, paramNone),
			rule(intent.ActionQuiz, `\b(quiz|test me|questions)\b`, 0.9, paramNone),
		},
	}
}

// Match returns the first rule's intent for normalized text.
func (g *Grammar) Match(normalized string) (intent.Intent, bool) {
	if normalized == "" {
		return intent.Intent{}, false
	}

	if query, ok := ExtractSearchQuery(normalized); ok {
		return intent.Intent{
			Action:     intent.ActionSearch,
			Parameter:  intent.String(query),
			Confidence: 0.95,
			Source:     intent.SourceGrammar,
		}, true
	}

	number, hasNumber := firstNumber(normalized)
	for _, r := range g.rules {
		if !r.regex.MatchString(normalized) {
			continue
		}
		if r.param == paramNumberRequired && !hasNumber {
			continue
		}

		in := intent.Intent{Action: r.action, Confidence: r.confidence, Source: intent.SourceGrammar}
		if r.param != paramNone && hasNumber {
			in.Parameter = intent.Number(number)
		}
		return in, true
	}
	return intent.Intent{}, false
}

// ExtractSearchQuery recognizes "search and play" phrasing and returns the
// query with leading command words and video phrasing stripped.
func ExtractSearchQuery(normalized string) (string, bool) {
	if questionLead.MatchString(normalized) {
		return "", false
	}
	triggered := false
	for _, re := range searchTriggers {
		if re.MatchString(normalized) {
			triggered = true
			break
		}
	}
	if !triggered {
		return "", false
	}

	query := searchLeadingCommand.ReplaceAllString(normalized, "")
	query = searchLeadingVideo.ReplaceAllString(query, "")
	query = searchTrailingVideo.ReplaceAllString(query, "")
	if m := searchInnerVideo.FindStringSubmatch(query); m != nil {
		query = m[2]
	}
	query = strings.TrimSpace(strings.TrimRight(query, ".!?"))

	if len(query) < minSearchQuery {
		return "", false
	}
	return query, true
}

func firstNumber(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
