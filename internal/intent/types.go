// Package intent defines the data model shared by the resolver, the gateway and
// the message router: utterances, resolved intents and the action catalog.
package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source identifies the resolution tier that produced an Intent.
type Source string

const (
	// SourceCache marks an intent served from the result cache.
	SourceCache Source = "cache"
	// SourceHeuristic marks an exact-match or short-regex hit.
	SourceHeuristic Source = "heuristic"
	// SourceGrammar marks a pattern-grammar match.
	SourceGrammar Source = "grammar"
	// SourceRemote marks a remote semantic classification.
	SourceRemote Source = "remote"
	// SourceFallback marks the conversational fallback.
	SourceFallback Source = "fallback"
)

// AllSources returns every tier in resolution order.
func AllSources() []Source {
	return []Source{SourceCache, SourceHeuristic, SourceGrammar, SourceRemote, SourceFallback}
}

// String returns the string representation of a Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if a Source is one of the known tiers.
func (s Source) IsValid() bool {
	for _, valid := range AllSources() {
		if s == valid {
			return true
		}
	}
	return false
}

// ActionQuery is the conversational fallback action.
const ActionQuery = "query"

// FallbackConfidence is the confidence of the conversational fallback.
const FallbackConfidence = 0.5

// ═══════════════════════════════════════════════════════════════════════════════
// UTTERANCE
// ═══════════════════════════════════════════════════════════════════════════════

// Utterance is one user turn as heard. It is never mutated after creation.
type Utterance struct {
	Raw        string    `json:"raw"`
	Normalized string    `json:"normalized"`
	At         time.Time `json:"at"`
}

// NewUtterance builds an Utterance from raw text.
func NewUtterance(raw string, at time.Time) Utterance {
	return Utterance{
		Raw:        raw,
		Normalized: Normalize(raw),
		At:         at,
	}
}

// Normalize lowercases, trims and collapses internal whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ═══════════════════════════════════════════════════════════════════════════════
// PARAMETER
// ═══════════════════════════════════════════════════════════════════════════════

type paramKind uint8

const (
	paramNull paramKind = iota
	paramString
	paramNumber
)

// Param is an intent parameter: a string, a number or null.
// The zero value is null. Param is comparable.
type Param struct {
	kind paramKind
	str  string
	num  float64
}

// Null returns the null parameter.
func Null() Param { return Param{} }

// String returns a string parameter.
func String(s string) Param { return Param{kind: paramString, str: s} }

// Number returns a numeric parameter.
func Number(n float64) Param { return Param{kind: paramNumber, num: n} }

// IsNull reports whether the parameter is null.
func (p Param) IsNull() bool { return p.kind == paramNull }

// Text returns the string value and whether the parameter holds a string.
func (p Param) Text() (string, bool) { return p.str, p.kind == paramString }

// Float returns the numeric value and whether the parameter holds a number.
func (p Param) Float() (float64, bool) { return p.num, p.kind == paramNumber }

// String renders the parameter for display.
func (p Param) String() string {
	switch p.kind {
	case paramString:
		return p.str
	case paramNumber:
		return strconv.FormatFloat(p.num, 'f', -1, 64)
	default:
		return "null"
	}
}

// MarshalJSON encodes the parameter as a JSON string, number or null.
func (p Param) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case paramString:
		return json.Marshal(p.str)
	case paramNumber:
		return json.Marshal(p.num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON string, number or null. Booleans and
// composite values are rejected.
func (p *Param) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = Null()
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = String(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*p = Number(n)
		return nil
	}
	return fmt.Errorf("intent: parameter must be string, number or null, got %s", data)
}

// ═══════════════════════════════════════════════════════════════════════════════
// INTENT
// ═══════════════════════════════════════════════════════════════════════════════

// Intent is a structured, actionable interpretation of an utterance.
// It is comparable with ==.
type Intent struct {
	Action     string  `json:"action"`
	Parameter  Param   `json:"parameter"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Fallback returns the conversational fallback intent.
func Fallback() Intent {
	return Intent{
		Action:     ActionQuery,
		Confidence: FallbackConfidence,
		Source:     SourceFallback,
	}
}

// WithSource returns a copy of the intent tagged with s.
func (i Intent) WithSource(s Source) Intent {
	i.Source = s
	return i
}

// SamePayload reports whether two intents agree on action, parameter and
// confidence, ignoring which tier produced them.
func (i Intent) SamePayload(other Intent) bool {
	return i.Action == other.Action &&
		i.Parameter == other.Parameter &&
		i.Confidence == other.Confidence
}

// Clamp bounds a confidence value to [0, 1]. NaN becomes 0.
func Clamp(c float64) float64 {
	if c != c || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Classification is the structured answer of a remote classifier.
type Classification struct {
	Action     string  `json:"action"`
	Parameter  Param   `json:"parameter"`
	Confidence float64 `json:"confidence"`
}

// Intent converts the classification into a remote-tier Intent with a
// clamped confidence.
func (c Classification) Intent() Intent {
	return Intent{
		Action:     c.Action,
		Parameter:  c.Parameter,
		Confidence: Clamp(c.Confidence),
		Source:     SourceRemote,
	}
}
