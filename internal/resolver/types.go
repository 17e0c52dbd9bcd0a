// Package resolver turns raw utterances into intents through ordered tiers:
// cache, heuristics, grammar, remote classifier and conversational fallback.
package resolver

import (
	"context"
	"time"

	"github.com/normanking/jarvis/internal/intent"
)

// Default acceptance thresholds.
const (
	DefaultHeuristicThreshold = 0.85
	DefaultGrammarThreshold   = 0.85
	DefaultRemoteThreshold    = 0.7

	DefaultRemoteTimeout = 10 * time.Second
)

// Classifier is the remote semantic classifier. The AI gateway implements it
// in-process; the message router client implements it across a boundary.
type Classifier interface {
	Classify(ctx context.Context, utterance string, catalog intent.Catalog) (intent.Classification, error)
}

// Thresholds controls when a tier's answer is final.
type Thresholds struct {
	// Heuristic answers are final at or above this confidence.
	Heuristic float64 `json:"heuristic"`
	// Grammar answers are final strictly above this confidence; otherwise
	// they are weak candidates.
	Grammar float64 `json:"grammar"`
	// Remote answers are accepted strictly above this confidence.
	Remote float64 `json:"remote"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Heuristic: DefaultHeuristicThreshold,
		Grammar:   DefaultGrammarThreshold,
		Remote:    DefaultRemoteThreshold,
	}
}

// Stats tracks resolution statistics.
type Stats struct {
	TotalRequests     int64                   `json:"total_requests"`
	BySource          map[intent.Source]int64 `json:"by_source"`
	RemoteCalls       int64                   `json:"remote_calls"`
	RemoteFailures    int64                   `json:"remote_failures"`
	RemoteLowScore    int64                   `json:"remote_low_confidence"`
	WeakCandidateUsed int64                   `json:"weak_candidate_used"`
	AverageConfidence float64                 `json:"average_confidence"`
}
