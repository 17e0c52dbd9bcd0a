package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/cache"
	"github.com/normanking/jarvis/internal/intent"
)

// Resolver runs the tiers in order and caches final answers. It is safe
// for concurrent use.
type Resolver struct {
	cache      *cache.ResultCache
	heuristics *Heuristics
	grammar    *Grammar
	remote     *RemoteTier

	classifier    Classifier
	remoteTimeout time.Duration
	catalog       intent.Catalog
	thresholds    Thresholds
	logger        zerolog.Logger
	events        bus.Publisher
	now           func() time.Time

	stats           Stats
	confidenceTotal float64
	mu              sync.RWMutex
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClassifier enables the remote tier.
func WithClassifier(c Classifier) Option {
	return func(r *Resolver) {
		r.classifier = c
	}
}

// WithCatalog replaces the default action catalog.
func WithCatalog(c intent.Catalog) Option {
	return func(r *Resolver) {
		r.catalog = c
	}
}

// WithThresholds sets custom acceptance thresholds.
func WithThresholds(t Thresholds) Option {
	return func(r *Resolver) {
		r.thresholds = t
	}
}

// WithRemoteTimeout bounds each remote classification.
func WithRemoteTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.remoteTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithBus publishes an intent_resolved event per resolution.
func WithBus(p bus.Publisher) Option {
	return func(r *Resolver) {
		r.events = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// New creates a Resolver over c. Without WithClassifier the remote tier is
// skipped.
func New(c *cache.ResultCache, opts ...Option) *Resolver {
	r := &Resolver{
		cache:         c,
		heuristics:    NewHeuristics(),
		grammar:       NewGrammar(),
		remoteTimeout: DefaultRemoteTimeout,
		catalog:       intent.DefaultCatalog(),
		thresholds:    DefaultThresholds(),
		logger:        zerolog.Nop(),
		now:           time.Now,
		stats: Stats{
			BySource: make(map[intent.Source]int64),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.classifier != nil {
		r.remote = NewRemoteTier(r.classifier, r.remoteTimeout)
	}
	return r
}

// Catalog returns the catalog offered to the remote tier.
func (r *Resolver) Catalog() intent.Catalog {
	return r.catalog
}

// Resolve turns raw text into an intent. It never fails: when every tier
// declines, the conversational fallback is returned.
func (r *Resolver) Resolve(ctx context.Context, raw string) intent.Intent {
	start := r.now()
	u := intent.NewUtterance(raw, start)

	result := r.resolve(ctx, u)
	r.record(u, result, r.now().Sub(start))
	return result
}

func (r *Resolver) resolve(ctx context.Context, u intent.Utterance) intent.Intent {
	key := u.Normalized
	if key == "" {
		return intent.Fallback()
	}

	if cached, ok := r.cache.Get(key); ok {
		return cached.WithSource(intent.SourceCache)
	}

	if in, ok := r.heuristics.Match(key); ok && in.Confidence >= r.thresholds.Heuristic {
		r.cache.Set(key, in)
		return in
	}

	var weak *intent.Intent
	if in, ok := r.grammar.Match(key); ok {
		if in.Confidence > r.thresholds.Grammar {
			r.cache.SetIfAbsent(key, in)
			return in
		}
		weak = &in
	}

	remoteFailed := false
	if r.remote.Enabled() {
		r.bump(func(s *Stats) { s.RemoteCalls++ })

		in, err := r.remote.Classify(ctx, u.Raw, r.catalog)
		switch {
		case err != nil:
			remoteFailed = true
			r.bump(func(s *Stats) { s.RemoteFailures++ })
			r.logger.Warn().Err(err).Str("input", key).Msg("remote classification failed")
		case in.Confidence > r.thresholds.Remote:
			r.cache.Set(key, in)
			return in
		default:
			r.bump(func(s *Stats) { s.RemoteLowScore++ })
			r.logger.Debug().
				Str("input", key).
				Str("action", in.Action).
				Float64("confidence", in.Confidence).
				Msg("remote classification below threshold")
		}
	}

	if weak != nil {
		r.bump(func(s *Stats) { s.WeakCandidateUsed++ })
		r.cache.SetIfAbsent(key, *weak)
		return *weak
	}

	fb := intent.Fallback()
	if !remoteFailed {
		r.cache.SetIfAbsent(key, fb)
	}
	return fb
}

func (r *Resolver) bump(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

func (r *Resolver) record(u intent.Utterance, in intent.Intent, elapsed time.Duration) {
	r.mu.Lock()
	r.stats.TotalRequests++
	r.stats.BySource[in.Source]++
	r.confidenceTotal += in.Confidence
	r.stats.AverageConfidence = r.confidenceTotal / float64(r.stats.TotalRequests)
	r.mu.Unlock()

	r.logger.Debug().
		Str("input", u.Normalized).
		Str("action", in.Action).
		Str("source", in.Source.String()).
		Float64("confidence", in.Confidence).
		Dur("elapsed", elapsed).
		Msg("intent resolved")

	ev := bus.NewEvent(bus.EventIntentResolved)
	ev.Component = "resolver"
	ev.Input = u.Normalized
	ev.Action = in.Action
	ev.Source = in.Source.String()
	ev.Confidence = in.Confidence
	ev.DurationMs = elapsed.Milliseconds()
	bus.Emit(r.events, ev)
}

// Stats returns a copy of the resolution statistics.
func (r *Resolver) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.stats
	s.BySource = make(map[intent.Source]int64, len(r.stats.BySource))
	for k, v := range r.stats.BySource {
		s.BySource[k] = v
	}
	return s
}

// ResetStats clears the statistics.
func (r *Resolver) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = Stats{BySource: make(map[intent.Source]int64)}
	r.confidenceTotal = 0
}
