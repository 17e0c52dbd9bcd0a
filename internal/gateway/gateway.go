// Package gateway mediates every call to the remote language model. Calls are
// credential- and quota-gated, retried with exponential backoff behind a
// circuit breaker, and queued durably when every attempt fails.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/normanking/jarvis/internal/apperr"
	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/llm"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/quota"
	"github.com/normanking/jarvis/internal/storage"
)

// enqueueTimeout bounds the durable write after exhaustion, which runs even
// when the caller's context is already done.
const enqueueTimeout = 5 * time.Second

// Credentials supplies the API key. ok is false when none is configured.
type Credentials interface {
	Get(ctx context.Context) (key string, ok bool, err error)
}

// Gateway is the AI gateway.
type Gateway struct {
	provider llm.Provider
	limiter  *quota.Limiter
	creds    Credentials
	queue    *Queue
	conv     *Conversation
	breaker  *gobreaker.CircuitBreaker

	cfg    Config
	logger zerolog.Logger
	events bus.Publisher
	sleep  Sleeper
	now    func() time.Time

	// Background drains run under baseCtx; Close cancels it and waits.
	baseCtx  context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	closed   bool
	draining bool
	wg       sync.WaitGroup
}

// New creates a gateway. store persists the offline queue.
func New(provider llm.Provider, limiter *quota.Limiter, creds Credentials, store storage.Store, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		provider: provider,
		limiter:  limiter,
		creds:    creds,
		cfg:      DefaultConfig(),
		logger:   logging.WithComponent(logging.Global(), "gateway"),
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}

	g.queue = NewQueue(store, g.cfg.QueueMax, g.logger)
	g.conv = NewConversation(g.cfg.ContextExchanges)
	g.breaker = newBreaker(g.cfg.Breaker, g.logger, g.events)
	g.baseCtx, g.cancel = context.WithCancel(context.Background())
	return g, nil
}

// Queue returns the offline queue.
func (g *Gateway) Queue() *Queue { return g.queue }

// Conversation returns the rolling conversation buffer.
func (g *Gateway) Conversation() *Conversation { return g.conv }

// ClearContext empties the conversation buffer.
func (g *Gateway) ClearContext() {
	g.conv.Clear()
	g.logger.Debug().Msg("conversation context cleared")
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMPLETE
// ═══════════════════════════════════════════════════════════════════════════════

// CompleteOption adjusts a single completion.
type CompleteOption func(*llm.ChatRequest, *completeSettings)

type completeSettings struct {
	noContext bool
}

// WithSystemPrompt replaces the persona for one call.
func WithSystemPrompt(s string) CompleteOption {
	return func(r *llm.ChatRequest, _ *completeSettings) { r.SystemPrompt = s }
}

// WithTemperature overrides the temperature for one call.
func WithTemperature(t float64) CompleteOption {
	return func(r *llm.ChatRequest, _ *completeSettings) { r.Temperature = t }
}

// WithMaxTokens overrides the token limit for one call.
func WithMaxTokens(n int) CompleteOption {
	return func(r *llm.ChatRequest, _ *completeSettings) { r.MaxTokens = n }
}

// WithoutContext neither sends nor records conversation history.
func WithoutContext() CompleteOption {
	return func(_ *llm.ChatRequest, s *completeSettings) { s.noContext = true }
}

// Complete returns a free-text answer to prompt. Successful answers join the
// conversation buffer and may trigger a background replay of queued
// completions.
func (g *Gateway) Complete(ctx context.Context, prompt string, opts ...CompleteOption) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", apperr.ErrInvalidRequest)
	}

	req, settings := g.completionRequest(prompt, opts...)
	resp, err := g.execute(ctx, KindComplete, prompt, req, nil, true)
	if err != nil {
		return "", err
	}

	if !settings.noContext {
		g.conv.Add(prompt, resp.Content)
	}
	if g.cfg.AutoDrain {
		g.startDrain()
	}
	return resp.Content, nil
}

func (g *Gateway) completionRequest(prompt string, opts ...CompleteOption) (*llm.ChatRequest, completeSettings) {
	req := &llm.ChatRequest{
		Model:        g.cfg.Model,
		SystemPrompt: Persona,
		Temperature:  g.cfg.Temperature,
		MaxTokens:    g.cfg.MaxTokens,
	}
	var settings completeSettings
	for _, opt := range opts {
		opt(req, &settings)
	}
	if !settings.noContext {
		req.Messages = g.conv.Messages()
	}
	req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: prompt})
	return req, settings
}

// ═══════════════════════════════════════════════════════════════════════════════
// CLASSIFY
// ═══════════════════════════════════════════════════════════════════════════════

// Classify maps utterance onto one action of catalog. An empty catalog means
// the default media-player catalog. Unparseable answers and actions outside
// the catalog count as failed attempts.
func (g *Gateway) Classify(ctx context.Context, utterance string, catalog intent.Catalog) (intent.Classification, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return intent.Classification{}, fmt.Errorf("%w: empty utterance", apperr.ErrInvalidRequest)
	}
	if len(catalog) == 0 {
		catalog = intent.DefaultCatalog()
	}

	req := &llm.ChatRequest{
		Model:        g.cfg.Model,
		SystemPrompt: ClassifierPrompt(catalog),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: utterance}},
		Temperature:  g.cfg.ClassifyTemperature,
		MaxTokens:    g.cfg.ClassifyMaxTokens,
		JSONMode:     true,
	}

	var out intent.Classification
	parse := func(content string) error {
		c, err := ParseClassification(content, catalog)
		if err != nil {
			return err
		}
		out = c
		return nil
	}

	if _, err := g.execute(ctx, KindClassify, utterance, req, parse, true); err != nil {
		return intent.Classification{}, err
	}
	return out, nil
}

type classificationWire struct {
	Action     string        `json:"action"`
	Param      *intent.Param `json:"param"`
	Parameter  *intent.Param `json:"parameter"`
	Confidence *float64      `json:"confidence"`
}

// ParseClassification decodes a classifier answer. Confidence is clamped to
// [0, 1]. Both "param" and "parameter" are accepted.
func ParseClassification(content string, catalog intent.Catalog) (intent.Classification, error) {
	content = stripCodeFence(content)

	var w classificationWire
	if err := json.Unmarshal([]byte(content), &w); err != nil {
		return intent.Classification{}, fmt.Errorf("%w: %v", apperr.ErrMalformedResponse, err)
	}
	if w.Action == "" {
		return intent.Classification{}, fmt.Errorf("%w: missing action", apperr.ErrMalformedResponse)
	}
	if !catalog.Has(w.Action) {
		return intent.Classification{}, fmt.Errorf("%w: unknown action %q", apperr.ErrMalformedResponse, w.Action)
	}
	if w.Confidence == nil {
		return intent.Classification{}, fmt.Errorf("%w: missing confidence", apperr.ErrMalformedResponse)
	}

	c := intent.Classification{Action: w.Action, Confidence: intent.Clamp(*w.Confidence)}
	switch {
	case w.Param != nil:
		c.Parameter = *w.Param
	case w.Parameter != nil:
		c.Parameter = *w.Parameter
	}
	return c, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED CALL PATH
// ═══════════════════════════════════════════════════════════════════════════════

// execute runs the credential check, the quota consume and the attempt loop.
// parse, when set, validates the content; its failures are retried like
// transport failures. When every attempt fails and enqueue is set, payload
// is appended to the offline queue.
func (g *Gateway) execute(ctx context.Context, kind Kind, payload string, req *llm.ChatRequest, parse func(string) error, enqueue bool) (*llm.ChatResponse, error) {
	log := g.logger.With().Str("kind", string(kind)).Logger()

	key, ok, err := g.creds.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway: load credential: %w", err)
	}
	if !ok {
		log.Warn().Msg("no API key configured")
		return nil, apperr.ErrMissingCredential
	}

	// Check and consume in one step so concurrent callers cannot both pass.
	if !g.limiter.TryConsume(1) {
		status := g.limiter.Status()
		log.Warn().Int("used", status.Used).Int("limit", status.Limit).Msg("rate limit exceeded")
		e := bus.NewEvent(bus.EventQuotaRejected)
		e.Component = "gateway"
		e.Kind = string(kind)
		bus.Emit(g.events, e)
		return nil, apperr.ErrQuotaExceeded
	}

	call := *req
	call.APIKey = key
	maxAttempts := g.cfg.Retry.MaxAttempts
	start := time.Now()

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := g.sleep(ctx, g.cfg.Retry.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}

		resp, err := g.attempt(ctx, &call)
		if err == nil && parse != nil {
			err = parse(resp.Content)
		}
		if err == nil {
			log.Debug().
				Int("attempt", attempt).
				Int("prompt_tokens", resp.PromptTokens).
				Int("completion_tokens", resp.CompletionTokens).
				Dur("duration", resp.Duration).
				Msg("request completed")

			e := bus.NewEvent(bus.EventGatewayRequest)
			e.Component = "gateway"
			e.Kind = string(kind)
			e.Attempt = attempt
			e.DurationMs = time.Since(start).Milliseconds()
			bus.Emit(g.events, e)
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		last = err
		ev := log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", maxAttempts)
		var status *apperr.StatusError
		if errors.As(err, &status) {
			ev = ev.Int("status", status.StatusCode)
		}
		ev.Msg("attempt failed")

		e := bus.NewEvent(bus.EventGatewayAttemptFailed)
		e.Component = "gateway"
		e.Kind = string(kind)
		e.Attempt = attempt
		e.Code = string(apperr.CodeOf(err))
		e.Error = err.Error()
		bus.Emit(g.events, e)
	}

	log.Error().Err(last).Int("attempts", maxAttempts).Msg("request exhausted retries")
	e := bus.NewEvent(bus.EventGatewayExhausted)
	e.Component = "gateway"
	e.Kind = string(kind)
	e.Attempt = maxAttempts
	e.Error = last.Error()
	bus.Emit(g.events, e)

	if enqueue {
		g.enqueue(ctx, kind, payload)
	}
	return nil, &apperr.ExhaustedError{Kind: string(kind), Attempts: maxAttempts, Last: last}
}

func (g *Gateway) attempt(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if g.breaker == nil {
		return g.provider.Chat(ctx, req)
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.provider.Chat(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*llm.ChatResponse), nil
}

func (g *Gateway) enqueue(ctx context.Context, kind Kind, payload string) {
	qctx, cancel := logging.DetachContextWithTimeout(ctx, enqueueTimeout)
	defer cancel()

	depth, err := g.queue.Append(qctx, QueuedRequest{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: g.now().UTC(),
	})
	if err != nil {
		g.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to queue request")
		return
	}

	g.logger.Info().Str("kind", string(kind)).Int("depth", depth).Msg("request queued for later")
	e := bus.NewEvent(bus.EventRequestQueued)
	e.Component = "gateway"
	e.Kind = string(kind)
	e.QueueDepth = depth
	bus.Emit(g.events, e)
}

// Close stops background replays and waits for them to finish.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
	return nil
}
