package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/jarvis/internal/apperr"
	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/gateway"
	"github.com/normanking/jarvis/internal/intent"
	"github.com/normanking/jarvis/internal/quota"
	"github.com/normanking/jarvis/internal/vault"
)

// CredentialStore is the vault as seen by the router.
type CredentialStore interface {
	Set(ctx context.Context, secret string) error
	Get(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// QuotaReporter reports the limiter window.
type QuotaReporter interface {
	Status() quota.Status
}

// AI is the gateway as seen by the router.
type AI interface {
	Complete(ctx context.Context, prompt string, opts ...gateway.CompleteOption) (string, error)
	Classify(ctx context.Context, utterance string, catalog intent.Catalog) (intent.Classification, error)
	ClearContext()
	Drain(ctx context.Context) (gateway.DrainResult, error)
}

// Router dispatches requests to the privileged components.
type Router struct {
	creds  CredentialStore
	quota  QuotaReporter
	ai     AI
	logger zerolog.Logger
	events bus.Publisher
	now    func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithBus publishes message_handled and credential_changed events.
func WithBus(p bus.Publisher) Option {
	return func(r *Router) {
		r.events = p
	}
}

// New creates a Router.
func New(creds CredentialStore, q QuotaReporter, ai AI, opts ...Option) *Router {
	r := &Router{
		creds:  creds,
		quota:  q,
		ai:     ai,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle runs the handler for req and returns its result. Every request
// type has exactly one handler; anything else is an UnknownMessageTypeError.
func (r *Router) Handle(ctx context.Context, req Request) (result any, err error) {
	start := r.now()
	typ := MessageType("")
	if req != nil {
		typ = req.Type()
	}
	defer func() {
		r.observe(typ, start, err)
	}()

	switch m := req.(type) {
	case SetCredential:
		return r.setCredential(ctx, m)
	case GetCredential:
		return r.getCredential(ctx)
	case ClearCredential:
		return r.clearCredential(ctx)
	case GetQuota:
		return r.quota.Status(), nil
	case AIComplete:
		return r.ai.Complete(ctx, m.Text)
	case AIClassify:
		return r.classify(ctx, m)
	case ClearContext:
		r.ai.ClearContext()
		return OKResult{OK: true}, nil
	case DrainQueue:
		return r.ai.Drain(ctx)
	default:
		return nil, &apperr.UnknownMessageTypeError{Type: string(typ)}
	}
}

func (r *Router) setCredential(ctx context.Context, m SetCredential) (OKResult, error) {
	if err := r.creds.Set(ctx, m.Key); err != nil {
		if errors.Is(err, vault.ErrEmptySecret) {
			return OKResult{}, fmt.Errorf("%w: key is empty", apperr.ErrInvalidRequest)
		}
		return OKResult{}, err
	}
	r.credentialChanged("set")
	return OKResult{OK: true}, nil
}

func (r *Router) getCredential(ctx context.Context) (CredentialResult, error) {
	key, ok, err := r.creds.Get(ctx)
	if err != nil {
		return CredentialResult{}, err
	}
	if !ok {
		return CredentialResult{}, nil
	}
	return CredentialResult{Key: &key}, nil
}

func (r *Router) clearCredential(ctx context.Context) (OKResult, error) {
	if err := r.creds.Clear(ctx); err != nil {
		return OKResult{}, err
	}
	r.credentialChanged("cleared")
	return OKResult{OK: true}, nil
}

func (r *Router) classify(ctx context.Context, m AIClassify) (ClassifyResult, error) {
	catalog := m.ActionCatalog
	if len(catalog) == 0 {
		catalog = intent.DefaultCatalog()
	}
	if err := catalog.Validate(); err != nil {
		return ClassifyResult{}, fmt.Errorf("%w: %v", apperr.ErrInvalidRequest, err)
	}
	return r.ai.Classify(ctx, m.Utterance, catalog)
}

func (r *Router) credentialChanged(change string) {
	ev := bus.NewEvent(bus.EventCredentialChanged)
	ev.Component = "router"
	ev.State = change
	bus.Emit(r.events, ev)
}

func (r *Router) observe(typ MessageType, start time.Time, err error) {
	elapsed := r.now().Sub(start)
	code := apperr.CodeOf(err)

	evt := r.logger.Debug()
	if err != nil {
		evt = r.logger.Warn().Err(err)
	}
	evt.Str("type", string(typ)).
		Str("code", string(code)).
		Dur("elapsed", elapsed).
		Msg("message handled")

	ev := bus.NewEvent(bus.EventMessageHandled)
	ev.Component = "router"
	ev.MessageType = string(typ)
	ev.Code = string(code)
	ev.DurationMs = elapsed.Milliseconds()
	if err != nil {
		ev.Error = err.Error()
	}
	bus.Emit(r.events, ev)
}
