package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/cache"
	"github.com/normanking/jarvis/internal/config"
	"github.com/normanking/jarvis/internal/gateway"
	"github.com/normanking/jarvis/internal/llm"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/metrics"
	"github.com/normanking/jarvis/internal/quota"
	"github.com/normanking/jarvis/internal/resolver"
	"github.com/normanking/jarvis/internal/router"
	"github.com/normanking/jarvis/internal/storage"
	"github.com/normanking/jarvis/internal/vault"
)

// app holds both contexts. The privileged side (store, vault, limiter,
// gateway, router) is only built when no --connect address is given; the
// unprivileged side (resolver, proxy) always is.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	events *bus.Bus

	// privileged
	store     storage.Store
	vault     *vault.Vault
	limiter   *quota.Limiter
	gateway   *gateway.Gateway
	router    *router.Router
	collector *metrics.Collector

	// unprivileged
	client   router.Client
	proxy    *router.Proxy
	resolver *resolver.Resolver

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, connect string) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		events: bus.NewWithHistory(200),
	}
	a.closers = append(a.closers, a.events.Close)

	if connect != "" {
		ws, err := router.Dial(ctx, connect, logging.WithComponent(logger, "router-client"))
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, ws.Close)
		a.client = ws
	} else {
		if err := a.buildPrivileged(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.client = router.NewLocalClient(a.router)
	}

	a.proxy = router.NewProxy(a.client)
	a.resolver = a.newResolver(true)
	return a, nil
}

func (a *app) buildPrivileged(ctx context.Context) error {
	if err := a.cfg.EnsureDirectories(); err != nil {
		return err
	}

	store, err := storage.Open(ctx, a.cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	a.collector = metrics.NewCollector(a.events, prometheus.NewRegistry())
	a.collector.Start()
	a.closers = append(a.closers, func() error { a.collector.Stop(); return nil })

	a.vault = vault.New(store, vault.WithLogger(logging.WithComponent(a.logger, "vault")))
	a.limiter = quota.New(a.cfg.QuotaLimits())

	providerCfg := a.cfg.ProviderConfig()
	gw, err := gateway.New(
		llm.NewOpenAIProvider(&providerCfg),
		a.limiter,
		a.vault,
		store,
		gateway.WithConfig(a.cfg.GatewayConfig()),
		gateway.WithLogger(logging.WithComponent(a.logger, "gateway")),
		gateway.WithBus(a.events),
	)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	a.gateway = gw
	a.closers = append(a.closers, gw.Close)

	a.router = router.New(a.vault, a.limiter, gw,
		router.WithLogger(logging.WithComponent(a.logger, "router")),
		router.WithBus(a.events),
	)
	return nil
}

// newResolver builds a resolver; remote adds the classifier tier.
func (a *app) newResolver(remote bool) *resolver.Resolver {
	opts := []resolver.Option{
		resolver.WithThresholds(a.cfg.Thresholds()),
		resolver.WithRemoteTimeout(a.cfg.Resolver.RemoteTimeout),
		resolver.WithLogger(logging.WithComponent(a.logger, "resolver")),
		resolver.WithBus(a.events),
	}
	if remote {
		opts = append(opts, resolver.WithClassifier(a.proxy))
	}
	return resolver.New(cache.New(a.cfg.Cache.TTL, a.cfg.Cache.MaxEntries), opts...)
}

func (a *app) requirePrivileged(what string) error {
	if a.gateway == nil {
		return fmt.Errorf("%s needs local storage; run it without --connect", what)
	}
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
