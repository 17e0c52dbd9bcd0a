package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/router"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the privileged service",
		Long: `Serve the message router over websocket so an unprivileged client
(the page-side resolver) can reach the gateway, vault and quota.

Endpoints on server.listen:
  /ws      router envelopes {id, type, payload}
  /events  live bus events (add ?replay=N for recent history)

Prometheus metrics are served on server.metrics_listen at /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if connect != "" {
				return errors.New("serve runs the privileged side; drop --connect")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	log := logging.WithComponent(a.logger, "serve")

	routerServer := router.NewServer(a.router, logging.WithComponent(a.logger, "router-server"))
	observer := bus.NewObserver(a.events, logging.WithComponent(a.logger, "observer"))

	mux := http.NewServeMux()
	mux.Handle("/ws", routerServer)
	mux.Handle("/events", observer)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(a.collector.Registry(), promhttp.HandlerOpts{}))

	servers := []*http.Server{
		{Addr: a.cfg.Server.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		{Addr: a.cfg.Server.MetricsListen, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		// Hijacked websocket connections are not tracked by Shutdown.
		routerServer.Close()
		observer.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
