package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/makanmate/makanmate/internal/health"
	"github.com/makanmate/makanmate/internal/observe"
)

// startObservability serves /metrics, /healthz and /readyz on the configured
// listen address until ctx is done or stop is called. stop blocks until the
// listener has shut down. It is a no-op when no address is configured.
func (e *env) startObservability(ctx context.Context) (stop func()) {
	addr := e.cfg.Server.ListenAddr
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", e.tel.Handler())
	health.New(e.app.Checkers()...).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(e.metrics, e.log)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.log.Info("observability listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return func() {
		cancel()
		if err := g.Wait(); err != nil {
			e.log.Warn("observability listener", "err", err)
		}
	}
}
