package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/irrigation/config"
	"github.com/liamcoop/irrigation/internal/app"
	"github.com/liamcoop/irrigation/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	logger.Setup(cfg.LogFormat, os.Stdout)
	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to start", "error", err)
	}

	err = run(ctx, a)
	a.Close()
	if err != nil {
		logger.Fatal("server failed", "error", err)
	}
	logger.Info("server stopped")
}

// run serves until ctx is cancelled, then drains in-flight requests
func run(ctx context.Context, a *app.App) error {
	httpServer := &http.Server{
		Addr:         ":" + a.Config.Port,
		Handler:      NewServer(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.Config.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Fit the classifier now so the first model query does not wait for it
	a.Model.Warm(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "port", a.Config.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
