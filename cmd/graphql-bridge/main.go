package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	server "github.com/bhoriuchi/graphql-ws-bridge"
	"github.com/bhoriuchi/graphql-ws-bridge/config"
	"github.com/bhoriuchi/graphql-ws-bridge/logger"
	"github.com/bhoriuchi/graphql-ws-bridge/metrics"
	"github.com/bhoriuchi/graphql-ws-bridge/middleware"
	"github.com/bhoriuchi/graphql-ws-bridge/options"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.New(level, cfg.LogFormat, os.Stderr)

	m := metrics.New()
	srv, err := server.New(cfg,
		options.WithLogger(log),
		options.WithMetrics(m),
	)
	if err != nil {
		log.WithError(err).Errorf("failed to create server")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(cfg.UpgradeRate, cfg.UpgradeBurst, log)
	limiter.Match = server.IsWSUpgrade
	go sweepLimiter(ctx, limiter)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(cfg, srv, m, limiter, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.
			WithField("addr", cfg.ListenAddr).
			WithField("upstream", cfg.UpstreamURL).
			WithField("upstreamWS", cfg.UpstreamWSURL).
			Infof("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Errorf("server failed")
			return err
		}
	case <-ctx.Done():
	}

	log.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warnf("http shutdown incomplete")
	}
	if err := srv.Close(shutdownCtx); err != nil {
		log.WithError(err).Warnf("websocket connections did not close in time")
	}

	return nil
}

// sweepLimiter drops idle per-client limiters until ctx is done
func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup(limiterIdle)
		}
	}
}
