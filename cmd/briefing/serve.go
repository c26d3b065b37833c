package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/local-briefing/internal/cache"
	"github.com/kjstillabower/local-briefing/internal/config"
	httphandler "github.com/kjstillabower/local-briefing/internal/http"
	"github.com/kjstillabower/local-briefing/internal/lifecycle"
	"github.com/kjstillabower/local-briefing/internal/service"
	"github.com/kjstillabower/local-briefing/internal/traffic"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve briefings over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*cfgFile)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(parent context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger
	lc := lifecycle.New()
	tracker := traffic.NewTracker(cfg.DegradedWindow)

	defaultPolicy := service.PolicyRace
	if cfg.DefaultPolicy != config.PolicyEvery {
		p, err := service.ParsePolicy(cfg.DefaultPolicy)
		if err != nil {
			return err
		}
		defaultPolicy = p
	}

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		Breakers:         a.breakers,
		Lifecycle:        lc,
		Version:          version,
	}
	if a.memcached != nil {
		healthConfig.Cache = a.memcached
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(a.service, a.locator, tracker, healthConfig, logger, defaultPolicy)
	router := httphandler.NewRouter(handler, limiter, tracker, cfg.RequestTimeout, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.CacheBackend != config.CacheBackendNone {
		refresher := cache.NewRefresher(a.locator, logger)
		go func() {
			if err := refresher.RefreshPeriodic(ctx, cfg.RefreshInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic location refresh stopped", zap.Error(err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			logger.Error("server", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}
	stop()

	logger.Info("graceful shutdown triggered")
	lc.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	logger.Info("shutdown complete", zap.Duration("uptime", lc.Uptime()))
	return nil
}
