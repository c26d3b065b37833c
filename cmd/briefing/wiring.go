package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/local-briefing/internal/cache"
	"github.com/kjstillabower/local-briefing/internal/circuitbreaker"
	"github.com/kjstillabower/local-briefing/internal/client"
	"github.com/kjstillabower/local-briefing/internal/config"
	"github.com/kjstillabower/local-briefing/internal/locator"
	"github.com/kjstillabower/local-briefing/internal/observability"
	"github.com/kjstillabower/local-briefing/internal/service"
)

// app is the wired dependency graph shared by run and serve.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	locator   *locator.Locator
	service   *service.BriefingService
	breakers  []*circuitbreaker.CircuitBreaker
	memcached *cache.MemcachedCache
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	retry := client.RetryPolicy{
		Attempts:  cfg.RetryAttempts,
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL,
		client.Options{Timeout: cfg.WeatherAPITimeout, Retry: retry})
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	newsClient := client.NewPostsClient(cfg.NewsAPIURL, cfg.MaxHeadlines,
		client.Options{Timeout: cfg.NewsAPITimeout, Retry: retry})

	a := &app{cfg: cfg, logger: logger}

	if cfg.CircuitBreakerEnabled {
		weatherCB := newBreaker(cfg, "weather_api")
		newsCB := newBreaker(cfg, "news_api")
		weatherClient.SetCircuitBreaker(weatherCB)
		newsClient.SetCircuitBreaker(newsCB)
		a.breakers = append(a.breakers, weatherCB, newsCB)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	sources := make([]locator.Source, 0, len(cfg.GeoEndpoints))
	for _, ep := range cfg.GeoEndpoints {
		sources = append(sources, client.NewGeoClient(strings.TrimSpace(ep), client.Options{Timeout: cfg.GeoTimeout}))
	}
	a.locator = locator.New(sources, cfg.DefaultLocation, logger)

	switch cfg.CacheBackend {
	case config.CacheBackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		a.memcached = mc
		a.locator.SetCache(mc, cfg.CacheTTL)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case config.CacheBackendInMemory:
		a.locator.SetCache(cache.NewInMemoryCache(), cfg.CacheTTL)
		logger.Info("cache backend: in_memory")
	default:
		logger.Info("cache backend: none")
	}

	a.service = service.NewBriefingService(a.locator, weatherClient, newsClient, logger)
	return a, nil
}

func newBreaker(cfg *config.Config, component string) *circuitbreaker.CircuitBreaker {
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		IsFailure:        client.IsUpstreamFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(component, observability.CircuitBreakerStateValue(int(to)))
		},
	})
	observability.SetCircuitBreakerStateGauge(component, 0)
	return cb
}

func (a *app) close() {
	if a.memcached != nil {
		if err := a.memcached.Close(); err != nil {
			a.logger.Error("memcached close", zap.Error(err))
		}
	}
	// Sync on stderr returns EINVAL on some platforms.
	_ = observability.FlushTelemetry(context.Background(), a.logger)
}

// setup creates the logger, loads configuration and wires the app.
func setup(cfgFile string) (*app, error) {
	logger, err := observability.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Error("config", zap.Error(err))
		return nil, err
	}
	a, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("startup", zap.Error(err))
		return nil, err
	}
	return a, nil
}
