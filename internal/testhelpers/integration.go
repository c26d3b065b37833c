//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjstillabower/local-briefing/internal/cache"
	"github.com/kjstillabower/local-briefing/internal/client"
	"github.com/kjstillabower/local-briefing/internal/locator"
	"github.com/kjstillabower/local-briefing/internal/models"
	"github.com/kjstillabower/local-briefing/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	WeatherURL    string
	NewsURL       string
	GeoEndpoints  []string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	geo := client.DefaultGeoEndpoints
	if v := os.Getenv("GEO_ENDPOINTS"); v != "" {
		geo = strings.Split(v, ",")
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		WeatherURL:    envOr("WEATHER_API_URL", client.DefaultWeatherURL),
		NewsURL:       envOr("NEWS_API_URL", client.DefaultNewsURL),
		GeoEndpoints:  geo,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// SetupIntegrationService wires real clients, a locator and the briefing service.
// Returns the service, the locator and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.BriefingService, *locator.Locator, func()) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	opts := client.Options{Timeout: 10 * time.Second}

	weather, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.WeatherURL, opts)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	news := client.NewPostsClient(cfg.NewsURL, 0, opts)

	sources := make([]locator.Source, 0, len(cfg.GeoEndpoints))
	for _, ep := range cfg.GeoEndpoints {
		sources = append(sources, client.NewGeoClient(strings.TrimSpace(ep), client.Options{Timeout: 5 * time.Second}))
	}
	loc := locator.New(sources, models.Location{}, logger)

	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			loc.SetCache(mc, time.Minute)
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
			loc.SetCache(cache.NewInMemoryCache(), time.Minute)
		}
	} else {
		loc.SetCache(cache.NewInMemoryCache(), time.Minute)
	}

	return service.NewBriefingService(loc, weather, news, logger), loc, cleanup
}
