package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/local-briefing/internal/client"
	"github.com/kjstillabower/local-briefing/internal/models"
	"github.com/kjstillabower/local-briefing/internal/validation"
)

// Cache backends.
const (
	CacheBackendNone      = "none"
	CacheBackendInMemory  = "in_memory"
	CacheBackendMemcached = "memcached"
)

// PolicyEvery runs every policy in turn. It is only meaningful for the run command.
const PolicyEvery = "every"

// Config holds configuration loaded from YAML, .env and the environment.
type Config struct {
	Env string

	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	NewsAPIURL     string
	NewsAPITimeout time.Duration
	MaxHeadlines   int

	GeoEndpoints    []string
	GeoTimeout      time.Duration
	DefaultLocation models.Location

	DefaultPolicy  string
	RequestTimeout time.Duration

	CacheBackend          string
	CacheTTL              time.Duration
	RefreshInterval       time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	NewsAPI struct {
		URL          string `yaml:"url"`
		Timeout      string `yaml:"timeout"`
		MaxHeadlines int    `yaml:"max_headlines"`
	} `yaml:"news_api"`

	Geolocation struct {
		Endpoints []string `yaml:"endpoints"`
		Timeout   string   `yaml:"timeout"`
		Default   struct {
			City        string `yaml:"city"`
			Country     string `yaml:"country"`
			CountryCode string `yaml:"country_code"`
		} `yaml:"default"`
	} `yaml:"geolocation"`

	Briefing struct {
		DefaultPolicy  string `yaml:"default_policy"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"briefing"`

	Cache struct {
		Backend         string `yaml:"backend"`
		TTL             string `yaml:"ttl"`
		RefreshInterval string `yaml:"refresh_interval"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load builds the configuration. A .env file in the working directory is loaded first
// without overriding variables already set. If path is empty, config/{ENV_NAME}.yaml
// (default dev) is read when present; otherwise path must exist. The API key comes from
// WEATHER_API_KEY or weather_api_key in secrets.yaml next to the config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := path
	required := path != ""
	if !required {
		configPath = filepath.Join("config", env+".yaml")
	}

	var fc fileConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
		// Defaults reproduce the public endpoints; a config file is optional.
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("config file not found: %s", configPath)
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{Env: env}

	cfg.ServerPort = firstNonEmpty(os.Getenv("SERVER_PORT"), fc.Server.Port, "8080")

	apiKey, err := loadAPIKey(filepath.Join(filepath.Dir(configPath), "secrets.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.WeatherAPIKey = apiKey

	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.WeatherAPI.URL, client.DefaultWeatherURL)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)

	cfg.NewsAPIURL = firstNonEmpty(os.Getenv("NEWS_API_URL"), fc.NewsAPI.URL, client.DefaultNewsURL)
	cfg.NewsAPITimeout = parseDurationOrZero(fc.NewsAPI.Timeout, 10*time.Second)
	cfg.MaxHeadlines = fc.NewsAPI.MaxHeadlines

	cfg.GeoEndpoints = fc.Geolocation.Endpoints
	if v := os.Getenv("GEO_ENDPOINTS"); strings.TrimSpace(v) != "" {
		cfg.GeoEndpoints = splitList(v)
	}
	if len(cfg.GeoEndpoints) == 0 {
		cfg.GeoEndpoints = append([]string(nil), client.DefaultGeoEndpoints...)
	}
	cfg.GeoTimeout = parseDuration(fc.Geolocation.Timeout, 5*time.Second)
	cfg.DefaultLocation = models.DefaultLocation()
	if d := fc.Geolocation.Default; d.City != "" {
		cfg.DefaultLocation = models.Location{
			City:        d.City,
			Country:     d.Country,
			CountryCode: strings.ToLower(d.CountryCode),
		}
	}

	cfg.DefaultPolicy = firstNonEmpty(strings.ToLower(strings.TrimSpace(fc.Briefing.DefaultPolicy)), PolicyEvery)
	cfg.RequestTimeout = parseDuration(fc.Briefing.RequestTimeout, 30*time.Second)

	cfg.CacheBackend = firstNonEmpty(
		strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND"))),
		strings.TrimSpace(strings.ToLower(fc.Cache.Backend)),
		CacheBackendInMemory,
	)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.RefreshInterval = parseDuration(fc.Cache.RefreshInterval, 5*time.Minute)
	cfg.MemcachedAddrs = firstNonEmpty(
		strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")),
		strings.TrimSpace(fc.Cache.Memcached.Addrs),
		"localhost:11211",
	)
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerFailureThreshold = positiveOr(cb.FailureThreshold, 5)
	cfg.CircuitBreakerSuccessThreshold = positiveOr(cb.SuccessThreshold, 2)
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 10)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 20)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, time.Minute)
	cfg.DegradedErrorPct = positiveOr(fc.Health.DegradedErrorPct, 50)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIKey(secretsPath string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read secrets file: %w", err)
		}
		return "", fmt.Errorf("WEATHER_API_KEY required (set env, .env or %s weather_api_key)", secretsPath)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	if strings.TrimSpace(sec.WeatherAPIKey) == "" {
		return "", fmt.Errorf("WEATHER_API_KEY required (set env, .env or %s weather_api_key)", secretsPath)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative values are returned as-is so validate can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.NewsAPITimeout <= 0 {
		return fmt.Errorf("news_api.timeout must be positive")
	}
	if cfg.MaxHeadlines < 0 {
		return fmt.Errorf("news_api.max_headlines must not be negative")
	}
	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return fmt.Errorf("server.port must be numeric, got %q", cfg.ServerPort)
	}
	if _, err := validation.ValidateChoice("cache.backend", cfg.CacheBackend,
		CacheBackendNone, CacheBackendInMemory, CacheBackendMemcached); err != nil {
		return err
	}
	if _, err := validation.ValidateChoice("briefing.default_policy", cfg.DefaultPolicy,
		PolicyEvery, "sequential", "all", "race"); err != nil {
		return err
	}
	if _, err := validation.ValidateCountryCode(cfg.DefaultLocation.CountryCode); err != nil {
		return fmt.Errorf("geolocation.default.country_code: %w", err)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
