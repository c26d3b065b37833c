package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Upstream call rate per source (geolocation, weather, news). Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per request. Watch for: p95 drift on the race policy, it decides the winner.
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts per source. Zero unless reliability.retry_max_attempts > 1.
	UpstreamRetriesTotal *prometheus.CounterVec

	// Upstream failures by category (transport, timeout, parse, api, circuit_open).
	UpstreamErrorsTotal *prometheus.CounterVec

	// One increment per geolocation endpoint probed, by endpoint host and result.
	GeolocationAttemptsTotal *prometheus.CounterVec

	// Location resolutions by outcome: resolved, cached, default. Watch for: default share rising.
	LocationResolutionsTotal *prometheus.CounterVec

	// Serve mode: background location refreshes by result (success, error).
	LocationRefreshTotal *prometheus.CounterVec

	// Serve mode: background location refresh latency.
	LocationRefreshDuration prometheus.Histogram

	// Briefing runs by policy and outcome (success, fallback_success, failure).
	BriefingRunsTotal *prometheus.CounterVec

	// End-to-end briefing latency per policy, including location resolution.
	BriefingDuration *prometheus.HistogramVec

	// Race winners. Watch for: which upstream is consistently faster.
	RaceWinnersTotal *prometheus.CounterVec

	// Location cache hits by cache type.
	CacheHitsTotal *prometheus.CounterVec

	// Location cache errors by operation (get, set).
	CacheErrorsTotal *prometheus.CounterVec

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions per component.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Serve mode: HTTP request rate. Watch for: sudden drops (service down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// Serve mode: HTTP request latency per route.
	HTTPRequestDuration *prometheus.HistogramVec

	// Serve mode: concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Serve mode: rate limit denials.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream HTTP calls",
		},
		[]string{"source", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream call latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamRetriesTotal",
			Help: "Total number of retry attempts for upstream calls",
		},
		[]string{"source"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Total number of upstream failures by error category",
		},
		[]string{"source", "category"},
	)
	GeolocationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geolocationAttemptsTotal",
			Help: "Geolocation endpoints probed, by endpoint host and result",
		},
		[]string{"endpoint", "result"},
	)
	LocationResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationResolutionsTotal",
			Help: "Location resolutions by outcome (resolved, cached, default)",
		},
		[]string{"outcome"},
	)
	LocationRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationRefreshTotal",
			Help: "Background location refreshes by result",
		},
		[]string{"result"},
	)
	LocationRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "locationRefreshDurationSeconds",
			Help:    "Background location refresh latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	BriefingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefingRunsTotal",
			Help: "Briefing runs by policy and outcome",
		},
		[]string{"policy", "outcome"},
	)
	BriefingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "briefingDurationSeconds",
			Help:    "Briefing latency in seconds, location resolution included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"policy"},
	)
	RaceWinnersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raceWinnersTotal",
			Help: "Race policy winners by upstream",
		},
		[]string{"winner"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of location cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of location cache errors by operation",
		},
		[]string{"operation"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal, UpstreamErrorsTotal,
		GeolocationAttemptsTotal, LocationResolutionsTotal,
		LocationRefreshTotal, LocationRefreshDuration,
		BriefingRunsTotal, BriefingDuration, RaceWinnersTotal,
		CacheHitsTotal, CacheErrorsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		RateLimitDeniedTotal,
	)
}

// RecordBriefing records the outcome and latency of one briefing run.
func RecordBriefing(policy, outcome string, d time.Duration) {
	BriefingRunsTotal.WithLabelValues(policy, outcome).Inc()
	BriefingDuration.WithLabelValues(policy).Observe(d.Seconds())
}

// RecordCircuitBreakerTransition counts a state change of the named breaker.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the current state gauge for the named breaker.
func SetCircuitBreakerStateGauge(component string, value float64) {
	CircuitBreakerState.WithLabelValues(component).Set(value)
}

// CircuitBreakerStateValue maps a breaker state ordinal to its gauge value.
func CircuitBreakerStateValue(state int) float64 {
	return float64(state)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
