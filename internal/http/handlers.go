package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/local-briefing/internal/cache"
	"github.com/kjstillabower/local-briefing/internal/circuitbreaker"
	"github.com/kjstillabower/local-briefing/internal/lifecycle"
	"github.com/kjstillabower/local-briefing/internal/locator"
	"github.com/kjstillabower/local-briefing/internal/models"
	"github.com/kjstillabower/local-briefing/internal/observability"
	"github.com/kjstillabower/local-briefing/internal/service"
	"github.com/kjstillabower/local-briefing/internal/traffic"
	"github.com/kjstillabower/local-briefing/internal/validation"
)

const (
	cityMinLen = 1
	cityMaxLen = 100
)

// Briefer runs an orchestration policy. *service.BriefingService implements it.
type Briefer interface {
	Run(ctx context.Context, policy service.Policy) (models.Briefing, error)
	RunAt(ctx context.Context, policy service.Policy, loc models.Location) (models.Briefing, error)
}

// Resolver returns the current location. *locator.Locator implements it.
type Resolver interface {
	Resolve(ctx context.Context) locator.Resolution
}

// HealthConfig holds the inputs of the health decision.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// Cache, when set, is pinged to report cache reachability. Used when backend is memcached.
	Cache     cache.Pinger
	Breakers  []*circuitbreaker.CircuitBreaker
	Lifecycle *lifecycle.Lifecycle
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	briefer          Briefer
	resolver         Resolver
	tracker          *traffic.Tracker
	healthConfig     *HealthConfig
	defaultPolicy    service.Policy
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. defaultPolicy is used when /briefing has no policy parameter.
func NewHandler(
	briefer Briefer,
	resolver Resolver,
	tracker *traffic.Tracker,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	defaultPolicy service.Policy,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	return &Handler{
		briefer:       briefer,
		resolver:      resolver,
		tracker:       tracker,
		healthConfig:  healthConfig,
		defaultPolicy: defaultPolicy,
		logger:        logger,
	}
}

// GetBriefing handles GET /briefing?policy=&city=&country=.
// Without city the located position is used and the default-location fallback applies.
func (h *Handler) GetBriefing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	policy := h.defaultPolicy
	if raw := q.Get("policy"); raw != "" {
		p, err := service.ParsePolicy(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_POLICY", err.Error())
			return
		}
		policy = p
	}

	loc, override, ok := h.parseLocation(w, r)
	if !ok {
		return
	}

	var (
		b   models.Briefing
		err error
	)
	if override {
		b, err = h.briefer.RunAt(r.Context(), policy, loc)
	} else {
		b, err = h.briefer.Run(r.Context(), policy)
	}
	if err != nil {
		if h.tracker != nil {
			h.tracker.RecordError()
		}
		writeServiceError(w, r, err)
		return
	}
	if h.tracker != nil {
		h.tracker.RecordSuccess()
	}
	writeJSON(w, http.StatusOK, b)
}

// parseLocation reads the optional city/country override. It writes a 400 and returns
// ok=false when the input is invalid.
func (h *Handler) parseLocation(w http.ResponseWriter, r *http.Request) (loc models.Location, override, ok bool) {
	q := r.URL.Query()
	rawCity, rawCountry := q.Get("city"), q.Get("country")
	if strings.TrimSpace(rawCity) == "" {
		if strings.TrimSpace(rawCountry) != "" {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "country requires city")
			return models.Location{}, false, false
		}
		return models.Location{}, false, true
	}

	city, err := validation.ValidateCity(rawCity, cityMinLen, cityMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return models.Location{}, false, false
	}
	loc.City = city
	if strings.TrimSpace(rawCountry) != "" {
		code, err := validation.ValidateCountryCode(rawCountry)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
			return models.Location{}, false, false
		}
		loc.CountryCode = code
	}
	return loc, true, true
}

// GetLocation handles GET /location.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.resolver.Resolve(r.Context()))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	for _, cb := range h.healthConfig.Breakers {
		if cb.State() == circuitbreaker.StateOpen {
			checks[cb.Component()] = "unhealthy"
		} else {
			checks[cb.Component()] = "healthy"
		}
	}
	if h.healthConfig.Cache != nil {
		if h.healthConfig.Cache.Ping() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	version := h.healthConfig.Version
	if version == "" {
		version = "dev"
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "local-briefing",
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig.Lifecycle != nil {
		resp["uptime"] = h.healthConfig.Lifecycle.Uptime().Truncate(time.Second).String()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > open circuit breaker > error rate breach > healthy.
// A failing cache ping is reported in checks but does not degrade: the locator works without it.
func (h *Handler) computeHealthStatus() healthResult {
	if h.healthConfig.Lifecycle != nil && h.healthConfig.Lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	for _, cb := range h.healthConfig.Breakers {
		if cb.State() == circuitbreaker.StateOpen {
			return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open:" + cb.Component()}
		}
	}
	if h.tracker != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := h.tracker.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 && errs*100 >= h.healthConfig.DegradedErrorPct*total {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError writes 503 for orchestration failures, or 504 when the request deadline
// expired first. The underlying error is logged at DEBUG.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Briefing timed out")
	} else {
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to build briefing")
	}
	observability.LoggerFromContext(r.Context(), zap.NewNop()).Debug("briefing failed", zap.Error(err))
}
