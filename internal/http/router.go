package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/local-briefing/internal/observability"
	"github.com/kjstillabower/local-briefing/internal/traffic"
)

// NewRouter registers the serve-mode routes. Rate limiting and the request timeout apply to
// /briefing only; /location, /health and /metrics stay reachable under load.
func NewRouter(h *Handler, limiter *rate.Limiter, tracker *traffic.Tracker, requestTimeout time.Duration, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware)

	briefing := r.PathPrefix("/briefing").Subrouter()
	briefing.Use(RateLimitMiddleware(limiter, tracker))
	if requestTimeout > 0 {
		briefing.Use(TimeoutMiddleware(requestTimeout))
	}
	briefing.HandleFunc("", h.GetBriefing).Methods(http.MethodGet)

	r.HandleFunc("/location", h.GetLocation).Methods(http.MethodGet)
	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	return r
}
