package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/local-briefing/internal/models"
	"github.com/kjstillabower/local-briefing/internal/observability"
	"github.com/kjstillabower/local-briefing/internal/service"
	"github.com/kjstillabower/local-briefing/internal/traffic"
)

func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var seen string
	var hasLogger bool
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
		hasLogger = observability.LoggerFromContext(r.Context(), nil) != nil
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("correlation id %q is not a uuid: %v", seen, err)
	}
	if got := w.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
	}
	if !hasLogger {
		t.Error("request context has no logger")
	}
}

func TestCorrelationIDMiddleware_ReusesHeader(t *testing.T) {
	var seen string
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if seen != "req-42" || w.Header().Get("X-Correlation-ID") != "req-42" {
		t.Errorf("seen = %q, header = %q, want req-42", seen, w.Header().Get("X-Correlation-ID"))
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	var during int64
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
		w.WriteHeader(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	if during < 1 {
		t.Errorf("in-flight during request = %d, want >= 1", during)
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[int]string{200: "2xx", 404: "4xx", 429: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	h := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if !hasDeadline {
		t.Error("request context has no deadline")
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	tracker := traffic.NewTracker(time.Minute)
	limiter := rate.NewLimiter(1, 2)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.NewNop()))
	router.Use(RateLimitMiddleware(limiter, tracker))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		var body errorBody
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode 429 response: %v", err)
		}
		if body.Error.Code != "RATE_LIMITED" {
			t.Errorf("error.code = %q, want RATE_LIMITED", body.Error.Code)
		}
		if body.Error.RequestID == "" {
			t.Error("error.requestId is empty")
		}
	}
	if n := tracker.RequestCount(time.Minute); n != 1 {
		t.Errorf("tracker.RequestCount() = %d, want 1 denial", n)
	}
	if errs, total := tracker.ErrorRate(time.Minute); errs != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), denials must not count", errs, total)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	h := RateLimitMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
}

func TestNewRouter_Routes(t *testing.T) {
	b := &mockBriefer{briefing: models.Briefing{Location: models.DefaultLocation()}}
	h, tracker := newTestHandler(b, nil)
	router := NewRouter(h, nil, tracker, time.Second, zap.NewNop())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/briefing?policy=all", http.StatusOK},
		{http.MethodGet, "/location", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/weather/seattle", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
	if len(b.calls) != 1 || b.calls[0].policy != service.PolicyAll {
		t.Errorf("calls = %+v, want one all-policy run", b.calls)
	}
}

func TestNewRouter_MetricsExposeBriefingRoute(t *testing.T) {
	h, tracker := newTestHandler(&mockBriefer{}, nil)
	router := NewRouter(h, nil, tracker, time.Second, zap.NewNop())
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/briefing", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `route="/briefing"`) {
		t.Error("metrics output has no /briefing route label")
	}
}

func TestNewRouter_TimeoutAppliesToBriefing(t *testing.T) {
	h, tracker := newTestHandler(&mockBriefer{block: true}, nil)
	router := NewRouter(h, nil, tracker, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/briefing", nil).WithContext(ctx))
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", w.Code)
	}
}
