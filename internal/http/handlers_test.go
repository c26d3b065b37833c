package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/local-briefing/internal/circuitbreaker"
	"github.com/kjstillabower/local-briefing/internal/lifecycle"
	"github.com/kjstillabower/local-briefing/internal/locator"
	"github.com/kjstillabower/local-briefing/internal/models"
	"github.com/kjstillabower/local-briefing/internal/service"
	"github.com/kjstillabower/local-briefing/internal/traffic"
)

type runCall struct {
	policy service.Policy
	loc    models.Location
	at     bool
}

type mockBriefer struct {
	briefing models.Briefing
	err      error
	block    bool // if set, Run blocks until ctx is done
	calls    []runCall
}

func (m *mockBriefer) Run(ctx context.Context, policy service.Policy) (models.Briefing, error) {
	m.calls = append(m.calls, runCall{policy: policy})
	return m.result(ctx, policy)
}

func (m *mockBriefer) RunAt(ctx context.Context, policy service.Policy, loc models.Location) (models.Briefing, error) {
	m.calls = append(m.calls, runCall{policy: policy, loc: loc, at: true})
	return m.result(ctx, policy)
}

func (m *mockBriefer) result(ctx context.Context, policy service.Policy) (models.Briefing, error) {
	if m.block {
		<-ctx.Done()
		return models.Briefing{}, ctx.Err()
	}
	b := m.briefing
	b.Policy = policy.String()
	return b, m.err
}

type mockResolver struct {
	res locator.Resolution
}

func (m *mockResolver) Resolve(ctx context.Context) locator.Resolution {
	return m.res
}

type pingerFunc func() error

func (f pingerFunc) Ping() error { return f() }

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func newTestHandler(b *mockBriefer, hc *HealthConfig) (*Handler, *traffic.Tracker) {
	tracker := traffic.NewTracker(time.Minute)
	res := &mockResolver{res: locator.Resolution{Location: models.DefaultLocation(), Source: "ip-api.com"}}
	return NewHandler(b, res, tracker, hc, zap.NewNop(), service.PolicyRace), tracker
}

func TestHandler_GetBriefing_Success(t *testing.T) {
	b := &mockBriefer{briefing: models.Briefing{
		ID:       "abc",
		Location: models.DefaultLocation(),
		Weather:  &models.WeatherReading{Temperature: 21.5, Condition: "clear sky"},
		Winner:   models.SourceWeather,
	}}
	h, tracker := newTestHandler(b, nil)

	req := httptest.NewRequest(http.MethodGet, "/briefing", nil)
	w := httptest.NewRecorder()
	h.GetBriefing(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var got models.Briefing
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Policy != "race" {
		t.Errorf("policy = %q, want default race", got.Policy)
	}
	if got.Winner != models.SourceWeather || got.Weather == nil || got.Weather.Temperature != 21.5 {
		t.Errorf("briefing = %+v", got)
	}
	if len(b.calls) != 1 || b.calls[0].at {
		t.Errorf("calls = %+v, want one Run", b.calls)
	}
	if errs, total := tracker.ErrorRate(time.Minute); errs != 0 || total != 1 {
		t.Errorf("tracker = (%d, %d), want (0, 1)", errs, total)
	}
}

func TestHandler_GetBriefing_PolicyParam(t *testing.T) {
	tests := []struct {
		query string
		want  service.Policy
	}{
		{"policy=sequential", service.PolicySequential},
		{"policy=all", service.PolicyAll},
		{"policy=wait-all", service.PolicyAll},
		{"policy=RACE", service.PolicyRace},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			b := &mockBriefer{}
			h, _ := newTestHandler(b, nil)
			w := httptest.NewRecorder()
			h.GetBriefing(w, httptest.NewRequest(http.MethodGet, "/briefing?"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if b.calls[0].policy != tt.want {
				t.Errorf("policy = %v, want %v", b.calls[0].policy, tt.want)
			}
		})
	}
}

func TestHandler_GetBriefing_BadRequest(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{"unknown policy", "policy=fastest", "INVALID_POLICY"},
		{"country without city", "country=za", "INVALID_LOCATION"},
		{"city with comma", "city=Cape%20Town,za", "INVALID_LOCATION"},
		{"bad country code", "city=Durban&country=zaf", "INVALID_LOCATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &mockBriefer{}
			h, _ := newTestHandler(b, nil)
			w := httptest.NewRecorder()
			h.GetBriefing(w, httptest.NewRequest(http.MethodGet, "/briefing?"+tt.query, nil))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var body errorBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("error.code = %q, want %q", body.Error.Code, tt.wantCode)
			}
			if len(b.calls) != 0 {
				t.Errorf("briefer called %d times, want 0", len(b.calls))
			}
		})
	}
}

func TestHandler_GetBriefing_LocationOverride(t *testing.T) {
	b := &mockBriefer{}
	h, _ := newTestHandler(b, nil)
	w := httptest.NewRecorder()
	h.GetBriefing(w, httptest.NewRequest(http.MethodGet, "/briefing?city=%20Cape%20Town%20&country=ZA", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := models.Location{City: "Cape Town", CountryCode: "za"}
	if len(b.calls) != 1 || !b.calls[0].at || b.calls[0].loc != want {
		t.Errorf("calls = %+v, want RunAt(%+v)", b.calls, want)
	}
}

func TestHandler_GetBriefing_UpstreamError(t *testing.T) {
	b := &mockBriefer{err: errors.New("fetch news: boom")}
	h, tracker := newTestHandler(b, nil)
	w := httptest.NewRecorder()
	h.GetBriefing(w, httptest.NewRequest(http.MethodGet, "/briefing", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "UPSTREAM_UNAVAILABLE" {
		t.Errorf("error.code = %q, want UPSTREAM_UNAVAILABLE", body.Error.Code)
	}
	if errs, total := tracker.ErrorRate(time.Minute); errs != 1 || total != 1 {
		t.Errorf("tracker = (%d, %d), want (1, 1)", errs, total)
	}
}

func TestHandler_GetBriefing_Timeout(t *testing.T) {
	b := &mockBriefer{block: true}
	h, _ := newTestHandler(b, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	w := httptest.NewRecorder()
	h.GetBriefing(w, httptest.NewRequest(http.MethodGet, "/briefing", nil).WithContext(ctx))

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", w.Code)
	}
}

func TestHandler_GetLocation(t *testing.T) {
	h, _ := newTestHandler(&mockBriefer{}, nil)
	w := httptest.NewRecorder()
	h.GetLocation(w, httptest.NewRequest(http.MethodGet, "/location", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got locator.Resolution
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Location != models.DefaultLocation() || got.Source != "ip-api.com" {
		t.Errorf("resolution = %+v", got)
	}
}

func openBreaker(t *testing.T, component string) *circuitbreaker.CircuitBreaker {
	t.Helper()
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Timeout: time.Hour, Component: component})
	_ = cb.Call(context.Background(), func() error { return errors.New("upstream down") })
	if cb.State() != circuitbreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}
	return cb
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func TestHandler_GetHealth_Healthy(t *testing.T) {
	hc := &HealthConfig{
		Breakers:  []*circuitbreaker.CircuitBreaker{circuitbreaker.New(circuitbreaker.Config{Component: "weather"})},
		Cache:     pingerFunc(func() error { return nil }),
		Lifecycle: lifecycle.New(),
		Version:   "1.2.3",
	}
	h, _ := newTestHandler(&mockBriefer{}, hc)
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeHealth(t, w)
	if body["status"] != "healthy" || body["version"] != "1.2.3" || body["service"] != "local-briefing" {
		t.Errorf("body = %v", body)
	}
	checks, _ := body["checks"].(map[string]interface{})
	if checks["weather"] != "healthy" || checks["cache"] != "healthy" {
		t.Errorf("checks = %v", checks)
	}
	if _, ok := body["uptime"]; !ok {
		t.Error("uptime missing")
	}
}

func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	lc := lifecycle.New()
	lc.SetShuttingDown(true)
	h, _ := newTestHandler(&mockBriefer{}, &HealthConfig{Lifecycle: lc})
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if body := decodeHealth(t, w); body["status"] != "shutting-down" {
		t.Errorf("status = %v, want shutting-down", body["status"])
	}
}

func TestHandler_GetHealth_OpenBreaker(t *testing.T) {
	hc := &HealthConfig{Breakers: []*circuitbreaker.CircuitBreaker{
		circuitbreaker.New(circuitbreaker.Config{Component: "weather"}),
		openBreaker(t, "news"),
	}}
	h, _ := newTestHandler(&mockBriefer{}, hc)
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	body := decodeHealth(t, w)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	checks, _ := body["checks"].(map[string]interface{})
	if checks["news"] != "unhealthy" || checks["weather"] != "healthy" {
		t.Errorf("checks = %v", checks)
	}
}

func TestHandler_GetHealth_ErrorRate(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		errors    int
		want      string
	}{
		{"no traffic", 0, 0, "healthy"},
		{"below threshold", 3, 1, "healthy"},
		{"at threshold", 1, 1, "degraded"},
		{"above threshold", 0, 2, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, tracker := newTestHandler(&mockBriefer{}, &HealthConfig{DegradedWindow: time.Minute, DegradedErrorPct: 50})
			for i := 0; i < tt.successes; i++ {
				tracker.RecordSuccess()
			}
			for i := 0; i < tt.errors; i++ {
				tracker.RecordError()
			}
			w := httptest.NewRecorder()
			h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if body := decodeHealth(t, w); body["status"] != tt.want {
				t.Errorf("status = %v, want %s", body["status"], tt.want)
			}
		})
	}
}

func TestHandler_GetHealth_CacheUnreachable(t *testing.T) {
	hc := &HealthConfig{Cache: pingerFunc(func() error { return errors.New("dial tcp: refused") })}
	h, _ := newTestHandler(&mockBriefer{}, hc)
	w := httptest.NewRecorder()
	h.GetHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	checks, _ := decodeHealth(t, w)["checks"].(map[string]interface{})
	if checks["cache"] != "unhealthy" {
		t.Errorf("checks[cache] = %v, want unhealthy", checks["cache"])
	}
}

func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	lc := lifecycle.New()
	h := NewHandler(&mockBriefer{}, &mockResolver{}, nil, &HealthConfig{Lifecycle: lc}, zap.New(core), service.PolicyRace)

	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	lc.SetShuttingDown(true)
	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "shutting-down" {
		t.Errorf("fields = %v", fields)
	}
}
