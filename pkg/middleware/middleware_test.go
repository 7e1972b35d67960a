package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/tracking"
	"mercator-hq/ganymede/pkg/tracking/rules"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
}

func newTestTracker(t *testing.T, perMinute int) *tracking.RequestTracker {
	t.Helper()
	mgr, err := rules.NewManager(rules.ManagerConfig{
		Tiers: []rules.Tier{{
			Name:       "basic",
			Rule:       rules.LimitRule{PerMinute: perMinute, PerHour: 1000},
			Multiplier: 1.0,
		}},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return tracking.NewRequestTracker(tracking.Config{}, mgr, nil, nil)
}

// ====== Request ID Tests ======

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if seen == "" {
		t.Fatal("no request ID in context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}
}

func TestRequestID_PropagatesClientID(t *testing.T) {
	handler := RequestID(okHandler())
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "client-supplied" {
		t.Errorf("request ID = %q, want client-supplied", got)
	}
}

// ====== Recovery Tests ======

func TestRecovery_TurnsPanicInto500(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Error != "internal server error" {
		t.Errorf("Error = %q, want generic message", body.Error)
	}
}

func TestRecovery_PassesThroughNormally(t *testing.T) {
	handler := Recovery(nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// ====== Tracking Middleware Tests ======

func TestTracking_AllowsAndServes(t *testing.T) {
	handler := Tracking(TrackingConfig{Tracker: newTestTracker(t, 10)})(okHandler())

	req := httptest.NewRequest("GET", "/v1/query", nil)
	req.RemoteAddr = "192.0.2.1:40000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestTracking_DeniesWith429(t *testing.T) {
	tracker := newTestTracker(t, 2)
	handler := Tracking(TrackingConfig{Tracker: tracker})(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/v1/query", nil)
		req.RemoteAddr = "192.0.2.1:40000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("GET", "/v1/query", nil)
	req.RemoteAddr = "192.0.2.1:40000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var body deniedBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if body.Error != "rate limit exceeded" {
		t.Errorf("Error = %q, want rate limit exceeded", body.Error)
	}
	if body.Dimension == "" {
		t.Error("denial body missing dimension")
	}
}

func TestTracking_RetryAfterHeaderOnPenalty(t *testing.T) {
	mgr, err := rules.NewManager(rules.ManagerConfig{
		Tiers: []rules.Tier{{
			Name:       "strict",
			Rule:       rules.LimitRule{PerMinute: 1, PerHour: 100, PenaltySeconds: 45},
			Multiplier: 1.0,
		}},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	tracker := tracking.NewRequestTracker(tracking.Config{}, mgr, nil, nil)
	handler := Tracking(TrackingConfig{Tracker: tracker})(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/v1/query", nil)
		req.RemoteAddr = "192.0.2.1:40000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i == 1 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("status = %d, want 429", rec.Code)
			}
			if rec.Header().Get("Retry-After") == "" {
				t.Error("denial missing Retry-After header")
			}
		}
	}
}

func TestTracking_BlockedIPDenied(t *testing.T) {
	tracker := newTestTracker(t, 100)
	tracker.BlockIP("192.0.2.9", "abuse")
	handler := Tracking(TrackingConfig{Tracker: tracker})(okHandler())

	req := httptest.NewRequest("GET", "/v1/query", nil)
	req.RemoteAddr = "192.0.2.9:40000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

// ====== Client IP Tests ======

func TestClientIP_ForwardedForTrusted(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := clientIP(req, true); got != "203.0.113.7" {
		t.Errorf("clientIP(trusted) = %q, want 203.0.113.7", got)
	}
	if got := clientIP(req, false); got != "10.0.0.1" {
		t.Errorf("clientIP(untrusted) = %q, want 10.0.0.1", got)
	}
}
