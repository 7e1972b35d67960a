package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

// ====== Checker Tests ======

func TestChecker_ReadyWithNoChecks(t *testing.T) {
	c := New(0)
	status := c.CheckReadiness(context.Background())
	if status.Status != "ready" {
		t.Errorf("Status = %q, want ready", status.Status)
	}
}

func TestChecker_HealthyChecksPass(t *testing.T) {
	c := New(0)
	c.RegisterCheck("store", func(ctx context.Context) error { return nil })
	c.RegisterCheck("audit", func(ctx context.Context) error { return nil })

	status := c.CheckReadiness(context.Background())
	if status.Status != "ready" {
		t.Fatalf("Status = %q, want ready", status.Status)
	}
	if len(status.Checks) != 2 {
		t.Errorf("len(Checks) = %d, want 2", len(status.Checks))
	}
	if status.Checks["store"].Status != "ok" {
		t.Errorf("store check status = %q, want ok", status.Checks["store"].Status)
	}
}

func TestChecker_UnhealthyCheckDegrades(t *testing.T) {
	c := New(0)
	c.RegisterCheck("store", func(ctx context.Context) error {
		return errors.New("connection refused")
	})

	status := c.CheckReadiness(context.Background())
	if status.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", status.Status)
	}
	if status.Checks["store"].Message != "connection refused" {
		t.Errorf("Message = %q, want the check error", status.Checks["store"].Message)
	}
}

func TestChecker_SlowCheckTimesOut(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	status := c.CheckReadiness(context.Background())
	if status.Status != "degraded" {
		t.Errorf("Status = %q, want degraded for a timed-out check", status.Status)
	}
}

func TestChecker_UnregisterCheck(t *testing.T) {
	c := New(0)
	c.RegisterCheck("store", func(ctx context.Context) error { return nil })
	c.UnregisterCheck("store")
	if c.CheckCount() != 0 {
		t.Errorf("CheckCount() = %d, want 0", c.CheckCount())
	}
}

// ====== Endpoint Tests ======

func TestLivenessHandler(t *testing.T) {
	c := New(0)
	rec := httptest.NewRecorder()
	c.LivenessHandler()(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("Status = %q, want ok", status.Status)
	}
}

func TestReadinessHandler_DegradedReturns503(t *testing.T) {
	c := New(0)
	c.RegisterCheck("store", func(ctx context.Context) error {
		return errors.New("down")
	})

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != 503 {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestReadinessHandler_RejectsPost(t *testing.T) {
	c := New(0)
	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest("POST", "/ready", nil))
	if rec.Code != 405 {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc123", "2026-01-01")(rec, httptest.NewRequest("GET", "/version", nil))

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if info.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", info.Version)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion is empty")
	}
}
