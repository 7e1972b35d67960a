package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/tracking"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(Config{
		Path:          filepath.Join(t.TempDir(), "audit.db"),
		FlushInterval: time.Hour, // tests flush explicitly
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDecision(user string, allowed bool, at time.Time) (*tracking.RequestMetrics, tracking.Verdict) {
	m := &tracking.RequestMetrics{
		Timestamp: at,
		SourceIP:  "192.0.2.1",
		UserID:    user,
		Path:      "/v1/query",
		Method:    "POST",
	}
	v := tracking.Verdict{Allowed: allowed}
	if !allowed {
		v.Dimension = tracking.DimensionUser
		v.Reason = "user rate limit exceeded"
	}
	return m, v
}

// ====== Record and Query Tests ======

func TestSQLiteStore_RecordAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.RecordDecision(testDecision("bruno", true, now.Add(-2*time.Second)))
	s.RecordDecision(testDecision("bruno", false, now.Add(-time.Second)))
	s.RecordDecision(testDecision("gilda", true, now))
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	decisions, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(decisions) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(decisions))
	}
	if decisions[0].UserID != "gilda" {
		t.Errorf("newest decision UserID = %q, want gilda", decisions[0].UserID)
	}
	if decisions[1].Allowed {
		t.Error("denied decision read back as allowed")
	}
	if decisions[1].Reason != "user rate limit exceeded" {
		t.Errorf("Reason = %q, want the denial reason", decisions[1].Reason)
	}
}

func TestSQLiteStore_DeniedSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.RecordDecision(testDecision("bruno", false, now.Add(-2*time.Hour)))
	s.RecordDecision(testDecision("bruno", false, now))
	s.RecordDecision(testDecision("bruno", true, now))
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	n, err := s.DeniedSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeniedSince() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeniedSince() = %d, want 1", n)
	}
}

func TestSQLiteStore_Prune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.RecordDecision(testDecision("bruno", true, now.Add(-48*time.Hour)))
	s.RecordDecision(testDecision("bruno", true, now))
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	deleted, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() deleted = %d, want 1", deleted)
	}

	decisions, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(decisions) != 1 {
		t.Errorf("len(Recent()) after prune = %d, want 1", len(decisions))
	}
}

func TestSQLiteStore_DropsWhenBufferFull(t *testing.T) {
	s, err := NewSQLiteStore(Config{
		Path:          filepath.Join(t.TempDir(), "audit.db"),
		BufferSize:    2,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for i := 0; i < 5; i++ {
		s.RecordDecision(testDecision("bruno", true, time.Now()))
	}
	if s.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", s.Dropped())
	}
}

func TestSQLiteStore_CloseFlushesTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := NewSQLiteStore(Config{Path: path, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	s.RecordDecision(testDecision("bruno", true, time.Now()))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteStore(Config{Path: path, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	decisions, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(decisions) != 1 {
		t.Errorf("len(Recent()) after reopen = %d, want 1", len(decisions))
	}
}

// ====== Scheduler Tests ======

func TestScheduler_EmptyScheduleIsNoop(t *testing.T) {
	s := newTestStore(t)
	sched := NewScheduler(s, RetentionConfig{}, nil)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sched.IsRunning() {
		t.Error("IsRunning() = true without a schedule")
	}
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	s := newTestStore(t)
	sched := NewScheduler(s, RetentionConfig{Schedule: "not a cron", RetentionDays: 7}, nil)
	if err := sched.Start(context.Background()); err == nil {
		t.Error("Start() accepted an invalid cron expression")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestStore(t)
	sched := NewScheduler(s, RetentionConfig{Schedule: "0 3 * * *", RetentionDays: 30}, nil)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !sched.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if sched.NextRun() == nil {
		t.Error("NextRun() = nil while running")
	}

	sched.Stop()
	if sched.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}
