package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/ganymede/pkg/tracking"
)

// Decision is one persisted admission decision.
type Decision struct {
	ID                 int64     `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	SourceIP           string    `json:"source_ip"`
	UserID             string    `json:"user_id,omitempty"`
	ToolName           string    `json:"tool_name,omitempty"`
	Path               string    `json:"path"`
	Method             string    `json:"method"`
	Allowed            bool      `json:"allowed"`
	Dimension          string    `json:"dimension,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	ResponseTimeMillis int64     `json:"response_time_ms"`
}

// Config configures the SQLite decision store.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// BufferSize is the in-memory decision buffer. When full, new
	// decisions are dropped. Default: 4096.
	BufferSize int

	// FlushInterval is how often buffered decisions are written out.
	// Default: 1 second.
	FlushInterval time.Duration

	// BusyTimeout is how long to wait for database locks. Default: 5s.
	BusyTimeout time.Duration

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 4096
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// SQLiteStore records admission decisions to a SQLite database. It
// implements tracking.Auditor.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	insertStmt *sql.Stmt
	pruneStmt  *sql.Stmt

	buf       chan Decision
	dropped   atomic.Int64
	flushTick time.Duration
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the decision database and starts the
// background flusher.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	cfg = cfg.withDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:        db,
		logger:    cfg.Logger.With("component", "audit"),
		buf:       make(chan Decision, cfg.BufferSize),
		flushTick: cfg.FlushInterval,
		done:      make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		source_ip TEXT NOT NULL,
		user_id TEXT,
		tool_name TEXT,
		path TEXT,
		method TEXT,
		allowed INTEGER NOT NULL,
		dimension TEXT,
		reason TEXT,
		response_time_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
	CREATE INDEX IF NOT EXISTS idx_decisions_user ON decisions(user_id);
	CREATE INDEX IF NOT EXISTS idx_decisions_ip ON decisions(source_ip);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.insertStmt, err = s.db.Prepare(`
		INSERT INTO decisions (ts, source_ip, user_id, tool_name, path, method, allowed, dimension, reason, response_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	s.pruneStmt, err = s.db.Prepare(`
		DELETE FROM decisions WHERE ts < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare prune statement: %w", err)
	}

	return nil
}

// RecordDecision buffers one decision for persistence. It never blocks: when
// the buffer is full the decision is dropped and counted.
func (s *SQLiteStore) RecordDecision(m *tracking.RequestMetrics, v tracking.Verdict) {
	d := Decision{
		Timestamp:          m.Timestamp,
		SourceIP:           m.SourceIP,
		UserID:             m.UserID,
		ToolName:           m.ToolName,
		Path:               m.Path,
		Method:             m.Method,
		Allowed:            v.Allowed,
		Dimension:          string(v.Dimension),
		Reason:             v.Reason,
		ResponseTimeMillis: m.ResponseTimeMillis,
	}

	select {
	case s.buf <- d:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of decisions lost to a full buffer.
func (s *SQLiteStore) Dropped() int64 {
	return s.dropped.Load()
}

// Flush writes all currently buffered decisions. Useful in tests and during
// shutdown; the background flusher makes routine calls unnecessary.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	batch := s.drainBuffer()
	if len(batch) == 0 {
		return nil
	}
	return s.writeBatch(ctx, batch)
}

func (s *SQLiteStore) drainBuffer() []Decision {
	var batch []Decision
	for {
		select {
		case d := <-s.buf:
			batch = append(batch, d)
		default:
			return batch
		}
	}
}

func (s *SQLiteStore) writeBatch(ctx context.Context, batch []Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt := tx.StmtContext(ctx, s.insertStmt)
	for _, d := range batch {
		allowed := 0
		if d.Allowed {
			allowed = 1
		}
		if _, err := stmt.ExecContext(ctx,
			d.Timestamp.UnixMilli(),
			d.SourceIP,
			d.UserID,
			d.ToolName,
			d.Path,
			d.Method,
			allowed,
			d.Dimension,
			d.Reason,
			d.ResponseTimeMillis,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert decision: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Error("audit flush failed", "error", err)
			}
		case <-s.done:
			// Final drain so shutdown does not lose the tail.
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Error("final audit flush failed", "error", err)
			}
			return
		}
	}
}

// Recent returns up to limit decisions, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, source_ip, user_id, tool_name, path, method, allowed, dimension, reason, response_time_ms
		FROM decisions ORDER BY ts DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d       Decision
			ts      int64
			allowed int
		)
		if err := rows.Scan(&d.ID, &ts, &d.SourceIP, &d.UserID, &d.ToolName,
			&d.Path, &d.Method, &allowed, &d.Dimension, &d.Reason,
			&d.ResponseTimeMillis); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		d.Timestamp = time.UnixMilli(ts)
		d.Allowed = allowed == 1
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// DeniedSince counts denials recorded at or after since.
func (s *SQLiteStore) DeniedSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM decisions WHERE allowed = 0 AND ts >= ?
	`, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count denials: %w", err)
	}
	return n, nil
}

// Prune deletes decisions older than the cutoff and returns how many were
// removed.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.pruneStmt.ExecContext(ctx, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(deleted), nil
}

// Close flushes remaining decisions and closes the database. Close is
// idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		if s.insertStmt != nil {
			s.insertStmt.Close()
		}
		if s.pruneStmt != nil {
			s.pruneStmt.Close()
		}
		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}
