package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/middleware"
	"mercator-hq/ganymede/pkg/telemetry/health"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/tracking"
	"mercator-hq/ganymede/pkg/tracking/audit"
)

// Options carries optional server dependencies.
type Options struct {
	// Logger is the base logger. Defaults to slog.Default().
	Logger *slog.Logger

	// Handler is the application surface placed behind the tracking
	// middleware. Defaults to a simple JSON status handler so the
	// service is probe-able before an application is mounted.
	Handler http.Handler

	// ConfigPath enables hot reload of tier definitions, tool rules,
	// and admin overrides when tracking.hot_reload is set. Empty
	// disables file watching.
	ConfigPath string

	// Version metadata reported by /version.
	Version   string
	Commit    string
	BuildTime string
}

// Server is the tracked HTTP service.
type Server struct {
	config  *config.Config
	options Options
	logger  *slog.Logger

	tracker   *tracking.RequestTracker
	collector *metrics.Collector
	checker   *health.Checker

	auditStore     *audit.SQLiteStore
	auditScheduler *audit.Scheduler

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New builds a fully wired server from a validated configuration.
func New(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	collector := metrics.NewCollector(metrics.Config{
		Enabled:   cfg.Telemetry.Metrics.Enabled,
		Namespace: cfg.Telemetry.Metrics.Namespace,
		Subsystem: cfg.Telemetry.Metrics.Subsystem,
	}, nil)

	rulesMgr, err := buildRulesManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	sharedStore, err := buildSharedStore(cfg)
	if err != nil {
		return nil, err
	}

	tracker := tracking.NewRequestTracker(trackerConfig(cfg, sharedStore), rulesMgr, collector, logger)

	s := &Server{
		config:       cfg,
		options:      opts,
		logger:       logger,
		tracker:      tracker,
		collector:    collector,
		checker:      health.New(0),
		shutdownChan: make(chan struct{}),
	}

	if cfg.Audit.Enabled {
		auditStore, err := audit.NewSQLiteStore(audit.Config{
			Path:          cfg.Audit.SQLitePath,
			BufferSize:    cfg.Audit.BufferSize,
			FlushInterval: cfg.Audit.FlushInterval,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		s.auditStore = auditStore
		tracker.SetAuditor(auditStore)

		if cfg.Audit.PruneSchedule != "" {
			s.auditScheduler = audit.NewScheduler(auditStore, audit.RetentionConfig{
				Schedule:      cfg.Audit.PruneSchedule,
				RetentionDays: cfg.Audit.RetentionDays,
			}, logger)
		}

		s.checker.RegisterCheck("audit", func(ctx context.Context) error {
			_, err := auditStore.Recent(ctx, 1)
			return err
		})
	}

	return s, nil
}

// Tracker exposes the request tracker for embedding callers.
func (s *Server) Tracker() *tracking.RequestTracker {
	return s.tracker
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.auditScheduler != nil {
		if err := s.auditScheduler.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start audit retention: %w", err)
		}
	}

	if s.config.Tracking.HotReloadEnabled() && s.options.ConfigPath != "" {
		fw, err := config.NewFileWatcher(s.options.ConfigPath, s.logger)
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		go fw.Watch(runCtx, s.applyReload)
	}

	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"address", s.config.Server.ListenAddress,
			"audit_enabled", s.config.Audit.Enabled,
			"shared_store", s.config.Store.UseSharedStore,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// applyReload pushes a freshly loaded configuration into the running
// rules manager. Only the rule surface changes; caches, counters, and the
// listener keep their state.
func (s *Server) applyReload(cfg *config.Config) {
	if err := s.tracker.Rules().Reload(rulesSnapshot(cfg)); err != nil {
		s.logger.Error("rules reload rejected", "error", err)
		return
	}
	s.logger.Info("rules reloaded",
		"tiers", len(cfg.Tiers.Definitions),
		"tool_rules", len(cfg.Tracking.ToolLimits),
	)
}

// Shutdown gracefully stops the server, flushing the audit trail before
// the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		if s.auditScheduler != nil {
			s.auditScheduler.Stop()
		}
		if s.auditStore != nil {
			if err := s.auditStore.Close(); err != nil {
				s.logger.Error("error closing audit store", "error", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether Start has been called and Shutdown has not
// completed.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the complete route tree, usable directly in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Admin API.
	mux.HandleFunc("GET /admin/stats", s.handleStats)
	mux.HandleFunc("GET /admin/stats/ip", s.handleIPStats)
	mux.HandleFunc("GET /admin/stats/user", s.handleUserStats)
	mux.HandleFunc("GET /admin/stats/tool", s.handleToolStats)
	mux.HandleFunc("POST /admin/block", s.handleBlock)
	mux.HandleFunc("POST /admin/unblock", s.handleUnblock)
	mux.HandleFunc("POST /admin/tier", s.handleSetTier)
	mux.HandleFunc("POST /admin/tools", s.handleSetToolLimits)
	mux.HandleFunc("GET /admin/audit/recent", s.handleAuditRecent)

	// Operational endpoints.
	if s.config.Telemetry.Metrics.Enabled {
		mux.Handle("GET "+s.config.Telemetry.Metrics.Path, s.collector.Handler())
	}
	mux.Handle("GET /healthz", s.checker.LivenessHandler())
	mux.Handle("GET /readyz", s.checker.ReadinessHandler())
	mux.Handle("GET /version", health.VersionHandler(s.options.Version, s.options.Commit, s.options.BuildTime))

	// Tracked application surface.
	app := s.options.Handler
	if app == nil {
		app = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}` + "\n"))
		})
	}
	tracked := middleware.Tracking(middleware.TrackingConfig{
		Tracker:           s.tracker,
		TrustProxyHeaders: s.config.Server.TrustProxyHeaders,
		Logger:            s.logger,
	})(app)
	mux.Handle("/", tracked)

	var handler http.Handler = mux
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(s.logger)(handler)
	return handler
}

// requestTimeout bounds admin queries against the audit store.
const requestTimeout = 10 * time.Second
