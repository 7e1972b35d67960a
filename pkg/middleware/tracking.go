package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/tracking"
)

const (
	// UserIDHeader identifies the authenticated user.
	UserIDHeader = "X-User-ID"

	// ToolNameHeader names the tool a request invokes.
	ToolNameHeader = "X-Tool-Name"
)

// TrackingConfig configures the admission middleware.
type TrackingConfig struct {
	Tracker *tracking.RequestTracker

	// TrustProxyHeaders makes the middleware take the client IP from
	// X-Forwarded-For. Only enable behind a trusted proxy; the header is
	// attacker-controlled otherwise.
	TrustProxyHeaders bool

	Logger *slog.Logger
}

type deniedBody struct {
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	Dimension  string `json:"dimension,omitempty"`
	RetryAfter int64  `json:"retry_after_seconds,omitempty"`
}

// Tracking runs every request through the admission decision. Denied
// requests get a 429 with a JSON body and, when the denying limiter knows
// its reset, a Retry-After header. Admitted requests proceed and their final
// status and latency are folded back into the per-key statistics.
func Tracking(cfg TrackingConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := &tracking.RequestMetrics{
				Timestamp:     time.Now(),
				SourceIP:      clientIP(r, cfg.TrustProxyHeaders),
				UserID:        r.Header.Get(UserIDHeader),
				ToolName:      r.Header.Get(ToolNameHeader),
				Path:          r.URL.Path,
				Method:        r.Method,
				UserAgent:     r.UserAgent(),
				Referer:       r.Referer(),
				ContentLength: r.ContentLength,
			}

			ctx := r.Context()
			if m.UserID != "" {
				ctx = logging.WithUser(ctx, m.UserID)
			}
			if m.ToolName != "" {
				ctx = logging.WithTool(ctx, m.ToolName)
			}

			verdict := cfg.Tracker.TrackRequest(ctx, m)
			if !verdict.Allowed {
				writeDenied(w, verdict)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			m.StatusCode = rw.statusCode
			m.ResponseTimeMillis = time.Since(start).Milliseconds()
			cfg.Tracker.Finish(m)
		})
	}
}

func writeDenied(w http.ResponseWriter, v tracking.Verdict) {
	if v.RetryAfter > 0 {
		secs := int64(v.RetryAfter / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(deniedBody{
		Error:      "rate limit exceeded",
		Reason:     v.Reason,
		Dimension:  string(v.Dimension),
		RetryAfter: int64(v.RetryAfter / time.Second),
	})
}

// clientIP extracts the client address. With trusted proxy headers the
// first X-Forwarded-For entry wins; otherwise the connection's remote
// address is used.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := strings.TrimSpace(strings.Split(fwd, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
