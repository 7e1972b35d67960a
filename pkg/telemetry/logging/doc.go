// Package logging configures structured logging for Ganymede.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging with JSON, text, and console formats
//   - Context-aware logging with request IDs and identity metadata
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    // handle invalid configuration
//	}
//	logger.Info("server starting", "addr", ":8080")
//
// Components derive their own loggers with With so every line carries a
// component field:
//
//	trackerLog := logger.With("component", "tracking")
package logging
