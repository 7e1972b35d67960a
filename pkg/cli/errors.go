package cli

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/ganymede/pkg/config"
)

// ConfigError reports that a configuration file could not be loaded. When
// the cause is a config.ValidationError the individual field errors are
// listed one per line, so a single run shows the operator every problem.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	var verr config.ValidationError
	if errors.As(e.Err, &verr) && len(verr.Errors) > 0 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "invalid configuration %s (%d errors):", e.Path, len(verr.Errors))
		for _, fe := range verr.Errors {
			fmt.Fprintf(&sb, "\n  - %s: %s", fe.Field, fe.Message)
		}
		return sb.String()
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// FieldErrors returns the per-field validation failures, or nil when the
// cause was not a validation error.
func (e *ConfigError) FieldErrors() []config.FieldError {
	var verr config.ValidationError
	if errors.As(e.Err, &verr) {
		return verr.Errors
	}
	return nil
}

// NewConfigError wraps err as a ConfigError for the given config file path.
func NewConfigError(path string, err error) *ConfigError {
	return &ConfigError{Path: path, Err: err}
}

// CommandError tags an error with the subcommand that produced it.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("ganymede %s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err as a CommandError for the given subcommand.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}
