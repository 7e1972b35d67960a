// Package config defines Ganymede's configuration surface.
//
// # Overview
//
// Configuration is loaded from a YAML file, filled with defaults, overridden
// by GANYMEDE_* environment variables, and validated as a whole. Validation
// collects every problem rather than stopping at the first, so one run of
// the validate command reports the full state of a config file.
//
// # Loading sequence
//
//  1. Parse YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides (LoadWithEnvOverrides only)
//  4. Validate the final configuration
//
// # Hot reload
//
// The FileWatcher watches the config file through fsnotify and debounces
// change bursts before invoking the reload callback. Reload semantics are
// the caller's: the server rebuilds a rules snapshot and applies it
// atomically, leaving runtime state (user assignments, time windows, block
// lists) untouched.
package config
