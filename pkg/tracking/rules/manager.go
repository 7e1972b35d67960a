package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Manager is the configuration-resolution engine. It owns tier definitions,
// user tier assignments, tool rules, dynamic time windows, and admin
// overrides, and composes them into effective limits per decision.
//
// All methods are safe to call concurrently with in-flight limit checks;
// mutations take effect for every subsequently evaluated request.
type Manager struct {
	mu sync.RWMutex

	tiers       map[string]Tier
	userTiers   map[string]string
	toolRules   map[string]LimitRule
	admins      map[string]struct{}
	windows     []namedWindow
	composition CompositionOrder
	defaultTier string
	hotReload   bool

	logger *slog.Logger
}

type namedWindow struct {
	name   string
	window TimeWindow
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Tiers is the initial tier set. At least one tier is required.
	Tiers []Tier

	// DefaultTier is the tier applied to users without an explicit
	// assignment. Must name a tier in Tiers.
	DefaultTier string

	// Composition selects how simultaneously-active window multipliers
	// combine. Defaults to ComposeRegistrationOrder.
	Composition CompositionOrder

	// HotReload records whether configuration changes are applied to the
	// running process. Reported through MonitoringStats.
	HotReload bool

	Logger *slog.Logger
}

// MonitoringStats is a read-only snapshot of the manager's configuration
// surface.
type MonitoringStats struct {
	TotalTiers        int    `json:"total_tiers"`
	ActiveRules       int    `json:"active_rules"`
	AdminOverrides    int    `json:"admin_overrides"`
	ActiveTimeWindows int    `json:"active_time_windows"`
	AssignedUsers     int    `json:"assigned_users"`
	CompositionOrder  string `json:"composition_order"`
	HotReloadEnabled  bool   `json:"hot_reload_enabled"`
}

// NewManager creates a configuration manager. Every tier is validated; an
// invalid tier is a construction error, never silently dropped.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("%w: at least one tier is required", ErrInvalidRule)
	}

	tiers := make(map[string]Tier, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("tier %q: %w", t.Name, err)
		}
		tiers[t.Name] = t
	}

	defaultTier := cfg.DefaultTier
	if defaultTier == "" {
		defaultTier = lowestTier(tiers)
	}
	if _, ok := tiers[defaultTier]; !ok {
		return nil, fmt.Errorf("%w: default tier %q", ErrUnknownTier, defaultTier)
	}

	composition := cfg.Composition
	if composition == "" {
		composition = ComposeRegistrationOrder
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		tiers:       tiers,
		userTiers:   make(map[string]string),
		toolRules:   make(map[string]LimitRule),
		admins:      make(map[string]struct{}),
		composition: composition,
		defaultTier: defaultTier,
		hotReload:   cfg.HotReload,
		logger:      logger.With("component", "rules.manager"),
	}, nil
}

// lowestTier returns the name of the tier with the smallest multiplier,
// breaking ties by name for determinism.
func lowestTier(tiers map[string]Tier) string {
	names := make([]string, 0, len(tiers))
	for name := range tiers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := tiers[names[i]], tiers[names[j]]
		if a.Multiplier != b.Multiplier {
			return a.Multiplier < b.Multiplier
		}
		return a.Name < b.Name
	})
	return names[0]
}

// ============================================================================
// Tiered limits
// ============================================================================

// SetTier adds or replaces a tier definition. Last write wins.
func (m *Manager) SetTier(t Tier) error {
	if err := t.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[t.Name] = t
	return nil
}

// AssignUserTier maps a user onto a tier. Assigning to an unknown tier is a
// validation error and leaves the previous assignment untouched.
func (m *Manager) AssignUserTier(userID, tierName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tiers[tierName]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tierName)
	}
	m.userTiers[userID] = tierName
	return nil
}

// UserTier returns the tier a user resolves to, falling back to the default
// tier for unassigned users.
func (m *Manager) UserTier(userID string) Tier {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.userTiers[userID]
	if !ok {
		name = m.defaultTier
	}
	return m.tiers[name]
}

// UserLimitRule returns the user's base rule with the tier multiplier
// applied. Dynamic time windows are not composed here; see EffectiveUserLimit.
func (m *Manager) UserLimitRule(userID string) LimitRule {
	return m.UserTier(userID).BaseLimit()
}

// ============================================================================
// Dynamic limits
// ============================================================================

// AddTimeWindow registers a named window. Registering an existing name
// replaces it in place, preserving its composition position.
func (m *Manager) AddTimeWindow(name string, w TimeWindow) error {
	if name == "" {
		return fmt.Errorf("%w: window name is required", ErrInvalidWindow)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, nw := range m.windows {
		if nw.name == name {
			m.windows[i].window = w
			return nil
		}
	}
	m.windows = append(m.windows, namedWindow{name: name, window: w})
	return nil
}

// RemoveTimeWindow drops a named window. Unknown names are a no-op.
func (m *Manager) RemoveTimeWindow(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, nw := range m.windows {
		if nw.name == name {
			m.windows = append(m.windows[:i], m.windows[i+1:]...)
			return
		}
	}
}

// EffectiveLimit composes the named tier's base rule with the tier multiplier
// and every time window active at the given instant. The result is computed
// fresh on every call; window activation is time-dependent, so caching it
// would serve stale limits.
func (m *Manager) EffectiveLimit(tierName string, at time.Time) (LimitRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tier, ok := m.tiers[tierName]
	if !ok {
		return LimitRule{}, fmt.Errorf("%w: %q", ErrUnknownTier, tierName)
	}

	return tier.Rule.scale(tier.Multiplier * m.windowMultiplierLocked(at)), nil
}

// EffectiveUserLimit resolves the user's tier and composes the effective
// limit for the given instant.
func (m *Manager) EffectiveUserLimit(userID string, at time.Time) LimitRule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name, ok := m.userTiers[userID]
	if !ok {
		name = m.defaultTier
	}
	tier := m.tiers[name]

	return tier.Rule.scale(tier.Multiplier * m.windowMultiplierLocked(at))
}

// windowMultiplierLocked computes the composed multiplier of all windows
// active at the given instant. Caller must hold at least a read lock.
func (m *Manager) windowMultiplierLocked(at time.Time) float64 {
	switch m.composition {
	case ComposeMostRestrictive:
		min := 1.0
		matched := false
		for _, nw := range m.windows {
			if nw.window.ActiveAt(at) {
				if !matched || nw.window.Multiplier() < min {
					min = nw.window.Multiplier()
				}
				matched = true
			}
		}
		return min
	default:
		// Registration order, multiplicative.
		mult := 1.0
		for _, nw := range m.windows {
			if nw.window.ActiveAt(at) {
				mult *= nw.window.Multiplier()
			}
		}
		return mult
	}
}

// ============================================================================
// Tool limits
// ============================================================================

// SetToolRule adds or replaces a per-tool rule. The rule is validated first;
// an invalid rule leaves the existing one untouched.
func (m *Manager) SetToolRule(tool string, rule LimitRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolRules[tool] = rule
	return nil
}

// ToolRule returns the rule for a tool and whether one is configured.
// Time window multipliers compose onto tool rules the same way they do onto
// tier rules.
func (m *Manager) ToolRule(tool string, at time.Time) (LimitRule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.toolRules[tool]
	if !ok {
		return LimitRule{}, false
	}
	return rule.scale(m.windowMultiplierLocked(at)), true
}

// ============================================================================
// Overrides
// ============================================================================

// AddAdmin marks an identity as an admin override. Idempotent.
func (m *Manager) AddAdmin(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[userID] = struct{}{}
}

// RemoveAdmin drops an admin override. Idempotent.
func (m *Manager) RemoveAdmin(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.admins, userID)
}

// IsAdmin reports whether the identity bypasses every quota check. This is a
// pure predicate: independent of call order and repetition.
func (m *Manager) IsAdmin(userID string) bool {
	if userID == "" {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.admins[userID]
	return ok
}

// ============================================================================
// Monitoring
// ============================================================================

// MonitoringStats reports the configuration surface: tier count, active
// rules, admin override count, and whether hot reload is enabled.
func (m *Manager) MonitoringStats() MonitoringStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitoringStats{
		TotalTiers:        len(m.tiers),
		ActiveRules:       len(m.tiers) + len(m.toolRules),
		AdminOverrides:    len(m.admins),
		ActiveTimeWindows: len(m.windows),
		AssignedUsers:     len(m.userTiers),
		CompositionOrder:  string(m.composition),
		HotReloadEnabled:  m.hotReload,
	}
}

// Snapshot is a replacement configuration applied atomically by Reload.
type Snapshot struct {
	Tiers       []Tier
	DefaultTier string
	ToolRules   map[string]LimitRule
	Admins      []string
	Composition CompositionOrder
}

// Reload atomically replaces tier definitions, tool rules, and admin
// overrides from a validated snapshot. User tier assignments and registered
// time windows survive a reload: they are runtime state, not file
// configuration. Invalid snapshots are rejected whole; a reload never
// partially applies.
func (m *Manager) Reload(snap Snapshot) error {
	if len(snap.Tiers) == 0 {
		return fmt.Errorf("%w: at least one tier is required", ErrInvalidRule)
	}

	tiers := make(map[string]Tier, len(snap.Tiers))
	for _, t := range snap.Tiers {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tier %q: %w", t.Name, err)
		}
		tiers[t.Name] = t
	}

	defaultTier := snap.DefaultTier
	if defaultTier == "" {
		defaultTier = lowestTier(tiers)
	}
	if _, ok := tiers[defaultTier]; !ok {
		return fmt.Errorf("%w: default tier %q", ErrUnknownTier, defaultTier)
	}

	toolRules := make(map[string]LimitRule, len(snap.ToolRules))
	for tool, rule := range snap.ToolRules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("tool %q: %w", tool, err)
		}
		toolRules[tool] = rule
	}

	admins := make(map[string]struct{}, len(snap.Admins))
	for _, id := range snap.Admins {
		admins[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tiers = tiers
	m.defaultTier = defaultTier
	m.toolRules = toolRules
	m.admins = admins
	if snap.Composition != "" {
		m.composition = snap.Composition
	}

	m.logger.Info("configuration reloaded",
		"tiers", len(tiers),
		"tool_rules", len(toolRules),
		"admins", len(admins),
	)
	return nil
}
