package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/tracking"
	"mercator-hq/ganymede/pkg/tracking/rules"
	"mercator-hq/ganymede/pkg/tracking/store"
)

// buildRulesManager translates the file configuration into a live rules
// manager: tier definitions, user assignments, tool rules, admins, and
// time windows.
func buildRulesManager(cfg *config.Config, logger *slog.Logger) (*rules.Manager, error) {
	mgr, err := rules.NewManager(rules.ManagerConfig{
		Tiers:       convertTiers(cfg.Tiers.Definitions),
		DefaultTier: cfg.Tiers.Default,
		Composition: rules.CompositionOrder(cfg.Tracking.CompositionOrder),
		HotReload:   cfg.Tracking.HotReloadEnabled(),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build rules manager: %w", err)
	}

	for user, tier := range cfg.Tracking.UserTiers {
		if err := mgr.AssignUserTier(user, tier); err != nil {
			return nil, fmt.Errorf("user %q: %w", user, err)
		}
	}
	for tool, rule := range cfg.Tracking.ToolLimits {
		if err := mgr.SetToolRule(tool, convertRule(rule)); err != nil {
			return nil, fmt.Errorf("tool %q: %w", tool, err)
		}
	}
	for _, admin := range cfg.Tracking.Admins {
		mgr.AddAdmin(admin)
	}
	for _, wc := range cfg.Tracking.TimeWindows {
		days, err := parseWeekdays(wc.Weekdays)
		if err != nil {
			return nil, fmt.Errorf("time window %q: %w", wc.Name, err)
		}
		w, err := rules.NewTimeWindow(wc.Start, wc.End, days, wc.Multiplier)
		if err != nil {
			return nil, fmt.Errorf("time window %q: %w", wc.Name, err)
		}
		if err := mgr.AddTimeWindow(wc.Name, w); err != nil {
			return nil, fmt.Errorf("time window %q: %w", wc.Name, err)
		}
	}

	return mgr, nil
}

// rulesSnapshot builds the reload payload from a freshly loaded
// configuration. Runtime state (user assignments, registered windows)
// is owned by the manager and survives the reload.
func rulesSnapshot(cfg *config.Config) rules.Snapshot {
	toolRules := make(map[string]rules.LimitRule, len(cfg.Tracking.ToolLimits))
	for tool, rule := range cfg.Tracking.ToolLimits {
		toolRules[tool] = convertRule(rule)
	}
	return rules.Snapshot{
		Tiers:       convertTiers(cfg.Tiers.Definitions),
		DefaultTier: cfg.Tiers.Default,
		ToolRules:   toolRules,
		Admins:      cfg.Tracking.Admins,
		Composition: rules.CompositionOrder(cfg.Tracking.CompositionOrder),
	}
}

func convertTiers(defs []config.TierConfig) []rules.Tier {
	tiers := make([]rules.Tier, 0, len(defs))
	for _, d := range defs {
		tiers = append(tiers, rules.Tier{
			Name:          d.Name,
			Rule:          convertRule(d.Rule),
			Multiplier:    d.Multiplier,
			MaxConcurrent: d.MaxConcurrent,
		})
	}
	return tiers
}

func convertRule(r config.LimitRuleConfig) rules.LimitRule {
	return rules.LimitRule{
		PerMinute:      r.PerMinute,
		PerHour:        r.PerHour,
		Burst:          r.Burst,
		PenaltySeconds: r.PenaltySeconds,
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		days = append(days, day)
	}
	return days, nil
}

// buildSharedStore connects the cross-instance counter backend when one
// is configured. Returns nil when the deployment is single-instance.
func buildSharedStore(cfg *config.Config) (store.Store, error) {
	if !cfg.Store.UseSharedStore {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.Store.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	return store.NewRedisStore(client,
		store.WithKeyPrefix(cfg.Store.KeyPrefix),
		store.WithCallTimeout(cfg.Store.CallTimeout),
	)
}

func trackerConfig(cfg *config.Config, shared store.Store) tracking.Config {
	return tracking.Config{
		IPCache:         cacheConfig(cfg.Tracking.IPCache),
		UserCache:       cacheConfig(cfg.Tracking.UserCache),
		ToolCache:       cacheConfig(cfg.Tracking.ToolCache),
		SharedStore:     shared,
		SharedDimension: tracking.Dimension(cfg.Store.SharedDimension),
		SharedWindow:    cfg.Store.SharedWindow,
		SharedLimit:     cfg.Store.SharedLimit,
		Fallback:        tracking.FallbackPolicy(cfg.Store.FallbackPolicy),
	}
}

func cacheConfig(c config.CacheSettings) tracking.CacheConfig {
	return tracking.CacheConfig{MaxSize: c.MaxSize, TTL: c.TTL}
}
