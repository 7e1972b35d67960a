package rules

// Tier couples a base LimitRule with a scalar multiplier and an optional
// concurrent-request ceiling. User identities map onto tiers; the multiplier
// totally orders tiers, so a higher tier always yields limits at least as
// large as a lower one for the same base rule.
type Tier struct {
	// Name identifies the tier (bronze, silver, gold, platinum, admin).
	Name string `yaml:"name" json:"name"`

	// Rule is the base limit rule before any multiplier is applied.
	Rule LimitRule `yaml:"rule" json:"rule"`

	// Multiplier scales the base rule's rate fields. Must be >= 0;
	// 0 is an explicit deny-all tier.
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	// MaxConcurrent caps simultaneous in-flight requests for users in this
	// tier. Zero disables the cap.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
}

// Validate checks the tier's base rule and multiplier.
func (t Tier) Validate() error {
	if t.Name == "" {
		return ErrUnknownTier
	}
	if err := t.Rule.Validate(); err != nil {
		return err
	}
	if t.Multiplier < 0 {
		return ErrInvalidRule
	}
	return nil
}

// BaseLimit returns the tier's rule with its multiplier applied. This is the
// per-user limit before dynamic time windows are composed on top.
func (t Tier) BaseLimit() LimitRule {
	return t.Rule.scale(t.Multiplier)
}
