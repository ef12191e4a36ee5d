package strategy

import (
	"strings"
)

// Exclusion decides which instruments are skipped before any analysis. A
// rule matches an instrument id exactly or its base currency
// ("BTC" matches "BTC-USDT" and "BTC-USDT-SWAP").
type Exclusion struct {
	rules []string
}

// DefaultExclusion excludes BTC pairs.
func DefaultExclusion() Exclusion {
	return NewExclusion([]string{"BTC-USDT", "BTC"})
}

// NewExclusion creates an exclusion from symbol rules.
func NewExclusion(symbols []string) Exclusion {
	rules := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			rules = append(rules, s)
		}
	}
	return Exclusion{rules: rules}
}

// Rules returns the normalised rules.
func (x Exclusion) Rules() []string {
	return x.rules
}

// Match returns the base currency of the rule that excludes instID.
func (x Exclusion) Match(instID string) (string, bool) {
	inst := strings.ToUpper(strings.TrimSpace(instID))
	base, _, _ := strings.Cut(inst, "-")
	for _, rule := range x.rules {
		if inst == rule || base == rule {
			ruleBase, _, _ := strings.Cut(rule, "-")
			return ruleBase, true
		}
	}
	return "", false
}
