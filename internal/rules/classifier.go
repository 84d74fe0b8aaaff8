package rules

import (
	"fmt"

	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/models"
)

// Classifier evaluates the rule table in order and returns the first match.
// It is stateless after construction and safe for concurrent use.
type Classifier struct {
	rules  []Rule
	logger *logging.Logger
}

// NewClassifier creates a classifier using the built-in rule table.
// A non-empty precedence list reorders the rules by name; every name must
// reference a known rule and every rule must be named exactly once, so a
// precedence list can reorder but never silently drop a rule.
func NewClassifier(precedence []string) (*Classifier, error) {
	defaults := DefaultRules()

	if len(precedence) == 0 {
		return &Classifier{rules: defaults, logger: logging.GetLogger("rules")}, nil
	}

	byName := make(map[string]Rule, len(defaults))
	for _, r := range defaults {
		byName[r.Name] = r
	}

	if len(precedence) != len(defaults) {
		return nil, fmt.Errorf("rule precedence must list all %d rules, got %d", len(defaults), len(precedence))
	}

	ordered := make([]Rule, 0, len(precedence))
	seen := make(map[string]bool, len(precedence))
	for _, name := range precedence {
		r, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown rule %q in precedence list", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("rule %q listed twice in precedence list", name)
		}
		seen[name] = true
		ordered = append(ordered, r)
	}

	return &Classifier{rules: ordered, logger: logging.GetLogger("rules")}, nil
}

// Classify runs the rule table against the input. Returns the verdict of
// the first matching rule, or ok=false when no rule applies and the device
// must go to the oracle.
//
// A device with no evidence at all is healthy by definition and resolves
// to a NORMAL verdict without consulting the table.
func (c *Classifier) Classify(in Input) (Verdict, bool) {
	if len(in.Messages) == 0 {
		return Verdict{
			Status:     models.StatusNormal,
			Reason:     "No active alerts detected.",
			ImpactType: "NONE",
			Confidence: 1.0,
		}, true
	}

	for _, r := range c.rules {
		if verdict, ok := r.Apply(in); ok {
			c.logger.Debug("device %s resolved by rule %q", in.DeviceID, r.Name)
			return verdict, true
		}
	}
	return Verdict{}, false
}

// RuleNames returns the names of the rules in evaluation order.
func (c *Classifier) RuleNames() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}
