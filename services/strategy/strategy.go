// Package strategy defines executable strategy specifications: a named entry
// rule over indicator columns, plus the indicator set the rule needs. A Spec
// that made it past New always carries a parsed, column-checked rule.
package strategy

import (
	"fmt"

	"github.com/google/uuid"

	"quantlab/services/indicator"
	"quantlab/services/rule"
)

// InvalidStrategyError reports a malformed rule or a reference to an
// indicator column that is not available.
type InvalidStrategyError struct {
	Strategy string
	Reason   string
	Err      error
}

func (e *InvalidStrategyError) Error() string {
	msg := fmt.Sprintf("invalid strategy %q: %s", e.Strategy, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidStrategyError) Unwrap() error { return e.Err }

// Spec is an immutable strategy specification. The rule holds a long
// position while it evaluates true.
type Spec struct {
	ID         uuid.UUID
	Name       string
	RuleText   string
	Rule       rule.Expr
	Indicators []indicator.Spec
}

// New parses ruleText and verifies every column it references is derivable
// from the declared indicators or the base OHLCV columns.
func New(name, ruleText string, indicators []indicator.Spec) (*Spec, error) {
	if name == "" {
		return nil, &InvalidStrategyError{Strategy: name, Reason: "name is empty"}
	}
	expr, err := rule.Parse(ruleText)
	if err != nil {
		return nil, &InvalidStrategyError{Strategy: name, Reason: "rule does not parse", Err: err}
	}

	available := indicator.BaseColumns()
	for _, s := range indicators {
		if err := s.Validate(); err != nil {
			return nil, &InvalidStrategyError{Strategy: name, Reason: "bad indicator spec", Err: err}
		}
		available = append(available, s.Columns()...)
	}
	if err := rule.Validate(expr, available); err != nil {
		return nil, &InvalidStrategyError{Strategy: name, Reason: "rule references undeclared columns", Err: err}
	}

	return &Spec{
		ID:         uuid.New(),
		Name:       name,
		RuleText:   ruleText,
		Rule:       expr,
		Indicators: append([]indicator.Spec(nil), indicators...),
	}, nil
}

// RequiredColumns lists the columns the rule reads, sorted.
func (s *Spec) RequiredColumns() []string { return rule.Columns(s.Rule) }

// Validate re-checks the rule against a concrete set of available columns,
// typically those of a computed frame.
func (s *Spec) Validate(available []string) error {
	if err := rule.Validate(s.Rule, available); err != nil {
		return &InvalidStrategyError{Strategy: s.Name, Reason: "rule references columns missing from the dataset", Err: err}
	}
	return nil
}
