package rules

import (
	"fmt"
	"strings"
)

// Validation error codes (E200-E299)
const (
	ErrDelayNotPositive    = "E201" // DelaySeconds must be > 0
	ErrStartRegNotPositive = "E202" // StartReg must be > 0
	ErrEndRegNotAfterStart = "E203" // EndReg must be > StartReg when set
	ErrMaxBelowInitial     = "E204" // MaxValue must be >= InitialValue
)

// Violation is a single broken invariant of one rule.
type Violation struct {
	Position int    `json:"position"` // 1-based index in the RuleSet
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// Error implements the error interface.
func (v Violation) Error() string {
	return fmt.Sprintf("[%s] at rule %d: %s", v.Code, v.Position, v.Message)
}

// ValidationError carries every violation found in a RuleSet.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid rule: " + e.Violations[0].Error()
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("%d rule violations: %s", len(e.Violations), strings.Join(msgs, "; "))
}

// Positions returns the distinct 1-based positions of invalid rules in
// ascending order.
func (e *ValidationError) Positions() []int {
	var out []int
	seen := make(map[int]bool)
	for _, v := range e.Violations {
		if !seen[v.Position] {
			seen[v.Position] = true
			out = append(out, v.Position)
		}
	}
	return out
}

// Validate checks every rule in the set and returns all violations.
// Returns nil when the set is valid, including when it is empty.
func Validate(rs RuleSet) []Violation {
	var violations []Violation
	for i, r := range rs {
		violations = append(violations, validateRule(i+1, r)...)
	}
	return violations
}

// Check is Validate with an error result. Returns nil for a valid set,
// otherwise a *ValidationError.
func Check(rs RuleSet) error {
	violations := Validate(rs)
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

func validateRule(pos int, r Rule) []Violation {
	var errs []Violation

	if r.DelaySeconds <= 0 {
		errs = append(errs, Violation{
			Position: pos,
			Field:    "DelaySeconds",
			Code:     ErrDelayNotPositive,
			Message:  fmt.Sprintf("DelaySeconds must be greater than 0, got %d", r.DelaySeconds),
		})
	}

	if r.StartReg <= 0 {
		errs = append(errs, Violation{
			Position: pos,
			Field:    "StartReg",
			Code:     ErrStartRegNotPositive,
			Message:  fmt.Sprintf("StartReg must be greater than 0, got %d", r.StartReg),
		})
	}

	if r.EndReg != nil && *r.EndReg <= r.StartReg {
		errs = append(errs, Violation{
			Position: pos,
			Field:    "EndReg",
			Code:     ErrEndRegNotAfterStart,
			Message:  fmt.Sprintf("EndReg must be greater than StartReg if defined, got %d <= %d", *r.EndReg, r.StartReg),
		})
	}

	if r.MaxValue < r.InitialValue {
		errs = append(errs, Violation{
			Position: pos,
			Field:    "MaxValue",
			Code:     ErrMaxBelowInitial,
			Message:  fmt.Sprintf("MaxValue must not be less than InitialValue, got %d < %d", r.MaxValue, r.InitialValue),
		})
	}

	return errs
}
