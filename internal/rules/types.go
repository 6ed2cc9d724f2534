package rules

import (
	"fmt"
	"math"
	"time"
)

// MaxDelay is the longest wait a rule can express. Delays past it
// saturate instead of overflowing into a negative duration.
const MaxDelay = time.Duration(math.MaxInt64)

// Rule is a single increment rule.
//
// Without EndReg the rule targets StartReg alone and resets to
// InitialValue after reaching MaxValue. With EndReg every register in
// [StartReg, EndReg] counts modulo MaxValue+1 and InitialValue is not used.
type Rule struct {
	StartReg     int16  `json:"StartReg" yaml:"StartReg"`
	EndReg       *int16 `json:"EndReg,omitempty" yaml:"EndReg,omitempty"`
	InitialValue int16  `json:"InitialValue" yaml:"InitialValue"`
	MaxValue     int16  `json:"MaxValue" yaml:"MaxValue"`
	DelaySeconds int64  `json:"DelaySeconds" yaml:"DelaySeconds"`
}

// RuleSet is an ordered list of rules. Order is execution order.
type RuleSet []Rule

// IsRange reports whether the rule targets a register range.
func (r Rule) IsRange() bool {
	return r.EndReg != nil
}

// Delay returns the wait applied after the rule executes.
func (r Rule) Delay() time.Duration {
	if r.DelaySeconds > int64(MaxDelay/time.Second) {
		return MaxDelay
	}
	return time.Duration(r.DelaySeconds) * time.Second
}

// Bounds returns the first and last register index the rule touches.
// Both are equal for single-register rules.
func (r Rule) Bounds() (first, last int) {
	first = int(r.StartReg)
	last = first
	if r.EndReg != nil {
		last = int(*r.EndReg)
	}
	return first, last
}

// String renders the rule for logs.
func (r Rule) String() string {
	if r.EndReg != nil {
		return fmt.Sprintf("range[%d..%d] mod %d every %ds",
			r.StartReg, *r.EndReg, int32(r.MaxValue)+1, r.DelaySeconds)
	}
	return fmt.Sprintf("reg[%d] %d..%d every %ds",
		r.StartReg, r.InitialValue, r.MaxValue, r.DelaySeconds)
}

// Single returns a single-register rule.
func Single(reg, initial, max int16, delaySeconds int64) Rule {
	return Rule{
		StartReg:     reg,
		InitialValue: initial,
		MaxValue:     max,
		DelaySeconds: delaySeconds,
	}
}

// Range returns a range rule over [start, end].
func Range(start, end, initial, max int16, delaySeconds int64) Rule {
	return Rule{
		StartReg:     start,
		EndReg:       &end,
		InitialValue: initial,
		MaxValue:     max,
		DelaySeconds: delaySeconds,
	}
}

// Clone returns a copy of the set. EndReg pointers are duplicated so the
// copy shares no memory with the original.
func (rs RuleSet) Clone() RuleSet {
	if rs == nil {
		return nil
	}
	out := make(RuleSet, len(rs))
	for i, r := range rs {
		if r.EndReg != nil {
			end := *r.EndReg
			r.EndReg = &end
		}
		out[i] = r
	}
	return out
}

// TotalDelay is the wall-clock period of one full pass over the set.
func (rs RuleSet) TotalDelay() time.Duration {
	var total time.Duration
	for _, r := range rs {
		d := r.Delay()
		if total > MaxDelay-d {
			return MaxDelay
		}
		total += d
	}
	return total
}
