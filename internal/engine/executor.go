package engine

import (
	"errors"

	"github.com/seikosantana/modbus-sim/internal/registers"
	"github.com/seikosantana/modbus-sim/internal/rules"
)

// ErrZeroModulus is returned by Executor.Apply for a range rule whose
// MaxValue is -1.
var ErrZeroModulus = errors.New("range rule modulus is zero")

// RegisterView is synchronized access to the register bank, as handed out
// by the transport. Modify must run fn under an exclusive lock covering
// that one register.
type RegisterView interface {
	Len() int
	Modify(index int, fn func(old int16) int16) (registers.Change, error)
}

// Executor applies rule mutations to a register view.
type Executor struct {
	view RegisterView
}

// NewExecutor creates an executor bound to view.
func NewExecutor(view RegisterView) *Executor {
	return &Executor{view: view}
}

// Apply runs one rule against the bank and returns the changes in
// ascending register order.
//
// Errors are not recovered here: a *registers.RangeError (matching
// registers.ErrOutOfRange) for registers outside the bank, ErrZeroModulus
// for a range rule with MaxValue -1. In both cases nothing is written.
func (e *Executor) Apply(rule rules.Rule) ([]registers.Change, error) {
	if !rule.IsRange() {
		return e.applySingle(rule)
	}
	return e.applyRange(rule)
}

// applySingle increments StartReg by one, resetting to InitialValue once
// the current value equals MaxValue. No modulo: values past MaxValue keep
// counting (with int16 wraparound) until they come back to it.
func (e *Executor) applySingle(rule rules.Rule) ([]registers.Change, error) {
	ch, err := e.view.Modify(int(rule.StartReg), func(v int16) int16 {
		if v == rule.MaxValue {
			return rule.InitialValue
		}
		return v + 1
	})
	if err != nil {
		return nil, err
	}
	return []registers.Change{ch}, nil
}

// applyRange sets every register in [StartReg, EndReg] to
// (v+1) mod (MaxValue+1). InitialValue is not consulted.
func (e *Executor) applyRange(rule rules.Rule) ([]registers.Change, error) {
	first, last := rule.Bounds()
	modulus := int32(rule.MaxValue) + 1
	if modulus == 0 {
		return nil, ErrZeroModulus
	}
	// Whole range is checked up front so a bad rule writes nothing.
	if size := e.view.Len(); first < 0 || last >= size {
		return nil, &registers.RangeError{Index: first, Count: last - first + 1, Size: size}
	}

	changes := make([]registers.Change, 0, last-first+1)
	for r := first; r <= last; r++ {
		ch, err := e.view.Modify(r, func(v int16) int16 {
			return int16((int32(v) + 1) % modulus)
		})
		if err != nil {
			return changes, err
		}
		changes = append(changes, ch)
	}
	return changes, nil
}
