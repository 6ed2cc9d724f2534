package harness

import (
	"github.com/seikosantana/modbus-sim/internal/registers"
)

// TraceEvent is one rule execution as seen by the harness.
type TraceEvent struct {
	Seq      int64              `json:"seq"`
	Position int                `json:"rule"`
	At       int64              `json:"at"` // seconds since the virtual clock's epoch
	Changes  []registers.Change `json:"changes"`
}

// RegisterValue is one register of the final bank.
type RegisterValue struct {
	Register int   `json:"register"`
	Value    int16 `json:"value"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool `json:"pass"`

	// Trace contains every execution in order.
	Trace []TraceEvent `json:"trace"`

	// ErrorCode is the runtime error code the run ended with, empty after
	// a clean stop.
	ErrorCode string `json:"error,omitempty"`

	// Final holds the registers named by the scenario (preset or touched
	// by a rule) after the run, in ascending order.
	Final []RegisterValue `json:"final"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Final:  []RegisterValue{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an execution to the trace.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}

// FinalValue returns the final value of reg and whether the scenario
// tracked it.
func (r *Result) FinalValue(reg int) (int16, bool) {
	for _, rv := range r.Final {
		if rv.Register == reg {
			return rv.Value, true
		}
	}
	return 0, false
}
