package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seikosantana/modbus-sim/internal/registers"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Position: 1, At: 0, Changes: []registers.Change{{Register: 1, Old: 0, New: 1}}},
		{Seq: 2, Position: 2, At: 5, Changes: []registers.Change{
			{Register: 4, Old: 0, New: 1},
			{Register: 5, Old: 0, New: 1},
		}},
		{Seq: 3, Position: 1, At: 15, Changes: []registers.Change{{Register: 1, Old: 1, New: 2}}},
	}
}

func TestAssertRegisterSequence(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertRegisterSequence(trace, Assertion{Register: 1, Values: []int16{1, 2}}))
	assert.NoError(t, assertRegisterSequence(trace, Assertion{Register: 5, Values: []int16{1}}))

	err := assertRegisterSequence(trace, Assertion{Register: 1, Values: []int16{1}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "register 1 written [1 2]")
}

func TestAssertExecutionOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertExecutionOrder(trace, Assertion{Positions: []int{1, 2, 1}}))
	assert.Error(t, assertExecutionOrder(trace, Assertion{Positions: []int{1, 1, 2}}))
	assert.NoError(t, assertExecutionOrder(nil, Assertion{Positions: []int{}}))
}

func TestAssertExecutionTimes(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertExecutionTimes(trace, Assertion{Offsets: []int64{0, 5, 15}}))

	err := assertExecutionTimes(trace, Assertion{Offsets: []int64{0, 5, 10}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: offsets [0 5 15]")
}

func TestAssertError(t *testing.T) {
	clean := NewResult()
	assert.NoError(t, assertError(clean, Assertion{Code: "none"}))
	assert.Error(t, assertError(clean, Assertion{Code: "OUT_OF_RANGE"}))

	failed := NewResult()
	failed.ErrorCode = "OUT_OF_RANGE"
	assert.NoError(t, assertError(failed, Assertion{Code: "OUT_OF_RANGE"}))

	err := assertError(failed, Assertion{Code: "none"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "run ended with OUT_OF_RANGE")
}

func TestEvaluateAssertions_CollectsAll(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertExecutionOrder, Positions: []int{2}},
		{Type: AssertExecutionTimes, Offsets: []int64{0, 5, 15}},
		{Type: AssertError, Code: "INVALID_RULES"},
	})
	assert.Len(t, errs, 2)
}

func TestAssertionError_EmptyTrace(t *testing.T) {
	err := &AssertionError{Type: AssertError, Expected: "a", Actual: "b"}
	assert.Contains(t, err.Error(), "(empty)")
}
