package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	if len(e.Trace) == 0 {
		fmt.Fprintf(&buf, "  (empty)\n")
	}
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] rule %d @%ds", event.Seq, event.Position, event.At)
		for _, ch := range event.Changes {
			fmt.Fprintf(&buf, " reg[%d] %d->%d", ch.Register, ch.Old, ch.New)
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means every assertion held.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertRegisterSequence:
		return assertRegisterSequence(result.Trace, a)
	case AssertFinalRegister:
		return assertFinalRegister(result, a)
	case AssertExecutionOrder:
		return assertExecutionOrder(result.Trace, a)
	case AssertExecutionTimes:
		return assertExecutionTimes(result.Trace, a)
	case AssertError:
		return assertError(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertRegisterSequence checks the exact list of values written to a
// register across the whole trace.
func assertRegisterSequence(trace []TraceEvent, a Assertion) error {
	var written []int16
	for _, event := range trace {
		for _, ch := range event.Changes {
			if ch.Register == a.Register {
				written = append(written, ch.New)
			}
		}
	}

	if !slices.Equal(written, a.Values) {
		return &AssertionError{
			Type:     AssertRegisterSequence,
			Expected: fmt.Sprintf("register %d written %v", a.Register, a.Values),
			Actual:   fmt.Sprintf("register %d written %v", a.Register, written),
			Trace:    trace,
		}
	}
	return nil
}

func assertFinalRegister(result *Result, a Assertion) error {
	v, ok := result.FinalValue(a.Register)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalRegister,
			Expected: fmt.Sprintf("register %d = %d", a.Register, *a.Value),
			Actual:   fmt.Sprintf("register %d is not preset or targeted by any rule", a.Register),
			Trace:    result.Trace,
		}
	}
	if v != *a.Value {
		return &AssertionError{
			Type:     AssertFinalRegister,
			Expected: fmt.Sprintf("register %d = %d", a.Register, *a.Value),
			Actual:   fmt.Sprintf("register %d = %d", a.Register, v),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertExecutionOrder(trace []TraceEvent, a Assertion) error {
	positions := make([]int, len(trace))
	for i, event := range trace {
		positions[i] = event.Position
	}

	if !slices.Equal(positions, a.Positions) {
		return &AssertionError{
			Type:     AssertExecutionOrder,
			Expected: fmt.Sprintf("rules %v", a.Positions),
			Actual:   fmt.Sprintf("rules %v", positions),
			Trace:    trace,
		}
	}
	return nil
}

func assertExecutionTimes(trace []TraceEvent, a Assertion) error {
	offsets := make([]int64, len(trace))
	for i, event := range trace {
		offsets[i] = event.At
	}

	if !slices.Equal(offsets, a.Offsets) {
		return &AssertionError{
			Type:     AssertExecutionTimes,
			Expected: fmt.Sprintf("offsets %v", a.Offsets),
			Actual:   fmt.Sprintf("offsets %v", offsets),
			Trace:    trace,
		}
	}
	return nil
}

func assertError(result *Result, a Assertion) error {
	actual := result.ErrorCode
	if actual == "" {
		actual = "none"
	}
	if actual != a.Code {
		return &AssertionError{
			Type:     AssertError,
			Expected: fmt.Sprintf("run ended with %s", a.Code),
			Actual:   fmt.Sprintf("run ended with %s", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}
