package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/seikosantana/modbus-sim/internal/engine"
	"github.com/seikosantana/modbus-sim/internal/logging"
	"github.com/seikosantana/modbus-sim/internal/registers"
	"github.com/seikosantana/modbus-sim/internal/testutil"
)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh bank with its own virtual clock and
// sequence, so the trace is identical on every run.
//
// Execution flow:
// 1. Create the bank and apply the presets
// 2. Run the scheduler until the execution budget is spent or it fails
// 3. Read back the registers the scenario names
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	bank := registers.NewBank(scenario.Registers)
	for reg, v := range scenario.Initial {
		if err := bank.Write(reg, v); err != nil {
			return nil, fmt.Errorf("preset register %d: %w", reg, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result := NewResult()
	rec := &traceRecorder{result: result, limit: scenario.Executions, cancel: cancel}
	if scenario.Executions == 0 {
		cancel()
	}

	sched := engine.New(&bankTransport{bank: bank}, scenario.Rules,
		engine.WithClock(testutil.NewVirtualClock()),
		engine.WithRecorder(rec),
		engine.WithTerminator(engine.TerminatorFunc(func(error) {})),
		engine.WithLogger(logging.Discard()),
	)

	err := sched.Run(ctx)
	var rerr *engine.RuntimeError
	switch {
	case errors.As(err, &rerr):
		result.ErrorCode = string(rerr.Code)
	case err != nil && !errors.Is(err, context.Canceled):
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	for _, reg := range trackedRegisters(scenario) {
		v, err := bank.Read(reg)
		if err != nil {
			return nil, fmt.Errorf("read register %d: %w", reg, err)
		}
		result.Final = append(result.Final, RegisterValue{Register: reg, Value: v})
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// trackedRegisters lists the in-bank registers that are preset or
// targeted by a rule, ascending.
func trackedRegisters(s *Scenario) []int {
	seen := make(map[int]bool)
	for reg := range s.Initial {
		seen[reg] = true
	}
	for _, r := range s.Rules {
		first, last := r.Bounds()
		for reg := max(first, 0); reg <= last && reg < s.Registers; reg++ {
			seen[reg] = true
		}
	}

	regs := make([]int, 0, len(seen))
	for reg := range seen {
		regs = append(regs, reg)
	}
	slices.Sort(regs)
	return regs
}

// bankTransport serves the bank in-process. Nothing listens.
type bankTransport struct {
	bank *registers.Bank
}

func (t *bankTransport) Start(string, int) error        { return nil }
func (t *bankTransport) Stop() error                    { return nil }
func (t *bankTransport) Registers() engine.RegisterView { return t.bank }

// traceRecorder appends executions to the result and cancels the run once
// limit executions have been seen.
type traceRecorder struct {
	result *Result
	limit  int
	cancel context.CancelFunc
}

func (r *traceRecorder) Record(_ context.Context, exec engine.Execution) error {
	r.result.AddTrace(TraceEvent{
		Seq:      exec.Seq,
		Position: exec.Position,
		At:       int64(exec.At.Sub(testutil.Epoch) / time.Second),
		Changes:  slices.Clone(exec.Changes),
	})
	if len(r.result.Trace) >= r.limit {
		r.cancel()
	}
	return nil
}
