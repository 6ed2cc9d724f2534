// Package harness replays rule scenarios against the simulation engine.
//
// A scenario declares a register bank, optional preset values, a rule
// set and how many rule executions to run. The harness drives a real
// engine.Scheduler over an in-process transport on a virtual clock, so
// every run produces the same trace and finishes instantly.
//
// # Scenario Format
//
//	name: coupled_timing
//	description: "Each rule waits for every other rule's delay"
//	registers: 16
//	initial:
//	  1: 0
//	rules:
//	  - StartReg: 1
//	    MaxValue: 100
//	    DelaySeconds: 5
//	  - StartReg: 2
//	    MaxValue: 100
//	    DelaySeconds: 10
//	executions: 5
//	assertions:
//	  - type: execution_order
//	    positions: [1, 2, 1, 2, 1]
//	  - type: execution_times
//	    offsets: [0, 5, 15, 20, 30]
//
// # Assertion Types
//
//   - register_sequence: the values written to a register, in order
//   - final_register: the value of a register after the run
//   - execution_order: the 1-based rule positions of the trace
//   - execution_times: seconds since start of every execution
//   - error: the runtime error code the run ended with
//
// # Golden Snapshots
//
// Snapshot renders a result as indented JSON. RunWithGolden compares it
// against testdata/golden/<name>.golden using goldie.
package harness
