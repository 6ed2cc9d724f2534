// Package engine implements the modbus-sim rule scheduler.
//
// The scheduler owns the lifecycle of one simulation: it starts the Modbus
// transport, validates the rule set, then applies rules to the served
// register bank forever, until its context is cancelled.
//
// ARCHITECTURE:
//
// Single-Goroutine Rule Loop:
// Rules run one at a time in declaration order, from one goroutine.
//   - rule N is applied, then the loop sleeps for rule N's delay
//   - then rule N+1 is applied, and so on, wrapping back to rule 1
//   - the effective period of any rule is the sum of all delays
//
// Register access from the loop and from Modbus clients is serialized by
// the bank's lock, one register at a time. A client can observe a range
// rule half applied.
//
// Startup:
//  1. Transport.Start; failure aborts with BIND_FAILED
//  2. empty rule set: warn, keep serving, never mutate
//  3. rules.Check; any violation aborts with INVALID_RULES
//
// Both aborts call the Terminator so the host can shut down.
//
// Time:
// All waiting goes through Clock.Sleep, which returns as soon as the
// context is done. Executions are stamped with a monotonic Sequence
// as well as Clock.Now, and the sequence is what orders the journal.
package engine
