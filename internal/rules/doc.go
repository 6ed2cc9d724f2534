// Package rules defines simulation rules and their startup validation.
//
// A Rule declares which holding register(s) to mutate and how long the
// scheduler waits after applying it. A RuleSet is an ordered list of
// rules; its order is the execution order of the simulation loop.
//
// Validation is collect-all: every rule is checked against every
// invariant and all violations are reported together, each tagged with
// the rule's 1-based position in the set. An empty RuleSet is valid and
// puts the simulator in serve-only mode.
package rules
