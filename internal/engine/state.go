package engine

import "sync/atomic"

// State is a scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateValidating
	StateRunning
	StateStopping
	StateStopped
	StateAborted
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateStarting:   "starting",
	StateValidating: "validating",
	StateRunning:    "running",
	StateStopping:   "stopping",
	StateStopped:    "stopped",
	StateAborted:    "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateAborted
}

// MarshalText renders the state name, so JSON output carries "running"
// rather than a number.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State {
	return State(b.v.Load())
}

func (b *stateBox) store(s State) {
	b.v.Store(int32(s))
}
