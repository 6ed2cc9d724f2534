package store

import (
	"context"

	"github.com/seikosantana/modbus-sim/internal/engine"
)

// Recorder journals scheduler executions under one run.
// It implements engine.Recorder.
type Recorder struct {
	store *Store
	runID string
}

var _ engine.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder that appends to runID.
func NewRecorder(s *Store, runID string) *Recorder {
	return &Recorder{store: s, runID: runID}
}

// RunID returns the run the recorder appends to.
func (r *Recorder) RunID() string {
	return r.runID
}

// Record writes every change of exec.
func (r *Recorder) Record(ctx context.Context, exec engine.Execution) error {
	return r.store.WriteExecution(ctx, r.runID, exec)
}
