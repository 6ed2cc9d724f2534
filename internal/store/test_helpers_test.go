package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/seikosantana/modbus-sim/internal/engine"
	"github.com/seikosantana/modbus-sim/internal/registers"
	"github.com/seikosantana/modbus-sim/internal/rules"
)

var testEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun starts a run with two rules.
func createTestRun(t *testing.T, s *Store, at time.Time) Run {
	t.Helper()
	rs := rules.RuleSet{
		rules.Single(1, 0, 3, 5),
		rules.Range(10, 12, 0, 2, 2),
	}
	run, err := s.StartRun(context.Background(), "0.0.0.0", 502, rs, at)
	if err != nil {
		t.Fatalf("StartRun() failed: %v", err)
	}
	return run
}

// createTestExecution builds an execution changing the given registers
// from 0 to 1.
func createTestExecution(seq int64, pos int, at time.Time, regs ...int) engine.Execution {
	changes := make([]registers.Change, 0, len(regs))
	for _, r := range regs {
		changes = append(changes, registers.Change{Register: r, Old: 0, New: 1})
	}
	return engine.Execution{Seq: seq, Position: pos, At: at, Changes: changes}
}
