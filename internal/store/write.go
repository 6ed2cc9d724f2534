package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seikosantana/modbus-sim/internal/engine"
	"github.com/seikosantana/modbus-sim/internal/rules"
)

// Run is one serve session.
type Run struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	BindAddress string        `json:"bind_address"`
	Port        int           `json:"port"`
	RuleCount   int           `json:"rule_count"`
	Rules       rules.RuleSet `json:"rules"`
	Fingerprint string        `json:"fingerprint"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	EndReason   string        `json:"end_reason,omitempty"`
}

// Mutation is one register change made by one execution.
type Mutation struct {
	RunID    string    `json:"run_id"`
	Seq      int64     `json:"seq"`
	Position int       `json:"rule"`
	Register int       `json:"register"`
	Old      int16     `json:"old"`
	New      int16     `json:"new"`
	At       time.Time `json:"at"`
}

// StartRun inserts a new run and returns it. The id is a UUIDv7, so ids
// sort in creation order.
func (s *Store) StartRun(ctx context.Context, bindAddress string, port int, rs rules.RuleSet, at time.Time) (Run, error) {
	rulesJSON, err := marshalRules(rs)
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	fp, err := rules.Fingerprint(rs)
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}

	run := Run{
		ID:          uuid.Must(uuid.NewV7()).String(),
		StartedAt:   at.UTC(),
		BindAddress: bindAddress,
		Port:        port,
		RuleCount:   len(rs),
		Rules:       rs.Clone(),
		Fingerprint: fp,
	}
	if run.Rules == nil {
		run.Rules = rules.RuleSet{}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, bind_address, port, rule_count, rules, rules_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		formatTime(run.StartedAt),
		run.BindAddress,
		run.Port,
		run.RuleCount,
		rulesJSON,
		run.Fingerprint,
	)
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}

	return run, nil
}

// FinishRun records when and why a run ended. Finishing an unknown run is
// an error.
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET ended_at = ?, end_reason = ? WHERE id = ?
	`, formatTime(at), reason, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: unknown run %q", runID)
	}
	return nil
}

// WriteExecution inserts one mutation row per change of exec, in a single
// transaction. Uses ON CONFLICT DO NOTHING, so writing the same execution
// twice is a no-op.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteExecution(ctx context.Context, runID string, exec engine.Execution) error {
	if len(exec.Changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write execution: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mutations
		(run_id, seq, rule_position, register_index, old_value, new_value, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write execution: prepare: %w", err)
	}
	defer stmt.Close()

	at := formatTime(exec.At)
	for _, ch := range exec.Changes {
		if _, err := stmt.ExecContext(ctx, runID, exec.Seq, exec.Position, ch.Register, ch.Old, ch.New, at); err != nil {
			return fmt.Errorf("write execution: seq %d register %d: %w", exec.Seq, ch.Register, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write execution: commit: %w", err)
	}
	return nil
}
