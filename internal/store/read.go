package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ReadRuns returns every run, oldest first.
//
// Returns empty slice (not nil) if the journal has no runs.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, bind_address, port, rule_count, rules, rules_hash, ended_at, end_reason
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, bind_address, port, rule_count, rules, rules_hash, ended_at, end_reason
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// LatestRun returns the most recently started run.
// Returns sql.ErrNoRows if the journal is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, bind_address, port, rule_count, rules, rules_hash, ended_at, end_reason
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	return scanRun(row)
}

// MutationFilter narrows ReadMutations.
type MutationFilter struct {
	// RunID is required.
	RunID string

	// Register, when set, keeps only changes to that register.
	Register *int

	// Limit caps the number of rows; 0 means no limit.
	Limit int
}

// ReadMutations returns the mutations of one run ordered by seq, then
// register.
//
// Returns empty slice (not nil) if nothing matches.
func (s *Store) ReadMutations(ctx context.Context, f MutationFilter) ([]Mutation, error) {
	var (
		query strings.Builder
		args  = []any{f.RunID}
	)
	query.WriteString(`
		SELECT run_id, seq, rule_position, register_index, old_value, new_value, at
		FROM mutations
		WHERE run_id = ?`)
	if f.Register != nil {
		query.WriteString(` AND register_index = ?`)
		args = append(args, *f.Register)
	}
	query.WriteString(`
		ORDER BY seq ASC, register_index ASC`)
	if f.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	mutations := []Mutation{}
	for rows.Next() {
		var (
			m  Mutation
			at string
		)
		if err := rows.Scan(&m.RunID, &m.Seq, &m.Position, &m.Register, &m.Old, &m.New, &at); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		if m.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}

	return mutations, nil
}

// CountMutations returns the number of mutation rows of a run.
func (s *Store) CountMutations(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mutations WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count mutations: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		startedAt string
		rulesJSON string
		endedAt   sql.NullString
	)
	err := row.Scan(&run.ID, &startedAt, &run.BindAddress, &run.Port, &run.RuleCount, &rulesJSON, &run.Fingerprint, &endedAt, &run.EndReason)
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if run.Rules, err = unmarshalRules(rulesJSON); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("scan run: %w", err)
		}
		run.EndedAt = &t
	}

	return run, nil
}
