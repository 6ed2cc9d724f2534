package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seikosantana/modbus-sim/internal/rules"
)

func TestStartRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun(t, s, testEpoch)

	id, err := uuid.Parse(run.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, 2, run.RuleCount)
	assert.Equal(t, rules.MustFingerprint(run.Rules), run.Fingerprint)

	got, err := s.ReadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)
}

func TestStartRun_EmptyRuleSet(t *testing.T) {
	s := createTestStore(t)

	run, err := s.StartRun(context.Background(), "127.0.0.1", 1502, nil, testEpoch)
	require.NoError(t, err)

	got, err := s.ReadRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, rules.RuleSet{}, got.Rules)
	assert.Zero(t, got.RuleCount)
	assert.Equal(t, rules.MustFingerprint(nil), got.Fingerprint)
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := createTestRun(t, s, testEpoch)

	end := testEpoch.Add(time.Minute)
	require.NoError(t, s.FinishRun(ctx, run.ID, end, "context canceled"))

	got, err := s.ReadRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.True(t, end.Equal(*got.EndedAt))
	assert.Equal(t, "context canceled", got.EndReason)

	assert.Error(t, s.FinishRun(ctx, "no-such-run", end, "x"))
}

func TestWriteExecution(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := createTestRun(t, s, testEpoch)

	require.NoError(t, s.WriteExecution(ctx, run.ID, createTestExecution(1, 1, testEpoch, 1)))
	require.NoError(t, s.WriteExecution(ctx, run.ID, createTestExecution(2, 2, testEpoch.Add(5*time.Second), 10, 11, 12)))

	n, err := s.CountMutations(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestWriteExecution_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := createTestRun(t, s, testEpoch)

	exec := createTestExecution(1, 1, testEpoch, 1)
	require.NoError(t, s.WriteExecution(ctx, run.ID, exec))
	require.NoError(t, s.WriteExecution(ctx, run.ID, exec))

	n, err := s.CountMutations(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriteExecution_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteExecution(context.Background(), "missing", createTestExecution(1, 1, testEpoch, 1))

	assert.Error(t, err, "foreign key must reject unknown run")
}

func TestWriteExecution_NoChanges(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteExecution(context.Background(), "missing", createTestExecution(1, 1, testEpoch))

	assert.NoError(t, err)
}

func TestRecorder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := createTestRun(t, s, testEpoch)

	rec := NewRecorder(s, run.ID)
	assert.Equal(t, run.ID, rec.RunID())
	require.NoError(t, rec.Record(ctx, createTestExecution(7, 2, testEpoch, 10, 11)))

	muts, err := s.ReadMutations(ctx, MutationFilter{RunID: run.ID})
	require.NoError(t, err)
	require.Len(t, muts, 2)
	assert.Equal(t, int64(7), muts[0].Seq)
	assert.Equal(t, 2, muts[0].Position)
}
