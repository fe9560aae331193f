package runlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "runlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

func TestStartComplete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	runID := NewRunID()

	id, err := st.Start(ctx, runID, StageAggregate, "horarios_")
	require.NoError(t, err)
	require.NoError(t, st.Complete(ctx, id, &Result{
		Rows:     42,
		Files:    3,
		Metadata: map[string]any{"failed": 1},
	}))

	entries, err := st.List(ctx, Filter{RunID: runID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, StageAggregate, e.Stage)
	assert.Equal(t, "horarios_", e.Subject)
	assert.Equal(t, StatusComplete, e.Status)
	assert.Equal(t, int64(42), e.Rows)
	assert.Equal(t, 3, e.Files)
	assert.Empty(t, e.Error)
	require.NotNil(t, e.CompletedAt)
	assert.False(t, e.StartedAt.IsZero())
	assert.Equal(t, float64(1), e.Metadata["failed"])
}

func TestFail(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.Start(ctx, NewRunID(), StageFetch, "https://dados.antt.gov.br")
	require.NoError(t, err)
	require.NoError(t, st.Fail(ctx, id, "unexpected status 503"))

	entries, err := st.List(ctx, Filter{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "unexpected status 503", entries[0].Error)
	assert.Nil(t, entries[0].Metadata)
}

func TestCompleteNilResult(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.Start(ctx, NewRunID(), StageWindow, "todos_horarios")
	require.NoError(t, err)
	require.NoError(t, st.Complete(ctx, id, nil))

	entries, err := st.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].Rows)
}

func TestUnknownEntry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	assert.Error(t, st.Complete(ctx, 999, nil))
	assert.Error(t, st.Fail(ctx, 999, "x"))
}

func TestListFilterAndLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	runID := NewRunID()

	for _, stage := range []string{StageFetch, StageAggregate, StageAggregate, StageWindow} {
		_, err := st.Start(ctx, runID, stage, "x")
		require.NoError(t, err)
	}

	all, err := st.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, StageWindow, all[0].Stage, "most recent first")

	agg, err := st.List(ctx, Filter{Stage: StageAggregate})
	require.NoError(t, err)
	assert.Len(t, agg, 2)

	limited, err := st.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := st.List(ctx, Filter{RunID: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLastSuccess(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	got, err := st.LastSuccess(ctx, StageAggregate, "horarios_")
	require.NoError(t, err)
	assert.Nil(t, got)

	id, err := st.Start(ctx, NewRunID(), StageAggregate, "horarios_")
	require.NoError(t, err)
	require.NoError(t, st.Complete(ctx, id, nil))

	got, err = st.LastSuccess(ctx, StageAggregate, "horarios_")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runlog.db")
	ctx := context.Background()

	st, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = st.Start(ctx, NewRunID(), StageFetch, "")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(ctx, path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	entries, err := st.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
