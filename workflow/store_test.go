package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSaveAndLoad(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	state := NewExecutionState("w", "p", "d", "draft", map[string]any{"k": "v"})
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, state.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, state.ExecutionID, loaded.ExecutionID)
	assert.Equal(t, "v", loaded.ContextState["k"])
}

func TestMemoryStoreRejectsAnonymousState(t *testing.T) {
	store := NewMemoryStateStore()
	require.Error(t, store.Save(context.Background(), &ExecutionState{}))
	require.Error(t, store.Save(context.Background(), nil))
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	store := NewMemoryStateStore()
	_, err := store.Load(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	state := NewExecutionState("w", "p", "d", "draft", nil)
	require.NoError(t, store.Save(ctx, state))

	// Mutating the saved or loaded copies must not touch the stored record.
	state.Status = StatusFailed
	loaded, err := store.Load(ctx, state.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, loaded.Status)

	loaded.Status = StatusFailed
	again, err := store.Load(ctx, state.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
}

func TestMemoryStoreLoadBySubject(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	done := NewExecutionState("w", "p", "d", "draft", nil)
	done.SetCompleted("delivered", "")
	require.NoError(t, store.Save(ctx, done))

	older := NewExecutionState("w", "p", "d", "draft", nil)
	require.NoError(t, store.Save(ctx, older))

	time.Sleep(time.Millisecond)
	newer := NewExecutionState("w", "p", "d", "draft", nil)
	require.NoError(t, store.Save(ctx, newer))

	// Terminal executions are skipped; the freshest live one wins.
	got, err := store.LoadBySubject(ctx, "p", "w")
	require.NoError(t, err)
	assert.Equal(t, newer.ExecutionID, got.ExecutionID)

	_, err = store.LoadBySubject(ctx, "other", "w")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestMemoryStoreListExecutions(t *testing.T) {
	store := NewMemoryStateStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		state := NewExecutionState("w", "p", "d", "draft", nil)
		if i == 0 {
			state.SetCompleted("delivered", "")
		}
		require.NoError(t, store.Save(ctx, state))
		time.Sleep(time.Millisecond)
	}

	all, err := store.ListExecutions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	// Most recent first.
	assert.True(t, !all[0].UpdatedAt.Before(all[1].UpdatedAt))

	completed, err := store.ListExecutions(ctx, StatusCompleted, 0)
	require.NoError(t, err)
	assert.Len(t, completed, 1)

	limited, err := store.ListExecutions(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	store.Reset()
	all, err = store.ListExecutions(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
