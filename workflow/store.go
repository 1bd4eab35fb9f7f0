package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// StateStore is the persistence contract for execution state. Save is an
// upsert by execution ID and is the de facto serialization point for a step:
// the engine assumes a single writer per execution and implements no
// optimistic locking on top.
type StateStore interface {
	// Save upserts the state.
	Save(ctx context.Context, state *ExecutionState) error
	// Load returns the state for an execution ID, or ErrExecutionNotFound.
	Load(ctx context.Context, executionID string) (*ExecutionState, error)
	// LoadBySubject returns a non-terminal execution for the subject and
	// workflow, most recently updated first, or ErrExecutionNotFound.
	LoadBySubject(ctx context.Context, projectID, workflowID string) (*ExecutionState, error)
	// ListExecutions returns persisted states sorted most-recent-first.
	// An empty status matches all statuses; limit <= 0 means no limit.
	ListExecutions(ctx context.Context, status Status, limit int) ([]*ExecutionState, error)
}

// MemoryStateStore is the in-memory StateStore used in development and
// tests. States are deep-copied on the way in and out so callers cannot
// mutate the stored record behind the store's back.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*ExecutionState
}

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*ExecutionState)}
}

// Save implements StateStore.
func (s *MemoryStateStore) Save(_ context.Context, state *ExecutionState) error {
	if state == nil || state.ExecutionID == "" {
		return fmt.Errorf("state must carry an execution_id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ExecutionID] = state.Snapshot()
	return nil
}

// Load implements StateStore.
func (s *MemoryStateStore) Load(_ context.Context, executionID string) (*ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[executionID]
	if !ok {
		return nil, fmt.Errorf("execution %q: %w", executionID, ErrExecutionNotFound)
	}
	return state.Snapshot(), nil
}

// LoadBySubject implements StateStore.
func (s *MemoryStateStore) LoadBySubject(_ context.Context, projectID, workflowID string) (*ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *ExecutionState
	for _, state := range s.states {
		if state.ProjectID != projectID || state.WorkflowID != workflowID || state.Status.IsTerminal() {
			continue
		}
		if best == nil || state.UpdatedAt.After(best.UpdatedAt) {
			best = state
		}
	}
	if best == nil {
		return nil, fmt.Errorf("subject %q workflow %q: %w", projectID, workflowID, ErrExecutionNotFound)
	}
	return best.Snapshot(), nil
}

// ListExecutions implements StateStore.
func (s *MemoryStateStore) ListExecutions(_ context.Context, status Status, limit int) ([]*ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ExecutionState
	for _, state := range s.states {
		if status != "" && state.Status != status {
			continue
		}
		out = append(out, state.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Reset removes every stored state. Test hook.
func (s *MemoryStateStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]*ExecutionState)
}
