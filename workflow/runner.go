package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProjectRunner drives several independent executions concurrently, one per
// document type, for a single project. Concurrency exists only across
// executions: each execution still advances strictly sequentially, and the
// runner never issues overlapping steps for one execution ID.
type ProjectRunner struct {
	executor *PlanExecutor
	maxSteps int
	logger   *zap.Logger
}

// NewProjectRunner creates a runner. maxSteps bounds each execution's run
// (DefaultMaxSteps when <= 0).
func NewProjectRunner(executor *PlanExecutor, maxSteps int, logger *zap.Logger) *ProjectRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectRunner{
		executor: executor,
		maxSteps: maxSteps,
		logger:   logger.With(zap.String("component", "project_runner")),
	}
}

// RunAll starts (or resumes) one execution per document type and runs each
// until it completes, fails, or pauses for a human. All executions run
// concurrently; the returned states are ordered like documentTypes. The
// first hard error cancels the remaining runs.
func (r *ProjectRunner) RunAll(ctx context.Context, projectID string, documentTypes []string, initialContext map[string]any) ([]*ExecutionState, error) {
	states := make([]*ExecutionState, len(documentTypes))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for i, docType := range documentTypes {
		g.Go(func() error {
			state, err := r.executor.StartExecution(ctx, projectID, docType, initialContext)
			if err != nil {
				return fmt.Errorf("document type %s: %w", docType, err)
			}
			state, err = r.executor.RunToCompletion(ctx, state.ExecutionID, r.maxSteps)
			if err != nil {
				return fmt.Errorf("document type %s: %w", docType, err)
			}
			mu.Lock()
			states[i] = state
			mu.Unlock()
			r.logger.Info("track finished",
				zap.String("project_id", projectID),
				zap.String("document_type", docType),
				zap.String("status", string(state.Status)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return states, err
	}
	return states, nil
}

// AwaitResolution polls a paused execution until it leaves the paused state
// or the context expires. The engine has no blocking-wait primitive by
// design; human input arrives out of band, so waiting is a cooperative
// bounded sleep/poll loop.
func (r *ProjectRunner) AwaitResolution(ctx context.Context, executionID string, interval time.Duration) (*ExecutionState, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := r.executor.GetExecutionStatus(ctx, executionID)
		if err != nil {
			return nil, err
		}
		if state.Status != StatusPaused {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-ticker.C:
		}
	}
}
