package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxSteps bounds RunToCompletion when the caller passes no budget.
// It is a safety valve against plan-authoring bugs that auto-advance forever.
const DefaultMaxSteps = 100

// AuditRecorder persists one governance record per completed execution.
// Failures are logged and swallowed: audit trouble must never make a
// completed workflow look failed.
type AuditRecorder interface {
	RecordOutcome(ctx context.Context, state *ExecutionState, plan *Plan) error
}

// StepObserver receives engine activity signals. Implemented by the metrics
// collector; all methods must be cheap and non-blocking.
type StepObserver interface {
	StepExecuted(workflowID, nodeID, outcome string, duration time.Duration)
	ExecutionFinished(workflowID string, status Status)
	EscalationRaised(workflowID string)
	RetryRecorded(workflowID, nodeID string)
}

type noopObserver struct{}

func (noopObserver) StepExecuted(string, string, string, time.Duration) {}
func (noopObserver) ExecutionFinished(string, Status)                   {}
func (noopObserver) EscalationRaised(string)                            {}
func (noopObserver) RetryRecorded(string, string)                       {}

// PlanExecutor orchestrates plan execution: it loads state, dispatches the
// current node to its executor, routes the reported outcome, mutates state,
// and persists after every node completion. It is the exclusive owner of
// ExecutionState mutation.
type PlanExecutor struct {
	registry  *Registry
	store     StateStore
	executors *ExecutorRegistry
	audit     AuditRecorder
	observer  StepObserver
	tracer    trace.Tracer
	logger    *zap.Logger
}

// ExecutorOption configures a PlanExecutor.
type ExecutorOption func(*PlanExecutor)

// WithAuditRecorder sets the governance audit recorder.
func WithAuditRecorder(audit AuditRecorder) ExecutorOption {
	return func(e *PlanExecutor) { e.audit = audit }
}

// WithObserver sets the engine activity observer.
func WithObserver(observer StepObserver) ExecutorOption {
	return func(e *PlanExecutor) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *PlanExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider used for step spans.
func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(e *PlanExecutor) { e.tracer = tp.Tracer("docuflow/workflow") }
}

// NewPlanExecutor creates an executor over a plan registry, a state store,
// and a node executor registry.
func NewPlanExecutor(registry *Registry, store StateStore, executors *ExecutorRegistry, opts ...ExecutorOption) *PlanExecutor {
	e := &PlanExecutor{
		registry:  registry,
		store:     store,
		executors: executors,
		observer:  noopObserver{},
		tracer:    otel.Tracer("docuflow/workflow"),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "plan_executor"))
	return e
}

// StartExecution resolves the plan for a document type and creates a fresh
// execution at the plan's primary entry node. Starting is idempotent per
// subject: if a non-terminal execution already exists for the same subject
// and plan, that execution is returned instead of creating a duplicate.
func (e *PlanExecutor) StartExecution(ctx context.Context, projectID, documentType string, initialContext map[string]any) (*ExecutionState, error) {
	plan, ok := e.registry.GetByDocumentType(documentType)
	if !ok {
		return nil, fmt.Errorf("document type %q: %w", documentType, ErrPlanNotFound)
	}

	existing, err := e.store.LoadBySubject(ctx, projectID, plan.WorkflowID)
	if err == nil {
		e.logger.Info("returning existing execution",
			zap.String("execution_id", existing.ExecutionID),
			zap.String("project_id", projectID),
			zap.String("workflow_id", plan.WorkflowID))
		return existing, nil
	}
	if !errors.Is(err, ErrExecutionNotFound) {
		// A store failure is not "no existing execution"; starting anyway
		// could create a duplicate live run for the subject.
		return nil, fmt.Errorf("failed to check for existing execution: %w", err)
	}

	state := NewExecutionState(plan.WorkflowID, projectID, documentType, plan.EntryNodeID(), initialContext)
	if err := e.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist new execution: %w", err)
	}

	e.logger.Info("execution started",
		zap.String("execution_id", state.ExecutionID),
		zap.String("workflow_id", plan.WorkflowID),
		zap.String("document_type", documentType),
		zap.String("entry_node", state.CurrentNodeID))
	return state, nil
}

// ExecuteStep advances the execution by one node. Stepping a terminal
// execution is a no-op returning the state unchanged, and stepping an
// execution that is waiting on a human (pause or escalation) without an
// answer is likewise a no-op.
func (e *PlanExecutor) ExecuteStep(ctx context.Context, executionID string) (*ExecutionState, error) {
	return e.executeStep(ctx, executionID, "", "")
}

func (e *PlanExecutor) executeStep(ctx context.Context, executionID, userInput, userChoice string) (state *ExecutionState, err error) {
	state, err = e.store.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if state.Status.IsTerminal() {
		return state, nil
	}

	resuming := userInput != "" || userChoice != ""
	if state.EscalationActive && !resuming {
		return state, nil
	}
	if state.PendingUserInput && !resuming {
		return state, nil
	}

	plan, err := e.registry.Get(state.WorkflowID)
	if err != nil {
		return nil, err
	}
	node, ok := plan.Node(state.CurrentNodeID)
	if !ok {
		state.SetFailed(fmt.Sprintf("current node %q is not in plan %q", state.CurrentNodeID, plan.WorkflowID))
		e.persist(ctx, state)
		return state, fmt.Errorf("current node %q is not in plan %q", state.CurrentNodeID, plan.WorkflowID)
	}

	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.id", state.WorkflowID),
			attribute.String("workflow.execution_id", state.ExecutionID),
			attribute.String("workflow.node_id", node.NodeID),
		))
	defer span.End()

	// A resumed gate is re-entered with the answer merged into the working
	// context rather than re-asked.
	if state.PendingUserInput && resuming {
		state.ClearPause()
	}
	state.Status = StatusRunning

	ec := &ExecContext{
		Documents:    state.ContextState.Documents(),
		ContextState: state.ContextState.Clone(),
		UserInput:    userInput,
		UserChoice:   userChoice,
	}

	executor, err := e.executors.For(node.Type)
	if err != nil {
		state.SetFailed(err.Error())
		e.persist(ctx, state)
		return state, err
	}

	start := time.Now()
	result, execErr := e.runNode(ctx, executor, node, ec, state.Snapshot())
	if execErr != nil {
		// Persist-then-surface: the caller sees both a failed persisted
		// state and an error, because some callers poll state and others
		// expect a returned error.
		span.RecordError(execErr)
		state.SetFailed(execErr.Error())
		e.persist(ctx, state)
		e.observer.ExecutionFinished(state.WorkflowID, state.Status)
		e.logger.Error("node execution failed",
			zap.String("execution_id", state.ExecutionID),
			zap.String("node_id", node.NodeID),
			zap.Error(execErr))
		return state, fmt.Errorf("%w: node %s: %v", ErrNodeExecution, node.NodeID, execErr)
	}

	e.observer.StepExecuted(state.WorkflowID, node.NodeID, result.Outcome, time.Since(start))

	wasCompleted := state.Status == StatusCompleted
	routeErr := e.handleResult(ctx, plan, node, result, state)
	persistErr := e.persist(ctx, state)

	if !wasCompleted && state.Status == StatusCompleted {
		e.recordAudit(ctx, state, plan)
		e.observer.ExecutionFinished(state.WorkflowID, state.Status)
	}
	if state.Status == StatusFailed {
		e.observer.ExecutionFinished(state.WorkflowID, state.Status)
	}

	if routeErr != nil {
		span.RecordError(routeErr)
		return state, routeErr
	}
	if persistErr != nil {
		// The in-memory state advanced but the durable record did not; the
		// caller must not treat this step as committed.
		span.RecordError(persistErr)
		return state, fmt.Errorf("node %s completed but state was not persisted: %w", node.NodeID, persistErr)
	}
	return state, nil
}

// runNode invokes the node executor, converting a panic into an error so the
// engine's contract (catch once at the executor boundary, fail the state,
// surface the error) holds for unexpected failures too.
func (e *PlanExecutor) runNode(ctx context.Context, executor NodeExecutor, node *Node, ec *ExecContext, snapshot *ExecutionState) (result *NodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic at node %s: %v", node.NodeID, r)
		}
	}()
	result, err = executor.Execute(ctx, node, ec, snapshot)
	if err == nil && result == nil {
		err = fmt.Errorf("executor for node %s returned no result", node.NodeID)
	}
	if err == nil && result.Outcome == "" {
		err = fmt.Errorf("executor for node %s reported an empty outcome", node.NodeID)
	}
	return result, err
}

// handleResult applies a node result to the state: history, pause, document
// storage, retry accounting, routing, escalation, and completion.
func (e *PlanExecutor) handleResult(_ context.Context, plan *Plan, node *Node, result *NodeResult, state *ExecutionState) error {
	state.RecordExecution(node.NodeID, result.Outcome, result.Metadata)

	if node.Type == NodeTypeTask {
		// Transient pointer: QA failures downstream are charged to the task
		// node that produced the content under review.
		state.GeneratingNodeID = node.NodeID
	}

	if result.RequiresUserInput {
		state.SetPaused(result.UserPrompt, result.UserChoices, result.Payload, result.SchemaRef)
		e.logger.Info("execution paused for input",
			zap.String("execution_id", state.ExecutionID),
			zap.String("node_id", node.NodeID))
		return nil
	}

	if result.Document != nil && node.Produces != "" {
		state.UpdateContextState(map[string]any{DocumentKey(node.Produces): result.Document})
	}

	// QA bookkeeping happens before routing so a retry_count condition on
	// the outgoing edges already sees the updated counter.
	if node.Type == NodeTypeQA {
		switch result.Outcome {
		case OutcomeFailed:
			generating := state.GeneratingNodeID
			if generating == "" {
				generating = FindGeneratingNode(plan, state)
			}
			if generating != "" {
				state.IncrementRetry(generating)
				e.observer.RetryRecorded(state.WorkflowID, generating)
			}
			if issues, ok := result.Metadata["issues"]; ok {
				state.UpdateContextState(map[string]any{qaFeedbackKey: issues})
			}
		case OutcomeSuccess:
			// Stale failure feedback must not leak into a later, unrelated
			// retry cycle.
			state.ContextState.ClearQAFeedback()
		}
	}

	router := NewEdgeRouter(plan)
	next, edge := router.NextNode(node.NodeID, result.Outcome, state)
	if edge == nil {
		reason := fmt.Sprintf("no edge from node %q matches outcome %q", node.NodeID, result.Outcome)
		state.SetFailed(reason)
		return fmt.Errorf("%w: %s", ErrNoMatchingEdge, reason)
	}

	if edge.NonAdvancing() {
		options := router.EscalationOptions(edge)
		if len(options) == 0 {
			reason := fmt.Sprintf("non-advancing edge %q offers no escalation options", edge.EdgeID)
			state.SetFailed(reason)
			return fmt.Errorf("%w: %s", ErrNoMatchingEdge, reason)
		}
		state.SetEscalation(options)
		state.Status = StatusPaused
		e.observer.EscalationRaised(state.WorkflowID)
		e.logger.Warn("circuit breaker tripped",
			zap.String("execution_id", state.ExecutionID),
			zap.String("node_id", node.NodeID),
			zap.Strings("options", options))
		return nil
	}

	if router.IsTerminalNode(next) {
		return e.complete(plan, router, next, state)
	}

	state.CurrentNodeID = next
	return nil
}

// complete resolves the end node's outcomes and terminates the run. This is
// the one place an execution completes.
func (e *PlanExecutor) complete(plan *Plan, router *EdgeRouter, endNodeID string, state *ExecutionState) error {
	terminalOutcome := router.TerminalOutcome(endNodeID)
	gateOutcome := router.GateOutcome(endNodeID)
	if terminalOutcome == "" && gateOutcome != "" {
		mapped, err := NewOutcomeMapper(plan.OutcomeMappings).Map(gateOutcome)
		if err != nil {
			state.SetFailed(err.Error())
			return err
		}
		terminalOutcome = mapped
	}

	state.CurrentNodeID = endNodeID
	state.RecordExecution(endNodeID, terminalOutcome, map[string]any{"gate_outcome": gateOutcome})
	state.SetCompleted(terminalOutcome, gateOutcome)

	e.logger.Info("execution completed",
		zap.String("execution_id", state.ExecutionID),
		zap.String("terminal_outcome", terminalOutcome),
		zap.String("gate_outcome", gateOutcome))
	return nil
}

// RunToCompletion repeatedly steps the execution until it completes, fails,
// or pauses for a human, bounded by maxSteps (DefaultMaxSteps when <= 0).
// Exceeding the budget is a hard failure of the execution, not a silent
// truncation.
func (e *PlanExecutor) RunToCompletion(ctx context.Context, executionID string, maxSteps int) (*ExecutionState, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	var state *ExecutionState
	var err error
	for i := 0; i < maxSteps; i++ {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		state, err = e.ExecuteStep(ctx, executionID)
		if err != nil {
			return state, err
		}
		if state.Status.IsTerminal() || state.Status == StatusPaused {
			return state, nil
		}
	}

	reason := fmt.Sprintf("exceeded max steps (%d)", maxSteps)
	state.SetFailed(reason)
	e.persist(ctx, state)
	e.observer.ExecutionFinished(state.WorkflowID, state.Status)
	return state, fmt.Errorf("%w: execution %s %s", ErrMaxStepsExceeded, executionID, reason)
}

// SubmitUserInput resumes a paused execution with the human's answer. It
// fails if the execution is not paused for input, if an escalation is
// awaiting resolution, or if the choice is not among the offered ones.
func (e *PlanExecutor) SubmitUserInput(ctx context.Context, executionID, input, choice string) (*ExecutionState, error) {
	state, err := e.store.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if state.EscalationActive {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrEscalationActive)
	}
	if state.Status != StatusPaused || !state.PendingUserInput {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrNotPaused)
	}
	if input == "" && choice == "" {
		return nil, fmt.Errorf("%w: empty submission", ErrInvalidChoice)
	}
	if choice != "" && len(state.PendingChoices) > 0 && !contains(state.PendingChoices, choice) {
		return nil, fmt.Errorf("%w: %q not in %v", ErrInvalidChoice, choice, state.PendingChoices)
	}
	return e.executeStep(ctx, executionID, input, choice)
}

// HandleEscalationChoice resolves a tripped circuit breaker with the human's
// decision. "abandon" terminates the run; "retry" zeroes the relevant retry
// counter and resumes; any other offered choice clears the escalation so
// normal routing resumes on the next step.
func (e *PlanExecutor) HandleEscalationChoice(ctx context.Context, executionID, choice string) (*ExecutionState, error) {
	state, err := e.store.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if !state.EscalationActive {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrNotEscalated)
	}
	if !contains(state.EscalationOptions, choice) {
		return nil, fmt.Errorf("%w: %q not in %v", ErrInvalidEscalationChoice, choice, state.EscalationOptions)
	}

	plan, err := e.registry.Get(state.WorkflowID)
	if err != nil {
		return nil, err
	}

	state.ClearEscalation()
	state.ClearPause()
	state.ContextState.SetEscalationChoice(choice)

	switch choice {
	case "abandon":
		state.RecordExecution(state.CurrentNodeID, TerminalOutcomeAbandoned, map[string]any{"escalation_choice": choice})
		state.SetCompleted(TerminalOutcomeAbandoned, state.GateOutcome)
		if err := e.persist(ctx, state); err != nil {
			return state, fmt.Errorf("failed to persist abandonment: %w", err)
		}
		e.recordAudit(ctx, state, plan)
		e.observer.ExecutionFinished(state.WorkflowID, state.Status)
		e.logger.Info("execution abandoned", zap.String("execution_id", state.ExecutionID))
		return state, nil

	case "retry":
		generating := state.GeneratingNodeID
		if generating == "" {
			generating = FindGeneratingNode(plan, state)
		}
		if generating != "" {
			state.ResetRetry(generating)
		}
		state.Status = StatusRunning
		if err := e.store.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to persist escalation retry: %w", err)
		}
		return e.ExecuteStep(ctx, executionID)

	default:
		// Plan-specific choices (e.g. "narrow_scope") just resume normal
		// routing; the recorded choice is visible to downstream nodes.
		state.Status = StatusRunning
		if err := e.store.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to persist escalation resolution: %w", err)
		}
		return state, nil
	}
}

// GetExecutionStatus returns the persisted state for inspection. Failed
// executions stay inspectable; they are never hidden or deleted.
func (e *PlanExecutor) GetExecutionStatus(ctx context.Context, executionID string) (*ExecutionState, error) {
	return e.store.Load(ctx, executionID)
}

// ListExecutions returns persisted executions, optionally filtered by
// status, sorted most-recent-first.
func (e *PlanExecutor) ListExecutions(ctx context.Context, status Status, limit int) ([]*ExecutionState, error) {
	return e.store.ListExecutions(ctx, status, limit)
}

// persist saves state after a node completion. Persistence after every
// completion is a hard invariant (it is what makes resume-after-crash
// correct), so a save failure is logged and returned.
func (e *PlanExecutor) persist(ctx context.Context, state *ExecutionState) error {
	if err := e.store.Save(ctx, state); err != nil {
		e.logger.Error("failed to persist execution state",
			zap.String("execution_id", state.ExecutionID),
			zap.Error(err))
		return err
	}
	return nil
}

// recordAudit invokes the audit recorder best-effort.
func (e *PlanExecutor) recordAudit(ctx context.Context, state *ExecutionState, plan *Plan) {
	if e.audit == nil {
		return
	}
	if err := e.audit.RecordOutcome(ctx, state, plan); err != nil {
		e.logger.Error("audit recording failed",
			zap.String("execution_id", state.ExecutionID),
			zap.Error(err))
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
