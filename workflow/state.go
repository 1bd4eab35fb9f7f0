package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of an execution. The lifecycle is linear:
// pending → running ⇄ paused → completed | failed. Once terminal, a state is
// never mutated again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// HistoryEntry records one node completion. Node history is append-only and
// totally ordered by execution order.
type HistoryEntry struct {
	NodeID    string         `json:"node_id"`
	Outcome   string         `json:"outcome"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ExecutionState is the persisted record of one workflow run. It is owned and
// mutated exclusively by the PlanExecutor; node executors only ever see a
// snapshot. Every mutator bumps UpdatedAt.
type ExecutionState struct {
	ExecutionID   string `json:"execution_id"`
	WorkflowID    string `json:"workflow_id"`
	ProjectID     string `json:"project_id"`
	DocumentType  string `json:"document_type"`
	CurrentNodeID string `json:"current_node_id"`
	Status        Status `json:"status"`

	NodeHistory []HistoryEntry `json:"node_history"`

	// RetryCounts is keyed by the generating node, not the QA node that
	// detected the failure. A QA failure increments the counter of whichever
	// task node last produced the content under review.
	RetryCounts      map[string]int `json:"retry_counts"`
	GeneratingNodeID string         `json:"generating_node_id,omitempty"`

	// GateOutcome and TerminalOutcome use the governance and execution
	// vocabularies respectively. They are recorded side by side at
	// completion and never conflated.
	GateOutcome     string `json:"gate_outcome,omitempty"`
	TerminalOutcome string `json:"terminal_outcome,omitempty"`

	ContextState ContextState `json:"context_state"`

	// Pause state. All pending_* fields are set and cleared together.
	PendingUserInput bool           `json:"pending_user_input"`
	PendingPrompt    string         `json:"pending_prompt,omitempty"`
	PendingChoices   []string       `json:"pending_choices,omitempty"`
	PendingPayload   map[string]any `json:"pending_payload,omitempty"`
	PendingSchemaRef string         `json:"pending_schema_ref,omitempty"`

	// Escalation state. Coexists with a paused status but is mutually
	// exclusive with normal running.
	EscalationActive  bool     `json:"escalation_active"`
	EscalationOptions []string `json:"escalation_options,omitempty"`

	// ThreadID optionally links an external conversation ledger.
	ThreadID string `json:"thread_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecutionState creates a fresh state positioned at the entry node.
func NewExecutionState(workflowID, projectID, documentType, entryNodeID string, initialContext map[string]any) *ExecutionState {
	now := time.Now().UTC()
	state := &ExecutionState{
		ExecutionID:   uuid.NewString(),
		WorkflowID:    workflowID,
		ProjectID:     projectID,
		DocumentType:  documentType,
		CurrentNodeID: entryNodeID,
		Status:        StatusPending,
		RetryCounts:   make(map[string]int),
		ContextState:  make(ContextState),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if initialContext != nil {
		state.ContextState.Merge(initialContext)
	}
	return state
}

func (s *ExecutionState) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// RecordExecution appends a node completion to the history.
func (s *ExecutionState) RecordExecution(nodeID, outcome string, metadata map[string]any) {
	s.NodeHistory = append(s.NodeHistory, HistoryEntry{
		NodeID:    nodeID,
		Outcome:   outcome,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
	s.touch()
}

// IncrementRetry bumps the retry counter for a generating node.
func (s *ExecutionState) IncrementRetry(generatingNodeID string) {
	if s.RetryCounts == nil {
		s.RetryCounts = make(map[string]int)
	}
	s.RetryCounts[generatingNodeID]++
	s.touch()
}

// RetryCount returns the retry counter for a node; zero if never retried.
func (s *ExecutionState) RetryCount(nodeID string) int {
	return s.RetryCounts[nodeID]
}

// ResetRetry zeroes the retry counter for a node.
func (s *ExecutionState) ResetRetry(nodeID string) {
	delete(s.RetryCounts, nodeID)
	s.touch()
}

// SetPaused records a pending user-input request and pauses the execution.
func (s *ExecutionState) SetPaused(prompt string, choices []string, payload map[string]any, schemaRef string) {
	s.Status = StatusPaused
	s.PendingUserInput = true
	s.PendingPrompt = prompt
	s.PendingChoices = choices
	s.PendingPayload = payload
	s.PendingSchemaRef = schemaRef
	s.touch()
}

// ClearPause resets every pause-related field to its no-pause default.
func (s *ExecutionState) ClearPause() {
	s.PendingUserInput = false
	s.PendingPrompt = ""
	s.PendingChoices = nil
	s.PendingPayload = nil
	s.PendingSchemaRef = ""
	s.touch()
}

// SetEscalation records circuit-breaker escalation options for a human.
func (s *ExecutionState) SetEscalation(options []string) {
	s.EscalationActive = true
	s.EscalationOptions = options
	s.touch()
}

// ClearEscalation resets the escalation state.
func (s *ExecutionState) ClearEscalation() {
	s.EscalationActive = false
	s.EscalationOptions = nil
	s.touch()
}

// UpdateContextState shallow-merges delta into the context state with
// replace-key semantics (see ContextState.Merge).
func (s *ExecutionState) UpdateContextState(delta map[string]any) {
	if s.ContextState == nil {
		s.ContextState = make(ContextState)
	}
	s.ContextState.Merge(delta)
	s.touch()
}

// SetCompleted terminates the run successfully, recording the execution and
// governance outcomes side by side.
func (s *ExecutionState) SetCompleted(terminalOutcome, gateOutcome string) {
	s.Status = StatusCompleted
	s.TerminalOutcome = terminalOutcome
	s.GateOutcome = gateOutcome
	s.touch()
}

// SetFailed terminates the run as failed and appends a failure history entry
// so the reason is inspectable afterwards.
func (s *ExecutionState) SetFailed(reason string) {
	s.Status = StatusFailed
	s.NodeHistory = append(s.NodeHistory, HistoryEntry{
		NodeID:    s.CurrentNodeID,
		Outcome:   OutcomeFailed,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]any{"reason": reason},
	})
	s.touch()
}

// FailureReason returns the reason recorded by SetFailed, if any.
func (s *ExecutionState) FailureReason() string {
	for i := len(s.NodeHistory) - 1; i >= 0; i-- {
		entry := s.NodeHistory[i]
		if entry.Outcome == OutcomeFailed {
			if reason, ok := entry.Metadata["reason"].(string); ok {
				return reason
			}
		}
	}
	return ""
}

// Snapshot returns a deep copy. Executors receive snapshots so they cannot
// mutate control state.
func (s *ExecutionState) Snapshot() *ExecutionState {
	data, err := json.Marshal(s)
	if err != nil {
		// The state is built from JSON-compatible values only; a marshal
		// failure here means engine-internal corruption.
		panic(fmt.Sprintf("workflow: state %s not serializable: %v", s.ExecutionID, err))
	}
	var out ExecutionState
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("workflow: state %s round-trip failed: %v", s.ExecutionID, err))
	}
	return &out
}

// MarshalState serializes a state for persistence.
func MarshalState(s *ExecutionState) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState restores a persisted state.
func UnmarshalState(data []byte) (*ExecutionState, error) {
	var s ExecutionState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode execution state: %w", err)
	}
	if s.RetryCounts == nil {
		s.RetryCounts = make(map[string]int)
	}
	if s.ContextState == nil {
		s.ContextState = make(ContextState)
	}
	return &s, nil
}

// FindGeneratingNode scans the history backward for the most recent
// generation-task execution before this point and returns its node ID, or ""
// if no task node has executed yet. QA-failure retries are charged to that
// node.
func FindGeneratingNode(plan *Plan, state *ExecutionState) string {
	for i := len(state.NodeHistory) - 1; i >= 0; i-- {
		node, ok := plan.Node(state.NodeHistory[i].NodeID)
		if ok && node.Type == NodeTypeTask {
			return node.NodeID
		}
	}
	return ""
}
