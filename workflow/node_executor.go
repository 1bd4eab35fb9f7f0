package workflow

import (
	"context"
	"fmt"
	"sync"
)

// NodeResult is the fact sheet a node executor reports. Executors never see
// edges and never decide what happens next; they report an outcome plus
// optional artifacts, and the PlanExecutor and EdgeRouter do the rest.
type NodeResult struct {
	// Outcome drives edge selection. Required.
	Outcome string
	// Document is the artifact a task node produced, if any.
	Document map[string]any
	// RequiresUserInput pauses the execution until a human answers.
	RequiresUserInput bool
	UserPrompt        string
	UserChoices       []string
	// Payload and SchemaRef support structured input requests.
	Payload   map[string]any
	SchemaRef string
	// Metadata is recorded in the node history.
	Metadata map[string]any
}

// ExecContext is the mutable, node-scoped working data handed to executors:
// produced documents, submitted user input, and the context-state snapshot.
// Executors may mutate it freely; it is rebuilt for every step. It is
// distinct from ExecutionState, which only the PlanExecutor touches.
type ExecContext struct {
	// Documents maps produces-names to stored documents.
	Documents map[string]map[string]any
	// ContextState is a copy of the governed accumulator.
	ContextState ContextState
	// UserInput and UserChoice carry a pause answer when resuming.
	UserInput  string
	UserChoice string
}

// NodeExecutor is one pluggable unit of work per node type. The state
// argument is a snapshot: mutations to it are discarded.
type NodeExecutor interface {
	Execute(ctx context.Context, node *Node, ec *ExecContext, state *ExecutionState) (*NodeResult, error)
}

// ExecutorRegistry maps node types to their executors.
type ExecutorRegistry struct {
	mu        sync.RWMutex
	executors map[NodeType]NodeExecutor
}

// NewExecutorRegistry creates an empty executor registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: make(map[NodeType]NodeExecutor)}
}

// Register sets the executor for a node type, replacing any previous one.
func (r *ExecutorRegistry) Register(nodeType NodeType, executor NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[nodeType] = executor
}

// For returns the executor registered for a node type.
func (r *ExecutorRegistry) For(nodeType NodeType) (NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("no executor registered for node type %q", nodeType)
	}
	return executor, nil
}

// TerminalExecutor echoes an end node's configured outcomes. It makes no
// decisions; runs normally end when routing reaches the end node, so this
// only executes when an end node is itself the entry point.
type TerminalExecutor struct{}

// Execute implements NodeExecutor.
func (e *TerminalExecutor) Execute(_ context.Context, node *Node, _ *ExecContext, _ *ExecutionState) (*NodeResult, error) {
	return &NodeResult{
		Outcome: node.TerminalOutcome,
		Metadata: map[string]any{
			"gate_outcome": node.GateOutcome,
		},
	}, nil
}

// GateExecutor handles decision gates. A consent gate that has not been
// answered pauses with the plan-declared choices; once an answer arrives the
// gate reports it as the outcome.
type GateExecutor struct{}

// defaultGateChoices is offered when a consent gate declares no outcomes.
var defaultGateChoices = []string{"proceed", "not_ready"}

// Execute implements NodeExecutor.
func (e *GateExecutor) Execute(_ context.Context, node *Node, ec *ExecContext, _ *ExecutionState) (*NodeResult, error) {
	if ec.UserChoice != "" {
		return &NodeResult{
			Outcome:  ec.UserChoice,
			Metadata: map[string]any{"answered_by": "user"},
		}, nil
	}
	if node.RequiresConsent {
		choices := node.GateOutcomes
		if len(choices) == 0 {
			choices = defaultGateChoices
		}
		prompt := node.Prompt
		if prompt == "" {
			prompt = fmt.Sprintf("Decision required at %s", node.NodeID)
		}
		return &NodeResult{
			Outcome:           "awaiting_input",
			RequiresUserInput: true,
			UserPrompt:        prompt,
			UserChoices:       choices,
		}, nil
	}
	// A gate without consent requirements defaults to its first declared
	// outcome; plans that want richer behavior register a custom executor.
	if len(node.GateOutcomes) > 0 {
		return &NodeResult{Outcome: node.GateOutcomes[0]}, nil
	}
	return &NodeResult{Outcome: OutcomeSuccess}, nil
}

// IntakeGateExecutor handles intake-classification gates. Classification
// comes from the submitted choice when present, otherwise from a
// plan-injected classifier function.
type IntakeGateExecutor struct {
	// Classify derives a classification outcome from the working context.
	// Optional; without it an unanswered intake gate pauses for input.
	Classify func(ctx context.Context, ec *ExecContext) (string, error)
}

// Execute implements NodeExecutor.
func (e *IntakeGateExecutor) Execute(ctx context.Context, node *Node, ec *ExecContext, _ *ExecutionState) (*NodeResult, error) {
	if ec.UserChoice != "" {
		return &NodeResult{Outcome: ec.UserChoice}, nil
	}
	if e.Classify != nil {
		outcome, err := e.Classify(ctx, ec)
		if err != nil {
			return nil, fmt.Errorf("intake classification failed: %w", err)
		}
		return &NodeResult{Outcome: outcome, Metadata: map[string]any{"classified": true}}, nil
	}
	choices := node.GateOutcomes
	if len(choices) == 0 {
		choices = defaultGateChoices
	}
	return &NodeResult{
		Outcome:           "awaiting_input",
		RequiresUserInput: true,
		UserPrompt:        fmt.Sprintf("Classify intake at %s", node.NodeID),
		UserChoices:       choices,
	}, nil
}
