package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docuflow/docuflow/llm"
)

// TaskExecutor runs generation-task nodes: it loads the node's prompt, folds
// in prior documents and any QA feedback from the working context, asks the
// completion provider for the document, and reports it under the node's
// produces-key. It is thin glue around the injected capabilities.
type TaskExecutor struct {
	provider llm.Provider
	prompts  llm.PromptStore
	opts     *llm.CompleteOptions
	logger   *zap.Logger
}

// NewTaskExecutor creates a task executor. A nil logger is replaced with a
// no-op; opts may be nil to use provider defaults.
func NewTaskExecutor(provider llm.Provider, prompts llm.PromptStore, opts *llm.CompleteOptions, logger *zap.Logger) *TaskExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskExecutor{
		provider: provider,
		prompts:  prompts,
		opts:     opts,
		logger:   logger.With(zap.String("component", "task_executor")),
	}
}

// Execute implements NodeExecutor.
func (e *TaskExecutor) Execute(ctx context.Context, node *Node, ec *ExecContext, _ *ExecutionState) (*NodeResult, error) {
	prompt, err := e.prompts.TaskPrompt(ctx, node.TaskRef)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", node.NodeID, err)
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: prompt}}
	if user := e.buildUserMessage(ec); user != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: user})
	}

	text, err := e.provider.Complete(ctx, messages, e.opts)
	if err != nil {
		return nil, fmt.Errorf("task %s: completion failed: %w", node.NodeID, err)
	}

	doc := parseDocument(text)
	e.logger.Debug("task produced document",
		zap.String("node_id", node.NodeID),
		zap.String("produces", node.Produces))

	return &NodeResult{
		Outcome:  OutcomeSuccess,
		Document: doc,
		Metadata: map[string]any{"produces": node.Produces, "provider": e.provider.Name()},
	}, nil
}

// buildUserMessage folds working-context facts into one user turn: existing
// documents as structured input, QA feedback when regenerating, and any
// free-form input the human submitted.
func (e *TaskExecutor) buildUserMessage(ec *ExecContext) string {
	var b strings.Builder
	for name, doc := range ec.Documents {
		if data, err := json.Marshal(doc); err == nil {
			fmt.Fprintf(&b, "Input document %q:\n%s\n\n", name, data)
		}
	}
	if issues, ok := ec.ContextState.QAFeedback(); ok && len(issues) > 0 {
		if data, err := json.Marshal(issues); err == nil {
			fmt.Fprintf(&b, "The previous attempt failed review. Address these issues:\n%s\n\n", data)
		}
	}
	if ec.UserInput != "" {
		fmt.Fprintf(&b, "User input:\n%s\n", ec.UserInput)
	}
	return strings.TrimSpace(b.String())
}

// parseDocument interprets the completion text as a JSON document when
// possible, falling back to wrapping raw text under "content".
func parseDocument(text string) map[string]any {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
		return doc
	}
	return map[string]any{"content": text}
}

// QAExecutor checks the most recently produced document. It reports
// "success" or "failed" with structured issues as metadata; it does NOT
// increment retry counters or decide whether the circuit breaker trips.
// That is computed downstream by the router's conditions and the
// PlanExecutor's post-processing.
type QAExecutor struct {
	validator llm.SchemaValidator
	// Review optionally adds a content-level check on top of schema shape.
	Review func(ctx context.Context, document map[string]any) ([]string, error)
	logger *zap.Logger
}

// NewQAExecutor creates a QA executor. The validator may be nil when plans
// rely on review-only QA.
func NewQAExecutor(validator llm.SchemaValidator, logger *zap.Logger) *QAExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QAExecutor{
		validator: validator,
		logger:    logger.With(zap.String("component", "qa_executor")),
	}
}

// Execute implements NodeExecutor. The document under review is the one
// produced by the most recent task node, located via the produces-key the
// task recorded.
func (e *QAExecutor) Execute(ctx context.Context, node *Node, ec *ExecContext, state *ExecutionState) (*NodeResult, error) {
	produces, doc, ok := latestDocument(ec, state)
	if !ok {
		return nil, fmt.Errorf("qa %s: no document to review", node.NodeID)
	}

	var issues []string
	if e.validator != nil && node.TaskRef != "" {
		valid, violations, err := e.validator.Validate(ctx, doc, node.TaskRef)
		if err != nil {
			return nil, fmt.Errorf("qa %s: validator failed: %w", node.NodeID, err)
		}
		if !valid {
			issues = append(issues, violations...)
		}
	}
	if e.Review != nil {
		found, err := e.Review(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("qa %s: review failed: %w", node.NodeID, err)
		}
		issues = append(issues, found...)
	}

	if len(issues) > 0 {
		e.logger.Info("qa failed",
			zap.String("node_id", node.NodeID),
			zap.String("document", produces),
			zap.Int("issues", len(issues)))
		return &NodeResult{
			Outcome:  OutcomeFailed,
			Metadata: map[string]any{"issues": issues, "document": produces},
		}, nil
	}
	return &NodeResult{
		Outcome:  OutcomeSuccess,
		Metadata: map[string]any{"document": produces},
	}, nil
}

// latestDocument finds the document produced by the most recent task node.
func latestDocument(ec *ExecContext, state *ExecutionState) (string, map[string]any, bool) {
	for i := len(state.NodeHistory) - 1; i >= 0; i-- {
		meta := state.NodeHistory[i].Metadata
		if meta == nil {
			continue
		}
		if produces, ok := meta["produces"].(string); ok && produces != "" {
			if doc, found := ec.Documents[produces]; found {
				return produces, doc, true
			}
		}
	}
	// Fall back to the single stored document when history carries no
	// produces metadata (hand-built states in tests).
	if len(ec.Documents) == 1 {
		for name, doc := range ec.Documents {
			return name, doc, true
		}
	}
	return "", nil, false
}
