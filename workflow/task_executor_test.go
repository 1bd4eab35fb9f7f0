package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/llm"
)

type fakeProvider struct {
	response string
	err      error
	lastMsgs []llm.Message
}

func (p *fakeProvider) Complete(_ context.Context, messages []llm.Message, _ *llm.CompleteOptions) (string, error) {
	p.lastMsgs = messages
	return p.response, p.err
}

func (p *fakeProvider) Name() string { return "fake" }

type fakePromptStore map[string]string

func (s fakePromptStore) TaskPrompt(_ context.Context, ref string) (string, error) {
	prompt, ok := s[ref]
	if !ok {
		return "", errors.New("prompt not found: " + ref)
	}
	return prompt, nil
}

func TestTaskExecutorProducesDocument(t *testing.T) {
	provider := &fakeProvider{response: `{"title": "PRD", "goals": ["ship"]}`}
	exec := NewTaskExecutor(provider, fakePromptStore{"prd_draft": "You write PRDs."}, nil, nil)
	node := &Node{NodeID: "draft", Type: NodeTypeTask, TaskRef: "prd_draft", Produces: "prd"}

	result, err := exec.Execute(context.Background(), node, &ExecContext{ContextState: make(ContextState)}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "PRD", result.Document["title"])
	assert.Equal(t, "prd", result.Metadata["produces"])
	assert.Equal(t, "fake", result.Metadata["provider"])

	require.NotEmpty(t, provider.lastMsgs)
	assert.Equal(t, llm.RoleSystem, provider.lastMsgs[0].Role)
	assert.Equal(t, "You write PRDs.", provider.lastMsgs[0].Content)
}

func TestTaskExecutorFoldsDocumentsAndFeedback(t *testing.T) {
	provider := &fakeProvider{response: `{"title": "v2"}`}
	exec := NewTaskExecutor(provider, fakePromptStore{"prd_draft": "prompt"}, nil, nil)
	node := &Node{NodeID: "draft", Type: NodeTypeTask, TaskRef: "prd_draft", Produces: "prd"}

	cs := make(ContextState)
	cs.SetQAFeedback([]any{"missing acceptance criteria"})
	ec := &ExecContext{
		Documents:    map[string]map[string]any{"brief": {"summary": "a tool"}},
		ContextState: cs,
		UserInput:    "keep it short",
	}

	_, err := exec.Execute(context.Background(), node, ec, nil)
	require.NoError(t, err)

	require.Len(t, provider.lastMsgs, 2)
	user := provider.lastMsgs[1].Content
	assert.Contains(t, user, `"brief"`)
	assert.Contains(t, user, "missing acceptance criteria")
	assert.Contains(t, user, "keep it short")
}

func TestTaskExecutorPromptMissing(t *testing.T) {
	exec := NewTaskExecutor(&fakeProvider{}, fakePromptStore{}, nil, nil)
	node := &Node{NodeID: "draft", Type: NodeTypeTask, TaskRef: "ghost"}

	_, err := exec.Execute(context.Background(), node, &ExecContext{ContextState: make(ContextState)}, nil)
	require.Error(t, err)
}

func TestTaskExecutorProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rate limited")}
	exec := NewTaskExecutor(provider, fakePromptStore{"prd_draft": "prompt"}, nil, nil)
	node := &Node{NodeID: "draft", Type: NodeTypeTask, TaskRef: "prd_draft"}

	_, err := exec.Execute(context.Background(), node, &ExecContext{ContextState: make(ContextState)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion failed")
}

func TestParseDocument(t *testing.T) {
	doc := parseDocument(`{"title": "x"}`)
	assert.Equal(t, "x", doc["title"])

	doc = parseDocument("```json\n{\"title\": \"fenced\"}\n```")
	assert.Equal(t, "fenced", doc["title"])

	doc = parseDocument("plain prose, not JSON")
	assert.Equal(t, "plain prose, not JSON", doc["content"])
}

type fakeValidator struct {
	valid      bool
	violations []string
	err        error
}

func (v *fakeValidator) Validate(context.Context, map[string]any, string) (bool, []string, error) {
	return v.valid, v.violations, v.err
}

func qaState(produces string) *ExecutionState {
	state := NewExecutionState("w", "p", "d", "review", nil)
	state.RecordExecution("draft", OutcomeSuccess, map[string]any{"produces": produces})
	return state
}

func TestQAExecutorPassesCleanDocument(t *testing.T) {
	exec := NewQAExecutor(&fakeValidator{valid: true}, nil)
	node := &Node{NodeID: "review", Type: NodeTypeQA, TaskRef: "prd_schema"}
	ec := &ExecContext{Documents: map[string]map[string]any{"prd": {"title": "x"}}}

	state := qaState("prd")
	result, err := exec.Execute(context.Background(), node, ec, state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "prd", result.Metadata["document"])
	// The QA executor never touches retry counters; that is the engine's job.
	assert.Empty(t, state.RetryCounts)
}

func TestQAExecutorReportsIssues(t *testing.T) {
	exec := NewQAExecutor(&fakeValidator{valid: false, violations: []string{"title missing"}}, nil)
	exec.Review = func(context.Context, map[string]any) ([]string, error) {
		return []string{"goals are vague"}, nil
	}
	node := &Node{NodeID: "review", Type: NodeTypeQA, TaskRef: "prd_schema"}
	ec := &ExecContext{Documents: map[string]map[string]any{"prd": {"x": 1}}}

	result, err := exec.Execute(context.Background(), node, ec, qaState("prd"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, []string{"title missing", "goals are vague"}, result.Metadata["issues"])
}

func TestQAExecutorNoDocument(t *testing.T) {
	exec := NewQAExecutor(nil, nil)
	node := &Node{NodeID: "review", Type: NodeTypeQA}
	state := NewExecutionState("w", "p", "d", "review", nil)

	_, err := exec.Execute(context.Background(), node, &ExecContext{}, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no document to review")
}

func TestQAExecutorFallsBackToSingleDocument(t *testing.T) {
	exec := NewQAExecutor(nil, nil)
	exec.Review = func(context.Context, map[string]any) ([]string, error) { return nil, nil }
	node := &Node{NodeID: "review", Type: NodeTypeQA}
	state := NewExecutionState("w", "p", "d", "review", nil)
	ec := &ExecContext{Documents: map[string]map[string]any{"prd": {"title": "x"}}}

	result, err := exec.Execute(context.Background(), node, ec, state)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
}
