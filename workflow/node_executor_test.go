package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRegistryLookup(t *testing.T) {
	reg := NewExecutorRegistry()
	_, err := reg.For(NodeTypeTask)
	require.Error(t, err)

	exec := &TerminalExecutor{}
	reg.Register(NodeTypeEnd, exec)
	got, err := reg.For(NodeTypeEnd)
	require.NoError(t, err)
	assert.Same(t, exec, got)
}

func TestTerminalExecutorEchoesOutcomes(t *testing.T) {
	node := &Node{NodeID: "done", Type: NodeTypeEnd, TerminalOutcome: "delivered", GateOutcome: "approved"}
	result, err := (&TerminalExecutor{}).Execute(context.Background(), node, &ExecContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "delivered", result.Outcome)
	assert.Equal(t, "approved", result.Metadata["gate_outcome"])
}

func TestGateExecutorPausesForConsent(t *testing.T) {
	node := &Node{
		NodeID:          "consent",
		Type:            NodeTypeGate,
		RequiresConsent: true,
		Prompt:          "Approve the PRD?",
		GateOutcomes:    []string{"approved", "rejected"},
	}
	result, err := (&GateExecutor{}).Execute(context.Background(), node, &ExecContext{}, nil)
	require.NoError(t, err)
	assert.True(t, result.RequiresUserInput)
	assert.Equal(t, "Approve the PRD?", result.UserPrompt)
	assert.Equal(t, []string{"approved", "rejected"}, result.UserChoices)
}

func TestGateExecutorDefaultChoices(t *testing.T) {
	node := &Node{NodeID: "consent", Type: NodeTypeGate, RequiresConsent: true}
	result, err := (&GateExecutor{}).Execute(context.Background(), node, &ExecContext{}, nil)
	require.NoError(t, err)
	assert.True(t, result.RequiresUserInput)
	assert.Equal(t, defaultGateChoices, result.UserChoices)
	assert.NotEmpty(t, result.UserPrompt)
}

func TestGateExecutorReportsSubmittedChoice(t *testing.T) {
	node := &Node{NodeID: "consent", Type: NodeTypeGate, RequiresConsent: true}
	result, err := (&GateExecutor{}).Execute(context.Background(), node, &ExecContext{UserChoice: "approved"}, nil)
	require.NoError(t, err)
	assert.False(t, result.RequiresUserInput)
	assert.Equal(t, "approved", result.Outcome)
}

func TestGateExecutorWithoutConsentDefaultsToFirstOutcome(t *testing.T) {
	node := &Node{NodeID: "auto", Type: NodeTypeGate, GateOutcomes: []string{"ready", "not_ready"}}
	result, err := (&GateExecutor{}).Execute(context.Background(), node, &ExecContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ready", result.Outcome)

	bare := &Node{NodeID: "bare", Type: NodeTypeGate}
	result, err = (&GateExecutor{}).Execute(context.Background(), bare, &ExecContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
}

func TestIntakeGateExecutorClassifies(t *testing.T) {
	exec := &IntakeGateExecutor{
		Classify: func(_ context.Context, ec *ExecContext) (string, error) {
			if ec.ContextState["complexity"] == "high" {
				return "full_track", nil
			}
			return "fast_track", nil
		},
	}
	node := &Node{NodeID: "intake", Type: NodeTypeIntakeGate}

	result, err := exec.Execute(context.Background(), node, &ExecContext{ContextState: ContextState{"complexity": "high"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "full_track", result.Outcome)
}

func TestIntakeGateExecutorPrefersSubmittedChoice(t *testing.T) {
	exec := &IntakeGateExecutor{
		Classify: func(context.Context, *ExecContext) (string, error) { return "fast_track", nil },
	}
	node := &Node{NodeID: "intake", Type: NodeTypeIntakeGate}
	result, err := exec.Execute(context.Background(), node, &ExecContext{UserChoice: "full_track"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "full_track", result.Outcome)
}

func TestIntakeGateExecutorPausesWithoutClassifier(t *testing.T) {
	node := &Node{NodeID: "intake", Type: NodeTypeIntakeGate, GateOutcomes: []string{"fast_track", "full_track"}}
	result, err := (&IntakeGateExecutor{}).Execute(context.Background(), node, &ExecContext{}, nil)
	require.NoError(t, err)
	assert.True(t, result.RequiresUserInput)
	assert.Equal(t, []string{"fast_track", "full_track"}, result.UserChoices)
}
