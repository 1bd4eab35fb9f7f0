package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeMapperMap(t *testing.T) {
	m := NewOutcomeMapper([]OutcomeMapping{
		{GateOutcome: "approved", TerminalOutcome: "delivered"},
		{GateOutcome: "rejected", TerminalOutcome: "halted"},
	})

	terminal, err := m.Map("approved")
	require.NoError(t, err)
	assert.Equal(t, "delivered", terminal)

	terminal, err = m.Map("rejected")
	require.NoError(t, err)
	assert.Equal(t, "halted", terminal)
}

func TestOutcomeMapperUnmapped(t *testing.T) {
	m := NewOutcomeMapper([]OutcomeMapping{
		{GateOutcome: "approved", TerminalOutcome: "delivered"},
	})

	_, err := m.Map("maybe")
	require.ErrorIs(t, err, ErrUnmappedGateOutcome)
	assert.Contains(t, err.Error(), `"maybe"`)
	assert.Contains(t, err.Error(), "approved")
}

func TestOutcomeMapperMapOptional(t *testing.T) {
	m := NewOutcomeMapper([]OutcomeMapping{
		{GateOutcome: "approved", TerminalOutcome: "delivered"},
	})

	terminal, ok := m.MapOptional("approved")
	assert.True(t, ok)
	assert.Equal(t, "delivered", terminal)

	_, ok = m.MapOptional("maybe")
	assert.False(t, ok)
}

func TestOutcomeMapperKeysSorted(t *testing.T) {
	m := NewOutcomeMapper([]OutcomeMapping{
		{GateOutcome: "zeta", TerminalOutcome: "z"},
		{GateOutcome: "alpha", TerminalOutcome: "a"},
	})
	assert.Equal(t, []string{"alpha", "zeta"}, m.Keys())

	empty := NewOutcomeMapper(nil)
	assert.Empty(t, empty.Keys())
}
