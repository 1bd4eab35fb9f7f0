package workflow

import (
	"fmt"
	"sort"
)

// OutcomeMapper is the pure lookup from the governance (gate) vocabulary to
// the execution (terminal) vocabulary. It is total on its declared domain and
// nothing else: no heuristics, no fallback guessing. The separation keeps
// governance reporting and execution-status reporting from collapsing into
// one ad hoc vocabulary.
type OutcomeMapper struct {
	mapping map[string]string
}

// NewOutcomeMapper builds the lookup table from a plan's mapping list.
func NewOutcomeMapper(mappings []OutcomeMapping) *OutcomeMapper {
	m := make(map[string]string, len(mappings))
	for _, entry := range mappings {
		m[entry.GateOutcome] = entry.TerminalOutcome
	}
	return &OutcomeMapper{mapping: m}
}

// Map returns the terminal outcome for a gate outcome, failing with the list
// of valid keys when the gate outcome is unmapped.
func (m *OutcomeMapper) Map(gateOutcome string) (string, error) {
	terminal, ok := m.mapping[gateOutcome]
	if !ok {
		return "", fmt.Errorf("%w: %q (valid: %v)", ErrUnmappedGateOutcome, gateOutcome, m.Keys())
	}
	return terminal, nil
}

// MapOptional returns the terminal outcome and whether the gate outcome was
// declared, instead of failing.
func (m *OutcomeMapper) MapOptional(gateOutcome string) (string, bool) {
	terminal, ok := m.mapping[gateOutcome]
	return terminal, ok
}

// Keys returns the declared gate outcomes in sorted order.
func (m *OutcomeMapper) Keys() []string {
	keys := make([]string, 0, len(m.mapping))
	for k := range m.mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
