package workflow

// Wire format for plan definitions. Field names here are the contract a plan
// author targets; the validator reports violations in these terms. Plans are
// YAML documents, and since YAML is a superset of JSON the same loader accepts
// JSON definitions unchanged.

// PlanDefinition is the raw, untrusted form of a plan.
type PlanDefinition struct {
	WorkflowID      string                    `yaml:"workflow_id" json:"workflow_id"`
	Version         string                    `yaml:"version" json:"version"`
	DocumentType    string                    `yaml:"document_type" json:"document_type"`
	EntryNodeIDs    []string                  `yaml:"entry_node_ids" json:"entry_node_ids"`
	Nodes           []NodeDefinition          `yaml:"nodes" json:"nodes"`
	Edges           []EdgeDefinition          `yaml:"edges" json:"edges"`
	OutcomeMapping  OutcomeMappingDefinition  `yaml:"outcome_mapping" json:"outcome_mapping"`
	ThreadOwnership ThreadOwnershipDefinition `yaml:"thread_ownership" json:"thread_ownership"`
	Governance      GovernanceDefinition      `yaml:"governance" json:"governance"`
}

// NodeDefinition is the raw form of one node.
type NodeDefinition struct {
	NodeID          string   `yaml:"node_id" json:"node_id"`
	Type            string   `yaml:"type" json:"type"`
	TaskRef         string   `yaml:"task_ref,omitempty" json:"task_ref,omitempty"`
	Produces        string   `yaml:"produces,omitempty" json:"produces,omitempty"`
	RequiresQA      bool     `yaml:"requires_qa,omitempty" json:"requires_qa,omitempty"`
	RequiresConsent bool     `yaml:"requires_consent,omitempty" json:"requires_consent,omitempty"`
	GateOutcomes    []string `yaml:"gate_outcomes,omitempty" json:"gate_outcomes,omitempty"`
	Prompt          string   `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	TerminalOutcome string   `yaml:"terminal_outcome,omitempty" json:"terminal_outcome,omitempty"`
	GateOutcome     string   `yaml:"gate_outcome,omitempty" json:"gate_outcome,omitempty"`
}

// EdgeDefinition is the raw form of one edge. A missing or null to_node_id
// declares a non-advancing (circuit-breaker) edge.
type EdgeDefinition struct {
	EdgeID            string                `yaml:"edge_id" json:"edge_id"`
	FromNodeID        string                `yaml:"from_node_id" json:"from_node_id"`
	ToNodeID          *string               `yaml:"to_node_id" json:"to_node_id"`
	Outcome           string                `yaml:"outcome" json:"outcome"`
	Conditions        []ConditionDefinition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	EscalationOptions []string              `yaml:"escalation_options,omitempty" json:"escalation_options,omitempty"`
}

// ConditionDefinition is the raw form of one edge condition.
type ConditionDefinition struct {
	Type     string `yaml:"type" json:"type"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value" json:"value"`
}

// OutcomeMappingDefinition wraps the gate→terminal outcome pairs.
type OutcomeMappingDefinition struct {
	Mappings []OutcomeMappingEntry `yaml:"mappings" json:"mappings"`
}

// OutcomeMappingEntry is one gate→terminal outcome pair.
type OutcomeMappingEntry struct {
	GateOutcome     string `yaml:"gate_outcome" json:"gate_outcome"`
	TerminalOutcome string `yaml:"terminal_outcome" json:"terminal_outcome"`
}

// ThreadOwnershipDefinition is the raw thread-ownership declaration.
type ThreadOwnershipDefinition struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Purpose string `yaml:"purpose,omitempty" json:"purpose,omitempty"`
}

// GovernanceDefinition is the raw governance configuration.
type GovernanceDefinition struct {
	CircuitBreaker *CircuitBreakerDefinition `yaml:"circuit_breaker,omitempty" json:"circuit_breaker,omitempty"`
	Staleness      string                    `yaml:"staleness,omitempty" json:"staleness,omitempty"`
	Downstream     []string                  `yaml:"downstream,omitempty" json:"downstream,omitempty"`
}

// CircuitBreakerDefinition is the raw circuit-breaker configuration.
type CircuitBreakerDefinition struct {
	MaxRetries int      `yaml:"max_retries" json:"max_retries"`
	AppliesTo  []string `yaml:"applies_to,omitempty" json:"applies_to,omitempty"`
}
