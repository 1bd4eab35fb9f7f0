package workflow

// NodeType identifies the kind of work a plan node performs.
type NodeType string

const (
	// NodeTypeTask is an LLM generation task that produces a document.
	NodeTypeTask NodeType = "task"
	// NodeTypeQA is a quality-assurance check over produced content.
	NodeTypeQA NodeType = "qa"
	// NodeTypeGate is a decision gate, typically requiring human consent.
	NodeTypeGate NodeType = "gate"
	// NodeTypeIntakeGate is an intake-classification gate.
	NodeTypeIntakeGate NodeType = "intake_gate"
	// NodeTypeEnd is a terminal node carrying the run's final outcomes.
	NodeTypeEnd NodeType = "end"
)

// validNodeTypes is the closed vocabulary the validator accepts.
var validNodeTypes = map[NodeType]bool{
	NodeTypeTask:       true,
	NodeTypeQA:         true,
	NodeTypeGate:       true,
	NodeTypeIntakeGate: true,
	NodeTypeEnd:        true,
}

// Outcome strings shared by the built-in executors.
const (
	// OutcomeSuccess is the default success outcome reported by executors.
	OutcomeSuccess = "success"
	// OutcomeFailed is the failure outcome reported by QA executors.
	OutcomeFailed = "failed"
	// TerminalOutcomeAbandoned is the fixed terminal outcome used when a
	// human abandons an escalated run.
	TerminalOutcomeAbandoned = "abandoned"
)

// ConditionOperator is the comparison operator of an edge condition.
type ConditionOperator string

const (
	OpEq  ConditionOperator = "eq"
	OpNe  ConditionOperator = "ne"
	OpLt  ConditionOperator = "lt"
	OpLte ConditionOperator = "lte"
	OpGt  ConditionOperator = "gt"
	OpGte ConditionOperator = "gte"
)

var validOperators = map[ConditionOperator]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true,
}

// Condition types form a closed vocabulary of state-derived values.
const (
	// ConditionRetryCount resolves to the retry count of the generating
	// node if one is tracked, otherwise of the current node.
	ConditionRetryCount = "retry_count"
	// ConditionStatus resolves to the execution status string.
	ConditionStatus = "status"
	// ConditionEscalationActive resolves to the escalation flag.
	ConditionEscalationActive = "escalation_active"
)

var validConditionTypes = map[string]bool{
	ConditionRetryCount:       true,
	ConditionStatus:           true,
	ConditionEscalationActive: true,
}

// Node is a unit of work in the plan graph. Only the fields relevant to the
// node's type are populated.
type Node struct {
	// NodeID is unique within the plan.
	NodeID string
	// Type is the node kind.
	Type NodeType
	// TaskRef references the prompt used by task nodes.
	TaskRef string
	// Produces names the document key a task node writes.
	Produces string
	// RequiresQA marks a task node whose output must pass QA.
	RequiresQA bool
	// RequiresConsent marks a gate node that must pause for a human.
	RequiresConsent bool
	// GateOutcomes lists the outcomes a gate node may report.
	GateOutcomes []string
	// Prompt is the question a consent gate asks.
	Prompt string
	// TerminalOutcome is the execution result an end node resolves to.
	TerminalOutcome string
	// GateOutcome is the governance decision an end node records, if any.
	GateOutcome string
}

// EdgeCondition is one predicate attached to an edge. All conditions on an
// edge must pass (AND semantics). Comparison against a value the state does
// not carry yields false, never an error.
type EdgeCondition struct {
	Type     string
	Operator ConditionOperator
	Value    any
}

// Edge is a directed, conditioned transition keyed by the outcome it matches.
// A nil target (ToNodeID == "") marks a non-advancing edge: a circuit-breaker
// trip point whose EscalationOptions are offered to a human.
type Edge struct {
	EdgeID            string
	FromNodeID        string
	ToNodeID          string
	Outcome           string
	Conditions        []EdgeCondition
	EscalationOptions []string
}

// NonAdvancing reports whether the edge has no target node.
func (e *Edge) NonAdvancing() bool {
	return e.ToNodeID == ""
}

// OutcomeMapping relates one governance (gate) outcome to one execution
// (terminal) outcome. The two vocabularies are never merged.
type OutcomeMapping struct {
	GateOutcome     string
	TerminalOutcome string
}

// CircuitBreakerConfig caps retries for the node types it applies to.
type CircuitBreakerConfig struct {
	MaxRetries int
	AppliesTo  []string
}

// Governance carries the plan's governance configuration.
type Governance struct {
	CircuitBreaker *CircuitBreakerConfig
	Staleness      string
	Downstream     []string
}

// ThreadOwnership declares whether the plan owns an external conversation
// thread and for what purpose.
type ThreadOwnership struct {
	Enabled bool
	Purpose string
}

// Plan is the immutable, validated definition of a workflow graph for one
// document type. Construct plans through a Loader; direct construction skips
// validation and index building.
type Plan struct {
	WorkflowID      string
	Version         string
	DocumentType    string
	EntryNodeIDs    []string
	Nodes           []*Node
	Edges           []*Edge
	OutcomeMappings []OutcomeMapping
	ThreadOwnership ThreadOwnership
	Governance      Governance

	nodesByID   map[string]*Node
	edgesByFrom map[string][]*Edge
}

// buildIndexes populates the lookup maps. Edge declaration order within a
// source node is preserved; the router depends on it for tie-breaking.
func (p *Plan) buildIndexes() {
	p.nodesByID = make(map[string]*Node, len(p.Nodes))
	for _, n := range p.Nodes {
		p.nodesByID[n.NodeID] = n
	}
	p.edgesByFrom = make(map[string][]*Edge, len(p.Nodes))
	for _, e := range p.Edges {
		p.edgesByFrom[e.FromNodeID] = append(p.edgesByFrom[e.FromNodeID], e)
	}
}

// Node returns the node with the given ID.
func (p *Plan) Node(nodeID string) (*Node, bool) {
	n, ok := p.nodesByID[nodeID]
	return n, ok
}

// EdgesFrom returns the outbound edges of a node in declaration order.
func (p *Plan) EdgesFrom(nodeID string) []*Edge {
	return p.edgesByFrom[nodeID]
}

// EntryNodeID returns the primary entry node.
func (p *Plan) EntryNodeID() string {
	if len(p.EntryNodeIDs) == 0 {
		return ""
	}
	return p.EntryNodeIDs[0]
}

// MaxRetries returns the circuit-breaker retry cap, or 0 if none configured.
func (p *Plan) MaxRetries() int {
	if p.Governance.CircuitBreaker == nil {
		return 0
	}
	return p.Governance.CircuitBreaker.MaxRetries
}
