package workflow

// EdgeRouter selects the next node for a (current node, outcome, state)
// triple. It is a pure function of its inputs: no I/O, no mutation, and the
// same inputs always produce the same route.
type EdgeRouter struct {
	plan *Plan
}

// NewEdgeRouter creates a router over one plan.
func NewEdgeRouter(plan *Plan) *EdgeRouter {
	return &EdgeRouter{plan: plan}
}

// NextNode returns the target of the first matching edge, in declaration
// order, whose outcome equals the reported outcome and whose conditions all
// hold against the state.
//
//   - no edge matches: ("", nil). The caller treats this as a routing
//     failure, never as a retry.
//   - the matched edge is non-advancing: ("", edge). A circuit-breaker trip
//     point; the caller inspects the edge's escalation options.
//
// When several edges match, the first one declared in the plan wins.
func (r *EdgeRouter) NextNode(currentNodeID, outcome string, state *ExecutionState) (string, *Edge) {
	for _, edge := range r.plan.EdgesFrom(currentNodeID) {
		if edge.Outcome != outcome {
			continue
		}
		if !r.conditionsHold(edge, state) {
			continue
		}
		if edge.NonAdvancing() {
			return "", edge
		}
		return edge.ToNodeID, edge
	}
	return "", nil
}

// conditionsHold evaluates every condition on the edge (AND semantics).
func (r *EdgeRouter) conditionsHold(edge *Edge, state *ExecutionState) bool {
	for _, cond := range edge.Conditions {
		actual, ok := r.resolveConditionValue(cond.Type, state)
		if !ok {
			return false
		}
		if !compare(cond.Operator, actual, cond.Value) {
			return false
		}
	}
	return true
}

// resolveConditionValue maps a condition type to the state value it compares
// against. The vocabulary is closed; an unknown type resolves to nothing and
// the condition fails.
func (r *EdgeRouter) resolveConditionValue(condType string, state *ExecutionState) (any, bool) {
	if state == nil {
		return nil, false
	}
	switch condType {
	case ConditionRetryCount:
		nodeID := state.GeneratingNodeID
		if nodeID == "" {
			nodeID = state.CurrentNodeID
		}
		return state.RetryCount(nodeID), true
	case ConditionStatus:
		return string(state.Status), true
	case ConditionEscalationActive:
		return state.EscalationActive, true
	default:
		return nil, false
	}
}

// IsTerminalNode reports whether the node is an end node.
func (r *EdgeRouter) IsTerminalNode(nodeID string) bool {
	node, ok := r.plan.Node(nodeID)
	return ok && node.Type == NodeTypeEnd
}

// TerminalOutcome returns the execution outcome an end node carries.
func (r *EdgeRouter) TerminalOutcome(nodeID string) string {
	if node, ok := r.plan.Node(nodeID); ok {
		return node.TerminalOutcome
	}
	return ""
}

// GateOutcome returns the governance outcome an end node carries, if any.
func (r *EdgeRouter) GateOutcome(nodeID string) string {
	if node, ok := r.plan.Node(nodeID); ok {
		return node.GateOutcome
	}
	return ""
}

// EscalationOptions returns the choices a non-advancing edge offers.
func (r *EdgeRouter) EscalationOptions(edge *Edge) []string {
	if edge == nil {
		return nil
	}
	return edge.EscalationOptions
}

// ValidateOutcome reports whether at least one edge leaves the node for the
// given outcome, ignoring conditions. It plays no part in control flow.
func (r *EdgeRouter) ValidateOutcome(nodeID, outcome string) bool {
	for _, edge := range r.plan.EdgesFrom(nodeID) {
		if edge.Outcome == outcome {
			return true
		}
	}
	return false
}

// compare applies the operator. A nil actual value yields false for every
// operator; ordering operators require both sides to be numeric.
func compare(op ConditionOperator, actual, expected any) bool {
	if actual == nil {
		return false
	}
	switch op {
	case OpEq:
		return looseEqual(actual, expected)
	case OpNe:
		return !looseEqual(actual, expected)
	case OpLt, OpLte, OpGt, OpGte:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false
		}
		switch op {
		case OpLt:
			return a < b
		case OpLte:
			return a <= b
		case OpGt:
			return a > b
		default:
			return a >= b
		}
	default:
		return false
	}
}

// looseEqual compares values after normalizing numeric types, so a YAML int
// matches a state int regardless of width.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
