package workflow

import "fmt"

// ValidationResult is the structured outcome of validating a plan definition.
// All violations are collected so the author sees everything at once; the
// validator never fails fast on the first error.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidatePlan checks a raw definition in four ordered phases:
//
//	a. schema shape: required fields, valid enums, end nodes carry outcomes
//	b. graph integrity: edge endpoints resolve, entries exist, non-terminal
//	   nodes have outbound edges, reachability (unreachable is a warning)
//	c. outcome-mapping completeness: every gate outcome is mapped
//	d. governance shape: circuit breaker max_retries is a positive integer
//
// If phase a fails, later phases are skipped: graph checks over a malformed
// shape would only produce noise.
func ValidatePlan(def *PlanDefinition) *ValidationResult {
	result := &ValidationResult{}
	if def == nil {
		result.errorf("definition is nil")
		return result
	}

	validateShape(def, result)
	if len(result.Errors) > 0 {
		return result
	}

	validateGraph(def, result)
	validateOutcomeCoverage(def, result)
	validateGovernance(def, result)

	result.Valid = len(result.Errors) == 0
	return result
}

// validateShape is phase a.
func validateShape(def *PlanDefinition, result *ValidationResult) {
	if def.WorkflowID == "" {
		result.errorf("workflow_id is required")
	}
	if def.DocumentType == "" {
		result.errorf("document_type is required")
	}
	if len(def.EntryNodeIDs) == 0 {
		result.errorf("entry_node_ids must list at least one node")
	}
	if len(def.Nodes) == 0 {
		result.errorf("nodes must not be empty")
	}

	seen := make(map[string]bool, len(def.Nodes))
	for i, n := range def.Nodes {
		if n.NodeID == "" {
			result.errorf("nodes[%d]: node_id is required", i)
			continue
		}
		if seen[n.NodeID] {
			result.errorf("node %q: duplicate node_id", n.NodeID)
		}
		seen[n.NodeID] = true

		if !validNodeTypes[NodeType(n.Type)] {
			result.errorf("node %q: invalid type %q", n.NodeID, n.Type)
			continue
		}
		if NodeType(n.Type) == NodeTypeEnd && n.TerminalOutcome == "" {
			result.errorf("node %q: end nodes must carry terminal_outcome", n.NodeID)
		}
	}

	for i, e := range def.Edges {
		if e.EdgeID == "" {
			result.errorf("edges[%d]: edge_id is required", i)
		}
		if e.FromNodeID == "" {
			result.errorf("edge %q: from_node_id is required", e.EdgeID)
		}
		if e.Outcome == "" {
			result.errorf("edge %q: outcome is required", e.EdgeID)
		}
		for j, c := range e.Conditions {
			if !validConditionTypes[c.Type] {
				result.errorf("edge %q: conditions[%d]: unknown condition type %q", e.EdgeID, j, c.Type)
			}
			if !validOperators[ConditionOperator(c.Operator)] {
				result.errorf("edge %q: conditions[%d]: invalid operator %q", e.EdgeID, j, c.Operator)
			}
		}
	}
}

// validateGraph is phase b.
func validateGraph(def *PlanDefinition, result *ValidationResult) {
	nodes := make(map[string]NodeDefinition, len(def.Nodes))
	for _, n := range def.Nodes {
		nodes[n.NodeID] = n
	}

	outbound := make(map[string]int, len(def.Nodes))
	adjacency := make(map[string][]string, len(def.Nodes))
	for _, e := range def.Edges {
		if _, ok := nodes[e.FromNodeID]; !ok {
			result.errorf("edge %q: from_node_id %q is not a declared node", e.EdgeID, e.FromNodeID)
			continue
		}
		outbound[e.FromNodeID]++
		if e.ToNodeID != nil && *e.ToNodeID != "" {
			if _, ok := nodes[*e.ToNodeID]; !ok {
				result.errorf("edge %q: to_node_id %q is not a declared node", e.EdgeID, *e.ToNodeID)
				continue
			}
			adjacency[e.FromNodeID] = append(adjacency[e.FromNodeID], *e.ToNodeID)
		}
	}

	for _, entry := range def.EntryNodeIDs {
		if _, ok := nodes[entry]; !ok {
			result.errorf("entry node %q is not a declared node", entry)
		}
	}

	for _, n := range def.Nodes {
		if NodeType(n.Type) != NodeTypeEnd && outbound[n.NodeID] == 0 {
			result.errorf("node %q: non-terminal node has no outbound edges", n.NodeID)
		}
	}

	// BFS from the entry nodes. Unreachable nodes are suspicious but not
	// fatal: plan families sometimes stage nodes ahead of wiring them.
	visited := make(map[string]bool, len(nodes))
	queue := make([]string, 0, len(def.EntryNodeIDs))
	for _, entry := range def.EntryNodeIDs {
		if _, ok := nodes[entry]; ok && !visited[entry] {
			visited[entry] = true
			queue = append(queue, entry)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, n := range def.Nodes {
		if !visited[n.NodeID] {
			result.warnf("node %q is unreachable from the entry nodes", n.NodeID)
		}
	}
}

// validateOutcomeCoverage is phase c.
func validateOutcomeCoverage(def *PlanDefinition, result *ValidationResult) {
	mapped := make(map[string]bool, len(def.OutcomeMapping.Mappings))
	for _, m := range def.OutcomeMapping.Mappings {
		mapped[m.GateOutcome] = true
	}
	for _, n := range def.Nodes {
		if NodeType(n.Type) != NodeTypeGate && NodeType(n.Type) != NodeTypeIntakeGate {
			continue
		}
		for _, outcome := range n.GateOutcomes {
			if !mapped[outcome] {
				result.errorf("node %q: gate outcome %q is not covered by outcome_mapping", n.NodeID, outcome)
			}
		}
	}
}

// validateGovernance is phase d.
func validateGovernance(def *PlanDefinition, result *ValidationResult) {
	cb := def.Governance.CircuitBreaker
	if cb != nil && cb.MaxRetries <= 0 {
		result.errorf("governance.circuit_breaker.max_retries must be a positive integer, got %d", cb.MaxRetries)
	}
}
