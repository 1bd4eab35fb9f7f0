package workflow

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// Routing is a pure function: for any state the router must be
// deterministic, must only follow edges whose outcome matches, and must
// pick the first matching edge in declaration order.
func TestRouterProperties(t *testing.T) {
	plan, err := NewLoader(nil).LoadBytes([]byte(reviewPlanYAML))
	require.NoError(t, err)
	router := NewEdgeRouter(plan)

	nodeIDs := make([]string, 0, len(plan.Nodes))
	for _, n := range plan.Nodes {
		nodeIDs = append(nodeIDs, n.NodeID)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	genState := func(retries int) *ExecutionState {
		state := NewExecutionState(plan.WorkflowID, "p", "prd", "draft", nil)
		state.GeneratingNodeID = "draft"
		for i := 0; i < retries; i++ {
			state.IncrementRetry("draft")
		}
		return state
	}

	properties.Property("routing is deterministic", prop.ForAll(
		func(nodeIdx int, outcome string, retries int) bool {
			nodeID := nodeIDs[nodeIdx%len(nodeIDs)]
			state := genState(retries)
			next1, edge1 := router.NextNode(nodeID, outcome, state)
			next2, edge2 := router.NextNode(nodeID, outcome, state)
			return next1 == next2 && edge1 == edge2
		},
		gen.IntRange(0, len(nodeIDs)-1),
		gen.OneConstOf("success", "failed", "approved", "rejected", "bogus"),
		gen.IntRange(0, 5),
	))

	properties.Property("matched edge carries the reported outcome", prop.ForAll(
		func(nodeIdx int, outcome string, retries int) bool {
			nodeID := nodeIDs[nodeIdx%len(nodeIDs)]
			_, edge := router.NextNode(nodeID, outcome, genState(retries))
			return edge == nil || edge.Outcome == outcome
		},
		gen.IntRange(0, len(nodeIDs)-1),
		gen.OneConstOf("success", "failed", "approved", "rejected", "bogus"),
		gen.IntRange(0, 5),
	))

	properties.Property("first matching edge in declaration order wins", prop.ForAll(
		func(nodeIdx int, outcome string, retries int) bool {
			nodeID := nodeIDs[nodeIdx%len(nodeIDs)]
			state := genState(retries)
			_, edge := router.NextNode(nodeID, outcome, state)
			for _, candidate := range plan.EdgesFrom(nodeID) {
				if candidate.Outcome != outcome || !router.conditionsHold(candidate, state) {
					continue
				}
				return edge == candidate
			}
			return edge == nil
		},
		gen.IntRange(0, len(nodeIDs)-1),
		gen.OneConstOf("success", "failed", "approved", "rejected", "bogus"),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
