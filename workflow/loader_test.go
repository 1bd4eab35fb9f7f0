package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewPlanYAML = `
workflow_id: prd_workflow
version: "1.0.0"
document_type: prd
entry_node_ids: [draft]
nodes:
  - node_id: draft
    type: task
    task_ref: prd_draft
    produces: prd
    requires_qa: true
  - node_id: review
    type: qa
  - node_id: consent
    type: gate
    requires_consent: true
    prompt: "Approve the PRD?"
    gate_outcomes: [approved, rejected]
  - node_id: done
    type: end
    terminal_outcome: delivered
    gate_outcome: approved
  - node_id: halted
    type: end
    terminal_outcome: halted
    gate_outcome: rejected
edges:
  - edge_id: draft_to_review
    from_node_id: draft
    to_node_id: review
    outcome: success
  - edge_id: review_retry
    from_node_id: review
    to_node_id: draft
    outcome: failed
    conditions:
      - type: retry_count
        operator: lt
        value: 2
  - edge_id: review_breaker
    from_node_id: review
    to_node_id: null
    outcome: failed
    conditions:
      - type: retry_count
        operator: gte
        value: 2
    escalation_options: [retry, abandon, narrow_scope]
  - edge_id: review_pass
    from_node_id: review
    to_node_id: consent
    outcome: success
  - edge_id: consent_ok
    from_node_id: consent
    to_node_id: done
    outcome: approved
  - edge_id: consent_no
    from_node_id: consent
    to_node_id: halted
    outcome: rejected
outcome_mapping:
  mappings:
    - gate_outcome: approved
      terminal_outcome: delivered
    - gate_outcome: rejected
      terminal_outcome: halted
thread_ownership:
  enabled: true
  purpose: "prd authoring"
governance:
  circuit_breaker:
    max_retries: 2
    applies_to: [qa]
`

func TestLoadBytesBuildsTypedPlan(t *testing.T) {
	plan, err := NewLoader(nil).LoadBytes([]byte(reviewPlanYAML))
	require.NoError(t, err)

	assert.Equal(t, "prd_workflow", plan.WorkflowID)
	assert.Equal(t, "prd", plan.DocumentType)
	assert.Equal(t, "draft", plan.EntryNodeID())
	assert.Equal(t, 2, plan.MaxRetries())
	assert.True(t, plan.ThreadOwnership.Enabled)

	draft, ok := plan.Node("draft")
	require.True(t, ok)
	assert.Equal(t, NodeTypeTask, draft.Type)
	assert.True(t, draft.RequiresQA)

	// Outbound edge order must survive loading; the router's tie-break
	// depends on declaration order.
	fromReview := plan.EdgesFrom("review")
	require.Len(t, fromReview, 3)
	assert.Equal(t, "review_retry", fromReview[0].EdgeID)
	assert.Equal(t, "review_breaker", fromReview[1].EdgeID)
	assert.True(t, fromReview[1].NonAdvancing())
	assert.Equal(t, "review_pass", fromReview[2].EdgeID)

	require.Len(t, plan.OutcomeMappings, 2)
	assert.Equal(t, "approved", plan.OutcomeMappings[0].GateOutcome)
}

func TestLoadRejectsInvalidDefinition(t *testing.T) {
	def := validDefinition()
	def.Nodes[1].TerminalOutcome = ""

	_, err := NewLoader(nil).Load(def)
	require.Error(t, err)

	var loadErr *PlanLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "prd_workflow", loadErr.WorkflowID)
	assert.Len(t, loadErr.Errors, 1)
	assert.Zero(t, loadErr.Omitted)
}

func TestLoadCapsReportedErrors(t *testing.T) {
	def := validDefinition()
	// Seven bad edges produce more than the reporting cap.
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7"} {
		def.Edges = append(def.Edges, EdgeDefinition{
			EdgeID: id, FromNodeID: "ghost", ToNodeID: strptr("done"), Outcome: "success",
		})
	}

	_, err := NewLoader(nil).Load(def)
	var loadErr *PlanLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Len(t, loadErr.Errors, 5)
	assert.Equal(t, 2, loadErr.Omitted)
	assert.Contains(t, loadErr.Error(), "(and 2 more)")
}

func TestParseDefinitionRejectsMalformedYAML(t *testing.T) {
	_, err := NewLoader(nil).ParseDefinition([]byte("nodes: [unclosed"))
	require.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := NewLoader(nil).LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func writePlanFile(t *testing.T, dir, name, workflowID, version string) {
	t.Helper()
	def := `
workflow_id: ` + workflowID + `
version: "` + version + `"
document_type: ` + workflowID + `_doc
entry_node_ids: [start]
nodes:
  - node_id: start
    type: task
    task_ref: t
  - node_id: done
    type: end
    terminal_outcome: delivered
edges:
  - edge_id: e
    from_node_id: start
    to_node_id: done
    outcome: success
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(def), 0o644))
}

func TestLoadDirResolvesActiveVersionFromIndex(t *testing.T) {
	dir := t.TempDir()
	writePlanFile(t, dir, "prd_v1.yaml", "prd_workflow", "1.0.0")
	writePlanFile(t, dir, "prd_v2.yaml", "prd_workflow", "2.0.0")
	index := "active:\n  prd_workflow: \"1.0.0\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.yaml"), []byte(index), 0o644))

	plans, err := NewLoader(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "1.0.0", plans[0].Version)
}

func TestLoadDirFallsBackToHighestVersion(t *testing.T) {
	dir := t.TempDir()
	writePlanFile(t, dir, "prd_v1.yaml", "prd_workflow", "1.0.0")
	writePlanFile(t, dir, "prd_v2.yaml", "prd_workflow", "2.0.0")
	writePlanFile(t, dir, "arch.yaml", "arch_workflow", "1.1.0")

	plans, err := NewLoader(nil).LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	// Sorted by workflow ID.
	assert.Equal(t, "arch_workflow", plans[0].WorkflowID)
	assert.Equal(t, "prd_workflow", plans[1].WorkflowID)
	assert.Equal(t, "2.0.0", plans[1].Version)
}

func TestLoadDirSurfacesInvalidPlanFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("workflow_id: x\n"), 0o644))

	_, err := NewLoader(nil).LoadDir(dir)
	require.Error(t, err)
	var loadErr *PlanLoadError
	assert.True(t, errors.As(err, &loadErr))
}
