// Package workflow implements the document-generation workflow engine:
// typed plans, plan validation and loading, persisted execution state,
// deterministic edge routing, outcome mapping, and the plan executor that
// orchestrates node executors against a state store.
//
// A Plan is an immutable graph of nodes (generation tasks, QA checks,
// decision gates, terminals) connected by outcome-keyed, conditioned edges.
// One ExecutionState records one run of a plan against one subject; it is
// persisted after every node completion so a run survives process restarts.
// Node executors report facts (an outcome string and optional artifacts);
// only the PlanExecutor and EdgeRouter decide control flow.
package workflow
