package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Engine error kinds. Callers dispatch with errors.Is rather than string
// matching; every runtime failure surfaced by the engine wraps one of these.
var (
	// ErrPlanNotFound indicates no plan is registered for the requested
	// workflow ID or document type.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrExecutionNotFound indicates no execution exists for the given ID.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrNotPaused indicates user input was submitted to an execution that
	// is not awaiting input.
	ErrNotPaused = errors.New("execution is not paused for input")

	// ErrNoMatchingEdge indicates no edge matched the reported outcome at
	// the current node. This is always fatal for the execution.
	ErrNoMatchingEdge = errors.New("no matching edge for outcome")

	// ErrNotEscalated indicates an escalation choice was submitted while no
	// escalation is active.
	ErrNotEscalated = errors.New("no active escalation")

	// ErrInvalidEscalationChoice indicates the submitted choice is not among
	// the offered escalation options.
	ErrInvalidEscalationChoice = errors.New("invalid escalation choice")

	// ErrInvalidChoice indicates a submitted user choice is not among the
	// choices the pause offered.
	ErrInvalidChoice = errors.New("invalid choice")

	// ErrEscalationActive indicates normal user input was submitted while a
	// circuit-breaker escalation is awaiting resolution.
	ErrEscalationActive = errors.New("escalation active, resolve it first")

	// ErrMaxStepsExceeded indicates a run exceeded its step budget. This
	// guards against plan-authoring bugs that auto-advance forever.
	ErrMaxStepsExceeded = errors.New("max steps exceeded")

	// ErrUnmappedGateOutcome indicates a gate outcome has no entry in the
	// plan's outcome mapping.
	ErrUnmappedGateOutcome = errors.New("unmapped gate outcome")

	// ErrNodeExecution wraps an unexpected failure inside a node executor.
	ErrNodeExecution = errors.New("node execution failed")
)

// PlanLoadError reports that a plan definition failed validation. It carries
// up to maxReportedErrors validation errors plus a count of the rest so the
// author sees the full extent of the damage without an unbounded message.
type PlanLoadError struct {
	WorkflowID string
	Errors     []string
	Omitted    int
}

const maxReportedErrors = 5

// NewPlanLoadError builds a PlanLoadError from the full validation error list.
func NewPlanLoadError(workflowID string, validationErrors []string) *PlanLoadError {
	e := &PlanLoadError{WorkflowID: workflowID}
	if len(validationErrors) > maxReportedErrors {
		e.Errors = validationErrors[:maxReportedErrors]
		e.Omitted = len(validationErrors) - maxReportedErrors
	} else {
		e.Errors = validationErrors
	}
	return e
}

func (e *PlanLoadError) Error() string {
	msg := fmt.Sprintf("plan %q failed validation: %s", e.WorkflowID, strings.Join(e.Errors, "; "))
	if e.Omitted > 0 {
		msg += fmt.Sprintf(" (and %d more)", e.Omitted)
	}
	return msg
}
