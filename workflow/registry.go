package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is an in-memory cache of loaded plans, keyed by workflow ID and
// secondarily by document type (one plan wins per document type). Production
// lifecycle is load-once-at-startup then read-only; the lock exists for
// correctness under tests and hot replacement, not for a write-heavy path.
//
// The registry is explicitly constructed and injected. There is no hidden
// package-level instance; tests create their own with NewRegistry.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*Plan
	byDocType map[string]*Plan
}

// NewRegistry creates an empty plan registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[string]*Plan),
		byDocType: make(map[string]*Plan),
	}
}

// Register adds a plan, failing if the workflow ID is already present.
func (r *Registry) Register(plan *Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[plan.WorkflowID]; exists {
		return fmt.Errorf("plan %q is already registered", plan.WorkflowID)
	}
	r.byID[plan.WorkflowID] = plan
	r.byDocType[plan.DocumentType] = plan
	return nil
}

// Replace upserts a plan and updates the document-type index. The most
// recently replaced plan wins for its document type.
func (r *Registry) Replace(plan *Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, exists := r.byID[plan.WorkflowID]; exists && r.byDocType[old.DocumentType] == old {
		delete(r.byDocType, old.DocumentType)
	}
	r.byID[plan.WorkflowID] = plan
	r.byDocType[plan.DocumentType] = plan
}

// Get returns the plan with the given workflow ID.
func (r *Registry) Get(workflowID string) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.byID[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", workflowID, ErrPlanNotFound)
	}
	return plan, nil
}

// GetByDocumentType returns the plan that produces the given document type.
func (r *Registry) GetByDocumentType(documentType string) (*Plan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plan, ok := r.byDocType[documentType]
	return plan, ok
}

// List returns all registered plans sorted by workflow ID.
func (r *Registry) List() []*Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plans := make([]*Plan, 0, len(r.byID))
	for _, p := range r.byID {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].WorkflowID < plans[j].WorkflowID })
	return plans
}

// Reset removes every plan. Test hook.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*Plan)
	r.byDocType = make(map[string]*Plan)
}
