package workflow

// Context-state key namespaces. Producers write under their own namespace so
// node types cannot collide on keys. The raw map stays JSON-compatible for
// persistence, but engine code goes through the named accessors.
const (
	// documentKeyPrefix scopes produced documents: "document_<produces>".
	documentKeyPrefix = "document_"
	// qaFeedbackKey holds structured issues from the last QA failure.
	qaFeedbackKey = "qa_feedback"
	// invariantsKey holds derived governance invariants.
	invariantsKey = "pgc_invariants"
	// escalationChoiceKey records the most recent human escalation choice.
	escalationChoiceKey = "escalation_choice"
)

// ContextState is the governed key-value accumulator carried across node
// executions. It is the only continuity mechanism between nodes: structured
// derived facts only, never raw conversational transcripts.
type ContextState map[string]any

// Merge shallow-merges delta into the state with replace-key semantics: an
// incoming key replaces the previous value entirely, including nested
// structure. Deep merging would silently change which nested document
// fields survive a partial update, so it is never done here.
func (c ContextState) Merge(delta map[string]any) {
	for k, v := range delta {
		c[k] = v
	}
}

// Clone returns a shallow copy of the top-level map.
func (c ContextState) Clone() ContextState {
	out := make(ContextState, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// DocumentKey returns the context key a produces-name is stored under.
func DocumentKey(produces string) string {
	return documentKeyPrefix + produces
}

// Document returns the stored document for a produces-name.
func (c ContextState) Document(produces string) (map[string]any, bool) {
	doc, ok := c[DocumentKey(produces)].(map[string]any)
	return doc, ok
}

// SetDocument stores a produced document under its scoped key.
func (c ContextState) SetDocument(produces string, doc map[string]any) {
	c[DocumentKey(produces)] = doc
}

// Documents returns every stored document keyed by produces-name.
func (c ContextState) Documents() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for k, v := range c {
		if len(k) > len(documentKeyPrefix) && k[:len(documentKeyPrefix)] == documentKeyPrefix {
			if doc, ok := v.(map[string]any); ok {
				out[k[len(documentKeyPrefix):]] = doc
			}
		}
	}
	return out
}

// QAFeedback returns the issues recorded by the last QA failure.
func (c ContextState) QAFeedback() ([]any, bool) {
	issues, ok := c[qaFeedbackKey].([]any)
	return issues, ok
}

// SetQAFeedback records structured QA issues for the next generation attempt.
func (c ContextState) SetQAFeedback(issues []any) {
	c[qaFeedbackKey] = issues
}

// ClearQAFeedback drops stale QA feedback so it cannot leak into a later,
// unrelated retry cycle.
func (c ContextState) ClearQAFeedback() {
	delete(c, qaFeedbackKey)
}

// SetEscalationChoice records the human's escalation decision.
func (c ContextState) SetEscalationChoice(choice string) {
	c[escalationChoiceKey] = choice
}

// Invariants returns the derived governance invariants, if any.
func (c ContextState) Invariants() (map[string]any, bool) {
	inv, ok := c[invariantsKey].(map[string]any)
	return inv, ok
}

// SetInvariants stores derived governance invariants.
func (c ContextState) SetInvariants(inv map[string]any) {
	c[invariantsKey] = inv
}
