package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Loader parses plan definitions into typed Plans, refusing to construct a
// Plan from a definition that fails validation.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a plan loader. A nil logger is replaced with a no-op.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.With(zap.String("component", "plan_loader"))}
}

// ParseDefinition decodes a YAML (or JSON) plan definition without
// validating it.
func (l *Loader) ParseDefinition(data []byte) (*PlanDefinition, error) {
	var def PlanDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse plan definition: %w", err)
	}
	return &def, nil
}

// Load validates a definition and builds the typed Plan. Validation failures
// yield a *PlanLoadError carrying up to five errors plus a count of the rest.
func (l *Loader) Load(def *PlanDefinition) (*Plan, error) {
	result := ValidatePlan(def)
	for _, w := range result.Warnings {
		l.logger.Warn("plan validation warning",
			zap.String("workflow_id", def.WorkflowID),
			zap.String("warning", w))
	}
	if !result.Valid {
		return nil, NewPlanLoadError(def.WorkflowID, result.Errors)
	}

	plan := &Plan{
		WorkflowID:   def.WorkflowID,
		Version:      def.Version,
		DocumentType: def.DocumentType,
		EntryNodeIDs: append([]string(nil), def.EntryNodeIDs...),
		ThreadOwnership: ThreadOwnership{
			Enabled: def.ThreadOwnership.Enabled,
			Purpose: def.ThreadOwnership.Purpose,
		},
		Governance: Governance{
			Staleness:  def.Governance.Staleness,
			Downstream: append([]string(nil), def.Governance.Downstream...),
		},
	}
	if cb := def.Governance.CircuitBreaker; cb != nil {
		plan.Governance.CircuitBreaker = &CircuitBreakerConfig{
			MaxRetries: cb.MaxRetries,
			AppliesTo:  append([]string(nil), cb.AppliesTo...),
		}
	}

	for _, nd := range def.Nodes {
		plan.Nodes = append(plan.Nodes, &Node{
			NodeID:          nd.NodeID,
			Type:            NodeType(nd.Type),
			TaskRef:         nd.TaskRef,
			Produces:        nd.Produces,
			RequiresQA:      nd.RequiresQA,
			RequiresConsent: nd.RequiresConsent,
			GateOutcomes:    append([]string(nil), nd.GateOutcomes...),
			Prompt:          nd.Prompt,
			TerminalOutcome: nd.TerminalOutcome,
			GateOutcome:     nd.GateOutcome,
		})
	}

	for _, ed := range def.Edges {
		edge := &Edge{
			EdgeID:            ed.EdgeID,
			FromNodeID:        ed.FromNodeID,
			Outcome:           ed.Outcome,
			EscalationOptions: append([]string(nil), ed.EscalationOptions...),
		}
		if ed.ToNodeID != nil {
			edge.ToNodeID = *ed.ToNodeID
		}
		for _, cd := range ed.Conditions {
			edge.Conditions = append(edge.Conditions, EdgeCondition{
				Type:     cd.Type,
				Operator: ConditionOperator(cd.Operator),
				Value:    cd.Value,
			})
		}
		plan.Edges = append(plan.Edges, edge)
	}

	for _, m := range def.OutcomeMapping.Mappings {
		plan.OutcomeMappings = append(plan.OutcomeMappings, OutcomeMapping{
			GateOutcome:     m.GateOutcome,
			TerminalOutcome: m.TerminalOutcome,
		})
	}

	plan.buildIndexes()

	l.logger.Info("plan loaded",
		zap.String("workflow_id", plan.WorkflowID),
		zap.String("version", plan.Version),
		zap.String("document_type", plan.DocumentType),
		zap.Int("nodes", len(plan.Nodes)),
		zap.Int("edges", len(plan.Edges)))

	return plan, nil
}

// LoadBytes parses and loads a single definition.
func (l *Loader) LoadBytes(data []byte) (*Plan, error) {
	def, err := l.ParseDefinition(data)
	if err != nil {
		return nil, err
	}
	return l.Load(def)
}

// LoadFile parses and loads a single definition file.
func (l *Loader) LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}
	return l.LoadBytes(data)
}

// planIndex is the optional index.yaml sitting next to plan files. It maps a
// workflow family to its currently active version.
type planIndex struct {
	Active map[string]string `yaml:"active"`
}

// LoadDir loads every *.yaml / *.yml plan definition in dir and resolves one
// active version per workflow family. When index.yaml names an active version
// for a family, that version wins; otherwise the highest version string does.
func (l *Loader) LoadDir(dir string) ([]*Plan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan directory %s: %w", dir, err)
	}

	index := planIndex{}
	if data, err := os.ReadFile(filepath.Join(dir, "index.yaml")); err == nil {
		if err := yaml.Unmarshal(data, &index); err != nil {
			return nil, fmt.Errorf("failed to parse plan index: %w", err)
		}
	}

	byFamily := make(map[string][]*Plan)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if (ext != ".yaml" && ext != ".yml") || name == "index.yaml" {
			continue
		}
		plan, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("plan file %s: %w", name, err)
		}
		byFamily[plan.WorkflowID] = append(byFamily[plan.WorkflowID], plan)
	}

	var plans []*Plan
	for family, versions := range byFamily {
		plans = append(plans, l.resolveActive(family, versions, index.Active[family]))
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].WorkflowID < plans[j].WorkflowID })
	return plans, nil
}

// resolveActive picks the active version of a plan family.
func (l *Loader) resolveActive(family string, versions []*Plan, active string) *Plan {
	if active != "" {
		for _, p := range versions {
			if p.Version == active {
				return p
			}
		}
		l.logger.Warn("active version not found, falling back to highest",
			zap.String("workflow_id", family),
			zap.String("active", active))
	}
	best := versions[0]
	for _, p := range versions[1:] {
		if p.Version > best.Version {
			best = p
		}
	}
	return best
}
