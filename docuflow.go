// Package docuflow assembles the document workflow engine from its parts:
// configuration, logging, plan loading, the state store backend, node
// executors, metrics, and the plan executor. Most programs only need New
// and the methods on Engine; the subpackages stay available for callers
// that want to compose the pieces differently.
package docuflow

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/docuflow/docuflow/config"
	"github.com/docuflow/docuflow/internal/database"
	"github.com/docuflow/docuflow/internal/metrics"
	"github.com/docuflow/docuflow/llm"
	"github.com/docuflow/docuflow/llm/providers/openai"
	"github.com/docuflow/docuflow/workflow"
)

// Engine is the assembled workflow engine.
type Engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *workflow.Registry
	store    workflow.StateStore
	executor *workflow.PlanExecutor
	runner   *workflow.ProjectRunner
	audit    *database.AuditStore
}

// Option customizes engine assembly.
type Option func(*assembly)

type assembly struct {
	provider  llm.Provider
	validator llm.SchemaValidator
	registry  prometheus.Registerer
	logger    *zap.Logger
}

// WithProvider overrides the completion provider built from configuration.
// Used by tests and by programs that bring their own provider.
func WithProvider(p llm.Provider) Option {
	return func(a *assembly) { a.provider = p }
}

// WithSchemaValidator sets the document validator used by review nodes.
func WithSchemaValidator(v llm.SchemaValidator) Option {
	return func(a *assembly) { a.validator = v }
}

// WithMetricsRegistry sets the Prometheus registry for engine metrics.
// Defaults to prometheus.DefaultRegisterer.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(a *assembly) { a.registry = reg }
}

// WithLogger overrides the logger built from configuration.
func WithLogger(l *zap.Logger) Option {
	return func(a *assembly) { a.logger = l }
}

// New assembles an engine from configuration: it opens the state store,
// loads and registers every plan under cfg.Plans.Dir, builds the default
// node executors, and wires metrics and audit recording.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	var a assembly
	for _, opt := range opts {
		opt(&a)
	}

	logger := a.logger
	if logger == nil {
		var err error
		logger, err = NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
	}

	registry := workflow.NewRegistry()
	loader := workflow.NewLoader(logger)
	plans, err := loader.LoadDir(cfg.Plans.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load plans from %s: %w", cfg.Plans.Dir, err)
	}
	for _, plan := range plans {
		if err := registry.Register(plan); err != nil {
			return nil, err
		}
	}
	logger.Info("plans registered", zap.Int("count", len(plans)))

	var store workflow.StateStore
	var audit *database.AuditStore
	if cfg.Database.Driver == "memory" {
		store = workflow.NewMemoryStateStore()
	} else {
		db, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		store = database.NewStore(db, logger)
		audit = database.NewAuditStore(db, logger)
	}

	provider := a.provider
	if provider == nil {
		provider = openai.New(openai.Config{
			BaseURL:           cfg.LLM.BaseURL,
			APIKey:            cfg.LLM.APIKey,
			Model:             cfg.LLM.Model,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			Timeout:           cfg.LLM.Timeout,
		}, logger)
	}

	prompts := llm.NewFilePromptStore(cfg.Plans.PromptDir)
	executors := workflow.NewExecutorRegistry()
	executors.Register(workflow.NodeTypeTask, workflow.NewTaskExecutor(provider, prompts, nil, logger))
	executors.Register(workflow.NodeTypeQA, workflow.NewQAExecutor(a.validator, logger))
	executors.Register(workflow.NodeTypeGate, &workflow.GateExecutor{})
	executors.Register(workflow.NodeTypeIntakeGate, &workflow.IntakeGateExecutor{})
	executors.Register(workflow.NodeTypeEnd, &workflow.TerminalExecutor{})

	reg := a.registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collector := metrics.NewCollector(reg)

	execOpts := []workflow.ExecutorOption{
		workflow.WithLogger(logger),
		workflow.WithObserver(collector),
	}
	if audit != nil {
		execOpts = append(execOpts, workflow.WithAuditRecorder(audit))
	}
	executor := workflow.NewPlanExecutor(registry, store, executors, execOpts...)

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    store,
		executor: executor,
		runner:   workflow.NewProjectRunner(executor, cfg.Engine.MaxSteps, logger),
		audit:    audit,
	}, nil
}

// NewLogger builds a zap logger from the log configuration.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// Registry exposes the loaded plans.
func (e *Engine) Registry() *workflow.Registry { return e.registry }

// Executor exposes the plan executor for step-level control.
func (e *Engine) Executor() *workflow.PlanExecutor { return e.executor }

// Runner exposes the concurrent project runner.
func (e *Engine) Runner() *workflow.ProjectRunner { return e.runner }

// Audit exposes the audit store, nil when running on the memory backend.
func (e *Engine) Audit() *database.AuditStore { return e.audit }

// Start begins (or resumes) an execution for a project and document type.
func (e *Engine) Start(ctx context.Context, projectID, documentType string, initialContext map[string]any) (*workflow.ExecutionState, error) {
	return e.executor.StartExecution(ctx, projectID, documentType, initialContext)
}

// Run drives one execution until it completes, fails, or pauses.
func (e *Engine) Run(ctx context.Context, executionID string) (*workflow.ExecutionState, error) {
	return e.executor.RunToCompletion(ctx, executionID, e.cfg.Engine.MaxSteps)
}

// RunProject drives one execution per document type concurrently.
func (e *Engine) RunProject(ctx context.Context, projectID string, documentTypes []string, initialContext map[string]any) ([]*workflow.ExecutionState, error) {
	return e.runner.RunAll(ctx, projectID, documentTypes, initialContext)
}

// Submit resumes a paused execution with the human's answer.
func (e *Engine) Submit(ctx context.Context, executionID, input, choice string) (*workflow.ExecutionState, error) {
	return e.executor.SubmitUserInput(ctx, executionID, input, choice)
}

// Resolve applies a human decision to an active escalation.
func (e *Engine) Resolve(ctx context.Context, executionID, choice string) (*workflow.ExecutionState, error) {
	return e.executor.HandleEscalationChoice(ctx, executionID, choice)
}

// Status returns the current state of an execution.
func (e *Engine) Status(ctx context.Context, executionID string) (*workflow.ExecutionState, error) {
	return e.executor.GetExecutionStatus(ctx, executionID)
}

// Close flushes buffered log entries.
func (e *Engine) Close() error {
	return e.logger.Sync()
}
