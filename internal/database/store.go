package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/docuflow/docuflow/config"
	"github.com/docuflow/docuflow/workflow"
)

// ExecutionRecord is the persisted row for one execution. The full state is
// stored as its JSON serialization; the indexed columns exist for the
// lookup paths the engine needs (by ID, by subject, by status).
type ExecutionRecord struct {
	ExecutionID  string `gorm:"primaryKey;size:64"`
	WorkflowID   string `gorm:"index:idx_subject;size:128"`
	ProjectID    string `gorm:"index:idx_subject;size:128"`
	DocumentType string `gorm:"size:128"`
	Status       string `gorm:"index;size:16"`
	State        []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
}

// TableName keeps the table name stable regardless of GORM pluralization.
func (ExecutionRecord) TableName() string { return "executions" }

// Open connects to the configured backend and migrates the schema.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&ExecutionRecord{}, &AuditRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info("database opened",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", cfg.MaxOpenConns))
	return db, nil
}

// Store implements workflow.StateStore on GORM.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a state store over an opened database.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "state_store"))}
}

// Save implements workflow.StateStore. The upsert by execution ID is the
// serialization point for one step.
func (s *Store) Save(ctx context.Context, state *workflow.ExecutionState) error {
	data, err := workflow.MarshalState(state)
	if err != nil {
		return fmt.Errorf("failed to serialize state %s: %w", state.ExecutionID, err)
	}
	record := ExecutionRecord{
		ExecutionID:  state.ExecutionID,
		WorkflowID:   state.WorkflowID,
		ProjectID:    state.ProjectID,
		DocumentType: state.DocumentType,
		Status:       string(state.Status),
		State:        data,
		CreatedAt:    state.CreatedAt,
		UpdatedAt:    state.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to persist state %s: %w", state.ExecutionID, err)
	}
	return nil
}

// Load implements workflow.StateStore.
func (s *Store) Load(ctx context.Context, executionID string) (*workflow.ExecutionState, error) {
	var record ExecutionRecord
	err := s.db.WithContext(ctx).First(&record, "execution_id = ?", executionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("execution %q: %w", executionID, workflow.ErrExecutionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}
	return workflow.UnmarshalState(record.State)
}

// LoadBySubject implements workflow.StateStore.
func (s *Store) LoadBySubject(ctx context.Context, projectID, workflowID string) (*workflow.ExecutionState, error) {
	var record ExecutionRecord
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND workflow_id = ? AND status NOT IN ?",
			projectID, workflowID,
			[]string{string(workflow.StatusCompleted), string(workflow.StatusFailed)}).
		Order("updated_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("subject %q workflow %q: %w", projectID, workflowID, workflow.ErrExecutionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution for subject %s: %w", projectID, err)
	}
	return workflow.UnmarshalState(record.State)
}

// ListExecutions implements workflow.StateStore.
func (s *Store) ListExecutions(ctx context.Context, status workflow.Status, limit int) ([]*workflow.ExecutionState, error) {
	query := s.db.WithContext(ctx).Model(&ExecutionRecord{}).Order("updated_at DESC")
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []ExecutionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	states := make([]*workflow.ExecutionState, 0, len(records))
	for _, record := range records {
		state, err := workflow.UnmarshalState(record.State)
		if err != nil {
			s.logger.Error("skipping corrupt execution record",
				zap.String("execution_id", record.ExecutionID),
				zap.Error(err))
			continue
		}
		states = append(states, state)
	}
	return states, nil
}
