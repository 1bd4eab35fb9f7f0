package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/docuflow/docuflow/workflow"
)

// AuditRecord is one governance audit row, written when an execution
// reaches a terminal status. Gate and terminal outcomes are stored in
// separate columns; they come from different vocabularies.
type AuditRecord struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ExecutionID     string `gorm:"index;size:64"`
	WorkflowID      string `gorm:"index;size:128"`
	ProjectID       string `gorm:"size:128"`
	DocumentType    string `gorm:"size:128"`
	Status          string `gorm:"size:16"`
	GateOutcome     string `gorm:"size:64"`
	TerminalOutcome string `gorm:"size:64"`
	FailureReason   string
	StepCount       int
	RecordedAt      time.Time `gorm:"index"`
}

func (AuditRecord) TableName() string { return "audit_records" }

// AuditStore implements workflow.AuditRecorder on GORM.
type AuditStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAuditStore creates an audit store over an opened database.
func NewAuditStore(db *gorm.DB, logger *zap.Logger) *AuditStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditStore{db: db, logger: logger.With(zap.String("component", "audit_store"))}
}

// RecordOutcome implements workflow.AuditRecorder.
func (a *AuditStore) RecordOutcome(ctx context.Context, state *workflow.ExecutionState, plan *workflow.Plan) error {
	record := AuditRecord{
		ExecutionID:     state.ExecutionID,
		WorkflowID:      state.WorkflowID,
		ProjectID:       state.ProjectID,
		DocumentType:    state.DocumentType,
		Status:          string(state.Status),
		GateOutcome:     state.GateOutcome,
		TerminalOutcome: state.TerminalOutcome,
		FailureReason:   state.FailureReason(),
		StepCount:       len(state.NodeHistory),
		RecordedAt:      time.Now().UTC(),
	}
	if err := a.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record audit for %s: %w", state.ExecutionID, err)
	}
	return nil
}

// ListByProject returns the audit trail for one project, newest first.
func (a *AuditStore) ListByProject(ctx context.Context, projectID string, limit int) ([]AuditRecord, error) {
	query := a.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("recorded_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []AuditRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}
