package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus tracks one workflow firing through its lifecycle.
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

// WorkflowExecution is the append-only record of one workflow firing. It is
// only written for workflows whose conditions held; after reaching a terminal
// status it is never mutated again except to set CompletedAt.
type WorkflowExecution struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	WorkflowID  uuid.UUID       `json:"workflow_id"`
	RecordID    uuid.UUID       `json:"record_id"`
	Status      ExecutionStatus `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      map[string]any  `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewWorkflowExecution starts a running execution for a fired workflow.
func NewWorkflowExecution(tenantID, workflowID, recordID uuid.UUID, input map[string]any) WorkflowExecution {
	return WorkflowExecution{
		ID:         uuid.New(),
		TenantID:   tenantID,
		WorkflowID: workflowID,
		RecordID:   recordID,
		Status:     ExecutionRunning,
		Input:      input,
		StartedAt:  time.Now(),
	}
}

// MarkSucceeded returns a terminal success copy of the execution.
func (e WorkflowExecution) MarkSucceeded(output map[string]any) WorkflowExecution {
	now := time.Now()
	clone := e
	clone.Status = ExecutionSuccess
	clone.Output = output
	clone.CompletedAt = &now
	return clone
}

// MarkFailed returns a terminal failed copy of the execution. Output carries
// whatever the actions produced before the failure.
func (e WorkflowExecution) MarkFailed(output map[string]any, err error) WorkflowExecution {
	now := time.Now()
	clone := e
	clone.Status = ExecutionFailed
	clone.Output = output
	if err != nil {
		clone.Error = err.Error()
	}
	clone.CompletedAt = &now
	return clone
}
