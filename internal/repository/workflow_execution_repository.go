package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modulith/modulith/internal/domain"
)

// workflowExecutionRepository implements WorkflowExecutionRepository over pgx
type workflowExecutionRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowExecutionRepository creates a new workflow execution repository
func NewWorkflowExecutionRepository(pool *pgxpool.Pool) WorkflowExecutionRepository {
	return &workflowExecutionRepository{pool: pool}
}

const executionColumns = `id, tenant_id, workflow_id, record_id, status, input, output,
	error, started_at, completed_at`

func (r *workflowExecutionRepository) Create(ctx context.Context, execution domain.WorkflowExecution) (domain.WorkflowExecution, error) {
	inputJSON, err := marshalAnyMap(execution.Input)
	if err != nil {
		return domain.WorkflowExecution{}, fmt.Errorf("failed to marshal execution input: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO workflow_executions (id, tenant_id, workflow_id, record_id, status, input,
			output, error, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULL, '', $7, NULL)
		 RETURNING `+executionColumns,
		execution.ID, execution.TenantID, execution.WorkflowID, execution.RecordID,
		execution.Status, inputJSON, execution.StartedAt,
	)
	created, err := scanExecution(row)
	if err != nil {
		return domain.WorkflowExecution{}, fmt.Errorf("failed to create workflow execution: %w", err)
	}
	return created, nil
}

// Finish writes the terminal status of an execution created by Create.
func (r *workflowExecutionRepository) Finish(ctx context.Context, execution domain.WorkflowExecution) (domain.WorkflowExecution, error) {
	outputJSON, err := marshalAnyMap(execution.Output)
	if err != nil {
		return domain.WorkflowExecution{}, fmt.Errorf("failed to marshal execution output: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE workflow_executions
		 SET status = $3, output = $4, error = $5, completed_at = $6
		 WHERE tenant_id = $1 AND id = $2
		 RETURNING `+executionColumns,
		execution.TenantID, execution.ID, execution.Status, outputJSON,
		execution.Error, execution.CompletedAt,
	)
	finished, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorkflowExecution{}, domain.ErrNotFound
		}
		return domain.WorkflowExecution{}, fmt.Errorf("failed to finish workflow execution: %w", err)
	}
	return finished, nil
}

func (r *workflowExecutionRepository) ListByRecord(ctx context.Context, tenantID, recordID uuid.UUID) ([]domain.WorkflowExecution, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+executionColumns+`
		 FROM workflow_executions
		 WHERE tenant_id = $1 AND record_id = $2
		 ORDER BY started_at DESC`,
		tenantID, recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions by record: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func (r *workflowExecutionRepository) ListByWorkflow(ctx context.Context, tenantID, workflowID uuid.UUID) ([]domain.WorkflowExecution, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+executionColumns+`
		 FROM workflow_executions
		 WHERE tenant_id = $1 AND workflow_id = $2
		 ORDER BY started_at DESC`,
		tenantID, workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions by workflow: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func collectExecutions(rows pgx.Rows) ([]domain.WorkflowExecution, error) {
	var executions []domain.WorkflowExecution
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow execution: %w", err)
		}
		executions = append(executions, execution)
	}
	return executions, rows.Err()
}

func scanExecution(row pgx.Row) (domain.WorkflowExecution, error) {
	var (
		execution  domain.WorkflowExecution
		inputJSON  []byte
		outputJSON []byte
	)
	err := row.Scan(
		&execution.ID, &execution.TenantID, &execution.WorkflowID, &execution.RecordID,
		&execution.Status, &inputJSON, &outputJSON, &execution.Error,
		&execution.StartedAt, &execution.CompletedAt,
	)
	if err != nil {
		return domain.WorkflowExecution{}, err
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &execution.Input); err != nil {
			return domain.WorkflowExecution{}, fmt.Errorf("failed to decode execution input: %w", err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &execution.Output); err != nil {
			return domain.WorkflowExecution{}, fmt.Errorf("failed to decode execution output: %w", err)
		}
	}
	return execution, nil
}

func marshalAnyMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
