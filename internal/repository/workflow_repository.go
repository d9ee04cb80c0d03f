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

// workflowRepository implements WorkflowRepository over pgx
type workflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(pool *pgxpool.Pool) WorkflowRepository {
	return &workflowRepository{pool: pool}
}

const workflowColumns = `id, tenant_id, module_name, name, trigger, conditions, actions,
	is_active, priority, created_at, updated_at`

func (r *workflowRepository) Create(ctx context.Context, workflow domain.Workflow) (domain.Workflow, error) {
	triggerJSON, conditionsJSON, actionsJSON, err := marshalWorkflowParts(workflow)
	if err != nil {
		return domain.Workflow{}, err
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO workflows (id, tenant_id, module_name, name, trigger, conditions, actions,
			is_active, priority, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+workflowColumns,
		workflow.ID, workflow.TenantID, workflow.ModuleName, workflow.Name,
		triggerJSON, conditionsJSON, actionsJSON, workflow.IsActive, workflow.Priority,
		workflow.CreatedAt, workflow.UpdatedAt,
	)
	created, err := scanWorkflow(row)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to create workflow: %w", err)
	}
	return created, nil
}

func (r *workflowRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Workflow, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Workflow{}, domain.ErrNotFound
		}
		return domain.Workflow{}, fmt.Errorf("failed to get workflow: %w", err)
	}
	return workflow, nil
}

func (r *workflowRepository) List(ctx context.Context, tenantID uuid.UUID, moduleName string) ([]domain.Workflow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+workflowColumns+`
		 FROM workflows
		 WHERE tenant_id = $1 AND module_name = $2
		 ORDER BY priority, created_at`,
		tenantID, moduleName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

func (r *workflowRepository) ListActive(ctx context.Context, tenantID uuid.UUID, moduleName string) ([]domain.Workflow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+workflowColumns+`
		 FROM workflows
		 WHERE tenant_id = $1 AND module_name = $2 AND is_active
		 ORDER BY priority, created_at`,
		tenantID, moduleName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

func (r *workflowRepository) Update(ctx context.Context, workflow domain.Workflow) (domain.Workflow, error) {
	triggerJSON, conditionsJSON, actionsJSON, err := marshalWorkflowParts(workflow)
	if err != nil {
		return domain.Workflow{}, err
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE workflows
		 SET name = $3, trigger = $4, conditions = $5, actions = $6,
			 is_active = $7, priority = $8, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2
		 RETURNING `+workflowColumns,
		workflow.TenantID, workflow.ID, workflow.Name, triggerJSON, conditionsJSON,
		actionsJSON, workflow.IsActive, workflow.Priority,
	)
	updated, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Workflow{}, domain.ErrNotFound
		}
		return domain.Workflow{}, fmt.Errorf("failed to update workflow: %w", err)
	}
	return updated, nil
}

func marshalWorkflowParts(workflow domain.Workflow) (trigger, conditions, actions []byte, err error) {
	if trigger, err = json.Marshal(workflow.Trigger); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal trigger: %w", err)
	}
	if workflow.Conditions != nil {
		if conditions, err = json.Marshal(workflow.Conditions); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
		}
	}
	if actions, err = json.Marshal(workflow.Actions); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal actions: %w", err)
	}
	return trigger, conditions, actions, nil
}

func collectWorkflows(rows pgx.Rows) ([]domain.Workflow, error) {
	var workflows []domain.Workflow
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, workflow)
	}
	return workflows, rows.Err()
}

func scanWorkflow(row pgx.Row) (domain.Workflow, error) {
	var (
		workflow       domain.Workflow
		triggerJSON    []byte
		conditionsJSON []byte
		actionsJSON    []byte
	)
	err := row.Scan(
		&workflow.ID, &workflow.TenantID, &workflow.ModuleName, &workflow.Name,
		&triggerJSON, &conditionsJSON, &actionsJSON,
		&workflow.IsActive, &workflow.Priority, &workflow.CreatedAt, &workflow.UpdatedAt,
	)
	if err != nil {
		return domain.Workflow{}, err
	}

	if err := json.Unmarshal(triggerJSON, &workflow.Trigger); err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to decode trigger: %w", err)
	}
	if len(conditionsJSON) > 0 {
		workflow.Conditions = &domain.ConditionGroup{}
		if err := json.Unmarshal(conditionsJSON, workflow.Conditions); err != nil {
			return domain.Workflow{}, fmt.Errorf("failed to decode conditions: %w", err)
		}
	}
	if err := json.Unmarshal(actionsJSON, &workflow.Actions); err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to decode actions: %w", err)
	}
	return workflow, nil
}
