package repository

import (
	"context"

	"github.com/modulith/modulith/internal/domain"

	"github.com/google/uuid"
)

// TenantRepository defines the interface for tenant operations
type TenantRepository interface {
	Create(ctx context.Context, tenant domain.Tenant) (domain.Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error)
	GetByName(ctx context.Context, name string) (domain.Tenant, error)
	List(ctx context.Context) ([]domain.Tenant, error)
	Update(ctx context.Context, tenant domain.Tenant) (domain.Tenant, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ModuleConfigRepository defines the interface for module config operations.
// Promote must atomically archive the prior active version and activate the
// new one; both writes succeed or neither does.
type ModuleConfigRepository interface {
	Create(ctx context.Context, config domain.ModuleConfig) (domain.ModuleConfig, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.ModuleConfig, error)
	GetActive(ctx context.Context, tenantID uuid.UUID, moduleName string) (domain.ModuleConfig, error)
	GetLatest(ctx context.Context, tenantID uuid.UUID, moduleName string) (domain.ModuleConfig, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.ModuleConfig, error)
	ListVersions(ctx context.Context, tenantID uuid.UUID, moduleName string) ([]domain.ModuleConfig, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status domain.ModuleStatus) (domain.ModuleConfig, error)
	Promote(ctx context.Context, tenantID, id uuid.UUID) (domain.ModuleConfig, error)
}

// RecordRepository defines the interface for record operations. Every query
// is scoped by tenant id at the SQL level; a record belonging to another
// tenant is indistinguishable from an absent one.
type RecordRepository interface {
	Create(ctx context.Context, record domain.Record) (domain.Record, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Record, error)
	List(ctx context.Context, tenantID uuid.UUID, moduleName string, filter *domain.RecordFilter, limit, offset int) ([]domain.Record, int, error)
	// Update applies an optimistic version check: it only writes when the
	// stored version matches record.Version and returns domain.ErrConflict
	// otherwise.
	Update(ctx context.Context, record domain.Record) (domain.Record, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	// CountByFieldValue backs unique-field checks at write time.
	CountByFieldValue(ctx context.Context, tenantID uuid.UUID, moduleName, field string, value any, excludeID *uuid.UUID) (int64, error)
}

// ActivityRepository stores record timeline entries.
type ActivityRepository interface {
	Append(ctx context.Context, activity domain.RecordActivity) (domain.RecordActivity, error)
	ListByRecord(ctx context.Context, tenantID, recordID uuid.UUID) ([]domain.RecordActivity, error)
}

// WorkflowRepository defines the interface for workflow operations
type WorkflowRepository interface {
	Create(ctx context.Context, workflow domain.Workflow) (domain.Workflow, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Workflow, error)
	List(ctx context.Context, tenantID uuid.UUID, moduleName string) ([]domain.Workflow, error)
	// ListActive returns active workflows for (tenant, module) ordered by
	// priority ascending.
	ListActive(ctx context.Context, tenantID uuid.UUID, moduleName string) ([]domain.Workflow, error)
	Update(ctx context.Context, workflow domain.Workflow) (domain.Workflow, error)
}

// WorkflowExecutionRepository stores append-only workflow firings.
type WorkflowExecutionRepository interface {
	Create(ctx context.Context, execution domain.WorkflowExecution) (domain.WorkflowExecution, error)
	Finish(ctx context.Context, execution domain.WorkflowExecution) (domain.WorkflowExecution, error)
	ListByRecord(ctx context.Context, tenantID, recordID uuid.UUID) ([]domain.WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, tenantID, workflowID uuid.UUID) ([]domain.WorkflowExecution, error)
}
