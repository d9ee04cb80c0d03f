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

// moduleConfigRepository implements ModuleConfigRepository over pgx
type moduleConfigRepository struct {
	pool *pgxpool.Pool
}

// NewModuleConfigRepository creates a new module config repository
func NewModuleConfigRepository(pool *pgxpool.Pool) ModuleConfigRepository {
	return &moduleConfigRepository{pool: pool}
}

const moduleConfigColumns = `id, tenant_id, name, display_name, fields, layout, rules,
	statuses, initial_status, version, previous_version_id, status, created_at, updated_at`

func (r *moduleConfigRepository) Create(ctx context.Context, config domain.ModuleConfig) (domain.ModuleConfig, error) {
	fieldsJSON, err := config.GetFieldsAsJSONB()
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to marshal fields: %w", err)
	}
	layoutJSON, err := marshalNullable(config.Layout)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to marshal layout: %w", err)
	}
	rulesJSON, err := marshalNullable(config.Rules)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to marshal rules: %w", err)
	}
	statusesJSON, err := marshalNullable(config.Statuses)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to marshal statuses: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO module_configs (id, tenant_id, name, display_name, fields, layout, rules,
			statuses, initial_status, version, previous_version_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING `+moduleConfigColumns,
		config.ID, config.TenantID, config.Name, config.DisplayName, fieldsJSON, layoutJSON,
		rulesJSON, statusesJSON, config.InitialStatus, config.Version, config.PreviousVersionID,
		config.Status, config.CreatedAt, config.UpdatedAt,
	)
	created, err := scanModuleConfig(row)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to create module config: %w", err)
	}
	return created, nil
}

func (r *moduleConfigRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.ModuleConfig, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+moduleConfigColumns+` FROM module_configs WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	config, err := scanModuleConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ModuleConfig{}, domain.ErrNotFound
		}
		return domain.ModuleConfig{}, fmt.Errorf("failed to get module config: %w", err)
	}
	return config, nil
}

func (r *moduleConfigRepository) GetActive(ctx context.Context, tenantID uuid.UUID, moduleName string) (domain.ModuleConfig, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+moduleConfigColumns+`
		 FROM module_configs
		 WHERE tenant_id = $1 AND name = $2 AND status = $3`,
		tenantID, moduleName, domain.ModuleStatusActive,
	)
	config, err := scanModuleConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ModuleConfig{}, domain.ErrNotFound
		}
		return domain.ModuleConfig{}, fmt.Errorf("failed to get active module config: %w", err)
	}
	return config, nil
}

func (r *moduleConfigRepository) GetLatest(ctx context.Context, tenantID uuid.UUID, moduleName string) (domain.ModuleConfig, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+moduleConfigColumns+`
		 FROM module_configs
		 WHERE tenant_id = $1 AND name = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		tenantID, moduleName,
	)
	config, err := scanModuleConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ModuleConfig{}, domain.ErrNotFound
		}
		return domain.ModuleConfig{}, fmt.Errorf("failed to get latest module config: %w", err)
	}
	return config, nil
}

// List returns the most recent version of every module name for a tenant.
func (r *moduleConfigRepository) List(ctx context.Context, tenantID uuid.UUID) ([]domain.ModuleConfig, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (name) `+moduleConfigColumns+`
		 FROM module_configs
		 WHERE tenant_id = $1
		 ORDER BY name, created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list module configs: %w", err)
	}
	defer rows.Close()
	return collectModuleConfigs(rows)
}

func (r *moduleConfigRepository) ListVersions(ctx context.Context, tenantID uuid.UUID, moduleName string) ([]domain.ModuleConfig, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+moduleConfigColumns+`
		 FROM module_configs
		 WHERE tenant_id = $1 AND name = $2
		 ORDER BY created_at DESC`,
		tenantID, moduleName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list module config versions: %w", err)
	}
	defer rows.Close()
	return collectModuleConfigs(rows)
}

func (r *moduleConfigRepository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status domain.ModuleStatus) (domain.ModuleConfig, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE module_configs SET status = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2
		 RETURNING `+moduleConfigColumns,
		tenantID, id, status,
	)
	config, err := scanModuleConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ModuleConfig{}, domain.ErrNotFound
		}
		return domain.ModuleConfig{}, fmt.Errorf("failed to update module config status: %w", err)
	}
	return config, nil
}

// Promote activates a version and archives the previously active one in a
// single transaction. The row is locked first so two concurrent promotions
// of the same module serialize.
func (r *moduleConfigRepository) Promote(ctx context.Context, tenantID, id uuid.UUID) (domain.ModuleConfig, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to begin promote transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var moduleName string
	err = tx.QueryRow(ctx,
		`SELECT name FROM module_configs WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, id,
	).Scan(&moduleName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ModuleConfig{}, domain.ErrNotFound
		}
		return domain.ModuleConfig{}, fmt.Errorf("failed to lock module config: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE module_configs SET status = $4, updated_at = now()
		 WHERE tenant_id = $1 AND name = $2 AND status = $3 AND id <> $5`,
		tenantID, moduleName, domain.ModuleStatusActive, domain.ModuleStatusArchived, id,
	)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to archive active module config: %w", err)
	}

	row := tx.QueryRow(ctx,
		`UPDATE module_configs SET status = $3, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2
		 RETURNING `+moduleConfigColumns,
		tenantID, id, domain.ModuleStatusActive,
	)
	promoted, err := scanModuleConfig(row)
	if err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to activate module config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to commit promote transaction: %w", err)
	}
	return promoted, nil
}

func collectModuleConfigs(rows pgx.Rows) ([]domain.ModuleConfig, error) {
	var configs []domain.ModuleConfig
	for rows.Next() {
		config, err := scanModuleConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module config: %w", err)
		}
		configs = append(configs, config)
	}
	return configs, rows.Err()
}

func scanModuleConfig(row pgx.Row) (domain.ModuleConfig, error) {
	var (
		config       domain.ModuleConfig
		fieldsJSON   []byte
		layoutJSON   []byte
		rulesJSON    []byte
		statusesJSON []byte
	)
	err := row.Scan(
		&config.ID, &config.TenantID, &config.Name, &config.DisplayName,
		&fieldsJSON, &layoutJSON, &rulesJSON, &statusesJSON,
		&config.InitialStatus, &config.Version, &config.PreviousVersionID,
		&config.Status, &config.CreatedAt, &config.UpdatedAt,
	)
	if err != nil {
		return domain.ModuleConfig{}, err
	}

	if config.Fields, err = domain.FromJSONBFields(fieldsJSON); err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to decode fields: %w", err)
	}
	if err := unmarshalNullable(layoutJSON, &config.Layout); err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to decode layout: %w", err)
	}
	if err := unmarshalNullable(rulesJSON, &config.Rules); err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to decode rules: %w", err)
	}
	if err := unmarshalNullable(statusesJSON, &config.Statuses); err != nil {
		return domain.ModuleConfig{}, fmt.Errorf("failed to decode statuses: %w", err)
	}
	return config, nil
}

// marshalNullable maps nil/empty values to SQL NULL instead of JSON "null".
func marshalNullable(v any) (any, error) {
	switch value := v.(type) {
	case *domain.LayoutConfig:
		if value == nil {
			return nil, nil
		}
	case []domain.ValidationRule:
		if len(value) == 0 {
			return nil, nil
		}
	case []string:
		if len(value) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func unmarshalNullable(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
