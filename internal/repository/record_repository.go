package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modulith/modulith/internal/domain"
)

// recordRepository implements RecordRepository over pgx
type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

const recordColumns = `id, tenant_id, module_name, data, status, created_by,
	converted_from_id, converted_to_id, version, created_at, updated_at`

func (r *recordRepository) Create(ctx context.Context, record domain.Record) (domain.Record, error) {
	dataJSON, err := record.GetDataAsJSONB()
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to marshal record data: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO records (id, tenant_id, module_name, data, status, created_by,
			converted_from_id, converted_to_id, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+recordColumns,
		record.ID, record.TenantID, record.ModuleName, dataJSON, record.Status,
		record.CreatedBy, record.ConvertedFromID, record.ConvertedToID, record.Version,
		record.CreatedAt, record.UpdatedAt,
	)
	created, err := scanRecord(row)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to create record: %w", err)
	}
	return created, nil
}

func (r *recordRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Record, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, domain.ErrNotFound
		}
		return domain.Record{}, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

func (r *recordRepository) List(ctx context.Context, tenantID uuid.UUID, moduleName string, filter *domain.RecordFilter, limit, offset int) ([]domain.Record, int, error) {
	query := `SELECT ` + recordColumns + `, count(*) OVER() AS total_count
		 FROM records
		 WHERE tenant_id = $1 AND module_name = $2`
	args := []any{tenantID, moduleName}

	if filter != nil {
		if filter.Status != "" {
			args = append(args, filter.Status)
			query += ` AND status = $` + strconv.Itoa(len(args))
		}
		for _, pf := range filter.PropertyFilters {
			args = append(args, pf.Key)
			keyArg := strconv.Itoa(len(args))
			if pf.Exists != nil {
				if *pf.Exists {
					query += ` AND data ? $` + keyArg
				} else {
					query += ` AND NOT data ? $` + keyArg
				}
				continue
			}
			args = append(args, pf.Value)
			query += ` AND data->>$` + keyArg + ` = $` + strconv.Itoa(len(args))
		}
	}

	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var (
		result []domain.Record
		total  int
	)
	for rows.Next() {
		record, rowTotal, err := scanRecordWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan record: %w", err)
		}
		result = append(result, record)
		total = rowTotal
	}
	return result, total, rows.Err()
}

// Update writes the record only when the stored version still matches the
// caller's. The version column advances by one on success; a mismatch on an
// existing row surfaces as domain.ErrConflict.
func (r *recordRepository) Update(ctx context.Context, record domain.Record) (domain.Record, error) {
	dataJSON, err := record.GetDataAsJSONB()
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to marshal record data: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE records
		 SET data = $4, status = $5, converted_from_id = $6, converted_to_id = $7,
			 version = version + 1, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2 AND version = $3
		 RETURNING `+recordColumns,
		record.TenantID, record.ID, record.Version, dataJSON, record.Status,
		record.ConvertedFromID, record.ConvertedToID,
	)
	updated, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, r.classifyMissingUpdate(ctx, record.TenantID, record.ID)
		}
		return domain.Record{}, fmt.Errorf("failed to update record: %w", err)
	}
	return updated, nil
}

// classifyMissingUpdate tells a stale version apart from an absent row.
func (r *recordRepository) classifyMissingUpdate(ctx context.Context, tenantID, id uuid.UUID) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE tenant_id = $1 AND id = $2)`,
		tenantID, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to classify update miss: %w", err)
	}
	if exists {
		return domain.ErrConflict
	}
	return domain.ErrNotFound
}

func (r *recordRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM records WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *recordRepository) CountByFieldValue(ctx context.Context, tenantID uuid.UUID, moduleName, field string, value any, excludeID *uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*)
		 FROM records
		 WHERE tenant_id = $1 AND module_name = $2
		   AND data->>$3 = $4
		   AND ($5::uuid IS NULL OR id <> $5)`,
		tenantID, moduleName, field, fmt.Sprintf("%v", value), excludeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records by field value: %w", err)
	}
	return count, nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var (
		record   domain.Record
		dataJSON []byte
	)
	err := row.Scan(
		&record.ID, &record.TenantID, &record.ModuleName, &dataJSON, &record.Status,
		&record.CreatedBy, &record.ConvertedFromID, &record.ConvertedToID,
		&record.Version, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return domain.Record{}, err
	}
	if record.Data, err = domain.FromJSONBData(dataJSON); err != nil {
		return domain.Record{}, fmt.Errorf("failed to decode record data: %w", err)
	}
	return record, nil
}

func scanRecordWithTotal(row pgx.Row) (domain.Record, int, error) {
	var (
		record   domain.Record
		dataJSON []byte
		total    int
	)
	err := row.Scan(
		&record.ID, &record.TenantID, &record.ModuleName, &dataJSON, &record.Status,
		&record.CreatedBy, &record.ConvertedFromID, &record.ConvertedToID,
		&record.Version, &record.CreatedAt, &record.UpdatedAt, &total,
	)
	if err != nil {
		return domain.Record{}, 0, err
	}
	if record.Data, err = domain.FromJSONBData(dataJSON); err != nil {
		return domain.Record{}, 0, fmt.Errorf("failed to decode record data: %w", err)
	}
	return record, total, nil
}
