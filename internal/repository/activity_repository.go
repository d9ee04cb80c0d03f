package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modulith/modulith/internal/domain"
)

// activityRepository implements ActivityRepository over pgx
type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

const activityColumns = "id, tenant_id, record_id, kind, title, body, created_by, created_at"

func (r *activityRepository) Append(ctx context.Context, activity domain.RecordActivity) (domain.RecordActivity, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO record_activities (id, tenant_id, record_id, kind, title, body, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+activityColumns,
		activity.ID, activity.TenantID, activity.RecordID, activity.Kind,
		activity.Title, activity.Body, activity.CreatedBy, activity.CreatedAt,
	)
	created, err := scanActivity(row)
	if err != nil {
		return domain.RecordActivity{}, fmt.Errorf("failed to append activity: %w", err)
	}
	return created, nil
}

func (r *activityRepository) ListByRecord(ctx context.Context, tenantID, recordID uuid.UUID) ([]domain.RecordActivity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+`
		 FROM record_activities
		 WHERE tenant_id = $1 AND record_id = $2
		 ORDER BY created_at DESC`,
		tenantID, recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []domain.RecordActivity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

func scanActivity(row pgx.Row) (domain.RecordActivity, error) {
	var activity domain.RecordActivity
	err := row.Scan(
		&activity.ID, &activity.TenantID, &activity.RecordID, &activity.Kind,
		&activity.Title, &activity.Body, &activity.CreatedBy, &activity.CreatedAt,
	)
	return activity, err
}
