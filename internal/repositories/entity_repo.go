package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/possync/internal/models"
)

// ErrVersionConflict is returned when an optimistic update races a newer write.
var ErrVersionConflict = errors.New("version conflict: entity was modified concurrently")

const entityColumns = `id, business_id, entity_type, data, version, created_at, updated_at, deleted_at`

// PostgresEntityRepository stores every syncable entity type in one table,
// payload as jsonb. All mutations are tenant-scoped in SQL so the isolation
// check and the write happen in the same statement.
type PostgresEntityRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresEntityRepository(pool *pgxpool.Pool) *PostgresEntityRepository {
	return &PostgresEntityRepository{pool: pool}
}

func (r *PostgresEntityRepository) Get(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, id uuid.UUID) (*models.EntityRecord, error) {
	query := `SELECT ` + entityColumns + `
	          FROM entities
	          WHERE id = $1 AND business_id = $2 AND entity_type = $3 AND deleted_at IS NULL`

	record, err := scanEntity(r.pool.QueryRow(ctx, query, id, businessID, entityType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return record, nil
}

// Insert creates the row and lets the server assign the id when the record
// carries none. The assigned id is written back to the record.
func (r *PostgresEntityRepository) Insert(ctx context.Context, record *models.EntityRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal entity data: %w", err)
	}

	query := `INSERT INTO entities (id, business_id, entity_type, data, version)
	          VALUES ($1, $2, $3, $4, 1)
	          RETURNING version, created_at, updated_at`

	err = r.pool.QueryRow(ctx, query, record.ID, record.BusinessID, record.EntityType, data).
		Scan(&record.Version, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}
	return nil
}

// Update bumps the version and replaces the payload. The WHERE clause carries
// both tenant and version so a concurrent writer or a foreign tenant shows up
// as zero rows, never as a partial write.
func (r *PostgresEntityRepository) Update(ctx context.Context, record *models.EntityRecord) error {
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal entity data: %w", err)
	}

	query := `UPDATE entities
	          SET data = $1,
	              version = version + 1,
	              updated_at = NOW()
	          WHERE id = $2 AND business_id = $3 AND entity_type = $4
	            AND version = $5 AND deleted_at IS NULL
	          RETURNING version, updated_at`

	err = r.pool.QueryRow(ctx, query, data, record.ID, record.BusinessID, record.EntityType, record.Version).
		Scan(&record.Version, &record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}
	return nil
}

// Delete soft-deletes; the tombstone feeds the delta pull's deleted partition.
func (r *PostgresEntityRepository) Delete(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, id uuid.UUID) error {
	query := `UPDATE entities
	          SET deleted_at = NOW(), updated_at = NOW()
	          WHERE id = $1 AND business_id = $2 AND entity_type = $3 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query, id, businessID, entityType)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresEntityRepository) List(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since *time.Time) ([]*models.EntityRecord, error) {
	query := `SELECT ` + entityColumns + `
	          FROM entities
	          WHERE business_id = $1 AND entity_type = $2 AND deleted_at IS NULL`
	args := []any{businessID, entityType}
	if since != nil {
		query += ` AND updated_at > $3`
		args = append(args, *since)
	}
	query += ` ORDER BY id ASC`

	return r.queryEntities(ctx, query, args...)
}

func (r *PostgresEntityRepository) CreatedSince(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since time.Time) ([]*models.EntityRecord, error) {
	query := `SELECT ` + entityColumns + `
	          FROM entities
	          WHERE business_id = $1 AND entity_type = $2 AND deleted_at IS NULL
	            AND created_at > $3
	          ORDER BY id ASC`
	return r.queryEntities(ctx, query, businessID, entityType, since)
}

func (r *PostgresEntityRepository) UpdatedSince(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since time.Time) ([]*models.EntityRecord, error) {
	query := `SELECT ` + entityColumns + `
	          FROM entities
	          WHERE business_id = $1 AND entity_type = $2 AND deleted_at IS NULL
	            AND updated_at > $3 AND created_at <= $3
	          ORDER BY id ASC`
	return r.queryEntities(ctx, query, businessID, entityType, since)
}

func (r *PostgresEntityRepository) DeletedSince(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since time.Time) ([]uuid.UUID, error) {
	query := `SELECT id
	          FROM entities
	          WHERE business_id = $1 AND entity_type = $2
	            AND deleted_at IS NOT NULL AND deleted_at > $3
	          ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, businessID, entityType, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query tombstones: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tombstones: %w", err)
	}
	return ids, nil
}

func (r *PostgresEntityRepository) queryEntities(ctx context.Context, query string, args ...any) ([]*models.EntityRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var records []*models.EntityRecord
	for rows.Next() {
		record, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return records, nil
}

func scanEntity(row pgx.Row) (*models.EntityRecord, error) {
	var record models.EntityRecord
	var data []byte
	err := row.Scan(
		&record.ID,
		&record.BusinessID,
		&record.EntityType,
		&data,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &record.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity data: %w", err)
		}
	}
	return &record, nil
}
