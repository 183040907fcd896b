package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/prudhvinik1/possync/internal/repositories"
)

// fakeEntityRepo mimics the tenant-scoped semantics of the postgres
// repository: lookups for the wrong tenant behave like missing rows.
type fakeEntityRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.EntityRecord

	// failNextUpdates induces transient errors for retry tests.
	failNextUpdates int

	inserts int
	updates int
	deletes int
}

func newFakeEntityRepo() *fakeEntityRepo {
	return &fakeEntityRepo{records: make(map[uuid.UUID]*models.EntityRecord)}
}

func (f *fakeEntityRepo) seed(record *models.EntityRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record.Version == 0 {
		record.Version = 1
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	f.records[record.ID] = record
}

func (f *fakeEntityRepo) Get(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, id uuid.UUID) (*models.EntityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[id]
	if !ok || record.BusinessID != businessID || record.EntityType != entityType || record.DeletedAt != nil {
		return nil, repositories.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeEntityRepo) Insert(ctx context.Context, record *models.EntityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Version = 1
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	clone := *record
	f.records[record.ID] = &clone
	f.inserts++
	return nil
}

func (f *fakeEntityRepo) Update(ctx context.Context, record *models.EntityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNextUpdates > 0 {
		f.failNextUpdates--
		return errors.New("induced transient failure")
	}

	existing, ok := f.records[record.ID]
	if !ok || existing.BusinessID != record.BusinessID || existing.DeletedAt != nil {
		return repositories.ErrVersionConflict
	}
	if existing.Version != record.Version {
		return repositories.ErrVersionConflict
	}
	existing.Data = record.Data
	existing.Version++
	existing.UpdatedAt = time.Now()
	record.Version = existing.Version
	record.UpdatedAt = existing.UpdatedAt
	f.updates++
	return nil
}

func (f *fakeEntityRepo) Delete(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[id]
	if !ok || record.BusinessID != businessID || record.EntityType != entityType || record.DeletedAt != nil {
		return repositories.ErrNotFound
	}
	now := time.Now()
	record.DeletedAt = &now
	record.UpdatedAt = now
	f.deletes++
	return nil
}

func (f *fakeEntityRepo) List(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since *time.Time) ([]*models.EntityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.EntityRecord
	for _, record := range f.sorted() {
		if record.BusinessID != businessID || record.EntityType != entityType || record.DeletedAt != nil {
			continue
		}
		if since != nil && !record.UpdatedAt.After(*since) {
			continue
		}
		clone := *record
		result = append(result, &clone)
	}
	return result, nil
}

func (f *fakeEntityRepo) CreatedSince(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since time.Time) ([]*models.EntityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.EntityRecord
	for _, record := range f.sorted() {
		if record.BusinessID != businessID || record.EntityType != entityType || record.DeletedAt != nil {
			continue
		}
		if record.CreatedAt.After(since) {
			clone := *record
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (f *fakeEntityRepo) UpdatedSince(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since time.Time) ([]*models.EntityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*models.EntityRecord
	for _, record := range f.sorted() {
		if record.BusinessID != businessID || record.EntityType != entityType || record.DeletedAt != nil {
			continue
		}
		if record.UpdatedAt.After(since) && !record.CreatedAt.After(since) {
			clone := *record
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (f *fakeEntityRepo) DeletedSince(ctx context.Context, businessID uuid.UUID, entityType models.EntityType, since time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []uuid.UUID
	for _, record := range f.sorted() {
		if record.BusinessID != businessID || record.EntityType != entityType {
			continue
		}
		if record.DeletedAt != nil && record.DeletedAt.After(since) {
			ids = append(ids, record.ID)
		}
	}
	return ids, nil
}

// sorted returns records in id order, matching the SQL repository.
func (f *fakeEntityRepo) sorted() []*models.EntityRecord {
	result := make([]*models.EntityRecord, 0, len(f.records))
	for _, record := range f.records {
		result = append(result, record)
	}
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j-1].ID.String() > result[j].ID.String(); j-- {
			result[j-1], result[j] = result[j], result[j-1]
		}
	}
	return result
}
