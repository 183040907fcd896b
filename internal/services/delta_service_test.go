package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/possync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaService_SnapshotWithChecksums(t *testing.T) {
	entities := newFakeEntityRepo()
	businessID := uuid.New()
	entities.seed(&models.EntityRecord{
		ID:         uuid.New(),
		BusinessID: businessID,
		EntityType: models.EntityProduct,
		Data:       map[string]any{"name": "a"},
	})
	entities.seed(&models.EntityRecord{
		ID:         uuid.New(),
		BusinessID: businessID,
		EntityType: models.EntityProduct,
		Data:       map[string]any{"name": "b"},
	})
	service := NewDeltaService(entities)

	snapshot, err := service.Snapshot(context.Background(), businessID,
		[]models.EntityType{models.EntityProduct}, nil)
	require.NoError(t, err)

	assert.Len(t, snapshot.Data[models.EntityProduct], 2)
	firstChecksum := snapshot.Checksums[models.EntityProduct]
	require.NotEmpty(t, firstChecksum)

	// Mutating a record changes the checksum
	record := snapshot.Data[models.EntityProduct][0]
	record.Data["name"] = "changed"
	require.NoError(t, entities.Update(context.Background(), record))

	snapshot2, err := service.Snapshot(context.Background(), businessID,
		[]models.EntityType{models.EntityProduct}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, firstChecksum, snapshot2.Checksums[models.EntityProduct])
}

func TestDeltaService_SnapshotDefaultsToAllTypes(t *testing.T) {
	service := NewDeltaService(newFakeEntityRepo())

	snapshot, err := service.Snapshot(context.Background(), uuid.New(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, snapshot.Checksums, len(models.AllEntityTypes()))
}

func TestDeltaService_RejectsUnknownEntityType(t *testing.T) {
	service := NewDeltaService(newFakeEntityRepo())

	_, err := service.Snapshot(context.Background(), uuid.New(),
		[]models.EntityType{"spaceship"}, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

// TestDeltaService_DeltaPartitions checks the created/updated/deleted split
// around the client's last-sync timestamp.
func TestDeltaService_DeltaPartitions(t *testing.T) {
	entities := newFakeEntityRepo()
	businessID := uuid.New()
	since := time.Now()
	before := since.Add(-time.Hour)
	after := since.Add(time.Hour)

	// Created before, updated after → "updated"
	updatedID := uuid.New()
	entities.seed(&models.EntityRecord{
		ID:         updatedID,
		BusinessID: businessID,
		EntityType: models.EntityOrder,
		CreatedAt:  before,
		UpdatedAt:  after,
	})
	// Created after → "created"
	createdID := uuid.New()
	entities.seed(&models.EntityRecord{
		ID:         createdID,
		BusinessID: businessID,
		EntityType: models.EntityOrder,
		CreatedAt:  after,
		UpdatedAt:  after,
	})
	// Deleted after → tombstone in "deleted"
	deletedID := uuid.New()
	deletedAt := after
	entities.seed(&models.EntityRecord{
		ID:         deletedID,
		BusinessID: businessID,
		EntityType: models.EntityOrder,
		CreatedAt:  before,
		UpdatedAt:  after,
		DeletedAt:  &deletedAt,
	})
	// Untouched since before the timestamp → nowhere
	entities.seed(&models.EntityRecord{
		ID:         uuid.New(),
		BusinessID: businessID,
		EntityType: models.EntityOrder,
		CreatedAt:  before,
		UpdatedAt:  before,
	})

	service := NewDeltaService(entities)
	delta, err := service.Delta(context.Background(), businessID,
		[]models.EntityType{models.EntityOrder}, since)
	require.NoError(t, err)

	require.Len(t, delta.Created[models.EntityOrder], 1)
	assert.Equal(t, createdID, delta.Created[models.EntityOrder][0].ID)

	require.Len(t, delta.Updated[models.EntityOrder], 1)
	assert.Equal(t, updatedID, delta.Updated[models.EntityOrder][0].ID)

	require.Len(t, delta.Deleted[models.EntityOrder], 1)
	assert.Equal(t, deletedID, delta.Deleted[models.EntityOrder][0])
}

func TestDeltaService_TenantsAreIsolated(t *testing.T) {
	entities := newFakeEntityRepo()
	tenantA := uuid.New()
	tenantB := uuid.New()
	entities.seed(&models.EntityRecord{
		ID:         uuid.New(),
		BusinessID: tenantA,
		EntityType: models.EntityProduct,
	})

	service := NewDeltaService(entities)
	snapshot, err := service.Snapshot(context.Background(), tenantB,
		[]models.EntityType{models.EntityProduct}, nil)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Data[models.EntityProduct])
}
