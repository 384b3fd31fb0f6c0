package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMaterial(t *testing.T, store *Store, id string, stock int) {
	t.Helper()
	m := &entities.Material{
		ID:         id,
		MaterialNo: "MT" + id,
		Name:       "Картридж " + id,
		Status:     entities.MaterialStatusActive,
		Variants:   []entities.Variant{{VariantID: "v1", Label: "Чёрный", Stock: stock, SafetyStock: 2}},
		CreateTime: time.Now(),
		UpdateTime: time.Now(),
	}
	m.RecalculateTotalStock()
	require.NoError(t, NewMaterialRepository(store).Create(context.Background(), nil, m))
}

func TestConcurrentUpdateDetectedAtCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewMaterialRepository(store)
	seedMaterial(t, store, "m1", 10)

	tx1, err := store.Begin(ctx)
	require.NoError(t, err)
	tx2, err := store.Begin(ctx)
	require.NoError(t, err)

	m1, err := repo.FindByID(ctx, tx1, "m1", entities.OnlyActiveMaterials)
	require.NoError(t, err)
	m2, err := repo.FindByID(ctx, tx2, "m1", entities.OnlyActiveMaterials)
	require.NoError(t, err)

	m1.Variants[0].Stock = 7
	m2.Variants[0].Stock = 4
	require.NoError(t, repo.Update(ctx, tx1, m1))
	require.NoError(t, repo.Update(ctx, tx2, m2))

	require.NoError(t, tx1.Commit(ctx))
	err = tx2.Commit(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrConflict), "ожидался конфликт, получено %v", err)

	stored, err := repo.FindByID(ctx, nil, "m1", entities.OnlyActiveMaterials)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Variants[0].Stock)
	assert.Equal(t, int64(2), stored.Revision)
}

func TestStaleRevisionRejectedImmediately(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewMaterialRepository(store)
	seedMaterial(t, store, "m1", 10)

	stale, err := repo.FindByID(ctx, nil, "m1", entities.OnlyActiveMaterials)
	require.NoError(t, err)

	fresh, err := repo.FindByID(ctx, nil, "m1", entities.OnlyActiveMaterials)
	require.NoError(t, err)
	fresh.Name = "Новое имя"
	require.NoError(t, repo.Update(ctx, nil, fresh))

	stale.Name = "Старое имя"
	err = repo.Update(ctx, nil, stale)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRollbackDiscardsAllWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	txManager := NewTxManager(store)
	materials := NewMaterialRepository(store)
	logs := NewMaterialLogRepository(store)
	seedMaterial(t, store, "m1", 10)

	boom := errors.New("сбой посередине")
	err := txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
		m, err := materials.FindByID(ctx, tx, "m1", entities.OnlyActiveMaterials)
		if err != nil {
			return err
		}
		m.Variants[0].Stock = 0
		m.RecalculateTotalStock()
		if err := materials.Update(ctx, tx, m); err != nil {
			return err
		}
		if err := logs.Append(ctx, tx, entities.MaterialLog{ID: "l1", MaterialID: "m1", VariantID: "v1", Type: entities.MaterialLogOut, Quantity: -10}); err != nil {
			return err
		}

		inside, err := materials.FindByID(ctx, tx, "m1", entities.OnlyActiveMaterials)
		require.NoError(t, err)
		assert.Equal(t, 0, inside.TotalStock, "транзакция видит собственные записи")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	m, err := materials.FindByID(ctx, nil, "m1", entities.OnlyActiveMaterials)
	require.NoError(t, err)
	assert.Equal(t, 10, m.TotalStock)

	list, total, err := logs.List(ctx, nil, entities.MaterialLogFilter{MaterialID: "m1"})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestMaterialReadsRequireStatusFilter(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewMaterialRepository(store)
	seedMaterial(t, store, "m1", 1)

	_, err := repo.FindByID(ctx, nil, "m1", nil)
	assert.ErrorIs(t, err, apperrors.ErrInternalLogic)

	_, _, err = repo.List(ctx, nil, entities.MaterialFilter{})
	assert.ErrorIs(t, err, apperrors.ErrInternalLogic)
}

func TestDeletedMaterialVisibleOnlyWithExplicitFilter(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewMaterialRepository(store)
	seedMaterial(t, store, "m1", 1)

	m, err := repo.FindByID(ctx, nil, "m1", entities.OnlyActiveMaterials)
	require.NoError(t, err)
	m.Status = entities.MaterialStatusDeleted
	require.NoError(t, repo.Update(ctx, nil, m))

	_, err = repo.FindByID(ctx, nil, "m1", entities.OnlyActiveMaterials)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	deleted, err := repo.FindByID(ctx, nil, "m1", entities.AnyMaterialStatus)
	require.NoError(t, err)
	assert.Equal(t, entities.MaterialStatusDeleted, deleted.Status)

	active, total, err := repo.List(ctx, nil, entities.MaterialFilter{Statuses: entities.OnlyActiveMaterials})
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Zero(t, total)
}

func TestDuplicateTicketNumberIsConflict(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewTicketRepository(store)

	first := &entities.Ticket{ID: "t1", TicketNo: "TK202601010001", Status: entities.TicketStatusPending}
	second := &entities.Ticket{ID: "t2", TicketNo: "TK202601010001", Status: entities.TicketStatusPending}

	require.NoError(t, repo.Create(ctx, nil, first))
	assert.ErrorIs(t, repo.Create(ctx, nil, second), apperrors.ErrConflict)

	found, err := repo.FindByTicketNo(ctx, nil, "TK202601010001")
	require.NoError(t, err)
	assert.Equal(t, "t1", found.ID)
}

func TestCanceledContextIsStorageUnavailable(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewUserRepository(store).FindByID(ctx, nil, "u1")
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}

func TestCacheExpiresEntries(t *testing.T) {
	ctx := context.Background()
	cache := NewCache()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "role:u1", "manager", time.Minute))
	v, err := cache.Get(ctx, "role:u1")
	require.NoError(t, err)
	assert.Equal(t, "manager", v)

	now = now.Add(2 * time.Minute)
	_, err = cache.Get(ctx, "role:u1")
	assert.ErrorIs(t, err, repositories.ErrCacheMiss)
}
