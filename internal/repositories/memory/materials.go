package memory

import (
	"context"
	"fmt"
	"strings"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"
)

type MaterialRepository struct {
	store *Store
}

func NewMaterialRepository(store *Store) repositories.MaterialRepositoryInterface {
	return &MaterialRepository{store: store}
}

func (r *MaterialRepository) current(mtx *Tx, id string) (entities.Material, bool) {
	if mtx != nil {
		if m, ok := mtx.materials[id]; ok {
			return m, true
		}
	}
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()
	m, ok := r.store.materials[id]
	return m, ok
}

func (r *MaterialRepository) Create(ctx context.Context, tx repositories.Tx, material *entities.Material) error {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return err
	}
	if material.Revision == 0 {
		material.Revision = 1
	}
	if mtx == nil {
		return r.store.autocommit(ctx, func(t *Tx) error { return r.Create(ctx, t, material) })
	}

	if _, exists := r.current(mtx, material.ID); exists {
		return fmt.Errorf("%w: материал %s уже существует", apperrors.ErrConflict, material.ID)
	}
	r.store.mutex.RLock()
	_, numberTaken := r.store.materialNos[material.MaterialNo]
	r.store.mutex.RUnlock()
	if numberTaken {
		return fmt.Errorf("%w: номер материала %s занят", apperrors.ErrConflict, material.MaterialNo)
	}

	mtx.materials[material.ID] = material.Clone()
	mtx.materialCreated[material.ID] = true
	return nil
}

func (r *MaterialRepository) FindByID(ctx context.Context, tx repositories.Tx, id string, statuses entities.MaterialStatusFilter) (*entities.Material, error) {
	if err := repositories.RequireStatusFilter(statuses); err != nil {
		return nil, err
	}
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return nil, err
	}
	m, ok := r.current(mtx, id)
	if !ok || !statuses.Contains(m.Status) {
		return nil, apperrors.ErrNotFound
	}
	c := m.Clone()
	return &c, nil
}

func (r *MaterialRepository) Update(ctx context.Context, tx repositories.Tx, material *entities.Material) error {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return err
	}
	if mtx == nil {
		return r.store.autocommit(ctx, func(t *Tx) error { return r.Update(ctx, t, material) })
	}

	current, ok := r.current(mtx, material.ID)
	if !ok {
		return apperrors.ErrNotFound
	}
	if current.Revision != material.Revision {
		return fmt.Errorf("%w: материал %s изменён другим запросом", apperrors.ErrConflict, material.MaterialNo)
	}
	if _, staged := mtx.materials[material.ID]; !staged {
		mtx.materialBase[material.ID] = current.Revision
	}

	material.Revision++
	mtx.materials[material.ID] = material.Clone()
	return nil
}

func matchMaterial(m entities.Material, f entities.MaterialFilter) bool {
	if !f.Statuses.Contains(m.Status) {
		return false
	}
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.Search != "" {
		s := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(m.Name), s) && !strings.Contains(strings.ToLower(m.MaterialNo), s) {
			return false
		}
	}
	return true
}

func (r *MaterialRepository) List(ctx context.Context, tx repositories.Tx, filter entities.MaterialFilter) ([]entities.Material, uint64, error) {
	if err := repositories.RequireStatusFilter(filter.Statuses); err != nil {
		return nil, 0, err
	}
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return nil, 0, err
	}

	merged := make(map[string]entities.Material)
	r.store.mutex.RLock()
	for id, m := range r.store.materials {
		merged[id] = m
	}
	r.store.mutex.RUnlock()
	if mtx != nil {
		for id, m := range mtx.materials {
			merged[id] = m
		}
	}

	result := make([]entities.Material, 0)
	for _, m := range merged {
		if matchMaterial(m, filter) {
			result = append(result, m.Clone())
		}
	}
	sortByKey(result, func(a, b entities.Material) bool {
		if a.Name == b.Name {
			return a.ID < b.ID
		}
		return a.Name < b.Name
	})
	return page(result, filter.Limit, filter.Offset), uint64(len(result)), nil
}
