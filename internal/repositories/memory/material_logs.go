package memory

import (
	"context"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
)

type MaterialLogRepository struct {
	store *Store
}

func NewMaterialLogRepository(store *Store) repositories.MaterialLogRepositoryInterface {
	return &MaterialLogRepository{store: store}
}

func (r *MaterialLogRepository) Append(ctx context.Context, tx repositories.Tx, logs ...entities.MaterialLog) error {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return err
	}
	if mtx == nil {
		return r.store.autocommit(ctx, func(t *Tx) error { return r.Append(ctx, t, logs...) })
	}
	mtx.logs = append(mtx.logs, logs...)
	return nil
}

func matchLog(l entities.MaterialLog, f entities.MaterialLogFilter) bool {
	if f.MaterialID != "" && l.MaterialID != f.MaterialID {
		return false
	}
	if f.VariantID != "" && l.VariantID != f.VariantID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if l.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && l.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && !l.Timestamp.Before(*f.To) {
		return false
	}
	return true
}

func (r *MaterialLogRepository) List(ctx context.Context, tx repositories.Tx, filter entities.MaterialLogFilter) ([]entities.MaterialLog, uint64, error) {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return nil, 0, err
	}

	r.store.mutex.RLock()
	all := append([]entities.MaterialLog(nil), r.store.logs...)
	r.store.mutex.RUnlock()
	if mtx != nil {
		all = append(all, mtx.logs...)
	}

	result := make([]entities.MaterialLog, 0)
	// В порядке добавления от новых к старым, как ORDER BY timestamp DESC.
	for i := len(all) - 1; i >= 0; i-- {
		if matchLog(all[i], filter) {
			result = append(result, all[i])
		}
	}
	sortByKey(result, func(a, b entities.MaterialLog) bool { return a.Timestamp.After(b.Timestamp) })
	return page(result, filter.Limit, filter.Offset), uint64(len(result)), nil
}
