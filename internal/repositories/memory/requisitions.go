package memory

import (
	"context"
	"fmt"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"
)

type RequisitionRepository struct {
	store *Store
}

func NewRequisitionRepository(store *Store) repositories.RequisitionRepositoryInterface {
	return &RequisitionRepository{store: store}
}

func (r *RequisitionRepository) Create(ctx context.Context, tx repositories.Tx, requisition *entities.Requisition) error {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return err
	}
	if mtx == nil {
		return r.store.autocommit(ctx, func(t *Tx) error { return r.Create(ctx, t, requisition) })
	}

	r.store.mutex.RLock()
	_, numberTaken := r.store.requisitionNos[requisition.RequisitionNo]
	r.store.mutex.RUnlock()
	if numberTaken {
		return fmt.Errorf("%w: номер заявки %s занят", apperrors.ErrConflict, requisition.RequisitionNo)
	}
	mtx.requisitions = append(mtx.requisitions, requisition.Clone())
	return nil
}

func (r *RequisitionRepository) FindByID(ctx context.Context, tx repositories.Tx, id string) (*entities.Requisition, error) {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return nil, err
	}
	if mtx != nil {
		for _, req := range mtx.requisitions {
			if req.ID == id {
				c := req.Clone()
				return &c, nil
			}
		}
	}
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()
	req, ok := r.store.requisitions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := req.Clone()
	return &c, nil
}

func (r *RequisitionRepository) List(ctx context.Context, tx repositories.Tx, filter entities.RequisitionFilter) ([]entities.Requisition, uint64, error) {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return nil, 0, err
	}

	r.store.mutex.RLock()
	all := make([]entities.Requisition, 0, len(r.store.requisitions))
	for _, req := range r.store.requisitions {
		all = append(all, req)
	}
	r.store.mutex.RUnlock()
	if mtx != nil {
		all = append(all, mtx.requisitions...)
	}

	result := make([]entities.Requisition, 0)
	for _, req := range all {
		if filter.ApplicantID != "" && req.ApplicantID != filter.ApplicantID {
			continue
		}
		if filter.TicketNo != "" && (!req.TicketNo.Valid || req.TicketNo.String != filter.TicketNo) {
			continue
		}
		result = append(result, req.Clone())
	}
	sortByKey(result, func(a, b entities.Requisition) bool { return a.CreateTime.After(b.CreateTime) })
	return page(result, filter.Limit, filter.Offset), uint64(len(result)), nil
}
