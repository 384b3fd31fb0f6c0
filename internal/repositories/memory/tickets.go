package memory

import (
	"context"
	"fmt"
	"strings"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"
)

type TicketRepository struct {
	store *Store
}

func NewTicketRepository(store *Store) repositories.TicketRepositoryInterface {
	return &TicketRepository{store: store}
}

// current возвращает документ с учётом записей транзакции.
func (r *TicketRepository) current(mtx *Tx, id string) (entities.Ticket, bool) {
	if mtx != nil {
		if t, ok := mtx.tickets[id]; ok {
			return t, true
		}
	}
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()
	t, ok := r.store.tickets[id]
	return t, ok
}

func (r *TicketRepository) Create(ctx context.Context, tx repositories.Tx, ticket *entities.Ticket) error {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return err
	}
	if ticket.Revision == 0 {
		ticket.Revision = 1
	}
	if mtx == nil {
		return r.store.autocommit(ctx, func(t *Tx) error { return r.Create(ctx, t, ticket) })
	}

	if _, exists := r.current(mtx, ticket.ID); exists {
		return fmt.Errorf("%w: тикет %s уже существует", apperrors.ErrConflict, ticket.ID)
	}
	r.store.mutex.RLock()
	_, numberTaken := r.store.ticketNos[ticket.TicketNo]
	r.store.mutex.RUnlock()
	if numberTaken {
		return fmt.Errorf("%w: номер тикета %s занят", apperrors.ErrConflict, ticket.TicketNo)
	}

	mtx.tickets[ticket.ID] = ticket.Clone()
	mtx.ticketCreated[ticket.ID] = true
	return nil
}

func (r *TicketRepository) FindByID(ctx context.Context, tx repositories.Tx, id string) (*entities.Ticket, error) {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return nil, err
	}
	t, ok := r.current(mtx, id)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := t.Clone()
	return &c, nil
}

func (r *TicketRepository) FindByTicketNo(ctx context.Context, tx repositories.Tx, ticketNo string) (*entities.Ticket, error) {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return nil, err
	}
	if mtx != nil {
		for _, t := range mtx.tickets {
			if t.TicketNo == ticketNo {
				c := t.Clone()
				return &c, nil
			}
		}
	}
	r.store.mutex.RLock()
	id, ok := r.store.ticketNos[ticketNo]
	r.store.mutex.RUnlock()
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r.FindByID(ctx, tx, id)
}

func (r *TicketRepository) Update(ctx context.Context, tx repositories.Tx, ticket *entities.Ticket) error {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return err
	}
	if mtx == nil {
		return r.store.autocommit(ctx, func(t *Tx) error { return r.Update(ctx, t, ticket) })
	}

	current, ok := r.current(mtx, ticket.ID)
	if !ok {
		return apperrors.ErrNotFound
	}
	if current.Revision != ticket.Revision {
		return fmt.Errorf("%w: тикет %s изменён другим запросом", apperrors.ErrConflict, ticket.TicketNo)
	}
	if _, staged := mtx.tickets[ticket.ID]; !staged {
		mtx.ticketBase[ticket.ID] = current.Revision
	}

	ticket.Revision++
	mtx.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func matchTicket(t entities.Ticket, f entities.TicketFilter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.SubmitterID != "" && t.SubmitterID != f.SubmitterID {
		return false
	}
	if f.AssigneeID != "" && !t.IsAssignee(f.AssigneeID) {
		return false
	}
	if f.VisibleToEngineer != "" && t.Status != entities.TicketStatusPending &&
		!t.IsAssignee(f.VisibleToEngineer) && t.SubmitterID != f.VisibleToEngineer {
		return false
	}
	if f.Search != "" {
		s := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), s) &&
			!strings.Contains(strings.ToLower(t.TicketNo), s) &&
			!strings.Contains(strings.ToLower(t.Description), s) {
			return false
		}
	}
	return true
}

func (r *TicketRepository) List(ctx context.Context, tx repositories.Tx, filter entities.TicketFilter) ([]entities.Ticket, uint64, error) {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return nil, 0, err
	}

	merged := make(map[string]entities.Ticket)
	r.store.mutex.RLock()
	for id, t := range r.store.tickets {
		merged[id] = t
	}
	r.store.mutex.RUnlock()
	if mtx != nil {
		for id, t := range mtx.tickets {
			merged[id] = t
		}
	}

	result := make([]entities.Ticket, 0)
	for _, t := range merged {
		if matchTicket(t, filter) {
			result = append(result, t.Clone())
		}
	}
	sortByKey(result, func(a, b entities.Ticket) bool {
		if a.CreateTime.Equal(b.CreateTime) {
			return a.ID > b.ID
		}
		return a.CreateTime.After(b.CreateTime)
	})
	return page(result, filter.Limit, filter.Offset), uint64(len(result)), nil
}
