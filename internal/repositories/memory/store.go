package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"
)

// Store - транзакционное in-memory хранилище с оптимистичной блокировкой.
// Транзакция копит записи у себя и применяет их при Commit одним куском,
// предварительно сверив ревизии изменённых документов.
type Store struct {
	mutex sync.RWMutex

	users          map[string]entities.User
	tickets        map[string]entities.Ticket
	ticketNos      map[string]string
	materials      map[string]entities.Material
	materialNos    map[string]string
	logs           []entities.MaterialLog
	requisitions   map[string]entities.Requisition
	requisitionNos map[string]string
}

func NewStore() *Store {
	return &Store{
		users:          make(map[string]entities.User),
		tickets:        make(map[string]entities.Ticket),
		ticketNos:      make(map[string]string),
		materials:      make(map[string]entities.Material),
		materialNos:    make(map[string]string),
		logs:           make([]entities.MaterialLog, 0),
		requisitions:   make(map[string]entities.Requisition),
		requisitionNos: make(map[string]string),
	}
}

// Tx - транзакция in-memory хранилища.
type Tx struct {
	store *Store
	done  bool

	tickets       map[string]entities.Ticket
	ticketCreated map[string]bool
	ticketBase    map[string]int64

	materials       map[string]entities.Material
	materialCreated map[string]bool
	materialBase    map[string]int64

	logs         []entities.MaterialLog
	requisitions []entities.Requisition
	users        []entities.User
}

func (s *Store) Begin(ctx context.Context) (repositories.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	return &Tx{
		store:           s,
		tickets:         make(map[string]entities.Ticket),
		ticketCreated:   make(map[string]bool),
		ticketBase:      make(map[string]int64),
		materials:       make(map[string]entities.Material),
		materialCreated: make(map[string]bool),
		materialBase:    make(map[string]int64),
	}, nil
}

func (tx *Tx) Rollback(_ context.Context) error {
	tx.done = true
	return nil
}

func (tx *Tx) Commit(ctx context.Context) error {
	if tx.done {
		return fmt.Errorf("%w: транзакция уже завершена", apperrors.ErrInternalLogic)
	}
	tx.done = true
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageError(err)
	}

	s := tx.store
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := tx.validate(); err != nil {
		return err
	}

	for id, t := range tx.tickets {
		s.tickets[id] = t.Clone()
		s.ticketNos[t.TicketNo] = id
	}
	for id, m := range tx.materials {
		s.materials[id] = m.Clone()
		s.materialNos[m.MaterialNo] = id
	}
	s.logs = append(s.logs, tx.logs...)
	for _, r := range tx.requisitions {
		s.requisitions[r.ID] = r.Clone()
		s.requisitionNos[r.RequisitionNo] = r.ID
	}
	for _, u := range tx.users {
		if _, exists := s.users[u.ID]; !exists {
			s.users[u.ID] = u
		}
	}
	return nil
}

// validate вызывается под эксклюзивной блокировкой хранилища.
func (tx *Tx) validate() error {
	s := tx.store
	for id, t := range tx.tickets {
		if tx.ticketCreated[id] {
			if _, exists := s.tickets[id]; exists {
				return fmt.Errorf("%w: тикет %s уже существует", apperrors.ErrConflict, id)
			}
			if _, exists := s.ticketNos[t.TicketNo]; exists {
				return fmt.Errorf("%w: номер тикета %s занят", apperrors.ErrConflict, t.TicketNo)
			}
			continue
		}
		if current, ok := s.tickets[id]; !ok || current.Revision != tx.ticketBase[id] {
			return fmt.Errorf("%w: тикет %s изменён другим запросом", apperrors.ErrConflict, t.TicketNo)
		}
	}
	for id, m := range tx.materials {
		if tx.materialCreated[id] {
			if _, exists := s.materials[id]; exists {
				return fmt.Errorf("%w: материал %s уже существует", apperrors.ErrConflict, id)
			}
			if _, exists := s.materialNos[m.MaterialNo]; exists {
				return fmt.Errorf("%w: номер материала %s занят", apperrors.ErrConflict, m.MaterialNo)
			}
			continue
		}
		if current, ok := s.materials[id]; !ok || current.Revision != tx.materialBase[id] {
			return fmt.Errorf("%w: материал %s изменён другим запросом", apperrors.ErrConflict, m.MaterialNo)
		}
	}
	for _, r := range tx.requisitions {
		if _, exists := s.requisitionNos[r.RequisitionNo]; exists {
			return fmt.Errorf("%w: номер заявки %s занят", apperrors.ErrConflict, r.RequisitionNo)
		}
	}
	return nil
}

// txFrom приводит абстрактную транзакцию к транзакции этого хранилища. nil - чтение вне транзакции.
func (s *Store) txFrom(ctx context.Context, tx repositories.Tx) (*Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	if tx == nil {
		return nil, nil
	}
	mtx, ok := tx.(*Tx)
	if !ok || mtx.store != s {
		return nil, fmt.Errorf("%w: чужая транзакция %T", apperrors.ErrInternalLogic, tx)
	}
	if mtx.done {
		return nil, fmt.Errorf("%w: транзакция уже завершена", apperrors.ErrInternalLogic)
	}
	return mtx, nil
}

type TxManager struct {
	store *Store
}

func NewTxManager(store *Store) repositories.TxManagerInterface {
	return &TxManager{store: store}
}

func (m *TxManager) RunInTransaction(ctx context.Context, fn func(tx repositories.Tx) error) error {
	return repositories.RunTx(ctx, m.store.Begin, fn)
}

func page[T any](items []T, limit, offset uint64) []T {
	if offset >= uint64(len(items)) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < uint64(len(items)) {
		items = items[:limit]
	}
	return items
}

func sortByKey[T any](items []T, less func(a, b T) bool) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}
