package memory

import (
	"context"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"
)

type UserRepository struct {
	store *Store
}

func NewUserRepository(store *Store) repositories.UserRepositoryInterface {
	return &UserRepository{store: store}
}

func (r *UserRepository) FindByID(ctx context.Context, tx repositories.Tx, id string) (*entities.User, error) {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return nil, err
	}
	if mtx != nil {
		for _, u := range mtx.users {
			if u.ID == id {
				user := u
				return &user, nil
			}
		}
	}
	r.store.mutex.RLock()
	defer r.store.mutex.RUnlock()
	u, ok := r.store.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) ListByRole(ctx context.Context, tx repositories.Tx, role entities.Role) ([]entities.User, error) {
	if _, err := r.store.txFrom(ctx, tx); err != nil {
		return nil, err
	}
	r.store.mutex.RLock()
	result := make([]entities.User, 0)
	for _, u := range r.store.users {
		if u.Role == role {
			result = append(result, u)
		}
	}
	r.store.mutex.RUnlock()
	sortByKey(result, func(a, b entities.User) bool { return a.Name < b.Name })
	return result, nil
}

func (r *UserRepository) Create(ctx context.Context, tx repositories.Tx, user *entities.User) error {
	mtx, err := r.store.txFrom(ctx, tx)
	if err != nil {
		return err
	}
	if mtx == nil {
		return r.store.autocommit(ctx, func(t *Tx) error { return r.Create(ctx, t, user) })
	}
	mtx.users = append(mtx.users, *user)
	return nil
}
