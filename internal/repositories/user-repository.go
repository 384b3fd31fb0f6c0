package repositories

import (
	"context"
	"fmt"

	"helpdesk-system/internal/entities"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const userTable = "users"
const userFields = "id, name, phone, department, role, created_at"

// UserRepositoryInterface - справочник пользователей. Источник истины для ролей.
type UserRepositoryInterface interface {
	FindByID(ctx context.Context, tx Tx, id string) (*entities.User, error)
	ListByRole(ctx context.Context, tx Tx, role entities.Role) ([]entities.User, error)
	Create(ctx context.Context, tx Tx, user *entities.User) error
}

type UserRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewUserRepository(storage *pgxpool.Pool, logger *zap.Logger) UserRepositoryInterface {
	return &UserRepository{storage: storage, logger: logger}
}

func scanUser(row pgx.Row) (*entities.User, error) {
	var user entities.User
	err := row.Scan(&user.ID, &user.Name, &user.Phone, &user.Department, &user.Role, &user.CreatedAt)
	if err != nil {
		return nil, mapStorageError(err)
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, tx Tx, id string) (*entities.User, error) {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return nil, err
	}
	query, args, err := psql.Select(userFields).From(userTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки SQL для FindByID: %w", err)
	}
	return scanUser(q.QueryRow(ctx, query, args...))
}

func (r *UserRepository) ListByRole(ctx context.Context, tx Tx, role entities.Role) ([]entities.User, error) {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return nil, err
	}
	query, args, err := psql.Select(userFields).From(userTable).
		Where(sq.Eq{"role": string(role)}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки SQL для ListByRole: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapStorageError(err)
	}
	defer rows.Close()

	users := make([]entities.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, mapStorageError(rows.Err())
}

func (r *UserRepository) Create(ctx context.Context, tx Tx, user *entities.User) error {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert(userTable).
		Columns("id", "name", "phone", "department", "role", "created_at").
		Values(user.ID, user.Name, user.Phone, user.Department, string(user.Role), user.CreatedAt).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки SQL для создания пользователя: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		r.logger.Error("не удалось создать пользователя", zap.String("id", user.ID), zap.Error(err))
		return mapStorageError(err)
	}
	return nil
}
