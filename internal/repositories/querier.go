package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	apperrors "helpdesk-system/pkg/errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// getQuerier - возвращает транзакцию или пул соединений
func getQuerier(pool *pgxpool.Pool, tx Tx) (Querier, error) {
	if tx == nil {
		return pool, nil
	}
	pgTx, ok := tx.(pgx.Tx)
	if !ok {
		return nil, fmt.Errorf("%w: транзакция %T не принадлежит PostgreSQL", apperrors.ErrInternalLogic, tx)
	}
	return pgTx, nil
}

// forUpdate добавляет построчную блокировку, когда чтение идёт внутри транзакции.
func forUpdate(b sq.SelectBuilder, tx Tx) sq.SelectBuilder {
	if tx != nil {
		return b.Suffix("FOR UPDATE")
	}
	return b
}

// mapStorageError сводит ошибки драйвера к доменной таксономии.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if apperrors.KindOf(err) != nil {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", apperrors.ErrConflict, pgErr.Message)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) ||
		errors.As(err, &connErr) || errors.As(err, &netErr) || errors.Is(err, pgx.ErrTxClosed) {
		return apperrors.NewStorageError(err)
	}
	return err
}

func toJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: сериализация в JSON: %v", apperrors.ErrInternalLogic, err)
	}
	return data, nil
}

func fromJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: десериализация JSON: %v", apperrors.ErrInternalLogic, err)
	}
	return nil
}

func searchPattern(s string) string {
	return "%" + s + "%"
}
