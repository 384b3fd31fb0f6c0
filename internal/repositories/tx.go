package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx - единица работы. pgx.Tx удовлетворяет интерфейсу как есть,
// транзакция in-memory хранилища реализует его сама.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type TxManagerInterface interface {
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// RunTx открывает транзакцию через begin и коммитит её, если fn вернула nil.
// При ошибке или панике транзакция откатывается; паника пробрасывается дальше.
func RunTx(ctx context.Context, begin func(ctx context.Context) (Tx, error), fn func(tx Tx) error) (err error) {
	tx, err := begin(ctx)
	if err != nil {
		return mapStorageError(fmt.Errorf("не удалось начать транзакцию: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			// Исходная ошибка важнее ошибки отката.
			_ = tx.Rollback(ctx)
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = mapStorageError(fmt.Errorf("ошибка при коммите транзакции: %w", commitErr))
			}
		}
	}()

	err = fn(tx)
	return err
}

type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) TxManagerInterface {
	return &TxManager{pool: pool}
}

func (m *TxManager) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return RunTx(ctx, func(ctx context.Context) (Tx, error) {
		return m.pool.Begin(ctx)
	}, fn)
}
