package memory

import (
	"context"

	"helpdesk-system/internal/repositories"
)

// autocommit выполняет одиночную запись вне явной транзакции, как это делает пул соединений.
func (s *Store) autocommit(ctx context.Context, fn func(tx *Tx) error) error {
	return repositories.RunTx(ctx, s.Begin, func(tx repositories.Tx) error {
		return fn(tx.(*Tx))
	})
}
