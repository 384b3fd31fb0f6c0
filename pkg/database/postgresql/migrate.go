package postgresql

import (
	"context"
	"fmt"

	"helpdesk-system/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrate накатывает встроенные SQL-миграции через goose.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err == nil {
		logger.Info("Миграции применены", zap.Int64("version", version))
	}
	return nil
}
