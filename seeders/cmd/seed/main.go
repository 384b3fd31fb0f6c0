package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"helpdesk-system/internal/repositories"
	"helpdesk-system/pkg/config"
	"helpdesk-system/pkg/database/postgresql"
	applogger "helpdesk-system/pkg/logger"
	"helpdesk-system/pkg/service"
	"helpdesk-system/seeders"

	"go.uber.org/zap"
)

func main() {
	runUsers := flag.Bool("users", false, "Создать демо-пользователей всех ролей")
	printTokens := flag.Bool("tokens", false, "Выпустить JWT для демо-пользователей")
	tokenTTL := flag.Duration("ttl", 24*time.Hour, "Срок жизни выпущенных токенов")
	flag.Parse()

	if !*runUsers && !*printTokens {
		log.Println("Не выбран ни один шаг. Доступные флаги:")
		flag.PrintDefaults()
		log.Println("Пример: go run ./seeders/cmd/seed -users -tokens")
		return
	}

	cfg := config.New()
	logger := applogger.NewLogger(cfg.Log.File)
	defer logger.Sync()

	if *runUsers {
		ctx := context.Background()
		dbPool, err := postgresql.ConnectDB(ctx, cfg.Postgres.DSN, logger)
		if err != nil {
			logger.Fatal("Не удалось подключиться к БД", zap.Error(err))
		}
		defer dbPool.Close()

		if err := postgresql.Migrate(ctx, dbPool, logger); err != nil {
			logger.Fatal("Не удалось применить миграции", zap.Error(err))
		}
		if err := seeders.SeedUsers(ctx, repositories.NewUserRepository(dbPool, logger), logger); err != nil {
			logger.Fatal("Ошибка наполнения пользователей", zap.Error(err))
		}
	}

	if *printTokens {
		jwtSvc := service.NewJWTService(cfg.JWT.SecretKey, *tokenTTL, logger)
		for _, u := range seeders.DemoUsers() {
			token, err := jwtSvc.GenerateToken(u.ID)
			if err != nil {
				logger.Fatal("Не удалось выпустить токен", zap.String("userID", u.ID), zap.Error(err))
			}
			fmt.Printf("%-9s %-20s %s\n", u.Role, u.Name, token)
		}
	}
}
