package seeders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"

	"go.uber.org/zap"
)

// SeedUsers наполняет справочник пользователей. Уже существующие записи пропускаются.
func SeedUsers(ctx context.Context, userRepo repositories.UserRepositoryInterface, logger *zap.Logger) error {
	logger.Info("Наполнение справочника пользователей...")

	created := 0
	for _, u := range DemoUsers() {
		user := u
		user.CreatedAt = time.Now()
		err := userRepo.Create(ctx, nil, &user)
		switch {
		case err == nil:
			created++
			logger.Info("  - пользователь создан", zap.String("name", user.Name), zap.String("role", string(user.Role)))
		case errors.Is(err, apperrors.ErrConflict):
			logger.Info("  - пользователь уже существует, пропускаем", zap.String("name", user.Name))
		default:
			return fmt.Errorf("не удалось создать пользователя %s: %w", user.Name, err)
		}
	}

	logger.Info("Наполнение справочника пользователей завершено", zap.Int("created", created))
	return nil
}
