package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"helpdesk-system/internal/authz"
	"helpdesk-system/internal/entities"
	apperrors "helpdesk-system/pkg/errors"
	"helpdesk-system/pkg/utils"

	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04:05"

// BaseService - общее для сервисов: определение актора и повтор при конфликте записи.
type BaseService struct {
	roleResolver RoleResolverInterface
	logger       *zap.Logger
	retries      int
}

func NewBaseService(roleResolver RoleResolverInterface, logger *zap.Logger, conflictRetries int) *BaseService {
	if conflictRetries < 1 {
		conflictRetries = 1
	}
	return &BaseService{roleResolver: roleResolver, logger: logger, retries: conflictRetries}
}

// CurrentActor определяет пользователя по идентификатору из контекста.
// Роль берётся только из справочника пользователей.
func (s *BaseService) CurrentActor(ctx context.Context) (*entities.User, error) {
	userID, err := utils.GetUserIDFromCtx(ctx)
	if err != nil {
		s.logger.Warn("Пользователь не определён", zap.Error(err))
		return nil, &apperrors.AppError{Kind: apperrors.ErrPermissionDenied, Message: "Не удалось определить пользователя", Err: err}
	}
	return s.roleResolver.Resolve(ctx, userID)
}

// CheckPermission определяет актора и проверяет право его роли.
func (s *BaseService) CheckPermission(ctx context.Context, permission string) (*entities.User, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	authCtx := authz.NewContext(actor, nil)
	if !authz.CanDo(permission, authCtx) {
		s.logger.Warn("Отказано в доступе",
			zap.String("userID", actor.ID),
			zap.String("role", string(actor.Role)),
			zap.String("permission", permission),
		)
		return nil, apperrors.NewPermissionDeniedError("Недостаточно прав для этого действия")
	}
	return actor, nil
}

// WithConflictRetry повторяет fn, пока она возвращает ErrConflict, но не больше retries раз.
// fn обязана каждый раз перечитывать данные. Остальные ошибки не повторяются.
func (s *BaseService) WithConflictRetry(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, apperrors.ErrConflict) {
			return err
		}
		s.logger.Warn("Конфликт параллельной записи, повтор",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.NewStorageError(ctxErr)
		}
	}
	return &apperrors.AppError{
		Kind:    apperrors.ErrConflict,
		Message: "Данные одновременно изменены другим запросом, повторите попытку",
		Err:     err,
	}
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func formatNullTime(valid bool, t time.Time) *string {
	if !valid {
		return nil
	}
	s := formatTime(t)
	return &s
}

// generateDailyNumber формирует номер вида <PREFIX><YYYYMMDD><4 цифры>.
// Уникальность проверяет хранилище, при совпадении вызывающий повторяет попытку.
func generateDailyNumber(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%s%04d", prefix, now.Format("20060102"), rand.Intn(10000))
}

var lastEpochNumber atomic.Int64

// generateEpochNumber формирует номер вида <PREFIX><epoch-ms>.
// В пределах процесса номера строго возрастают, даже если вызовы пришлись на одну миллисекунду.
func generateEpochNumber(prefix string, now time.Time) string {
	for {
		last := lastEpochNumber.Load()
		next := now.UnixMilli()
		if next <= last {
			next = last + 1
		}
		if lastEpochNumber.CompareAndSwap(last, next) {
			return fmt.Sprintf("%s%d", prefix, next)
		}
	}
}
