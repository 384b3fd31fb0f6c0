package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"

	"go.uber.org/zap"
)

type RoleResolverInterface interface {
	Resolve(ctx context.Context, principalID string) (*entities.User, error)
	Invalidate(ctx context.Context, principalID string) error
}

// RoleResolver достаёт пользователя с ролью из справочника, кеширует ответ на cacheTTL.
type RoleResolver struct {
	userRepo  repositories.UserRepositoryInterface
	cacheRepo repositories.CacheRepositoryInterface
	logger    *zap.Logger
	cacheTTL  time.Duration
}

func NewRoleResolver(
	userRepo repositories.UserRepositoryInterface,
	cacheRepo repositories.CacheRepositoryInterface,
	logger *zap.Logger,
	cacheTTL time.Duration,
) RoleResolverInterface {
	return &RoleResolver{
		userRepo:  userRepo,
		cacheRepo: cacheRepo,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

func userCacheKey(principalID string) string {
	return fmt.Sprintf("auth:user:%s", principalID)
}

func (s *RoleResolver) Resolve(ctx context.Context, principalID string) (*entities.User, error) {
	cacheKey := userCacheKey(principalID)

	// 1. Кеш
	cached, errGet := s.cacheRepo.Get(ctx, cacheKey)
	if errGet == nil {
		var user entities.User
		if err := json.Unmarshal([]byte(cached), &user); err == nil && user.Role.IsValid() {
			return &user, nil
		}
		s.logger.Warn("RoleResolver: повреждённая запись в кеше", zap.String("key", cacheKey))
	} else if !errors.Is(errGet, repositories.ErrCacheMiss) {
		s.logger.Warn("RoleResolver: кеш недоступен, идём в справочник", zap.Error(errGet))
	}

	// 2. Справочник пользователей
	user, err := s.userRepo.FindByID(ctx, nil, principalID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("RoleResolver: пользователь не найден", zap.String("principalID", principalID))
			return nil, apperrors.NewPermissionDeniedError("Пользователь не зарегистрирован в системе")
		}
		s.logger.Error("RoleResolver: ошибка чтения справочника", zap.String("principalID", principalID), zap.Error(err))
		return nil, err
	}
	if !user.Role.IsValid() {
		s.logger.Error("RoleResolver: у пользователя неизвестная роль",
			zap.String("principalID", principalID),
			zap.String("role", string(user.Role)),
		)
		return nil, apperrors.NewPermissionDeniedError("У пользователя не назначена роль")
	}

	// 3. Обратно в кеш. Сбой кеша не мешает ответу.
	if payload, errMarshal := json.Marshal(user); errMarshal == nil {
		if errSet := s.cacheRepo.Set(ctx, cacheKey, string(payload), s.cacheTTL); errSet != nil {
			s.logger.Warn("RoleResolver: не удалось сохранить пользователя в кеш", zap.Error(errSet))
		}
	}
	return user, nil
}

// Invalidate сбрасывает кеш после смены роли пользователя.
func (s *RoleResolver) Invalidate(ctx context.Context, principalID string) error {
	if err := s.cacheRepo.Del(ctx, userCacheKey(principalID)); err != nil {
		s.logger.Error("RoleResolver: ошибка инвалидации кеша", zap.String("principalID", principalID), zap.Error(err))
		return err
	}
	s.logger.Info("RoleResolver: кеш пользователя инвалидирован", zap.String("principalID", principalID))
	return nil
}
