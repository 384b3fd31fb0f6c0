package middleware

import (
	"context"
	"net/http"
	"strings"

	"helpdesk-system/pkg/contextkeys"
	apperrors "helpdesk-system/pkg/errors"
	"helpdesk-system/pkg/service"
	"helpdesk-system/pkg/utils"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type AuthMiddleware struct {
	jwtService service.JWTService
	logger     *zap.Logger
}

func NewAuthMiddleware(jwtSvc service.JWTService, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtSvc,
		logger:     logger,
	}
}

// Auth кладёт в контекст только идентификатор принципала.
func (m *AuthMiddleware) Auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			m.logger.Warn("AuthMiddleware: Пустой заголовок Authorization")
			return utils.ErrorResponse(c, unauthorized(apperrors.ErrEmptyAuthHeader), m.logger)
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.logger.Warn("AuthMiddleware: Неверный формат заголовка Authorization")
			return utils.ErrorResponse(c, unauthorized(apperrors.ErrInvalidAuthHeader), m.logger)
		}

		claims, err := m.jwtService.ValidateToken(parts[1])
		if err != nil {
			m.logger.Warn("AuthMiddleware: Ошибка валидации токена", zap.Error(err))
			return utils.ErrorResponse(c, unauthorized(err), m.logger)
		}

		ctx := context.WithValue(c.Request().Context(), contextkeys.UserIDKey, claims.UserID)
		c.SetRequest(c.Request().WithContext(ctx))

		m.logger.Debug("AuthMiddleware: Пользователь аутентифицирован", zap.String("userID", claims.UserID))
		return next(c)
	}
}

func unauthorized(err error) *apperrors.HttpError {
	return apperrors.NewHttpError(http.StatusUnauthorized, err.Error(), nil, nil)
}
