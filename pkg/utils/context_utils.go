// Файл: pkg/utils/context_utils.go

package utils

import (
	"context"
	"time"

	"helpdesk-system/pkg/contextkeys"
	apperrors "helpdesk-system/pkg/errors"

	"github.com/labstack/echo/v4"
)

// GetUserIDFromCtx достаёт идентификатор принципала, положенный JWT-мидлварой.
func GetUserIDFromCtx(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(contextkeys.UserIDKey).(string)
	if !ok || userID == "" {
		return "", apperrors.ErrUserIDNotFoundInContext
	}
	return userID, nil
}

func ContextWithTimeout(ctx echo.Context, timeout int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request().Context(), time.Duration(timeout)*time.Second)
}
