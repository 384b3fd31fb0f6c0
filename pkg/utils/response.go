package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "helpdesk-system/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type HTTPResponse struct {
	Status  bool        `json:"status"`
	Body    interface{} `json:"body,omitempty"`
	Message string      `json:"message"`
}

type Pagination struct {
	TotalCount uint64 `json:"total_count"`
	Limit      uint64 `json:"limit"`
	Offset     uint64 `json:"offset"`
}

func SuccessResponse(ctx echo.Context, body interface{}, message string, code int) error {
	return ctx.JSON(code, &HTTPResponse{Status: true, Body: body, Message: message})
}

// ListResponse оборачивает список и пагинацию в body.
func ListResponse(ctx echo.Context, list interface{}, total, limit, offset uint64) error {
	body := map[string]interface{}{
		"list": list,
		"pagination": Pagination{
			TotalCount: total,
			Limit:      limit,
			Offset:     offset,
		},
	}
	return ctx.JSON(http.StatusOK, &HTTPResponse{Status: true, Body: body, Message: "Успешно"})
}

// StatusCodeFor сопоставляет вид доменной ошибки с HTTP-кодом.
func StatusCodeFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrPermissionDenied:
		return http.StatusForbidden
	case apperrors.ErrPreconditionFailed, apperrors.ErrInsufficientStock, apperrors.ErrConflict:
		return http.StatusConflict
	case apperrors.ErrStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func ErrorResponse(c echo.Context, err error, logger *zap.Logger) error {
	var httpErr *apperrors.HttpError
	if errors.As(err, &httpErr) {
		if httpErr.Err != nil {
			logger.Error("HTTP Error",
				zap.Int("code", httpErr.Code),
				zap.String("message", httpErr.Message),
				zap.Error(httpErr.Err),
				zap.Any("context", httpErr.Context),
			)
		}

		response := map[string]interface{}{
			"status":  false,
			"message": httpErr.Message,
		}
		if httpErr.Details != nil {
			response["body"] = httpErr.Details
		}
		return c.JSON(httpErr.Code, response)
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var msgs []string
		for _, e := range validationErrors {
			msgs = append(msgs, fmt.Sprintf("Поле '%s' не прошло проверку '%s'", e.Field(), e.Tag()))
		}
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"status": false, "message": "Ошибка валидации: " + strings.Join(msgs, "; ")})
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code := StatusCodeFor(err)
		if appErr.Err != nil {
			logger.Warn("Доменная ошибка", zap.Int("code", code), zap.String("message", appErr.Message), zap.Error(appErr.Err))
		}
		response := map[string]interface{}{
			"status":  false,
			"message": appErr.Message,
		}
		if appErr.Details != nil {
			response["body"] = appErr.Details
		}
		return c.JSON(code, response)
	}

	if kind := apperrors.KindOf(err); kind != nil {
		code := StatusCodeFor(err)
		if code == http.StatusServiceUnavailable {
			logger.Error("Хранилище недоступно", zap.Error(err))
		}
		return c.JSON(code, map[string]interface{}{"status": false, "message": kind.Error()})
	}

	logger.Error("Unexpected Error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"status":  false,
		"message": "Внутренняя ошибка сервера",
	})
}
