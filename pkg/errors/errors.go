package errors

import (
	"errors"
	"fmt"
)

var (
	// JWT и токены
	ErrInvalidSigningMethod = fmt.Errorf("неверный метод подписи токена")
	ErrInvalidToken         = fmt.Errorf("недопустимый токен")
	ErrTokenExpired         = fmt.Errorf("срок действия токена истёк")
	ErrTokenNotYetValid     = fmt.Errorf("токен ещё не активен")

	// Авторизация
	ErrEmptyAuthHeader   = fmt.Errorf("заголовок авторизации отсутствует")
	ErrInvalidAuthHeader = fmt.Errorf("неверный формат заголовка авторизации")
	ErrUnauthorized      = fmt.Errorf("неавторизован")

	// Контекст
	ErrUserIDNotFoundInContext = fmt.Errorf("UserID не найден в контексте запроса")

	// Доменная таксономия. Все ошибки сервисов сводятся к одному из этих видов.
	ErrValidation         = errors.New("ошибка валидации")
	ErrNotFound           = errors.New("запись не найдена")
	ErrPermissionDenied   = errors.New("доступ запрещён")
	ErrPreconditionFailed = errors.New("действие недопустимо в текущем состоянии")
	ErrInsufficientStock  = errors.New("недостаточно остатка на складе")
	ErrConflict           = errors.New("конфликт параллельной записи")
	ErrStorageUnavailable = errors.New("хранилище недоступно")
	ErrInternalLogic      = errors.New("внутренняя ошибка логики")
)

// AppError несёт понятное пользователю сообщение и вид ошибки.
// errors.Is(err, ErrPermissionDenied) продолжает работать через Unwrap.
type AppError struct {
	Kind    error
	Message string
	Err     error
	Details interface{}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newAppError(kind error, format string, args ...interface{}) error {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewValidationError(format string, args ...interface{}) error {
	return newAppError(ErrValidation, format, args...)
}

func NewNotFoundError(format string, args ...interface{}) error {
	return newAppError(ErrNotFound, format, args...)
}

func NewPermissionDeniedError(format string, args ...interface{}) error {
	return newAppError(ErrPermissionDenied, format, args...)
}

func NewPreconditionFailedError(format string, args ...interface{}) error {
	return newAppError(ErrPreconditionFailed, format, args...)
}

func NewInsufficientStockError(format string, args ...interface{}) error {
	return newAppError(ErrInsufficientStock, format, args...)
}

// NewStorageError оборачивает сбой хранилища; исходная ошибка уходит в лог, не клиенту.
func NewStorageError(err error) error {
	return &AppError{Kind: ErrStorageUnavailable, Message: "Хранилище временно недоступно, повторите попытку позже", Err: err}
}

// KindOf возвращает вид ошибки из таксономии или nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation, ErrNotFound, ErrPermissionDenied, ErrPreconditionFailed,
		ErrInsufficientStock, ErrConflict, ErrStorageUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// HttpError - ошибка транспортного уровня с кодом ответа.
type HttpError struct {
	Code    int
	Message string
	Err     error
	Context map[string]interface{}
	Details interface{}
}

func (e *HttpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func (e *HttpError) Unwrap() error { return e.Err }

func NewHttpError(code int, message string, err error, context map[string]interface{}) *HttpError {
	return &HttpError{Code: code, Message: message, Err: err, Context: context}
}
