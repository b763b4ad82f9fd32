package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Фатальные ошибки сессии: не ретраим, вызывающий закрывает экран сессии.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is no longer accepting players")
	ErrUnauthorized    = errors.New("participant token rejected")
)

// APIError - отказ бэкенда с телом ошибки.
// Класс ошибки определяется HTTP-статусом, см. Transient/Fatal.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("backend: %s (%d)", e.Message, e.Status)
}

// Transient сообщает, стоит ли повторять запрос.
// Сетевые сбои и 5xx - транзиентные; их гасит reconnect/poll-логика транспорта.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	// не-HTTP ошибка: обрыв соединения, таймаут и т.п.
	return !Fatal(err)
}

// Fatal сообщает, что сессия для клиента закончилась
func Fatal(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrUnauthorized)
}

// классифицирует HTTP-статус в ошибку нужного класса
func classify(status int, body *APIError) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrSessionNotFound, body.Message)
	case http.StatusGone, http.StatusLocked:
		return fmt.Errorf("%w: %s", ErrSessionClosed, body.Message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, body.Message)
	default:
		// 403 здесь НЕ фатален: так сервер отказывает в DM-привилегии
		return body // 4xx валидация либо 5xx транзиент
	}
}
