package remoteconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Ошибки клиента Remote Config.
var (
	// ErrUnauthenticated — сервер не принял учётные данные или токен не удалось получить.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPermissionDenied — у сервисного аккаунта нет прав на проект.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict — ETag не совпал: шаблон изменился после последнего чтения.
	// Правильная реакция — перечитать шаблон и повторить, а не игнорировать.
	ErrConflict = errors.New("template changed since it was last read")

	// ErrNotFound — версия не существует или уже удалена сервером.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument — некорректный запрос (проверяется до отправки или сервером).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransport — сетевая ошибка или ошибка сервера (5xx, 429).
	ErrTransport = errors.New("transport failure")

	// ErrRequestFailed — прочие отказы сервера.
	ErrRequestFailed = errors.New("request failed")

	// ErrMissingETag — успешный ответ пришёл без заголовка ETag.
	ErrMissingETag = errors.New("response has no ETag header")
)

// APIError — отказ сервера в формате Google API.
//
// Разворачивается одновременно в классифицирующую ошибку (ErrConflict,
// ErrNotFound, ...) и в исходную *googleapi.Error.
type APIError struct {
	// Op — логическая операция клиента (get, publish, list_versions, rollback).
	Op string

	// StatusCode — HTTP-код ответа.
	StatusCode int

	// Status — канонический статус Google API (ABORTED, NOT_FOUND, ...), если есть.
	Status string

	// Message — сообщение сервера.
	Message string

	kind error
	err  *googleapi.Error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Status != "" {
		return fmt.Sprintf("%s: %v: %s (HTTP %d %s)", e.Op, e.kind, msg, e.StatusCode, e.Status)
	}
	return fmt.Sprintf("%s: %v: %s (HTTP %d)", e.Op, e.kind, msg, e.StatusCode)
}

// Unwrap позволяет использовать errors.Is(err, ErrConflict) и
// errors.As(err, &*googleapi.Error).
func (e *APIError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// googleErrorEnvelope — поле status, которое googleapi.Error не разбирает.
type googleErrorEnvelope struct {
	Error struct {
		Status string `json:"status"`
	} `json:"error"`
}

// checkResponse возвращает nil для 2xx и *APIError для остальных ответов.
func checkResponse(op string, resp *http.Response) error {
	err := googleapi.CheckResponse(resp)
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%s: %w: %v", op, ErrRequestFailed, err)
	}

	var env googleErrorEnvelope
	_ = json.Unmarshal([]byte(gerr.Body), &env)

	message := gerr.Message
	if message == "" {
		message = truncate(gerr.Body, 200)
	}

	return &APIError{
		Op:         op,
		StatusCode: gerr.Code,
		Status:     env.Error.Status,
		Message:    message,
		kind:       classify(gerr.Code, env.Error.Status),
		err:        gerr,
	}
}

// classify сопоставляет HTTP-код и канонический статус с ошибкой клиента.
// Статус приоритетнее кода: сервер может вернуть ABORTED с кодом 409.
func classify(code int, status string) error {
	switch status {
	case "UNAUTHENTICATED":
		return ErrUnauthenticated
	case "PERMISSION_DENIED":
		return ErrPermissionDenied
	case "NOT_FOUND":
		return ErrNotFound
	case "ABORTED", "FAILED_PRECONDITION":
		return ErrConflict
	case "INVALID_ARGUMENT":
		return ErrInvalidArgument
	case "UNAVAILABLE", "INTERNAL", "RESOURCE_EXHAUSTED", "DEADLINE_EXCEEDED":
		return ErrTransport
	}

	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthenticated
	case code == http.StatusForbidden:
		return ErrPermissionDenied
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict, code == http.StatusPreconditionFailed:
		return ErrConflict
	case code == http.StatusBadRequest:
		return ErrInvalidArgument
	case code == http.StatusTooManyRequests, code >= 500:
		return ErrTransport
	default:
		return ErrRequestFailed
	}
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
