// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает ошибку сервисного слоя (sentinel, обёрнутый через %w),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - короткий стабильный код и безопасное message без утечки деталей.
//
// Источник истинности по ошибкам: переменные Err* пакета service.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/auth-sessions/internal/service"
)

// Нестандартный код, часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// ErrInvalidArgument — запрос не разобран (битый JSON, лишние поля, плохой id).
var ErrInvalidArgument = stderrors.New("invalid argument")

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

type mapping struct {
	target  error
	status  int
	code    string
	message string
}

// Порядок важен: первый совпавший sentinel определяет ответ.
var table = []mapping{
	{ErrInvalidArgument, http.StatusBadRequest, "invalid_argument", "invalid argument"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "invalid_argument", "invalid email format"},
	{service.ErrEmptyPassword, http.StatusBadRequest, "invalid_argument", "password is required"},
	{service.ErrPasswordTooLong, http.StatusBadRequest, "invalid_argument", "password is too long"},
	{service.ErrEmailTaken, http.StatusConflict, "already_exists", "email already taken"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "unauthenticated", "invalid credentials"},
	{service.ErrReuseDetected, http.StatusUnauthorized, "token_reused", "refresh token reuse detected"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "unauthenticated", "invalid token"},
	{service.ErrUnauthorized, http.StatusUnauthorized, "unauthenticated", "unauthenticated"},
	{service.ErrMissingToken, http.StatusGone, "gone", "refresh token is missing"},
	{service.ErrSessionNotFound, http.StatusNotFound, "not_found", "session not found"},
	{service.ErrUserNotFound, http.StatusNotFound, "not_found", "user not found"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"},
	{context.Canceled, StatusClientClosedRequest, "canceled", "canceled"},
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil - программная ошибка вызова: 500/internal, чтобы не
//     послать "200 OK" с телом ошибки и не маскировать баг;
//   - известный sentinel - статус и код из таблицы;
//   - прочее (сбой хранилища, ErrRefreshTokenCollision) - 500/internal
//     без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err != nil {
		for _, m := range table {
			if stderrors.Is(err, m.target) {
				return m.status, ErrorResponse{
					Error: APIError{Code: m.code, Message: m.message},
				}
			}
		}
	}

	return http.StatusInternalServerError, ErrorResponse{
		Error: APIError{
			Code:    "internal",
			Message: "internal error",
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
