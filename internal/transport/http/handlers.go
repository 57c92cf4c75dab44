package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-sessions/internal/models"
)

// maxBodyBytes — предел тела JSON-запроса.
const maxBodyBytes = 1 << 20

// SessionService — операции сервиса, нужные транспорту.
type SessionService interface {
	AccessVerifier
	Register(ctx context.Context, email, password string) (*models.Identity, error)
	Login(ctx context.Context, email, password string, meta models.ClientMeta) (*models.LoginResult, error)
	Rotate(ctx context.Context, refreshToken string, meta models.ClientMeta) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ListSessions(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error)
	RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) error
}

// Handlers агрегирует зависимости HTTP-обработчиков.
type Handlers struct {
	svc       SessionService
	transport TokenTransport
}

// NewHandlers создаёт обработчики.
func NewHandlers(svc SessionService, tr TokenTransport) *Handlers {
	return &Handlers{svc: svc, transport: tr}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	Message string           `json:"message"`
	User    *models.Identity `json:"user"`
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля и
// хвост после объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after json object")
	}

	return nil
}

// clientMeta собирает данные клиента для записи сессии.
func clientMeta(r *http.Request) models.ClientMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	return models.ClientMeta{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
