package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/pkg/log"
	"github.com/pribylovaa/auth-sessions/internal/storage"
)

// ListSessions возвращает действующие сессии пользователя,
// последние использованные первыми.
func (s *Service) ListSessions(ctx context.Context, userID uuid.UUID) ([]models.SessionSummary, error) {
	const op = "service.sessions.ListSessions"

	records, err := s.storage.UserSessions(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]models.SessionSummary, 0, len(records))
	for i := range records {
		out = append(out, records[i].Summary())
	}

	return out, nil
}

// RevokeSession закрывает одну сессию пользователя.
// Чужая или несуществующая сессия даёт ErrSessionNotFound.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	const op = "service.sessions.RevokeSession"

	if err := s.storage.DeleteUserSession(ctx, userID, sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.AuthEvent(eventRevoke, outcomeNotFound)
			return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}

		s.metrics.AuthEvent(eventRevoke, outcomeError)
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("session_revoked",
		slog.String("user_id", userID.String()),
		slog.String("session_id", sessionID.String()),
	)
	s.metrics.AuthEvent(eventRevoke, outcomeOK)

	return nil
}

// RevokeAllSessions закрывает все сессии пользователя. Идемпотентна.
func (s *Service) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	const op = "service.sessions.RevokeAllSessions"

	n, err := s.storage.DeleteUserSessions(ctx, userID)
	if err != nil {
		s.metrics.AuthEvent(eventRevokeAll, outcomeError)
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("sessions_revoked",
		slog.String("user_id", userID.String()),
		slog.Int64("count", n),
	)
	s.metrics.AuthEvent(eventRevokeAll, outcomeOK)

	return nil
}

// PurgeExpiredSessions удаляет просроченные сессии всех пользователей.
// Проверка срока при ротации от неё не зависит.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	const op = "service.sessions.PurgeExpiredSessions"

	n, err := s.storage.DeleteExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}
