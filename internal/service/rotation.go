package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/pkg/log"
	"github.com/pribylovaa/auth-sessions/internal/storage"
	"github.com/pribylovaa/auth-sessions/internal/token"
	"github.com/pribylovaa/auth-sessions/pkg/redact"
)

// maxIssueAttempts — сколько раз перевыпускаем refresh-токен при коллизии хэша.
const maxIssueAttempts = 5

// Rotate обменивает refresh-токен на новую пару.
//
// Refresh-токен одноразовый: запись погашается и заменяется новой одной
// атомарной операцией хранилища. Корректно подписанный токен без записи
// означает повторное предъявление: все сессии владельца отзываются и
// возвращается ErrReuseDetected.
func (s *Service) Rotate(ctx context.Context, refreshToken string, meta models.ClientMeta) (*models.TokenPair, error) {
	const op = "service.rotation.Rotate"

	lg := log.From(ctx)

	if refreshToken == "" {
		s.metrics.AuthEvent(eventRotate, outcomeMissing)
		return nil, fmt.Errorf("%s: %w", op, ErrMissingToken)
	}

	claims, err := s.keys.Refresh.Verify(refreshToken)
	if err != nil {
		lg.Debug("refresh_token_rejected", slog.String("err", err.Error()))
		s.metrics.AuthEvent(eventRotate, outcomeInvalid)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := claims.UserID()
	if err != nil {
		s.metrics.AuthEvent(eventRotate, outcomeInvalid)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.storage.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.AuthEvent(eventRotate, outcomeInvalid)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		s.metrics.AuthEvent(eventRotate, outcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	oldHash := token.HashRefresh(refreshToken)

	pair, err := s.issueTokenPair(ctx, user, meta, now, func(next *models.RefreshSession) error {
		_, err := s.storage.RotateRefreshSession(ctx, oldHash, uid, next, now)
		return err
	})

	switch {
	case err == nil:
		lg.Info("refresh_token_rotated",
			slog.String("user_id", uid.String()),
			slog.String("token", redact.Fingerprint(oldHash)),
		)
		s.metrics.AuthEvent(eventRotate, outcomeOK)

		return pair, nil

	case errors.Is(err, storage.ErrNotFound):
		revoked, derr := s.storage.DeleteUserSessions(ctx, uid)
		if derr != nil {
			lg.Error("reuse_revoke_failed",
				slog.String("op", op),
				slog.String("user_id", uid.String()),
				slog.String("err", derr.Error()),
			)
			s.metrics.AuthEvent(eventRotate, outcomeError)
			return nil, fmt.Errorf("%s: %w", op, derr)
		}

		lg.Warn("refresh_token_reuse_detected",
			slog.String("user_id", uid.String()),
			slog.String("token", redact.Fingerprint(oldHash)),
			slog.Int64("revoked_sessions", revoked),
			slog.String("ip", meta.IPAddress),
		)
		s.metrics.AuthEvent(eventRotate, outcomeReuse)

		return nil, fmt.Errorf("%s: %w", op, ErrReuseDetected)

	case errors.Is(err, storage.ErrExpired):
		s.metrics.AuthEvent(eventRotate, outcomeInvalid)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)

	default:
		s.metrics.AuthEvent(eventRotate, outcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
}

// issueTokenPair выпускает пару токенов и сохраняет запись новой сессии через persist.
// При коллизии хэша (storage.ErrAlreadyExists) refresh-токен перевыпускается.
func (s *Service) issueTokenPair(
	ctx context.Context,
	user *models.User,
	meta models.ClientMeta,
	now time.Time,
	persist func(next *models.RefreshSession) error,
) (*models.TokenPair, error) {
	const op = "service.rotation.issueTokenPair"

	lg := log.From(ctx)
	meta = meta.Normalize()

	access, accessExp, err := s.keys.Access.Sign(token.Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID.String(),
		},
	}, now)
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		refresh, refreshExp, err := s.signRefresh(user.ID, now)
		if err != nil {
			lg.Error("refresh_token_sign_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		next := &models.RefreshSession{
			ID:         uuid.New(),
			TokenHash:  token.HashRefresh(refresh),
			UserID:     user.ID,
			ExpiresAt:  refreshExp,
			IPAddress:  meta.IPAddress,
			UserAgent:  meta.UserAgent,
			CreatedAt:  now,
			LastUsedAt: now,
		}

		if err := persist(next); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия, пробуем сгенерировать заново.
				continue
			}

			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return &models.TokenPair{
			AccessToken:      access,
			RefreshToken:     refresh,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: refreshExp,
		}, nil
	}

	lg.Error("refresh_collision_exceeded", slog.String("op", op))

	return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// signRefresh подписывает refresh-токен со случайным jti.
func (s *Service) signRefresh(userID uuid.UUID, now time.Time) (string, time.Time, error) {
	nonce, err := token.NewNonce()
	if err != nil {
		return "", time.Time{}, err
	}

	return s.keys.Refresh.Sign(token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID.String(),
			ID:      nonce,
		},
	}, now)
}
