package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/pkg/log"
	"github.com/pribylovaa/auth-sessions/internal/storage"
	"github.com/pribylovaa/auth-sessions/internal/token"
	"github.com/pribylovaa/auth-sessions/pkg/redact"
)

// Register регистрирует нового пользователя.
// Хэш пароля вычисляется до сохранения; наружу возвращается Identity без хэша.
func (s *Service) Register(ctx context.Context, email, password string) (*models.Identity, error) {
	const op = "service.auth.Register"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		s.metrics.AuthEvent(eventRegister, outcomeInvalid)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(password); err != nil {
		s.metrics.AuthEvent(eventRegister, outcomeInvalid)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		s.metrics.AuthEvent(eventRegister, outcomeConflict)
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.metrics.AuthEvent(eventRegister, outcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := s.hashPassword(password)
	if err != nil {
		s.metrics.AuthEvent(eventRegister, outcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			s.metrics.AuthEvent(eventRegister, outcomeConflict)
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		s.metrics.AuthEvent(eventRegister, outcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("user_registered",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(user.Email)),
	)
	s.metrics.AuthEvent(eventRegister, outcomeOK)

	return user.Identity(), nil
}

// Login выполняет вход по email и паролю и открывает новую сессию.
// Неизвестный email и неверный пароль неразличимы для вызывающего.
func (s *Service) Login(ctx context.Context, email, password string, meta models.ClientMeta) (*models.LoginResult, error) {
	const op = "service.auth.Login"

	lg := log.From(ctx)

	user, err := s.storage.UserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Сравнение с заглушкой выравнивает время ответа.
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			s.metrics.AuthEvent(eventLogin, outcomeInvalid)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		s.metrics.AuthEvent(eventLogin, outcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		s.metrics.AuthEvent(eventLogin, outcomeInvalid)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	now := s.now().UTC()
	pair, err := s.issueTokenPair(ctx, user, meta, now, func(next *models.RefreshSession) error {
		return s.storage.SaveRefreshSession(ctx, next)
	})
	if err != nil {
		s.metrics.AuthEvent(eventLogin, outcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("user_logged_in",
		slog.String("user_id", user.ID.String()),
		slog.String("ip", meta.IPAddress),
	)
	s.metrics.AuthEvent(eventLogin, outcomeOK)

	return &models.LoginResult{
		Identity: user.Identity(),
		Tokens:   pair,
	}, nil
}

// Logout закрывает сессию, которой принадлежит refresh-токен.
// Пустой токен и уже закрытая сессия ошибкой не считаются.
// Подпись токена не проверяется: удаляется только запись с совпавшим хэшем.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.auth.Logout"

	if refreshToken == "" {
		s.metrics.AuthEvent(eventLogout, outcomeMissing)
		return nil
	}

	hash := token.HashRefresh(refreshToken)
	if err := s.storage.DeleteRefreshSessionByHash(ctx, hash); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.AuthEvent(eventLogout, outcomeNotFound)
			return nil
		}

		s.metrics.AuthEvent(eventLogout, outcomeError)
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("session_closed", slog.String("token", redact.Fingerprint(hash)))
	s.metrics.AuthEvent(eventLogout, outcomeOK)

	return nil
}

// VerifyAccess проверяет access-токен и возвращает текущего владельца.
// Удалённый после выпуска токена пользователь отклоняется сразу.
func (s *Service) VerifyAccess(ctx context.Context, accessToken string) (*models.Identity, error) {
	const op = "service.auth.VerifyAccess"

	if accessToken == "" {
		s.metrics.AuthEvent(eventVerify, outcomeMissing)
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	claims, err := s.keys.Access.Verify(accessToken)
	if err != nil {
		log.From(ctx).Debug("access_token_rejected", slog.String("err", err.Error()))
		s.metrics.AuthEvent(eventVerify, outcomeInvalid)
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	uid, err := claims.UserID()
	if err != nil {
		s.metrics.AuthEvent(eventVerify, outcomeInvalid)
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	user, err := s.storage.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.AuthEvent(eventVerify, outcomeInvalid)
			return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}

		s.metrics.AuthEvent(eventVerify, outcomeError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.AuthEvent(eventVerify, outcomeOK)

	return user.Identity(), nil
}

// DeleteUser удаляет пользователя вместе со всеми его сессиями.
// Административная операция, через HTTP не публикуется.
func (s *Service) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	const op = "service.auth.DeleteUser"

	if err := s.storage.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_deleted", slog.String("user_id", userID.String()))

	return nil
}
