// storage задаёт контракт хранилища учётных записей и refresh-сессий.
// Реализации: postgres (основная), redis (только refresh-сессии), memory.
package storage

//go:generate mockgen -source=storage.go -destination=../../mocks/mock_storage.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-sessions/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/сессия).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/id/token_hash).
	ErrAlreadyExists = errors.New("already exists")
	// ErrExpired — запись найдена и удалена, но её срок уже истёк.
	ErrExpired = errors.New("expired")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (с учётом регистра).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// DeleteUser удаляет пользователя вместе со всеми его сессиями.
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// SessionStorage выполняет операции над refresh-сессиями.
type SessionStorage interface {
	// SaveRefreshSession сохраняет новую сессию.
	SaveRefreshSession(ctx context.Context, session *models.RefreshSession) error
	// RotateRefreshSession атомарно погашает сессию (oldHash, userID) и
	// сохраняет next. Возвращает погашенную запись.
	//
	// Контракт:
	//   - записи нет — ErrNotFound, ничего не меняется;
	//   - запись просрочена (expires_at <= now) — запись удалена, next не
	//     сохраняется, ErrExpired;
	//   - next конфликтует по token_hash — ErrAlreadyExists, старая запись цела;
	//   - два конкурентных вызова с одним oldHash не могут оба завершиться успехом.
	RotateRefreshSession(ctx context.Context, oldHash string, userID uuid.UUID, next *models.RefreshSession, now time.Time) (*models.RefreshSession, error)
	// DeleteRefreshSessionByHash удаляет сессию по хэшу токена.
	DeleteRefreshSessionByHash(ctx context.Context, hash string) error
	// DeleteUserSession удаляет сессию sessionID, только если она принадлежит userID.
	DeleteUserSession(ctx context.Context, userID, sessionID uuid.UUID) error
	// DeleteUserSessions удаляет все сессии пользователя, возвращает их число.
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error)
	// UserSessions возвращает непросроченные сессии пользователя,
	// отсортированные по last_used_at (сначала свежие).
	UserSessions(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshSession, error)
	// DeleteExpiredSessions удаляет все просроченные сессии.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Storage задаёт контракт работы с хранилищем.
type Storage interface {
	UserStorage
	SessionStorage
	Close()
}
