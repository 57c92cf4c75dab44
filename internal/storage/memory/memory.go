// memory — потокобезопасная реализация storage.Storage в памяти процесса.
// Используется для локального запуска (storage.driver: memory) и тестов.
// Все операции выполняются под одним мьютексом, поэтому погашение и
// перевыпуск refresh-сессии атомарны относительно конкурентных вызовов.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/storage"
)

type Storage struct {
	mu       sync.Mutex
	users    map[uuid.UUID]models.User
	emails   map[string]uuid.UUID
	sessions map[string]models.RefreshSession // token_hash -> session
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		users:    make(map[uuid.UUID]models.User),
		emails:   make(map[string]uuid.UUID),
		sessions: make(map[string]models.RefreshSession),
	}
}

// Close ничего не делает: ресурсов нет.
func (s *Storage) Close() {}

// SaveUser создаёт нового пользователя.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.emails[user.Email]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	s.users[user.ID] = *user
	s.emails[user.Email] = user.ID

	return nil
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	u := s.users[id]
	return &u, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &u, nil
}

// DeleteUser удаляет пользователя и все его сессии за один захват мьютекса.
func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.memory.DeleteUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	s.deleteUserSessionsLocked(id)
	delete(s.emails, u.Email)
	delete(s.users, id)

	return nil
}

// SaveRefreshSession сохраняет новую сессию.
func (s *Storage) SaveRefreshSession(ctx context.Context, session *models.RefreshSession) error {
	const op = "storage.memory.SaveRefreshSession"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertSessionLocked(session); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RotateRefreshSession атомарно погашает старую сессию и сохраняет новую.
func (s *Storage) RotateRefreshSession(ctx context.Context, oldHash string, userID uuid.UUID, next *models.RefreshSession, now time.Time) (*models.RefreshSession, error) {
	const op = "storage.memory.RotateRefreshSession"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sessions[oldHash]
	if !ok || old.UserID != userID {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if old.Expired(now) {
		delete(s.sessions, oldHash)
		return &old, fmt.Errorf("%s: %w", op, storage.ErrExpired)
	}

	if err := s.checkSessionUniqueLocked(next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	delete(s.sessions, oldHash)
	s.sessions[next.TokenHash] = *next

	return &old, nil
}

// DeleteRefreshSessionByHash удаляет сессию по хэшу токена.
func (s *Storage) DeleteRefreshSessionByHash(ctx context.Context, hash string) error {
	const op = "storage.memory.DeleteRefreshSessionByHash"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[hash]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.sessions, hash)

	return nil
}

// DeleteUserSession удаляет сессию sessionID пользователя userID.
func (s *Storage) DeleteUserSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	const op = "storage.memory.DeleteUserSession"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, sess := range s.sessions {
		if sess.ID == sessionID && sess.UserID == userID {
			delete(s.sessions, hash)
			return nil
		}
	}

	return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
}

// DeleteUserSessions удаляет все сессии пользователя.
func (s *Storage) DeleteUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.memory.DeleteUserSessions"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteUserSessionsLocked(userID), nil
}

// UserSessions возвращает непросроченные сессии пользователя (свежие первыми).
func (s *Storage) UserSessions(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshSession, error) {
	const op = "storage.memory.UserSessions"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.RefreshSession, 0)
	for _, sess := range s.sessions {
		if sess.UserID == userID && !sess.Expired(now) {
			out = append(out, sess)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// DeleteExpiredSessions удаляет все просроченные сессии.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.memory.DeleteExpiredSessions"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, hash)
			n++
		}
	}

	return n, nil
}

func (s *Storage) insertSessionLocked(session *models.RefreshSession) error {
	if err := s.checkSessionUniqueLocked(session); err != nil {
		return err
	}

	s.sessions[session.TokenHash] = *session
	return nil
}

func (s *Storage) checkSessionUniqueLocked(session *models.RefreshSession) error {
	if _, ok := s.sessions[session.TokenHash]; ok {
		return storage.ErrAlreadyExists
	}

	for _, sess := range s.sessions {
		if sess.ID == session.ID {
			return storage.ErrAlreadyExists
		}
	}

	return nil
}

func (s *Storage) deleteUserSessionsLocked(userID uuid.UUID) int64 {
	var n int64
	for hash, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, hash)
			n++
		}
	}

	return n
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
