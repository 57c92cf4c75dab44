package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/storage"
)

func newSession(userID uuid.UUID, hash string, now time.Time) *models.RefreshSession {
	now = now.UTC().Truncate(time.Microsecond)
	return &models.RefreshSession{
		ID:         uuid.New(),
		TokenHash:  hash,
		UserID:     userID,
		ExpiresAt:  now.Add(time.Hour),
		IPAddress:  "10.0.0.1",
		UserAgent:  "test-agent",
		CreatedAt:  now,
		LastUsedAt: now,
	}
}

// seedUser создаёт пользователя и возвращает его ID.
func seedUser(t *testing.T, st *Storage, email string) uuid.UUID {
	t.Helper()
	u := newUser(email)
	require.NoError(t, st.SaveUser(context.Background(), u))
	return u.ID
}

func TestIntegration_SaveRefreshSession_UniqueHash(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	uid := seedUser(t, st, "user@example.com")
	now := time.Now()

	require.NoError(t, st.SaveRefreshSession(ctx, newSession(uid, "dup", now)))

	err := st.SaveRefreshSession(ctx, newSession(uid, "dup", now))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestIntegration_SaveRefreshSession_UnknownUser(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	err := st.SaveRefreshSession(context.Background(), newSession(uuid.New(), "orphan", time.Now()))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_RotateRefreshSession_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	uid := seedUser(t, st, "user@example.com")
	now := time.Now()

	old := newSession(uid, "old", now)
	require.NoError(t, st.SaveRefreshSession(ctx, old))

	next := newSession(uid, "next", now.Add(time.Minute))
	consumed, err := st.RotateRefreshSession(ctx, "old", uid, next, now)
	require.NoError(t, err)
	require.Equal(t, old.ID, consumed.ID)
	require.Equal(t, "10.0.0.1", consumed.IPAddress)

	// Старый хэш погашен: повтор даёт ErrNotFound.
	_, err = st.RotateRefreshSession(ctx, "old", uid, newSession(uid, "next-2", now), now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	list, err := st.UserSessions(ctx, uid, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, next.ID, list[0].ID)
}

func TestIntegration_RotateRefreshSession_ForeignUser(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	owner := seedUser(t, st, "owner@example.com")
	stranger := seedUser(t, st, "stranger@example.com")
	now := time.Now()

	require.NoError(t, st.SaveRefreshSession(ctx, newSession(owner, "h", now)))

	_, err := st.RotateRefreshSession(ctx, "h", stranger, newSession(stranger, "n", now), now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	list, err := st.UserSessions(ctx, owner, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestIntegration_RotateRefreshSession_Expired(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	uid := seedUser(t, st, "user@example.com")
	now := time.Now()

	old := newSession(uid, "old", now.Add(-2*time.Hour))
	require.NoError(t, st.SaveRefreshSession(ctx, old))

	consumed, err := st.RotateRefreshSession(ctx, "old", uid, newSession(uid, "next", now), now)
	require.ErrorIs(t, err, storage.ErrExpired)
	require.NotNil(t, consumed)
	require.Equal(t, old.ID, consumed.ID)

	// Просроченная запись удалена, новая не вставлена.
	n, err := st.DeleteUserSessions(ctx, uid)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestIntegration_RotateRefreshSession_CollisionKeepsOld(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	uid := seedUser(t, st, "user@example.com")
	now := time.Now()

	require.NoError(t, st.SaveRefreshSession(ctx, newSession(uid, "old", now)))
	require.NoError(t, st.SaveRefreshSession(ctx, newSession(uid, "taken", now)))

	_, err := st.RotateRefreshSession(ctx, "old", uid, newSession(uid, "taken", now), now)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	// Транзакция откатилась: старая запись на месте.
	_, err = st.RotateRefreshSession(ctx, "old", uid, newSession(uid, "fresh", now), now)
	require.NoError(t, err)
}

func TestIntegration_RotateRefreshSession_ConcurrentSingleWinner(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	uid := seedUser(t, st, "user@example.com")
	now := time.Now()
	require.NoError(t, st.SaveRefreshSession(ctx, newSession(uid, "old", now)))

	const workers = 8
	var (
		wg         sync.WaitGroup
		winners    atomic.Int32
		unexpected atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.RotateRefreshSession(ctx, "old", uid, newSession(uid, uuid.NewString(), now), now)
			switch {
			case err == nil:
				winners.Add(1)
			case !errors.Is(err, storage.ErrNotFound):
				unexpected.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), winners.Load())
	require.Zero(t, unexpected.Load())
}

func TestIntegration_DeleteRefreshSessionByHash(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	uid := seedUser(t, st, "user@example.com")
	require.NoError(t, st.SaveRefreshSession(ctx, newSession(uid, "h", time.Now())))

	require.NoError(t, st.DeleteRefreshSessionByHash(ctx, "h"))
	require.ErrorIs(t, st.DeleteRefreshSessionByHash(ctx, "h"), storage.ErrNotFound)
}

func TestIntegration_DeleteUserSession_Ownership(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	owner := seedUser(t, st, "owner@example.com")
	stranger := seedUser(t, st, "stranger@example.com")

	sess := newSession(owner, "h", time.Now())
	require.NoError(t, st.SaveRefreshSession(ctx, sess))

	require.ErrorIs(t, st.DeleteUserSession(ctx, stranger, sess.ID), storage.ErrNotFound)
	require.NoError(t, st.DeleteUserSession(ctx, owner, sess.ID))
	require.ErrorIs(t, st.DeleteUserSession(ctx, owner, sess.ID), storage.ErrNotFound)
}

func TestIntegration_UserSessions_OrderAndExpiry(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	uid := seedUser(t, st, "user@example.com")
	now := time.Now()

	older := newSession(uid, "older", now.Add(-10*time.Minute))
	newer := newSession(uid, "newer", now.Add(-time.Minute))
	expired := newSession(uid, "expired", now.Add(-3*time.Hour))
	for _, s := range []*models.RefreshSession{older, newer, expired} {
		require.NoError(t, st.SaveRefreshSession(ctx, s))
	}

	list, err := st.UserSessions(ctx, uid, now)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, newer.ID, list[0].ID)
	require.Equal(t, older.ID, list[1].ID)

	n, err := st.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = st.DeleteUserSessions(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = st.DeleteUserSessions(ctx, uid)
	require.NoError(t, err)
	require.Zero(t, n)
}
