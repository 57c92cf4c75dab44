package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/storage"
	"github.com/pribylovaa/auth-sessions/internal/storage/memory"
	"github.com/pribylovaa/auth-sessions/internal/token"
)

// Сценарии поверх хранилища в памяти: жизненный цикл целиком.

func newMemSvc(t *testing.T) (*Service, *memory.Storage, *fakeClock) {
	t.Helper()
	st := memory.New()
	clock := newFakeClock()
	svc, err := New(st, testCfg(), WithClock(clock.Now))
	require.NoError(t, err)
	return svc, st, clock
}

func register(t *testing.T, svc *Service, email, pw string) *models.Identity {
	t.Helper()
	id, err := svc.Register(context.Background(), email, pw)
	require.NoError(t, err)
	return id
}

func login(t *testing.T, svc *Service, email, pw string) *models.LoginResult {
	t.Helper()
	res, err := svc.Login(context.Background(), email, pw, models.ClientMeta{IPAddress: "127.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	return res
}

func TestScenario_RegisterLoginRotateReuse(t *testing.T) {
	t.Parallel()

	svc, _, clock := newMemSvc(t)
	ctx := context.Background()

	id := register(t, svc, "a@x.com", "pw")
	t1 := login(t, svc, "a@x.com", "pw")

	clock.Advance(time.Second)
	t2, err := svc.Rotate(ctx, t1.Tokens.RefreshToken, models.ClientMeta{})
	require.NoError(t, err)
	require.NotEqual(t, t1.Tokens.RefreshToken, t2.RefreshToken)

	// Повторное предъявление T1: reuse, отозваны все сессии, включая T2.
	_, err = svc.Rotate(ctx, t1.Tokens.RefreshToken, models.ClientMeta{})
	require.ErrorIs(t, err, ErrReuseDetected)

	list, err := svc.ListSessions(ctx, id.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	// T2 тоже погашен: это снова reuse.
	_, err = svc.Rotate(ctx, t2.RefreshToken, models.ClientMeta{})
	require.ErrorIs(t, err, ErrReuseDetected)
}

func TestScenario_PasswordHashNeverLeaks(t *testing.T) {
	t.Parallel()

	svc, st, _ := newMemSvc(t)
	id := register(t, svc, "a@x.com", "pw")

	stored, err := st.UserByID(context.Background(), id.ID)
	require.NoError(t, err)
	require.NotEqual(t, "pw", stored.PasswordHash)

	b, err := json.Marshal(id)
	require.NoError(t, err)
	require.NotContains(t, string(b), stored.PasswordHash)
	require.NotContains(t, string(b), "password")

	res := login(t, svc, "a@x.com", "pw")
	b, err = json.Marshal(res.Identity)
	require.NoError(t, err)
	require.NotContains(t, string(b), stored.PasswordHash)
}

func TestScenario_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	svc, _, _ := newMemSvc(t)
	register(t, svc, "a@x.com", "pw")

	_, err := svc.Register(context.Background(), "a@x.com", "other")
	require.ErrorIs(t, err, ErrEmailTaken)

	// Email регистрозависим.
	register(t, svc, "A@x.com", "pw")
}

func TestScenario_LoginCreatesExactlyOneMatchingRecord(t *testing.T) {
	t.Parallel()

	svc, st, clock := newMemSvc(t)
	id := register(t, svc, "a@x.com", "pw")
	res := login(t, svc, "a@x.com", "pw")

	_, err := svc.keys.Access.Verify(res.Tokens.AccessToken)
	require.NoError(t, err)

	records, err := st.UserSessions(context.Background(), id.ID, clock.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, token.HashRefresh(res.Tokens.RefreshToken), records[0].TokenHash)
	require.Equal(t, "127.0.0.1", records[0].IPAddress)
}

func TestScenario_RotationNeverReusesHash(t *testing.T) {
	t.Parallel()

	svc, st, clock := newMemSvc(t)
	id := register(t, svc, "a@x.com", "pw")
	refresh := login(t, svc, "a@x.com", "pw").Tokens.RefreshToken

	seen := map[string]struct{}{token.HashRefresh(refresh): {}}
	for i := 0; i < 10; i++ {
		// Тот же момент времени: уникальность даёт jti.
		pair, err := svc.Rotate(context.Background(), refresh, models.ClientMeta{})
		require.NoError(t, err)

		h := token.HashRefresh(pair.RefreshToken)
		_, dup := seen[h]
		require.False(t, dup)
		seen[h] = struct{}{}
		refresh = pair.RefreshToken
	}

	records, err := st.UserSessions(context.Background(), id.ID, clock.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestScenario_WrongPasswordAndUnknownEmailIndistinguishable(t *testing.T) {
	t.Parallel()

	svc, _, _ := newMemSvc(t)
	register(t, svc, "a@x.com", "pw")

	_, errWrong := svc.Login(context.Background(), "a@x.com", "nope", models.ClientMeta{})
	_, errGhost := svc.Login(context.Background(), "b@x.com", "pw", models.ClientMeta{})

	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	require.ErrorIs(t, errGhost, ErrInvalidCredentials)
	require.Equal(t, errWrong.Error(), errGhost.Error())
}

func TestScenario_ExpiredRefreshIsInvalidNotReuse(t *testing.T) {
	t.Parallel()

	svc, _, clock := newMemSvc(t)
	id := register(t, svc, "a@x.com", "pw")
	first := login(t, svc, "a@x.com", "pw")

	clock.Advance(23 * time.Hour)
	second := login(t, svc, "a@x.com", "pw")

	clock.Advance(2 * time.Hour)
	_, err := svc.Rotate(context.Background(), first.Tokens.RefreshToken, models.ClientMeta{})
	require.ErrorIs(t, err, ErrInvalidToken)
	require.NotErrorIs(t, err, ErrReuseDetected)

	// Другие сессии не отозваны.
	list, err := svc.ListSessions(context.Background(), id.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.Rotate(context.Background(), second.Tokens.RefreshToken, models.ClientMeta{})
	require.NoError(t, err)
}

func TestScenario_ListOrderedByLastUse(t *testing.T) {
	t.Parallel()

	svc, _, clock := newMemSvc(t)
	ctx := context.Background()
	id := register(t, svc, "a@x.com", "pw")

	first := login(t, svc, "a@x.com", "pw")
	clock.Advance(time.Minute)
	login(t, svc, "a@x.com", "pw")
	clock.Advance(time.Minute)
	login(t, svc, "a@x.com", "pw")

	list, err := svc.ListSessions(ctx, id.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		require.False(t, list[i].LastUsedAt.After(list[i-1].LastUsedAt))
	}

	// После ротации самой старой сессии её преемник первый.
	clock.Advance(time.Minute)
	_, err = svc.Rotate(ctx, first.Tokens.RefreshToken, models.ClientMeta{UserAgent: "rotated"})
	require.NoError(t, err)

	list, err = svc.ListSessions(ctx, id.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "rotated", list[0].UserAgent)
	require.True(t, list[0].LastUsedAt.Equal(clock.Now()))
}

func TestScenario_RevokeForeignSessionNotFound(t *testing.T) {
	t.Parallel()

	svc, _, _ := newMemSvc(t)
	ctx := context.Background()

	alice := register(t, svc, "alice@x.com", "pw")
	bob := register(t, svc, "bob@x.com", "pw")
	login(t, svc, "alice@x.com", "pw")

	aliceSessions, err := svc.ListSessions(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceSessions, 1)

	err = svc.RevokeSession(ctx, bob.ID, aliceSessions[0].ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	err = svc.RevokeSession(ctx, alice.ID, uuid.New())
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, svc.RevokeSession(ctx, alice.ID, aliceSessions[0].ID))
	err = svc.RevokeSession(ctx, alice.ID, aliceSessions[0].ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestScenario_LogoutIdempotentAndClosesSession(t *testing.T) {
	t.Parallel()

	svc, _, _ := newMemSvc(t)
	ctx := context.Background()
	id := register(t, svc, "a@x.com", "pw")
	res := login(t, svc, "a@x.com", "pw")

	require.NoError(t, svc.Logout(ctx, res.Tokens.RefreshToken))
	require.NoError(t, svc.Logout(ctx, res.Tokens.RefreshToken))
	require.NoError(t, svc.Logout(ctx, ""))

	list, err := svc.ListSessions(ctx, id.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestScenario_RevokeAllIdempotent(t *testing.T) {
	t.Parallel()

	svc, _, _ := newMemSvc(t)
	ctx := context.Background()
	id := register(t, svc, "a@x.com", "pw")
	login(t, svc, "a@x.com", "pw")
	login(t, svc, "a@x.com", "pw")

	require.NoError(t, svc.RevokeAllSessions(ctx, id.ID))
	require.NoError(t, svc.RevokeAllSessions(ctx, id.ID))

	list, err := svc.ListSessions(ctx, id.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestScenario_DeletedUserRejectedImmediately(t *testing.T) {
	t.Parallel()

	svc, st, clock := newMemSvc(t)
	ctx := context.Background()
	id := register(t, svc, "a@x.com", "pw")
	res := login(t, svc, "a@x.com", "pw")

	got, err := svc.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, id.ID, got.ID)

	require.NoError(t, svc.DeleteUser(ctx, id.ID))

	_, err = svc.VerifyAccess(ctx, res.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Rotate(ctx, res.Tokens.RefreshToken, models.ClientMeta{})
	require.ErrorIs(t, err, ErrInvalidToken)

	records, err := st.UserSessions(ctx, id.ID, clock.Now())
	require.NoError(t, err)
	require.Empty(t, records)

	require.ErrorIs(t, svc.DeleteUser(ctx, id.ID), ErrUserNotFound)
}

func TestScenario_AccessTokenExpires(t *testing.T) {
	t.Parallel()

	svc, _, clock := newMemSvc(t)
	register(t, svc, "a@x.com", "pw")
	res := login(t, svc, "a@x.com", "pw")

	clock.Advance(time.Minute)
	_, err := svc.VerifyAccess(context.Background(), res.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestScenario_ConcurrentRotationSingleWinner(t *testing.T) {
	t.Parallel()

	svc, _, _ := newMemSvc(t)
	register(t, svc, "a@x.com", "pw")
	refresh := login(t, svc, "a@x.com", "pw").Tokens.RefreshToken

	const workers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		reuses int
		others int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Rotate(context.Background(), refresh, models.ClientMeta{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrReuseDetected):
				reuses++
			default:
				others++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, workers-1, reuses)
	require.Zero(t, others)
}

func TestScenario_PurgeExpired(t *testing.T) {
	t.Parallel()

	svc, st, clock := newMemSvc(t)
	id := register(t, svc, "a@x.com", "pw")
	login(t, svc, "a@x.com", "pw")

	clock.Advance(12 * time.Hour)
	login(t, svc, "a@x.com", "pw")

	clock.Advance(13 * time.Hour)
	n, err := svc.PurgeExpiredSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Оставшаяся запись жива.
	records, err := st.UserSessions(context.Background(), id.ID, clock.Now())
	require.NoError(t, err)
	require.Len(t, records, 1)

	var _ storage.Storage = st
}
