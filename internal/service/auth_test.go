package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/storage"
	"github.com/pribylovaa/auth-sessions/internal/token"
)

func mustHashPW(t *testing.T, svc *Service, pw string) string {
	t.Helper()
	h, err := svc.hashPassword(pw)
	require.NoError(t, err)
	return h
}

func TestRegister_OK(t *testing.T) {
	t.Parallel()

	svc, st := newSvc(t)
	rec := &recorder{}
	svc.SetMetrics(rec)

	const pw = "pw"

	st.EXPECT().UserByEmail(gomock.Any(), "User@Example.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
		require.NotEqual(t, uuid.Nil, u.ID)
		require.Equal(t, "User@Example.com", u.Email)
		require.NotEqual(t, pw, u.PasswordHash)
		require.True(t, checkPassword(u.PasswordHash, pw))
		require.False(t, u.CreatedAt.IsZero())
		return nil
	})

	id, err := svc.Register(context.Background(), "  User@Example.com ", pw)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id.ID)
	require.Equal(t, "User@Example.com", id.Email)
	require.Equal(t, []string{"register:ok"}, rec.Events())
}

func TestRegister_InvalidInput_NoStorageCalls(t *testing.T) {
	t.Parallel()

	svc, _ := newSvc(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "pw")
	require.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Register(ctx, "u@e.com", "")
	require.ErrorIs(t, err, ErrEmptyPassword)

	_, err = svc.Register(ctx, "u@e.com", strings.Repeat("x", 73))
	require.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestRegister_EmailTaken_OnLookup(t *testing.T) {
	t.Parallel()

	svc, st := newSvc(t)

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(&models.User{ID: uuid.New(), Email: "user@example.com"}, nil)

	_, err := svc.Register(context.Background(), "user@example.com", "pw")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_EmailTaken_OnSaveRace(t *testing.T) {
	t.Parallel()

	svc, st := newSvc(t)

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists)

	_, err := svc.Register(context.Background(), "user@example.com", "pw")
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_StorageErrors_Propagated(t *testing.T) {
	t.Parallel()

	dbDown := errors.New("db down")

	svc, st := newSvc(t)
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(nil, dbDown)

	_, err := svc.Register(context.Background(), "user@example.com", "pw")
	require.ErrorIs(t, err, dbDown)
	require.NotErrorIs(t, err, ErrEmailTaken)

	svc, st = newSvc(t)
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(dbDown)

	_, err = svc.Register(context.Background(), "user@example.com", "pw")
	require.ErrorIs(t, err, dbDown)
}

func TestLogin_OK(t *testing.T) {
	t.Parallel()

	svc, st := newSvc(t)
	user := &models.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: mustHashPW(t, svc, "pw")}

	var saved *models.RefreshSession
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)
	st.EXPECT().SaveRefreshSession(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s *models.RefreshSession) error {
		saved = s
		return nil
	})

	res, err := svc.Login(context.Background(), "user@example.com", "pw", models.ClientMeta{IPAddress: "1.2.3.4"})
	require.NoError(t, err)
	require.Equal(t, user.ID, res.Identity.ID)

	// access-токен проверяется access-кодеком и несёт id и email.
	claims, err := svc.keys.Access.Verify(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID.String(), claims.Subject)
	require.Equal(t, user.Email, claims.Email)

	// refresh-токен несёт jti, запись хранит только его хэш.
	rclaims, err := svc.keys.Refresh.Verify(res.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, rclaims.ID)

	require.NotNil(t, saved)
	require.Equal(t, token.HashRefresh(res.Tokens.RefreshToken), saved.TokenHash)
	require.NotEqual(t, res.Tokens.RefreshToken, saved.TokenHash)
	require.Equal(t, user.ID, saved.UserID)
	require.Equal(t, "1.2.3.4", saved.IPAddress)
	require.Equal(t, models.UnknownUserAgent, saved.UserAgent)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), saved.ExpiresAt, 5*time.Second)
	require.Equal(t, saved.ExpiresAt, res.Tokens.RefreshExpiresAt)
	require.WithinDuration(t, time.Now().Add(30*time.Second), res.Tokens.AccessExpiresAt, 5*time.Second)
}

func TestLogin_InvalidCredentials_Indistinguishable(t *testing.T) {
	t.Parallel()

	svc, st := newSvc(t)
	rec := &recorder{}
	svc.SetMetrics(rec)
	user := &models.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: mustHashPW(t, svc, "pw")}

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(user, nil)
	st.EXPECT().UserByEmail(gomock.Any(), "ghost@example.com").Return(nil, storage.ErrNotFound)

	_, errWrong := svc.Login(context.Background(), "user@example.com", "bad", models.ClientMeta{})
	_, errGhost := svc.Login(context.Background(), "ghost@example.com", "pw", models.ClientMeta{})

	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	require.ErrorIs(t, errGhost, ErrInvalidCredentials)
	require.Equal(t, errWrong.Error(), errGhost.Error())
	require.Equal(t, []string{"login:invalid", "login:invalid"}, rec.Events())
}

func TestLogin_StorageError_NotMaskedAsCredentials(t *testing.T) {
	t.Parallel()

	svc, st := newSvc(t)
	st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	_, err := svc.Login(context.Background(), "user@example.com", "pw", models.ClientMeta{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_RefreshCollision_Retried(t *testing.T) {
	t.Parallel()

	svc, st := newSvc(t)
	user := &models.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: mustHashPW(t, svc, "pw")}

	var hashes []string
	st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(user, nil)
	gomock.InOrder(
		st.EXPECT().SaveRefreshSession(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s *models.RefreshSession) error {
			hashes = append(hashes, s.TokenHash)
			return storage.ErrAlreadyExists
		}),
		st.EXPECT().SaveRefreshSession(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, s *models.RefreshSession) error {
			hashes = append(hashes, s.TokenHash)
			return nil
		}),
	)

	res, err := svc.Login(context.Background(), "user@example.com", "pw", models.ClientMeta{})
	require.NoError(t, err)
	require.Len(t, hashes, 2)
	require.NotEqual(t, hashes[0], hashes[1])
	require.Equal(t, hashes[1], token.HashRefresh(res.Tokens.RefreshToken))
}

func TestLogin_RefreshCollision_Exhausted(t *testing.T) {
	t.Parallel()

	svc, st := newSvc(t)
	user := &models.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: mustHashPW(t, svc, "pw")}

	st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(user, nil)
	st.EXPECT().SaveRefreshSession(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists).Times(maxIssueAttempts)

	_, err := svc.Login(context.Background(), "user@example.com", "pw", models.ClientMeta{})
	require.ErrorIs(t, err, ErrRefreshTokenCollision)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty token is a no-op", func(t *testing.T) {
		svc, _ := newSvc(t)
		require.NoError(t, svc.Logout(ctx, ""))
	})

	t.Run("deletes by hash", func(t *testing.T) {
		svc, st := newSvc(t)
		st.EXPECT().DeleteRefreshSessionByHash(gomock.Any(), token.HashRefresh("raw")).Return(nil)
		require.NoError(t, svc.Logout(ctx, "raw"))
	})

	t.Run("already closed", func(t *testing.T) {
		svc, st := newSvc(t)
		st.EXPECT().DeleteRefreshSessionByHash(gomock.Any(), gomock.Any()).Return(storage.ErrNotFound)
		require.NoError(t, svc.Logout(ctx, "raw"))
	})

	t.Run("storage error", func(t *testing.T) {
		svc, st := newSvc(t)
		st.EXPECT().DeleteRefreshSessionByHash(gomock.Any(), gomock.Any()).Return(errors.New("db down"))
		require.Error(t, svc.Logout(ctx, "raw"))
	})
}

func TestVerifyAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	uid := uuid.New()
	now := time.Now()

	t.Run("ok", func(t *testing.T) {
		svc, st := newSvc(t)
		access, _, err := svc.keys.Access.Sign(accessClaims(uid, "u@e.com"), now)
		require.NoError(t, err)

		st.EXPECT().UserByID(gomock.Any(), uid).Return(&models.User{ID: uid, Email: "u@e.com", PasswordHash: "h"}, nil)

		id, err := svc.VerifyAccess(ctx, access)
		require.NoError(t, err)
		require.Equal(t, uid, id.ID)
		require.Equal(t, "u@e.com", id.Email)
	})

	t.Run("rejected without storage", func(t *testing.T) {
		svc, _ := newSvc(t)

		refresh, _, err := svc.signRefresh(uid, now)
		require.NoError(t, err)

		for _, raw := range []string{"", "garbage", refresh} {
			_, err := svc.VerifyAccess(ctx, raw)
			require.ErrorIs(t, err, ErrUnauthorized, raw)
		}
	})

	t.Run("expired", func(t *testing.T) {
		svc, _ := newSvc(t)
		access, _, err := svc.keys.Access.Sign(accessClaims(uid, "u@e.com"), now.Add(-time.Hour))
		require.NoError(t, err)

		_, err = svc.VerifyAccess(ctx, access)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("deleted user", func(t *testing.T) {
		svc, st := newSvc(t)
		access, _, err := svc.keys.Access.Sign(accessClaims(uid, "u@e.com"), now)
		require.NoError(t, err)

		st.EXPECT().UserByID(gomock.Any(), uid).Return(nil, storage.ErrNotFound)

		_, err = svc.VerifyAccess(ctx, access)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("storage error", func(t *testing.T) {
		svc, st := newSvc(t)
		access, _, err := svc.keys.Access.Sign(accessClaims(uid, "u@e.com"), now)
		require.NoError(t, err)

		st.EXPECT().UserByID(gomock.Any(), uid).Return(nil, errors.New("db down"))

		_, err = svc.VerifyAccess(ctx, access)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrUnauthorized)
	})
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()

	svc, st := newSvc(t)
	uid := uuid.New()

	st.EXPECT().DeleteUser(gomock.Any(), uid).Return(nil)
	require.NoError(t, svc.DeleteUser(context.Background(), uid))

	st.EXPECT().DeleteUser(gomock.Any(), uid).Return(storage.ErrNotFound)
	require.ErrorIs(t, svc.DeleteUser(context.Background(), uid), ErrUserNotFound)
}
