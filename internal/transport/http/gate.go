package http

import (
	"context"
	"net/http"

	apierrors "github.com/pribylovaa/auth-sessions/internal/errors"
	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/pkg/log"
	"github.com/pribylovaa/auth-sessions/internal/service"
	"github.com/pribylovaa/auth-sessions/internal/transport/http/middleware"
)

// AccessVerifier проверяет access-токен (реализует service.Service).
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (*models.Identity, error)
}

type identityKey struct{}

// Authenticate пропускает запрос дальше только с действующим access-токеном;
// личность кладётся в контекст. Иначе 401.
func Authenticate(v AccessVerifier, tr TokenTransport) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.VerifyAccess(r.Context(), tr.AccessToken(r))
			if err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, id)
			ctx = log.With(ctx, "user_id", id.ID.String())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthenticatedIdentity возвращает личность, установленную Authenticate.
// Вне защищённого маршрута возвращает service.ErrUnauthorized.
func AuthenticatedIdentity(ctx context.Context) (*models.Identity, error) {
	id, ok := ctx.Value(identityKey{}).(*models.Identity)
	if !ok || id == nil {
		return nil, service.ErrUnauthorized
	}

	return id, nil
}
