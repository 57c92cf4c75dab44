package http

import (
	"errors"
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/auth-sessions/internal/errors"
	"github.com/pribylovaa/auth-sessions/internal/models"
	"github.com/pribylovaa/auth-sessions/internal/service"
)

type loginResponse struct {
	Message         string           `json:"message"`
	User            *models.Identity `json:"user"`
	AccessExpiresAt time.Time        `json:"access_expires_at"`
}

type refreshResponse struct {
	Message         string    `json:"message"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

// Register — POST /auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	id, err := h.svc.Register(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{Message: "user registered", User: id})
}

// Login — POST /auth/login. Токены уходят только в cookie.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	res, err := h.svc.Login(r.Context(), in.Email, in.Password, clientMeta(r))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.transport.StoreTokens(w, res.Tokens)
	writeJSON(w, http.StatusOK, loginResponse{
		Message:         "logged in",
		User:            res.Identity,
		AccessExpiresAt: res.Tokens.AccessExpiresAt,
	})
}

// RefreshToken — POST /auth/refresh-token. При отказе по токену cookie
// очищаются: клиенту нечего предъявлять повторно.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	pair, err := h.svc.Rotate(r.Context(), h.transport.RefreshToken(r), clientMeta(r))
	if err != nil {
		if errors.Is(err, service.ErrReuseDetected) ||
			errors.Is(err, service.ErrInvalidToken) ||
			errors.Is(err, service.ErrMissingToken) {
			h.transport.ClearTokens(w)
		}
		apierrors.WriteError(w, r, err)
		return
	}

	h.transport.StoreTokens(w, pair)
	writeJSON(w, http.StatusOK, refreshResponse{
		Message:         "tokens refreshed",
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

// Logout — POST /auth/logout. Идемпотентен.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), h.transport.RefreshToken(r)); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.transport.ClearTokens(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// Me — GET /auth/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id, err := AuthenticatedIdentity(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, id)
}
