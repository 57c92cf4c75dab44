package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/auth-sessions/internal/errors"
	"github.com/pribylovaa/auth-sessions/internal/models"
)

// ListSessions — GET /auth/sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	id, err := AuthenticatedIdentity(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	list, err := h.svc.ListSessions(r.Context(), id.ID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []models.SessionSummary{}
	}

	writeJSON(w, http.StatusOK, list)
}

// RevokeSession — DELETE /auth/sessions/{id}.
func (h *Handlers) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id, err := AuthenticatedIdentity(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	sid, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrInvalidArgument)
		return
	}

	if err := h.svc.RevokeSession(r.Context(), id.ID, sid); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeAllSessions — DELETE /auth/sessions. Текущие cookie тоже очищаются:
// их refresh-сессия отозвана вместе с остальными.
func (h *Handlers) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	id, err := AuthenticatedIdentity(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.RevokeAllSessions(r.Context(), id.ID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.transport.ClearTokens(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "all sessions revoked"})
}
