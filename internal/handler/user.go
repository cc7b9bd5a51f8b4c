package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snipshare/internal/service"
)

// UserHandler serves public per-user data.
type UserHandler struct {
	auth *service.AuthService
	resp *Responder
}

func NewUserHandler(authService *service.AuthService, resp *Responder) *UserHandler {
	return &UserHandler{auth: authService, resp: resp}
}

// Statistics returns a user's activity counters.
//
// HTTP: GET /api/utilisateurs/{id}/statistiques
func (h *UserHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.auth.Statistics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, stats, "")
}
