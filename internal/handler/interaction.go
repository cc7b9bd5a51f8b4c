package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/service"
)

// InteractionHandler serves likes and comments under /api/snippets/{id}.
type InteractionHandler struct {
	interactions *service.InteractionService
	resp         *Responder
	validate     *validator.Validate
}

func NewInteractionHandler(interactions *service.InteractionService, resp *Responder) *InteractionHandler {
	return &InteractionHandler{
		interactions: interactions,
		resp:         resp,
		validate:     newValidator(),
	}
}

type commentRequest struct {
	Content string `json:"contenu" validate:"required,notblank,max=2000"`
}

// ToggleLike likes or unlikes the snippet.
//
// HTTP: POST /api/snippets/{id}/like → {liked, nbLikes}
func (h *InteractionHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	state, err := h.interactions.ToggleLike(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	msg := "snippet unliked"
	if state.Liked {
		msg = "snippet liked"
	}
	h.resp.OK(w, state, msg)
}

// Likers lists who liked the snippet.
//
// HTTP: GET /api/snippets/{id}/likes
func (h *InteractionHandler) Likers(w http.ResponseWriter, r *http.Request) {
	likers, err := h.interactions.ListLikers(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, likers, "")
}

// AddComment posts a comment.
//
// HTTP: POST /api/snippets/{id}/commentaires → 201
func (h *InteractionHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	comment, err := h.interactions.AddComment(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.Created(w, comment, "comment added")
}

// Comments lists the comments with their count.
//
// HTTP: GET /api/snippets/{id}/commentaires
func (h *InteractionHandler) Comments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.interactions.ListComments(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, map[string]any{"commentaires": comments, "total": len(comments)}, "")
}

// DeleteComment removes the caller's own comment.
//
// HTTP: DELETE /api/snippets/{id}/commentaires/{commentId}
func (h *InteractionHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	err := h.interactions.DeleteComment(r.Context(), chi.URLParam(r, "commentId"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, nil, "comment deleted")
}
