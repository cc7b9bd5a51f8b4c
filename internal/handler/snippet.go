package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/snipshare/internal/auth"
	"github.com/sakif/snipshare/internal/model"
	"github.com/sakif/snipshare/internal/repository"
	"github.com/sakif/snipshare/internal/service"
)

// SnippetHandler serves snippet CRUD, listings, search, per-user lists and
// popular tags.
type SnippetHandler struct {
	snippets *service.SnippetService
	resp     *Responder
	validate *validator.Validate
}

func NewSnippetHandler(snippets *service.SnippetService, resp *Responder) *SnippetHandler {
	return &SnippetHandler{
		snippets: snippets,
		resp:     resp,
		validate: newValidator(),
	}
}

type createSnippetRequest struct {
	Title       string   `json:"title"       validate:"required,notblank,min=3,max=255"`
	Language    string   `json:"language"    validate:"required,notblank,max=50"`
	Code        string   `json:"code"        validate:"required,notblank"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Visibility  string   `json:"visibility"  validate:"required,oneof=public private unlisted"`
	Tags        []string `json:"tags"        validate:"omitempty,max=5,dive,notblank,max=50"`
}

// updateSnippetRequest uses pointers so "absent" and "empty" differ: an
// absent field is left alone, "tags": [] removes every tag.
type updateSnippetRequest struct {
	Title       *string   `json:"title"       validate:"omitempty,notblank,min=3,max=255"`
	Language    *string   `json:"language"    validate:"omitempty,notblank,max=50"`
	Code        *string   `json:"code"        validate:"omitempty,notblank"`
	Description *string   `json:"description" validate:"omitempty,max=2000"`
	Visibility  *string   `json:"visibility"  validate:"omitempty,oneof=public private unlisted"`
	Tags        *[]string `json:"tags"        validate:"omitempty,max=5,dive,notblank,max=50"`
}

// List returns public snippets, newest first.
//
// HTTP: GET /api/snippets?page=1&limit=12
func (h *SnippetHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.snippets.ListPublic(r.Context(), pageFromQuery(r))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.Page(w, page)
}

// Popular returns the most liked public snippets.
//
// HTTP: GET /api/snippets/populaires?limit=10
func (h *SnippetHandler) Popular(w http.ResponseWriter, r *http.Request) {
	snippets, err := h.snippets.ListPopular(r.Context(), intQuery(r, "limit"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, snippets, "")
}

// Search matches q against title and description.
//
// HTTP: GET /api/snippets/recherche?q=sort&langage=python&page=1&limit=12
func (h *SnippetHandler) Search(w http.ResponseWriter, r *http.Request) {
	filter := repository.SearchFilter{
		Term:     strings.TrimSpace(r.URL.Query().Get("q")),
		Language: strings.TrimSpace(r.URL.Query().Get("langage")),
	}

	page, err := h.snippets.Search(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.Page(w, page)
}

// Get returns one snippet with tags, comments and the viewer's like state.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.snippets.Get(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, detail, "")
}

// Create stores a snippet owned by the caller.
//
// HTTP: POST /api/snippets → 201
func (h *SnippetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSnippetRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	snippet, err := h.snippets.Create(r.Context(), auth.UserIDFromContext(r.Context()), model.NewSnippet{
		Title:       strings.TrimSpace(req.Title),
		Language:    strings.TrimSpace(req.Language),
		Code:        req.Code,
		Description: req.Description,
		Visibility:  model.Visibility(req.Visibility),
		Tags:        req.Tags,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.Created(w, snippet, "snippet created")
}

// Update applies a partial update.
//
// HTTP: PUT /api/snippets/{id}
func (h *SnippetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSnippetRequest
	if err := decode(w, r, h.validate, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	patch := model.SnippetPatch{
		Title:       trimmed(req.Title),
		Language:    trimmed(req.Language),
		Code:        req.Code,
		Description: req.Description,
		Tags:        req.Tags,
	}
	if req.Visibility != nil {
		v := model.Visibility(*req.Visibility)
		patch.Visibility = &v
	}

	snippet, err := h.snippets.Update(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()), patch)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, snippet, "snippet updated")
}

// Delete removes a snippet owned by the caller.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.snippets.Delete(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context())); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, nil, "snippet deleted")
}

// ByUser lists a user's snippets; the owner also sees private and unlisted ones.
//
// HTTP: GET /api/utilisateurs/{id}/snippets
func (h *SnippetHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	snippets, err := h.snippets.ListByUser(r.Context(), chi.URLParam(r, "id"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, snippets, "")
}

// PopularTags returns the most used tags.
//
// HTTP: GET /api/tags/populaires?limit=10
func (h *SnippetHandler) PopularTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.snippets.PopularTags(r.Context(), intQuery(r, "limit"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.OK(w, tags, "")
}

// pageFromQuery reads page and limit. Missing or malformed values fall back
// to the defaults applied by Page.Normalize.
func pageFromQuery(r *http.Request) repository.Page {
	return repository.Page{Number: intQuery(r, "page"), Size: intQuery(r, "limit")}
}

func intQuery(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
