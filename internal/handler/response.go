package handler

// RESPONSE HELPERS:
// Every response from the API has the same envelope, so the frontend always
// knows which fields to expect:
//
//	{"success": true,  "data": {...}, "message": "..."}
//	{"success": true,  "data": [...], "pagination": {"page":1,"limit":12,"total":40,"totalPages":4}}
//	{"success": false, "error": "invalid request", "details": [{"field":"title","message":"..."}]}
//
// Handlers never build status codes for domain errors themselves: they hand
// the error to Responder.Error, which maps it exactly once.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/snipshare/internal/apperror"
	"github.com/sakif/snipshare/internal/service"
)

type Envelope struct {
	Success    bool         `json:"success"`
	Data       any          `json:"data,omitempty"`
	Message    string       `json:"message,omitempty"`
	Error      string       `json:"error,omitempty"`
	Details    []FieldError `json:"details,omitempty"`
	Pagination *Pagination  `json:"pagination,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Responder writes envelopes. debug controls whether the text of unexpected
// errors is echoed to the client; it must be false in production.
type Responder struct {
	logger *slog.Logger
	debug  bool
}

func NewResponder(logger *slog.Logger, debug bool) *Responder {
	return &Responder{logger: logger, debug: debug}
}

func (rs *Responder) JSON(w http.ResponseWriter, status int, env Envelope) {
	// Headers and status must be written before the body; after the first
	// Write they are already on the wire.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		rs.logger.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (rs *Responder) OK(w http.ResponseWriter, data any, message string) {
	rs.JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

func (rs *Responder) Created(w http.ResponseWriter, data any, message string) {
	rs.JSON(w, http.StatusCreated, Envelope{Success: true, Data: data, Message: message})
}

func (rs *Responder) Page(w http.ResponseWriter, page *service.SnippetPage) {
	rs.JSON(w, http.StatusOK, Envelope{
		Success: true,
		Data:    page.Snippets,
		Pagination: &Pagination{
			Page:       page.Page.Number,
			Limit:      page.Page.Size,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	})
}

// Error maps a domain error to its HTTP status and writes it.
//
// errors.Is walks the whole chain, so a service error like
// fmt.Errorf("loading: %w", apperror.NotFound(...)) still maps to 404.
// Anything that is not an AppError is a 500: logged in full here, shown to
// the client as a generic message.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *invalidRequest
	if errors.As(err, &invalid) {
		rs.JSON(w, http.StatusBadRequest, Envelope{
			Error:   "invalid request",
			Details: invalid.details,
		})
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		}

		if status != http.StatusInternalServerError {
			env := Envelope{Error: appErr.Message}
			if appErr.Field != "" && status == http.StatusBadRequest {
				env.Details = []FieldError{{Field: appErr.Field, Message: appErr.Message}}
			}
			rs.JSON(w, status, env)
			return
		}
	}

	rs.logger.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()),
	)

	env := Envelope{Error: "internal server error"}
	if rs.debug {
		env.Message = err.Error()
	}
	rs.JSON(w, http.StatusInternalServerError, env)
}
