package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mixelka/novamailer/internal/campaign"
	"github.com/mixelka/novamailer/internal/database"
	"github.com/mixelka/novamailer/internal/ingest"
	"github.com/mixelka/novamailer/internal/mailer"
)

// ErrorResponse is the error envelope of every API error
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

// JSON writes data with the given status
func (rs *responder) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rs.logger.Error("failed to encode response", "error", err)
	}
}

func (rs *responder) OK(w http.ResponseWriter, data any) {
	rs.JSON(w, http.StatusOK, data)
}

func (rs *responder) Created(w http.ResponseWriter, data any) {
	rs.JSON(w, http.StatusCreated, data)
}

func (rs *responder) NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func (rs *responder) Error(w http.ResponseWriter, status int, message, code string) {
	rs.JSON(w, status, ErrorResponse{Error: message, Code: code})
}

func (rs *responder) BadRequest(w http.ResponseWriter, message string) {
	rs.Error(w, http.StatusBadRequest, message, "bad_request")
}

// InternalError logs err and hides it from the client
func (rs *responder) InternalError(w http.ResponseWriter, r *http.Request, err error) {
	rs.logger.Error("internal error", "method", r.Method, "path", r.URL.Path, "error", err)
	rs.Error(w, http.StatusInternalServerError, "internal server error", "internal")
}

// Decode reads a JSON body into dst. Writes a 400 and returns false on failure.
func (rs *responder) Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		rs.BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// Fail maps workflow errors to HTTP responses
func (rs *responder) Fail(w http.ResponseWriter, r *http.Request, err error) {
	var serr *ingest.StructuralError
	if errors.As(err, &serr) {
		status := http.StatusBadRequest
		if errors.Is(err, ingest.ErrSizeLimitExceeded) {
			status = http.StatusRequestEntityTooLarge
		}
		rs.Error(w, status, serr.Detail, serr.Code())
		return
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		rs.Error(w, http.StatusNotFound, "not found", "not_found")
	case errors.Is(err, database.ErrAlreadyExists):
		rs.Error(w, http.StatusConflict, "already exists", "already_exists")
	case errors.Is(err, campaign.ErrInvalidInput):
		rs.Error(w, http.StatusBadRequest, err.Error(), "invalid_input")
	case errors.Is(err, campaign.ErrNotDraft):
		rs.Error(w, http.StatusConflict, err.Error(), "not_draft")
	case errors.Is(err, campaign.ErrNotSending):
		rs.Error(w, http.StatusConflict, err.Error(), "not_sending")
	case errors.Is(err, campaign.ErrNoRecipients):
		rs.Error(w, http.StatusConflict, err.Error(), "no_recipients")
	case errors.Is(err, campaign.ErrNoSMTPSettings):
		rs.Error(w, http.StatusConflict, err.Error(), "no_smtp_settings")
	case errors.Is(err, mailer.ErrAlreadySending):
		rs.Error(w, http.StatusConflict, err.Error(), "already_sending")
	default:
		rs.InternalError(w, r, err)
	}
}
