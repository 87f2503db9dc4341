package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/evtrade-backend/internal/api/validate"
	"github.com/baharkarakas/evtrade-backend/internal/apperr"
)

type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:   http.StatusNotFound,
	apperr.KindBadRequest: http.StatusBadRequest,
	apperr.KindForbidden:  http.StatusForbidden,
	apperr.KindConflict:   http.StatusConflict,
	apperr.KindInternal:   http.StatusInternalServerError,
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(k apperr.Kind) int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteAppError renders err with the status of its kind. Internal causes are
// logged and never sent to the client.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validate.Errs
	if errors.As(err, &verrs) {
		WriteError(w, http.StatusBadRequest, string(apperr.KindBadRequest), "validation failed", verrs)
		return
	}
	kind := apperr.KindOf(err)
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if kind == apperr.KindInternal {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	var details interface{}
	if apperr.Retryable(err) {
		details = map[string]bool{"retryable": true}
	}
	WriteError(w, StatusOf(kind), string(kind), msg, details)
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.BadRequest("invalid JSON body")
	}
	return nil
}
