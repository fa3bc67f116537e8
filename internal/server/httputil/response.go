// Package httputil provides the JSON envelope used by every HTTP response
// and the mapping from domain errors to status codes.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/cofounder/internal/common"
	"github.com/dmitrijs2005/cofounder/internal/logging"
)

const msgInternal = "Internal server error"

// Envelope is the uniform response body:
//
//	{"success": true, "data": {...}}
//	{"success": false, "message": "..."}
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful envelope. message may be empty.
func WriteSuccess(w http.ResponseWriter, status int, data any, message string) {
	_ = WriteJSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

// WriteErrorMessage writes a failed envelope with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, Envelope{Success: false, Message: message})
}

// StatusFor maps a domain error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a failed envelope. Server errors are logged and
// replaced with a generic message.
func WriteError(ctx context.Context, w http.ResponseWriter, logger logging.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(ctx, "request failed", "error", err)
		WriteErrorMessage(w, status, msgInternal)
		return
	}
	WriteErrorMessage(w, status, common.Message(err, http.StatusText(status)))
}

// DecodeJSON decodes the request body into v. An empty body leaves v
// untouched; malformed JSON is common.ErrorBadRequest.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return common.BadRequest("Request body too large")
		}
		return common.BadRequest("Invalid JSON body")
	}
}
