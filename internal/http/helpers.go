package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"cuentas/internal/core"
	applog "cuentas/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes and log error types.
func statusFor(err error) (int, string) {
	var (
		ve *core.ValidationError
		nf *core.NotFoundError
		cv *core.ConstraintViolation
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, applog.ErrorTypeValidation
	case errors.As(err, &nf):
		return http.StatusNotFound, applog.ErrorTypeNotFound
	case errors.As(err, &cv):
		return http.StatusConflict, applog.ErrorTypeConflict
	default:
		return http.StatusInternalServerError, applog.ErrorTypeInternal
	}
}

// writeError logs err with the request logger and answers with its status.
// Internal errors are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, errType := statusFor(err)

	fields := applog.NewFields().WithOperation(op).WithError(err, errType)
	logger := applog.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	logger.WarnContext(r.Context(), "Request rejected", fields.ToSlice()...)

	resp := errorResponse{Error: err.Error()}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Malformed request body", "error", err)
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
}
