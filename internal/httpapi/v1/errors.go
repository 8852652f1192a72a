package v1

import (
    "encoding/json"
    "errors"
    "net/http"

    "github.com/tinoosan/tillbook/internal/errs"
    "github.com/tinoosan/tillbook/internal/metrics"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
    Error string `json:"error"`
    Code  string `json:"code,omitempty"`
    Field string `json:"field,omitempty"`
}

// toJSON writes a JSON response with status code.
func toJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
    metrics.APIErrors.WithLabelValues(code).Inc()
    toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "bad_request") }

// writeDomainErr maps the engine's error taxonomy onto HTTP statuses.
func (s *Server) writeDomainErr(w http.ResponseWriter, r *http.Request, err error) {
    var ve *errs.ValidationError
    switch {
    case errors.As(err, &ve):
        metrics.APIErrors.WithLabelValues("validation_error").Inc()
        toJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Code: "validation_error", Field: ve.Field})
    case errors.Is(err, errs.ErrInsufficientStock):
        writeErr(w, http.StatusConflict, err.Error(), "insufficient_stock")
    case errors.Is(err, errs.ErrPreviousDayOpen):
        writeErr(w, http.StatusLocked, err.Error(), "previous_day_incomplete")
    case errors.Is(err, errs.ErrAlreadyCompleted):
        writeErr(w, http.StatusConflict, err.Error(), "already_completed")
    case errors.Is(err, errs.ErrConflict):
        writeErr(w, http.StatusConflict, err.Error(), "conflict")
    case errors.Is(err, errs.ErrMissingSettings):
        writeErr(w, http.StatusServiceUnavailable, err.Error(), "missing_settings")
    case errors.Is(err, errs.ErrNotFound):
        writeErr(w, http.StatusNotFound, "not_found", "not_found")
    case errors.Is(err, errs.ErrUnbalanced):
        s.log.Error("unbalanced entry rejected", "path", r.URL.Path, "err", err)
        writeErr(w, http.StatusInternalServerError, "internal error", "unbalanced_entry")
    default:
        s.log.Error("request failed", "path", r.URL.Path, "err", err)
        writeErr(w, http.StatusInternalServerError, "internal error", "internal")
    }
}

// decodeJSON reads a strict JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
    dec := json.NewDecoder(r.Body)
    dec.DisallowUnknownFields()
    if err := dec.Decode(v); err != nil {
        badRequest(w, "invalid JSON: "+err.Error())
        return false
    }
    return true
}
