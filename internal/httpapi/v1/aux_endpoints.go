package v1

import (
    "context"
    "net/http"
    "time"
)

const readyTimeout = 800 * time.Millisecond

type readyResponse struct {
    Status string `json:"status"`
    Store  string `json:"store,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
    toJSON(w, http.StatusOK, readyResponse{Status: "ok"})
}

// readyz reports whether the document store answers within readyTimeout.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
    if s.Ready == nil { toJSON(w, http.StatusOK, readyResponse{Status: "ok"}); return }
    ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
    defer cancel()
    if err := s.Ready.Ready(ctx); err != nil {
        s.log.Warn("store not ready", "err", err)
        toJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "unavailable", Store: err.Error()})
        return
    }
    toJSON(w, http.StatusOK, readyResponse{Status: "ok", Store: "ok"})
}
