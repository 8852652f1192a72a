package v1

import (
    "context"
    "log/slog"
    "net/http"
    "runtime/debug"
    "time"

    chi "github.com/go-chi/chi/v5"
    chimw "github.com/go-chi/chi/v5/middleware"
)

type ctxKeyTrace struct{}

// requestTrace collects who made the request. The identity middleware runs
// inside the /v1 subrouter, after requestLogger has captured the context, so
// it writes through this pointer instead of the context.
type requestTrace struct {
    userID string
    shopID string
}

func traceFrom(ctx context.Context) *requestTrace {
    t, _ := ctx.Value(ctxKeyTrace{}).(*requestTrace)
    return t
}

// requestLogger writes one line per request, at ERROR for 5xx and WARN for
// auth failures and locked trading days.
func requestLogger(l *slog.Logger) func(next http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            trace := &requestTrace{}
            r = r.WithContext(context.WithValue(r.Context(), ctxKeyTrace{}, trace))
            ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
            start := time.Now()
            next.ServeHTTP(ww, r)

            status := ww.Status()
            level := slog.LevelInfo
            switch {
            case status >= http.StatusInternalServerError:
                level = slog.LevelError
            case status == http.StatusUnauthorized, status == http.StatusLocked:
                level = slog.LevelWarn
            }
            attrs := []any{
                "req_id", chimw.GetReqID(r.Context()),
                "method", r.Method,
                "route", routeOf(r),
                "status", status,
                "duration_ms", time.Since(start).Milliseconds(),
            }
            if trace.userID != "" { attrs = append(attrs, "user_id", trace.userID, "shop_id", trace.shopID) }
            l.Log(r.Context(), level, "http", attrs...)
        })
    }
}

// routePattern is the matched chi pattern, e.g. /v1/accounts/{code}.
func routePattern(r *http.Request) (string, bool) {
    if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" { return rc.RoutePattern(), true }
    return "", false
}

func routeOf(r *http.Request) string {
    if p, ok := routePattern(r); ok { return p }
    return r.URL.Path
}

// recoverer turns a panic into a JSON 500 and logs the stack.
func recoverer(l *slog.Logger) func(next http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            defer func() {
                rec := recover()
                if rec == nil { return }
                if rec == http.ErrAbortHandler { panic(rec) }
                l.Error("handler panic",
                    "req_id", chimw.GetReqID(r.Context()),
                    "route", routeOf(r),
                    "panic", rec,
                    "stack", string(debug.Stack()))
                writeErr(w, http.StatusInternalServerError, "internal error", "internal")
            }()
            next.ServeHTTP(w, r)
        })
    }
}
