package v1

import (
    "net/http"
    "strconv"
    "time"

    chimw "github.com/go-chi/chi/v5/middleware"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/tinoosan/tillbook/internal/metrics"
)

// metricsMiddleware records every request under its route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
        start := time.Now()
        next.ServeHTTP(ww, r)
        route, ok := routePattern(r)
        if !ok { route = "unmatched" }
        metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
    })
}

func metricsHandler() http.Handler { return promhttp.Handler() }
