package v1

import (
    "mime"
    "net/http"
    "strconv"
)

// requireJSON guards write routes: the body must be application/json,
// parameters such as charset allowed.
func requireJSON(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ct := r.Header.Get("Content-Type")
        if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
            writeErr(w, http.StatusUnsupportedMediaType, "expected application/json body, got "+strconv.Quote(ct), "unsupported_media_type")
            return
        }
        next.ServeHTTP(w, r)
    })
}
