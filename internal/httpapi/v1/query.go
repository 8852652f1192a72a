package v1

import (
    "net/http"
    "strconv"
    "time"

    "github.com/tinoosan/tillbook/internal/errs"
    "github.com/tinoosan/tillbook/internal/ledger"
)

// parseBound accepts RFC3339 or a shop-local YYYY-MM-DD. A day used as an
// end bound covers the whole day.
func parseBound(raw string, loc *time.Location, end bool) (time.Time, error) {
    if raw == "" { return time.Time{}, nil }
    if t, err := time.Parse(time.RFC3339, raw); err == nil { return t.UTC(), nil }
    start, next, err := ledger.DayBounds(raw, loc)
    if err != nil { return time.Time{}, errs.Invalid("date", "expected RFC3339 or YYYY-MM-DD, got "+raw) }
    if end { return next.Add(-time.Nanosecond), nil }
    return start, nil
}

func parseRange(r *http.Request, loc *time.Location) (start, end time.Time, err error) {
    q := r.URL.Query()
    if start, err = parseBound(q.Get("start"), loc, false); err != nil { return }
    if end, err = parseBound(q.Get("end"), loc, true); err != nil { return }
    if !start.IsZero() && !end.IsZero() && end.Before(start) {
        err = errs.Invalid("end", "must not be before start")
    }
    return
}

// shopFor resolves the shop_id query parameter. Callers may only read their
// own shop.
func shopFor(r *http.Request) (string, bool) {
    id := identityFrom(r.Context())
    if q := r.URL.Query().Get("shop_id"); q != "" && q != id.ShopID { return "", false }
    return id.ShopID, true
}

func parseLimit(raw string) (int, error) {
    if raw == "" { return 0, nil }
    n, err := strconv.Atoi(raw)
    if err != nil || n < 0 { return 0, errs.Invalid("limit", "must be a non-negative integer") }
    return n, nil
}
