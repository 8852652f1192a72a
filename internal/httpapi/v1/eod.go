package v1

import (
    "net/http"

    "github.com/tinoosan/tillbook/internal/ledger"
    "github.com/tinoosan/tillbook/internal/service/eod"
)

// GET /v1/eod/today
func (s *Server) eodToday(w http.ResponseWriter, r *http.Request) {
    id := identityFrom(r.Context())
    rec, err := s.EOD.GetOrCreateToday(r.Context(), id.UserID, id.ShopID)
    if err != nil { s.writeDomainErr(w, r, err); return }
    toJSON(w, http.StatusOK, rec)
}

// GET /v1/eod/history?limit
func (s *Server) eodHistory(w http.ResponseWriter, r *http.Request) {
    id := identityFrom(r.Context())
    limit, err := parseLimit(r.URL.Query().Get("limit"))
    if err != nil { s.writeDomainErr(w, r, err); return }
    recs, err := s.EOD.History(r.Context(), id.UserID, id.ShopID, limit)
    if err != nil { s.writeDomainErr(w, r, err); return }
    if recs == nil { recs = []ledger.EODRecord{} }
    toJSON(w, http.StatusOK, listResponse[ledger.EODRecord]{Items: recs})
}

// POST /v1/eod/complete
func (s *Server) completeEOD(w http.ResponseWriter, r *http.Request) {
    var req completeEODRequest
    if !decodeJSON(w, r, &req) { return }
    id := identityFrom(r.Context())
    rec, err := s.EOD.CompleteEOD(r.Context(), eod.CompleteInput{
        Date:               req.Date,
        ShopID:             id.ShopID,
        UserID:             id.UserID,
        UserName:           req.UserName,
        CreatedBy:          id.UserID,
        ActualCashCount:    req.ActualCashCount,
        Explanations:       req.Explanations,
        SurrenderAmount:    req.SurrenderAmount,
        SurrenderMethod:    req.SurrenderMethod,
        SurrenderReference: req.SurrenderReference,
        SurrenderNotes:     req.SurrenderNotes,
        Notes:              req.Notes,
    })
    if err != nil { s.writeDomainErr(w, r, err); return }
    toJSON(w, http.StatusOK, rec)
}

// GET /v1/trading-day/status
func (s *Server) tradingDayStatus(w http.ResponseWriter, r *http.Request) {
    id := identityFrom(r.Context())
    st, err := s.Gate.CheckStatus(r.Context(), id.UserID, id.ShopID)
    if err != nil { s.writeDomainErr(w, r, err); return }
    toJSON(w, http.StatusOK, st)
}
