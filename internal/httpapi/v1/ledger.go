package v1

import (
    "net/http"

    chi "github.com/go-chi/chi/v5"

    "github.com/tinoosan/tillbook/internal/ledger"
    "github.com/tinoosan/tillbook/internal/meta"
    "github.com/tinoosan/tillbook/internal/service/account"
    "github.com/tinoosan/tillbook/internal/service/journal"
)

// POST /v1/cash-adjustments
func (s *Server) postCashAdjustment(w http.ResponseWriter, r *http.Request) {
    var req postCashAdjustmentRequest
    if !decodeJSON(w, r, &req) { return }
    id := identityFrom(r.Context())
    cfg, err := s.Settings.Current(r.Context(), id.ShopID)
    if err != nil { s.writeDomainErr(w, r, err); return }
    physical, err := cfg.Value(req.PhysicalAmount, req.Currency)
    if err != nil { s.writeDomainErr(w, r, err); return }
    expected, err := cfg.Value(req.ExpectedAmount, req.Currency)
    if err != nil { s.writeDomainErr(w, r, err); return }
    e, err := s.Journal.CreateCashAdjustmentEntry(r.Context(), journal.CashAdjustmentInput{
        AdjustmentID: req.AdjustmentID,
        Physical:     physical,
        Expected:     expected,
        Timestamp:    timeOrZero(req.Timestamp),
        ShopID:       id.ShopID,
        UserID:       id.UserID,
        Metadata:     meta.New(req.Metadata),
    })
    if err != nil { s.writeDomainErr(w, r, err); return }
    if e == nil { toJSON(w, http.StatusOK, cashAdjustmentResponse{}); return }
    toJSON(w, http.StatusCreated, cashAdjustmentResponse{Adjusted: true, Entry: e})
}

// GET /v1/reports/trial-balance?start&end&shop_id
func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
    shopID, ok := shopFor(r)
    if !ok { writeErr(w, http.StatusForbidden, "shop_id does not match caller", "forbidden"); return }
    start, end, err := parseRange(r, s.Location)
    if err != nil { s.writeDomainErr(w, r, err); return }
    tb, err := s.Journal.GenerateTrialBalance(r.Context(), start, end, shopID)
    if err != nil { s.writeDomainErr(w, r, err); return }
    toJSON(w, http.StatusOK, tb)
}

// GET /v1/accounts?type=
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
    t, err := account.ParseType(r.URL.Query().Get("type"))
    if err != nil { s.writeDomainErr(w, r, err); return }
    toJSON(w, http.StatusOK, listResponse[ledger.Account]{Items: s.Accounts.List(t)})
}

// GET /v1/accounts/{code}
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
    a, err := s.Accounts.Get(chi.URLParam(r, "code"))
    if err != nil { s.writeDomainErr(w, r, err); return }
    toJSON(w, http.StatusOK, a)
}

// GET /v1/accounts/{code}/balance?end
func (s *Server) accountBalance(w http.ResponseWriter, r *http.Request) {
    shopID, ok := shopFor(r)
    if !ok { writeErr(w, http.StatusForbidden, "shop_id does not match caller", "forbidden"); return }
    asOf, err := parseBound(r.URL.Query().Get("end"), s.Location, true)
    if err != nil { s.writeDomainErr(w, r, err); return }
    b, err := s.Accounts.Balance(r.Context(), chi.URLParam(r, "code"), shopID, asOf)
    if err != nil { s.writeDomainErr(w, r, err); return }
    toJSON(w, http.StatusOK, b)
}

// GET /v1/accounts/{code}/history?start&end&shop_id
func (s *Server) accountHistory(w http.ResponseWriter, r *http.Request) {
    shopID, ok := shopFor(r)
    if !ok { writeErr(w, http.StatusForbidden, "shop_id does not match caller", "forbidden"); return }
    start, end, err := parseRange(r, s.Location)
    if err != nil { s.writeDomainErr(w, r, err); return }
    h, err := s.Journal.GetAccountHistory(r.Context(), chi.URLParam(r, "code"), start, end, shopID)
    if err != nil { s.writeDomainErr(w, r, err); return }
    toJSON(w, http.StatusOK, h)
}
