package v1

import (
    "net/http"
    "time"

    "github.com/tinoosan/tillbook/internal/meta"
    "github.com/tinoosan/tillbook/internal/service/trade"
)

// POST /v1/sales
func (s *Server) postSale(w http.ResponseWriter, r *http.Request) {
    var req postSaleRequest
    if !decodeJSON(w, r, &req) { return }
    id := identityFrom(r.Context())
    in := trade.SaleRequest{
        SaleID:        req.SaleID,
        ShopID:        id.ShopID,
        UserID:        id.UserID,
        PaymentMethod: req.PaymentMethod,
        Currency:      req.Currency,
        Timestamp:     timeOrZero(req.Timestamp),
        Metadata:      meta.New(req.Metadata),
    }
    for _, it := range req.Items {
        in.Items = append(in.Items, trade.SaleItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
    }
    res, err := s.Trade.RecordSale(r.Context(), in)
    if err != nil { s.writeDomainErr(w, r, err); return }
    status := http.StatusCreated
    if res.Reused { status = http.StatusOK }
    toJSON(w, status, res)
}

// POST /v1/purchases
func (s *Server) postPurchase(w http.ResponseWriter, r *http.Request) {
    var req postPurchaseRequest
    if !decodeJSON(w, r, &req) { return }
    id := identityFrom(r.Context())
    in := trade.PurchaseRequest{
        PurchaseID:    req.PurchaseID,
        ShopID:        id.ShopID,
        UserID:        id.UserID,
        PaymentMethod: req.PaymentMethod,
        Currency:      req.Currency,
        Supplier:      req.Supplier,
        Timestamp:     timeOrZero(req.Timestamp),
        Metadata:      meta.New(req.Metadata),
    }
    for _, it := range req.Items {
        in.Items = append(in.Items, trade.PurchaseItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitCost: it.UnitCost})
    }
    res, err := s.Trade.RecordPurchase(r.Context(), in)
    if err != nil { s.writeDomainErr(w, r, err); return }
    toJSON(w, http.StatusCreated, res)
}

func timeOrZero(t *time.Time) time.Time {
    if t == nil { return time.Time{} }
    return *t
}
