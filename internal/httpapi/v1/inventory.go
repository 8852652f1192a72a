package v1

import (
    "net/http"

    chi "github.com/go-chi/chi/v5"
    "github.com/shopspring/decimal"

    "github.com/tinoosan/tillbook/internal/ledger"
    "github.com/tinoosan/tillbook/internal/service/inventory"
)

// POST /v1/inventory/allocations consumes stock outside a sale, e.g. for
// spoilage or internal use. Sales allocate through /v1/sales.
func (s *Server) postAllocation(w http.ResponseWriter, r *http.Request) {
    var req postAllocationRequest
    if !decodeJSON(w, r, &req) { return }
    id := identityFrom(r.Context())
    allocs, err := s.Inventory.AllocateFIFO(r.Context(), id.ShopID, req.ProductID, req.Quantity)
    if err != nil { s.writeDomainErr(w, r, err); return }
    cfg, err := s.Settings.Current(r.Context(), id.ShopID)
    if err != nil { s.writeDomainErr(w, r, err); return }
    out := allocationResponse{ProductID: req.ProductID, Allocations: allocs, TotalCost: decimal.Zero, AverageCost: decimal.Zero}
    if len(allocs) > 0 {
        out.TotalCost = inventory.TotalCost(allocs, cfg.BaseCurrency).Amount
        if avg, err := inventory.AverageCost(allocs, cfg.BaseCurrency); err == nil { out.AverageCost = avg.Amount }
    }
    toJSON(w, http.StatusCreated, out)
}

// GET /v1/inventory/{productID}/lots
func (s *Server) listLots(w http.ResponseWriter, r *http.Request) {
    id := identityFrom(r.Context())
    lots, err := s.Inventory.Lots(r.Context(), id.ShopID, chi.URLParam(r, "productID"))
    if err != nil { s.writeDomainErr(w, r, err); return }
    if lots == nil { lots = []ledger.InventoryLot{} }
    toJSON(w, http.StatusOK, listResponse[ledger.InventoryLot]{Items: lots})
}
