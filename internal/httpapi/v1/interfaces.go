package v1

import (
    "context"

    "github.com/shopspring/decimal"

    "github.com/tinoosan/tillbook/internal/ledger"
    "github.com/tinoosan/tillbook/internal/service/eod"
    "github.com/tinoosan/tillbook/internal/service/trade"
)

// Trader records compound sales and purchases (the trade saga).
type Trader interface {
    RecordSale(ctx context.Context, req trade.SaleRequest) (trade.SaleResult, error)
    RecordPurchase(ctx context.Context, req trade.PurchaseRequest) (trade.PurchaseResult, error)
}

// Closer is the end-of-day reconciler.
type Closer interface {
    GetOrCreateToday(ctx context.Context, userID, shopID string) (ledger.EODRecord, error)
    CompleteEOD(ctx context.Context, in eod.CompleteInput) (ledger.EODRecord, error)
    History(ctx context.Context, userID, shopID string, limit int) ([]ledger.EODRecord, error)
}

// Gate reports whether the user may trade today.
type Gate interface {
    CheckStatus(ctx context.Context, userID, shopID string) (ledger.TradingDayStatus, error)
}

// Allocator exposes direct FIFO allocation.
type Allocator interface {
    AllocateFIFO(ctx context.Context, shopID, productID string, quantity decimal.Decimal) ([]ledger.LotAllocation, error)
    Lots(ctx context.Context, shopID, productID string) ([]ledger.InventoryLot, error)
}

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
    Ready(ctx context.Context) error
}
