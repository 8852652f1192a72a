package v1

import (
    "time"

    "github.com/shopspring/decimal"

    "github.com/tinoosan/tillbook/internal/ledger"
)

type saleItem struct {
    ProductID string          `json:"product_id"`
    Quantity  decimal.Decimal `json:"quantity"`
    UnitPrice decimal.Decimal `json:"unit_price"`
}

type postSaleRequest struct {
    SaleID        string               `json:"sale_id"`
    PaymentMethod ledger.PaymentMethod `json:"payment_method"`
    Currency      string               `json:"currency,omitempty"`
    Timestamp     *time.Time           `json:"timestamp,omitempty"`
    Items         []saleItem           `json:"items"`
    Metadata      map[string]string    `json:"metadata,omitempty"`
}

type purchaseItem struct {
    ProductID string          `json:"product_id"`
    Quantity  decimal.Decimal `json:"quantity"`
    UnitCost  decimal.Decimal `json:"unit_cost"`
}

type postPurchaseRequest struct {
    PurchaseID    string               `json:"purchase_id"`
    PaymentMethod ledger.PaymentMethod `json:"payment_method"`
    Currency      string               `json:"currency,omitempty"`
    Supplier      string               `json:"supplier,omitempty"`
    Timestamp     *time.Time           `json:"timestamp,omitempty"`
    Items         []purchaseItem       `json:"items"`
    Metadata      map[string]string    `json:"metadata,omitempty"`
}

type postCashAdjustmentRequest struct {
    AdjustmentID   string            `json:"adjustment_id"`
    PhysicalAmount decimal.Decimal   `json:"physical_amount"`
    ExpectedAmount decimal.Decimal   `json:"expected_amount"`
    Currency       string            `json:"currency,omitempty"`
    Timestamp      *time.Time        `json:"timestamp,omitempty"`
    Metadata       map[string]string `json:"metadata,omitempty"`
}

// cashAdjustmentResponse has a nil entry when the count matched.
type cashAdjustmentResponse struct {
    Adjusted bool          `json:"adjusted"`
    Entry    *ledger.Entry `json:"entry,omitempty"`
}

type postAllocationRequest struct {
    ProductID string          `json:"product_id"`
    Quantity  decimal.Decimal `json:"quantity"`
}

type allocationResponse struct {
    ProductID   string                 `json:"product_id"`
    Allocations []ledger.LotAllocation `json:"allocations"`
    TotalCost   decimal.Decimal        `json:"total_cost"`
    AverageCost decimal.Decimal        `json:"average_cost"`
}

type completeEODRequest struct {
    Date               string          `json:"date,omitempty"`
    UserName           string          `json:"user_name,omitempty"`
    ActualCashCount    decimal.Decimal `json:"actual_cash_count"`
    Explanations       []string        `json:"variance_explanations,omitempty"`
    SurrenderAmount    decimal.Decimal `json:"surrender_amount"`
    SurrenderMethod    string          `json:"surrender_method,omitempty"`
    SurrenderReference string          `json:"surrender_reference,omitempty"`
    SurrenderNotes     string          `json:"surrender_notes,omitempty"`
    Notes              string          `json:"notes,omitempty"`
}

type listResponse[T any] struct {
    Items []T `json:"items"`
}
