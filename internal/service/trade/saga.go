// Package trade records sales and purchases across inventory and the
// ledger. The store has no cross-document transactions, so a sale is a
// saga: the FIFO allocation is persisted before the entry is posted, and a
// retried sale reuses it instead of consuming stock twice.
package trade

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/tillbook/internal/docstore"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
	"github.com/tinoosan/tillbook/internal/money"
	"github.com/tinoosan/tillbook/internal/service/inventory"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/settings"
	"github.com/tinoosan/tillbook/internal/validation"
)

// Admitter is the trading-day gate.
type Admitter interface {
	Admit(ctx context.Context, userID, shopID string) error
}

// DayOpener creates the end-of-day record of the day a trade lands on.
type DayOpener interface {
	OpenDay(ctx context.Context, userID, shopID string, at time.Time) (ledger.EODRecord, error)
}

type Options struct {
	Logger *slog.Logger
	// Days opens the trading day's EOD record before anything is posted.
	Days DayOpener
	// Strict refuses trading while the previous day is still open.
	Strict bool
	Retry  docstore.RetryPolicy
	Now    func() time.Time
}

type Saga struct {
	store     docstore.Store
	inventory inventory.Service
	journal   journal.Service
	gate      Admitter
	days      DayOpener
	settings  settings.Provider
	log       *slog.Logger
	strict    bool
	retry     docstore.RetryPolicy
	now       func() time.Time
}

func New(store docstore.Store, inv inventory.Service, j journal.Service, gate Admitter, provider settings.Provider, opts Options) *Saga {
	s := &Saga{
		store:     store,
		inventory: inv,
		journal:   j,
		gate:      gate,
		days:      opts.Days,
		settings:  provider,
		log:       opts.Logger,
		strict:    opts.Strict,
		retry:     opts.Retry,
		now:       opts.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.retry.Attempts <= 0 {
		s.retry = docstore.DefaultRetry
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type SaleItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleRequest prices items in Currency; empty means the base currency.
type SaleRequest struct {
	SaleID        string               `json:"sale_id" validate:"required"`
	ShopID        string               `json:"shop_id" validate:"required"`
	UserID        string               `json:"user_id" validate:"required"`
	PaymentMethod ledger.PaymentMethod `json:"payment_method" validate:"oneof=cash credit"`
	Currency      string               `json:"currency"`
	Timestamp     time.Time            `json:"timestamp"`
	Items         []SaleItem           `json:"items" validate:"min=1,dive"`
	Metadata      meta.Metadata        `json:"metadata"`
}

type ItemAllocation struct {
	ProductID   string                 `json:"product_id"`
	Quantity    decimal.Decimal        `json:"quantity"`
	Allocations []ledger.LotAllocation `json:"allocations"`
}

// SaleAllocation is the persisted first half of a sale.
type SaleAllocation struct {
	SaleID      string           `json:"sale_id"`
	ShopID      string           `json:"shop_id"`
	Items       []ItemAllocation `json:"items"`
	Currency    string           `json:"currency"`
	CostOfGoods decimal.Decimal  `json:"cost_of_goods"`
	CreatedAt   time.Time        `json:"created_at"`
}

type SaleResult struct {
	Entry      ledger.Entry   `json:"entry"`
	Allocation SaleAllocation `json:"allocation"`
	// Reused is set when a stored allocation from an earlier attempt was used.
	Reused bool `json:"reused"`
}

func AllocationID(saleID string) string { return "sale_allocation:" + saleID }

// RecordSale gates, allocates and posts a sale.
func (s *Saga) RecordSale(ctx context.Context, req SaleRequest) (SaleResult, error) {
	if err := validation.Struct(req); err != nil {
		return SaleResult{}, err
	}
	for i, it := range req.Items {
		if !it.Quantity.IsPositive() {
			return SaleResult{}, errs.Invalid("items["+strconv.Itoa(i)+"].quantity", "must be positive")
		}
		if it.UnitPrice.IsNegative() {
			return SaleResult{}, errs.Invalid("items["+strconv.Itoa(i)+"].unit_price", "must not be negative")
		}
	}
	if err := s.admit(ctx, req.UserID, req.ShopID); err != nil {
		return SaleResult{}, err
	}
	if err := s.openDay(ctx, req.UserID, req.ShopID, req.Timestamp); err != nil {
		return SaleResult{}, err
	}
	cfg, err := s.settings.Current(ctx, req.ShopID)
	if err != nil {
		return SaleResult{}, err
	}
	total := decimal.Zero
	for _, it := range req.Items {
		total = total.Add(it.Quantity.Mul(it.UnitPrice))
	}
	totalValue, err := cfg.Value(total, req.Currency)
	if err != nil {
		return SaleResult{}, err
	}

	alloc, reused, err := s.allocation(ctx, req, cfg.BaseCurrency)
	if err != nil {
		return SaleResult{}, err
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = alloc.CreatedAt
	}
	var entry ledger.Entry
	err = s.withRetry(ctx, func() error {
		var err error
		entry, err = s.journal.CreateSaleEntry(ctx, journal.SaleInput{
			SaleID:        req.SaleID,
			Total:         totalValue,
			CostOfGoods:   cfg.Base(alloc.CostOfGoods),
			PaymentMethod: req.PaymentMethod,
			Timestamp:     ts,
			ShopID:        req.ShopID,
			UserID:        req.UserID,
			Metadata:      req.Metadata.With(meta.KeySourceRecord, AllocationID(req.SaleID)),
		})
		return err
	})
	if err != nil {
		s.log.Error("sale posting failed, allocation kept for retry", "sale_id", req.SaleID, "err", err)
		return SaleResult{}, err
	}
	s.log.Info("sale recorded", "sale_id", req.SaleID, "total", totalValue.Display(), "cogs", alloc.CostOfGoods.String(), "reused_allocation", reused)
	return SaleResult{Entry: entry, Allocation: alloc, Reused: reused}, nil
}

// allocation loads the stored allocation for the sale or computes and
// stores a new one. Items are all-or-nothing: a shortfall on one item
// releases what the earlier items consumed.
func (s *Saga) allocation(ctx context.Context, req SaleRequest, base string) (SaleAllocation, bool, error) {
	id := AllocationID(req.SaleID)
	if doc, err := s.store.Get(ctx, id); err == nil {
		var a SaleAllocation
		err := docstore.Decode(doc, &a)
		return a, true, err
	} else if !docstore.IsNotFound(err) {
		return SaleAllocation{}, false, err
	}

	out := SaleAllocation{SaleID: req.SaleID, ShopID: req.ShopID, Currency: base, CreatedAt: s.now().UTC()}
	var consumed []ledger.LotAllocation
	for _, it := range req.Items {
		allocs, err := s.inventory.AllocateFIFO(ctx, req.ShopID, it.ProductID, it.Quantity)
		if err != nil {
			s.release(ctx, req.SaleID, consumed)
			return SaleAllocation{}, false, err
		}
		consumed = append(consumed, allocs...)
		out.Items = append(out.Items, ItemAllocation{ProductID: it.ProductID, Quantity: it.Quantity, Allocations: allocs})
		out.CostOfGoods = out.CostOfGoods.Add(money.Base(inventory.TotalCost(allocs, base), base))
	}

	doc, err := docstore.Encode(docstore.KindSaleAllocation, id, req.ShopID, map[string]string{"sale_id": req.SaleID}, out)
	if err != nil {
		s.release(ctx, req.SaleID, consumed)
		return SaleAllocation{}, false, err
	}
	stored, created, err := docstore.Create(ctx, s.store, doc)
	if err != nil {
		s.release(ctx, req.SaleID, consumed)
		return SaleAllocation{}, false, err
	}
	if !created {
		// a concurrent attempt for the same sale won
		s.release(ctx, req.SaleID, consumed)
		var a SaleAllocation
		err := docstore.Decode(stored, &a)
		return a, true, err
	}
	return out, false, nil
}

func (s *Saga) release(ctx context.Context, saleID string, allocs []ledger.LotAllocation) {
	if len(allocs) == 0 {
		return
	}
	if err := s.inventory.Release(ctx, allocs); err != nil {
		s.log.Error("releasing sale allocation failed", "sale_id", saleID, "err", err)
	}
}

type PurchaseItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type PurchaseRequest struct {
	PurchaseID    string               `json:"purchase_id" validate:"required"`
	ShopID        string               `json:"shop_id" validate:"required"`
	UserID        string               `json:"user_id" validate:"required"`
	PaymentMethod ledger.PaymentMethod `json:"payment_method" validate:"oneof=cash credit"`
	Currency      string               `json:"currency"`
	Supplier      string               `json:"supplier"`
	Timestamp     time.Time            `json:"timestamp"`
	Items         []PurchaseItem       `json:"items" validate:"min=1,dive"`
	Metadata      meta.Metadata        `json:"metadata"`
}

type PurchaseResult struct {
	Entry ledger.Entry          `json:"entry"`
	Lots  []ledger.InventoryLot `json:"lots"`
}

// RecordPurchase receives one lot per item and posts the purchase. Lots are
// keyed by purchase id and item index, so a retry finds the lots it made.
func (s *Saga) RecordPurchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	if err := validation.Struct(req); err != nil {
		return PurchaseResult{}, err
	}
	for i, it := range req.Items {
		if !it.Quantity.IsPositive() {
			return PurchaseResult{}, errs.Invalid("items["+strconv.Itoa(i)+"].quantity", "must be positive")
		}
		if it.UnitCost.IsNegative() {
			return PurchaseResult{}, errs.Invalid("items["+strconv.Itoa(i)+"].unit_cost", "must not be negative")
		}
	}
	if err := s.admit(ctx, req.UserID, req.ShopID); err != nil {
		return PurchaseResult{}, err
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	if err := s.openDay(ctx, req.UserID, req.ShopID, ts); err != nil {
		return PurchaseResult{}, err
	}
	cfg, err := s.settings.Current(ctx, req.ShopID)
	if err != nil {
		return PurchaseResult{}, err
	}

	out := PurchaseResult{Lots: make([]ledger.InventoryLot, 0, len(req.Items))}
	total := decimal.Zero
	for i, it := range req.Items {
		cost, err := cfg.Value(it.UnitCost, req.Currency)
		if err != nil {
			return PurchaseResult{}, err
		}
		lot, err := s.inventory.ReceiveLot(ctx, inventory.ReceiveInput{
			ShopID:    req.ShopID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitCost:  cost,
			Timestamp: ts,
			Supplier:  req.Supplier,
			Key:       req.PurchaseID + ":" + strconv.Itoa(i),
		})
		if err != nil {
			return PurchaseResult{}, err
		}
		out.Lots = append(out.Lots, lot)
		total = total.Add(it.Quantity.Mul(it.UnitCost))
	}
	totalValue, err := cfg.Value(total, req.Currency)
	if err != nil {
		return PurchaseResult{}, err
	}
	err = s.withRetry(ctx, func() error {
		var err error
		out.Entry, err = s.journal.CreatePurchaseEntry(ctx, journal.PurchaseInput{
			PurchaseID:    req.PurchaseID,
			Total:         totalValue,
			PaymentMethod: req.PaymentMethod,
			Timestamp:     ts,
			ShopID:        req.ShopID,
			UserID:        req.UserID,
			Metadata:      req.Metadata,
		})
		return err
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.log.Info("purchase recorded", "purchase_id", req.PurchaseID, "total", totalValue.Display(), "lots", len(out.Lots))
	return out, nil
}

func (s *Saga) admit(ctx context.Context, userID, shopID string) error {
	if !s.strict || s.gate == nil {
		return nil
	}
	return s.gate.Admit(ctx, userID, shopID)
}

// openDay runs whether or not the saga is strict.
func (s *Saga) openDay(ctx context.Context, userID, shopID string, at time.Time) error {
	if s.days == nil {
		return nil
	}
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.days.OpenDay(ctx, userID, shopID, at)
	return err
}

// withRetry re-runs an idempotent posting. Errors that a retry cannot fix
// are returned at once.
func (s *Saga) withRetry(ctx context.Context, op func() error) error {
	wait := s.retry.Backoff
	var err error
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		if err = op(); err == nil || permanent(err) {
			return err
		}
		if attempt == s.retry.Attempts || wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait *= 2
	}
	return err
}

func permanent(err error) bool {
	var mismatch *errs.EntryMismatchError
	return errors.As(err, &mismatch) ||
		errors.Is(err, errs.ErrInvalid) ||
		errors.Is(err, errs.ErrUnbalanced) ||
		errors.Is(err, errs.ErrMissingSettings) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
