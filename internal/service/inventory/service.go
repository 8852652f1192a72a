// Package inventory tracks purchase cost lots and consumes them oldest first.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/tillbook/internal/docstore"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ids"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/metrics"
	"github.com/tinoosan/tillbook/internal/money"
	"github.com/tinoosan/tillbook/internal/validation"
)

const fieldProductID = "product_id"

type Service interface {
	ReceiveLot(ctx context.Context, in ReceiveInput) (ledger.InventoryLot, error)
	AllocateFIFO(ctx context.Context, shopID, productID string, quantity decimal.Decimal) ([]ledger.LotAllocation, error)
	Lots(ctx context.Context, shopID, productID string) ([]ledger.InventoryLot, error)
	OnHand(ctx context.Context, shopID, productID string) (decimal.Decimal, error)
	Release(ctx context.Context, allocs []ledger.LotAllocation) error
}

// ReceiveInput creates one lot. When Key is set the lot id is derived from
// it, so receiving the same key twice returns the first lot.
type ReceiveInput struct {
	ShopID    string          `json:"shop_id" validate:"required"`
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  money.Value     `json:"unit_cost"`
	Timestamp time.Time       `json:"timestamp"`
	Supplier  string          `json:"supplier"`
	Key       string          `json:"key"`
}

type Options struct {
	Logger *slog.Logger
	Retry  docstore.RetryPolicy
	Now    func() time.Time
}

type service struct {
	store docstore.Store
	log   *slog.Logger
	retry docstore.RetryPolicy
	now   func() time.Time
}

func New(store docstore.Store, opts Options) Service {
	s := &service{store: store, log: opts.Logger, retry: opts.Retry, now: opts.Now}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.retry.Attempts == 0 {
		s.retry = docstore.DefaultRetry
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func docID(lotID string) string { return "lot:" + lotID }

// ReceiveLot appends a lot. Lots are never merged, even at equal cost.
func (s *service) ReceiveLot(ctx context.Context, in ReceiveInput) (ledger.InventoryLot, error) {
	if err := validation.Struct(in); err != nil {
		return ledger.InventoryLot{}, err
	}
	if !in.Quantity.IsPositive() {
		return ledger.InventoryLot{}, errs.Invalid("quantity", "must be positive")
	}
	if in.UnitCost.Sign() < 0 {
		return ledger.InventoryLot{}, errs.Invalid("unit_cost", "must not be negative")
	}
	if _, err := money.NormalizeCurrency(in.UnitCost.Currency); err != nil {
		return ledger.InventoryLot{}, errs.Invalid("unit_cost.currency", err.Error())
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	seq := ids.New()
	id := seq
	if in.Key != "" {
		id = in.ShopID + ":" + in.Key
	}
	lot := ledger.InventoryLot{
		ID:                id,
		Seq:               seq,
		ShopID:            in.ShopID,
		ProductID:         in.ProductID,
		PurchaseID:        in.Key,
		PurchasedAt:       ts.UTC(),
		QuantityOriginal:  in.Quantity,
		QuantityRemaining: in.Quantity,
		UnitCost:          in.UnitCost,
		Supplier:          in.Supplier,
	}
	doc, err := encodeLot(lot)
	if err != nil {
		return ledger.InventoryLot{}, err
	}
	stored, created, err := docstore.Create(ctx, s.store, doc)
	if err != nil {
		return ledger.InventoryLot{}, err
	}
	if !created {
		return decodeLot(stored)
	}
	s.log.Info("lot received", "lot_id", lot.ID, "product_id", lot.ProductID, "quantity", lot.QuantityOriginal.String(), "unit_cost", lot.UnitCost.Display())
	return lot, nil
}

func encodeLot(l ledger.InventoryLot) (docstore.Document, error) {
	return docstore.Encode(docstore.KindLot, docID(l.ID), l.ShopID, map[string]string{fieldProductID: l.ProductID}, l)
}

func decodeLot(d docstore.Document) (ledger.InventoryLot, error) {
	var l ledger.InventoryLot
	err := docstore.Decode(d, &l)
	return l, err
}

type loadedLot struct {
	lot ledger.InventoryLot
	rev string
}

// load returns the product's lots oldest first: purchase time, then creation order.
func (s *service) load(ctx context.Context, shopID, productID string) ([]loadedLot, error) {
	docs, err := s.store.Find(ctx, docstore.Selector{Kind: docstore.KindLot, ShopID: shopID, Fields: map[string]string{fieldProductID: productID}})
	if err != nil {
		return nil, err
	}
	out := make([]loadedLot, 0, len(docs))
	for _, d := range docs {
		l, err := decodeLot(d)
		if err != nil {
			return nil, err
		}
		out = append(out, loadedLot{lot: l, rev: d.Rev})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].lot, out[j].lot
		if !a.PurchasedAt.Equal(b.PurchasedAt) {
			return a.PurchasedAt.Before(b.PurchasedAt)
		}
		return a.Seq < b.Seq
	})
	return out, nil
}

func (s *service) Lots(ctx context.Context, shopID, productID string) ([]ledger.InventoryLot, error) {
	loaded, err := s.load(ctx, shopID, productID)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.InventoryLot, len(loaded))
	for i, l := range loaded {
		out[i] = l.lot
	}
	return out, nil
}

func (s *service) OnHand(ctx context.Context, shopID, productID string) (decimal.Decimal, error) {
	loaded, err := s.load(ctx, shopID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, l := range loaded {
		total = total.Add(l.lot.QuantityRemaining)
	}
	return total, nil
}

type step struct {
	lot  loadedLot
	take decimal.Decimal
}

// AllocateFIFO consumes quantity from the oldest lots. It either consumes
// the whole quantity or leaves every lot as it was: a shortfall fails before
// any write, and a write race mid-way restores the lots already consumed and
// plans again from fresh data.
func (s *service) AllocateFIFO(ctx context.Context, shopID, productID string, quantity decimal.Decimal) ([]ledger.LotAllocation, error) {
	if shopID == "" || productID == "" {
		return nil, errs.Invalid("product_id", "shop and product are required")
	}
	if !quantity.IsPositive() {
		return nil, errs.Invalid("quantity", "must be positive")
	}
	var out []ledger.LotAllocation
	err := docstore.Retry(ctx, s.retry, "allocate:"+shopID+":"+productID, func(ctx context.Context) error {
		loaded, err := s.load(ctx, shopID, productID)
		if err != nil {
			return err
		}
		plan, err := planFIFO(productID, loaded, quantity)
		if err != nil {
			return err
		}
		applied := make([]step, 0, len(plan))
		for _, st := range plan {
			if err := s.consume(ctx, st); err != nil {
				s.restore(ctx, applied)
				return err
			}
			applied = append(applied, st)
		}
		out = make([]ledger.LotAllocation, len(plan))
		for i, st := range plan {
			out[i] = ledger.LotAllocation{LotID: st.lot.lot.ID, QuantityConsumed: st.take, UnitCost: st.lot.lot.UnitCost}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.LotsAllocated.Add(float64(len(out)))
	s.log.Debug("fifo allocation", "product_id", productID, "quantity", quantity.String(), "lots", len(out))
	return out, nil
}

func planFIFO(productID string, lots []loadedLot, quantity decimal.Decimal) ([]step, error) {
	available := decimal.Zero
	for _, l := range lots {
		available = available.Add(l.lot.QuantityRemaining)
	}
	if available.LessThan(quantity) {
		return nil, &errs.InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
	}
	need := quantity
	plan := make([]step, 0)
	for _, l := range lots {
		if !need.IsPositive() {
			break
		}
		if !l.lot.QuantityRemaining.IsPositive() {
			continue
		}
		take := decimal.Min(need, l.lot.QuantityRemaining)
		plan = append(plan, step{lot: l, take: take})
		need = need.Sub(take)
	}
	return plan, nil
}

// consume writes one lot against the revision it was planned with, so a
// concurrent consumer turns into docstore.ErrRevision.
func (s *service) consume(ctx context.Context, st step) error {
	next := st.lot.lot
	next.QuantityRemaining = next.QuantityRemaining.Sub(st.take)
	doc, err := encodeLot(next)
	if err != nil {
		return err
	}
	doc.Rev = st.lot.rev
	_, err = s.store.Put(ctx, doc)
	return err
}

// restore gives back quantities consumed by a failed allocation.
func (s *service) restore(ctx context.Context, applied []step) {
	allocs := make([]ledger.LotAllocation, len(applied))
	for i, st := range applied {
		allocs[i] = ledger.LotAllocation{LotID: st.lot.lot.ID, QuantityConsumed: st.take, UnitCost: st.lot.lot.UnitCost}
	}
	if err := s.Release(ctx, allocs); err != nil {
		s.log.Error("lot restore failed", "err", err)
	}
}

// Release returns allocated quantities to their lots, for callers undoing
// a sale that could not be completed.
func (s *service) Release(ctx context.Context, allocs []ledger.LotAllocation) error {
	var failed []error
	for _, a := range allocs {
		_, err := docstore.Update(ctx, s.store, s.retry, docID(a.LotID), func(cur docstore.Document, exists bool) (docstore.Document, error) {
			if !exists {
				return docstore.Document{}, errs.ErrNotFound
			}
			l, err := decodeLot(cur)
			if err != nil {
				return docstore.Document{}, err
			}
			l.QuantityRemaining = l.QuantityRemaining.Add(a.QuantityConsumed)
			if l.QuantityRemaining.GreaterThan(l.QuantityOriginal) {
				return docstore.Document{}, errs.Invalid("quantity", "release would exceed lot "+l.ID+" original quantity")
			}
			return encodeLot(l)
		})
		if err != nil {
			failed = append(failed, fmt.Errorf("lot %s: %w", a.LotID, err))
		}
	}
	return errors.Join(failed...)
}

// TotalCost is the cost of goods for a set of allocations, expressed in the
// currency and snapshot of the first allocation.
func TotalCost(allocs []ledger.LotAllocation, base string) money.Value {
	if len(allocs) == 0 {
		return money.Value{}
	}
	total := allocs[0].UnitCost.WithAmount(decimal.Zero)
	for _, a := range allocs {
		total = total.Add(a.UnitCost.Mul(a.QuantityConsumed), base)
	}
	return total
}

// AverageCost is the quantity-weighted mean unit cost.
func AverageCost(allocs []ledger.LotAllocation, base string) (money.Value, error) {
	qty := decimal.Zero
	for _, a := range allocs {
		qty = qty.Add(a.QuantityConsumed)
	}
	if !qty.IsPositive() {
		return money.Value{}, errs.Invalid("allocations", "no quantity consumed")
	}
	total := TotalCost(allocs, base)
	return total.WithAmount(total.Amount.DivRound(qty, 16)), nil
}
