package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/tillbook/internal/docstore"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/money"
	"github.com/tinoosan/tillbook/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func usd(s string) money.Value { return money.MustNew(s, "USD", "1") }

func setup(t *testing.T) (Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, Options{Logger: testLogger(), Retry: docstore.RetryPolicy{Attempts: 3}}), store
}

func receive(t *testing.T, svc Service, qty, cost string, at time.Time) ledger.InventoryLot {
	t.Helper()
	lot, err := svc.ReceiveLot(context.Background(), ReceiveInput{
		ShopID: "shop-1", ProductID: "p1", Quantity: dec(qty), UnitCost: usd(cost), Timestamp: at,
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	return lot
}

func TestAllocateSingleLot(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	lot := receive(t, svc, "10", "5", t0)

	allocs, err := svc.AllocateFIFO(ctx, "shop-1", "p1", dec("6"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(allocs) != 1 || allocs[0].LotID != lot.ID || !allocs[0].QuantityConsumed.Equal(dec("6")) || !allocs[0].UnitCost.Amount.Equal(dec("5")) {
		t.Fatalf("unexpected allocation: %+v", allocs)
	}
	if cogs := TotalCost(allocs, "USD"); !cogs.Amount.Equal(dec("30")) {
		t.Fatalf("cogs: got %s want 30", cogs.Display())
	}
	onHand, err := svc.OnHand(ctx, "shop-1", "p1")
	if err != nil || !onHand.Equal(dec("4")) {
		t.Fatalf("on hand: got %s (%v) want 4", onHand, err)
	}
}

func TestAllocateSpansLotsOldestFirst(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	newer := receive(t, svc, "10", "7", t0.Add(time.Hour))
	older := receive(t, svc, "4", "5", t0)

	allocs, err := svc.AllocateFIFO(ctx, "shop-1", "p1", dec("6"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(allocs) != 2 || allocs[0].LotID != older.ID || allocs[1].LotID != newer.ID {
		t.Fatalf("expected older lot first: %+v", allocs)
	}
	if !allocs[1].QuantityConsumed.Equal(dec("2")) {
		t.Fatalf("second lot should give 2, got %s", allocs[1].QuantityConsumed)
	}
	// 4*5 + 2*7
	if cogs := TotalCost(allocs, "USD"); !cogs.Amount.Equal(dec("34")) {
		t.Fatalf("cogs: got %s want 34", cogs.Display())
	}
	avg, err := AverageCost(allocs, "USD")
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if got := avg.Amount.Round(4); !got.Equal(dec("5.6667")) {
		t.Fatalf("average: got %s", got)
	}
}

func TestSameInstantLotsUseCreationOrder(t *testing.T) {
	svc, _ := setup(t)
	first := receive(t, svc, "1", "1", t0)
	second := receive(t, svc, "1", "2", t0)
	allocs, err := svc.AllocateFIFO(context.Background(), "shop-1", "p1", dec("1"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if allocs[0].LotID != first.ID || allocs[0].LotID == second.ID {
		t.Fatalf("expected first created lot, got %+v", allocs)
	}
}

func TestInsufficientStockLeavesLotsUntouched(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	receive(t, svc, "4", "5", t0)
	receive(t, svc, "6", "5", t0.Add(time.Minute))

	_, err := svc.AllocateFIFO(ctx, "shop-1", "p1", dec("15"))
	var ise *errs.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !ise.Available.Equal(dec("10")) || !ise.Requested.Equal(dec("15")) {
		t.Fatalf("unexpected error detail: %+v", ise)
	}
	lots, err := svc.Lots(ctx, "shop-1", "p1")
	if err != nil {
		t.Fatalf("lots: %v", err)
	}
	for _, l := range lots {
		if !l.QuantityRemaining.Equal(l.QuantityOriginal) {
			t.Fatalf("lot %s was mutated: %s of %s", l.ID, l.QuantityRemaining, l.QuantityOriginal)
		}
	}
}

func TestReceiveValidationAndIdempotentKey(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	if _, err := svc.ReceiveLot(ctx, ReceiveInput{ShopID: "shop-1", ProductID: "p1", Quantity: dec("0"), UnitCost: usd("1")}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("zero quantity should be invalid, got %v", err)
	}
	if _, err := svc.ReceiveLot(ctx, ReceiveInput{ShopID: "shop-1", Quantity: dec("1"), UnitCost: usd("1")}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("missing product should be invalid, got %v", err)
	}
	in := ReceiveInput{ShopID: "shop-1", ProductID: "p1", Quantity: dec("3"), UnitCost: usd("2"), Timestamp: t0, Key: "po-9:0"}
	a, err := svc.ReceiveLot(ctx, in)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	b, err := svc.ReceiveLot(ctx, in)
	if err != nil {
		t.Fatalf("receive again: %v", err)
	}
	if a.ID != b.ID || a.Seq != b.Seq {
		t.Fatalf("keyed receive should return the first lot: %s/%s vs %s/%s", a.ID, a.Seq, b.ID, b.Seq)
	}
	if onHand, _ := svc.OnHand(ctx, "shop-1", "p1"); !onHand.Equal(dec("3")) {
		t.Fatalf("duplicate receive added stock: %s", onHand)
	}
}

func TestAllocateRejectsBadQuantity(t *testing.T) {
	svc, _ := setup(t)
	if _, err := svc.AllocateFIFO(context.Background(), "shop-1", "p1", dec("-1")); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}

// stealingStore consumes one unit from a lot right before the allocator
// writes it, once.
type stealingStore struct {
	*memory.Store
	target string
	once   sync.Once
}

func (s *stealingStore) Put(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	if doc.ID == s.target && doc.Rev != "" {
		s.once.Do(func() {
			cur, err := s.Store.Get(ctx, s.target)
			if err != nil {
				return
			}
			var l ledger.InventoryLot
			if err := docstore.Decode(cur, &l); err != nil {
				return
			}
			l.QuantityRemaining = l.QuantityRemaining.Sub(decimal.NewFromInt(1))
			next, _ := encodeLot(l)
			next.Rev = cur.Rev
			_, _ = s.Store.Put(ctx, next)
		})
	}
	return s.Store.Put(ctx, doc)
}

func TestAllocateRestoresAndReplansOnRace(t *testing.T) {
	mem := memory.New()
	plain := New(mem, Options{Logger: testLogger()})
	a := receive(t, plain, "10", "5", t0)
	b := receive(t, plain, "5", "6", t0.Add(time.Minute))

	store := &stealingStore{Store: mem, target: docID(b.ID)}
	svc := New(store, Options{Logger: testLogger(), Retry: docstore.RetryPolicy{Attempts: 3}})
	allocs, err := svc.AllocateFIFO(context.Background(), "shop-1", "p1", dec("12"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(allocs) != 2 || !allocs[1].QuantityConsumed.Equal(dec("2")) {
		t.Fatalf("unexpected allocation: %+v", allocs)
	}
	lots, _ := plain.Lots(context.Background(), "shop-1", "p1")
	want := map[string]string{a.ID: "0", b.ID: "2"}
	for _, l := range lots {
		if !l.QuantityRemaining.Equal(dec(want[l.ID])) {
			t.Fatalf("lot %s: remaining %s want %s", l.ID, l.QuantityRemaining, want[l.ID])
		}
	}
}

func TestTotalCostHonoursEachLotsRate(t *testing.T) {
	allocs := []ledger.LotAllocation{
		{LotID: "a", QuantityConsumed: dec("1"), UnitCost: money.MustNew("10", "EUR", "0.5")},
		{LotID: "b", QuantityConsumed: dec("1"), UnitCost: money.MustNew("10", "EUR", "1")},
	}
	total := TotalCost(allocs, "USD")
	if got := money.Base(total, "USD"); !got.Equal(dec("30")) {
		t.Fatalf("cogs in base: got %s want 30", got)
	}
	avg, err := AverageCost(allocs, "USD")
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if got := money.Base(avg, "USD"); !got.Equal(dec("15")) {
		t.Fatalf("average in base: got %s want 15", got)
	}
}
