package eod

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/tillbook/internal/dictionary"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/money"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/settings"
	"github.com/tinoosan/tillbook/internal/storage/memory"
)

var day1 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func usd(s string) money.Value { return money.MustNew(s, "USD", "1") }

type fixture struct {
	eod     *Reconciler
	journal journal.Service
	clock   time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	provider := settings.Static{Settings: settings.Settings{BaseCurrency: "USD"}}
	j := journal.New(store, provider, journal.Options{Logger: testLogger()})
	f := &fixture{journal: j, clock: day1}
	f.eod = New(store, j, provider, Options{Logger: testLogger(), OpeningFloat: dec("100")})
	f.eod.WithNow(func() time.Time { return f.clock })
	return f
}

func (f *fixture) sale(t *testing.T, id, total string, at time.Time) {
	t.Helper()
	_, err := f.journal.CreateSaleEntry(context.Background(), journal.SaleInput{
		SaleID: id, Total: usd(total), PaymentMethod: ledger.PaymentCash, Timestamp: at, ShopID: "shop-1", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
}

func (f *fixture) purchase(t *testing.T, id, total string, at time.Time) {
	t.Helper()
	_, err := f.journal.CreatePurchaseEntry(context.Background(), journal.PurchaseInput{
		PurchaseID: id, Total: usd(total), PaymentMethod: ledger.PaymentCash, Timestamp: at, ShopID: "shop-1", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
}

func lineFor(t *testing.T, e ledger.Entry, code string) ledger.Line {
	t.Helper()
	for _, l := range e.Lines {
		if l.AccountCode == code {
			return l
		}
	}
	t.Fatalf("entry %s has no line for %s", e.TransactionID, code)
	return ledger.Line{}
}

func TestShortageIsBookedAsExpense(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.sale(t, "s1", "200", day1)
	f.purchase(t, "p1", "50", day1)

	rec, err := f.eod.GetOrCreateToday(ctx, "u1", "shop-1")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if !rec.OpeningBalance.Equal(dec("100")) || !rec.CashSales.Equal(dec("200")) || !rec.CashPurchases.Equal(dec("50")) {
		t.Fatalf("unexpected totals: %+v", rec)
	}
	if !rec.ExpectedClosingBalance.Equal(dec("250")) || rec.Status != ledger.EODOpen {
		t.Fatalf("expected open record closing at 250, got %s %s", rec.ExpectedClosingBalance, rec.Status)
	}

	done, err := f.eod.CompleteEOD(ctx, CompleteInput{
		ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("245"), Explanations: []string{"unexplained"},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Variance.Equal(dec("-5")) || done.VarianceType != ledger.VarianceShortage {
		t.Fatalf("variance: got %s %s", done.Variance, done.VarianceType)
	}
	if done.Status != ledger.EODCompleted || done.CompletedAt == nil || !done.CompletedAt.Equal(day1) {
		t.Fatalf("record not completed at clock time: %+v", done)
	}
	e, err := f.journal.EntryByTransaction(ctx, ledger.TransactionVariance, done.ID)
	if err != nil {
		t.Fatalf("variance entry: %v", err)
	}
	if !lineFor(t, e, dictionary.OperatingExpenses).Debit.Amount.Equal(dec("5")) ||
		!lineFor(t, e, dictionary.Cash).Credit.Amount.Equal(dec("5")) {
		t.Fatalf("unexpected variance lines: %+v", e.Lines)
	}
	if done.VarianceEntryID != e.ID {
		t.Fatalf("record should reference entry %s, got %s", e.ID, done.VarianceEntryID)
	}
}

func TestCompleteTwiceFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	in := CompleteInput{ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("100")}
	if _, err := f.eod.CompleteEOD(ctx, in); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	_, err := f.eod.CompleteEOD(ctx, in)
	var ace *errs.AlreadyCompletedError
	if !errors.As(err, &ace) || !errors.Is(err, errs.ErrImmutable) {
		t.Fatalf("expected AlreadyCompletedError, got %v", err)
	}
	f.sale(t, "late", "10", day1)
	rec, err := f.eod.GetOrCreateToday(ctx, "u1", "shop-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.CashSales.IsZero() {
		t.Fatalf("completed record must not be refreshed, cash sales %s", rec.CashSales)
	}
}

func TestPreviousDayMustBeCompleted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if _, err := f.eod.GetOrCreateToday(ctx, "u1", "shop-1"); err != nil {
		t.Fatalf("open day 1: %v", err)
	}
	f.clock = day1.AddDate(0, 0, 1)
	_, err := f.eod.CompleteEOD(ctx, CompleteInput{ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("100")})
	var pde *errs.PreviousDayIncompleteError
	if !errors.As(err, &pde) || pde.Date != "2024-03-01" {
		t.Fatalf("expected PreviousDayIncompleteError for 2024-03-01, got %v", err)
	}
	// another user has no history, so their first day passes
	if _, err := f.eod.CompleteEOD(ctx, CompleteInput{ShopID: "shop-1", UserID: "u2", ActualCashCount: dec("100")}); err != nil {
		t.Fatalf("first day for u2: %v", err)
	}
}

func TestVarianceNeedsExplanation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   []string
	}{
		{"missing", nil},
		{"unknown", []string{"aliens"}},
		{"two", []string{"other", "counting_error"}},
	}
	for _, tc := range cases {
		_, err := f.eod.CompleteEOD(ctx, CompleteInput{ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("90"), Explanations: tc.in})
		if !errors.Is(err, errs.ErrInvalid) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
	if _, err := f.eod.CompleteEOD(ctx, CompleteInput{ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("-1")}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("negative count should be invalid, got %v", err)
	}
}

func TestChangeOwedUsesReceivable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	done, err := f.eod.CompleteEOD(ctx, CompleteInput{ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("97"), Explanations: []string{"Change Owed"}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(done.VarianceExplanations) != 1 || done.VarianceExplanations[0] != ledger.ExplainChangeOwed {
		t.Fatalf("explanation not normalised: %v", done.VarianceExplanations)
	}
	e, err := f.journal.EntryByTransaction(ctx, ledger.TransactionVariance, done.ID)
	if err != nil {
		t.Fatalf("variance entry: %v", err)
	}
	if !lineFor(t, e, dictionary.AccountsReceivable).Debit.Amount.Equal(dec("3")) {
		t.Fatalf("unexpected lines: %+v", e.Lines)
	}
}

func TestSurrenderCarriesIntoNextOpening(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	bad := CompleteInput{ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("100"), SurrenderAmount: dec("60"), SurrenderMethod: "bank_deposit"}
	if _, err := f.eod.CompleteEOD(ctx, bad); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("missing reference should be invalid, got %v", err)
	}
	bad.SurrenderReference = "dep-1"
	bad.SurrenderAmount = dec("150")
	if _, err := f.eod.CompleteEOD(ctx, bad); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("surrender above count should be invalid, got %v", err)
	}

	done, err := f.eod.CompleteEOD(ctx, CompleteInput{
		ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("100"),
		SurrenderAmount: dec("60"), SurrenderMethod: "Bank Deposit", SurrenderReference: "dep-1",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.SurrenderMethod != ledger.SurrenderBankDeposit || !done.CashSurrendered.Equal(dec("60")) {
		t.Fatalf("surrender not recorded: %+v", done)
	}
	e, err := f.journal.EntryByTransaction(ctx, ledger.TransactionSurrender, done.ID)
	if err != nil {
		t.Fatalf("surrender entry: %v", err)
	}
	if !lineFor(t, e, dictionary.Bank).Debit.Amount.Equal(dec("60")) {
		t.Fatalf("unexpected lines: %+v", e.Lines)
	}

	f.clock = day1.AddDate(0, 0, 1)
	next, err := f.eod.GetOrCreateToday(ctx, "u1", "shop-1")
	if err != nil {
		t.Fatalf("next day: %v", err)
	}
	if !next.OpeningBalance.Equal(dec("40")) {
		t.Fatalf("opening should be 100-60, got %s", next.OpeningBalance)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.clock = day1.AddDate(0, 0, i)
		if _, err := f.eod.CompleteEOD(ctx, CompleteInput{ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("100")}); err != nil {
			t.Fatalf("day %d: %v", i, err)
		}
	}
	hist, err := f.eod.History(ctx, "u1", "shop-1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].Date != "2024-03-03" || hist[1].Date != "2024-03-02" {
		t.Fatalf("unexpected history: %v, %v", hist[0].Date, hist[len(hist)-1].Date)
	}
}

type flakySurrender struct {
	journal.Service
	fail bool
}

func (f *flakySurrender) CreateSurrenderEntry(ctx context.Context, in journal.SurrenderInput) (ledger.Entry, error) {
	if f.fail {
		return ledger.Entry{}, errors.New("store unavailable")
	}
	return f.Service.CreateSurrenderEntry(ctx, in)
}

func TestRetryAfterPartialCloseMustRepeatTheCount(t *testing.T) {
	store := memory.New()
	provider := settings.Static{Settings: settings.Settings{BaseCurrency: "USD"}}
	j := &flakySurrender{Service: journal.New(store, provider, journal.Options{Logger: testLogger()}), fail: true}
	r := New(store, j, provider, Options{Logger: testLogger(), OpeningFloat: dec("100")})
	r.WithNow(func() time.Time { return day1 })
	ctx := context.Background()

	in := CompleteInput{
		ShopID: "shop-1", UserID: "u1", ActualCashCount: dec("95"), Explanations: []string{"unexplained"},
		SurrenderAmount: dec("50"), SurrenderMethod: "bank_deposit", SurrenderReference: "dep-1",
	}
	if _, err := r.CompleteEOD(ctx, in); err == nil {
		t.Fatalf("expected the surrender failure to surface")
	}
	posted, err := j.EntryByTransaction(ctx, ledger.TransactionVariance, RecordID("shop-1", "u1", "2024-03-01"))
	if err != nil {
		t.Fatalf("variance entry from the first attempt: %v", err)
	}
	j.fail = false

	recount := in
	recount.ActualCashCount = dec("97")
	if _, err := r.CompleteEOD(ctx, recount); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("different shortage should conflict, got %v", err)
	}
	balanced := in
	balanced.ActualCashCount = dec("100")
	balanced.Explanations = nil
	if _, err := r.CompleteEOD(ctx, balanced); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("dropping the posted variance should conflict, got %v", err)
	}

	done, err := r.CompleteEOD(ctx, in)
	if err != nil {
		t.Fatalf("identical retry: %v", err)
	}
	if done.Status != ledger.EODCompleted || !done.Variance.Equal(dec("-5")) || done.VarianceEntryID != posted.ID {
		t.Fatalf("unexpected record after retry: %+v", done)
	}
	if done.SurrenderEntryID == "" || !done.CashSurrendered.Equal(dec("50")) {
		t.Fatalf("surrender missing after retry: %+v", done)
	}
}
