package journal

import (
    "context"
    "errors"
    "io"
    "log/slog"
    "testing"
    "time"

    "github.com/shopspring/decimal"

    "github.com/tinoosan/tillbook/internal/dictionary"
    "github.com/tinoosan/tillbook/internal/docstore"
    "github.com/tinoosan/tillbook/internal/errs"
    "github.com/tinoosan/tillbook/internal/ledger"
    "github.com/tinoosan/tillbook/internal/money"
    "github.com/tinoosan/tillbook/internal/settings"
    "github.com/tinoosan/tillbook/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func setup(t *testing.T) (Service, *memory.Store) {
    t.Helper()
    store := memory.New()
    provider := settings.Static{Settings: settings.Settings{
        BaseCurrency:  "USD",
        ExchangeRates: map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.5")},
    }}
    return New(store, provider, Options{Logger: testLogger()}), store
}

func usd(s string) money.Value { return money.MustNew(s, "USD", "1") }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustSale(t *testing.T, svc Service, id, total, cost string, pm ledger.PaymentMethod, at time.Time) ledger.Entry {
    t.Helper()
    e, err := svc.CreateSaleEntry(context.Background(), SaleInput{
        SaleID: id, Total: usd(total), CostOfGoods: usd(cost), PaymentMethod: pm,
        Timestamp: at, ShopID: "shop-1", UserID: "u1",
    })
    if err != nil {
        t.Fatalf("sale %s: %v", id, err)
    }
    return e
}

func lineFor(t *testing.T, e ledger.Entry, code string) ledger.Line {
    t.Helper()
    for _, l := range e.Lines {
        if l.AccountCode == code {
            return l
        }
    }
    t.Fatalf("entry %s has no line for %s: %+v", e.TransactionID, code, e.Lines)
    return ledger.Line{}
}

func TestSaleEntryAndTrialBalance(t *testing.T) {
    svc, _ := setup(t)
    e := mustSale(t, svc, "sale-1", "100", "60", ledger.PaymentCash, t0)
    if len(e.Lines) != 4 {
        t.Fatalf("expected 4 lines, got %d", len(e.Lines))
    }
    if !lineFor(t, e, dictionary.Cash).Debit.Amount.Equal(dec("100")) ||
        !lineFor(t, e, dictionary.SalesRevenue).Credit.Amount.Equal(dec("100")) ||
        !lineFor(t, e, dictionary.CostOfGoodsSold).Debit.Amount.Equal(dec("60")) ||
        !lineFor(t, e, dictionary.Inventory).Credit.Amount.Equal(dec("60")) {
        t.Fatalf("unexpected sale lines: %+v", e.Lines)
    }

    tb, err := svc.GenerateTrialBalance(context.Background(), time.Time{}, time.Time{}, "shop-1")
    if err != nil {
        t.Fatalf("trial balance: %v", err)
    }
    if !tb.Balanced() || !tb.TotalDebits.Equal(dec("160")) {
        t.Fatalf("trial balance not balanced: %s vs %s", tb.TotalDebits, tb.TotalCredits)
    }
    cash, _ := tb.Row(dictionary.Cash)
    inv, _ := tb.Row(dictionary.Inventory)
    if !cash.Net.Equal(dec("100")) || !inv.Net.Equal(dec("-60")) {
        t.Fatalf("cash net %s inventory net %s", cash.Net, inv.Net)
    }
}

func TestSaleOnCreditAndZeroCost(t *testing.T) {
    svc, _ := setup(t)
    e := mustSale(t, svc, "sale-2", "40", "0", ledger.PaymentCredit, t0)
    if len(e.Lines) != 2 {
        t.Fatalf("zero cost should omit the COGS pair, got %d lines", len(e.Lines))
    }
    lineFor(t, e, dictionary.AccountsReceivable)
}

func TestPostEntryRejectsUnbalanced(t *testing.T) {
    svc, store := setup(t)
    _, err := svc.PostEntry(context.Background(), EntryInput{
        TransactionID: "bad-1", TransactionType: ledger.TransactionCashAdjustment, ShopID: "shop-1", Timestamp: t0,
        Lines: []ledger.Line{
            ledger.DebitLine(dictionary.Cash, "", usd("10")),
            ledger.CreditLine(dictionary.MiscellaneousRevenue, "", usd("9.9998")),
        },
    })
    var ue *errs.UnbalancedEntryError
    if !errors.As(err, &ue) {
        t.Fatalf("expected UnbalancedEntryError, got %v", err)
    }
    docs, _ := store.Find(context.Background(), docstore.Selector{Kind: docstore.KindEntry})
    if len(docs) != 0 {
        t.Fatalf("unbalanced entry was persisted")
    }
}

func TestPostEntryToleratesEpsilonAndConvertsCurrencies(t *testing.T) {
    svc, _ := setup(t)
    ctx := context.Background()
    _, err := svc.PostEntry(ctx, EntryInput{
        TransactionID: "eps-1", TransactionType: ledger.TransactionCashAdjustment, ShopID: "shop-1", Timestamp: t0,
        Lines: []ledger.Line{
            ledger.DebitLine(dictionary.Cash, "", usd("10")),
            ledger.CreditLine(dictionary.MiscellaneousRevenue, "", usd("9.99995")),
        },
    })
    if err != nil {
        t.Fatalf("difference within epsilon should post: %v", err)
    }
    // 50 EUR at 0.5 EUR per USD is 100 USD
    _, err = svc.PostEntry(ctx, EntryInput{
        TransactionID: "fx-1", TransactionType: ledger.TransactionPurchase, ShopID: "shop-1", Timestamp: t0,
        Lines: []ledger.Line{
            ledger.DebitLine(dictionary.Inventory, "", money.MustNew("50", "EUR", "0.5")),
            ledger.CreditLine(dictionary.Cash, "", usd("100")),
        },
    })
    if err != nil {
        t.Fatalf("cross-currency entry should balance in base: %v", err)
    }
}

func TestPostEntryValidatesLines(t *testing.T) {
    svc, _ := setup(t)
    ctx := context.Background()
    cases := map[string][]ledger.Line{
        "unknown account": {ledger.DebitLine("9999", "", usd("1")), ledger.CreditLine(dictionary.Cash, "", usd("1"))},
        "both sides":      {{AccountCode: dictionary.Cash, Debit: usd("1"), Credit: usd("1")}},
        "negative":        {ledger.DebitLine(dictionary.Cash, "", usd("-1")), ledger.CreditLine(dictionary.Bank, "", usd("-1"))},
        "no lines":        nil,
    }
    for name, lines := range cases {
        _, err := svc.PostEntry(ctx, EntryInput{TransactionID: name, TransactionType: ledger.TransactionCashAdjustment, ShopID: "shop-1", Lines: lines})
        if !errors.Is(err, errs.ErrInvalid) {
            t.Fatalf("%s: expected validation error, got %v", name, err)
        }
    }
}

func TestPostEntryIsIdempotentByTransaction(t *testing.T) {
    svc, store := setup(t)
    first := mustSale(t, svc, "sale-3", "10", "4", ledger.PaymentCash, t0)
    second := mustSale(t, svc, "sale-3", "10", "4", ledger.PaymentCash, t0.Add(time.Hour))
    if first.ID != second.ID || !second.Timestamp.Equal(first.Timestamp) {
        t.Fatalf("repost should return the stored entry: %+v vs %+v", first, second)
    }
    docs, _ := store.Find(context.Background(), docstore.Selector{Kind: docstore.KindEntry})
    if len(docs) != 1 {
        t.Fatalf("expected a single stored entry, got %d", len(docs))
    }
    got, err := svc.EntryByTransaction(context.Background(), ledger.TransactionSale, "sale-3")
    if err != nil || got.ID != first.ID {
        t.Fatalf("lookup by transaction: %v", err)
    }
}

func TestRepostWithDifferentLinesConflicts(t *testing.T) {
    svc, store := setup(t)
    ctx := context.Background()
    first := mustSale(t, svc, "sale-4", "10", "4", ledger.PaymentCash, t0)
    _, err := svc.CreateSaleEntry(ctx, SaleInput{
        SaleID: "sale-4", Total: usd("12"), CostOfGoods: usd("4"), PaymentMethod: ledger.PaymentCash,
        Timestamp: t0, ShopID: "shop-1", UserID: "u1",
    })
    var mismatch *errs.EntryMismatchError
    if !errors.As(err, &mismatch) || !errors.Is(err, errs.ErrConflict) {
        t.Fatalf("expected EntryMismatchError, got %v", err)
    }
    if mismatch.EntryID != first.ID {
        t.Fatalf("mismatch should name %s, got %s", first.ID, mismatch.EntryID)
    }
    got, err := svc.EntryByTransaction(ctx, ledger.TransactionSale, "sale-4")
    if err != nil || !lineFor(t, got, dictionary.Cash).Debit.Amount.Equal(dec("10")) {
        t.Fatalf("stored entry must be untouched: %+v %v", got, err)
    }
    if again := mustSale(t, svc, "sale-4", "10", "4", ledger.PaymentCash, t0); again.ID != first.ID {
        t.Fatalf("identical repost should still succeed")
    }
    docs, _ := store.Find(ctx, docstore.Selector{Kind: docstore.KindEntry})
    if len(docs) != 1 {
        t.Fatalf("expected a single stored entry, got %d", len(docs))
    }
}

func TestPurchaseEntry(t *testing.T) {
    svc, _ := setup(t)
    e, err := svc.CreatePurchaseEntry(context.Background(), PurchaseInput{
        PurchaseID: "po-1", Total: usd("50"), PaymentMethod: ledger.PaymentCredit, Timestamp: t0, ShopID: "shop-1", UserID: "u1",
    })
    if err != nil {
        t.Fatalf("purchase: %v", err)
    }
    if !lineFor(t, e, dictionary.Inventory).Debit.Amount.Equal(dec("50")) || !lineFor(t, e, dictionary.AccountsPayable).Credit.Amount.Equal(dec("50")) {
        t.Fatalf("unexpected purchase lines %+v", e.Lines)
    }
    if _, err := svc.CreatePurchaseEntry(context.Background(), PurchaseInput{PurchaseID: "po-2", Total: usd("5"), PaymentMethod: "barter", ShopID: "shop-1", UserID: "u1"}); !errors.Is(err, errs.ErrInvalid) {
        t.Fatalf("unknown payment method should be invalid, got %v", err)
    }
}

func TestCashAdjustment(t *testing.T) {
    svc, _ := setup(t)
    ctx := context.Background()
    none, err := svc.CreateCashAdjustmentEntry(ctx, CashAdjustmentInput{AdjustmentID: "adj-0", Physical: usd("100.00005"), Expected: usd("100"), ShopID: "shop-1", UserID: "u1"})
    if err != nil || none != nil {
        t.Fatalf("difference below epsilon should not post: %+v %v", none, err)
    }
    short, err := svc.CreateCashAdjustmentEntry(ctx, CashAdjustmentInput{AdjustmentID: "adj-1", Physical: usd("95"), Expected: usd("100"), ShopID: "shop-1", UserID: "u1", Timestamp: t0})
    if err != nil || short == nil {
        t.Fatalf("shortage: %v", err)
    }
    if !lineFor(t, *short, dictionary.OperatingExpenses).Debit.Amount.Equal(dec("5")) || !lineFor(t, *short, dictionary.Cash).Credit.Amount.Equal(dec("5")) {
        t.Fatalf("unexpected shortage lines %+v", short.Lines)
    }
    over, err := svc.CreateCashAdjustmentEntry(ctx, CashAdjustmentInput{AdjustmentID: "adj-2", Physical: usd("103"), Expected: usd("100"), ShopID: "shop-1", UserID: "u1", Timestamp: t0})
    if err != nil || over == nil {
        t.Fatalf("surplus: %v", err)
    }
    if !lineFor(t, *over, dictionary.Cash).Debit.Amount.Equal(dec("3")) || !lineFor(t, *over, dictionary.MiscellaneousRevenue).Credit.Amount.Equal(dec("3")) {
        t.Fatalf("unexpected surplus lines %+v", over.Lines)
    }
}

func TestVarianceEntryExplanations(t *testing.T) {
    svc, _ := setup(t)
    ctx := context.Background()
    cases := []struct {
        name        string
        variance    string
        explanation ledger.VarianceExplanation
        debit       string
        credit      string
    }{
        {"unexplained shortage", "-5", ledger.ExplainUnexplained, dictionary.OperatingExpenses, dictionary.Cash},
        {"change owed shortage", "-2", ledger.ExplainChangeOwed, dictionary.AccountsReceivable, dictionary.Cash},
        {"deposit surplus", "20", ledger.ExplainDepositReceived, dictionary.Cash, dictionary.SalesRevenue},
        {"unexplained surplus", "1.5", "", dictionary.Cash, dictionary.MiscellaneousRevenue},
        {"change owed surplus", "3", ledger.ExplainChangeOwed, dictionary.Cash, dictionary.MiscellaneousRevenue},
        {"counting error shortage", "-1", ledger.ExplainCountingError, dictionary.OperatingExpenses, dictionary.Cash},
    }
    for _, tc := range cases {
        e, err := svc.CreateVarianceEntry(ctx, VarianceInput{RecordID: tc.name, Variance: usd(tc.variance), Explanation: tc.explanation, ShopID: "shop-1", UserID: "u1", Timestamp: t0})
        if err != nil || e == nil {
            t.Fatalf("%s: %v", tc.name, err)
        }
        amt := dec(tc.variance).Abs()
        if !lineFor(t, *e, tc.debit).Debit.Amount.Equal(amt) || !lineFor(t, *e, tc.credit).Credit.Amount.Equal(amt) {
            t.Fatalf("%s: unexpected lines %+v", tc.name, e.Lines)
        }
    }
    if _, err := svc.CreateVarianceEntry(ctx, VarianceInput{RecordID: "x", Variance: usd("-1"), Explanation: "ghosts", ShopID: "shop-1", UserID: "u1"}); !errors.Is(err, errs.ErrInvalid) {
        t.Fatalf("unknown explanation should be invalid, got %v", err)
    }
}

func TestSurrenderDestinations(t *testing.T) {
    svc, _ := setup(t)
    ctx := context.Background()
    for method, dest := range map[ledger.SurrenderMethod]string{
        ledger.SurrenderBankDeposit:    dictionary.Bank,
        ledger.SurrenderOwnerDrawing:   dictionary.OwnerDrawings,
        ledger.SurrenderCashRelocation: dictionary.CashReserve,
    } {
        e, err := svc.CreateSurrenderEntry(ctx, SurrenderInput{RecordID: "eod-" + string(method), Amount: usd("80"), Method: method, Reference: "DEP-1", ShopID: "shop-1", UserID: "u1", Timestamp: t0})
        if err != nil {
            t.Fatalf("%s: %v", method, err)
        }
        if !lineFor(t, e, dest).Debit.Amount.Equal(dec("80")) || !lineFor(t, e, dictionary.Cash).Credit.Amount.Equal(dec("80")) {
            t.Fatalf("%s: unexpected lines %+v", method, e.Lines)
        }
    }
    if _, err := svc.CreateSurrenderEntry(ctx, SurrenderInput{RecordID: "eod-x", Amount: usd("1"), Method: ledger.SurrenderBankDeposit, ShopID: "shop-1", UserID: "u1"}); !errors.Is(err, errs.ErrInvalid) {
        t.Fatalf("missing reference should be invalid, got %v", err)
    }
}

func TestAccountHistoryRunningBalance(t *testing.T) {
    svc, _ := setup(t)
    ctx := context.Background()
    if _, err := svc.CreateOpeningBalanceEntry(ctx, OpeningBalanceInput{OpeningID: "open-1", Amount: usd("100"), ShopID: "shop-1", UserID: "u1", Timestamp: t0.Add(-24 * time.Hour)}); err != nil {
        t.Fatalf("opening: %v", err)
    }
    mustSale(t, svc, "s-1", "30", "10", ledger.PaymentCash, t0)
    if _, err := svc.CreatePurchaseEntry(ctx, PurchaseInput{PurchaseID: "p-1", Total: usd("12"), PaymentMethod: ledger.PaymentCash, ShopID: "shop-1", UserID: "u1", Timestamp: t0.Add(time.Hour)}); err != nil {
        t.Fatalf("purchase: %v", err)
    }
    h, err := svc.GetAccountHistory(ctx, dictionary.Cash, t0, t0.Add(24*time.Hour), "shop-1")
    if err != nil {
        t.Fatalf("history: %v", err)
    }
    if !h.OpeningBalance.Equal(dec("100")) || len(h.Rows) != 2 {
        t.Fatalf("unexpected history %+v", h)
    }
    if !h.Rows[0].Balance.Equal(dec("130")) || !h.Rows[1].Balance.Equal(dec("118")) || !h.ClosingBalance.Equal(dec("118")) {
        t.Fatalf("running balance wrong: %s %s", h.Rows[0].Balance, h.Rows[1].Balance)
    }
    rev, err := svc.GetAccountHistory(ctx, dictionary.SalesRevenue, time.Time{}, time.Time{}, "shop-1")
    if err != nil || !rev.ClosingBalance.Equal(dec("30")) {
        t.Fatalf("revenue history should be credit-positive: %+v %v", rev, err)
    }
    if _, err := svc.GetAccountHistory(ctx, "nope", time.Time{}, time.Time{}, ""); !errors.Is(err, errs.ErrNotFound) {
        t.Fatalf("unknown account should be not found, got %v", err)
    }
}

func TestDailyCashTotals(t *testing.T) {
    svc, _ := setup(t)
    ctx := context.Background()
    mustSale(t, svc, "d-1", "200", "0", ledger.PaymentCash, t0)
    mustSale(t, svc, "d-2", "75", "0", ledger.PaymentCredit, t0)
    mustSale(t, svc, "d-3", "999", "0", ledger.PaymentCash, t0.Add(48*time.Hour))
    if _, err := svc.CreatePurchaseEntry(ctx, PurchaseInput{PurchaseID: "dp-1", Total: usd("50"), PaymentMethod: ledger.PaymentCash, ShopID: "shop-1", UserID: "u1", Timestamp: t0}); err != nil {
        t.Fatalf("purchase: %v", err)
    }
    totals, err := svc.DailyCashTotals(ctx, "shop-1", "u1", "2024-03-01")
    if err != nil {
        t.Fatalf("totals: %v", err)
    }
    if !totals.Sales.Equal(dec("200")) || !totals.Purchases.Equal(dec("50")) {
        t.Fatalf("unexpected totals %+v", totals)
    }
    other, _ := svc.DailyCashTotals(ctx, "shop-1", "someone-else", "2024-03-01")
    if !other.Sales.IsZero() {
        t.Fatalf("totals should be per user")
    }
}

func TestMissingSettings(t *testing.T) {
    svc := New(memory.New(), settings.Static{}, Options{Logger: testLogger()})
    _, err := svc.CreateSaleEntry(context.Background(), SaleInput{SaleID: "s", Total: usd("1"), PaymentMethod: ledger.PaymentCash, ShopID: "shop-1", UserID: "u1"})
    if !errors.Is(err, errs.ErrMissingSettings) {
        t.Fatalf("expected missing settings, got %v", err)
    }
}
