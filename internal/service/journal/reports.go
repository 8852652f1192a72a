package journal

import (
    "context"
    "sort"
    "time"

    "github.com/shopspring/decimal"

    "github.com/tinoosan/tillbook/internal/dictionary"
    "github.com/tinoosan/tillbook/internal/errs"
    "github.com/tinoosan/tillbook/internal/ledger"
    "github.com/tinoosan/tillbook/internal/money"
)

func sortEntries(es []ledger.Entry) {
    sort.SliceStable(es, func(i, j int) bool {
        if es[i].PostingDate != es[j].PostingDate { return es[i].PostingDate < es[j].PostingDate }
        if !es[i].Timestamp.Equal(es[j].Timestamp) { return es[i].Timestamp.Before(es[j].Timestamp) }
        return es[i].ID < es[j].ID
    })
}

type accumulator struct {
    debits, credits decimal.Decimal
}

// GenerateTrialBalance folds every line of the entries timestamped within
// [start, end] into per-account debit and credit totals in base currency.
func (s *service) GenerateTrialBalance(ctx context.Context, start, end time.Time, shopID string) (ledger.TrialBalance, error) {
    if !start.IsZero() && !end.IsZero() && end.Before(start) {
        return ledger.TrialBalance{}, errs.Invalid("end", "must not be before start")
    }
    cfg, err := s.settings.Current(ctx, shopID)
    if err != nil { return ledger.TrialBalance{}, err }
    entries, err := s.ListEntries(ctx, EntryFilter{ShopID: shopID, Start: start, End: end})
    if err != nil { return ledger.TrialBalance{}, err }

    acc := make(map[string]*accumulator)
    for _, e := range entries {
        for _, ln := range e.Lines {
            a := acc[ln.AccountCode]
            if a == nil {
                a = &accumulator{}
                acc[ln.AccountCode] = a
            }
            a.debits = a.debits.Add(money.Base(ln.Debit, cfg.BaseCurrency))
            a.credits = a.credits.Add(money.Base(ln.Credit, cfg.BaseCurrency))
        }
    }

    tb := ledger.TrialBalance{ShopID: shopID, Start: start, End: end, Currency: cfg.BaseCurrency, Rows: make([]ledger.TrialBalanceRow, 0, len(acc))}
    for code, a := range acc {
        account, ok := dictionary.Lookup(code)
        if !ok { account = ledger.Account{Code: code, Name: code} }
        tb.Rows = append(tb.Rows, ledger.TrialBalanceRow{Account: account, Debits: a.debits, Credits: a.credits, Net: a.debits.Sub(a.credits)})
        tb.TotalDebits = tb.TotalDebits.Add(a.debits)
        tb.TotalCredits = tb.TotalCredits.Add(a.credits)
    }
    sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Account.Code < tb.Rows[j].Account.Code })
    if !tb.Balanced() {
        // every posted entry is balanced, so this means a corrupted store
        s.log.Error("trial balance out of balance", "shop_id", shopID, "debits", tb.TotalDebits.String(), "credits", tb.TotalCredits.String())
    }
    return tb, nil
}

// GetAccountHistory lists the account's lines in chronological order with a
// running balance. Lines before start make up the opening balance.
func (s *service) GetAccountHistory(ctx context.Context, accountCode string, start, end time.Time, shopID string) (ledger.AccountHistory, error) {
    account, ok := dictionary.Lookup(accountCode)
    if !ok { return ledger.AccountHistory{}, errs.ErrNotFound }
    cfg, err := s.settings.Current(ctx, shopID)
    if err != nil { return ledger.AccountHistory{}, err }
    entries, err := s.ListEntries(ctx, EntryFilter{ShopID: shopID, End: end})
    if err != nil { return ledger.AccountHistory{}, err }

    h := ledger.AccountHistory{Account: account, ShopID: shopID, Start: start, End: end, Currency: cfg.BaseCurrency, Rows: []ledger.HistoryRow{}}
    debitNormal := account.Type.DebitNormal()
    signed := func(d, c decimal.Decimal) decimal.Decimal {
        if debitNormal { return d.Sub(c) }
        return c.Sub(d)
    }
    balance := decimal.Zero
    for _, e := range entries {
        before := !start.IsZero() && e.Timestamp.Before(start)
        for _, ln := range e.Lines {
            if ln.AccountCode != accountCode { continue }
            d := money.Base(ln.Debit, cfg.BaseCurrency)
            c := money.Base(ln.Credit, cfg.BaseCurrency)
            balance = balance.Add(signed(d, c))
            if before {
                h.OpeningBalance = balance
                continue
            }
            h.Rows = append(h.Rows, ledger.HistoryRow{
                EntryID:         e.ID,
                TransactionID:   e.TransactionID,
                TransactionType: e.TransactionType,
                PostingDate:     e.PostingDate,
                Timestamp:       e.Timestamp,
                Description:     ln.Description,
                Debit:           d,
                Credit:          c,
                Balance:         balance,
            })
        }
    }
    h.ClosingBalance = balance
    return h, nil
}

// CashTotals are the day's till movements in base currency.
type CashTotals struct {
    Currency  string
    Sales     decimal.Decimal
    Purchases decimal.Decimal
}

// DailyCashTotals sums cash received by sales and paid by purchases that the
// user posted on the shop-local day.
func (s *service) DailyCashTotals(ctx context.Context, shopID, userID, day string) (CashTotals, error) {
    if _, err := ledger.ParseDay(day); err != nil { return CashTotals{}, err }
    cfg, err := s.settings.Current(ctx, shopID)
    if err != nil { return CashTotals{}, err }
    entries, err := s.ListEntries(ctx, EntryFilter{ShopID: shopID, PostingDate: day, CreatedBy: userID})
    if err != nil { return CashTotals{}, err }
    out := CashTotals{Currency: cfg.BaseCurrency}
    for _, e := range entries {
        for _, ln := range e.Lines {
            if ln.AccountCode != dictionary.Cash { continue }
            switch e.TransactionType {
            case ledger.TransactionSale:
                out.Sales = out.Sales.Add(money.Base(ln.Debit, cfg.BaseCurrency)).Sub(money.Base(ln.Credit, cfg.BaseCurrency))
            case ledger.TransactionPurchase:
                out.Purchases = out.Purchases.Add(money.Base(ln.Credit, cfg.BaseCurrency)).Sub(money.Base(ln.Debit, cfg.BaseCurrency))
            }
        }
    }
    return out, nil
}
