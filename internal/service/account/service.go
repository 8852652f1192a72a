// Package account serves the fixed chart of accounts and per-account
// balances. The chart is reference data: accounts are never created,
// renamed or deactivated at runtime.
package account

import (
    "context"
    "time"

    "github.com/shopspring/decimal"

    "github.com/tinoosan/tillbook/internal/dictionary"
    "github.com/tinoosan/tillbook/internal/errs"
    "github.com/tinoosan/tillbook/internal/ledger"
    "github.com/tinoosan/tillbook/internal/service/journal"
    "github.com/tinoosan/tillbook/internal/slug"
)

// Balances is the slice of the journal the service reads.
type Balances interface {
    GetAccountHistory(ctx context.Context, accountCode string, start, end time.Time, shopID string) (ledger.AccountHistory, error)
}

var _ Balances = journal.Service(nil)

type Service interface {
    List(t *ledger.AccountType) []ledger.Account
    Get(code string) (ledger.Account, error)
    Balance(ctx context.Context, code, shopID string, asOf time.Time) (Balance, error)
}

// Balance is signed in the account's natural direction, in base currency.
type Balance struct {
    Account  ledger.Account  `json:"account"`
    ShopID   string          `json:"shop_id,omitempty"`
    AsOf     time.Time       `json:"as_of,omitempty"`
    Currency string          `json:"currency"`
    Amount   decimal.Decimal `json:"amount"`
}

type service struct {
    balances Balances
}

func New(balances Balances) Service { return &service{balances: balances} }

func (s *service) List(t *ledger.AccountType) []ledger.Account { return dictionary.Accounts(t) }

func (s *service) Get(code string) (ledger.Account, error) {
    a, ok := dictionary.Lookup(code)
    if !ok { return ledger.Account{}, errs.ErrNotFound }
    return a, nil
}

// Balance folds the account's history up to asOf; a zero asOf means all time.
func (s *service) Balance(ctx context.Context, code, shopID string, asOf time.Time) (Balance, error) {
    a, err := s.Get(code)
    if err != nil { return Balance{}, err }
    h, err := s.balances.GetAccountHistory(ctx, code, time.Time{}, asOf, shopID)
    if err != nil { return Balance{}, err }
    return Balance{Account: a, ShopID: shopID, AsOf: asOf, Currency: h.Currency, Amount: h.ClosingBalance}, nil
}

// ParseType accepts "Asset", "asset" or "" (no filter).
func ParseType(raw string) (*ledger.AccountType, error) {
    if raw == "" { return nil, nil }
    t := ledger.AccountType(slug.Slugify(raw))
    switch t {
    case ledger.AccountTypeAsset, ledger.AccountTypeLiability, ledger.AccountTypeEquity, ledger.AccountTypeRevenue, ledger.AccountTypeExpense:
        return &t, nil
    }
    return nil, errs.Invalid("type", "unknown account type "+raw)
}
