package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrialBalanceRow holds one account's totals in base currency.
type TrialBalanceRow struct {
	Account Account         `json:"account"`
	Debits  decimal.Decimal `json:"debits"`
	Credits decimal.Decimal `json:"credits"`
	// Net is debits minus credits; positive means a net debit balance.
	Net decimal.Decimal `json:"net"`
}

type TrialBalance struct {
	ShopID       string            `json:"shop_id,omitempty"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Currency     string            `json:"currency"`
	Rows         []TrialBalanceRow `json:"rows"`
	TotalDebits  decimal.Decimal   `json:"total_debits"`
	TotalCredits decimal.Decimal   `json:"total_credits"`
}

// Balanced reports whether total debits equal total credits within Epsilon.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebits.Sub(tb.TotalCredits).Abs().LessThanOrEqual(Epsilon)
}

// Row returns the row for an account code, if present.
func (tb TrialBalance) Row(code string) (TrialBalanceRow, bool) {
	for _, r := range tb.Rows {
		if r.Account.Code == code {
			return r, true
		}
	}
	return TrialBalanceRow{}, false
}

// HistoryRow is one posted line touching the account, with the balance after it.
type HistoryRow struct {
	EntryID         string          `json:"entry_id"`
	TransactionID   string          `json:"transaction_id"`
	TransactionType TransactionType `json:"transaction_type"`
	PostingDate     string          `json:"posting_date"`
	Timestamp       time.Time       `json:"timestamp"`
	Description     string          `json:"description"`
	Debit           decimal.Decimal `json:"debit"`
	Credit          decimal.Decimal `json:"credit"`
	Balance         decimal.Decimal `json:"balance"`
}

// AccountHistory is signed in the account's natural direction: an asset's
// balance grows with debits, a revenue account's with credits.
type AccountHistory struct {
	Account        Account         `json:"account"`
	ShopID         string          `json:"shop_id,omitempty"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Rows           []HistoryRow    `json:"rows"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}
