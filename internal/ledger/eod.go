package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type EODStatus string

const (
	EODOpen      EODStatus = "open"
	EODCompleted EODStatus = "completed"
)

// VarianceType classifies actual minus expected cash.
type VarianceType string

const (
	VarianceNone     VarianceType = "none"
	VarianceShortage VarianceType = "shortage"
	VarianceSurplus  VarianceType = "surplus"
)

// VarianceThreshold is the smallest variance that needs an explanation.
var VarianceThreshold = decimal.RequireFromString("0.01")

// ClassifyVariance maps a signed variance to its type using VarianceThreshold.
func ClassifyVariance(v decimal.Decimal) VarianceType {
	switch {
	case v.Abs().LessThan(VarianceThreshold):
		return VarianceNone
	case v.IsNegative():
		return VarianceShortage
	default:
		return VarianceSurplus
	}
}

// VarianceExplanation is the closed set of reasons a cashier may pick.
type VarianceExplanation string

const (
	// ExplainChangeOwed: change still owed to a customer, booked as a receivable.
	ExplainChangeOwed VarianceExplanation = "change_owed"
	// ExplainDepositReceived: an unrung customer deposit, booked as sales revenue.
	ExplainDepositReceived VarianceExplanation = "deposit_received"
	ExplainCountingError   VarianceExplanation = "counting_error"
	ExplainTheftOrLoss     VarianceExplanation = "theft_or_loss"
	ExplainOther           VarianceExplanation = "other"
	// ExplainUnexplained is the explicit "no explanation" selection.
	ExplainUnexplained VarianceExplanation = "unexplained"
)

var explanations = map[VarianceExplanation]struct{}{
	ExplainChangeOwed:      {},
	ExplainDepositReceived: {},
	ExplainCountingError:   {},
	ExplainTheftOrLoss:     {},
	ExplainOther:           {},
	ExplainUnexplained:     {},
}

func (e VarianceExplanation) Valid() bool {
	_, ok := explanations[e]
	return ok
}

// SurrenderMethod says where surrendered cash went.
type SurrenderMethod string

const (
	SurrenderBankDeposit    SurrenderMethod = "bank_deposit"
	SurrenderOwnerDrawing   SurrenderMethod = "owner_drawing"
	SurrenderCashRelocation SurrenderMethod = "cash_relocation"
)

func (m SurrenderMethod) Valid() bool {
	switch m {
	case SurrenderBankDeposit, SurrenderOwnerDrawing, SurrenderCashRelocation:
		return true
	}
	return false
}

// EODRecord is one user's cash close for one shop-local day. Completed
// records are never modified.
type EODRecord struct {
	ID                     string                `json:"id"`
	Date                   string                `json:"date"`
	ShopID                 string                `json:"shop_id"`
	UserID                 string                `json:"user_id"`
	UserName               string                `json:"user_name,omitempty"`
	Currency               string                `json:"currency"`
	OpeningBalance         decimal.Decimal       `json:"opening_balance"`
	CashSales              decimal.Decimal       `json:"cash_sales"`
	CashPurchases          decimal.Decimal       `json:"cash_purchases"`
	ExpectedClosingBalance decimal.Decimal       `json:"expected_closing_balance"`
	ActualCashCount        decimal.Decimal       `json:"actual_cash_count"`
	Variance               decimal.Decimal       `json:"variance"`
	VarianceType           VarianceType          `json:"variance_type"`
	VarianceExplanations   []VarianceExplanation `json:"variance_explanations,omitempty"`
	CashSurrendered        decimal.Decimal       `json:"cash_surrendered"`
	SurrenderMethod        SurrenderMethod       `json:"surrender_method,omitempty"`
	SurrenderReference     string                `json:"surrender_reference,omitempty"`
	SurrenderNotes         string                `json:"surrender_notes,omitempty"`
	Notes                  string                `json:"notes,omitempty"`
	Status                 EODStatus             `json:"status"`
	CompletedAt            *time.Time            `json:"completed_at,omitempty"`
	CreatedBy              string                `json:"created_by,omitempty"`
	VarianceEntryID        string                `json:"variance_entry_id,omitempty"`
	SurrenderEntryID       string                `json:"surrender_entry_id,omitempty"`
}

// ClosingBalance is the cash left in the till for the next day.
func (r EODRecord) ClosingBalance() decimal.Decimal {
	return r.ActualCashCount.Sub(r.CashSurrendered)
}

// TradingDayStatus is derived on demand and never stored.
type TradingDayStatus struct {
	CanTrade        bool   `json:"can_trade"`
	Blocked         bool   `json:"blocked"`
	PreviousDayDate string `json:"previous_day_date,omitempty"`
	// LookupFailed is set when the status came from the lookup-failure policy.
	LookupFailed bool `json:"lookup_failed,omitempty"`
}
