package ledger

import (
    "time"

    "github.com/shopspring/decimal"
    "github.com/tinoosan/tillbook/internal/meta"
    "github.com/tinoosan/tillbook/internal/money"
)

// Epsilon is the largest base-currency difference tolerated between an
// entry's debits and credits.
var Epsilon = decimal.RequireFromString("0.0001")

// AccountType enumerates the broad classification of an account in the ledger.
type AccountType string

const (
    // AccountTypeAsset increases on the debit side and holds resources owned by the shop.
    AccountTypeAsset AccountType = "asset"
    // AccountTypeLiability increases on the credit side and tracks obligations.
    AccountTypeLiability AccountType = "liability"
    // AccountTypeEquity captures the owner's residual interest in the shop.
    AccountTypeEquity AccountType = "equity"
    // AccountTypeRevenue represents inflows that increase equity.
    AccountTypeRevenue AccountType = "revenue"
    // AccountTypeExpense represents outflows that decrease equity.
    AccountTypeExpense AccountType = "expense"
)

// DebitNormal reports whether balances of this type grow on the debit side.
func (t AccountType) DebitNormal() bool {
    return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account is read-only reference data from the fixed chart of accounts.
type Account struct {
    Code string      `json:"code"`
    Name string      `json:"name"`
    Type AccountType `json:"type"`
}

// TransactionType identifies the builder that produced an entry.
type TransactionType string

const (
    TransactionSale           TransactionType = "sale"
    TransactionPurchase       TransactionType = "purchase"
    TransactionOpeningBalance TransactionType = "opening_balance"
    TransactionCashAdjustment TransactionType = "cash_adjustment"
    TransactionVariance       TransactionType = "eod_variance"
    TransactionSurrender      TransactionType = "cash_surrender"
)

// EntryStatus is always posted; entries are never edited once written.
type EntryStatus string

const EntryPosted EntryStatus = "posted"

// PaymentMethod selects the settlement account of a sale or purchase.
type PaymentMethod string

const (
    // PaymentCash settles through the till.
    PaymentCash PaymentMethod = "cash"
    // PaymentCredit settles later: receivable on sales, payable on purchases.
    PaymentCredit PaymentMethod = "credit"
)

func (p PaymentMethod) Valid() bool { return p == PaymentCash || p == PaymentCredit }

// Entry is an append-only, balanced set of lines.
type Entry struct {
    ID              string          `json:"id"`
    TransactionID   string          `json:"transaction_id"`
    TransactionType TransactionType `json:"transaction_type"`
    Timestamp       time.Time       `json:"timestamp"`
    // PostingDate is the shop-local calendar day, formatted YYYY-MM-DD.
    PostingDate string        `json:"posting_date"`
    Lines       []Line        `json:"lines"`
    Status      EntryStatus   `json:"status"`
    ShopID      string        `json:"shop_id"`
    CreatedBy   string        `json:"created_by"`
    Metadata    meta.Metadata `json:"metadata,omitempty"`
}

// Line carries both sides so that summation stays uniform; exactly one side
// is non-zero.
type Line struct {
    AccountCode string      `json:"account_code"`
    Description string      `json:"description"`
    Debit       money.Value `json:"debit"`
    Credit      money.Value `json:"credit"`
}

// DebitLine builds a line with v on the debit side and a zero credit in the same snapshot.
func DebitLine(account, description string, v money.Value) Line {
    return Line{AccountCode: account, Description: description, Debit: v, Credit: v.WithAmount(decimal.Zero)}
}

// CreditLine builds a line with v on the credit side and a zero debit in the same snapshot.
func CreditLine(account, description string, v money.Value) Line {
    return Line{AccountCode: account, Description: description, Debit: v.WithAmount(decimal.Zero), Credit: v}
}

// Totals sums the entry's debits and credits in base currency.
func (e Entry) Totals(base string) (debits, credits decimal.Decimal) {
    for _, l := range e.Lines {
        debits = debits.Add(money.Base(l.Debit, base))
        credits = credits.Add(money.Base(l.Credit, base))
    }
    return debits, credits
}

// InventoryLot is a cost layer created by a purchase. Lots with nothing
// remaining are kept for audit.
type InventoryLot struct {
    ID                string          `json:"id"`
    // Seq is a ULID minted at creation; it orders lots received at the same instant.
    Seq               string          `json:"seq"`
    ShopID            string          `json:"shop_id"`
    ProductID         string          `json:"product_id"`
    PurchaseID        string          `json:"purchase_id,omitempty"`
    PurchasedAt       time.Time       `json:"purchased_at"`
    QuantityOriginal  decimal.Decimal `json:"quantity_original"`
    QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
    UnitCost          money.Value     `json:"unit_cost"`
    Supplier          string          `json:"supplier,omitempty"`
}

// LotAllocation records how much of one lot a sale line consumed.
type LotAllocation struct {
    LotID            string          `json:"lot_id"`
    QuantityConsumed decimal.Decimal `json:"quantity_consumed"`
    UnitCost         money.Value     `json:"unit_cost"`
}
