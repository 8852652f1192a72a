package journal

import (
    "context"
    "time"

    "github.com/tinoosan/tillbook/internal/dictionary"
    "github.com/tinoosan/tillbook/internal/errs"
    "github.com/tinoosan/tillbook/internal/ledger"
    "github.com/tinoosan/tillbook/internal/meta"
    "github.com/tinoosan/tillbook/internal/money"
    "github.com/tinoosan/tillbook/internal/validation"
)

// SaleInput describes a completed sale. CostOfGoods is the FIFO cost of the
// items sold; zero cost omits the COGS pair.
type SaleInput struct {
    SaleID        string               `json:"sale_id" validate:"required"`
    Total         money.Value          `json:"total"`
    CostOfGoods   money.Value          `json:"cost_of_goods"`
    PaymentMethod ledger.PaymentMethod `json:"payment_method" validate:"oneof=cash credit"`
    Timestamp     time.Time            `json:"timestamp"`
    ShopID        string               `json:"shop_id" validate:"required"`
    UserID        string               `json:"user_id" validate:"required"`
    Metadata      meta.Metadata        `json:"metadata"`
}

// CreateSaleEntry posts Debit Cash|AR / Credit SalesRevenue for the total and
// Debit COGS / Credit Inventory for the cost.
func (s *service) CreateSaleEntry(ctx context.Context, in SaleInput) (ledger.Entry, error) {
    if err := validation.Struct(in); err != nil { return ledger.Entry{}, err }
    if in.Total.Sign() <= 0 { return ledger.Entry{}, errs.Invalid("total", "must be positive") }
    if in.CostOfGoods.Sign() < 0 { return ledger.Entry{}, errs.Invalid("cost_of_goods", "must not be negative") }

    settle := dictionary.Cash
    if in.PaymentMethod == ledger.PaymentCredit { settle = dictionary.AccountsReceivable }
    lines := []ledger.Line{
        ledger.DebitLine(settle, "Sale "+in.SaleID, in.Total),
        ledger.CreditLine(dictionary.SalesRevenue, "Sale "+in.SaleID, in.Total),
    }
    if !in.CostOfGoods.IsZero() {
        lines = append(lines,
            ledger.DebitLine(dictionary.CostOfGoodsSold, "Cost of sale "+in.SaleID, in.CostOfGoods),
            ledger.CreditLine(dictionary.Inventory, "Cost of sale "+in.SaleID, in.CostOfGoods),
        )
    }
    return s.PostEntry(ctx, EntryInput{
        TransactionID:   in.SaleID,
        TransactionType: ledger.TransactionSale,
        Timestamp:       in.Timestamp,
        ShopID:          in.ShopID,
        CreatedBy:       in.UserID,
        Lines:           lines,
        Metadata:        in.Metadata.With(meta.KeyPaymentMethod, string(in.PaymentMethod)),
    })
}

type PurchaseInput struct {
    PurchaseID    string               `json:"purchase_id" validate:"required"`
    Total         money.Value          `json:"total"`
    PaymentMethod ledger.PaymentMethod `json:"payment_method" validate:"oneof=cash credit"`
    Timestamp     time.Time            `json:"timestamp"`
    ShopID        string               `json:"shop_id" validate:"required"`
    UserID        string               `json:"user_id" validate:"required"`
    Metadata      meta.Metadata        `json:"metadata"`
}

// CreatePurchaseEntry posts Debit Inventory / Credit Cash|AP.
func (s *service) CreatePurchaseEntry(ctx context.Context, in PurchaseInput) (ledger.Entry, error) {
    if err := validation.Struct(in); err != nil { return ledger.Entry{}, err }
    if in.Total.Sign() <= 0 { return ledger.Entry{}, errs.Invalid("total", "must be positive") }
    settle := dictionary.Cash
    if in.PaymentMethod == ledger.PaymentCredit { settle = dictionary.AccountsPayable }
    return s.PostEntry(ctx, EntryInput{
        TransactionID:   in.PurchaseID,
        TransactionType: ledger.TransactionPurchase,
        Timestamp:       in.Timestamp,
        ShopID:          in.ShopID,
        CreatedBy:       in.UserID,
        Lines: []ledger.Line{
            ledger.DebitLine(dictionary.Inventory, "Purchase "+in.PurchaseID, in.Total),
            ledger.CreditLine(settle, "Purchase "+in.PurchaseID, in.Total),
        },
        Metadata: in.Metadata.With(meta.KeyPaymentMethod, string(in.PaymentMethod)),
    })
}

type CashAdjustmentInput struct {
    AdjustmentID string        `json:"adjustment_id" validate:"required"`
    Physical     money.Value   `json:"physical_amount"`
    Expected     money.Value   `json:"expected_amount"`
    Timestamp    time.Time     `json:"timestamp"`
    ShopID       string        `json:"shop_id" validate:"required"`
    UserID       string        `json:"user_id" validate:"required"`
    Metadata     meta.Metadata `json:"metadata"`
}

// CreateCashAdjustmentEntry books the difference between a physical count
// and the expected till amount. It returns nil when they agree within Epsilon.
func (s *service) CreateCashAdjustmentEntry(ctx context.Context, in CashAdjustmentInput) (*ledger.Entry, error) {
    if err := validation.Struct(in); err != nil { return nil, err }
    if in.Physical.Sign() < 0 { return nil, errs.Invalid("physical_amount", "must not be negative") }
    cfg, err := s.settings.Current(ctx, in.ShopID)
    if err != nil { return nil, err }
    diff := in.Physical.Sub(in.Expected, cfg.BaseCurrency)
    if diff.Amount.Abs().LessThan(ledger.Epsilon) { return nil, nil }

    amt := diff.Abs()
    var lines []ledger.Line
    if diff.Sign() > 0 {
        lines = []ledger.Line{
            ledger.DebitLine(dictionary.Cash, "Cash count surplus", amt),
            ledger.CreditLine(dictionary.MiscellaneousRevenue, "Cash count surplus", amt),
        }
    } else {
        lines = []ledger.Line{
            ledger.DebitLine(dictionary.OperatingExpenses, "Cash count shortage", amt),
            ledger.CreditLine(dictionary.Cash, "Cash count shortage", amt),
        }
    }
    e, err := s.PostEntry(ctx, EntryInput{
        TransactionID:   in.AdjustmentID,
        TransactionType: ledger.TransactionCashAdjustment,
        Timestamp:       in.Timestamp,
        ShopID:          in.ShopID,
        CreatedBy:       in.UserID,
        Lines:           lines,
        Metadata:        in.Metadata,
    })
    if err != nil { return nil, err }
    return &e, nil
}

// VarianceInput carries a signed EOD variance: negative is a shortage.
type VarianceInput struct {
    RecordID    string                     `json:"record_id" validate:"required"`
    Variance    money.Value                `json:"variance"`
    Explanation ledger.VarianceExplanation `json:"explanation"`
    Timestamp   time.Time                  `json:"timestamp"`
    ShopID      string                     `json:"shop_id" validate:"required"`
    UserID      string                     `json:"user_id" validate:"required"`
    Metadata    meta.Metadata              `json:"metadata"`
}

// CreateVarianceEntry posts an EOD variance. Change still owed to a customer
// turns a shortage into a receivable; an unrung deposit turns a surplus into
// sales revenue. Everything else is an operating expense (shortage) or
// miscellaneous revenue (surplus).
func (s *service) CreateVarianceEntry(ctx context.Context, in VarianceInput) (*ledger.Entry, error) {
    if err := validation.Struct(in); err != nil { return nil, err }
    if in.Explanation == "" { in.Explanation = ledger.ExplainUnexplained }
    if !in.Explanation.Valid() { return nil, errs.Invalid("explanation", "unknown variance explanation "+string(in.Explanation)) }
    if in.Variance.Amount.Abs().LessThan(ledger.Epsilon) { return nil, nil }

    amt := in.Variance.Abs()
    desc := "EOD variance " + in.RecordID
    var lines []ledger.Line
    if in.Variance.Sign() < 0 {
        debit := dictionary.OperatingExpenses
        if in.Explanation == ledger.ExplainChangeOwed { debit = dictionary.AccountsReceivable }
        lines = []ledger.Line{
            ledger.DebitLine(debit, desc, amt),
            ledger.CreditLine(dictionary.Cash, desc, amt),
        }
    } else {
        credit := dictionary.MiscellaneousRevenue
        if in.Explanation == ledger.ExplainDepositReceived { credit = dictionary.SalesRevenue }
        lines = []ledger.Line{
            ledger.DebitLine(dictionary.Cash, desc, amt),
            ledger.CreditLine(credit, desc, amt),
        }
    }
    e, err := s.PostEntry(ctx, EntryInput{
        TransactionID:   in.RecordID,
        TransactionType: ledger.TransactionVariance,
        Timestamp:       in.Timestamp,
        ShopID:          in.ShopID,
        CreatedBy:       in.UserID,
        Lines:           lines,
        Metadata: in.Metadata.
            With(meta.KeySourceRecord, in.RecordID).
            With(meta.KeyVarianceExplanation, string(in.Explanation)),
    })
    if err != nil { return nil, err }
    return &e, nil
}

type SurrenderInput struct {
    RecordID  string                 `json:"record_id" validate:"required"`
    Amount    money.Value            `json:"amount"`
    Method    ledger.SurrenderMethod `json:"method" validate:"required"`
    Reference string                 `json:"reference" validate:"required"`
    Notes     string                 `json:"notes"`
    Timestamp time.Time              `json:"timestamp"`
    ShopID    string                 `json:"shop_id" validate:"required"`
    UserID    string                 `json:"user_id" validate:"required"`
    Metadata  meta.Metadata          `json:"metadata"`
}

// SurrenderAccount maps a surrender method to the account receiving the cash.
func SurrenderAccount(m ledger.SurrenderMethod) (string, bool) {
    switch m {
    case ledger.SurrenderBankDeposit:
        return dictionary.Bank, true
    case ledger.SurrenderOwnerDrawing:
        return dictionary.OwnerDrawings, true
    case ledger.SurrenderCashRelocation:
        return dictionary.CashReserve, true
    }
    return "", false
}

// CreateSurrenderEntry moves cash out of the till: Debit destination / Credit Cash.
func (s *service) CreateSurrenderEntry(ctx context.Context, in SurrenderInput) (ledger.Entry, error) {
    if err := validation.Struct(in); err != nil { return ledger.Entry{}, err }
    if in.Amount.Sign() <= 0 { return ledger.Entry{}, errs.Invalid("amount", "must be positive") }
    dest, ok := SurrenderAccount(in.Method)
    if !ok { return ledger.Entry{}, errs.Invalid("method", "unknown surrender method "+string(in.Method)) }
    desc := "Cash surrender " + in.Reference
    return s.PostEntry(ctx, EntryInput{
        TransactionID:   in.RecordID,
        TransactionType: ledger.TransactionSurrender,
        Timestamp:       in.Timestamp,
        ShopID:          in.ShopID,
        CreatedBy:       in.UserID,
        Lines: []ledger.Line{
            ledger.DebitLine(dest, desc, in.Amount),
            ledger.CreditLine(dictionary.Cash, desc, in.Amount),
        },
        Metadata: in.Metadata.
            With(meta.KeySourceRecord, in.RecordID).
            With(meta.KeySurrenderMethod, string(in.Method)).
            With(meta.KeySurrenderReference, in.Reference).
            With(meta.KeyNotes, in.Notes),
    })
}

type OpeningBalanceInput struct {
    OpeningID string        `json:"opening_id" validate:"required"`
    Amount    money.Value   `json:"amount"`
    Timestamp time.Time     `json:"timestamp"`
    ShopID    string        `json:"shop_id" validate:"required"`
    UserID    string        `json:"user_id" validate:"required"`
    Metadata  meta.Metadata `json:"metadata"`
}

// CreateOpeningBalanceEntry seeds the till float: Debit Cash / Credit OpeningBalance.
func (s *service) CreateOpeningBalanceEntry(ctx context.Context, in OpeningBalanceInput) (ledger.Entry, error) {
    if err := validation.Struct(in); err != nil { return ledger.Entry{}, err }
    if in.Amount.Sign() <= 0 { return ledger.Entry{}, errs.Invalid("amount", "must be positive") }
    return s.PostEntry(ctx, EntryInput{
        TransactionID:   in.OpeningID,
        TransactionType: ledger.TransactionOpeningBalance,
        Timestamp:       in.Timestamp,
        ShopID:          in.ShopID,
        CreatedBy:       in.UserID,
        Lines: []ledger.Line{
            ledger.DebitLine(dictionary.Cash, "Opening float", in.Amount),
            ledger.CreditLine(dictionary.OpeningBalance, "Opening float", in.Amount),
        },
        Metadata: in.Metadata,
    })
}
