package journal

import (
    "context"
    "log/slog"
    "strconv"
    "time"

    "github.com/google/uuid"

    "github.com/tinoosan/tillbook/internal/dictionary"
    "github.com/tinoosan/tillbook/internal/docstore"
    "github.com/tinoosan/tillbook/internal/errs"
    "github.com/tinoosan/tillbook/internal/ledger"
    "github.com/tinoosan/tillbook/internal/meta"
    "github.com/tinoosan/tillbook/internal/metrics"
    "github.com/tinoosan/tillbook/internal/money"
    "github.com/tinoosan/tillbook/internal/settings"
    "github.com/tinoosan/tillbook/internal/validation"
)

// entryNamespace seeds deterministic entry ids derived from transaction ids.
var entryNamespace = uuid.MustParse("6f1c1f1e-2b1a-4d43-9a57-3d2c7b1b9e10")

// Index fields stored alongside entry documents.
const (
    fieldTransactionID   = "transaction_id"
    fieldTransactionType = "transaction_type"
    fieldPostingDate     = "posting_date"
    fieldCreatedBy       = "created_by"
)

// Service is the accounting engine: it posts balanced entries, offers one
// builder per business event, and folds posted entries into reports.
type Service interface {
    PostEntry(ctx context.Context, in EntryInput) (ledger.Entry, error)

    CreateSaleEntry(ctx context.Context, in SaleInput) (ledger.Entry, error)
    CreatePurchaseEntry(ctx context.Context, in PurchaseInput) (ledger.Entry, error)
    CreateCashAdjustmentEntry(ctx context.Context, in CashAdjustmentInput) (*ledger.Entry, error)
    CreateVarianceEntry(ctx context.Context, in VarianceInput) (*ledger.Entry, error)
    CreateSurrenderEntry(ctx context.Context, in SurrenderInput) (ledger.Entry, error)
    CreateOpeningBalanceEntry(ctx context.Context, in OpeningBalanceInput) (ledger.Entry, error)

    EntryByTransaction(ctx context.Context, t ledger.TransactionType, transactionID string) (ledger.Entry, error)
    ListEntries(ctx context.Context, f EntryFilter) ([]ledger.Entry, error)
    GenerateTrialBalance(ctx context.Context, start, end time.Time, shopID string) (ledger.TrialBalance, error)
    GetAccountHistory(ctx context.Context, accountCode string, start, end time.Time, shopID string) (ledger.AccountHistory, error)
    DailyCashTotals(ctx context.Context, shopID, userID, day string) (CashTotals, error)
}

// EntryInput is what every builder hands to PostEntry.
type EntryInput struct {
    TransactionID   string                 `json:"transaction_id" validate:"required"`
    TransactionType ledger.TransactionType `json:"transaction_type" validate:"required"`
    Timestamp       time.Time              `json:"timestamp"`
    ShopID          string                 `json:"shop_id" validate:"required"`
    CreatedBy       string                 `json:"created_by"`
    Lines           []ledger.Line          `json:"lines" validate:"min=1,dive"`
    Metadata        meta.Metadata          `json:"metadata"`
}

// Options tune the engine; the zero value is usable.
type Options struct {
    Logger   *slog.Logger
    Location *time.Location
    Now      func() time.Time
}

type service struct {
    store    docstore.Store
    settings settings.Provider
    log      *slog.Logger
    loc      *time.Location
    now      func() time.Time
}

func New(store docstore.Store, provider settings.Provider, opts Options) Service {
    s := &service{store: store, settings: provider, log: opts.Logger, loc: opts.Location, now: opts.Now}
    if s.log == nil { s.log = slog.Default() }
    if s.loc == nil { s.loc = time.UTC }
    if s.now == nil { s.now = time.Now }
    return s
}

// EntryID is the deterministic id of the entry for a transaction.
func EntryID(t ledger.TransactionType, transactionID string) string {
    return uuid.NewSHA1(entryNamespace, []byte(string(t)+":"+transactionID)).String()
}

func docID(entryID string) string { return "entry:" + entryID }

// PostEntry validates, balance-checks and appends an entry. Posting the same
// (type, transaction id) twice returns the entry stored first, as long as
// the lines match it; different lines are an EntryMismatchError.
func (s *service) PostEntry(ctx context.Context, in EntryInput) (ledger.Entry, error) {
    if err := validation.Struct(in); err != nil {
        metrics.EntriesRejected.WithLabelValues("invalid").Inc()
        return ledger.Entry{}, err
    }
    if err := in.Metadata.Validate(); err != nil {
        metrics.EntriesRejected.WithLabelValues("invalid").Inc()
        return ledger.Entry{}, err
    }
    cfg, err := s.settings.Current(ctx, in.ShopID)
    if err != nil { return ledger.Entry{}, err }

    for i, ln := range in.Lines {
        if err := validateLine(i, ln); err != nil {
            metrics.EntriesRejected.WithLabelValues("invalid").Inc()
            return ledger.Entry{}, err
        }
    }

    ts := in.Timestamp
    if ts.IsZero() { ts = s.now() }
    entry := ledger.Entry{
        ID:              EntryID(in.TransactionType, in.TransactionID),
        TransactionID:   in.TransactionID,
        TransactionType: in.TransactionType,
        Timestamp:       ts.UTC(),
        PostingDate:     ledger.Day(ts, s.loc),
        Lines:           append([]ledger.Line(nil), in.Lines...),
        Status:          ledger.EntryPosted,
        ShopID:          in.ShopID,
        CreatedBy:       in.CreatedBy,
        Metadata:        meta.New(in.Metadata),
    }
    debits, credits := entry.Totals(cfg.BaseCurrency)
    if debits.Sub(credits).Abs().GreaterThan(ledger.Epsilon) {
        metrics.EntriesRejected.WithLabelValues("unbalanced").Inc()
        s.log.Error("unbalanced entry rejected", "transaction_id", in.TransactionID, "type", in.TransactionType, "debits", debits.String(), "credits", credits.String())
        return ledger.Entry{}, &errs.UnbalancedEntryError{TransactionID: in.TransactionID, Debits: debits, Credits: credits}
    }

    doc, err := docstore.Encode(docstore.KindEntry, docID(entry.ID), entry.ShopID, map[string]string{
        fieldTransactionID:   entry.TransactionID,
        fieldTransactionType: string(entry.TransactionType),
        fieldPostingDate:     entry.PostingDate,
        fieldCreatedBy:       entry.CreatedBy,
    }, entry)
    if err != nil { return ledger.Entry{}, err }
    stored, created, err := docstore.Create(ctx, s.store, doc)
    if err != nil { return ledger.Entry{}, err }
    if !created {
        var existing ledger.Entry
        if err := docstore.Decode(stored, &existing); err != nil { return ledger.Entry{}, err }
        if !sameLines(existing.Lines, entry.Lines) {
            metrics.EntriesRejected.WithLabelValues("mismatch").Inc()
            s.log.Warn("repost differs from stored entry", "entry_id", existing.ID, "transaction_id", existing.TransactionID)
            return ledger.Entry{}, &errs.EntryMismatchError{TransactionID: existing.TransactionID, EntryID: existing.ID}
        }
        s.log.Debug("entry already posted", "entry_id", existing.ID, "transaction_id", existing.TransactionID)
        return existing, nil
    }
    metrics.EntriesPosted.WithLabelValues(string(entry.TransactionType)).Inc()
    s.log.Info("entry posted", "entry_id", entry.ID, "type", entry.TransactionType, "transaction_id", entry.TransactionID, "shop_id", entry.ShopID, "amount", debits.StringFixed(2), "currency", cfg.BaseCurrency)
    return entry, nil
}

func validateLine(i int, ln ledger.Line) error {
    if _, ok := dictionary.Lookup(ln.AccountCode); !ok {
        return fieldErr(i, "account_code", "unknown account "+ln.AccountCode)
    }
    if ln.Debit.Sign() < 0 || ln.Credit.Sign() < 0 {
        return fieldErr(i, "amount", "must not be negative")
    }
    if ln.Debit.IsZero() == ln.Credit.IsZero() {
        return fieldErr(i, "amount", "exactly one of debit or credit must be non-zero")
    }
    for _, v := range []money.Value{ln.Debit, ln.Credit} {
        if _, err := money.NormalizeCurrency(v.Currency); err != nil {
            return fieldErr(i, "currency", err.Error())
        }
        if !v.Rate.IsPositive() {
            return fieldErr(i, "exchange_rate", "must be positive")
        }
    }
    return nil
}

func (s *service) EntryByTransaction(ctx context.Context, t ledger.TransactionType, transactionID string) (ledger.Entry, error) {
    doc, err := s.store.Get(ctx, docID(EntryID(t, transactionID)))
    if err != nil { return ledger.Entry{}, err }
    var e ledger.Entry
    if err := docstore.Decode(doc, &e); err != nil { return ledger.Entry{}, err }
    return e, nil
}

// EntryFilter narrows ListEntries. Zero times are open bounds; both bounds
// are inclusive.
type EntryFilter struct {
    ShopID      string
    Start, End  time.Time
    PostingDate string
    CreatedBy   string
    Type        ledger.TransactionType
}

func (f EntryFilter) contains(t time.Time) bool {
    if !f.Start.IsZero() && t.Before(f.Start) { return false }
    if !f.End.IsZero() && t.After(f.End) { return false }
    return true
}

// ListEntries returns matching entries ordered by (PostingDate, Timestamp, ID).
func (s *service) ListEntries(ctx context.Context, f EntryFilter) ([]ledger.Entry, error) {
    fields := map[string]string{}
    if f.PostingDate != "" { fields[fieldPostingDate] = f.PostingDate }
    if f.CreatedBy != "" { fields[fieldCreatedBy] = f.CreatedBy }
    if f.Type != "" { fields[fieldTransactionType] = string(f.Type) }
    docs, err := s.store.Find(ctx, docstore.Selector{Kind: docstore.KindEntry, ShopID: f.ShopID, Fields: fields})
    if err != nil { return nil, err }
    out := make([]ledger.Entry, 0, len(docs))
    for _, d := range docs {
        var e ledger.Entry
        if err := docstore.Decode(d, &e); err != nil { return nil, err }
        if !f.contains(e.Timestamp) { continue }
        out = append(out, e)
    }
    sortEntries(out)
    return out, nil
}

func fieldErr(i int, field, msg string) error {
    return &errs.ValidationError{Field: "lines[" + strconv.Itoa(i) + "]." + field, Reason: msg}
}

// sameLines compares accounts, sides and amounts. Rate snapshots and
// timestamps may legitimately differ between attempts.
func sameLines(a, b []ledger.Line) bool {
    if len(a) != len(b) { return false }
    for i := range a {
        if a[i].AccountCode != b[i].AccountCode { return false }
        if !sameAmount(a[i].Debit, b[i].Debit) || !sameAmount(a[i].Credit, b[i].Credit) { return false }
    }
    return true
}

func sameAmount(a, b money.Value) bool {
    return a.Currency == b.Currency && a.Amount.Equal(b.Amount)
}
