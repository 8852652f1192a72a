// Package eod runs the end-of-day cash close: one record per user, shop and
// shop-local day, moving only from open to completed.
package eod

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/tillbook/internal/docstore"
	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/meta"
	"github.com/tinoosan/tillbook/internal/metrics"
	"github.com/tinoosan/tillbook/internal/service/journal"
	"github.com/tinoosan/tillbook/internal/settings"
	"github.com/tinoosan/tillbook/internal/slug"
	"github.com/tinoosan/tillbook/internal/validation"
)

const (
	fieldUserID = "user_id"
	fieldDate   = "date"
	fieldStatus = "status"
)

type Options struct {
	Logger       *slog.Logger
	Location     *time.Location
	OpeningFloat decimal.Decimal
	Retry        docstore.RetryPolicy
}

// Reconciler owns EOD records. The ledger side goes through the journal so
// variance and surrender postings obey the same balance rules as sales.
type Reconciler struct {
	store    docstore.Store
	journal  journal.Service
	settings settings.Provider
	log      *slog.Logger
	loc      *time.Location
	float    decimal.Decimal
	retry    docstore.RetryPolicy
	now      func() time.Time
}

func New(store docstore.Store, j journal.Service, provider settings.Provider, opts Options) *Reconciler {
	r := &Reconciler{
		store:    store,
		journal:  j,
		settings: provider,
		log:      opts.Logger,
		loc:      opts.Location,
		float:    opts.OpeningFloat,
		retry:    opts.Retry,
		now:      time.Now,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	return r
}

// WithNow overrides the clock for deterministic tests.
func (r *Reconciler) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Today is the shop-local day of the reconciler's clock.
func (r *Reconciler) Today() string { return ledger.Day(r.now(), r.loc) }

func RecordID(shopID, userID, day string) string {
	return "eod:" + shopID + ":" + userID + ":" + day
}

func encodeRecord(rec ledger.EODRecord) (docstore.Document, error) {
	return docstore.Encode(docstore.KindEOD, rec.ID, rec.ShopID, map[string]string{
		fieldUserID: rec.UserID,
		fieldDate:   rec.Date,
		fieldStatus: string(rec.Status),
	}, rec)
}

func decodeRecord(d docstore.Document) (ledger.EODRecord, error) {
	var rec ledger.EODRecord
	err := docstore.Decode(d, &rec)
	return rec, err
}

// records returns every record of the user in the shop, oldest day first.
func (r *Reconciler) records(ctx context.Context, userID, shopID string) ([]ledger.EODRecord, error) {
	docs, err := r.store.Find(ctx, docstore.Selector{Kind: docstore.KindEOD, ShopID: shopID, Fields: map[string]string{fieldUserID: userID}})
	if err != nil {
		return nil, err
	}
	out := make([]ledger.EODRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := decodeRecord(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Previous returns the user's most recent record strictly before day. A
// false result means day is the user's first trading day in the shop.
func (r *Reconciler) Previous(ctx context.Context, userID, shopID, day string) (ledger.EODRecord, bool, error) {
	recs, err := r.records(ctx, userID, shopID)
	if err != nil {
		return ledger.EODRecord{}, false, err
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Date < day {
			return recs[i], true, nil
		}
	}
	return ledger.EODRecord{}, false, nil
}

// History lists records newest first. limit <= 0 returns all of them.
func (r *Reconciler) History(ctx context.Context, userID, shopID string, limit int) ([]ledger.EODRecord, error) {
	recs, err := r.records(ctx, userID, shopID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (r *Reconciler) GetOrCreateToday(ctx context.Context, userID, shopID string) (ledger.EODRecord, error) {
	return r.GetOrCreate(ctx, userID, shopID, r.Today())
}

// notPosted fails when the record already has an entry of type t.
func (r *Reconciler) notPosted(ctx context.Context, t ledger.TransactionType, recordID string) error {
	e, err := r.journal.EntryByTransaction(ctx, t, recordID)
	switch {
	case err == nil:
		return &errs.EntryMismatchError{TransactionID: recordID, EntryID: e.ID}
	case docstore.IsNotFound(err):
		return nil
	default:
		return err
	}
}

// OpenDay makes sure the record for the shop-local day of at exists before
// anything is posted on that day. A completed day takes no more trading.
func (r *Reconciler) OpenDay(ctx context.Context, userID, shopID string, at time.Time) (ledger.EODRecord, error) {
	rec, err := r.GetOrCreate(ctx, userID, shopID, ledger.Day(at, r.loc))
	if err != nil {
		return rec, err
	}
	if rec.Status == ledger.EODCompleted {
		return rec, &errs.AlreadyCompletedError{RecordID: rec.ID}
	}
	return rec, nil
}

// GetOrCreate returns the record for day. Open records are refreshed from
// the ledger on every read; completed records come back as stored.
func (r *Reconciler) GetOrCreate(ctx context.Context, userID, shopID, day string) (ledger.EODRecord, error) {
	if userID == "" || shopID == "" {
		return ledger.EODRecord{}, errs.Invalid("user_id", "user and shop are required")
	}
	if _, err := ledger.ParseDay(day); err != nil {
		return ledger.EODRecord{}, err
	}
	id := RecordID(shopID, userID, day)
	cur, err := r.store.Get(ctx, id)
	if err == nil {
		rec, err := decodeRecord(cur)
		if err != nil || rec.Status == ledger.EODCompleted {
			return rec, err
		}
	} else if !docstore.IsNotFound(err) {
		return ledger.EODRecord{}, err
	}

	opening, err := r.openingBalance(ctx, userID, shopID, day)
	if err != nil {
		return ledger.EODRecord{}, err
	}
	totals, err := r.journal.DailyCashTotals(ctx, shopID, userID, day)
	if err != nil {
		return ledger.EODRecord{}, err
	}

	saved, err := docstore.Update(ctx, r.store, r.retry, id, func(cur docstore.Document, exists bool) (docstore.Document, error) {
		rec := ledger.EODRecord{ID: id, Date: day, ShopID: shopID, UserID: userID, CreatedBy: userID, Status: ledger.EODOpen}
		if exists {
			prev, err := decodeRecord(cur)
			if err != nil {
				return docstore.Document{}, err
			}
			if prev.Status == ledger.EODCompleted {
				return docstore.Document{}, docstore.ErrNoChange
			}
			rec = prev
		}
		fresh := rec
		fresh.Currency = totals.Currency
		fresh.OpeningBalance = opening
		fresh.CashSales = totals.Sales
		fresh.CashPurchases = totals.Purchases
		fresh.ExpectedClosingBalance = opening.Add(totals.Sales).Sub(totals.Purchases)
		if exists && sameTotals(rec, fresh) {
			return docstore.Document{}, docstore.ErrNoChange
		}
		return encodeRecord(fresh)
	})
	if err != nil {
		return ledger.EODRecord{}, err
	}
	return decodeRecord(saved)
}

func sameTotals(a, b ledger.EODRecord) bool {
	return a.Currency == b.Currency &&
		a.OpeningBalance.Equal(b.OpeningBalance) &&
		a.CashSales.Equal(b.CashSales) &&
		a.CashPurchases.Equal(b.CashPurchases) &&
		a.ExpectedClosingBalance.Equal(b.ExpectedClosingBalance)
}

// openingBalance carries the previous completed close forward; otherwise
// the till starts from the configured float.
func (r *Reconciler) openingBalance(ctx context.Context, userID, shopID, day string) (decimal.Decimal, error) {
	prev, ok, err := r.Previous(ctx, userID, shopID, day)
	if err != nil {
		return decimal.Zero, err
	}
	if ok && prev.Status == ledger.EODCompleted {
		return prev.ClosingBalance(), nil
	}
	return r.float, nil
}

// CompleteInput is a cashier's close. An empty Date means today.
type CompleteInput struct {
	Date               string          `json:"date"`
	ShopID             string          `json:"shop_id" validate:"required"`
	UserID             string          `json:"user_id" validate:"required"`
	UserName           string          `json:"user_name"`
	CreatedBy          string          `json:"created_by"`
	ActualCashCount    decimal.Decimal `json:"actual_cash_count"`
	Explanations       []string        `json:"variance_explanations"`
	SurrenderAmount    decimal.Decimal `json:"surrender_amount"`
	SurrenderMethod    string          `json:"surrender_method"`
	SurrenderReference string          `json:"surrender_reference"`
	SurrenderNotes     string          `json:"surrender_notes"`
	Notes              string          `json:"notes"`
}

// CompleteEOD closes the day. Ledger postings are keyed by the record id,
// so retrying after a failed final write does not post twice.
func (r *Reconciler) CompleteEOD(ctx context.Context, in CompleteInput) (ledger.EODRecord, error) {
	if err := validation.Struct(in); err != nil {
		return ledger.EODRecord{}, err
	}
	if in.Date == "" {
		in.Date = r.Today()
	}
	if _, err := ledger.ParseDay(in.Date); err != nil {
		return ledger.EODRecord{}, err
	}
	if in.CreatedBy == "" {
		in.CreatedBy = in.UserID
	}
	id := RecordID(in.ShopID, in.UserID, in.Date)
	if cur, err := r.store.Get(ctx, id); err == nil {
		if rec, err := decodeRecord(cur); err == nil && rec.Status == ledger.EODCompleted {
			return ledger.EODRecord{}, &errs.AlreadyCompletedError{RecordID: id}
		}
	} else if !docstore.IsNotFound(err) {
		return ledger.EODRecord{}, err
	}

	// 1. the previous trading day must be closed
	prev, ok, err := r.Previous(ctx, in.UserID, in.ShopID, in.Date)
	if err != nil {
		return ledger.EODRecord{}, err
	}
	if ok && prev.Status != ledger.EODCompleted {
		return ledger.EODRecord{}, &errs.PreviousDayIncompleteError{UserID: in.UserID, Date: prev.Date}
	}

	// 2.
	if in.ActualCashCount.IsNegative() {
		return ledger.EODRecord{}, errs.Invalid("actual_cash_count", "must not be negative")
	}

	// 3.
	method, err := surrenderMethod(in)
	if err != nil {
		return ledger.EODRecord{}, err
	}
	explanations, err := parseExplanations(in.Explanations)
	if err != nil {
		return ledger.EODRecord{}, err
	}

	// 4.
	rec, err := r.GetOrCreate(ctx, in.UserID, in.ShopID, in.Date)
	if err != nil {
		return ledger.EODRecord{}, err
	}
	cfg, err := r.settings.Current(ctx, in.ShopID)
	if err != nil {
		return ledger.EODRecord{}, err
	}
	variance := in.ActualCashCount.Sub(rec.ExpectedClosingBalance)
	vtype := ledger.ClassifyVariance(variance)
	ts := r.postingTime(in.Date)
	md := meta.New(map[string]string{meta.KeyUserName: in.UserName, meta.KeyNotes: in.Notes})

	// an earlier attempt may have posted entries this count no longer calls for
	if vtype == ledger.VarianceNone {
		if err := r.notPosted(ctx, ledger.TransactionVariance, id); err != nil {
			return ledger.EODRecord{}, err
		}
	}
	if !in.SurrenderAmount.IsPositive() {
		if err := r.notPosted(ctx, ledger.TransactionSurrender, id); err != nil {
			return ledger.EODRecord{}, err
		}
	}

	// 5.
	var varianceEntry *ledger.Entry
	if vtype != ledger.VarianceNone {
		if len(explanations) == 0 {
			return ledger.EODRecord{}, errs.Invalid("variance_explanations", "a variance of "+variance.String()+" needs one explanation or \"unexplained\"")
		}
		varianceEntry, err = r.journal.CreateVarianceEntry(ctx, journal.VarianceInput{
			RecordID:    id,
			Variance:    cfg.Base(variance),
			Explanation: explanations[0],
			Timestamp:   ts,
			ShopID:      in.ShopID,
			UserID:      in.CreatedBy,
			Metadata:    md,
		})
		if err != nil {
			return ledger.EODRecord{}, err
		}
	}

	// 6.
	var surrenderEntry *ledger.Entry
	if in.SurrenderAmount.IsPositive() {
		e, err := r.journal.CreateSurrenderEntry(ctx, journal.SurrenderInput{
			RecordID:  id,
			Amount:    cfg.Base(in.SurrenderAmount),
			Method:    method,
			Reference: in.SurrenderReference,
			Notes:     in.SurrenderNotes,
			Timestamp: ts,
			ShopID:    in.ShopID,
			UserID:    in.CreatedBy,
			Metadata:  md,
		})
		if err != nil {
			return ledger.EODRecord{}, err
		}
		surrenderEntry = &e
	}

	// 7.
	completedAt := r.now().UTC()
	saved, err := docstore.Update(ctx, r.store, r.retry, id, func(cur docstore.Document, exists bool) (docstore.Document, error) {
		next := rec
		if exists {
			stored, err := decodeRecord(cur)
			if err != nil {
				return docstore.Document{}, err
			}
			if stored.Status == ledger.EODCompleted {
				return docstore.Document{}, &errs.AlreadyCompletedError{RecordID: id}
			}
		}
		next.UserName = in.UserName
		next.CreatedBy = in.CreatedBy
		next.ActualCashCount = in.ActualCashCount
		next.Variance = variance
		next.VarianceType = vtype
		next.VarianceExplanations = explanations
		next.CashSurrendered = decimal.Zero
		if surrenderEntry != nil {
			next.CashSurrendered = in.SurrenderAmount
			next.SurrenderMethod = method
			next.SurrenderReference = in.SurrenderReference
			next.SurrenderNotes = in.SurrenderNotes
			next.SurrenderEntryID = surrenderEntry.ID
		}
		if varianceEntry != nil {
			next.VarianceEntryID = varianceEntry.ID
		}
		next.Notes = in.Notes
		next.Status = ledger.EODCompleted
		next.CompletedAt = &completedAt
		return encodeRecord(next)
	})
	if err != nil {
		return ledger.EODRecord{}, err
	}
	out, err := decodeRecord(saved)
	if err != nil {
		return ledger.EODRecord{}, err
	}
	metrics.EODCompleted.WithLabelValues(string(vtype)).Inc()
	r.log.Info("eod completed", "record_id", id, "variance", variance.String(), "variance_type", vtype, "surrendered", out.CashSurrendered.String())
	return out, nil
}

// postingTime keeps a late close on its own day's books.
func (r *Reconciler) postingTime(day string) time.Time {
	now := r.now()
	if ledger.Day(now, r.loc) == day {
		return now
	}
	_, end, err := ledger.DayBounds(day, r.loc)
	if err != nil {
		return now
	}
	return end.Add(-time.Second)
}

func surrenderMethod(in CompleteInput) (ledger.SurrenderMethod, error) {
	if in.SurrenderAmount.IsNegative() {
		return "", errs.Invalid("surrender_amount", "must not be negative")
	}
	if !in.SurrenderAmount.IsPositive() {
		return "", nil
	}
	if in.SurrenderMethod == "" {
		return "", errs.Invalid("surrender_method", "required when cash is surrendered")
	}
	if in.SurrenderReference == "" {
		return "", errs.Invalid("surrender_reference", "required when cash is surrendered")
	}
	m := ledger.SurrenderMethod(slug.Slugify(in.SurrenderMethod))
	if !m.Valid() {
		return "", errs.Invalid("surrender_method", "unknown surrender method "+in.SurrenderMethod)
	}
	if in.SurrenderAmount.GreaterThan(in.ActualCashCount) {
		return "", errs.Invalid("surrender_amount", "exceeds the counted cash")
	}
	return m, nil
}

// parseExplanations accepts at most one code from the closed set.
func parseExplanations(raw []string) ([]ledger.VarianceExplanation, error) {
	if len(raw) > 1 {
		return nil, errs.Invalid("variance_explanations", "select exactly one explanation")
	}
	out := make([]ledger.VarianceExplanation, 0, len(raw))
	for _, s := range raw {
		e := ledger.VarianceExplanation(slug.Slugify(s))
		if !e.Valid() {
			return nil, errs.Invalid("variance_explanations", "unknown explanation "+s)
		}
		out = append(out, e)
	}
	return out, nil
}
