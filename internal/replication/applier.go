package replication

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/tinoosan/tillbook/internal/docstore"
	"github.com/tinoosan/tillbook/internal/ledger"
)

// Applier merges replicated documents into the local store.
type Applier struct {
	store  docstore.Store
	retry  docstore.RetryPolicy
	origin string
	log    *slog.Logger
}

// NewApplier builds an applier; origin names this device so its own
// publications are ignored when they loop back.
func NewApplier(store docstore.Store, retry docstore.RetryPolicy, origin string, log *slog.Logger) *Applier {
	if log == nil {
		log = slog.Default()
	}
	return &Applier{store: store, retry: retry, origin: origin, log: log}
}

// Outcome of one apply.
type Outcome string

const (
	Applied       Outcome = "applied"
	SkippedStale  Outcome = "stale"
	SkippedFrozen Outcome = "immutable"
	SkippedSelf   Outcome = "self"
)

// HandleApplyTask fulfils the asynq.HandlerFunc contract.
func (a *Applier) HandleApplyTask(ctx context.Context, task *asynq.Task) error {
	var payload ApplyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Document.ID == "" || payload.Document.Kind == "" {
		return asynq.SkipRetry
	}
	out, err := a.Apply(ctx, payload)
	if err != nil {
		a.log.Error("replication apply", slog.String("doc_id", payload.Document.ID), slog.Any("error", err))
		return err
	}
	a.log.Debug("replication apply", slog.String("doc_id", payload.Document.ID), slog.String("outcome", string(out)))
	return nil
}

// Apply writes the remote document when the local copy is missing, or older
// and still mutable. Posted entries, sale allocations and completed EOD
// records are never overwritten. A completed remote EOD record replaces an
// open local one whatever the revisions say.
func (a *Applier) Apply(ctx context.Context, p ApplyPayload) (Outcome, error) {
	if a.origin != "" && p.Origin == a.origin {
		return SkippedSelf, nil
	}
	remote := p.Document
	out := Applied
	_, err := docstore.Update(ctx, a.store, a.retry, remote.ID, func(cur docstore.Document, exists bool) (docstore.Document, error) {
		out = Applied
		if exists {
			switch {
			case frozen(cur):
				out = SkippedFrozen
				return docstore.Document{}, docstore.ErrNoChange
			case completedEOD(remote):
			case docstore.RevSeq(remote.Rev) <= docstore.RevSeq(cur.Rev):
				out = SkippedStale
				return docstore.Document{}, docstore.ErrNoChange
			}
		}
		return docstore.Document{
			Kind:   remote.Kind,
			ShopID: remote.ShopID,
			Fields: remote.Fields,
			Body:   remote.Body,
		}, nil
	})
	return out, err
}

func frozen(d docstore.Document) bool {
	switch d.Kind {
	case docstore.KindEntry, docstore.KindSaleAllocation:
		return true
	}
	return completedEOD(d)
}

func completedEOD(d docstore.Document) bool {
	return d.Kind == docstore.KindEOD && d.Fields["status"] == string(ledger.EODCompleted)
}
