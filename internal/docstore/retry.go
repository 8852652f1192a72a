package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/metrics"
)

// RetryPolicy bounds optimistic-write retries. Backoff doubles per attempt.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetry is three attempts starting at 10ms.
var DefaultRetry = RetryPolicy{Attempts: 3, Backoff: 10 * time.Millisecond}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultRetry.Attempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// ErrNoChange tells Update that the current document is already the desired
// state and nothing should be written.
var ErrNoChange = errors.New("docstore: no change")

// Retry runs op until it stops failing with ErrRevision or the attempts are
// used up, in which case a *errs.ConflictError naming key is returned. Any
// other error is returned as is.
func Retry(ctx context.Context, p RetryPolicy, key string, op func(ctx context.Context) error) error {
	p = p.normalized()
	wait := p.Backoff
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if !errors.Is(err, ErrRevision) {
			return err
		}
		if attempt >= p.Attempts {
			metrics.RevisionConflicts.WithLabelValues("exhausted").Inc()
			return &errs.ConflictError{DocumentID: key, Attempts: attempt}
		}
		metrics.RevisionConflicts.WithLabelValues("retried").Inc()
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			wait *= 2
		}
	}
}

// Update performs a revision-checked read-modify-write of one document.
// fn receives the freshest copy (exists is false when the id is unknown) and
// returns the document to write; the revision is carried over by Update.
// Returning ErrNoChange ends the loop and yields the current document.
func Update(ctx context.Context, s Store, p RetryPolicy, id string, fn func(cur Document, exists bool) (Document, error)) (Document, error) {
	var out Document
	err := Retry(ctx, p, id, func(ctx context.Context) error {
		cur, err := s.Get(ctx, id)
		exists := err == nil
		if err != nil && !IsNotFound(err) {
			return err
		}
		next, err := fn(cur, exists)
		if errors.Is(err, ErrNoChange) {
			out = cur
			return nil
		}
		if err != nil {
			return err
		}
		next.ID = id
		next.Rev = ""
		if exists {
			next.Rev = cur.Rev
		}
		saved, err := s.Put(ctx, next)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	return out, err
}

// Create writes doc only if its id is new. When the id exists the stored
// document is returned with created=false.
func Create(ctx context.Context, s Store, doc Document) (stored Document, created bool, err error) {
	doc.Rev = ""
	saved, err := s.Put(ctx, doc)
	if err == nil {
		return saved, true, nil
	}
	if !errors.Is(err, ErrRevision) {
		return Document{}, false, err
	}
	existing, gerr := s.Get(ctx, doc.ID)
	if gerr != nil {
		return Document{}, false, gerr
	}
	return existing, false, nil
}
