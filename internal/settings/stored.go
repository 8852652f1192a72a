package settings

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tinoosan/tillbook/internal/docstore"
	"github.com/tinoosan/tillbook/internal/errs"
)

// DocID is the document holding a shop's settings.
func DocID(shopID string) string { return "settings:" + shopID }

type cached struct {
	s       Settings
	expires time.Time
}

// Stored reads per-shop settings documents. Concurrent loads for one shop
// share a single store read, and results are cached for ttl. When a shop has
// no document the fallback provider (if any) answers.
type Stored struct {
	store    docstore.Store
	fallback Provider
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cached
}

func NewStored(store docstore.Store, fallback Provider, ttl time.Duration) *Stored {
	return &Stored{store: store, fallback: fallback, ttl: ttl, now: time.Now, cache: map[string]cached{}}
}

func (p *Stored) Current(ctx context.Context, shopID string) (Settings, error) {
	p.mu.RLock()
	c, ok := p.cache[shopID]
	p.mu.RUnlock()
	if ok && p.now().Before(c.expires) {
		return c.s, nil
	}
	v, err, _ := p.group.Do(shopID, func() (any, error) {
		return p.load(ctx, shopID)
	})
	if err != nil {
		return Settings{}, err
	}
	return v.(Settings), nil
}

func (p *Stored) load(ctx context.Context, shopID string) (Settings, error) {
	doc, err := p.store.Get(ctx, DocID(shopID))
	if docstore.IsNotFound(err) {
		if p.fallback != nil {
			return p.fallback.Current(ctx, shopID)
		}
		return Settings{}, &errs.MissingSettingsError{ShopID: shopID, Field: "base_currency"}
	}
	if err != nil {
		return Settings{}, err
	}
	var raw Settings
	if err := docstore.Decode(doc, &raw); err != nil {
		return Settings{}, err
	}
	s, err := raw.Normalize(shopID)
	if err != nil {
		return Settings{}, err
	}
	p.mu.Lock()
	p.cache[shopID] = cached{s: s, expires: p.now().Add(p.ttl)}
	p.mu.Unlock()
	return s, nil
}

// Save writes the shop's settings and drops the cached copy.
func (p *Stored) Save(ctx context.Context, shopID string, raw Settings) error {
	s, err := raw.Normalize(shopID)
	if err != nil {
		return err
	}
	_, err = docstore.Update(ctx, p.store, docstore.DefaultRetry, DocID(shopID), func(docstore.Document, bool) (docstore.Document, error) {
		return docstore.Encode(docstore.KindSettings, DocID(shopID), shopID, nil, s)
	})
	if err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.cache, shopID)
	p.mu.Unlock()
	return nil
}
