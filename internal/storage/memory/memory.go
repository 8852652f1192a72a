package memory

// Package memory provides an in-memory document store used for development,
// tests and single-device deployments.
import (
    "context"
    "encoding/json"
    "sort"
    "sync"
    "time"

    "github.com/tinoosan/tillbook/internal/docstore"
    "github.com/tinoosan/tillbook/internal/errs"
)

// Store keeps documents in a map guarded by an RWMutex, with a per-kind
// sorted id index so Find returns documents in id order.
type Store struct {
    mu     sync.RWMutex
    docs   map[string]docstore.Document
    byKind map[string][]string
    now    func() time.Time
}

// New constructs an empty in-memory store.
func New() *Store {
    return &Store{
        docs:   make(map[string]docstore.Document),
        byKind: make(map[string][]string),
        now:    time.Now,
    }
}

func (s *Store) Reset() {
    s.mu.Lock()
    s.docs = map[string]docstore.Document{}
    s.byKind = map[string][]string{}
    s.mu.Unlock()
}

// Ready always succeeds.
func (s *Store) Ready(context.Context) error { return nil }

// Get returns a copy of the stored document.
func (s *Store) Get(_ context.Context, id string) (docstore.Document, error) {
    s.mu.RLock(); defer s.mu.RUnlock()
    d, ok := s.docs[id]
    if !ok { return docstore.Document{}, errs.ErrNotFound }
    return clone(d), nil
}

// Put creates (empty Rev) or replaces (matching Rev) a document.
func (s *Store) Put(_ context.Context, doc docstore.Document) (docstore.Document, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    cur, exists := s.docs[doc.ID]
    switch {
    case doc.Rev == "" && exists:
        return docstore.Document{}, docstore.ErrRevision
    case doc.Rev != "" && (!exists || cur.Rev != doc.Rev):
        return docstore.Document{}, docstore.ErrRevision
    }
    if exists && cur.Kind != doc.Kind {
        s.removeIndexLocked(cur.Kind, cur.ID)
    }
    next := clone(doc)
    next.Rev = docstore.NextRev(cur.Rev)
    next.UpdatedAt = s.now().UTC()
    s.docs[next.ID] = next
    if !exists || cur.Kind != doc.Kind {
        s.insertIndexLocked(next.Kind, next.ID)
    }
    return clone(next), nil
}

// Find scans the kind index in id order.
func (s *Store) Find(_ context.Context, sel docstore.Selector) ([]docstore.Document, error) {
    s.mu.RLock(); defer s.mu.RUnlock()
    var keys []string
    if sel.Kind != "" {
        keys = s.byKind[sel.Kind]
    } else {
        keys = make([]string, 0, len(s.docs))
        for id := range s.docs { keys = append(keys, id) }
        sort.Strings(keys)
    }
    out := make([]docstore.Document, 0)
    for _, id := range keys {
        d := s.docs[id]
        if docstore.Match(d, sel) {
            out = append(out, clone(d))
        }
    }
    return out, nil
}

// insertIndexLocked keeps s.byKind[kind] sorted asc. Caller must hold s.mu.
func (s *Store) insertIndexLocked(kind, id string) {
    keys := s.byKind[kind]
    i := sort.SearchStrings(keys, id)
    if i < len(keys) && keys[i] == id { return }
    keys = append(keys, "")
    copy(keys[i+1:], keys[i:])
    keys[i] = id
    s.byKind[kind] = keys
}

func (s *Store) removeIndexLocked(kind, id string) {
    keys := s.byKind[kind]
    i := sort.SearchStrings(keys, id)
    if i < len(keys) && keys[i] == id {
        s.byKind[kind] = append(keys[:i], keys[i+1:]...)
    }
}

func clone(d docstore.Document) docstore.Document {
    out := d
    if d.Fields != nil {
        out.Fields = make(map[string]string, len(d.Fields))
        for k, v := range d.Fields { out.Fields[k] = v }
    }
    if d.Body != nil {
        out.Body = append(json.RawMessage(nil), d.Body...)
    }
    return out
}
