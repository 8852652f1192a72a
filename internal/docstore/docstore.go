// Package docstore defines the local-first document store the engine
// persists to: put/get/find with optimistic revision tokens.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ids"
)

// ErrRevision is returned by Put when the caller's revision is stale, or
// when a create targets an id that already exists.
var ErrRevision = errors.New("docstore: revision mismatch")

// Document kinds written by the engine.
const (
	KindEntry          = "ledger_entry"
	KindLot            = "inventory_lot"
	KindEOD            = "eod_record"
	KindSaleAllocation = "sale_allocation"
	KindSettings       = "settings"
)

// Document is the unit of storage. Fields holds the flat, indexed values a
// Selector can match on; Body is the JSON encoded domain value.
type Document struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	ShopID    string            `json:"shop_id,omitempty"`
	Rev       string            `json:"rev,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Body      json.RawMessage   `json:"body"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Selector matches documents by kind, shop and exact field values. An
// empty ShopID matches every shop.
type Selector struct {
	Kind   string
	ShopID string
	Fields map[string]string
}

// Store is implemented by the memory, postgres and redis backends.
// Find returns matches ordered by document id.
type Store interface {
	Get(ctx context.Context, id string) (Document, error)
	Put(ctx context.Context, doc Document) (Document, error)
	Find(ctx context.Context, sel Selector) ([]Document, error)
}

// ReadyStore is a Store that can report whether its backend is reachable.
// Every backend implements it.
type ReadyStore interface {
	Store
	Ready(ctx context.Context) error
}

// Match reports whether doc satisfies sel.
func Match(doc Document, sel Selector) bool {
	if sel.Kind != "" && doc.Kind != sel.Kind {
		return false
	}
	if sel.ShopID != "" && doc.ShopID != sel.ShopID {
		return false
	}
	for k, v := range sel.Fields {
		if doc.Fields[k] != v {
			return false
		}
	}
	return true
}

// NextRev returns the revision that follows prev: "<seq>-<ulid>".
func NextRev(prev string) string {
	return strconv.Itoa(RevSeq(prev)+1) + "-" + ids.New()
}

// RevSeq extracts the sequence number of a revision token; 0 for none.
func RevSeq(rev string) int {
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}

// Encode builds a document around v.
func Encode(kind, id, shopID string, fields map[string]string, v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	return Document{ID: id, Kind: kind, ShopID: shopID, Fields: fields, Body: b}, nil
}

// Decode unmarshals doc.Body into v.
func Decode(doc Document, v any) error {
	if err := json.Unmarshal(doc.Body, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", doc.Kind, doc.ID, err)
	}
	return nil
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool { return errors.Is(err, errs.ErrNotFound) }
