// Package redis stores documents in Redis. Each document is one JSON string
// key; a sorted set per kind (all scores 0, so members sort by id) backs Find.
// Revision checks run inside WATCH/MULTI so a concurrent writer aborts the
// transaction instead of overwriting.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tinoosan/tillbook/internal/docstore"
	"github.com/tinoosan/tillbook/internal/errs"
)

type Store struct {
	client *goredis.Client
	prefix string
}

// New wraps an existing client. prefix namespaces every key.
func New(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "tillbook"
	}
	return &Store{client: client, prefix: prefix}
}

// Open dials addr and verifies connectivity.
func Open(ctx context.Context, addr, prefix string) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return New(client, prefix), nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ready(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) docKey(id string) string    { return s.prefix + ":doc:" + id }
func (s *Store) kindKey(kind string) string { return s.prefix + ":kind:" + kind }

func (s *Store) Get(ctx context.Context, id string) (docstore.Document, error) {
	b, err := s.client.Get(ctx, s.docKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return docstore.Document{}, errs.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, err
	}
	var d docstore.Document
	if err := json.Unmarshal(b, &d); err != nil {
		return docstore.Document{}, err
	}
	return d, nil
}

func (s *Store) Put(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	key := s.docKey(doc.ID)
	var out docstore.Document
	txf := func(tx *goredis.Tx) error {
		var cur docstore.Document
		exists := true
		b, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
			exists = false
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(b, &cur); err != nil {
				return err
			}
		}
		if (doc.Rev == "" && exists) || (doc.Rev != "" && (!exists || cur.Rev != doc.Rev)) {
			return docstore.ErrRevision
		}
		next := doc
		next.Rev = docstore.NextRev(cur.Rev)
		next.UpdatedAt = time.Now().UTC()
		nb, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, nb, 0)
			if exists && cur.Kind != next.Kind {
				pipe.ZRem(ctx, s.kindKey(cur.Kind), next.ID)
			}
			pipe.ZAdd(ctx, s.kindKey(next.Kind), goredis.Z{Score: 0, Member: next.ID})
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}
	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return docstore.Document{}, docstore.ErrRevision
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return out, nil
}

// Find requires a kind; ids come back in lexical order from the sorted set.
func (s *Store) Find(ctx context.Context, sel docstore.Selector) ([]docstore.Document, error) {
	if sel.Kind == "" {
		return nil, errs.Invalid("selector.kind", "required by the redis store")
	}
	idList, err := s.client.ZRange(ctx, s.kindKey(sel.Kind), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]docstore.Document, 0, len(idList))
	if len(idList) == 0 {
		return out, nil
	}
	keys := make([]string, len(idList))
	for i, id := range idList {
		keys[i] = s.docKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var d docstore.Document
		if err := json.Unmarshal([]byte(str), &d); err != nil {
			return nil, err
		}
		if docstore.Match(d, sel) {
			out = append(out, d)
		}
	}
	return out, nil
}

var _ docstore.ReadyStore = (*Store)(nil)
