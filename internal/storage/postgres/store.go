package postgres

// Package postgres provides a pgx-backed document store. Documents live in a
// single jsonb table; optimistic revisions are enforced in the WHERE clause
// of the update so concurrent writers race on the row, not in Go.

import (
    "context"
    _ "embed"
    "encoding/json"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/tinoosan/tillbook/internal/docstore"
    "github.com/tinoosan/tillbook/internal/errs"
)

//go:embed schema.sql
var schemaSQL string

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
    pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
    cfg, err := pgxpool.ParseConfig(dsn)
    if err != nil { return nil, err }
    pool, err := pgxpool.NewWithConfig(ctx, cfg)
    if err != nil { return nil, err }
    // Verify connection
    if err := pool.Ping(ctx); err != nil { pool.Close(); return nil, err }
    return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() { if s.pool != nil { s.pool.Close() } }

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate creates the documents table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
    _, err := s.pool.Exec(ctx, schemaSQL)
    return err
}

const selectCols = `select id, kind, shop_id, rev, fields, body, updated_at from documents`

func scanDoc(row pgx.Row) (docstore.Document, error) {
    var d docstore.Document
    var fields, body []byte
    if err := row.Scan(&d.ID, &d.Kind, &d.ShopID, &d.Rev, &fields, &body, &d.UpdatedAt); err != nil {
        return docstore.Document{}, err
    }
    if len(fields) > 0 {
        if err := json.Unmarshal(fields, &d.Fields); err != nil { return docstore.Document{}, err }
    }
    d.Body = body
    return d, nil
}

// Get fetches a document by id.
func (s *Store) Get(ctx context.Context, id string) (docstore.Document, error) {
    d, err := scanDoc(s.pool.QueryRow(ctx, selectCols+` where id = $1`, id))
    if errors.Is(err, pgx.ErrNoRows) { return docstore.Document{}, errs.ErrNotFound }
    return d, err
}

// Put inserts when doc.Rev is empty and updates only when doc.Rev is current.
func (s *Store) Put(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
    fields := doc.Fields
    if fields == nil { fields = map[string]string{} }
    fb, err := json.Marshal(fields)
    if err != nil { return docstore.Document{}, err }
    next := doc
    next.Rev = docstore.NextRev(doc.Rev)
    next.UpdatedAt = time.Now().UTC()
    var tag pgconn.CommandTag
    if doc.Rev == "" {
        tag, err = s.pool.Exec(ctx, `
            insert into documents (id, kind, shop_id, rev, fields, body, updated_at)
            values ($1,$2,$3,$4,$5,$6,$7)
            on conflict (id) do nothing
        `, next.ID, next.Kind, next.ShopID, next.Rev, fb, []byte(next.Body), next.UpdatedAt)
    } else {
        tag, err = s.pool.Exec(ctx, `
            update documents
            set kind=$3, shop_id=$4, rev=$5, fields=$6, body=$7, updated_at=$8
            where id=$1 and rev=$2
        `, next.ID, doc.Rev, next.Kind, next.ShopID, next.Rev, fb, []byte(next.Body), next.UpdatedAt)
    }
    if err != nil { return docstore.Document{}, err }
    if tag.RowsAffected() == 0 { return docstore.Document{}, docstore.ErrRevision }
    return next, nil
}

// Find matches by kind, shop and a jsonb containment test on fields.
func (s *Store) Find(ctx context.Context, sel docstore.Selector) ([]docstore.Document, error) {
    fields := sel.Fields
    if fields == nil { fields = map[string]string{} }
    fb, err := json.Marshal(fields)
    if err != nil { return nil, err }
    rows, err := s.pool.Query(ctx, selectCols+`
        where ($1 = '' or kind = $1)
          and ($2 = '' or shop_id = $2)
          and fields @> $3::jsonb
        order by id asc
    `, sel.Kind, sel.ShopID, fb)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]docstore.Document, 0)
    for rows.Next() {
        d, err := scanDoc(rows)
        if err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}
