package meta

import (
    "bytes"
    "encoding/json"
    "sort"

    "github.com/tinoosan/tillbook/internal/errs"
)

// Metadata is the small audit map attached to ledger entries. Entries are
// immutable once posted, so every mutating helper returns a copy.
type Metadata map[string]string

const (
    MaxPairs     = 20
    MaxKeyLen    = 64
    MaxValLen    = 256
    MaxTotalJSON = 4096
)

// Well-known keys written by the entry builders.
const (
    KeyUserName            = "user_name"
    KeyNotes               = "notes"
    KeyPaymentMethod       = "payment_method"
    KeySourceRecord        = "source_record"
    KeyVarianceExplanation = "variance_explanation"
    KeySurrenderMethod     = "surrender_method"
    KeySurrenderReference  = "surrender_reference"
)

func New(m map[string]string) Metadata {
    out := make(Metadata, len(m))
    for k, v := range m {
        if v == "" { continue }
        out[k] = v
    }
    return out
}

func (m Metadata) Get(k string) (string, bool) { v, ok := m[k]; return v, ok }

// With returns a copy of m with k set. Empty values are dropped.
func (m Metadata) With(k, v string) Metadata {
    out := New(m)
    if v != "" {
        out[k] = v
    }
    return out
}

// Merge returns a copy of m overlaid with other.
func (m Metadata) Merge(other Metadata) Metadata {
    out := New(m)
    for k, v := range other {
        if v == "" { continue }
        out[k] = v
    }
    return out
}

func (m Metadata) Validate() error {
    if len(m) > MaxPairs { return errs.Invalid("metadata", "too many pairs") }
    for k, v := range m {
        if len(k) == 0 || len(k) > MaxKeyLen { return errs.Invalid("metadata", "key too long or empty") }
        if len(v) > MaxValLen { return errs.Invalid("metadata."+k, "value too long") }
    }
    b, err := m.MarshalStableJSON()
    if err != nil { return err }
    if len(b) > MaxTotalJSON { return errs.Invalid("metadata", "exceeds max json size") }
    return nil
}

// MarshalStableJSON returns a deterministic JSON representation with keys sorted.
func (m Metadata) MarshalStableJSON() ([]byte, error) {
    if len(m) == 0 { return []byte("{}"), nil }
    keys := make([]string, 0, len(m))
    for k := range m { keys = append(keys, k) }
    sort.Strings(keys)
    buf := &bytes.Buffer{}
    buf.WriteByte('{')
    for i, k := range keys {
        kb, _ := json.Marshal(k)
        vb, _ := json.Marshal(m[k])
        buf.Write(kb)
        buf.WriteByte(':')
        buf.Write(vb)
        if i < len(keys)-1 { buf.WriteByte(',') }
    }
    buf.WriteByte('}')
    return buf.Bytes(), nil
}

func (m Metadata) MarshalJSON() ([]byte, error) { return m.MarshalStableJSON() }

func (m *Metadata) UnmarshalJSON(b []byte) error {
    var tmp map[string]string
    if len(b) == 0 || bytes.Equal(b, []byte("null")) { *m = Metadata{}; return nil }
    if err := json.Unmarshal(b, &tmp); err != nil { return err }
    *m = New(tmp)
    return nil
}
