package tradingday

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
)

type fakeRecords struct {
	prev ledger.EODRecord
	ok   bool
	err  error
	day  string
}

func (f *fakeRecords) Today() string { return "2024-03-02" }

func (f *fakeRecords) Previous(_ context.Context, _, _, day string) (ledger.EODRecord, bool, error) {
	f.day = day
	return f.prev, f.ok, f.err
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCheckStatus(t *testing.T) {
	cases := []struct {
		name    string
		records *fakeRecords
		policy  FailurePolicy
		want    ledger.TradingDayStatus
	}{
		{"first day", &fakeRecords{}, Deny, ledger.TradingDayStatus{CanTrade: true}},
		{"previous completed", &fakeRecords{prev: ledger.EODRecord{Date: "2024-03-01", Status: ledger.EODCompleted}, ok: true}, Deny,
			ledger.TradingDayStatus{CanTrade: true}},
		{"previous open", &fakeRecords{prev: ledger.EODRecord{Date: "2024-02-28", Status: ledger.EODOpen}, ok: true}, Allow,
			ledger.TradingDayStatus{Blocked: true, PreviousDayDate: "2024-02-28"}},
		{"lookup fails closed", &fakeRecords{err: errors.New("store down")}, Deny,
			ledger.TradingDayStatus{Blocked: true, LookupFailed: true}},
		{"lookup fails open", &fakeRecords{err: errors.New("store down")}, Allow,
			ledger.TradingDayStatus{CanTrade: true, LookupFailed: true}},
	}
	for _, tc := range cases {
		g := New(tc.records, Policy{OnLookupFailure: tc.policy}, testLogger())
		got, err := g.CheckStatus(context.Background(), "u1", "shop-1")
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %+v want %+v", tc.name, got, tc.want)
		}
		if tc.records.day != "2024-03-02" {
			t.Fatalf("%s: lookup should be relative to today, got %q", tc.name, tc.records.day)
		}
	}
}

func TestAdmit(t *testing.T) {
	g := New(&fakeRecords{prev: ledger.EODRecord{Date: "2024-03-01", Status: ledger.EODOpen}, ok: true}, Policy{}, testLogger())
	err := g.Admit(context.Background(), "u1", "shop-1")
	var pde *errs.PreviousDayIncompleteError
	if !errors.As(err, &pde) || pde.Date != "2024-03-01" {
		t.Fatalf("expected PreviousDayIncompleteError, got %v", err)
	}
	open := New(&fakeRecords{}, Policy{}, testLogger())
	if err := open.Admit(context.Background(), "u1", "shop-1"); err != nil {
		t.Fatalf("first day should be admitted: %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(" ALLOW "); err != nil || p != Allow {
		t.Fatalf("allow: %v %v", p, err)
	}
	if p, err := ParsePolicy(""); err != nil || p != Deny {
		t.Fatalf("empty should default to deny: %v %v", p, err)
	}
	if _, err := ParsePolicy("maybe"); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
}
