// Package tradingday blocks new trading until the previous day's cash close
// is completed.
package tradingday

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/ledger"
	"github.com/tinoosan/tillbook/internal/metrics"
)

// FailurePolicy decides the status when the EOD lookup itself fails.
type FailurePolicy string

const (
	Allow FailurePolicy = "allow"
	Deny  FailurePolicy = "deny"
)

func ParsePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case Allow, Deny:
		return p, nil
	case "":
		return Deny, nil
	}
	return "", errs.Invalid("on_lookup_failure", "expected allow or deny, got "+s)
}

type Policy struct {
	OnLookupFailure FailurePolicy
}

// Records is the slice of the EOD reconciler the gate reads.
type Records interface {
	Today() string
	Previous(ctx context.Context, userID, shopID, day string) (ledger.EODRecord, bool, error)
}

type Gate struct {
	records Records
	policy  Policy
	log     *slog.Logger
}

func New(records Records, policy Policy, log *slog.Logger) *Gate {
	if policy.OnLookupFailure == "" {
		policy.OnLookupFailure = Deny
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gate{records: records, policy: policy, log: log}
}

// CheckStatus looks at the user's most recent trading day before today. A
// user with no earlier record is on their first day and may trade.
func (g *Gate) CheckStatus(ctx context.Context, userID, shopID string) (ledger.TradingDayStatus, error) {
	if userID == "" || shopID == "" {
		return ledger.TradingDayStatus{}, errs.Invalid("user_id", "user and shop are required")
	}
	prev, ok, err := g.records.Previous(ctx, userID, shopID, g.records.Today())
	if err != nil {
		if g.policy.OnLookupFailure == Allow {
			g.log.Warn("trading day lookup failed, allowing", "user_id", userID, "shop_id", shopID, "err", err)
			metrics.TradingBlocked.WithLabelValues("lookup_allowed").Inc()
			return ledger.TradingDayStatus{CanTrade: true, LookupFailed: true}, nil
		}
		g.log.Warn("trading day lookup failed, denying", "user_id", userID, "shop_id", shopID, "err", err)
		metrics.TradingBlocked.WithLabelValues("lookup_denied").Inc()
		return ledger.TradingDayStatus{Blocked: true, LookupFailed: true}, nil
	}
	if ok && prev.Status != ledger.EODCompleted {
		metrics.TradingBlocked.WithLabelValues("blocked").Inc()
		return ledger.TradingDayStatus{Blocked: true, PreviousDayDate: prev.Date}, nil
	}
	metrics.TradingBlocked.WithLabelValues("allowed").Inc()
	return ledger.TradingDayStatus{CanTrade: true}, nil
}

// Admit turns a blocked status into an error for mutating operations.
func (g *Gate) Admit(ctx context.Context, userID, shopID string) error {
	st, err := g.CheckStatus(ctx, userID, shopID)
	if err != nil {
		return err
	}
	if st.Blocked {
		return &errs.PreviousDayIncompleteError{UserID: userID, Date: st.PreviousDayDate}
	}
	return nil
}
