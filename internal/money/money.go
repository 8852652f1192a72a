// Package money holds the MoneyValue type: an amount in a currency together
// with the exchange-rate snapshot that was active when the value was created.
//
// A rate is the number of units of the currency that one unit of the base
// currency buys. Conversions always go source -> base -> target using the
// rates carried by the values themselves, never a rate looked up later.
package money

import (
	"errors"
	"fmt"

	gomoney "github.com/govalues/money"
	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of fractional digits shown to users.
const DisplayPlaces = 2

// divPrecision bounds the digits kept when dividing by a rate.
const divPrecision = 16

var (
	ErrCurrency = errors.New("money: invalid currency")
	ErrRate     = errors.New("money: exchange rate must be positive")
)

// Value is immutable; every operation returns a new Value.
type Value struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"exchange_rate"`
}

// New validates the currency code and rate snapshot.
func New(amount decimal.Decimal, currency string, rate decimal.Decimal) (Value, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Value{}, err
	}
	if !rate.IsPositive() {
		return Value{}, fmt.Errorf("%w: %s", ErrRate, rate.String())
	}
	return Value{Amount: amount, Currency: code, Rate: rate}, nil
}

// MustNew is New for constants and tests.
func MustNew(amount, currency, rate string) Value {
	v, err := New(decimal.RequireFromString(amount), currency, decimal.RequireFromString(rate))
	if err != nil {
		panic(err)
	}
	return v
}

// Zero returns a zero amount carrying the given snapshot.
func Zero(currency string, rate decimal.Decimal) Value {
	return Value{Amount: decimal.Zero, Currency: currency, Rate: rate}
}

// NormalizeCurrency returns the canonical ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	c, err := gomoney.ParseCurr(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrCurrency, code)
	}
	return c.Code(), nil
}

// Base expresses v in the base currency.
func Base(v Value, base string) decimal.Decimal {
	if v.Currency == base {
		return v.Amount
	}
	if v.Rate.IsZero() {
		return decimal.Zero
	}
	return v.Amount.DivRound(v.Rate, divPrecision)
}

// Convert re-expresses v in target using targetRate as the target's snapshot.
// The amount always goes through base on v's own rate, even when v is
// already in target but was recorded under a different rate.
func Convert(v Value, base, target string, targetRate decimal.Decimal) Value {
	if target == base {
		targetRate = decimal.NewFromInt(1)
	}
	if v.Currency == target && v.Rate.Equal(targetRate) {
		return v
	}
	amt := Base(v, base)
	if target != base {
		amt = amt.Mul(targetRate)
	}
	return Value{Amount: amt, Currency: target, Rate: targetRate}
}

// Add returns v + o expressed in v's currency and snapshot.
func (v Value) Add(o Value, base string) Value {
	o = Convert(o, base, v.Currency, v.Rate)
	return Value{Amount: v.Amount.Add(o.Amount), Currency: v.Currency, Rate: v.Rate}
}

// Sub returns v - o expressed in v's currency and snapshot.
func (v Value) Sub(o Value, base string) Value {
	o = Convert(o, base, v.Currency, v.Rate)
	return Value{Amount: v.Amount.Sub(o.Amount), Currency: v.Currency, Rate: v.Rate}
}

// Mul scales the amount, e.g. quantity x unit cost.
func (v Value) Mul(f decimal.Decimal) Value {
	return Value{Amount: v.Amount.Mul(f), Currency: v.Currency, Rate: v.Rate}
}

func (v Value) Neg() Value {
	return Value{Amount: v.Amount.Neg(), Currency: v.Currency, Rate: v.Rate}
}

func (v Value) Abs() Value {
	return Value{Amount: v.Amount.Abs(), Currency: v.Currency, Rate: v.Rate}
}

func (v Value) IsZero() bool { return v.Amount.IsZero() }

func (v Value) Sign() int { return v.Amount.Sign() }

// WithAmount keeps the currency and snapshot but replaces the amount.
func (v Value) WithAmount(a decimal.Decimal) Value {
	return Value{Amount: a, Currency: v.Currency, Rate: v.Rate}
}

// Display rounds for presentation only. Internal sums keep the full amount.
func (v Value) Display() string {
	return v.Currency + " " + v.Amount.StringFixed(DisplayPlaces)
}

func (v Value) String() string { return v.Display() }

// MoneyAmount converts to a govalues amount rounded to the currency's scale.
func (v Value) MoneyAmount() (gomoney.Amount, error) {
	c, err := gomoney.ParseCurr(v.Currency)
	if err != nil {
		return gomoney.Amount{}, fmt.Errorf("%w: %q", ErrCurrency, v.Currency)
	}
	a, err := gomoney.ParseAmount(c.Code(), v.Amount.Round(int32(c.Scale())).String())
	if err != nil {
		return gomoney.Amount{}, err
	}
	return a.RoundToCurr(), nil
}

// MinorUnits returns the amount in the currency's minor units, e.g. cents.
func (v Value) MinorUnits() (int64, error) {
	a, err := v.MoneyAmount()
	if err != nil {
		return 0, err
	}
	units, ok := a.MinorUnits()
	if !ok {
		return 0, fmt.Errorf("money: %s overflows minor units", v.Display())
	}
	return units, nil
}
