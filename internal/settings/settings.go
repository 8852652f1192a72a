// Package settings supplies the shop's currency configuration: the base
// currency and the exchange-rate snapshot used to stamp new money values.
package settings

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/tillbook/internal/errs"
	"github.com/tinoosan/tillbook/internal/money"
)

type Settings struct {
	BaseCurrency string `json:"base_currency"`
	// ExchangeRates maps a currency code to units per one unit of base.
	ExchangeRates map[string]decimal.Decimal `json:"exchange_rates,omitempty"`
}

// Provider is consulted on every engine call; implementations may cache.
type Provider interface {
	Current(ctx context.Context, shopID string) (Settings, error)
}

// Normalize validates the base currency and every configured rate and
// returns a copy with canonical currency codes.
func (s Settings) Normalize(shopID string) (Settings, error) {
	if strings.TrimSpace(s.BaseCurrency) == "" {
		return Settings{}, &errs.MissingSettingsError{ShopID: shopID, Field: "base_currency"}
	}
	base, err := money.NormalizeCurrency(s.BaseCurrency)
	if err != nil {
		return Settings{}, errs.Invalid("base_currency", err.Error())
	}
	out := Settings{BaseCurrency: base, ExchangeRates: make(map[string]decimal.Decimal, len(s.ExchangeRates))}
	for code, rate := range s.ExchangeRates {
		c, err := money.NormalizeCurrency(code)
		if err != nil {
			return Settings{}, errs.Invalid("exchange_rates."+code, err.Error())
		}
		if !rate.IsPositive() {
			return Settings{}, errs.Invalid("exchange_rates."+code, "must be positive")
		}
		out.ExchangeRates[c] = rate
	}
	return out, nil
}

// Rate returns the current snapshot rate for code; the base is always 1.
func (s Settings) Rate(code string) (decimal.Decimal, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == s.BaseCurrency {
		return decimal.NewFromInt(1), nil
	}
	r, ok := s.ExchangeRates[code]
	if !ok {
		return decimal.Decimal{}, &errs.MissingSettingsError{Field: "exchange_rates." + code}
	}
	return r, nil
}

// Value stamps amount with the rate currently configured for currency. An
// empty currency means the base currency.
func (s Settings) Value(amount decimal.Decimal, currency string) (money.Value, error) {
	if currency == "" {
		currency = s.BaseCurrency
	}
	code, err := money.NormalizeCurrency(currency)
	if err != nil {
		return money.Value{}, errs.Invalid("currency", err.Error())
	}
	rate, err := s.Rate(code)
	if err != nil {
		return money.Value{}, err
	}
	return money.New(amount, code, rate)
}

// Base converts amount in base currency into a base-currency value.
func (s Settings) Base(amount decimal.Decimal) money.Value {
	return money.Value{Amount: amount, Currency: s.BaseCurrency, Rate: decimal.NewFromInt(1)}
}

// Static serves a fixed configuration, typically from the environment.
type Static struct {
	Settings Settings
}

func (p Static) Current(_ context.Context, shopID string) (Settings, error) {
	return p.Settings.Normalize(shopID)
}

// ParseRates parses "EUR:0.92,GBP:0.79".
func ParseRates(raw map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(raw))
	for code, v := range raw {
		c, err := money.NormalizeCurrency(code)
		if err != nil {
			return nil, errs.Invalid("exchange_rates."+code, err.Error())
		}
		r, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil || !r.IsPositive() {
			return nil, errs.Invalid("exchange_rates."+code, "must be a positive decimal")
		}
		out[c] = r
	}
	return out, nil
}
