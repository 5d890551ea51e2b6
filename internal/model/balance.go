package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is a lowercase ISO-like currency code held in a balance record.
type Currency string

const (
	CurrencyDZD Currency = "dzd"
	CurrencyEUR Currency = "eur"
	CurrencyUSD Currency = "usd"
	CurrencyGBP Currency = "gbp"
)

// Currencies lists the currencies a balance record carries, in display order.
var Currencies = []Currency{CurrencyDZD, CurrencyEUR, CurrencyUSD, CurrencyGBP}

// ParseCurrency normalizes s ("DZD", " eur ") to a known Currency.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Currencies {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown currency %q", s)
}

// Balance is the per-user multi-currency snapshot held by the remote store.
type Balance struct {
	UserID            string          `json:"user_id"`
	DZD               decimal.Decimal `json:"dzd"`
	EUR               decimal.Decimal `json:"eur"`
	USD               decimal.Decimal `json:"usd"`
	GBP               decimal.Decimal `json:"gbp"`
	InvestmentBalance decimal.Decimal `json:"investment_balance"`
	UpdatedAt         time.Time       `json:"updated_at,omitzero"`
}

// Amount returns the amount held in currency c (zero for unknown currencies).
func (b Balance) Amount(c Currency) decimal.Decimal {
	switch c {
	case CurrencyDZD:
		return b.DZD
	case CurrencyEUR:
		return b.EUR
	case CurrencyUSD:
		return b.USD
	case CurrencyGBP:
		return b.GBP
	default:
		return decimal.Zero
	}
}

// BalanceUpdate is a partial balance replacement. Nil fields are left untouched
// by the server.
type BalanceUpdate struct {
	DZD               *decimal.Decimal
	EUR               *decimal.Decimal
	USD               *decimal.Decimal
	GBP               *decimal.Decimal
	InvestmentBalance *decimal.Decimal
}

// IsEmpty reports whether the update changes nothing.
func (u BalanceUpdate) IsEmpty() bool {
	return u.DZD == nil && u.EUR == nil && u.USD == nil && u.GBP == nil && u.InvestmentBalance == nil
}

// Dec is a small helper for building BalanceUpdate and other optional amounts.
func Dec(d decimal.Decimal) *decimal.Decimal {
	return &d
}
