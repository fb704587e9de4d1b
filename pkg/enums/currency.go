package enums

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code a purchase order can be raised in.
type Currency string

const (
	CurrencyGBP Currency = "GBP"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

var currencySymbols = map[Currency]string{
	CurrencyGBP: "£",
	CurrencyUSD: "$",
	CurrencyEUR: "€",
}

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	_, ok := currencySymbols[c]
	return ok
}

// Symbol returns the display glyph, or the code itself when none is known.
func (c Currency) Symbol() string {
	if sym, ok := currencySymbols[c]; ok {
		return sym
	}
	return string(c)
}

// FormatAmount renders amount with the currency symbol and two decimals,
// e.g. "£1200.00".
func (c Currency) FormatAmount(amount decimal.Decimal) string {
	return c.Symbol() + amount.StringFixed(2)
}

// ParseCurrency accepts a code in any case with surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}
