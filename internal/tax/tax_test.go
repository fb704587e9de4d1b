package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func line(q, p string) LineInput {
	return LineInput{Quantity: d(q), UnitPrice: d(p)}
}

func assertAmounts(t *testing.T, res Result, subtotal, taxAmount, total string) {
	t.Helper()
	assert.True(t, res.SubtotalAmount.Equal(d(subtotal)), "subtotal %s != %s", res.SubtotalAmount, subtotal)
	assert.True(t, res.TaxAmount.Equal(d(taxAmount)), "tax %s != %s", res.TaxAmount, taxAmount)
	assert.True(t, res.TotalAmount.Equal(d(total)), "total %s != %s", res.TotalAmount, total)
}

func TestCalculate(t *testing.T) {
	cases := []struct {
		name     string
		items    []LineInput
		mode     enums.TaxMode
		rate     string
		subtotal string
		tax      string
		total    string
	}{
		{"none", []LineInput{line("2", "50"), line("1", "25.5")}, enums.TaxModeNone, "20", "125.50", "0", "125.50"},
		{"exclusive", []LineInput{line("2", "50"), line("1", "25.5")}, enums.TaxModeExclusive, "20", "125.50", "25.10", "150.60"},
		{"inclusive", []LineInput{line("1", "120")}, enums.TaxModeInclusive, "20", "100.00", "20.00", "120.00"},
		{"inclusive rounding", []LineInput{line("1", "10")}, enums.TaxModeInclusive, "20", "8.33", "1.67", "10.00"},
		{"exclusive half away from zero", []LineInput{line("1", "0.25")}, enums.TaxModeExclusive, "10", "0.25", "0.03", "0.28"},
		{"fractional quantity", []LineInput{line("1.5", "3.3333")}, enums.TaxModeNone, "0", "5.00", "0", "5.00"},
		{"zero rate exclusive", []LineInput{line("3", "1.11")}, enums.TaxModeExclusive, "0", "3.33", "0", "3.33"},
		{"negative propagates", []LineInput{line("-1", "10")}, enums.TaxModeExclusive, "20", "-10.00", "-2.00", "-12.00"},
		{"unknown mode as none", []LineInput{line("1", "9.999")}, enums.TaxMode("VAT"), "20", "10.00", "0", "10.00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Calculate(tc.items, tc.mode, d(tc.rate))
			assertAmounts(t, res, tc.subtotal, tc.tax, tc.total)
		})
	}
}

func TestCalculateEmptyInputYieldsZeros(t *testing.T) {
	for _, mode := range []enums.TaxMode{enums.TaxModeNone, enums.TaxModeExclusive, enums.TaxModeInclusive} {
		res := Calculate(nil, mode, d("20"))
		assertAmounts(t, res, "0", "0", "0")
		assert.True(t, res.LineItemsTotal.IsZero())
	}
}

func TestCalculateAmountsReconcile(t *testing.T) {
	items := []LineInput{line("3", "19.99"), line("0.5", "7.77"), line("12", "0.33")}
	for _, rate := range []string{"5", "12.5", "17.5", "20"} {
		excl := Calculate(items, enums.TaxModeExclusive, d(rate))
		assert.True(t, excl.TotalAmount.Equal(excl.SubtotalAmount.Add(excl.TaxAmount)))

		incl := Calculate(items, enums.TaxModeInclusive, d(rate))
		assert.True(t, incl.TotalAmount.Equal(incl.SubtotalAmount.Add(incl.TaxAmount)))
		assert.True(t, incl.TotalAmount.Equal(incl.LineItemsTotal.Round(2)))
	}
}

func TestCalculateInclusiveMinusHundredDoesNotPanic(t *testing.T) {
	res := Calculate([]LineInput{line("1", "10")}, enums.TaxModeInclusive, d("-100"))
	assertAmounts(t, res, "10", "0", "10")
}

func TestLineTotal(t *testing.T) {
	assert.True(t, LineTotal(d("3"), d("1.005")).Equal(d("3.02")))
	assert.True(t, LineTotal(d("2"), d("0.125")).Equal(d("0.25")))
	assert.True(t, LineTotal(d("0"), d("99")).IsZero())
}
