// Package tax computes purchase order amounts from line items.
package tax

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/poflow-backend/pkg/enums"
)

// MoneyPlaces is the scale of every persisted amount.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// LineInput is the priced part of a line item.
type LineInput struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Result carries the rounded order amounts. LineItemsTotal is the unrounded
// sum of quantity x unit price.
type Result struct {
	SubtotalAmount decimal.Decimal `json:"subtotal_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	LineItemsTotal decimal.Decimal `json:"line_items_total"`
}

// Calculate applies mode and rate (a percentage) to items. Rounding is half
// away from zero. Inputs are not validated; negative values propagate.
// Unknown modes are treated as NONE.
func Calculate(items []LineInput, mode enums.TaxMode, rate decimal.Decimal) Result {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Quantity.Mul(item.UnitPrice))
	}

	res := Result{LineItemsTotal: sum}
	switch mode {
	case enums.TaxModeExclusive:
		res.SubtotalAmount = round(sum)
		res.TaxAmount = round(res.SubtotalAmount.Mul(rate).Div(hundred))
		res.TotalAmount = res.SubtotalAmount.Add(res.TaxAmount)
	case enums.TaxModeInclusive:
		res.TotalAmount = round(sum)
		divisor := decimal.NewFromInt(1).Add(rate.Div(hundred))
		if divisor.IsZero() {
			res.SubtotalAmount = res.TotalAmount
			res.TaxAmount = decimal.Zero
			break
		}
		res.SubtotalAmount = round(res.TotalAmount.Div(divisor))
		res.TaxAmount = res.TotalAmount.Sub(res.SubtotalAmount)
	default:
		res.SubtotalAmount = round(sum)
		res.TaxAmount = decimal.Zero
		res.TotalAmount = res.SubtotalAmount
	}
	return res
}

// LineTotal is the persisted total of a single line.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return round(quantity.Mul(unitPrice))
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
