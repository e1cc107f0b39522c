// Package moneysar provides SAR amount rounding and formatting for display
package moneysar

import (
	"github.com/shopspring/decimal"
)

// Currency is the ISO code of every amount the storefront shows
const Currency = "SAR"

// Places is the number of decimals a SAR amount is shown with
const Places = 2

// Round rounds d to halalas using HALF-UP mode
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// LineTotal is unit * quantity rounded to halalas
func LineTotal(unit decimal.Decimal, quantity int) decimal.Decimal {
	return Round(unit.Mul(decimal.NewFromInt(int64(quantity))))
}

// GrossFromNet returns gross from net using given vat rate (e.g., 0.15)
func GrossFromNet(net, vatRate decimal.Decimal) decimal.Decimal {
	return Round(net.Mul(decimal.NewFromInt(1).Add(vatRate)))
}

// Format renders d as "12.50 SAR"
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places) + " " + Currency
}
