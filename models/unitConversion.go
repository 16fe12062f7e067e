package models

import (
	"github.com/shopspring/decimal"
)

// rate (price-per-unit) values keep the decimal(20,4) column precision
const rateDigits = 4

// ConvertQty converts a quantity expressed in `from` into `to`, rounded to
// the target unit's precision. Both units must share a category; converting
// e.g. Weight into Volume is a data error, not something to guess at.
func ConvertQty(qty decimal.Decimal, from *ProductUnit, to *ProductUnit) (decimal.Decimal, error) {
	if from == nil || to == nil {
		return decimal.Zero, ErrUnitCategoryMismatch
	}
	if from.Category != to.Category {
		return decimal.Zero, ErrUnitCategoryMismatch
	}
	if from.ID == to.ID && from.ID != 0 {
		return qty, nil
	}
	if to.Factor.Sign() <= 0 {
		return decimal.Zero, ErrUnitCategoryMismatch
	}
	converted := qty.Mul(from.Factor).Div(to.Factor)
	return converted.Round(to.Precision.Digits()), nil
}

// ConvertRate converts a per-unit rate (price) from `from` units into `to`
// units. A rate scales inversely to a quantity: the bigger the unit, the
// bigger the per-unit price.
func ConvertRate(rate decimal.Decimal, from *ProductUnit, to *ProductUnit) (decimal.Decimal, error) {
	if from == nil || to == nil {
		return decimal.Zero, ErrUnitCategoryMismatch
	}
	if from.Category != to.Category {
		return decimal.Zero, ErrUnitCategoryMismatch
	}
	if from.ID == to.ID && from.ID != 0 {
		return rate, nil
	}
	if from.Factor.Sign() <= 0 {
		return decimal.Zero, ErrUnitCategoryMismatch
	}
	converted := rate.Mul(to.Factor).Div(from.Factor)
	return converted.Round(rateDigits), nil
}
