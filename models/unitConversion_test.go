package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func weightUnit(id int, factor string, precision Precision) *ProductUnit {
	return &ProductUnit{
		ID:        id,
		Factor:    decimal.RequireFromString(factor),
		Precision: precision,
		Category:  UnitCategoryWeight,
	}
}

func TestConvertQty_AcrossFactors(t *testing.T) {
	kg := weightUnit(1, "1", "2")
	g := weightUnit(2, "0.001", "0")
	bag := weightUnit(3, "25", "2")

	cases := []struct {
		name     string
		qty      string
		from, to *ProductUnit
		expected string
	}{
		{"bag to kg", "2", bag, kg, "50"},
		{"kg to bag", "50", kg, bag, "2"},
		{"g to kg", "1500", g, kg, "1.5"},
		{"kg to g", "1.5", kg, g, "1500"},
		{"same unit untouched", "3.333", kg, kg, "3.333"},
		{"rounds to target precision", "1", g, kg, "0"},
	}
	for _, tc := range cases {
		got, err := ConvertQty(decimal.RequireFromString(tc.qty), tc.from, tc.to)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got.String() != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got.String())
		}
	}
}

func TestConvertQty_RoundTripStaysWithinPrecision(t *testing.T) {
	kg := weightUnit(1, "1", "2")
	bag := weightUnit(3, "25", "2")

	start := decimal.RequireFromString("7.5")
	inKg, err := ConvertQty(start, bag, kg)
	if err != nil {
		t.Fatalf("bag -> kg: %v", err)
	}
	back, err := ConvertQty(inKg, kg, bag)
	if err != nil {
		t.Fatalf("kg -> bag: %v", err)
	}
	if !back.Equal(start) {
		t.Fatalf("round trip drifted: started %s, came back %s", start, back)
	}
}

func TestConvertQty_RejectsCategoryMismatch(t *testing.T) {
	kg := weightUnit(1, "1", "2")
	ltr := &ProductUnit{ID: 9, Factor: decimal.NewFromInt(1), Precision: "2", Category: UnitCategoryVolume}

	_, err := ConvertQty(decimal.NewFromInt(1), kg, ltr)
	if !errors.Is(err, ErrUnitCategoryMismatch) {
		t.Fatalf("expected ErrUnitCategoryMismatch, got %v", err)
	}
	_, err = ConvertQty(decimal.NewFromInt(1), nil, kg)
	if !errors.Is(err, ErrUnitCategoryMismatch) {
		t.Fatalf("expected ErrUnitCategoryMismatch for nil unit, got %v", err)
	}
}

func TestConvertRate_ScalesInversely(t *testing.T) {
	kg := weightUnit(1, "1", "2")
	bag := weightUnit(3, "25", "2")

	// 29500 per bag is 1180 per kg
	perKg, err := ConvertRate(decimal.NewFromInt(29500), bag, kg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perKg.String() != "1180" {
		t.Fatalf("expected 1180 per kg, got %s", perKg.String())
	}

	perBag, err := ConvertRate(perKg, kg, bag)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perBag.String() != "29500" {
		t.Fatalf("expected 29500 per bag, got %s", perBag.String())
	}
}
