package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func consumptionFixture() (*ContractLine, *ProductUnit, *ProductUnit) {
	kg := weightUnit(1, "1", "2")
	bag := weightUnit(3, "25", "2")
	line := &ContractLine{
		ID:        10,
		ProductId: 5,
		AgreedQty: decimal.NewFromInt(400),
		Contract:  &Contract{ContractBasis: QuantityBasisDestination},
		Product:   &Product{ID: 5, Name: "Rice Premium", Unit: kg},
	}
	return line, kg, bag
}

func TestComputeLineQuantities_DestinationBasis(t *testing.T) {
	line, kg, bag := consumptionFixture()

	// 30 kg ordered directly plus 45 kg ordered as 1.8 bags
	details := []*PurchaseOrderDetail{
		{ID: 1, Qty: decimal.NewFromInt(30), Unit: kg},
		{ID: 2, Qty: decimal.RequireFromString("1.8"), Unit: bag},
	}

	got, err := computeLineQuantities(line, details, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DestinationQty.String() != "75" {
		t.Fatalf("expected destination 75, got %s", got.DestinationQty)
	}
	if got.ConsumedQty.String() != "75" {
		t.Fatalf("destination basis: expected consumed 75, got %s", got.ConsumedQty)
	}
	if got.RemainingQty.String() != "325" {
		t.Fatalf("expected remaining 325, got %s", got.RemainingQty)
	}
}

func TestComputeLineQuantities_OriginBasisPrefersOriginFigures(t *testing.T) {
	line, kg, bag := consumptionFixture()
	line.Contract.ContractBasis = QuantityBasisOrigin

	details := []*PurchaseOrderDetail{
		{ID: 1, Qty: decimal.NewFromInt(100), Unit: kg},
	}
	originQty := decimal.NewFromInt(2)
	moves := []*StockMove{
		// supplier shipped 2 bags, 48 kg arrived
		{Qty: decimal.NewFromInt(48), Unit: kg, State: StockMoveStateDone, OriginQty: &originQty, OriginUnit: bag},
		// no origin figure captured, the received quantity stands in
		{Qty: decimal.NewFromInt(5), Unit: kg, State: StockMoveStateAssigned},
	}

	got, err := computeLineQuantities(line, details, moves)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OriginQty.String() != "55" {
		t.Fatalf("expected origin 55 (2 bags + 5 kg), got %s", got.OriginQty)
	}
	if got.ConsumedQty.String() != "55" {
		t.Fatalf("origin basis: expected consumed 55, got %s", got.ConsumedQty)
	}
	if got.DestinationQty.String() != "100" {
		t.Fatalf("expected destination 100, got %s", got.DestinationQty)
	}
}

func TestComputeLineQuantities_OriginUnitDefaultsToMoveUnit(t *testing.T) {
	line, kg, _ := consumptionFixture()
	line.Contract.ContractBasis = QuantityBasisOrigin

	originQty := decimal.NewFromInt(52)
	moves := []*StockMove{
		{Qty: decimal.NewFromInt(50), Unit: kg, State: StockMoveStateDone, OriginQty: &originQty},
	}
	got, err := computeLineQuantities(line, nil, moves)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OriginQty.String() != "52" {
		t.Fatalf("expected origin 52 in the move's own unit, got %s", got.OriginQty)
	}
}

func TestComputeLineQuantities_EmptyInputsAreZero(t *testing.T) {
	line, _, _ := consumptionFixture()

	got, err := computeLineQuantities(line, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.ConsumedQty.IsZero() || !got.OriginQty.IsZero() || !got.DestinationQty.IsZero() {
		t.Fatalf("expected all-zero consumption, got %+v", got)
	}
	if !got.RemainingQty.Equal(line.AgreedQty) {
		t.Fatalf("expected remaining = agreed, got %s", got.RemainingQty)
	}
}

func TestComputeLineQuantities_RequiresLoadedAssociations(t *testing.T) {
	line := &ContractLine{ID: 1}
	if _, err := computeLineQuantities(line, nil, nil); err == nil {
		t.Fatal("expected an error for missing associations")
	}
}

func TestComputeLineQuantities_CategoryMismatchSurfaces(t *testing.T) {
	line, _, _ := consumptionFixture()
	ltr := &ProductUnit{ID: 9, Factor: decimal.NewFromInt(1), Precision: "2", Category: UnitCategoryVolume}

	details := []*PurchaseOrderDetail{
		{ID: 1, Qty: decimal.NewFromInt(10), Unit: ltr},
	}
	_, err := computeLineQuantities(line, details, nil)
	if !errors.Is(err, ErrUnitCategoryMismatch) {
		t.Fatalf("expected ErrUnitCategoryMismatch, got %v", err)
	}
}
