package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestApplyOriginDefaults_MirrorsReceivedQuantity(t *testing.T) {
	move := &StockMove{
		Qty:    decimal.NewFromInt(48),
		UnitId: 1,
	}
	applyOriginDefaults(move, true)

	if move.OriginQty == nil || !move.OriginQty.Equal(move.Qty) {
		t.Fatalf("expected origin qty defaulted to %s, got %v", move.Qty, move.OriginQty)
	}
	if move.OriginUnitId == nil || *move.OriginUnitId != move.UnitId {
		t.Fatalf("expected origin unit defaulted to %d, got %v", move.UnitId, move.OriginUnitId)
	}
}

func TestApplyOriginDefaults_KeepsExplicitFigures(t *testing.T) {
	explicit := decimal.NewFromInt(2)
	bagId := 3
	move := &StockMove{
		Qty:          decimal.NewFromInt(48),
		UnitId:       1,
		OriginQty:    &explicit,
		OriginUnitId: &bagId,
	}
	applyOriginDefaults(move, true)

	if !move.OriginQty.Equal(explicit) || *move.OriginUnitId != bagId {
		t.Fatalf("explicit origin figures were overwritten: %v %v", move.OriginQty, move.OriginUnitId)
	}
}

func TestApplyOriginDefaults_NotRequiredLeavesNil(t *testing.T) {
	move := &StockMove{Qty: decimal.NewFromInt(10), UnitId: 1}
	applyOriginDefaults(move, false)

	if move.OriginQty != nil || move.OriginUnitId != nil {
		t.Fatalf("origin fields must stay nil when not required: %v %v", move.OriginQty, move.OriginUnitId)
	}
}
