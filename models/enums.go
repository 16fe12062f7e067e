package models

import (
	"errors"
	"strconv"
)

type ContractState string

const (
	ContractStateDraft     ContractState = "Draft"
	ContractStateActive    ContractState = "Active"
	ContractStateCancelled ContractState = "Cancelled"
)

// legal transitions only; everything else is rejected with ErrInvalidTransition
var contractTransitions = map[ContractState]ContractState{
	ContractStateDraft:  ContractStateActive,
	ContractStateActive: ContractStateCancelled,
}

func (s ContractState) CanTransitionTo(next ContractState) bool {
	return contractTransitions[s] == next
}

type QuantityBasis string

const (
	QuantityBasisOrigin      QuantityBasis = "Origin"
	QuantityBasisDestination QuantityBasis = "Destination"
)

func (b QuantityBasis) valid() bool {
	return b == QuantityBasisOrigin || b == QuantityBasisDestination
}

type InvoiceMethod string

const (
	InvoiceMethodOrder    InvoiceMethod = "Order"
	InvoiceMethodShipment InvoiceMethod = "Shipment"
	InvoiceMethodManual   InvoiceMethod = "Manual"
)

func (m InvoiceMethod) valid() bool {
	switch m {
	case InvoiceMethodOrder, InvoiceMethodShipment, InvoiceMethodManual:
		return true
	}
	return false
}

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft      PurchaseOrderStatus = "Draft"
	PurchaseOrderStatusConfirmed  PurchaseOrderStatus = "Confirmed"
	PurchaseOrderStatusProcessing PurchaseOrderStatus = "Processing"
	PurchaseOrderStatusDone       PurchaseOrderStatus = "Done"
	PurchaseOrderStatusCancelled  PurchaseOrderStatus = "Cancelled"
)

// IsConsuming reports whether lines of an order in this status count toward
// contract consumption. Draft/quote stages never consume.
func (s PurchaseOrderStatus) IsConsuming() bool {
	return s == PurchaseOrderStatusProcessing || s == PurchaseOrderStatusDone
}

type StockMoveState string

const (
	StockMoveStateDraft     StockMoveState = "Draft"
	StockMoveStateAssigned  StockMoveState = "Assigned"
	StockMoveStateDone      StockMoveState = "Done"
	StockMoveStateCancelled StockMoveState = "Cancelled"
)

// StockMoveOriginType is the explicit variant tag of a move's origin
// document. New origin kinds get their own constant.
type StockMoveOriginType string

const (
	StockMoveOriginNone                StockMoveOriginType = ""
	StockMoveOriginPurchaseOrderDetail StockMoveOriginType = "purchase_order_details"
)

func (t StockMoveOriginType) valid() bool {
	return t == StockMoveOriginNone || t == StockMoveOriginPurchaseOrderDetail
}

type BillStatus string

const (
	BillStatusDraft     BillStatus = "Draft"
	BillStatusConfirmed BillStatus = "Confirmed"
	BillStatusPaid      BillStatus = "Paid"
	BillStatusVoided    BillStatus = "Voided"
)

type BillDetailType string

const (
	BillDetailTypeLine BillDetailType = "Line"
	BillDetailTypeNote BillDetailType = "Note"
)

type ProductType string

const (
	ProductTypeGoods   ProductType = "G"
	ProductTypeService ProductType = "S"
)

type UnitCategory string

const (
	UnitCategoryCount  UnitCategory = "Count"
	UnitCategoryWeight UnitCategory = "Weight"
	UnitCategoryVolume UnitCategory = "Volume"
	UnitCategoryLength UnitCategory = "Length"
)

type Precision string

const (
	PrecisionZero  Precision = "0"
	PrecisionOne   Precision = "1"
	PrecisionTwo   Precision = "2"
	PrecisionThree Precision = "3"
	PrecisionFour  Precision = "4"
)

// Digits returns the numeric rounding precision (defaults to 2 on bad data).
func (p Precision) Digits() int32 {
	n, err := strconv.Atoi(string(p))
	if err != nil || n < 0 || n > 4 {
		return 2
	}
	return int32(n)
}

var errInvalidPrecision = errors.New("invalid precision")

func (p Precision) validate() error {
	switch p {
	case PrecisionZero, PrecisionOne, PrecisionTwo, PrecisionThree, PrecisionFour:
		return nil
	}
	return errInvalidPrecision
}
