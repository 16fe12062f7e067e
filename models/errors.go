package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is wrapped by ContractTransitionError so callers can
// errors.Is against it.
var ErrInvalidTransition = errors.New("invalid contract state transition")

type ContractTransitionError struct {
	ContractNumber string
	From           ContractState
	To             ContractState
}

func (e *ContractTransitionError) Error() string {
	return fmt.Sprintf("contract %q cannot move from %s to %s", e.ContractNumber, e.From, e.To)
}

func (e *ContractTransitionError) Unwrap() error { return ErrInvalidTransition }

// DateRangeError blocks saving a purchase order whose date falls outside the
// validity window of a contract one of its lines draws against.
type DateRangeError struct {
	OrderNumber    string
	ContractNumber string
	LineName       string
}

func (e *DateRangeError) Error() string {
	return fmt.Sprintf("the date of purchase order %q is not in the period of contract %q selected in line %q",
		e.OrderNumber, e.ContractNumber, e.LineName)
}

// InvoiceMethodError blocks saving a purchase order that has contract-linked
// lines but is not billed on shipment.
type InvoiceMethodError struct {
	OrderNumber string
}

func (e *InvoiceMethodError) Error() string {
	return fmt.Sprintf("purchase order %q has lines linked to a purchase contract but its invoice method is not %q",
		e.OrderNumber, InvoiceMethodShipment)
}

// ErrUnitCategoryMismatch is a programming/data error: quantities can only be
// converted between units sharing a category.
var ErrUnitCategoryMismatch = errors.New("unit conversion across categories")

var ErrDuplicateContractProduct = errors.New("there cannot be two lines for the same product in a contract")

// ErrOriginQuantityRequired rejects completing a receipt move that must carry
// the supplier-side quantity but doesn't.
var ErrOriginQuantityRequired = errors.New("origin quantity is required to finish this move")
