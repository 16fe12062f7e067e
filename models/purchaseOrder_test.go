package models

import (
	"errors"
	"testing"
	"time"
)

func TestCheckInvoiceMethod_ContractLinesRequireShipment(t *testing.T) {
	lineId := 42

	order := &PurchaseOrder{
		OrderNumber:   "PO-000010",
		InvoiceMethod: InvoiceMethodOrder,
		Details: []PurchaseOrderDetail{
			{ContractLineId: &lineId},
		},
	}
	err := order.checkInvoiceMethod()
	var methodErr *InvoiceMethodError
	if !errors.As(err, &methodErr) {
		t.Fatalf("expected *InvoiceMethodError, got %v", err)
	}
	if methodErr.OrderNumber != "PO-000010" {
		t.Fatalf("error should name the order, got %q", methodErr.OrderNumber)
	}

	order.InvoiceMethod = InvoiceMethodManual
	if err := order.checkInvoiceMethod(); err == nil {
		t.Fatal("manual invoicing with contract lines must be rejected")
	}

	order.InvoiceMethod = InvoiceMethodShipment
	if err := order.checkInvoiceMethod(); err != nil {
		t.Fatalf("shipment invoicing must pass, got %v", err)
	}
}

func TestCheckInvoiceMethod_OffContractOrdersAreFree(t *testing.T) {
	order := &PurchaseOrder{
		InvoiceMethod: InvoiceMethodOrder,
		Details:       []PurchaseOrderDetail{{ProductId: 1}, {ProductId: 2}},
	}
	if err := order.checkInvoiceMethod(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckContractDates_OutsideWindowIsRejected(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	lineId := 7

	order := &PurchaseOrder{
		OrderNumber: "PO-000011",
		OrderDate:   time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		Details: []PurchaseOrderDetail{
			{
				Name:           "Rice Premium",
				ContractLineId: &lineId,
				ContractLine: &ContractLine{
					ID: lineId,
					Contract: &Contract{
						ContractNumber: "CT-000003",
						StartDate:      &start,
						EndDate:        &end,
					},
				},
			},
		},
	}

	err := order.checkContractDates()
	var dateErr *DateRangeError
	if !errors.As(err, &dateErr) {
		t.Fatalf("expected *DateRangeError, got %v", err)
	}
	if dateErr.OrderNumber != "PO-000011" || dateErr.ContractNumber != "CT-000003" {
		t.Fatalf("error should name order and contract, got %+v", dateErr)
	}

	order.OrderDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if err := order.checkContractDates(); err != nil {
		t.Fatalf("inside the window must pass, got %v", err)
	}
}

func TestCheckContractDates_IgnoresOffContractDetails(t *testing.T) {
	order := &PurchaseOrder{
		OrderDate: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
		Details:   []PurchaseOrderDetail{{ProductId: 1}},
	}
	if err := order.checkContractDates(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
