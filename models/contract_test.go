package models

import (
	"errors"
	"testing"
	"time"
)

func fixedToday(t *testing.T, date string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		t.Fatalf("bad date %q: %v", date, err)
	}
	orig := todayFunc
	todayFunc = func() time.Time { return d }
	t.Cleanup(func() { todayFunc = orig })
	return d
}

func TestActivateContract_DraftGetsStartDate(t *testing.T) {
	asOf := fixedToday(t, "2024-03-10")

	contract := &Contract{ContractNumber: "CT-000001", State: ContractStateDraft}
	changed, err := activateContract(contract, today())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected the contract to change")
	}
	if contract.State != ContractStateActive {
		t.Fatalf("expected Active, got %s", contract.State)
	}
	if contract.StartDate == nil || !contract.StartDate.Equal(asOf) {
		t.Fatalf("expected start date %s, got %v", asOf, contract.StartDate)
	}
}

func TestActivateContract_KeepsExplicitStartDate(t *testing.T) {
	fixedToday(t, "2024-03-10")

	explicit := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	contract := &Contract{State: ContractStateDraft, StartDate: &explicit}
	if _, err := activateContract(contract, today()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !contract.StartDate.Equal(explicit) {
		t.Fatalf("explicit start date was overwritten: %v", contract.StartDate)
	}
}

func TestActivateContract_ActiveIsNoOp(t *testing.T) {
	contract := &Contract{State: ContractStateActive}
	changed, err := activateContract(contract, today())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("activating an active contract must not change it")
	}
}

func TestActivateContract_CancelledIsRejected(t *testing.T) {
	contract := &Contract{ContractNumber: "CT-000007", State: ContractStateCancelled}
	_, err := activateContract(contract, today())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	var transitionErr *ContractTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected *ContractTransitionError, got %T", err)
	}
	if transitionErr.ContractNumber != "CT-000007" {
		t.Fatalf("error should name the contract, got %q", transitionErr.ContractNumber)
	}
	if contract.State != ContractStateCancelled {
		t.Fatalf("rejected transition must not mutate state, got %s", contract.State)
	}
}

func TestCancelContract_ActiveGetsEndDate(t *testing.T) {
	asOf := fixedToday(t, "2024-09-01")

	contract := &Contract{State: ContractStateActive}
	changed, err := cancelContract(contract, today())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed || contract.State != ContractStateCancelled {
		t.Fatalf("expected Cancelled, got %s", contract.State)
	}
	if contract.EndDate == nil || !contract.EndDate.Equal(asOf) {
		t.Fatalf("expected end date %s, got %v", asOf, contract.EndDate)
	}
}

func TestCancelContract_DraftIsRejected(t *testing.T) {
	contract := &Contract{State: ContractStateDraft}
	_, err := cancelContract(contract, today())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelContract_CancelledIsNoOp(t *testing.T) {
	end := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	contract := &Contract{State: ContractStateCancelled, EndDate: &end}
	changed, err := cancelContract(contract, today())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatal("cancelling twice must not change the contract")
	}
	if !contract.EndDate.Equal(end) {
		t.Fatalf("end date was overwritten: %v", contract.EndDate)
	}
}

func TestCheckLineProductsUnique(t *testing.T) {
	ok := []NewContractLine{{ProductId: 1}, {ProductId: 2}}
	if err := checkLineProductsUnique(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := []NewContractLine{{ProductId: 1}, {ProductId: 2}, {ProductId: 1}}
	if err := checkLineProductsUnique(dup); !errors.Is(err, ErrDuplicateContractProduct) {
		t.Fatalf("expected ErrDuplicateContractProduct, got %v", err)
	}
}

func TestContractDateViolation(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	date := func(s string) time.Time {
		d, _ := time.Parse("2006-01-02", s)
		return d
	}

	cases := []struct {
		name      string
		contract  Contract
		orderDate time.Time
		violates  bool
	}{
		{"inside window", Contract{StartDate: &start, EndDate: &end}, date("2024-03-15"), false},
		{"on start boundary", Contract{StartDate: &start, EndDate: &end}, date("2024-01-01"), false},
		{"on end boundary", Contract{StartDate: &start, EndDate: &end}, date("2024-06-30"), false},
		{"on end boundary with time of day", Contract{StartDate: &start, EndDate: &end},
			time.Date(2024, 6, 30, 15, 4, 5, 0, time.UTC), false},
		{"on start boundary with time of day", Contract{StartDate: &start, EndDate: &end},
			time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC), false},
		{"day after end with time of day", Contract{StartDate: &start, EndDate: &end},
			time.Date(2024, 7, 1, 0, 0, 1, 0, time.UTC), true},
		{"before window", Contract{StartDate: &start, EndDate: &end}, date("2023-12-31"), true},
		{"after window", Contract{StartDate: &start, EndDate: &end}, date("2024-07-15"), true},
		{"open start", Contract{EndDate: &end}, date("2020-01-01"), false},
		{"open end", Contract{StartDate: &start}, date("2030-01-01"), false},
		{"no bounds", Contract{}, date("2024-07-15"), false},
	}
	for _, tc := range cases {
		if got := contractDateViolation(&tc.contract, tc.orderDate); got != tc.violates {
			t.Fatalf("%s: expected violation=%v, got %v", tc.name, tc.violates, got)
		}
	}
}
