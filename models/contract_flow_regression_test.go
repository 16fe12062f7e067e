package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/models"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/shopspring/decimal"
)

// Regression: the whole contract flow end to end. A purchase line must
// auto-link to the supplier's active contract, receipts must carry origin
// figures, consumption must reflect the converted quantities and billing on
// an Origin-basis contract must charge the supplier-side quantity, with
// voided bills reopening the balance.
func TestContractFlow_AutoLinkReceiptAndOriginBilling(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "contracts_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetBusinessIdInContext(ctx, "biz-regression")
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	kg, err := models.CreateProductUnit(ctx, &models.NewProductUnit{
		Name: "Kilogram", Abbreviation: "kg", Precision: "2",
		Category: models.UnitCategoryWeight, Factor: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("create kg: %v", err)
	}
	bag, err := models.CreateProductUnit(ctx, &models.NewProductUnit{
		Name: "Bag 25kg", Abbreviation: "bag", Precision: "2",
		Category: models.UnitCategoryWeight, Factor: decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("create bag: %v", err)
	}

	rice, err := models.CreateProduct(ctx, &models.NewProduct{
		Name: "Rice Premium", Sku: "RICE-PREM",
		UnitId: kg.ID, PurchaseUnitId: bag.ID,
		CostPrice: decimal.NewFromInt(1200),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Golden Harvest"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{Name: "Main"})
	if err != nil {
		t.Fatalf("create warehouse: %v", err)
	}

	start := time.Now().UTC().AddDate(0, -1, 0).Truncate(24 * time.Hour)
	end := start.AddDate(1, 0, 0)
	contract, err := models.CreateContract(ctx, &models.NewContract{
		SupplierId:    supplier.ID,
		ContractBasis: models.QuantityBasisDestination,
		InvoiceBasis:  models.QuantityBasisOrigin,
		StartDate:     &start,
		EndDate:       &end,
		Lines: []models.NewContractLine{
			{ProductId: rice.ID, AgreedQty: decimal.NewFromInt(400), AgreedUnitRate: decimal.NewFromInt(29500)},
		},
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	if _, err := models.ActivateContracts(ctx, []int{contract.ID}); err != nil {
		t.Fatalf("activate contract: %v", err)
	}

	// active contracts are frozen unless the relaxation flag is set
	_, err = models.UpdateContract(ctx, contract.ID, &models.NewContract{
		SupplierId:    supplier.ID,
		ContractBasis: models.QuantityBasisDestination,
		InvoiceBasis:  models.QuantityBasisOrigin,
	})
	if err == nil || !strings.Contains(err.Error(), "only draft contracts") {
		t.Fatalf("expected draft-only edit rejection for active contract, got %v", err)
	}

	// a clone starts over as a fresh draft: new number, dates cleared,
	// lines re-parented
	clone, err := models.CloneContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("clone contract: %v", err)
	}
	if clone.ID == contract.ID || clone.ContractNumber == contract.ContractNumber {
		t.Fatalf("expected a fresh contract, got id=%d number=%s", clone.ID, clone.ContractNumber)
	}
	if clone.State != models.ContractStateDraft || clone.StartDate != nil || clone.EndDate != nil {
		t.Fatalf("expected dateless draft clone, got %s %v %v", clone.State, clone.StartDate, clone.EndDate)
	}
	if len(clone.Lines) != 1 || clone.Lines[0].ID == contract.Lines[0].ID ||
		clone.Lines[0].ContractId != clone.ID || clone.Lines[0].ProductId != rice.ID {
		t.Fatalf("expected one re-parented line on the clone, got %+v", clone.Lines)
	}

	// an Order-method purchase linking the contract must be rejected
	lineId := contract.Lines[0].ID
	_, err = models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:  supplier.ID,
		OrderDate:   time.Now().UTC(),
		WarehouseId: warehouse.ID,
		Details: []models.NewPurchaseOrderDetail{
			{ProductId: rice.ID, Qty: decimal.NewFromInt(1), UnitId: bag.ID, ContractLineId: &lineId},
		},
	})
	var methodErr *models.InvoiceMethodError
	if !errors.As(err, &methodErr) {
		t.Fatalf("expected *InvoiceMethodError for Order-method contract purchase, got %v", err)
	}

	// a purchase dated outside the contract window must be rejected
	_, err = models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:    supplier.ID,
		OrderDate:     end.AddDate(0, 1, 0),
		InvoiceMethod: models.InvoiceMethodShipment,
		WarehouseId:   warehouse.ID,
		Details: []models.NewPurchaseOrderDetail{
			{ProductId: rice.ID, Qty: decimal.NewFromInt(1), UnitId: bag.ID, ContractLineId: &lineId},
		},
	})
	var dateErr *models.DateRangeError
	if !errors.As(err, &dateErr) {
		t.Fatalf("expected *DateRangeError for out-of-window purchase, got %v", err)
	}

	// a product no contract covers stays off-contract, without error
	salt, err := models.CreateProduct(ctx, &models.NewProduct{
		Name: "Salt Coarse", Sku: "SALT-CRS",
		UnitId: kg.ID, PurchaseUnitId: kg.ID,
		CostPrice: decimal.NewFromInt(300),
	})
	if err != nil {
		t.Fatalf("create salt: %v", err)
	}
	if def, derr := models.DefaultContractLine(ctx, supplier.ID, salt.ID, time.Now().UTC(), kg.ID); derr != nil || def != nil {
		t.Fatalf("expected no contract line for uncovered product, got %+v, %v", def, derr)
	}
	offOrder, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:    supplier.ID,
		OrderDate:     time.Now().UTC(),
		InvoiceMethod: models.InvoiceMethodShipment,
		WarehouseId:   warehouse.ID,
		Details: []models.NewPurchaseOrderDetail{
			{ProductId: salt.ID, Qty: decimal.NewFromInt(10), UnitId: kg.ID},
		},
	})
	if err != nil {
		t.Fatalf("create off-contract order: %v", err)
	}
	if offOrder.Details[0].ContractLineId != nil {
		t.Fatalf("expected no auto-link for uncovered product, got line %d", *offOrder.Details[0].ContractLineId)
	}

	// a valid shipment-method purchase auto-links without naming the line
	order, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId:    supplier.ID,
		OrderDate:     time.Now().UTC(),
		InvoiceMethod: models.InvoiceMethodShipment,
		WarehouseId:   warehouse.ID,
		Details: []models.NewPurchaseOrderDetail{
			{ProductId: rice.ID, Qty: decimal.NewFromInt(2), UnitId: bag.ID},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order: %v", err)
	}
	if len(order.Details) != 1 || order.Details[0].ContractLineId == nil {
		t.Fatalf("expected the detail to auto-link to the contract line, got %+v", order.Details)
	}
	if *order.Details[0].ContractLineId != lineId {
		t.Fatalf("auto-link picked line %d, expected %d", *order.Details[0].ContractLineId, lineId)
	}
	if order.Details[0].UnitRate.String() != "29500" {
		t.Fatalf("expected agreed rate 29500 on the detail, got %s", order.Details[0].UnitRate)
	}

	if _, err := models.UpdatePurchaseOrderStatus(ctx, order.ID, models.PurchaseOrderStatusConfirmed); err != nil {
		t.Fatalf("confirm order: %v", err)
	}
	if _, err := models.UpdatePurchaseOrderStatus(ctx, order.ID, models.PurchaseOrderStatusProcessing); err != nil {
		t.Fatalf("process order: %v", err)
	}

	// processing created one pending receipt per goods detail
	moves, err := models.GetStockMoves(ctx, &warehouse.ID, nil)
	if err != nil {
		t.Fatalf("list stock moves: %v", err)
	}
	if len(moves) != 1 {
		t.Fatalf("expected 1 receipt move, got %d", len(moves))
	}
	move := moves[0]
	if move.State != models.StockMoveStateAssigned {
		t.Fatalf("expected Assigned move, got %s", move.State)
	}
	if move.OriginQty == nil || move.OriginQty.String() != "2" {
		t.Fatalf("expected origin qty defaulted to 2, got %v", move.OriginQty)
	}

	// consumption counts the ordered quantity once the order is processing
	quantities, err := models.GetContractLineQuantities(ctx, lineId)
	if err != nil {
		t.Fatalf("line quantities: %v", err)
	}
	if quantities.DestinationQty.String() != "50" {
		t.Fatalf("expected destination 50 kg for 2 bags, got %s", quantities.DestinationQty)
	}
	if quantities.ConsumedQty.String() != "50" {
		t.Fatalf("destination-basis consumption should be 50, got %s", quantities.ConsumedQty)
	}

	// supplier shipped 2.2 bags, correct the origin figure before receipt
	correctedOrigin := decimal.RequireFromString("2.2")
	_, err = models.UpdateStockMove(ctx, move.ID, &models.NewStockMove{
		WarehouseId:  move.WarehouseId,
		ProductId:    move.ProductId,
		Qty:          move.Qty,
		UnitId:       move.UnitId,
		MoveDate:     move.MoveDate,
		OriginType:   move.OriginType,
		OriginId:     move.OriginId,
		OriginQty:    &correctedOrigin,
		OriginUnitId: move.OriginUnitId,
	})
	if err != nil {
		t.Fatalf("update stock move: %v", err)
	}
	if _, err := models.MarkStockMoveDone(ctx, move.ID); err != nil {
		t.Fatalf("mark move done: %v", err)
	}

	// origin-basis billing charges what the supplier shipped
	bill, err := models.CreateBillFromPurchaseOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if len(bill.Details) != 1 {
		t.Fatalf("expected 1 bill detail, got %d", len(bill.Details))
	}
	if bill.Details[0].Qty.String() != "2.2" {
		t.Fatalf("expected billed qty 2.2 bags from origin figures, got %s", bill.Details[0].Qty)
	}

	// everything is billed, a second bill has nothing to charge
	if _, err := models.CreateBillFromPurchaseOrder(ctx, order.ID); err == nil {
		t.Fatal("expected an error billing a fully billed order")
	}

	// voiding reopens the balance and the replacement picks it up again
	replacement, err := models.VoidAndRecreateBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("void and recreate: %v", err)
	}
	if replacement.ID == bill.ID {
		t.Fatal("expected a fresh bill")
	}
	if replacement.Details[0].Qty.String() != "2.2" {
		t.Fatalf("replacement bill should charge 2.2 bags, got %s", replacement.Details[0].Qty)
	}

	// cancel rejects a draft contract; the one active contract cancels fine
	if _, err := models.CancelContracts(ctx, []int{contract.ID}); err != nil {
		t.Fatalf("cancel contract: %v", err)
	}
	cancelled, err := models.GetContract(ctx, contract.ID)
	if err != nil {
		t.Fatalf("get contract: %v", err)
	}
	if cancelled.State != models.ContractStateCancelled || cancelled.EndDate == nil {
		t.Fatalf("expected cancelled contract with end date, got %s %v", cancelled.State, cancelled.EndDate)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("contracts-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("contracts-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=contracts_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
