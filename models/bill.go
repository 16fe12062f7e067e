package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/shopspring/decimal"
)

type Bill struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"index;not null" json:"business_id"`
	SupplierId      int             `gorm:"index;not null" json:"supplier_id"`
	Supplier        *Supplier       `gorm:"foreignKey:SupplierId" json:"supplier,omitempty"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	PurchaseOrder   *PurchaseOrder  `gorm:"foreignKey:PurchaseOrderId" json:"purchase_order,omitempty"`
	BillNumber      string          `gorm:"size:255;not null" json:"bill_number"`
	SequenceNo      decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	BillDate        time.Time       `gorm:"not null" json:"bill_date"`
	CurrentStatus   BillStatus      `gorm:"type:enum('Draft','Confirmed','Paid','Voided');not null;default:'Draft'" json:"current_status"`
	Details         []BillDetail    `gorm:"foreignKey:BillId;constraint:OnDelete:CASCADE" json:"details"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b Bill) GetBusinessId() string {
	return b.BusinessId
}

type BillDetail struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	BillId                int             `gorm:"index;not null" json:"bill_id"`
	PurchaseOrderDetailId *int            `gorm:"index;default:null" json:"purchase_order_detail_id"`
	ProductId             int             `gorm:"not null" json:"product_id"`
	Product               *Product        `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	Name                  string          `gorm:"size:255" json:"name"`
	DetailType            BillDetailType  `gorm:"type:enum('Line','Note');not null;default:'Line'" json:"detail_type"`
	Qty                   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitId                int             `gorm:"not null" json:"unit_id"`
	Unit                  *ProductUnit    `gorm:"foreignKey:UnitId" json:"unit,omitempty"`
	UnitRate              decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_rate"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// billedQtySoFar sums what earlier bills already charged for a purchase
// detail, in the detail's unit. Voided bills never count, so voiding and
// re-billing restores the full billable balance.
func billedQtySoFar(ctx context.Context, businessId string, detail *PurchaseOrderDetail) (decimal.Decimal, error) {
	db := config.GetDB()
	var prior []*BillDetail
	err := db.WithContext(ctx).
		Joins("JOIN bills ON bills.id = bill_details.bill_id").
		Where("bills.business_id = ?", businessId).
		Where("bill_details.purchase_order_detail_id = ?", detail.ID).
		Where("bill_details.detail_type = ?", BillDetailTypeLine).
		Where("bills.current_status <> ?", BillStatusVoided).
		Preload("Unit").
		Find(&prior).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, bd := range prior {
		if bd.Unit == nil {
			return decimal.Zero, errors.New("bill detail unit not loaded")
		}
		qty, err := ConvertQty(bd.Qty, bd.Unit, detail.Unit)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(qty)
	}
	return total, nil
}

// doneMoveQty sums the finished receipts behind a purchase detail, in the
// detail's unit. With useOrigin it sums the supplier-side origin figures
// instead of the received ones.
func doneMoveQty(ctx context.Context, businessId string, detail *PurchaseOrderDetail, useOrigin bool) (decimal.Decimal, error) {
	db := config.GetDB()
	var moves []*StockMove
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Where("origin_type = ? AND origin_id = ?", StockMoveOriginPurchaseOrderDetail, detail.ID).
		Where("state = ?", StockMoveStateDone).
		Preload("Unit").
		Preload("OriginUnit").
		Find(&moves).Error
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, move := range moves {
		qty := move.Qty
		unit := move.Unit
		if useOrigin && move.OriginQty != nil {
			qty = *move.OriginQty
			if move.OriginUnit != nil {
				unit = move.OriginUnit
			}
		}
		if unit == nil {
			return decimal.Zero, errors.New("stock move unit not loaded")
		}
		converted, err := ConvertQty(qty, unit, detail.Unit)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(converted)
	}
	return total, nil
}

// billableQty computes how much of a purchase detail is left to bill. Orders
// billed by Shipment charge what was received; on a contract invoicing by
// Origin the supplier-side figures replace the received ones for goods.
// Already-billed quantity is subtracted in every case.
func billableQty(ctx context.Context, businessId string, order *PurchaseOrder, detail *PurchaseOrderDetail) (decimal.Decimal, error) {
	if detail.Unit == nil || detail.Product == nil {
		return decimal.Zero, errors.New("purchase detail associations not loaded")
	}

	base := detail.Qty
	if order.InvoiceMethod == InvoiceMethodShipment && detail.Product.ProductType != ProductTypeService {
		useOrigin := false
		if detail.ContractLine != nil && detail.ContractLine.Contract != nil &&
			detail.ContractLine.Contract.InvoiceBasis == QuantityBasisOrigin {
			useOrigin = true
		}
		received, err := doneMoveQty(ctx, businessId, detail, useOrigin)
		if err != nil {
			return decimal.Zero, err
		}
		base = received
	}

	billed, err := billedQtySoFar(ctx, businessId, detail)
	if err != nil {
		return decimal.Zero, err
	}
	return base.Sub(billed), nil
}

// CreateBillFromPurchaseOrder drafts a supplier bill for whatever the order
// still owes. Details with nothing left to bill are skipped; a fully billed
// order is an error.
func CreateBillFromPurchaseOrder(ctx context.Context, purchaseOrderId int) (*Bill, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	order, err := utils.FetchModel[PurchaseOrder](ctx, businessId, purchaseOrderId,
		"Details", "Details.Unit", "Details.Product", "Details.Product.Unit",
		"Details.ContractLine", "Details.ContractLine.Contract")
	if err != nil {
		return nil, err
	}
	if order.InvoiceMethod == InvoiceMethodManual {
		return nil, fmt.Errorf("purchase order %s is billed manually", order.OrderNumber)
	}
	if !order.CurrentStatus.IsConsuming() {
		return nil, fmt.Errorf("purchase order %s is not ready for billing", order.OrderNumber)
	}

	details := make([]BillDetail, 0, len(order.Details))
	for i := range order.Details {
		detail := &order.Details[i]
		qty, err := billableQty(ctx, businessId, order, detail)
		if err != nil {
			return nil, err
		}
		if qty.Sign() <= 0 {
			continue
		}
		detailId := detail.ID
		details = append(details, BillDetail{
			PurchaseOrderDetailId: &detailId,
			ProductId:             detail.ProductId,
			Name:                  detail.Name,
			DetailType:            BillDetailTypeLine,
			Qty:                   qty,
			UnitId:                detail.UnitId,
			UnitRate:              detail.UnitRate,
		})
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("purchase order %s has nothing left to bill", order.OrderNumber)
	}

	if err := utils.BusinessLock(ctx, businessId, "BillNumber", "bill", "CreateBillFromPurchaseOrder"); err != nil {
		return nil, err
	}

	bill := Bill{
		BusinessId:      businessId,
		SupplierId:      order.SupplierId,
		PurchaseOrderId: order.ID,
		BillDate:        today(),
		CurrentStatus:   BillStatusDraft,
		Details:         details,
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	seqNo, err := utils.GetSequence[Bill](ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	bill.SequenceNo = decimal.NewFromInt(seqNo)
	bill.BillNumber = fmt.Sprintf("BILL-%06d", seqNo)

	if err := tx.WithContext(ctx).Create(&bill).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), "Create", bill.ID, "bills", nil, nil,
		fmt.Sprintf("Created bill %s from purchase order %s", bill.BillNumber, order.OrderNumber)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &bill, nil
}

func ConfirmBill(ctx context.Context, id int) (*Bill, error) {
	return updateBillStatus(ctx, id, BillStatusDraft, BillStatusConfirmed)
}

func MarkBillPaid(ctx context.Context, id int) (*Bill, error) {
	return updateBillStatus(ctx, id, BillStatusConfirmed, BillStatusPaid)
}

// VoidBill takes a bill out of circulation. Its quantities no longer count
// as billed, so the purchase detail's balance reopens.
func VoidBill(ctx context.Context, id int) (*Bill, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	bill, err := utils.FetchModel[Bill](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}
	if bill.CurrentStatus == BillStatusPaid {
		return nil, errors.New("paid bills cannot be voided")
	}
	if bill.CurrentStatus == BillStatusVoided {
		return bill, nil
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.WithContext(ctx).Model(bill).Update("CurrentStatus", BillStatusVoided).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	bill.CurrentStatus = BillStatusVoided

	if err := createHistory(tx.WithContext(ctx), "Update", bill.ID, "bills", nil, nil,
		"Voided bill "+bill.BillNumber); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return bill, nil
}

// VoidAndRecreateBill voids a bill and immediately drafts a replacement from
// the same purchase order, picking up any receipt or origin corrections made
// since the original was cut.
func VoidAndRecreateBill(ctx context.Context, id int) (*Bill, error) {
	bill, err := VoidBill(ctx, id)
	if err != nil {
		return nil, err
	}
	return CreateBillFromPurchaseOrder(ctx, bill.PurchaseOrderId)
}

func updateBillStatus(ctx context.Context, id int, from BillStatus, to BillStatus) (*Bill, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	bill, err := utils.FetchModel[Bill](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}
	if bill.CurrentStatus != from {
		return nil, fmt.Errorf("bill %s cannot move from %s to %s", bill.BillNumber, bill.CurrentStatus, to)
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.WithContext(ctx).Model(bill).Update("CurrentStatus", to).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	bill.CurrentStatus = to

	if err := createHistory(tx.WithContext(ctx), "Update", bill.ID, "bills", nil, nil,
		fmt.Sprintf("Bill %s moved from %s to %s", bill.BillNumber, from, to)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return bill, nil
}

func GetBill(ctx context.Context, id int) (*Bill, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Bill](ctx, businessId, id,
		"Supplier", "PurchaseOrder", "Details", "Details.Product", "Details.Unit")
}

func GetBills(ctx context.Context, purchaseOrderId *int, status *BillStatus) ([]*Bill, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if purchaseOrderId != nil {
		dbCtx = dbCtx.Where("purchase_order_id = ?", *purchaseOrderId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var results []*Bill
	err := dbCtx.Preload("Supplier").Preload("Details").Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
