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

type PurchaseOrder struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	BusinessId    string                `gorm:"index;not null" json:"business_id"`
	SupplierId    int                   `gorm:"index;not null" json:"supplier_id" binding:"required"`
	Supplier      *Supplier             `gorm:"foreignKey:SupplierId" json:"supplier,omitempty"`
	OrderNumber   string                `gorm:"size:255;not null" json:"order_number"`
	SequenceNo    decimal.Decimal       `gorm:"type:decimal(15);not null" json:"sequence_no"`
	OrderDate     time.Time             `gorm:"not null" json:"order_date" binding:"required"`
	InvoiceMethod InvoiceMethod         `gorm:"type:enum('Order','Shipment','Manual');not null;default:'Order'" json:"invoice_method"`
	CurrentStatus PurchaseOrderStatus   `gorm:"type:enum('Draft','Confirmed','Processing','Done','Cancelled');not null;default:'Draft'" json:"current_status"`
	WarehouseId   int                   `gorm:"not null" json:"warehouse_id"`
	Warehouse     *Warehouse            `gorm:"foreignKey:WarehouseId" json:"warehouse,omitempty"`
	Notes         string                `gorm:"type:text" json:"notes"`
	Details       []PurchaseOrderDetail `gorm:"foreignKey:PurchaseOrderId;constraint:OnDelete:CASCADE" json:"details"`
	CreatedAt     time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (po PurchaseOrder) GetBusinessId() string {
	return po.BusinessId
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ProductId       int             `gorm:"not null" json:"product_id" binding:"required"`
	Product         *Product        `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	Name            string          `gorm:"size:255" json:"name"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitId          int             `gorm:"not null" json:"unit_id" binding:"required"`
	Unit            *ProductUnit    `gorm:"foreignKey:UnitId" json:"unit,omitempty"`
	UnitRate        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_rate"`
	// ContractLineId ties the detail to the supplier agreement it draws
	// down. Nil means an off-contract purchase.
	ContractLineId *int          `gorm:"index;default:null" json:"contract_line_id"`
	ContractLine   *ContractLine `gorm:"foreignKey:ContractLineId" json:"contract_line,omitempty"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPurchaseOrder struct {
	SupplierId    int                      `json:"supplier_id" binding:"required"`
	OrderDate     time.Time                `json:"order_date" binding:"required"`
	InvoiceMethod InvoiceMethod            `json:"invoice_method"`
	WarehouseId   int                      `json:"warehouse_id" binding:"required"`
	Notes         string                   `json:"notes"`
	Details       []NewPurchaseOrderDetail `json:"details" binding:"required"`
}

type NewPurchaseOrderDetail struct {
	ProductId      int              `json:"product_id" binding:"required"`
	Name           string           `json:"name"`
	Qty            decimal.Decimal  `json:"qty"`
	UnitId         int              `json:"unit_id" binding:"required"`
	UnitRate       *decimal.Decimal `json:"unit_rate"`
	ContractLineId *int             `json:"contract_line_id"`
}

// ContractLineDefault carries the values auto-link suggests for a purchase
// order line. UnitRate is nil when the agreed rate cannot be converted into
// the line's unit.
type ContractLineDefault struct {
	ContractLineId int              `json:"contract_line_id"`
	ContractId     int              `json:"contract_id"`
	ContractNumber string           `json:"contract_number"`
	UnitRate       *decimal.Decimal `json:"unit_rate"`
}

// DefaultContractLine finds, best effort, the active contract line covering
// this supplier, product and date. No match is not an error; the purchase
// simply stays off-contract. Ties go to the earliest-starting contract.
func DefaultContractLine(ctx context.Context, supplierId int, productId int, orderDate time.Time, unitId int) (*ContractLineDefault, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Joins("JOIN contracts ON contracts.id = contract_lines.contract_id").
		Where("contracts.business_id = ?", businessId).
		Where("contracts.supplier_id = ?", supplierId).
		Where("contracts.state = ?", ContractStateActive).
		Where("contract_lines.product_id = ?", productId)
	dbCtx = contractCoversDate(dbCtx, orderDate)

	var lines []*ContractLine
	err := dbCtx.
		Order("contracts.start_date IS NULL, contracts.start_date, contract_lines.id").
		Limit(1).
		Preload("Contract").
		Preload("Product").
		Preload("Product.PurchaseUnit").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}
	line := lines[0]

	result := ContractLineDefault{
		ContractLineId: line.ID,
		ContractId:     line.ContractId,
		ContractNumber: line.Contract.ContractNumber,
	}

	// agreed rate is per purchase unit; restate it in the line's unit
	if line.Product != nil && line.Product.PurchaseUnit != nil {
		unit, err := GetProductUnit(ctx, unitId)
		if err != nil {
			return nil, err
		}
		rate, err := ConvertRate(line.AgreedUnitRate, line.Product.PurchaseUnit, unit)
		if err == nil {
			result.UnitRate = &rate
		}
	}
	return &result, nil
}

// checkInvoiceMethod enforces that orders drawing on a contract are billed
// from what was received, not from what was ordered.
func (po *PurchaseOrder) checkInvoiceMethod() error {
	if po.InvoiceMethod == InvoiceMethodShipment {
		return nil
	}
	for _, detail := range po.Details {
		if detail.ContractLineId != nil {
			return &InvoiceMethodError{OrderNumber: po.OrderNumber}
		}
	}
	return nil
}

// checkContractDates rejects the order when its date falls outside a linked
// contract's validity window. Details must be preloaded with
// ContractLine.Contract.
func (po *PurchaseOrder) checkContractDates() error {
	for _, detail := range po.Details {
		if detail.ContractLineId == nil {
			continue
		}
		if detail.ContractLine == nil || detail.ContractLine.Contract == nil {
			return errors.New("contract line associations not loaded")
		}
		contract := detail.ContractLine.Contract
		if contractDateViolation(contract, po.OrderDate) {
			return &DateRangeError{
				OrderNumber:    po.OrderNumber,
				ContractNumber: contract.ContractNumber,
				LineName:       detail.Name,
			}
		}
	}
	return nil
}

func (input *NewPurchaseOrder) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Warehouse](ctx, businessId, input.WarehouseId); err != nil {
		return err
	}
	if input.InvoiceMethod != "" && !input.InvoiceMethod.valid() {
		return errors.New("invalid invoice method")
	}
	if len(input.Details) == 0 {
		return errors.New("purchase order details are required")
	}
	for _, detail := range input.Details {
		if err := utils.ValidateResourceId[Product](ctx, businessId, detail.ProductId); err != nil {
			return err
		}
		if err := utils.ValidateResourceId[ProductUnit](ctx, businessId, detail.UnitId); err != nil {
			return err
		}
		if detail.Qty.Sign() <= 0 {
			return errors.New("detail qty must be positive")
		}
	}
	return nil
}

// resolveContractLine validates an explicit contract line against the detail
// it is attached to: right supplier, right product, active contract.
func resolveContractLine(ctx context.Context, businessId string, lineId int, supplierId int, productId int) (*ContractLine, error) {
	db := config.GetDB()
	var line ContractLine
	err := db.WithContext(ctx).
		Joins("JOIN contracts ON contracts.id = contract_lines.contract_id").
		Where("contracts.business_id = ?", businessId).
		Where("contract_lines.id = ?", lineId).
		Preload("Contract").
		First(&line).Error
	if err != nil {
		return nil, err
	}
	if line.Contract.SupplierId != supplierId {
		return nil, fmt.Errorf("contract %s belongs to another supplier", line.Contract.ContractNumber)
	}
	if line.ProductId != productId {
		return nil, fmt.Errorf("contract %s has no line for this product", line.Contract.ContractNumber)
	}
	if line.Contract.State != ContractStateActive {
		return nil, fmt.Errorf("contract %s is not active", line.Contract.ContractNumber)
	}
	return &line, nil
}

// buildDetails turns the input details into rows, auto-linking contract
// lines and defaulting names and rates along the way.
func (input *NewPurchaseOrder) buildDetails(ctx context.Context, businessId string) ([]PurchaseOrderDetail, error) {
	details := make([]PurchaseOrderDetail, 0, len(input.Details))
	for _, d := range input.Details {
		detail := PurchaseOrderDetail{
			ProductId:      d.ProductId,
			Name:           d.Name,
			Qty:            d.Qty,
			UnitId:         d.UnitId,
			ContractLineId: d.ContractLineId,
		}

		product, err := utils.FetchModel[Product](ctx, businessId, d.ProductId)
		if err != nil {
			return nil, err
		}
		if detail.Name == "" {
			detail.Name = product.Name
		}

		if detail.ContractLineId != nil {
			line, err := resolveContractLine(ctx, businessId, *detail.ContractLineId, input.SupplierId, d.ProductId)
			if err != nil {
				return nil, err
			}
			detail.ContractLine = line
		} else if !config.ContractAutoLinkDisabled() {
			suggested, err := DefaultContractLine(ctx, input.SupplierId, d.ProductId, input.OrderDate, d.UnitId)
			if err != nil {
				return nil, err
			}
			if suggested != nil {
				detail.ContractLineId = &suggested.ContractLineId
				line, err := resolveContractLine(ctx, businessId, suggested.ContractLineId, input.SupplierId, d.ProductId)
				if err != nil {
					return nil, err
				}
				detail.ContractLine = line
				if d.UnitRate == nil && suggested.UnitRate != nil {
					detail.UnitRate = *suggested.UnitRate
				}
			}
		}

		if d.UnitRate != nil {
			detail.UnitRate = *d.UnitRate
		} else if detail.UnitRate.IsZero() {
			detail.UnitRate = product.CostPrice
		}

		details = append(details, detail)
	}
	return details, nil
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}
	if input.InvoiceMethod == "" {
		input.InvoiceMethod = InvoiceMethodOrder
	}

	details, err := input.buildDetails(ctx, businessId)
	if err != nil {
		return nil, err
	}

	order := PurchaseOrder{
		BusinessId:    businessId,
		SupplierId:    input.SupplierId,
		OrderDate:     input.OrderDate,
		InvoiceMethod: input.InvoiceMethod,
		CurrentStatus: PurchaseOrderStatusDraft,
		WarehouseId:   input.WarehouseId,
		Notes:         input.Notes,
		Details:       details,
	}

	if err := order.checkInvoiceMethod(); err != nil {
		return nil, err
	}
	if err := order.checkContractDates(); err != nil {
		return nil, err
	}

	if err := utils.BusinessLock(ctx, businessId, "OrderNumber", "purchaseOrder", "CreatePurchaseOrder"); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	seqNo, err := utils.GetSequence[PurchaseOrder](ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	order.SequenceNo = decimal.NewFromInt(seqNo)
	order.OrderNumber = fmt.Sprintf("PO-%06d", seqNo)

	// associations were only loaded for validation
	for i := range order.Details {
		order.Details[i].ContractLine = nil
	}

	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), "Create", order.ID, "purchase_orders", nil, nil,
		"Created purchase order "+order.OrderNumber); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdatePurchaseOrder replaces the editable fields of a Draft order.
func UpdatePurchaseOrder(ctx context.Context, id int, input *NewPurchaseOrder) (*PurchaseOrder, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	order, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}
	if order.CurrentStatus != PurchaseOrderStatusDraft {
		return nil, errors.New("only draft purchase orders can be edited")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}
	if input.InvoiceMethod == "" {
		input.InvoiceMethod = order.InvoiceMethod
	}

	details, err := input.buildDetails(ctx, businessId)
	if err != nil {
		return nil, err
	}

	updated := *order
	updated.SupplierId = input.SupplierId
	updated.OrderDate = input.OrderDate
	updated.InvoiceMethod = input.InvoiceMethod
	updated.WarehouseId = input.WarehouseId
	updated.Notes = input.Notes
	updated.Details = details

	if err := updated.checkInvoiceMethod(); err != nil {
		return nil, err
	}
	if err := updated.checkContractDates(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.WithContext(ctx).Model(order).Updates(map[string]interface{}{
		"SupplierId":    input.SupplierId,
		"OrderDate":     input.OrderDate,
		"InvoiceMethod": input.InvoiceMethod,
		"WarehouseId":   input.WarehouseId,
		"Notes":         input.Notes,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Where("purchase_order_id = ?", order.ID).Delete(&PurchaseOrderDetail{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range details {
		details[i].PurchaseOrderId = order.ID
		details[i].ContractLine = nil
	}
	if err := tx.WithContext(ctx).Create(&details).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	updated.Details = details

	if err := createHistory(tx.WithContext(ctx), "Update", order.ID, "purchase_orders", order, &updated,
		"Updated purchase order "+order.OrderNumber); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

var purchaseOrderTransitions = map[PurchaseOrderStatus][]PurchaseOrderStatus{
	PurchaseOrderStatusDraft:      {PurchaseOrderStatusConfirmed, PurchaseOrderStatusCancelled},
	PurchaseOrderStatusConfirmed:  {PurchaseOrderStatusProcessing, PurchaseOrderStatusCancelled},
	PurchaseOrderStatusProcessing: {PurchaseOrderStatusDone},
	PurchaseOrderStatusDone:       {},
	PurchaseOrderStatusCancelled:  {},
}

// UpdatePurchaseOrderStatus moves the order along its lifecycle. Contract
// validations rerun at every save; entering Processing creates the expected
// receipt moves.
func UpdatePurchaseOrderStatus(ctx context.Context, id int, status PurchaseOrderStatus) (*PurchaseOrder, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	order, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id,
		"Details", "Details.Product", "Details.Product.Unit", "Details.Unit",
		"Details.ContractLine", "Details.ContractLine.Contract")
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range purchaseOrderTransitions[order.CurrentStatus] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("purchase order %s cannot move from %s to %s",
			order.OrderNumber, order.CurrentStatus, status)
	}

	if err := order.checkInvoiceMethod(); err != nil {
		return nil, err
	}
	if err := order.checkContractDates(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	oldStatus := order.CurrentStatus
	if err := tx.WithContext(ctx).Model(order).Update("CurrentStatus", status).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	order.CurrentStatus = status

	if status == PurchaseOrderStatusProcessing {
		if err := createReceiptMoves(tx.WithContext(ctx), order); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := createHistory(tx.WithContext(ctx), "Update", order.ID, "purchase_orders", nil, nil,
		fmt.Sprintf("Purchase order %s moved from %s to %s", order.OrderNumber, oldStatus, status)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return order, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[PurchaseOrder](ctx, businessId, id,
		"Supplier", "Warehouse", "Details", "Details.Product", "Details.Unit",
		"Details.ContractLine", "Details.ContractLine.Contract")
}

func GetPurchaseOrders(ctx context.Context, supplierId *int, status *PurchaseOrderStatus) ([]*PurchaseOrder, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if supplierId != nil {
		dbCtx = dbCtx.Where("supplier_id = ?", *supplierId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	var results []*PurchaseOrder
	err := dbCtx.Preload("Supplier").Preload("Details").Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func DeletePurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	order, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}
	if order.CurrentStatus != PurchaseOrderStatusDraft {
		return nil, errors.New("only draft purchase orders can be deleted")
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.WithContext(ctx).Where("purchase_order_id = ?", order.ID).Delete(&PurchaseOrderDetail{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), "Delete", order.ID, "purchase_orders", order, nil,
		"Deleted purchase order "+order.OrderNumber); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return order, nil
}
