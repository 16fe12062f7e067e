package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMove records goods arriving at a warehouse. Origin is a tagged pair:
// OriginType names the kind of document the move fulfils and OriginId points
// at it. The origin quantity fields capture what the supplier shipped in the
// supplier's own unit, which can differ from what was counted on receipt.
type StockMove struct {
	ID          int             `gorm:"primary_key" json:"id"`
	BusinessId  string          `gorm:"index;not null" json:"business_id"`
	WarehouseId int             `gorm:"index;not null" json:"warehouse_id" binding:"required"`
	Warehouse   *Warehouse      `gorm:"foreignKey:WarehouseId" json:"warehouse,omitempty"`
	ProductId   int             `gorm:"not null" json:"product_id" binding:"required"`
	Product     *Product        `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	Qty         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitId      int             `gorm:"not null" json:"unit_id" binding:"required"`
	Unit        *ProductUnit    `gorm:"foreignKey:UnitId" json:"unit,omitempty"`
	// InternalQty is Qty restated in the product's default unit, kept in
	// sync on every quantity change.
	InternalQty  decimal.Decimal     `gorm:"type:decimal(20,10);not null" json:"internal_qty"`
	State        StockMoveState      `gorm:"type:enum('Draft','Assigned','Done','Cancelled');not null;default:'Draft'" json:"state"`
	MoveDate     time.Time           `gorm:"not null" json:"move_date"`
	OriginType   StockMoveOriginType `gorm:"size:40;index:idx_stock_moves_origin,priority:1" json:"origin_type"`
	OriginId     int                 `gorm:"index:idx_stock_moves_origin,priority:2" json:"origin_id"`
	OriginQty    *decimal.Decimal    `gorm:"type:decimal(20,4);default:null" json:"origin_qty"`
	OriginUnitId *int                `gorm:"default:null" json:"origin_unit_id"`
	OriginUnit   *ProductUnit        `gorm:"foreignKey:OriginUnitId" json:"origin_unit,omitempty"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m StockMove) GetBusinessId() string {
	return m.BusinessId
}

type NewStockMove struct {
	WarehouseId  int                 `json:"warehouse_id" binding:"required"`
	ProductId    int                 `json:"product_id" binding:"required"`
	Qty          decimal.Decimal     `json:"qty"`
	UnitId       int                 `json:"unit_id" binding:"required"`
	MoveDate     time.Time           `json:"move_date"`
	OriginType   StockMoveOriginType `json:"origin_type"`
	OriginId     int                 `json:"origin_id"`
	OriginQty    *decimal.Decimal    `json:"origin_qty"`
	OriginUnitId *int                `json:"origin_unit_id"`
}

// originPurchaseOrderDetail resolves the move's origin when it points at a
// purchase order detail. Any other origin kind yields nil.
func originPurchaseOrderDetail(ctx context.Context, businessId string, move *StockMove) (*PurchaseOrderDetail, error) {
	if move.OriginType != StockMoveOriginPurchaseOrderDetail || move.OriginId == 0 {
		return nil, nil
	}
	db := config.GetDB()
	var detail PurchaseOrderDetail
	err := db.WithContext(ctx).
		Joins("JOIN purchase_orders ON purchase_orders.id = purchase_order_details.purchase_order_id").
		Where("purchase_orders.business_id = ?", businessId).
		Where("purchase_order_details.id = ?", move.OriginId).
		Preload("ContractLine").
		Preload("ContractLine.Contract").
		First(&detail).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("stock move origin purchase detail %d not found", move.OriginId)
		}
		return nil, err
	}
	return &detail, nil
}

// OriginQuantityRequired reports whether the move must carry supplier-side
// quantity figures: only when it fulfils a purchase detail drawing on a
// contract.
func OriginQuantityRequired(ctx context.Context, move *StockMove) (bool, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return false, errors.New("business id is required")
	}
	detail, err := originPurchaseOrderDetail(ctx, businessId, move)
	if err != nil {
		return false, err
	}
	return detail != nil && detail.ContractLineId != nil, nil
}

// applyOriginDefaults mirrors the received quantity into the origin fields
// when they will be required later, so the usual case needs no extra input.
func applyOriginDefaults(move *StockMove, required bool) {
	if !required {
		return
	}
	if move.OriginUnitId == nil {
		unitId := move.UnitId
		move.OriginUnitId = &unitId
	}
	if move.OriginQty == nil {
		qty := move.Qty
		move.OriginQty = &qty
	}
}

func (input *NewStockMove) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Warehouse](ctx, businessId, input.WarehouseId); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[Product](ctx, businessId, input.ProductId); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[ProductUnit](ctx, businessId, input.UnitId); err != nil {
		return err
	}
	if input.Qty.Sign() <= 0 {
		return errors.New("qty must be positive")
	}
	if !input.OriginType.valid() {
		return fmt.Errorf("unknown origin type %q", input.OriginType)
	}
	if input.OriginType != "" && input.OriginId == 0 {
		return errors.New("origin id is required when origin type is set")
	}
	if input.OriginType == "" && (input.OriginQty != nil || input.OriginUnitId != nil) {
		return errors.New("origin quantity fields require an origin")
	}
	if input.OriginUnitId != nil {
		if err := utils.ValidateResourceId[ProductUnit](ctx, businessId, *input.OriginUnitId); err != nil {
			return err
		}
	}
	return nil
}

// computeInternalQty restates the move quantity in the product's default
// unit.
func computeInternalQty(ctx context.Context, move *StockMove) (decimal.Decimal, error) {
	product, err := GetProduct(ctx, move.ProductId)
	if err != nil {
		return decimal.Zero, err
	}
	unit, err := GetProductUnit(ctx, move.UnitId)
	if err != nil {
		return decimal.Zero, err
	}
	if product.Unit == nil {
		product.Unit, err = GetProductUnit(ctx, product.UnitId)
		if err != nil {
			return decimal.Zero, err
		}
	}
	return ConvertQty(move.Qty, unit, product.Unit)
}

func CreateStockMove(ctx context.Context, input *NewStockMove) (*StockMove, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}
	if input.MoveDate.IsZero() {
		input.MoveDate = today()
	}

	move := StockMove{
		BusinessId:   businessId,
		WarehouseId:  input.WarehouseId,
		ProductId:    input.ProductId,
		Qty:          input.Qty,
		UnitId:       input.UnitId,
		State:        StockMoveStateDraft,
		MoveDate:     input.MoveDate,
		OriginType:   input.OriginType,
		OriginId:     input.OriginId,
		OriginQty:    input.OriginQty,
		OriginUnitId: input.OriginUnitId,
	}

	required, err := OriginQuantityRequired(ctx, &move)
	if err != nil {
		return nil, err
	}
	applyOriginDefaults(&move, required)

	move.InternalQty, err = computeInternalQty(ctx, &move)
	if err != nil {
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

	if err := tx.WithContext(ctx).Create(&move).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), "Create", move.ID, "stock_moves", nil, nil,
		fmt.Sprintf("Created stock move %d", move.ID)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &move, nil
}

// UpdateStockMove edits quantities and origin figures while the move is
// still pending.
func UpdateStockMove(ctx context.Context, id int, input *NewStockMove) (*StockMove, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	move, err := utils.FetchModel[StockMove](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if move.State != StockMoveStateDraft && move.State != StockMoveStateAssigned {
		return nil, errors.New("only pending stock moves can be edited")
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	oldMove := *move
	move.WarehouseId = input.WarehouseId
	move.ProductId = input.ProductId
	move.Qty = input.Qty
	move.UnitId = input.UnitId
	if !input.MoveDate.IsZero() {
		move.MoveDate = input.MoveDate
	}
	move.OriginType = input.OriginType
	move.OriginId = input.OriginId
	move.OriginQty = input.OriginQty
	move.OriginUnitId = input.OriginUnitId

	required, err := OriginQuantityRequired(ctx, move)
	if err != nil {
		return nil, err
	}
	applyOriginDefaults(move, required)

	move.InternalQty, err = computeInternalQty(ctx, move)
	if err != nil {
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

	if err := tx.WithContext(ctx).Model(move).Updates(map[string]interface{}{
		"WarehouseId":  move.WarehouseId,
		"ProductId":    move.ProductId,
		"Qty":          move.Qty,
		"UnitId":       move.UnitId,
		"InternalQty":  move.InternalQty,
		"MoveDate":     move.MoveDate,
		"OriginType":   move.OriginType,
		"OriginId":     move.OriginId,
		"OriginQty":    move.OriginQty,
		"OriginUnitId": move.OriginUnitId,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), "Update", move.ID, "stock_moves", &oldMove, move,
		fmt.Sprintf("Updated stock move %d", move.ID)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return move, nil
}

// MarkStockMoveDone finalizes a receipt. Moves fulfilling a contract-linked
// purchase detail must carry origin figures, and those figures must be
// convertible into the product's unit category.
func MarkStockMoveDone(ctx context.Context, id int) (*StockMove, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	move, err := utils.FetchModel[StockMove](ctx, businessId, id, "Product", "Product.Unit", "Unit", "OriginUnit")
	if err != nil {
		return nil, err
	}
	if move.State != StockMoveStateDraft && move.State != StockMoveStateAssigned {
		return nil, fmt.Errorf("stock move %d cannot be done from state %s", move.ID, move.State)
	}

	required, err := OriginQuantityRequired(ctx, move)
	if err != nil {
		return nil, err
	}
	applyOriginDefaults(move, required)
	if required && move.OriginQty == nil {
		return nil, ErrOriginQuantityRequired
	}
	if move.OriginUnit != nil && move.Product != nil && move.Product.Unit != nil &&
		move.OriginUnit.Category != move.Product.Unit.Category {
		return nil, ErrUnitCategoryMismatch
	}

	move.InternalQty, err = computeInternalQty(ctx, move)
	if err != nil {
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

	if err := tx.WithContext(ctx).Model(move).Updates(map[string]interface{}{
		"State":        StockMoveStateDone,
		"InternalQty":  move.InternalQty,
		"OriginQty":    move.OriginQty,
		"OriginUnitId": move.OriginUnitId,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	move.State = StockMoveStateDone

	if err := createHistory(tx.WithContext(ctx), "Update", move.ID, "stock_moves", nil, nil,
		fmt.Sprintf("Stock move %d done", move.ID)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return move, nil
}

func CancelStockMove(ctx context.Context, id int) (*StockMove, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	move, err := utils.FetchModel[StockMove](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if move.State == StockMoveStateDone {
		return nil, errors.New("done stock moves cannot be cancelled")
	}
	if move.State == StockMoveStateCancelled {
		return move, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(move).Update("State", StockMoveStateCancelled).Error
	if err != nil {
		return nil, err
	}
	move.State = StockMoveStateCancelled
	return move, nil
}

func GetStockMove(ctx context.Context, id int) (*StockMove, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[StockMove](ctx, businessId, id,
		"Warehouse", "Product", "Unit", "OriginUnit")
}

func GetStockMoves(ctx context.Context, warehouseId *int, state *StockMoveState) ([]*StockMove, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if warehouseId != nil {
		dbCtx = dbCtx.Where("warehouse_id = ?", *warehouseId)
	}
	if state != nil {
		dbCtx = dbCtx.Where("state = ?", *state)
	}
	var results []*StockMove
	err := dbCtx.Preload("Product").Preload("Unit").Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// createReceiptMoves creates one pending move per goods detail when an order
// starts processing. Origin figures default from the ordered quantity for
// contract-linked details.
func createReceiptMoves(tx *gorm.DB, order *PurchaseOrder) error {
	for _, detail := range order.Details {
		if detail.Product == nil || detail.Product.Unit == nil || detail.Unit == nil {
			return errors.New("purchase detail associations not loaded")
		}
		if detail.Product.ProductType == ProductTypeService {
			continue
		}
		internalQty, err := ConvertQty(detail.Qty, detail.Unit, detail.Product.Unit)
		if err != nil {
			return err
		}
		move := StockMove{
			BusinessId:  order.BusinessId,
			WarehouseId: order.WarehouseId,
			ProductId:   detail.ProductId,
			Qty:         detail.Qty,
			UnitId:      detail.UnitId,
			InternalQty: internalQty,
			State:       StockMoveStateAssigned,
			MoveDate:    today(),
			OriginType:  StockMoveOriginPurchaseOrderDetail,
			OriginId:    detail.ID,
		}
		if detail.ContractLineId != nil {
			qty := detail.Qty
			unitId := detail.UnitId
			move.OriginQty = &qty
			move.OriginUnitId = &unitId
		}
		if err := tx.Create(&move).Error; err != nil {
			return err
		}
	}
	return nil
}
