package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/shopspring/decimal"
)

// ContractLineQuantities is the derived consumption snapshot of one contract
// line. All figures are in the line product's default unit. Nothing here is
// stored; every call recomputes from purchase details and stock moves.
type ContractLineQuantities struct {
	ContractLineId int             `json:"contract_line_id"`
	ProductId      int             `json:"product_id"`
	ProductName    string          `json:"product_name"`
	AgreedQty      decimal.Decimal `json:"agreed_qty"`
	// DestinationQty sums ordered quantities of linked purchase details whose
	// order is Processing or Done.
	DestinationQty decimal.Decimal `json:"destination_qty"`
	// OriginQty sums supplier-side quantities of linked stock moves, falling
	// back to the move's own quantity when no origin figure was captured.
	OriginQty decimal.Decimal `json:"origin_qty"`
	// ConsumedQty is DestinationQty or OriginQty per the contract's basis.
	ConsumedQty  decimal.Decimal `json:"consumed_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
}

// computeLineQuantities folds preloaded purchase details and stock moves into
// the line's consumption figures. Callers hand in only details whose order
// counts as consuming and only moves that are past Draft and not cancelled.
func computeLineQuantities(line *ContractLine, details []*PurchaseOrderDetail, moves []*StockMove) (*ContractLineQuantities, error) {
	if line.Contract == nil || line.Product == nil || line.Product.Unit == nil {
		return nil, errors.New("contract line associations not loaded")
	}
	defaultUnit := line.Product.Unit

	result := ContractLineQuantities{
		ContractLineId: line.ID,
		ProductId:      line.ProductId,
		ProductName:    line.Product.Name,
		AgreedQty:      line.AgreedQty,
	}

	for _, detail := range details {
		if detail.Unit == nil {
			return nil, errors.New("purchase detail unit not loaded")
		}
		qty, err := ConvertQty(detail.Qty, detail.Unit, defaultUnit)
		if err != nil {
			return nil, err
		}
		result.DestinationQty = result.DestinationQty.Add(qty)
	}

	for _, move := range moves {
		qty := move.Qty
		unit := move.Unit
		if move.OriginQty != nil {
			qty = *move.OriginQty
			if move.OriginUnit != nil {
				unit = move.OriginUnit
			}
		}
		if unit == nil {
			return nil, errors.New("stock move unit not loaded")
		}
		converted, err := ConvertQty(qty, unit, defaultUnit)
		if err != nil {
			return nil, err
		}
		result.OriginQty = result.OriginQty.Add(converted)
	}

	switch line.Contract.ContractBasis {
	case QuantityBasisOrigin:
		result.ConsumedQty = result.OriginQty
	case QuantityBasisDestination:
		result.ConsumedQty = result.DestinationQty
	default:
		return nil, errors.New("invalid contract basis")
	}
	result.RemainingQty = result.AgreedQty.Sub(result.ConsumedQty)

	return &result, nil
}

// loadConsumingDetails fetches the purchase details linked to the line whose
// parent order is in a consuming status.
func loadConsumingDetails(ctx context.Context, businessId string, lineIds []int) ([]*PurchaseOrderDetail, error) {
	db := config.GetDB()
	var details []*PurchaseOrderDetail
	err := db.WithContext(ctx).
		Joins("JOIN purchase_orders ON purchase_orders.id = purchase_order_details.purchase_order_id").
		Where("purchase_orders.business_id = ?", businessId).
		Where("purchase_order_details.contract_line_id IN ?", lineIds).
		Where("purchase_orders.current_status IN ?", []PurchaseOrderStatus{
			PurchaseOrderStatusProcessing, PurchaseOrderStatusDone,
		}).
		Preload("Unit").
		Find(&details).Error
	if err != nil {
		return nil, err
	}
	return details, nil
}

// loadLinkedMoves fetches the stock moves whose origin is one of the given
// purchase details. Draft and cancelled moves never count.
func loadLinkedMoves(ctx context.Context, businessId string, detailIds []int) ([]*StockMove, error) {
	if len(detailIds) == 0 {
		return nil, nil
	}
	db := config.GetDB()
	var moves []*StockMove
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Where("origin_type = ? AND origin_id IN ?", StockMoveOriginPurchaseOrderDetail, detailIds).
		Where("state NOT IN ?", []StockMoveState{StockMoveStateDraft, StockMoveStateCancelled}).
		Preload("Unit").
		Preload("OriginUnit").
		Find(&moves).Error
	if err != nil {
		return nil, err
	}
	return moves, nil
}

// GetContractLineQuantities recomputes the consumption snapshot of one
// contract line.
func GetContractLineQuantities(ctx context.Context, lineId int) (*ContractLineQuantities, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var line ContractLine
	err := db.WithContext(ctx).
		Joins("JOIN contracts ON contracts.id = contract_lines.contract_id").
		Where("contracts.business_id = ?", businessId).
		Where("contract_lines.id = ?", lineId).
		Preload("Contract").
		Preload("Product").
		Preload("Product.Unit").
		First(&line).Error
	if err != nil {
		return nil, err
	}

	details, err := loadConsumingDetails(ctx, businessId, []int{line.ID})
	if err != nil {
		return nil, err
	}
	detailIds := make([]int, 0, len(details))
	for _, d := range details {
		detailIds = append(detailIds, d.ID)
	}
	moves, err := loadLinkedMoves(ctx, businessId, detailIds)
	if err != nil {
		return nil, err
	}

	return computeLineQuantities(&line, details, moves)
}

// GetContractQuantities recomputes the consumption snapshot of every line of
// a contract.
func GetContractQuantities(ctx context.Context, contractId int) ([]*ContractLineQuantities, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	contract, err := utils.FetchModel[Contract](ctx, businessId, contractId,
		"Lines", "Lines.Product", "Lines.Product.Unit")
	if err != nil {
		return nil, err
	}

	lineIds := make([]int, 0, len(contract.Lines))
	for _, line := range contract.Lines {
		lineIds = append(lineIds, line.ID)
	}

	var details []*PurchaseOrderDetail
	if len(lineIds) > 0 {
		details, err = loadConsumingDetails(ctx, businessId, lineIds)
		if err != nil {
			return nil, err
		}
	}
	detailIds := make([]int, 0, len(details))
	detailsByLine := make(map[int][]*PurchaseOrderDetail)
	for _, d := range details {
		detailIds = append(detailIds, d.ID)
		if d.ContractLineId != nil {
			detailsByLine[*d.ContractLineId] = append(detailsByLine[*d.ContractLineId], d)
		}
	}

	moves, err := loadLinkedMoves(ctx, businessId, detailIds)
	if err != nil {
		return nil, err
	}
	detailLine := make(map[int]int, len(details))
	for _, d := range details {
		if d.ContractLineId != nil {
			detailLine[d.ID] = *d.ContractLineId
		}
	}
	movesByLine := make(map[int][]*StockMove)
	for _, m := range moves {
		if lineId, ok := detailLine[m.OriginId]; ok {
			movesByLine[lineId] = append(movesByLine[lineId], m)
		}
	}

	results := make([]*ContractLineQuantities, 0, len(contract.Lines))
	for i := range contract.Lines {
		line := contract.Lines[i]
		line.Contract = contract
		quantities, err := computeLineQuantities(&line, detailsByLine[line.ID], movesByLine[line.ID])
		if err != nil {
			return nil, err
		}
		results = append(results, quantities)
	}
	return results, nil
}
