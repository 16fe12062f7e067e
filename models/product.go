package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int         `gorm:"primary_key" json:"id"`
	BusinessId  string      `gorm:"index;not null" json:"business_id"`
	Name        string      `gorm:"size:100;not null" json:"name" binding:"required"`
	Sku         string      `gorm:"size:100" json:"sku"`
	ProductType ProductType `gorm:"type:enum('G','S');default:'G'" json:"product_type"`
	// UnitId is the unit stock and consumption figures are reported in;
	// PurchaseUnitId is the unit agreed quantities and orders default to.
	UnitId         int             `gorm:"not null" json:"unit_id" binding:"required"`
	Unit           *ProductUnit    `gorm:"foreignKey:UnitId" json:"unit,omitempty"`
	PurchaseUnitId int             `gorm:"not null" json:"purchase_unit_id" binding:"required"`
	PurchaseUnit   *ProductUnit    `gorm:"foreignKey:PurchaseUnitId" json:"purchase_unit,omitempty"`
	CostPrice      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cost_price"`
	IsPurchasable  *bool           `gorm:"not null;default:true" json:"is_purchasable"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p Product) GetBusinessId() string {
	return p.BusinessId
}

type NewProduct struct {
	Name           string          `json:"name" binding:"required"`
	Sku            string          `json:"sku"`
	ProductType    ProductType     `json:"product_type"`
	UnitId         int             `json:"unit_id" binding:"required"`
	PurchaseUnitId int             `json:"purchase_unit_id"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	IsPurchasable  *bool           `json:"is_purchasable"`
}

func (input *NewProduct) validate(ctx context.Context, businessId string, id int) error {
	if err := utils.ValidateUnique[Product](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if err := utils.ValidateResourceId[ProductUnit](ctx, businessId, input.UnitId); err != nil {
		return err
	}
	if input.PurchaseUnitId != 0 && input.PurchaseUnitId != input.UnitId {
		if err := utils.ValidateResourceId[ProductUnit](ctx, businessId, input.PurchaseUnitId); err != nil {
			return err
		}
		// both units must be convertible into each other
		defaultUnit, err := utils.FetchModel[ProductUnit](ctx, businessId, input.UnitId)
		if err != nil {
			return err
		}
		purchaseUnit, err := utils.FetchModel[ProductUnit](ctx, businessId, input.PurchaseUnitId)
		if err != nil {
			return err
		}
		if defaultUnit.Category != purchaseUnit.Category {
			return ErrUnitCategoryMismatch
		}
	}
	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	if input.ProductType == "" {
		input.ProductType = ProductTypeGoods
	}
	if input.PurchaseUnitId == 0 {
		input.PurchaseUnitId = input.UnitId
	}

	product := Product{
		BusinessId:     businessId,
		Name:           input.Name,
		Sku:            input.Sku,
		ProductType:    input.ProductType,
		UnitId:         input.UnitId,
		PurchaseUnitId: input.PurchaseUnitId,
		CostPrice:      input.CostPrice,
		IsPurchasable:  input.IsPurchasable,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&product).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Product](businessId); err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	if input.PurchaseUnitId == 0 {
		input.PurchaseUnitId = input.UnitId
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&product).Updates(map[string]interface{}{
		"Name":           input.Name,
		"Sku":            input.Sku,
		"ProductType":    input.ProductType,
		"UnitId":         input.UnitId,
		"PurchaseUnitId": input.PurchaseUnitId,
		"CostPrice":      input.CostPrice,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Product](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Product](businessId); err != nil {
		return nil, err
	}
	return product, nil
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	result, err := utils.FetchModel[Product](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[ContractLine](ctx, "", "product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("used by contract line")
	}
	count, err = utils.ResourceCountWhere[PurchaseOrderDetail](ctx, "", "product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("used by purchase order")
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Product](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Product](businessId); err != nil {
		return nil, err
	}
	return result, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {

	return GetResource[Product](ctx, id)
}

func GetProducts(ctx context.Context, name *string) ([]*Product, error) {

	db := config.GetDB()
	var results []*Product

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// unfiltered listings are cached per business
	if name == nil || *name == "" {
		cached, err := utils.RetrieveRedisList[Product](businessId)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Preload("Unit").Preload("PurchaseUnit").Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	if name == nil || *name == "" {
		if err := utils.StoreRedisList[Product](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
