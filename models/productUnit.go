package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/shopspring/decimal"
)

type ProductUnit struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"index;not null" json:"business_id"`
	Name         string          `gorm:"size:20;not null" json:"name" binding:"required"`
	Abbreviation string          `gorm:"size:7;not null" json:"abbreviation" binding:"required"`
	Precision    Precision       `gorm:"type:enum('0','1','2','3','4');default:'0';size:1;not null" json:"precision" binding:"required"`
	Category     UnitCategory    `gorm:"type:enum('Count','Weight','Volume','Length');not null;default:'Count'" json:"category" binding:"required"`
	Factor       decimal.Decimal `gorm:"type:decimal(20,10);not null;default:1" json:"factor"`
	// Factor is the multiplier to the category's base unit (kg has factor 1000
	// relative to g). Conversions only hold within one category.
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (pu ProductUnit) GetBusinessId() string {
	return pu.BusinessId
}

type NewProductUnit struct {
	Name         string          `json:"name" binding:"required"`
	Abbreviation string          `json:"abbreviation" binding:"required"`
	Precision    Precision       `json:"precision" binding:"required"`
	Category     UnitCategory    `json:"category" binding:"required"`
	Factor       decimal.Decimal `json:"factor"`
}

func (input *NewProductUnit) validate(ctx context.Context, businessId string, id int) error {
	if err := input.Precision.validate(); err != nil {
		return err
	}
	if input.Factor.Sign() <= 0 {
		return errors.New("factor must be positive")
	}
	if err := utils.ValidateUnique[ProductUnit](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if err := utils.ValidateUnique[ProductUnit](ctx, businessId, "abbreviation", input.Abbreviation, id); err != nil {
		return err
	}

	return nil
}

func CreateProductUnit(ctx context.Context, input *NewProductUnit) (*ProductUnit, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if input.Factor.IsZero() {
		input.Factor = decimal.NewFromInt(1)
	}
	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	unit := ProductUnit{
		BusinessId:   businessId,
		Name:         input.Name,
		Abbreviation: input.Abbreviation,
		Precision:    input.Precision,
		Category:     input.Category,
		Factor:       input.Factor,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&unit).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[ProductUnit](businessId); err != nil {
		return nil, err
	}
	return &unit, nil
}

func UpdateProductUnit(ctx context.Context, id int, input *NewProductUnit) (*ProductUnit, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	unit, err := utils.FetchModel[ProductUnit](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&unit).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Abbreviation": input.Abbreviation,
		"Precision":    input.Precision,
		"Category":     input.Category,
		"Factor":       input.Factor,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[ProductUnit](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[ProductUnit](businessId); err != nil {
		return nil, err
	}
	return unit, nil
}

func DeleteProductUnit(ctx context.Context, id int) (*ProductUnit, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	result, err := utils.FetchModel[ProductUnit](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// don't delete if the unit is referenced by a product
	count, err := utils.ResourceCountWhere[Product](ctx, businessId, "unit_id = ? OR purchase_unit_id = ?", id, id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("used by product")
	}

	db := config.GetDB()
	// db action
	err = db.WithContext(ctx).Delete(&result).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[ProductUnit](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[ProductUnit](businessId); err != nil {
		return nil, err
	}
	return result, nil
}

func GetProductUnit(ctx context.Context, id int) (*ProductUnit, error) {

	return GetResource[ProductUnit](ctx, id)
}

func GetProductUnits(ctx context.Context, name *string) ([]*ProductUnit, error) {

	db := config.GetDB()
	var results []*ProductUnit

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// unfiltered listings are cached per business
	if name == nil || *name == "" {
		cached, err := utils.RetrieveRedisList[ProductUnit](businessId)
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
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	if name == nil || *name == "" {
		if err := utils.StoreRedisList[ProductUnit](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
