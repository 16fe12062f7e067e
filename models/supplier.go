package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
)

type Supplier struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email      string    `gorm:"size:100" json:"email"`
	Phone      string    `gorm:"size:20" json:"phone"`
	Notes      string    `gorm:"type:text" json:"notes"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s Supplier) GetBusinessId() string {
	return s.BusinessId
}

type NewSupplier struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

func CreateSupplier(ctx context.Context, input *NewSupplier) (*Supplier, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[Supplier](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	supplier := Supplier{
		BusinessId: businessId,
		Name:       input.Name,
		Email:      input.Email,
		Phone:      input.Phone,
		Notes:      input.Notes,
	}

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&supplier).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Supplier](businessId); err != nil {
		return nil, err
	}
	return &supplier, nil
}

func UpdateSupplier(ctx context.Context, id int, input *NewSupplier) (*Supplier, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[Supplier](ctx, businessId, "name", input.Name, id); err != nil {
		return nil, err
	}

	supplier, err := utils.FetchModel[Supplier](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&supplier).Updates(map[string]interface{}{
		"Name":  input.Name,
		"Email": input.Email,
		"Phone": input.Phone,
		"Notes": input.Notes,
	}).Error
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Supplier](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Supplier](businessId); err != nil {
		return nil, err
	}
	return supplier, nil
}

func DeleteSupplier(ctx context.Context, id int) (*Supplier, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	result, err := utils.FetchModel[Supplier](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// a supplier with contracts or orders must stay
	count, err := utils.ResourceCountWhere[Contract](ctx, businessId, "supplier_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("used by contract")
	}
	count, err = utils.ResourceCountWhere[PurchaseOrder](ctx, businessId, "supplier_id = ?", id)
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
	if err := utils.RemoveRedisItem[Supplier](id); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[Supplier](businessId); err != nil {
		return nil, err
	}
	return result, nil
}

func GetSupplier(ctx context.Context, id int) (*Supplier, error) {

	return GetResource[Supplier](ctx, id)
}

func GetSuppliers(ctx context.Context, name *string) ([]*Supplier, error) {

	db := config.GetDB()
	var results []*Supplier

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// unfiltered listings are cached per business
	if name == nil || *name == "" {
		cached, err := utils.RetrieveRedisList[Supplier](businessId)
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
		if err := utils.StoreRedisList[Supplier](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
