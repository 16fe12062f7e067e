package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
)

type Warehouse struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id"`
	Name       string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Address    string    `gorm:"type:text" json:"address"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w Warehouse) GetBusinessId() string {
	return w.BusinessId
}

type NewWarehouse struct {
	Name     string `json:"name" binding:"required"`
	Address  string `json:"address"`
	IsActive *bool  `json:"is_active"`
}

func CreateWarehouse(ctx context.Context, input *NewWarehouse) (*Warehouse, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := utils.ValidateUnique[Warehouse](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}
	if input.IsActive == nil {
		input.IsActive = utils.NewTrue()
	}

	warehouse := Warehouse{
		BusinessId: businessId,
		Name:       input.Name,
		Address:    input.Address,
		IsActive:   input.IsActive,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&warehouse).Error; err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func UpdateWarehouse(ctx context.Context, id int, input *NewWarehouse) (*Warehouse, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	warehouse, err := utils.FetchModel[Warehouse](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Warehouse](ctx, businessId, "name", input.Name, id); err != nil {
		return nil, err
	}
	if input.IsActive == nil {
		input.IsActive = warehouse.IsActive
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(warehouse).Updates(map[string]interface{}{
		"Name":     input.Name,
		"Address":  input.Address,
		"IsActive": input.IsActive,
	}).Error
	if err != nil {
		return nil, err
	}
	return warehouse, nil
}

func GetWarehouse(ctx context.Context, id int) (*Warehouse, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Warehouse](ctx, businessId, id)
}

func GetWarehouses(ctx context.Context) ([]*Warehouse, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Warehouse](ctx, businessId)
}
