package models

import (
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"gorm.io/gorm"
)

type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type" binding:"required"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   int       `gorm:"index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func createHistory(tx *gorm.DB,
	actionType string,
	referenceId int,
	referenceType string,
	before interface{},
	after interface{},
	description string) (err error) {

	var history History

	b, _ := json.Marshal(before)
	a, _ := json.Marshal(after)

	ctx := tx.Statement.Context
	// get businessId, userId, userName from context
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return errors.New("business id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}
	// tokens carry no display name, the audit row tolerates a blank one
	userName, _ := utils.GetUserNameFromContext(ctx)

	history.BusinessId = businessId
	history.ActionType = actionType
	history.Before = string(b)
	history.After = string(a)
	history.Description = description
	history.ReferenceID = referenceId
	history.ReferenceType = referenceType
	history.UserId = userId
	history.UserName = userName

	err = tx.Create(&history).Error
	return err
}
