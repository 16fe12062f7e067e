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

// Contract is a supplier agreement bounding which products may be purchased,
// at what price, within what date window, up to the agreed quantities on its
// lines. Dates stay nil until activation/cancellation fills them in.
type Contract struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id"`
	SupplierId     int             `gorm:"index;not null" json:"supplier_id" binding:"required"`
	Supplier       *Supplier       `gorm:"foreignKey:SupplierId" json:"supplier,omitempty"`
	ContractNumber string          `gorm:"size:255;not null" json:"contract_number"`
	SequenceNo     decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	State          ContractState   `gorm:"type:enum('Draft','Active','Cancelled');not null;default:'Draft'" json:"state"`
	// ContractBasis picks the quantity dimension counted against the agreed
	// ceiling; InvoiceBasis picks the dimension bills are cut from.
	ContractBasis QuantityBasis  `gorm:"type:enum('Origin','Destination');not null;default:'Destination'" json:"contract_basis"`
	InvoiceBasis  QuantityBasis  `gorm:"type:enum('Origin','Destination');not null;default:'Destination'" json:"invoice_basis"`
	StartDate     *time.Time     `gorm:"default:null" json:"start_date"`
	EndDate       *time.Time     `gorm:"default:null" json:"end_date"`
	Notes         string         `gorm:"type:text" json:"notes"`
	Lines         []ContractLine `gorm:"foreignKey:ContractId;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c Contract) GetBusinessId() string {
	return c.BusinessId
}

// ContractLine is one product's agreed quantity/price term. Quantities are
// expressed in the product's purchase unit. Consumption is never stored on
// the line; see contractConsumption.go.
type ContractLine struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ContractId int       `gorm:"index;not null;uniqueIndex:uniq_contract_product,priority:1" json:"contract_id"`
	Contract   *Contract `gorm:"foreignKey:ContractId" json:"contract,omitempty"`
	ProductId  int       `gorm:"not null;uniqueIndex:uniq_contract_product,priority:2" json:"product_id" binding:"required"`
	Product    *Product  `gorm:"foreignKey:ProductId" json:"product,omitempty"`
	// AgreedQty is the consumption ceiling; headroom enforcement is left to
	// the caller, this backend only reports the figures.
	AgreedQty      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"agreed_qty"`
	AgreedUnitRate decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"agreed_unit_rate"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewContract struct {
	SupplierId    int               `json:"supplier_id" binding:"required"`
	ContractBasis QuantityBasis     `json:"contract_basis"`
	InvoiceBasis  QuantityBasis     `json:"invoice_basis"`
	StartDate     *time.Time        `json:"start_date"`
	EndDate       *time.Time        `json:"end_date"`
	Notes         string            `json:"notes"`
	Lines         []NewContractLine `json:"lines"`
}

type NewContractLine struct {
	ProductId      int             `json:"product_id" binding:"required"`
	AgreedQty      decimal.Decimal `json:"agreed_qty"`
	AgreedUnitRate decimal.Decimal `json:"agreed_unit_rate"`
}

// overridable for deterministic tests
var todayFunc = func() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func today() time.Time { return todayFunc() }

// dateOnly drops the time of day so window checks work at day granularity.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// checkLineProductsUnique rejects two lines for one product before the
// unique index does, so the caller gets a readable error.
func checkLineProductsUnique(lines []NewContractLine) error {
	seen := make(map[int]bool, len(lines))
	for _, line := range lines {
		if seen[line.ProductId] {
			return ErrDuplicateContractProduct
		}
		seen[line.ProductId] = true
	}
	return nil
}

func (input *NewContract) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
		return err
	}
	if input.ContractBasis != "" && !input.ContractBasis.valid() {
		return errors.New("invalid contract basis")
	}
	if input.InvoiceBasis != "" && !input.InvoiceBasis.valid() {
		return errors.New("invalid invoice basis")
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return errors.New("end date before start date")
	}
	if err := checkLineProductsUnique(input.Lines); err != nil {
		return err
	}
	for _, line := range input.Lines {
		product, err := utils.FetchModel[Product](ctx, businessId, line.ProductId)
		if err != nil {
			return err
		}
		if !utils.DereferencePtr(product.IsPurchasable, true) {
			return fmt.Errorf("product %q is not purchasable", product.Name)
		}
		if line.AgreedQty.Sign() < 0 {
			return errors.New("agreed qty cannot be negative")
		}
	}
	return nil
}

func (input *NewContract) buildLines() []ContractLine {
	lines := make([]ContractLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		lines = append(lines, ContractLine{
			ProductId:      l.ProductId,
			AgreedQty:      l.AgreedQty,
			AgreedUnitRate: l.AgreedUnitRate,
		})
	}
	return lines
}

func CreateContract(ctx context.Context, input *NewContract) (*Contract, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	if input.ContractBasis == "" {
		input.ContractBasis = QuantityBasisDestination
	}
	if input.InvoiceBasis == "" {
		input.InvoiceBasis = QuantityBasisDestination
	}

	if err := utils.BusinessLock(ctx, businessId, "ContractNumber", "contract", "CreateContract"); err != nil {
		return nil, err
	}

	contract := Contract{
		BusinessId:    businessId,
		SupplierId:    input.SupplierId,
		State:         ContractStateDraft,
		ContractBasis: input.ContractBasis,
		InvoiceBasis:  input.InvoiceBasis,
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
		Notes:         input.Notes,
		Lines:         input.buildLines(),
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	seqNo, err := utils.GetSequence[Contract](ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	contract.SequenceNo = decimal.NewFromInt(seqNo)
	contract.ContractNumber = fmt.Sprintf("CT-%06d", seqNo)

	if err := tx.WithContext(ctx).Create(&contract).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := createHistory(tx.WithContext(ctx), "Create", contract.ID, "contracts", nil, nil,
		"Created contract "+contract.ContractNumber); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// UpdateContract replaces the editable fields of a Draft contract, lines
// included. Non-draft contracts are frozen.
func UpdateContract(ctx context.Context, id int, input *NewContract) (*Contract, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	contract, err := utils.FetchModel[Contract](ctx, businessId, id, "Lines")
	if err != nil {
		return nil, err
	}
	if contract.State != ContractStateDraft {
		if contract.State == ContractStateActive && config.AllowActiveContractEdits() {
			return updateActiveContract(ctx, contract, input)
		}
		return nil, errors.New("only draft contracts can be edited")
	}

	if err := input.validate(ctx, businessId); err != nil {
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

	oldContract := *contract

	if err := tx.WithContext(ctx).Model(contract).Updates(map[string]interface{}{
		"SupplierId":    input.SupplierId,
		"ContractBasis": input.ContractBasis,
		"InvoiceBasis":  input.InvoiceBasis,
		"StartDate":     input.StartDate,
		"EndDate":       input.EndDate,
		"Notes":         input.Notes,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	// replace lines wholesale; draft contracts have no linked purchase lines
	if err := tx.WithContext(ctx).Where("contract_id = ?", contract.ID).Delete(&ContractLine{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	newLines := input.buildLines()
	for i := range newLines {
		newLines[i].ContractId = contract.ID
	}
	if len(newLines) > 0 {
		if err := tx.WithContext(ctx).Create(&newLines).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	contract.Lines = newLines

	if err := createHistory(tx.WithContext(ctx), "Update", contract.ID, "contracts", &oldContract, contract,
		"Updated contract "+contract.ContractNumber); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return contract, nil
}

// updateActiveContract applies the few fields an Active contract may still
// change. Supplier, basis and lines stay frozen once purchases can reference
// the contract.
func updateActiveContract(ctx context.Context, contract *Contract, input *NewContract) (*Contract, error) {
	if input.EndDate != nil && contract.StartDate != nil && input.EndDate.Before(*contract.StartDate) {
		return nil, errors.New("end date before start date")
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	oldContract := *contract

	if err := tx.WithContext(ctx).Model(contract).Updates(map[string]interface{}{
		"EndDate": input.EndDate,
		"Notes":   input.Notes,
	}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), "Update", contract.ID, "contracts", &oldContract, contract,
		"Updated active contract "+contract.ContractNumber); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return contract, nil
}

func DeleteContract(ctx context.Context, id int) (*Contract, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	contract, err := utils.FetchModel[Contract](ctx, businessId, id, "Lines")
	if err != nil {
		return nil, err
	}
	if contract.State != ContractStateDraft {
		return nil, errors.New("only draft contracts can be deleted")
	}

	db := config.GetDB()
	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := tx.WithContext(ctx).Where("contract_id = ?", contract.ID).Delete(&ContractLine{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(contract).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), "Delete", contract.ID, "contracts", contract, nil,
		"Deleted contract "+contract.ContractNumber); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return contract, nil
}

func GetContract(ctx context.Context, id int) (*Contract, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Contract](ctx, businessId, id, "Supplier", "Lines", "Lines.Product")
}

func GetContracts(ctx context.Context, supplierId *int, state *ContractState) ([]*Contract, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if supplierId != nil {
		dbCtx = dbCtx.Where("supplier_id = ?", *supplierId)
	}
	if state != nil {
		dbCtx = dbCtx.Where("state = ?", *state)
	}
	var results []*Contract
	err := dbCtx.Preload("Supplier").Preload("Lines").Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// activateContract applies the Draft -> Active transition in memory.
// Already-active contracts are skipped (batch activation is idempotent for
// them); anything else is rejected.
func activateContract(contract *Contract, asOf time.Time) (changed bool, err error) {
	if contract.State == ContractStateActive {
		return false, nil
	}
	if !contract.State.CanTransitionTo(ContractStateActive) {
		return false, &ContractTransitionError{
			ContractNumber: contract.ContractNumber,
			From:           contract.State,
			To:             ContractStateActive,
		}
	}
	contract.State = ContractStateActive
	if contract.StartDate == nil {
		d := asOf
		contract.StartDate = &d
	}
	return true, nil
}

// cancelContract applies the Active -> Cancelled transition in memory.
// Cancelling twice is a no-op; cancelling a Draft is rejected (it never
// started, delete it instead).
func cancelContract(contract *Contract, asOf time.Time) (changed bool, err error) {
	if contract.State == ContractStateCancelled {
		return false, nil
	}
	if !contract.State.CanTransitionTo(ContractStateCancelled) {
		return false, &ContractTransitionError{
			ContractNumber: contract.ContractNumber,
			From:           contract.State,
			To:             ContractStateCancelled,
		}
	}
	contract.State = ContractStateCancelled
	if contract.EndDate == nil {
		d := asOf
		contract.EndDate = &d
	}
	return true, nil
}

// ActivateContracts transitions a batch of contracts to Active in one
// transaction. One bad member rejects the whole batch.
func ActivateContracts(ctx context.Context, ids []int) ([]*Contract, error) {
	return transitionContracts(ctx, ids, "Activate", activateContract)
}

// CancelContracts transitions a batch of contracts to Cancelled in one
// transaction. One bad member rejects the whole batch.
func CancelContracts(ctx context.Context, ids []int) ([]*Contract, error) {
	return transitionContracts(ctx, ids, "Cancel", cancelContract)
}

func transitionContracts(ctx context.Context, ids []int, action string,
	apply func(*Contract, time.Time) (bool, error)) ([]*Contract, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if len(ids) == 0 {
		return nil, errors.New("contract ids are required")
	}
	ids = utils.UniqueSlice(ids)
	if err := utils.ValidateResourcesId[Contract](ctx, businessId, ids); err != nil {
		return nil, err
	}

	db := config.GetDB()

	var contracts []*Contract
	if err := db.WithContext(ctx).
		Where("business_id = ? AND id IN ?", businessId, ids).
		Order("id").
		Find(&contracts).Error; err != nil {
		return nil, err
	}

	asOf := today()

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	for _, contract := range contracts {
		changed, err := apply(contract, asOf)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if !changed {
			continue
		}
		if err := tx.WithContext(ctx).Model(contract).Updates(map[string]interface{}{
			"State":     contract.State,
			"StartDate": contract.StartDate,
			"EndDate":   contract.EndDate,
		}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := createHistory(tx.WithContext(ctx), "Update", contract.ID, "contracts", nil, nil,
			action+"d contract "+contract.ContractNumber); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return contracts, nil
}

// CloneContract duplicates a contract as a fresh unstarted agreement: Draft
// state, cleared dates, lines re-parented to the clone with no purchase
// history behind them.
func CloneContract(ctx context.Context, id int) (*Contract, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	contract, err := utils.FetchModel[Contract](ctx, businessId, id, "Lines")
	if err != nil {
		return nil, err
	}

	newLines := make([]ContractLine, 0, len(contract.Lines))
	for _, line := range contract.Lines {
		newLines = append(newLines, ContractLine{
			ProductId:      line.ProductId,
			AgreedQty:      line.AgreedQty,
			AgreedUnitRate: line.AgreedUnitRate,
		})
	}

	clone := Contract{
		BusinessId:    businessId,
		SupplierId:    contract.SupplierId,
		State:         ContractStateDraft,
		ContractBasis: contract.ContractBasis,
		InvoiceBasis:  contract.InvoiceBasis,
		StartDate:     nil,
		EndDate:       nil,
		Notes:         contract.Notes,
		Lines:         newLines,
	}

	if err := utils.BusinessLock(ctx, businessId, "ContractNumber", "contract", "CloneContract"); err != nil {
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

	seqNo, err := utils.GetSequence[Contract](ctx, businessId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	clone.SequenceNo = decimal.NewFromInt(seqNo)
	clone.ContractNumber = fmt.Sprintf("CT-%06d", seqNo)

	if err := tx.WithContext(ctx).Create(&clone).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := createHistory(tx.WithContext(ctx), "Create", clone.ID, "contracts", nil, nil,
		fmt.Sprintf("Cloned contract %s from %s", clone.ContractNumber, contract.ContractNumber)); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &clone, nil
}

// contractDateViolation reports whether a purchase dated `date` falls outside
// the contract's validity window. Both bounds are inclusive, compared at day
// granularity. Nil bounds are open-ended.
func contractDateViolation(contract *Contract, date time.Time) bool {
	day := dateOnly(date)
	if contract.StartDate != nil && day.Before(dateOnly(*contract.StartDate)) {
		return true
	}
	if contract.EndDate != nil && day.After(dateOnly(*contract.EndDate)) {
		return true
	}
	return false
}

// contractCoversDate is the query-time twin of contractDateViolation, used
// when searching candidate contract lines.
func contractCoversDate(dbCtx *gorm.DB, date time.Time) *gorm.DB {
	day := dateOnly(date)
	return dbCtx.
		Where("contracts.start_date IS NULL OR contracts.start_date <= ?", day).
		Where("contracts.end_date IS NULL OR contracts.end_date >= ?", day)
}
