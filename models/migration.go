package models

import "bitbucket.org/mmdatafocus/contracts_backend/config"

func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Supplier{},
		&ProductUnit{},
		&Product{},
		&Warehouse{},
		&Contract{},
		&ContractLine{},
		&PurchaseOrder{},
		&PurchaseOrderDetail{},
		&StockMove{},
		&Bill{},
		&BillDetail{},
		&History{},
	)
	if err != nil {
		config.GetLogger().Fatal(err)
	}
}
