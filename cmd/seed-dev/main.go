package main

import (
	"context"
	"flag"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/models"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Seeds a development business with units, products, a supplier, a
// warehouse and an active contract, then prints a bearer token for it.
func main() {
	godotenv.Load()

	businessId := flag.String("business", "dev-business", "business id to seed")
	flag.Parse()

	logger := config.GetLogger()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "seed-dev")

	kg, err := models.CreateProductUnit(ctx, &models.NewProductUnit{
		Name:         "Kilogram",
		Abbreviation: "kg",
		Precision:    "2",
		Category:     models.UnitCategoryWeight,
		Factor:       decimal.NewFromInt(1),
	})
	if err != nil {
		logger.Fatal(err)
	}
	_, err = models.CreateProductUnit(ctx, &models.NewProductUnit{
		Name:         "Gram",
		Abbreviation: "g",
		Precision:    "0",
		Category:     models.UnitCategoryWeight,
		Factor:       decimal.NewFromFloat(0.001),
	})
	if err != nil {
		logger.Fatal(err)
	}
	bag, err := models.CreateProductUnit(ctx, &models.NewProductUnit{
		Name:         "Bag 25kg",
		Abbreviation: "bag",
		Precision:    "0",
		Category:     models.UnitCategoryWeight,
		Factor:       decimal.NewFromInt(25),
	})
	if err != nil {
		logger.Fatal(err)
	}

	rice, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:           "Rice Premium",
		Sku:            "RICE-PREM",
		UnitId:         kg.ID,
		PurchaseUnitId: bag.ID,
		CostPrice:      decimal.NewFromInt(1200),
	})
	if err != nil {
		logger.Fatal(err)
	}

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{
		Name:  "Golden Harvest Trading",
		Email: "orders@goldenharvest.example",
		Phone: "+95 9 7000 0001",
	})
	if err != nil {
		logger.Fatal(err)
	}

	warehouse, err := models.CreateWarehouse(ctx, &models.NewWarehouse{
		Name:    "Main Warehouse",
		Address: "Yangon",
	})
	if err != nil {
		logger.Fatal(err)
	}

	start := time.Now().UTC().AddDate(0, -1, 0)
	end := start.AddDate(1, 0, 0)
	contract, err := models.CreateContract(ctx, &models.NewContract{
		SupplierId:    supplier.ID,
		ContractBasis: models.QuantityBasisDestination,
		InvoiceBasis:  models.QuantityBasisOrigin,
		StartDate:     &start,
		EndDate:       &end,
		Lines: []models.NewContractLine{
			{
				ProductId:      rice.ID,
				AgreedQty:      decimal.NewFromInt(400),
				AgreedUnitRate: decimal.NewFromInt(29500),
			},
		},
	})
	if err != nil {
		logger.Fatal(err)
	}
	if _, err := models.ActivateContracts(ctx, []int{contract.ID}); err != nil {
		logger.Fatal(err)
	}

	token, err := utils.JwtGenerate(1, "admin", *businessId)
	if err != nil {
		logger.Fatal(err)
	}

	logger.Infof("seeded business %s: supplier=%d warehouse=%d contract=%s", *businessId, supplier.ID, warehouse.ID, contract.ContractNumber)
	logger.Infof("bearer token: %s", token)
}
