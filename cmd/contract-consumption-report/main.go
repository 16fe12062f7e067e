package main

import (
	"context"
	"flag"
	"fmt"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/models"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/joho/godotenv"
	"github.com/xuri/excelize/v2"
)

// Exports a consumption workbook: one row per contract line with agreed,
// consumed and remaining quantities, one sheet per contract.
func main() {
	godotenv.Load()

	businessId := flag.String("business", "", "business id to report on")
	contractId := flag.Int("contract", 0, "report a single contract (default: all active)")
	outFile := flag.String("out", "contract-consumption.xlsx", "output file")
	flag.Parse()

	logger := config.GetLogger()
	if *businessId == "" {
		logger.Fatal("-business is required")
	}
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessId)
	ctx = utils.SetUserNameInContext(ctx, "consumption-report")

	var contracts []*models.Contract
	var err error
	if *contractId != 0 {
		var contract *models.Contract
		contract, err = models.GetContract(ctx, *contractId)
		if contract != nil {
			contracts = []*models.Contract{contract}
		}
	} else {
		state := models.ContractStateActive
		contracts, err = models.GetContracts(ctx, nil, &state)
	}
	if err != nil {
		logger.Fatal(err)
	}
	if len(contracts) == 0 {
		logger.Fatal("no contracts to report")
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		logger.Fatal(err)
	}

	for i, contract := range contracts {
		sheet := contract.ContractNumber
		if i == 0 {
			f.SetSheetName("Sheet1", sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				logger.Fatal(err)
			}
		}

		f.SetCellValue(sheet, "A1", fmt.Sprintf("Contract %s (%s)", contract.ContractNumber, contract.State))
		if contract.Supplier != nil {
			f.SetCellValue(sheet, "A2", "Supplier: "+contract.Supplier.Name)
		}

		headers := []string{"Product", "Agreed Qty", "Ordered Qty", "Supplier Qty", "Consumed Qty", "Remaining Qty"}
		for col, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(col+1, 4)
			f.SetCellValue(sheet, cell, h)
			f.SetCellStyle(sheet, cell, cell, headerStyle)
		}

		quantities, err := models.GetContractQuantities(ctx, contract.ID)
		if err != nil {
			logger.Fatal(err)
		}
		for row, q := range quantities {
			values := []interface{}{
				q.ProductName,
				q.AgreedQty.InexactFloat64(),
				q.DestinationQty.InexactFloat64(),
				q.OriginQty.InexactFloat64(),
				q.ConsumedQty.InexactFloat64(),
				q.RemainingQty.InexactFloat64(),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+5)
				f.SetCellValue(sheet, cell, v)
			}
		}
		f.SetColWidth(sheet, "A", "A", 32)
		f.SetColWidth(sheet, "B", "F", 16)
	}

	if err := f.SaveAs(*outFile); err != nil {
		logger.Fatal(err)
	}
	logger.Infof("wrote %s (%d contracts)", *outFile, len(contracts))
}
