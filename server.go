package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/contracts_backend/config"
	"bitbucket.org/mmdatafocus/contracts_backend/middlewares"
	"bitbucket.org/mmdatafocus/contracts_backend/models"
	"bitbucket.org/mmdatafocus/contracts_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultPort = "8080"

func main() {
	godotenv.Load()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id"},
		ExposeHeaders:    []string{"X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middlewares.RequestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", middlewares.AuthMiddleware())

	registerProductUnitRoutes(api)
	registerProductRoutes(api)
	registerSupplierRoutes(api)
	registerWarehouseRoutes(api)
	registerContractRoutes(api)
	registerPurchaseOrderRoutes(api)
	registerStockMoveRoutes(api)
	registerBillRoutes(api)

	config.GetLogger().Infof("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		config.GetLogger().Fatal(err)
	}
}

func writeError(c *gin.Context, err error) {
	correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	config.LogError(config.GetLogger(), "api", c.FullPath(), correlationId, nil, err)

	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(err)})
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrDuplicateContractProduct),
		errors.Is(err, models.ErrOriginQuantityRequired),
		errors.Is(err, models.ErrUnitCategoryMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		var dateErr *models.DateRangeError
		var methodErr *models.InvoiceMethodError
		if errors.As(err, &dateErr) || errors.As(err, &methodErr) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func optionalIntQuery(c *gin.Context, key string) *int {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func registerProductUnitRoutes(api *gin.RouterGroup) {
	api.POST("/product-units", func(c *gin.Context) {
		var input models.NewProductUnit
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		unit, err := models.CreateProductUnit(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, unit)
	})
	api.GET("/product-units", func(c *gin.Context) {
		name := utils.NilIfEmpty(c.Query("name"))
		units, err := models.GetProductUnits(c.Request.Context(), name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, units)
	})
	api.GET("/product-units/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		unit, err := models.GetProductUnit(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, unit)
	})
	api.PUT("/product-units/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewProductUnit
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		unit, err := models.UpdateProductUnit(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, unit)
	})
	api.DELETE("/product-units/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		unit, err := models.DeleteProductUnit(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, unit)
	})
}

func registerProductRoutes(api *gin.RouterGroup) {
	api.POST("/products", func(c *gin.Context) {
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	})
	api.GET("/products", func(c *gin.Context) {
		name := utils.NilIfEmpty(c.Query("name"))
		products, err := models.GetProducts(c.Request.Context(), name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, products)
	})
	api.GET("/products/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		product, err := models.GetProduct(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})
	api.PUT("/products/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		product, err := models.UpdateProduct(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})
	api.DELETE("/products/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		product, err := models.DeleteProduct(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	})
}

func registerSupplierRoutes(api *gin.RouterGroup) {
	api.POST("/suppliers", func(c *gin.Context) {
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		supplier, err := models.CreateSupplier(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, supplier)
	})
	api.GET("/suppliers", func(c *gin.Context) {
		name := utils.NilIfEmpty(c.Query("name"))
		suppliers, err := models.GetSuppliers(c.Request.Context(), name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, suppliers)
	})
	api.GET("/suppliers/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		supplier, err := models.GetSupplier(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	})
	api.PUT("/suppliers/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewSupplier
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		supplier, err := models.UpdateSupplier(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	})
	api.DELETE("/suppliers/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		supplier, err := models.DeleteSupplier(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, supplier)
	})
}

func registerWarehouseRoutes(api *gin.RouterGroup) {
	api.POST("/warehouses", func(c *gin.Context) {
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		warehouse, err := models.CreateWarehouse(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, warehouse)
	})
	api.GET("/warehouses", func(c *gin.Context) {
		warehouses, err := models.GetWarehouses(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouses)
	})
	api.GET("/warehouses/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		warehouse, err := models.GetWarehouse(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouse)
	})
	api.PUT("/warehouses/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewWarehouse
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		warehouse, err := models.UpdateWarehouse(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, warehouse)
	})
}

type contractIdsInput struct {
	Ids []int `json:"ids" binding:"required"`
}

func registerContractRoutes(api *gin.RouterGroup) {
	api.POST("/contracts", func(c *gin.Context) {
		var input models.NewContract
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		contract, err := models.CreateContract(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, contract)
	})
	api.GET("/contracts", func(c *gin.Context) {
		supplierId := optionalIntQuery(c, "supplier_id")
		var state *models.ContractState
		if raw := c.Query("state"); raw != "" {
			s := models.ContractState(raw)
			state = &s
		}
		contracts, err := models.GetContracts(c.Request.Context(), supplierId, state)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, contracts)
	})
	api.GET("/contracts/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		contract, err := models.GetContract(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, contract)
	})
	api.PUT("/contracts/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewContract
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		contract, err := models.UpdateContract(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, contract)
	})
	api.DELETE("/contracts/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		contract, err := models.DeleteContract(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, contract)
	})
	api.POST("/contracts/activate", func(c *gin.Context) {
		var input contractIdsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		contracts, err := models.ActivateContracts(c.Request.Context(), input.Ids)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, contracts)
	})
	api.POST("/contracts/cancel", func(c *gin.Context) {
		var input contractIdsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		contracts, err := models.CancelContracts(c.Request.Context(), input.Ids)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, contracts)
	})
	api.POST("/contracts/:id/clone", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		contract, err := models.CloneContract(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, contract)
	})
	api.GET("/contracts/:id/quantities", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		quantities, err := models.GetContractQuantities(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, quantities)
	})
	api.GET("/contract-lines/:id/quantities", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		quantities, err := models.GetContractLineQuantities(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, quantities)
	})
	// auto-link suggestion for order entry screens
	api.GET("/contract-lines/default", func(c *gin.Context) {
		supplierId := optionalIntQuery(c, "supplier_id")
		productId := optionalIntQuery(c, "product_id")
		unitId := optionalIntQuery(c, "unit_id")
		if supplierId == nil || productId == nil || unitId == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "supplier_id, product_id and unit_id are required"})
			return
		}
		orderDate, err := time.Parse("2006-01-02", c.Query("order_date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order_date must be YYYY-MM-DD"})
			return
		}
		suggestion, err := models.DefaultContractLine(c.Request.Context(), *supplierId, *productId, orderDate, *unitId)
		if err != nil {
			writeError(c, err)
			return
		}
		if suggestion == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, suggestion)
	})
}

type statusInput struct {
	Status string `json:"status" binding:"required"`
}

func registerPurchaseOrderRoutes(api *gin.RouterGroup) {
	api.POST("/purchase-orders", func(c *gin.Context) {
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		order, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	})
	api.GET("/purchase-orders", func(c *gin.Context) {
		supplierId := optionalIntQuery(c, "supplier_id")
		var status *models.PurchaseOrderStatus
		if raw := c.Query("status"); raw != "" {
			s := models.PurchaseOrderStatus(raw)
			status = &s
		}
		orders, err := models.GetPurchaseOrders(c.Request.Context(), supplierId, status)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	})
	api.GET("/purchase-orders/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		order, err := models.GetPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})
	api.PUT("/purchase-orders/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		order, err := models.UpdatePurchaseOrder(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})
	api.PUT("/purchase-orders/:id/status", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input statusInput
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		order, err := models.UpdatePurchaseOrderStatus(c.Request.Context(), id, models.PurchaseOrderStatus(input.Status))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})
	api.DELETE("/purchase-orders/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		order, err := models.DeletePurchaseOrder(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	})
	api.POST("/purchase-orders/:id/bills", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bill, err := models.CreateBillFromPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, bill)
	})
}

func registerStockMoveRoutes(api *gin.RouterGroup) {
	api.POST("/stock-moves", func(c *gin.Context) {
		var input models.NewStockMove
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		move, err := models.CreateStockMove(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, move)
	})
	api.GET("/stock-moves", func(c *gin.Context) {
		warehouseId := optionalIntQuery(c, "warehouse_id")
		var state *models.StockMoveState
		if raw := c.Query("state"); raw != "" {
			s := models.StockMoveState(raw)
			state = &s
		}
		moves, err := models.GetStockMoves(c.Request.Context(), warehouseId, state)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, moves)
	})
	api.GET("/stock-moves/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		move, err := models.GetStockMove(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, move)
	})
	api.PUT("/stock-moves/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewStockMove
		if err := c.ShouldBindJSON(&input); err != nil {
			writeError(c, err)
			return
		}
		move, err := models.UpdateStockMove(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, move)
	})
	api.POST("/stock-moves/:id/done", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		move, err := models.MarkStockMoveDone(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, move)
	})
	api.POST("/stock-moves/:id/cancel", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		move, err := models.CancelStockMove(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, move)
	})
}

func registerBillRoutes(api *gin.RouterGroup) {
	api.GET("/bills", func(c *gin.Context) {
		purchaseOrderId := optionalIntQuery(c, "purchase_order_id")
		var status *models.BillStatus
		if raw := c.Query("status"); raw != "" {
			s := models.BillStatus(raw)
			status = &s
		}
		bills, err := models.GetBills(c.Request.Context(), purchaseOrderId, status)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bills)
	})
	api.GET("/bills/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bill, err := models.GetBill(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	})
	api.POST("/bills/:id/confirm", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bill, err := models.ConfirmBill(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	})
	api.POST("/bills/:id/pay", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bill, err := models.MarkBillPaid(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	})
	api.POST("/bills/:id/void", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bill, err := models.VoidBill(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bill)
	})
	api.POST("/bills/:id/void-recreate", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		bill, err := models.VoidAndRecreateBill(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, bill)
	})
}
