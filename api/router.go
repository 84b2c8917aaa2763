package api

import (
	"net/http"

	"api_pos/internal/inventory"
	"api_pos/internal/metrics"
	"api_pos/internal/payments"
	"api_pos/internal/sales"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP layer exposes.
type Dependencies struct {
	Sales      *sales.Service
	Payments   *payments.Service
	Reconciler *payments.Reconciler
	Ledger     inventory.Ledger
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
}

// InitRoutes registers the checkout, payment and stock endpoints on the given
// Gin engine.
func InitRoutes(e *gin.Engine, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	salesHandler := NewSalesHandler(deps.Sales, logger)
	e.POST("/sales", salesHandler.handleCreateSale)
	e.GET("/sales", salesHandler.handlerGetSales)
	e.GET("/sales/:id", salesHandler.handleGetSale)
	e.GET("/sales/:id/receipt", salesHandler.handleReceipt)
	e.PATCH("/sales/:id/payment", salesHandler.handleResolvePayment)

	if deps.Payments != nil && deps.Reconciler != nil {
		paymentsHandler := NewPaymentsHandler(deps.Payments, deps.Reconciler, logger)
		e.POST("/payments", paymentsHandler.handleInitiate)
		e.POST("/payments/callback", paymentsHandler.handleCallback)
		e.GET("/payments/review", paymentsHandler.handleReviewQueue)
		e.GET("/sales/:id/payments", paymentsHandler.handleSalePayments)
	}

	productsHandler := NewProductsHandler(deps.Ledger, logger)
	e.GET("/products", productsHandler.handleList)
	e.GET("/products/summary", productsHandler.handleSummary)
	e.POST("/products/:id/adjust", productsHandler.handleAdjust)

	if deps.Gatherer != nil {
		e.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
}
