package api

import (
	"errors"
	"net/http"

	"api_pos/internal/inventory"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type productsHandler struct {
	ledger inventory.Ledger
	logger *zap.Logger
}

func NewProductsHandler(ledger inventory.Ledger, logger *zap.Logger) *productsHandler {
	return &productsHandler{ledger: ledger, logger: logger}
}

type productView struct {
	*inventory.Product
	StockStatus string `json:"stock_status"`
}

// handleList handles GET /products, optionally filtered by ?status=low_stock|out_of_stock|in_stock.
func (h *productsHandler) handleList(ctx *gin.Context) {
	status := ctx.Query("status")
	switch status {
	case "", inventory.StatusInStock, inventory.StatusLowStock, inventory.StatusOutOfStock:
	default:
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid status value"})
		return
	}

	products, err := h.ledger.List(ctx.Request.Context())
	if err != nil {
		h.logger.Error("failed to list products", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		s := p.StockStatus()
		if status != "" && s != status {
			continue
		}
		views = append(views, productView{Product: p, StockStatus: s})
	}
	ctx.JSON(http.StatusOK, gin.H{"results": views})
}

func (h *productsHandler) handleSummary(ctx *gin.Context) {
	products, err := h.ledger.List(ctx.Request.Context())
	if err != nil {
		h.logger.Error("failed to list products", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(http.StatusOK, inventory.Summarize(products))
}

// handleAdjust handles POST /products/:id/adjust. Adjustments go through the
// ledger, so stock can never be taken below zero.
func (h *productsHandler) handleAdjust(ctx *gin.Context) {
	productID := ctx.Param("id")
	var req struct {
		Adjustment int    `json:"adjustment"`
		Reason     string `json:"reason"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.Adjustment == 0 || req.Reason == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "a non-zero adjustment and a reason are required"})
		return
	}

	var (
		quantity int
		err      error
	)
	if req.Adjustment > 0 {
		quantity, err = h.ledger.Release(ctx.Request.Context(), productID, req.Adjustment)
	} else {
		quantity, err = h.ledger.TryReserveAndCommit(ctx.Request.Context(), productID, -req.Adjustment)
	}
	if err != nil {
		var stockErr *inventory.InsufficientStockError
		switch {
		case errors.Is(err, inventory.ErrProductNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		case errors.As(err, &stockErr):
			ctx.JSON(http.StatusConflict, gin.H{"kind": "InsufficientStock", "product_id": productID, "available": stockErr.Available})
		default:
			h.logger.Error("failed to adjust stock", zap.String("product_id", productID), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	h.logger.Info("stock adjusted",
		zap.String("product_id", productID),
		zap.Int("adjustment", req.Adjustment),
		zap.Int("quantity", quantity),
		zap.String("reason", req.Reason),
	)
	ctx.JSON(http.StatusOK, gin.H{"product_id": productID, "quantity": quantity, "reason": req.Reason})
}
