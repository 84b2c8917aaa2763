package api

import (
	"errors"
	"net/http"

	"api_pos/internal/sales"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// salesHandler holds the sales service and implements HTTP handlers for sales operations.
type salesHandler struct {
	salesService *sales.Service
	logger       *zap.Logger
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(salesService *sales.Service, logger *zap.Logger) *salesHandler {
	return &salesHandler{
		salesService: salesService,
		logger:       logger,
	}
}

type createSaleRequest struct {
	UserID        string            `json:"user_id"`
	Items         []sales.LineInput `json:"items"`
	Discount      decimal.Decimal   `json:"discount"`
	PaymentMethod string            `json:"payment_method"`
	AmountPaid    decimal.Decimal   `json:"amount_paid"`
	PayerAccount  string            `json:"payer_account"`
}

type checkoutResponse struct {
	SaleID        string               `json:"sale_id"`
	Total         decimal.Decimal      `json:"total"`
	AmountPaid    decimal.Decimal      `json:"amount_paid"`
	Change        decimal.Decimal      `json:"change"`
	LineReceipts  []sales.ReceiptLine  `json:"line_receipts"`
	PaymentStatus sales.PaymentStatus  `json:"payment_status"`
	Payment       *sales.PaymentHandle `json:"payment,omitempty"`
	PaymentError  string               `json:"payment_error,omitempty"`
}

// handleCreateSale handles the POST /sales endpoint.
func (h *salesHandler) handleCreateSale(ctx *gin.Context) {
	var req createSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("failed to bind JSON request", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"kind": sales.KindValidation, "error": "invalid request payload"})
		return
	}

	out, err := h.salesService.CommitSale(ctx.Request.Context(), sales.CommitRequest{
		UserID:        req.UserID,
		Items:         req.Items,
		Discount:      req.Discount,
		PaymentMethod: sales.PaymentMethod(req.PaymentMethod),
		AmountPaid:    req.AmountPaid,
		PayerAccount:  req.PayerAccount,
	})
	if err != nil {
		writeTransactionError(ctx, err)
		return
	}

	resp := checkoutResponse{
		SaleID:        out.Sale.ID,
		Total:         out.Sale.Total,
		AmountPaid:    out.Sale.AmountPaid,
		Change:        out.Change,
		LineReceipts:  sales.Project(out.Sale).Items,
		PaymentStatus: out.Sale.PaymentStatus,
		Payment:       out.Payment,
	}
	if out.PaymentErr != nil {
		resp.PaymentError = out.PaymentErr.Error()
	}
	ctx.JSON(http.StatusCreated, resp)
}

func writeTransactionError(ctx *gin.Context, err error) {
	var txErr *sales.TransactionError
	if !errors.As(err, &txErr) || txErr.Kind == sales.KindInternal {
		ctx.JSON(http.StatusInternalServerError, gin.H{"kind": sales.KindInternal, "error": "failed to commit sale"})
		return
	}
	status := http.StatusBadRequest
	if txErr.Kind == sales.KindInsufficientStock {
		status = http.StatusConflict
	}
	body := gin.H{"kind": txErr.Kind, "error": txErr.Message}
	if txErr.ProductID != "" {
		body["product_id"] = txErr.ProductID
	}
	ctx.JSON(status, body)
}

func (h *salesHandler) handlerGetSales(ctx *gin.Context) {
	userID := ctx.Query("user_id")
	status := ctx.Query("status")

	salesResults, metadata, err := h.salesService.SearchSale(ctx.Request.Context(), userID, status)
	if err != nil {
		h.logger.Error("Error searching sales",
			zap.String("userID_filter", userID),
			zap.String("status_filter", status),
			zap.Error(err),
		)
		if errors.Is(err, sales.ErrInvalidStatus) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search sales"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"results": salesResults, "metadata": metadata})
}

func (h *salesHandler) handleGetSale(ctx *gin.Context) {
	sale, err := h.salesService.GetSale(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.writeLookupError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

func (h *salesHandler) handleReceipt(ctx *gin.Context) {
	receipt, err := h.salesService.Receipt(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.writeLookupError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, receipt)
}

func (h *salesHandler) writeLookupError(ctx *gin.Context, err error) {
	if errors.Is(err, sales.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "sale not found"})
		return
	}
	h.logger.Error("failed to read sale", zap.String("sale_id", ctx.Param("id")), zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// handleResolvePayment lets an operator settle a sale whose payment is still pending.
func (h *salesHandler) handleResolvePayment(ctx *gin.Context) {
	saleID := ctx.Param("id")
	var req struct {
		Status     string `json:"status"`
		PaymentRef string `json:"payment_ref"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updated, err := h.salesService.ResolvePayment(ctx.Request.Context(), saleID, req.Status, req.PaymentRef)
	if err != nil {
		switch {
		case errors.Is(err, sales.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "sale not found"})
		case errors.Is(err, sales.ErrInvalidStatus):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid status value"})
		case errors.Is(err, sales.ErrInvalidTransition):
			ctx.JSON(http.StatusConflict, gin.H{"error": "invalid status transition"})
		default:
			h.logger.Error("failed to resolve payment", zap.String("sale_id", saleID), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	ctx.JSON(http.StatusOK, updated)
}
