package api

import (
	"errors"
	"net/http"

	"api_pos/internal/payments"
	"api_pos/internal/sales"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type paymentsHandler struct {
	payments   *payments.Service
	reconciler *payments.Reconciler
	logger     *zap.Logger
}

func NewPaymentsHandler(svc *payments.Service, rec *payments.Reconciler, logger *zap.Logger) *paymentsHandler {
	return &paymentsHandler{payments: svc, reconciler: rec, logger: logger}
}

// handleInitiate handles POST /payments.
func (h *paymentsHandler) handleInitiate(ctx *gin.Context) {
	var req struct {
		Amount       decimal.Decimal `json:"amount"`
		PayerAccount string          `json:"payer_account"`
		Phone        string          `json:"phone"`
		SaleID       string          `json:"sale_id"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.SaleID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"kind": "ValidationError", "error": "sale_id and payer_account are required"})
		return
	}
	payer := req.PayerAccount
	if payer == "" {
		payer = req.Phone
	}

	p, err := h.payments.InitiatePayment(ctx.Request.Context(), req.Amount, payer, req.SaleID)
	if err != nil {
		var gwErr *payments.GatewayError
		switch {
		case errors.As(err, &gwErr):
			ctx.JSON(http.StatusBadGateway, gin.H{"kind": gwErr.Kind, "error": gwErr.Error()})
		case errors.Is(err, payments.ErrInvalidAmount), errors.Is(err, payments.ErrInvalidPayer):
			ctx.JSON(http.StatusBadRequest, gin.H{"kind": "ValidationError", "error": err.Error()})
		case errors.Is(err, sales.ErrNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "sale not found"})
		case errors.Is(err, payments.ErrNotPayable), errors.Is(err, payments.ErrPaymentInFlight):
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("failed to initiate payment", zap.String("sale_id", req.SaleID), zap.Error(err))
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"pending_payment_id": p.ID,
		"reconciliation_key": p.ReconciliationKey,
	})
}

// handleCallback handles POST /payments/callback. Everything except a storage
// failure is acknowledged so the gateway stops retrying.
func (h *paymentsHandler) handleCallback(ctx *gin.Context) {
	var env payments.Envelope
	if err := ctx.ShouldBindJSON(&env); err != nil {
		h.logger.Warn("discarding unreadable callback", zap.Error(err))
		accept(ctx)
		return
	}
	ev, err := env.Event(ctx.Query("ref"))
	if err != nil {
		h.logger.Warn("discarding malformed callback", zap.String("ref", ctx.Query("ref")), zap.Error(err))
		accept(ctx)
		return
	}

	if _, err := h.reconciler.ApplyCallback(ctx.Request.Context(), ev); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"ResultCode": 1, "ResultDesc": "Temporarily unavailable"})
		return
	}
	accept(ctx)
}

func accept(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (h *paymentsHandler) handleReviewQueue(ctx *gin.Context) {
	list, err := h.payments.ReviewQueue(ctx.Request.Context())
	if err != nil {
		h.logger.Error("failed to list review queue", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": list})
}

func (h *paymentsHandler) handleSalePayments(ctx *gin.Context) {
	list, err := h.payments.PendingForSale(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		h.logger.Error("failed to list sale payments", zap.String("sale_id", ctx.Param("id")), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": list})
}
