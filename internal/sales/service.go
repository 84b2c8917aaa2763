package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"api_pos/internal/inventory"
	"api_pos/internal/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentHandle identifies the pending gateway payment started for a sale.
type PaymentHandle struct {
	PendingPaymentID  string `json:"pending_payment_id"`
	ReconciliationKey string `json:"reconciliation_key"`
}

// PaymentInitiator starts a gateway payment for a committed sale.
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, amount decimal.Decimal, payerAccount, saleID string) (*PaymentHandle, error)
}

// PaymentFailureHook runs once when a sale moves to failed.
type PaymentFailureHook func(ctx context.Context, sale *Sale) error

// Service coordinates sale commits and the payment status of committed sales.
type Service struct {
	storage   Storage
	logger    *zap.Logger
	initiator PaymentInitiator
	onFailure PaymentFailureHook
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithPaymentInitiator(p PaymentInitiator) Option {
	return func(s *Service) { s.initiator = p }
}

func WithPaymentFailureHook(h PaymentFailureHook) Option {
	return func(s *Service) { s.onFailure = h }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// SalesMetadata summarises a sales search.
type SalesMetadata struct {
	Quantity    int             `json:"quantity"`
	Paid        int             `json:"paid"`
	Failed      int             `json:"failed"`
	Pending     int             `json:"pending"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// NewService creates a new Service.
func NewService(storage Storage, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	s := &Service{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPaymentInitiator wires the gateway after construction; the payment
// service itself depends on this Service.
func (s *Service) SetPaymentInitiator(p PaymentInitiator) {
	s.initiator = p
}

// LineInput is one requested line of a checkout.
type LineInput struct {
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
}

// CommitRequest is a checkout submitted by a terminal.
type CommitRequest struct {
	UserID        string
	Items         []LineInput
	Discount      decimal.Decimal
	PaymentMethod PaymentMethod
	AmountPaid    decimal.Decimal
	PayerAccount  string
}

// Checkout is the result of a committed sale.
type Checkout struct {
	Sale    *Sale
	Change  decimal.Decimal
	Payment *PaymentHandle
	// PaymentErr is set when the sale committed but the gateway payment could
	// not be started; the caller may retry initiation.
	PaymentErr error
}

type pricedLine struct {
	LineInput
	subtotal decimal.Decimal
}

func (s *Service) validate(req CommitRequest) ([]pricedLine, decimal.Decimal, error) {
	if len(req.Items) == 0 {
		return nil, decimal.Zero, validationError("at least one item is required")
	}
	if _, ok := ParsePaymentMethod(string(req.PaymentMethod)); !ok {
		return nil, decimal.Zero, validationError("payment method must be one of cash, card, gateway")
	}
	if req.Discount.IsNegative() {
		return nil, decimal.Zero, validationError("discount must not be negative")
	}
	if req.AmountPaid.IsNegative() {
		return nil, decimal.Zero, validationError("amount paid must not be negative")
	}

	lines := make([]pricedLine, 0, len(req.Items))
	subtotal := decimal.Zero
	for i, it := range req.Items {
		if it.ProductID == "" {
			return nil, decimal.Zero, validationError(fmt.Sprintf("item %d: product id is required", i))
		}
		if it.Quantity < 1 {
			return nil, decimal.Zero, &TransactionError{Kind: KindValidation, ProductID: it.ProductID, Message: "quantity must be at least 1"}
		}
		if it.UnitPrice.IsNegative() {
			return nil, decimal.Zero, &TransactionError{Kind: KindValidation, ProductID: it.ProductID, Message: "unit price must not be negative"}
		}
		gross := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		if it.LineDiscount.IsNegative() || it.LineDiscount.GreaterThan(gross) {
			return nil, decimal.Zero, &TransactionError{Kind: KindValidation, ProductID: it.ProductID, Message: "line discount must be between 0 and the line amount"}
		}
		line := pricedLine{LineInput: it, subtotal: LineSubtotal(it.Quantity, it.UnitPrice, it.LineDiscount)}
		subtotal = subtotal.Add(line.subtotal)
		lines = append(lines, line)
	}
	if req.Discount.GreaterThan(subtotal) {
		return nil, decimal.Zero, validationError("discount must not exceed the subtotal")
	}
	return lines, subtotal, nil
}

// CommitSale validates the checkout, then decrements stock for every line and
// records the sale with its items as one unit of work. On any error nothing is
// changed. Gateway payments are started only after the unit has committed.
func (s *Service) CommitSale(ctx context.Context, req CommitRequest) (*Checkout, error) {
	started := s.now()
	method, _ := ParsePaymentMethod(string(req.PaymentMethod))
	req.PaymentMethod = method

	lines, subtotal, err := s.validate(req)
	if err != nil {
		return nil, s.reject(err, req)
	}
	total := subtotal.Sub(req.Discount)
	if method.SettlesImmediately() && req.AmountPaid.LessThan(total) {
		return nil, s.reject(&TransactionError{
			Kind:    KindInsufficientPayment,
			Message: fmt.Sprintf("amount paid %s is less than total %s", req.AmountPaid.String(), total.String()),
		}, req)
	}

	now := started.UTC()
	sale := &Sale{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Subtotal:      subtotal,
		Discount:      req.Discount,
		Total:         total,
		AmountPaid:    req.AmountPaid,
		PaymentMethod: method,
		PaymentStatus: StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	if method.SettlesImmediately() {
		sale.PaymentStatus = StatusPaid
	}

	productIDs := make([]string, 0, len(lines))
	for _, l := range lines {
		productIDs = append(productIDs, l.ProductID)
	}

	err = s.storage.Atomically(ctx, productIDs, func(tx Tx) error {
		sale.Items = sale.Items[:0]
		for _, l := range lines {
			p, err := tx.Reserve(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			sale.Items = append(sale.Items, SaleItem{
				ID:          uuid.NewString(),
				SaleID:      sale.ID,
				ProductID:   l.ProductID,
				ProductName: p.Name,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
				Discount:    l.LineDiscount,
				Subtotal:    l.subtotal,
			})
		}
		return tx.Insert(ctx, sale)
	})
	if err != nil {
		return nil, s.reject(classify(err), req)
	}

	s.metrics.SaleCommitted(string(method), started)
	s.logger.Info("sale committed",
		zap.String("sale_id", sale.ID),
		zap.String("method", string(method)),
		zap.String("total", total.String()),
		zap.Int("lines", len(sale.Items)),
	)

	out := &Checkout{Sale: sale, Change: decimal.Zero}
	if method.SettlesImmediately() {
		out.Change = req.AmountPaid.Sub(total)
		return out, nil
	}

	if req.PayerAccount != "" && s.initiator != nil {
		handle, err := s.initiator.InitiatePayment(ctx, total, req.PayerAccount, sale.ID)
		if err != nil {
			s.logger.Warn("sale committed but payment initiation failed",
				zap.String("sale_id", sale.ID), zap.Error(err))
			out.PaymentErr = err
			return out, nil
		}
		out.Payment = handle
	}
	return out, nil
}

func classify(err error) error {
	var stockErr *inventory.InsufficientStockError
	if errors.As(err, &stockErr) {
		return &TransactionError{Kind: KindInsufficientStock, ProductID: stockErr.ProductID, Message: "insufficient stock", Err: err}
	}
	var notFound *inventory.ProductNotFoundError
	if errors.As(err, &notFound) {
		return &TransactionError{Kind: KindProductNotFound, ProductID: notFound.ProductID, Message: "product not found", Err: err}
	}
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return err
	}
	return &TransactionError{Kind: KindInternal, Message: "failed to commit sale", Err: err}
}

func (s *Service) reject(err error, req CommitRequest) error {
	kind := KindOf(err)
	s.metrics.SaleRejected(string(kind))
	if kind == KindInternal {
		s.logger.Error("failed to commit sale", zap.String("user_id", req.UserID), zap.Error(err))
	} else {
		s.logger.Info("sale rejected", zap.String("user_id", req.UserID), zap.String("kind", string(kind)), zap.Error(err))
	}
	return err
}

// GetSale returns a committed sale.
func (s *Service) GetSale(ctx context.Context, id string) (*Sale, error) {
	return s.storage.Read(ctx, id)
}

// Receipt projects a committed sale into its receipt.
func (s *Service) Receipt(ctx context.Context, id string) (Receipt, error) {
	sale, err := s.storage.Read(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	return Project(sale), nil
}

// SearchSale lists sales filtered by user and payment status, with counts.
func (s *Service) SearchSale(ctx context.Context, userID, status string) ([]*Sale, SalesMetadata, error) {
	if status != "" {
		switch PaymentStatus(status) {
		case StatusPending, StatusPaid, StatusFailed:
		default:
			s.logger.Warn("invalid status filter provided", zap.String("status_filter", status))
			return nil, SalesMetadata{}, fmt.Errorf("%w: '%s'", ErrInvalidStatus, status)
		}
	}

	allSales, err := s.storage.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to get all sales from storage", zap.Error(err))
		return nil, SalesMetadata{}, fmt.Errorf("failed to retrieve sales: %w", err)
	}

	filtered := make([]*Sale, 0)
	metadata := SalesMetadata{TotalAmount: decimal.Zero}
	for _, sale := range allSales {
		if userID != "" && sale.UserID != userID {
			continue
		}
		if status != "" && string(sale.PaymentStatus) != status {
			continue
		}
		filtered = append(filtered, sale)

		metadata.Quantity++
		metadata.TotalAmount = metadata.TotalAmount.Add(sale.Total)
		switch sale.PaymentStatus {
		case StatusPaid:
			metadata.Paid++
		case StatusFailed:
			metadata.Failed++
		case StatusPending:
			metadata.Pending++
		}
	}

	s.logger.Debug("sales search completed",
		zap.String("user_id_filter", userID),
		zap.String("status_filter", status),
		zap.Int("results_count", len(filtered)),
	)
	return filtered, metadata, nil
}

// MarkPaid settles a pending sale. A sale already paid is returned unchanged.
func (s *Service) MarkPaid(ctx context.Context, saleID, paymentRef string) (*Sale, error) {
	changed := false
	sale, err := s.storage.UpdatePayment(ctx, saleID, func(sale *Sale) error {
		switch sale.PaymentStatus {
		case StatusPaid:
			return nil
		case StatusFailed:
			return ErrInvalidTransition
		}
		s.setStatus(sale, StatusPaid, paymentRef)
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("sale paid", zap.String("sale_id", saleID), zap.String("payment_ref", paymentRef))
	}
	return sale, nil
}

// MarkFailed fails a pending sale and runs the failure hook once. A sale
// already failed is returned unchanged.
func (s *Service) MarkFailed(ctx context.Context, saleID, reason string) (*Sale, error) {
	changed := false
	sale, err := s.storage.UpdatePayment(ctx, saleID, func(sale *Sale) error {
		switch sale.PaymentStatus {
		case StatusFailed:
			return nil
		case StatusPaid:
			return ErrInvalidTransition
		}
		s.setStatus(sale, StatusFailed, "")
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return sale, nil
	}
	s.logger.Info("sale payment failed", zap.String("sale_id", saleID), zap.String("reason", reason))
	if s.onFailure != nil {
		if err := s.onFailure(ctx, sale); err != nil {
			s.logger.Error("payment failure hook failed", zap.String("sale_id", saleID), zap.Error(err))
		}
	}
	return sale, nil
}

// ResolvePayment is the operator's manual settlement of a still-pending sale.
func (s *Service) ResolvePayment(ctx context.Context, saleID, newStatus, paymentRef string) (*Sale, error) {
	sale, err := s.storage.Read(ctx, saleID)
	if err != nil {
		return nil, err
	}
	status := PaymentStatus(newStatus)
	if status != StatusPaid && status != StatusFailed {
		return nil, ErrInvalidStatus
	}
	if sale.PaymentStatus != StatusPending {
		return nil, ErrInvalidTransition
	}
	if status == StatusPaid {
		return s.MarkPaid(ctx, saleID, paymentRef)
	}
	return s.MarkFailed(ctx, saleID, "resolved by operator")
}

func (s *Service) setStatus(sale *Sale, status PaymentStatus, paymentRef string) {
	sale.PaymentStatus = status
	if paymentRef != "" {
		ref := paymentRef
		sale.PaymentRef = &ref
	}
	sale.UpdatedAt = s.now().UTC()
	sale.Version++
}
