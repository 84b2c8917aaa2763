package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"api_pos/internal/metrics"
	"api_pos/internal/sales"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleReader is the part of the sales service that initiation needs.
type SaleReader interface {
	GetSale(ctx context.Context, id string) (*sales.Sale, error)
}

type options struct {
	metrics *metrics.Metrics
	region  string
	now     func() time.Time
}

// Option configures a Service or a Reconciler.
type Option func(*options)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRegion sets the default region for payer phone numbers.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{region: "KE", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Service starts gateway payments for committed sales.
type Service struct {
	storage Storage
	gateway Gateway
	sales   SaleReader
	logger  *zap.Logger
	options

	// sales with an initiation currently running in this process
	starting sync.Map
}

func NewService(storage Storage, gateway Gateway, sales SaleReader, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Service{
		storage: storage,
		gateway: gateway,
		sales:   sales,
		logger:  logger,
		options: buildOptions(opts),
	}
}

// InitiatePayment records an initiated PendingPayment and submits the push
// request. The record is written before the request leaves, so a callback can
// always find it. A zero amount means the sale total.
//
// When the gateway cannot be reached or its answer cannot be read, the
// initiated record is kept and returned without error; reconciliation or the
// expiry sweep settles it. A *GatewayError means nothing was kept.
func (s *Service) InitiatePayment(ctx context.Context, amount decimal.Decimal, payerAccount, saleID string) (*PendingPayment, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	phone, err := NormalizePayer(payerAccount, s.region)
	if err != nil {
		return nil, err
	}

	if _, busy := s.starting.LoadOrStore(saleID, struct{}{}); busy {
		return nil, ErrPaymentInFlight
	}
	defer s.starting.Delete(saleID)

	sale, err := s.sales.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.PaymentMethod != sales.MethodGateway || sale.PaymentStatus != sales.StatusPending {
		return nil, ErrNotPayable
	}
	if amount.IsZero() {
		amount = sale.Total
	}
	if !amount.IsPositive() || amount.LessThan(sale.Total) {
		return nil, ErrInvalidAmount
	}
	existing, err := s.storage.ListBySale(ctx, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for sale: %w", err)
	}
	for _, p := range existing {
		if p.Status == StatusInitiated {
			return nil, ErrPaymentInFlight
		}
	}

	token, err := s.gateway.Token(ctx)
	if err != nil {
		s.metrics.PaymentInitiated(string(KindAuthFailed))
		s.logger.Error("gateway authentication failed", zap.String("sale_id", saleID), zap.Error(err))
		return nil, &GatewayError{Kind: KindAuthFailed, Err: err}
	}

	p := &PendingPayment{
		ID:                uuid.NewString(),
		SaleID:            saleID,
		ReconciliationKey: saleID + "." + uuid.NewString(),
		Amount:            amount,
		PayerAccount:      phone,
		Status:            StatusInitiated,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.storage.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record pending payment: %w", err)
	}

	res, err := s.gateway.Push(ctx, token, PushRequest{
		Amount:            amount,
		Phone:             phone,
		SaleID:            saleID,
		ReconciliationKey: p.ReconciliationKey,
	})
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		if derr := s.storage.Delete(ctx, p.ReconciliationKey); derr != nil {
			s.logger.Error("failed to discard rejected payment", zap.String("key", p.ReconciliationKey), zap.Error(derr))
		}
		s.metrics.PaymentInitiated(string(KindSubmitFailed))
		s.logger.Warn("gateway rejected push request", zap.String("sale_id", saleID), zap.Error(err))
		return nil, &GatewayError{Kind: KindSubmitFailed, Err: err}
	case err != nil:
		s.metrics.PaymentInitiated("ambiguous")
		s.logger.Warn("push request outcome unknown, keeping initiated payment",
			zap.String("sale_id", saleID), zap.String("key", p.ReconciliationKey), zap.Error(err))
		return p, nil
	}

	updated, err := s.storage.Update(ctx, p.ReconciliationKey, func(rec *PendingPayment) error {
		rec.GatewayRequestID = res.CheckoutRequestID
		rec.MerchantRequestID = res.MerchantRequestID
		return nil
	})
	if err != nil {
		// the callback still matches on the key
		s.logger.Error("failed to store gateway request id", zap.String("key", p.ReconciliationKey), zap.Error(err))
		updated = p
	}
	s.metrics.PaymentInitiated("submitted")
	s.logger.Info("payment initiated",
		zap.String("sale_id", saleID),
		zap.String("key", p.ReconciliationKey),
		zap.String("checkout_request_id", res.CheckoutRequestID),
	)
	return updated, nil
}

// PendingForSale lists the payment attempts of a sale, oldest first.
func (s *Service) PendingForSale(ctx context.Context, saleID string) ([]*PendingPayment, error) {
	return s.storage.ListBySale(ctx, saleID)
}

// ReviewQueue lists the payments flagged for manual reconciliation.
func (s *Service) ReviewQueue(ctx context.Context) ([]*PendingPayment, error) {
	return s.storage.ListReview(ctx)
}

// SaleInitiator adapts the service to the sales checkout.
func (s *Service) SaleInitiator() sales.PaymentInitiator {
	return saleInitiator{s}
}

type saleInitiator struct {
	svc *Service
}

func (i saleInitiator) InitiatePayment(ctx context.Context, amount decimal.Decimal, payerAccount, saleID string) (*sales.PaymentHandle, error) {
	p, err := i.svc.InitiatePayment(ctx, amount, payerAccount, saleID)
	if err != nil {
		return nil, err
	}
	return &sales.PaymentHandle{PendingPaymentID: p.ID, ReconciliationKey: p.ReconciliationKey}, nil
}
