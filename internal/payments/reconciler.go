package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"api_pos/internal/sales"

	"go.uber.org/zap"
)

// SaleSettler moves a sale to its final payment status. Both moves are
// idempotent.
type SaleSettler interface {
	GetSale(ctx context.Context, id string) (*sales.Sale, error)
	MarkPaid(ctx context.Context, saleID, paymentRef string) (*sales.Sale, error)
	MarkFailed(ctx context.Context, saleID, reason string) (*sales.Sale, error)
}

// Outcome of one callback.
type Outcome string

const (
	OutcomeConfirmed          Outcome = "confirmed"
	OutcomeRejected           Outcome = "rejected"
	OutcomeSettlementMismatch Outcome = "settlement_mismatch"
	OutcomeConflict           Outcome = "conflict"
	OutcomeLateConfirmation   Outcome = "late_confirmation"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeUnknown            Outcome = "unknown"
)

// Ack is what reconciliation tells the gateway handler.
type Ack struct {
	Outcome   Outcome
	PaymentID string
	SaleID    string
}

var errNoChange = errors.New("no change")

// Reconciler applies gateway callbacks and expiry to pending payments.
type Reconciler struct {
	storage Storage
	sales   SaleSettler
	logger  *zap.Logger
	options
}

func NewReconciler(storage Storage, settler SaleSettler, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Reconciler{
		storage: storage,
		sales:   settler,
		logger:  logger,
		options: buildOptions(opts),
	}
}

// ApplyCallback matches the event to its pending payment and applies the
// transition at most once. Unknown and repeated callbacks are acknowledged
// without changes. The error is non-nil only when state could not be read
// or written, in which case the gateway should deliver again.
func (r *Reconciler) ApplyCallback(ctx context.Context, ev Event) (Ack, error) {
	p, err := r.find(ctx, ev)
	if errors.Is(err, ErrNotFound) {
		r.metrics.Callback(string(OutcomeUnknown))
		r.logger.Warn("discarding callback for unknown payment",
			zap.String("key", ev.ReconciliationKey),
			zap.String("checkout_request_id", ev.GatewayRequestID),
			zap.Int("result_code", ev.ResultCode),
		)
		return Ack{Outcome: OutcomeUnknown}, nil
	}
	if err != nil {
		return Ack{}, err
	}

	var outcome Outcome
	_, err = r.storage.Update(ctx, p.ReconciliationKey, func(rec *PendingPayment) error {
		var err error
		outcome, err = r.transition(ctx, rec, ev)
		return err
	})
	if errors.Is(err, errNoChange) {
		err = nil
	}
	if err != nil {
		r.logger.Error("failed to apply callback", zap.String("key", p.ReconciliationKey), zap.Error(err))
		return Ack{}, err
	}

	r.metrics.Callback(string(outcome))
	fields := []zap.Field{
		zap.String("key", p.ReconciliationKey),
		zap.String("sale_id", p.SaleID),
		zap.String("outcome", string(outcome)),
		zap.String("receipt", ev.ReceiptNumber),
	}
	switch outcome {
	case OutcomeConfirmed, OutcomeRejected, OutcomeDuplicate:
		r.logger.Info("callback applied", fields...)
	default:
		r.logger.Warn("payment needs manual review", fields...)
	}
	return Ack{Outcome: outcome, PaymentID: p.ID, SaleID: p.SaleID}, nil
}

func (r *Reconciler) find(ctx context.Context, ev Event) (*PendingPayment, error) {
	if ev.ReconciliationKey != "" {
		p, err := r.storage.ByKey(ctx, ev.ReconciliationKey)
		if !errors.Is(err, ErrNotFound) {
			return p, err
		}
	}
	return r.storage.ByGatewayRequestID(ctx, ev.GatewayRequestID)
}

// transition runs under the record lock. Sale side effects happen before the
// record is written, so a failure leaves the record initiated for a retry.
func (r *Reconciler) transition(ctx context.Context, p *PendingPayment, ev Event) (Outcome, error) {
	if p.Status.IsTerminal() {
		if p.Status == StatusExpired && ev.Succeeded() && !p.ReviewRequired {
			r.record(p, ev)
			p.flag("payment confirmed after the attempt expired")
			return OutcomeLateConfirmation, nil
		}
		return OutcomeDuplicate, errNoChange
	}

	r.record(p, ev)
	now := r.now().UTC()
	p.ResolvedAt = &now

	if !ev.Succeeded() {
		p.Status = StatusRejected
		return r.fail(ctx, p, ev.ResultDesc, OutcomeRejected)
	}

	p.Status = StatusConfirmed
	sale, err := r.sales.GetSale(ctx, p.SaleID)
	if errors.Is(err, sales.ErrNotFound) {
		p.flag("sale no longer exists")
		return OutcomeConflict, nil
	}
	if err != nil {
		return "", err
	}
	if !ev.Amount.Valid {
		p.flag("confirmation carried no settled amount")
		return OutcomeSettlementMismatch, nil
	}
	if ev.Amount.Decimal.LessThan(sale.Total) {
		p.flag(fmt.Sprintf("settled %s is below sale total %s", ev.Amount.Decimal.String(), sale.Total.String()))
		return OutcomeSettlementMismatch, nil
	}
	if _, err := r.sales.MarkPaid(ctx, p.SaleID, ev.ReceiptNumber); err != nil {
		if errors.Is(err, sales.ErrInvalidTransition) {
			p.flag("payment confirmed for a sale that already failed")
			return OutcomeConflict, nil
		}
		return "", err
	}
	return OutcomeConfirmed, nil
}

func (r *Reconciler) fail(ctx context.Context, p *PendingPayment, reason string, outcome Outcome) (Outcome, error) {
	if _, err := r.sales.MarkFailed(ctx, p.SaleID, reason); err != nil {
		if errors.Is(err, sales.ErrInvalidTransition) || errors.Is(err, sales.ErrNotFound) {
			p.flag("sale could not be failed: " + err.Error())
			return OutcomeConflict, nil
		}
		return "", err
	}
	return outcome, nil
}

func (r *Reconciler) record(p *PendingPayment, ev Event) {
	code := ev.ResultCode
	p.ResultCode = &code
	p.ResultDesc = ev.ResultDesc
	if ev.ReceiptNumber != "" {
		p.ReceiptNumber = ev.ReceiptNumber
	}
	if ev.Amount.Valid {
		p.SettledAmount = ev.Amount
	}
	if p.GatewayRequestID == "" {
		p.GatewayRequestID = ev.GatewayRequestID
	}
}

// ExpireStale moves initiated payments older than timeout to expired and
// fails their sales. It returns how many were expired.
func (r *Reconciler) ExpireStale(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := r.now().UTC().Add(-timeout)
	stale, err := r.storage.ListInitiatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale payments: %w", err)
	}

	expired := 0
	var errs []error
	for _, p := range stale {
		_, err := r.storage.Update(ctx, p.ReconciliationKey, func(rec *PendingPayment) error {
			// a callback may have landed since the listing
			if rec.Status != StatusInitiated {
				return errNoChange
			}
			now := r.now().UTC()
			rec.Status = StatusExpired
			rec.ResolvedAt = &now
			_, err := r.fail(ctx, rec, "payment expired", OutcomeRejected)
			return err
		})
		switch {
		case errors.Is(err, errNoChange):
		case err != nil:
			errs = append(errs, err)
		default:
			expired++
			r.logger.Info("payment expired", zap.String("key", p.ReconciliationKey), zap.String("sale_id", p.SaleID))
		}
	}
	r.metrics.Expired(expired)
	return expired, errors.Join(errs...)
}
