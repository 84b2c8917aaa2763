package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"api_pos/internal/inventory"
	"api_pos/internal/sales"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const payer = "0712345678"

type stack struct {
	ledger  *inventory.LocalLedger
	sales   *sales.Service
	store   *LocalStorage
	gateway *fakeGateway
	clock   *fakeClock
	svc     *Service
	rec     *Reconciler
}

func newStack(t *testing.T, salesOpts ...sales.Option) *stack {
	t.Helper()
	st := &stack{
		ledger:  inventory.NewLocalLedger(inventory.Product{ID: "A", Name: "Bread", Price: decimal.NewFromInt(100), Quantity: 10}),
		store:   NewLocalStorage(),
		gateway: newFakeGateway(t),
		clock:   newFakeClock(),
	}
	logger := zaptest.NewLogger(t)
	st.sales = sales.NewService(sales.NewLocalStorage(st.ledger), logger, salesOpts...)
	client := newTestClient(t, st.gateway, st.clock)
	st.svc = NewService(st.store, client, st.sales, logger, WithClock(st.clock.Now))
	st.rec = NewReconciler(st.store, st.sales, logger, WithClock(st.clock.Now))
	return st
}

func (st *stack) commit(t *testing.T, method sales.PaymentMethod, qty int) *sales.Sale {
	t.Helper()
	out, err := st.sales.CommitSale(context.Background(), sales.CommitRequest{
		Items:         []sales.LineInput{{ProductID: "A", Quantity: qty, UnitPrice: decimal.NewFromInt(100)}},
		PaymentMethod: method,
		AmountPaid:    decimal.NewFromInt(int64(100 * qty)),
	})
	require.NoError(t, err)
	return out.Sale
}

func (st *stack) records(t *testing.T, saleID string) []*PendingPayment {
	t.Helper()
	list, err := st.store.ListBySale(context.Background(), saleID)
	require.NoError(t, err)
	return list
}

func TestInitiatePayment_Success(t *testing.T) {
	st := newStack(t)
	sale := st.commit(t, sales.MethodGateway, 3)

	p, err := st.svc.InitiatePayment(context.Background(), decimal.Zero, payer, sale.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusInitiated, p.Status)
	assert.Equal(t, sale.ID, p.SaleID)
	assert.True(t, strings.HasPrefix(p.ReconciliationKey, sale.ID+"."))
	assert.True(t, decimal.NewFromInt(300).Equal(p.Amount))
	assert.Equal(t, "254712345678", p.PayerAccount)
	assert.Equal(t, "ws_CO_1", p.GatewayRequestID)
	assert.Equal(t, "m-1", p.MerchantRequestID)

	stored, err := st.store.ByGatewayRequestID(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, p.ReconciliationKey, stored.ReconciliationKey)
	assert.Equal(t, p.ReconciliationKey, st.gateway.pushQueries[0].Get("ref"))
}

func TestInitiatePayment_KeysAreUniquePerAttempt(t *testing.T) {
	st := newStack(t)
	sale := st.commit(t, sales.MethodGateway, 1)
	ctx := context.Background()

	first, err := st.svc.InitiatePayment(ctx, decimal.Zero, payer, sale.ID)
	require.NoError(t, err)
	_, err = st.rec.ApplyCallback(ctx, Event{ReconciliationKey: first.ReconciliationKey, ResultCode: 1032, ResultDesc: "Request cancelled by user"})
	require.NoError(t, err)

	// the sale failed, so a second attempt is refused
	_, err = st.svc.InitiatePayment(ctx, decimal.Zero, payer, sale.ID)
	assert.ErrorIs(t, err, ErrNotPayable)

	other := st.commit(t, sales.MethodGateway, 1)
	second, err := st.svc.InitiatePayment(ctx, decimal.Zero, payer, other.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ReconciliationKey, second.ReconciliationKey)
}

func TestInitiatePayment_AuthFailedKeepsNothing(t *testing.T) {
	st := newStack(t)
	st.gateway.set(func(f *fakeGateway) { f.tokenStatus = http.StatusUnauthorized })
	sale := st.commit(t, sales.MethodGateway, 1)

	_, err := st.svc.InitiatePayment(context.Background(), decimal.Zero, payer, sale.ID)
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr), "got %v", err)
	assert.Equal(t, KindAuthFailed, gwErr.Kind)
	assert.Empty(t, st.records(t, sale.ID))
	_, pushes := st.gateway.counts()
	assert.Zero(t, pushes)
}

func TestInitiatePayment_SubmitRejectedKeepsNothing(t *testing.T) {
	st := newStack(t)
	st.gateway.set(func(f *fakeGateway) { f.pushStatus = http.StatusBadRequest })
	sale := st.commit(t, sales.MethodGateway, 1)

	_, err := st.svc.InitiatePayment(context.Background(), decimal.Zero, payer, sale.ID)
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr), "got %v", err)
	assert.Equal(t, KindSubmitFailed, gwErr.Kind)
	assert.Empty(t, st.records(t, sale.ID))

	// safe to retry once the gateway accepts again
	st.gateway.set(func(f *fakeGateway) { f.pushStatus = http.StatusOK })
	_, err = st.svc.InitiatePayment(context.Background(), decimal.Zero, payer, sale.ID)
	assert.NoError(t, err)
}

func TestInitiatePayment_AmbiguousSubmitKeepsInitiatedRecord(t *testing.T) {
	st := newStack(t)
	st.gateway.set(func(f *fakeGateway) { f.hangUp = true })
	sale := st.commit(t, sales.MethodGateway, 1)

	p, err := st.svc.InitiatePayment(context.Background(), decimal.Zero, payer, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInitiated, p.Status)
	assert.Empty(t, p.GatewayRequestID)

	records := st.records(t, sale.ID)
	require.Len(t, records, 1)
	assert.Equal(t, StatusInitiated, records[0].Status)

	// a later callback still finds it through the echoed key
	ack, err := st.rec.ApplyCallback(context.Background(), Event{
		ReconciliationKey: p.ReconciliationKey,
		GatewayRequestID:  "ws_CO_late",
		ResultCode:        0,
		Amount:            decimal.NewNullDecimal(decimal.NewFromInt(100)),
		ReceiptNumber:     "NLJ7RT61SV",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, ack.Outcome)
	got, err := st.sales.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.StatusPaid, got.PaymentStatus)
}

func TestInitiatePayment_OnePaymentInFlight(t *testing.T) {
	st := newStack(t)
	sale := st.commit(t, sales.MethodGateway, 1)

	_, err := st.svc.InitiatePayment(context.Background(), decimal.Zero, payer, sale.ID)
	require.NoError(t, err)
	_, err = st.svc.InitiatePayment(context.Background(), decimal.Zero, payer, sale.ID)
	assert.ErrorIs(t, err, ErrPaymentInFlight)
	assert.Len(t, st.records(t, sale.ID), 1)
}

func TestInitiatePayment_Rejections(t *testing.T) {
	st := newStack(t)
	cash := st.commit(t, sales.MethodCash, 1)
	gateway := st.commit(t, sales.MethodGateway, 2)
	ctx := context.Background()

	_, err := st.svc.InitiatePayment(ctx, decimal.Zero, payer, cash.ID)
	assert.ErrorIs(t, err, ErrNotPayable)

	_, err = st.svc.InitiatePayment(ctx, decimal.Zero, payer, "missing")
	assert.ErrorIs(t, err, sales.ErrNotFound)

	_, err = st.svc.InitiatePayment(ctx, decimal.Zero, "12", gateway.ID)
	assert.ErrorIs(t, err, ErrInvalidPayer)

	_, err = st.svc.InitiatePayment(ctx, decimal.NewFromInt(150), payer, gateway.ID)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = st.svc.InitiatePayment(ctx, decimal.NewFromInt(-1), payer, gateway.ID)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Empty(t, st.records(t, gateway.ID))
}

func TestSaleInitiator_StartsPaymentOnCheckout(t *testing.T) {
	st := newStack(t)
	st.sales.SetPaymentInitiator(st.svc.SaleInitiator())

	out, err := st.sales.CommitSale(context.Background(), sales.CommitRequest{
		Items:         []sales.LineInput{{ProductID: "A", Quantity: 3, UnitPrice: decimal.NewFromInt(100)}},
		PaymentMethod: sales.MethodGateway,
		PayerAccount:  payer,
	})
	require.NoError(t, err)
	require.NoError(t, out.PaymentErr)
	require.NotNil(t, out.Payment)

	records := st.records(t, out.Sale.ID)
	require.Len(t, records, 1)
	assert.Equal(t, records[0].ID, out.Payment.PendingPaymentID)
	assert.Equal(t, records[0].ReconciliationKey, out.Payment.ReconciliationKey)
}
