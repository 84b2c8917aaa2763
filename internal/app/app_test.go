package app

import (
	"context"
	"testing"
	"time"

	"api_pos/internal/config"
	"api_pos/internal/sales"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func memoryConfig() config.Config {
	return config.Config{
		Env:            "test",
		Gateway:        config.Gateway{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		PaymentTimeout: 3 * time.Minute,
		SweepSchedule:  "@every 1h",
		PhoneRegion:    "KE",
	}
}

func TestNew_InMemory(t *testing.T) {
	a, err := New(memoryConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	deps := a.Dependencies()
	assert.NotNil(t, deps.Sales)
	assert.NotNil(t, deps.Payments)
	assert.NotNil(t, deps.Reconciler)
	assert.NotNil(t, deps.Gatherer)

	products, err := deps.Ledger.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, len(DemoCatalog()))

	a.Start()
	assert.NoError(t, a.Close())
}

func TestNew_BadSweepSchedule(t *testing.T) {
	cfg := memoryConfig()
	cfg.SweepSchedule = "whenever"
	_, err := New(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNew_RestockOnPaymentFailure(t *testing.T) {
	cfg := memoryConfig()
	cfg.RestockOnPaymentFailure = true
	a, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	out, err := a.sales.CommitSale(ctx, sales.CommitRequest{
		Items:         []sales.LineInput{{ProductID: "SKU-1004", Quantity: 2, UnitPrice: decimal.NewFromInt(340)}},
		PaymentMethod: sales.MethodGateway,
	})
	require.NoError(t, err)

	p, err := a.ledger.Get(ctx, "SKU-1004")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Quantity)

	_, err = a.sales.MarkFailed(ctx, out.Sale.ID, "declined")
	require.NoError(t, err)

	p, err = a.ledger.Get(ctx, "SKU-1004")
	require.NoError(t, err)
	assert.Equal(t, 12, p.Quantity)
}
