package payments

import (
	"context"
	"testing"
	"time"

	"api_pos/internal/sales"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewSweeper_RejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(nil, "every now and then", time.Minute, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestSweeper_SweepExpiresStalePayments(t *testing.T) {
	f := newRecFixture(t)
	sale, p := f.seed(t, 1)
	f.clock.Advance(10 * time.Minute)

	s, err := NewSweeper(f.rec, "@every 1h", 3*time.Minute, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.sweep()

	assert.Equal(t, StatusExpired, f.payment(t, p.ReconciliationKey).Status)
	got, err := f.sales.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.StatusFailed, got.PaymentStatus)
}

func TestSweeper_SurvivesPanics(t *testing.T) {
	s, err := NewSweeper(nil, "*/5 * * * *", time.Minute, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotPanics(t, s.sweep)
}

func TestSweeper_StartStop(t *testing.T) {
	f := newRecFixture(t)
	s, err := NewSweeper(f.rec, "@every 1h", time.Minute, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
