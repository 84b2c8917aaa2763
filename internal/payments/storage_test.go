package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayment(key, saleID string, created time.Time) *PendingPayment {
	return &PendingPayment{
		ID:                "id-" + key,
		SaleID:            saleID,
		ReconciliationKey: key,
		Amount:            decimal.NewFromInt(100),
		Status:            StatusInitiated,
		CreatedAt:         created,
	}
}

func TestLocalStorage_CreateAndLookup(t *testing.T) {
	s := NewLocalStorage()
	ctx := context.Background()
	now := time.Now()

	p := newPayment("s1.a", "s1", now)
	p.GatewayRequestID = "ws_1"
	require.NoError(t, s.Create(ctx, p))
	assert.ErrorIs(t, s.Create(ctx, newPayment("s1.a", "s1", now)), ErrDuplicateKey)

	got, err := s.ByKey(ctx, "s1.a")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SaleID)

	// returned records are copies
	got.Status = StatusConfirmed
	again, _ := s.ByKey(ctx, "s1.a")
	assert.Equal(t, StatusInitiated, again.Status)

	byGateway, err := s.ByGatewayRequestID(ctx, "ws_1")
	require.NoError(t, err)
	assert.Equal(t, "s1.a", byGateway.ReconciliationKey)

	_, err = s.ByGatewayRequestID(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ByKey(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_UpdateKeepsRecordOnError(t *testing.T) {
	s := NewLocalStorage()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newPayment("k", "s", time.Now())))

	_, err := s.Update(ctx, "k", func(p *PendingPayment) error {
		p.Status = StatusConfirmed
		return errors.New("boom")
	})
	assert.Error(t, err)
	got, _ := s.ByKey(ctx, "k")
	assert.Equal(t, StatusInitiated, got.Status)

	updated, err := s.Update(ctx, "k", func(p *PendingPayment) error {
		p.Status = StatusRejected
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, updated.Status)

	_, err = s.Update(ctx, "missing", func(*PendingPayment) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_Lists(t *testing.T) {
	s := NewLocalStorage()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Create(ctx, newPayment("a.1", "a", t0)))
	require.NoError(t, s.Create(ctx, newPayment("a.2", "a", t0.Add(time.Minute))))
	require.NoError(t, s.Create(ctx, newPayment("b.1", "b", t0.Add(2*time.Minute))))
	_, err := s.Update(ctx, "a.1", func(p *PendingPayment) error {
		p.Status = StatusConfirmed
		p.flag("short")
		return nil
	})
	require.NoError(t, err)

	bySale, err := s.ListBySale(ctx, "a")
	require.NoError(t, err)
	require.Len(t, bySale, 2)
	assert.Equal(t, "a.1", bySale[0].ReconciliationKey)

	stale, err := s.ListInitiatedBefore(ctx, t0.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "a.2", stale[0].ReconciliationKey)

	review, err := s.ListReview(ctx)
	require.NoError(t, err)
	require.Len(t, review, 1)
	assert.Equal(t, "short", review[0].ReviewReason)

	require.NoError(t, s.Delete(ctx, "b.1"))
	assert.ErrorIs(t, s.Delete(ctx, "b.1"), ErrNotFound)
}
