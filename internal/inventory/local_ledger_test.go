package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() *LocalLedger {
	return NewLocalLedger(
		Product{ID: "A", Name: "Bread", Price: decimal.NewFromInt(100), Quantity: 5, MinStockLevel: 2},
		Product{ID: "B", Name: "Milk", Price: decimal.NewFromInt(50), Quantity: 1, MinStockLevel: 3},
	)
}

func TestLocalLedger_TryReserveAndCommit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	n, err := l.TryReserveAndCommit(ctx, "A", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	p, err := l.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Quantity)
}

func TestLocalLedger_InsufficientStockLeavesProductUntouched(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.TryReserveAndCommit(ctx, "B", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "B", stockErr.ProductID)
	assert.Equal(t, 2, stockErr.Requested)
	assert.Equal(t, 1, stockErr.Available)

	p, _ := l.Get(ctx, "B")
	assert.Equal(t, 1, p.Quantity)
}

func TestLocalLedger_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.TryReserveAndCommit(ctx, "A", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = l.Release(ctx, "A", -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = l.TryReserveAndCommit(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestLocalLedger_Release(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	n, err := l.Release(ctx, "B", 4)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestLocalLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLedger(Product{ID: "hot", Name: "Hot item", Quantity: 50})

	var wg sync.WaitGroup
	var sold, refused int64
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.TryReserveAndCommit(ctx, "hot", 1); err != nil {
				atomic.AddInt64(&refused, 1)
				return
			}
			atomic.AddInt64(&sold, 1)
		}()
	}
	wg.Wait()

	p, _ := l.Get(ctx, "hot")
	assert.Equal(t, int64(50), sold)
	assert.Equal(t, int64(150), refused)
	assert.Equal(t, 0, p.Quantity)
}

func TestLocalTx_RollbackRestoresInReverse(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	tx, err := l.Begin(ctx, []string{"B", "A", "A"})
	require.NoError(t, err)

	n, err := tx.TryReserveAndCommit(ctx, "A", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = tx.TryReserveAndCommit(ctx, "B", 5)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	tx.Rollback()
	tx.Rollback()

	a, _ := l.Get(ctx, "A")
	b, _ := l.Get(ctx, "B")
	assert.Equal(t, 5, a.Quantity)
	assert.Equal(t, 1, b.Quantity)
}

func TestLocalTx_RejectsProductsOutsideTheUnit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	tx, err := l.Begin(ctx, []string{"A"})
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.TryReserveAndCommit(ctx, "B", 1)
	assert.Error(t, err)
}

func TestLocalLedger_BeginUnknownProduct(t *testing.T) {
	l := newTestLedger()
	_, err := l.Begin(context.Background(), []string{"A", "nope"})
	assert.ErrorIs(t, err, ErrProductNotFound)

	// nothing may stay locked after a failed Begin
	_, err = l.TryReserveAndCommit(context.Background(), "A", 1)
	assert.NoError(t, err)
}

func TestLocalTx_HoldsLocksUntilCommit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	tx, err := l.Begin(ctx, []string{"A"})
	require.NoError(t, err)
	_, err = tx.TryReserveAndCommit(ctx, "A", 5)
	require.NoError(t, err)

	done := make(chan int)
	go func() {
		p, _ := l.Get(ctx, "A")
		done <- p.Quantity
	}()

	select {
	case <-done:
		t.Fatal("reader observed stock while the unit of work was open")
	case <-time.After(50 * time.Millisecond):
	}

	tx.Rollback()
	assert.Equal(t, 5, <-done)
}

func TestLocalTx_DisjointUnitsDoNotBlock(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	txA, err := l.Begin(ctx, []string{"A"})
	require.NoError(t, err)
	defer txA.Commit()

	got := make(chan error, 1)
	go func() {
		txB, err := l.Begin(ctx, []string{"B"})
		if err == nil {
			txB.Commit()
		}
		got <- err
	}()

	select {
	case err := <-got:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("unit of work on B waited for the lock on A")
	}
}

func TestSummarize(t *testing.T) {
	l := NewLocalLedger(
		Product{ID: "1", Name: "a", Price: decimal.NewFromInt(10), Quantity: 0},
		Product{ID: "2", Name: "b", Price: decimal.NewFromInt(10), Quantity: 2, MinStockLevel: 2},
		Product{ID: "3", Name: "c", Price: decimal.RequireFromString("2.5"), Quantity: 4, MinStockLevel: 1},
	)
	products, err := l.List(context.Background())
	require.NoError(t, err)

	s := Summarize(products)
	assert.Equal(t, 3, s.TotalProducts)
	assert.Equal(t, 1, s.OutOfStockCount)
	assert.Equal(t, 1, s.LowStockCount)
	assert.True(t, decimal.NewFromInt(30).Equal(s.TotalValue), s.TotalValue.String())
	assert.Equal(t, StatusInStock, products[2].StockStatus())
}
