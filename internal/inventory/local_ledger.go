package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// slot guards one product. Its mutex is the per-product row lock.
type slot struct {
	mu      sync.Mutex
	product Product
}

// LocalLedger is an in-memory Ledger with one lock per product, so
// reservations against different products never wait on each other.
type LocalLedger struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

// NewLocalLedger instantiates a LocalLedger holding the given products.
func NewLocalLedger(products ...Product) *LocalLedger {
	l := &LocalLedger{slots: make(map[string]*slot, len(products))}
	for _, p := range products {
		l.Put(p)
	}
	return l
}

// Put registers or replaces a product. Used for seeding, not for stock movements.
func (l *LocalLedger) Put(p Product) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[p.ID]; ok {
		s.mu.Lock()
		s.product = p
		s.mu.Unlock()
		return
	}
	l.slots[p.ID] = &slot{product: p}
}

func (l *LocalLedger) slot(productID string) (*slot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.slots[productID]
	if !ok {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	return s, nil
}

func (l *LocalLedger) TryReserveAndCommit(ctx context.Context, productID string, quantity int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s, err := l.slot(productID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return reserve(&s.product, quantity)
}

func (l *LocalLedger) Release(ctx context.Context, productID string, quantity int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s, err := l.slot(productID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return release(&s.product, quantity)
}

func (l *LocalLedger) Get(ctx context.Context, productID string) (*Product, error) {
	s, err := l.slot(productID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	p := s.product
	s.mu.Unlock()
	return &p, nil
}

func (l *LocalLedger) List(ctx context.Context) ([]*Product, error) {
	l.mu.RLock()
	slots := make([]*slot, 0, len(l.slots))
	for _, s := range l.slots {
		slots = append(slots, s)
	}
	l.mu.RUnlock()

	products := make([]*Product, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		p := s.product
		s.mu.Unlock()
		products = append(products, &p)
	}
	sortProducts(products)
	return products, nil
}

// Begin locks every listed product in LockOrder and returns a unit of work over them.
// The locks are held until Commit or Rollback.
func (l *LocalLedger) Begin(ctx context.Context, productIDs []string) (*LocalTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := LockOrder(productIDs)
	slots := make([]*slot, 0, len(ids))
	for _, id := range ids {
		s, err := l.slot(id)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}

	tx := &LocalTx{locked: make(map[string]*slot, len(slots)), order: slots}
	for i, s := range slots {
		s.mu.Lock()
		tx.locked[ids[i]] = s
	}
	return tx, nil
}

type undoEntry struct {
	slot     *slot
	quantity int
}

// LocalTx is an open unit of work on a LocalLedger.
type LocalTx struct {
	locked map[string]*slot
	order  []*slot
	undo   []undoEntry
	done   bool
}

var errTxDone = errors.New("inventory unit of work already finished")

// TryReserveAndCommit decrements a product locked by this unit.
func (t *LocalTx) TryReserveAndCommit(ctx context.Context, productID string, quantity int) (int, error) {
	if t.done {
		return 0, errTxDone
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s, ok := t.locked[productID]
	if !ok {
		return 0, fmt.Errorf("product %s is not locked by this unit of work", productID)
	}
	n, err := reserve(&s.product, quantity)
	if err != nil {
		return 0, err
	}
	t.undo = append(t.undo, undoEntry{slot: s, quantity: quantity})
	return n, nil
}

// Product returns the current state of a locked product.
func (t *LocalTx) Product(productID string) (Product, error) {
	s, ok := t.locked[productID]
	if !ok {
		return Product{}, &ProductNotFoundError{ProductID: productID}
	}
	return s.product, nil
}

// Commit keeps every decrement and releases the locks.
func (t *LocalTx) Commit() {
	if t.done {
		return
	}
	t.done = true
	t.unlock()
}

// Rollback restores every decrement in reverse order, then releases the locks.
func (t *LocalTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		u := t.undo[i]
		u.slot.product.Quantity += u.quantity
	}
	t.unlock()
}

func (t *LocalTx) unlock() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.order[i].mu.Unlock()
	}
}
