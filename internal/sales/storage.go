package sales

import (
	"context"
	"sort"
	"sync"

	"api_pos/internal/inventory"
)

// Tx is what a unit of work can do. Every call either becomes part of the
// committed state together with all others, or none of them does.
type Tx interface {
	// Reserve decrements stock of a product locked by the unit and returns it after the decrement.
	Reserve(ctx context.Context, productID string, quantity int) (inventory.Product, error)
	// Insert stages a sale and its items.
	Insert(ctx context.Context, sale *Sale) error
}

// Storage is the main interface for our sales storage layer.
type Storage interface {
	// Atomically locks productIDs, runs fn and commits only if fn returns nil.
	Atomically(ctx context.Context, productIDs []string, fn func(tx Tx) error) error
	Read(ctx context.Context, id string) (*Sale, error)
	GetAll(ctx context.Context) ([]*Sale, error)
	// UpdatePayment applies fn to the sale under its lock and persists the result if fn returns nil.
	UpdatePayment(ctx context.Context, id string, fn func(sale *Sale) error) (*Sale, error)
}

// LocalStorage provides an in-memory implementation for storing sales, sharing
// its unit of work with an in-memory inventory ledger.
type LocalStorage struct {
	ledger *inventory.LocalLedger
	mu     sync.RWMutex
	m      map[string]*Sale
}

// NewLocalStorage instantiates a new LocalStorage for sales with an empty map.
func NewLocalStorage(ledger *inventory.LocalLedger) *LocalStorage {
	return &LocalStorage{
		ledger: ledger,
		m:      map[string]*Sale{},
	}
}

type localTx struct {
	inv    *inventory.LocalTx
	staged []*Sale
}

func (t *localTx) Reserve(ctx context.Context, productID string, quantity int) (inventory.Product, error) {
	if _, err := t.inv.TryReserveAndCommit(ctx, productID, quantity); err != nil {
		return inventory.Product{}, err
	}
	return t.inv.Product(productID)
}

func (t *localTx) Insert(_ context.Context, sale *Sale) error {
	if sale.ID == "" {
		return ErrEmptyID
	}
	t.staged = append(t.staged, sale.clone())
	return nil
}

func (l *LocalStorage) Atomically(ctx context.Context, productIDs []string, fn func(tx Tx) error) (err error) {
	inv, err := l.ledger.Begin(ctx, productIDs)
	if err != nil {
		return err
	}
	tx := &localTx{inv: inv}
	defer func() {
		if r := recover(); r != nil {
			inv.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		inv.Rollback()
		return err
	}

	// sales become visible before the product locks are released
	l.mu.Lock()
	for _, s := range tx.staged {
		l.m[s.ID] = s
	}
	l.mu.Unlock()
	inv.Commit()
	return nil
}

// Read retrieves a sale from the local storage by ID.
// Returns ErrNotFound if the sale is not found.
func (l *LocalStorage) Read(_ context.Context, id string) (*Sale, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.m[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// GetAll retrieves all sales, newest first.
func (l *LocalStorage) GetAll(_ context.Context) ([]*Sale, error) {
	l.mu.RLock()
	sales := make([]*Sale, 0, len(l.m))
	for _, s := range l.m {
		sales = append(sales, s.clone())
	}
	l.mu.RUnlock()

	sort.Slice(sales, func(i, j int) bool {
		if sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].ID < sales[j].ID
		}
		return sales[i].CreatedAt.After(sales[j].CreatedAt)
	})
	return sales, nil
}

func (l *LocalStorage) UpdatePayment(_ context.Context, id string, fn func(sale *Sale) error) (*Sale, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.m[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := s.clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	l.m[id] = c
	return c.clone(), nil
}
