package payments

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no pending payment matches.
var ErrNotFound = errors.New("pending payment not found")

// ErrDuplicateKey is returned when a reconciliation key is already in use.
var ErrDuplicateKey = errors.New("reconciliation key already exists")

// Storage keeps pending payments. Update runs fn under the record's own lock,
// so callbacks for different keys never wait on each other.
type Storage interface {
	Create(ctx context.Context, p *PendingPayment) error
	Delete(ctx context.Context, key string) error
	ByKey(ctx context.Context, key string) (*PendingPayment, error)
	ByGatewayRequestID(ctx context.Context, id string) (*PendingPayment, error)
	// Update applies fn to the record and persists it if fn returns nil.
	Update(ctx context.Context, key string, fn func(p *PendingPayment) error) (*PendingPayment, error)
	ListInitiatedBefore(ctx context.Context, before time.Time) ([]*PendingPayment, error)
	ListBySale(ctx context.Context, saleID string) ([]*PendingPayment, error)
	ListReview(ctx context.Context) ([]*PendingPayment, error)
}

type entry struct {
	mu sync.Mutex
	p  *PendingPayment
}

// LocalStorage is the in-memory Storage.
type LocalStorage struct {
	mu    sync.RWMutex
	byKey map[string]*entry
}

func NewLocalStorage() *LocalStorage {
	return &LocalStorage{byKey: map[string]*entry{}}
}

func (l *LocalStorage) Create(_ context.Context, p *PendingPayment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byKey[p.ReconciliationKey]; ok {
		return ErrDuplicateKey
	}
	l.byKey[p.ReconciliationKey] = &entry{p: p.clone()}
	return nil
}

func (l *LocalStorage) Delete(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byKey[key]; !ok {
		return ErrNotFound
	}
	delete(l.byKey, key)
	return nil
}

func (l *LocalStorage) entry(key string) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byKey[key]
	return e, ok
}

func (l *LocalStorage) ByKey(_ context.Context, key string) (*PendingPayment, error) {
	e, ok := l.entry(key)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.clone(), nil
}

func (l *LocalStorage) ByGatewayRequestID(_ context.Context, id string) (*PendingPayment, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	for _, p := range l.snapshot() {
		if p.GatewayRequestID == id {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (l *LocalStorage) Update(_ context.Context, key string, fn func(p *PendingPayment) error) (*PendingPayment, error) {
	e, ok := l.entry(key)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.p.clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	e.p = c
	return c.clone(), nil
}

// snapshot copies every record, taking each entry lock after the map lock is released.
func (l *LocalStorage) snapshot() []*PendingPayment {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.byKey))
	for _, e := range l.byKey {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	out := make([]*PendingPayment, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.p.clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (l *LocalStorage) filter(keep func(p *PendingPayment) bool) []*PendingPayment {
	out := make([]*PendingPayment, 0)
	for _, p := range l.snapshot() {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (l *LocalStorage) ListInitiatedBefore(_ context.Context, before time.Time) ([]*PendingPayment, error) {
	return l.filter(func(p *PendingPayment) bool {
		return p.Status == StatusInitiated && p.CreatedAt.Before(before)
	}), nil
}

func (l *LocalStorage) ListBySale(_ context.Context, saleID string) ([]*PendingPayment, error) {
	return l.filter(func(p *PendingPayment) bool { return p.SaleID == saleID }), nil
}

func (l *LocalStorage) ListReview(_ context.Context) ([]*PendingPayment, error) {
	return l.filter(func(p *PendingPayment) bool { return p.ReviewRequired }), nil
}
