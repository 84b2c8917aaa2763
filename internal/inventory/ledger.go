package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrInsufficientStock is matched by every InsufficientStockError.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrProductNotFound is matched by every ProductNotFoundError.
var ErrProductNotFound = errors.New("product not found")

// ErrInvalidQuantity is returned when a reservation or release asks for less than one unit.
var ErrInvalidQuantity = errors.New("quantity must be greater than zero")

// InsufficientStockError names the product that could not cover a reservation.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ProductNotFoundError names the missing product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// Ledger is the only writer of Product.Quantity.
//
// TryReserveAndCommit checks and decrements in one step per product: either the
// new quantity is returned or an InsufficientStockError and the product is left
// untouched. Release is the compensating increment.
type Ledger interface {
	TryReserveAndCommit(ctx context.Context, productID string, quantity int) (int, error)
	Release(ctx context.Context, productID string, quantity int) (int, error)
	Get(ctx context.Context, productID string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
}

// reserve applies the non-negative check and decrement to a product the caller holds exclusively.
func reserve(p *Product, quantity int) (int, error) {
	if quantity < 1 {
		return 0, ErrInvalidQuantity
	}
	if p.Quantity < quantity {
		return 0, &InsufficientStockError{ProductID: p.ID, Requested: quantity, Available: p.Quantity}
	}
	p.Quantity -= quantity
	return p.Quantity, nil
}

func release(p *Product, quantity int) (int, error) {
	if quantity < 1 {
		return 0, ErrInvalidQuantity
	}
	p.Quantity += quantity
	return p.Quantity, nil
}

// LockOrder returns the distinct ids sorted, the order in which a unit of work must lock them.
func LockOrder(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortProducts(products []*Product) {
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name == products[j].Name {
			return products[i].ID < products[j].ID
		}
		return products[i].Name < products[j].Name
	})
}
