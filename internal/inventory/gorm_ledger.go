package inventory

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger is a Ledger over the products table. The per-product lock is the
// database row lock.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) TryReserveAndCommit(ctx context.Context, productID string, quantity int) (int, error) {
	var n int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := ReserveInTx(tx, productID, quantity)
		if err != nil {
			return err
		}
		n = p.Quantity
		return nil
	})
	return n, err
}

func (l *GormLedger) Release(ctx context.Context, productID string, quantity int) (int, error) {
	if quantity < 1 {
		return 0, ErrInvalidQuantity
	}
	var n int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockOne(tx, productID)
		if err != nil {
			return err
		}
		if err := tx.Model(&Product{}).Where("id = ?", productID).
			UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity)).Error; err != nil {
			return err
		}
		n, _ = release(p, quantity)
		return nil
	})
	return n, err
}

func (l *GormLedger) Get(ctx context.Context, productID string) (*Product, error) {
	var p Product
	if err := l.db.WithContext(ctx).Where("id = ?", productID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProductNotFoundError{ProductID: productID}
		}
		return nil, err
	}
	return &p, nil
}

func (l *GormLedger) List(ctx context.Context) ([]*Product, error) {
	var products []*Product
	if err := l.db.WithContext(ctx).Order("name, id").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// LockInTx takes the row lock on every listed product in LockOrder, the way a
// sale transaction must before touching any of them.
func LockInTx(tx *gorm.DB, productIDs []string) error {
	ids := LockOrder(productIDs)
	if len(ids) == 0 {
		return nil
	}
	var locked []Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).Order("id").Find(&locked).Error; err != nil {
		return err
	}
	if len(locked) == len(ids) {
		return nil
	}
	found := make(map[string]bool, len(locked))
	for _, p := range locked {
		found[p.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return &ProductNotFoundError{ProductID: id}
		}
	}
	return nil
}

// ReserveInTx is TryReserveAndCommit inside a caller-owned transaction. It
// returns the product as it stands after the decrement.
func ReserveInTx(tx *gorm.DB, productID string, quantity int) (*Product, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	p, err := lockOne(tx, productID)
	if err != nil {
		return nil, err
	}
	if _, err := reserve(p, quantity); err != nil {
		return nil, err
	}
	res := tx.Model(&Product{}).
		Where("id = ? AND quantity >= ?", productID, quantity).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", quantity))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &InsufficientStockError{ProductID: productID, Requested: quantity, Available: p.Quantity + quantity}
	}
	return p, nil
}

func lockOne(tx *gorm.DB, productID string) (*Product, error) {
	var p Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", productID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
