package sales

import (
	"context"
	"errors"

	"api_pos/internal/inventory"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStorage keeps sales in Postgres. One Atomically call is one database transaction.
type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) Reserve(_ context.Context, productID string, quantity int) (inventory.Product, error) {
	p, err := inventory.ReserveInTx(t.tx, productID, quantity)
	if err != nil {
		return inventory.Product{}, err
	}
	return *p, nil
}

func (t *gormTx) Insert(_ context.Context, sale *Sale) error {
	if sale.ID == "" {
		return ErrEmptyID
	}
	return t.tx.Create(sale).Error
}

func (g *GormStorage) Atomically(ctx context.Context, productIDs []string, fn func(tx Tx) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := inventory.LockInTx(tx, productIDs); err != nil {
			return err
		}
		return fn(&gormTx{tx: tx})
	})
}

func (g *GormStorage) Read(ctx context.Context, id string) (*Sale, error) {
	var s Sale
	err := g.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (g *GormStorage) GetAll(ctx context.Context) ([]*Sale, error) {
	var sales []*Sale
	if err := g.db.WithContext(ctx).Preload("Items").Order("created_at DESC, id").Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}

func (g *GormStorage) UpdatePayment(ctx context.Context, id string, fn func(sale *Sale) error) (*Sale, error) {
	var out Sale
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s Sale
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&s); err != nil {
			return err
		}
		if err := tx.Model(&s).
			Select("payment_status", "payment_ref", "version", "updated_at").
			Updates(&s).Error; err != nil {
			return err
		}
		if err := tx.Where("sale_id = ?", id).Find(&s.Items).Error; err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
