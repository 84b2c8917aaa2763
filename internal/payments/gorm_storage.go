package payments

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStorage keeps pending payments in Postgres. The database must be opened
// with TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

func (g *GormStorage) Create(ctx context.Context, p *PendingPayment) error {
	err := g.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

func (g *GormStorage) Delete(ctx context.Context, key string) error {
	res := g.db.WithContext(ctx).Where("reconciliation_key = ?", key).Delete(&PendingPayment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *GormStorage) first(q *gorm.DB) (*PendingPayment, error) {
	var p PendingPayment
	err := q.First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (g *GormStorage) ByKey(ctx context.Context, key string) (*PendingPayment, error) {
	return g.first(g.db.WithContext(ctx).Where("reconciliation_key = ?", key))
}

func (g *GormStorage) ByGatewayRequestID(ctx context.Context, id string) (*PendingPayment, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return g.first(g.db.WithContext(ctx).Where("gateway_request_id = ?", id))
}

func (g *GormStorage) Update(ctx context.Context, key string, fn func(p *PendingPayment) error) (*PendingPayment, error) {
	var out *PendingPayment
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := g.first(tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("reconciliation_key = ?", key))
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *GormStorage) list(ctx context.Context, query string, args ...interface{}) ([]*PendingPayment, error) {
	var out []*PendingPayment
	if err := g.db.WithContext(ctx).Where(query, args...).Order("created_at, id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (g *GormStorage) ListInitiatedBefore(ctx context.Context, before time.Time) ([]*PendingPayment, error) {
	return g.list(ctx, "status = ? AND created_at < ?", StatusInitiated, before)
}

func (g *GormStorage) ListBySale(ctx context.Context, saleID string) ([]*PendingPayment, error) {
	return g.list(ctx, "sale_id = ?", saleID)
}

func (g *GormStorage) ListReview(ctx context.Context) ([]*PendingPayment, error) {
	return g.list(ctx, "review_required = ?", true)
}
