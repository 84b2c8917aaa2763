package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock status labels used by the stock views.
const (
	StatusInStock    = "in_stock"
	StatusLowStock   = "low_stock"
	StatusOutOfStock = "out_of_stock"
)

// Product is a sellable item and its authoritative stock count.
// Quantity is only changed through a Ledger.
type Product struct {
	ID            string          `gorm:"primaryKey;size:64" json:"id"`
	Name          string          `gorm:"size:255;not null" json:"name"`
	Price         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"price"`
	Quantity      int             `gorm:"not null;default:0" json:"quantity"`
	MinStockLevel int             `gorm:"not null;default:0" json:"min_stock_level"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockStatus classifies the product against its minimum-stock threshold.
func (p Product) StockStatus() string {
	switch {
	case p.Quantity == 0:
		return StatusOutOfStock
	case p.Quantity <= p.MinStockLevel:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// StockValue is quantity times the current catalog price.
func (p Product) StockValue() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// Summary aggregates a product list for the stock views.
type Summary struct {
	TotalProducts   int             `json:"total_products"`
	LowStockCount   int             `json:"low_stock_count"`
	OutOfStockCount int             `json:"out_of_stock_count"`
	TotalValue      decimal.Decimal `json:"total_value"`
}

// Summarize counts low and out-of-stock products and sums their stock value.
func Summarize(products []*Product) Summary {
	s := Summary{TotalValue: decimal.Zero}
	for _, p := range products {
		s.TotalProducts++
		switch p.StockStatus() {
		case StatusOutOfStock:
			s.OutOfStockCount++
		case StatusLowStock:
			s.LowStockCount++
		}
		s.TotalValue = s.TotalValue.Add(p.StockValue())
	}
	return s
}
