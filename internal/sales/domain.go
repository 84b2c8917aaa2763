package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a sale is settled.
type PaymentMethod string

const (
	MethodCash    PaymentMethod = "cash"
	MethodCard    PaymentMethod = "card"
	MethodGateway PaymentMethod = "gateway"
)

// ParsePaymentMethod accepts the enumerated methods plus "mpesa" as an alias for gateway.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case MethodCash, MethodCard, MethodGateway:
		return PaymentMethod(s), true
	}
	if s == "mpesa" {
		return MethodGateway, true
	}
	return "", false
}

// SettlesImmediately reports whether the amount paid is known at checkout.
func (m PaymentMethod) SettlesImmediately() bool {
	return m == MethodCash || m == MethodCard
}

// PaymentStatus of a sale.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	StatusFailed  PaymentStatus = "failed"
)

// Sale represents a committed checkout. Amounts are fixed at creation; only the
// payment fields change afterwards.
type Sale struct {
	ID            string          `gorm:"primaryKey;size:36" json:"id"`
	UserID        string          `gorm:"size:64;index" json:"user_id"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
	Discount      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	Total         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount_paid"`
	PaymentMethod PaymentMethod   `gorm:"size:16;not null" json:"payment_method"`
	PaymentRef    *string         `gorm:"size:64" json:"payment_ref"`
	PaymentStatus PaymentStatus   `gorm:"size:16;not null;index" json:"payment_status"`
	Items         []SaleItem      `gorm:"foreignKey:SaleID" json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `gorm:"not null;default:1" json:"version"`
}

// SaleItem is one line of a sale. Price and name are captured at sale time.
type SaleItem struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	SaleID      string          `gorm:"size:36;index;not null" json:"sale_id"`
	ProductID   string          `gorm:"size:64;index;not null" json:"product_id"`
	ProductName string          `gorm:"size:255" json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Discount    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"subtotal"`
}

// LineSubtotal is quantity × price − discount.
func LineSubtotal(quantity int, unitPrice, discount decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Sub(discount)
}

func (s *Sale) clone() *Sale {
	c := *s
	c.Items = append([]SaleItem(nil), s.Items...)
	if s.PaymentRef != nil {
		ref := *s.PaymentRef
		c.PaymentRef = &ref
	}
	return &c
}
