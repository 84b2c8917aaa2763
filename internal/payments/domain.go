package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a pending payment. A record leaves StatusInitiated exactly once.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusRejected || s == StatusExpired
}

// PendingPayment tracks one gateway payment attempt for a sale.
type PendingPayment struct {
	ID                string              `gorm:"primaryKey;size:36" json:"id"`
	SaleID            string              `gorm:"size:36;index;not null" json:"sale_id"`
	GatewayRequestID  string              `gorm:"size:64;index" json:"gateway_request_id"`
	MerchantRequestID string              `gorm:"size:64" json:"merchant_request_id"`
	ReconciliationKey string              `gorm:"size:96;uniqueIndex;not null" json:"reconciliation_key"`
	Amount            decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"amount"`
	PayerAccount      string              `gorm:"size:32" json:"payer_account"`
	Status            Status              `gorm:"size:16;index;not null" json:"status"`
	ResultCode        *int                `json:"result_code,omitempty"`
	ResultDesc        string              `gorm:"size:255" json:"result_desc,omitempty"`
	ReceiptNumber     string              `gorm:"size:64" json:"receipt_number,omitempty"`
	SettledAmount     decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"settled_amount"`
	ReviewRequired    bool                `gorm:"index;not null;default:false" json:"review_required"`
	ReviewReason      string              `gorm:"size:255" json:"review_reason,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	ResolvedAt        *time.Time          `json:"resolved_at,omitempty"`
}

func (p *PendingPayment) clone() *PendingPayment {
	c := *p
	if p.ResultCode != nil {
		rc := *p.ResultCode
		c.ResultCode = &rc
	}
	if p.ResolvedAt != nil {
		at := *p.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

func (p *PendingPayment) flag(reason string) {
	p.ReviewRequired = true
	p.ReviewReason = reason
}
