package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptLine is one printed line of a receipt.
type ReceiptLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Discount  decimal.Decimal `json:"discount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Receipt is a point-in-time view of a committed sale.
type Receipt struct {
	SaleID        string          `json:"sale_id"`
	Date          time.Time       `json:"date"`
	Items         []ReceiptLine   `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
}

// Project builds the receipt of a sale. It reads only the sale itself, so the
// prices shown are the captured ones.
func Project(sale *Sale) Receipt {
	r := Receipt{
		SaleID:        sale.ID,
		Date:          sale.CreatedAt,
		Items:         make([]ReceiptLine, 0, len(sale.Items)),
		Subtotal:      decimal.Zero,
		Discount:      sale.Discount,
		Total:         sale.Total,
		AmountPaid:    sale.AmountPaid,
		PaymentMethod: sale.PaymentMethod,
		PaymentStatus: sale.PaymentStatus,
	}
	if sale.PaymentRef != nil {
		r.PaymentRef = *sale.PaymentRef
	}
	for _, it := range sale.Items {
		r.Items = append(r.Items, ReceiptLine{
			ProductID: it.ProductID,
			Name:      it.ProductName,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice,
			Discount:  it.Discount,
			Subtotal:  it.Subtotal,
		})
		r.Subtotal = r.Subtotal.Add(it.Subtotal)
	}
	return r
}
