package payments

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Envelope is the STK push callback body.
type Envelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        *int   `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// MetadataItem is one name/value pair of settlement metadata. Values arrive
// as numbers or strings depending on the field.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// Event is a gateway callback reduced to what reconciliation needs.
type Event struct {
	ReconciliationKey string
	GatewayRequestID  string
	ResultCode        int
	ResultDesc        string
	Amount            decimal.NullDecimal
	ReceiptNumber     string
	PhoneNumber       string
}

// Succeeded reports whether the payer approved the payment.
func (e Event) Succeeded() bool {
	return e.ResultCode == 0
}

// Event converts the envelope. key is the reference echoed on the callback
// URL and may be empty.
func (e Envelope) Event(key string) (Event, error) {
	cb := e.Body.StkCallback
	if cb.ResultCode == nil {
		return Event{}, ErrMalformedCallback
	}
	ev := Event{
		ReconciliationKey: key,
		GatewayRequestID:  cb.CheckoutRequestID,
		ResultCode:        *cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata == nil {
		return ev, nil
	}
	items := cb.CallbackMetadata.Item
	if raw, ok := lookup(items, "Amount"); ok {
		if amt, err := decimal.NewFromString(raw); err == nil {
			ev.Amount = decimal.NewNullDecimal(amt)
		}
	}
	ev.ReceiptNumber, _ = lookup(items, "MpesaReceiptNumber")
	ev.PhoneNumber, _ = lookup(items, "PhoneNumber")
	return ev, nil
}

func lookup(items []MetadataItem, name string) (string, bool) {
	for _, it := range items {
		if !strings.EqualFold(it.Name, name) || len(it.Value) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(it.Value, &s); err == nil {
			return s, s != ""
		}
		v := strings.TrimSpace(string(it.Value))
		if v == "null" {
			return "", false
		}
		return v, true
	}
	return "", false
}
