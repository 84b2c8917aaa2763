package payments

import "errors"

var (
	// ErrInvalidAmount is returned for a non-positive amount or one below the sale total.
	ErrInvalidAmount = errors.New("invalid payment amount")
	// ErrNotPayable is returned when the sale is not a pending gateway sale.
	ErrNotPayable = errors.New("sale is not awaiting a gateway payment")
	// ErrPaymentInFlight is returned while another attempt for the sale is still initiated.
	ErrPaymentInFlight = errors.New("a payment for this sale is already in flight")
	// ErrMalformedCallback is returned for a callback without a result code.
	ErrMalformedCallback = errors.New("malformed callback")
)

// GatewayErrorKind classifies a failed initiation.
type GatewayErrorKind string

const (
	KindAuthFailed   GatewayErrorKind = "AuthFailed"
	KindSubmitFailed GatewayErrorKind = "GatewaySubmitFailed"
)

// GatewayError is returned by InitiatePayment when no local state was kept
// and the caller may retry.
type GatewayError struct {
	Kind GatewayErrorKind
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error { return e.Err }
