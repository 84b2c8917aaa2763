package sales

import "errors"

// ErrNotFound is returned when a sale with the given ID is not found.
var ErrNotFound = errors.New("sale not found")

// ErrEmptyID is returned when trying to store a sale with an empty ID.
var ErrEmptyID = errors.New("empty sale ID")

// ErrInvalidTransition is returned for a payment status change the sale cannot make.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrInvalidStatus is returned for an unknown payment status value.
var ErrInvalidStatus = errors.New("invalid status value")

// ErrorKind classifies a failed commit for the caller.
type ErrorKind string

const (
	KindValidation          ErrorKind = "ValidationError"
	KindInsufficientStock   ErrorKind = "InsufficientStock"
	KindInsufficientPayment ErrorKind = "InsufficientPayment"
	KindProductNotFound     ErrorKind = "ProductNotFound"
	KindInternal            ErrorKind = "Internal"
)

// TransactionError is returned by CommitSale. Nothing was changed when it is returned.
type TransactionError struct {
	Kind      ErrorKind
	ProductID string
	Message   string
	Err       error
}

func (e *TransactionError) Error() string {
	if e.ProductID != "" {
		return string(e.Kind) + ": " + e.Message + " (product " + e.ProductID + ")"
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *TransactionError) Unwrap() error { return e.Err }

func validationError(msg string) *TransactionError {
	return &TransactionError{Kind: KindValidation, Message: msg}
}

// KindOf returns the kind of a TransactionError, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr.Kind
	}
	return KindInternal
}
