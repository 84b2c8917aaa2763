package sales

import (
	"context"
	"errors"

	"api_pos/internal/inventory"
)

// RestoreStock returns a failure hook that puts every line's quantity back
// into the ledger. Without it, stock decremented by a sale whose gateway
// payment failed stays decremented.
func RestoreStock(ledger inventory.Ledger) PaymentFailureHook {
	return func(ctx context.Context, sale *Sale) error {
		var errs []error
		for _, it := range sale.Items {
			if _, err := ledger.Release(ctx, it.ProductID, it.Quantity); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
