package memory

import (
	"context"

	"github.com/silaibook/silaibook/internal/fulfillment"
)

// Within implements fulfillment.UnitOfWork.
func (s *Store) Within(ctx context.Context, fn func(context.Context, fulfillment.Ledgers) error) error {
	return s.atomically(func() error {
		return fn(ctx, fulfillment.Ledgers{
			Customers: &customerRepo{s: s, inTx: true},
			Inventory: &inventoryTx{s: s},
			Orders:    &orderTx{s: s},
			Payments:  &paymentTx{s: s},
		})
	})
}
