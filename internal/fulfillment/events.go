package fulfillment

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReadyNotificationEvent tells the messaging collaborator an order can be collected.
type ReadyNotificationEvent struct {
	OrderID         int64           `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerContact string          `json:"customer_contact"`
	AmountTotal     decimal.Decimal `json:"amount_total"`
	AmountDue       decimal.Decimal `json:"amount_due"`
}

// Notifier hands events to the messaging collaborator. Delivery is best effort.
type Notifier interface {
	NotifyReady(ctx context.Context, event ReadyNotificationEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event ReadyNotificationEvent) error

// NotifyReady implements Notifier.
func (f NotifierFunc) NotifyReady(ctx context.Context, event ReadyNotificationEvent) error {
	return f(ctx, event)
}
