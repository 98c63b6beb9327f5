package fulfillment

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/customers"
	"github.com/silaibook/silaibook/internal/inventory"
	"github.com/silaibook/silaibook/internal/orders"
	"github.com/silaibook/silaibook/internal/payments"
	"github.com/silaibook/silaibook/internal/shared"
)

// IdempotencyPort records client request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Observer receives orchestration outcomes for metrics.
type Observer interface {
	ObserveRejection(operation, kind string)
	ObserveNotification(outcome string)
}

const createOrderModule = "orders.create"

// Orchestrator couples the ledgers for order creation and ready confirmation.
type Orchestrator struct {
	uow         UnitOfWork
	inventory   *inventory.Service
	orders      *orders.Service
	payments    *payments.Service
	idempotency IdempotencyPort
	notifier    Notifier
	observer    Observer
	logger      *slog.Logger
	notifyWait  time.Duration
}

// Config groups optional collaborators.
type Config struct {
	Idempotency   IdempotencyPort
	Notifier      Notifier
	Observer      Observer
	Logger        *slog.Logger
	NotifyTimeout time.Duration
}

// NewOrchestrator builds Orchestrator.
func NewOrchestrator(uow UnitOfWork, inv *inventory.Service, ord *orders.Service, pay *payments.Service, cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wait := cfg.NotifyTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Orchestrator{
		uow:         uow,
		inventory:   inv,
		orders:      ord,
		payments:    pay,
		idempotency: cfg.Idempotency,
		notifier:    cfg.Notifier,
		observer:    cfg.Observer,
		logger:      logger,
		notifyWait:  wait,
	}
}

// CreateOrderInput describes a new order and the debt it opens.
type CreateOrderInput struct {
	CustomerID     int64
	OrderType      string
	Priority       orders.Priority
	Measurements   map[string]string
	Reservations   []orders.Reservation
	DeliveryDate   time.Time
	Price          decimal.Decimal
	AdvanceAmount  decimal.Decimal
	PaymentMode    payments.Mode
	PaymentDueDate *time.Time
	IdempotencyKey string
}

// CreateOrder checks every reservation, inserts the order and opens its debt
// in one transaction.
func (o *Orchestrator) CreateOrder(ctx context.Context, input CreateOrderInput) (order orders.Order, err error) {
	defer func() { o.rejected("create_order", err) }()

	n := orders.NewOrder{
		CustomerID:    input.CustomerID,
		OrderType:     input.OrderType,
		Priority:      input.Priority,
		Measurements:  input.Measurements,
		DeliveryDate:  input.DeliveryDate,
		Price:         input.Price,
		AdvanceAmount: input.AdvanceAmount,
		Reservations:  input.Reservations,
	}
	if err := n.Validate(); err != nil {
		return orders.Order{}, err
	}
	for i, res := range n.Reservations {
		if err := inventory.ValidateMeters(fmt.Sprintf("cloth_reservations[%d].meters", i), res.Meters); err != nil {
			return orders.Order{}, err
		}
	}
	if input.PaymentMode != "" && !input.PaymentMode.Valid() {
		return orders.Order{}, shared.Validationf("unknown payment_mode %q", input.PaymentMode)
	}

	if input.IdempotencyKey != "" && o.idempotency != nil {
		if err := o.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, createOrderModule); err != nil {
			return orders.Order{}, err
		}
		defer func() {
			if err == nil {
				return
			}
			if delErr := o.idempotency.Delete(context.WithoutCancel(ctx), input.IdempotencyKey); delErr != nil {
				o.logger.WarnContext(ctx, "release idempotency key", slog.Any("error", delErr))
			}
		}()
	}

	release, err := o.payments.AcquireCustomer(ctx, input.CustomerID)
	if err != nil {
		return orders.Order{}, err
	}
	defer release()

	var debt payments.Record
	err = o.uow.Within(ctx, func(ctx context.Context, l Ledgers) error {
		customer, err := l.Customers.Get(ctx, input.CustomerID)
		if err != nil {
			return err
		}
		if !customer.IsActive {
			return customers.ErrNotFound
		}
		n.CustomerName = customer.Name
		n.CustomerMobile = customer.Mobile

		for _, res := range orders.ReservedMeters(n.Reservations) {
			if _, err := o.inventory.ReserveWithin(ctx, l.Inventory, res.StockLotID, res.Meters); err != nil {
				return err
			}
		}
		order, err = o.orders.CreateWithin(ctx, l.Orders, n)
		if err != nil {
			return err
		}
		debt, err = o.payments.OpenDebtWithin(ctx, l.Payments, payments.DebtInput{
			CustomerID: order.CustomerID,
			OrderID:    order.ID,
			Price:      order.Price,
			Advance:    order.AdvanceAmount,
			Mode:       input.PaymentMode,
			DueDate:    input.PaymentDueDate,
		})
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}
	o.orders.Record(ctx, "order.created", order, map[string]any{
		"customer_id": order.CustomerID,
		"price":       order.Price.String(),
		"advance":     order.AdvanceAmount.String(),
		"payment_id":  debt.ID,
	})
	o.logger.InfoContext(ctx, "order created",
		slog.Int64("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.Int64("customer_id", order.CustomerID))
	return order, nil
}

type consumption struct {
	lot   inventory.StockLot
	usage inventory.UsageRecord
}

// ConfirmReady consumes every reservation and moves the order to Ready as one
// unit. An order that is already consumed is returned unchanged.
func (o *Orchestrator) ConfirmReady(ctx context.Context, orderID int64) (order orders.Order, err error) {
	defer func() { o.rejected("confirm_ready", err) }()

	var (
		already  bool
		consumed []consumption
	)
	err = o.uow.Within(ctx, func(ctx context.Context, l Ledgers) error {
		consumed = consumed[:0]
		current, done, err := o.orders.BeginReadyWithin(ctx, l.Orders, orderID)
		if err != nil {
			return err
		}
		if done {
			order, already = current, true
			return nil
		}
		// Lots are touched in id order so two confirmations sharing lots cannot deadlock.
		lines := slices.Clone(current.Reservations)
		slices.SortStableFunc(lines, func(a, b orders.Reservation) int { return cmp.Compare(a.StockLotID, b.StockLotID) })
		for _, res := range lines {
			usage, lot, err := o.inventory.ConsumeWithin(ctx, l.Inventory, inventory.ConsumeInput{
				StockLotID: res.StockLotID,
				Meters:     res.Meters,
				OrderID:    &current.ID,
			})
			if err != nil {
				return fmt.Errorf("order %s: %w", current.OrderNumber, err)
			}
			consumed = append(consumed, consumption{lot: lot, usage: usage})
		}
		order, err = o.orders.CompleteReadyWithin(ctx, l.Orders, orderID)
		return err
	})
	if err != nil {
		return orders.Order{}, err
	}
	if already {
		o.logger.InfoContext(ctx, "order already ready", slog.Int64("order_id", order.ID))
		return order, nil
	}
	for _, c := range consumed {
		o.inventory.Committed(ctx, c.lot, c.usage)
	}
	o.orders.Record(ctx, "order.ready", order, map[string]any{"lots": len(consumed)})
	o.logger.InfoContext(ctx, "order ready", slog.Int64("order_id", order.ID), slog.String("order_number", order.OrderNumber))
	o.notifyReady(ctx, order)
	return order, nil
}

// notifyReady never fails the caller; the state transition is already committed.
func (o *Orchestrator) notifyReady(ctx context.Context, order orders.Order) {
	if o.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.notifyWait)
	defer cancel()

	event := ReadyNotificationEvent{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		CustomerName:    order.CustomerName,
		CustomerContact: order.CustomerMobile,
		AmountTotal:     order.Price,
		AmountDue:       order.Price.Sub(order.AdvanceAmount),
	}
	if bal, err := o.payments.CustomerBalance(ctx, order.CustomerID); err != nil {
		o.logger.WarnContext(ctx, "ready notification balance lookup failed", slog.Int64("order_id", order.ID), slog.Any("error", err))
	} else {
		event.AmountDue = bal.RemainingAmount
	}

	if err := o.notifier.NotifyReady(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "ready notification failed", slog.Int64("order_id", order.ID), slog.Any("error", err))
		o.notified("failed")
		return
	}
	o.notified("sent")
}

func (o *Orchestrator) rejected(operation string, err error) {
	if err == nil || o.observer == nil {
		return
	}
	o.observer.ObserveRejection(operation, shared.ErrorKind(err))
}

func (o *Orchestrator) notified(outcome string) {
	if o.observer != nil {
		o.observer.ObserveNotification(outcome)
	}
}
