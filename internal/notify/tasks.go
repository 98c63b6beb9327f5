package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/fulfillment"
)

const (
	// QueueNotifications carries customer-facing messages.
	QueueNotifications = "notifications"
	// TaskOrderReady delivers the pickup message for a ready order.
	TaskOrderReady = "notify:order_ready"
	// TaskPaymentReminder delivers an outstanding balance reminder.
	TaskPaymentReminder = "notify:payment_reminder"
)

// OrderReadyPayload is the queued form of a ready notification.
type OrderReadyPayload struct {
	OrderID         int64           `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerContact string          `json:"customer_contact"`
	AmountTotal     decimal.Decimal `json:"amount_total"`
	AmountDue       decimal.Decimal `json:"amount_due"`
}

// ReminderPayload is the queued form of a payment reminder.
type ReminderPayload struct {
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerContact string          `json:"customer_contact"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	Overdue         bool            `json:"overdue,omitempty"`
}

// NewOrderReadyTask builds the task for ev. The task id is derived from the
// order so repeated enqueues collapse into one.
func NewOrderReadyTask(ev fulfillment.ReadyNotificationEvent) (*asynq.Task, error) {
	body, err := json.Marshal(OrderReadyPayload(ev))
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderReady, body,
		asynq.Queue(QueueNotifications),
		asynq.TaskID(fmt.Sprintf("order-ready:%d", ev.OrderID)),
		asynq.MaxRetry(5),
	), nil
}

// NewReminderTask builds a reminder task, unique per customer and day.
func NewReminderTask(p ReminderPayload, day time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentReminder, body,
		asynq.Queue(QueueNotifications),
		asynq.TaskID(fmt.Sprintf("payment-reminder:%d:%s", p.CustomerID, day.Format("2006-01-02"))),
		asynq.MaxRetry(3),
	), nil
}

// Enqueuer is the subset of asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher queues ready notifications for the worker.
type Dispatcher struct {
	client Enqueuer
}

// NewDispatcher constructs Dispatcher.
func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

// NotifyReady enqueues the order-ready task. An already queued task for the
// same order counts as success.
func (d *Dispatcher) NotifyReady(ctx context.Context, ev fulfillment.ReadyNotificationEvent) error {
	task, err := NewOrderReadyTask(ev)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task)
}

// EnqueueReminder queues one payment reminder.
func (d *Dispatcher) EnqueueReminder(ctx context.Context, p ReminderPayload, day time.Time) error {
	task, err := NewReminderTask(p, day)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task)
}

func (d *Dispatcher) enqueue(ctx context.Context, task *asynq.Task) error {
	if d == nil || d.client == nil {
		return errors.New("notify: dispatcher not configured")
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}
