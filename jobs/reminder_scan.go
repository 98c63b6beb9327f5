package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/silaibook/silaibook/internal/customers"
	jobmetrics "github.com/silaibook/silaibook/internal/jobs"
	"github.com/silaibook/silaibook/internal/notify"
	"github.com/silaibook/silaibook/internal/payments"
)

// BalanceFeed supplies per-customer balances.
type BalanceFeed interface {
	CustomerSummaries(ctx context.Context) ([]payments.Balance, error)
}

// ContactBook resolves a customer's contact details.
type ContactBook interface {
	Get(ctx context.Context, id int64) (*customers.Customer, error)
}

// ReminderQueue accepts payment reminders.
type ReminderQueue interface {
	EnqueueReminder(ctx context.Context, p notify.ReminderPayload, day time.Time) error
}

// ReminderScanJob queues a reminder for every customer with an open balance.
type ReminderScanJob struct {
	Balances BalanceFeed
	Contacts ContactBook
	Queue    ReminderQueue
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewReminderScanJob initialises the reminder scan handler.
func NewReminderScanJob(balances BalanceFeed, contacts ContactBook, queue ReminderQueue, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReminderScanJob {
	return &ReminderScanJob{
		Balances: balances,
		Contacts: contacts,
		Queue:    queue,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *ReminderScanJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Balances == nil || j.Queue == nil {
		return errors.New("reminder scan: handler not configured")
	}
	tracker := j.Metrics.Track(TaskPaymentsReminderScan)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	day := j.clock()
	balances, err := j.Balances.CustomerSummaries(ctx)
	if err != nil {
		logger.Error("reminder scan failed", slog.Any("error", err))
		return err
	}

	queued := 0
	var failed []error
	for _, b := range balances {
		if !b.RemainingAmount.IsPositive() {
			continue
		}
		payload := notify.ReminderPayload{
			CustomerID:      b.CustomerID,
			CustomerName:    b.CustomerName,
			RemainingAmount: b.RemainingAmount,
			DueDate:         b.DueDate,
			Overdue:         b.Overdue(day),
		}
		if j.Contacts != nil {
			c, err := j.Contacts.Get(ctx, b.CustomerID)
			if errors.Is(err, customers.ErrNotFound) {
				continue
			}
			if err != nil {
				failed = append(failed, err)
				continue
			}
			payload.CustomerContact = c.Mobile
			payload.CustomerName = c.Name
		}
		if err := j.Queue.EnqueueReminder(ctx, payload, day); err != nil {
			logger.Warn("queue reminder", slog.Int64("customer_id", b.CustomerID), slog.Any("error", err))
			failed = append(failed, err)
			continue
		}
		queued++
	}
	j.Metrics.AddReminders(queued)
	logger.Info("completed reminder scan",
		slog.Int("customers", len(balances)),
		slog.Int("queued", queued),
		slog.Int("failed", len(failed)),
	)
	return errors.Join(failed...)
}

func (j *ReminderScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
