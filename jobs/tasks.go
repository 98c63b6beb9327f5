package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/silaibook/silaibook/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPaymentsReminderScan queues reminders for customers who still owe money.
	TaskPaymentsReminderScan = "payments:reminder_scan"
	// TaskInventoryLowStockScan reports lots at or below the low stock threshold.
	TaskInventoryLowStockScan = "inventory:low_stock_scan"
	// TaskIdempotencyCleanup prunes expired order creation keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// Queues lists worker queues and their priority weights.
func Queues() map[string]int {
	return map[string]int{
		notify.QueueNotifications: 3,
		QueueDefault:              1,
	}
}

// ScanPayload identifies what registered the scan. Scans always run
// against current state.
type ScanPayload struct {
	Source string `json:"source"`
}

// NewReminderScanTask constructs the reminder scan task.
func NewReminderScanTask() (*asynq.Task, error) {
	return newScanTask(TaskPaymentsReminderScan)
}

// NewLowStockScanTask constructs the low stock scan task.
func NewLowStockScanTask() (*asynq.Task, error) {
	return newScanTask(TaskInventoryLowStockScan)
}

// NewIdempotencyCleanupTask constructs the key pruning task.
func NewIdempotencyCleanupTask() (*asynq.Task, error) {
	return newScanTask(TaskIdempotencyCleanup)
}

func newScanTask(kind string) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{Source: "scheduler"})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, body, asynq.Queue(QueueDefault)), nil
}
