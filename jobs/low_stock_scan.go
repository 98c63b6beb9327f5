package jobs

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/silaibook/silaibook/internal/jobs"
	"github.com/silaibook/silaibook/internal/inventory"
)

// LowStockSource streams lots at or below a threshold.
type LowStockSource interface {
	LowStockReport(ctx context.Context, threshold *decimal.Decimal) iter.Seq2[inventory.StockLot, error]
	LowStockThreshold() decimal.Decimal
}

// LowStockScanJob logs every lot that needs resupply.
type LowStockScanJob struct {
	Source  LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the low stock scan handler.
func NewLowStockScanJob(source LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle executes the scan with the configured default threshold.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: handler not configured")
	}
	tracker := j.Metrics.Track(TaskInventoryLowStockScan)
	defer func() { err = tracker.End(err) }()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := j.Source.LowStockThreshold()
	found := 0
	for lot, err := range j.Source.LowStockReport(ctx, nil) {
		if err != nil {
			logger.Error("low stock scan failed", slog.Any("error", err))
			return err
		}
		found++
		logger.Warn("low stock",
			slog.Int64("stock_lot_id", lot.ID),
			slog.String("dealer", lot.DealerName),
			slog.String("category", lot.Category),
			slog.String("remaining_meters", lot.Remaining().String()),
		)
	}
	j.Metrics.SetLowStockLots(found)
	logger.Info("completed low stock scan", slog.String("threshold", threshold.String()), slog.Int("lots", found))
	return nil
}
