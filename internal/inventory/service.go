package inventory

import (
	"context"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLot(ctx context.Context, id int64) (StockLot, error)
	StreamLots(ctx context.Context, filter LotFilter) iter.Seq2[StockLot, error]
	ListLots(ctx context.Context, filter LotFilter) ([]StockLot, error)
	Aggregate(ctx context.Context, by GroupBy) ([]Aggregate, error)
	ListUsage(ctx context.Context, filter UsageFilter) ([]UsageRecord, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ConsumptionObserver receives committed consumption events for metrics.
type ConsumptionObserver interface {
	ObserveConsumption(category string, meters decimal.Decimal)
}

// Service coordinates inventory operations.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	observer  ConsumptionObserver
	logger    *slog.Logger
	threshold decimal.Decimal
	now       func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThreshold decimal.Decimal
	Observer          ConsumptionObserver
	Logger            *slog.Logger
}

// DefaultLowStockThreshold applies when no threshold is configured.
var DefaultLowStockThreshold = decimal.NewFromInt(10)

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	threshold := cfg.LowStockThreshold
	if !threshold.IsPositive() {
		threshold = DefaultLowStockThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, observer: cfg.Observer, logger: logger, threshold: threshold, now: time.Now}
}

// LowStockThreshold exposes the configured default threshold.
func (s *Service) LowStockThreshold() decimal.Decimal {
	return s.threshold
}

// ReceiveStock registers a newly delivered lot.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiveInput) (StockLot, error) {
	input.DealerName = strings.TrimSpace(input.DealerName)
	input.Category = strings.TrimSpace(input.Category)
	if input.DealerName == "" || input.Category == "" {
		return StockLot{}, shared.Validationf("dealer_name and category required")
	}
	if err := ValidateMeters("total_meters", input.TotalMeters); err != nil {
		return StockLot{}, err
	}
	if input.PricePerMeter.IsNegative() {
		return StockLot{}, shared.Validationf("price_per_meter must be >= 0")
	}
	receivedAt := s.now()
	if input.ReceivedAt != nil && !input.ReceivedAt.IsZero() {
		receivedAt = *input.ReceivedAt
	}
	actor := shared.ActorFromContext(ctx)
	var lot StockLot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, err = tx.InsertLot(ctx, StockLot{
			DealerName:    input.DealerName,
			Category:      input.Category,
			TotalMeters:   input.TotalMeters,
			PricePerMeter: input.PricePerMeter.Round(2),
			ReceivedAt:    receivedAt,
			CreatedBy:     actor,
		})
		return err
	})
	if err != nil {
		return StockLot{}, err
	}
	s.record(ctx, "stock.received", lot.ID, map[string]any{
		"dealer":   lot.DealerName,
		"category": lot.Category,
		"meters":   lot.TotalMeters.String(),
	})
	return lot, nil
}

// GetLot returns a live lot.
func (s *Service) GetLot(ctx context.Context, id int64) (StockLot, error) {
	return s.repo.GetLot(ctx, id)
}

// Reserve checks that a lot currently covers meters. It never mutates the lot.
func (s *Service) Reserve(ctx context.Context, lotID int64, meters decimal.Decimal) (StockLot, error) {
	var lot StockLot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, err = s.ReserveWithin(ctx, tx, lotID, meters)
		return err
	})
	return lot, err
}

// ReserveWithin runs Reserve inside a caller-owned transaction.
func (s *Service) ReserveWithin(ctx context.Context, tx TxRepository, lotID int64, meters decimal.Decimal) (StockLot, error) {
	if lotID <= 0 {
		return StockLot{}, shared.Validationf("stock_lot_id required")
	}
	if err := ValidateMeters("meters", meters); err != nil {
		return StockLot{}, err
	}
	lot, err := tx.GetLot(ctx, lotID)
	if err != nil {
		return StockLot{}, err
	}
	if lot.Remaining().LessThan(meters) {
		return StockLot{}, &InsufficientStockError{StockLotID: lotID, Requested: meters, Available: lot.Remaining()}
	}
	return lot, nil
}

// Consume permanently deducts meters from a lot and appends a usage record.
func (s *Service) Consume(ctx context.Context, input ConsumeInput) (UsageRecord, error) {
	var (
		usage UsageRecord
		lot   StockLot
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		usage, lot, err = s.ConsumeWithin(ctx, tx, input)
		return err
	})
	if err != nil {
		return UsageRecord{}, err
	}
	s.Committed(ctx, lot, usage)
	return usage, nil
}

// ConsumeWithin runs the guarded deduction inside a caller-owned transaction.
// Callers must invoke Committed once the transaction commits.
func (s *Service) ConsumeWithin(ctx context.Context, tx TxRepository, input ConsumeInput) (UsageRecord, StockLot, error) {
	if input.StockLotID <= 0 {
		return UsageRecord{}, StockLot{}, shared.Validationf("stock_lot_id required")
	}
	if err := ValidateMeters("meters", input.Meters); err != nil {
		return UsageRecord{}, StockLot{}, err
	}
	lot, err := tx.ConsumeLot(ctx, input.StockLotID, input.Meters)
	if err != nil {
		return UsageRecord{}, StockLot{}, err
	}
	usage, err := tx.InsertUsage(ctx, UsageRecord{
		StockLotID:      lot.ID,
		OrderID:         input.OrderID,
		MetersUsed:      input.Meters,
		RemainingMeters: lot.Remaining(),
		Actor:           shared.ActorFromContext(ctx),
		UsedAt:          s.now(),
	})
	if err != nil {
		return UsageRecord{}, StockLot{}, err
	}
	return usage, lot, nil
}

// Committed publishes side effects of a consumption that has been committed.
func (s *Service) Committed(ctx context.Context, lot StockLot, usage UsageRecord) {
	if s.observer != nil {
		s.observer.ObserveConsumption(lot.Category, usage.MetersUsed)
	}
	meta := map[string]any{
		"meters":    usage.MetersUsed.String(),
		"remaining": usage.RemainingMeters.String(),
	}
	if usage.OrderID != nil {
		meta["order_id"] = *usage.OrderID
	}
	s.record(ctx, "stock.consumed", lot.ID, meta)
}

// LowStockReport lazily yields live lots whose remaining meters are at or
// below threshold. A nil threshold uses the configured default.
func (s *Service) LowStockReport(ctx context.Context, threshold *decimal.Decimal) iter.Seq2[StockLot, error] {
	limit := s.threshold
	if threshold != nil {
		limit = *threshold
	}
	if limit.IsNegative() {
		return func(yield func(StockLot, error) bool) {
			yield(StockLot{}, shared.Validationf("threshold must be >= 0"))
		}
	}
	return s.repo.StreamLots(ctx, LotFilter{MaxRemaining: &limit})
}

// ListLots returns live lots matching filter.
func (s *Service) ListLots(ctx context.Context, filter LotFilter) ([]StockLot, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.repo.ListLots(ctx, filter)
}

// Aggregate totals live lots by dealer or category.
func (s *Service) Aggregate(ctx context.Context, by GroupBy) ([]Aggregate, error) {
	switch by {
	case GroupByDealer, GroupByCategory:
	case "":
		by = GroupByCategory
	default:
		return nil, shared.Validationf("group by must be dealer or category")
	}
	return s.repo.Aggregate(ctx, by)
}

// UsageHistory lists consumption records newest first.
func (s *Service) UsageHistory(ctx context.Context, filter UsageFilter) ([]UsageRecord, error) {
	return s.repo.ListUsage(ctx, filter)
}

// UpdateLotDetails edits dealer, category or price of a live lot.
func (s *Service) UpdateLotDetails(ctx context.Context, id int64, upd LotDetailsUpdate) (StockLot, error) {
	if upd.DealerName == nil && upd.Category == nil && upd.PricePerMeter == nil {
		return StockLot{}, shared.Validationf("nothing to update")
	}
	if upd.PricePerMeter != nil {
		if upd.PricePerMeter.IsNegative() {
			return StockLot{}, shared.Validationf("price_per_meter must be >= 0")
		}
		rounded := upd.PricePerMeter.Round(2)
		upd.PricePerMeter = &rounded
	}
	var lot StockLot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, err = tx.UpdateLotDetails(ctx, id, upd)
		return err
	})
	if err != nil {
		return StockLot{}, err
	}
	s.record(ctx, "stock.updated", lot.ID, nil)
	return lot, nil
}

// DeleteLot soft-deletes a lot unless it still has stock an open order reserved.
func (s *Service) DeleteLot(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLot(ctx, id)
		if err != nil {
			return err
		}
		if lot.Remaining().IsPositive() {
			reserved, err := tx.HasOpenReservation(ctx, id)
			if err != nil {
				return err
			}
			if reserved {
				return ErrLotReserved
			}
		}
		return tx.SoftDeleteLot(ctx, id, s.now())
	})
	if err != nil {
		return err
	}
	s.record(ctx, "stock.deleted", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action string, lotID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "stock_lot",
		EntityID: strconv.FormatInt(lotID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "inventory audit failed", slog.String("action", action), slog.Any("error", err))
	}
}
