package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/shared"
)

// StockLot is one received batch of fabric from a dealer.
type StockLot struct {
	ID            int64           `json:"id"`
	DealerName    string          `json:"dealer_name"`
	Category      string          `json:"category"`
	TotalMeters   decimal.Decimal `json:"total_meters"`
	UsedMeters    decimal.Decimal `json:"used_meters"`
	PricePerMeter decimal.Decimal `json:"price_per_meter"`
	ReceivedAt    time.Time       `json:"received_at"`
	CreatedBy     string          `json:"created_by,omitempty"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

// Remaining reports meters still available in the lot.
func (l StockLot) Remaining() decimal.Decimal {
	return l.TotalMeters.Sub(l.UsedMeters)
}

// Deleted reports whether the lot was retired.
func (l StockLot) Deleted() bool {
	return l.DeletedAt != nil
}

// UsageRecord is an append-only log entry written for every consumption.
type UsageRecord struct {
	ID              int64           `json:"id"`
	StockLotID      int64           `json:"stock_lot_id"`
	OrderID         *int64          `json:"order_id,omitempty"`
	MetersUsed      decimal.Decimal `json:"meters_used"`
	RemainingMeters decimal.Decimal `json:"remaining_meters"`
	Actor           string          `json:"actor"`
	UsedAt          time.Time       `json:"used_at"`
}

// ReceiveInput registers a new lot.
type ReceiveInput struct {
	DealerName    string          `json:"dealer_name" validate:"required,max=120"`
	Category      string          `json:"category" validate:"required,max=60"`
	TotalMeters   decimal.Decimal `json:"total_meters" validate:"gt=0"`
	PricePerMeter decimal.Decimal `json:"price_per_meter" validate:"gte=0"`
	ReceivedAt    *time.Time      `json:"received_at,omitempty"`
}

// LotDetailsUpdate edits descriptive fields. Quantities are immutable once received.
type LotDetailsUpdate struct {
	DealerName    *string          `json:"dealer_name,omitempty" validate:"omitempty,min=1,max=120"`
	Category      *string          `json:"category,omitempty" validate:"omitempty,min=1,max=60"`
	PricePerMeter *decimal.Decimal `json:"price_per_meter,omitempty"`
}

// ConsumeInput deducts meters from a lot.
type ConsumeInput struct {
	StockLotID int64           `json:"stock_lot_id" validate:"required"`
	Meters     decimal.Decimal `json:"meters" validate:"gt=0"`
	OrderID    *int64          `json:"order_id,omitempty"`
}

// LotFilter narrows lot listings.
type LotFilter struct {
	DealerName     string
	Category       string
	MaxRemaining   *decimal.Decimal
	IncludeDeleted bool
	Limit          int
}

// UsageFilter narrows usage history.
type UsageFilter struct {
	StockLotID int64
	OrderID    int64
	Limit      int
}

// GroupBy selects the aggregation dimension.
type GroupBy string

const (
	// GroupByDealer aggregates per dealer.
	GroupByDealer GroupBy = "dealer"
	// GroupByCategory aggregates per fabric category.
	GroupByCategory GroupBy = "category"
)

// Aggregate totals a group of live lots.
type Aggregate struct {
	Key             string          `json:"key"`
	Lots            int             `json:"lots"`
	TotalMeters     decimal.Decimal `json:"total_meters"`
	UsedMeters      decimal.Decimal `json:"used_meters"`
	RemainingMeters decimal.Decimal `json:"remaining_meters"`
	StockValue      decimal.Decimal `json:"stock_value"`
}

var (
	// ErrLotNotFound indicates the lot does not exist or was deleted.
	ErrLotNotFound = fmt.Errorf("%w: stock lot", shared.ErrNotFound)
	// ErrLotReserved blocks deleting a lot an open order still needs.
	ErrLotReserved = fmt.Errorf("%w: stock lot is reserved by an open order", shared.ErrConflict)
)

// InsufficientStockError carries the shortfall of a rejected reservation or consumption.
type InsufficientStockError struct {
	StockLotID int64
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: lot %d has %s m, requested %s m", e.StockLotID, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

// Unwrap ties the error to the shared taxonomy.
func (e *InsufficientStockError) Unwrap() error { return shared.ErrInsufficientStock }

// ValidateMeters rejects non-positive quantities and sub-centimeter precision.
func ValidateMeters(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return shared.Validationf("%s must be greater than 0", field)
	}
	if !v.Equal(v.Round(2)) {
		return shared.Validationf("%s supports at most 2 decimal places", field)
	}
	return nil
}
