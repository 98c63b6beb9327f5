package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/shared"
)

// Status is a production stage.
type Status string

const (
	StatusReceived  Status = "Received"
	StatusCutting   Status = "Cutting"
	StatusStitching Status = "Stitching"
	StatusFinishing Status = "Finishing"
	StatusReady     Status = "Ready"
	StatusDelivered Status = "Delivered"
)

var statusSequence = []Status{StatusReceived, StatusCutting, StatusStitching, StatusFinishing, StatusReady, StatusDelivered}

// Rank is the position of s in the production sequence, or -1 when unknown.
func (s Status) Rank() int {
	for i, st := range statusSequence {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s.Rank() >= 0 }

// Production reports whether s is a stage reachable through a plain status change.
func (s Status) Production() bool {
	return s.Valid() && s.Rank() < StatusReady.Rank()
}

// CheckAdvance validates a generic forward move. Ready and Delivered have
// dedicated operations and are never accepted here.
func CheckAdvance(from, to Status) error {
	if !to.Valid() {
		return shared.Validationf("unknown status %q", to)
	}
	if !to.Production() {
		return fmt.Errorf("%w: %s can only be reached through its dedicated operation", shared.ErrIllegalTransition, to)
	}
	if to.Rank() <= from.Rank() {
		return fmt.Errorf("%w: %s -> %s", shared.ErrIllegalTransition, from, to)
	}
	return nil
}

// Priority orders work on the cutting table.
type Priority string

const (
	PriorityNormal  Priority = "Normal"
	PriorityUrgent  Priority = "Urgent"
	PriorityExpress Priority = "Express"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityUrgent, PriorityExpress:
		return true
	}
	return false
}

// Reservation is advisory bookkeeping of cloth an order intends to consume.
type Reservation struct {
	StockLotID int64           `json:"stock_lot_id" validate:"required"`
	Meters     decimal.Decimal `json:"meters" validate:"gt=0"`
}

// StatusChange is one entry of the order's status history.
type StatusChange struct {
	Status    Status    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

// Order is one production job.
type Order struct {
	ID             int64             `json:"id"`
	OrderNumber    string            `json:"order_number"`
	CustomerID     int64             `json:"customer_id"`
	CustomerName   string            `json:"customer_name"`
	CustomerMobile string            `json:"customer_mobile"`
	OrderType      string            `json:"order_type"`
	Status         Status            `json:"status"`
	Priority       Priority          `json:"priority"`
	Measurements   map[string]string `json:"measurements,omitempty"`
	DeliveryDate   time.Time         `json:"delivery_date"`
	Price          decimal.Decimal   `json:"price"`
	AdvanceAmount  decimal.Decimal   `json:"advance_amount"`
	Reservations   []Reservation     `json:"cloth_reservations"`
	Consumed       bool              `json:"consumed"`
	ReadyAt        *time.Time        `json:"ready_at,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	History        []StatusChange    `json:"status_history,omitempty"`
}

// NewOrder carries the validated fields of an order about to be inserted.
type NewOrder struct {
	CustomerID     int64
	CustomerName   string
	CustomerMobile string
	OrderType      string
	Priority       Priority
	Measurements   map[string]string
	DeliveryDate   time.Time
	Price          decimal.Decimal
	AdvanceAmount  decimal.Decimal
	Reservations   []Reservation
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status     Status
	CustomerID int64
	Limit      int
	Offset     int
}

var (
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = fmt.Errorf("%w: order", shared.ErrNotFound)
	// ErrStaleStatus indicates a concurrent writer moved the order first.
	ErrStaleStatus = fmt.Errorf("%w: order status changed concurrently, reload and retry", shared.ErrConflict)
)

// FormatOrderNumber renders ORD-<year>-<seq>.
func FormatOrderNumber(year int, seq int64) string {
	return fmt.Sprintf("ORD-%d-%04d", year, seq)
}

// ReservedMeters totals the reservations per lot, preserving first-seen order.
func ReservedMeters(reservations []Reservation) []Reservation {
	index := make(map[int64]int, len(reservations))
	var out []Reservation
	for _, r := range reservations {
		if i, ok := index[r.StockLotID]; ok {
			out[i].Meters = out[i].Meters.Add(r.Meters)
			continue
		}
		index[r.StockLotID] = len(out)
		out = append(out, r)
	}
	return out
}
