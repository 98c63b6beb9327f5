package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/silaibook/silaibook/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service enforces the order state machine.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// Validate checks the order fields that need no other ledger.
func (n *NewOrder) Validate() error {
	n.OrderType = strings.TrimSpace(n.OrderType)
	if n.CustomerID <= 0 {
		return shared.Validationf("customer_id required")
	}
	if n.OrderType == "" {
		return shared.Validationf("order_type required")
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if !n.Priority.Valid() {
		return shared.Validationf("unknown priority %q", n.Priority)
	}
	if n.DeliveryDate.IsZero() {
		return shared.Validationf("delivery_date required")
	}
	if n.Price.IsNegative() || n.AdvanceAmount.IsNegative() {
		return shared.Validationf("price and advance_amount must be >= 0")
	}
	if !n.Price.Equal(n.Price.Round(2)) || !n.AdvanceAmount.Equal(n.AdvanceAmount.Round(2)) {
		return shared.Validationf("amounts support at most 2 decimal places")
	}
	if n.AdvanceAmount.GreaterThan(n.Price) {
		return fmt.Errorf("%w: advance_amount exceeds price", shared.ErrOverpaymentRejected)
	}
	if len(n.Reservations) == 0 {
		return shared.Validationf("cloth_reservations required")
	}
	for i, res := range n.Reservations {
		if res.StockLotID <= 0 {
			return shared.Validationf("cloth_reservations[%d].stock_lot_id required", i)
		}
		if !res.Meters.IsPositive() {
			return shared.Validationf("cloth_reservations[%d].meters must be greater than 0", i)
		}
	}
	return nil
}

// CreateWithin inserts a validated order with status Received.
func (s *Service) CreateWithin(ctx context.Context, tx TxRepository, n NewOrder) (Order, error) {
	if err := n.Validate(); err != nil {
		return Order{}, err
	}
	at := s.now()
	number, err := tx.NextOrderNumber(ctx, at)
	if err != nil {
		return Order{}, fmt.Errorf("orders: allocate number: %w", err)
	}
	return tx.Insert(ctx, n, number, shared.ActorFromContext(ctx), at)
}

// AdvanceStatus moves an order forward to a production stage before Ready.
func (s *Service) AdvanceStatus(ctx context.Context, id int64, to Status) (Order, error) {
	var (
		order Order
		from  Status
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckAdvance(current.Status, to); err != nil {
			return err
		}
		from = current.Status
		order, err = tx.UpdateStatus(ctx, id, current.Status, to, shared.ActorFromContext(ctx), s.now())
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "order.status_changed", order, map[string]any{"from": from, "to": to})
	return order, nil
}

// Deliver hands a Ready order to the customer.
func (s *Service) Deliver(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusReady {
			return fmt.Errorf("%w: %s -> %s, order must be %s", shared.ErrIllegalTransition, current.Status, StatusDelivered, StatusReady)
		}
		order, err = tx.UpdateStatus(ctx, id, StatusReady, StatusDelivered, shared.ActorFromContext(ctx), s.now())
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, "order.delivered", order, nil)
	return order, nil
}

// BeginReadyWithin locks the order and checks the confirmation preconditions.
// done is true when the order was already confirmed and nothing is left to do.
func (s *Service) BeginReadyWithin(ctx context.Context, tx TxRepository, id int64) (order Order, done bool, err error) {
	order, err = tx.GetForUpdate(ctx, id)
	if err != nil {
		return Order{}, false, err
	}
	if order.Consumed {
		return order, true, nil
	}
	if order.Status != StatusFinishing {
		return Order{}, false, fmt.Errorf("%w: %s -> %s, order must be %s", shared.ErrIllegalTransition, order.Status, StatusReady, StatusFinishing)
	}
	if len(order.Reservations) == 0 {
		return Order{}, false, shared.Validationf("order %s has no cloth reservations", order.OrderNumber)
	}
	return order, false, nil
}

// CompleteReadyWithin flips consumed and enters Ready. Stock must already be consumed in tx.
func (s *Service) CompleteReadyWithin(ctx context.Context, tx TxRepository, id int64) (Order, error) {
	return tx.MarkReady(ctx, id, shared.ActorFromContext(ctx), s.now())
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Validationf("unknown status %q", filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.List(ctx, filter)
}

// Record writes an audit entry for order.
func (s *Service) Record(ctx context.Context, action string, order Order, meta map[string]any) {
	s.record(ctx, action, order, meta)
}

func (s *Service) record(ctx context.Context, action string, order Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["order_number"] = order.OrderNumber
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(order.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "order audit failed", slog.String("action", action), slog.Any("error", err))
	}
}
