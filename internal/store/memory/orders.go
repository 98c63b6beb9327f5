package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"time"

	"github.com/silaibook/silaibook/internal/orders"
)

type orderRepo struct{ s *Store }

type orderTx struct{ s *Store }

// Orders returns the order workflow repository.
func (s *Store) Orders() orders.RepositoryPort {
	return &orderRepo{s: s}
}

func copyOrder(o orders.Order) orders.Order {
	o.Reservations = slices.Clone(o.Reservations)
	o.History = slices.Clone(o.History)
	o.Measurements = maps.Clone(o.Measurements)
	return o
}

func (r *orderRepo) WithTx(ctx context.Context, fn func(context.Context, orders.TxRepository) error) error {
	return r.s.atomically(func() error {
		return fn(ctx, &orderTx{s: r.s})
	})
}

func (r *orderRepo) Get(_ context.Context, id int64) (orders.Order, error) {
	var (
		o  orders.Order
		ok bool
	)
	r.s.read(func() { o, ok = r.s.data.orders[id] })
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (r *orderRepo) List(_ context.Context, filter orders.ListFilter) ([]orders.Order, error) {
	var out []orders.Order
	r.s.read(func() {
		for _, o := range r.s.data.orders {
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			if filter.CustomerID != 0 && o.CustomerID != filter.CustomerID {
				continue
			}
			o = copyOrder(o)
			o.History = nil
			out = append(out, o)
		}
	})
	slices.SortFunc(out, func(a, b orders.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *orderTx) NextOrderNumber(_ context.Context, at time.Time) (string, error) {
	t.s.data.seq.orderNumber++
	return orders.FormatOrderNumber(at.Year(), t.s.data.seq.orderNumber), nil
}

func (t *orderTx) Insert(_ context.Context, n orders.NewOrder, number, actor string, at time.Time) (orders.Order, error) {
	t.s.data.seq.order++
	o := orders.Order{
		ID:             t.s.data.seq.order,
		OrderNumber:    number,
		CustomerID:     n.CustomerID,
		CustomerName:   n.CustomerName,
		CustomerMobile: n.CustomerMobile,
		OrderType:      n.OrderType,
		Status:         orders.StatusReceived,
		Priority:       n.Priority,
		Measurements:   maps.Clone(n.Measurements),
		DeliveryDate:   n.DeliveryDate,
		Price:          n.Price,
		AdvanceAmount:  n.AdvanceAmount,
		Reservations:   slices.Clone(n.Reservations),
		CreatedAt:      at,
		UpdatedAt:      at,
		History:        []orders.StatusChange{{Status: orders.StatusReceived, ChangedBy: actor, ChangedAt: at}},
	}
	t.s.data.orders[o.ID] = o
	return copyOrder(o), nil
}

func (t *orderTx) GetForUpdate(_ context.Context, id int64) (orders.Order, error) {
	o, ok := t.s.data.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (t *orderTx) UpdateStatus(_ context.Context, id int64, from, to orders.Status, actor string, at time.Time) (orders.Order, error) {
	o, ok := t.s.data.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	if o.Status != from {
		return orders.Order{}, orders.ErrStaleStatus
	}
	o = copyOrder(o)
	o.Status = to
	o.UpdatedAt = at
	if to == orders.StatusDelivered {
		o.DeliveredAt = &at
	}
	o.History = append(o.History, orders.StatusChange{Status: to, ChangedBy: actor, ChangedAt: at})
	t.s.data.orders[id] = o
	return copyOrder(o), nil
}

func (t *orderTx) MarkReady(_ context.Context, id int64, actor string, at time.Time) (orders.Order, error) {
	o, ok := t.s.data.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	if o.Status != orders.StatusFinishing || o.Consumed {
		return orders.Order{}, orders.ErrStaleStatus
	}
	o = copyOrder(o)
	o.Status = orders.StatusReady
	o.Consumed = true
	o.ReadyAt = &at
	o.UpdatedAt = at
	o.History = append(o.History, orders.StatusChange{Status: orders.StatusReady, ChangedBy: actor, ChangedAt: at})
	t.s.data.orders[id] = o
	return copyOrder(o), nil
}
