// Package memory keeps every ledger in process memory behind one mutex.
// A failed unit of work restores the snapshot taken when it began.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/silaibook/silaibook/internal/customers"
	"github.com/silaibook/silaibook/internal/inventory"
	"github.com/silaibook/silaibook/internal/orders"
	"github.com/silaibook/silaibook/internal/payments"
	"github.com/silaibook/silaibook/internal/shared"
)

type sequences struct {
	customer, lot, usage, order, orderNumber, payment int64
}

type state struct {
	customers map[int64]customers.Customer
	lots      map[int64]inventory.StockLot
	usage     []inventory.UsageRecord
	orders    map[int64]orders.Order
	payments  map[int64]payments.Record
	keys      map[string]string
	seq       sequences
}

func (st state) clone() state {
	return state{
		customers: maps.Clone(st.customers),
		lots:      maps.Clone(st.lots),
		usage:     slices.Clone(st.usage),
		orders:    maps.Clone(st.orders),
		payments:  maps.Clone(st.payments),
		keys:      maps.Clone(st.keys),
		seq:       st.seq,
	}
}

// Store holds all ledgers.
type Store struct {
	mu    sync.Mutex
	data  state
	audit []shared.AuditLog
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		data: state{
			customers: map[int64]customers.Customer{},
			lots:      map[int64]inventory.StockLot{},
			orders:    map[int64]orders.Order{},
			payments:  map[int64]payments.Record{},
			keys:      map[string]string{},
		},
		now: time.Now,
	}
}

// atomically runs fn under the store lock and restores the snapshot if fn fails.
func (s *Store) atomically(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.data.clone()
	if err := fn(); err != nil {
		s.data = snap
		return err
	}
	return nil
}

func (s *Store) read(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Record implements the audit port.
func (s *Store) Record(_ context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.At.IsZero() {
		log.At = s.now()
	}
	s.audit = append(s.audit, log)
	return nil
}

// AuditTrail returns recorded audit entries, optionally filtered by action.
func (s *Store) AuditTrail(action string) []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []shared.AuditLog
	for _, log := range s.audit {
		if action == "" || log.Action == action {
			out = append(out, log)
		}
	}
	return out
}

// CheckAndInsert implements the idempotency port.
func (s *Store) CheckAndInsert(_ context.Context, key, module string) error {
	if err := shared.CheckIdempotencyKey(key, module); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.data.keys[key] = module
	return nil
}

// Delete releases an idempotency key.
func (s *Store) Delete(_ context.Context, key string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.keys, key)
	return nil
}
