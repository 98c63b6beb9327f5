package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/silaibook/silaibook/internal/payments"
)

type paymentRepo struct{ s *Store }

type paymentTx struct{ s *Store }

// Payments returns the payment ledger repository.
func (s *Store) Payments() payments.RepositoryPort {
	return &paymentRepo{s: s}
}

func (r *paymentRepo) WithTx(ctx context.Context, fn func(context.Context, payments.TxRepository) error) error {
	return r.s.atomically(func() error {
		return fn(ctx, &paymentTx{s: r.s})
	})
}

func (r *paymentRepo) CustomerExists(_ context.Context, customerID int64) (bool, error) {
	var ok bool
	r.s.read(func() {
		c, found := r.s.data.customers[customerID]
		ok = found && c.IsActive
	})
	return ok, nil
}

func (r *paymentRepo) ListByCustomer(ctx context.Context, customerID int64) ([]payments.Record, error) {
	var out []payments.Record
	r.s.read(func() {
		out, _ = (&paymentTx{s: r.s}).ListByCustomer(ctx, customerID)
	})
	return out, nil
}

func (r *paymentRepo) ListAll(_ context.Context) ([]payments.Record, error) {
	var out []payments.Record
	r.s.read(func() {
		for _, rec := range r.s.data.payments {
			rec.CustomerName = r.s.data.customers[rec.CustomerID].Name
			out = append(out, rec)
		}
	})
	slices.SortFunc(out, func(a, b payments.Record) int {
		if c := cmp.Compare(a.CustomerID, b.CustomerID); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *paymentTx) LockCustomer(_ context.Context, customerID int64) error {
	c, ok := t.s.data.customers[customerID]
	if !ok || !c.IsActive {
		return payments.ErrCustomerNotFound
	}
	return nil
}

func (t *paymentTx) ListByCustomer(_ context.Context, customerID int64) ([]payments.Record, error) {
	var out []payments.Record
	name := t.s.data.customers[customerID].Name
	for _, rec := range t.s.data.payments {
		if rec.CustomerID == customerID {
			rec.CustomerName = name
			out = append(out, rec)
		}
	}
	payments.SortRecords(out)
	return out, nil
}

func (t *paymentTx) Get(_ context.Context, id int64) (payments.Record, error) {
	rec, ok := t.s.data.payments[id]
	if !ok {
		return payments.Record{}, payments.ErrPaymentNotFound
	}
	rec.CustomerName = t.s.data.customers[rec.CustomerID].Name
	return rec, nil
}

func (t *paymentTx) Insert(_ context.Context, rec payments.Record) (payments.Record, error) {
	if _, ok := t.s.data.customers[rec.CustomerID]; !ok {
		return payments.Record{}, payments.ErrCustomerNotFound
	}
	t.s.data.seq.payment++
	rec.ID = t.s.data.seq.payment
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.s.now()
	}
	t.s.data.payments[rec.ID] = rec
	return rec, nil
}

func (t *paymentTx) Delete(_ context.Context, id int64) error {
	if _, ok := t.s.data.payments[id]; !ok {
		return payments.ErrPaymentNotFound
	}
	delete(t.s.data.payments, id)
	return nil
}
