package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/silaibook/silaibook/internal/customers"
)

type customerRepo struct {
	s    *Store
	inTx bool
}

// Customers returns the customer directory repository.
func (s *Store) Customers() customers.Repository {
	return &customerRepo{s: s}
}

func (r *customerRepo) guard(fn func() error) error {
	if r.inTx {
		return fn()
	}
	return r.s.atomically(fn)
}

func (r *customerRepo) WithTx(ctx context.Context, fn func(context.Context, customers.Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.s.atomically(func() error {
		return fn(ctx, &customerRepo{s: r.s, inTx: true})
	})
}

func (r *customerRepo) Get(_ context.Context, id int64) (*customers.Customer, error) {
	var out *customers.Customer
	err := r.guard(func() error {
		c, ok := r.s.data.customers[id]
		if !ok {
			return customers.ErrNotFound
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *customerRepo) GetByMobile(_ context.Context, mobile string) (*customers.Customer, error) {
	var out *customers.Customer
	err := r.guard(func() error {
		for _, c := range r.s.data.customers {
			if c.Mobile == mobile {
				out = &c
				return nil
			}
		}
		return customers.ErrNotFound
	})
	return out, err
}

func (r *customerRepo) List(_ context.Context, req customers.ListCustomersRequest) ([]customers.Customer, error) {
	var out []customers.Customer
	err := r.guard(func() error {
		search := strings.ToLower(req.Search)
		for _, c := range r.s.data.customers {
			if search != "" && !strings.Contains(strings.ToLower(c.Name), search) && !strings.Contains(c.Mobile, search) {
				continue
			}
			if req.IsActive != nil && c.IsActive != *req.IsActive {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b customers.Customer) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	if req.Offset >= len(out) {
		return nil, err
	}
	out = out[req.Offset:]
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, err
}

func (r *customerRepo) Create(_ context.Context, c customers.Customer) (int64, error) {
	var id int64
	err := r.guard(func() error {
		for _, existing := range r.s.data.customers {
			if existing.Mobile == c.Mobile {
				return customers.ErrAlreadyExists
			}
		}
		r.s.data.seq.customer++
		c.ID = r.s.data.seq.customer
		c.CreatedAt = r.s.now()
		r.s.data.customers[c.ID] = c
		id = c.ID
		return nil
	})
	return id, err
}

func (r *customerRepo) Update(_ context.Context, id int64, req customers.UpdateCustomerRequest) error {
	return r.guard(func() error {
		c, ok := r.s.data.customers[id]
		if !ok {
			return customers.ErrNotFound
		}
		if req.Mobile != nil {
			for _, other := range r.s.data.customers {
				if other.ID != id && other.Mobile == *req.Mobile {
					return customers.ErrAlreadyExists
				}
			}
			c.Mobile = *req.Mobile
		}
		if req.Name != nil {
			c.Name = *req.Name
		}
		if req.Category != nil {
			c.Category = *req.Category
		}
		if req.IsActive != nil {
			c.IsActive = *req.IsActive
		}
		r.s.data.customers[id] = c
		return nil
	})
}
