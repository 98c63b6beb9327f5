package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"

	"github.com/silaibook/silaibook/internal/shared"
)

type Service struct {
	repo   Repository
	region string
}

// NewService builds the directory. region is the ISO country used to parse
// numbers typed without a country code.
func NewService(repo Repository, region string) *Service {
	if region == "" {
		region = "IN"
	}
	return &Service{repo: repo, region: strings.ToUpper(region)}
}

// NormalizeMobile parses raw into E.164.
func NormalizeMobile(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", shared.Validationf("mobile required")
	}
	num, err := libphonenumber.Parse(raw, region)
	if err != nil {
		return "", shared.Validationf("mobile %q is not a phone number", raw)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", shared.Validationf("mobile %q is not valid for region %s", raw, region)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, shared.Validationf("name required")
	}
	mobile, err := NormalizeMobile(req.Mobile, s.region)
	if err != nil {
		return nil, err
	}

	customer := Customer{
		Name:     name,
		Mobile:   mobile,
		Category: strings.TrimSpace(req.Category),
		IsActive: true,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := repo.GetByMobile(ctx, mobile)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("check existing customer: %w", err)
		}
		if existing != nil {
			return ErrAlreadyExists
		}
		id, err := repo.Create(ctx, customer)
		if err != nil {
			return err
		}
		created, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		customer = *created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, shared.Validationf("name must not be blank")
		}
		req.Name = &name
	}
	if req.Mobile != nil {
		mobile, err := NormalizeMobile(*req.Mobile, s.region)
		if err != nil {
			return nil, err
		}
		req.Mobile = &mobile
	}
	var updated *Customer
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if req.Mobile != nil {
			existing, err := repo.GetByMobile(ctx, *req.Mobile)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if existing != nil && existing.ID != id {
				return ErrAlreadyExists
			}
		}
		if err := repo.Update(ctx, id, req); err != nil {
			return err
		}
		var err error
		updated, err = repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Get returns an active customer.
func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, error) {
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	req.Search = strings.TrimSpace(req.Search)
	return s.repo.List(ctx, req)
}
