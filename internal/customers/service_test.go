package customers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/silaibook/silaibook/internal/customers"
	"github.com/silaibook/silaibook/internal/shared"
	"github.com/silaibook/silaibook/internal/store/memory"
)

func TestNormalizeMobile(t *testing.T) {
	got, err := customers.NormalizeMobile("098765 43210", "IN")
	require.NoError(t, err)
	require.Equal(t, "+919876543210", got)

	got, err = customers.NormalizeMobile("+91-98765-43210", "US")
	require.NoError(t, err)
	require.Equal(t, "+919876543210", got)

	_, err = customers.NormalizeMobile("12", "IN")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = customers.NormalizeMobile("   ", "IN")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsDuplicateMobile(t *testing.T) {
	svc := customers.NewService(memory.New().Customers(), "IN")
	ctx := context.Background()

	first, err := svc.Create(ctx, customers.CreateCustomerRequest{Name: " Meera ", Mobile: "9876543210", Category: "Regular"})
	require.NoError(t, err)
	require.Equal(t, "Meera", first.Name)
	require.Equal(t, "+919876543210", first.Mobile)
	require.True(t, first.IsActive)

	_, err = svc.Create(ctx, customers.CreateCustomerRequest{Name: "Someone", Mobile: "+91 98765 43210"})
	require.ErrorIs(t, err, customers.ErrAlreadyExists)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestGetHidesInactiveCustomers(t *testing.T) {
	svc := customers.NewService(memory.New().Customers(), "IN")
	ctx := context.Background()
	c, err := svc.Create(ctx, customers.CreateCustomerRequest{Name: "Ravi", Mobile: "9812345678"})
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(ctx, c.ID, customers.UpdateCustomerRequest{IsActive: &inactive})
	require.NoError(t, err)

	_, err = svc.Get(ctx, c.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListSearch(t *testing.T) {
	svc := customers.NewService(memory.New().Customers(), "IN")
	ctx := context.Background()
	for _, req := range []customers.CreateCustomerRequest{
		{Name: "Anita Rao", Mobile: "9811111111"},
		{Name: "Arjun Das", Mobile: "9822222222"},
		{Name: "Kavya", Mobile: "9833333333"},
	} {
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, customers.ListCustomersRequest{Search: "ar"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Arjun Das", list[0].Name)

	list, err = svc.List(ctx, customers.ListCustomersRequest{Search: "98333"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Kavya", list[0].Name)
}
