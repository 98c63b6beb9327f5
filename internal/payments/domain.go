package payments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/shared"
)

// Record is one immutable money event for a customer.
type Record struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customer_id"`
	CustomerName string          `json:"customer_name,omitempty"`
	OrderID      *int64          `json:"order_id,omitempty"`
	TotalBill    decimal.Decimal `json:"total_bill"`
	PaidAmount   decimal.Decimal `json:"paid_amount"`
	Mode         Mode            `json:"payment_mode"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Mode is how the money was received.
type Mode string

const (
	ModeCash   Mode = "Cash"
	ModeUPI    Mode = "UPI"
	ModeCard   Mode = "Card"
	ModeBank   Mode = "Bank"
	ModeCredit Mode = "Credit"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeCash, ModeUPI, ModeCard, ModeBank, ModeCredit:
		return true
	}
	return false
}

// Status is the derived debt status of a customer.
type Status string

const (
	StatusPaid    Status = "Paid"
	StatusPartial Status = "Partial"
	StatusUnpaid  Status = "Unpaid"
)

// Balance is the derived view of a customer's records. It is never stored.
type Balance struct {
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name,omitempty"`
	TotalBill       decimal.Decimal `json:"total_bill"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          Status          `json:"status"`
	LastPaymentAt   *time.Time      `json:"last_payment_at,omitempty"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
}

// PaymentInput records money received.
type PaymentInput struct {
	CustomerID int64           `json:"customer_id" validate:"required"`
	TotalBill  decimal.Decimal `json:"total_bill" validate:"gte=0"`
	PaidAmount decimal.Decimal `json:"paid_amount" validate:"gt=0"`
	Mode       Mode            `json:"payment_mode"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
}

// DebtInput opens a debt cycle for a new order.
type DebtInput struct {
	CustomerID int64
	OrderID    int64
	Price      decimal.Decimal
	Advance    decimal.Decimal
	Mode       Mode
	DueDate    *time.Time
}

var (
	// ErrPaymentNotFound indicates the payment does not exist.
	ErrPaymentNotFound = fmt.Errorf("%w: payment", shared.ErrNotFound)
	// ErrCustomerNotFound indicates the customer is unknown or inactive.
	ErrCustomerNotFound = fmt.Errorf("%w: customer", shared.ErrNotFound)
)

func validAmount(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return shared.Validationf("%s must be >= 0", field)
	}
	if !v.Equal(v.Round(2)) {
		return shared.Validationf("%s supports at most 2 decimal places", field)
	}
	return nil
}
