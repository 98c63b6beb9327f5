package payments

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// SortRecords orders records by insertion. Ids come from a sequence assigned
// under the customer lock, so they follow the order the ledger accepted the
// records even when host clocks disagree. created_at only breaks ties between
// records that have no id yet.
func SortRecords(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		if c := cmp.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// ComputeBalance derives a customer's balance. The current debt cycle starts at
// the most recent record with a non-zero total_bill; paid_amount sums every
// record from there on. records must be sorted with SortRecords.
func ComputeBalance(customerID int64, records []Record) Balance {
	b := Balance{
		CustomerID:      customerID,
		TotalBill:       decimal.Zero,
		PaidAmount:      decimal.Zero,
		RemainingAmount: decimal.Zero,
	}
	start := 0
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].TotalBill.IsPositive() {
			start = i
			b.TotalBill = records[i].TotalBill
			break
		}
	}
	for _, r := range records[start:] {
		b.PaidAmount = b.PaidAmount.Add(r.PaidAmount)
		if r.DueDate != nil {
			b.DueDate = r.DueDate
		}
	}
	for _, r := range records {
		if r.PaidAmount.IsPositive() {
			at := r.CreatedAt
			b.LastPaymentAt = &at
		}
		if b.CustomerName == "" {
			b.CustomerName = r.CustomerName
		}
	}
	if remaining := b.TotalBill.Sub(b.PaidAmount); remaining.IsPositive() {
		b.RemainingAmount = remaining
	}
	b.Status = statusOf(b)
	return b
}

func statusOf(b Balance) Status {
	switch {
	case !b.RemainingAmount.IsPositive():
		return StatusPaid
	case b.PaidAmount.IsPositive() && b.PaidAmount.LessThan(b.TotalBill):
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// Summarize groups records by customer once and derives every balance.
// Customers are returned in first-seen order of the input.
func Summarize(records []Record) []Balance {
	groups := make(map[int64][]Record)
	var order []int64
	for _, r := range records {
		if _, ok := groups[r.CustomerID]; !ok {
			order = append(order, r.CustomerID)
		}
		groups[r.CustomerID] = append(groups[r.CustomerID], r)
	}
	out := make([]Balance, 0, len(order))
	for _, id := range order {
		group := groups[id]
		SortRecords(group)
		out = append(out, ComputeBalance(id, group))
	}
	return out
}

// Overdue reports whether b has money outstanding past its due date.
func (b Balance) Overdue(now time.Time) bool {
	return b.RemainingAmount.IsPositive() && b.DueDate != nil && b.DueDate.Before(now)
}
