package payments

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/silaibook/silaibook/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CustomerExists(ctx context.Context, customerID int64) (bool, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the append-only payment log and derives balances from it.
type Service struct {
	repo   RepositoryPort
	locker shared.Locker
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
	reads  singleflight.Group
}

// NewService builds Service. locker serialises writers per customer across
// processes; the customer row lock covers writers inside one database.
func NewService(repo RepositoryPort, locker shared.Locker, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, audit: audit, logger: logger, now: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// AcquireCustomer takes the per-customer write lock.
func (s *Service) AcquireCustomer(ctx context.Context, customerID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, shared.CustomerLockKey(customerID))
}

// RecordPayment appends a payment after checking it against the current balance.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (Record, Balance, error) {
	if input.CustomerID <= 0 {
		return Record{}, Balance{}, shared.Validationf("customer_id required")
	}
	if !input.PaidAmount.IsPositive() {
		return Record{}, Balance{}, shared.Validationf("paid_amount must be greater than 0")
	}
	if err := validAmount("paid_amount", input.PaidAmount); err != nil {
		return Record{}, Balance{}, err
	}
	if err := validAmount("total_bill", input.TotalBill); err != nil {
		return Record{}, Balance{}, err
	}
	if input.Mode == "" {
		input.Mode = ModeCash
	}
	if !input.Mode.Valid() {
		return Record{}, Balance{}, shared.Validationf("unknown payment_mode %q", input.Mode)
	}

	release, err := s.AcquireCustomer(ctx, input.CustomerID)
	if err != nil {
		return Record{}, Balance{}, err
	}
	defer release()

	var (
		rec   Record
		after Balance
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockCustomer(ctx, input.CustomerID); err != nil {
			return err
		}
		records, err := tx.ListByCustomer(ctx, input.CustomerID)
		if err != nil {
			return err
		}
		SortRecords(records)
		if err := CheckPayment(ComputeBalance(input.CustomerID, records), input); err != nil {
			return err
		}
		rec, err = tx.Insert(ctx, Record{
			CustomerID: input.CustomerID,
			TotalBill:  input.TotalBill,
			PaidAmount: input.PaidAmount,
			Mode:       input.Mode,
			DueDate:    input.DueDate,
			CreatedBy:  shared.ActorFromContext(ctx),
			CreatedAt:  s.now(),
		})
		if err != nil {
			return err
		}
		records = append(records, rec)
		SortRecords(records)
		after = ComputeBalance(input.CustomerID, records)
		return nil
	})
	if err != nil {
		return Record{}, Balance{}, err
	}
	s.record(ctx, "payment.recorded", rec.ID, map[string]any{
		"customer_id": rec.CustomerID,
		"total_bill":  rec.TotalBill.String(),
		"paid_amount": rec.PaidAmount.String(),
		"remaining":   after.RemainingAmount.String(),
	})
	return rec, after, nil
}

// CheckPayment applies the recording rules to the balance before the payment.
// While money is owed the record may only pay it down; otherwise it must open
// a fresh bill no smaller than the amount paid.
func CheckPayment(current Balance, input PaymentInput) error {
	if current.RemainingAmount.IsPositive() {
		if !input.TotalBill.IsZero() {
			return shared.Validationf("total_bill must be 0 while %s is still owed", current.RemainingAmount.StringFixed(2))
		}
		if input.PaidAmount.GreaterThan(current.RemainingAmount) {
			return fmt.Errorf("%w: paid %s exceeds remaining %s", shared.ErrOverpaymentRejected,
				input.PaidAmount.StringFixed(2), current.RemainingAmount.StringFixed(2))
		}
		return nil
	}
	if !input.TotalBill.IsPositive() {
		return fmt.Errorf("%w: nothing is owed, a new total_bill is required", shared.ErrOverpaymentRejected)
	}
	if input.PaidAmount.GreaterThan(input.TotalBill) {
		return fmt.Errorf("%w: paid %s exceeds total_bill %s", shared.ErrOverpaymentRejected,
			input.PaidAmount.StringFixed(2), input.TotalBill.StringFixed(2))
	}
	return nil
}

// OpenDebtWithin starts a debt cycle for a new order inside a caller-owned
// transaction. Money still owed is carried into the new bill. The caller must
// hold AcquireCustomer. A zero bill writes nothing and returns a zero Record.
func (s *Service) OpenDebtWithin(ctx context.Context, tx TxRepository, input DebtInput) (Record, error) {
	if err := validAmount("price", input.Price); err != nil {
		return Record{}, err
	}
	if err := validAmount("advance_amount", input.Advance); err != nil {
		return Record{}, err
	}
	if input.Advance.GreaterThan(input.Price) {
		return Record{}, fmt.Errorf("%w: advance_amount exceeds price", shared.ErrOverpaymentRejected)
	}
	if input.Mode == "" {
		input.Mode = ModeCash
	}
	if err := tx.LockCustomer(ctx, input.CustomerID); err != nil {
		return Record{}, err
	}
	records, err := tx.ListByCustomer(ctx, input.CustomerID)
	if err != nil {
		return Record{}, err
	}
	SortRecords(records)
	current := ComputeBalance(input.CustomerID, records)
	total := input.Price.Add(current.RemainingAmount)
	if !total.IsPositive() {
		return Record{}, nil
	}
	orderID := input.OrderID
	return tx.Insert(ctx, Record{
		CustomerID: input.CustomerID,
		OrderID:    &orderID,
		TotalBill:  total,
		PaidAmount: input.Advance,
		Mode:       input.Mode,
		DueDate:    input.DueDate,
		CreatedBy:  shared.ActorFromContext(ctx),
		CreatedAt:  s.now(),
	})
}

// DeletePayment removes a mistaken record and returns the recomputed balance.
func (s *Service) DeletePayment(ctx context.Context, id int64) (Balance, error) {
	if id <= 0 {
		return Balance{}, shared.Validationf("payment id required")
	}
	var customerID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.Get(ctx, id)
		customerID = rec.CustomerID
		return err
	})
	if err != nil {
		return Balance{}, err
	}

	release, err := s.AcquireCustomer(ctx, customerID)
	if err != nil {
		return Balance{}, err
	}
	defer release()

	var (
		deleted Record
		after   Balance
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockCustomer(ctx, customerID); err != nil {
			return err
		}
		var err error
		if deleted, err = tx.Get(ctx, id); err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		records, err := tx.ListByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		SortRecords(records)
		after = ComputeBalance(customerID, records)
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	s.record(ctx, "payment.deleted", id, map[string]any{
		"customer_id": customerID,
		"total_bill":  deleted.TotalBill.String(),
		"paid_amount": deleted.PaidAmount.String(),
	})
	return after, nil
}

// CustomerBalance recomputes one customer's balance.
func (s *Service) CustomerBalance(ctx context.Context, customerID int64) (Balance, error) {
	records, err := s.customerRecords(ctx, customerID)
	if err != nil {
		return Balance{}, err
	}
	return ComputeBalance(customerID, records), nil
}

// ListCustomerPayments returns a customer's records newest first.
func (s *Service) ListCustomerPayments(ctx context.Context, customerID int64) ([]Record, error) {
	records, err := s.customerRecords(ctx, customerID)
	if err != nil {
		return nil, err
	}
	slices.Reverse(records)
	return records, nil
}

func (s *Service) customerRecords(ctx context.Context, customerID int64) ([]Record, error) {
	ok, err := s.repo.CustomerExists(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCustomerNotFound
	}
	records, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	SortRecords(records)
	return records, nil
}

// CustomerSummaries derives every customer's balance from one read of the log.
// Concurrent callers share a single in-flight read, which outlives any one
// caller's cancellation.
func (s *Service) CustomerSummaries(ctx context.Context) ([]Balance, error) {
	readCtx := context.WithoutCancel(ctx)
	v, err, _ := s.reads.Do("summaries", func() (any, error) {
		records, err := s.repo.ListAll(readCtx)
		if err != nil {
			return nil, err
		}
		return Summarize(records), nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]Balance)), nil
}

func (s *Service) record(ctx context.Context, action string, paymentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(paymentID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "payment audit failed", slog.String("action", action), slog.Any("error", err))
	}
}
