package fulfillment

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/orders"
	"github.com/silaibook/silaibook/internal/payments"
	"github.com/silaibook/silaibook/internal/platform/httpx"
	"github.com/silaibook/silaibook/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler serves the cross-ledger order endpoints.
type Handler struct {
	logger       *slog.Logger
	orchestrator *Orchestrator
	validate     *validator.Validate
}

// NewHandler constructs the fulfillment handler.
func NewHandler(logger *slog.Logger, orchestrator *Orchestrator, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, orchestrator: orchestrator, validate: validate}
}

// MountRoutes registers order creation and ready confirmation.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.handleCreate)
	r.Post("/orders/{id}/ready", h.handleReady)
}

type createOrderRequest struct {
	CustomerID     int64                `json:"customer_id" validate:"required"`
	OrderType      string               `json:"order_type" validate:"required,max=80"`
	Priority       orders.Priority      `json:"priority,omitempty"`
	Measurements   map[string]string    `json:"measurements,omitempty"`
	Reservations   []orders.Reservation `json:"cloth_reservations" validate:"required,min=1,dive"`
	DeliveryDate   string               `json:"delivery_date" validate:"required,datetime=2006-01-02"`
	Price          decimal.Decimal      `json:"price" validate:"gte=0"`
	AdvanceAmount  decimal.Decimal      `json:"advance_amount" validate:"gte=0"`
	PaymentMode    payments.Mode        `json:"payment_mode,omitempty"`
	PaymentDueDate string               `json:"payment_due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func (req createOrderRequest) toInput() (CreateOrderInput, error) {
	delivery, err := time.Parse(dateLayout, req.DeliveryDate)
	if err != nil {
		return CreateOrderInput{}, shared.Validationf("delivery_date must be YYYY-MM-DD")
	}
	input := CreateOrderInput{
		CustomerID:    req.CustomerID,
		OrderType:     req.OrderType,
		Priority:      req.Priority,
		Measurements:  req.Measurements,
		Reservations:  req.Reservations,
		DeliveryDate:  delivery,
		Price:         req.Price,
		AdvanceAmount: req.AdvanceAmount,
		PaymentMode:   req.PaymentMode,
	}
	if req.PaymentDueDate != "" {
		due, err := time.Parse(dateLayout, req.PaymentDueDate)
		if err != nil {
			return CreateOrderInput{}, shared.Validationf("payment_due_date must be YYYY-MM-DD")
		}
		input.PaymentDueDate = &due
	} else {
		input.PaymentDueDate = &delivery
	}
	return input, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validate, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	order, err := h.orchestrator.CreateOrder(r.Context(), input)
	if err != nil {
		httpx.Fail(w, r, h.logger, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.orchestrator.ConfirmReady(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "confirm ready", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
