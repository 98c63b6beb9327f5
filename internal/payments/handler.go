package payments

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/silaibook/silaibook/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the payment ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the payments handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.handleRecord)
	r.Delete("/payments/{id}", h.handleDelete)
	r.Get("/payments/summaries", h.handleSummaries)
	r.Get("/customers/{id}/balance", h.handleBalance)
	r.Get("/customers/{id}/payments", h.handleCustomerPayments)
}

type recordResponse struct {
	Payment Record  `json:"payment"`
	Balance Balance `json:"balance"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var input PaymentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validate, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, bal, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		httpx.Fail(w, r, h.logger, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, recordResponse{Payment: rec, Balance: bal})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bal, err := h.service.DeletePayment(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "delete payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) handleSummaries(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.CustomerSummaries(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, "customer summaries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bal, err := h.service.CustomerBalance(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "customer balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) handleCustomerPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListCustomerPayments(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "customer payments", err)
		return
	}
	if list == nil {
		list = []Record{}
	}
	httpx.JSON(w, http.StatusOK, list)
}
