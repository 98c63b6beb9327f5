package orders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/silaibook/silaibook/internal/platform/httpx"
)

// Handler exposes order reads and plain status changes. Creation and ready
// confirmation span several ledgers and are served by the fulfillment handler.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the orders handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.handleList)
	r.Get("/orders/{id}", h.handleGet)
	r.Put("/orders/{id}/status", h.handleAdvance)
	r.Post("/orders/{id}/deliver", h.handleDeliver)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryID(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.List(r.Context(), ListFilter{
		Status:     Status(r.URL.Query().Get("status")),
		CustomerID: customerID,
		Limit:      httpx.QueryLimit(r, 50),
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, "list orders", err)
		return
	}
	if list == nil {
		list = []Order{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type advanceRequest struct {
	Status Status `json:"status" validate:"required"`
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req advanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validate, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.AdvanceStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.Fail(w, r, h.logger, "advance order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Deliver(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "deliver order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
