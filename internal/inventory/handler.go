package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/silaibook/silaibook/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stock-lots", func(r chi.Router) {
		r.Post("/", h.handleReceive)
		r.Get("/", h.handleList)
		r.Get("/low", h.handleLowStock)
		r.Get("/aggregates", h.handleAggregates)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/consume", h.handleConsume)
	})
	r.Get("/stock-usage", h.handleUsage)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var input ReceiveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validate, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lot, err := h.service.ReceiveStock(r.Context(), input)
	if err != nil {
		h.fail(w, r, "receive stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lot)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lots, err := h.service.ListLots(r.Context(), LotFilter{
		DealerName: q.Get("dealer"),
		Category:   q.Get("category"),
		Limit:      httpx.QueryLimit(r, 200),
	})
	if err != nil {
		h.fail(w, r, "list stock lots", err)
		return
	}
	if lots == nil {
		lots = []StockLot{}
	}
	httpx.JSON(w, http.StatusOK, lots)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	lot, err := h.service.GetLot(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get stock lot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

type lowStockResponse struct {
	Threshold string     `json:"threshold"`
	Lots      []StockLot `json:"lots"`
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := httpx.QueryDecimal(r, "threshold")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := lowStockResponse{Threshold: h.service.LowStockThreshold().String(), Lots: []StockLot{}}
	if threshold != nil {
		resp.Threshold = threshold.String()
	}
	for lot, err := range h.service.LowStockReport(r.Context(), threshold) {
		if err != nil {
			h.fail(w, r, "low stock report", err)
			return
		}
		resp.Lots = append(resp.Lots, lot)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.service.Aggregate(r.Context(), GroupBy(r.URL.Query().Get("by")))
	if err != nil {
		h.fail(w, r, "aggregate stock", err)
		return
	}
	if aggs == nil {
		aggs = []Aggregate{}
	}
	httpx.JSON(w, http.StatusOK, aggs)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var upd LotDetailsUpdate
	if err := httpx.DecodeJSON(r, &upd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validate, upd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lot, err := h.service.UpdateLotDetails(r.Context(), id, upd)
	if err != nil {
		h.fail(w, r, "update stock lot", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lot)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteLot(r.Context(), id); err != nil {
		h.fail(w, r, "delete stock lot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input ConsumeInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.StockLotID = id
	if err := httpx.ValidateStruct(h.validate, input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	usage, err := h.service.Consume(r.Context(), input)
	if err != nil {
		h.fail(w, r, "consume stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, usage)
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	lotID, err := httpx.QueryID(r, "lot_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	orderID, err := httpx.QueryID(r, "order_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records, err := h.service.UsageHistory(r.Context(), UsageFilter{StockLotID: lotID, OrderID: orderID, Limit: httpx.QueryLimit(r, 200)})
	if err != nil {
		h.fail(w, r, "usage history", err)
		return
	}
	if records == nil {
		records = []UsageRecord{}
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	httpx.Fail(w, r, h.logger, op, err)
}
