package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/internal/execution"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// OrderHandler handles order API endpoints
// ⭐ SSOT: 주문 API 핸들러는 이 구조체에서만
type OrderHandler struct {
	engine *execution.Engine
	logger *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(engine *execution.Engine, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		engine: engine,
		logger: log,
	}
}

// SubmitRequest is the order submission payload
type SubmitRequest struct {
	Instrument   string  `json:"instrument"`
	Side         string  `json:"side"`
	Quantity     int64   `json:"quantity"`
	Kind         string  `json:"kind"`
	Price        float64 `json:"price,omitempty"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
	StrategyID   string  `json:"strategy_id,omitempty"`
}

// Submit accepts a new order
// POST /api/orders
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	orderID, err := h.engine.SubmitOrder(r.Context(), contracts.Order{
		Instrument:   req.Instrument,
		Side:         contracts.Side(req.Side),
		Quantity:     req.Quantity,
		Kind:         contracts.Kind(req.Kind),
		Price:        req.Price,
		TriggerPrice: req.TriggerPrice,
		StrategyID:   req.StrategyID,
	})
	if err != nil {
		var verr *contracts.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusUnprocessableEntity, verr.Reason)
			return
		}
		h.logger.WithError(err).Error("Failed to accept order")
		respondError(w, http.StatusInternalServerError, "Failed to accept order")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"order_id": orderID,
		"status":   contracts.StatusPending,
	})
}

// List returns ledgered orders, optionally filtered by status
// GET /api/orders?status=OPEN
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	status := contracts.Status(r.URL.Query().Get("status"))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"orders": h.engine.Orders(status),
	})
}

// Get returns one order's ledger record
// GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	rec, err := h.engine.Order(orderID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// Modify applies changes to a working order
// PATCH /api/orders/{id}
func (h *OrderHandler) Modify(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var changes contracts.OrderChanges
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.engine.ModifyOrder(r.Context(), orderID, changes); err != nil {
		respondOrderError(w, h.logger, orderID, err, "Failed to modify order")
		return
	}

	rec, err := h.engine.Order(orderID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// Cancel cancels a working order
// DELETE /api/orders/{id}
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	if err := h.engine.CancelOrder(r.Context(), orderID); err != nil {
		respondOrderError(w, h.logger, orderID, err, "Failed to cancel order")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"status":   contracts.StatusCancelled,
	})
}

// respondOrderError maps engine errors onto HTTP statuses
func respondOrderError(w http.ResponseWriter, log *logger.Logger, orderID string, err error, fallback string) {
	var verr *contracts.ValidationError

	switch {
	case errors.Is(err, contracts.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, contracts.ErrTerminalOrder):
		respondError(w, http.StatusConflict, "Order is in a terminal state")
	case errors.As(err, &verr):
		respondError(w, http.StatusUnprocessableEntity, verr.Reason)
	default:
		log.WithError(err).WithField("order_id", orderID).Error(fallback)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
