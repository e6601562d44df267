package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gtrdotmcs/auto-trade/internal/execution"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// PositionHandler handles position API endpoints
// ⭐ SSOT: 포지션 API 핸들러는 이 구조체에서만
type PositionHandler struct {
	engine *execution.Engine
	logger *logger.Logger
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(engine *execution.Engine, log *logger.Logger) *PositionHandler {
	return &PositionHandler{
		engine: engine,
		logger: log,
	}
}

// List returns every tracked position
// GET /api/positions
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"positions": h.engine.Positions(r.Context()),
	})
}

// Get returns one instrument's position
// GET /api/positions/{instrument}
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	instrument := mux.Vars(r)["instrument"]

	position, ok := h.engine.Position(r.Context(), instrument)
	if !ok {
		respondError(w, http.StatusNotFound, "No position for instrument")
		return
	}

	respondJSON(w, http.StatusOK, position)
}

// Reconcile compares internal positions against the broker on demand
// POST /api/positions/reconcile
func (h *PositionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.Reconcile(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Reconciliation failed")
		respondError(w, http.StatusBadGateway, "Failed to fetch broker positions")
		return
	}

	mismatches := 0
	for _, res := range results {
		if !res.Match {
			mismatches++
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results":    results,
		"mismatches": mismatches,
	})
}
