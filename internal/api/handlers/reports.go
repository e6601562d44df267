package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/gtrdotmcs/auto-trade/internal/audit"
	"github.com/gtrdotmcs/auto-trade/internal/execution"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// ReportHandler handles reporting API endpoints
// ⭐ SSOT: 리포트 API 핸들러는 이 구조체에서만
type ReportHandler struct {
	engine    *execution.Engine
	exportDir string
	logger    *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(engine *execution.Engine, exportDir string, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		engine:    engine,
		exportDir: exportDir,
		logger:    log,
	}
}

// GetReport returns the execution report for one order
// GET /api/orders/{id}/report
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	report, err := h.engine.Report(orderID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Order not found")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// GetSummary returns aggregated execution statistics
// GET /api/summary?start=2026-08-31T00:00:00Z&end=...
func (h *ReportHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid time bound, want RFC3339")
		return
	}

	respondJSON(w, http.StatusOK, h.engine.Statistics(start, end))
}

// GetAuditTrail returns audit entries in sequence order
// GET /api/audit?order_id=ORD-1&start=...&end=...
func (h *ReportHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseWindow(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid time bound, want RFC3339")
		return
	}

	entries := h.engine.AuditTrail(audit.Filter{
		OrderID: r.URL.Query().Get("order_id"),
		Start:   start,
		End:     end,
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// ExportRequest names the export file; empty means a timestamped default
type ExportRequest struct {
	Filename string `json:"filename,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
}

// Export writes the execution summary and audit trail to disk
// POST /api/export
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if r.Body != nil {
		// Empty body means full-history default export
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var start, end *time.Time
	if req.Start != "" {
		t, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid start, want RFC3339")
			return
		}
		start = &t
	}
	if req.End != "" {
		t, err := time.Parse(time.RFC3339, req.End)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid end, want RFC3339")
			return
		}
		end = &t
	}

	filename := req.Filename
	if filename == "" {
		filename = "execution-" + time.Now().Format("20060102-150405") + ".json"
	}
	path := filepath.Join(h.exportDir, filepath.Base(filename))

	if err := h.engine.Export(path, start, end); err != nil {
		h.logger.WithError(err).Error("Export failed")
		respondError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"path": path})
}

// parseWindow reads optional RFC3339 start/end query parameters
func parseWindow(r *http.Request) (*time.Time, *time.Time, error) {
	var start, end *time.Time

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, err
		}
		end = &t
	}

	return start, end, nil
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
