package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gtrdotmcs/auto-trade/internal/api/handlers"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(orderHandler *handlers.OrderHandler, positionHandler *handlers.PositionHandler, reportHandler *handlers.ReportHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Order endpoints
	api.HandleFunc("/orders", orderHandler.Submit).Methods("POST")
	api.HandleFunc("/orders", orderHandler.List).Methods("GET")
	api.HandleFunc("/orders/{id}", orderHandler.Get).Methods("GET")
	api.HandleFunc("/orders/{id}", orderHandler.Modify).Methods("PATCH")
	api.HandleFunc("/orders/{id}", orderHandler.Cancel).Methods("DELETE")
	api.HandleFunc("/orders/{id}/report", reportHandler.GetReport).Methods("GET")

	// Position endpoints
	api.HandleFunc("/positions", positionHandler.List).Methods("GET")
	api.HandleFunc("/positions/{instrument}", positionHandler.Get).Methods("GET")
	api.HandleFunc("/positions/reconcile", positionHandler.Reconcile).Methods("POST")

	// Reporting endpoints
	api.HandleFunc("/summary", reportHandler.GetSummary).Methods("GET")
	api.HandleFunc("/audit", reportHandler.GetAuditTrail).Methods("GET")
	api.HandleFunc("/export", reportHandler.Export).Methods("POST")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "auto-trade-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
