package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/buildinfo"
	"github.com/xelth-com/eckscan/internal/config"
	"github.com/xelth-com/eckscan/internal/database"
	"github.com/xelth-com/eckscan/internal/ingest"
	"github.com/xelth-com/eckscan/internal/middleware"
	"github.com/xelth-com/eckscan/internal/websocket"
)

// Router wraps the mux router and the scanning services
type Router struct {
	*mux.Router
	pipeline *ingest.Pipeline
	store    database.Store
	hub      *websocket.Hub
	cfg      *config.Config
	log      *zap.Logger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(cfg *config.Config, pipeline *ingest.Pipeline, hub *websocket.Hub, log *zap.Logger) *Router {
	r := &Router{
		Router:   mux.NewRouter(),
		pipeline: pipeline,
		store:    pipeline.Store(),
		hub:      hub,
		cfg:      cfg,
		log:      log.Named("http"),
	}
	r.Use(middleware.RequestLogger(log))
	admin := middleware.AdminGuard(cfg.Admin.JWTSecret)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")

	// Scan routes. Fixed paths are registered before {qrCode}.
	qr := r.PathPrefix("/api/qr").Subrouter()
	qr.HandleFunc("/scan", r.handleScan).Methods("POST")
	qr.HandleFunc("/batch-scan", r.handleBatchScan).Methods("POST")
	qr.HandleFunc("/recent", r.getRecent).Methods("GET")
	qr.HandleFunc("/stream", r.serveStream).Methods("GET")
	qr.HandleFunc("/labels", r.generateLabels).Methods("POST")
	qr.Handle("/cache/clear", admin(http.HandlerFunc(r.clearCache))).Methods("DELETE")
	qr.Handle("/cache/window", admin(http.HandlerFunc(r.setDedupWindow))).Methods("PUT")
	qr.HandleFunc("/{scanId:[0-9]+}/status", r.updateStatus).Methods("PUT")
	qr.HandleFunc("/{qrCode}/image", r.getImage).Methods("GET")
	qr.HandleFunc("/{qrCode}", r.getByCode).Methods("GET")

	// Statistics routes
	stats := r.PathPrefix("/api/stats").Subrouter()
	stats.HandleFunc("", r.getStats).Methods("GET")
	stats.HandleFunc("/hourly", r.getHourly).Methods("GET")
	stats.HandleFunc("/daily", r.getDaily).Methods("GET")
	stats.HandleFunc("/cameras", r.getCameras).Methods("GET")
	stats.HandleFunc("/top-products", r.getTopProducts).Methods("GET")
	stats.HandleFunc("/performance", r.getPerformance).Methods("GET")
	stats.Handle("/broadcast", admin(http.HandlerFunc(r.broadcastStats))).Methods("POST")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"timestamp":   time.Now().UTC(),
		"environment": r.cfg.NodeEnv,
		"backend":     r.store.Backend(),
		"connections": r.hub.Count(),
		"build":       buildinfo.Get(),
	})
}

func (r *Router) serveStream(w http.ResponseWriter, req *http.Request) {
	websocket.ServeWs(r.hub, w, req)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondData wraps a successful payload the way every read endpoint does
func respondData(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC(),
	})
}

// queryInt reads a positive integer query parameter or returns def
func queryInt(req *http.Request, key string, def int) int {
	v := req.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
