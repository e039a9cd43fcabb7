package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/database"
	"github.com/xelth-com/eckscan/internal/models"
)

// statsQuery builds the filter from cameraId and a days or hours window
func statsQuery(req *http.Request, unit time.Duration, param string, def int) models.StatsQuery {
	n := queryInt(req, param, def)
	return models.StatsQuery{
		CameraID: req.URL.Query().Get("cameraId"),
		Since:    time.Now().UTC().Add(-time.Duration(n) * unit),
	}
}

const day = 24 * time.Hour

func (r *Router) statsFailed(w http.ResponseWriter, what string, err error) {
	r.log.Error("Error fetching statistics", zap.String("kind", what), zap.Error(err))
	respondError(w, http.StatusInternalServerError, "Failed to fetch statistics")
}

func (r *Router) getStats(w http.ResponseWriter, req *http.Request) {
	stats, err := r.store.GetStatistics(req.Context(), statsQuery(req, day, "days", 1))
	if err != nil {
		r.statsFailed(w, "summary", err)
		return
	}
	respondData(w, stats)
}

func (r *Router) getHourly(w http.ResponseWriter, req *http.Request) {
	buckets, err := r.store.GetHourly(req.Context(), statsQuery(req, time.Hour, "hours", 24))
	if err != nil {
		r.statsFailed(w, "hourly", err)
		return
	}
	respondData(w, buckets)
}

func (r *Router) getDaily(w http.ResponseWriter, req *http.Request) {
	buckets, err := r.store.GetDaily(req.Context(), statsQuery(req, day, "days", 30))
	if err != nil {
		r.statsFailed(w, "daily", err)
		return
	}
	respondData(w, buckets)
}

func (r *Router) getCameras(w http.ResponseWriter, req *http.Request) {
	sources, err := r.store.GetSources(req.Context())
	if err != nil {
		r.statsFailed(w, "cameras", err)
		return
	}
	respondData(w, sources)
}

func (r *Router) getTopProducts(w http.ResponseWriter, req *http.Request) {
	limit := database.ClampLimit(queryInt(req, "limit", database.DefaultTopProducts), database.DefaultTopProducts, database.MaxTopProducts)
	products, err := r.store.GetTopProducts(req.Context(), statsQuery(req, day, "days", 7), limit)
	if err != nil {
		r.statsFailed(w, "top-products", err)
		return
	}
	respondData(w, products)
}

func (r *Router) getPerformance(w http.ResponseWriter, req *http.Request) {
	perf, err := r.store.GetPerformance(req.Context(), statsQuery(req, time.Hour, "hours", 24))
	if err != nil {
		r.statsFailed(w, "performance", err)
		return
	}
	respondData(w, perf)
}

// broadcastStats pushes the current day's summary to every stream client
func (r *Router) broadcastStats(w http.ResponseWriter, req *http.Request) {
	stats, err := r.store.GetStatistics(req.Context(), statsQuery(req, day, "days", 1))
	if err != nil {
		r.statsFailed(w, "broadcast", err)
		return
	}
	n := r.hub.BroadcastStats(stats)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"recipients": n,
	})
}
