package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xelth-com/eckscan/internal/services/printer"
	"github.com/xelth-com/eckscan/internal/utils"
)

const (
	adminTokenTTL = 12 * time.Hour
	// MaxDedupWindow caps the debounce window settable at runtime
	MaxDedupWindow = time.Minute
)

// clearCache drops every debounce entry; history is untouched
func (r *Router) clearCache(w http.ResponseWriter, req *http.Request) {
	r.pipeline.ClearCache()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Cache cleared",
	})
}

type windowRequest struct {
	WindowMs *int64 `json:"windowMs"`
}

// setDedupWindow changes the debounce window for subsequent scans
func (r *Router) setDedupWindow(w http.ResponseWriter, req *http.Request) {
	var body windowRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.WindowMs == nil {
		respondError(w, http.StatusBadRequest, "windowMs is required")
		return
	}
	window := time.Duration(*body.WindowMs) * time.Millisecond
	if window < 0 || window > MaxDedupWindow {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("windowMs must be between 0 and %d", MaxDedupWindow.Milliseconds()))
		return
	}

	r.pipeline.SetDedupWindow(window)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"windowMs": r.pipeline.DedupWindow().Milliseconds(),
	})
}

// generateLabels handles the PDF generation request
func (r *Router) generateLabels(w http.ResponseWriter, req *http.Request) {
	var cfg printer.LabelConfig
	if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := cfg.Normalize(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	pdfBytes, err := printer.GenerateLabelsPDF(cfg)
	if err != nil {
		r.log.Error("Error generating labels", zap.Int("count", len(cfg.Codes)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to generate PDF: %v", err))
		return
	}

	// Set headers for download
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"labels_%d.pdf\"", len(cfg.Codes)))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.Write(pdfBytes)
}

// getImage renders the code itself as a PNG
func (r *Router) getImage(w http.ResponseWriter, req *http.Request) {
	code := mux.Vars(req)["qrCode"]
	if !utils.ValidateCode(code) {
		respondError(w, http.StatusBadRequest, "Invalid QR data")
		return
	}
	png, err := printer.GeneratePNG(code, queryInt(req, "size", printer.DefaultPNGSize))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Write(png)
}

// LoginRequest represents an operator login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login exchanges the operator password for an admin token
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	if r.cfg.Admin.JWTSecret == "" || r.cfg.Admin.PasswordHash == "" {
		respondError(w, http.StatusNotFound, "Login is not enabled")
		return
	}

	var loginReq LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&loginReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if !utils.CheckPasswordHash(loginReq.Password, r.cfg.Admin.PasswordHash) {
		r.log.Warn("Failed login", zap.String("username", loginReq.Username))
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	subject := loginReq.Username
	if subject == "" {
		subject = "admin"
	}
	token, err := utils.GenerateAdminToken(r.cfg.Admin.JWTSecret, subject, adminTokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokens": map[string]string{
			"accessToken": token,
		},
		"expiresAt": time.Now().Add(adminTokenTTL).UTC(),
	})
}
