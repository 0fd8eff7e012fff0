package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/auth"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/db"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/ocr"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/pipeline"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/storage"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "1.0.0"
)

// Handler handles HTTP requests for receipt processing
type Handler struct {
	config       *models.Config
	orchestrator *pipeline.Orchestrator
	branches     map[string]models.BranchConfig
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, orchestrator *pipeline.Orchestrator) *Handler {
	branches := make(map[string]models.BranchConfig, len(config.Branches))
	for _, branch := range config.Branches {
		branches[branch.ID] = branch
	}
	return &Handler{
		config:       config,
		orchestrator: orchestrator,
		branches:     branches,
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/receipts/upload", h.UploadReceipt).Methods("POST")
	router.HandleFunc("/api/receipts", h.ListReceipts).Methods("GET")
	router.HandleFunc("/api/receipts/{id}", h.GetReceipt).Methods("GET")
	router.HandleFunc("/api/receipts/{id}/verify", h.VerifyReceipt).Methods("PUT")

	router.HandleFunc("/api/login", auth.LoginHandler).Methods("POST")

	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Timestamp   string            `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	Memory      MemoryStats       `json:"memory"`
	ImageMagick ServiceStatus     `json:"imageMagick"`
	Database    ServiceStatus     `json:"database"`
	Storage     ServiceStatus     `json:"storage"`
	AI          map[string]string `json:"ai"`
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	Allocated string `json:"allocated"`
	Total     string `json:"total"`
	System    string `json:"system"`
}

// ServiceStatus represents the status of a service dependency
type ServiceStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

// Health endpoint - enhanced for monitoring
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	imageMagickStatus := h.checkImageMagick()
	databaseStatus := h.checkDatabase()
	storageStatus := h.checkStorage()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Memory: MemoryStats{
			Allocated: fmt.Sprintf("%.2f MB", float64(m.Alloc)/1024/1024),
			Total:     fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/1024/1024),
			System:    fmt.Sprintf("%.2f MB", float64(m.Sys)/1024/1024),
		},
		ImageMagick: imageMagickStatus,
		Database:    databaseStatus,
		Storage:     storageStatus,
		AI: map[string]string{
			"mode":          h.config.AI.Mode,
			"refineEnabled": strconv.FormatBool(h.config.AI.RefineEnabled),
		},
	}

	if !imageMagickStatus.Available {
		response.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// checkImageMagick verifies ImageMagick is available, probing the same
// binary the preprocessor will invoke
func (h *Handler) checkImageMagick() ServiceStatus {
	cmd := exec.Command(ocr.ImageMagickCommand(), "-version")
	output, err := cmd.CombinedOutput()

	if err != nil {
		return ServiceStatus{
			Available: false,
			Error:     "imagemagick not found or not executable",
		}
	}

	version := "unknown"
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		version = strings.TrimSpace(lines[0])
	}

	return ServiceStatus{
		Available: true,
		Version:   version,
	}
}

// checkDatabase verifies PostgreSQL connection
func (h *Handler) checkDatabase() ServiceStatus {
	if db.Pool == nil {
		return ServiceStatus{
			Available: false,
			Error:     "database pool not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "PostgreSQL via PgBouncer",
	}
}

// checkStorage verifies MinIO connection
func (h *Handler) checkStorage() ServiceStatus {
	if storage.Client == nil {
		return ServiceStatus{
			Available: false,
			Error:     "storage client not initialized",
		}
	}

	return ServiceStatus{
		Available: true,
		Version:   "MinIO S3",
	}
}

// UploadReceipt accepts a receipt photo, runs the extraction pipeline, and
// returns the resulting draft. The draft is persisted when the database is
// configured; extraction itself never fails the request.
func (h *Handler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	claims := auth.GetClaimsFromContext(ctx)
	if claims == nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "File too large or invalid form data")
		return
	}

	// Accept both "file" and "image" field names
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("image")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "No file provided (use 'file' or 'image' field)")
			return
		}
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	branchID := r.FormValue("branch_id")
	if branchID == "" {
		branchID = claims.BranchID
	}
	branch, ok := h.branches[branchID]
	if !ok {
		h.sendError(w, http.StatusNotFound, fmt.Sprintf("unknown branch: %s", branchID))
		return
	}
	businessType, err := models.ParseBusinessType(branch.Type)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("branch %s has invalid business type", branchID))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	filename := fmt.Sprintf("%s_%s%s",
		time.Now().Format("20060102_150405"),
		uuid.New().String()[:8],
		storage.GetFileExtension(contentType),
	)

	// Upload to MinIO (if configured)
	var imageURL string
	if storage.Client != nil {
		imageURL, err = storage.UploadReceiptImage(
			ctx,
			branchID,
			filename,
			bytes.NewReader(imageData),
			int64(len(imageData)),
			contentType,
		)
		if err != nil {
			// Log but don't fail - image storage is optional
			fmt.Printf("Warning: failed to upload image to MinIO: %v\n", err)
			imageURL = ""
		}
	}

	draft := h.orchestrator.Process(ctx, imageData, contentType, businessType)

	record := &models.ReceiptRecord{
		ID:       uuid.New().String(),
		BranchID: branchID,
		UserID:   claims.UserID,
		Status:   models.StatusDraft,
		ImageURL: imageURL,
		Draft:    *draft,
	}

	savedToDB := false
	if db.Pool != nil {
		if err := db.SaveReceipt(ctx, record); err != nil {
			fmt.Printf("Warning: failed to save receipt to DB: %v\n", err)
		} else {
			savedToDB = true
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"receipt":     record,
		"saved_to_db": savedToDB,
	})
}

// ListReceipts returns recent receipts for a branch
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	claims := auth.GetClaimsFromContext(ctx)
	if claims == nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	branchID := r.URL.Query().Get("branch_id")
	if branchID == "" {
		branchID = claims.BranchID
	}
	if _, ok := h.branches[branchID]; !ok {
		h.sendError(w, http.StatusNotFound, fmt.Sprintf("unknown branch: %s", branchID))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	receipts, err := db.ListReceipts(ctx, branchID, limit)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "failed to list receipts")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"receipts": receipts,
		"count":    len(receipts),
	})
}

// GetReceipt returns one receipt with its full draft
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	if auth.GetClaimsFromContext(ctx) == nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	receiptID := mux.Vars(r)["id"]
	record, err := db.GetReceiptByID(ctx, receiptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.sendError(w, http.StatusNotFound, "receipt not found")
			return
		}
		h.sendError(w, http.StatusInternalServerError, "failed to load receipt")
		return
	}

	// Swap the stored object path for a short-lived viewing URL
	if record.ImageURL != "" && storage.Client != nil {
		if url, err := storage.GetPresignedURL(ctx, record.ImageURL); err == nil {
			record.ImageURL = url
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"receipt": record,
	})
}

// VerifyRequest is the user-confirmed line item set for a draft
type VerifyRequest struct {
	Items      []models.LineItemDraft `json:"items"`
	TotalCheck decimal.Decimal        `json:"total_check"`
}

// VerifyReceipt promotes a draft to VERIFIED after checking that the
// submitted items add up to the client's stated total.
func (h *Handler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx := r.Context()

	claims := auth.GetClaimsFromContext(ctx)
	if claims == nil {
		h.sendError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if db.Pool == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		h.sendError(w, http.StatusBadRequest, "at least one item is required")
		return
	}

	sum := decimal.Zero
	for i, item := range req.Items {
		if strings.TrimSpace(item.Description) == "" {
			h.sendError(w, http.StatusBadRequest, fmt.Sprintf("item %d has an empty description", i))
			return
		}
		if !item.Amount.GreaterThan(decimal.Zero) {
			h.sendError(w, http.StatusBadRequest, fmt.Sprintf("item %d has a non-positive amount", i))
			return
		}
		sum = sum.Add(item.Amount)
	}
	if sum.Sub(req.TotalCheck).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
		h.sendError(w, http.StatusBadRequest, fmt.Sprintf("items sum %s does not match total_check %s", sum.StringFixed(2), req.TotalCheck.StringFixed(2)))
		return
	}

	receiptID := mux.Vars(r)["id"]
	if err := db.VerifyReceipt(ctx, receiptID, req.Items, sum.Round(2), claims.UserID); err != nil {
		h.sendError(w, http.StatusNotFound, err.Error())
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"id":      receiptID,
		"status":  models.StatusVerified,
		"total":   sum.Round(2),
	})
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
