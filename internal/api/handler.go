package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gavelhq/gavel/internal/cache"
	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/orchestrator"
	"github.com/gavelhq/gavel/internal/screen"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	orch    *orchestrator.Orchestrator
	repo    domain.Repository
	cache   *cache.Store
	bus     domain.EventBus
	screens *screen.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(orch *orchestrator.Orchestrator, repo domain.Repository, cacheStore *cache.Store, bus domain.EventBus, screens *screen.Engine, version string) *Handler {
	return &Handler{
		orch:    orch,
		repo:    repo,
		cache:   cacheStore,
		bus:     bus,
		screens: screens,
		version: version,
	}
}

// RunAnalysis handles POST /analyses.
func (h *Handler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	tier := GetTier(ctx)

	var req domain.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.orch.Run(ctx, tenantID, tier, &req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("analysis failed",
			"tenant_id", tenantID,
			"type", req.Type,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListPatterns handles GET /patterns. Patterns are global learned state,
// scoped by analysis type rather than tenant.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	analysisType := domain.AnalysisType(r.URL.Query().Get("type"))
	if analysisType == "" {
		analysisType = domain.AnalysisOpportunityScan
	}
	if !domain.ValidAnalysisType(analysisType) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown analysis type",
		})
		return
	}

	limit := queryInt(r, "limit", 20)

	learned, err := h.orch.TopPatterns(r.Context(), analysisType, limit)
	if err != nil {
		slog.Error("failed to list patterns", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list patterns",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": learned,
		"count":    len(learned),
	})
}

// CacheHistory handles GET /cache/history.
func (h *Handler) CacheHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "subject query parameter is required",
		})
		return
	}

	limit := queryInt(r, "limit", 20)

	history, err := h.cache.History(ctx, tenantID, subject, limit)
	if err != nil {
		slog.Error("failed to read cache history", "subject", subject, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to read cache history",
		})
		return
	}

	// The payload column stays out of the listing; it can be large.
	type historyEntry struct {
		ID             string              `json:"id"`
		Subject        string              `json:"subject"`
		AnalysisType   domain.AnalysisType `json:"analysisType"`
		Identity       string              `json:"identity"`
		CreatedAt      time.Time           `json:"createdAt"`
		LastAccessedAt time.Time           `json:"lastAccessedAt"`
		AccessCount    int64               `json:"accessCount"`
	}
	entries := make([]historyEntry, 0, len(history))
	for _, e := range history {
		entries = append(entries, historyEntry{
			ID:             e.ID,
			Subject:        e.Subject,
			AnalysisType:   e.AnalysisType,
			Identity:       e.Identity,
			CreatedAt:      e.CreatedAt,
			LastAccessedAt: e.LastAccessedAt,
			AccessCount:    e.AccessCount,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// PurgeCache handles POST /maintenance/purge.
func (h *Handler) PurgeCache(w http.ResponseWriter, r *http.Request) {
	purged, err := h.orch.PurgeOldCache(r.Context())
	if err != nil {
		slog.Error("cache purge failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "cache purge failed",
		})
		return
	}

	slog.Info("cache purged on demand", "count", purged)
	writeJSON(w, http.StatusOK, map[string]any{
		"purged": purged,
	})
}

// ListScreens handles GET /screens.
func (h *Handler) ListScreens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	screens, err := h.repo.ListScreens(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list screens", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list screens",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"screens": screens,
		"count":   len(screens),
	})
}

// CreateScreenRequest is the request body for creating a screen.
type CreateScreenRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// CreateScreen handles POST /screens: validates the CEL expression, saves
// the screen and loads it into the engine.
func (h *Handler) CreateScreen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	cfg := &domain.ScreenConfig{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.screens.ValidateScreen(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveScreen(ctx, tenantID, cfg); err != nil {
		slog.Error("failed to save screen", "id", cfg.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save screen",
		})
		return
	}

	if cfg.Enabled {
		if err := h.screens.LoadScreen(cfg); err != nil {
			slog.Error("failed to load screen into engine", "id", cfg.ID, "error", err)
		}
	}

	slog.Info("screen created", "id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, cfg)
}

// ReloadScreens handles POST /screens/reload: hot-reloads the tenant's
// enabled screens from the database. Other tenants' and global screens
// stay loaded as they are.
func (h *Handler) ReloadScreens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	stored, err := h.repo.ListScreens(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list screens for reload", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load screens from database",
		})
		return
	}

	if err := h.screens.ReloadTenantScreens(tenantID, stored); err != nil {
		slog.Error("failed to reload screens", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload screens: " + err.Error(),
		})
		return
	}

	slog.Info("screens reloaded", "count", len(stored))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "screens reloaded successfully",
		"count":   len(stored),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
