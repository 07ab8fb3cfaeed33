package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"giftbox-rest-api/internal/repository"
	"giftbox-rest-api/internal/service"
	"giftbox-rest-api/pkg/response"
)

// Reconciler resolves stale pending transaction markers on demand.
type Reconciler interface {
	RunNow(ctx context.Context) (int64, error)
	LastRun() (time.Time, int64)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	playerRepo repository.PlayerRepository
	cache      Pinger
	reconciler Reconciler
	storeType  string // mongodb, postgres or sqlite
	cacheType  string
	startTime  time.Time
}

// NewAdminHandler creates a new admin handler. cache and reconciler may be nil.
func NewAdminHandler(
	playerRepo repository.PlayerRepository,
	cache Pinger,
	reconciler Reconciler,
	storeType, cacheType string,
) *AdminHandler {
	return &AdminHandler{
		playerRepo: playerRepo,
		cache:      cache,
		reconciler: reconciler,
		storeType:  storeType,
		cacheType:  cacheType,
		startTime:  time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["store_type"] = h.storeType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":  float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":         memStats.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}

	// Cache
	cacheStats := map[string]interface{}{"type": h.cacheType}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			cacheStats["status"] = "error"
			cacheStats["error"] = err.Error()
		} else {
			cacheStats["status"] = "connected"
		}
	} else {
		cacheStats["status"] = "in_process"
	}
	stats["cache"] = cacheStats

	// Player store
	if h.playerRepo != nil {
		storeStats, err := h.playerRepo.GetStats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["store"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	if h.reconciler != nil {
		at, resolved := h.reconciler.LastRun()
		reconcile := map[string]interface{}{"last_resolved": resolved}
		if !at.IsZero() {
			reconcile["last_run"] = at.Format(time.RFC3339)
		}
		stats["reconcile"] = reconcile
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Reconcile handles POST /api/v1/admin/reconcile
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.reconciler == nil {
		response.OK(w, map[string]interface{}{"resolved": 0, "status": "disabled"})
		return
	}

	resolved, err := h.reconciler.RunNow(r.Context())
	if err != nil {
		writeError(w, r, &service.PersistenceError{Op: "reconcile", Err: err})
		return
	}
	response.OK(w, map[string]interface{}{
		"resolved": resolved,
		"status":   "ok",
	})
}
