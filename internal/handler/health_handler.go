package handler

import (
	"log/slog"
	"net/http"

	"github.com/queaccounting/backend/internal/infrastructure/redis"
	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/pkg/database"
)

// HealthHandler handles liveness and readiness checks
type HealthHandler struct {
	pool   *database.ConnectionPool
	cache  *redis.Client
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler. cache may be nil when running
// without Redis.
func NewHealthHandler(pool *database.ConnectionPool, cache *redis.Client, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{pool: pool, cache: cache, logger: logger}
}

// Health handles GET /healthz, a plain liveness check
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ready handles GET /readyz, verifying the database and cache are reachable.
// A broken cache degrades rather than fails: lookups fall through to postgres.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if err := h.pool.Health(r.Context()); err != nil {
		checks["database"] = "unreachable"
		h.logger.Error("readiness check failed", slog.String("error", err.Error()))
		respond.Success(w, http.StatusServiceUnavailable, "not ready", checks)
		return
	}
	checks["database"] = "ok"

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			checks["redis"] = "degraded"
		} else {
			checks["redis"] = "ok"
		}
	}

	respond.Success(w, http.StatusOK, "ready", checks)
}
