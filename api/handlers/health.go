package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradefleet/fleet-autoscaler/internal/executor"
	"github.com/tradefleet/fleet-autoscaler/internal/metricstore"
	"github.com/tradefleet/fleet-autoscaler/pkg/database"
)

// staleAfter marks a service degraded when its last snapshot is older.
const staleAfter = 2 * time.Minute

type HealthHandler struct {
	db       *database.DB
	store    *metricstore.Store
	executor *executor.Executor
}

func NewHealthHandler(db *database.DB, store *metricstore.Store, exec *executor.Executor) *HealthHandler {
	return &HealthHandler{db: db, store: store, executor: exec}
}

type HealthResponse struct {
	Status         string            `json:"status"`
	Timestamp      string            `json:"timestamp"`
	Checks         map[string]string `json:"checks,omitempty"`
	ActiveScalings []string          `json:"active_scalings,omitempty"`
	StaleServices  []string          `json:"stale_services,omitempty"`
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if h.db != nil {
		if h.db.Healthy(ctx) {
			checks["database"] = "healthy"
		} else {
			checks["database"] = "unhealthy"
			status = "degraded"
		}
	} else {
		checks["database"] = "disabled"
	}

	var stale []string
	if h.store != nil {
		cutoff := time.Now().Add(-staleAfter)
		for id, m := range h.store.Snapshot() {
			if m.CapturedAt.Before(cutoff) {
				stale = append(stale, id)
			}
		}
		if len(stale) > 0 {
			checks["metrics"] = "stale"
			status = "degraded"
		} else {
			checks["metrics"] = "healthy"
		}
	}

	var active []string
	if h.executor != nil {
		active = h.executor.ActiveScalings()
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:         status,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Checks:         checks,
		ActiveScalings: active,
		StaleServices:  stale,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.db != nil && !h.db.Healthy(ctx) {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "not ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
