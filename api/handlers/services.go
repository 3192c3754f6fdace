package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradefleet/fleet-autoscaler/internal/decision"
	"github.com/tradefleet/fleet-autoscaler/internal/executor"
	"github.com/tradefleet/fleet-autoscaler/internal/metricstore"
	"github.com/tradefleet/fleet-autoscaler/pkg/database/queries"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
	"github.com/tradefleet/fleet-autoscaler/pkg/validation"
)

// ServiceManager is the slice of the orchestrator the API needs.
type ServiceManager interface {
	RunningServices() []string
	ServiceState(serviceID string) (models.ServiceState, bool)
	Forecast(serviceID string, horizonMinutes int) (*models.Prediction, bool)
	SubscribeAllEvents() <-chan *models.Event
}

type ServicesHandler struct {
	manager  ServiceManager
	store    *metricstore.Store
	engine   *decision.Engine
	executor *executor.Executor

	// Optional: when the database is enabled, history endpoints read the
	// persisted record instead of the in-memory rings.
	decisionsRepo *queries.DecisionRepository
	eventsRepo    *queries.EventRepository
}

func NewServicesHandler(
	manager ServiceManager,
	store *metricstore.Store,
	engine *decision.Engine,
	exec *executor.Executor,
	decisionsRepo *queries.DecisionRepository,
	eventsRepo *queries.EventRepository,
) *ServicesHandler {
	return &ServicesHandler{
		manager:       manager,
		store:         store,
		engine:        engine,
		executor:      exec,
		decisionsRepo: decisionsRepo,
		eventsRepo:    eventsRepo,
	}
}

type ServiceSummary struct {
	ServiceID        string    `json:"service_id"`
	CurrentInstances int       `json:"current_instances"`
	HealthyInstances int       `json:"healthy_instances"`
	CPUUsage         float64   `json:"cpu_usage"`
	LastSeen         time.Time `json:"last_seen"`
}

func (h *ServicesHandler) List(c *gin.Context) {
	running := h.manager.RunningServices()

	summaries := make([]ServiceSummary, 0, len(running))
	for _, id := range running {
		summary := ServiceSummary{ServiceID: id}
		if m, ok := h.store.Get(id); ok {
			summary.CurrentInstances = m.Instances.Current
			summary.HealthyInstances = m.Instances.Healthy
			summary.CPUUsage = m.Resources.CPUUsage
			summary.LastSeen = m.CapturedAt
		}
		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{
		"services": summaries,
		"count":    len(summaries),
	})
}

// ServiceStatus pairs the loop's state machine position with the latest
// snapshot for one service.
type ServiceStatus struct {
	ServiceID string                 `json:"service_id"`
	State     models.ServiceState    `json:"state"`
	Metrics   *models.ServiceMetrics `json:"metrics,omitempty"`
}

// Status reports every monitored service: state, latest metrics, and the
// configured fleet limits.
func (h *ServicesHandler) Status(c *gin.Context) {
	running := h.manager.RunningServices()

	statuses := make([]ServiceStatus, 0, len(running))
	for _, id := range running {
		status := ServiceStatus{ServiceID: id, State: models.StateIdle}
		if state, ok := h.manager.ServiceState(id); ok {
			status.State = state
		}
		if m, ok := h.store.Get(id); ok {
			status.Metrics = m
		}
		statuses = append(statuses, status)
	}

	c.JSON(http.StatusOK, gin.H{
		"services":        statuses,
		"limits":          h.engine.Limits(),
		"scaling_enabled": h.engine.Enabled(),
	})
}

func (h *ServicesHandler) GetMetrics(c *gin.Context) {
	serviceID := c.Param("id")

	metrics, ok := h.store.Get(serviceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no metrics for service"})
		return
	}

	c.JSON(http.StatusOK, metrics)
}

func (h *ServicesHandler) GetDecisions(c *gin.Context) {
	serviceID := c.Param("id")
	limit := parseLimit(c, 50, 500)

	if h.decisionsRepo != nil {
		decisions, err := h.decisionsRepo.GetByService(c.Request.Context(), serviceID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch decisions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"service_id": serviceID, "data": decisions, "count": len(decisions)})
		return
	}

	// The ring is oldest-first; the endpoint contract is newest-first,
	// matching the persisted path's timestamp DESC ordering.
	decisions := h.engine.History(serviceID, limit)
	slices.Reverse(decisions)
	c.JSON(http.StatusOK, gin.H{"service_id": serviceID, "data": decisions, "count": len(decisions)})
}

func (h *ServicesHandler) GetEvents(c *gin.Context) {
	serviceID := c.Param("id")
	limit := parseLimit(c, 50, 500)

	if h.eventsRepo != nil {
		events, err := h.eventsRepo.GetByService(c.Request.Context(), serviceID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch scaling events"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"service_id": serviceID, "data": events, "count": len(events)})
		return
	}

	events := h.executor.Events(serviceID, limit)
	slices.Reverse(events)
	c.JSON(http.StatusOK, gin.H{"service_id": serviceID, "data": events, "count": len(events)})
}

// GetPrediction serves the cached forecast, or a fresh one when the caller
// asks for a specific horizon.
func (h *ServicesHandler) GetPrediction(c *gin.Context) {
	serviceID := c.Param("id")

	horizon := 0
	if raw := c.Query("horizon_minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "horizon_minutes must be a positive integer"})
			return
		}
		horizon = parsed
	}

	prediction, ok := h.manager.Forecast(serviceID, horizon)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prediction available for service"})
		return
	}

	c.JSON(http.StatusOK, prediction)
}

type ManualScaleRequest struct {
	TargetInstances int    `json:"target_instances" binding:"required,min=1"`
	Reason          string `json:"reason"`
}

// ManualScale executes an operator-initiated scaling, bypassing the rule
// pipeline but not the executor's limits or in-flight guard.
func (h *ServicesHandler) ManualScale(c *gin.Context) {
	serviceID := c.Param("id")

	if err := validation.ValidateServiceID(serviceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req ManualScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limits := h.engine.Limits()
	if err := validation.ValidateTargetInstances(req.TargetInstances, limits.MinInstances, limits.MaxInstances); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metrics, ok := h.store.Get(serviceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no metrics for service"})
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual scaling request"
	}

	d := &models.ScalingDecision{
		Timestamp:            time.Now(),
		ServiceID:            serviceID,
		CurrentInstances:     metrics.Instances.Current,
		RecommendedInstances: req.TargetInstances,
		Confidence:           1.0,
		Urgency:              models.UrgencyHigh,
		Reasoning:            []string{reason},
	}
	d.RecomputeAction()

	if d.Action == models.ActionMaintain {
		c.JSON(http.StatusOK, gin.H{"message": "service already at target", "instances": metrics.Instances.Current})
		return
	}

	event, err := h.executor.Execute(c.Request.Context(), d, metrics)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, executor.ErrScalingInProgress) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error(), "event": event})
		return
	}

	c.JSON(http.StatusOK, event)
}

// EmergencyScaleDown drops a service toward its redundancy floor, ignoring
// cooldowns and trading-window multipliers.
func (h *ServicesHandler) EmergencyScaleDown(c *gin.Context) {
	serviceID := c.Param("id")

	target := 0
	if t := c.Query("target"); t != "" {
		parsed, err := strconv.Atoi(t)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target"})
			return
		}
		target = parsed
	}

	event, err := h.executor.EmergencyScaleDown(c.Request.Context(), serviceID, target)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, executor.ErrScalingInProgress) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error(), "event": event})
		return
	}

	c.JSON(http.StatusOK, event)
}

// Rollback restores the instance count from before the last successful scaling.
func (h *ServicesHandler) Rollback(c *gin.Context) {
	serviceID := c.Param("id")

	event, err := h.executor.RollbackLast(c.Request.Context(), serviceID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, executor.ErrScalingInProgress) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error(), "event": event})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no completed scaling to roll back"})
		return
	}

	c.JSON(http.StatusOK, event)
}

type ScalingToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *ServicesHandler) GetScalingEnabled(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.engine.Enabled()})
}

// SetScalingEnabled flips the fleet-wide kill switch. Metrics keep flowing
// while disabled; only scaling actions stop.
func (h *ServicesHandler) SetScalingEnabled(c *gin.Context) {
	var req ScalingToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled field is required"})
		return
	}

	h.engine.SetEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

func parseLimit(c *gin.Context, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > maxLimit {
				limit = maxLimit
			}
		}
	}
	return limit
}
