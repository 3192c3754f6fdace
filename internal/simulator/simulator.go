package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
)

type Config struct {
	Port int
}

// Simulator serves synthetic trading-service fleets: a metrics probe the
// collectors poll, and a replica API the orchestrator backend can drive.
type Simulator struct {
	config     Config
	services   map[string]*ServiceSim
	mu         sync.RWMutex
	httpServer *http.Server
}

func New(cfg Config) *Simulator {
	if cfg.Port == 0 {
		cfg.Port = 9000
	}

	return &Simulator{
		config:   cfg,
		services: make(map[string]*ServiceSim),
	}
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Simulator) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", cors(s.healthHandler))
	mux.HandleFunc("GET /services", cors(s.listServicesHandler))
	mux.HandleFunc("GET /services/{id}", cors(s.getServiceHandler))
	mux.HandleFunc("POST /services/{id}", cors(s.createServiceHandler))
	mux.HandleFunc("PUT /services/{id}", cors(s.updateServiceHandler))
	mux.HandleFunc("DELETE /services/{id}", cors(s.deleteServiceHandler))
	mux.HandleFunc("PUT /services/{id}/replicas", cors(s.setReplicasHandler))
	mux.HandleFunc("POST /spike", cors(s.spikeHandler))
	mux.HandleFunc("POST /pattern", cors(s.patternHandler))
	mux.HandleFunc("GET /{id}", cors(s.metricsHandler))

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Infof("Simulator listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Simulator server error: %v", err)
		}
	}()

	return nil
}

func (s *Simulator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Simulator) GetOrCreateService(serviceID string) *ServiceSim {
	s.mu.Lock()
	defer s.mu.Unlock()

	if svc, exists := s.services[serviceID]; exists {
		return svc
	}

	svc := NewServiceSim(serviceID, ServiceSimConfig{
		InitialInstances: 3,
		BaseCPU:          50.0,
		BaseMemory:       60.0,
		Variance:         10.0,
	})
	s.services[serviceID] = svc

	logger.Infof("Created simulated service: %s", serviceID)
	return svc
}

func (s *Simulator) GetService(serviceID string) (*ServiceSim, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, exists := s.services[serviceID]
	return svc, exists
}

func (s *Simulator) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "fleet-simulator",
	})
}

// metricsHandler serves the probe contract: GET /{service_id}.
func (s *Simulator) metricsHandler(w http.ResponseWriter, r *http.Request) {
	serviceID := r.PathValue("id")
	if serviceID == "" {
		http.Error(w, "service ID required", http.StatusBadRequest)
		return
	}

	svc := s.GetOrCreateService(serviceID)
	writeJSON(w, http.StatusOK, svc.CollectMetrics(time.Now()))
}

func (s *Simulator) listServicesHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	services := make([]map[string]interface{}, 0, len(s.services))
	for id, svc := range s.services {
		services = append(services, map[string]interface{}{
			"id":        id,
			"instances": svc.Instances(),
			"pattern":   svc.PatternName(),
		})
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": services,
		"count":    len(services),
	})
}

// getServiceHandler doubles as the orchestrator backend's describe call.
func (s *Simulator) getServiceHandler(w http.ResponseWriter, r *http.Request) {
	svc, exists := s.GetService(r.PathValue("id"))
	if !exists {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}

	min, max := svc.Bounds()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service_id":       r.PathValue("id"),
		"desired_replicas": svc.Instances(),
		"ready_replicas":   svc.Instances(),
		"min_replicas":     min,
		"max_replicas":     max,
		"status":           svc.Status(),
	})
}

type CreateServiceRequest struct {
	Instances    int     `json:"instances"`
	MinInstances int     `json:"min_instances"`
	MaxInstances int     `json:"max_instances"`
	BaseCPU      float64 `json:"base_cpu"`
	BaseMemory   float64 `json:"base_memory"`
	Variance     float64 `json:"variance"`
}

func (s *Simulator) createServiceHandler(w http.ResponseWriter, r *http.Request) {
	serviceID := r.PathValue("id")

	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.BaseCPU <= 0 {
		req.BaseCPU = 50.0
	}
	if req.BaseMemory <= 0 {
		req.BaseMemory = 60.0
	}
	if req.Variance <= 0 {
		req.Variance = 10.0
	}

	svc := NewServiceSim(serviceID, ServiceSimConfig{
		InitialInstances: req.Instances,
		MinInstances:     req.MinInstances,
		MaxInstances:     req.MaxInstances,
		BaseCPU:          req.BaseCPU,
		BaseMemory:       req.BaseMemory,
		Variance:         req.Variance,
	})

	s.mu.Lock()
	s.services[serviceID] = svc
	s.mu.Unlock()

	logger.Infof("Created service %s with %d instances", serviceID, svc.Instances())
	writeJSON(w, http.StatusCreated, svc.Status())
}

type UpdateServiceRequest struct {
	BaseCPU    *float64 `json:"base_cpu"`
	BaseMemory *float64 `json:"base_memory"`
	Variance   *float64 `json:"variance"`
}

func (s *Simulator) updateServiceHandler(w http.ResponseWriter, r *http.Request) {
	svc, exists := s.GetService(r.PathValue("id"))
	if !exists {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}

	var req UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.BaseCPU != nil {
		svc.SetBaseCPU(*req.BaseCPU)
	}
	if req.BaseMemory != nil {
		svc.SetBaseMemory(*req.BaseMemory)
	}
	if req.Variance != nil {
		svc.SetVariance(*req.Variance)
	}

	writeJSON(w, http.StatusOK, svc.Status())
}

func (s *Simulator) deleteServiceHandler(w http.ResponseWriter, r *http.Request) {
	serviceID := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[serviceID]; !exists {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}

	delete(s.services, serviceID)
	logger.Infof("Deleted service %s", serviceID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "service deleted"})
}

type SetReplicasRequest struct {
	Replicas int `json:"replicas"`
}

// setReplicasHandler implements the orchestrator backend's scale call.
func (s *Simulator) setReplicasHandler(w http.ResponseWriter, r *http.Request) {
	svc, exists := s.GetService(r.PathValue("id"))
	if !exists {
		http.Error(w, "service not found", http.StatusNotFound)
		return
	}

	var req SetReplicasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Replicas < 0 {
		http.Error(w, "replicas must be non-negative", http.StatusUnprocessableEntity)
		return
	}

	applied := svc.SetInstances(req.Replicas)
	logger.Infof("Service %s scaled to %d instances", r.PathValue("id"), applied)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service_id": r.PathValue("id"),
		"replicas":   applied,
	})
}

type SpikeRequest struct {
	ServiceID string  `json:"service_id"`
	CPUTarget float64 `json:"cpu_target"`
	Duration  string  `json:"duration"`
	RampUp    string  `json:"ramp_up"`
}

func (s *Simulator) spikeHandler(w http.ResponseWriter, r *http.Request) {
	var req SpikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	svc := s.GetOrCreateService(req.ServiceID)

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		duration = 5 * time.Minute
	}

	rampUp, err := time.ParseDuration(req.RampUp)
	if err != nil {
		rampUp = 30 * time.Second
	}

	svc.InjectSpike(req.CPUTarget, duration, rampUp)

	logger.Infof("Injected spike on service %s: target=%.1f%%, duration=%s",
		req.ServiceID, req.CPUTarget, duration)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "spike injected",
		"service_id": req.ServiceID,
		"cpu_target": req.CPUTarget,
		"duration":   duration.String(),
		"ramp_up":    rampUp.String(),
	})
}

type PatternRequest struct {
	ServiceID string `json:"service_id"`
	Pattern   string `json:"pattern"`
}

func (s *Simulator) patternHandler(w http.ResponseWriter, r *http.Request) {
	var req PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	svc := s.GetOrCreateService(req.ServiceID)
	svc.SetPattern(ParsePattern(req.Pattern))

	logger.Infof("Set pattern %s on service %s", req.Pattern, req.ServiceID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "pattern set",
		"service_id": req.ServiceID,
		"pattern":    req.Pattern,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
