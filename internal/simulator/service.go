package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// referenceRPSPerInstance sizes throughput against the instance count.
const referenceRPSPerInstance = 250

type ServiceSimConfig struct {
	InitialInstances int
	MinInstances     int
	MaxInstances     int
	BaseCPU          float64
	BaseMemory       float64
	Variance         float64
}

// ServiceSim models one trading service: a replica count the scaling API can
// move, plus synthetic load shaped by a pattern and optional spikes.
type ServiceSim struct {
	id         string
	instances  int
	minInst    int
	maxInst    int
	baseCPU    float64
	baseMemory float64
	variance   float64
	pattern    LoadPattern
	spike      *Spike
	mu         sync.RWMutex
}

type Spike struct {
	TargetCPU   float64
	StartTime   time.Time
	Duration    time.Duration
	RampUp      time.Duration
	OriginalCPU float64
}

func NewServiceSim(id string, cfg ServiceSimConfig) *ServiceSim {
	if cfg.InitialInstances <= 0 {
		cfg.InitialInstances = 3
	}
	if cfg.MinInstances <= 0 {
		cfg.MinInstances = 1
	}
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = 50
	}
	return &ServiceSim{
		id:         id,
		instances:  cfg.InitialInstances,
		minInst:    cfg.MinInstances,
		maxInst:    cfg.MaxInstances,
		baseCPU:    cfg.BaseCPU,
		baseMemory: cfg.BaseMemory,
		variance:   cfg.Variance,
		pattern:    PatternTradingDay,
	}
}

// ProbeMetrics is the JSON shape served to the collectors.
type ProbeMetrics struct {
	ServiceID  string `json:"service_id"`
	CapturedAt string `json:"captured_at"`
	Resources  struct {
		CPUUsage    float64 `json:"cpu_usage"`
		MemoryUsage float64 `json:"memory_usage"`
		NetworkIn   float64 `json:"network_in"`
		NetworkOut  float64 `json:"network_out"`
	} `json:"resources"`
	Performance struct {
		ResponseTimeMs float64 `json:"response_time_ms"`
		ThroughputRPS  float64 `json:"throughput_rps"`
		ErrorRate      float64 `json:"error_rate"`
		QueueLength    float64 `json:"queue_length"`
	} `json:"performance"`
	Instances struct {
		Current   int `json:"current"`
		Healthy   int `json:"healthy"`
		Unhealthy int `json:"unhealthy"`
	} `json:"instances"`
	Custom map[string]float64 `json:"custom"`
}

func (s *ServiceSim) CollectMetrics(now time.Time) *ProbeMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	cpu := s.currentCPULocked(now)
	memory := s.baseMemory + (cpu-s.baseCPU)*0.6
	if memory < 10 {
		memory = 10
	}
	if memory > 100 {
		memory = 100
	}

	cpu = s.jitter(cpu, s.variance)
	memory = s.jitter(memory, s.variance/2)

	// More load means longer queues and slower responses.
	loadFactor := cpu / 50.0
	rps := float64(s.instances) * referenceRPSPerInstance * loadFactor

	m := &ProbeMetrics{
		ServiceID:  s.id,
		CapturedAt: now.UTC().Format(time.RFC3339),
	}
	m.Resources.CPUUsage = cpu
	m.Resources.MemoryUsage = memory
	m.Resources.NetworkIn = rps * 512
	m.Resources.NetworkOut = rps * 1024
	m.Performance.ResponseTimeMs = 8 + cpu/4
	m.Performance.ThroughputRPS = math.Round(rps*100) / 100
	m.Performance.ErrorRate = math.Max(0, (cpu-90)/1000)
	m.Performance.QueueLength = math.Max(0, (cpu-60)/2)
	m.Instances.Current = s.instances
	m.Instances.Healthy = s.instances
	m.Custom = map[string]float64{
		"order_rate":      math.Round(rps * 0.4),
		"fill_latency_us": 180 + cpu*3,
	}
	return m
}

func (s *ServiceSim) currentCPULocked(now time.Time) float64 {
	cpu := s.pattern.Apply(s.baseCPU, now)

	if s.spike != nil {
		elapsed := now.Sub(s.spike.StartTime)
		switch {
		case elapsed > s.spike.Duration:
			s.spike = nil
		case elapsed < s.spike.RampUp:
			progress := float64(elapsed) / float64(s.spike.RampUp)
			cpu = s.spike.OriginalCPU + (s.spike.TargetCPU-s.spike.OriginalCPU)*progress
		default:
			cpu = s.spike.TargetCPU
		}
	}

	return cpu
}

func (s *ServiceSim) jitter(base, variance float64) float64 {
	value := base + (rand.Float64()*2-1)*variance
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return math.Round(value*100) / 100
}

func (s *ServiceSim) Instances() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances
}

// SetInstances applies a scaling request, clamped to the service's bounds.
func (s *ServiceSim) SetInstances(count int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if count < s.minInst {
		count = s.minInst
	}
	if count > s.maxInst {
		count = s.maxInst
	}
	s.instances = count
	return count
}

func (s *ServiceSim) Bounds() (min, max int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minInst, s.maxInst
}

func (s *ServiceSim) SetBaseCPU(cpu float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCPU = cpu
}

func (s *ServiceSim) SetBaseMemory(memory float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseMemory = memory
}

func (s *ServiceSim) SetVariance(variance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variance = variance
}

func (s *ServiceSim) SetPattern(pattern LoadPattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = pattern
}

func (s *ServiceSim) PatternName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pattern.Name()
}

func (s *ServiceSim) InjectSpike(targetCPU float64, duration, rampUp time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spike = &Spike{
		TargetCPU:   targetCPU,
		StartTime:   time.Now(),
		Duration:    duration,
		RampUp:      rampUp,
		OriginalCPU: s.baseCPU,
	}
}

func (s *ServiceSim) Status() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spikeInfo := map[string]interface{}{"active": false}
	if s.spike != nil {
		remaining := s.spike.Duration - time.Since(s.spike.StartTime)
		if remaining < 0 {
			remaining = 0
		}
		spikeInfo = map[string]interface{}{
			"active":     true,
			"target_cpu": s.spike.TargetCPU,
			"remaining":  remaining.String(),
		}
	}

	return map[string]interface{}{
		"id":            s.id,
		"instances":     s.instances,
		"min_instances": s.minInst,
		"max_instances": s.maxInst,
		"base_cpu":      s.baseCPU,
		"base_memory":   s.baseMemory,
		"variance":      s.variance,
		"pattern":       s.pattern.Name(),
		"spike":         spikeInfo,
	}
}
