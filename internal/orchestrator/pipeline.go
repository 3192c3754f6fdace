package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/collector"
	"github.com/tradefleet/fleet-autoscaler/internal/decision"
	"github.com/tradefleet/fleet-autoscaler/internal/events"
	"github.com/tradefleet/fleet-autoscaler/internal/executor"
	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/internal/metrics"
	"github.com/tradefleet/fleet-autoscaler/internal/metricstore"
	"github.com/tradefleet/fleet-autoscaler/internal/rules"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

const collectDeadline = 5 * time.Second

type PipelineConfig struct {
	ServiceID       string
	CollectInterval time.Duration
	CollectRetries  int
	Collector       collector.Collector
	Store           *metricstore.Store
	Engine          *decision.Engine
	Executor        *executor.Executor
	Tracker         *rules.ConditionTracker
	Publisher       *events.Publisher
}

// Pipeline is the per-service control loop: poll metrics, store, decide,
// execute. One goroutine per monitored service.
type Pipeline struct {
	config  PipelineConfig
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	state   models.ServiceState
	mu      sync.Mutex
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.CollectInterval == 0 {
		cfg.CollectInterval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		state:  models.StateIdle,
	}
}

// State reports the loop's current position. A stamped cooldown whose
// window has since closed reads as IDLE.
func (p *Pipeline) State() models.ServiceState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == models.StateCoolingDown &&
		!p.config.Engine.Cooldown().InCooldown(p.config.ServiceID, time.Now()) {
		p.state = models.StateIdle
	}
	return p.state
}

func (p *Pipeline) setState(s models.ServiceState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.wg.Add(1)
	go p.run()

	logger.WithService(p.config.ServiceID).Info("Pipeline started")
	return nil
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	logger.WithService(p.config.ServiceID).Info("Pipeline stopped")
}

func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CollectInterval)
	defer ticker.Stop()

	p.runCycle()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runCycle()
		}
	}
}

// runCycle executes one tick. A panic anywhere in the cycle is contained to
// this service: the sustained-condition state is reset (the decision and
// event rings survive) and the next tick starts clean.
func (p *Pipeline) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			logger.WithService(p.config.ServiceID).Errorf("Pipeline cycle panicked: %v", r)
			p.config.Tracker.ResetService(p.config.ServiceID)
			p.config.Publisher.Alert(p.config.ServiceID, models.SeverityCritical,
				"Control loop recovered from panic", map[string]interface{}{"panic": r})
		}
	}()

	serviceID := p.config.ServiceID
	now := time.Now()

	serviceMetrics, err := p.collect()
	if err != nil {
		p.handleCollectFailure(err, now)
		return
	}

	p.config.Store.Put(serviceID, serviceMetrics)
	metrics.ServiceInstances.WithLabelValues(serviceID).Set(float64(serviceMetrics.Instances.Current))
	metrics.ServiceCPUPercent.WithLabelValues(serviceID).Set(serviceMetrics.Resources.CPUUsage)

	p.setState(models.StateDeciding)
	d := p.config.Engine.Decide(serviceID, serviceMetrics, now)
	p.config.Publisher.DecisionMade(d)
	metrics.DecisionsTotal.WithLabelValues(serviceID, string(d.Action)).Inc()

	if !d.ShouldExecute() {
		if d.CooldownActive {
			p.setState(models.StateCoolingDown)
		} else {
			p.setState(models.StateIdle)
		}
		return
	}

	p.setState(models.StateExecuting)
	event, err := p.config.Executor.Execute(p.ctx, d, serviceMetrics)
	switch {
	case errors.Is(err, executor.ErrScalingInProgress):
		logger.WithService(serviceID).Warn("Skipping decision, scaling already in progress")
		p.setState(models.StateIdle)
	case err != nil:
		metrics.ScalingEventsTotal.WithLabelValues(serviceID, "failed").Inc()
		p.setState(models.StateIdle)
	default:
		metrics.ScalingEventsTotal.WithLabelValues(serviceID, "success").Inc()
		metrics.ScalingDuration.WithLabelValues(serviceID).Observe(float64(event.DurationMs) / 1000)
		p.setState(models.StateCoolingDown)
	}
}

// collect polls the metric source, retrying transient failures within the
// cycle. A malformed payload is not retried; the source would only lie again.
func (p *Pipeline) collect() (*models.ServiceMetrics, error) {
	var lastErr error
	for attempt := 0; attempt <= p.config.CollectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-p.ctx.Done():
				return nil, p.ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}

		serviceMetrics, err := p.collectOnce()
		if err == nil {
			return serviceMetrics, nil
		}
		lastErr = err
		if errors.Is(err, collector.ErrSourceMalformed) {
			break
		}
	}
	return nil, lastErr
}

func (p *Pipeline) collectOnce() (*models.ServiceMetrics, error) {
	ctx, cancel := context.WithTimeout(p.ctx, collectDeadline)
	defer cancel()

	started := time.Now()
	serviceMetrics, err := p.config.Collector.Collect(ctx, p.config.ServiceID)
	metrics.CollectionLatency.WithLabelValues(p.config.ServiceID).Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.CollectionsTotal.WithLabelValues(p.config.ServiceID, "error").Inc()
		return nil, err
	}
	metrics.CollectionsTotal.WithLabelValues(p.config.ServiceID, "ok").Inc()
	p.config.Publisher.MetricCollected(p.config.ServiceID, serviceMetrics)
	return serviceMetrics, nil
}

// handleCollectFailure emits a metrics_error event and records an explicit
// MAINTAIN decision so the history shows the loop held position on stale
// data. Malformed payloads additionally raise an alert: the source is up
// but lying, which needs a human.
func (p *Pipeline) handleCollectFailure(err error, now time.Time) {
	serviceID := p.config.ServiceID
	logger.WithService(serviceID).Errorf("Collection failed: %v", err)
	p.config.Publisher.MetricsError(serviceID, err)

	if errors.Is(err, collector.ErrSourceMalformed) {
		p.config.Publisher.Alert(serviceID, models.SeverityWarning,
			"Metric source returned malformed payload", map[string]interface{}{"error": err.Error()})
	}

	current := 0
	if last, ok := p.config.Store.Get(serviceID); ok {
		current = last.Instances.Current
	}

	d := &models.ScalingDecision{
		Timestamp:            now,
		ServiceID:            serviceID,
		CurrentInstances:     current,
		RecommendedInstances: current,
		Action:               models.ActionMaintain,
		Urgency:              models.UrgencyLow,
	}
	d.AddReason("metrics stale, holding position")
	p.config.Publisher.DecisionMade(d)
	metrics.DecisionsTotal.WithLabelValues(serviceID, string(models.ActionMaintain)).Inc()
}
