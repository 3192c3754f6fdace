package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tradefleet/fleet-autoscaler/internal/collector"
	"github.com/tradefleet/fleet-autoscaler/internal/decision"
	"github.com/tradefleet/fleet-autoscaler/internal/events"
	"github.com/tradefleet/fleet-autoscaler/internal/executor"
	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/internal/metricstore"
	"github.com/tradefleet/fleet-autoscaler/internal/predictor"
	"github.com/tradefleet/fleet-autoscaler/internal/reporting"
	"github.com/tradefleet/fleet-autoscaler/internal/rules"
	"github.com/tradefleet/fleet-autoscaler/pkg/config"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// Retention is applied after each scheduled report.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Orchestrator owns the per-service pipelines plus the periodic side-tasks:
// prediction refresh, scheduled reports, and history retention.
type Orchestrator struct {
	config      *config.Config
	store       *metricstore.Store
	engine      *decision.Engine
	executor    *executor.Executor
	tracker     *rules.ConditionTracker
	predictor   *predictor.Predictor
	reporter    *reporting.Reporter
	eventBus    *events.EventBus
	eventLogger *events.EventLogger

	decisionPruner Pruner
	eventPruner    Pruner

	cron      *cron.Cron
	pipelines map[string]*Pipeline
	mu        sync.RWMutex

	predictions map[string]*models.Prediction
	lastReport  *reporting.Report
	predictStop chan struct{}
	predictDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

type Deps struct {
	Store          *metricstore.Store
	Engine         *decision.Engine
	Executor       *executor.Executor
	Tracker        *rules.ConditionTracker
	Predictor      *predictor.Predictor
	Reporter       *reporting.Reporter
	EventBus       *events.EventBus
	EventStore     events.Store
	DecisionPruner Pruner
	EventPruner    Pruner
}

func New(cfg *config.Config, deps Deps) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())

	eventLogger := events.NewEventLogger(deps.EventStore, deps.EventBus.SubscribeAll())

	return &Orchestrator{
		config:         cfg,
		store:          deps.Store,
		engine:         deps.Engine,
		executor:       deps.Executor,
		tracker:        deps.Tracker,
		predictor:      deps.Predictor,
		reporter:       deps.Reporter,
		eventBus:       deps.EventBus,
		eventLogger:    eventLogger,
		decisionPruner: deps.DecisionPruner,
		eventPruner:    deps.EventPruner,
		cron:           cron.New(),
		pipelines:      make(map[string]*Pipeline),
		predictions:    make(map[string]*models.Prediction),
		predictStop:    make(chan struct{}),
		predictDone:    make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (o *Orchestrator) Start() error {
	logger.Info("Orchestrator starting")
	o.eventLogger.Start()

	if o.reporter != nil && o.config.Reporting.Schedule != "" {
		if _, err := o.cron.AddFunc(o.config.Reporting.Schedule, o.runScheduledReport); err != nil {
			return fmt.Errorf("invalid report schedule %q: %w", o.config.Reporting.Schedule, err)
		}
	}
	o.cron.Start()

	if o.predictor != nil && o.config.Predictor.Enabled {
		go o.refreshPredictionsLoop()
	} else {
		close(o.predictDone)
	}

	if o.config.Alerts.Enabled {
		go o.drainAlerts(o.eventBus.Subscribe(models.EventTypeAlert))
	}
	return nil
}

// drainAlerts mirrors alert events into the log at a severity-matched
// level. External alert sinks subscribe to the bus themselves.
func (o *Orchestrator) drainAlerts(alerts <-chan *models.Event) {
	for event := range alerts {
		entry := logger.WithService(event.ServiceID)
		if event.Severity == models.SeverityCritical {
			entry.Errorf("ALERT: %s", event.Message)
		} else {
			entry.Warnf("ALERT: %s", event.Message)
		}
	}
}

func (o *Orchestrator) Stop() {
	logger.Info("Orchestrator stopping")

	o.mu.Lock()
	for serviceID, pipeline := range o.pipelines {
		logger.WithService(serviceID).Info("Stopping pipeline")
		pipeline.Stop()
	}
	o.mu.Unlock()

	close(o.predictStop)
	<-o.predictDone

	cronCtx := o.cron.Stop()
	<-cronCtx.Done()

	o.cancel()
	o.eventLogger.Stop()
	o.eventBus.Close()

	logger.Info("Orchestrator stopped")
}

// StartService launches the control loop for one service.
func (o *Orchestrator) StartService(serviceID string, coll collector.Collector) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.pipelines[serviceID]; exists {
		return fmt.Errorf("pipeline already exists for service %s", serviceID)
	}

	pipeline := NewPipeline(PipelineConfig{
		ServiceID:       serviceID,
		CollectInterval: o.config.Collector.Interval,
		CollectRetries:  o.config.Collector.RetryAttempts,
		Collector:       coll,
		Store:           o.store,
		Engine:          o.engine,
		Executor:        o.executor,
		Tracker:         o.tracker,
		Publisher:       events.NewPublisher(o.eventBus),
	})
	if err := pipeline.Start(); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	o.pipelines[serviceID] = pipeline
	return nil
}

func (o *Orchestrator) StopService(serviceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	pipeline, exists := o.pipelines[serviceID]
	if !exists {
		return fmt.Errorf("no pipeline found for service %s", serviceID)
	}

	pipeline.Stop()
	delete(o.pipelines, serviceID)
	return nil
}

func (o *Orchestrator) RunningServices() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	services := make([]string, 0, len(o.pipelines))
	for serviceID, pipeline := range o.pipelines {
		if pipeline.IsRunning() {
			services = append(services, serviceID)
		}
	}
	return services
}

// Prediction returns the latest forecast for a service, if one exists.
// ServiceState reports the control-loop position for one monitored service.
func (o *Orchestrator) ServiceState(serviceID string) (models.ServiceState, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	p, ok := o.pipelines[serviceID]
	if !ok {
		return "", false
	}
	return p.State(), true
}

// Forecast returns the service's load forecast. A positive horizonMinutes
// generates a fresh prediction over that window; zero serves the cached one
// from the refresh loop.
func (o *Orchestrator) Forecast(serviceID string, horizonMinutes int) (*models.Prediction, bool) {
	if horizonMinutes > 0 {
		if o.predictor == nil {
			return nil, false
		}
		o.mu.RLock()
		_, running := o.pipelines[serviceID]
		o.mu.RUnlock()
		if !running {
			return nil, false
		}
		return o.predictor.PredictHorizon(serviceID, time.Now(), horizonMinutes), true
	}
	return o.Prediction(serviceID)
}

func (o *Orchestrator) Prediction(serviceID string) (*models.Prediction, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.predictions[serviceID]
	return p, ok
}

// LastReport returns the most recent scheduled report, if any.
func (o *Orchestrator) LastReport() *reporting.Report {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastReport
}

// GenerateReport builds an on-demand report for the window and remembers it.
func (o *Orchestrator) GenerateReport(ctx context.Context, start, end time.Time) (*reporting.Report, error) {
	if o.reporter == nil {
		return nil, fmt.Errorf("reporting not configured")
	}
	report, err := o.reporter.Generate(ctx, start, end)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.lastReport = report
	o.mu.Unlock()
	return report, nil
}

func (o *Orchestrator) SubscribeEvents(eventType models.EventType) <-chan *models.Event {
	return o.eventBus.Subscribe(eventType)
}

func (o *Orchestrator) SubscribeAllEvents() <-chan *models.Event {
	return o.eventBus.SubscribeAll()
}

func (o *Orchestrator) refreshPredictionsLoop() {
	defer close(o.predictDone)

	interval := o.config.Predictor.RefreshInterval
	if interval == 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.predictStop:
			return
		case <-ticker.C:
			o.refreshPredictions()
		}
	}
}

func (o *Orchestrator) refreshPredictions() {
	now := time.Now()
	for _, serviceID := range o.RunningServices() {
		prediction := o.predictor.Predict(serviceID, now)

		o.mu.Lock()
		o.predictions[serviceID] = prediction
		o.mu.Unlock()

		logger.WithService(serviceID).Debugf("Prediction refreshed: trend=%s rate=%.2f",
			prediction.Trend, prediction.TrendRate)
	}
}

func (o *Orchestrator) runScheduledReport() {
	end := time.Now()
	start := end.Add(-24 * time.Hour)

	if _, err := o.GenerateReport(o.ctx, start, end); err != nil {
		logger.Errorf("Scheduled report failed: %v", err)
		return
	}
	o.pruneHistory()
}

func (o *Orchestrator) pruneHistory() {
	if o.decisionPruner != nil && o.config.Reporting.DecisionRetentionDays > 0 {
		retention := time.Duration(o.config.Reporting.DecisionRetentionDays) * 24 * time.Hour
		if n, err := o.decisionPruner.Prune(o.ctx, retention); err != nil {
			logger.Errorf("Decision pruning failed: %v", err)
		} else if n > 0 {
			logger.Infof("Pruned %d decisions past retention", n)
		}
	}
	if o.eventPruner != nil && o.config.Reporting.EventRetentionDays > 0 {
		retention := time.Duration(o.config.Reporting.EventRetentionDays) * 24 * time.Hour
		if n, err := o.eventPruner.Prune(o.ctx, retention); err != nil {
			logger.Errorf("Event pruning failed: %v", err)
		} else if n > 0 {
			logger.Infof("Pruned %d scaling events past retention", n)
		}
	}
}
