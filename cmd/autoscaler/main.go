package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradefleet/fleet-autoscaler/api"
	"github.com/tradefleet/fleet-autoscaler/internal/backend"
	"github.com/tradefleet/fleet-autoscaler/internal/collector"
	"github.com/tradefleet/fleet-autoscaler/internal/decision"
	"github.com/tradefleet/fleet-autoscaler/internal/events"
	"github.com/tradefleet/fleet-autoscaler/internal/executor"
	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/internal/metrics"
	"github.com/tradefleet/fleet-autoscaler/internal/metricstore"
	"github.com/tradefleet/fleet-autoscaler/internal/orchestrator"
	"github.com/tradefleet/fleet-autoscaler/internal/policy"
	"github.com/tradefleet/fleet-autoscaler/internal/predictor"
	"github.com/tradefleet/fleet-autoscaler/internal/reporting"
	"github.com/tradefleet/fleet-autoscaler/internal/resilience"
	"github.com/tradefleet/fleet-autoscaler/internal/rules"
	"github.com/tradefleet/fleet-autoscaler/pkg/config"
	"github.com/tradefleet/fleet-autoscaler/pkg/database"
	"github.com/tradefleet/fleet-autoscaler/pkg/database/queries"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	demo := flag.Bool("demo", false, "run a self-contained scaling demo against mock metrics")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	if *demo {
		return runDemo(cfg)
	}

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.New(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		logger.Info("Database connection established")
	}

	if *migrate {
		if db == nil {
			return fmt.Errorf("migrations require database.enabled: true")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		logger.Info("Running database migrations")
		if err := database.NewMigrator(db).Run(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Migrations completed successfully")
		return nil
	}

	driver, err := backend.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create backend driver: %w", err)
	}
	defer driver.Close()

	sys := assemble(cfg, db, driver)

	if sim, ok := driver.(*backend.SimulatorDriver); ok {
		for _, svc := range cfg.Services {
			sim.InitializeService(svc.ID, svc.InitialInstances)
		}
	}

	if err := sys.orch.Start(); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer sys.orch.Stop()

	for _, svc := range cfg.Services {
		coll := buildCollector(cfg.Collector, svc.ID)
		if err := sys.orch.StartService(svc.ID, coll); err != nil {
			return fmt.Errorf("failed to start service %s: %w", svc.ID, err)
		}
		logger.WithService(svc.ID).Infof("Monitoring started (%s)", svc.Name)
	}

	server := api.NewServer(cfg.API, cfg.Prometheus, api.Deps{
		DB:       db,
		Manager:  sys.orch,
		Store:    sys.store,
		Engine:   sys.engine,
		Executor: sys.executor,
	})

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Infof("API server listening on port %d", cfg.API.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// system bundles the wired components main hands to the API server.
type system struct {
	orch     *orchestrator.Orchestrator
	store    *metricstore.Store
	engine   *decision.Engine
	executor *executor.Executor
}

// assemble wires the full decision path: store -> tracker/evaluator ->
// policy -> engine -> executor, plus the predictor, reporter, and event
// plumbing around it. db may be nil; persistence then stays in-memory.
func assemble(cfg *config.Config, db *database.DB, driver backend.Driver) *system {
	bus := events.NewEventBus(cfg.Events.BufferSize)
	store := metricstore.New(cfg.Events.BufferSize)

	tracker := rules.NewConditionTracker()
	evaluator := rules.NewEvaluator(tracker)
	tradingPolicy := policy.NewTradingPolicy(cfg.Trading)

	limits := cfg.Scaling.Limits.ToGlobalLimits()
	gate := decision.NewCooldownGate(limits.ScaleUpCooldown, limits.ScaleDownCooldown)

	ruleset := make([]*models.ScalingRule, len(cfg.Scaling.Rules))
	for i := range cfg.Scaling.Rules {
		ruleset[i] = &cfg.Scaling.Rules[i]
	}

	engine := decision.NewEngine(evaluator, tradingPolicy, gate, limits, ruleset, cfg.Scaling.Enabled)

	hooks := executor.NewHookSink(cfg.Executor.PreHooks, cfg.Executor.PostHooks,
		cfg.Executor.HookTimeout, events.NewPublisher(bus))
	exec := executor.New(driver, gate, hooks, events.NewPublisher(bus),
		limits, tradingPolicy.RedundancyFloor(), cfg.Executor.ScaleTimeout)

	deps := orchestrator.Deps{
		Store:     store,
		Engine:    engine,
		Executor:  exec,
		Tracker:   tracker,
		Predictor: predictor.New(engine, cfg.Predictor),
		EventBus:  bus,
	}

	if db != nil {
		decisions := queries.NewDecisionRepository(db.DB)
		scalings := queries.NewEventRepository(db.DB)
		deps.EventStore = &persistenceStore{decisions: decisions, events: scalings}
		deps.DecisionPruner = decisions
		deps.EventPruner = scalings
		deps.Reporter = reporting.NewReporter(&persistedHistory{decisions: decisions, events: scalings}, cfg.Reporting)
	} else {
		deps.Reporter = reporting.NewReporter(&memoryHistory{store: store, engine: engine, executor: exec}, cfg.Reporting)
	}

	return &system{
		orch:     orchestrator.New(cfg, deps),
		store:    store,
		engine:   engine,
		executor: exec,
	}
}

func buildCollector(cfg config.CollectorConfig, serviceID string) collector.Collector {
	var base collector.Collector
	switch cfg.Type {
	case "mock":
		base = collector.NewMockCollector(collector.MockCollectorConfig{
			BaseCPU:    50.0,
			BaseMemory: 55.0,
			Variance:   5.0,
		})
	default:
		base = collector.NewHTTPCollector(collector.HTTPCollectorConfig{
			Endpoint: cfg.Endpoint,
			Timeout:  cfg.Timeout,
		})
	}

	if cfg.CircuitBreaker.MaxFailures <= 0 {
		return base
	}
	return collector.NewResilientCollector(collector.ResilientCollectorConfig{
		Collector:   base,
		MaxFailures: cfg.CircuitBreaker.MaxFailures,
		Timeout:     cfg.CircuitBreaker.Timeout,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
			metrics.CircuitBreakerState.WithLabelValues(serviceID).Set(float64(to))
		},
	})
}

// persistenceStore pairs the two repositories behind the event logger's
// single persistence interface.
type persistenceStore struct {
	decisions *queries.DecisionRepository
	events    *queries.EventRepository
}

func (s *persistenceStore) SaveDecision(ctx context.Context, d *models.ScalingDecision) error {
	return s.decisions.SaveDecision(ctx, d)
}

func (s *persistenceStore) SaveScalingEvent(ctx context.Context, e *models.ScalingEvent) error {
	return s.events.SaveScalingEvent(ctx, e)
}

type persistedHistory struct {
	decisions *queries.DecisionRepository
	events    *queries.EventRepository
}

func (h *persistedHistory) DecisionsBetween(ctx context.Context, start, end time.Time) ([]*models.ScalingDecision, error) {
	return h.decisions.DecisionsBetween(ctx, start, end)
}

func (h *persistedHistory) EventsBetween(ctx context.Context, start, end time.Time) ([]*models.ScalingEvent, error) {
	return h.events.EventsBetween(ctx, start, end)
}

// memoryHistory reports from the in-memory rings when no database is
// configured. Coverage is bounded by the ring sizes.
type memoryHistory struct {
	store    *metricstore.Store
	engine   *decision.Engine
	executor *executor.Executor
}

func (h *memoryHistory) DecisionsBetween(ctx context.Context, start, end time.Time) ([]*models.ScalingDecision, error) {
	var out []*models.ScalingDecision
	for _, id := range h.store.ServiceIDs() {
		for _, d := range h.engine.History(id, 0) {
			if !d.Timestamp.Before(start) && d.Timestamp.Before(end) {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (h *memoryHistory) EventsBetween(ctx context.Context, start, end time.Time) ([]*models.ScalingEvent, error) {
	var out []*models.ScalingEvent
	for _, id := range h.store.ServiceIDs() {
		for _, e := range h.executor.Events(id, 0) {
			if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// runDemo drives a single mock-backed service through load phases so the
// whole decision path can be observed without a real fleet.
func runDemo(cfg *config.Config) error {
	const serviceID = "trading-demo"

	logger.Info("Running scaling demo")

	sim := backend.NewSimulatorDriver(backend.SimulatorConfig{
		ProvisionTime: 2 * time.Second,
		DrainTime:     1 * time.Second,
	})
	sim.InitializeService(serviceID, 3)

	mockColl := collector.NewMockCollector(collector.MockCollectorConfig{
		BaseCPU:    55.0,
		BaseMemory: 60.0,
		Variance:   5.0,
	})
	mockColl.SetServiceInstances(serviceID, 3)

	sys := assemble(cfg, nil, sim)

	if err := sys.orch.Start(); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	eventChan := sys.orch.SubscribeAllEvents()
	go func() {
		for event := range eventChan {
			if event.Type == models.EventTypeMetricCollected {
				continue
			}
			logger.Infof("[EVENT] %s: %s (service: %s, severity: %s)",
				event.Type, event.Message, event.ServiceID, event.Severity)
		}
	}()

	if err := sys.orch.StartService(serviceID, mockColl); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	ctx := context.Background()
	phases := []struct {
		name     string
		baseCPU  float64
		duration time.Duration
	}{
		{"Normal operation", 55.0, 15 * time.Second},
		{"High load", 85.0, 20 * time.Second},
		{"Critical load", 96.0, 10 * time.Second},
		{"Back to normal", 50.0, 10 * time.Second},
	}

	for i, phase := range phases {
		logger.Infof("=== Phase %d: %s (%s at %.0f%% CPU) ===",
			i+1, phase.name, phase.duration, phase.baseCPU)
		mockColl.SetBaseCPU(phase.baseCPU)
		time.Sleep(phase.duration)

		// Keep the mock's reported instance count in step with the fleet.
		if current, err := sim.CurrentInstances(ctx, serviceID); err == nil {
			mockColl.SetServiceInstances(serviceID, current)
		}
	}

	final, _ := sim.CurrentInstances(ctx, serviceID)
	logger.Infof("Demo finished: %s at %d instances, %d decisions recorded",
		serviceID, final, len(sys.engine.History(serviceID, 0)))

	if err := sys.orch.StopService(serviceID); err != nil {
		logger.Errorf("Failed to stop service: %v", err)
	}
	sys.orch.Stop()

	return nil
}
