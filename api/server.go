package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradefleet/fleet-autoscaler/api/handlers"
	"github.com/tradefleet/fleet-autoscaler/api/middleware"
	"github.com/tradefleet/fleet-autoscaler/api/websocket"
	"github.com/tradefleet/fleet-autoscaler/internal/auth"
	"github.com/tradefleet/fleet-autoscaler/internal/decision"
	"github.com/tradefleet/fleet-autoscaler/internal/executor"
	"github.com/tradefleet/fleet-autoscaler/internal/metricstore"
	"github.com/tradefleet/fleet-autoscaler/pkg/config"
	"github.com/tradefleet/fleet-autoscaler/pkg/database"
	"github.com/tradefleet/fleet-autoscaler/pkg/database/queries"
)

// Manager is the orchestrator surface the API depends on.
type Manager interface {
	handlers.ServiceManager
	handlers.ReportGenerator
}

type Deps struct {
	DB       *database.DB // nil when persistence is disabled
	Manager  Manager
	Store    *metricstore.Store
	Engine   *decision.Engine
	Executor *executor.Executor
}

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.APIConfig
	deps        Deps
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
	wsMetrics   *websocket.MetricsStream
}

func NewServer(cfg config.APIConfig, prometheusCfg config.PrometheusConfig, deps Deps) *Server {
	if cfg.JWTSecret == "" || cfg.JWTSecret == "change-me-in-production" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtDuration := cfg.JWTDuration
	if jwtDuration == 0 {
		jwtDuration = 24 * time.Hour
	}

	s := &Server{
		router:      gin.New(),
		config:      cfg,
		deps:        deps,
		authService: auth.NewService(cfg.JWTSecret, jwtDuration),
		wsHub:       websocket.NewHub(),
	}

	s.setupMiddleware()
	s.setupRoutes(prometheusCfg.Enabled)

	go s.wsHub.Run()

	if deps.Manager != nil {
		s.wsBridge = websocket.NewEventBridge(s.wsHub, deps.Manager.SubscribeAllEvents())
		s.wsBridge.Start()
	}
	if deps.Store != nil {
		s.wsMetrics = websocket.NewMetricsStream(s.wsHub, deps.Store)
		s.wsMetrics.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestSizeLimit(1 << 20))

	rateLimiter := middleware.NewRateLimiter(s.config.RateLimit, time.Minute)
	s.router.Use(middleware.RateLimit(rateLimiter))
}

func (s *Server) setupRoutes(prometheusEnabled bool) {
	var userRepo *queries.UserRepository
	var decisionsRepo *queries.DecisionRepository
	var eventsRepo *queries.EventRepository
	if s.deps.DB != nil {
		userRepo = queries.NewUserRepository(s.deps.DB.DB)
		decisionsRepo = queries.NewDecisionRepository(s.deps.DB.DB)
		eventsRepo = queries.NewEventRepository(s.deps.DB.DB)
	}

	healthHandler := handlers.NewHealthHandler(s.deps.DB, s.deps.Store, s.deps.Executor)
	authHandler := handlers.NewAuthHandler(userRepo, s.authService)
	servicesHandler := handlers.NewServicesHandler(
		s.deps.Manager, s.deps.Store, s.deps.Engine, s.deps.Executor, decisionsRepo, eventsRepo)
	reportsHandler := handlers.NewReportsHandler(s.deps.Manager)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	if prometheusEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	s.router.POST("/auth/login", middleware.AuthRateLimiter(), authHandler.Login)

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	protected := s.router.Group("/")
	if s.deps.DB != nil && s.config.JWTSecret != "" {
		protected.Use(middleware.JWTAuth(s.authService))
	}
	{
		protected.GET("/status", servicesHandler.Status)
		protected.GET("/services", servicesHandler.List)
		protected.GET("/services/:id/metrics", servicesHandler.GetMetrics)
		protected.GET("/services/:id/decisions", servicesHandler.GetDecisions)
		protected.GET("/services/:id/events", servicesHandler.GetEvents)
		protected.GET("/services/:id/predictions", servicesHandler.GetPrediction)
		protected.POST("/services/:id/scale", servicesHandler.ManualScale)
		protected.POST("/services/:id/emergency/scale-down", servicesHandler.EmergencyScaleDown)
		protected.POST("/services/:id/rollback", servicesHandler.Rollback)

		protected.GET("/scaling/enabled", servicesHandler.GetScalingEnabled)
		protected.POST("/scaling/enabled", servicesHandler.SetScalingEnabled)

		protected.POST("/reports/generate", reportsHandler.Generate)
		protected.GET("/reports/latest", reportsHandler.Latest)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	if s.wsMetrics != nil {
		s.wsMetrics.Stop()
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
