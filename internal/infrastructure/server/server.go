package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/HeadUnit/backend/internal/api/http"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/api/middleware"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/app"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/hmi"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/policy"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/domain/resumption"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/persistence"
	"github.com/GriffinCanCode/HeadUnit/backend/internal/shared/types"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	registry   *app.Manager
	ctrl       *resumption.Controller
	dispatcher *hmi.Dispatcher
	transport  *hmi.WSTransport
	store      persistence.Store
	policy     *policy.Policy
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing resumption service",
		zap.String("port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("storage_path", cfg.Storage.Path),
	)

	// Metrics go to a private registry so several servers can coexist in tests
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	store, err := persistence.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load policy table: %w", err)
	}

	breaker := resilience.New("store", resilience.Settings{
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Store breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	registry := app.NewManager(logger.Component("apps")).WithMetrics(metrics)
	transport := hmi.NewWSTransport(logger.Component("hmi"))
	dispatcher := hmi.NewDispatcher(transport, cfg.HMI.RequestTimeout, logger.Component("hmi")).WithMetrics(metrics)

	ctrl := resumption.New(resumption.ConfigFrom(cfg), store, registry, dispatcher, pol, logger.Logger).
		WithMetrics(metrics).
		WithBreaker(breaker)
	registry.WithReservedHMIAppIDs(ctrl.IsHMIApplicationIDReserved)

	s := &Server{
		registry:   registry,
		ctrl:       ctrl,
		dispatcher: dispatcher,
		transport:  transport,
		store:      store,
		policy:     pol,
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
	}

	transport.Bind(hmi.Handlers{
		Response:     func(ev hmi.Event) { dispatcher.Deliver(ev) },
		Notification: s.onNotification,
		Disconnected: s.onHMIDisconnected,
	})

	// A storage failure leaves the controller running with no saved data
	if err := ctrl.Init(context.Background()); err != nil {
		logger.Error("Failed to load resumption data", zap.Error(err))
	}

	s.router = s.newRouter(reg)

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) newRouter(gatherer prometheus.Gatherer) *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(s.logger.Component("http")))
	router.Use(monitoring.Middleware(s.metrics, "/hmi"))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(s.config.Server.AllowOrigins)))
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		rl.Burst = s.config.RateLimit.Burst
		rl.Skip = middleware.SkipPaths("/hmi")
		router.Use(middleware.RateLimit(rl))
	}

	handlers := api.NewHandlers(s.registry, s.ctrl, s.logger.Logger).
		WithHMI(s.transport, s.dispatcher).
		WithMetrics(s.metrics)
	handlers.Register(router)

	api.NewMetricsAggregator(s.metrics, gatherer, s.registry, s.ctrl).Register(router)

	level := gin.WrapH(s.logger.LevelHandler())
	router.GET("/log/level", level)
	router.PUT("/log/level", level)

	// Head unit channel
	router.GET("/hmi", s.transport.HandleConnection)

	return router
}

// Router returns the HTTP handler of the server
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Controller returns the resumption controller
func (s *Server) Controller() *resumption.Controller {
	return s.ctrl
}

// Run starts the HTTP server and blocks until it is shut down
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, flushes resumption data and releases
// the store
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
		}
	}

	if err := s.ctrl.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to flush resumption data", zap.Error(err))
		errs = append(errs, err)
	}
	s.dispatcher.CancelAll()
	if err := s.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close hmi connection: %w", err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close store", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}

	// Sync logger before exit
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

// onNotification handles notifications from the head unit
func (s *Server) onNotification(method string, params map[string]any) {
	switch method {
	case hmi.MethodOnAppActivated:
		a, ok := s.appFromParams(params)
		if !ok {
			return
		}
		s.ctrl.OnAppActivated(a)
		s.registry.SetHMILevel(a.ID, types.HMILevelFull)
		if a.IsAudioApp() {
			s.registry.SetAudioStreamingState(a.ID, types.AudioAudible)
		}

	case hmi.MethodOnAppDeactivated:
		a, ok := s.appFromParams(params)
		if !ok {
			return
		}
		level := types.HMILevelBackground
		if a.IsAudioApp() {
			level = types.HMILevelLimited
		}
		s.registry.SetHMILevel(a.ID, level)

	case hmi.MethodOnExitAllApplications:
		reason, _ := params["reason"].(string)
		switch reason {
		case "SUSPEND", "IGNITION_OFF":
			if err := s.ctrl.OnSuspend(context.Background()); err != nil {
				s.logger.Error("Failed to save state at ignition off", zap.Error(err))
			}
		default:
			s.logger.Debug("Ignoring exit reason", zap.String("reason", reason))
		}

	case hmi.MethodOnAwakeSDL:
		s.ctrl.OnAwake()

	default:
		s.logger.Debug("Unhandled hmi notification", zap.String("method", method))
	}
}

func (s *Server) onHMIDisconnected() {
	if n := s.dispatcher.CancelAll(); n > 0 {
		s.logger.Warn("Head unit disconnected with requests in flight", zap.Int("cancelled", n))
	}
}

// appFromParams resolves the appID parameter, an HMI app id, to a live application
func (s *Server) appFromParams(params map[string]any) (*types.App, bool) {
	raw, ok := params["appID"].(float64)
	if !ok || raw <= 0 {
		s.logger.Warn("Notification without a valid appID")
		return nil, false
	}
	a, ok := s.registry.FindByHMIAppID(uint32(raw))
	if !ok {
		s.logger.Warn("Notification for unknown application", zap.Uint32("hmi_app_id", uint32(raw)))
	}
	return a, ok
}
