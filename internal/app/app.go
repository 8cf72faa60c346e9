package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"keyforge/internal/config"
	apierrors "keyforge/internal/errors"
	"keyforge/internal/events"
	"keyforge/internal/infrastructure"
	"keyforge/internal/keys"
	customMiddleware "keyforge/internal/middleware"
	"keyforge/internal/notify"
	"keyforge/internal/scheduler"
	"keyforge/internal/services"
	"keyforge/internal/store"
	handlers "keyforge/internal/transport/http"
	"keyforge/pkg/contracts"
)

const AppName = "keyforge"

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Backend       *store.Backend
	Manager       *keys.Manager
	KeyService    services.KeyService
	HealthService *services.HealthService
	Notifier      *notify.Notifier
	EventHub      *events.Hub
	Scheduler     *scheduler.Scheduler
	ErrorHandler  *apierrors.ErrorHandler

	started time.Time
}

// NewApplication wires every component from cfg. The caller owns logger setup.
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	a := &Application{
		Config:  cfg,
		Logger:  logger,
		started: time.Now(),
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = providers
	if err := infrastructure.RegisterRuntimeMetrics(providers.Meter, a.started); err != nil {
		logger.WarnContext(ctx, "runtime metrics unavailable", slog.String("error", err.Error()))
	}

	if err := a.initializeServices(ctx); err != nil {
		_ = providers.Shutdown(ctx)
		return nil, err
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

func (a *Application) initializeServices(ctx context.Context) error {
	cfg := a.Config

	backend, err := store.Open(ctx, store.ConfigFrom(cfg.Store), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open key store: %w", err)
	}
	a.Backend = backend

	keyMetrics, err := keys.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create key metrics: %w", err)
	}
	a.Manager = keys.NewManager(backend.Store,
		keys.WithLocker(backend.Locker),
		keys.WithIDGenerator(keys.UUIDGenerator{Length: cfg.Keys.IDLength}),
		keys.WithLimits(keys.Limits{
			MaxBatch: cfg.Keys.MaxBatch,
			MinTTL:   keys.DefaultMinTTL,
			MaxTTL:   cfg.Keys.MaxTTL(),
		}),
		keys.WithLogger(a.Logger),
		keys.WithMetrics(keyMetrics),
		keys.WithTracer(a.OTelProviders.Tracer),
	)

	a.Notifier = notify.New(cfg.Webhook, a.Logger)

	hubMetrics, err := events.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create event metrics: %w", err)
	}
	a.EventHub = events.NewHub(events.Options{
		PingPeriod: cfg.WebSocket.PingPeriod,
		PongWait:   cfg.WebSocket.PongWait,
	}, hubMetrics, a.Logger)

	a.KeyService = services.NewKeyService(a.Manager,
		services.MultiPublisher{a.Notifier, a.EventHub}, a.Logger)

	a.HealthService = services.NewHealthService(map[string]services.Pinger{
		"store": backend,
	}, a.Logger)

	a.Scheduler = scheduler.New(cfg.Scheduler, a.KeyService, a.Logger)
	a.ErrorHandler = apierrors.NewErrorHandler(a.Logger, false)
	return nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()
	eh := a.ErrorHandler

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
	} else {
		r.Use(otelMiddleware.Handler)
	}
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(eh))
	r.Use(customMiddleware.SecurityHeaders)
	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(a.getCORSConfig()))
	}

	if len(a.Config.Security.AdminAPIKeys) == 0 {
		a.Logger.Warn("no admin API keys configured, admin routes are unauthenticated")
	}

	keyHandler := handlers.NewKeyHandler(a.KeyService, eh, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	exportHandler := handlers.NewExportHandler(a.KeyService, eh, a.Logger)
	eventsHandler := handlers.NewEventsHandler(a.EventHub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.Logger)

	r.Route("/api", func(r chi.Router) {
		// The event stream is long lived, so it sits outside the request timeout
		r.With(customMiddleware.APIKeyAuth(a.Logger, eh, a.Config.Security.AdminAPIKeys)).
			Get("/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))
			r.Use(customMiddleware.BodyLimit(a.Config.Server.MaxBodyBytes))

			r.Post("/validate", keyHandler.Validate)
			r.Get("/health", healthHandler.HealthCheck)
			r.Get("/health/ready", healthHandler.ReadinessCheck)
			r.Get("/health/live", healthHandler.LivenessCheck)
			r.Get("/version", healthHandler.Version)

			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.APIKeyAuth(a.Logger, eh, a.Config.Security.AdminAPIKeys))
				r.Use(customMiddleware.AuditLog(a.Logger))
				keyHandler.Register(r)
				r.Get("/export", exportHandler.Export)
			})
		})
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.NotFound(eh.NotFound)
	r.MethodNotAllowed(eh.MethodNotAllowed)

	a.Router = r
}

func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Content-Type", "X-Request-ID", customMiddleware.APIKeyHeader,
		},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start runs the server, the event hub and the scheduler until ctx is
// cancelled or one of them fails.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("addr", a.Server.Addr),
		slog.String("store", a.Backend.Name),
		slog.Bool("webhook", a.Notifier.Enabled()),
		slog.String("level", a.Config.Logging.Level))

	if err := a.performStartupHealthCheck(ctx); err != nil {
		_ = a.Stop(ctx)
		return err
	}

	a.EventHub.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.Scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	a.Logger.InfoContext(ctx, "Application started successfully", slog.String("addr", a.Server.Addr))
	return g.Wait()
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}
	if err := a.EventHub.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("event hub shutdown error: %w", err))
	}
	if err := a.Notifier.Close(shutdownCtx); err != nil {
		a.Logger.WarnContext(ctx, "Webhook queue not drained", slog.String("error", err.Error()))
	}
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close error: %w", err))
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// Run runs the application until SIGINT or SIGTERM
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Start(ctx)
}

// performStartupHealthCheck loads the key document once so a corrupt or
// unreadable store stops the process before it starts serving.
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.Backend.Ping(checkCtx); err != nil {
		return fmt.Errorf("key store unreachable: %w", err)
	}
	stats, err := a.KeyService.Stats(checkCtx)
	if err != nil {
		return fmt.Errorf("key store unreadable: %w", err)
	}
	a.Logger.InfoContext(ctx, "Key store loaded",
		slog.String("backend", a.Backend.Name),
		slog.Int("total", stats.TotalKeys),
		slog.Int("active", stats.Active),
		slog.Int("bound", stats.Bound))
	return nil
}
