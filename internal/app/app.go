// Package app wires the subtitle job service's components into one
// long-running process: the API/Dispatcher and Live-Log Subscriber HTTP
// surfaces, and a pool of Supervisor workers draining the Broker queue.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"subsvc/internal/allowlist"
	"subsvc/internal/broker"
	"subsvc/internal/config"
	"subsvc/internal/dispatcher"
	"subsvc/internal/infrastructure"
	"subsvc/internal/jobstore"
	"subsvc/internal/logbus"
	customMiddleware "subsvc/internal/middleware"
	"subsvc/internal/supervisor"
	httptransport "subsvc/internal/transport/http"
	"subsvc/internal/transport/ws"
)

// Application is the process container: every long-lived component plus
// the lifecycle (Start/Stop/Run) that owns them.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Router        *chi.Mux
	Server        *http.Server
	OTelProviders *infrastructure.OTelProviders

	Store      jobstore.Store
	Broker     broker.Broker
	AllowList  *allowlist.AllowList
	LogBus     *logbus.Bus
	Dispatcher *dispatcher.Dispatcher

	workerWG   sync.WaitGroup
	workerStop chan struct{}
	cancelWork context.CancelFunc
}

// NewApplication loads configuration and constructs every component, but
// does not yet start the HTTP server or worker pool — that is Start's job.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", cfg.Server.Port))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	store := jobstore.NewMemoryStore()
	brk := broker.NewInProcessBroker(cfg.Broker.QueueDepth, logger)

	allowList, err := allowlist.LoadFile(cfg.AllowList.FilePath, logger)
	if err != nil {
		logger.Warn("allow-list file not loaded, starting with an empty allow-list",
			slog.String("path", cfg.AllowList.FilePath), slog.String("error", err.Error()))
		allowList = allowlist.New(nil, logger)
	}

	bus := logbus.NewBusWithRetention(cfg.LogBus.HistoryCap, cfg.LogBus.ClosedTopicRetention(), logger)
	disp := dispatcher.New(store, brk, allowList, logger)

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Store:         store,
		Broker:        brk,
		AllowList:     allowList,
		LogBus:        bus,
		Dispatcher:    disp,
		workerStop:    make(chan struct{}),
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// parseTenantTokens decodes SecurityConfig.TenantTokens's
// "token=user_id:role,token2=user2:role2" format into the bearer-token
// table StaticTokenAuth validates against.
func parseTenantTokens(raw string) []customMiddleware.TenantToken {
	var tokens []customMiddleware.TenantToken
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 {
			continue
		}
		userRole := strings.SplitN(kv[1], ":", 2)
		userID := userRole[0]
		isAdmin := len(userRole) == 2 && userRole[1] == "admin"
		tokens = append(tokens, customMiddleware.TenantToken{Token: kv[0], UserID: userID, IsAdmin: isAdmin})
	}
	return tokens
}

// setupRouter assembles the chi router: request-scoped middleware first,
// then the /jobs REST surface and the /jobs/{id}/logs WebSocket route
// mounted alongside it (spec §6.1).
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	tokenAuth := customMiddleware.NewStaticTokenAuth(parseTenantTokens(a.Config.Security.TenantTokens))

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		businessMetrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
		if err != nil {
			a.Logger.Error("failed to create business metrics", slog.String("error", err.Error()))
		} else {
			r.Use(customMiddleware.BusinessMetricsMiddleware(businessMetrics))
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)

		corsConfig := customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}
		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(corsConfig))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		r.Use(render.SetContentType(render.ContentTypeJSON))

		jobsHandler := httptransport.NewJobsHandler(a.Dispatcher, a.Config.Security.WebhookSecret, a.Logger)
		jobsHandler.SetAuthMiddleware(customMiddleware.AuthMiddleware(a.Logger, tokenAuth))
		if businessMetrics != nil {
			jobsHandler.SetMetrics(businessMetrics)
		}
		r.Mount("/jobs", jobsHandler.Routes())
	})

	wsHandler := ws.NewHandler(a.Dispatcher, a.LogBus, tokenAuth, a.Config.Security.AllowedOrigins, a.Logger)
	r.Get("/jobs/{id}/logs", wsHandler.ServeHTTP)

	healthHandler := httptransport.NewHealthHandler(a.Store)
	r.Mount("/", healthHandler.Routes())

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         ":" + strconv.Itoa(a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start launches the HTTP server and the Supervisor worker pool, returning
// once both are running. cancel is invoked if the server dies unexpectedly
// so Run's signal-wait loop unblocks and shuts everything down.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)),
		slog.Int("workers", a.Config.Broker.Workers))

	workerCtx, cancelWork := context.WithCancel(ctx)
	a.cancelWork = cancelWork
	a.startWorkers(workerCtx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started successfully")
	return nil
}

// startWorkers runs cfg.Broker.Workers goroutines, each dequeuing a Task
// and handing it to a fresh Supervisor per spec §4.2.
func (a *Application) startWorkers(ctx context.Context) {
	supervisorCfg := supervisor.Config{
		ScriptPath:          a.Config.Job.WorkerScriptPath,
		JobTimeout:          a.Config.Job.Timeout(),
		TerminateGrace:      a.Config.Job.TerminateGracePeriod(),
		ResultMessageMaxLen: a.Config.Job.ResultMessageMaxLen,
		LogSnippetMaxLen:    a.Config.Job.LogSnippetMaxLen,
	}

	for i := 0; i < a.Config.Broker.Workers; i++ {
		workerID := i
		a.workerWG.Add(1)
		go func() {
			defer a.workerWG.Done()
			logger := a.Logger.With(slog.Int("worker_id", workerID))
			for {
				select {
				case <-a.workerStop:
					return
				default:
				}

				task, err := a.Broker.Dequeue(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Warn("dequeue failed, retrying", slog.String("error", err.Error()))
					time.Sleep(time.Second)
					continue
				}

				sup := supervisor.New(a.Store, a.LogBus, a.Broker, supervisorCfg, logger)
				if err := sup.Run(ctx, task); err != nil {
					logger.Error("supervisor run failed, task not acknowledged", slog.String("job_id", task.JobID), slog.String("error", err.Error()))
				}
			}
		}()
	}
}

// Stop gracefully shuts the HTTP server, the worker pool, and OTel down.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	close(a.workerStop)
	if a.cancelWork != nil {
		a.cancelWork()
	}
	a.workerWG.Wait()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run starts the application and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	<-sigChan
	a.Logger.InfoContext(ctx, "received interrupt signal")

	return a.Stop(ctx)
}
