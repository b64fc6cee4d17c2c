package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rubenelhore/simonkey-identity/internal/config"
	"github.com/rubenelhore/simonkey-identity/internal/handlers"
	"github.com/rubenelhore/simonkey-identity/internal/identity"
	"github.com/rubenelhore/simonkey-identity/internal/logger"
	"github.com/rubenelhore/simonkey-identity/internal/middleware"
	"github.com/rubenelhore/simonkey-identity/internal/queue"
	"github.com/rubenelhore/simonkey-identity/internal/reconcile"
	"github.com/rubenelhore/simonkey-identity/internal/services/oidc"
	"github.com/rubenelhore/simonkey-identity/internal/session"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"github.com/rubenelhore/simonkey-identity/internal/telemetry"
	"github.com/rubenelhore/simonkey-identity/internal/verification"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewProductionLogger(cfg.ServerDebugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", cfg.ServerDebugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("oidc_issuer", cfg.OIDCIssuer),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// Initialize OpenTelemetry if enabled
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), "simonkey-identity", cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	// Identity policy: precedence order and verification limits
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		zapLogger.Fatal("failed_to_load_identity_policy", zap.Error(err))
	}

	// Connect to the record store
	records, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := records.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	// Connect to Redis for the session cache (also backs rate limiting)
	sessions, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	// Connect to RabbitMQ for the reconcile job queue (optional). Retry with
	// exponential backoff to handle broker startup delays.
	var jobQueue queue.JobQueue
	if cfg.RabbitMQURL != "" {
		const maxRetries = 10
		const initialDelay = 2 * time.Second

		for attempt := 0; attempt < maxRetries; attempt++ {
			jobQueue, err = queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger)
			if err == nil {
				zapLogger.Info("connected_to_rabbitmq")
				break
			}

			delay := initialDelay * time.Duration(1<<uint(attempt))
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
			zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", maxRetries),
				zap.Error(err),
				zap.Duration("retry_delay", delay),
			)
			time.Sleep(delay)
		}
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		defer func() {
			if err := jobQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
	} else {
		zapLogger.Warn("rabbitmq_not_configured_reconcile_runs_inline")
	}

	// Initialize services
	resolver := identity.NewResolver(records, zapLogger, identity.WithPrecedence(policy.Precedence()))
	reconciler := reconcile.NewReconciler(records, policy.Precedence(), zapLogger)
	verificationSvc := verification.NewService(records, policy.VerificationPolicy(), &verification.LogSender{Logger: zapLogger}, zapLogger)

	manager := session.NewManager(resolver, records, sessions, zapLogger)
	if err := manager.Start(context.Background()); err != nil {
		zapLogger.Fatal("failed_to_start_session_manager", zap.Error(err))
	}
	defer func() {
		if err := manager.Stop(); err != nil {
			zapLogger.Warn("failed_to_stop_session_manager", zap.Error(err))
		}
	}()

	oidcConfig := oidc.ProviderConfig{
		Issuer:       cfg.OIDCIssuer,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURI:  cfg.OIDCRedirectURI,
		JWKSURL:      cfg.OIDCJWKSURL,
	}
	oidcProvider := oidc.NewProvider(oidcConfig)
	oidcClient := oidc.NewClient(oidcConfig)
	verifier := oidc.NewVerifier(oidc.NewKeyCache(cfg.OIDCJWKSURL), cfg.OIDCIssuer)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(oidcProvider, oidcClient, verifier, manager, verificationSvc, zapLogger)
	adminHandler := handlers.NewAdminHandler(reconciler, jobQueue, zapLogger)
	healthChecker := handlers.NewHealthChecker(records, sessions, jobQueue)

	// Setup router. Middleware executes in registration order, outermost first.
	r := mux.NewRouter()

	if cfg.OTELEnabled {
		r.Use(otelmux.Middleware("simonkey-identity"))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORS(cfg.FrontendURL))
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	rateLimitMW, err := middleware.RateLimit(sessions.Client(), middleware.DefaultRateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	// Public routes (no rate limiting for health checks)
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")

	apiRouter := r.PathPrefix("/api/v1").Subrouter()

	// Public auth routes
	authRouter := apiRouter.PathPrefix("/auth").Subrouter()
	authRouter.Use(rateLimitMW)
	authHandler.RegisterPublicRoutes(authRouter)

	// Protected routes share the /auth prefix; the subrouters' route sets are
	// disjoint so match order settles it
	protectedRouter := apiRouter.PathPrefix("/auth").Subrouter()
	protectedRouter.Use(middleware.Auth(manager, verifier, zapLogger))
	protectedRouter.Use(rateLimitMW)
	authHandler.RegisterProtectedRoutes(protectedRouter)

	// Admin routes
	adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.AdminToken(cfg.AdminToken))
	adminHandler.RegisterRoutes(adminRouter)

	// Preflight requests; CORS middleware has already set the headers
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// DLQ garbage collector: run every hour, retain messages for 24 hours
	if dlqPurger, ok := jobQueue.(queue.DLQPurger); ok {
		dlqGC := queue.NewGarbageCollector(dlqPurger, 1*time.Hour, 24*time.Hour, zapLogger)
		go func() {
			if err := dlqGC.Start(bgCtx); err != nil && err != context.Canceled {
				zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_dlq_garbage_collector",
			zap.Duration("interval", 1*time.Hour),
			zap.Duration("retention", 24*time.Hour),
		)
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
