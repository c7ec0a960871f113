package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/queaccounting/backend/internal/featureflags"
	"github.com/queaccounting/backend/internal/handler"
	"github.com/queaccounting/backend/internal/infrastructure/logger"
	"github.com/queaccounting/backend/internal/infrastructure/redis"
	"github.com/queaccounting/backend/internal/observability/metrics"
	"github.com/queaccounting/backend/internal/observability/tracing"
	"github.com/queaccounting/backend/internal/repository"
	"github.com/queaccounting/backend/internal/respond"
	"github.com/queaccounting/backend/internal/security/audit"
	"github.com/queaccounting/backend/internal/security/auth"
	"github.com/queaccounting/backend/internal/security/middleware"
	"github.com/queaccounting/backend/internal/security/ratelimit"
	"github.com/queaccounting/backend/internal/service"
	"github.com/queaccounting/backend/internal/worker"
	"github.com/queaccounting/backend/pkg/config"
	"github.com/queaccounting/backend/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting QUE Accounting server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing (no-op without an OTLP endpoint configured)
	shutdownTracing, err := tracing.Init(ctx, log, "queaccounting-backend", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// 4. Initialize postgres connection pool
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}, log)
	if err != nil {
		log.Error("failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	db := pool.GetDB()

	// 5. Initialize Redis. The subscription cache degrades to postgres-only
	// when Redis is down, so a failure here is not fatal.
	redisClient, err := redis.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Warn("redis unavailable, subscription checks will hit postgres directly",
			slog.String("error", err.Error()))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// 6. Initialize repositories
	userRepo := repository.NewPostgresUserRepository(db, log)
	businessRepo := repository.NewPostgresBusinessRepository(db, log)
	subscriptionRepo := repository.NewPostgresSubscriptionRepository(db, log)
	membershipRepo := repository.NewPostgresMembershipRepository(db, log)
	roleRepo := repository.NewPostgresRoleRepository(db, log)
	permissionRepo := repository.NewPostgresPermissionRepository(db, log)
	provisioningRepo := repository.NewPostgresProvisioningRepository(db, log)
	customerRepo := repository.NewPostgresCustomerRepository(db, log)
	invoiceRepo := repository.NewPostgresInvoiceRepository(db, log)

	// 7. Initialize security components
	tokenManager := auth.NewTokenManager(
		cfg.JWTSecret,
		cfg.JWTIssuer,
		cfg.JWTAudience,
		time.Duration(cfg.AccessTTLDays)*24*time.Hour,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour,
	)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	auditLogger := audit.NewLogger(log)

	// 8. Initialize services
	authService := service.NewAuthService(userRepo, membershipRepo, tokenManager,
		cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, log)
	permissionService := service.NewPermissionService(permissionRepo, membershipRepo, auditLogger, log)
	subscriptionService := service.NewSubscriptionService(subscriptionRepo, businessRepo,
		redisClient, cfg.SubscriptionCacheTTL, auditLogger, log)
	businessService := service.NewBusinessService(provisioningRepo, businessRepo,
		membershipRepo, userRepo, authService, auditLogger, log)
	memberService := service.NewMemberService(membershipRepo, roleRepo, userRepo,
		businessRepo, auditLogger, log)
	invoiceService := service.NewInvoiceService(invoiceRepo, customerRepo, log)

	// 9. Initialize handlers
	authHandler := handler.NewAuthHandler(authService, rateLimiter, log)
	businessHandler := handler.NewBusinessHandler(businessService, log)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService, log)
	memberHandler := handler.NewMemberHandler(memberService, log)
	permissionHandler := handler.NewPermissionHandler(permissionService, log)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, log)
	healthHandler := handler.NewHealthHandler(pool, redisClient, log)

	// 10. Initialize middleware
	authMW := middleware.NewAuthMiddleware(tokenManager, userRepo, log)
	tenantMW := middleware.NewTenantMiddleware(membershipRepo, businessRepo, userRepo, log)
	subGate := middleware.NewSubscriptionGate(subscriptionService, log)
	permMW := middleware.NewPermissionMiddleware(permissionService, auditLogger, log)

	remembered := middleware.TenantOptions{Strategy: middleware.StrategyRemembered}
	ownerFallback := middleware.TenantOptions{
		Strategy:           middleware.StrategyRemembered,
		AllowOwnerFallback: true,
	}
	gateRead := subGate.Require(middleware.GateReadOnly)
	gateStrict := subGate.Require(middleware.GateStrict)
	tenantAdmin := middleware.RequireTenantAdmin(log)
	rateLimit := rateLimitByTenant(rateLimiter, log)

	// authOnly guards routes needing only a valid principal; tenantRoute adds
	// tenant resolution, per-business rate limiting and route-specific checks.
	authOnly := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, authMW.Authenticate)
	}
	superOnly := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, authMW.Authenticate, middleware.RequireSuperAdmin(log))
	}
	tenantRoute := func(h http.HandlerFunc, opts middleware.TenantOptions, extra ...func(http.Handler) http.Handler) http.Handler {
		wrappers := []func(http.Handler) http.Handler{
			authMW.Authenticate,
			tenantMW.Resolve(opts),
			rateLimit,
		}
		wrappers = append(wrappers, extra...)
		return middleware.Chain(h, wrappers...)
	}

	// 11. Setup HTTP routes
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)
	mux.Handle("GET /api/auth/me", authOnly(authHandler.Me))

	mux.Handle("POST /api/businesses", authOnly(businessHandler.Create))
	mux.Handle("POST /api/businesses/switch", authOnly(businessHandler.Switch))
	mux.Handle("GET /api/businesses/current", tenantRoute(businessHandler.Current, ownerFallback))
	mux.Handle("GET /api/subscriptions/mine", tenantRoute(subscriptionHandler.Mine, ownerFallback))

	mux.Handle("GET /api/members", tenantRoute(memberHandler.List, remembered, gateRead, tenantAdmin))
	mux.Handle("POST /api/members", tenantRoute(memberHandler.Invite, remembered, gateStrict, tenantAdmin))
	mux.Handle("PATCH /api/members/{id}/status", tenantRoute(memberHandler.SetStatus, remembered, gateStrict, tenantAdmin))
	mux.Handle("DELETE /api/members/{id}", tenantRoute(memberHandler.Remove, remembered, gateStrict, tenantAdmin))
	mux.Handle("GET /api/roles", tenantRoute(memberHandler.Roles, remembered, gateRead))

	mux.Handle("GET /api/permissions", tenantRoute(permissionHandler.Catalog, remembered, gateRead, tenantAdmin))
	mux.Handle("GET /api/members/{id}/permissions", tenantRoute(permissionHandler.ListGrants, remembered, gateRead, tenantAdmin))
	mux.Handle("POST /api/members/{id}/permissions", tenantRoute(permissionHandler.Grant, remembered, gateStrict, tenantAdmin))
	mux.Handle("DELETE /api/members/{id}/permissions", tenantRoute(permissionHandler.Revoke, remembered, gateStrict, tenantAdmin))

	mux.Handle("POST /api/customers", tenantRoute(invoiceHandler.CreateCustomer, remembered, gateStrict, permMW.Require("customer", "create")))
	mux.Handle("GET /api/customers", tenantRoute(invoiceHandler.ListCustomers, remembered, gateRead, permMW.Require("customer", "view")))
	mux.Handle("GET /api/customers/{id}", tenantRoute(invoiceHandler.GetCustomer, remembered, gateRead, permMW.Require("customer", "view")))
	mux.Handle("PUT /api/customers/{id}", tenantRoute(invoiceHandler.UpdateCustomer, remembered, gateStrict, permMW.Require("customer", "update")))
	mux.Handle("DELETE /api/customers/{id}", tenantRoute(invoiceHandler.DeleteCustomer, remembered, gateStrict, permMW.Require("customer", "delete")))

	mux.Handle("POST /api/invoices", tenantRoute(invoiceHandler.CreateInvoice, remembered, gateStrict, permMW.Require("invoice", "create")))
	mux.Handle("GET /api/invoices", tenantRoute(invoiceHandler.ListInvoices, remembered, gateRead, permMW.Require("invoice", "view")))
	mux.Handle("GET /api/invoices/{id}", tenantRoute(invoiceHandler.GetInvoice, remembered, gateRead, permMW.Require("invoice", "view")))
	mux.Handle("POST /api/invoices/{id}/cancel", tenantRoute(invoiceHandler.CancelInvoice, remembered, gateStrict, permMW.Require("invoice", "cancel")))
	mux.Handle("POST /api/invoices/{id}/payments", tenantRoute(invoiceHandler.RecordPayment, remembered, gateStrict, permMW.Require("invoice", "payment")))
	mux.Handle("GET /api/invoices/{id}/payments", tenantRoute(invoiceHandler.ListPayments, remembered, gateRead, permMW.Require("invoice", "view")))
	mux.Handle("GET /api/credit-notes", tenantRoute(invoiceHandler.ListCreditNotes, remembered, gateRead, permMW.Require("invoice", "view")))

	mux.Handle("GET /api/admin/users", superOnly(authHandler.ListUsers))

	mux.Handle("GET /api/admin/subscriptions", superOnly(subscriptionHandler.List))
	mux.Handle("GET /api/admin/subscriptions/stats", superOnly(subscriptionHandler.Stats))
	mux.Handle("GET /api/admin/subscriptions/{businessId}", superOnly(subscriptionHandler.Get))
	mux.Handle("POST /api/admin/subscriptions/{businessId}/activate", superOnly(subscriptionHandler.Activate))
	mux.Handle("POST /api/admin/subscriptions/{businessId}/extend", superOnly(subscriptionHandler.Extend))
	mux.Handle("POST /api/admin/subscriptions/{businessId}/deactivate", superOnly(subscriptionHandler.Deactivate))

	mux.Handle("GET /api/admin/permission-modules", superOnly(permissionHandler.ListModules))
	mux.Handle("POST /api/admin/permission-modules", superOnly(permissionHandler.CreateModule))
	mux.Handle("PUT /api/admin/permission-modules/{name}", superOnly(permissionHandler.UpdateModule))
	mux.Handle("DELETE /api/admin/permission-modules/{name}", superOnly(permissionHandler.DeleteModule))

	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	apiHandler := middleware.ValidateJSONContentType(log)(mux)

	// CORS middleware honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, "+middleware.BusinessIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		apiHandler.ServeHTTP(w, r)
	})

	// Chain outer middleware: request ID -> tracing -> metrics -> CORS -> mux
	rootHandler := withRequestID(
		otelhttp.NewHandler(metrics.HTTPMetricsMiddleware(handlerWithCORS), "http.server"),
		log,
	)

	// 12. Start subscription stats worker in background
	if !featureflags.Enabled("disable_stats_worker") {
		statsWorker := worker.NewStatsWorker(subscriptionRepo, log,
			time.Duration(cfg.StatsIntervalMinutes)*time.Minute)
		go statsWorker.Start(ctx)
	}

	// 13. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitRequests),
		slog.Duration("rate_limit_window", cfg.RateLimitWindow),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stop background workers
	rateLimiter.Stop()
	log.Info("server stopped")
}

// rateLimitByTenant enforces the per-business sliding window once a tenant is
// resolved. Routes without a tenant context pass through; the credential
// endpoints apply their own stricter per-email limit instead.
func rateLimitByTenant(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tenant, ok := middleware.TenantFromContext(r.Context()); ok {
				if !limiter.Allow(tenant.Business.ID) {
					log.Warn("rate limit exceeded",
						slog.String("business_id", tenant.Business.ID),
						slog.String("path", r.URL.Path),
					)
					respond.Error(w, http.StatusTooManyRequests, "Rate limit exceeded, try again later")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
