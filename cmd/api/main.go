// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/studx-dev/studx/internal/api"
	"github.com/studx-dev/studx/internal/auth"
	"github.com/studx-dev/studx/internal/config"
	"github.com/studx-dev/studx/internal/db"
	"github.com/studx-dev/studx/internal/health"
	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/middleware"
	"github.com/studx-dev/studx/internal/payment"
	"github.com/studx-dev/studx/internal/sponsorship"
	"github.com/studx-dev/studx/internal/tracing"
)

const serviceName = "studx-api"

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("StudX API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		logger := middleware.NewLogger(config.DefaultEnv)
		for _, err := range errs {
			logger.Error("configuration error", "error", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	// Distributed tracing (optional, off unless an OTLP endpoint is set).
	tracingProvider, err := tracing.NewProvider(tracingConfigFromEnv(cfg.Env))
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingProvider.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Metrics registry and middleware instrumentation.
	registry := prometheus.NewRegistry()
	mwMetrics := middleware.NewMetrics()
	if err := mwMetrics.Register(registry); err != nil {
		logger.Error("failed to register middleware metrics", "error", err)
		os.Exit(1)
	}

	// Redis backs distributed rate limiting when configured; otherwise each
	// instance falls back to its own in-memory store.
	var redisClient *redis.Client
	var rateLimitStore middleware.RateLimitStore
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient, mwMetrics)
		logger.Info("rate limiting backed by redis")
	} else {
		store := middleware.NewInMemoryRateLimitStore()
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				store.Cleanup()
			}
		}()
		rateLimitStore = store
		logger.Info("rate limiting backed by in-memory store")
	}

	// Listing store with a read-through cache in front of Postgres.
	itemMetrics := item.NewMetrics()
	if err := itemMetrics.Register(registry); err != nil {
		logger.Error("failed to register item metrics", "error", err)
		os.Exit(1)
	}
	itemCache := item.NewCache(time.Duration(cfg.ItemCacheTTLSeconds)*time.Second, 0)
	items := item.NewCachingRepository(item.NewPostgresRepository(database), itemCache, itemMetrics, logger)

	assignments := sponsorship.NewPostgresAssignmentRepository(database)

	// Relevance scoring, optionally calibrated from a weights file.
	var weights *sponsorship.Weights
	if cfg.RankCalibrationPath != "" {
		weights, err = sponsorship.LoadCalibration(cfg.RankCalibrationPath)
		if err != nil {
			logger.Error("failed to load ranking calibration", "path", cfg.RankCalibrationPath, "error", err)
			os.Exit(1)
		}
		logger.Info("ranking calibration loaded", "path", cfg.RankCalibrationPath)
	}
	scorer := sponsorship.NewScorer(weights, cfg.RankCollegeEnabled)

	sponsorshipMetrics := sponsorship.NewMetrics()
	if err := sponsorshipMetrics.Register(registry); err != nil {
		logger.Error("failed to register sponsorship metrics", "error", err)
		os.Exit(1)
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret)

	var stripeClient payment.Client
	if cfg.StripeEnabled() {
		stripeClient = payment.NewStripeClient(cfg.StripeAPIKey)
		logger.Info("stripe slot purchases enabled")
	} else {
		logger.Info("stripe not configured, slot purchases disabled")
	}
	purchases := payment.NewPostgresPurchaseRepository(database)
	webhookRepo := payment.NewPostgresWebhookRepository(database)

	sponsoredHandlers := api.NewSponsoredHandlers(assignments, items, scorer, sponsorshipMetrics, logger)
	searchHandlers := api.NewSearchHandlers(sponsoredHandlers, items, logger)
	adminHandlers := api.NewAdminHandlers(assignments, items, logger)
	paymentHandlers := api.NewPaymentHandlers(stripeClient, purchases, items,
		cfg.SponsorSlotPriceCents, cfg.SponsorSuccessURL, cfg.SponsorCancelURL, logger)
	webhookHandlers := api.NewWebhookHandlers(cfg.StripeWebhookSecret, purchases, webhookRepo, assignments, logger)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    health.NewDBChecker(database),
		RedisChecker: redisChecker(redisClient),
	})

	mux := newRouter(routerDeps{
		sponsored: sponsoredHandlers,
		search:    searchHandlers,
		admin:     adminHandlers,
		payments:  paymentHandlers,
		webhooks:  webhookHandlers,
		health:    healthHandlers,
		jwt:       jwtService,
		limiter:   rateLimitStore,
		registry:  registry,
	})

	// Middleware chain, outermost first: request id, tracing, logging,
	// metrics, global rate limit.
	handler := middleware.RequestID(
		middleware.Tracing(serviceName)(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(mwMetrics)(
					middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc())(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// routerDeps bundles everything the route table needs.
type routerDeps struct {
	sponsored *api.SponsoredHandlers
	search    *api.SearchHandlers
	admin     *api.AdminHandlers
	payments  *api.PaymentHandlers
	webhooks  *api.WebhookHandlers
	health    *api.HealthHandlers
	jwt       *auth.JWTService
	limiter   middleware.RateLimitStore
	registry  *prometheus.Registry
}

// newRouter builds the route table. Per-route rate limits and admin auth are
// applied here; the global middleware chain wraps the returned mux.
func newRouter(deps routerDeps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/sponsored", deps.sponsored.GetSponsored)
	mux.HandleFunc("/sponsored/random", deps.sponsored.GetSponsoredRandom)
	mux.HandleFunc("/sponsored/category", deps.sponsored.GetSponsoredCategory)
	mux.HandleFunc("/featured", deps.sponsored.GetFeatured)
	mux.HandleFunc("/featured/all", deps.sponsored.GetFeaturedAll)

	searchLimit := middleware.RateLimiter(deps.limiter, middleware.DefaultSearchLimit(), middleware.IPKeyFunc())
	mux.Handle("/search", searchLimit(http.HandlerFunc(deps.search.Search)))
	mux.Handle("/search/mix", searchLimit(http.HandlerFunc(deps.search.Mix)))

	adminLimit := middleware.RateLimiter(deps.limiter, middleware.DefaultAdminLimit(), middleware.UserKeyFunc())
	mux.Handle("/admin/sponsorships",
		auth.RequireAdmin(deps.jwt, adminLimit(http.HandlerFunc(deps.admin.Sponsorships))))
	mux.Handle("/admin/sponsorships/",
		auth.RequireAdmin(deps.jwt, adminLimit(http.HandlerFunc(deps.admin.Revoke))))

	mux.HandleFunc("/sponsorships/checkout", deps.payments.Checkout)
	mux.HandleFunc("/webhooks/stripe", deps.webhooks.HandleStripeWebhook)

	mux.HandleFunc("/health", deps.health.Health)
	mux.HandleFunc("/health/ready", deps.health.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"studx-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}

// redisChecker wraps an optional redis client for readiness checks. A nil
// client means redis is not configured and must not fail readiness.
func redisChecker(client *redis.Client) api.HealthChecker {
	if client == nil {
		return nil
	}
	return health.NewRedisChecker(client)
}

// tracingConfigFromEnv builds the tracing configuration from OTEL_*
// environment variables. Tracing stays off unless an endpoint is set.
func tracingConfigFromEnv(env string) tracing.Config {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	samplingRate := 1.0
	if raw := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			samplingRate = parsed
		}
	}

	return tracing.Config{
		ServiceName:  serviceName,
		Enabled:      endpoint != "",
		Environment:  env,
		ExporterType: os.Getenv("OTEL_EXPORTER_TYPE"),
		OTLPEndpoint: endpoint,
		SamplingRate: samplingRate,
		InsecureMode: env != "production",
	}
}
