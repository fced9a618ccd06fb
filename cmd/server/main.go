package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/propfolio/backend/internal/application/alerting"
	appmetering "github.com/propfolio/backend/internal/application/metering"
	"github.com/propfolio/backend/internal/application/settlement"
	infrabilling "github.com/propfolio/backend/internal/infrastructure/billing"
	"github.com/propfolio/backend/internal/infrastructure/cache"
	"github.com/propfolio/backend/internal/infrastructure/config"
	"github.com/propfolio/backend/internal/infrastructure/logger"
	"github.com/propfolio/backend/internal/infrastructure/notification"
	"github.com/propfolio/backend/internal/infrastructure/persistence"
	"github.com/propfolio/backend/internal/infrastructure/scheduler"
	"github.com/propfolio/backend/internal/interfaces/http/handler"
	"github.com/propfolio/backend/internal/interfaces/http/middleware"
	"github.com/propfolio/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting usage metering engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Hot-path summary cache. Redis keeps admission checks consistent
	// across instances; a single instance falls back to process memory
	// when Redis is unreachable.
	var summaryCache appmetering.SummaryCache
	redisCache, err := cache.NewRedisSummaryCache(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, using in-memory summary cache", zap.Error(err))
		summaryCache = cache.NewInMemorySummaryCache()
	} else {
		summaryCache = redisCache
		defer func() {
			if err := redisCache.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		log.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))
	}

	// Initialize repositories
	usageLogRepo := persistence.NewUsageLogRepository(db.DB)
	summaryRepo := persistence.NewMonthlySummaryRepository(db.DB)
	alertRepo := persistence.NewAlertRecordRepository(db.DB)
	invoiceRepo := persistence.NewOverageInvoiceRepository(db.DB)
	notifRepo := persistence.NewNotificationRepository(db.DB)
	tenantRepo := persistence.NewTenantRepository(db.DB)
	planRepo := persistence.NewPlanRepository(db.DB)

	// Outbound mail is optional; without SMTP alerts stay in-app only and
	// settlement skips receipt emails.
	var (
		alertMailer   alerting.AlertMailer
		receiptMailer settlement.ReceiptMailer
	)
	if cfg.SMTP.Host != "" {
		mailer, err := notification.NewMailer(&notification.MailerConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize mailer", zap.Error(err))
		}
		alertMailer = mailer
		receiptMailer = mailer
		log.Info("SMTP mailer configured", zap.String("host", cfg.SMTP.Host))
	} else {
		log.Info("SMTP not configured, email dispatch disabled")
	}

	// Initialize metering services
	aggregator := appmetering.NewAggregatorService(
		usageLogRepo, summaryRepo, tenantRepo, planRepo, summaryCache, log,
		appmetering.AggregatorConfig{CacheTTL: cfg.Metering.SummaryCacheTTL},
	)
	tracker := appmetering.NewTrackerService(usageLogRepo, aggregator, log)
	admission := appmetering.NewAdmissionService(
		summaryRepo, tenantRepo, planRepo, summaryCache, log,
		appmetering.DefaultAdmissionConfig(),
	)

	// Threshold alerting
	alertService := alerting.NewAlertService(
		summaryRepo, tenantRepo, alertRepo, notifRepo, alertMailer, log,
		alerting.AlertConfig{
			DedupWindow: cfg.Alerting.DedupWindow,
			WorkerCount: cfg.Alerting.WorkerCount,
		},
	)
	alertSweeper := scheduler.NewAlertSweepScheduler(alertService, log,
		scheduler.AlertSweepSchedulerConfig{
			Enabled:       cfg.Alerting.Enabled,
			SweepInterval: cfg.Alerting.SweepInterval,
			SweepTimeout:  15 * time.Minute,
		})
	if err := alertSweeper.Start(context.Background()); err != nil {
		log.Fatal("Failed to start alert sweep scheduler", zap.Error(err))
	}
	defer func() {
		if err := alertSweeper.Stop(context.Background()); err != nil {
			log.Error("Error stopping alert sweep scheduler", zap.Error(err))
		}
	}()

	// Overage settlement. The scheduler only runs with a Stripe key; the
	// webhook endpoint stays up regardless so status events are never lost.
	settlementEnabled := cfg.Settlement.Enabled && cfg.Stripe.APIKey != ""
	if cfg.Settlement.Enabled && cfg.Stripe.APIKey == "" {
		log.Warn("Settlement enabled but no Stripe API key configured, scheduler disabled")
	}
	if settlementEnabled {
		invoicer, err := infrabilling.NewStripeInvoicer(&infrabilling.StripeConfig{
			SecretKey:       cfg.Stripe.APIKey,
			WebhookSecret:   cfg.Stripe.WebhookSecret,
			IsTestMode:      cfg.App.Env != "production",
			DefaultCurrency: "eur",
		}, log)
		if err != nil {
			log.Fatal("Failed to initialize Stripe invoicer", zap.Error(err))
		}

		settler := settlement.NewSettlementService(
			summaryRepo, tenantRepo, planRepo, invoiceRepo, notifRepo,
			invoicer, receiptMailer, log,
			settlement.SettlementConfig{
				DueIn:       time.Duration(cfg.Settlement.DueDays) * 24 * time.Hour,
				WorkerCount: cfg.Settlement.WorkerCount,
			},
		)
		settlementSched := scheduler.NewSettlementScheduler(settler, log,
			scheduler.SettlementSchedulerConfig{
				Enabled:       true,
				CheckInterval: cfg.Settlement.CheckInterval,
				SettleTimeout: 30 * time.Minute,
			})
		if err := settlementSched.Start(context.Background()); err != nil {
			log.Fatal("Failed to start settlement scheduler", zap.Error(err))
		}
		defer func() {
			if err := settlementSched.Stop(context.Background()); err != nil {
				log.Error("Error stopping settlement scheduler", zap.Error(err))
			}
		}()
	}

	// Raw usage log retention
	retention := scheduler.NewRetentionScheduler(tracker, log,
		scheduler.RetentionSchedulerConfig{
			Enabled:      true,
			Retention:    cfg.Metering.LogRetention,
			PurgeHour:    3,
			PurgeTimeout: 15 * time.Minute,
		})
	if err := retention.Start(context.Background()); err != nil {
		log.Fatal("Failed to start retention scheduler", zap.Error(err))
	}
	defer func() {
		if err := retention.Stop(context.Background()); err != nil {
			log.Error("Error stopping retention scheduler", zap.Error(err))
		}
	}()

	webhookService := settlement.NewPaymentWebhookService(cfg.Stripe.WebhookSecret, invoiceRepo, log)

	// Set gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSOrigins
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Health check outside the API group so load balancers reach it without
	// tenant headers
	engine.GET("/health", healthHandler(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.NewSystemHandler(version))
	r.Register(handler.NewPaymentWebhookHandler(webhookService))
	r.Register(tenantScoped{
		handler.NewUsageHandler(tracker, admission, summaryRepo, log),
		handler.NewNotificationHandler(notifRepo),
		handler.NewBillingHandler(alertRepo, invoiceRepo),
	})
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// tenantScoped groups registrars behind the tenant identity middleware
type tenantScoped []router.RouteRegistrar

func (t tenantScoped) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("", middleware.RequireTenant())
	for _, registrar := range t {
		registrar.RegisterRoutes(group)
	}
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
