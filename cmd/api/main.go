package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clearwell/practice-platform/internal/api/router"
	"github.com/clearwell/practice-platform/internal/appointments"
	"github.com/clearwell/practice-platform/internal/audit"
	appconfig "github.com/clearwell/practice-platform/internal/config"
	"github.com/clearwell/practice-platform/internal/mfa"
	"github.com/clearwell/practice-platform/internal/notify"
	"github.com/clearwell/practice-platform/internal/observability/metrics"
	"github.com/clearwell/practice-platform/internal/patients"
	"github.com/clearwell/practice-platform/internal/security"
	"github.com/clearwell/practice-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting practice-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	// pgx pool for the request-path stores, database/sql for the MFA and
	// audit layers.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	// Email delivery: SendGrid when configured, logging stub otherwise.
	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	} else {
		logger.Warn("no SendGrid API key, using stub email sender")
		emailSender = notify.NewStubEmailSender(logger)
	}

	// Rate limiting: shared Redis counters when available, per-process
	// otherwise.
	limiterCfg := security.LimiterConfig{
		MaxRequests: cfg.RateLimitMaxRequests,
		Window:      cfg.RateLimitWindow,
	}
	var limiter security.Limiter
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		limiter = security.NewRedisLimiter(redis.NewClient(opts), limiterCfg)
		logger.Info("rate limiting backed by redis", "addr", cfg.RedisAddr)
	} else {
		limiter = security.NewMemoryLimiter(limiterCfg)
	}

	apptMetrics := metrics.NewAppointmentMetrics(nil)
	secMetrics := metrics.NewSecurityMetrics(nil)

	// Appointments: status machine plus the reminder delivery worker.
	apptStore := appointments.NewStore(pool)
	apptService := appointments.NewService(apptStore, logger.Component("appointments"), apptMetrics)
	apptHandler := appointments.NewHandler(apptService, logger.Component("appointments"))

	reminderWorker := appointments.NewWorker(apptStore, emailSender, apptStore,
		cfg.ReminderBatchSize, logger.Component("reminders"))
	go reminderWorker.Run(ctx, cfg.ReminderPollInterval)

	// Patients.
	patientsHandler := patients.NewHandler(patients.NewStore(pool), logger.Component("patients"))

	// MFA with its audit trail.
	auditService := audit.NewService(sqlDB)
	mfaService := mfa.NewService(mfa.NewStore(sqlDB), auditService, emailSender,
		secMetrics, logger.Component("mfa"))
	mfaHandler := mfa.NewHandler(mfaService, logger.Component("mfa"))

	r := router.New(&router.Config{
		Logger:              logger,
		AppointmentsHandler: apptHandler,
		PatientsHandler:     patientsHandler,
		MFAHandler:          mfaHandler,
		MetricsHandler:      promhttp.Handler(),
		SessionJWTSecret:    cfg.SessionJWTSecret,
		RateLimiter:         limiter,
		SecurityMetrics:     secMetrics,
		CSRFExemptPrefixes:  cfg.CSRFExemptPrefixes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
