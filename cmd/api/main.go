package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bridgesphysio/clinic-portal/internal/api/router"
	"github.com/bridgesphysio/clinic-portal/internal/appointments"
	appconfig "github.com/bridgesphysio/clinic-portal/internal/config"
	"github.com/bridgesphysio/clinic-portal/internal/communications"
	"github.com/bridgesphysio/clinic-portal/internal/counters"
	"github.com/bridgesphysio/clinic-portal/internal/effects"
	"github.com/bridgesphysio/clinic-portal/internal/fieldcrypt"
	"github.com/bridgesphysio/clinic-portal/internal/http/handlers"
	"github.com/bridgesphysio/clinic-portal/internal/invoices"
	"github.com/bridgesphysio/clinic-portal/internal/ledgerimport"
	"github.com/bridgesphysio/clinic-portal/internal/notify"
	"github.com/bridgesphysio/clinic-portal/internal/observability/metrics"
	"github.com/bridgesphysio/clinic-portal/internal/patients"
	"github.com/bridgesphysio/clinic-portal/internal/payments"
	"github.com/bridgesphysio/clinic-portal/internal/pdfrender"
	"github.com/bridgesphysio/clinic-portal/internal/profitloss"
	"github.com/bridgesphysio/clinic-portal/internal/settings"
	"github.com/bridgesphysio/clinic-portal/internal/users"
	"github.com/bridgesphysio/clinic-portal/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-portal billing API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	var cipher *fieldcrypt.Cipher
	if cfg.DataEncryptionKey != "" {
		cipher, err = fieldcrypt.New(cfg.DataEncryptionKey)
		if err != nil {
			logger.Error("failed to init field encryption", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DATA_ENCRYPTION_KEY unset, patient contact fields stored in the clear")
	}

	// Repositories and core services.
	counterSvc := counters.New(pool)
	patientRepo := patients.NewRepository(db, cipher)
	userRepo := users.NewRepository(db)
	commRepo := communications.NewRepository(db, counterSvc)
	apptRepo := appointments.NewRepository(db)
	invRepo := invoices.NewRepository(db)
	settingsStore := settings.NewStore(redisClient).WithDefaultCurrency(cfg.ReportingCurrency)
	outbox := effects.NewOutboxStore(pool)

	assembler := invoices.NewAssembler(invRepo, counterSvc, patientRepo, apptRepo,
		settingsStore, commRepo, outbox, logger)
	outcomeCtrl := appointments.NewController(apptRepo, assembler, commRepo, logger)
	reconciler := payments.NewReconciler(db, counterSvc, logger)
	plService := profitloss.NewService(db, counterSvc, logger)
	importer := ledgerimport.NewImporter(patientRepo, userRepo, counterSvc,
		apptRepo, assembler, invRepo, reconciler, logger)

	// PDF rendering and artifact storage. S3 when a bucket is configured,
	// local directory otherwise.
	pdfClient := pdfrender.NewClient(cfg.PDFSidecarURL, pdfrender.WithLogger(logger))
	var artifacts pdfrender.ArtifactStore = pdfrender.NewDirStore(cfg.PDFStorageDir)
	var sesClient *sesv2.Client
	if cfg.PDFS3Bucket != "" || cfg.SESFromEmail != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		if cfg.PDFS3Bucket != "" {
			artifacts = pdfrender.NewS3Store(s3.NewFromConfig(awsCfg), cfg.PDFS3Bucket)
		}
		if cfg.SESFromEmail != "" {
			sesClient = sesv2.NewFromConfig(awsCfg)
		}
	}
	renderer := pdfrender.NewRenderer(pdfClient, artifacts, logger)

	// Email gateway. SendGrid is primary, SES is the fallback, and the stub
	// keeps dev environments working without credentials.
	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		sender = sg
	} else if ses := notify.NewSESSender(sesClient, notify.SESConfig{
		FromEmail: cfg.SESFromEmail,
		FromName:  cfg.SESFromName,
	}, logger); ses != nil {
		sender = ses
	} else {
		logger.Warn("no email gateway configured, using stub sender")
		sender = notify.NewStubEmailSender(logger)
	}

	// Effect delivery loop.
	effectHandler := effects.NewInvoiceEffectHandler(invRepo, renderer, sender,
		settingsStore, commRepo, logger)
	deliverer := effects.NewDeliverer(outbox, effectHandler, logger).
		WithBatchSize(int32(cfg.EffectBatchSize)).
		WithInterval(cfg.EffectPollInterval)
	go deliverer.Start(ctx)

	billingMetrics := metrics.NewBillingMetrics(nil)

	r := router.New(&router.Config{
		Logger:  logger,
		Metrics: billingMetrics,
		Appointments: handlers.NewAppointmentsHandler(
			outcomeCtrl, billingMetrics, logger),
		Invoices: handlers.NewInvoicesHandler(
			assembler, invRepo, reconciler, outbox, renderer, settingsStore, billingMetrics, logger),
		Imports: handlers.NewImportsHandler(
			importer, billingMetrics, logger),
		ProfitLoss: handlers.NewProfitLossHandler(
			plService, settingsStore, logger),
		Health:             handlers.NewHealthHandler(db, redisClient),
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: []string{},
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
