package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"letmaster-backend/internal/archive"
	"letmaster-backend/internal/auth"
	"letmaster-backend/internal/cache"
	"letmaster-backend/internal/config"
	"letmaster-backend/internal/database"
	"letmaster-backend/internal/db"
	"letmaster-backend/internal/gateway"
	"letmaster-backend/internal/handlers"
	"letmaster-backend/internal/health"
	h "letmaster-backend/internal/http"
	"letmaster-backend/internal/mail"
	"letmaster-backend/internal/middleware"
	"letmaster-backend/internal/monitoring"
	"letmaster-backend/internal/repositories"
	"letmaster-backend/internal/services"
	"letmaster-backend/internal/sms"
	"letmaster-backend/migrations"
)

func main() {
	skipMigrations := flag.Bool("skip-migrations", false, "skip schema migrations on startup")
	issueToken := flag.String("issue-token", "", "print an operator token for the given subject and exit")
	flag.Parse()

	cfg := config.Load()

	jwtManager := auth.NewJWTManager(cfg)
	if *issueToken != "" {
		token, err := jwtManager.GenerateToken(*issueToken, "operator")
		if err != nil {
			log.Fatalf("token generation failed: %v", err)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := db.Connect(cfg)
	defer pool.Close()

	if !*skipMigrations {
		migrator := database.NewMigrator(pool, migrations.FS, ".")
		if err := migrator.RunMigrations(ctx); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}

	// Redis is optional; without it the gateway key cache degrades to
	// per-instance fetches.
	var keyCache gateway.KeyCache = gateway.NopKeyCache{}
	if err := cache.Init(); err != nil {
		log.Printf("[Redis] unavailable, running without key cache: %v", err)
	} else {
		log.Println("[Redis] connected")
		keyCache = cache.KeyCache{}
	}

	// Repositories
	accountRepo := repositories.NewTenantUnitRepository(pool)
	debitRepo := repositories.NewDebitRequestRepository(pool)
	jobRepo := repositories.NewScheduledJobRepository(pool)
	messageRepo := repositories.NewUserMessageRepository(pool)

	// Gateway
	gw := gateway.NewClient(gateway.Config{
		BaseURL:        cfg.Airtel.BaseURL,
		ClientID:       cfg.Airtel.ClientID,
		ClientSecret:   cfg.Airtel.ClientSecret,
		OAuthPath:      cfg.Airtel.OAuthPath,
		KeyPath:        cfg.Airtel.KeyPath,
		CollectionPath: cfg.Airtel.CollectionPath,
		StatusPath:     cfg.Airtel.StatusPath,
		Country:        cfg.Airtel.Country,
		Currency:       cfg.Airtel.Currency,
		SuccessCode:    cfg.Airtel.SuccessCode,
		Timeout:        cfg.AirtelTimeout(),
	}, keyCache)

	// Notification channels fall back to logging mocks when unconfigured,
	// so a dev environment never texts real tenants.
	var smsProvider sms.Provider = sms.Mock{}
	if cfg.SMS.APIID != "" && cfg.SMS.URL != "" {
		smsProvider = sms.NewSpeeda(sms.SpeedaConfig{
			URL:         cfg.SMS.URL,
			APIID:       cfg.SMS.APIID,
			APIPassword: cfg.SMS.APIPassword,
			SenderID:    cfg.SMS.SenderID,
			SMSType:     cfg.SMS.SMSType,
		})
	}
	var mailSender mail.Sender = mail.MockSender{}
	if cfg.SMTP.Host != "" && cfg.SMTP.Username != "" {
		mailSender = mail.NewSMTPSender(mail.Config{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			SenderName:  cfg.SMTP.SenderName,
			SenderEmail: cfg.SMTP.SenderEmail,
		})
	}

	var archiver *archive.S3Archiver
	if cfg.Archive.Enabled {
		var err error
		archiver, err = archive.NewS3Archiver(ctx, archive.Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			log.Printf("[Archive] disabled: %v", err)
		}
	}

	// Services
	notifier := services.NewNotificationService(smsProvider, mailSender, messageRepo, cfg.Templates)
	accountService := services.NewAccountService(accountRepo)
	var paymentService *services.PaymentService
	if archiver != nil {
		paymentService = services.NewPaymentService(debitRepo, accountRepo, gw, notifier, archiver, cfg.Airtel.Country, cfg.Airtel.Currency, cfg.SweepMinAge())
	} else {
		paymentService = services.NewPaymentService(debitRepo, accountRepo, gw, notifier, nil, cfg.Airtel.Country, cfg.Airtel.Currency, cfg.SweepMinAge())
	}
	billingService := services.NewBillingService(accountRepo, jobRepo, notifier, cfg.Templates)

	// Background workers
	go func() {
		if err := billingService.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Billing] scheduler exited: %v", err)
		}
	}()
	go paymentService.StartSweep(ctx, cfg.SweepInterval())
	go monitoring.NewServer(pool, cfg.Server.MonitoringPort).Start(ctx)

	// HTTP layer
	healthChecker := health.NewHealthChecker(pool, cache.GetClient())
	router := h.NewRouter(
		handlers.NewAccountHandler(accountService),
		handlers.NewPaymentHandler(paymentService),
		handlers.NewHealthHandler(healthChecker),
		middleware.NewAuthMiddleware(jwtManager),
	)
	corsMiddleware := middleware.NewCORS(cfg)
	handler := middleware.PanicRecovery(middleware.MetricsMiddleware(corsMiddleware(router)))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server running on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
}
