package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/devlinkhq/marketplace-backend/internal/config"
	"github.com/devlinkhq/marketplace-backend/internal/daemon"
	"github.com/devlinkhq/marketplace-backend/internal/db"
	"github.com/devlinkhq/marketplace-backend/internal/goroutine"
	httpHandlers "github.com/devlinkhq/marketplace-backend/internal/http/handlers"
	httpRouter "github.com/devlinkhq/marketplace-backend/internal/http/router"
	"github.com/devlinkhq/marketplace-backend/internal/logger"
	"github.com/devlinkhq/marketplace-backend/internal/payments"
	"github.com/devlinkhq/marketplace-backend/internal/repository"
	"github.com/devlinkhq/marketplace-backend/internal/service"
	"github.com/devlinkhq/marketplace-backend/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: failed to load configuration: %v", err)
	}

	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: failed to connect to database: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: failed to run migrations: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	processor := payments.NewStripeProcessor(cfg.StripeSecretKey)

	userRepo := repository.NewUserRepository(dbConn)
	projectRepo := repository.NewProjectRepository(dbConn)
	proposalRepo := repository.NewProposalRepository(dbConn)
	transactionRepo := repository.NewTransactionRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	webhookEventRepo := repository.NewWebhookEventRepository(dbConn)

	hub := ws.NewHub(ctx)
	go hub.Run()

	recovery := goroutine.NewRecoveryHandler(logger.Log)
	notificationService := service.NewNotificationService(notificationRepo, hub, recovery)

	authService := service.NewAuthService(userRepo, tokenManager)
	accountService := service.NewAccountService(userRepo, processor)
	projectService := service.NewProjectService(projectRepo)
	proposalService := service.NewProposalService(proposalRepo, projectRepo, notificationService)
	escrowService := service.NewEscrowService(transactionRepo, projectRepo, userRepo, processor, notificationService, cfg.CommissionRate, cfg.PlatformCurrency)
	milestoneService := service.NewMilestoneService(projectRepo, transactionRepo, escrowService, disputeRepo, notificationService)
	disputeService := service.NewDisputeService(disputeRepo, transactionRepo, escrowService, projectRepo, notificationService)
	webhookService := service.NewWebhookService(webhookEventRepo, transactionRepo, userRepo, notificationService)

	watchdog := daemon.NewEscrowWatchdog(transactionRepo, userRepo, notificationService, cfg.WatchdogSchedule, cfg.StaleHoldDuration)
	if err := watchdog.Start(); err != nil {
		log.Fatalf("main: failed to start escrow watchdog: %v", err)
	}

	authHandler := httpHandlers.NewAuthHandler(authService)
	accountHandler := httpHandlers.NewAccountHandler(accountService)
	projectHandler := httpHandlers.NewProjectHandler(projectService)
	proposalHandler := httpHandlers.NewProposalHandler(proposalService)
	milestoneHandler := httpHandlers.NewMilestoneHandler(milestoneService)
	escrowHandler := httpHandlers.NewEscrowHandler(escrowService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	webhookHandler := httpHandlers.NewWebhookHandler(webhookService, cfg.StripeWebhookSecret)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	engine := httpRouter.SetupRouter(cfg, authHandler, accountHandler, projectHandler, proposalHandler, milestoneHandler, escrowHandler, disputeHandler, notificationHandler, webhookHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: http server shutdown error: %v", err)
		}
		<-watchdog.Stop().Done()
	}()

	log.Printf("main: HTTP server listening on port %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: server exited with error: %v", err)
	}
}

func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: failed to close database: %v", err)
	}
}
