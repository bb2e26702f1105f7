package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/db"
	"github.com/milestone-escrow/backend/internal/events"
	apphttp "github.com/milestone-escrow/backend/internal/http"
	"github.com/milestone-escrow/backend/internal/http/dto"
	"github.com/milestone-escrow/backend/internal/http/handlers"
	"github.com/milestone-escrow/backend/internal/repositories"
	"github.com/milestone-escrow/backend/internal/services"
	"github.com/milestone-escrow/backend/migrations"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	campaignRepo := repositories.NewCampaignRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	depositRepo := repositories.NewDepositRepo(pool)
	settingsRepo := repositories.NewSettingsRepo(pool)
	proofRepo := repositories.NewProofRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	txRunner := repositories.NewTxRunner(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	campaignService := services.NewCampaignService(campaignRepo, payoutRepo, depositRepo, settingsRepo, auditRepo, txRunner, publisher, cfg, log)
	authService := services.NewAuthService(proofRepo, auditRepo, cfg, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, log)
	campaignHandler := handlers.NewCampaignHandler(campaignService, cfg, log)
	metaHandler := handlers.NewMetaHandler(campaignService, cfg, log)
	wsHub := handlers.NewWSHub(subscriber, publisher, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to events", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{Error: err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, campaignHandler, metaHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
