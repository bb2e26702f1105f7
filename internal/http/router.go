package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/http/handlers"
	"github.com/milestone-escrow/backend/internal/middleware"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	campaignHandler *handlers.CampaignHandler,
	metaHandler *handlers.MetaHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitRPM, time.Minute))

	// Auth (TON Connect proof)
	api.Post("/auth/ton-proof/payload", authHandler.GeneratePayload)
	api.Post("/auth/ton-proof", authHandler.TonProofLogin)

	// Public reads
	api.Get("/meta", metaHandler.GetMeta)
	api.Get("/settings", metaHandler.GetSettings)
	api.Get("/campaigns", campaignHandler.ListCampaigns)
	api.Get("/campaigns/count", campaignHandler.CountCampaigns)
	api.Get("/campaigns/:id", campaignHandler.GetCampaign)
	api.Get("/campaigns/:id/payment", campaignHandler.GetPaymentInfo)
	api.Get("/campaigns/:id/events", campaignHandler.GetEvents)
	api.Get("/campaigns/:id/payouts", campaignHandler.GetPayouts)
	api.Get("/campaigns/:id/contributions/:address", campaignHandler.GetContribution)
	api.Get("/campaigns/:id/milestones", campaignHandler.GetMilestones)
	api.Get("/campaigns/:id/milestones/:mid", campaignHandler.GetMilestone)
	api.Get("/campaigns/:id/milestones/:mid/votes/:address", campaignHandler.HasVoted)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	protected.Post("/campaigns", campaignHandler.CreateCampaign)
	protected.Post("/campaigns/:id/milestones/submit", campaignHandler.SubmitMilestone)
	protected.Post("/campaigns/:id/milestones/:mid/start-voting", campaignHandler.StartVoting)
	protected.Post("/campaigns/:id/milestones/:mid/vote", campaignHandler.Vote)
	protected.Post("/campaigns/:id/milestones/:mid/finalize", campaignHandler.Finalize)
	protected.Post("/campaigns/:id/milestones/:mid/complete", campaignHandler.CompleteMilestone)
	protected.Post("/campaigns/:id/withdraw", campaignHandler.Withdraw)
	protected.Post("/campaigns/:id/refund", campaignHandler.Refund)

	// Factory admin
	admin := protected.Group("/admin", middleware.AdminMiddleware(cfg, log))
	admin.Put("/settings/fee-percentage", metaHandler.SetFeePercentage)
	admin.Put("/settings/fee-recipient", metaHandler.SetFeeRecipient)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
