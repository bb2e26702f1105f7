package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/db"
	"github.com/milestone-escrow/backend/internal/events"
	"github.com/milestone-escrow/backend/internal/repositories"
	"github.com/milestone-escrow/backend/internal/services"
	"github.com/milestone-escrow/backend/internal/ton"
)

const (
	sweepBatchSize       = 200
	payloadCleanupPeriod = 10 * time.Minute
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

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	campaignRepo := repositories.NewCampaignRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	depositRepo := repositories.NewDepositRepo(pool)
	settingsRepo := repositories.NewSettingsRepo(pool)
	proofRepo := repositories.NewProofRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	campaignService := services.NewCampaignService(campaignRepo, payoutRepo, depositRepo, settingsRepo, auditRepo, repositories.NewTxRunner(pool), publisher, cfg, log)
	payoutService := services.NewPayoutService(payoutRepo, publisher, cfg, log)
	authService := services.NewAuthService(proofRepo, auditRepo, cfg, log)

	// Payouts need the hot wallet; without a seed the queue is left to another worker.
	var sender services.PayoutSender
	if len(cfg.TONHotWalletSeed) > 0 {
		api, err := ton.Connect(ctx, ton.LiteConfig{
			Network: cfg.TONNetwork,
			Host:    cfg.LiteServerHost,
			Port:    cfg.LiteServerPort,
			Key:     cfg.LiteServerKey,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to TON network", zap.Error(err))
		}
		ws, err := ton.NewWalletSender(api, cfg.TONHotWalletSeed)
		if err != nil {
			log.Fatal("failed to open hot wallet", zap.Error(err))
		}
		if cfg.TONHotWalletAddress != "" {
			if want, err := ton.NormalizeAddress(cfg.TONHotWalletAddress); err == nil && want != ws.Address() {
				log.Warn("hot wallet seed does not match TON_HOT_WALLET_ADDRESS",
					zap.String("seed_address", ws.Address()),
					zap.String("configured", want),
				)
			}
		}
		sender = ws
	} else {
		log.Warn("TON_HOT_WALLET_SEED is empty, payouts are not sent by this worker")
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.PayoutRatePerSecond), 1)

	log.Info("worker started")

	// Run jobs on tickers
	sweepTicker := time.NewTicker(cfg.DeadlineSweepInterval)
	payoutTicker := time.NewTicker(cfg.PayoutInterval)
	cleanupTicker := time.NewTicker(payloadCleanupPeriod)
	defer sweepTicker.Stop()
	defer payoutTicker.Stop()
	defer cleanupTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			runDeadlineSweep(ctx, campaignService, log)
		case <-payoutTicker.C:
			if sender != nil {
				runPayouts(ctx, payoutService, sender, limiter, log)
			}
		case <-cleanupTicker.C:
			runPayloadCleanup(ctx, authService, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func runDeadlineSweep(ctx context.Context, campaignService *services.CampaignService, log *zap.Logger) {
	swept, err := campaignService.SweepExpired(ctx, sweepBatchSize)
	if err != nil {
		log.Error("deadline sweep failed", zap.Error(err))
		return
	}
	if swept > 0 {
		log.Info("deadline sweep", zap.Int("campaigns", swept))
	}
}

func runPayouts(ctx context.Context, payoutService *services.PayoutService, sender services.PayoutSender, limiter *rate.Limiter, log *zap.Logger) {
	sent, err := payoutService.ProcessPending(ctx, sender, limiter)
	if err != nil {
		log.Error("payout cycle failed", zap.Error(err))
		return
	}
	if sent > 0 {
		log.Info("payouts sent", zap.Int("count", sent))
	}
}

func runPayloadCleanup(ctx context.Context, authService *services.AuthService, log *zap.Logger) {
	n, err := authService.CleanupPayloads(ctx)
	if err != nil {
		log.Warn("failed to clean up proof payloads", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("expired proof payloads removed", zap.Int64("count", n))
	}
}
