package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/db"
	"github.com/milestone-escrow/backend/internal/events"
	"github.com/milestone-escrow/backend/internal/repositories"
	"github.com/milestone-escrow/backend/internal/services"
	"github.com/milestone-escrow/backend/internal/ton"
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

	if cfg.TONHotWalletAddress == "" {
		log.Fatal("TON_HOT_WALLET_ADDRESS is required")
	}

	hotWallet, err := address.ParseAddr(cfg.TONHotWalletAddress)
	if err != nil {
		log.Fatal("invalid TON_HOT_WALLET_ADDRESS", zap.String("addr", cfg.TONHotWalletAddress), zap.Error(err))
	}

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

	depositRepo := repositories.NewDepositRepo(pool)
	publisher := events.NewRedisPublisher(rdb, log)
	campaignService := services.NewCampaignService(
		repositories.NewCampaignRepo(pool),
		repositories.NewPayoutRepo(pool),
		depositRepo,
		repositories.NewSettingsRepo(pool),
		repositories.NewAuditRepo(pool),
		repositories.NewTxRunner(pool),
		publisher, cfg, log,
	)

	tonAPI, err := ton.Connect(ctx, ton.LiteConfig{
		Network: cfg.TONNetwork,
		Host:    cfg.LiteServerHost,
		Port:    cfg.LiteServerPort,
		Key:     cfg.LiteServerKey,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to TON network", zap.Error(err))
	}

	indexer := services.NewDepositIndexer(ton.NewScanner(tonAPI, hotWallet), campaignService, depositRepo, rdb, log)

	log.Info("TON indexer started",
		zap.String("hot_wallet", hotWallet.String()),
		zap.String("network", cfg.TONNetwork),
	)

	if err := indexer.InitCursor(ctx); err != nil {
		log.Fatal("failed to initialize cursor", zap.Error(err))
	}

	ticker := time.NewTicker(cfg.IndexerPollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			n, err := indexer.Poll(ctx)
			if err != nil {
				log.Error("poll cycle failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("deposits processed", zap.Int("count", n))
			}
		case <-sigCh:
			log.Info("shutting down TON indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
