package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/db"
	"github.com/milestone-escrow/backend/internal/events"
)

// Event bridge: forwards campaign and payout events from Redis to an external
// webhook (notification bot, indexer UI, analytics).

const webhookAttempts = 3

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.EventWebhookURL == "" {
		log.Fatal("EVENT_WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	client := &http.Client{Timeout: 10 * time.Second}

	for _, stream := range []string{events.StreamCampaign, events.StreamPayout} {
		stream := stream
		if err := subscriber.Subscribe(ctx, stream, func(event events.Event) {
			forward(ctx, client, cfg.EventWebhookURL, stream, event, log)
		}); err != nil {
			log.Fatal("failed to subscribe", zap.String("stream", stream), zap.Error(err))
		}
	}

	log.Info("event-bridge started", zap.String("webhook", cfg.EventWebhookURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down event-bridge")
	cancel()
}

func forward(ctx context.Context, client *http.Client, url, stream string, event events.Event, log *zap.Logger) {
	body, err := json.Marshal(map[string]any{
		"stream":  stream,
		"type":    event.Type,
		"payload": event.Payload,
	})
	if err != nil {
		log.Warn("failed to encode event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	for attempt := 1; attempt <= webhookAttempts; attempt++ {
		status, err := post(ctx, client, url, body)
		if err == nil && status < 300 {
			return
		}
		log.Warn("webhook delivery failed",
			zap.String("type", event.Type),
			zap.String("campaign_id", event.CampaignID()),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Error(err),
		)
		// 4xx will not get better on retry.
		if status >= 400 && status < 500 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
