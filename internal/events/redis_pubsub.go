package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	recentPrefix = "events:recent:"
	recentLimit  = 100
	recentTTL    = 7 * 24 * time.Hour
)

func recentKey(campaignID string) string {
	return recentPrefix + campaignID
}

// RedisPublisher publishes events on pub/sub and keeps the latest events of
// each campaign in a capped list, newest first.
type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, stream, data)
	if id := event.CampaignID(); id != "" {
		key := recentKey(id)
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, recentLimit-1)
		pipe.Expire(ctx, key, recentTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.log.Warn("publish failed", zap.String("stream", stream), zap.String("type", event.Type), zap.Error(err))
		return err
	}
	return nil
}

// Recent returns up to n of the latest events of a campaign, oldest first.
func (p *RedisPublisher) Recent(ctx context.Context, campaignID string, n int64) ([]Event, error) {
	if n <= 0 || n > recentLimit {
		n = recentLimit
	}
	raw, err := p.client.LRange(ctx, recentKey(campaignID), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("load recent events: %w", err)
	}
	out := make([]Event, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		event, err := decode(raw[i])
		if err != nil {
			p.log.Warn("dropping malformed recent event", zap.String("campaign_id", campaignID), zap.Error(err))
			continue
		}
		out = append(out, event)
	}
	return out, nil
}

func decode(raw string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Event{}, err
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	return event, nil
}

type RedisSubscriber struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, log *zap.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, log: log}
}

// Subscribe returns once the subscription is confirmed; handler runs on a
// single goroutine per stream until ctx is done.
func (s *RedisSubscriber) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	pubsub := s.client.Subscribe(ctx, stream)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", stream, err)
	}
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					s.log.Warn("subscription closed", zap.String("stream", stream))
					return
				}
				event, err := decode(msg.Payload)
				if err != nil {
					s.log.Error("failed to decode event", zap.String("stream", stream), zap.Error(err))
					continue
				}
				handler(event)
			}
		}
	}()

	return nil
}
