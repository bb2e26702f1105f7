package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/events"
)

// WSHub fans campaign events out to websocket clients. A client subscribes
// to one campaign with ?campaign=<id> or to all campaigns without it;
// single-campaign clients first receive that campaign's recent events.
type WSHub struct {
	subscriber  events.Subscriber
	history     events.History
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[string][]*wsClient
}

// wsClient serializes writes; websocket connections allow one writer at a time.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

const allCampaigns = "*"

const backlogSize = 20

func NewWSHub(subscriber events.Subscriber, history events.History, log *zap.Logger) *WSHub {
	return &WSHub{
		subscriber:  subscriber,
		history:     history,
		log:         log,
		connections: make(map[string][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	for _, stream := range []string{events.StreamCampaign, events.StreamPayout} {
		if err := h.subscriber.Subscribe(ctx, stream, h.broadcast); err != nil {
			return err
		}
	}
	return nil
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := append([]*wsClient{}, h.connections[allCampaigns]...)
	if id := event.CampaignID(); id != "" {
		targets = append(targets, h.connections[id]...)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(data); err != nil {
			h.log.Debug("websocket write failed", zap.Error(err))
		}
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	key := allCampaigns
	if v := conn.Query("campaign"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid campaign id"}`))
			conn.Close()
			return
		}
		key = id.String()
	}
	client := &wsClient{conn: conn}

	// Register
	h.mu.Lock()
	h.connections[key] = append(h.connections[key], client)
	h.mu.Unlock()

	// Registered before the replay: a live event may arrive twice, never zero times.
	if key != allCampaigns && h.history != nil {
		h.replay(client, key)
	}

	defer func() {
		h.mu.Lock()
		clients := h.connections[key]
		for i, c := range clients {
			if c == client {
				h.connections[key] = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(h.connections[key]) == 0 {
			delete(h.connections, key)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *WSHub) replay(client *wsClient, campaignID string) {
	backlog, err := h.history.Recent(context.Background(), campaignID, backlogSize)
	if err != nil {
		h.log.Warn("failed to load event backlog", zap.String("campaign_id", campaignID), zap.Error(err))
		return
	}
	for _, event := range backlog {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := client.write(data); err != nil {
			return
		}
	}
}
