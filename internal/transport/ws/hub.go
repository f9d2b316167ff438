package ws

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vedran77/courier/internal/livequery"
	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/pkg/logger"
)

// Hub tracks the active connections and ties their lifecycle to
// presence: connecting marks a user online, disconnecting clears the
// mark and cancels every live query the connection held.
type Hub struct {
	broker      *livequery.Broker
	presenceSvc *service.PresenceService
	connections prometheus.Gauge

	// clients maps userID → client; one connection per user, newest
	// wins.
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
}

func NewHub(broker *livequery.Broker, presenceSvc *service.PresenceService, connections prometheus.Gauge) *Hub {
	return &Hub{
		broker:      broker,
		presenceSvc: presenceSvc,
		connections: connections,
		clients:     make(map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
	}
}

// Run starts the Hub's main event loop. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			if old, ok := h.clients[client.userID]; ok {
				h.broker.Drop(old)
				close(old.done)
			}
			h.clients[client.userID] = client
			h.gauge()
			logger.Log.Info("ws connected",
				zap.String("user_id", client.userID.String()),
				zap.Int("total", len(h.clients)))

			if err := h.presenceSvc.Heartbeat(ctx, client.userID); err != nil {
				logger.Log.Warn("presence touch failed", zap.Error(err))
			}

		case client := <-h.unregister:
			// A replaced connection unregisters late; only the current
			// one may clear presence.
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.done)
				h.gauge()
				logger.Log.Info("ws disconnected",
					zap.String("user_id", client.userID.String()),
					zap.Int("total", len(h.clients)))

				if err := h.presenceSvc.SetOffline(ctx, client.userID); err != nil {
					logger.Log.Warn("presence clear failed", zap.Error(err))
				}
			}
			h.broker.Drop(client)
		}
	}
}

func (h *Hub) gauge() {
	if h.connections != nil {
		h.connections.Set(float64(len(h.clients)))
	}
}
