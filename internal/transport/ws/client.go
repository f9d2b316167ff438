package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/vedran77/courier/internal/livequery"
	"github.com/vedran77/courier/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client is a single WebSocket connection. It implements
// livequery.Subscriber; the broker pushes result sets and ephemeral
// events through Deliver/DeliverEvent onto the send channel.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Deliver queues a replacement result set. False means the send buffer
// is full and the broker should give up on this client.
func (c *Client) Deliver(q livequery.Query, result any) bool {
	evt, err := NewEvent(EventTypeResult, ResultPayload{Query: q, Result: result})
	if err != nil {
		return true
	}
	return c.enqueue(evt)
}

// DeliverEvent queues an ephemeral event (typing, presence).
func (c *Client) DeliverEvent(name string, payload any) bool {
	evt, err := NewEvent(name, payload)
	if err != nil {
		return true
	}
	return c.enqueue(evt)
}

func (c *Client) enqueue(evt *Event) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		return true
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// ReadPump reads client events until the connection drops, then
// unregisters.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				logger.Log.Debug("ws client disconnected", zap.String("user_id", c.userID.String()))
			} else {
				logger.Log.Debug("ws read failed", zap.String("user_id", c.userID.String()), zap.Error(err))
			}
			return
		}
		c.handleEvent(&event)
	}
}

// WritePump drains the send channel onto the wire and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				logger.Log.Debug("ws write failed", zap.String("user_id", c.userID.String()), zap.Error(err))
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes one incoming client event.
func (c *Client) handleEvent(event *Event) {
	switch event.Type {
	case EventTypeSubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid subscribe payload")
			return
		}
		if !p.Valid() {
			c.sendError("INVALID_QUERY", "unknown query kind or missing conversation_id")
			return
		}
		c.hub.broker.Subscribe(c, p.Query)

	case EventTypeUnsubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid unsubscribe payload")
			return
		}
		c.hub.broker.Unsubscribe(c, p.Query)

	case EventTypeTypingStart, EventTypeTypingStop:
		var p TypingActionPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.ConversationID == uuid.Nil {
			c.sendError("INVALID_PAYLOAD", "conversation_id required for typing events")
			return
		}
		typing := event.Type == EventTypeTypingStart
		if err := c.hub.presenceSvc.SetTyping(context.Background(), c.userID, p.ConversationID, typing); err != nil {
			c.sendError("TYPING_FAILED", "could not update typing state")
		}

	case EventTypePing:
		c.sendPong()

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(Event{Type: EventTypePong, Timestamp: time.Now().Unix()})
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	evt, err := NewEvent(EventTypeError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
