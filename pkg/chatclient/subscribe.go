package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Live query kinds.
const (
	QueryMessages      = "messages"
	QueryConversations = "conversations"
)

// Query identifies one live query on the socket.
type Query struct {
	Kind           string    `json:"kind"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	Limit          int       `json:"limit,omitempty"`
}

type TypingUpdate struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Typing         bool      `json:"typing"`
}

type PresenceUpdate struct {
	UserID uuid.UUID `json:"user_id"`
	Online bool      `json:"online"`
}

// Update is one server push. Type selects which fields are set:
// "result" carries Query and Result, "typing" and "presence" their
// events, "error" Code and Message.
type Update struct {
	Type     string
	Query    Query
	Result   json.RawMessage
	Typing   *TypingUpdate
	Presence *PresenceUpdate
	Code     string
	Message  string
}

// Ended reports a result delivery that closes its subscription: the
// server sends a null result when the subscriber lost visibility.
func (u Update) Ended() bool {
	return u.Type == "result" && u.Result == nil
}

// Messages decodes a result delivery for a messages query.
func (u Update) Messages() (*MessagesPage, error) {
	if u.Result == nil {
		return nil, nil
	}
	var page MessagesPage
	if err := json.Unmarshal(u.Result, &page); err != nil {
		return nil, fmt.Errorf("decoding messages result: %w", err)
	}
	return &page, nil
}

// Conversations decodes a result delivery for a conversations query.
func (u Update) Conversations() ([]Conversation, error) {
	if u.Result == nil {
		return nil, nil
	}
	var convs []Conversation
	if err := json.Unmarshal(u.Result, &convs); err != nil {
		return nil, fmt.Errorf("decoding conversations result: %w", err)
	}
	return convs, nil
}

type wsEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ts      int64           `json:"ts,omitempty"`
}

// Stream is one live socket. Register queries with Watch; every
// delivery on a watched query is a full replacement result set.
type Stream struct {
	conn    *websocket.Conn
	updates chan Update

	mu  sync.Mutex
	err error
}

// Subscribe opens the websocket with the client's token. The returned
// stream's Updates channel closes when the socket dies; Err then says
// why.
func (c *Client) Subscribe(ctx context.Context) (*Stream, error) {
	if c.token == "" {
		return nil, fmt.Errorf("subscribe requires a token")
	}
	wsURL := wsBaseURL(c.baseURL) + "/ws?token=" + url.QueryEscape(c.token)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	// Result deliveries carry whole pages; the default limit is too
	// small for them.
	conn.SetReadLimit(1 << 20)

	s := &Stream{conn: conn, updates: make(chan Update, 64)}
	go s.readLoop(ctx)
	return s, nil
}

func wsBaseURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}

// Updates delivers server pushes in arrival order. The channel closes
// when the stream ends.
func (s *Stream) Updates() <-chan Update { return s.updates }

// Err returns what ended the stream, once Updates has closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// Watch registers a live query. The first delivery arrives immediately
// with the query's current result.
func (s *Stream) Watch(ctx context.Context, q Query) error {
	return s.send(ctx, "subscribe", q)
}

func (s *Stream) Unwatch(ctx context.Context, q Query) error {
	return s.send(ctx, "unsubscribe", q)
}

func (s *Stream) StartTyping(ctx context.Context, conversationID uuid.UUID) error {
	return s.send(ctx, "typing.start", map[string]uuid.UUID{"conversation_id": conversationID})
}

func (s *Stream) StopTyping(ctx context.Context, conversationID uuid.UUID) error {
	return s.send(ctx, "typing.stop", map[string]uuid.UUID{"conversation_id": conversationID})
}

func (s *Stream) Ping(ctx context.Context) error {
	return s.send(ctx, "ping", nil)
}

func (s *Stream) send(ctx context.Context, eventType string, payload any) error {
	ev := wsEvent{Type: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s payload: %w", eventType, err)
		}
		ev.Payload = data
	}
	return wsjson.Write(ctx, s.conn, ev)
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.updates)
	for {
		var ev wsEvent
		if err := wsjson.Read(ctx, s.conn, &ev); err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		update, ok := decodeUpdate(ev)
		if !ok {
			continue
		}
		select {
		case s.updates <- update:
		case <-ctx.Done():
			s.mu.Lock()
			s.err = ctx.Err()
			s.mu.Unlock()
			return
		}
	}
}

func decodeUpdate(ev wsEvent) (Update, bool) {
	switch ev.Type {
	case "result":
		var p struct {
			Query  Query           `json:"query"`
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return Update{}, false
		}
		u := Update{Type: ev.Type, Query: p.Query, Result: p.Result}
		if string(p.Result) == "null" {
			u.Result = nil
		}
		return u, true

	case "typing":
		var t TypingUpdate
		if err := json.Unmarshal(ev.Payload, &t); err != nil {
			return Update{}, false
		}
		return Update{Type: ev.Type, Typing: &t}, true

	case "presence":
		var p PresenceUpdate
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return Update{}, false
		}
		return Update{Type: ev.Type, Presence: &p}, true

	case "error":
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(ev.Payload, &e)
		return Update{Type: ev.Type, Code: e.Code, Message: e.Message}, true

	case "pong":
		return Update{Type: ev.Type}, true

	default:
		return Update{}, false
	}
}

// TypingDebouncer coalesces keystroke bursts into at most one typing
// signal per interval. Wire send to Stream.StartTyping/StopTyping or
// the REST SetTyping.
type TypingDebouncer struct {
	send     func(typing bool)
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewTypingDebouncer uses a 250ms interval when interval is zero.
func NewTypingDebouncer(send func(typing bool), interval time.Duration) *TypingDebouncer {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &TypingDebouncer{send: send, interval: interval}
}

// Touch marks keystroke activity, forwarding at most one signal per
// interval.
func (d *TypingDebouncer) Touch() {
	d.mu.Lock()
	now := time.Now()
	fire := now.Sub(d.last) >= d.interval
	if fire {
		d.last = now
	}
	d.mu.Unlock()

	if fire {
		d.send(true)
	}
}

// Stop signals the end of typing, e.g. on send or compose-box blur.
func (d *TypingDebouncer) Stop() {
	d.mu.Lock()
	d.last = time.Time{}
	d.mu.Unlock()

	d.send(false)
}
