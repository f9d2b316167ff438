// Package livequery re-runs registered read queries whenever a mutation
// invalidates them and pushes the full fresh result to each subscriber.
// Clients never see individual change events, only replacement result
// sets, so a missed delivery degrades to staleness rather than drift.
package livequery

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vedran77/courier/pkg/logger"
)

const (
	QueryMessages      = "messages"
	QueryConversations = "conversations"
)

// Event names for ephemeral fan-out that bypasses query re-evaluation.
const (
	EventTyping   = "typing"
	EventPresence = "presence"
)

// ErrGone tells the broker a subscriber can no longer see what they
// subscribed to. The subscription is delivered one final empty result
// and dropped.
var ErrGone = errors.New("query no longer visible to subscriber")

// Query identifies one live query. It is comparable and doubles as the
// subscription key, so two subscriptions to the same parameters collapse
// into one.
type Query struct {
	Kind           string    `json:"kind"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	Limit          int       `json:"limit,omitempty"`
}

// Valid reports whether the query names something the broker can
// evaluate.
func (q Query) Valid() bool {
	switch q.Kind {
	case QueryMessages:
		return q.ConversationID != uuid.Nil
	case QueryConversations:
		return true
	default:
		return false
	}
}

// Subscriber is one connected client. Deliver and DeliverEvent must not
// block; returning false marks the subscriber as wedged and costs it all
// of its subscriptions.
type Subscriber interface {
	UserID() uuid.UUID
	Deliver(q Query, result any) bool
	DeliverEvent(event string, payload any) bool
}

// EvaluateFunc runs a query as a given user and returns the full result
// set. Returning ErrGone (possibly wrapped) means the user lost
// visibility of the query's subject.
type EvaluateFunc func(ctx context.Context, userID uuid.UUID, q Query) (any, error)

type TypingEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Typing         bool      `json:"typing"`
}

type PresenceEvent struct {
	UserID uuid.UUID `json:"user_id"`
	Online bool      `json:"online"`
}

type subRequest struct {
	sub Subscriber
	q   Query
}

// invalidation names what changed: a conversation's content, or the
// conversation lists of specific users.
type invalidation struct {
	conversationID uuid.UUID
	userIDs        []uuid.UUID
}

type eventMsg struct {
	conversationID uuid.UUID
	fromUserID     uuid.UUID
	name           string
	payload        any
}

// Broker owns all subscriptions and serializes every mutation of them
// through one goroutine, the same way the ws hub serializes its client
// set. It implements service.Publisher.
type Broker struct {
	evaluate      EvaluateFunc
	subscriptions prometheus.Gauge

	subscribe   chan subRequest
	unsubscribe chan subRequest
	drop        chan Subscriber
	invalidate  chan invalidation
	events      chan eventMsg

	// Loop-owned; touched only from Run.
	subs  map[Subscriber]map[Query]struct{}
	total int
}

func NewBroker(evaluate EvaluateFunc, subscriptions prometheus.Gauge) *Broker {
	return &Broker{
		evaluate:      evaluate,
		subscriptions: subscriptions,
		subscribe:     make(chan subRequest),
		unsubscribe:   make(chan subRequest),
		drop:          make(chan Subscriber),
		invalidate:    make(chan invalidation, 256),
		events:        make(chan eventMsg, 256),
		subs:          make(map[Subscriber]map[Query]struct{}),
	}
}

// Run is the broker's event loop. Call it in a goroutine; it exits when
// ctx is canceled.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case req := <-b.subscribe:
			b.add(req.sub, req.q)
			b.deliver(ctx, req.sub, req.q)

		case req := <-b.unsubscribe:
			b.remove(req.sub, req.q)

		case sub := <-b.drop:
			b.removeAll(sub)

		case inv := <-b.invalidate:
			b.refresh(ctx, inv)

		case ev := <-b.events:
			b.fanOut(ev)
		}
	}
}

// Subscribe registers the query and triggers an immediate first
// delivery, so a subscriber never waits for the next mutation to see
// current state.
func (b *Broker) Subscribe(sub Subscriber, q Query) {
	b.subscribe <- subRequest{sub: sub, q: q}
}

func (b *Broker) Unsubscribe(sub Subscriber, q Query) {
	b.unsubscribe <- subRequest{sub: sub, q: q}
}

// Drop cancels every subscription a subscriber holds. Called on
// disconnect.
func (b *Broker) Drop(sub Subscriber) {
	b.drop <- sub
}

// ConversationChanged re-evaluates every messages query on the
// conversation.
func (b *Broker) ConversationChanged(conversationID uuid.UUID) {
	b.invalidate <- invalidation{conversationID: conversationID}
}

// ConversationListChanged re-evaluates the conversation-list query of
// each named user.
func (b *Broker) ConversationListChanged(userIDs ...uuid.UUID) {
	if len(userIDs) == 0 {
		return
	}
	b.invalidate <- invalidation{userIDs: userIDs}
}

// TypingChanged fans an ephemeral typing event to subscribers watching
// the conversation. No query re-runs; typing state is not query result
// material.
func (b *Broker) TypingChanged(conversationID, userID uuid.UUID, typing bool) {
	b.events <- eventMsg{
		conversationID: conversationID,
		fromUserID:     userID,
		name:           EventTyping,
		payload:        TypingEvent{ConversationID: conversationID, UserID: userID, Typing: typing},
	}
}

// PresenceChanged fans an online/offline edge to every subscriber
// except the user it concerns.
func (b *Broker) PresenceChanged(userID uuid.UUID, online bool) {
	b.events <- eventMsg{
		fromUserID: userID,
		name:       EventPresence,
		payload:    PresenceEvent{UserID: userID, Online: online},
	}
}

func (b *Broker) add(sub Subscriber, q Query) {
	qs, ok := b.subs[sub]
	if !ok {
		qs = make(map[Query]struct{})
		b.subs[sub] = qs
	}
	if _, dup := qs[q]; dup {
		return
	}
	qs[q] = struct{}{}
	b.total++
	b.gauge()
}

func (b *Broker) remove(sub Subscriber, q Query) {
	qs, ok := b.subs[sub]
	if !ok {
		return
	}
	if _, held := qs[q]; !held {
		return
	}
	delete(qs, q)
	b.total--
	if len(qs) == 0 {
		delete(b.subs, sub)
	}
	b.gauge()
}

func (b *Broker) removeAll(sub Subscriber) {
	qs, ok := b.subs[sub]
	if !ok {
		return
	}
	b.total -= len(qs)
	delete(b.subs, sub)
	b.gauge()
}

func (b *Broker) refresh(ctx context.Context, inv invalidation) {
	users := make(map[uuid.UUID]struct{}, len(inv.userIDs))
	for _, id := range inv.userIDs {
		users[id] = struct{}{}
	}

	// Collect first: deliver may drop subscriptions mid-iteration.
	var pending []subRequest
	for sub, qs := range b.subs {
		for q := range qs {
			switch q.Kind {
			case QueryMessages:
				if q.ConversationID == inv.conversationID {
					pending = append(pending, subRequest{sub: sub, q: q})
				}
			case QueryConversations:
				if _, hit := users[sub.UserID()]; hit {
					pending = append(pending, subRequest{sub: sub, q: q})
				}
			}
		}
	}
	for _, p := range pending {
		b.deliver(ctx, p.sub, p.q)
	}
}

// deliver evaluates one query as its subscriber and pushes the result.
// Visibility loss delivers a final empty result and ends the
// subscription; a wedged subscriber loses everything at once.
func (b *Broker) deliver(ctx context.Context, sub Subscriber, q Query) {
	result, err := b.evaluate(ctx, sub.UserID(), q)
	if err != nil {
		if errors.Is(err, ErrGone) {
			sub.Deliver(q, nil)
			b.remove(sub, q)
			return
		}
		logger.Log.Error("live query evaluation failed",
			zap.String("kind", q.Kind),
			zap.String("conversation_id", q.ConversationID.String()),
			zap.Error(err))
		return
	}
	if !sub.Deliver(q, result) {
		b.removeAll(sub)
	}
}

func (b *Broker) fanOut(ev eventMsg) {
	for sub, qs := range b.subs {
		if sub.UserID() == ev.fromUserID {
			continue
		}
		if ev.conversationID != uuid.Nil && !watchesConversation(qs, ev.conversationID) {
			continue
		}
		if !sub.DeliverEvent(ev.name, ev.payload) {
			b.removeAll(sub)
		}
	}
}

func watchesConversation(qs map[Query]struct{}, conversationID uuid.UUID) bool {
	for q := range qs {
		if q.Kind == QueryMessages && q.ConversationID == conversationID {
			return true
		}
	}
	return false
}

func (b *Broker) gauge() {
	if b.subscriptions != nil {
		b.subscriptions.Set(float64(b.total))
	}
}
