package chatclient

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ItemState string

const (
	StateQueued    ItemState = "queued"
	StateUploading ItemState = "uploading"
	StateCompleted ItemState = "completed"
	StateFailed    ItemState = "failed"
)

// UploadItem is a caller-visible snapshot of one queued media send.
// Caption and ReplyToID are captured at enqueue time; later compose-box
// edits never touch an already queued item.
type UploadItem struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Kind           string
	ContentType    string
	Caption        string
	ReplyToID      *uuid.UUID
	State          ItemState
	Reason         string
	Sent           int64
	Total          int64
	Message        *Message
	EnqueuedAt     time.Time
}

type queueItem struct {
	UploadItem
	payload []byte
}

func (i *queueItem) view() UploadItem { return i.UploadItem }

// UploadQueue sequences media sends. Within one conversation items
// upload strictly one at a time in enqueue order, so captions and
// replies land in the order the user attached them; different
// conversations proceed independently.
type UploadQueue struct {
	client   *Client
	onChange func(UploadItem)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	items    []*queueItem
	inFlight map[uuid.UUID]bool
}

// NewUploadQueue builds a queue over client. onChange, when non-nil, is
// called with a snapshot after every state or progress change, never
// while the queue lock is held.
func NewUploadQueue(client *Client, onChange func(UploadItem)) *UploadQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &UploadQueue{
		client:   client,
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[uuid.UUID]bool),
	}
}

// Close cancels in-flight transfers and waits for their goroutines.
func (q *UploadQueue) Close() {
	q.cancel()
	q.wg.Wait()
}

// Enqueue adds a file to the queue. Size and MIME violations fail the
// item immediately with a descriptive reason and never reach the
// server. The returned ID addresses the item in Retry and Remove.
func (q *UploadQueue) Enqueue(conversationID uuid.UUID, kind, contentType, caption string, replyToID *uuid.UUID, payload []byte) uuid.UUID {
	item := &queueItem{
		UploadItem: UploadItem{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Kind:           kind,
			ContentType:    contentType,
			Caption:        caption,
			ReplyToID:      replyToID,
			State:          StateQueued,
			Total:          int64(len(payload)),
			EnqueuedAt:     time.Now(),
		},
		payload: payload,
	}
	if err := checkLocal(kind, contentType, item.Total); err != nil {
		item.State = StateFailed
		item.Reason = err.Error()
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	view := item.view()
	q.mu.Unlock()

	q.notify(view)
	if view.State == StateQueued {
		q.dispatch(conversationID)
	}
	return item.ID
}

// Retry re-queues a failed item with its original payload, caption and
// reply target. The next transfer acquires a fresh upload target; spent
// ones are never reused.
func (q *UploadQueue) Retry(id uuid.UUID) bool {
	q.mu.Lock()
	item := q.find(id)
	if item == nil || item.State != StateFailed {
		q.mu.Unlock()
		return false
	}
	item.State = StateQueued
	item.Reason = ""
	item.Sent = 0
	convID := item.ConversationID
	view := item.view()
	q.mu.Unlock()

	q.notify(view)
	q.dispatch(convID)
	return true
}

// Remove drops an item in a terminal state. Queued and uploading items
// cannot be removed.
func (q *UploadQueue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID != id {
			continue
		}
		if item.State != StateCompleted && item.State != StateFailed {
			return false
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return true
	}
	return false
}

// Items returns snapshots of every item in enqueue order.
func (q *UploadQueue) Items() []UploadItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]UploadItem, len(q.items))
	for i, item := range q.items {
		out[i] = item.view()
	}
	return out
}

func (q *UploadQueue) Item(id uuid.UUID) (UploadItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item := q.find(id); item != nil {
		return item.view(), true
	}
	return UploadItem{}, false
}

// find expects q.mu held.
func (q *UploadQueue) find(id uuid.UUID) *queueItem {
	for _, item := range q.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// dispatch starts the conversation's first queued item unless one is
// already in flight there.
func (q *UploadQueue) dispatch(conversationID uuid.UUID) {
	q.mu.Lock()
	if q.inFlight[conversationID] {
		q.mu.Unlock()
		return
	}
	var next *queueItem
	for _, item := range q.items {
		if item.ConversationID == conversationID && item.State == StateQueued {
			next = item
			break
		}
	}
	if next == nil {
		q.mu.Unlock()
		return
	}
	next.State = StateUploading
	q.inFlight[conversationID] = true
	view := next.view()
	q.mu.Unlock()

	q.notify(view)
	q.wg.Add(1)
	go q.transfer(next)
}

// transfer is the whole unit: allocate, PUT, commit. Any stage failing
// fails the item; a later Retry starts over with a fresh target.
func (q *UploadQueue) transfer(item *queueItem) {
	defer q.wg.Done()

	if err := checkLocal(item.Kind, item.ContentType, item.Total); err != nil {
		q.fail(item, err.Error())
		return
	}

	target, err := q.client.AllocateUpload(q.ctx, item.Kind, item.Total, item.ContentType)
	if err != nil {
		q.fail(item, "allocating upload target: "+err.Error())
		return
	}

	_, err = q.client.UploadBytes(q.ctx, target, bytes.NewReader(item.payload), item.Total, func(sent, total int64) {
		q.progress(item, sent)
	})
	if err != nil {
		q.fail(item, "transferring bytes: "+err.Error())
		return
	}

	msg, err := q.client.SendMedia(q.ctx, item.ConversationID, item.Kind, target.Ref, item.Caption, item.ReplyToID)
	if err != nil {
		q.fail(item, "committing message: "+err.Error())
		return
	}

	q.mu.Lock()
	item.State = StateCompleted
	item.Message = msg
	item.Sent = item.Total
	q.inFlight[item.ConversationID] = false
	view := item.view()
	q.mu.Unlock()

	q.notify(view)
	q.dispatch(item.ConversationID)
}

func (q *UploadQueue) fail(item *queueItem, reason string) {
	q.mu.Lock()
	item.State = StateFailed
	item.Reason = reason
	q.inFlight[item.ConversationID] = false
	view := item.view()
	q.mu.Unlock()

	q.notify(view)
	q.dispatch(item.ConversationID)
}

func (q *UploadQueue) progress(item *queueItem, sent int64) {
	q.mu.Lock()
	item.Sent = sent
	view := item.view()
	q.mu.Unlock()

	q.notify(view)
}

func (q *UploadQueue) notify(view UploadItem) {
	if q.onChange != nil {
		q.onChange(view)
	}
}
