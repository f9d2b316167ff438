package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
)

const (
	// TargetTTL bounds both windows of an upload: allocate to PUT, and
	// PUT to commit.
	TargetTTL = 10 * time.Minute

	uploadPath = "/api/v1/uploads/"
)

var (
	ErrUnknownKind    = errors.New("media kind must be image, video or audio")
	ErrTooLarge       = errors.New("file exceeds the size limit for its kind")
	ErrBadContentType = errors.New("content type does not match the media kind")
	ErrTargetGone     = errors.New("upload target is unknown, used or expired")
	ErrSizeMismatch   = errors.New("uploaded bytes do not match the declared size")
)

// Target is a single-use upload slot. The client PUTs bytes to URL once;
// afterwards the ref can be committed to exactly one message.
type Target struct {
	ID        uuid.UUID `json:"id"`
	Ref       string    `json:"ref"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type targetState struct {
	id          uuid.UUID
	ref         string
	ownerID     uuid.UUID
	kind        string
	size        int64
	contentType string
	expiresAt   time.Time
}

// Targets tracks upload slots between allocation and commit. The state
// is in-process and TTL-bound on purpose: like presence, losing it on
// restart only costs clients a retry.
type Targets struct {
	store *Store
	ttl   time.Duration

	mu       sync.Mutex
	pending  map[uuid.UUID]*targetState
	uploaded map[string]*targetState

	now func() time.Time
}

func NewTargets(store *Store, ttl time.Duration) *Targets {
	if ttl <= 0 {
		ttl = TargetTTL
	}
	return &Targets{
		store:    store,
		ttl:      ttl,
		pending:  make(map[uuid.UUID]*targetState),
		uploaded: make(map[string]*targetState),
		now:      time.Now,
	}
}

// Allocate validates the declared upload and mints a target for it. The
// same kind/size/MIME rules run client-side first; this is the server's
// authoritative repeat.
func (t *Targets) Allocate(ctx context.Context, ownerID uuid.UUID, kind string, size int64, contentType string) (*Target, error) {
	if !domain.ValidMediaKind(kind) {
		return nil, ErrUnknownKind
	}
	if size <= 0 || size > domain.MaxMediaBytes(kind) {
		return nil, ErrTooLarge
	}
	if !domain.MIMEMatchesKind(contentType, kind) {
		return nil, ErrBadContentType
	}

	state := &targetState{
		id:          uuid.New(),
		ref:         uuid.NewString(),
		ownerID:     ownerID,
		kind:        kind,
		size:        size,
		contentType: contentType,
		expiresAt:   t.now().Add(t.ttl),
	}

	t.mu.Lock()
	t.pending[state.id] = state
	t.mu.Unlock()

	return &Target{
		ID:        state.id,
		Ref:       state.ref,
		URL:       uploadPath + state.id.String(),
		ExpiresAt: state.expiresAt,
	}, nil
}

// Receive consumes the target and streams the body into the bucket. The
// target is spent even if the transfer fails; retries allocate a fresh
// one. The byte count must equal the declared size exactly.
func (t *Targets) Receive(ctx context.Context, id uuid.UUID, body io.Reader) (*Target, error) {
	t.mu.Lock()
	state, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok || t.now().After(state.expiresAt) {
		return nil, ErrTargetGone
	}

	// Read one byte past the declared size so oversized bodies are
	// caught without buffering them whole.
	limited := io.LimitReader(body, state.size+1)
	counter := &countingReader{r: limited}
	if err := t.store.Put(ctx, state.ref, counter, state.contentType); err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}
	if counter.n != state.size {
		_ = t.store.Delete(ctx, state.ref)
		return nil, ErrSizeMismatch
	}

	state.expiresAt = t.now().Add(t.ttl)
	t.mu.Lock()
	t.uploaded[state.ref] = state
	t.mu.Unlock()

	return &Target{ID: state.id, Ref: state.ref, ExpiresAt: state.expiresAt}, nil
}

// CommitRef claims an uploaded ref for a message. Second claims fail,
// which is what keeps one upload from backing two messages.
func (t *Targets) CommitRef(ctx context.Context, ref string) (string, bool) {
	t.mu.Lock()
	state, ok := t.uploaded[ref]
	if ok {
		delete(t.uploaded, ref)
	}
	t.mu.Unlock()

	if !ok || t.now().After(state.expiresAt) {
		return "", false
	}
	return state.kind, true
}

// Sweep drops expired slots and deletes the blobs of uploads that were
// never committed. Run it periodically.
func (t *Targets) Sweep(ctx context.Context) {
	now := t.now()

	t.mu.Lock()
	for id, state := range t.pending {
		if now.After(state.expiresAt) {
			delete(t.pending, id)
		}
	}
	var orphaned []string
	for ref, state := range t.uploaded {
		if now.After(state.expiresAt) {
			delete(t.uploaded, ref)
			orphaned = append(orphaned, ref)
		}
	}
	t.mu.Unlock()

	for _, ref := range orphaned {
		_ = t.store.Delete(ctx, ref)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
