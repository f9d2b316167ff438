package chatclient

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeAPI implements just enough of the server's upload surface for the
// queue: allocate, receive, send. Failure injection drives the error
// paths.
type fakeAPI struct {
	srv *httptest.Server

	mu        sync.Mutex
	allocates int
	puts      int
	sends     int
	minted    []string
	idToRef   map[string]string
	captions  map[uuid.UUID][]string
	committed map[uuid.UUID][]string

	failPuts   int
	rejectSend bool

	// When set before any traffic, the first PUT signals arrival and
	// then blocks until release is closed.
	firstPutArrived chan struct{}
	releaseFirstPut chan struct{}
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{
		idToRef:   make(map[string]string),
		captions:  make(map[uuid.UUID][]string),
		committed: make(map[uuid.UUID][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/uploads", f.allocate)
	mux.HandleFunc("PUT /api/v1/uploads/{id}", f.receive)
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", f.send)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) allocate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Kind        string `json:"kind"`
		Size        int64  `json:"size"`
		ContentType string `json:"content_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	id := uuid.New()
	ref := uuid.NewString()
	f.mu.Lock()
	f.allocates++
	f.minted = append(f.minted, ref)
	f.idToRef[id.String()] = ref
	f.mu.Unlock()

	respond(w, http.StatusCreated, UploadTarget{
		ID:        id,
		Ref:       ref,
		URL:       "/api/v1/uploads/" + id.String(),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	})
}

func (f *fakeAPI) receive(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)

	f.mu.Lock()
	f.puts++
	n := f.puts
	arrived := f.firstPutArrived
	release := f.releaseFirstPut
	fail := f.failPuts > 0
	if fail {
		f.failPuts--
	}
	ref := f.idToRef[r.PathValue("id")]
	f.mu.Unlock()

	if n == 1 && release != nil {
		close(arrived)
		<-release
	}
	if fail {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "injected failure")
		return
	}
	if ref == "" {
		respondError(w, http.StatusGone, "GONE", "unknown target")
		return
	}
	respond(w, http.StatusOK, UploadTarget{Ref: ref, ExpiresAt: time.Now().Add(10 * time.Minute)})
}

func (f *fakeAPI) send(w http.ResponseWriter, r *http.Request) {
	convID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "bad conversation id")
		return
	}
	var in struct {
		Body  string `json:"body"`
		Media *struct {
			Kind string `json:"kind"`
			Ref  string `json:"ref"`
		} `json:"media"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	f.mu.Lock()
	reject := f.rejectSend
	if !reject {
		f.sends++
		f.captions[convID] = append(f.captions[convID], in.Body)
		if in.Media != nil {
			f.committed[convID] = append(f.committed[convID], in.Media.Ref)
		}
	}
	f.mu.Unlock()

	if reject {
		respondError(w, http.StatusForbidden, "MESSAGING_RESTRICTED", "This user cannot be messaged")
		return
	}
	msg := Message{ID: uuid.New(), ConversationID: convID, Body: in.Body, CreatedAt: time.Now()}
	if in.Media != nil {
		msg.Media = &MediaDescriptor{Kind: in.Media.Kind, Ref: in.Media.Ref, URL: "/api/v1/media/" + in.Media.Ref}
	}
	respond(w, http.StatusCreated, msg)
}

func (f *fakeAPI) counts() (allocates, puts, sends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocates, f.puts, f.sends
}

func (f *fakeAPI) captionsFor(convID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.captions[convID]))
	copy(out, f.captions[convID])
	return out
}

func (f *fakeAPI) committedFor(convID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.committed[convID]))
	copy(out, f.committed[convID])
	return out
}

func (f *fakeAPI) mintedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.minted))
	copy(out, f.minted)
	return out
}

func newQueueHarness(t *testing.T) (*fakeAPI, *UploadQueue, chan UploadItem) {
	t.Helper()

	api := newFakeAPI(t)
	updates := make(chan UploadItem, 256)
	client := New(api.srv.URL, WithToken("tok-test"))
	q := NewUploadQueue(client, func(item UploadItem) { updates <- item })
	t.Cleanup(q.Close)
	return api, q, updates
}

func waitState(t *testing.T, updates <-chan UploadItem, id uuid.UUID, want ItemState) UploadItem {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case item := <-updates:
			if item.ID == id && item.State == want {
				return item
			}
		case <-timeout:
			t.Fatalf("item %s never reached %s", id, want)
		}
	}
}

func TestEnqueueLocalValidation(t *testing.T) {
	tests := []struct {
		name        string
		kind        string
		contentType string
		payload     []byte
		wantReason  string
	}{
		{"oversized image", KindImage, "image/png", make([]byte, maxImageBytes+1), "exceeds"},
		{"mime mismatch", KindImage, "video/mp4", []byte("data"), "does not match"},
		{"unsupported kind", "gif", "image/gif", []byte("data"), "unsupported media kind"},
		{"empty payload", KindImage, "image/png", nil, "empty file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, q, _ := newQueueHarness(t)
			conv := uuid.New()

			id := q.Enqueue(conv, tt.kind, tt.contentType, "cap", nil, tt.payload)

			item, ok := q.Item(id)
			if !ok {
				t.Fatal("enqueued item not found")
			}
			if item.State != StateFailed {
				t.Fatalf("state = %s, want %s", item.State, StateFailed)
			}
			if !strings.Contains(item.Reason, tt.wantReason) {
				t.Errorf("reason = %q, want containing %q", item.Reason, tt.wantReason)
			}

			// Rejected locally, so nothing may have hit the server.
			if a, p, s := api.counts(); a+p+s != 0 {
				t.Errorf("server saw %d/%d/%d requests, want none", a, p, s)
			}
		})
	}
}

func TestUploadCompletes(t *testing.T) {
	api, q, updates := newQueueHarness(t)
	conv := uuid.New()
	payload := []byte("png bytes here")

	id := q.Enqueue(conv, KindImage, "image/png", "sunset", nil, payload)
	done := waitState(t, updates, id, StateCompleted)

	if done.Message == nil || done.Message.Media == nil {
		t.Fatalf("completed item = %+v, want attached message with media", done)
	}
	refs := api.mintedRefs()
	if len(refs) != 1 || done.Message.Media.Ref != refs[0] {
		t.Errorf("committed ref = %q, want the allocated %v", done.Message.Media.Ref, refs)
	}
	if done.Sent != done.Total || done.Total != int64(len(payload)) {
		t.Errorf("progress = %d/%d, want %d/%d", done.Sent, done.Total, len(payload), len(payload))
	}
	if got := api.captionsFor(conv); len(got) != 1 || got[0] != "sunset" {
		t.Errorf("server captions = %v, want [sunset]", got)
	}
	if a, p, s := api.counts(); a != 1 || p != 1 || s != 1 {
		t.Errorf("server saw %d/%d/%d requests, want 1/1/1", a, p, s)
	}
}

func TestQueueSequencesPerConversation(t *testing.T) {
	api, q, updates := newQueueHarness(t)
	conv := uuid.New()

	var ids []uuid.UUID
	for _, caption := range []string{"first", "second", "third"} {
		ids = append(ids, q.Enqueue(conv, KindImage, "image/png", caption, nil, []byte("img")))
	}
	for _, id := range ids {
		waitState(t, updates, id, StateCompleted)
	}

	got := api.captionsFor(conv)
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("captions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("captions = %v, want %v", got, want)
		}
	}
}

func TestConversationsProceedIndependently(t *testing.T) {
	api, q, updates := newQueueHarness(t)
	arrived := make(chan struct{})
	release := make(chan struct{})
	api.mu.Lock()
	api.firstPutArrived = arrived
	api.releaseFirstPut = release
	api.mu.Unlock()

	// The parked handler must be released even when an assertion bails
	// out early, or server shutdown would wait on it forever.
	var once sync.Once
	releaseGate := func() { once.Do(func() { close(release) }) }
	t.Cleanup(releaseGate)

	convA := uuid.New()
	convB := uuid.New()

	aID := q.Enqueue(convA, KindImage, "image/png", "stuck", nil, []byte("aaaa"))
	<-arrived

	// A is parked in its PUT; B runs its whole pipeline regardless.
	bID := q.Enqueue(convB, KindImage, "image/png", "quick", nil, []byte("bbbb"))
	waitState(t, updates, bID, StateCompleted)

	if item, _ := q.Item(aID); item.State != StateUploading {
		t.Errorf("blocked item state = %s, want %s", item.State, StateUploading)
	}
	if q.Remove(aID) {
		t.Error("Remove succeeded on an uploading item")
	}

	releaseGate()
	waitState(t, updates, aID, StateCompleted)
}

func TestRetryAllocatesFreshTarget(t *testing.T) {
	api, q, updates := newQueueHarness(t)
	api.failPuts = 1
	conv := uuid.New()

	id := q.Enqueue(conv, KindImage, "image/png", "flaky", nil, []byte("img"))
	failed := waitState(t, updates, id, StateFailed)
	if !strings.Contains(failed.Reason, "transferring bytes") {
		t.Errorf("reason = %q, want a transfer failure", failed.Reason)
	}

	if !q.Retry(id) {
		t.Fatal("Retry() = false for a failed item")
	}
	done := waitState(t, updates, id, StateCompleted)

	refs := api.mintedRefs()
	if len(refs) != 2 {
		t.Fatalf("allocated %d targets, want 2 (spent ones are never reused)", len(refs))
	}
	if done.Message.Media.Ref != refs[1] {
		t.Errorf("committed ref = %q, want the fresh %q", done.Message.Media.Ref, refs[1])
	}

	if q.Retry(id) {
		t.Error("Retry() = true for a completed item")
	}
	if q.Retry(uuid.New()) {
		t.Error("Retry() = true for an unknown item")
	}
}

func TestCommitFailureIsRetryable(t *testing.T) {
	api, q, updates := newQueueHarness(t)
	api.mu.Lock()
	api.rejectSend = true
	api.mu.Unlock()
	conv := uuid.New()

	id := q.Enqueue(conv, KindImage, "image/png", "doomed", nil, []byte("img"))
	failed := waitState(t, updates, id, StateFailed)
	if !strings.Contains(failed.Reason, "committing message") {
		t.Errorf("reason = %q, want a commit failure", failed.Reason)
	}
	if _, p, s := api.counts(); p != 1 || s != 0 {
		t.Errorf("server saw %d PUTs and %d sends, want 1 and 0", p, s)
	}

	api.mu.Lock()
	api.rejectSend = false
	api.mu.Unlock()

	if !q.Retry(id) {
		t.Fatal("Retry() = false for a failed item")
	}
	done := waitState(t, updates, id, StateCompleted)
	if a, _, _ := api.counts(); a != 2 {
		t.Errorf("allocates = %d, want 2 after retry", a)
	}
	if got := api.committedFor(conv); len(got) != 1 || got[0] != done.Message.Media.Ref {
		t.Errorf("committed = %v, want [%s]", got, done.Message.Media.Ref)
	}
}

func TestRemoveDropsTerminalItems(t *testing.T) {
	_, q, updates := newQueueHarness(t)
	conv := uuid.New()

	// Instantly failed by local validation.
	failedID := q.Enqueue(conv, "gif", "image/gif", "", nil, []byte("x"))
	if !q.Remove(failedID) {
		t.Error("Remove() = false for a failed item")
	}

	doneID := q.Enqueue(conv, KindImage, "image/png", "keepable", nil, []byte("img"))
	waitState(t, updates, doneID, StateCompleted)
	if !q.Remove(doneID) {
		t.Error("Remove() = false for a completed item")
	}
	if items := q.Items(); len(items) != 0 {
		t.Errorf("queue holds %d items after removals, want 0", len(items))
	}
	if q.Remove(uuid.New()) {
		t.Error("Remove() = true for an unknown item")
	}
}
