package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/presence"
	memoryrepo "github.com/vedran77/courier/internal/repository/memory"
)

// testEnv wires the full service layer over in-memory storage, the same
// shape main assembles minus the transport.
type testEnv struct {
	identity *IdentityService
	privacy  *PrivacyService
	convs    *ConversationService
	msgs     *MessageService
	presence *PresenceService

	liveness *presence.MemoryCache
	media    *fakeCommitter
	pub      *fakePublisher

	userRepo    *memoryrepo.UserRepo
	convRepo    *memoryrepo.ConversationRepo
	msgRepo     *memoryrepo.MessageRepo
	blockRepo   *memoryrepo.BlockRepo
	privacyRepo *memoryrepo.PrivacyRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memoryrepo.NewStore()
	e := &testEnv{
		liveness:    presence.NewMemoryCache(),
		media:       newFakeCommitter(),
		pub:         &fakePublisher{},
		userRepo:    memoryrepo.NewUserRepo(store),
		convRepo:    memoryrepo.NewConversationRepo(store),
		msgRepo:     memoryrepo.NewMessageRepo(store),
		blockRepo:   memoryrepo.NewBlockRepo(store),
		privacyRepo: memoryrepo.NewPrivacyRepo(store),
	}

	e.identity = NewIdentityService(e.userRepo, e.blockRepo, "test-secret")
	e.privacy = NewPrivacyService(e.privacyRepo, e.blockRepo, e.userRepo)
	e.convs = NewConversationService(e.convRepo, e.userRepo, e.blockRepo, e.privacyRepo, e.liveness)
	e.msgs = NewMessageService(e.msgRepo, e.convRepo, e.userRepo, e.blockRepo, e.privacyRepo, e.liveness, domain.DefaultReactions(), e.media, e.media)
	e.presence = NewPresenceService(e.convRepo, e.blockRepo, e.liveness)

	e.convs.SetPublisher(e.pub)
	e.msgs.SetPublisher(e.pub)
	e.presence.SetPublisher(e.pub)
	e.privacy.SetPublisher(e.pub)
	return e
}

// addUser inserts a user row directly, skipping registration so tests
// don't pay for password hashing.
func (e *testEnv) addUser(t *testing.T, username string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Now()
	u := &domain.User{
		ID:          id,
		Subject:     "local:" + id.String(),
		Username:    username,
		DisplayName: username,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.userRepo.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return id
}

func (e *testEnv) direct(t *testing.T, a, b uuid.UUID) uuid.UUID {
	t.Helper()

	conv, err := e.convs.GetOrCreateDirect(context.Background(), a, b)
	if err != nil {
		t.Fatalf("GetOrCreateDirect() error = %v", err)
	}
	return conv.ID
}

func (e *testEnv) group(t *testing.T, owner uuid.UUID, name string, members ...uuid.UUID) uuid.UUID {
	t.Helper()

	conv, err := e.convs.CreateGroup(context.Background(), owner, CreateGroupInput{Name: name, MemberIDs: members})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	return conv.ID
}

func (e *testEnv) sendText(t *testing.T, sender, convID uuid.UUID, body string) *domain.Message {
	t.Helper()

	msg, err := e.msgs.SendText(context.Background(), sender, convID, SendMessageInput{Body: body})
	if err != nil {
		t.Fatalf("SendText(%q) error = %v", body, err)
	}
	return msg
}

func (e *testEnv) setPrivacy(t *testing.T, userID uuid.UUID, input UpdatePrivacyInput) {
	t.Helper()

	if _, err := e.privacy.Update(context.Background(), userID, input); err != nil {
		t.Fatalf("Update privacy: %v", err)
	}
}

func strptr(s string) *string { return &s }

func boolptr(b bool) *bool { return &b }

// fakeCommitter stands in for the blob layer: refs are registered with a
// kind and popped by the first commit, like the real target tracker.
type fakeCommitter struct {
	mu    sync.Mutex
	refs  map[string]string
	calls int
}

func newFakeCommitter() *fakeCommitter {
	return &fakeCommitter{refs: make(map[string]string)}
}

func (f *fakeCommitter) add(ref, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[ref] = kind
}

func (f *fakeCommitter) CommitRef(ctx context.Context, ref string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	kind, ok := f.refs[ref]
	if ok {
		delete(f.refs, ref)
	}
	return kind, ok
}

func (f *fakeCommitter) ResolveURL(ctx context.Context, ref string) (string, error) {
	return "/api/v1/media/" + ref, nil
}

type publishedTyping struct {
	conversationID uuid.UUID
	userID         uuid.UUID
	typing         bool
}

type publishedPresence struct {
	userID uuid.UUID
	online bool
}

// fakePublisher records publisher calls for assertions.
type fakePublisher struct {
	mu           sync.Mutex
	convChanged  []uuid.UUID
	listChanged  [][]uuid.UUID
	typingEvents []publishedTyping
	presence     []publishedPresence
}

func (p *fakePublisher) ConversationChanged(conversationID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.convChanged = append(p.convChanged, conversationID)
}

func (p *fakePublisher) ConversationListChanged(userIDs ...uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listChanged = append(p.listChanged, userIDs)
}

func (p *fakePublisher) TypingChanged(conversationID, userID uuid.UUID, typing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typingEvents = append(p.typingEvents, publishedTyping{conversationID, userID, typing})
}

func (p *fakePublisher) PresenceChanged(userID uuid.UUID, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presence = append(p.presence, publishedPresence{userID, online})
}

func (p *fakePublisher) presenceEvents() []publishedPresence {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedPresence, len(p.presence))
	copy(out, p.presence)
	return out
}

func (p *fakePublisher) typings() []publishedTyping {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedTyping, len(p.typingEvents))
	copy(out, p.typingEvents)
	return out
}
