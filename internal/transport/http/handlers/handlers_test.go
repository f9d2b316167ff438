package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/vedran77/courier/internal/blob"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/presence"
	memoryrepo "github.com/vedran77/courier/internal/repository/memory"
	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/internal/telemetry"
)

// testAPI routes requests through the full REST surface wired over the
// in-memory store and an in-memory bucket, the same assembly the server
// does when it runs without external backends.
type testAPI struct {
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := memoryrepo.NewStore()
	userRepo := memoryrepo.NewUserRepo(store)
	convRepo := memoryrepo.NewConversationRepo(store)
	msgRepo := memoryrepo.NewMessageRepo(store)
	blockRepo := memoryrepo.NewBlockRepo(store)
	privacyRepo := memoryrepo.NewPrivacyRepo(store)
	liveness := presence.NewMemoryCache()

	mediaStore, err := blob.Open(context.Background(), blob.Options{Driver: blob.DriverMem})
	if err != nil {
		t.Fatalf("opening mem bucket: %v", err)
	}
	t.Cleanup(func() { mediaStore.Close() })
	targets := blob.NewTargets(mediaStore, blob.TargetTTL)

	identitySvc := service.NewIdentityService(userRepo, blockRepo, "handler-test-secret")
	privacySvc := service.NewPrivacyService(privacyRepo, blockRepo, userRepo)
	convSvc := service.NewConversationService(convRepo, userRepo, blockRepo, privacyRepo, liveness)
	msgSvc := service.NewMessageService(msgRepo, convRepo, userRepo, blockRepo, privacyRepo, liveness, domain.DefaultReactions(), targets, mediaStore)
	presenceSvc := service.NewPresenceService(convRepo, blockRepo, liveness)

	router := NewRouter(Deps{
		Identity:      identitySvc,
		Privacy:       privacySvc,
		Conversations: convSvc,
		Messages:      msgSvc,
		Presence:      presenceSvc,
		Targets:       targets,
		Store:         mediaStore,
		Metrics:       telemetry.NewMetrics(),
	})

	return &testAPI{router: router}
}

// do runs one request through the router. A string or []byte body is
// sent raw; anything else non-nil is marshaled as JSON. On a 2xx the
// response body is decoded into out when out is non-nil.
func (a *testAPI) do(t *testing.T, method, path, token string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reqBody = strings.NewReader(b)
	case []byte:
		reqBody = bytes.NewReader(b)
	default:
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decoding %s %s response: %v (body %s)", method, path, err, rec.Body.String())
		}
	}
	return rec
}

func (a *testAPI) register(t *testing.T, username string) *service.AuthResponse {
	t.Helper()

	var resp service.AuthResponse
	rec := a.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":        username + "@example.com",
		"username":     username,
		"display_name": username,
		"password":     "Sup3rSecret",
	}, &resp)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status = %d (body %s)", username, rec.Code, rec.Body.String())
	}
	if resp.AccessToken == "" {
		t.Fatalf("register %s: empty access token", username)
	}
	return &resp
}

func (a *testAPI) directConv(t *testing.T, token string, otherID uuid.UUID) *domain.Conversation {
	t.Helper()

	var conv domain.Conversation
	rec := a.do(t, http.MethodPost, "/api/v1/conversations/direct", token,
		map[string]uuid.UUID{"user_id": otherID}, &conv)
	if rec.Code != http.StatusOK {
		t.Fatalf("create direct: status = %d (body %s)", rec.Code, rec.Body.String())
	}
	return &conv
}

func (a *testAPI) sendMessage(t *testing.T, token string, convID uuid.UUID, body any) *domain.Message {
	t.Helper()

	var msg domain.Message
	rec := a.do(t, http.MethodPost, "/api/v1/conversations/"+convID.String()+"/messages", token, body, &msg)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send message: status = %d (body %s)", rec.Code, rec.Body.String())
	}
	return &msg
}

// wantError asserts the standard error envelope with the given status
// and machine code.
func wantError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var env struct {
		Error struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Fields  map[string]string `json:"fields"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding error envelope: %v (body %s)", err, rec.Body.String())
	}
	if env.Error.Code != code {
		t.Errorf("error code = %q, want %q (body %s)", env.Error.Code, code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	var body map[string]string
	rec := api.do(t, http.MethodGet, "/health", "", nil, &body)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name      string
		payload   map[string]string
		wantField string
	}{
		{
			name: "bad email",
			payload: map[string]string{
				"email": "not-an-email", "username": "alice",
				"display_name": "Alice", "password": "Sup3rSecret",
			},
			wantField: "email",
		},
		{
			name: "short username",
			payload: map[string]string{
				"email": "a@example.com", "username": "al",
				"display_name": "Alice", "password": "Sup3rSecret",
			},
			wantField: "username",
		},
		{
			name: "username with spaces",
			payload: map[string]string{
				"email": "a@example.com", "username": "al ice",
				"display_name": "Alice", "password": "Sup3rSecret",
			},
			wantField: "username",
		},
		{
			name: "weak password",
			payload: map[string]string{
				"email": "a@example.com", "username": "alice",
				"display_name": "Alice", "password": "alllower1",
			},
			wantField: "password",
		},
		{
			name: "missing display name",
			payload: map[string]string{
				"email": "a@example.com", "username": "alice",
				"display_name": "", "password": "Sup3rSecret",
			},
			wantField: "display_name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.payload, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			var env struct {
				Error struct {
					Code   string            `json:"code"`
					Fields map[string]string `json:"fields"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decoding envelope: %v", err)
			}
			if env.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("error code = %q, want VALIDATION_ERROR", env.Error.Code)
			}
			if _, ok := env.Error.Fields[tt.wantField]; !ok {
				t.Errorf("fields = %v, want entry for %q", env.Error.Fields, tt.wantField)
			}
		})
	}
}

func TestRegisterConflictsAndLogin(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "alice")

	rec := api.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "username": "alice2",
		"display_name": "Alice", "password": "Sup3rSecret",
	}, nil)
	wantError(t, rec, http.StatusConflict, "EMAIL_TAKEN")

	rec = api.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "other@example.com", "username": "alice",
		"display_name": "Alice", "password": "Sup3rSecret",
	}, nil)
	wantError(t, rec, http.StatusConflict, "USERNAME_TAKEN")

	var resp service.AuthResponse
	rec = api.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "Sup3rSecret",
	}, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if resp.User.Username != "alice" || resp.AccessToken == "" {
		t.Errorf("login response user = %q, token empty = %v", resp.User.Username, resp.AccessToken == "")
	}

	rec = api.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "WrongPass1",
	}, nil)
	wantError(t, rec, http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

func TestAuthMiddleware(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")

	var me domain.User
	rec := api.do(t, http.MethodGet, "/api/v1/users/me", alice.AccessToken, nil, &me)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /users/me status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if me.ID != alice.User.ID || me.Username != "alice" {
		t.Errorf("me = %s/%s, want %s/alice", me.ID, me.Username, alice.User.ID)
	}

	rec = api.do(t, http.MethodGet, "/api/v1/users/me", "", nil, nil)
	wantError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	rec = api.do(t, http.MethodGet, "/api/v1/users/me", "not-a-jwt", nil, nil)
	wantError(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	// Only the Bearer scheme is accepted.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec2 := httptest.NewRecorder()
	api.router.ServeHTTP(rec2, req)
	wantError(t, rec2, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestUserSearch(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	api.register(t, "bob")
	api.register(t, "bobby")

	var users []domain.User
	rec := api.do(t, http.MethodGet, "/api/v1/users?q=bob", alice.AccessToken, nil, &users)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d (body %s)", rec.Code, rec.Body.String())
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	if len(users) != 2 {
		t.Fatalf("search(bob) = %v, want bob and bobby", names)
	}

	// Searching your own name never returns yourself.
	rec = api.do(t, http.MethodGet, "/api/v1/users?q=alice", alice.AccessToken, nil, &users)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	if len(users) != 0 {
		t.Errorf("search(alice) returned %d users, want 0", len(users))
	}
}

func TestDirectConversationFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")

	rec := api.do(t, http.MethodPost, "/api/v1/conversations/direct", alice.AccessToken,
		map[string]uuid.UUID{"user_id": alice.User.ID}, nil)
	wantError(t, rec, http.StatusBadRequest, "CANNOT_MESSAGE_SELF")

	rec = api.do(t, http.MethodPost, "/api/v1/conversations/direct", alice.AccessToken,
		map[string]uuid.UUID{"user_id": uuid.New()}, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = api.do(t, http.MethodPost, "/api/v1/conversations/direct", alice.AccessToken,
		map[string]string{}, nil)
	wantError(t, rec, http.StatusBadRequest, "MISSING_USER_ID")

	conv := api.directConv(t, alice.AccessToken, bob.User.ID)
	if conv.IsGroup {
		t.Error("direct conversation marked as group")
	}
	again := api.directConv(t, alice.AccessToken, bob.User.ID)
	if again.ID != conv.ID {
		t.Errorf("second create returned %s, want %s", again.ID, conv.ID)
	}

	var list []domain.Conversation
	rec = api.do(t, http.MethodGet, "/api/v1/conversations", alice.AccessToken, nil, &list)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if len(list) != 1 || list[0].OtherUserUsername != "bob" {
		t.Fatalf("list = %+v, want one conversation with bob", list)
	}

	// Hiding removes it from the list and from Get.
	rec = api.do(t, http.MethodDelete, "/api/v1/conversations/"+conv.ID.String(), alice.AccessToken, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("hide status = %d", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/api/v1/conversations", alice.AccessToken, nil, &list)
	if rec.Code != http.StatusOK || len(list) != 0 {
		t.Errorf("list after hide = %d items (status %d), want 0", len(list), rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID.String(), alice.AccessToken, nil, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = api.do(t, http.MethodGet, "/api/v1/conversations/not-a-uuid", alice.AccessToken, nil, nil)
	wantError(t, rec, http.StatusBadRequest, "INVALID_ID")
}

func TestGroupFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")
	carol := api.register(t, "carol")

	rec := api.do(t, http.MethodPost, "/api/v1/conversations/group", alice.AccessToken,
		service.CreateGroupInput{Name: "x", MemberIDs: []uuid.UUID{bob.User.ID}}, nil)
	wantError(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")

	var conv domain.Conversation
	rec = api.do(t, http.MethodPost, "/api/v1/conversations/group", alice.AccessToken,
		service.CreateGroupInput{Name: "Launch crew", MemberIDs: []uuid.UUID{bob.User.ID, carol.User.ID}}, &conv)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if !conv.IsGroup || conv.Name == nil || *conv.Name != "Launch crew" {
		t.Errorf("group = %+v, want is_group with name", conv)
	}
	base := "/api/v1/conversations/" + conv.ID.String()

	var members []domain.Membership
	rec = api.do(t, http.MethodGet, base+"/members", bob.AccessToken, nil, &members)
	if rec.Code != http.StatusOK {
		t.Fatalf("list members status = %d", rec.Code)
	}
	if len(members) != 3 {
		t.Fatalf("members = %d, want 3", len(members))
	}
	roles := make(map[string]string)
	for _, m := range members {
		roles[m.Username] = m.Role
	}
	if roles["alice"] != domain.RoleOwner || roles["bob"] != domain.RoleMember {
		t.Errorf("roles = %v, want alice owner and bob member", roles)
	}

	rec = api.do(t, http.MethodPost, base+"/members", alice.AccessToken,
		service.AddMembersInput{UserIDs: []uuid.UUID{bob.User.ID}}, nil)
	wantError(t, rec, http.StatusConflict, "ALREADY_MEMBER")

	rec = api.do(t, http.MethodDelete, base+"/members/"+carol.User.ID.String(), bob.AccessToken, nil, nil)
	wantError(t, rec, http.StatusForbidden, "FORBIDDEN")

	rec = api.do(t, http.MethodPut, base+"/members/"+bob.User.ID.String()+"/role", bob.AccessToken,
		service.SetRoleInput{Role: "admin"}, nil)
	wantError(t, rec, http.StatusForbidden, "FORBIDDEN")

	rec = api.do(t, http.MethodPut, base+"/members/"+bob.User.ID.String()+"/role", alice.AccessToken,
		service.SetRoleInput{Role: "superuser"}, nil)
	wantError(t, rec, http.StatusBadRequest, "INVALID_ROLE")

	rec = api.do(t, http.MethodPut, base+"/members/"+bob.User.ID.String()+"/role", alice.AccessToken,
		service.SetRoleInput{Role: "admin"}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set role status = %d (body %s)", rec.Code, rec.Body.String())
	}

	// Now an admin, bob can remove carol.
	rec = api.do(t, http.MethodDelete, base+"/members/"+carol.User.ID.String(), bob.AccessToken, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove member status = %d (body %s)", rec.Code, rec.Body.String())
	}
	rec = api.do(t, http.MethodGet, base, carol.AccessToken, nil, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestSendAndListMessages(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")
	conv := api.directConv(t, alice.AccessToken, bob.User.ID)
	msgPath := "/api/v1/conversations/" + conv.ID.String() + "/messages"

	rec := api.do(t, http.MethodPost, "/api/v1/conversations/"+uuid.NewString()+"/messages",
		alice.AccessToken, service.SendMessageInput{Body: "hello"}, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = api.do(t, http.MethodPost, msgPath, alice.AccessToken,
		service.SendMessageInput{Body: "   "}, nil)
	wantError(t, rec, http.StatusBadRequest, "EMPTY_BODY")

	msg := api.sendMessage(t, alice.AccessToken, conv.ID, service.SendMessageInput{Body: "hello bob"})
	if msg.Body != "hello bob" || msg.SenderUsername != "alice" {
		t.Errorf("message = %q from %q, want hello bob from alice", msg.Body, msg.SenderUsername)
	}

	reply := api.sendMessage(t, bob.AccessToken, conv.ID, service.SendMessageInput{Body: "hi", ReplyToID: &msg.ID})
	if reply.ReplyToID == nil || *reply.ReplyToID != msg.ID {
		t.Errorf("reply target = %v, want %s", reply.ReplyToID, msg.ID)
	}

	var page service.MessagesPage
	rec = api.do(t, http.MethodGet, msgPath, bob.AccessToken, nil, &page)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if len(page.Messages) != 2 || page.HasMore {
		t.Fatalf("page = %d messages, has_more %v; want 2, false", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].Body != "hello bob" || page.Messages[1].Body != "hi" {
		t.Errorf("page order = [%q, %q], want oldest first", page.Messages[0].Body, page.Messages[1].Body)
	}

	rec = api.do(t, http.MethodGet, msgPath+"?before=yesterday", bob.AccessToken, nil, nil)
	wantError(t, rec, http.StatusBadRequest, "INVALID_CURSOR")

	// An outsider cannot read the conversation at all.
	carol := api.register(t, "carol")
	rec = api.do(t, http.MethodGet, msgPath, carol.AccessToken, nil, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestMessageLifecycle(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")
	conv := api.directConv(t, alice.AccessToken, bob.User.ID)

	msg := api.sendMessage(t, alice.AccessToken, conv.ID, service.SendMessageInput{Body: "draft one"})
	msgPath := "/api/v1/messages/" + msg.ID.String()

	rec := api.do(t, http.MethodPatch, msgPath, bob.AccessToken,
		service.EditMessageInput{Body: "hijacked"}, nil)
	wantError(t, rec, http.StatusForbidden, "FORBIDDEN")

	var edited domain.Message
	rec = api.do(t, http.MethodPatch, msgPath, alice.AccessToken,
		service.EditMessageInput{Body: "draft two"}, &edited)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if edited.Body != "draft two" || edited.EditedAt == nil {
		t.Errorf("edited = %q, edited_at %v; want new body and timestamp", edited.Body, edited.EditedAt)
	}

	var history []domain.MessageEdit
	rec = api.do(t, http.MethodGet, msgPath+"/history", bob.AccessToken, nil, &history)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	if len(history) != 1 || history[0].PreviousBody != "draft one" {
		t.Errorf("history = %+v, want one entry with the original body", history)
	}

	var reaction service.ToggleReactionResponse
	rec = api.do(t, http.MethodPost, msgPath+"/reactions", bob.AccessToken,
		service.ReactionInput{Emoji: "👍"}, &reaction)
	if rec.Code != http.StatusOK || !reaction.Reacted {
		t.Errorf("react status = %d, reacted = %v; want 200 true", rec.Code, reaction.Reacted)
	}
	rec = api.do(t, http.MethodPost, msgPath+"/reactions", bob.AccessToken,
		service.ReactionInput{Emoji: "🦄"}, nil)
	wantError(t, rec, http.StatusBadRequest, "INVALID_EMOJI")

	var star service.ToggleStarResponse
	rec = api.do(t, http.MethodPost, msgPath+"/star", bob.AccessToken, nil, &star)
	if rec.Code != http.StatusOK || !star.Starred {
		t.Errorf("star status = %d, starred = %v; want 200 true", rec.Code, star.Starred)
	}
	var starred []domain.Message
	rec = api.do(t, http.MethodGet, "/api/v1/messages/starred", bob.AccessToken, nil, &starred)
	if rec.Code != http.StatusOK || len(starred) != 1 {
		t.Errorf("starred list status = %d, len = %d; want 200 with 1", rec.Code, len(starred))
	}

	rec = api.do(t, http.MethodDelete, msgPath, alice.AccessToken, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = api.do(t, http.MethodPatch, msgPath, alice.AccessToken,
		service.EditMessageInput{Body: "too late"}, nil)
	wantError(t, rec, http.StatusConflict, "MESSAGE_DELETED")

	// The tombstone still lists, with the placeholder body.
	var page service.MessagesPage
	rec = api.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID.String()+"/messages", bob.AccessToken, nil, &page)
	if rec.Code != http.StatusOK || len(page.Messages) != 1 {
		t.Fatalf("list after delete status = %d, len = %d", rec.Code, len(page.Messages))
	}
	if !page.Messages[0].Deleted || page.Messages[0].Body != domain.DeletedMessagePlaceholder {
		t.Errorf("tombstone = %+v, want deleted placeholder", page.Messages[0])
	}
}

func TestSearchMessages(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")
	conv := api.directConv(t, alice.AccessToken, bob.User.ID)

	api.sendMessage(t, alice.AccessToken, conv.ID, service.SendMessageInput{Body: "deploy friday"})
	api.sendMessage(t, bob.AccessToken, conv.ID, service.SendMessageInput{Body: "ship saturday"})

	var hits []domain.SearchHit
	rec := api.do(t, http.MethodGet, "/api/v1/messages/search?q=deploy", alice.AccessToken, nil, &hits)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if len(hits) != 1 || hits[0].Message.Body != "deploy friday" {
		t.Fatalf("hits = %+v, want the deploy message", hits)
	}
	if hits[0].ConversationTitle != "bob" {
		t.Errorf("conversation title = %q, want %q", hits[0].ConversationTitle, "bob")
	}

	rec = api.do(t, http.MethodGet, "/api/v1/messages/search?q=deploy&sender_id=bogus", alice.AccessToken, nil, nil)
	wantError(t, rec, http.StatusBadRequest, "INVALID_ID")

	rec = api.do(t, http.MethodGet, "/api/v1/messages/search?q=x&from=notatime", alice.AccessToken, nil, nil)
	wantError(t, rec, http.StatusBadRequest, "INVALID_RANGE")
}

func TestUploadFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")
	conv := api.directConv(t, alice.AccessToken, bob.User.ID)

	allocs := []struct {
		name       string
		payload    map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown kind",
			payload:    map[string]any{"kind": "gif", "size": 10, "content_type": "image/gif"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_MEDIA_KIND",
		},
		{
			name:       "over the cap",
			payload:    map[string]any{"kind": "image", "size": domain.MaxImageBytes + 1, "content_type": "image/png"},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "FILE_TOO_LARGE",
		},
		{
			name:       "mime does not match kind",
			payload:    map[string]any{"kind": "image", "size": 10, "content_type": "video/mp4"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_CONTENT_TYPE",
		},
	}
	for _, tt := range allocs {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/v1/uploads", alice.AccessToken, tt.payload, nil)
			wantError(t, rec, tt.wantStatus, tt.wantCode)
		})
	}

	payload := []byte("fake png bytes")
	var target blob.Target
	rec := api.do(t, http.MethodPost, "/api/v1/uploads", alice.AccessToken,
		map[string]any{"kind": "image", "size": len(payload), "content_type": "image/png"}, &target)
	if rec.Code != http.StatusCreated {
		t.Fatalf("allocate status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if target.Ref == "" || target.URL != "/api/v1/uploads/"+target.ID.String() {
		t.Fatalf("target = %+v, want ref and upload URL", target)
	}

	rec = api.do(t, http.MethodPut, target.URL, alice.AccessToken, payload, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d (body %s)", rec.Code, rec.Body.String())
	}

	// The target is single use.
	rec = api.do(t, http.MethodPut, target.URL, alice.AccessToken, payload, nil)
	wantError(t, rec, http.StatusGone, "GONE")

	msg := api.sendMessage(t, alice.AccessToken, conv.ID, map[string]any{
		"body":  "look at this",
		"media": map[string]string{"kind": "image", "ref": target.Ref},
	})
	if msg.Media == nil || msg.Media.Kind != "image" || msg.Media.URL == "" {
		t.Fatalf("media message = %+v, want resolved media descriptor", msg)
	}
	if msg.Body != "look at this" {
		t.Errorf("caption = %q, want %q", msg.Body, "look at this")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/media/"+target.Ref, nil)
	req.Header.Set("Authorization", "Bearer "+bob.AccessToken)
	mediaRec := httptest.NewRecorder()
	api.router.ServeHTTP(mediaRec, req)
	if mediaRec.Code != http.StatusOK {
		t.Fatalf("media fetch status = %d (body %s)", mediaRec.Code, mediaRec.Body.String())
	}
	if got := mediaRec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("media content type = %q, want image/png", got)
	}
	if !bytes.Equal(mediaRec.Body.Bytes(), payload) {
		t.Errorf("media body = %q, want original bytes", mediaRec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/api/v1/media/"+uuid.NewString(), bob.AccessToken, nil, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND")

	// The same ref cannot back a second message.
	rec = api.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID.String()+"/messages", alice.AccessToken,
		map[string]any{"media": map[string]string{"kind": "image", "ref": target.Ref}}, nil)
	wantError(t, rec, http.StatusBadRequest, "MEDIA_NOT_UPLOADED")
}

func TestUploadSizeMismatch(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")

	var target blob.Target
	rec := api.do(t, http.MethodPost, "/api/v1/uploads", alice.AccessToken,
		map[string]any{"kind": "image", "size": 100, "content_type": "image/png"}, &target)
	if rec.Code != http.StatusCreated {
		t.Fatalf("allocate status = %d", rec.Code)
	}

	rec = api.do(t, http.MethodPut, target.URL, alice.AccessToken, []byte("short"), nil)
	wantError(t, rec, http.StatusBadRequest, "SIZE_MISMATCH")

	// Spent by the failed attempt; a retry needs a fresh target.
	rec = api.do(t, http.MethodPut, target.URL, alice.AccessToken, bytes.Repeat([]byte("a"), 100), nil)
	wantError(t, rec, http.StatusGone, "GONE")
}

func TestTypingEndpoints(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")
	conv := api.directConv(t, alice.AccessToken, bob.User.ID)
	typingPath := "/api/v1/conversations/" + conv.ID.String() + "/typing"

	rec := api.do(t, http.MethodPost, typingPath, alice.AccessToken,
		service.SetTypingInput{Typing: true}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set typing status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var forBob struct {
		Typing []uuid.UUID `json:"typing"`
	}
	rec = api.do(t, http.MethodGet, typingPath, bob.AccessToken, nil, &forBob)
	if rec.Code != http.StatusOK {
		t.Fatalf("get typing status = %d", rec.Code)
	}
	if len(forBob.Typing) != 1 || forBob.Typing[0] != alice.User.ID {
		t.Errorf("typing for bob = %v, want [%s]", forBob.Typing, alice.User.ID)
	}

	// The typist does not see their own indicator.
	var forAlice struct {
		Typing []uuid.UUID `json:"typing"`
	}
	rec = api.do(t, http.MethodGet, typingPath, alice.AccessToken, nil, &forAlice)
	if rec.Code != http.StatusOK || len(forAlice.Typing) != 0 {
		t.Errorf("typing for alice = %v (status %d), want empty", forAlice.Typing, rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/api/v1/conversations/"+uuid.NewString()+"/typing",
		alice.AccessToken, service.SetTypingInput{Typing: true}, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = api.do(t, http.MethodPost, "/api/v1/presence/heartbeat", alice.AccessToken, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("heartbeat status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestPrivacyEndpoints(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")

	var settings domain.PrivacySettings
	rec := api.do(t, http.MethodGet, "/api/v1/privacy", alice.AccessToken, nil, &settings)
	if rec.Code != http.StatusOK {
		t.Fatalf("get privacy status = %d", rec.Code)
	}
	if !settings.ReadReceipts || settings.WhoCanMessage != domain.VisibilityEveryone {
		t.Errorf("defaults = %+v, want receipts on and everyone", settings)
	}

	rec = api.do(t, http.MethodPatch, "/api/v1/privacy", alice.AccessToken,
		map[string]string{"who_can_message": "friends"}, nil)
	wantError(t, rec, http.StatusBadRequest, "INVALID_VISIBILITY")

	rec = api.do(t, http.MethodPatch, "/api/v1/privacy", alice.AccessToken,
		map[string]any{"who_can_message": "nobody", "read_receipts": false}, &settings)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch privacy status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if settings.WhoCanMessage != domain.VisibilityNobody || settings.ReadReceipts {
		t.Errorf("updated = %+v, want nobody and receipts off", settings)
	}

	// With alice closed off, bob cannot open a conversation with her.
	rec = api.do(t, http.MethodPost, "/api/v1/conversations/direct", bob.AccessToken,
		map[string]uuid.UUID{"user_id": alice.User.ID}, nil)
	wantError(t, rec, http.StatusForbidden, "MESSAGING_RESTRICTED")
}

func TestBlockEndpoints(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")

	rec := api.do(t, http.MethodPost, "/api/v1/blocks/"+alice.User.ID.String(), alice.AccessToken, nil, nil)
	wantError(t, rec, http.StatusBadRequest, "CANNOT_BLOCK_SELF")

	rec = api.do(t, http.MethodPost, "/api/v1/blocks/"+uuid.NewString(), alice.AccessToken, nil, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND")

	var toggle service.ToggleBlockResponse
	rec = api.do(t, http.MethodPost, "/api/v1/blocks/"+bob.User.ID.String(), alice.AccessToken, nil, &toggle)
	if rec.Code != http.StatusOK || !toggle.Blocked {
		t.Fatalf("block status = %d, blocked = %v; want 200 true", rec.Code, toggle.Blocked)
	}

	var blocks []domain.Block
	rec = api.do(t, http.MethodGet, "/api/v1/blocks", alice.AccessToken, nil, &blocks)
	if rec.Code != http.StatusOK || len(blocks) != 1 {
		t.Fatalf("block list status = %d, len = %d; want 200 with 1", rec.Code, len(blocks))
	}
	if blocks[0].BlockedUsername != "bob" {
		t.Errorf("blocked username = %q, want bob", blocks[0].BlockedUsername)
	}

	// Blocked both ways: bob cannot reach alice.
	rec = api.do(t, http.MethodPost, "/api/v1/conversations/direct", bob.AccessToken,
		map[string]uuid.UUID{"user_id": alice.User.ID}, nil)
	wantError(t, rec, http.StatusNotFound, "NOT_FOUND")

	rec = api.do(t, http.MethodPost, "/api/v1/blocks/"+bob.User.ID.String(), alice.AccessToken, nil, &toggle)
	if rec.Code != http.StatusOK || toggle.Blocked {
		t.Fatalf("unblock status = %d, blocked = %v; want 200 false", rec.Code, toggle.Blocked)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")
	conv := api.directConv(t, alice.AccessToken, bob.User.ID)
	api.sendMessage(t, alice.AccessToken, conv.ID, service.SendMessageInput{Body: "counted"})

	rec := api.do(t, http.MethodGet, "/metrics", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `courier_messages_sent_total{kind="text"} 1`) {
		t.Errorf("metrics output missing the sent counter:\n%s", body)
	}
	if !strings.Contains(body, "courier_ws_connections") {
		t.Errorf("metrics output missing the ws gauge")
	}
}
