package handlers

import (
	"net/http"

	"github.com/vedran77/courier/internal/blob"
	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/internal/telemetry"
	"github.com/vedran77/courier/internal/transport/http/middleware"
	"github.com/vedran77/courier/internal/transport/ws"
)

// Deps collects everything the API surface is built from. Hub and
// Metrics may be nil; the matching routes are then not registered.
type Deps struct {
	Identity      *service.IdentityService
	Privacy       *service.PrivacyService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Presence      *service.PresenceService
	Targets       *blob.Targets
	Store         *blob.Store
	Hub           *ws.Hub
	Metrics       *telemetry.Metrics
}

// NewRouter mounts the full REST surface plus the websocket endpoint.
// Cross-cutting middleware (CORS, rate limiting, instrumentation) wraps
// the returned handler at serve time.
func NewRouter(deps Deps) http.Handler {
	authHandler := NewAuthHandler(deps.Identity)
	userHandler := NewUserHandler(deps.Identity)
	privacyHandler := NewPrivacyHandler(deps.Privacy)
	convHandler := NewConversationHandler(deps.Conversations)
	msgHandler := NewMessageHandler(deps.Messages, deps.Metrics)
	presenceHandler := NewPresenceHandler(deps.Presence)
	uploadHandler := NewUploadHandler(deps.Targets, deps.Store)

	auth := middleware.Auth(deps.Identity)

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", ws.ServeWS(deps.Hub, deps.Identity))
	}

	// Protected - Users
	mux.Handle("GET /api/v1/users/me", auth(http.HandlerFunc(userHandler.Me)))
	mux.Handle("GET /api/v1/users", auth(http.HandlerFunc(userHandler.Search)))

	// Protected - Privacy & Blocks
	mux.Handle("GET /api/v1/privacy", auth(http.HandlerFunc(privacyHandler.Get)))
	mux.Handle("PATCH /api/v1/privacy", auth(http.HandlerFunc(privacyHandler.Update)))
	mux.Handle("POST /api/v1/blocks/{uid}", auth(http.HandlerFunc(privacyHandler.ToggleBlock)))
	mux.Handle("GET /api/v1/blocks", auth(http.HandlerFunc(privacyHandler.ListBlocked)))

	// Protected - Conversations
	mux.Handle("POST /api/v1/conversations/direct", auth(http.HandlerFunc(convHandler.CreateDirect)))
	mux.Handle("POST /api/v1/conversations/group", auth(http.HandlerFunc(convHandler.CreateGroup)))
	mux.Handle("GET /api/v1/conversations", auth(http.HandlerFunc(convHandler.List)))
	mux.Handle("GET /api/v1/conversations/{id}", auth(http.HandlerFunc(convHandler.Get)))
	mux.Handle("DELETE /api/v1/conversations/{id}", auth(http.HandlerFunc(convHandler.Hide)))
	mux.Handle("POST /api/v1/conversations/{id}/read", auth(http.HandlerFunc(convHandler.MarkRead)))

	// Protected - Members
	mux.Handle("GET /api/v1/conversations/{id}/members", auth(http.HandlerFunc(convHandler.ListMembers)))
	mux.Handle("POST /api/v1/conversations/{id}/members", auth(http.HandlerFunc(convHandler.AddMembers)))
	mux.Handle("DELETE /api/v1/conversations/{id}/members/{uid}", auth(http.HandlerFunc(convHandler.RemoveMember)))
	mux.Handle("PUT /api/v1/conversations/{id}/members/{uid}/role", auth(http.HandlerFunc(convHandler.SetRole)))

	// Protected - Messages
	mux.Handle("POST /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(msgHandler.Send)))
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(msgHandler.List)))
	mux.Handle("GET /api/v1/messages/search", auth(http.HandlerFunc(msgHandler.Search)))
	mux.Handle("GET /api/v1/messages/starred", auth(http.HandlerFunc(msgHandler.ListStarred)))
	mux.Handle("PATCH /api/v1/messages/{id}", auth(http.HandlerFunc(msgHandler.Edit)))
	mux.Handle("DELETE /api/v1/messages/{id}", auth(http.HandlerFunc(msgHandler.Delete)))
	mux.Handle("POST /api/v1/messages/{id}/reactions", auth(http.HandlerFunc(msgHandler.ToggleReaction)))
	mux.Handle("POST /api/v1/messages/{id}/star", auth(http.HandlerFunc(msgHandler.ToggleStar)))
	mux.Handle("GET /api/v1/messages/{id}/history", auth(http.HandlerFunc(msgHandler.History)))

	// Protected - Typing & Presence
	mux.Handle("GET /api/v1/conversations/{id}/typing", auth(http.HandlerFunc(presenceHandler.GetTyping)))
	mux.Handle("POST /api/v1/conversations/{id}/typing", auth(http.HandlerFunc(presenceHandler.SetTyping)))
	mux.Handle("POST /api/v1/presence/heartbeat", auth(http.HandlerFunc(presenceHandler.Heartbeat)))

	// Protected - Uploads & Media
	mux.Handle("POST /api/v1/uploads", auth(http.HandlerFunc(uploadHandler.Allocate)))
	mux.Handle("PUT /api/v1/uploads/{id}", auth(http.HandlerFunc(uploadHandler.Receive)))
	mux.Handle("GET /api/v1/media/{ref}", auth(http.HandlerFunc(uploadHandler.Media)))

	return mux
}
