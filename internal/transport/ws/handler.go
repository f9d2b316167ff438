package ws

import (
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/pkg/logger"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
func ServeWS(hub *Hub, identitySvc *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		ident, err := identitySvc.VerifyToken(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		user, err := identitySvc.Resolve(r.Context(), ident)
		if err != nil {
			http.Error(w, "could not resolve identity", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // Allow any origin (dev mode)
		})
		if err != nil {
			logger.Log.Warn("ws accept failed", zap.Error(err))
			return
		}

		client := NewClient(hub, conn, user.ID)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
