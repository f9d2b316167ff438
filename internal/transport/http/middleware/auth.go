package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/pkg/logger"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// Auth verifies the bearer token and resolves it to a local user row,
// upserting identity fields on every request so profile changes at the
// identity provider propagate without a sync job.
func Auth(identitySvc *service.IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, "Missing or invalid token")
				return
			}
			tokenStr := strings.TrimPrefix(header, "Bearer ")

			ident, err := identitySvc.VerifyToken(tokenStr)
			if err != nil {
				writeAuthError(w, "Invalid or expired token")
				return
			}

			user, err := identitySvc.Resolve(r.Context(), ident)
			if err != nil {
				logger.Log.Error("identity resolve failed", zap.String("subject", ident.Subject), zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":{"code":"INTERNAL","message":"Something went wrong"}}`))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) uuid.UUID {
	return ctx.Value(UserIDKey).(uuid.UUID)
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"` + message + `"}}`))
}
