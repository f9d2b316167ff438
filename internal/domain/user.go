package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Subject      string    `json:"-"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	// Joined fields
	Online bool `json:"online,omitempty"`
}

// Identity is the verified claim set handed to the resolver by the auth
// layer. The resolver never sees credentials, only what the token issuer
// asserted about the caller.
type Identity struct {
	Subject     string
	Username    string
	DisplayName string
	Email       *string
	AvatarURL   *string
}
