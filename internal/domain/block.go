package domain

import (
	"time"

	"github.com/google/uuid"
)

// Block is stored directed (who blocked whom) but acts symmetrically:
// either direction suppresses messaging and discovery between the pair.
type Block struct {
	BlockerID uuid.UUID `json:"blocker_id"`
	BlockedID uuid.UUID `json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
	// Joined fields
	BlockedUsername    string `json:"blocked_username,omitempty"`
	BlockedDisplayName string `json:"blocked_display_name,omitempty"`
}
