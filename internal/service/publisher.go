package service

import "github.com/google/uuid"

// Publisher notifies live subscribers that state they may be watching has
// changed. Implementations re-evaluate affected queries and push full
// result sets; services only name what moved. Optional dependency: all
// services run without one.
type Publisher interface {
	// ConversationChanged signals that the message set or per-message
	// annotations of a conversation changed.
	ConversationChanged(conversationID uuid.UUID)
	// ConversationListChanged signals that the given users' conversation
	// lists (ordering, unread counts, visibility) changed.
	ConversationListChanged(userIDs ...uuid.UUID)
	// TypingChanged and PresenceChanged carry ephemeral signals that are
	// fanned out as events rather than query re-evaluations.
	TypingChanged(conversationID, userID uuid.UUID, typing bool)
	PresenceChanged(userID uuid.UUID, online bool)
}
