package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/repository"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUserNotFound         = errors.New("user not found")
)

// checkConversationAccess is the visibility gate every conversation-scoped
// operation passes through. A missing or hidden membership and a blocked
// direct counterpart all come back as ErrConversationNotFound so the
// surface never confirms existence to an excluded caller.
func checkConversationAccess(
	ctx context.Context,
	convRepo repository.ConversationRepository,
	blockRepo repository.BlockRepository,
	callerID, conversationID uuid.UUID,
) (*domain.Conversation, *domain.Membership, error) {
	conv, err := convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, ErrConversationNotFound
	}

	member, err := convRepo.GetMember(ctx, conversationID, callerID)
	if err != nil {
		return nil, nil, err
	}
	if member == nil || member.IsDeleted {
		return nil, nil, ErrConversationNotFound
	}

	if !conv.IsGroup {
		otherID, err := directCounterpart(ctx, convRepo, conversationID, callerID)
		if err != nil {
			return nil, nil, err
		}
		if otherID != uuid.Nil {
			blocked, err := blockRepo.ExistsBetween(ctx, callerID, otherID)
			if err != nil {
				return nil, nil, err
			}
			if blocked {
				return nil, nil, ErrConversationNotFound
			}
		}
	}

	return conv, member, nil
}

// directCounterpart returns the other member of a direct conversation,
// hidden or not.
func directCounterpart(
	ctx context.Context,
	convRepo repository.ConversationRepository,
	conversationID, callerID uuid.UUID,
) (uuid.UUID, error) {
	ids, err := convRepo.ListMemberIDs(ctx, conversationID)
	if err != nil {
		return uuid.Nil, err
	}
	for _, id := range ids {
		if id != callerID {
			return id, nil
		}
	}
	return uuid.Nil, nil
}
