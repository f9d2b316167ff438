package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/presence"
	"github.com/vedran77/courier/internal/repository"
)

var (
	ErrCannotMessageSelf    = errors.New("cannot start a conversation with yourself")
	ErrMessagingRestricted  = errors.New("this user cannot be messaged")
	ErrGroupNameRequired    = errors.New("group name is required")
	ErrGroupMembersRequired = errors.New("a group needs at least one other member")
	ErrNotGroup             = errors.New("not a group conversation")
	ErrAlreadyMember        = errors.New("user is already a member")
	ErrMemberNotFound       = errors.New("member not found")
	ErrRoleInsufficient     = errors.New("insufficient role for this action")
	ErrOwnerRole            = errors.New("the owner role cannot be granted or taken")
	ErrBadRole              = errors.New("role must be admin or member")
)

type ConversationService struct {
	convRepo    repository.ConversationRepository
	userRepo    repository.UserRepository
	blockRepo   repository.BlockRepository
	privacyRepo repository.PrivacyRepository
	liveness    presence.Cache
	publisher   Publisher
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	blockRepo repository.BlockRepository,
	privacyRepo repository.PrivacyRepository,
	liveness presence.Cache,
) *ConversationService {
	return &ConversationService{
		convRepo:    convRepo,
		userRepo:    userRepo,
		blockRepo:   blockRepo,
		privacyRepo: privacyRepo,
		liveness:    liveness,
	}
}

func (s *ConversationService) SetPublisher(p Publisher) {
	s.publisher = p
}

type CreateGroupInput struct {
	Name      string      `json:"name"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

type AddMembersInput struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

type SetRoleInput struct {
	Role string `json:"role"`
}

// GetOrCreateDirect returns the direct conversation between the caller
// and the target, creating it only when none exists. Calling it twice
// for the same pair never yields a second conversation; a hidden
// membership is restored instead.
func (s *ConversationService) GetOrCreateDirect(ctx context.Context, callerID, otherID uuid.UUID) (*domain.Conversation, error) {
	if callerID == otherID {
		return nil, ErrCannotMessageSelf
	}

	other, err := s.userRepo.GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, ErrUserNotFound
	}

	// A block in either direction makes the pair invisible to each
	// other, existing conversation or not.
	blocked, err := s.blockRepo.ExistsBetween(ctx, callerID, otherID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrUserNotFound
	}

	conv, err := s.convRepo.GetDirectBetween(ctx, callerID, otherID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		member, err := s.convRepo.GetMember(ctx, conv.ID, callerID)
		if err != nil {
			return nil, err
		}
		if member != nil && member.IsDeleted {
			if err := s.convRepo.SetMemberHidden(ctx, conv.ID, callerID, false); err != nil {
				return nil, fmt.Errorf("restoring membership: %w", err)
			}
			if err := s.convRepo.SetMemberLastRead(ctx, conv.ID, callerID, time.Now()); err != nil {
				return nil, fmt.Errorf("refreshing read mark: %w", err)
			}
			if s.publisher != nil {
				s.publisher.ConversationListChanged(callerID)
			}
		}
		s.fillDirectPeer(ctx, conv, other)
		return conv, nil
	}

	// Creation additionally needs both sides' privacy settings to allow
	// new conversations; existing ones are not retroactively closed.
	for _, id := range []uuid.UUID{otherID, callerID} {
		settings, err := s.privacyRepo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if settings != nil && settings.WhoCanMessage == domain.VisibilityNobody {
			return nil, ErrMessagingRestricted
		}
	}

	now := time.Now()
	conv = &domain.Conversation{
		ID:        uuid.New(),
		IsGroup:   false,
		CreatorID: callerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	// The creator starts caught up; the recipient has no read mark yet,
	// so the first message counts as unread for them.
	creator := &domain.Membership{
		ConversationID: conv.ID,
		UserID:         callerID,
		Role:           domain.RoleMember,
		JoinedAt:       now,
		LastReadAt:     &now,
	}
	if err := s.convRepo.AddMember(ctx, creator); err != nil {
		return nil, fmt.Errorf("adding creator membership: %w", err)
	}
	recipient := &domain.Membership{
		ConversationID: conv.ID,
		UserID:         otherID,
		Role:           domain.RoleMember,
		JoinedAt:       now,
	}
	if err := s.convRepo.AddMember(ctx, recipient); err != nil {
		return nil, fmt.Errorf("adding recipient membership: %w", err)
	}

	if s.publisher != nil {
		s.publisher.ConversationListChanged(callerID, otherID)
	}

	s.fillDirectPeer(ctx, conv, other)
	return conv, nil
}

func (s *ConversationService) CreateGroup(ctx context.Context, callerID uuid.UUID, input CreateGroupInput) (*domain.Conversation, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrGroupNameRequired
	}

	members := dedupeIDs(input.MemberIDs, callerID)
	if len(members) == 0 {
		return nil, ErrGroupMembersRequired
	}
	for _, id := range members {
		u, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, ErrUserNotFound
		}
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		IsGroup:   true,
		Name:      &name,
		CreatorID: callerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}

	owner := &domain.Membership{
		ConversationID: conv.ID,
		UserID:         callerID,
		Role:           domain.RoleOwner,
		JoinedAt:       now,
		LastReadAt:     &now,
	}
	if err := s.convRepo.AddMember(ctx, owner); err != nil {
		return nil, fmt.Errorf("adding owner membership: %w", err)
	}
	for _, id := range members {
		m := &domain.Membership{
			ConversationID: conv.ID,
			UserID:         id,
			Role:           domain.RoleMember,
			JoinedAt:       now,
		}
		if err := s.convRepo.AddMember(ctx, m); err != nil {
			return nil, fmt.Errorf("adding member: %w", err)
		}
	}

	if s.publisher != nil {
		s.publisher.ConversationListChanged(append(members, callerID)...)
	}
	return conv, nil
}

// AddMembers admits users to a group. Previously removed members get
// their old row restored, join history intact; a second active row for
// the same pair never exists.
func (s *ConversationService) AddMembers(ctx context.Context, callerID, conversationID uuid.UUID, input AddMembersInput) error {
	conv, member, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return ErrNotGroup
	}
	if domain.RoleRank(member.Role) < domain.RoleRank(domain.RoleAdmin) {
		return ErrRoleInsufficient
	}

	targets := dedupeIDs(input.UserIDs, callerID)
	if len(targets) == 0 {
		return ErrGroupMembersRequired
	}

	// Validate everything first; membership writes happen only once the
	// whole batch is known good.
	type pending struct {
		id      uuid.UUID
		restore bool
	}
	var plan []pending
	for _, id := range targets {
		u, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUserNotFound
		}
		existing, err := s.convRepo.GetMember(ctx, conversationID, id)
		if err != nil {
			return err
		}
		if existing != nil && !existing.IsDeleted {
			return ErrAlreadyMember
		}
		plan = append(plan, pending{id: id, restore: existing != nil})
	}

	now := time.Now()
	for _, p := range plan {
		if p.restore {
			if err := s.convRepo.SetMemberHidden(ctx, conversationID, p.id, false); err != nil {
				return fmt.Errorf("restoring member: %w", err)
			}
			continue
		}
		m := &domain.Membership{
			ConversationID: conversationID,
			UserID:         p.id,
			Role:           domain.RoleMember,
			JoinedAt:       now,
		}
		if err := s.convRepo.AddMember(ctx, m); err != nil {
			return fmt.Errorf("adding member: %w", err)
		}
	}

	if err := s.convRepo.TouchUpdatedAt(ctx, conversationID, now); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.ConversationChanged(conversationID)
		s.publisher.ConversationListChanged(targets...)
	}
	return nil
}

// RemoveMember ejects a group member. The remover must outrank the
// target, so admins can remove members but not each other.
func (s *ConversationService) RemoveMember(ctx context.Context, callerID, conversationID, targetID uuid.UUID) error {
	conv, member, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return ErrNotGroup
	}

	target, err := s.convRepo.GetMember(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if target == nil || target.IsDeleted {
		return ErrMemberNotFound
	}
	if domain.RoleRank(member.Role) <= domain.RoleRank(target.Role) {
		return ErrRoleInsufficient
	}

	if err := s.convRepo.SetMemberHidden(ctx, conversationID, targetID, true); err != nil {
		return fmt.Errorf("removing member: %w", err)
	}
	if err := s.convRepo.TouchUpdatedAt(ctx, conversationID, time.Now()); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.ConversationChanged(conversationID)
		s.publisher.ConversationListChanged(targetID)
	}
	return nil
}

// SetRole promotes or demotes a group member. Owner-only; the owner
// role itself can be neither assigned nor removed here.
func (s *ConversationService) SetRole(ctx context.Context, callerID, conversationID, targetID uuid.UUID, input SetRoleInput) error {
	conv, member, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		return ErrNotGroup
	}
	if member.Role != domain.RoleOwner {
		return ErrRoleInsufficient
	}
	if input.Role == domain.RoleOwner {
		return ErrOwnerRole
	}
	if input.Role != domain.RoleAdmin && input.Role != domain.RoleMember {
		return ErrBadRole
	}

	target, err := s.convRepo.GetMember(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if target == nil || target.IsDeleted {
		return ErrMemberNotFound
	}
	if target.Role == domain.RoleOwner {
		return ErrOwnerRole
	}

	if err := s.convRepo.SetMemberRole(ctx, conversationID, targetID, input.Role); err != nil {
		return fmt.Errorf("setting role: %w", err)
	}
	if s.publisher != nil {
		s.publisher.ConversationChanged(conversationID)
	}
	return nil
}

// HideForCaller hides the conversation from the caller's list. History
// is kept; a new inbound direct message or re-adding to a group brings
// it back.
func (s *ConversationService) HideForCaller(ctx context.Context, callerID, conversationID uuid.UUID) error {
	if _, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID); err != nil {
		return err
	}

	if err := s.convRepo.SetMemberHidden(ctx, conversationID, callerID, true); err != nil {
		return fmt.Errorf("hiding conversation: %w", err)
	}
	if s.publisher != nil {
		s.publisher.ConversationListChanged(callerID)
	}
	return nil
}

// List returns the caller's visible conversations, newest activity
// first, with unread counts and, for directs, the peer and their
// online flag when their privacy exposes it.
func (s *ConversationService) List(ctx context.Context, callerID uuid.UUID) ([]domain.Conversation, error) {
	convs, err := s.convRepo.ListByUser(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		return []domain.Conversation{}, nil
	}

	// Online flags for direct peers, gated by each peer's last-seen
	// visibility.
	var peerIDs []uuid.UUID
	for _, c := range convs {
		if !c.IsGroup && c.OtherUserID != uuid.Nil {
			peerIDs = append(peerIDs, c.OtherUserID)
		}
	}
	if len(peerIDs) > 0 {
		online, err := s.liveness.OnlineMany(ctx, peerIDs)
		if err != nil {
			return nil, err
		}
		settings, err := s.privacyRepo.GetByUserIDs(ctx, peerIDs)
		if err != nil {
			return nil, err
		}
		hidden := make(map[uuid.UUID]bool, len(settings))
		for _, st := range settings {
			hidden[st.UserID] = st.LastSeenVisibility == domain.VisibilityNobody
		}
		for i := range convs {
			c := &convs[i]
			if !c.IsGroup && c.OtherUserID != uuid.Nil && !hidden[c.OtherUserID] {
				c.OtherUserOnline = online[c.OtherUserID]
			}
		}
	}

	return convs, nil
}

func (s *ConversationService) Get(ctx context.Context, callerID, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID)
	if err != nil {
		return nil, err
	}

	if !conv.IsGroup {
		otherID, err := directCounterpart(ctx, s.convRepo, conversationID, callerID)
		if err != nil {
			return nil, err
		}
		if otherID != uuid.Nil {
			other, err := s.userRepo.GetByID(ctx, otherID)
			if err != nil {
				return nil, err
			}
			s.fillDirectPeer(ctx, conv, other)
		}
	}
	return conv, nil
}

func (s *ConversationService) ListMembers(ctx context.Context, callerID, conversationID uuid.UUID) ([]domain.Membership, error) {
	if _, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID); err != nil {
		return nil, err
	}

	members, err := s.convRepo.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []domain.Membership{}
	}
	return members, nil
}

// MarkRead advances the caller's read high-water mark to now. Unread
// counts reset and the caller becomes eligible for "seen by" lists,
// settings permitting.
func (s *ConversationService) MarkRead(ctx context.Context, callerID, conversationID uuid.UUID) error {
	if _, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID); err != nil {
		return err
	}

	if err := s.convRepo.SetMemberLastRead(ctx, conversationID, callerID, time.Now()); err != nil {
		return fmt.Errorf("marking read: %w", err)
	}
	if s.publisher != nil {
		s.publisher.ConversationChanged(conversationID)
		s.publisher.ConversationListChanged(callerID)
	}
	return nil
}

func (s *ConversationService) fillDirectPeer(ctx context.Context, conv *domain.Conversation, other *domain.User) {
	if conv.IsGroup || other == nil {
		return
	}
	conv.OtherUserID = other.ID
	conv.OtherUserUsername = other.Username
	conv.OtherUserDisplayName = other.DisplayName
	conv.OtherUserAvatarURL = other.AvatarURL

	settings, err := s.privacyRepo.Get(ctx, other.ID)
	if err != nil || (settings != nil && settings.LastSeenVisibility == domain.VisibilityNobody) {
		return
	}
	online, err := s.liveness.Online(ctx, other.ID)
	if err == nil {
		conv.OtherUserOnline = online
	}
}

// dedupeIDs drops duplicates and the excluded id while keeping order.
func dedupeIDs(ids []uuid.UUID, exclude uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	var out []uuid.UUID
	for _, id := range ids {
		if id == exclude || id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
