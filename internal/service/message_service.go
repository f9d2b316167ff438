package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/presence"
	"github.com/vedran77/courier/internal/repository"
)

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrNotMessageSender = errors.New("only the sender can modify a message")
	ErrMessageDeleted   = errors.New("message has been deleted")
	ErrEmptyBody        = errors.New("message body is empty")
	ErrBadReplyTarget   = errors.New("reply target does not belong to this conversation")
	ErrUnknownEmoji     = errors.New("emoji is not in the allowed set")
	ErrBadMediaKind     = errors.New("media kind must be image, video or audio")
	ErrMediaNotUploaded = errors.New("media reference has no uploaded content")
)

// replyQuoteRunes is how much of the quoted message survives in the
// conversation's last-message summary.
const replyQuoteRunes = 30

// MediaCommitter claims a finished upload for exactly one message. The
// second commit of the same ref fails.
type MediaCommitter interface {
	CommitRef(ctx context.Context, ref string) (kind string, ok bool)
}

// URLResolver turns a stored media ref into a URL a client can fetch.
type URLResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

type MessageService struct {
	msgRepo     repository.MessageRepository
	convRepo    repository.ConversationRepository
	userRepo    repository.UserRepository
	blockRepo   repository.BlockRepository
	privacyRepo repository.PrivacyRepository
	liveness    presence.Cache
	reactions   *domain.ReactionSet
	media       MediaCommitter
	urls        URLResolver
	publisher   Publisher
}

func NewMessageService(
	msgRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	blockRepo repository.BlockRepository,
	privacyRepo repository.PrivacyRepository,
	liveness presence.Cache,
	reactions *domain.ReactionSet,
	media MediaCommitter,
	urls URLResolver,
) *MessageService {
	return &MessageService{
		msgRepo:     msgRepo,
		convRepo:    convRepo,
		userRepo:    userRepo,
		blockRepo:   blockRepo,
		privacyRepo: privacyRepo,
		liveness:    liveness,
		reactions:   reactions,
		media:       media,
		urls:        urls,
	}
}

func (s *MessageService) SetPublisher(p Publisher) {
	s.publisher = p
}

type SendMessageInput struct {
	Body      string     `json:"body"`
	ReplyToID *uuid.UUID `json:"reply_to_id,omitempty"`
}

type SendMediaInput struct {
	Kind      string     `json:"kind"`
	Ref       string     `json:"ref"`
	Caption   string     `json:"caption,omitempty"`
	ReplyToID *uuid.UUID `json:"reply_to_id,omitempty"`
}

type EditMessageInput struct {
	Body string `json:"body"`
}

type ReactionInput struct {
	Emoji string `json:"emoji"`
}

type ToggleReactionResponse struct {
	Reacted bool `json:"reacted"`
}

type ToggleStarResponse struct {
	Starred bool `json:"starred"`
}

// MessagesPage is one page of backward pagination. Messages are in
// ascending created-at order; Oldest is the exclusive cursor for the
// next older page.
type MessagesPage struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
	Oldest   *time.Time       `json:"oldest,omitempty"`
}

// SearchInput filters are optional and conjunctive. A nil ConversationID
// searches every conversation the caller can currently see.
type SearchInput struct {
	ConversationID *uuid.UUID
	Text           string
	MediaKind      string
	SenderID       *uuid.UUID
	From           *time.Time
	To             *time.Time
	Limit          int
}

func (s *MessageService) SendText(ctx context.Context, callerID, conversationID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	return s.send(ctx, callerID, conversationID, body, nil, input.ReplyToID)
}

// SendMedia commits a previously uploaded blob as a message. The ref is
// claimed before the insert, so a given upload backs at most one message.
func (s *MessageService) SendMedia(ctx context.Context, callerID, conversationID uuid.UUID, input SendMediaInput) (*domain.Message, error) {
	if !domain.ValidMediaKind(input.Kind) {
		return nil, ErrBadMediaKind
	}
	if input.Ref == "" {
		return nil, ErrMediaNotUploaded
	}

	// Run every cheap precondition before claiming the ref; a claim is
	// not refundable.
	if err := s.checkSend(ctx, callerID, conversationID, input.ReplyToID); err != nil {
		return nil, err
	}

	kind, ok := s.media.CommitRef(ctx, input.Ref)
	if !ok {
		return nil, ErrMediaNotUploaded
	}
	if kind != input.Kind {
		return nil, ErrBadMediaKind
	}

	media := &domain.MediaDescriptor{Kind: input.Kind, Ref: input.Ref}
	return s.send(ctx, callerID, conversationID, strings.TrimSpace(input.Caption), media, input.ReplyToID)
}

// checkSend runs the send precondition chain without side effects.
func (s *MessageService) checkSend(ctx context.Context, callerID, conversationID uuid.UUID, replyToID *uuid.UUID) error {
	conv, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID)
	if err != nil {
		return err
	}
	if !conv.IsGroup {
		if err := s.checkDirectMessaging(ctx, conversationID, callerID); err != nil {
			return err
		}
	}
	if replyToID != nil {
		if _, err := s.replyTarget(ctx, conversationID, *replyToID); err != nil {
			return err
		}
	}
	return nil
}

func (s *MessageService) send(ctx context.Context, callerID, conversationID uuid.UUID, body string, media *domain.MediaDescriptor, replyToID *uuid.UUID) (*domain.Message, error) {
	conv, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID)
	if err != nil {
		return nil, err
	}

	otherID := uuid.Nil
	if !conv.IsGroup {
		otherID, err = directCounterpart(ctx, s.convRepo, conversationID, callerID)
		if err != nil {
			return nil, err
		}
		if otherID != uuid.Nil {
			settings, err := s.privacyRepo.Get(ctx, otherID)
			if err != nil {
				return nil, err
			}
			if settings != nil && settings.WhoCanMessage == domain.VisibilityNobody {
				return nil, ErrMessagingRestricted
			}
		}
	}

	var replyQuote string
	if replyToID != nil {
		target, err := s.replyTarget(ctx, conversationID, *replyToID)
		if err != nil {
			return nil, err
		}
		replyQuote = target.Body
		if target.Deleted {
			replyQuote = domain.DeletedMessagePlaceholder
		}
	}

	now := time.Now()
	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       callerID,
		Body:           body,
		Media:          media,
		ReplyToID:      replyToID,
		CreatedAt:      now,
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	if err := s.convRepo.SetLastMessage(ctx, conversationID, messageSummary(msg, replyQuote), now); err != nil {
		return nil, fmt.Errorf("updating conversation summary: %w", err)
	}
	// The sender has read their own message by definition.
	if err := s.convRepo.SetMemberLastRead(ctx, conversationID, callerID, now); err != nil {
		return nil, err
	}
	_ = s.liveness.ClearTyping(ctx, conversationID, callerID)

	// A fresh inbound message always resurfaces a direct conversation
	// the recipient had hidden.
	if otherID != uuid.Nil {
		other, err := s.convRepo.GetMember(ctx, conversationID, otherID)
		if err != nil {
			return nil, err
		}
		if other != nil && other.IsDeleted {
			if err := s.convRepo.SetMemberHidden(ctx, conversationID, otherID, false); err != nil {
				return nil, fmt.Errorf("restoring recipient membership: %w", err)
			}
		}
	}

	memberIDs, err := s.convRepo.ListMemberIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		s.publisher.ConversationChanged(conversationID)
		s.publisher.ConversationListChanged(memberIDs...)
	}

	created, err := s.msgRepo.GetByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	out := []domain.Message{*created}
	if err := s.decorateForViewer(ctx, callerID, conversationID, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

// checkDirectMessaging enforces the counterpart's who-can-message
// setting on every send into a direct conversation.
func (s *MessageService) checkDirectMessaging(ctx context.Context, conversationID, callerID uuid.UUID) error {
	otherID, err := directCounterpart(ctx, s.convRepo, conversationID, callerID)
	if err != nil {
		return err
	}
	if otherID == uuid.Nil {
		return nil
	}
	settings, err := s.privacyRepo.Get(ctx, otherID)
	if err != nil {
		return err
	}
	if settings != nil && settings.WhoCanMessage == domain.VisibilityNobody {
		return ErrMessagingRestricted
	}
	return nil
}

func (s *MessageService) replyTarget(ctx context.Context, conversationID, replyToID uuid.UUID) (*domain.Message, error) {
	target, err := s.msgRepo.GetByID(ctx, replyToID)
	if err != nil {
		return nil, err
	}
	if target == nil || target.ConversationID != conversationID {
		return nil, ErrBadReplyTarget
	}
	return target, nil
}

// Edit replaces the body and appends the previous one to the edit
// chain, so the full history stays reconstructible.
func (s *MessageService) Edit(ctx context.Context, callerID, messageID uuid.UUID, input EditMessageInput) (*domain.Message, error) {
	msg, err := s.ownMessage(ctx, callerID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Deleted {
		return nil, ErrMessageDeleted
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	now := time.Now()
	edit := &domain.MessageEdit{
		ID:           uuid.New(),
		MessageID:    msg.ID,
		EditorID:     callerID,
		PreviousBody: msg.Body,
		EditedAt:     now,
	}
	if err := s.msgRepo.CreateEdit(ctx, edit); err != nil {
		return nil, fmt.Errorf("recording edit: %w", err)
	}
	if err := s.msgRepo.UpdateBody(ctx, msg.ID, body, now); err != nil {
		return nil, fmt.Errorf("updating body: %w", err)
	}

	if s.publisher != nil {
		s.publisher.ConversationChanged(msg.ConversationID)
	}

	updated, err := s.msgRepo.GetByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	out := []domain.Message{*updated}
	if err := s.decorateForViewer(ctx, callerID, msg.ConversationID, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

// Delete tombstones the message: the body is cleared but the row stays
// so replies keep a target. Deleting twice is a no-op.
func (s *MessageService) Delete(ctx context.Context, callerID, messageID uuid.UUID) error {
	msg, err := s.ownMessage(ctx, callerID, messageID)
	if err != nil {
		return err
	}
	if msg.Deleted {
		return nil
	}

	if err := s.msgRepo.SoftDelete(ctx, msg.ID); err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if s.publisher != nil {
		s.publisher.ConversationChanged(msg.ConversationID)
	}
	return nil
}

func (s *MessageService) ToggleReaction(ctx context.Context, callerID, messageID uuid.UUID, input ReactionInput) (*ToggleReactionResponse, error) {
	if !s.reactions.Contains(input.Emoji) {
		return nil, ErrUnknownEmoji
	}

	msg, err := s.visibleMessage(ctx, callerID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Deleted {
		return nil, ErrMessageDeleted
	}

	existing, err := s.msgRepo.GetReaction(ctx, msg.ID, callerID, input.Emoji)
	if err != nil {
		return nil, err
	}

	reacted := existing == nil
	if reacted {
		reaction := &domain.MessageReaction{
			MessageID: msg.ID,
			UserID:    callerID,
			Emoji:     input.Emoji,
			CreatedAt: time.Now(),
		}
		if err := s.msgRepo.AddReaction(ctx, reaction); err != nil {
			return nil, fmt.Errorf("adding reaction: %w", err)
		}
	} else {
		if err := s.msgRepo.DeleteReaction(ctx, msg.ID, callerID, input.Emoji); err != nil {
			return nil, fmt.Errorf("removing reaction: %w", err)
		}
	}

	if s.publisher != nil {
		s.publisher.ConversationChanged(msg.ConversationID)
	}
	return &ToggleReactionResponse{Reacted: reacted}, nil
}

// ToggleStar flips the caller's private pin. Tombstones can be starred;
// they surface in the starred list with their placeholder body.
func (s *MessageService) ToggleStar(ctx context.Context, callerID, messageID uuid.UUID) (*ToggleStarResponse, error) {
	msg, err := s.visibleMessage(ctx, callerID, messageID)
	if err != nil {
		return nil, err
	}

	existing, err := s.msgRepo.GetStar(ctx, msg.ID, callerID)
	if err != nil {
		return nil, err
	}

	starred := existing == nil
	if starred {
		star := &domain.MessageStar{
			MessageID: msg.ID,
			UserID:    callerID,
			CreatedAt: time.Now(),
		}
		if err := s.msgRepo.AddStar(ctx, star); err != nil {
			return nil, fmt.Errorf("starring message: %w", err)
		}
	} else {
		if err := s.msgRepo.DeleteStar(ctx, msg.ID, callerID); err != nil {
			return nil, fmt.Errorf("unstarring message: %w", err)
		}
	}

	if s.publisher != nil {
		s.publisher.ConversationChanged(msg.ConversationID)
	}
	return &ToggleStarResponse{Starred: starred}, nil
}

// List pages backward through a conversation. The page itself is
// chronological; before is an exclusive upper bound on created-at.
func (s *MessageService) List(ctx context.Context, callerID, conversationID uuid.UUID, before *time.Time, limit int) (*MessagesPage, error) {
	if _, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, conversationID); err != nil {
		return nil, err
	}

	limit = clampLimit(limit, 40)

	// Probe one past the page; a full probe means at least one strictly
	// older row exists.
	rows, err := s.msgRepo.ListByConversation(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[1:]
	}

	page := &MessagesPage{Messages: rows, HasMore: hasMore}
	if len(rows) > 0 {
		oldest := rows[0].CreatedAt
		page.Oldest = &oldest
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}

	if err := s.decorateForViewer(ctx, callerID, conversationID, page.Messages); err != nil {
		return nil, err
	}
	return page, nil
}

// Search scans non-deleted messages with conjunctive filters. Without a
// conversation filter it spans every conversation the caller can see,
// which keeps hidden and blocked history out of the results.
func (s *MessageService) Search(ctx context.Context, callerID uuid.UUID, input SearchInput) ([]domain.SearchHit, error) {
	titles := make(map[uuid.UUID]string)
	var conversationIDs []uuid.UUID

	if input.ConversationID != nil {
		conv, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, *input.ConversationID)
		if err != nil {
			return nil, err
		}
		conversationIDs = []uuid.UUID{conv.ID}
		title, err := s.conversationTitle(ctx, callerID, conv)
		if err != nil {
			return nil, err
		}
		titles[conv.ID] = title
	} else {
		convs, err := s.convRepo.ListByUser(ctx, callerID)
		if err != nil {
			return nil, err
		}
		for _, c := range convs {
			conversationIDs = append(conversationIDs, c.ID)
			titles[c.ID] = listedTitle(c)
		}
		if len(conversationIDs) == 0 {
			return []domain.SearchHit{}, nil
		}
	}

	params := repository.SearchParams{
		ConversationIDs: conversationIDs,
		Text:            strings.TrimSpace(input.Text),
		MediaKind:       input.MediaKind,
		SenderID:        input.SenderID,
		From:            input.From,
		To:              input.To,
		Limit:           clampLimit(input.Limit, 50),
	}
	msgs, err := s.msgRepo.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.SearchHit, 0, len(msgs))
	for _, m := range msgs {
		s.resolveMediaURL(ctx, &m)
		hits = append(hits, domain.SearchHit{Message: m, ConversationTitle: titles[m.ConversationID]})
	}
	return hits, nil
}

// EditHistory returns the append-only edit chain, oldest first. Any
// member of the conversation can read it.
func (s *MessageService) EditHistory(ctx context.Context, callerID, messageID uuid.UUID) ([]domain.MessageEdit, error) {
	msg, err := s.visibleMessage(ctx, callerID, messageID)
	if err != nil {
		return nil, err
	}

	edits, err := s.msgRepo.ListEdits(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if edits == nil {
		edits = []domain.MessageEdit{}
	}
	return edits, nil
}

// ListStarred returns the caller's pinned messages, newest star first,
// restricted to conversations they can currently see.
func (s *MessageService) ListStarred(ctx context.Context, callerID uuid.UUID, conversationID *uuid.UUID) ([]domain.Message, error) {
	if conversationID != nil {
		if _, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, *conversationID); err != nil {
			return nil, err
		}
	}

	msgs, err := s.msgRepo.ListStarredByUser(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}

	var visible map[uuid.UUID]struct{}
	if conversationID == nil {
		convs, err := s.convRepo.ListByUser(ctx, callerID)
		if err != nil {
			return nil, err
		}
		visible = make(map[uuid.UUID]struct{}, len(convs))
		for _, c := range convs {
			visible[c.ID] = struct{}{}
		}
	}

	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if visible != nil {
			if _, ok := visible[m.ConversationID]; !ok {
				continue
			}
		}
		if m.Deleted {
			m.Body = domain.DeletedMessagePlaceholder
		}
		m.Starred = true
		s.resolveMediaURL(ctx, &m)
		out = append(out, m)
	}
	return out, nil
}

// ownMessage loads a message the caller authored, gating on conversation
// visibility first so existence never leaks to outsiders.
func (s *MessageService) ownMessage(ctx context.Context, callerID, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.visibleMessage(ctx, callerID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != callerID {
		return nil, ErrNotMessageSender
	}
	return msg, nil
}

func (s *MessageService) visibleMessage(ctx context.Context, callerID, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if _, _, err := checkConversationAccess(ctx, s.convRepo, s.blockRepo, callerID, msg.ConversationID); err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// decorateForViewer fills the per-viewer facets of a message slice:
// grouped reactions, the caller's stars, masked tombstone bodies, media
// URLs, and the derived status on the caller's own messages.
func (s *MessageService) decorateForViewer(ctx context.Context, callerID, conversationID uuid.UUID, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}

	reactions, err := s.msgRepo.ListReactionsByMessageIDs(ctx, ids)
	if err != nil {
		return err
	}
	grouped := make(map[uuid.UUID][]domain.MessageReaction)
	for _, re := range reactions {
		grouped[re.MessageID] = append(grouped[re.MessageID], re)
	}

	starredIDs, err := s.msgRepo.ListStarredIDs(ctx, callerID, ids)
	if err != nil {
		return err
	}
	starred := make(map[uuid.UUID]struct{}, len(starredIDs))
	for _, id := range starredIDs {
		starred[id] = struct{}{}
	}

	var others []domain.Membership
	var receiptsOK map[uuid.UUID]bool
	for _, m := range msgs {
		if m.SenderID != callerID {
			continue
		}
		others, receiptsOK, err = s.statusInputs(ctx, callerID, conversationID)
		if err != nil {
			return err
		}
		break
	}

	for i := range msgs {
		m := &msgs[i]
		if m.Deleted {
			m.Body = domain.DeletedMessagePlaceholder
		}
		m.Reactions = grouped[m.ID]
		_, m.Starred = starred[m.ID]
		s.resolveMediaURL(ctx, m)
		if m.SenderID == callerID {
			m.Status = computeStatus(m, others, receiptsOK)
		}
	}
	return nil
}

// statusInputs gathers the other live memberships and a receipt opt-in
// map for status derivation. Users without stored settings count as
// opted in, matching the defaults.
func (s *MessageService) statusInputs(ctx context.Context, callerID, conversationID uuid.UUID) ([]domain.Membership, map[uuid.UUID]bool, error) {
	members, err := s.convRepo.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	var others []domain.Membership
	var otherIDs []uuid.UUID
	for _, m := range members {
		if m.UserID == callerID {
			continue
		}
		others = append(others, m)
		otherIDs = append(otherIDs, m.UserID)
	}
	if len(others) == 0 {
		return nil, nil, nil
	}

	settings, err := s.privacyRepo.GetByUserIDs(ctx, otherIDs)
	if err != nil {
		return nil, nil, err
	}
	receiptsOK := make(map[uuid.UUID]bool, len(others))
	for _, id := range otherIDs {
		receiptsOK[id] = true
	}
	for _, st := range settings {
		receiptsOK[st.UserID] = st.ReadReceipts
	}
	return others, receiptsOK, nil
}

// computeStatus derives sent/delivered/read for a message the viewer
// authored. Members with receipts disabled never appear in seen-by and
// never flip the status to read.
func computeStatus(msg *domain.Message, others []domain.Membership, receiptsOK map[uuid.UUID]bool) *domain.MessageStatus {
	if len(others) == 0 {
		return &domain.MessageStatus{State: domain.StatusSent}
	}

	var seenBy []string
	for _, m := range others {
		if !receiptsOK[m.UserID] {
			continue
		}
		if m.LastReadAt == nil || m.LastReadAt.Before(msg.CreatedAt) {
			continue
		}
		name := m.DisplayName
		if name == "" {
			name = m.Username
		}
		seenBy = append(seenBy, name)
	}
	if len(seenBy) > 0 {
		return &domain.MessageStatus{State: domain.StatusRead, SeenBy: seenBy}
	}
	return &domain.MessageStatus{State: domain.StatusDelivered}
}

func (s *MessageService) resolveMediaURL(ctx context.Context, msg *domain.Message) {
	if msg.Media == nil || msg.Media.Ref == "" || s.urls == nil {
		return
	}
	if url, err := s.urls.ResolveURL(ctx, msg.Media.Ref); err == nil {
		msg.Media.URL = url
	}
}

func (s *MessageService) conversationTitle(ctx context.Context, callerID uuid.UUID, conv *domain.Conversation) (string, error) {
	if conv.IsGroup {
		if conv.Name != nil {
			return *conv.Name, nil
		}
		return "", nil
	}
	otherID, err := directCounterpart(ctx, s.convRepo, conv.ID, callerID)
	if err != nil {
		return "", err
	}
	if otherID == uuid.Nil {
		return "", nil
	}
	other, err := s.userRepo.GetByID(ctx, otherID)
	if err != nil {
		return "", err
	}
	if other == nil {
		return "", nil
	}
	if other.DisplayName != "" {
		return other.DisplayName, nil
	}
	return other.Username, nil
}

// listedTitle names a conversation from the fields ListByUser already
// joined.
func listedTitle(c domain.Conversation) string {
	if c.IsGroup {
		if c.Name != nil {
			return *c.Name
		}
		return ""
	}
	if c.OtherUserDisplayName != "" {
		return c.OtherUserDisplayName
	}
	return c.OtherUserUsername
}

// messageSummary renders the denormalized conversation preview: media
// messages get a glyph plus caption or a kind label, replies carry a
// truncated quote of their target.
func messageSummary(msg *domain.Message, replyQuote string) string {
	summary := msg.Body
	if msg.Media != nil {
		label := mediaLabel(msg.Media.Kind)
		if msg.Body != "" {
			label = msg.Body
		}
		summary = domain.MediaGlyph(msg.Media.Kind) + " " + label
	}
	if replyQuote != "" {
		summary = "↩ " + truncateRunes(replyQuote, replyQuoteRunes) + ": " + summary
	}
	return summary
}

func mediaLabel(kind string) string {
	switch kind {
	case domain.MediaImage:
		return "Photo"
	case domain.MediaVideo:
		return "Video"
	case domain.MediaAudio:
		return "Voice message"
	default:
		return "Attachment"
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

func clampLimit(limit, fallback int) int {
	if limit < 1 {
		return fallback
	}
	if limit > 100 {
		return 100
	}
	return limit
}
