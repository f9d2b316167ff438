// Package chatclient is the Go client for the courier API: typed REST
// calls, a live-query subscription reader, and an upload queue that
// sequences media sends per conversation.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const apiPrefix = "/api/v1"

// Media kinds accepted by the upload pipeline.
const (
	KindImage = "image"
	KindVideo = "video"
	KindAudio = "audio"
)

// Per-kind upload ceilings, mirroring the server's. Checked before any
// network call so oversized files fail locally.
const (
	maxImageBytes = 10 << 20
	maxVideoBytes = 20 << 20
	maxAudioBytes = 12 << 20
)

func maxBytesFor(kind string) int64 {
	switch kind {
	case KindImage:
		return maxImageBytes
	case KindVideo:
		return maxVideoBytes
	case KindAudio:
		return maxAudioBytes
	default:
		return 0
	}
}

// checkLocal runs the client-side half of upload validation. A non-nil
// return means the file can never be accepted and no request should be
// made.
func checkLocal(kind, contentType string, size int64) error {
	max := maxBytesFor(kind)
	if max == 0 {
		return fmt.Errorf("unsupported media kind %q", kind)
	}
	if size <= 0 {
		return fmt.Errorf("empty file")
	}
	if size > max {
		return fmt.Errorf("%s exceeds the %dMB limit for %s", contentType, max>>20, kind)
	}
	if !strings.HasPrefix(contentType, kind+"/") {
		return fmt.Errorf("content type %q does not match kind %s", contentType, kind)
	}
	return nil
}

// APIError is a non-2xx response decoded from the server's error
// envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New builds a client for the server at baseURL (scheme and host, no
// trailing slash needed). Most calls require a token; Login and
// Register set it on success.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) { c.token = token }
func (c *Client) Token() string         { return c.token }
func (c *Client) BaseURL() string       { return c.baseURL }

// do runs one JSON round trip. in is marshaled when non-nil, out is
// decoded into when non-nil, and any non-2xx status comes back as an
// *APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.NewDecoder(resp.Body).Decode(&envelope) == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = "UNKNOWN"
		apiErr.Message = resp.Status
	}
	return apiErr
}

// --- Wire types ---

type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       *string   `json:"email,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Online      bool      `json:"online,omitempty"`
}

type AuthResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"access_token"`
}

type PrivacySettings struct {
	UserID             uuid.UUID `json:"user_id"`
	ReadReceipts       bool      `json:"read_receipts"`
	LastSeenVisibility string    `json:"last_seen_visibility"`
	WhoCanMessage      string    `json:"who_can_message"`
	E2EEEnabled        bool      `json:"e2ee_enabled"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type UpdatePrivacyInput struct {
	ReadReceipts       *bool   `json:"read_receipts,omitempty"`
	LastSeenVisibility *string `json:"last_seen_visibility,omitempty"`
	WhoCanMessage      *string `json:"who_can_message,omitempty"`
	E2EEEnabled        *bool   `json:"e2ee_enabled,omitempty"`
}

type Conversation struct {
	ID              uuid.UUID  `json:"id"`
	IsGroup         bool       `json:"is_group"`
	Name            *string    `json:"name,omitempty"`
	CreatorID       uuid.UUID  `json:"creator_id"`
	LastMessageText *string    `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	UnreadCount          int       `json:"unread_count"`
	OtherUserID          uuid.UUID `json:"other_user_id,omitempty"`
	OtherUserUsername    string    `json:"other_username,omitempty"`
	OtherUserDisplayName string    `json:"other_display_name,omitempty"`
	OtherUserAvatarURL   *string   `json:"other_avatar_url,omitempty"`
	OtherUserOnline      bool      `json:"other_online,omitempty"`
}

type Member struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Role           string     `json:"role"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	Username       string     `json:"username,omitempty"`
	DisplayName    string     `json:"display_name,omitempty"`
}

type MediaDescriptor struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
	URL  string `json:"url,omitempty"`
}

type MessageStatus struct {
	State  string   `json:"state"`
	SeenBy []string `json:"seen_by,omitempty"`
}

type MessageReaction struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
	Username  string    `json:"username,omitempty"`
}

type Message struct {
	ID             uuid.UUID        `json:"id"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	SenderID       uuid.UUID        `json:"sender_id"`
	Body           string           `json:"body"`
	Media          *MediaDescriptor `json:"media,omitempty"`
	ReplyToID      *uuid.UUID       `json:"reply_to_id,omitempty"`
	Deleted        bool             `json:"deleted"`
	EditedAt       *time.Time       `json:"edited_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`

	SenderUsername    string            `json:"sender_username,omitempty"`
	SenderDisplayName string            `json:"sender_display_name,omitempty"`
	EditCount         int               `json:"edit_count,omitempty"`
	Reactions         []MessageReaction `json:"reactions,omitempty"`
	Starred           bool              `json:"starred,omitempty"`
	Status            *MessageStatus    `json:"status,omitempty"`
}

type MessageEdit struct {
	ID           uuid.UUID `json:"id"`
	MessageID    uuid.UUID `json:"message_id"`
	EditorID     uuid.UUID `json:"editor_id"`
	PreviousBody string    `json:"previous_body"`
	EditedAt     time.Time `json:"edited_at"`
}

type MessagesPage struct {
	Messages []Message  `json:"messages"`
	HasMore  bool       `json:"has_more"`
	Oldest   *time.Time `json:"oldest,omitempty"`
}

type SearchHit struct {
	Message           Message `json:"message"`
	ConversationTitle string  `json:"conversation_title"`
}

// UploadTarget is a single-use upload slot. PUT the bytes to URL once,
// then commit Ref via SendMedia.
type UploadTarget struct {
	ID        uuid.UUID `json:"id"`
	Ref       string    `json:"ref"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// --- Auth ---

func (c *Client) Register(ctx context.Context, email, username, displayName, password string) (*AuthResponse, error) {
	in := map[string]string{
		"email":        email,
		"username":     username,
		"display_name": displayName,
		"password":     password,
	}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/auth/register", in, &out); err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	in := map[string]string{"email": email, "password": password}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/auth/login", in, &out); err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

// --- Users ---

func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	params := url.Values{"q": {query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out []User
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/users?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Privacy & blocks ---

func (c *Client) PrivacySettings(ctx context.Context) (*PrivacySettings, error) {
	var out PrivacySettings
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/privacy", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdatePrivacy(ctx context.Context, in UpdatePrivacyInput) (*PrivacySettings, error) {
	var out PrivacySettings
	if err := c.do(ctx, http.MethodPatch, apiPrefix+"/privacy", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ToggleBlock flips the block on userID and reports the new state.
func (c *Client) ToggleBlock(ctx context.Context, userID uuid.UUID) (bool, error) {
	var out struct {
		Blocked bool `json:"blocked"`
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/blocks/"+userID.String(), nil, &out); err != nil {
		return false, err
	}
	return out.Blocked, nil
}

func (c *Client) ListBlocked(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/blocks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Conversations ---

func (c *Client) GetOrCreateDirect(ctx context.Context, otherUserID uuid.UUID) (*Conversation, error) {
	in := map[string]uuid.UUID{"user_id": otherUserID}
	var out Conversation
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/conversations/direct", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []uuid.UUID) (*Conversation, error) {
	in := map[string]any{"name": name, "member_ids": memberIDs}
	var out Conversation
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/conversations/group", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var out Conversation
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/conversations/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HideConversation removes the conversation from the caller's list;
// history survives and any new message resurfaces it.
func (c *Client) HideConversation(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/conversations/"+id.String(), nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, conversationID uuid.UUID) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/conversations/"+conversationID.String()+"/read", nil, nil)
}

// --- Members ---

func (c *Client) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]Member, error) {
	var out []Member
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/conversations/"+conversationID.String()+"/members", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddMembers(ctx context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) error {
	in := map[string][]uuid.UUID{"user_ids": userIDs}
	return c.do(ctx, http.MethodPost, apiPrefix+"/conversations/"+conversationID.String()+"/members", in, nil)
}

func (c *Client) RemoveMember(ctx context.Context, conversationID, userID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/conversations/"+conversationID.String()+"/members/"+userID.String(), nil, nil)
}

func (c *Client) SetRole(ctx context.Context, conversationID, userID uuid.UUID, role string) error {
	in := map[string]string{"role": role}
	return c.do(ctx, http.MethodPut, apiPrefix+"/conversations/"+conversationID.String()+"/members/"+userID.String()+"/role", in, nil)
}

// --- Messages ---

func (c *Client) SendText(ctx context.Context, conversationID uuid.UUID, body string, replyToID *uuid.UUID) (*Message, error) {
	in := map[string]any{"body": body}
	if replyToID != nil {
		in["reply_to_id"] = *replyToID
	}
	var out Message
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/conversations/"+conversationID.String()+"/messages", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMedia commits an uploaded ref as a message. caption may be empty.
func (c *Client) SendMedia(ctx context.Context, conversationID uuid.UUID, kind, ref, caption string, replyToID *uuid.UUID) (*Message, error) {
	in := map[string]any{
		"body":  caption,
		"media": map[string]string{"kind": kind, "ref": ref},
	}
	if replyToID != nil {
		in["reply_to_id"] = *replyToID
	}
	var out Message
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/conversations/"+conversationID.String()+"/messages", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages pages backwards: pass the previous page's Oldest as
// before to fetch the next older page.
func (c *Client) ListMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) (*MessagesPage, error) {
	params := url.Values{}
	if before != nil {
		params.Set("before", before.Format(time.RFC3339Nano))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := apiPrefix + "/conversations/" + conversationID.String() + "/messages"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out MessagesPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchQuery filters are conjunctive; zero values mean "any".
type SearchQuery struct {
	ConversationID *uuid.UUID
	Text           string
	Kind           string
	SenderID       *uuid.UUID
	From           *time.Time
	To             *time.Time
	Limit          int
}

func (c *Client) SearchMessages(ctx context.Context, q SearchQuery) ([]SearchHit, error) {
	params := url.Values{}
	if q.ConversationID != nil {
		params.Set("conversation_id", q.ConversationID.String())
	}
	if q.Text != "" {
		params.Set("q", q.Text)
	}
	if q.Kind != "" {
		params.Set("kind", q.Kind)
	}
	if q.SenderID != nil {
		params.Set("sender_id", q.SenderID.String())
	}
	if q.From != nil {
		params.Set("from", q.From.Format(time.RFC3339Nano))
	}
	if q.To != nil {
		params.Set("to", q.To.Format(time.RFC3339Nano))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := apiPrefix + "/messages/search"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out []SearchHit
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EditMessage(ctx context.Context, messageID uuid.UUID, body string) (*Message, error) {
	in := map[string]string{"body": body}
	var out Message
	if err := c.do(ctx, http.MethodPatch, apiPrefix+"/messages/"+messageID.String(), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, messageID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, apiPrefix+"/messages/"+messageID.String(), nil, nil)
}

// ToggleReaction flips the caller's reaction and reports whether it is
// now present.
func (c *Client) ToggleReaction(ctx context.Context, messageID uuid.UUID, emoji string) (bool, error) {
	in := map[string]string{"emoji": emoji}
	var out struct {
		Reacted bool `json:"reacted"`
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/messages/"+messageID.String()+"/reactions", in, &out); err != nil {
		return false, err
	}
	return out.Reacted, nil
}

func (c *Client) ToggleStar(ctx context.Context, messageID uuid.UUID) (bool, error) {
	var out struct {
		Starred bool `json:"starred"`
	}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/messages/"+messageID.String()+"/star", nil, &out); err != nil {
		return false, err
	}
	return out.Starred, nil
}

func (c *Client) ListStarred(ctx context.Context, conversationID *uuid.UUID) ([]Message, error) {
	path := apiPrefix + "/messages/starred"
	if conversationID != nil {
		path += "?conversation_id=" + conversationID.String()
	}
	var out []Message
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EditHistory(ctx context.Context, messageID uuid.UUID) ([]MessageEdit, error) {
	var out []MessageEdit
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/messages/"+messageID.String()+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Typing & presence ---

func (c *Client) SetTyping(ctx context.Context, conversationID uuid.UUID, typing bool) error {
	in := map[string]bool{"typing": typing}
	return c.do(ctx, http.MethodPost, apiPrefix+"/conversations/"+conversationID.String()+"/typing", in, nil)
}

func (c *Client) TypingIn(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var out struct {
		Typing []uuid.UUID `json:"typing"`
	}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/conversations/"+conversationID.String()+"/typing", nil, &out); err != nil {
		return nil, err
	}
	return out.Typing, nil
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/presence/heartbeat", nil, nil)
}

// RunHeartbeat sends a heartbeat every interval until ctx ends. Zero
// interval means the server's presence TTL wants one every 15s.
func (c *Client) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Heartbeat(ctx)
		}
	}
}

// --- Uploads ---

func (c *Client) AllocateUpload(ctx context.Context, kind string, size int64, contentType string) (*UploadTarget, error) {
	in := map[string]any{"kind": kind, "size": size, "content_type": contentType}
	var out UploadTarget
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/uploads", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadBytes PUTs the payload to the target. progress, when non-nil,
// is called as bytes go out. The returned target carries the committed
// ref and its refreshed expiry.
func (c *Client) UploadBytes(ctx context.Context, target *UploadTarget, payload io.Reader, size int64, progress func(sent, total int64)) (*UploadTarget, error) {
	body := io.Reader(payload)
	if progress != nil {
		body = &progressReader{r: payload, total: size, report: progress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+target.URL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.ContentLength = size
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PUT %s: %w", target.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp)
	}
	var out UploadTarget
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}
