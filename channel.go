package revkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/content"
	"github.com/Revolt-Unofficial-Clients/revkit/models"
	"github.com/Revolt-Unofficial-Clients/revkit/permissions"
)

// Channel is any kind of channel. Kind tells which accessors are
// meaningful; operations that make no sense for the kind return
// ErrUnsupported.
type Channel struct {
	object[models.Channel]

	messages *MessageManager

	typingMu sync.Mutex
	typing   []string
}

func newChannel(c *Client, data []byte) (*Channel, error) {
	ch := &Channel{}
	if err := ch.init(c, data); err != nil {
		return nil, err
	}
	if ch.IsTextBased() {
		ch.messages = newMessageManager(c, ch.ID())
	}
	return ch, nil
}

func (c *Channel) Kind() models.ChannelType { return c.Source().ChannelType }

func (c *Channel) IsSavedMessages() bool { return c.Kind() == models.ChannelTypeSavedMessages }
func (c *Channel) IsDM() bool            { return c.Kind() == models.ChannelTypeDirectMessage }
func (c *Channel) IsGroup() bool         { return c.Kind() == models.ChannelTypeGroup }
func (c *Channel) IsText() bool          { return c.Kind() == models.ChannelTypeText }
func (c *Channel) IsVoice() bool         { return c.Kind() == models.ChannelTypeVoice }

// IsTextBased reports whether the channel carries messages.
func (c *Channel) IsTextBased() bool { return !c.IsVoice() }

func (c *Channel) IsServerBased() bool { return c.IsText() || c.IsVoice() }

func (c *Channel) IsDMBased() bool { return c.IsSavedMessages() || c.IsDM() || c.IsGroup() }

func (c *Channel) Name() string        { return c.Source().Name }
func (c *Channel) Description() string { return c.Source().Description }
func (c *Channel) NSFW() bool          { return c.Source().NSFW }
func (c *Channel) Active() bool        { return c.Source().Active }
func (c *Channel) ServerID() string    { return c.Source().Server }
func (c *Channel) OwnerID() string     { return c.Source().Owner }

func (c *Channel) Icon() *Attachment {
	return newAttachment(c.client, c.Source().Icon)
}

// Messages is nil for voice channels.
func (c *Channel) Messages() *MessageManager { return c.messages }

// LastMessageID may lag behind the real history when messages arrived
// while the client was not listening.
func (c *Channel) LastMessageID() string { return c.Source().LastMessageID }

func (c *Channel) LastMessage() *Message {
	if c.messages == nil {
		return nil
	}
	return c.messages.Get(c.LastMessageID())
}

func (c *Channel) Server() *Server {
	id := c.ServerID()
	if id == "" {
		return nil
	}
	return c.client.Servers.Get(id)
}

func (c *Channel) Owner() *User {
	id := c.OwnerID()
	if c.IsSavedMessages() {
		id = c.Source().User
	}
	if id == "" {
		return nil
	}
	return c.client.Users.Get(id)
}

func (c *Channel) RecipientIDs() []string {
	return slices.Clone(c.Source().Recipients)
}

func (c *Channel) Recipients() []*User {
	var out []*User
	for _, id := range c.RecipientIDs() {
		if u := c.client.Users.Get(id); u != nil {
			out = append(out, u)
		}
	}
	return out
}

// RecipientID is the other party of a direct message.
func (c *Channel) RecipientID() string {
	self := c.client.selfID()
	for _, id := range c.Source().Recipients {
		if id != self {
			return id
		}
	}
	return ""
}

func (c *Channel) Recipient() *User {
	id := c.RecipientID()
	if id == "" {
		return nil
	}
	return c.client.Users.Get(id)
}

// GroupPermissions is the permission field of a group, nil when unset.
func (c *Channel) GroupPermissions() *permissions.Permission {
	return c.Source().Permissions
}

func (c *Channel) DefaultPermissions() *permissions.Override {
	return c.Source().DefaultPermissions
}

func (c *Channel) RolePermissions() map[string]permissions.Override {
	return c.Source().RolePermissions
}

// TypingIDs lists the users currently typing, in the order they started.
func (c *Channel) TypingIDs() []string {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	return slices.Clone(c.typing)
}

func (c *Channel) TypingUsers() []*User {
	var out []*User
	for _, id := range c.TypingIDs() {
		if u := c.client.Users.Get(id); u != nil {
			out = append(out, u)
		}
	}
	return out
}

func (c *Channel) startTyping(user string) bool {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if slices.Contains(c.typing, user) {
		return false
	}
	c.typing = append(c.typing, user)
	return true
}

func (c *Channel) stopTyping(user string) bool {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	i := slices.Index(c.typing, user)
	if i < 0 {
		return false
	}
	c.typing = slices.Delete(c.typing, i, i+1)
	return true
}

func (c *Channel) clearTyping() {
	c.typingMu.Lock()
	c.typing = nil
	c.typingMu.Unlock()
}

// Unread reports whether the channel has messages after the read marker.
func (c *Channel) Unread() bool {
	return c.client.Unreads.IsUnread(c)
}

// Mentions lists unread messages that mention the logged-in user.
func (c *Channel) Mentions() []string {
	return c.client.Unreads.Mentions(c.ID())
}

type Reply struct {
	ID      string `json:"id"`
	Mention bool   `json:"mention"`
}

type SendEmbed struct {
	IconURL     string `json:"icon_url,omitempty"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Media       string `json:"media,omitempty"`
	Colour      string `json:"colour,omitempty"`
}

type SendOptions struct {
	Content     string             `json:"content,omitempty"`
	Nonce       string             `json:"nonce,omitempty"`
	Attachments []string           `json:"attachments,omitempty"`
	Replies     []Reply            `json:"replies,omitempty"`
	Embeds      []SendEmbed        `json:"embeds,omitempty"`
	Masquerade  *models.Masquerade `json:"masquerade,omitempty"`
}

// Send posts a message. A nonce is generated when none is given.
func (c *Channel) Send(ctx context.Context, msg SendOptions) (*Message, error) {
	if !c.IsTextBased() {
		return nil, ErrUnsupported
	}
	if err := content.ValidateMessage(msg.Content, len(msg.Attachments), len(msg.Replies)); err != nil {
		return nil, err
	}
	if msg.Nonce == "" {
		msg.Nonce = uuid.NewString()
	}

	var raw json.RawMessage
	if err := c.client.api.Post(ctx, "/channels/"+c.ID()+"/messages", msg, &raw); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return c.messages.Construct(raw)
}

// Ack marks the channel read up to messageID. An empty ID marks
// everything read.
func (c *Channel) Ack(ctx context.Context, messageID string) error {
	if !c.IsTextBased() {
		return ErrUnsupported
	}
	if messageID == "" {
		messageID = c.LastMessageID()
	}
	return c.client.Unreads.MarkRead(ctx, c.ID(), messageID, true)
}

type MessageQuery struct {
	Limit  int
	Before string
	After  string
	// Sort is "Latest", "Oldest" or "Relevance".
	Sort   string
	Nearby string
}

func (q MessageQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	for k, s := range map[string]string{"before": q.Before, "after": q.After, "sort": q.Sort, "nearby": q.Nearby} {
		if s != "" {
			v.Set(k, s)
		}
	}
	v.Set("include_users", "true")
	return v
}

// FetchMessages loads a page of history along with its authors.
func (c *Channel) FetchMessages(ctx context.Context, q MessageQuery) ([]*Message, error) {
	if !c.IsTextBased() {
		return nil, ErrUnsupported
	}
	return c.messages.FetchLatest(ctx, q)
}

func (c *Channel) StartTyping() error {
	if !c.IsTextBased() {
		return ErrUnsupported
	}
	return c.client.session.send(models.TypingCommand{Type: models.FrameBeginTyping, Channel: c.ID()})
}

func (c *Channel) StopTyping() error {
	if !c.IsTextBased() {
		return ErrUnsupported
	}
	return c.client.session.send(models.TypingCommand{Type: models.FrameEndTyping, Channel: c.ID()})
}

type ChannelEdit struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	// Icon is an attachment ID from UploadAttachment.
	Icon   *string  `json:"icon,omitempty"`
	NSFW   *bool    `json:"nsfw,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

func (c *Channel) Edit(ctx context.Context, edit ChannelEdit) error {
	if c.IsSavedMessages() || c.IsDM() {
		return ErrUnsupported
	}
	var patch models.Patch
	if err := c.client.api.Patch(ctx, "/channels/"+c.ID(), edit, &patch); err != nil {
		return fmt.Errorf("edit channel: %w", err)
	}
	return c.update(patch, nil)
}

// Delete deletes a server channel, closes a DM or leaves a group.
func (c *Channel) Delete(ctx context.Context, leaveSilently bool) error {
	if c.IsSavedMessages() {
		return ErrUnsupported
	}
	path := "/channels/" + c.ID()
	if c.IsGroup() && leaveSilently {
		path += "?leave_silently=true"
	}
	if err := c.client.api.Delete(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if c.IsDM() {
		return c.update(models.Patch{"active": rawJSON(false)}, nil)
	}
	c.client.Channels.Delete(c.ID())
	return nil
}

func (c *Channel) AddRecipient(ctx context.Context, userID string) error {
	if !c.IsGroup() {
		return ErrUnsupported
	}
	return c.client.api.Put(ctx, "/channels/"+c.ID()+"/recipients/"+userID, nil, nil)
}

func (c *Channel) RemoveRecipient(ctx context.Context, userID string) error {
	if !c.IsGroup() {
		return ErrUnsupported
	}
	return c.client.api.Delete(ctx, "/channels/"+c.ID()+"/recipients/"+userID, nil, nil)
}

// JoinCall returns a voice token for the channel. Connecting with it is up
// to the caller.
func (c *Channel) JoinCall(ctx context.Context) (string, error) {
	if !(c.IsVoice() || c.IsDM() || c.IsGroup()) {
		return "", ErrUnsupported
	}
	cfg := c.client.Configuration()
	if cfg == nil {
		return "", ErrNotConfigured
	}
	if !cfg.Features.Voso.Enabled {
		return "", fmt.Errorf("join call: %w", ErrFeatureDisabled)
	}
	var res struct {
		Token string `json:"token"`
	}
	if err := c.client.api.Do(ctx, http.MethodPost, "/channels/"+c.ID()+"/join_call", nil, &res); err != nil {
		return "", fmt.Errorf("join call: %w", err)
	}
	return res.Token, nil
}

// CreateInvite makes an invite code for a server channel or group.
func (c *Channel) CreateInvite(ctx context.Context) (*models.ServerInvite, error) {
	if !(c.IsText() || c.IsVoice() || c.IsGroup()) {
		return nil, ErrUnsupported
	}
	var inv models.ServerInvite
	if err := c.client.api.Post(ctx, "/channels/"+c.ID()+"/invites", nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

type ChannelManager struct {
	*Manager[*Channel]
}

func newChannelManager(c *Client) *ChannelManager {
	return &ChannelManager{
		Manager: newManager(c, func(data []byte) (*Channel, error) {
			return newChannel(c, data)
		}),
	}
}

// Fetch returns the cached channel or loads it.
func (m *ChannelManager) Fetch(ctx context.Context, id string) (*Channel, error) {
	if ch := m.Get(id); ch != nil {
		return ch, nil
	}
	var raw json.RawMessage
	if err := m.client.api.Get(ctx, "/channels/"+id, &raw); err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", id, err)
	}
	return m.Construct(raw)
}

// FetchWith stores a channel record the caller already has.
func (m *ChannelManager) FetchWith(raw json.RawMessage) (*Channel, error) {
	return m.Construct(raw)
}

type ChannelCreate struct {
	Type        models.ChannelType `json:"type,omitempty"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	NSFW        bool               `json:"nsfw,omitempty"`
}

// Create makes a channel in a server.
func (m *ChannelManager) Create(ctx context.Context, serverID string, data ChannelCreate) (*Channel, error) {
	if data.Type == models.ChannelTypeText {
		data.Type = "Text"
	} else if data.Type == models.ChannelTypeVoice {
		data.Type = "Voice"
	}
	var raw json.RawMessage
	if err := m.client.api.Post(ctx, "/servers/"+serverID+"/channels", data, &raw); err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	ch, err := m.Construct(raw)
	if err != nil {
		return nil, err
	}
	if s := m.client.Servers.Get(serverID); s != nil {
		s.addChannel(ch.ID())
	}
	return ch, nil
}
