package revkit

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"time"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/content"
	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

type MessageKind int

const (
	MessageUser MessageKind = iota
	MessageSystem
)

type Message struct {
	object[models.Message]
}

func (m *Message) Kind() MessageKind {
	if m.Source().System != nil {
		return MessageSystem
	}
	return MessageUser
}

func (m *Message) Content() string { return m.Source().Content }

// CleanContent is the content with any HTML stripped.
func (m *Message) CleanContent() string { return content.Sanitize(m.Content()) }

func (m *Message) AuthorID() string  { return m.Source().Author }
func (m *Message) ChannelID() string { return m.Source().Channel }
func (m *Message) Nonce() string     { return m.Source().Nonce }

// System is nil for user messages.
func (m *Message) System() *models.SystemMessage { return m.Source().System }

func (m *Message) Masquerade() *models.Masquerade { return m.Source().Masquerade }

// Edited is nil when the message was never edited.
func (m *Message) Edited() *time.Time { return m.Source().Edited }

func (m *Message) MentionIDs() []string { return slices.Clone(m.Source().Mentions) }
func (m *Message) ReplyIDs() []string   { return slices.Clone(m.Source().Replies) }
func (m *Message) Embeds() []models.Embed {
	return slices.Clone(m.Source().Embeds)
}

// Reactions maps emoji IDs to the users that reacted with them.
func (m *Message) Reactions() map[string][]string {
	out := make(map[string][]string)
	for k, v := range m.Source().Reactions {
		out[k] = slices.Clone(v)
	}
	return out
}

func (m *Message) Attachments() []*Attachment {
	files := m.Source().Attachments
	out := make([]*Attachment, len(files))
	for i := range files {
		out[i] = newAttachment(m.client, &files[i])
	}
	return out
}

// Author is nil for system messages and for authors not in the cache.
func (m *Message) Author() *User {
	id := m.AuthorID()
	if id == models.DeadID {
		return nil
	}
	return m.client.Users.Get(id)
}

func (m *Message) Channel() *Channel {
	return m.client.Channels.Get(m.ChannelID())
}

// Member is the author's membership in the channel's server.
func (m *Message) Member() *Member {
	ch := m.Channel()
	if ch == nil {
		return nil
	}
	s := ch.Server()
	if s == nil {
		return nil
	}
	return s.Members.Get(m.AuthorID())
}

// MentionsSelf reports whether the logged-in user is mentioned.
func (m *Message) MentionsSelf() bool {
	self := m.client.selfID()
	return self != "" && slices.Contains(m.Source().Mentions, self)
}

func (m *Message) path() string {
	return "/channels/" + m.ChannelID() + "/messages/" + m.ID()
}

type MessageEdit struct {
	Content *string     `json:"content,omitempty"`
	Embeds  []SendEmbed `json:"embeds,omitempty"`
}

func (m *Message) Edit(ctx context.Context, edit MessageEdit) error {
	if edit.Content != nil {
		if err := content.ValidateMessage(*edit.Content, 0, 0); err != nil {
			return err
		}
	}
	var patch models.Patch
	if err := m.client.api.Patch(ctx, m.path(), edit, &patch); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return m.update(patch, nil)
}

func (m *Message) Delete(ctx context.Context) error {
	if err := m.client.api.Delete(ctx, m.path(), nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if ch := m.Channel(); ch != nil && ch.messages != nil {
		ch.messages.Delete(m.ID())
	}
	return nil
}

// Reply sends msg as a reply to m.
func (m *Message) Reply(ctx context.Context, msg SendOptions, mention bool) (*Message, error) {
	ch := m.Channel()
	if ch == nil {
		return nil, ErrNotFound
	}
	msg.Replies = append(msg.Replies, Reply{ID: m.ID(), Mention: mention})
	return ch.Send(ctx, msg)
}

func (m *Message) React(ctx context.Context, emoji string) error {
	return m.client.api.Put(ctx, m.path()+"/reactions/"+url.PathEscape(emoji), nil, nil)
}

func (m *Message) Unreact(ctx context.Context, emoji string) error {
	return m.client.api.Delete(ctx, m.path()+"/reactions/"+url.PathEscape(emoji), nil, nil)
}

// Ack marks the channel read up to this message.
func (m *Message) Ack(ctx context.Context) error {
	return m.client.Unreads.MarkRead(ctx, m.ChannelID(), m.ID(), true)
}

// appendEmbeds splices raw embeds onto the stored array, so fields the
// typed view does not know about survive.
func (m *Message) appendEmbeds(embeds []json.RawMessage) error {
	var all []json.RawMessage
	if raw := m.rawField("embeds"); len(raw) > 0 {
		if err := json.Unmarshal(raw, &all); err != nil {
			return fmt.Errorf("decode embeds: %w", err)
		}
	}
	data, err := json.Marshal(append(all, embeds...))
	if err != nil {
		return err
	}
	return m.update(models.Patch{"embeds": data}, nil)
}

func (m *Message) addReaction(emoji, user string) error {
	return m.mutate([]string{"reactions"}, func(v *models.Message) {
		r := maps.Clone(v.Reactions)
		if r == nil {
			r = make(map[string][]string)
		}
		if !slices.Contains(r[emoji], user) {
			r[emoji] = append(slices.Clone(r[emoji]), user)
		}
		v.Reactions = r
	})
}

func (m *Message) removeReaction(emoji, user string) error {
	return m.mutate([]string{"reactions"}, func(v *models.Message) {
		r := maps.Clone(v.Reactions)
		users := slices.DeleteFunc(slices.Clone(r[emoji]), func(id string) bool { return id == user })
		if len(users) == 0 {
			delete(r, emoji)
		} else {
			r[emoji] = users
		}
		v.Reactions = r
	})
}

func (m *Message) clearReaction(emoji string) error {
	return m.mutate([]string{"reactions"}, func(v *models.Message) {
		r := maps.Clone(v.Reactions)
		delete(r, emoji)
		v.Reactions = r
	})
}

// MessageManager holds the cached messages of one channel.
type MessageManager struct {
	*Manager[*Message]
	channelID string
}

func newMessageManager(c *Client, channelID string) *MessageManager {
	return &MessageManager{
		Manager: newManager(c, func(data []byte) (*Message, error) {
			m := &Message{}
			return m, m.init(c, data)
		}),
		channelID: channelID,
	}
}

func (m *MessageManager) Fetch(ctx context.Context, id string) (*Message, error) {
	if msg := m.Get(id); msg != nil {
		return msg, nil
	}
	var raw json.RawMessage
	if err := m.client.api.Get(ctx, "/channels/"+m.channelID+"/messages/"+id, &raw); err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", id, err)
	}
	return m.Construct(raw)
}

type messagePage struct {
	Messages []json.RawMessage `json:"messages"`
	Users    []json.RawMessage `json:"users"`
	Members  []json.RawMessage `json:"members"`
}

// FetchLatest loads a page of history and caches the messages, their
// authors and the authors' memberships.
func (m *MessageManager) FetchLatest(ctx context.Context, q MessageQuery) ([]*Message, error) {
	var page messagePage
	path := "/channels/" + m.channelID + "/messages?" + q.values().Encode()
	if err := m.client.api.Get(ctx, path, &page); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	for _, u := range page.Users {
		if _, err := m.client.Users.Construct(u); err != nil {
			return nil, err
		}
	}
	for _, raw := range page.Members {
		var mem models.Member
		if err := json.Unmarshal(raw, &mem); err != nil {
			return nil, err
		}
		if s := m.client.Servers.Get(mem.ID.Server); s != nil {
			if _, err := s.Members.Construct(raw); err != nil {
				return nil, err
			}
		}
	}

	out := make([]*Message, 0, len(page.Messages))
	for _, raw := range page.Messages {
		msg, err := m.Construct(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}
