package revkit

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/content"
	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

type Emoji struct {
	object[models.Emoji]
}

func (e *Emoji) Name() string      { return e.Source().Name }
func (e *Emoji) Animated() bool    { return e.Source().Animated }
func (e *Emoji) NSFW() bool        { return e.Source().NSFW }
func (e *Emoji) CreatorID() string { return e.Source().CreatorID }

func (e *Emoji) Creator() *User { return e.client.Users.Get(e.CreatorID()) }

// ParentID is the owning server, empty for emoji not owned by a server.
func (e *Emoji) ParentID() string {
	p := e.Source().Parent
	if p.Type != "Server" {
		return ""
	}
	return p.ID
}

func (e *Emoji) Parent() *Server {
	id := e.ParentID()
	if id == "" {
		return nil
	}
	return e.client.Servers.Get(id)
}

// ImageURL is empty when the attachment service is disabled.
func (e *Emoji) ImageURL() string {
	cfg := e.client.Configuration()
	if cfg == nil || !cfg.Features.Autumn.Enabled {
		return ""
	}
	u := fmt.Sprintf("%s/emojis/%s", cfg.Features.Autumn.URL, e.ID())
	if !e.Animated() {
		u += "?max_side=128"
	}
	return u
}

func (e *Emoji) Delete(ctx context.Context) error {
	if err := e.client.api.Delete(ctx, "/custom/emoji/"+e.ID(), nil, nil); err != nil {
		return fmt.Errorf("delete emoji: %w", err)
	}
	e.client.Emojis.Delete(e.ID())
	return nil
}

type EmojiManager struct {
	*Manager[*Emoji]

	orderMu sync.Mutex
	ordered []*Emoji
}

func newEmojiManager(c *Client) *EmojiManager {
	m := &EmojiManager{
		Manager: newManager(c, func(data []byte) (*Emoji, error) {
			e := &Emoji{}
			return e, e.init(c, data)
		}),
	}
	m.OnUpdate(func(*Emoji) { m.invalidate() })
	return m
}

// Ordered returns the emoji by creation time. The order is computed on first
// use and cached until the collection changes.
func (m *EmojiManager) Ordered() []*Emoji {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()
	if m.ordered == nil {
		m.ordered = m.Sort(func(a, b *Emoji) int { return a.CreatedAt().Compare(b.CreatedAt()) })
		if m.ordered == nil {
			m.ordered = []*Emoji{}
		}
	}
	return slices.Clone(m.ordered)
}

func (m *EmojiManager) invalidate() {
	m.orderMu.Lock()
	m.ordered = nil
	m.orderMu.Unlock()
}

func (m *EmojiManager) clear() {
	m.Manager.clear()
	m.invalidate()
}

func (m *EmojiManager) Fetch(ctx context.Context, id string, force bool) (*Emoji, error) {
	if !force {
		if e := m.Get(id); e != nil {
			return e, nil
		}
	}
	var raw json.RawMessage
	if err := m.client.api.Get(ctx, "/custom/emoji/"+id, &raw); err != nil {
		return nil, fmt.Errorf("fetch emoji %s: %w", id, err)
	}
	return m.Construct(raw)
}

// Create turns an uploaded file into a server emoji. The file must be in
// the emojis bucket.
func (m *EmojiManager) Create(ctx context.Context, serverID string, file *Attachment, name string) (*Emoji, error) {
	if file == nil || file.Bucket() != BucketEmojis {
		return nil, fmt.Errorf("create emoji: attachment is not in the %s bucket", BucketEmojis)
	}
	if err := content.ValidateEmojiName(name); err != nil {
		return nil, err
	}
	body := map[string]any{
		"name":   name,
		"parent": models.EmojiParent{Type: "Server", ID: serverID},
	}
	var raw json.RawMessage
	if err := m.client.api.Put(ctx, "/custom/emoji/"+file.ID(), body, &raw); err != nil {
		return nil, fmt.Errorf("create emoji: %w", err)
	}
	return m.Construct(raw)
}
