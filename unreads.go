package revkit

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/c-pro/geche"
	"github.com/oklog/ulid/v2"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

// Unread is the read state of one channel.
type Unread struct {
	// LastID is the last message read. "0" sorts before every real ID.
	LastID string
	// Mentions are unread messages that mention the logged-in user.
	Mentions []string
}

// UnreadManager tracks read markers per channel. Markers only move forward,
// except through Sync or MarkUnread.
type UnreadManager struct {
	client *Client

	mu      sync.Mutex
	entries *geche.MapCache[string, Unread]
	updates notifier[string]
}

func newUnreadManager(c *Client) *UnreadManager {
	return &UnreadManager{
		client:  c,
		entries: geche.NewMapCache[string, Unread](),
	}
}

// Get returns the entry for a channel.
func (m *UnreadManager) Get(channelID string) (Unread, bool) {
	m.mu.Lock()
	u, err := m.entries.Get(channelID)
	m.mu.Unlock()
	if err != nil {
		return Unread{}, false
	}
	u.Mentions = slices.Clone(u.Mentions)
	return u, true
}

// OnUpdate registers fn to run with the channel ID whenever its entry
// changes. Sync reports an empty ID.
func (m *UnreadManager) OnUpdate(fn func(channelID string)) (remove func()) {
	return m.updates.add(fn)
}

// Sync replaces every entry with the server's state.
func (m *UnreadManager) Sync(ctx context.Context) error {
	var unreads []models.Unread
	if err := m.client.api.Get(ctx, "/sync/unreads", &unreads); err != nil {
		return fmt.Errorf("sync unreads: %w", err)
	}

	entries := geche.NewMapCache[string, Unread]()
	for _, u := range unreads {
		entries.Set(u.ID.Channel, Unread{LastID: u.LastID, Mentions: u.Mentions})
	}
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()

	m.updates.emit("")
	return nil
}

// MarkRead moves the channel's marker to messageID, or to now when
// messageID is empty. A marker already past messageID stays where it is.
// Mentions up to the marker are dropped. With emit set the server is told
// too.
func (m *UnreadManager) MarkRead(ctx context.Context, channelID, messageID string, emit bool) error {
	if messageID == "" {
		messageID = ulid.MustNew(ulid.Timestamp(m.client.clock.Now()), ulid.DefaultEntropy()).String()
	}

	m.mu.Lock()
	u, _ := m.entries.Get(channelID)
	if messageID > u.LastID {
		u.LastID = messageID
	}
	u.Mentions = slices.DeleteFunc(slices.Clone(u.Mentions), func(id string) bool { return id <= u.LastID })
	m.entries.Set(channelID, u)
	m.mu.Unlock()
	m.updates.emit(channelID)

	if emit {
		if err := m.client.api.Put(ctx, "/channels/"+channelID+"/ack/"+messageID, nil, nil); err != nil {
			return fmt.Errorf("ack %s: %w", channelID, err)
		}
	}
	return nil
}

// MarkUnread sets the marker to lastID even if that moves it backwards.
func (m *UnreadManager) MarkUnread(channelID, lastID string) {
	m.mu.Lock()
	u, _ := m.entries.Get(channelID)
	u.LastID = lastID
	m.entries.Set(channelID, u)
	m.mu.Unlock()
	m.updates.emit(channelID)
}

// MarkMention records that msg mentions the logged-in user.
func (m *UnreadManager) MarkMention(msg *Message) {
	channelID := msg.ChannelID()

	m.mu.Lock()
	u, err := m.entries.Get(channelID)
	if err != nil {
		u.LastID = "0"
	}
	if !slices.Contains(u.Mentions, msg.ID()) {
		u.Mentions = append(slices.Clone(u.Mentions), msg.ID())
	}
	m.entries.Set(channelID, u)
	m.mu.Unlock()
	m.updates.emit(channelID)
}

func (m *UnreadManager) Mentions(channelID string) []string {
	u, _ := m.Get(channelID)
	return u.Mentions
}

// IsUnread compares the marker with the channel's last message ID. IDs sort
// by time, so string order is enough.
func (m *UnreadManager) IsUnread(ch *Channel) bool {
	last := ch.LastMessageID()
	if last == "" {
		return false
	}
	u, ok := m.Get(ch.ID())
	if !ok {
		return true
	}
	return u.LastID < last
}

func (m *UnreadManager) clear() {
	m.mu.Lock()
	m.entries = geche.NewMapCache[string, Unread]()
	m.mu.Unlock()
}
