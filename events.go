package revkit

import (
	"encoding/json"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

// Event is something the client reports to handlers registered with
// AddHandler. Switch on the concrete type:
//
//	c.AddHandler(func(e revkit.Event) {
//		switch e := e.(type) {
//		case *revkit.MessageEvent:
//			...
//		}
//	})
type Event interface {
	isEvent()
}

// Session lifecycle.
type (
	ConnectingEvent struct{}
	ConnectedEvent  struct{}
	ReadyEvent      struct{}
	// DisconnectedEvent carries the error that closed the socket, nil after
	// Disconnect.
	DisconnectedEvent struct{ Err error }
	DestroyedEvent    struct{}
	// PacketEvent is every inbound frame, before it is applied.
	PacketEvent struct {
		Type models.FrameType
		Raw  json.RawMessage
	}
)

// Messages.
type (
	MessageEvent       struct{ Message *Message }
	MessageUpdateEvent struct{ Message *Message }
	// MessageDeleteEvent has a nil Message when it was not cached.
	MessageDeleteEvent struct {
		ID        string
		ChannelID string
		Message   *Message
	}
)

// Channels.
type (
	ChannelCreateEvent struct{ Channel *Channel }
	ChannelUpdateEvent struct{ Channel *Channel }
	ChannelDeleteEvent struct {
		ID      string
		Channel *Channel
	}
	ChannelStartTypingEvent struct {
		Channel *Channel
		UserID  string
	}
	ChannelStopTypingEvent struct {
		Channel *Channel
		UserID  string
	}
	GroupMemberJoinEvent struct {
		Group *Channel
		User  *User
	}
	GroupMemberLeaveEvent struct {
		Group  *Channel
		UserID string
	}
	// GroupExitedEvent means the logged-in user left or was removed.
	GroupExitedEvent struct {
		ID    string
		Group *Channel
	}
)

// Servers.
type (
	ServerCreateEvent struct{ Server *Server }
	ServerUpdateEvent struct{ Server *Server }
	// ServerExitedEvent means the server was deleted or the logged-in user
	// left, was kicked or was banned.
	ServerExitedEvent struct {
		ID     string
		Server *Server
	}
	ServerMemberJoinEvent   struct{ Member *Member }
	ServerMemberUpdateEvent struct{ Member *Member }
	ServerMemberLeaveEvent  struct {
		Server *Server
		UserID string
		User   *User
	}
	ServerRoleCreateEvent struct{ Role *Role }
	ServerRoleUpdateEvent struct{ Role *Role }
	ServerRoleDeleteEvent struct {
		ServerID string
		RoleID   string
		Role     *Role
	}
)

// Emoji and users.
type (
	EmojiCreateEvent struct{ Emoji *Emoji }
	EmojiDeleteEvent struct {
		ID    string
		Emoji *Emoji
	}
	UserUpdateEvent             struct{ User *User }
	UserRelationshipUpdateEvent struct{ User *User }
)

func (*ConnectingEvent) isEvent()             {}
func (*ConnectedEvent) isEvent()              {}
func (*ReadyEvent) isEvent()                  {}
func (*DisconnectedEvent) isEvent()           {}
func (*DestroyedEvent) isEvent()              {}
func (*PacketEvent) isEvent()                 {}
func (*MessageEvent) isEvent()                {}
func (*MessageUpdateEvent) isEvent()          {}
func (*MessageDeleteEvent) isEvent()          {}
func (*ChannelCreateEvent) isEvent()          {}
func (*ChannelUpdateEvent) isEvent()          {}
func (*ChannelDeleteEvent) isEvent()          {}
func (*ChannelStartTypingEvent) isEvent()     {}
func (*ChannelStopTypingEvent) isEvent()      {}
func (*GroupMemberJoinEvent) isEvent()        {}
func (*GroupMemberLeaveEvent) isEvent()       {}
func (*GroupExitedEvent) isEvent()            {}
func (*ServerCreateEvent) isEvent()           {}
func (*ServerUpdateEvent) isEvent()           {}
func (*ServerExitedEvent) isEvent()           {}
func (*ServerMemberJoinEvent) isEvent()       {}
func (*ServerMemberUpdateEvent) isEvent()     {}
func (*ServerMemberLeaveEvent) isEvent()      {}
func (*ServerRoleCreateEvent) isEvent()       {}
func (*ServerRoleUpdateEvent) isEvent()       {}
func (*ServerRoleDeleteEvent) isEvent()       {}
func (*EmojiCreateEvent) isEvent()            {}
func (*EmojiDeleteEvent) isEvent()            {}
func (*UserUpdateEvent) isEvent()             {}
func (*UserRelationshipUpdateEvent) isEvent() {}

// AddHandler registers fn for every client event. Events are delivered on
// the frame processing goroutine, so fn should not block for long.
func (c *Client) AddHandler(fn func(Event)) (remove func()) {
	return c.events.add(fn)
}

func (c *Client) emit(e Event) {
	c.events.emit(e)
}
