package models

import "encoding/json"

// FrameType is the "type" discriminator of a WebSocket frame.
type FrameType string

// Outbound commands.
const (
	FrameAuthenticate FrameType = "Authenticate"
	FramePing         FrameType = "Ping"
	FrameBeginTyping  FrameType = "BeginTyping"
	FrameEndTyping    FrameType = "EndTyping"
)

// Inbound events.
const (
	FrameBulk                  FrameType = "Bulk"
	FrameError                 FrameType = "Error"
	FrameAuthenticated         FrameType = "Authenticated"
	FrameReady                 FrameType = "Ready"
	FramePong                  FrameType = "Pong"
	FrameMessage               FrameType = "Message"
	FrameMessageUpdate         FrameType = "MessageUpdate"
	FrameMessageAppend         FrameType = "MessageAppend"
	FrameMessageDelete         FrameType = "MessageDelete"
	FrameMessageReact          FrameType = "MessageReact"
	FrameMessageUnreact        FrameType = "MessageUnreact"
	FrameMessageRemoveReaction FrameType = "MessageRemoveReaction"
	FrameBulkMessageDelete     FrameType = "BulkMessageDelete"
	FrameChannelCreate         FrameType = "ChannelCreate"
	FrameChannelUpdate         FrameType = "ChannelUpdate"
	FrameChannelDelete         FrameType = "ChannelDelete"
	FrameChannelGroupJoin      FrameType = "ChannelGroupJoin"
	FrameChannelGroupLeave     FrameType = "ChannelGroupLeave"
	FrameChannelStartTyping    FrameType = "ChannelStartTyping"
	FrameChannelStopTyping     FrameType = "ChannelStopTyping"
	FrameChannelAck            FrameType = "ChannelAck"
	FrameServerCreate          FrameType = "ServerCreate"
	FrameServerUpdate          FrameType = "ServerUpdate"
	FrameServerDelete          FrameType = "ServerDelete"
	FrameServerMemberJoin      FrameType = "ServerMemberJoin"
	FrameServerMemberLeave     FrameType = "ServerMemberLeave"
	FrameServerMemberUpdate    FrameType = "ServerMemberUpdate"
	FrameServerRoleUpdate      FrameType = "ServerRoleUpdate"
	FrameServerRoleDelete      FrameType = "ServerRoleDelete"
	FrameUserUpdate            FrameType = "UserUpdate"
	FrameUserRelationship      FrameType = "UserRelationship"
	FrameEmojiCreate           FrameType = "EmojiCreate"
	FrameEmojiDelete           FrameType = "EmojiDelete"
)

// Patch is a partial record: top-level keys replace the stored ones.
type Patch map[string]json.RawMessage

type AuthenticateCommand struct {
	Type  FrameType `json:"type"`
	Token string    `json:"token"`
}

type PingCommand struct {
	Type FrameType `json:"type"`
	Data int64     `json:"data"`
}

type TypingCommand struct {
	Type    FrameType `json:"type"`
	Channel string    `json:"channel"`
}

type ErrorFrame struct {
	Error string `json:"error"`
}

type ReadyFrame struct {
	Users    []json.RawMessage `json:"users"`
	Servers  []json.RawMessage `json:"servers"`
	Channels []json.RawMessage `json:"channels"`
	Members  []json.RawMessage `json:"members"`
	Emojis   []json.RawMessage `json:"emojis,omitempty"`
}

type PongFrame struct {
	Data int64 `json:"data"`
}

type MessageUpdateFrame struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Data    Patch  `json:"data"`
}

type MessageAppendFrame struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Append  struct {
		Embeds []json.RawMessage `json:"embeds,omitempty"`
	} `json:"append"`
}

type MessageDeleteFrame struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
}

// ReactionFrame is shared by MessageReact, MessageUnreact and
// MessageRemoveReaction.
type ReactionFrame struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id,omitempty"`
	EmojiID   string `json:"emoji_id"`
}

type BulkMessageDeleteFrame struct {
	Channel string   `json:"channel"`
	IDs     []string `json:"ids"`
}

// UpdateFrame is shared by ChannelUpdate, ServerUpdate and UserUpdate.
type UpdateFrame struct {
	ID    string   `json:"id"`
	Data  Patch    `json:"data"`
	Clear []string `json:"clear,omitempty"`
}

// IDFrame is shared by ChannelDelete, ServerDelete and EmojiDelete.
type IDFrame struct {
	ID string `json:"id"`
}

// ChannelUserFrame is shared by group join/leave, typing and server member
// join/leave frames.
type ChannelUserFrame struct {
	ID   string `json:"id"`
	User string `json:"user"`
}

type ChannelAckFrame struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	MessageID string `json:"message_id"`
}

type ServerCreateFrame struct {
	ID       string            `json:"id"`
	Server   json.RawMessage   `json:"server"`
	Channels []json.RawMessage `json:"channels"`
}

type ServerMemberUpdateFrame struct {
	ID    MemberID `json:"id"`
	Data  Patch    `json:"data"`
	Clear []string `json:"clear,omitempty"`
}

type ServerRoleUpdateFrame struct {
	ID     string   `json:"id"`
	RoleID string   `json:"role_id"`
	Data   Patch    `json:"data"`
	Clear  []string `json:"clear,omitempty"`
}

type ServerRoleDeleteFrame struct {
	ID     string `json:"id"`
	RoleID string `json:"role_id"`
}

type UserRelationshipFrame struct {
	ID     string             `json:"id"`
	User   json.RawMessage    `json:"user"`
	Status RelationshipStatus `json:"status"`
}
