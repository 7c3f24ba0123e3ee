// Package models is the Revolt wire schema: JSON shapes of REST responses
// and of the records carried by WebSocket frames.
package models

import (
	"time"

	"github.com/Revolt-Unofficial-Clients/revkit/permissions"
)

// DeadID is the author of system messages.
const DeadID = "00000000000000000000000000"

type Presence string

const (
	PresenceOnline    Presence = "Online"
	PresenceIdle      Presence = "Idle"
	PresenceFocus     Presence = "Focus"
	PresenceBusy      Presence = "Busy"
	PresenceInvisible Presence = "Invisible"
)

type RelationshipStatus string

const (
	RelationshipNone         RelationshipStatus = "None"
	RelationshipSelf         RelationshipStatus = "User"
	RelationshipFriend       RelationshipStatus = "Friend"
	RelationshipOutgoing     RelationshipStatus = "Outgoing"
	RelationshipIncoming     RelationshipStatus = "Incoming"
	RelationshipBlocked      RelationshipStatus = "Blocked"
	RelationshipBlockedOther RelationshipStatus = "BlockedOther"
)

// File is an object stored in the attachment service.
type File struct {
	ID          string       `json:"_id"`
	Tag         string       `json:"tag"`
	Filename    string       `json:"filename"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	Metadata    FileMetadata `json:"metadata"`
	Deleted     bool         `json:"deleted,omitempty"`
}

type FileMetadata struct {
	Type   string `json:"type"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

func (f File) Key() string { return f.ID }

type UserStatus struct {
	Text     string   `json:"text,omitempty"`
	Presence Presence `json:"presence,omitempty"`
}

type UserProfile struct {
	Content    string `json:"content,omitempty"`
	Background *File  `json:"background,omitempty"`
}

type BotInfo struct {
	Owner string `json:"owner"`
}

type User struct {
	ID            string             `json:"_id"`
	Username      string             `json:"username"`
	Discriminator string             `json:"discriminator,omitempty"`
	DisplayName   string             `json:"display_name,omitempty"`
	Avatar        *File              `json:"avatar,omitempty"`
	Badges        uint64             `json:"badges,omitempty"`
	Status        *UserStatus        `json:"status,omitempty"`
	Profile       *UserProfile       `json:"profile,omitempty"`
	Flags         uint64             `json:"flags,omitempty"`
	Privileged    bool               `json:"privileged,omitempty"`
	Bot           *BotInfo           `json:"bot,omitempty"`
	Relationship  RelationshipStatus `json:"relationship,omitempty"`
	Online        bool               `json:"online,omitempty"`
}

func (u User) Key() string { return u.ID }

type ChannelType string

const (
	ChannelTypeSavedMessages ChannelType = "SavedMessages"
	ChannelTypeDirectMessage ChannelType = "DirectMessage"
	ChannelTypeGroup         ChannelType = "Group"
	ChannelTypeText          ChannelType = "TextChannel"
	ChannelTypeVoice         ChannelType = "VoiceChannel"
)

// Channel is the union of every channel variant. Which fields are
// meaningful depends on ChannelType.
type Channel struct {
	ID          string      `json:"_id"`
	ChannelType ChannelType `json:"channel_type"`

	// SavedMessages
	User string `json:"user,omitempty"`

	// DirectMessage, Group
	Active     bool     `json:"active,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Owner      string   `json:"owner,omitempty"`

	// Group, TextChannel, VoiceChannel
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        *File  `json:"icon,omitempty"`
	NSFW        bool   `json:"nsfw,omitempty"`

	LastMessageID string `json:"last_message_id,omitempty"`

	// Group only.
	Permissions *permissions.Permission `json:"permissions,omitempty"`

	// TextChannel, VoiceChannel
	Server             string                          `json:"server,omitempty"`
	DefaultPermissions *permissions.Override           `json:"default_permissions,omitempty"`
	RolePermissions    map[string]permissions.Override `json:"role_permissions,omitempty"`
}

func (c Channel) Key() string { return c.ID }

type Category struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Channels []string `json:"channels"`
}

func (c Category) Key() string { return c.ID }

type SystemMessageChannels struct {
	UserJoined string `json:"user_joined,omitempty"`
	UserLeft   string `json:"user_left,omitempty"`
	UserKicked string `json:"user_kicked,omitempty"`
	UserBanned string `json:"user_banned,omitempty"`
}

type Role struct {
	ID          string               `json:"_id,omitempty"`
	Name        string               `json:"name"`
	Permissions permissions.Override `json:"permissions"`
	Colour      string               `json:"colour,omitempty"`
	Hoist       bool                 `json:"hoist,omitempty"`
	Rank        int64                `json:"rank,omitempty"`
}

func (r Role) Key() string { return r.ID }

type Server struct {
	ID                 string                 `json:"_id"`
	Owner              string                 `json:"owner"`
	Name               string                 `json:"name"`
	Description        string                 `json:"description,omitempty"`
	Channels           []string               `json:"channels"`
	Categories         []Category             `json:"categories,omitempty"`
	SystemMessages     *SystemMessageChannels `json:"system_messages,omitempty"`
	Roles              map[string]Role        `json:"roles,omitempty"`
	DefaultPermissions permissions.Permission `json:"default_permissions"`
	Icon               *File                  `json:"icon,omitempty"`
	Banner             *File                  `json:"banner,omitempty"`
	Flags              uint64                 `json:"flags,omitempty"`
	NSFW               bool                   `json:"nsfw,omitempty"`
	Analytics          bool                   `json:"analytics,omitempty"`
	Discoverable       bool                   `json:"discoverable,omitempty"`
}

func (s Server) Key() string { return s.ID }

type MemberID struct {
	Server string `json:"server"`
	User   string `json:"user"`
}

type Member struct {
	ID       MemberID   `json:"_id"`
	JoinedAt time.Time  `json:"joined_at"`
	Nickname string     `json:"nickname,omitempty"`
	Avatar   *File      `json:"avatar,omitempty"`
	Roles    []string   `json:"roles,omitempty"`
	Timeout  *time.Time `json:"timeout,omitempty"`
}

// Key is the user ID; members are stored per server.
func (m Member) Key() string { return m.ID.User }

type Masquerade struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Colour string `json:"colour,omitempty"`
}

type SystemMessageType string

const (
	SystemText                      SystemMessageType = "text"
	SystemUserAdded                 SystemMessageType = "user_added"
	SystemUserRemove                SystemMessageType = "user_remove"
	SystemUserJoined                SystemMessageType = "user_joined"
	SystemUserLeft                  SystemMessageType = "user_left"
	SystemUserKicked                SystemMessageType = "user_kicked"
	SystemUserBanned                SystemMessageType = "user_banned"
	SystemChannelRenamed            SystemMessageType = "channel_renamed"
	SystemChannelDescriptionChanged SystemMessageType = "channel_description_changed"
	SystemChannelIconChanged        SystemMessageType = "channel_icon_changed"
	SystemChannelOwnershipChanged   SystemMessageType = "channel_ownership_changed"
)

type SystemMessage struct {
	Type    SystemMessageType `json:"type"`
	ID      string            `json:"id,omitempty"`
	By      string            `json:"by,omitempty"`
	Name    string            `json:"name,omitempty"`
	From    string            `json:"from,omitempty"`
	To      string            `json:"to,omitempty"`
	Content string            `json:"content,omitempty"`
}

// Actor returns the user a system message is about, if any.
func (s SystemMessage) Actor() string {
	switch s.Type {
	case SystemUserAdded, SystemUserRemove,
		SystemChannelRenamed, SystemChannelDescriptionChanged, SystemChannelIconChanged:
		return s.By
	case SystemUserJoined, SystemUserLeft, SystemUserKicked, SystemUserBanned:
		return s.ID
	case SystemChannelOwnershipChanged:
		return s.To
	}
	return ""
}

type EmbedMedia struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Size   string `json:"size,omitempty"`
}

type Embed struct {
	Type        string      `json:"type"`
	URL         string      `json:"url,omitempty"`
	OriginalURL string      `json:"original_url,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	IconURL     string      `json:"icon_url,omitempty"`
	SiteName    string      `json:"site_name,omitempty"`
	Colour      string      `json:"colour,omitempty"`
	Image       *EmbedMedia `json:"image,omitempty"`
	Video       *EmbedMedia `json:"video,omitempty"`
	Media       *File       `json:"media,omitempty"`
	Width       int         `json:"width,omitempty"`
	Height      int         `json:"height,omitempty"`
}

type Message struct {
	ID          string              `json:"_id"`
	Nonce       string              `json:"nonce,omitempty"`
	Channel     string              `json:"channel"`
	Author      string              `json:"author"`
	Content     string              `json:"content,omitempty"`
	System      *SystemMessage      `json:"system,omitempty"`
	Attachments []File              `json:"attachments,omitempty"`
	Edited      *time.Time          `json:"edited,omitempty"`
	Embeds      []Embed             `json:"embeds,omitempty"`
	Mentions    []string            `json:"mentions,omitempty"`
	Replies     []string            `json:"replies,omitempty"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
	Masquerade  *Masquerade         `json:"masquerade,omitempty"`
}

func (m Message) Key() string { return m.ID }

type EmojiParent struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

type Emoji struct {
	ID        string      `json:"_id"`
	Parent    EmojiParent `json:"parent"`
	CreatorID string      `json:"creator_id"`
	Name      string      `json:"name"`
	Animated  bool        `json:"animated,omitempty"`
	NSFW      bool        `json:"nsfw,omitempty"`
}

func (e Emoji) Key() string { return e.ID }

type UnreadID struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
}

type Unread struct {
	ID       UnreadID `json:"_id"`
	LastID   string   `json:"last_id,omitempty"`
	Mentions []string `json:"mentions,omitempty"`
}

type Invite struct {
	Type               string `json:"type"`
	Code               string `json:"code"`
	ServerID           string `json:"server_id,omitempty"`
	ServerName         string `json:"server_name,omitempty"`
	ServerIcon         *File  `json:"server_icon,omitempty"`
	ServerBanner       *File  `json:"server_banner,omitempty"`
	ChannelID          string `json:"channel_id"`
	ChannelName        string `json:"channel_name"`
	ChannelDescription string `json:"channel_description,omitempty"`
	UserName           string `json:"user_name"`
	UserAvatar         *File  `json:"user_avatar,omitempty"`
	MemberCount        int    `json:"member_count,omitempty"`
}

// ServerInvite is an invite as listed by a server.
type ServerInvite struct {
	Type    string `json:"type"`
	ID      string `json:"_id"`
	Server  string `json:"server"`
	Creator string `json:"creator"`
	Channel string `json:"channel"`
}

// InviteJoin is the response to accepting an invite.
type InviteJoin struct {
	Type     string    `json:"type"`
	Channel  *Channel  `json:"channel,omitempty"`
	Server   *Server   `json:"server,omitempty"`
	Channels []Channel `json:"channels,omitempty"`
}

type BannedUser struct {
	ID            string `json:"_id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        *File  `json:"avatar,omitempty"`
}

type Ban struct {
	ID     MemberID `json:"_id"`
	Reason string   `json:"reason,omitempty"`
}

type BanList struct {
	Users []BannedUser `json:"users"`
	Bans  []Ban        `json:"bans"`
}

type Mutuals struct {
	Users   []string `json:"users"`
	Servers []string `json:"servers"`
}
