package revkit

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
	"github.com/Revolt-Unofficial-Clients/revkit/permissions"
)

type User struct {
	object[models.User]
}

func (u *User) Username() string { return u.Source().Username }

// DisplayName falls back to the username.
func (u *User) DisplayName() string {
	s := u.Source()
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Username
}

func (u *User) Discriminator() string { return u.Source().Discriminator }

// Tag is username#discriminator.
func (u *User) Tag() string {
	s := u.Source()
	if s.Discriminator == "" {
		return s.Username
	}
	return s.Username + "#" + s.Discriminator
}

func (u *User) Online() bool                                    { return u.Source().Online }
func (u *User) Privileged() bool                                { return u.Source().Privileged }
func (u *User) Relationship() models.RelationshipStatus         { return u.Source().Relationship }
func (u *User) Badges() permissions.BitField[permissions.Badge] { return permissions.Badges(u.Source().Badges) }

func (u *User) Flags() permissions.BitField[permissions.UserFlag] {
	return permissions.UserFlags(u.Source().Flags)
}

// Presence is Invisible for users that are offline.
func (u *User) Presence() models.Presence {
	s := u.Source()
	if !s.Online || s.Status == nil || s.Status.Presence == "" {
		return models.PresenceInvisible
	}
	return s.Status.Presence
}

func (u *User) StatusText() string {
	if st := u.Source().Status; st != nil {
		return st.Text
	}
	return ""
}

func (u *User) IsBot() bool { return u.Source().Bot != nil }

func (u *User) BotOwnerID() string {
	if b := u.Source().Bot; b != nil {
		return b.Owner
	}
	return ""
}

// BotOwner returns the cached owner of a bot account.
func (u *User) BotOwner() *User {
	id := u.BotOwnerID()
	if id == "" {
		return nil
	}
	return u.client.Users.Get(id)
}

func (u *User) Avatar() *Attachment {
	return newAttachment(u.client, u.Source().Avatar)
}

// AvatarURL returns the avatar URL, or the default avatar when the user has
// none or the attachment service is disabled.
func (u *User) AvatarURL(opts *URLOptions) string {
	fallback := u.client.Users.DefaultAvatarURL(u.ID())
	var o URLOptions
	if opts != nil {
		o = *opts
	}
	if o.Fallback == "" {
		o.Fallback = fallback
	}
	if a := u.Avatar(); a != nil {
		return a.URL(&o)
	}
	return o.Fallback
}

// PermissionsAgainst is what the logged-in user may do towards u.
func (u *User) PermissionsAgainst() permissions.UserPermission {
	var p permissions.UserPermission
	switch u.Relationship() {
	case models.RelationshipFriend, models.RelationshipSelf:
		return permissions.UserPermissionAll
	case models.RelationshipBlocked, models.RelationshipBlockedOther:
		return permissions.UserAccess
	case models.RelationshipIncoming, models.RelationshipOutgoing:
		p = permissions.UserAccess
	}

	if u.sharesSpace() {
		if self := u.client.User(); u.IsBot() || (self != nil && self.IsBot()) {
			p |= permissions.UserSendMessage
		}
		p |= permissions.UserAccess | permissions.UserViewProfile
	}
	return p
}

func (u *User) sharesSpace() bool {
	id := u.ID()
	ch := u.client.Channels.Find(func(c *Channel) bool {
		return (c.IsDM() || c.IsGroup()) && slices.Contains(c.RecipientIDs(), id)
	})
	if ch != nil {
		return true
	}
	srv := u.client.Servers.Find(func(s *Server) bool {
		return s.Members.Has(id)
	})
	return srv != nil
}

// AddFriend sends a friend request.
func (u *User) AddFriend(ctx context.Context) error {
	var res json.RawMessage
	if err := u.client.api.Post(ctx, "/users/friend", map[string]string{"username": u.Username()}, &res); err != nil {
		return err
	}
	_, err := u.client.Users.Construct(res)
	return err
}

func (u *User) RemoveFriend(ctx context.Context) error {
	return u.relationshipCall(ctx, "DELETE", "/users/"+u.ID()+"/friend")
}

func (u *User) Block(ctx context.Context) error {
	return u.relationshipCall(ctx, "PUT", "/users/"+u.ID()+"/block")
}

func (u *User) Unblock(ctx context.Context) error {
	return u.relationshipCall(ctx, "DELETE", "/users/"+u.ID()+"/block")
}

func (u *User) relationshipCall(ctx context.Context, method, path string) error {
	var res json.RawMessage
	if err := u.client.api.Do(ctx, method, path, nil, &res); err != nil {
		return err
	}
	_, err := u.client.Users.Construct(res)
	return err
}

// OpenDM returns the direct message channel with u, opening it if needed.
func (u *User) OpenDM(ctx context.Context) (*Channel, error) {
	id := u.ID()
	dm := u.client.Channels.Find(func(c *Channel) bool {
		return c.IsDM() && c.RecipientID() == id
	})
	if dm == nil {
		var raw json.RawMessage
		if err := u.client.api.Get(ctx, "/users/"+id+"/dm", &raw); err != nil {
			return nil, err
		}
		var err error
		if dm, err = u.client.Channels.FetchWith(raw); err != nil {
			return nil, err
		}
	}
	if err := dm.update(models.Patch{"active": rawJSON(true)}, nil); err != nil {
		return nil, err
	}
	return dm, nil
}

type Profile struct {
	Bio        string
	Background *Attachment
}

func (u *User) FetchProfile(ctx context.Context) (*Profile, error) {
	var p models.UserProfile
	if err := u.client.api.Get(ctx, "/users/"+u.ID()+"/profile", &p); err != nil {
		return nil, err
	}
	return &Profile{Bio: p.Content, Background: newAttachment(u.client, p.Background)}, nil
}

// FetchMutual returns the IDs of mutual friends and servers.
func (u *User) FetchMutual(ctx context.Context) (*models.Mutuals, error) {
	var m models.Mutuals
	if err := u.client.api.Get(ctx, "/users/"+u.ID()+"/mutual", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

type UserManager struct {
	*Manager[*User]

	mu     sync.RWMutex
	selfID string
}

func newUserManager(c *Client) *UserManager {
	return &UserManager{
		Manager: newManager(c, func(data []byte) (*User, error) {
			u := &User{}
			return u, u.init(c, data)
		}),
	}
}

// Construct upserts a user record and remembers the logged-in user.
func (m *UserManager) Construct(data json.RawMessage) (*User, error) {
	u, err := m.Manager.Construct(data)
	if err != nil {
		return nil, err
	}
	if u.Relationship() == models.RelationshipSelf {
		m.mu.Lock()
		m.selfID = u.ID()
		m.mu.Unlock()
	}
	return u, nil
}

// Self returns the logged-in user once it was seen.
func (m *UserManager) Self() *User {
	m.mu.RLock()
	id := m.selfID
	m.mu.RUnlock()
	if id == "" {
		return nil
	}
	return m.Get(id)
}

// Fetch returns the cached user unless force is set or it is not cached.
// Fetching "@me" marks the result as the logged-in user.
func (m *UserManager) Fetch(ctx context.Context, id string, force bool) (*User, error) {
	if !force {
		if id == "@me" {
			if u := m.Self(); u != nil {
				return u, nil
			}
		} else if u := m.Get(id); u != nil {
			return u, nil
		}
	}

	var rec map[string]json.RawMessage
	if err := m.client.api.Get(ctx, "/users/"+id, &rec); err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	if id == "@me" {
		rec["relationship"] = rawJSON(models.RelationshipSelf)
	}
	return m.Construct(rawJSON(rec))
}

func (m *UserManager) DefaultAvatarURL(id string) string {
	return fmt.Sprintf("%s/users/%s/default_avatar", m.client.api.BaseURL(), id)
}

func (m *UserManager) clear() {
	m.Manager.clear()
	m.mu.Lock()
	m.selfID = ""
	m.mu.Unlock()
}
