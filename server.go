package revkit

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
	"github.com/Revolt-Unofficial-Clients/revkit/permissions"
)

// DefaultCategoryID is the category OrderedChannels puts uncategorized
// channels in.
const DefaultCategoryID = "default"

type Server struct {
	object[models.Server]

	Members *MemberManager
	Roles   *RoleManager
}

func newServer(c *Client, data []byte) (*Server, error) {
	s := &Server{}
	if err := s.init(c, data); err != nil {
		return nil, err
	}
	s.Members = newMemberManager(c, s.ID())
	s.Roles = newRoleManager(c, s)

	// Registered before the manager subscribes, so roles are in sync by the
	// time anyone hears about the update.
	s.OnUpdate(s.Roles.resync)
	s.Roles.resync()
	return s, nil
}

func (s *Server) Name() string        { return s.Source().Name }
func (s *Server) Description() string { return s.Source().Description }
func (s *Server) OwnerID() string     { return s.Source().Owner }
func (s *Server) NSFW() bool          { return s.Source().NSFW }
func (s *Server) Discoverable() bool  { return s.Source().Discoverable }

func (s *Server) Owner() *User { return s.client.Users.Get(s.OwnerID()) }

func (s *Server) Flags() permissions.BitField[permissions.ServerFlag] {
	return permissions.ServerFlags(s.Source().Flags)
}

func (s *Server) Icon() *Attachment   { return newAttachment(s.client, s.Source().Icon) }
func (s *Server) Banner() *Attachment { return newAttachment(s.client, s.Source().Banner) }

func (s *Server) DefaultPermissions() permissions.Permission {
	return s.Source().DefaultPermissions
}

func (s *Server) SystemMessages() *models.SystemMessageChannels {
	return s.Source().SystemMessages
}

func (s *Server) ChannelIDs() []string { return slices.Clone(s.Source().Channels) }

// Channels returns the server's cached channels in the server's order.
func (s *Server) Channels() []*Channel {
	var out []*Channel
	for _, id := range s.Source().Channels {
		if ch := s.client.Channels.Get(id); ch != nil {
			out = append(out, ch)
		}
	}
	return out
}

// Emojis returns the server's custom emoji.
func (s *Server) Emojis() []*Emoji {
	id := s.ID()
	return s.client.Emojis.Filter(func(e *Emoji) bool { return e.ParentID() == id })
}

// Me is the logged-in user's membership.
func (s *Server) Me() *Member {
	return s.Members.Self()
}

func (s *Server) addChannel(id string) {
	ids := s.Source().Channels
	if slices.Contains(ids, id) {
		return
	}
	_ = s.update(models.Patch{"channels": rawJSON(append(slices.Clone(ids), id))}, nil)
}

func (s *Server) removeChannel(id string) {
	ids := s.Source().Channels
	i := slices.Index(ids, id)
	if i < 0 {
		return
	}
	_ = s.update(models.Patch{"channels": rawJSON(slices.Delete(slices.Clone(ids), i, i+1))}, nil)
}

// mergeRole writes a role into the server's role map: fields named in clear
// are removed, then data is merged over the stored role. The role manager
// picks the change up through the server update.
func (s *Server) mergeRole(id string, data map[string]json.RawMessage, clear []string) error {
	roles, err := s.roleMap()
	if err != nil {
		return err
	}
	rec := roles[id]
	if rec == nil {
		rec = make(map[string]json.RawMessage)
	}
	for _, name := range clear {
		if err := clearPath(rec, models.FieldPath(name)); err != nil {
			return err
		}
	}
	maps.Copy(rec, data)
	delete(rec, "_id")
	roles[id] = rec
	return s.update(models.Patch{"roles": rawJSON(roles)}, nil)
}

func (s *Server) deleteRole(id string) error {
	roles, err := s.roleMap()
	if err != nil {
		return err
	}
	if _, ok := roles[id]; !ok {
		return nil
	}
	delete(roles, id)
	return s.update(models.Patch{"roles": rawJSON(roles)}, nil)
}

func (s *Server) roleMap() (map[string]map[string]json.RawMessage, error) {
	roles := make(map[string]map[string]json.RawMessage)
	if raw := s.rawField("roles"); raw != nil && string(raw) != "null" {
		if err := json.Unmarshal(raw, &roles); err != nil {
			return nil, fmt.Errorf("decode role map: %w", err)
		}
	}
	return roles, nil
}

type Category struct {
	server     *Server
	id         string
	title      string
	channelIDs []string
}

func (c *Category) ID() string           { return c.id }
func (c *Category) Title() string        { return c.title }
func (c *Category) ChannelIDs() []string { return slices.Clone(c.channelIDs) }
func (c *Category) Server() *Server      { return c.server }

// CreatedAt is the epoch for categories with non-ULID IDs, including the
// default one.
func (c *Category) CreatedAt() time.Time { return idTime(c.id) }

func (c *Category) Channels() []*Channel {
	var out []*Channel
	for _, id := range c.channelIDs {
		if ch := c.server.client.Channels.Get(id); ch != nil {
			out = append(out, ch)
		}
	}
	return out
}

// Categories returns the categories as stored on the server.
func (s *Server) Categories() []*Category {
	cats := s.Source().Categories
	out := make([]*Category, len(cats))
	for i, c := range cats {
		out[i] = &Category{server: s, id: c.ID, title: c.Title, channelIDs: slices.Clone(c.Channels)}
	}
	return out
}

// OrderedChannels groups the cached channels by category. Each channel
// appears once. Channels in no category go to a "default" category, which
// is placed first unless the server defines one itself.
func (s *Server) OrderedChannels() []*Category {
	uncategorized := make(map[string]bool)
	var order []string
	for _, ch := range s.Channels() {
		uncategorized[ch.ID()] = true
		order = append(order, ch.ID())
	}

	var cats []*Category
	var def *Category
	for _, c := range s.Source().Categories {
		cat := &Category{server: s, id: c.ID, title: c.Title}
		for _, id := range c.Channels {
			if uncategorized[id] {
				delete(uncategorized, id)
				cat.channelIDs = append(cat.channelIDs, id)
			}
		}
		if cat.id == DefaultCategoryID {
			if len(cat.channelIDs) == 0 {
				continue
			}
			def = cat
		}
		cats = append(cats, cat)
	}

	var rest []string
	for _, id := range order {
		if uncategorized[id] {
			rest = append(rest, id)
		}
	}
	if len(rest) == 0 {
		return cats
	}
	if def != nil {
		def.channelIDs = append(def.channelIDs, rest...)
		return cats
	}
	def = &Category{server: s, id: DefaultCategoryID, title: "Default", channelIDs: rest}
	return append([]*Category{def}, cats...)
}

type ServerEdit struct {
	Name           *string                       `json:"name,omitempty"`
	Description    *string                       `json:"description,omitempty"`
	Icon           *string                       `json:"icon,omitempty"`
	Banner         *string                       `json:"banner,omitempty"`
	Categories     []models.Category             `json:"categories,omitempty"`
	SystemMessages *models.SystemMessageChannels `json:"system_messages,omitempty"`
	Discoverable   *bool                         `json:"discoverable,omitempty"`
	Analytics      *bool                         `json:"analytics,omitempty"`
	Remove         []string                      `json:"remove,omitempty"`
}

func (s *Server) Edit(ctx context.Context, edit ServerEdit) error {
	var patch models.Patch
	if err := s.client.api.Patch(ctx, "/servers/"+s.ID(), edit, &patch); err != nil {
		return fmt.Errorf("edit server: %w", err)
	}
	return s.update(patch, nil)
}

// Leave leaves the server, or deletes it when the logged-in user owns it.
func (s *Server) Leave(ctx context.Context, silent bool) error {
	path := "/servers/" + s.ID()
	if silent {
		path += "?leave_silently=true"
	}
	if err := s.client.api.Delete(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("leave server: %w", err)
	}
	s.client.Servers.remove(s.ID())
	return nil
}

// SetRolePermissions sets the allow/deny override of a role.
func (s *Server) SetRolePermissions(ctx context.Context, roleID string, o permissions.Override) error {
	body := map[string]any{"permissions": map[string]permissions.Permission{"allow": o.Allow, "deny": o.Deny}}
	return s.client.api.Put(ctx, "/servers/"+s.ID()+"/permissions/"+roleID, body, nil)
}

func (s *Server) SetDefaultPermissions(ctx context.Context, p permissions.Permission) error {
	body := map[string]any{"permissions": p}
	return s.client.api.Put(ctx, "/servers/"+s.ID()+"/permissions/default", body, nil)
}

func (s *Server) FetchInvites(ctx context.Context) ([]models.ServerInvite, error) {
	var invites []models.ServerInvite
	if err := s.client.api.Get(ctx, "/servers/"+s.ID()+"/invites", &invites); err != nil {
		return nil, err
	}
	return invites, nil
}

func (s *Server) CreateChannel(ctx context.Context, data ChannelCreate) (*Channel, error) {
	return s.client.Channels.Create(ctx, s.ID(), data)
}

type ServerManager struct {
	*Manager[*Server]
}

func newServerManager(c *Client) *ServerManager {
	return &ServerManager{
		Manager: newManager(c, func(data []byte) (*Server, error) {
			return newServer(c, data)
		}),
	}
}

// Fetch returns the cached server unless force is set. A fetched server's
// channels are loaded too; channels that fail to load are skipped.
func (m *ServerManager) Fetch(ctx context.Context, id string, force bool) (*Server, error) {
	if !force {
		if s := m.Get(id); s != nil {
			return s, nil
		}
	}
	var raw json.RawMessage
	if err := m.client.api.Get(ctx, "/servers/"+id, &raw); err != nil {
		return nil, fmt.Errorf("fetch server %s: %w", id, err)
	}
	return m.FetchWith(ctx, raw, nil)
}

// FetchWith stores a server record the caller already has, along with the
// channels that came with it. Channels of the server that are neither
// given nor cached are fetched concurrently.
func (m *ServerManager) FetchWith(ctx context.Context, raw json.RawMessage, channels []json.RawMessage) (*Server, error) {
	for _, ch := range channels {
		if _, err := m.client.Channels.Construct(ch); err != nil {
			return nil, err
		}
	}

	var rec models.Server
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode server: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range rec.Channels {
		if m.client.Channels.Has(id) {
			continue
		}
		g.Go(func() error {
			if _, err := m.client.Channels.Fetch(gctx, id); err != nil {
				m.client.logger.Warn("skipping server channel", "server", rec.ID, "channel", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return m.Construct(raw)
}

// remove deletes a server along with its members and roles.
func (m *ServerManager) remove(id string) *Server {
	s := m.Get(id)
	if s == nil {
		return nil
	}
	for _, ch := range s.Channels() {
		m.client.Channels.Delete(ch.ID())
	}
	s.Members.clear()
	s.Roles.clear()
	m.Delete(id)
	return s
}

type ServerCreate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	NSFW        bool   `json:"nsfw,omitempty"`
}

func (c *Client) CreateServer(ctx context.Context, data ServerCreate) (*Server, error) {
	var res struct {
		Server   json.RawMessage   `json:"server"`
		Channels []json.RawMessage `json:"channels"`
	}
	if err := c.api.Post(ctx, "/servers/create", data, &res); err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	return c.Servers.FetchWith(ctx, res.Server, res.Channels)
}
