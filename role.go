package revkit

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
	"github.com/Revolt-Unofficial-Clients/revkit/permissions"
)

// Role is a server role. Roles are projected from the server's role map and
// kept in step with it.
type Role struct {
	object[models.Role]
	serverID string
}

func (r *Role) Name() string   { return r.Source().Name }
func (r *Role) Colour() string { return r.Source().Colour }
func (r *Role) Hoist() bool    { return r.Source().Hoist }

// Rank is the role's precedence; lower ranks higher.
func (r *Role) Rank() int64 { return r.Source().Rank }

func (r *Role) Permissions() permissions.Override { return r.Source().Permissions }

func (r *Role) ServerID() string { return r.serverID }
func (r *Role) Server() *Server  { return r.client.Servers.Get(r.serverID) }

type RoleEdit struct {
	Name   *string  `json:"name,omitempty"`
	Colour *string  `json:"colour,omitempty"`
	Hoist  *bool    `json:"hoist,omitempty"`
	Rank   *int64   `json:"rank,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

// Edit changes the role. The local copy follows once the server's role map
// is updated by the event stream.
func (r *Role) Edit(ctx context.Context, edit RoleEdit) error {
	return r.client.api.Patch(ctx, "/servers/"+r.serverID+"/roles/"+r.ID(), edit, nil)
}

func (r *Role) Delete(ctx context.Context) error {
	return r.client.api.Delete(ctx, "/servers/"+r.serverID+"/roles/"+r.ID(), nil, nil)
}

func (r *Role) SetPermissions(ctx context.Context, o permissions.Override) error {
	s := r.Server()
	if s == nil {
		return ErrNotFound
	}
	return s.SetRolePermissions(ctx, r.ID(), o)
}

// RoleManager holds the roles of one server. It is derived state: every
// server update rebuilds it to match the server's role map.
type RoleManager struct {
	*Manager[*Role]
	server *Server

	orderMu sync.Mutex
	ordered []*Role
}

func newRoleManager(c *Client, s *Server) *RoleManager {
	m := &RoleManager{server: s}
	m.Manager = newManager(c, func(data []byte) (*Role, error) {
		r := &Role{serverID: s.ID()}
		return r, r.init(c, data)
	})
	m.OnUpdate(func(*Role) { m.invalidate() })
	return m
}

// Ordered returns the roles by rank, highest precedence first. The result
// is cached until the collection changes.
func (m *RoleManager) Ordered() []*Role {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()
	if m.ordered == nil {
		m.ordered = m.Sort(func(a, b *Role) int { return cmp.Compare(a.Rank(), b.Rank()) })
		if m.ordered == nil {
			m.ordered = []*Role{}
		}
	}
	return slices.Clone(m.ordered)
}

func (m *RoleManager) invalidate() {
	m.orderMu.Lock()
	m.ordered = nil
	m.orderMu.Unlock()
}

// resync rebuilds the collection from the server's role map: roles missing
// from the map are deleted first, then every role in the map is upserted.
func (m *RoleManager) resync() {
	var roles map[string]map[string]json.RawMessage
	if raw := m.server.rawField("roles"); raw != nil {
		if err := json.Unmarshal(raw, &roles); err != nil {
			m.client.logger.Error("invalid server role map", "server", m.server.ID(), "error", err)
			return
		}
	}

	for _, r := range m.Items() {
		if _, ok := roles[r.ID()]; !ok {
			m.Delete(r.ID())
		}
	}

	ids := make([]string, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		rec := roles[id]
		if rec == nil {
			rec = make(map[string]json.RawMessage)
		}
		rec["_id"] = rawJSON(id)
		data := rawJSON(rec)
		if existing := m.Get(id); existing != nil {
			if err := existing.replace(data); err != nil {
				m.client.logger.Error("failed to update role", "role", id, "error", err)
			}
			continue
		}
		if _, err := m.Construct(data); err != nil {
			m.client.logger.Error("failed to construct role", "role", id, "error", err)
		}
	}
}

type roleCreated struct {
	ID   string          `json:"id"`
	Role json.RawMessage `json:"role"`
}

// Create makes a role. rank is optional.
func (m *RoleManager) Create(ctx context.Context, name string, rank *int64) (*Role, error) {
	body := map[string]any{"name": name}
	if rank != nil {
		body["rank"] = *rank
	}
	var res roleCreated
	if err := m.client.api.Post(ctx, "/servers/"+m.server.ID()+"/roles", body, &res); err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}

	var rec map[string]json.RawMessage
	if err := json.Unmarshal(res.Role, &rec); err != nil {
		return nil, fmt.Errorf("decode role: %w", err)
	}
	if err := m.server.mergeRole(res.ID, rec, nil); err != nil {
		return nil, err
	}
	if r := m.Get(res.ID); r != nil {
		return r, nil
	}
	return nil, ErrNotFound
}
