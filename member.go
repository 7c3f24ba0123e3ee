package revkit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Revolt-Unofficial-Clients/revkit/internal/clock"
	"github.com/Revolt-Unofficial-Clients/revkit/models"
	"github.com/Revolt-Unofficial-Clients/revkit/permissions"
)

// Member is a user's membership in a server, keyed by the user ID within
// the server's MemberManager.
type Member struct {
	object[models.Member]

	timerMu sync.Mutex
	timer   *clock.Timer
}

func (m *Member) ServerID() string { return m.Source().ID.Server }
func (m *Member) UserID() string   { return m.Source().ID.User }
func (m *Member) Nickname() string { return m.Source().Nickname }

func (m *Member) JoinedAt() time.Time { return m.Source().JoinedAt }

func (m *Member) Server() *Server { return m.client.Servers.Get(m.ServerID()) }
func (m *Member) User() *User     { return m.client.Users.Get(m.UserID()) }

// DisplayName is the nickname, or the user's display name without one.
func (m *Member) DisplayName() string {
	if n := m.Nickname(); n != "" {
		return n
	}
	if u := m.User(); u != nil {
		return u.DisplayName()
	}
	return ""
}

func (m *Member) Avatar() *Attachment {
	return newAttachment(m.client, m.Source().Avatar)
}

func (m *Member) RoleIDs() []string { return slices.Clone(m.Source().Roles) }

// Roles resolves the member's role IDs against the server's current roles.
// IDs of deleted roles are dropped. The result is ordered from the lowest
// precedence (highest rank number) to the highest, so folding overrides in
// this order lets the most important role win.
func (m *Member) Roles() []*Role {
	s := m.Server()
	if s == nil {
		return nil
	}
	var roles []*Role
	for _, id := range m.Source().Roles {
		if r := s.Roles.Get(id); r != nil {
			roles = append(roles, r)
		}
	}
	slices.SortStableFunc(roles, func(a, b *Role) int {
		switch {
		case a.Rank() > b.Rank():
			return -1
		case a.Rank() < b.Rank():
			return 1
		}
		return 0
	})
	return roles
}

// HoistedRole is the highest-precedence role shown separately in member
// lists.
func (m *Member) HoistedRole() *Role {
	roles := m.Roles()
	for i := len(roles) - 1; i >= 0; i-- {
		if roles[i].Hoist() {
			return roles[i]
		}
	}
	return nil
}

// ColorRole is the highest-precedence role with a colour.
func (m *Member) ColorRole() *Role {
	roles := m.Roles()
	for i := len(roles) - 1; i >= 0; i-- {
		if roles[i].Colour() != "" {
			return roles[i]
		}
	}
	return nil
}

// TimeoutEnds is nil when the member is not timed out.
func (m *Member) TimeoutEnds() *time.Time { return m.Source().Timeout }

func (m *Member) TimedOut() bool {
	end := m.TimeoutEnds()
	return end != nil && end.After(m.client.clock.Now())
}

// Ranking is the member's precedence. Smaller ranks higher; the owner
// ranks above everyone and a member without roles below everyone.
func (m *Member) Ranking() int64 {
	if s := m.Server(); s != nil && s.OwnerID() == m.UserID() {
		return math.MinInt64
	}
	roles := m.Roles()
	if len(roles) == 0 {
		return math.MaxInt64
	}
	return roles[len(roles)-1].Rank()
}

// InferiorTo reports whether other ranks strictly higher than m.
func (m *Member) InferiorTo(other *Member) bool {
	if other == nil {
		return false
	}
	return other.Ranking() < m.Ranking()
}

// Inferior reports whether the logged-in user ranks higher than m.
func (m *Member) Inferior() bool {
	s := m.Server()
	if s == nil {
		return false
	}
	return m.InferiorTo(s.Me())
}

func (m *Member) Kickable() bool {
	return m.moderatable(permissions.KickMembers)
}

func (m *Member) Bannable() bool {
	return m.moderatable(permissions.BanMembers)
}

func (m *Member) moderatable(p permissions.Permission) bool {
	s := m.Server()
	if s == nil || m.UserID() == s.OwnerID() || m.UserID() == m.client.selfID() {
		return false
	}
	return s.Permissions().Has(p) && m.Inferior()
}

// Permissions is what m may do in the server.
func (m *Member) Permissions() permissions.Permission {
	s := m.Server()
	if s == nil {
		return 0
	}
	return s.PermissionsFor(m)
}

func (m *Member) path() string {
	return "/servers/" + m.ServerID() + "/members/" + m.UserID()
}

type MemberEdit struct {
	Nickname *string    `json:"nickname,omitempty"`
	Avatar   *string    `json:"avatar,omitempty"`
	Roles    []string   `json:"roles,omitempty"`
	Timeout  *time.Time `json:"timeout,omitempty"`
	// Remove names fields to clear: "Nickname", "Avatar", "Roles", "Timeout".
	Remove []string `json:"remove,omitempty"`
}

func (m *Member) Edit(ctx context.Context, edit MemberEdit) error {
	var res json.RawMessage
	if err := m.client.api.Patch(ctx, m.path(), edit, &res); err != nil {
		return fmt.Errorf("edit member: %w", err)
	}
	var patch models.Patch
	if err := json.Unmarshal(res, &patch); err != nil {
		return err
	}
	return m.update(patch, edit.Remove)
}

func (m *Member) AddRole(ctx context.Context, roleID string) error {
	ids := m.RoleIDs()
	if slices.Contains(ids, roleID) {
		return nil
	}
	return m.Edit(ctx, MemberEdit{Roles: append(ids, roleID)})
}

func (m *Member) RemoveRole(ctx context.Context, roleID string) error {
	ids := slices.DeleteFunc(m.RoleIDs(), func(id string) bool { return id == roleID })
	if len(ids) == 0 {
		return m.Edit(ctx, MemberEdit{Remove: []string{"Roles"}})
	}
	return m.Edit(ctx, MemberEdit{Roles: ids})
}

// Timeout times the member out for d. A non-positive d lifts the timeout.
func (m *Member) Timeout(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return m.Edit(ctx, MemberEdit{Remove: []string{"Timeout"}})
	}
	end := m.client.clock.Now().Add(d).UTC()
	return m.Edit(ctx, MemberEdit{Timeout: &end})
}

func (m *Member) Kick(ctx context.Context) error {
	if err := m.client.api.Delete(ctx, m.path(), nil, nil); err != nil {
		return fmt.Errorf("kick member: %w", err)
	}
	if s := m.Server(); s != nil {
		s.Members.Delete(m.UserID())
	}
	return nil
}

func (m *Member) Ban(ctx context.Context, reason string) error {
	s := m.Server()
	if s == nil {
		return ErrNotFound
	}
	return s.Members.Ban(ctx, m.UserID(), reason)
}

// scheduleTimeoutClear arms a local timer that drops the timeout field when
// it expires, without waiting for the server to say so.
func (m *Member) scheduleTimeoutClear() {
	end := m.TimeoutEnds()
	clk := m.client.clock

	m.timerMu.Lock()
	m.timer.Stop()
	m.timer = nil
	if end == nil || m.Deleted() {
		m.timerMu.Unlock()
		return
	}
	if d := end.Sub(clk.Now()); d > 0 {
		m.timer = clk.AfterFunc(d, m.expireTimeout)
		m.timerMu.Unlock()
		return
	}
	m.timerMu.Unlock()
	m.expireTimeout()
}

func (m *Member) expireTimeout() {
	if m.Deleted() {
		return
	}
	end := m.TimeoutEnds()
	if end == nil || end.After(m.client.clock.Now()) {
		return
	}
	if err := m.update(nil, []string{"Timeout"}); err != nil {
		m.client.logger.Error("failed to clear member timeout", "member", m.UserID(), "error", err)
	}
}

func (m *Member) stopTimer() {
	m.timerMu.Lock()
	m.timer.Stop()
	m.timer = nil
	m.timerMu.Unlock()
}

// MemberManager holds the cached members of one server.
type MemberManager struct {
	*Manager[*Member]
	serverID string
}

func newMemberManager(c *Client, serverID string) *MemberManager {
	return &MemberManager{
		Manager: newManager(c, func(data []byte) (*Member, error) {
			m := &Member{}
			if err := m.init(c, data); err != nil {
				return nil, err
			}
			m.OnUpdate(m.scheduleTimeoutClear)
			m.scheduleTimeoutClear()
			return m, nil
		}),
		serverID: serverID,
	}
}

func (m *MemberManager) Self() *Member {
	id := m.client.selfID()
	if id == "" {
		return nil
	}
	return m.Get(id)
}

// Delete removes a member and stops its timeout timer.
func (m *MemberManager) Delete(userID string) bool {
	if mem := m.Get(userID); mem != nil {
		mem.stopTimer()
	}
	return m.Manager.Delete(userID)
}

func (m *MemberManager) clear() {
	for _, mem := range m.Items() {
		mem.stopTimer()
	}
	m.Manager.clear()
}

func (m *MemberManager) Fetch(ctx context.Context, userID string, force bool) (*Member, error) {
	if !force {
		if mem := m.Get(userID); mem != nil {
			return mem, nil
		}
	}
	var raw json.RawMessage
	if err := m.client.api.Get(ctx, "/servers/"+m.serverID+"/members/"+userID, &raw); err != nil {
		return nil, fmt.Errorf("fetch member %s: %w", userID, err)
	}
	return m.Construct(raw)
}

// FetchAll loads every member of the server along with their users.
func (m *MemberManager) FetchAll(ctx context.Context) ([]*Member, error) {
	var res struct {
		Members []json.RawMessage `json:"members"`
		Users   []json.RawMessage `json:"users"`
	}
	if err := m.client.api.Get(ctx, "/servers/"+m.serverID+"/members", &res); err != nil {
		return nil, fmt.Errorf("fetch members: %w", err)
	}
	for _, u := range res.Users {
		if _, err := m.client.Users.Construct(u); err != nil {
			return nil, err
		}
	}
	out := make([]*Member, 0, len(res.Members))
	for _, raw := range res.Members {
		mem, err := m.Construct(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, nil
}

// Ban bans a user. Bans are not cached; the member entry is dropped.
func (m *MemberManager) Ban(ctx context.Context, userID, reason string) error {
	body := map[string]string{}
	if reason != "" {
		body["reason"] = reason
	}
	if err := m.client.api.Put(ctx, "/servers/"+m.serverID+"/bans/"+userID, body, nil); err != nil {
		return fmt.Errorf("ban: %w", err)
	}
	m.Delete(userID)
	return nil
}

func (m *MemberManager) Unban(ctx context.Context, userID string) error {
	return m.client.api.Do(ctx, http.MethodDelete, "/servers/"+m.serverID+"/bans/"+userID, nil, nil)
}

func (m *MemberManager) FetchBans(ctx context.Context) (*models.BanList, error) {
	var bans models.BanList
	if err := m.client.api.Get(ctx, "/servers/"+m.serverID+"/bans", &bans); err != nil {
		return nil, err
	}
	return &bans, nil
}
