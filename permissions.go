package revkit

import (
	"github.com/Revolt-Unofficial-Clients/revkit/models"
	"github.com/Revolt-Unofficial-Clients/revkit/permissions"
)

// PermissionTarget is a Server or a Channel.
type PermissionTarget interface {
	PermissionsFor(as *Member) permissions.Permission
}

// PermissionsFor computes the permissions of as on target, or of the
// logged-in user when as is nil.
func (c *Client) PermissionsFor(target PermissionTarget, as *Member) permissions.Permission {
	return target.PermissionsFor(as)
}

// Permissions is what the logged-in user may do in the server.
func (s *Server) Permissions() permissions.Permission {
	return s.PermissionsFor(nil)
}

func (s *Server) PermissionsFor(as *Member) permissions.Permission {
	return permissions.ResolveServer(s.permissionInput(as))
}

func (s *Server) permissionInput(as *Member) permissions.ServerInput {
	userID := s.client.selfID()
	if as != nil {
		userID = as.UserID()
	}
	in := permissions.ServerInput{
		Privileged: s.client.privileged(userID),
		Owner:      userID != "" && userID == s.OwnerID(),
		Default:    s.DefaultPermissions(),
	}

	member := as
	if member == nil && userID != "" {
		member = s.Members.Get(userID)
	}
	if member == nil {
		return in
	}
	in.HasMember = true
	for _, r := range member.Roles() {
		in.Roles = append(in.Roles, r.Permissions())
	}
	in.TimedOut = member.TimedOut()
	return in
}

// Permissions is what the logged-in user may do in the channel.
func (c *Channel) Permissions() permissions.Permission {
	return c.PermissionsFor(nil)
}

func (c *Channel) PermissionsFor(as *Member) permissions.Permission {
	userID := c.client.selfID()
	if as != nil {
		userID = as.UserID()
	}
	privileged := c.client.privileged(userID)

	switch c.Kind() {
	case models.ChannelTypeSavedMessages:
		if privileged {
			return permissions.GrantAllSafe
		}
		return permissions.ResolveSavedMessages()
	case models.ChannelTypeDirectMessage:
		var against permissions.UserPermission
		if r := c.Recipient(); r != nil {
			against = r.PermissionsAgainst()
		}
		return permissions.ResolveDirect(privileged, against)
	case models.ChannelTypeGroup:
		return permissions.ResolveGroup(privileged, userID != "" && userID == c.OwnerID(), c.GroupPermissions())
	}

	s := c.Server()
	if s == nil {
		return 0
	}
	in := permissions.ChannelInput{
		Server:  s.permissionInput(as),
		Default: c.DefaultPermissions(),
	}

	member := as
	if member == nil {
		member = s.Members.Get(userID)
	}
	if member != nil {
		overrides := c.RolePermissions()
		for _, r := range member.Roles() {
			if o, ok := overrides[r.ID()]; ok {
				in.Roles = append(in.Roles, o)
			}
		}
	}
	return permissions.ResolveChannel(in)
}

func (c *Client) privileged(userID string) bool {
	if userID == "" {
		return false
	}
	u := c.Users.Get(userID)
	return u != nil && u.Privileged()
}
