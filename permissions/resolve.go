package permissions

// ServerInput is everything the server-level fold looks at.
type ServerInput struct {
	Privileged bool
	Owner      bool
	// HasMember is false when the acting user has no member entry.
	HasMember bool
	Default   Permission
	// Roles are the overrides of the member's roles, in the member's order.
	Roles    []Override
	TimedOut bool
}

// ResolveServer computes the effective server permissions. Role overrides
// are folded in order, so when two roles touch the same bit the later one
// wins.
func ResolveServer(in ServerInput) Permission {
	if in.Privileged || in.Owner {
		return GrantAllSafe
	}
	if !in.HasMember {
		return 0
	}

	p := in.Default
	for _, o := range in.Roles {
		p = p.Apply(o)
	}
	return applyTimeout(p, in.TimedOut)
}

// ChannelInput describes a server text or voice channel.
type ChannelInput struct {
	Server ServerInput
	// Default is the channel's default override, nil when unset.
	Default *Override
	// Roles are the channel's overrides for the member's roles, in the
	// member's role order. Roles without a channel override are skipped.
	Roles []Override
}

// ResolveChannel computes the permissions in a server channel: the server
// fold, then the channel default override, then the per-role channel
// overrides, then the timeout mask.
func ResolveChannel(in ChannelInput) Permission {
	s := in.Server
	if s.Privileged || s.Owner {
		return GrantAllSafe
	}
	if !s.HasMember {
		return 0
	}

	p := ResolveServer(s)
	if in.Default != nil {
		p = p.Apply(*in.Default)
	}
	for _, o := range in.Roles {
		p = p.Apply(o)
	}
	return applyTimeout(p, s.TimedOut)
}

// ResolveSavedMessages is the permission set of one's own notes channel.
func ResolveSavedMessages() Permission {
	return DefaultSavedMessages
}

// ResolveDirect computes permissions in a DM from what the recipient allows
// the acting user to do.
func ResolveDirect(privileged bool, recipient UserPermission) Permission {
	if privileged {
		return GrantAllSafe
	}
	if recipient.Has(UserSendMessage) {
		return DefaultDirectMessage
	}
	return DefaultViewOnly
}

// ResolveGroup computes permissions in a group DM. stored is the group's
// permission field, nil when the group never set one.
func ResolveGroup(privileged, owner bool, stored *Permission) Permission {
	switch {
	case privileged:
		return GrantAllSafe
	case owner:
		return DefaultDirectMessage
	case stored != nil:
		return *stored
	}
	return DefaultDirectMessage
}

func applyTimeout(p Permission, timedOut bool) Permission {
	if timedOut {
		return p & AllowedInTimeout
	}
	return p
}
