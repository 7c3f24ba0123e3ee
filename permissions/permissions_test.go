package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitField_Wide(t *testing.T) {
	p := (Video | MoveMembers | ManageChannel).Flags()

	assert.True(t, p.Has(Video))
	assert.True(t, p.Has(MoveMembers))
	assert.False(t, p.Has(Speak))
	assert.Equal(t, []Permission{ManageChannel, Video, MoveMembers}, p.All())

	p = p.Remove(Video).Add(DeafenMembers)
	assert.False(t, p.Has(Video))
	assert.Equal(t, []Permission{ManageChannel, DeafenMembers, MoveMembers}, p.All())
}

func TestBitField_Families(t *testing.T) {
	assert.Equal(t, []Badge{BadgeDeveloper, BadgeFounder}, Badges(1|16).All())
	assert.True(t, UserFlags(2).Has(UserFlagDeleted))
	assert.Equal(t, []ServerFlag{ServerFlagVerified}, ServerFlags(2).All())
	assert.Len(t, UserPermissionAll.Flags().All(), 4)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, Permission(0x000f_ffff_ffff_ffff), GrantAllSafe)
	assert.True(t, DefaultDirectMessage.Has(React|ManageChannel|SendMessage))
	assert.True(t, DefaultServer.Has(ChangeNickname|ChangeAvatar))
	assert.False(t, DefaultViewOnly.Has(SendMessage))
}

func TestApply(t *testing.T) {
	p := Permission(ViewChannel | SendMessage)
	got := p.Apply(Override{Allow: Video, Deny: SendMessage})
	assert.Equal(t, ViewChannel|Video, got)

	// deny wins within one override
	got = Permission(0).Apply(Override{Allow: React, Deny: React})
	assert.Equal(t, Permission(0), got)
}

func TestResolveServer(t *testing.T) {
	base := ServerInput{
		HasMember: true,
		Default:   Default,
		Roles: []Override{
			{Allow: KickMembers | Video},
			{Deny: SendMessage},
		},
	}

	t.Run("fold", func(t *testing.T) {
		got := ResolveServer(base)
		want := (Default | KickMembers | Video) &^ SendMessage
		assert.Equal(t, want, got)
		for i := 0; i < 5; i++ {
			require.Equal(t, got, ResolveServer(base))
		}
	})

	t.Run("last role wins", func(t *testing.T) {
		in := base
		in.Roles = []Override{{Deny: Video}, {Allow: Video}}
		assert.True(t, ResolveServer(in).Has(Video))

		in.Roles = []Override{{Allow: Video}, {Deny: Video}}
		assert.False(t, ResolveServer(in).Has(Video))
	})

	t.Run("owner", func(t *testing.T) {
		in := base
		in.Owner = true
		in.TimedOut = true
		in.Roles = []Override{{Deny: GrantAllSafe}}
		assert.Equal(t, GrantAllSafe, ResolveServer(in))
	})

	t.Run("privileged", func(t *testing.T) {
		assert.Equal(t, GrantAllSafe, ResolveServer(ServerInput{Privileged: true}))
	})

	t.Run("no member", func(t *testing.T) {
		in := base
		in.HasMember = false
		assert.Equal(t, Permission(0), ResolveServer(in))
	})

	t.Run("timed out", func(t *testing.T) {
		in := base
		in.Roles = []Override{{Allow: GrantAllSafe}}
		in.TimedOut = true
		got := ResolveServer(in)
		assert.Equal(t, AllowedInTimeout, got)
		assert.Zero(t, got&^AllowedInTimeout)
	})
}

func TestResolveChannel(t *testing.T) {
	in := ChannelInput{
		Server: ServerInput{
			HasMember: true,
			Default:   DefaultViewOnly,
			Roles:     []Override{{Allow: SendMessage}},
		},
		Default: &Override{Deny: SendMessage},
		Roles:   []Override{{Allow: SendMessage | MuteMembers}},
	}

	got := ResolveChannel(in)
	assert.Equal(t, DefaultViewOnly|SendMessage|MuteMembers, got)

	in.Roles = nil
	assert.Equal(t, DefaultViewOnly, ResolveChannel(in))

	in.Default = &Override{Allow: ManageMessages}
	in.Server.TimedOut = true
	assert.Equal(t, AllowedInTimeout, ResolveChannel(in))

	in.Server.Owner = true
	assert.Equal(t, GrantAllSafe, ResolveChannel(in))
}

func TestResolveDirectAndGroup(t *testing.T) {
	assert.Equal(t, DefaultDirectMessage, ResolveDirect(false, UserAccess|UserSendMessage))
	assert.Equal(t, DefaultViewOnly, ResolveDirect(false, UserAccess))
	assert.Equal(t, GrantAllSafe, ResolveDirect(true, 0))

	stored := SendMessage
	assert.Equal(t, DefaultDirectMessage, ResolveGroup(false, true, &stored))
	assert.Equal(t, SendMessage, ResolveGroup(false, false, &stored))
	assert.Equal(t, DefaultDirectMessage, ResolveGroup(false, false, nil))
	assert.Equal(t, GrantAllSafe, ResolveSavedMessages())
}
