package permissions

// Permission is a server or channel permission bit.
type Permission uint64

const (
	ManageChannel       Permission = 1 << 0
	ManageServer        Permission = 1 << 1
	ManagePermissions   Permission = 1 << 2
	ManageRole          Permission = 1 << 3
	ManageCustomisation Permission = 1 << 4

	KickMembers     Permission = 1 << 6
	BanMembers      Permission = 1 << 7
	TimeoutMembers  Permission = 1 << 8
	AssignRoles     Permission = 1 << 9
	ChangeNickname  Permission = 1 << 10
	ManageNicknames Permission = 1 << 11
	ChangeAvatar    Permission = 1 << 12
	RemoveAvatars   Permission = 1 << 13

	ViewChannel        Permission = 1 << 20
	ReadMessageHistory Permission = 1 << 21
	SendMessage        Permission = 1 << 22
	ManageMessages     Permission = 1 << 23
	ManageWebhooks     Permission = 1 << 24
	InviteOthers       Permission = 1 << 25
	SendEmbeds         Permission = 1 << 26
	UploadFiles        Permission = 1 << 27
	Masquerade         Permission = 1 << 28
	React              Permission = 1 << 29

	Connect       Permission = 1 << 30
	Speak         Permission = 1 << 31
	Video         Permission = 1 << 32
	MuteMembers   Permission = 1 << 33
	DeafenMembers Permission = 1 << 34
	MoveMembers   Permission = 1 << 35

	// GrantAllSafe covers every bit that is safe to blanket-grant (bits 0-51).
	GrantAllSafe Permission = 0x000f_ffff_ffff_ffff
)

const (
	// AllowedInTimeout is what a timed-out member keeps.
	AllowedInTimeout = ViewChannel | ReadMessageHistory

	DefaultViewOnly = ViewChannel | ReadMessageHistory

	Default = DefaultViewOnly | SendMessage | InviteOthers | SendEmbeds |
		UploadFiles | Connect | Speak

	DefaultSavedMessages = GrantAllSafe

	DefaultDirectMessage = Default | React | ManageChannel

	DefaultServer = Default | React | ChangeNickname | ChangeAvatar
)

var allPermissions = []Permission{
	ManageChannel, ManageServer, ManagePermissions, ManageRole, ManageCustomisation,
	KickMembers, BanMembers, TimeoutMembers, AssignRoles, ChangeNickname,
	ManageNicknames, ChangeAvatar, RemoveAvatars,
	ViewChannel, ReadMessageHistory, SendMessage, ManageMessages, ManageWebhooks,
	InviteOthers, SendEmbeds, UploadFiles, Masquerade, React,
	Connect, Speak, Video, MuteMembers, DeafenMembers, MoveMembers,
}

// Flags wraps p in a BitField over the permission family.
func (p Permission) Flags() BitField[Permission] {
	return NewBitField(p, allPermissions...)
}

func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}

// Apply folds an override into p: allowed bits are set, then denied bits
// are cleared.
func (p Permission) Apply(o Override) Permission {
	return (p | o.Allow) &^ o.Deny
}

// Override is an allow/deny pair as sent by the server ({"a": .., "d": ..}).
type Override struct {
	Allow Permission `json:"a"`
	Deny  Permission `json:"d"`
}

// UserPermission is a permission held against another user.
type UserPermission uint64

const (
	UserAccess UserPermission = 1 << iota
	UserViewProfile
	UserSendMessage
	UserInvite
)

// UserPermissionAll is granted to friends and to oneself.
const UserPermissionAll UserPermission = 1<<32 - 1

var userPermissions = []UserPermission{UserAccess, UserViewProfile, UserSendMessage, UserInvite}

func (p UserPermission) Flags() BitField[UserPermission] {
	return NewBitField(p, userPermissions...)
}

func (p UserPermission) Has(flag UserPermission) bool {
	return p&flag == flag
}
