// Package permissions holds the bit-flag families used by Revolt (channel and
// server permissions, user permissions, badges, user and server flags) and the
// pure permission fold that turns ownership, role overrides and timeouts into
// an effective bitmask.
package permissions

import "sort"

// BitField is a bitmask over a known set of flag values. All arithmetic is
// done on uint64 so flags above bit 31 survive.
type BitField[F ~uint64] struct {
	Bits  F
	known []F
}

// NewBitField returns a BitField holding bits, with known listing every
// named flag of the family.
func NewBitField[F ~uint64](bits F, known ...F) BitField[F] {
	return BitField[F]{Bits: bits, known: known}
}

// Has reports whether every bit of flag is set.
func (b BitField[F]) Has(flag F) bool {
	return b.Bits&flag == flag
}

// Add returns a copy with flag set.
func (b BitField[F]) Add(flag F) BitField[F] {
	b.Bits |= flag
	return b
}

// Remove returns a copy with flag cleared.
func (b BitField[F]) Remove(flag F) BitField[F] {
	b.Bits &^= flag
	return b
}

// All returns every known flag that is set, in ascending order.
func (b BitField[F]) All() []F {
	var out []F
	for _, f := range b.known {
		if f != 0 && b.Has(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UserFlag marks account state.
type UserFlag uint64

const (
	UserFlagSuspended UserFlag = 1 << iota
	UserFlagDeleted
	UserFlagBanned
	UserFlagSpam
)

var userFlags = []UserFlag{UserFlagSuspended, UserFlagDeleted, UserFlagBanned, UserFlagSpam}

func UserFlags(bits uint64) BitField[UserFlag] {
	return NewBitField(UserFlag(bits), userFlags...)
}

// ServerFlag marks server-level verification state.
type ServerFlag uint64

const (
	ServerFlagOfficial ServerFlag = 1 << iota
	ServerFlagVerified
)

var serverFlags = []ServerFlag{ServerFlagOfficial, ServerFlagVerified}

func ServerFlags(bits uint64) BitField[ServerFlag] {
	return NewBitField(ServerFlag(bits), serverFlags...)
}

// Badge is a profile badge bit.
type Badge uint64

const (
	BadgeDeveloper Badge = 1 << iota
	BadgeTranslator
	BadgeSupporter
	BadgeResponsibleDisclosure
	BadgeFounder
	BadgePlatformModeration
	BadgeActiveSupporter
	BadgePaw
	BadgeEarlyAdopter
	BadgeReservedRelevantJokeBadge1
	BadgeReservedRelevantJokeBadge2
)

var badges = []Badge{
	BadgeDeveloper, BadgeTranslator, BadgeSupporter, BadgeResponsibleDisclosure,
	BadgeFounder, BadgePlatformModeration, BadgeActiveSupporter, BadgePaw,
	BadgeEarlyAdopter, BadgeReservedRelevantJokeBadge1, BadgeReservedRelevantJokeBadge2,
}

func Badges(bits uint64) BitField[Badge] {
	return NewBitField(Badge(bits), badges...)
}
