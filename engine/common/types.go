package common

import (
	"strings"

	"github.com/pkg/errors"
)

// Rank is the permission rank of a player. Ranks are totally ordered, a higher value
// means more privileges.
type Rank int

// Ranks in ascending order
const (
	RankDefault Rank = iota
	RankNoble
	RankValiant
	RankMaster
	RankCelestial
	RankElysian
	RankHelper
	RankModerator
	RankAdmin
	RankOwner

	numRanks = iota
)

var rankNames = [...]string{
	RankDefault:   "DEFAULT",
	RankNoble:     "NOBLE",
	RankValiant:   "VALIANT",
	RankMaster:    "MASTER",
	RankCelestial: "CELESTIAL",
	RankElysian:   "ELYSIAN",
	RankHelper:    "HELPER",
	RankModerator: "MODERATOR",
	RankAdmin:     "ADMIN",
	RankOwner:     "OWNER",
}

// AllRanks returns every rank in ascending order
func AllRanks() []Rank {
	ranks := make([]Rank, numRanks)
	for i := range ranks {
		ranks[i] = Rank(i)
	}
	return ranks
}

// Valid reports whether r is a known rank
func (r Rank) Valid() bool {
	return r >= RankDefault && r < numRanks
}

func (r Rank) String() string {
	if !r.Valid() {
		return "UNKNOWN"
	}
	return rankNames[r]
}

// AtLeast reports whether r is at or above min
func (r Rank) AtLeast(min Rank) bool {
	return r >= min
}

// IsHelper reports helper (or higher) permissions
func (r Rank) IsHelper() bool {
	return r.AtLeast(RankHelper)
}

// IsStaff reports whether the rank belongs to the staff team
func (r Rank) IsStaff() bool {
	return r.AtLeast(RankHelper)
}

// IsModerator reports moderator (or higher) permissions
func (r Rank) IsModerator() bool {
	return r.AtLeast(RankModerator)
}

// IsAdmin reports admin (or higher) permissions
func (r Rank) IsAdmin() bool {
	return r.AtLeast(RankAdmin)
}

// IsOwner reports owner permissions
func (r Rank) IsOwner() bool {
	return r == RankOwner
}

// ParseRank parses a rank name, case insensitive
func ParseRank(s string) (Rank, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range rankNames {
		if name == s {
			return Rank(i), nil
		}
	}
	return RankDefault, errors.Errorf("unknown rank: %q", s)
}

// ChatChannel is the channel a chat message is sent to
type ChatChannel int

// Chat channels
const (
	ChannelAll ChatChannel = iota
	ChannelPrivateMessage
	ChannelInternal
	ChannelParty
	ChannelLeague
	ChannelMod
	ChannelAdmin
	ChannelStaff

	numChannels = iota
)

var channelNames = [...]string{
	ChannelAll:            "ALL",
	ChannelPrivateMessage: "PRIVATE_MESSAGE",
	ChannelInternal:       "INTERNAL_MESSAGE",
	ChannelParty:          "PARTY",
	ChannelLeague:         "LEAGUE",
	ChannelMod:            "MOD",
	ChannelAdmin:          "ADMIN",
	ChannelStaff:          "STAFF",
}

// AllChannels returns every chat channel
func AllChannels() []ChatChannel {
	channels := make([]ChatChannel, numChannels)
	for i := range channels {
		channels[i] = ChatChannel(i)
	}
	return channels
}

// Valid reports whether c is a known channel
func (c ChatChannel) Valid() bool {
	return c >= ChannelAll && c < numChannels
}

func (c ChatChannel) String() string {
	if !c.Valid() {
		return "UNKNOWN"
	}
	return channelNames[c]
}

// ParseChatChannel parses a channel name, case insensitive
func ParseChatChannel(s string) (ChatChannel, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range channelNames {
		if name == s {
			return ChatChannel(i), nil
		}
	}
	return ChannelAll, errors.Errorf("unknown chat channel: %q", s)
}

// CanUseChannel reports whether a player of the given rank may send to and read from channel.
// INTERNAL_MESSAGE is reserved for server-to-server traffic and never shown to players.
func CanUseChannel(r Rank, c ChatChannel) bool {
	switch c {
	case ChannelStaff:
		return r.IsStaff()
	case ChannelMod:
		return r.IsModerator()
	case ChannelAdmin:
		return r.IsAdmin()
	case ChannelInternal:
		return false
	case ChannelAll, ChannelPrivateMessage, ChannelParty, ChannelLeague:
		return true
	default:
		panic(errors.Errorf("unhandled chat channel %d", int(c)))
	}
}
