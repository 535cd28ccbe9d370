// Package snoop fans audit events out to staff across the network
package snoop

import (
	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/pref"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/rank"
)

// Snoop channels used by moderation
const (
	ChannelMutes = "netsync:mutes"
	ChannelWarns = "netsync:warns"
	ChannelRanks = "netsync:ranks"
)

// Snooper publishes snoops and delivers received ones to local staff
type Snooper struct {
	ranks   *rank.Manager
	prefs   *pref.Manager
	players common.LocalPlayers
	pub     bus.Publisher
}

// New creates a Snooper
func New(ranks *rank.Manager, prefs *pref.Manager, players common.LocalPlayers, pub bus.Publisher) *Snooper {
	return &Snooper{
		ranks:   ranks,
		prefs:   prefs,
		players: players,
		pub:     pub,
	}
}

// Send publishes a snoop on the network
func (s *Snooper) Send(sn proto.Snoop) error {
	return s.pub.Publish(proto.TopicSnoops, sn.Encode())
}

// Deliver shows a snoop to local players of at least its required rank that did not mute its channel
func (s *Snooper) Deliver(sn proto.Snoop) int {
	n := 0
	for _, id := range s.players.Online() {
		if !s.ranks.Rank(id).AtLeast(sn.RequiredRank) || s.Muted(id, sn.Channel) {
			continue
		}
		s.players.Deliver(id, sn.Component)
		n++
	}
	if n > 0 {
		nslog.Debugf("snoop: %s delivered to %d players", sn.Channel, n)
	}
	return n
}

// Muted reports whether a player muted a snoop channel
func (s *Snooper) Muted(id uuid.UUID, channel string) bool {
	return pref.Value(s.prefs, id, pref.MutedSnoops).Contains(channel)
}

// Mute stops delivering a snoop channel to a player
func (s *Snooper) Mute(id uuid.UUID, channel string) error {
	muted := pref.Value(s.prefs, id, pref.MutedSnoops)
	muted.Add(channel)
	return pref.SetValue(s.prefs, id, pref.MutedSnoops, muted)
}

// Unmute delivers a muted snoop channel again
func (s *Snooper) Unmute(id uuid.UUID, channel string) error {
	muted := pref.Value(s.prefs, id, pref.MutedSnoops)
	muted.Remove(channel)
	return pref.SetValue(s.prefs, id, pref.MutedSnoops, muted)
}
