// Package chat routes channel chat and broadcasts across the network
package chat

import (
	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/pref"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/rank"
	"github.com/pkg/errors"
)

var ErrChannelForbidden = errors.New("chat: channel not allowed for this rank")

// Chat sends chat messages on the bus and delivers received ones to local players
type Chat struct {
	ranks   *rank.Manager
	prefs   *pref.Manager
	players common.LocalPlayers
	pub     bus.Publisher
}

// New creates a Chat
func New(ranks *rank.Manager, prefs *pref.Manager, players common.LocalPlayers, pub bus.Publisher) *Chat {
	return &Chat{
		ranks:   ranks,
		prefs:   prefs,
		players: players,
		pub:     pub,
	}
}

// SetChannel assigns the channel a player chats in and reads
func (c *Chat) SetChannel(id uuid.UUID, ch common.ChatChannel) error {
	if !c.ranks.CanUseChannel(id, ch) {
		return ErrChannelForbidden
	}
	return pref.SetValue(c.prefs, id, pref.ChatChannel, ch)
}

// Channel returns the channel a player is assigned to
func (c *Chat) Channel(id uuid.UUID) common.ChatChannel {
	return pref.Value(c.prefs, id, pref.ChatChannel)
}

// Ignore stops showing a channel to a player
func (c *Chat) Ignore(id uuid.UUID, ch common.ChatChannel) error {
	ignored := pref.Value(c.prefs, id, pref.IgnoredChatChannels)
	ignored.Add(ch.String())
	return pref.SetValue(c.prefs, id, pref.IgnoredChatChannels, ignored)
}

// Unignore shows an ignored channel again
func (c *Chat) Unignore(id uuid.UUID, ch common.ChatChannel) error {
	ignored := pref.Value(c.prefs, id, pref.IgnoredChatChannels)
	ignored.Remove(ch.String())
	return pref.SetValue(c.prefs, id, pref.IgnoredChatChannels, ignored)
}

// Send publishes a chat component from sender to a channel
func (c *Chat) Send(sender uuid.UUID, component string, ch common.ChatChannel) error {
	if !c.ranks.CanUseChannel(sender, ch) {
		return ErrChannelForbidden
	}
	return c.pub.Publish(proto.TopicChatChannels, proto.ChatMessage{Component: component, Channel: ch}.Encode())
}

// Broadcast publishes a component shown to every player on the network
func (c *Chat) Broadcast(component string) error {
	return c.pub.Publish(proto.TopicBroadcast, proto.Broadcast{Component: component}.Encode())
}

// Deliver shows a received chat message to the local players assigned to its channel
// that may use it and do not ignore it. It returns the number of recipients.
func (c *Chat) Deliver(msg proto.ChatMessage) int {
	n := 0
	for _, id := range c.players.Online() {
		if c.Channel(id) != msg.Channel || !c.ranks.CanUseChannel(id, msg.Channel) {
			continue
		}
		if pref.Value(c.prefs, id, pref.IgnoredChatChannels).Contains(msg.Channel.String()) {
			continue
		}
		c.players.Deliver(id, msg.Component)
		n++
	}
	nslog.Debugf("chat: delivered %s message to %d players", msg.Channel, n)
	return n
}

// DeliverBroadcast shows a broadcast to every local player
func (c *Chat) DeliverBroadcast(msg proto.Broadcast) int {
	online := c.players.Online()
	for _, id := range online {
		c.players.Deliver(id, msg.Component)
	}
	return len(online)
}
