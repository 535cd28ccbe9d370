package proto

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/common"
)

// ServerAction is the action of a server-status message
type ServerAction string

// Server actions
const (
	ServerStart ServerAction = "START"
	ServerStop  ServerAction = "STOP"
	ServerPing  ServerAction = "PING"
)

// PlayerAction is the action of a player-status message
type PlayerAction string

// Player actions
const (
	PlayerLogin  PlayerAction = "LOGIN"
	PlayerLogout PlayerAction = "LOGOUT"
)

// ServerStatus announces a server joining, leaving or staying alive
type ServerStatus struct {
	Action     ServerAction
	ServerID   string
	Address    string
	Port       int
	CPUPercent float64 // only carried by PING
}

// PlayerStatus announces a player logging in or out of the network
type PlayerStatus struct {
	Action   PlayerAction
	UUID     uuid.UUID
	Username string
}

// PlayerServerChange announces a player moving to a server
type PlayerServerChange struct {
	UUID     uuid.UUID
	ServerID string
}

// PlayerSend asks the proxy to move a player to a server
type PlayerSend struct {
	UUID     uuid.UUID
	ServerID string
}

// ChatMessage is a serialized chat component sent to a channel
type ChatMessage struct {
	Component string
	Channel   common.ChatChannel
}

// Broadcast is a serialized chat component shown to every player
type Broadcast struct {
	Component string
}

// FriendEvent mirrors a friend lifecycle transition. RequestID is uuid.Nil when absent.
type FriendEvent struct {
	Sender    uuid.UUID
	Recipient uuid.UUID
	RequestID uuid.UUID
}

// RankUpdate announces a player's new rank
type RankUpdate struct {
	UUID uuid.UUID
	Rank common.Rank
}

// Snoop is an audit event shown to staff of at least RequiredRank
type Snoop struct {
	Channel      string
	RequiredRank common.Rank
	Component    string
}

// PlayerWarn delivers a moderator warning to its target
type PlayerWarn struct {
	Target    uuid.UUID
	Actor     uuid.UUID
	Component string
}

func join(fields ...string) string {
	return strings.Join(fields, Delimiter)
}

func (m ServerStatus) Encode() string {
	fields := []string{string(m.Action), m.ServerID, m.Address, strconv.Itoa(m.Port)}
	if m.Action == ServerPing {
		fields = append(fields, strconv.FormatFloat(m.CPUPercent, 'f', 2, 64))
	}
	return join(fields...)
}

func (m PlayerStatus) Encode() string {
	return join(string(m.Action), m.UUID.String(), m.Username)
}

func (m PlayerServerChange) Encode() string {
	return join(m.UUID.String(), m.ServerID)
}

func (m PlayerSend) Encode() string {
	return join(m.UUID.String(), m.ServerID)
}

func (m ChatMessage) Encode() string {
	return join(m.Component, m.Channel.String())
}

func (m Broadcast) Encode() string {
	return m.Component
}

func (m FriendEvent) Encode() string {
	if m.RequestID == uuid.Nil {
		return join(m.Sender.String(), m.Recipient.String())
	}
	return join(m.Sender.String(), m.Recipient.String(), m.RequestID.String())
}

func (m RankUpdate) Encode() string {
	return join(m.UUID.String(), m.Rank.String())
}

func (m Snoop) Encode() string {
	return join(m.Channel, m.RequiredRank.String(), m.Component)
}

func (m PlayerWarn) Encode() string {
	return join(m.Target.String(), m.Actor.String(), m.Component)
}
