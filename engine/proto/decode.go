package proto

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/common"
)

func splitExact(topic, payload string, n int) ([]string, error) {
	fields := strings.Split(payload, Delimiter)
	if len(fields) != n {
		return nil, decodeError(topic, payload, "want %d fields, got %d", n, len(fields))
	}
	return fields, nil
}

func parseUUID(topic, payload, field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, decodeError(topic, payload, "bad %s %q", field, s)
	}
	return id, nil
}

func checkNonEmpty(topic, payload, field, s string) error {
	if s == "" {
		return decodeError(topic, payload, "empty %s", field)
	}
	return nil
}

// DecodeServerStatus decodes `action|:|serverId|:|address|:|port[|:|cpu]`
func DecodeServerStatus(payload string) (m ServerStatus, err error) {
	const topic = TopicServerStatus
	fields := strings.Split(payload, Delimiter)
	if len(fields) != 4 && len(fields) != 5 {
		return m, decodeError(topic, payload, "want 4 or 5 fields, got %d", len(fields))
	}
	m.Action = ServerAction(fields[0])
	switch m.Action {
	case ServerStart, ServerStop, ServerPing:
	default:
		return m, decodeError(topic, payload, "unknown action %q", fields[0])
	}
	m.ServerID = fields[1]
	if err = checkNonEmpty(topic, payload, "server id", m.ServerID); err != nil {
		return
	}
	m.Address = fields[2]
	m.Port, err = strconv.Atoi(fields[3])
	if err != nil || m.Port < 0 || m.Port > 65535 {
		return m, decodeError(topic, payload, "bad port %q", fields[3])
	}
	if len(fields) == 5 {
		m.CPUPercent, err = strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return m, decodeError(topic, payload, "bad cpu percent %q", fields[4])
		}
	}
	return m, nil
}

// DecodePlayerStatus decodes `action|:|uuid|:|username`
func DecodePlayerStatus(payload string) (m PlayerStatus, err error) {
	const topic = TopicPlayerStatus
	fields, err := splitExact(topic, payload, 3)
	if err != nil {
		return
	}
	m.Action = PlayerAction(fields[0])
	if m.Action != PlayerLogin && m.Action != PlayerLogout {
		return m, decodeError(topic, payload, "unknown action %q", fields[0])
	}
	if m.UUID, err = parseUUID(topic, payload, "uuid", fields[1]); err != nil {
		return
	}
	m.Username = fields[2]
	return m, nil
}

// DecodePlayerServerChange decodes `uuid|:|serverId`
func DecodePlayerServerChange(payload string) (m PlayerServerChange, err error) {
	const topic = TopicPlayerServerChange
	fields, err := splitExact(topic, payload, 2)
	if err != nil {
		return
	}
	if m.UUID, err = parseUUID(topic, payload, "uuid", fields[0]); err != nil {
		return
	}
	m.ServerID = fields[1]
	err = checkNonEmpty(topic, payload, "server id", m.ServerID)
	return
}

// DecodePlayerSend decodes `uuid|:|targetServerId`
func DecodePlayerSend(payload string) (m PlayerSend, err error) {
	const topic = TopicPlayerSend
	fields, err := splitExact(topic, payload, 2)
	if err != nil {
		return
	}
	if m.UUID, err = parseUUID(topic, payload, "uuid", fields[0]); err != nil {
		return
	}
	m.ServerID = fields[1]
	err = checkNonEmpty(topic, payload, "server id", m.ServerID)
	return
}

// DecodeChatMessage decodes `component|:|channel`. The channel is split off the right end
// since the serialized component may itself contain the delimiter.
func DecodeChatMessage(payload string) (m ChatMessage, err error) {
	const topic = TopicChatChannels
	i := strings.LastIndex(payload, Delimiter)
	if i < 0 {
		return m, decodeError(topic, payload, "missing channel")
	}
	m.Component = payload[:i]
	channel, perr := common.ParseChatChannel(payload[i+len(Delimiter):])
	if perr != nil {
		return m, decodeError(topic, payload, "%v", perr)
	}
	m.Channel = channel
	return m, nil
}

// DecodeBroadcast decodes a broadcast; the whole payload is the component
func DecodeBroadcast(payload string) (Broadcast, error) {
	if payload == "" {
		return Broadcast{}, decodeError(TopicBroadcast, payload, "empty component")
	}
	return Broadcast{Component: payload}, nil
}

// DecodeFriendEvent decodes `sender|:|recipient[|:|requestId]` of any friend topic
func DecodeFriendEvent(topic string, payload string) (m FriendEvent, err error) {
	fields := strings.Split(payload, Delimiter)
	if len(fields) != 2 && len(fields) != 3 {
		return m, decodeError(topic, payload, "want 2 or 3 fields, got %d", len(fields))
	}
	if m.Sender, err = parseUUID(topic, payload, "sender", fields[0]); err != nil {
		return
	}
	if m.Recipient, err = parseUUID(topic, payload, "recipient", fields[1]); err != nil {
		return
	}
	if len(fields) == 3 {
		if m.RequestID, err = parseUUID(topic, payload, "request id", fields[2]); err != nil {
			return
		}
	}
	return m, nil
}

// DecodeRankUpdate decodes `uuid|:|rank`
func DecodeRankUpdate(payload string) (m RankUpdate, err error) {
	const topic = TopicPlayerRankUpdate
	fields, err := splitExact(topic, payload, 2)
	if err != nil {
		return
	}
	if m.UUID, err = parseUUID(topic, payload, "uuid", fields[0]); err != nil {
		return
	}
	rank, perr := common.ParseRank(fields[1])
	if perr != nil {
		return m, decodeError(topic, payload, "%v", perr)
	}
	m.Rank = rank
	return m, nil
}

// DecodeSnoop decodes `channel|:|requiredRank|:|component`; the component may contain the delimiter
func DecodeSnoop(payload string) (m Snoop, err error) {
	const topic = TopicSnoops
	fields := strings.SplitN(payload, Delimiter, 3)
	if len(fields) != 3 {
		return m, decodeError(topic, payload, "want 3 fields, got %d", len(fields))
	}
	m.Channel = fields[0]
	if err = checkNonEmpty(topic, payload, "snoop channel", m.Channel); err != nil {
		return
	}
	rank, perr := common.ParseRank(fields[1])
	if perr != nil {
		return m, decodeError(topic, payload, "%v", perr)
	}
	m.RequiredRank = rank
	m.Component = fields[2]
	return m, nil
}

// DecodePlayerWarn decodes `target|:|actor|:|component`; the component may contain the delimiter
func DecodePlayerWarn(payload string) (m PlayerWarn, err error) {
	const topic = TopicPlayerWarn
	fields := strings.SplitN(payload, Delimiter, 3)
	if len(fields) != 3 {
		return m, decodeError(topic, payload, "want 3 fields, got %d", len(fields))
	}
	if m.Target, err = parseUUID(topic, payload, "target", fields[0]); err != nil {
		return
	}
	if m.Actor, err = parseUUID(topic, payload, "actor", fields[1]); err != nil {
		return
	}
	m.Component = fields[2]
	return m, nil
}
