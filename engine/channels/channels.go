// Package channels binds every bus topic to the transition it applies on this node
package channels

import (
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/chat"
	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/friend"
	"github.com/lattice-mc/netsync/engine/moderation"
	"github.com/lattice-mc/netsync/engine/netstate"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/rank"
	"github.com/lattice-mc/netsync/engine/snoop"
)

// Proxy relocates players between servers
type Proxy interface {
	SendPlayer(cmd proto.PlayerSend)
}

// Transfers is told about every player-send before the proxy acts on it, so the node a
// player leaves knows the player is moving
type Transfers interface {
	ExpectTransfer(cmd proto.PlayerSend)
}

// Subscriber is what handlers are registered on; *bus.Bus is a Subscriber
type Subscriber interface {
	Subscribe(topic string, handler bus.Handler) (*bus.Subscription, error)
}

// Deps are the state objects the handlers apply transitions to. Topics whose
// dependency is nil are not subscribed.
type Deps struct {
	ServerID   string
	Registry   *netstate.Registry
	Ranks      *rank.Manager
	Friends    *friend.Manager
	Chat       *chat.Chat
	Snoops     *snoop.Snooper
	Moderation *moderation.Moderator
	Proxy      Proxy
	Transfers  Transfers
}

// handle builds a handler that decodes payloads and applies them. Undecodable payloads are logged and dropped.
func handle[T any](topic string, decode func(string) (T, error), apply func(T)) bus.Handler {
	return func(payload string) {
		if consts.DEBUG_MESSAGES {
			nslog.Debugf("channels: %s: %s", topic, payload)
		}
		msg, err := decode(payload)
		if err != nil {
			nslog.Warnf("channels: dropped message: %v", err)
			return
		}
		apply(msg)
	}
}

func friendHandler(topic string, apply func(proto.FriendEvent)) bus.Handler {
	return handle(topic, func(payload string) (proto.FriendEvent, error) {
		return proto.DecodeFriendEvent(topic, payload)
	}, apply)
}

// Handlers returns the handler of every topic the deps can serve
func Handlers(deps Deps) map[string]bus.Handler {
	handlers := map[string]bus.Handler{}

	if reg := deps.Registry; reg != nil {
		handlers[proto.TopicServerStatus] = handle(proto.TopicServerStatus, proto.DecodeServerStatus, func(m proto.ServerStatus) {
			switch m.Action {
			case proto.ServerStart, proto.ServerPing:
				reg.UpsertServer(netstate.ServerRecord{
					ID:         m.ServerID,
					Address:    m.Address,
					Port:       m.Port,
					CPUPercent: m.CPUPercent,
				})
			case proto.ServerStop:
				if m.ServerID == deps.ServerID {
					nslog.Warnf("channels: ignoring STOP of this server")
					return
				}
				reg.RemoveServer(m.ServerID)
			}
		})
		handlers[proto.TopicPlayerStatus] = handle(proto.TopicPlayerStatus, proto.DecodePlayerStatus, func(m proto.PlayerStatus) {
			switch m.Action {
			case proto.PlayerLogin:
				reg.UpsertPresence(m.UUID, m.Username)
			case proto.PlayerLogout:
				reg.RemovePresence(m.UUID)
				reg.RemoveRankCache(m.UUID)
			}
		})
		handlers[proto.TopicPlayerServerChange] = handle(proto.TopicPlayerServerChange, proto.DecodePlayerServerChange, func(m proto.PlayerServerChange) {
			reg.UpdatePresenceServer(m.UUID, m.ServerID)
		})
	}

	if deps.Ranks != nil {
		handlers[proto.TopicPlayerRankUpdate] = handle(proto.TopicPlayerRankUpdate, proto.DecodeRankUpdate, func(m proto.RankUpdate) {
			deps.Ranks.ApplyRemote(m.UUID, m.Rank)
		})
	}

	if deps.Proxy != nil || deps.Transfers != nil {
		handlers[proto.TopicPlayerSend] = handle(proto.TopicPlayerSend, proto.DecodePlayerSend, func(m proto.PlayerSend) {
			if deps.Transfers != nil {
				deps.Transfers.ExpectTransfer(m)
			}
			if deps.Proxy != nil {
				deps.Proxy.SendPlayer(m)
			}
		})
	}

	if deps.Chat != nil {
		handlers[proto.TopicChatChannels] = handle(proto.TopicChatChannels, proto.DecodeChatMessage, func(m proto.ChatMessage) {
			deps.Chat.Deliver(m)
		})
		handlers[proto.TopicBroadcast] = handle(proto.TopicBroadcast, proto.DecodeBroadcast, func(m proto.Broadcast) {
			deps.Chat.DeliverBroadcast(m)
		})
	}

	if fm := deps.Friends; fm != nil {
		handlers[proto.TopicFriendRequestSent] = friendHandler(proto.TopicFriendRequestSent, fm.ApplySent)
		handlers[proto.TopicFriendRequestAccepted] = friendHandler(proto.TopicFriendRequestAccepted, fm.ApplyAccepted)
		handlers[proto.TopicFriendRequestDeclined] = friendHandler(proto.TopicFriendRequestDeclined, fm.ApplyDeclined)
		handlers[proto.TopicFriendRequestExpired] = friendHandler(proto.TopicFriendRequestExpired, fm.ApplyExpired)
		handlers[proto.TopicFriendRequestCancelled] = friendHandler(proto.TopicFriendRequestCancelled, fm.ApplyCancelled)
		handlers[proto.TopicFriendRemoved] = friendHandler(proto.TopicFriendRemoved, fm.ApplyRemoved)
	}

	if deps.Snoops != nil {
		handlers[proto.TopicSnoops] = handle(proto.TopicSnoops, proto.DecodeSnoop, func(m proto.Snoop) {
			deps.Snoops.Deliver(m)
		})
	}

	if deps.Moderation != nil {
		handlers[proto.TopicPlayerWarn] = handle(proto.TopicPlayerWarn, proto.DecodePlayerWarn, func(m proto.PlayerWarn) {
			deps.Moderation.DeliverWarn(m)
		})
	}
	return handlers
}

// Register subscribes the handlers of deps. On failure the subscriptions made so far are cancelled.
func Register(sub Subscriber, deps Deps) ([]*bus.Subscription, error) {
	var subs []*bus.Subscription
	for topic, handler := range Handlers(deps) {
		s, err := sub.Subscribe(topic, handler)
		if err != nil {
			for _, s := range subs {
				s.Cancel()
			}
			return nil, err
		}
		subs = append(subs, s)
	}
	nslog.Infof("channels: subscribed %d topics", len(subs))
	return subs, nil
}
