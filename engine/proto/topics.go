package proto

// Delimiter separates the fields of every bus payload
const Delimiter = "|:|"

// Bus topics
const (
	TopicServerStatus       = "server-status"
	TopicPlayerStatus       = "player-status"
	TopicPlayerServerChange = "player-server-change"
	TopicPlayerSend         = "player-send"
	TopicChatChannels       = "chat-channels"
	TopicBroadcast          = "broadcast"

	TopicFriendRequestSent      = "friend-request-sent"
	TopicFriendRequestAccepted  = "friend-request-accepted"
	TopicFriendRequestDeclined  = "friend-request-declined"
	TopicFriendRequestExpired   = "friend-request-expired"
	TopicFriendRequestCancelled = "friend-request-cancelled"
	TopicFriendRemoved          = "friend-removed"

	TopicPlayerRankUpdate = "player-rank-update"
	TopicSnoops           = "snoops"
	TopicPlayerWarn       = "player-warn"
)

// FriendTopics lists the friend lifecycle topics
var FriendTopics = []string{
	TopicFriendRequestSent,
	TopicFriendRequestAccepted,
	TopicFriendRequestDeclined,
	TopicFriendRequestExpired,
	TopicFriendRequestCancelled,
	TopicFriendRemoved,
}
