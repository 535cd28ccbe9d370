package consts

import "time"

// Tunable Options
const (
	// For Message Bus
	// BUS_RECONNECT_INTERVAL is the wait time before a failed subscription reconnects
	BUS_RECONNECT_INTERVAL = time.Second * 3
	// BUS_QUEUE_WARN_LEN is the subscription backlog length that triggers a warning
	BUS_QUEUE_WARN_LEN = 1000
	// BUS_PUBLISH_WARN_THRESHOLD is the publish duration that triggers an opmon warning
	BUS_PUBLISH_WARN_THRESHOLD = time.Millisecond * 100

	// For Redis
	// REDIS_MAX_IDLE is the max idle connections kept by redis pools
	REDIS_MAX_IDLE = 8
	// REDIS_IDLE_TIMEOUT closes idle redis connections after this duration
	REDIS_IDLE_TIMEOUT = time.Minute * 4
	// REDIS_DIAL_TIMEOUT bounds connecting to redis
	REDIS_DIAL_TIMEOUT = time.Second * 5

	// For Worker Pool
	// ASYNC_DEFAULT_POOL_SIZE is the default number of pool workers
	ASYNC_DEFAULT_POOL_SIZE = 64
	// ASYNC_GROUP_QUEUE_WARN_LEN is the per-group backlog length that triggers a warning
	ASYNC_GROUP_QUEUE_WARN_LEN = 100

	// For Durable Store
	// STORE_DEFAULT_TIMEOUT bounds every durable store call
	STORE_DEFAULT_TIMEOUT = time.Second * 5
	// STORE_OP_WARN_THRESHOLD is the store call duration that triggers an opmon warning
	STORE_OP_WARN_THRESHOLD = time.Millisecond * 100

	// For Registry
	// REGISTRY_HEARTBEAT_INTERVAL is the interval between PING broadcasts
	REGISTRY_HEARTBEAT_INTERVAL = time.Second * 10
	// REGISTRY_SERVER_TTL removes servers that missed heartbeats for this long
	REGISTRY_SERVER_TTL = time.Second * 35
	// REGISTRY_REAP_INTERVAL is the interval of the presence reaper
	REGISTRY_REAP_INTERVAL = time.Second * 30

	// For Friends
	// FRIEND_REQUEST_TTL expires pending friend requests after this duration
	FRIEND_REQUEST_TTL = time.Minute * 5
	// FRIEND_SWEEP_INTERVAL is the interval of the friend request expiry sweep
	FRIEND_SWEEP_INTERVAL = time.Second * 10
	// FRIEND_REQUEST_RETENTION prunes terminal friend requests after this duration
	FRIEND_REQUEST_RETENTION = time.Minute * 30

	// For Load Report
	// LBC_COLLECT_INTERVAL is the cpu sampling interval
	LBC_COLLECT_INTERVAL = time.Second * 5

	// For Operation Monitor
	// OPMON_DUMP_INTERVAL is the interval to print opmon infos to output
	OPMON_DUMP_INTERVAL = 0
)

// Shared Redis keys
const (
	// ONLINE_SERVERS_KEY is the redis set of serialized online servers
	ONLINE_SERVERS_KEY = "online_servers"
	// PLAYER_RANKS_KEY is the redis hash of uuid => rank name
	PLAYER_RANKS_KEY = "player_ranks"
)

// Debug Options
const (
	// DEBUG_MESSAGES prints every delivered bus message
	DEBUG_MESSAGES = false
	// DEBUG_STORE prints durable store calls
	DEBUG_STORE = false
)
