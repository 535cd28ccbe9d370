package kvcache

import (
	"sort"

	"github.com/garyburd/redigo/redis"
	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/netstate"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/pkg/errors"
)

// RedisCache keeps the shared caches in a redis set and a redis hash
type RedisCache struct {
	pool *redis.Pool
}

// NewRedisCache creates a RedisCache on a redigo pool. The pool is not closed by the cache.
func NewRedisCache(pool *redis.Pool) *RedisCache {
	return &RedisCache{pool: pool}
}

func (c *RedisCache) do(cmd string, args ...interface{}) (interface{}, error) {
	conn := c.pool.Get()
	defer conn.Close()
	return conn.Do(cmd, args...)
}

// AddServer replaces any entry of the same server id in the online servers set
func (c *RedisCache) AddServer(rec netstate.ServerRecord) error {
	if err := c.RemoveServer(rec.ID); err != nil {
		return err
	}
	_, err := c.do("SADD", consts.ONLINE_SERVERS_KEY, encodeServer(rec))
	return errors.Wrap(err, "redis SADD online servers")
}

// RemoveServer removes every entry of id from the online servers set
func (c *RedisCache) RemoveServer(id string) error {
	members, err := redis.Strings(c.do("SMEMBERS", consts.ONLINE_SERVERS_KEY))
	if err != nil {
		return errors.Wrap(err, "redis SMEMBERS online servers")
	}
	args := redis.Args{}.Add(consts.ONLINE_SERVERS_KEY)
	for _, member := range members {
		if serverID(member) == id {
			args = args.Add(member)
		}
	}
	if len(args) == 1 {
		return nil
	}
	_, err = c.do("SREM", args...)
	return errors.Wrap(err, "redis SREM online servers")
}

// Servers reads the online servers set. Malformed entries are skipped.
func (c *RedisCache) Servers() ([]netstate.ServerRecord, error) {
	members, err := redis.Strings(c.do("SMEMBERS", consts.ONLINE_SERVERS_KEY))
	if err != nil {
		return nil, errors.Wrap(err, "redis SMEMBERS online servers")
	}
	servers := make([]netstate.ServerRecord, 0, len(members))
	for _, member := range members {
		rec, err := decodeServer(member)
		if err != nil {
			nslog.Warnf("kvcache: %v", err)
			continue
		}
		servers = append(servers, rec)
	}
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].ID < servers[j].ID
	})
	return servers, nil
}

// GetRank reads a player's rank from the shared rank hash
func (c *RedisCache) GetRank(id uuid.UUID) (common.Rank, bool, error) {
	name, err := redis.String(c.do("HGET", consts.PLAYER_RANKS_KEY, id.String()))
	if err == redis.ErrNil {
		return common.RankDefault, false, nil
	}
	if err != nil {
		return common.RankDefault, false, errors.Wrap(err, "redis HGET player ranks")
	}
	rank, err := common.ParseRank(name)
	if err != nil {
		return common.RankDefault, false, err
	}
	return rank, true, nil
}

// SetRank writes a player's rank to the shared rank hash
func (c *RedisCache) SetRank(id uuid.UUID, rank common.Rank) error {
	_, err := c.do("HSET", consts.PLAYER_RANKS_KEY, id.String(), rank.String())
	return errors.Wrap(err, "redis HSET player ranks")
}

func (c *RedisCache) Close() error {
	return nil
}
