// Package rank caches the ranks of players on this node and keeps the network informed
// of rank changes.
package rank

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/kvcache"
	"github.com/lattice-mc/netsync/engine/netstate"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/store"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// ErrNotInitialized is returned for players whose rank was not loaded with AddPlayer
var ErrNotInitialized = errors.New("rank: player not initialized")

// Manager holds the ranks of the players on this node
type Manager struct {
	store    *store.Store
	cache    kvcache.Cache
	registry *netstate.Registry
	pub      bus.Publisher
	pool     *async.Pool

	lock    sync.RWMutex
	ranks   map[uuid.UUID]common.Rank
	pending common.UUIDSet
	loads   singleflight.Group
}

// NewManager creates a rank manager. cache may be nil.
func NewManager(st *store.Store, cache kvcache.Cache, registry *netstate.Registry, pub bus.Publisher, pool *async.Pool) *Manager {
	return &Manager{
		store:    st,
		cache:    cache,
		registry: registry,
		pub:      pub,
		pool:     pool,
		ranks:    map[uuid.UUID]common.Rank{},
		pending:  common.UUIDSet{},
	}
}

// AddPlayer loads the rank of a player joining this node and announces it to the network.
// Ranks are read from the durable store; the shared player_ranks hash only receives copies.
func (m *Manager) AddPlayer(id uuid.UUID) *async.Future[common.Rank] {
	m.lock.Lock()
	if rank, ok := m.ranks[id]; ok {
		m.lock.Unlock()
		return async.Completed(m.pool, rank, nil)
	}
	m.pending.Add(id)
	m.lock.Unlock()

	f := async.NewFuture[common.Rank](m.pool)
	err := m.pool.Submit(func() {
		v, err, _ := m.loads.Do(id.String(), func() (interface{}, error) {
			return m.load(id)
		})
		if err != nil {
			m.lock.Lock()
			m.pending.Remove(id)
			m.lock.Unlock()
			f.Complete(common.RankDefault, err)
			return
		}
		rank := v.(common.Rank)
		m.lock.Lock()
		stillJoining := m.pending.Contains(id)
		if stillJoining {
			m.pending.Remove(id)
			if cur, ok := m.ranks[id]; ok {
				rank = cur
			} else {
				m.ranks[id] = rank
			}
		}
		m.lock.Unlock()
		if stillJoining {
			m.registry.UpdateRankCache(id, rank)
			m.publish(id, rank)
		}
		f.Complete(rank, nil)
	})
	if err != nil {
		f.Complete(common.RankDefault, err)
	}
	return f
}

func (m *Manager) load(id uuid.UUID) (common.Rank, error) {
	rank, err := m.store.GetRank(id).Wait(context.Background())
	if err != nil {
		return common.RankDefault, err
	}
	m.writeShared(id, rank)
	return rank, nil
}

// writeShared copies a durable rank into the shared player_ranks hash
func (m *Manager) writeShared(id uuid.UUID, rank common.Rank) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SetRank(id, rank); err != nil {
		nslog.Warnf("rank: shared cache write of %s failed: %v", id, err)
	}
}

func (m *Manager) publish(id uuid.UUID, rank common.Rank) {
	bus.PublishAsync(m.pool, m.pub, proto.TopicPlayerRankUpdate, proto.RankUpdate{UUID: id, Rank: rank}.Encode())
}

// RemovePlayer forgets a player leaving this node
func (m *Manager) RemovePlayer(id uuid.UUID) {
	m.lock.Lock()
	delete(m.ranks, id)
	m.pending.Remove(id)
	m.lock.Unlock()
}

// ChangeRank sets a player's rank. The local cache changes immediately; the durable
// write and network broadcast happen asynchronously. The shared hash is written only
// after the durable write succeeds.
func (m *Manager) ChangeRank(id uuid.UUID, rank common.Rank) (*async.Future[struct{}], error) {
	if !rank.Valid() {
		return nil, errors.Errorf("rank: invalid rank %d", int(rank))
	}
	m.lock.Lock()
	if _, ok := m.ranks[id]; !ok {
		m.lock.Unlock()
		return nil, ErrNotInitialized
	}
	m.ranks[id] = rank
	m.lock.Unlock()

	m.registry.UpdateRankCache(id, rank)
	nslog.Infof("rank: %s is now %s", id, rank)
	f := async.Map(m.store.SetRank(id, rank), func(struct{}) struct{} {
		m.writeShared(id, rank)
		return struct{}{}
	})
	m.publish(id, rank)
	return f, nil
}

// ApplyRemote applies a rank broadcast. The local cache only changes for players loaded on this node.
func (m *Manager) ApplyRemote(id uuid.UUID, rank common.Rank) {
	m.registry.UpdateRankCache(id, rank)
	m.lock.Lock()
	if _, ok := m.ranks[id]; ok {
		m.ranks[id] = rank
	}
	m.lock.Unlock()
}

// Loaded reports whether the rank of a player is cached on this node
func (m *Manager) Loaded(id uuid.UUID) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.ranks[id]
	return ok
}

// Rank returns a player's cached rank, DEFAULT when not loaded
func (m *Manager) Rank(id uuid.UUID) common.Rank {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.ranks[id]
}

// NetworkRank returns the rank of any online player from the network view, falling back to the local cache
func (m *Manager) NetworkRank(id uuid.UUID) common.Rank {
	if rank, ok := m.registry.CachedRank(id); ok {
		return rank
	}
	return m.Rank(id)
}

func (m *Manager) IsHelper(id uuid.UUID) bool {
	return m.Rank(id).IsHelper()
}

func (m *Manager) IsStaff(id uuid.UUID) bool {
	return m.Rank(id).IsStaff()
}

func (m *Manager) IsModerator(id uuid.UUID) bool {
	return m.Rank(id).IsModerator()
}

func (m *Manager) IsAdmin(id uuid.UUID) bool {
	return m.Rank(id).IsAdmin()
}

// CanUseChannel reports whether a player's rank allows the chat channel
func (m *Manager) CanUseChannel(id uuid.UUID, ch common.ChatChannel) bool {
	return common.CanUseChannel(m.Rank(id), ch)
}
