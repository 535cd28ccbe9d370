// Package kvcache holds the network-wide caches shared through redis: the set of online
// servers and the player rank hash. They let a starting node warm its registry and rank
// cache before any bus message arrives.
package kvcache

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/netstate"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/pkg/errors"
)

// Cache is the shared cache engine
type Cache interface {
	AddServer(rec netstate.ServerRecord) error
	RemoveServer(id string) error
	Servers() ([]netstate.ServerRecord, error)
	GetRank(id uuid.UUID) (rank common.Rank, ok bool, err error)
	SetRank(id uuid.UUID, rank common.Rank) error
	Close() error
}

func encodeServer(rec netstate.ServerRecord) string {
	return strings.Join([]string{rec.ID, rec.Address, strconv.Itoa(rec.Port)}, proto.Delimiter)
}

func decodeServer(member string) (netstate.ServerRecord, error) {
	fields := strings.Split(member, proto.Delimiter)
	if len(fields) != 3 || fields[0] == "" {
		return netstate.ServerRecord{}, errors.Errorf("bad server entry %q", member)
	}
	port, err := strconv.Atoi(fields[2])
	if err != nil {
		return netstate.ServerRecord{}, errors.Wrapf(err, "bad server entry %q", member)
	}
	return netstate.ServerRecord{ID: fields[0], Address: fields[1], Port: port}, nil
}

func serverID(member string) string {
	if i := strings.Index(member, proto.Delimiter); i >= 0 {
		return member[:i]
	}
	return member
}

// MemoryCache is a process local Cache
type MemoryCache struct {
	lock    sync.Mutex
	servers map[string]string
	ranks   map[uuid.UUID]common.Rank
}

// NewMemoryCache creates an empty MemoryCache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		servers: map[string]string{},
		ranks:   map[uuid.UUID]common.Rank{},
	}
}

func (c *MemoryCache) AddServer(rec netstate.ServerRecord) error {
	c.lock.Lock()
	c.servers[rec.ID] = encodeServer(rec)
	c.lock.Unlock()
	return nil
}

func (c *MemoryCache) RemoveServer(id string) error {
	c.lock.Lock()
	delete(c.servers, id)
	c.lock.Unlock()
	return nil
}

func (c *MemoryCache) Servers() ([]netstate.ServerRecord, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	servers := make([]netstate.ServerRecord, 0, len(c.servers))
	for _, member := range c.servers {
		rec, err := decodeServer(member)
		if err != nil {
			return nil, err
		}
		servers = append(servers, rec)
	}
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].ID < servers[j].ID
	})
	return servers, nil
}

func (c *MemoryCache) GetRank(id uuid.UUID) (common.Rank, bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	rank, ok := c.ranks[id]
	return rank, ok, nil
}

func (c *MemoryCache) SetRank(id uuid.UUID, rank common.Rank) error {
	c.lock.Lock()
	c.ranks[id] = rank
	c.lock.Unlock()
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
