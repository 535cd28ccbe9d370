package netstate

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/samber/lo"
)

// ServerRecord is a server known to be part of the network
type ServerRecord struct {
	ID         string
	Address    string
	Port       int
	CPUPercent float64
	LastSeen   time.Time
}

// Presence is a player online somewhere in the network. ServerID is empty until the
// player's server is known.
type Presence struct {
	UUID     uuid.UUID
	Username string
	ServerID string
}

type presenceEntry struct {
	Presence
	updatedAt time.Time
}

type assignment struct {
	serverID  string
	updatedAt time.Time
}

// Registry is the node's view of the network: servers, online players, the server each
// player is on and their ranks. All mutations are idempotent and all reads return copies.
type Registry struct {
	lock        sync.RWMutex
	servers     map[string]ServerRecord
	players     map[uuid.UUID]*presenceEntry
	names       map[string]uuid.UUID
	assignments map[uuid.UUID]assignment
	ranks       map[uuid.UUID]common.Rank
	now         func() time.Time
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		servers:     map[string]ServerRecord{},
		players:     map[uuid.UUID]*presenceEntry{},
		names:       map[string]uuid.UUID{},
		assignments: map[uuid.UUID]assignment{},
		ranks:       map[uuid.UUID]common.Rank{},
		now:         time.Now,
	}
}

// SetClock replaces the time source used to stamp records
func (r *Registry) SetClock(now func() time.Time) {
	r.lock.Lock()
	r.now = now
	r.lock.Unlock()
}

// UpsertServer adds or replaces a server record. A zero LastSeen is stamped with the current time.
func (r *Registry) UpsertServer(rec ServerRecord) {
	r.lock.Lock()
	if rec.LastSeen.IsZero() {
		rec.LastSeen = r.now()
	}
	_, known := r.servers[rec.ID]
	r.servers[rec.ID] = rec
	r.lock.Unlock()

	if !known {
		nslog.Infof("netstate: server %s joined (%s:%d)", rec.ID, rec.Address, rec.Port)
	}
}

// RemoveServer forgets a server. Presences on it are left for the reaper.
func (r *Registry) RemoveServer(id string) bool {
	r.lock.Lock()
	_, known := r.servers[id]
	delete(r.servers, id)
	r.lock.Unlock()

	if known {
		nslog.Infof("netstate: server %s left", id)
	}
	return known
}

// TouchServer refreshes the LastSeen of a known server
func (r *Registry) TouchServer(id string, at time.Time) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	rec, ok := r.servers[id]
	if !ok {
		return false
	}
	if at.After(rec.LastSeen) {
		rec.LastSeen = at
		r.servers[id] = rec
	}
	return true
}

// Bootstrap seeds the registry with servers read from the shared cache
func (r *Registry) Bootstrap(servers []ServerRecord) {
	for _, rec := range servers {
		r.UpsertServer(rec)
	}
}

// ExpireServers removes servers not seen since now-ttl, except the ids in keep
func (r *Registry) ExpireServers(now time.Time, ttl time.Duration, keep ...string) []ServerRecord {
	r.lock.Lock()
	var expired []ServerRecord
	for id, rec := range r.servers {
		if lo.Contains(keep, id) {
			continue
		}
		if now.Sub(rec.LastSeen) > ttl {
			expired = append(expired, rec)
			delete(r.servers, id)
		}
	}
	r.lock.Unlock()

	sortServers(expired)
	for _, rec := range expired {
		nslog.Warnf("netstate: server %s expired, last seen %s", rec.ID, rec.LastSeen.Format(time.RFC3339))
	}
	return expired
}

// Servers returns all known servers ordered by id
func (r *Registry) Servers() []ServerRecord {
	r.lock.RLock()
	servers := lo.Values(r.servers)
	r.lock.RUnlock()
	sortServers(servers)
	return servers
}

// Server returns the server record of id
func (r *Registry) Server(id string) (ServerRecord, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	rec, ok := r.servers[id]
	return rec, ok
}

func sortServers(servers []ServerRecord) {
	sort.Slice(servers, func(i, j int) bool {
		return servers[i].ID < servers[j].ID
	})
}

func nameKey(name string) string {
	return strings.ToLower(name)
}

// UpsertPresence marks a player online. A server assignment received before the login is applied.
func (r *Registry) UpsertPresence(id uuid.UUID, username string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := r.now()
	entry := r.players[id]
	if entry == nil {
		entry = &presenceEntry{Presence: Presence{UUID: id}}
		r.players[id] = entry
	} else if entry.Username != username {
		delete(r.names, nameKey(entry.Username))
	}
	entry.Username = username
	entry.updatedAt = now
	r.names[nameKey(username)] = id

	if a, ok := r.assignments[id]; ok {
		entry.ServerID = a.serverID
		delete(r.assignments, id)
	}
}

// RemovePresence marks a player offline
func (r *Registry) RemovePresence(id uuid.UUID) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.assignments, id)
	entry := r.players[id]
	if entry == nil {
		return false
	}
	delete(r.players, id)
	if r.names[nameKey(entry.Username)] == id {
		delete(r.names, nameKey(entry.Username))
	}
	return true
}

// UpdatePresenceServer records the server a player is on. When the player is not online yet
// the assignment is held until the login arrives or the reaper drops it.
func (r *Registry) UpdatePresenceServer(id uuid.UUID, serverID string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := r.now()
	if entry := r.players[id]; entry != nil {
		entry.ServerID = serverID
		entry.updatedAt = now
		return
	}
	r.assignments[id] = assignment{serverID: serverID, updatedAt: now}
}

// ReapPresences drops presences on servers that are no longer known and held assignments
// that never saw a login, once they are older than grace
func (r *Registry) ReapPresences(now time.Time, grace time.Duration) []Presence {
	r.lock.Lock()
	var reaped []Presence
	for id, entry := range r.players {
		if entry.ServerID == "" || now.Sub(entry.updatedAt) <= grace {
			continue
		}
		if _, ok := r.servers[entry.ServerID]; ok {
			continue
		}
		reaped = append(reaped, entry.Presence)
		delete(r.players, id)
		if r.names[nameKey(entry.Username)] == id {
			delete(r.names, nameKey(entry.Username))
		}
	}
	dangling := 0
	for id, a := range r.assignments {
		if now.Sub(a.updatedAt) > grace {
			delete(r.assignments, id)
			dangling++
		}
	}
	r.lock.Unlock()

	if len(reaped) > 0 || dangling > 0 {
		nslog.Infof("netstate: reaped %d orphaned presences and %d dangling assignments", len(reaped), dangling)
	}
	sortPresences(reaped)
	return reaped
}

// Presence returns the presence of a player
func (r *Registry) Presence(id uuid.UUID) (Presence, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	entry := r.players[id]
	if entry == nil {
		return Presence{}, false
	}
	return entry.Presence, true
}

// IsOnline reports whether the player is online anywhere in the network
func (r *Registry) IsOnline(id uuid.UUID) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	_, ok := r.players[id]
	return ok
}

// LookupName finds an online player by username, case insensitive
func (r *Registry) LookupName(username string) (Presence, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.names[nameKey(username)]
	if !ok {
		return Presence{}, false
	}
	return r.players[id].Presence, true
}

// Players returns all online players ordered by username
func (r *Registry) Players() []Presence {
	r.lock.RLock()
	players := lo.MapToSlice(r.players, func(_ uuid.UUID, e *presenceEntry) Presence {
		return e.Presence
	})
	r.lock.RUnlock()
	sortPresences(players)
	return players
}

// PlayersOn returns the players on a server ordered by username
func (r *Registry) PlayersOn(serverID string) []Presence {
	players := lo.Filter(r.Players(), func(p Presence, _ int) bool {
		return p.ServerID == serverID
	})
	return players
}

// PlayerNames returns the usernames of all online players
func (r *Registry) PlayerNames() []string {
	return lo.Map(r.Players(), func(p Presence, _ int) string {
		return p.Username
	})
}

// OnlineCount returns the number of online players
func (r *Registry) OnlineCount() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.players)
}

func sortPresences(players []Presence) {
	sort.Slice(players, func(i, j int) bool {
		a, b := nameKey(players[i].Username), nameKey(players[j].Username)
		if a != b {
			return a < b
		}
		return players[i].UUID.String() < players[j].UUID.String()
	})
}

// UpdateRankCache records the network-wide rank of a player. The last update wins.
func (r *Registry) UpdateRankCache(id uuid.UUID, rank common.Rank) {
	r.lock.Lock()
	r.ranks[id] = rank
	r.lock.Unlock()
}

// RemoveRankCache forgets the rank of a player
func (r *Registry) RemoveRankCache(id uuid.UUID) {
	r.lock.Lock()
	delete(r.ranks, id)
	r.lock.Unlock()
}

// CachedRank returns the network-wide rank of a player
func (r *Registry) CachedRank(id uuid.UUID) (common.Rank, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	rank, ok := r.ranks[id]
	return rank, ok
}

// Snapshot is a point-in-time copy of the registry
type Snapshot struct {
	Servers []ServerRecord
	Players []Presence
}

// Snapshot copies servers and players
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Servers: r.Servers(),
		Players: r.Players(),
	}
}
