package common

import (
	"sync"

	"github.com/google/uuid"
)

// LocalPlayers is the game server's view of the players connected to this node
type LocalPlayers interface {
	// Online returns the players currently connected to this node
	Online() []uuid.UUID
	// Deliver shows a serialized chat component to a connected player
	Deliver(id uuid.UUID, component string)
}

// MemoryPlayers is a LocalPlayers kept in memory. It records delivered components.
type MemoryPlayers struct {
	lock      sync.Mutex
	online    UUIDSet
	delivered map[uuid.UUID][]string
}

// NewMemoryPlayers creates an empty MemoryPlayers
func NewMemoryPlayers() *MemoryPlayers {
	return &MemoryPlayers{
		online:    UUIDSet{},
		delivered: map[uuid.UUID][]string{},
	}
}

// Join marks a player as connected
func (mp *MemoryPlayers) Join(id uuid.UUID) {
	mp.lock.Lock()
	mp.online.Add(id)
	mp.lock.Unlock()
}

// Leave marks a player as disconnected
func (mp *MemoryPlayers) Leave(id uuid.UUID) {
	mp.lock.Lock()
	mp.online.Remove(id)
	mp.lock.Unlock()
}

func (mp *MemoryPlayers) Online() []uuid.UUID {
	mp.lock.Lock()
	defer mp.lock.Unlock()
	return mp.online.ToList()
}

func (mp *MemoryPlayers) Deliver(id uuid.UUID, component string) {
	mp.lock.Lock()
	defer mp.lock.Unlock()
	if mp.online.Contains(id) {
		mp.delivered[id] = append(mp.delivered[id], component)
	}
}

// Delivered returns the components delivered to a player
func (mp *MemoryPlayers) Delivered(id uuid.UUID) []string {
	mp.lock.Lock()
	defer mp.lock.Unlock()
	return append([]string(nil), mp.delivered[id]...)
}
