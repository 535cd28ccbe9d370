package storemem

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/store/storecommon"
)

// Backend is a durable store kept in process memory, used by tests and single node setups
type Backend struct {
	lock        sync.Mutex
	ranks       map[uuid.UUID]common.Rank
	mutes       map[uuid.UUID]time.Time
	audit       []storecommon.AuditEntry
	requests    map[uuid.UUID]storecommon.FriendRequestRecord
	friends     map[uuid.UUID]common.UUIDSet
	preferences map[uuid.UUID][]byte

	delay   time.Duration
	failure error
}

// Open creates an empty memory backend
func Open() *Backend {
	return &Backend{
		ranks:       map[uuid.UUID]common.Rank{},
		mutes:       map[uuid.UUID]time.Time{},
		requests:    map[uuid.UUID]storecommon.FriendRequestRecord{},
		friends:     map[uuid.UUID]common.UUIDSet{},
		preferences: map[uuid.UUID][]byte{},
	}
}

// SetDelay makes every following call sleep d before running
func (b *Backend) SetDelay(d time.Duration) {
	b.lock.Lock()
	b.delay = d
	b.lock.Unlock()
}

// SetFailure makes every following call fail with err, until reset with nil
func (b *Backend) SetFailure(err error) {
	b.lock.Lock()
	b.failure = err
	b.lock.Unlock()
}

func (b *Backend) enter() error {
	b.lock.Lock()
	delay, failure := b.delay, b.failure
	b.lock.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if failure != nil {
		return failure
	}
	b.lock.Lock()
	return nil
}

func (b *Backend) GetRank(id uuid.UUID) (common.Rank, bool, error) {
	if err := b.enter(); err != nil {
		return common.RankDefault, false, err
	}
	defer b.lock.Unlock()
	rank, ok := b.ranks[id]
	return rank, ok, nil
}

func (b *Backend) SetRank(id uuid.UUID, rank common.Rank) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.lock.Unlock()
	b.ranks[id] = rank
	return nil
}

func (b *Backend) IsMuted(id uuid.UUID, now time.Time) (bool, error) {
	if err := b.enter(); err != nil {
		return false, err
	}
	defer b.lock.Unlock()
	until, ok := b.mutes[id]
	if !ok {
		return false, nil
	}
	return until.IsZero() || until.After(now), nil
}

func (b *Backend) MutePlayer(id uuid.UUID, until time.Time) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.lock.Unlock()
	b.mutes[id] = until
	return nil
}

func (b *Backend) UnmutePlayer(id uuid.UUID) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.lock.Unlock()
	delete(b.mutes, id)
	return nil
}

func (b *Backend) RecordAuditEntry(entry storecommon.AuditEntry) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.lock.Unlock()
	b.audit = append(b.audit, entry)
	return nil
}

// AuditEntries returns the recorded audit log of target
func (b *Backend) AuditEntries(target uuid.UUID) []storecommon.AuditEntry {
	b.lock.Lock()
	defer b.lock.Unlock()
	var entries []storecommon.AuditEntry
	for _, e := range b.audit {
		if e.Target == target {
			entries = append(entries, e)
		}
	}
	return entries
}

func (b *Backend) SaveFriendRequest(req storecommon.FriendRequestRecord) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.lock.Unlock()
	b.requests[req.ID] = req
	return nil
}

// FriendRequest returns a saved friend request
func (b *Backend) FriendRequest(id uuid.UUID) (storecommon.FriendRequestRecord, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	req, ok := b.requests[id]
	return req, ok
}

func (b *Backend) LoadFriends(id uuid.UUID) ([]uuid.UUID, error) {
	if err := b.enter(); err != nil {
		return nil, err
	}
	defer b.lock.Unlock()
	friends := b.friends[id].ToList()
	sort.Slice(friends, func(i, j int) bool {
		return friends[i].String() < friends[j].String()
	})
	return friends, nil
}

func (b *Backend) addEdge(a, c uuid.UUID) {
	set := b.friends[a]
	if set == nil {
		set = common.UUIDSet{}
		b.friends[a] = set
	}
	set.Add(c)
}

func (b *Backend) AddFriendship(a, c uuid.UUID) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.lock.Unlock()
	b.addEdge(a, c)
	b.addEdge(c, a)
	return nil
}

func (b *Backend) RemoveFriendship(a, c uuid.UUID) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.lock.Unlock()
	b.friends[a].Remove(c)
	b.friends[c].Remove(a)
	return nil
}

func (b *Backend) LoadPreferences(id uuid.UUID) ([]byte, error) {
	if err := b.enter(); err != nil {
		return nil, err
	}
	defer b.lock.Unlock()
	blob, ok := b.preferences[id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), blob...), nil
}

func (b *Backend) SavePreferences(id uuid.UUID, blob []byte) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.lock.Unlock()
	b.preferences[id] = append([]byte(nil), blob...)
	return nil
}

func (b *Backend) Close() error {
	return nil
}
