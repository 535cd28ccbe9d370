// Package friend manages friend requests and friend lists. Every node mirrors the
// requests it hears about on the bus; the node a request was created on expires it.
package friend

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/store"
	"github.com/petar/GoLLRB/llrb"
	"github.com/pkg/errors"
)

var (
	ErrSelfRequest      = errors.New("friend: cannot befriend yourself")
	ErrAlreadyFriends   = errors.New("friend: already friends")
	ErrDuplicateRequest = errors.New("friend: a request between these players is already pending")
	ErrNotAccepting     = errors.New("friend: player does not accept friend requests")
	ErrRequestNotFound  = errors.New("friend: request not found")
	ErrNotPending       = errors.New("friend: request is no longer pending")
)

// AcceptPolicy tells whether a player currently accepts friend requests
type AcceptPolicy interface {
	AcceptsFriendRequests(id uuid.UUID) bool
}

// Options tunes a Manager
type Options struct {
	RequestTTL time.Duration
	Retention  time.Duration
	Now        func() time.Time
}

// Manager keeps friend requests and the friendship graph of this node
type Manager struct {
	serverID  string
	store     *store.Store
	pub       bus.Publisher
	pool      *async.Pool
	policy    AcceptPolicy
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time

	lock       sync.Mutex
	requests   map[uuid.UUID]*Request
	pending    map[pairKey]uuid.UUID
	expiry     *llrb.LLRB
	friends    map[uuid.UUID]common.UUIDSet
	removed    map[pairKey]time.Time // removals heard before the friendship they end
	ownRemoved map[pairKey]time.Time // removals made on this node, whose echoes are expected
}

// NewManager creates a friend manager for the server serverID. policy may be nil.
func NewManager(serverID string, st *store.Store, pub bus.Publisher, pool *async.Pool, policy AcceptPolicy, opts Options) *Manager {
	if opts.RequestTTL <= 0 {
		opts.RequestTTL = consts.FRIEND_REQUEST_TTL
	}
	if opts.Retention <= 0 {
		opts.Retention = consts.FRIEND_REQUEST_RETENTION
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		serverID:   serverID,
		store:      st,
		pub:        pub,
		pool:       pool,
		policy:     policy,
		ttl:        opts.RequestTTL,
		retention:  opts.Retention,
		now:        opts.Now,
		requests:   map[uuid.UUID]*Request{},
		pending:    map[pairKey]uuid.UUID{},
		expiry:     llrb.New(),
		friends:    map[uuid.UUID]common.UUIDSet{},
		removed:    map[pairKey]time.Time{},
		ownRemoved: map[pairKey]time.Time{},
	}
}

func (m *Manager) addEdgeLocked(a, b uuid.UUID) {
	set := m.friends[a]
	if set == nil {
		set = common.UUIDSet{}
		m.friends[a] = set
	}
	set.Add(b)
}

func (m *Manager) linkLocked(a, b uuid.UUID) {
	m.addEdgeLocked(a, b)
	m.addEdgeLocked(b, a)
}

func (m *Manager) unlinkLocked(a, b uuid.UUID) {
	m.friends[a].Remove(b)
	m.friends[b].Remove(a)
}

func (m *Manager) areFriendsLocked(a, b uuid.UUID) bool {
	return m.friends[a].Contains(b) || m.friends[b].Contains(a)
}

func (m *Manager) insertPendingLocked(req *Request) {
	m.requests[req.ID] = req
	m.pending[newPairKey(req.Sender, req.Recipient)] = req.ID
	m.expiry.ReplaceOrInsert(expiryItem{req.CreatedAt, req.ID})
}

// settleLocked moves a pending request to a terminal state
func (m *Manager) settleLocked(req *Request, state State, now time.Time) {
	key := newPairKey(req.Sender, req.Recipient)
	if m.pending[key] == req.ID {
		delete(m.pending, key)
	}
	m.expiry.Delete(expiryItem{req.CreatedAt, req.ID})
	req.State = state
	req.UpdatedAt = now
}

// dropLocked forgets a pending request entirely
func (m *Manager) dropLocked(req *Request) {
	key := newPairKey(req.Sender, req.Recipient)
	if m.pending[key] == req.ID {
		delete(m.pending, key)
	}
	m.expiry.Delete(expiryItem{req.CreatedAt, req.ID})
	delete(m.requests, req.ID)
}

func (m *Manager) persist(req Request) {
	m.store.SaveFriendRequest(store.FriendRequestRecord{
		ID:        req.ID,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		State:     req.State.String(),
		CreatedAt: req.CreatedAt,
		Origin:    req.Origin,
	}).Then(func(_ struct{}, err error) {
		if err != nil {
			nslog.Errorf("friend: save request %s failed: %v", req.ID, err)
		}
	})
}

func (m *Manager) publish(topic string, sender, recipient, requestID uuid.UUID) {
	ev := proto.FriendEvent{Sender: sender, Recipient: recipient, RequestID: requestID}
	bus.PublishAsync(m.pool, m.pub, topic, ev.Encode())
}

// SendRequest creates a pending request from sender to recipient
func (m *Manager) SendRequest(sender, recipient uuid.UUID) (*Request, error) {
	if sender == recipient {
		return nil, ErrSelfRequest
	}
	if m.policy != nil && !m.policy.AcceptsFriendRequests(recipient) {
		return nil, ErrNotAccepting
	}

	now := m.now()
	m.lock.Lock()
	if m.areFriendsLocked(sender, recipient) {
		m.lock.Unlock()
		return nil, ErrAlreadyFriends
	}
	if _, ok := m.pending[newPairKey(sender, recipient)]; ok {
		m.lock.Unlock()
		return nil, ErrDuplicateRequest
	}
	req := &Request{
		ID:        uuid.New(),
		Sender:    sender,
		Recipient: recipient,
		State:     Pending,
		CreatedAt: now,
		UpdatedAt: now,
		Origin:    m.serverID,
	}
	m.insertPendingLocked(req)
	cp := *req
	m.lock.Unlock()

	nslog.Infof("friend: %s sent request %s to %s", sender, req.ID, recipient)
	m.persist(cp)
	m.publish(proto.TopicFriendRequestSent, sender, recipient, cp.ID)
	return &cp, nil
}

func (m *Manager) resolve(id uuid.UUID, state State, topic string) (*Request, error) {
	now := m.now()
	m.lock.Lock()
	req := m.requests[id]
	if req == nil {
		m.lock.Unlock()
		return nil, ErrRequestNotFound
	}
	if req.State != Pending {
		m.lock.Unlock()
		return nil, ErrNotPending
	}
	m.settleLocked(req, state, now)
	if state == Accepted {
		m.linkLocked(req.Sender, req.Recipient)
	}
	cp := *req
	m.lock.Unlock()

	nslog.Infof("friend: request %s from %s to %s is %s", id, cp.Sender, cp.Recipient, state)
	m.persist(cp)
	if state == Accepted {
		m.store.AddFriendship(cp.Sender, cp.Recipient).Then(func(_ struct{}, err error) {
			if err != nil {
				nslog.Errorf("friend: save friendship %s/%s failed: %v", cp.Sender, cp.Recipient, err)
			}
		})
	}
	m.publish(topic, cp.Sender, cp.Recipient, cp.ID)
	return &cp, nil
}

// Accept accepts a pending request and makes both players friends
func (m *Manager) Accept(id uuid.UUID) (*Request, error) {
	return m.resolve(id, Accepted, proto.TopicFriendRequestAccepted)
}

// Decline declines a pending request
func (m *Manager) Decline(id uuid.UUID) (*Request, error) {
	return m.resolve(id, Declined, proto.TopicFriendRequestDeclined)
}

// Cancel withdraws a pending request
func (m *Manager) Cancel(id uuid.UUID) (*Request, error) {
	return m.resolve(id, Cancelled, proto.TopicFriendRequestCancelled)
}

func (m *Manager) pendingFrom(sender, recipient uuid.UUID) (uuid.UUID, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	id, ok := m.pending[newPairKey(sender, recipient)]
	if !ok || m.requests[id].Sender != sender {
		return uuid.Nil, ErrRequestNotFound
	}
	return id, nil
}

// AcceptFrom accepts the pending request sender sent to recipient
func (m *Manager) AcceptFrom(sender, recipient uuid.UUID) (*Request, error) {
	id, err := m.pendingFrom(sender, recipient)
	if err != nil {
		return nil, err
	}
	return m.Accept(id)
}

// DeclineFrom declines the pending request sender sent to recipient
func (m *Manager) DeclineFrom(sender, recipient uuid.UUID) (*Request, error) {
	id, err := m.pendingFrom(sender, recipient)
	if err != nil {
		return nil, err
	}
	return m.Decline(id)
}

// CancelTo withdraws the pending request sender sent to recipient
func (m *Manager) CancelTo(sender, recipient uuid.UUID) (*Request, error) {
	id, err := m.pendingFrom(sender, recipient)
	if err != nil {
		return nil, err
	}
	return m.Cancel(id)
}

// AddFriend makes a and b friends without a request
func (m *Manager) AddFriend(a, b uuid.UUID) (*async.Future[struct{}], error) {
	if a == b {
		return nil, ErrSelfRequest
	}
	m.lock.Lock()
	if id, ok := m.pending[newPairKey(a, b)]; ok {
		m.settleLocked(m.requests[id], Accepted, m.now())
	}
	m.linkLocked(a, b)
	m.lock.Unlock()

	f := m.store.AddFriendship(a, b)
	m.publish(proto.TopicFriendRequestAccepted, a, b, uuid.Nil)
	return f, nil
}

// RemoveFriend ends the friendship of a and b. Removing a missing friendship is not an error.
func (m *Manager) RemoveFriend(a, b uuid.UUID) *async.Future[struct{}] {
	m.lock.Lock()
	m.unlinkLocked(a, b)
	m.ownRemoved[newPairKey(a, b)] = m.now()
	m.lock.Unlock()

	nslog.Infof("friend: %s and %s are no longer friends", a, b)
	f := m.store.RemoveFriendship(a, b)
	m.publish(proto.TopicFriendRemoved, a, b, uuid.Nil)
	return f
}

// LoadFriends merges a player's stored friend list into the graph
func (m *Manager) LoadFriends(id uuid.UUID) *async.Future[[]uuid.UUID] {
	return async.Map(m.store.LoadFriends(id), func(stored []uuid.UUID) []uuid.UUID {
		m.lock.Lock()
		for _, friend := range stored {
			m.linkLocked(id, friend)
		}
		m.lock.Unlock()
		return m.Friends(id)
	})
}

// UnloadFriends drops the friend list of a player leaving this node
func (m *Manager) UnloadFriends(id uuid.UUID) {
	m.lock.Lock()
	delete(m.friends, id)
	m.lock.Unlock()
}

// Friends returns a player's friends
func (m *Manager) Friends(id uuid.UUID) []uuid.UUID {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.friends[id].ToList()
}

// AreFriends reports whether a and b are friends
func (m *Manager) AreFriends(a, b uuid.UUID) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.areFriendsLocked(a, b)
}

// Request returns a request by id
func (m *Manager) Request(id uuid.UUID) (Request, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	req := m.requests[id]
	if req == nil {
		return Request{}, false
	}
	return *req, true
}

// Pending returns the pending requests a player sent or received, oldest first
func (m *Manager) Pending(id uuid.UUID) []Request {
	m.lock.Lock()
	var res []Request
	for _, reqID := range m.pending {
		req := m.requests[reqID]
		if req.Involves(id) {
			res = append(res, *req)
		}
	}
	m.lock.Unlock()
	sort.Slice(res, func(i, j int) bool {
		return expiryItem{res[i].CreatedAt, res[i].ID}.Less(expiryItem{res[j].CreatedAt, res[j].ID})
	})
	return res
}

// SweepExpired expires pending requests older than the request TTL that were created on
// this server, and prunes settled requests older than the retention. Requests of other
// servers are expired silently after twice the TTL in case their origin is gone.
func (m *Manager) SweepExpired(now time.Time) []Request {
	var expired []Request
	m.lock.Lock()
	var due []uuid.UUID
	m.expiry.AscendLessThan(expiryItem{at: now.Add(-m.ttl).Add(time.Nanosecond)}, func(_item llrb.Item) bool {
		due = append(due, _item.(expiryItem).id)
		return true
	})
	for _, id := range due {
		req := m.requests[id]
		if req.Origin == m.serverID {
			m.settleLocked(req, Expired, now)
			expired = append(expired, *req)
		} else if now.Sub(req.CreatedAt) >= 2*m.ttl {
			nslog.Warnf("friend: request %s from %s was never expired by %s", req.ID, req.Sender, req.Origin)
			m.settleLocked(req, Expired, now)
		}
	}
	for id, req := range m.requests {
		if req.State != Pending && now.Sub(req.UpdatedAt) > m.retention {
			delete(m.requests, id)
		}
	}
	for key, at := range m.removed {
		if now.Sub(at) > m.ttl {
			delete(m.removed, key)
		}
	}
	for key, at := range m.ownRemoved {
		if now.Sub(at) > m.ttl {
			delete(m.ownRemoved, key)
		}
	}
	m.lock.Unlock()

	for _, req := range expired {
		m.persist(req)
		m.publish(proto.TopicFriendRequestExpired, req.Sender, req.Recipient, req.ID)
	}
	return expired
}

// mirroredID returns the request id of an event, derived from the pair when the event carries none
func mirroredID(ev proto.FriendEvent) uuid.UUID {
	if ev.RequestID != uuid.Nil {
		return ev.RequestID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, append(ev.Sender[:], ev.Recipient[:]...))
}

// ApplySent mirrors a request created on another server. Of two concurrent pending requests
// for the same pair the one with the smaller id wins on every node.
func (m *Manager) ApplySent(ev proto.FriendEvent) {
	id := mirroredID(ev)
	now := m.now()
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, known := m.requests[id]; known {
		return
	}
	if ev.Sender == ev.Recipient || m.areFriendsLocked(ev.Sender, ev.Recipient) {
		return
	}
	if otherID, ok := m.pending[newPairKey(ev.Sender, ev.Recipient)]; ok {
		if lessID(otherID, id) {
			return
		}
		nslog.Infof("friend: request %s supersedes concurrent request %s", id, otherID)
		m.dropLocked(m.requests[otherID])
	}
	m.insertPendingLocked(&Request{
		ID:        id,
		Sender:    ev.Sender,
		Recipient: ev.Recipient,
		State:     Pending,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// applySettled mirrors a terminal transition. Topics are delivered independently, so the
// settling event may arrive before the sent event of its request.
func (m *Manager) applySettled(ev proto.FriendEvent, state State) {
	now := m.now()
	key := newPairKey(ev.Sender, ev.Recipient)
	m.lock.Lock()
	defer m.lock.Unlock()

	var req *Request
	if ev.RequestID != uuid.Nil {
		req = m.requests[ev.RequestID]
		if req == nil {
			// tombstone: a late sent event for this id is ignored until pruned
			m.requests[ev.RequestID] = &Request{
				ID:        ev.RequestID,
				Sender:    ev.Sender,
				Recipient: ev.Recipient,
				State:     state,
				CreatedAt: now,
				UpdatedAt: now,
			}
		}
	} else if id, ok := m.pending[key]; ok {
		req = m.requests[id]
	}
	if req != nil && req.State == Pending {
		m.settleLocked(req, state, now)
	}
	if state != Accepted {
		return
	}
	if at, ok := m.removed[key]; ok {
		delete(m.removed, key)
		if now.Sub(at) <= m.ttl {
			nslog.Infof("friend: %s and %s were removed before their acceptance arrived", ev.Sender, ev.Recipient)
			return
		}
	}
	m.linkLocked(ev.Sender, ev.Recipient)
}

// ApplyAccepted mirrors an accepted request; the friendship is added even for unknown requests
func (m *Manager) ApplyAccepted(ev proto.FriendEvent) {
	m.applySettled(ev, Accepted)
}

// ApplyDeclined mirrors a declined request
func (m *Manager) ApplyDeclined(ev proto.FriendEvent) {
	m.applySettled(ev, Declined)
}

// ApplyExpired mirrors an expired request
func (m *Manager) ApplyExpired(ev proto.FriendEvent) {
	m.applySettled(ev, Expired)
}

// ApplyCancelled mirrors a cancelled request
func (m *Manager) ApplyCancelled(ev proto.FriendEvent) {
	m.applySettled(ev, Cancelled)
}

// ApplyRemoved mirrors a removed friendship. A removal of a friendship this node has not
// linked yet is remembered for one request TTL, so the late acceptance does not link it.
func (m *Manager) ApplyRemoved(ev proto.FriendEvent) {
	now := m.now()
	key := newPairKey(ev.Sender, ev.Recipient)
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.areFriendsLocked(ev.Sender, ev.Recipient) {
		m.unlinkLocked(ev.Sender, ev.Recipient)
		return
	}
	if at, ok := m.ownRemoved[key]; ok && now.Sub(at) <= m.ttl {
		// echo of our own removal
		delete(m.ownRemoved, key)
		return
	}
	m.removed[key] = now
}
