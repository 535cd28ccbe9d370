package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/config"
	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/opmon"
	"github.com/lattice-mc/netsync/engine/store/backend/storemem"
	"github.com/lattice-mc/netsync/engine/store/backend/storemongo"
	"github.com/lattice-mc/netsync/engine/store/backend/storemysql"
	"github.com/lattice-mc/netsync/engine/store/storecommon"
	"github.com/pkg/errors"
)

// ErrTimeout completes store calls that did not finish within the store timeout
var ErrTimeout = async.ErrTimeout

// AuditEntry is one moderation action kept in the audit log
type AuditEntry = storecommon.AuditEntry

// FriendRequestRecord is the durable form of a friend request
type FriendRequestRecord = storecommon.FriendRequestRecord

// Backend is a synchronous durable store backend
type Backend = storecommon.Backend

// Error is a failed store call
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

// Unwrap returns the backend error
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a store timeout
func IsTimeout(err error) bool {
	return errors.Cause(err) == ErrTimeout
}

// Store runs backend calls on the worker pool and returns futures of their results.
// Calls about one player run in order.
type Store struct {
	backend Backend
	pool    *async.Pool
	timeout time.Duration
	now     func() time.Time
}

// New creates a store over backend
func New(backend Backend, pool *async.Pool, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = consts.STORE_DEFAULT_TIMEOUT
	}
	return &Store{
		backend: backend,
		pool:    pool,
		timeout: timeout,
		now:     time.Now,
	}
}

// OpenBackend opens the backend selected by the storage config
func OpenBackend(cfg *config.StorageConfig) (Backend, error) {
	nslog.Infof("store: opening %s backend", cfg.Type)
	switch cfg.Type {
	case "memory":
		return storemem.Open(), nil
	case "mysql":
		backend, err := storemysql.OpenMySQL(cfg.Url)
		return backend, errors.Wrap(err, "open mysql store")
	case "mongodb":
		backend, err := storemongo.OpenMongoDB(cfg.Url, cfg.DB)
		return backend, errors.Wrap(err, "open mongodb store")
	default:
		return nil, errors.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// Backend returns the underlying backend
func (s *Store) Backend() Backend {
	return s.backend
}

// Pool returns the worker pool store callbacks run on
func (s *Store) Pool() *async.Pool {
	return s.pool
}

// Close closes the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

func playerGroup(id uuid.UUID) string {
	return "player:" + id.String()
}

func run[T any](s *Store, op string, id uuid.UUID, call func() (T, error)) *async.Future[T] {
	return async.Run(s.pool, playerGroup(id), s.timeout, func() (T, error) {
		if consts.DEBUG_STORE {
			nslog.Debugf("store: %s %s", op, id)
		}
		monOp := opmon.StartOperation("store." + op)
		val, err := call()
		monOp.Finish(consts.STORE_OP_WARN_THRESHOLD)
		if err != nil {
			nslog.Errorf("store: %s %s failed: %v", op, id, err)
			return val, &Error{Op: op, Err: err}
		}
		return val, nil
	})
}

// GetRank loads a player's rank; players without a stored rank are DEFAULT
func (s *Store) GetRank(id uuid.UUID) *async.Future[common.Rank] {
	return run(s, "GetRank", id, func() (common.Rank, error) {
		rank, _, err := s.backend.GetRank(id)
		return rank, err
	})
}

// SetRank stores a player's rank
func (s *Store) SetRank(id uuid.UUID, rank common.Rank) *async.Future[struct{}] {
	return run(s, "SetRank", id, func() (struct{}, error) {
		return struct{}{}, s.backend.SetRank(id, rank)
	})
}

// IsMuted reports whether a player is muted right now
func (s *Store) IsMuted(id uuid.UUID) *async.Future[bool] {
	return run(s, "IsMuted", id, func() (bool, error) {
		return s.backend.IsMuted(id, s.now())
	})
}

// MutePlayer mutes a player until the given time, forever when until is zero
func (s *Store) MutePlayer(id uuid.UUID, until time.Time) *async.Future[struct{}] {
	return run(s, "MutePlayer", id, func() (struct{}, error) {
		return struct{}{}, s.backend.MutePlayer(id, until)
	})
}

// UnmutePlayer lifts a mute
func (s *Store) UnmutePlayer(id uuid.UUID) *async.Future[struct{}] {
	return run(s, "UnmutePlayer", id, func() (struct{}, error) {
		return struct{}{}, s.backend.UnmutePlayer(id)
	})
}

// RecordAuditEntry appends to the audit log of the entry's target
func (s *Store) RecordAuditEntry(entry AuditEntry) *async.Future[struct{}] {
	if entry.At.IsZero() {
		entry.At = s.now()
	}
	return run(s, "RecordAuditEntry", entry.Target, func() (struct{}, error) {
		return struct{}{}, s.backend.RecordAuditEntry(entry)
	})
}

// SaveFriendRequest stores a friend request in its current state
func (s *Store) SaveFriendRequest(req FriendRequestRecord) *async.Future[struct{}] {
	return run(s, "SaveFriendRequest", req.Sender, func() (struct{}, error) {
		return struct{}{}, s.backend.SaveFriendRequest(req)
	})
}

// LoadFriends loads a player's friend list
func (s *Store) LoadFriends(id uuid.UUID) *async.Future[[]uuid.UUID] {
	return run(s, "LoadFriends", id, func() ([]uuid.UUID, error) {
		return s.backend.LoadFriends(id)
	})
}

// AddFriendship stores the friendship of a and b in both directions
func (s *Store) AddFriendship(a, b uuid.UUID) *async.Future[struct{}] {
	return run(s, "AddFriendship", a, func() (struct{}, error) {
		return struct{}{}, s.backend.AddFriendship(a, b)
	})
}

// RemoveFriendship removes the friendship of a and b in both directions
func (s *Store) RemoveFriendship(a, b uuid.UUID) *async.Future[struct{}] {
	return run(s, "RemoveFriendship", a, func() (struct{}, error) {
		return struct{}{}, s.backend.RemoveFriendship(a, b)
	})
}

// LoadPreferences loads a player's preference blob, nil when none was saved
func (s *Store) LoadPreferences(id uuid.UUID) *async.Future[[]byte] {
	return run(s, "LoadPreferences", id, func() ([]byte, error) {
		return s.backend.LoadPreferences(id)
	})
}

// SavePreferences stores a player's preference blob
func (s *Store) SavePreferences(id uuid.UUID, blob []byte) *async.Future[struct{}] {
	return run(s, "SavePreferences", id, func() (struct{}, error) {
		return struct{}{}, s.backend.SavePreferences(id, blob)
	})
}
