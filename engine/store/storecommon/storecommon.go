package storecommon

import (
	"time"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/common"
)

// AuditEntry is one moderation action kept in the audit log
type AuditEntry struct {
	Target   uuid.UUID
	Actor    uuid.UUID
	Category string
	Reason   string
	At       time.Time
}

// FriendRequestRecord is the durable form of a friend request
type FriendRequestRecord struct {
	ID        uuid.UUID
	Sender    uuid.UUID
	Recipient uuid.UUID
	State     string
	CreatedAt time.Time
	Origin    string
}

// Backend defines the interface of durable store backends. Calls are synchronous and
// may block; the store facade runs them on the worker pool.
type Backend interface {
	// GetRank returns the stored rank, ok is false when the player has none
	GetRank(id uuid.UUID) (rank common.Rank, ok bool, err error)
	SetRank(id uuid.UUID, rank common.Rank) error

	// IsMuted reports a mute active at now. A zero until means the mute never ends.
	IsMuted(id uuid.UUID, now time.Time) (bool, error)
	MutePlayer(id uuid.UUID, until time.Time) error
	UnmutePlayer(id uuid.UUID) error
	RecordAuditEntry(entry AuditEntry) error

	SaveFriendRequest(req FriendRequestRecord) error
	LoadFriends(id uuid.UUID) ([]uuid.UUID, error)
	AddFriendship(a, b uuid.UUID) error
	RemoveFriendship(a, b uuid.UUID) error

	// LoadPreferences returns nil when nothing was saved
	LoadPreferences(id uuid.UUID) ([]byte, error)
	SavePreferences(id uuid.UUID, blob []byte) error

	Close() error
}
