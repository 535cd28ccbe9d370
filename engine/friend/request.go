package friend

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/petar/GoLLRB/llrb"
)

// State is the lifecycle state of a friend request
type State int

// Request states. PENDING is the only non terminal state.
const (
	Pending State = iota
	Accepted
	Declined
	Expired
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Accepted:
		return "ACCEPTED"
	case Declined:
		return "DECLINED"
	case Expired:
		return "EXPIRED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Request is a friend request. Origin is the server that created it and that alone expires it.
type Request struct {
	ID        uuid.UUID
	Sender    uuid.UUID
	Recipient uuid.UUID
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
	Origin    string
}

// Involves reports whether id is the sender or the recipient
func (r Request) Involves(id uuid.UUID) bool {
	return r.Sender == id || r.Recipient == id
}

func lessID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

type pairKey struct {
	lo, hi uuid.UUID
}

func newPairKey(a, b uuid.UUID) pairKey {
	if lessID(b, a) {
		a, b = b, a
	}
	return pairKey{a, b}
}

// expiryItem orders pending requests by creation time in the expiry index
type expiryItem struct {
	at time.Time
	id uuid.UUID
}

func (it expiryItem) Less(_other llrb.Item) bool {
	other := _other.(expiryItem)
	if !it.at.Equal(other.at) {
		return it.at.Before(other.at)
	}
	return lessID(it.id, other.id)
}
