package store

import (
	"context"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/config"
	"github.com/lattice-mc/netsync/engine/store/backend/storemem"
	"github.com/pkg/errors"
)

func newTestStore(t *testing.T, timeout time.Duration) (*Store, *storemem.Backend) {
	pool, err := async.NewPool(8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Shutdown)
	backend := storemem.Open()
	return New(backend, pool, timeout), backend
}

func wait[T any](t *testing.T, f *async.Future[T]) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestRank(t *testing.T) {
	s, _ := newTestStore(t, time.Second)
	id := uuid.New()
	rank, err := wait(t, s.GetRank(id))
	assert.Equal(t, nil, err)
	assert.Equal(t, common.RankDefault, rank)

	_, err = wait(t, s.SetRank(id, common.RankAdmin))
	assert.Equal(t, nil, err)
	rank, _ = wait(t, s.GetRank(id))
	assert.Equal(t, common.RankAdmin, rank)
}

func TestMute(t *testing.T) {
	s, _ := newTestStore(t, time.Second)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	a, b := uuid.New(), uuid.New()

	wait(t, s.MutePlayer(a, now.Add(time.Hour)))
	wait(t, s.MutePlayer(b, now.Add(-time.Hour)))
	muted, _ := wait(t, s.IsMuted(a))
	assert.T(t, muted, "a is muted")
	muted, _ = wait(t, s.IsMuted(b))
	assert.T(t, !muted, "b's mute expired")

	wait(t, s.UnmutePlayer(a))
	muted, _ = wait(t, s.IsMuted(a))
	assert.T(t, !muted, "a unmuted")
}

func TestFriendshipAndPreferences(t *testing.T) {
	s, backend := newTestStore(t, time.Second)
	a, b := uuid.New(), uuid.New()
	wait(t, s.AddFriendship(a, b))
	friends, _ := wait(t, s.LoadFriends(b))
	assert.Equal(t, []uuid.UUID{a}, friends)
	wait(t, s.RemoveFriendship(b, a))
	friends, _ = wait(t, s.LoadFriends(a))
	assert.Equal(t, 0, len(friends))

	blob, err := wait(t, s.LoadPreferences(a))
	assert.Equal(t, nil, err)
	assert.T(t, blob == nil, "no preferences yet")
	wait(t, s.SavePreferences(a, []byte{1, 2, 3}))
	blob, _ = wait(t, s.LoadPreferences(a))
	assert.Equal(t, []byte{1, 2, 3}, blob)

	wait(t, s.RecordAuditEntry(AuditEntry{Target: a, Actor: b, Category: "mute", Reason: "spam"}))
	entries := backend.AuditEntries(a)
	assert.Equal(t, 1, len(entries))
	assert.T(t, !entries[0].At.IsZero(), "audit entry stamped")
}

func TestStoreError(t *testing.T) {
	s, backend := newTestStore(t, time.Second)
	cause := errors.New("connection refused")
	backend.SetFailure(cause)
	_, err := wait(t, s.GetRank(uuid.New()))
	serr, ok := err.(*Error)
	assert.T(t, ok, "want *Error")
	assert.Equal(t, "GetRank", serr.Op)
	assert.Equal(t, cause, serr.Err)
	assert.T(t, errors.Is(err, cause), "unwraps to cause")
	assert.T(t, !IsTimeout(err), "not a timeout")
}

func TestStoreTimeout(t *testing.T) {
	s, backend := newTestStore(t, 20*time.Millisecond)
	backend.SetDelay(200 * time.Millisecond)
	_, err := wait(t, s.SetRank(uuid.New(), common.RankNoble))
	assert.T(t, IsTimeout(err), "want timeout")
}

func TestOpenBackend(t *testing.T) {
	backend, err := OpenBackend(&config.StorageConfig{Type: "memory"})
	assert.Equal(t, nil, err)
	assert.NotEqual(t, nil, backend)
	_, err = OpenBackend(&config.StorageConfig{Type: "filesystem"})
	assert.NotEqual(t, nil, err)
}
