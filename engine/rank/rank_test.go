package rank

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/kvcache"
	"github.com/lattice-mc/netsync/engine/netstate"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/store"
	"github.com/lattice-mc/netsync/engine/store/backend/storemem"
	"github.com/pkg/errors"
)

type fixture struct {
	m        *Manager
	backend  *storemem.Backend
	cache    *kvcache.MemoryCache
	registry *netstate.Registry
	rec      *bus.Recorder
}

func newFixture(t *testing.T) *fixture {
	pool, err := async.NewPool(8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Shutdown)
	backend := storemem.Open()
	f := &fixture{
		backend:  backend,
		cache:    kvcache.NewMemoryCache(),
		registry: netstate.New(),
		rec:      &bus.Recorder{},
	}
	f.m = NewManager(store.New(backend, pool, time.Second), f.cache, f.registry, f.rec, pool)
	return f
}

func waitRank(t *testing.T, fut *async.Future[common.Rank]) (common.Rank, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return fut.Wait(ctx)
}

func TestAddPlayerLoadsFromStore(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.backend.SetRank(id, common.RankModerator)

	rank, err := waitRank(t, f.m.AddPlayer(id))
	assert.Equal(t, nil, err)
	assert.Equal(t, common.RankModerator, rank)
	assert.Equal(t, common.RankModerator, f.m.Rank(id))
	assert.T(t, f.m.IsModerator(id), "moderator predicates")

	cached, ok := f.registry.CachedRank(id)
	assert.T(t, ok, "registry updated")
	assert.Equal(t, common.RankModerator, cached)
	shared, ok, _ := f.cache.GetRank(id)
	assert.T(t, ok, "shared cache written back")
	assert.Equal(t, common.RankModerator, shared)

	msgs := f.rec.Wait(proto.TopicPlayerRankUpdate, 1, time.Second)
	assert.Equal(t, 1, len(msgs))
	assert.Equal(t, proto.RankUpdate{UUID: id, Rank: common.RankModerator}.Encode(), msgs[0].Payload)

	// second add is a cache hit
	fut := f.m.AddPlayer(id)
	_, _, done := fut.Result()
	assert.T(t, done, "cache hit completes immediately")
}

func TestAddPlayerIgnoresSharedCache(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.cache.SetRank(id, common.RankOwner)
	rank, err := waitRank(t, f.m.AddPlayer(id))
	assert.Equal(t, nil, err)
	assert.Equal(t, common.RankDefault, rank)
	shared, _, _ := f.cache.GetRank(id)
	assert.Equal(t, common.RankDefault, shared)
}

func TestFailedChangeRankIsNotShared(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	waitRank(t, f.m.AddPlayer(id))

	f.backend.SetFailure(errors.New("db down"))
	fut, err := f.m.ChangeRank(id, common.RankOwner)
	assert.Equal(t, nil, err)
	_, err = fut.Wait(context.Background())
	assert.NotEqual(t, nil, err)
	shared, _, _ := f.cache.GetRank(id)
	assert.Equal(t, common.RankDefault, shared)

	f.backend.SetFailure(nil)
	f.m.RemovePlayer(id)
	rank, err := waitRank(t, f.m.AddPlayer(id))
	assert.Equal(t, nil, err)
	assert.Equal(t, common.RankDefault, rank)
}

func TestAddPlayerCacheHitCallbackIsDeferred(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	waitRank(t, f.m.AddPlayer(id))

	returned := make(chan struct{})
	ran := make(chan bool, 1)
	f.m.AddPlayer(id).Then(func(common.Rank, error) {
		select {
		case <-returned:
			ran <- true
		case <-time.After(time.Second):
			ran <- false
		}
	})
	close(returned)
	assert.T(t, <-ran, "callback runs on the pool after Then returns")
}

func TestConcurrentAddPlayer(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.backend.SetRank(id, common.RankAdmin)
	f.backend.SetDelay(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rank, err := waitRank(t, f.m.AddPlayer(id))
			assert.Equal(t, nil, err)
			assert.Equal(t, common.RankAdmin, rank)
		}()
	}
	wg.Wait()
}

func TestChangeRankRequiresInit(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	_, err := f.m.ChangeRank(id, common.RankAdmin)
	assert.Equal(t, ErrNotInitialized, err)
	assert.Equal(t, common.RankDefault, f.m.Rank(id))
	assert.T(t, !f.m.IsStaff(id), "unloaded players fail closed")
}

func TestChangeRank(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	waitRank(t, f.m.AddPlayer(id))

	fut, err := f.m.ChangeRank(id, common.RankHelper)
	assert.Equal(t, nil, err)
	// read your own write before the durable write completes
	assert.Equal(t, common.RankHelper, f.m.Rank(id))

	_, err = fut.Wait(context.Background())
	assert.Equal(t, nil, err)
	stored, ok, _ := f.backend.GetRank(id)
	assert.T(t, ok, "persisted")
	assert.Equal(t, common.RankHelper, stored)
	shared, _, _ := f.cache.GetRank(id)
	assert.Equal(t, common.RankHelper, shared)

	msgs := f.rec.Wait(proto.TopicPlayerRankUpdate, 2, time.Second)
	assert.Equal(t, 2, len(msgs))
}

func TestStoreFailure(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.backend.SetFailure(errors.New("db down"))
	_, err := waitRank(t, f.m.AddPlayer(id))
	_, ok := err.(*store.Error)
	assert.T(t, ok, "store error surfaces")
	assert.T(t, !f.m.Loaded(id), "failed load leaves player unloaded")
}

func TestRemoveDuringLoad(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.backend.SetDelay(30 * time.Millisecond)
	fut := f.m.AddPlayer(id)
	f.m.RemovePlayer(id)
	waitRank(t, fut)
	assert.T(t, !f.m.Loaded(id), "late load must not resurrect a removed player")
}

func TestApplyRemote(t *testing.T) {
	f := newFixture(t)
	local, remote := uuid.New(), uuid.New()
	waitRank(t, f.m.AddPlayer(local))

	f.m.ApplyRemote(local, common.RankOwner)
	f.m.ApplyRemote(remote, common.RankAdmin)
	f.m.ApplyRemote(remote, common.RankAdmin)

	assert.Equal(t, common.RankOwner, f.m.Rank(local))
	assert.T(t, !f.m.Loaded(remote), "remote players are not loaded")
	assert.Equal(t, common.RankAdmin, f.m.NetworkRank(remote))
}
