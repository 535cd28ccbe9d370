package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/config"
	"github.com/lattice-mc/netsync/engine/friend"
	"github.com/lattice-mc/netsync/engine/kvcache"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/store/backend/storemem"
	"github.com/pkg/errors"
)

// sharedTransport lets several nodes of one test use the same transport
type sharedTransport struct {
	*bus.MemoryTransport
}

func (sharedTransport) Close() error {
	return nil
}

type fixedSampler float64

func (s fixedSampler) CPUPercent(ctx context.Context) (float64, error) {
	return float64(s), nil
}

type recordingProxy struct {
	lock sync.Mutex
	cmds []proto.PlayerSend
}

func (p *recordingProxy) SendPlayer(cmd proto.PlayerSend) {
	p.lock.Lock()
	p.cmds = append(p.cmds, cmd)
	p.lock.Unlock()
}

func (p *recordingProxy) Commands() []proto.PlayerSend {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]proto.PlayerSend(nil), p.cmds...)
}

type network struct {
	transport *bus.MemoryTransport
	cache     *kvcache.MemoryCache
	backend   *storemem.Backend
}

func newNetwork() *network {
	return &network{
		transport: bus.NewMemoryTransport(),
		cache:     kvcache.NewMemoryCache(),
		backend:   storemem.Open(),
	}
}

func testConfig(id string, port int) *config.NetsyncConfig {
	cfg := config.Default()
	cfg.Server.ID = id
	cfg.Server.Address = "10.0.0.11"
	cfg.Server.Port = port
	cfg.Workers.PoolSize = 16
	cfg.Registry.HeartbeatInterval = 20 * time.Millisecond
	cfg.Registry.ServerTTL = 150 * time.Millisecond
	cfg.Registry.ReapInterval = 50 * time.Millisecond
	cfg.Friends.SweepInterval = 20 * time.Millisecond
	return cfg
}

func (nw *network) start(t *testing.T, id string, port int, proxy Proxy) (*Node, *common.MemoryPlayers) {
	players := common.NewMemoryPlayers()
	n, err := New(testConfig(id, port), Options{
		Players:   players,
		Proxy:     proxy,
		Transport: sharedTransport{nw.transport},
		Cache:     nw.cache,
		Backend:   nw.backend,
		Sampler:   fixedSampler(12.5),
	})
	if err != nil {
		t.Fatal(err)
	}
	listeners := nw.transport.Listeners(proto.TopicServerStatus)
	if err := n.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(n.Stop)
	// wait until the node receives every topic
	eventually(t, "subscriptions", func() bool {
		return nw.transport.Listeners(proto.TopicServerStatus) > listeners
	})
	return n, players
}

func eventually(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("", 25565)
	_, err := New(cfg, Options{})
	assert.NotEqual(t, nil, err)
}

func TestServersDiscoverEachOther(t *testing.T) {
	nw := newNetwork()
	lobby, _ := nw.start(t, "lobby-1", 25565, nil)
	hub, _ := nw.start(t, "hub-2", 25566, nil)

	// hub-2 read lobby-1 from the shared set, lobby-1 heard hub-2 START
	_, ok := hub.Registry().Server("lobby-1")
	assert.T(t, ok)
	eventually(t, "lobby-1 to see hub-2", func() bool {
		_, ok := lobby.Registry().Server("hub-2")
		return ok
	})
	eventually(t, "heartbeat load", func() bool {
		rec, _ := lobby.Registry().Server("hub-2")
		return rec.CPUPercent == 12.5
	})

	hub.Stop()
	eventually(t, "hub-2 to leave", func() bool {
		_, ok := lobby.Registry().Server("hub-2")
		return !ok
	})
	servers, _ := nw.cache.Servers()
	assert.Equal(t, 1, len(servers))
	assert.Equal(t, "lobby-1", servers[0].ID)
}

func TestSilentServerExpires(t *testing.T) {
	nw := newNetwork()
	lobby, _ := nw.start(t, "lobby-1", 25565, nil)
	ghost := proto.ServerStatus{Action: proto.ServerStart, ServerID: "ghost", Address: "10.0.0.99", Port: 1}
	assert.Equal(t, nil, lobby.Bus().Publish(proto.TopicServerStatus, ghost.Encode()))
	eventually(t, "ghost to join", func() bool {
		_, ok := lobby.Registry().Server("ghost")
		return ok
	})
	eventually(t, "ghost to expire", func() bool {
		_, ok := lobby.Registry().Server("ghost")
		return !ok
	})
	_, ok := lobby.Registry().Server("lobby-1")
	assert.T(t, ok)
}

func TestPlayerSessions(t *testing.T) {
	nw := newNetwork()
	lobby, lobbyPlayers := nw.start(t, "lobby-1", 25565, nil)
	hub, _ := nw.start(t, "hub-2", 25566, nil)

	id := uuid.New()
	nw.backend.SetRank(id, common.RankMaster)
	lobbyPlayers.Join(id)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := lobby.PlayerJoined(id, "Steve").Wait(ctx)
	assert.Equal(t, nil, err)
	assert.Equal(t, common.RankMaster, r)

	eventually(t, "hub-2 to see Steve on lobby-1", func() bool {
		p, ok := hub.Registry().LookupName("steve")
		return ok && p.ServerID == "lobby-1"
	})
	eventually(t, "rank to reach hub-2", func() bool {
		r, ok := hub.Registry().CachedRank(id)
		return ok && r == common.RankMaster
	})

	lobbyPlayers.Leave(id)
	lobby.PlayerLeft(id)
	assert.T(t, !lobby.Ranks().Loaded(id))
	eventually(t, "hub-2 to see Steve log out", func() bool {
		return !hub.Registry().IsOnline(id)
	})
}

func TestSendPlayer(t *testing.T) {
	nw := newNetwork()
	proxy := &recordingProxy{}
	lobby, _ := nw.start(t, "lobby-1", 25565, proxy)
	hub, _ := nw.start(t, "hub-2", 25566, nil)
	eventually(t, "lobby-1 to see hub-2", func() bool {
		_, ok := lobby.Registry().Server("hub-2")
		return ok
	})

	id := uuid.New()
	assert.Equal(t, ErrPlayerOffline, lobby.SendPlayer(id, "hub-2"))
	lobby.PlayerJoined(id, "Alex")

	assert.Equal(t, ErrUnknownServer, errors.Cause(lobby.SendPlayer(id, "nowhere")))
	assert.Equal(t, ErrAlreadyOnServer, lobby.SendPlayer(id, "lobby-1"))
	assert.Equal(t, nil, lobby.SendPlayer(id, "hub-2"))
	eventually(t, "proxy to move Alex", func() bool {
		return len(proxy.Commands()) == 1
	})
	assert.Equal(t, proto.PlayerSend{UUID: id, ServerID: "hub-2"}, proxy.Commands()[0])

	// leaving for the transfer does not log the player out
	lobby.PlayerLeft(id)
	hub.PlayerJoined(id, "Alex")
	eventually(t, "Alex on hub-2", func() bool {
		p, ok := lobby.Registry().Presence(id)
		return ok && p.ServerID == "hub-2"
	})
	time.Sleep(20 * time.Millisecond)
	assert.T(t, lobby.Registry().IsOnline(id))
}

func TestSendPlayerFromAnotherServer(t *testing.T) {
	nw := newNetwork()
	proxy := &recordingProxy{}
	lobby, _ := nw.start(t, "lobby-1", 25565, proxy)
	hub, _ := nw.start(t, "hub-2", 25566, nil)
	id := uuid.New()
	lobby.PlayerJoined(id, "Alex")
	eventually(t, "hub-2 to see Alex on lobby-1 and lobby-1 to see hub-2", func() bool {
		p, ok := hub.Registry().Presence(id)
		_, known := hub.Registry().Server("hub-2")
		_, lobbyKnows := lobby.Registry().Server("hub-2")
		return ok && p.ServerID == "lobby-1" && known && lobbyKnows
	})

	assert.Equal(t, nil, hub.SendPlayer(id, "hub-2"))
	eventually(t, "lobby-1 proxy to move Alex", func() bool {
		return len(proxy.Commands()) == 1
	})

	// lobby-1 learned about the transfer from the bus, so leaving is not a logout
	lobby.PlayerLeft(id)
	time.Sleep(50 * time.Millisecond)
	assert.T(t, hub.Registry().IsOnline(id), "no LOGOUT while moving to hub-2")
	hub.PlayerJoined(id, "Alex")
	eventually(t, "Alex on hub-2", func() bool {
		p, ok := lobby.Registry().Presence(id)
		return ok && p.ServerID == "hub-2"
	})
}

func TestFriendsAcrossServers(t *testing.T) {
	nw := newNetwork()
	lobby, _ := nw.start(t, "lobby-1", 25565, nil)
	hub, _ := nw.start(t, "hub-2", 25566, nil)
	a, b := uuid.New(), uuid.New()
	lobby.PlayerJoined(a, "Alex")
	hub.PlayerJoined(b, "Steve")

	req, err := lobby.Friends().SendRequest(a, b)
	assert.Equal(t, nil, err)
	eventually(t, "request to reach hub-2", func() bool {
		return len(hub.Friends().Pending(b)) == 1
	})
	_, err = hub.Friends().SendRequest(b, a)
	assert.Equal(t, friend.ErrDuplicateRequest, err)

	accepted, err := hub.Friends().AcceptFrom(a, b)
	assert.Equal(t, nil, err)
	assert.Equal(t, req.ID, accepted.ID)
	eventually(t, "friendship on lobby-1", func() bool {
		return lobby.Friends().AreFriends(a, b)
	})
}

func TestStatus(t *testing.T) {
	nw := newNetwork()
	lobby, _ := nw.start(t, "lobby-1", 25565, nil)
	lobby.PlayerJoined(uuid.New(), "Alex")
	st := lobby.Status()
	assert.Equal(t, "lobby-1", st.ServerID)
	assert.Equal(t, 1, st.OnlineCount)
	assert.Equal(t, 12.5, st.CPUPercent)
	assert.Equal(t, 16, st.PoolCapacity)
}
