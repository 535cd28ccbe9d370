package channels

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/chat"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/friend"
	"github.com/lattice-mc/netsync/engine/netstate"
	"github.com/lattice-mc/netsync/engine/pref"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/rank"
	"github.com/lattice-mc/netsync/engine/store"
	"github.com/lattice-mc/netsync/engine/store/backend/storemem"
)

type recordingProxy struct {
	lock sync.Mutex
	cmds []proto.PlayerSend
}

func (p *recordingProxy) SendPlayer(cmd proto.PlayerSend) {
	p.lock.Lock()
	p.cmds = append(p.cmds, cmd)
	p.lock.Unlock()
}

type fixture struct {
	deps     Deps
	handlers map[string]bus.Handler
	players  *common.MemoryPlayers
	proxy    *recordingProxy
}

func newFixture(t *testing.T) *fixture {
	pool, err := async.NewPool(8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Shutdown)
	st := store.New(storemem.Open(), pool, time.Second)
	rec := &bus.Recorder{}
	registry := netstate.New()
	ranks := rank.NewManager(st, nil, registry, rec, pool)
	prefs := pref.NewManager(st)
	f := &fixture{
		players: common.NewMemoryPlayers(),
		proxy:   &recordingProxy{},
	}
	f.deps = Deps{
		ServerID: "lobby-1",
		Registry: registry,
		Ranks:    ranks,
		Friends:  friend.NewManager("lobby-1", st, rec, pool, prefs, friend.Options{}),
		Chat:     chat.New(ranks, prefs, f.players, rec),
		Proxy:    f.proxy,
	}
	f.handlers = Handlers(f.deps)
	return f
}

func (f *fixture) deliver(topic string, payloads ...string) {
	for _, p := range payloads {
		f.handlers[topic](p)
	}
}

func TestHandlersCoverDeps(t *testing.T) {
	f := newFixture(t)
	_, ok := f.handlers[proto.TopicSnoops]
	assert.T(t, !ok)
	for _, topic := range proto.FriendTopics {
		_, ok := f.handlers[topic]
		assert.T(t, ok)
	}
	assert.Equal(t, 0, len(Handlers(Deps{})))
}

func TestServerStatusIdempotent(t *testing.T) {
	f := newFixture(t)
	start := proto.ServerStatus{Action: proto.ServerStart, ServerID: "hub-2", Address: "10.0.0.12", Port: 25566}.Encode()
	stop := proto.ServerStatus{Action: proto.ServerStop, ServerID: "hub-2", Address: "10.0.0.12", Port: 25566}.Encode()

	f.deliver(proto.TopicServerStatus, start, start)
	assert.Equal(t, 1, len(f.deps.Registry.Servers()))

	f.deliver(proto.TopicServerStatus, stop, stop)
	assert.Equal(t, 0, len(f.deps.Registry.Servers()))

	// last message per server wins
	f.deliver(proto.TopicServerStatus, start, stop, start)
	rec, ok := f.deps.Registry.Server("hub-2")
	assert.T(t, ok)
	assert.Equal(t, 25566, rec.Port)
}

func TestPingUpdatesLoad(t *testing.T) {
	f := newFixture(t)
	ping := proto.ServerStatus{Action: proto.ServerPing, ServerID: "hub-2", Address: "10.0.0.12", Port: 25566, CPUPercent: 37.5}.Encode()
	f.deliver(proto.TopicServerStatus, ping)
	rec, ok := f.deps.Registry.Server("hub-2")
	assert.T(t, ok)
	assert.Equal(t, 37.5, rec.CPUPercent)
}

func TestOwnStopIgnored(t *testing.T) {
	f := newFixture(t)
	f.deliver(proto.TopicServerStatus,
		proto.ServerStatus{Action: proto.ServerStart, ServerID: "lobby-1", Address: "10.0.0.11", Port: 25565}.Encode(),
		proto.ServerStatus{Action: proto.ServerStop, ServerID: "lobby-1", Address: "10.0.0.11", Port: 25565}.Encode())
	_, ok := f.deps.Registry.Server("lobby-1")
	assert.T(t, ok)
}

func TestLobbyScenario(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.deliver(proto.TopicServerStatus, proto.ServerStatus{Action: proto.ServerStart, ServerID: "lobby-2", Address: "10.0.0.13", Port: 25565}.Encode())
	f.deliver(proto.TopicPlayerStatus, proto.PlayerStatus{Action: proto.PlayerLogin, UUID: id, Username: "Steve"}.Encode())
	f.deliver(proto.TopicPlayerServerChange, proto.PlayerServerChange{UUID: id, ServerID: "lobby-2"}.Encode())
	f.deliver(proto.TopicServerStatus, proto.ServerStatus{Action: proto.ServerStop, ServerID: "lobby-2", Address: "10.0.0.13", Port: 25565}.Encode())

	p, ok := f.deps.Registry.Presence(id)
	assert.T(t, ok)
	assert.Equal(t, "lobby-2", p.ServerID)
	assert.Equal(t, 0, len(f.deps.Registry.Servers()))

	logout := proto.PlayerStatus{Action: proto.PlayerLogout, UUID: id, Username: "Steve"}.Encode()
	f.deliver(proto.TopicPlayerStatus, logout, logout)
	assert.T(t, !f.deps.Registry.IsOnline(id))
}

func TestMalformedDropped(t *testing.T) {
	f := newFixture(t)
	f.deliver(proto.TopicServerStatus, "", "REBOOT|:|x|:|y|:|z", "START|:|hub-2|:|10.0.0.12|:|port")
	f.deliver(proto.TopicPlayerStatus, "LOGIN|:|not-a-uuid|:|Steve")
	f.deliver(proto.TopicFriendRequestSent, "garbage")
	f.deliver(proto.TopicPlayerRankUpdate, uuid.New().String()+"|:|EMPEROR")
	assert.Equal(t, 0, len(f.deps.Registry.Servers()))
	assert.Equal(t, 0, f.deps.Registry.OnlineCount())
}

func TestRankUpdate(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	msg := proto.RankUpdate{UUID: id, Rank: common.RankAdmin}.Encode()
	f.deliver(proto.TopicPlayerRankUpdate, msg, msg)
	r, ok := f.deps.Registry.CachedRank(id)
	assert.T(t, ok)
	assert.Equal(t, common.RankAdmin, r)
}

func TestFriendEventsIdempotent(t *testing.T) {
	f := newFixture(t)
	a, b := uuid.New(), uuid.New()
	ev := proto.FriendEvent{Sender: a, Recipient: b, RequestID: uuid.New()}
	f.deliver(proto.TopicFriendRequestSent, ev.Encode(), ev.Encode())
	assert.Equal(t, 1, len(f.deps.Friends.Pending(b)))
	f.deliver(proto.TopicFriendRequestAccepted, ev.Encode(), ev.Encode())
	assert.T(t, f.deps.Friends.AreFriends(a, b))
	f.deliver(proto.TopicFriendRemoved, ev.Encode(), ev.Encode())
	assert.T(t, !f.deps.Friends.AreFriends(a, b))
}

func TestPlayerSendAndChat(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.players.Join(id)
	f.deliver(proto.TopicPlayerSend, proto.PlayerSend{UUID: id, ServerID: "hub-2"}.Encode())
	assert.Equal(t, []proto.PlayerSend{{UUID: id, ServerID: "hub-2"}}, f.proxy.cmds)

	f.deliver(proto.TopicChatChannels, proto.ChatMessage{Component: "hi", Channel: common.ChannelAll}.Encode())
	f.deliver(proto.TopicChatChannels, proto.ChatMessage{Component: "psst", Channel: common.ChannelStaff}.Encode())
	f.deliver(proto.TopicBroadcast, proto.Broadcast{Component: "restart"}.Encode())
	assert.Equal(t, []string{"hi", "restart"}, f.players.Delivered(id))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	transport := bus.NewMemoryTransport()
	b := bus.New(transport)
	defer b.Close()
	subs, err := Register(b, f.deps)
	assert.Equal(t, nil, err)
	assert.Equal(t, len(f.handlers), len(subs))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for transport.Listeners(proto.TopicServerStatus) == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("server-status was never subscribed")
		case <-time.After(time.Millisecond):
		}
	}
	assert.Equal(t, nil, b.Publish(proto.TopicServerStatus,
		proto.ServerStatus{Action: proto.ServerStart, ServerID: "hub-2", Address: "10.0.0.12", Port: 25566}.Encode()))
	for {
		if _, ok := f.deps.Registry.Server("hub-2"); ok {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatal("server-status was not applied")
		case <-time.After(time.Millisecond):
		}
	}
	for _, s := range subs {
		s.Cancel()
	}
}
