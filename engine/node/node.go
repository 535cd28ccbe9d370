// Package node owns the state of one netsync process: the worker pool, the durable store,
// the message bus, the network registry and the domain managers built on them.
package node

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/binutil"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/channels"
	"github.com/lattice-mc/netsync/engine/chat"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/config"
	"github.com/lattice-mc/netsync/engine/consts"
	"github.com/lattice-mc/netsync/engine/friend"
	"github.com/lattice-mc/netsync/engine/kvcache"
	"github.com/lattice-mc/netsync/engine/lbc"
	"github.com/lattice-mc/netsync/engine/moderation"
	"github.com/lattice-mc/netsync/engine/netstate"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/opmon"
	"github.com/lattice-mc/netsync/engine/pref"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/rank"
	"github.com/lattice-mc/netsync/engine/snoop"
	"github.com/lattice-mc/netsync/engine/store"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownServer   = errors.New("node: unknown server")
	ErrAlreadyOnServer = errors.New("node: player is already on that server")
	ErrPlayerOffline   = errors.New("node: player is offline")
)

// LocalPlayers is the game server's view of its connected players
type LocalPlayers = common.LocalPlayers

// Proxy relocates players between servers
type Proxy = channels.Proxy

// Options overrides the collaborators a node would otherwise build from its config
type Options struct {
	Players   LocalPlayers  // defaults to an empty in-memory player list
	Proxy     Proxy         // player-send is not handled when nil
	Transport bus.Transport // defaults to redis pub/sub
	Cache     kvcache.Cache // defaults to the shared redis
	Backend   store.Backend // defaults to the configured storage
	Sampler   lbc.Sampler   // defaults to sampling this process
	Now       func() time.Time
}

// Node is one netsync process
type Node struct {
	cfg  *config.NetsyncConfig
	id   string
	self netstate.ServerRecord
	now  func() time.Time

	players  LocalPlayers
	pool     *async.Pool
	store    *store.Store
	bus      *bus.Bus
	cache    kvcache.Cache
	registry *netstate.Registry
	ranks    *rank.Manager
	prefs    *pref.Manager
	friends  *friend.Manager
	chat     *chat.Chat
	snoops   *snoop.Snooper
	mod      *moderation.Moderator
	load     *lbc.Collector
	deps     channels.Deps

	lock      sync.Mutex
	started   bool
	stopped   bool
	transfers map[uuid.UUID]string
	subs      []*bus.Subscription
	sweeper   *sweeper
	cancel    context.CancelFunc
	group     *errgroup.Group
	httpSrv   *http.Server
}

// New builds a node from its config. Nothing is announced until Start.
func New(cfg *config.NetsyncConfig, opts Options) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Players == nil {
		opts.Players = common.NewMemoryPlayers()
	}
	if opts.Transport == nil || opts.Cache == nil {
		redisPool := bus.NewRedisPool(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
		if opts.Transport == nil {
			opts.Transport = bus.NewRedisTransportWithPool(redisPool)
		}
		if opts.Cache == nil {
			opts.Cache = kvcache.NewRedisCache(redisPool)
		}
	}
	if opts.Sampler == nil {
		sampler, err := lbc.NewProcessSampler()
		if err != nil {
			return nil, err
		}
		opts.Sampler = sampler
	}
	if opts.Backend == nil {
		backend, err := store.OpenBackend(&cfg.Storage)
		if err != nil {
			return nil, err
		}
		opts.Backend = backend
	}

	pool, err := async.NewPool(cfg.Workers.PoolSize)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg: cfg,
		id:  cfg.Server.ID,
		self: netstate.ServerRecord{
			ID:      cfg.Server.ID,
			Address: cfg.Server.Address,
			Port:    cfg.Server.Port,
		},
		now:       opts.Now,
		players:   opts.Players,
		pool:      pool,
		store:     store.New(opts.Backend, pool, cfg.Workers.StoreTimeout),
		bus:       bus.New(opts.Transport),
		cache:     opts.Cache,
		registry:  netstate.New(),
		load:      lbc.NewCollector(opts.Sampler),
		transfers: map[uuid.UUID]string{},
	}
	n.registry.SetClock(opts.Now)
	n.ranks = rank.NewManager(n.store, n.cache, n.registry, n.bus, pool)
	n.prefs = pref.NewManager(n.store)
	n.friends = friend.NewManager(n.id, n.store, n.bus, pool, n.prefs, friend.Options{
		RequestTTL: cfg.Friends.RequestTTL,
		Retention:  cfg.Friends.Retention,
		Now:        opts.Now,
	})
	n.chat = chat.New(n.ranks, n.prefs, n.players, n.bus)
	n.snoops = snoop.New(n.ranks, n.prefs, n.players, n.bus)
	n.mod = moderation.New(n.store, n.ranks, n.registry, n.snoops, n.players, n.bus, pool)
	n.deps = channels.Deps{
		ServerID:   n.id,
		Registry:   n.registry,
		Ranks:      n.ranks,
		Friends:    n.friends,
		Chat:       n.chat,
		Snoops:     n.snoops,
		Moderation: n.mod,
		Proxy:      opts.Proxy,
		Transfers:  n,
	}
	return n, nil
}

// Start joins the network: it loads the known servers, subscribes every topic, announces
// this server and starts the periodic sweeps.
func (n *Node) Start(ctx context.Context) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.started {
		return errors.New("node: already started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		servers, err := n.cache.Servers()
		if err != nil {
			// the network view fills in from START and PING messages
			nslog.Warnf("node: load online servers failed: %v", err)
			return nil
		}
		n.registry.Bootstrap(servers)
		nslog.Infof("node: %d servers online", len(servers))
		return nil
	})
	g.Go(func() error {
		subs, err := channels.Register(n.bus, n.deps)
		n.subs = subs
		return err
	})
	g.Go(func() error {
		if err := n.load.Collect(gctx); err != nil {
			nslog.Warnf("node: first cpu sample failed: %v", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "node: start")
	}

	n.registry.UpsertServer(n.self)
	if err := n.cache.AddServer(n.self); err != nil {
		nslog.Errorf("node: add %s to online servers failed: %v", n.id, err)
	}
	if err := n.publishStatus(proto.ServerStart); err != nil {
		nslog.Errorf("node: START failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.group, runCtx = errgroup.WithContext(runCtx)
	n.group.Go(func() error {
		n.load.Run(runCtx, consts.LBC_COLLECT_INTERVAL)
		return nil
	})

	n.sweeper = newSweeper(n.pool)
	n.sweeper.every("heartbeat", n.cfg.Registry.HeartbeatInterval, n.heartbeat)
	n.sweeper.every("expire-servers", n.cfg.Registry.HeartbeatInterval, n.expireServers)
	n.sweeper.every("reap-presences", n.cfg.Registry.ReapInterval, n.reapPresences)
	n.sweeper.every("expire-friend-requests", n.cfg.Friends.SweepInterval, func() {
		n.friends.SweepExpired(n.now())
	})
	if consts.OPMON_DUMP_INTERVAL > 0 {
		n.sweeper.every("opmon", consts.OPMON_DUMP_INTERVAL, func() {
			opmon.Dump(nslog.GetOutput())
		})
	}
	n.sweeper.start()

	srv, err := binutil.SetupHTTPServer(n.cfg.Server.HTTPIp, n.cfg.Server.HTTPPort, func() interface{} {
		return n.Status()
	})
	if err != nil {
		nslog.Errorf("node: status server failed: %v", err)
	}
	n.httpSrv = srv

	n.started = true
	nslog.Infof("node: %s started at %s:%d", n.id, n.self.Address, n.self.Port)
	return nil
}

// Stop leaves the network. It is best effort: failures are logged and shutdown continues.
func (n *Node) Stop() {
	n.lock.Lock()
	if n.stopped {
		n.lock.Unlock()
		return
	}
	n.stopped = true
	started := n.started
	n.lock.Unlock()

	if started {
		n.sweeper.stop()
		n.cancel()
		n.group.Wait()
		if n.httpSrv != nil {
			n.httpSrv.Close()
		}
	}

	// running sweeps finish before this server is announced gone
	n.pool.Shutdown()
	if started {
		if err := n.publishStatus(proto.ServerStop); err != nil {
			nslog.Errorf("node: STOP failed: %v", err)
		}
		if err := n.cache.RemoveServer(n.id); err != nil {
			nslog.Errorf("node: remove %s from online servers failed: %v", n.id, err)
		}
		for _, sub := range n.subs {
			sub.Cancel()
		}
	}
	if err := n.store.Close(); err != nil {
		nslog.Errorf("node: close store failed: %v", err)
	}
	if err := n.bus.Close(); err != nil {
		nslog.Errorf("node: close bus failed: %v", err)
	}
	if err := n.cache.Close(); err != nil {
		nslog.Errorf("node: close cache failed: %v", err)
	}
	nslog.Infof("node: %s stopped", n.id)
}

func (n *Node) publishStatus(action proto.ServerAction) error {
	msg := proto.ServerStatus{
		Action:   action,
		ServerID: n.id,
		Address:  n.self.Address,
		Port:     n.self.Port,
	}
	if action == proto.ServerPing {
		msg.CPUPercent = n.load.CPUPercent()
	}
	return n.bus.Publish(proto.TopicServerStatus, msg.Encode())
}

func (n *Node) heartbeat() {
	if err := n.publishStatus(proto.ServerPing); err != nil {
		nslog.Warnf("node: PING failed: %v", err)
	}
	n.registry.TouchServer(n.id, n.now())
	// heals the shared set after a redis restart
	if err := n.cache.AddServer(n.self); err != nil {
		nslog.Warnf("node: refresh online servers failed: %v", err)
	}
}

func (n *Node) expireServers() {
	for _, rec := range n.registry.ExpireServers(n.now(), n.cfg.Registry.ServerTTL, n.id) {
		nslog.Warnf("node: server %s missed heartbeats since %s, removed", rec.ID, rec.LastSeen.Format(time.RFC3339))
		if err := n.cache.RemoveServer(rec.ID); err != nil {
			nslog.Warnf("node: remove %s from online servers failed: %v", rec.ID, err)
		}
	}
}

func (n *Node) reapPresences() {
	reaped := n.registry.ReapPresences(n.now(), n.cfg.Registry.ServerTTL)
	for _, p := range reaped {
		n.registry.RemoveRankCache(p.UUID)
	}
	if len(reaped) > 0 {
		nslog.Infof("node: reaped %d presences of gone servers", len(reaped))
	}
}

// PlayerJoined announces a player connecting to this server and loads their rank,
// preferences and friends
func (n *Node) PlayerJoined(id uuid.UUID, username string) *async.Future[common.Rank] {
	n.lock.Lock()
	delete(n.transfers, id)
	n.lock.Unlock()

	n.registry.UpsertPresence(id, username)
	n.registry.UpdatePresenceServer(id, n.id)
	bus.PublishAsync(n.pool, n.bus, proto.TopicPlayerStatus, proto.PlayerStatus{Action: proto.PlayerLogin, UUID: id, Username: username}.Encode())
	bus.PublishAsync(n.pool, n.bus, proto.TopicPlayerServerChange, proto.PlayerServerChange{UUID: id, ServerID: n.id}.Encode())

	n.prefs.Load(id)
	n.friends.LoadFriends(id)
	return n.ranks.AddPlayer(id)
}

// PlayerLeft drops a player's local state. The network is told the player logged out
// unless they are moving to another server.
func (n *Node) PlayerLeft(id uuid.UUID) {
	n.lock.Lock()
	target, transferring := n.transfers[id]
	delete(n.transfers, id)
	n.lock.Unlock()

	n.ranks.RemovePlayer(id)
	n.prefs.Unload(id)
	n.friends.UnloadFriends(id)

	if p, ok := n.registry.Presence(id); ok && p.ServerID != "" && p.ServerID != n.id {
		transferring = true
		target = p.ServerID
	}
	if transferring {
		nslog.Infof("node: %s left for %s", id, target)
		return
	}
	username := ""
	if p, ok := n.registry.Presence(id); ok {
		username = p.Username
	}
	n.registry.RemovePresence(id)
	n.registry.RemoveRankCache(id)
	bus.PublishAsync(n.pool, n.bus, proto.TopicPlayerStatus, proto.PlayerStatus{Action: proto.PlayerLogout, UUID: id, Username: username}.Encode())
}

// ExpectTransfer records a transfer asked by any server for a player on this server, so
// leaving for it does not log the player out
func (n *Node) ExpectTransfer(cmd proto.PlayerSend) {
	if cmd.ServerID == n.id {
		return
	}
	if p, ok := n.registry.Presence(cmd.UUID); !ok || p.ServerID != n.id {
		return
	}
	n.lock.Lock()
	n.transfers[cmd.UUID] = cmd.ServerID
	n.lock.Unlock()
}

// SendPlayer asks the proxy to move a player to another server
func (n *Node) SendPlayer(id uuid.UUID, serverID string) error {
	if _, ok := n.registry.Server(serverID); !ok {
		return errors.Wrap(ErrUnknownServer, serverID)
	}
	p, ok := n.registry.Presence(id)
	if !ok {
		return ErrPlayerOffline
	}
	if p.ServerID == serverID {
		return ErrAlreadyOnServer
	}
	if p.ServerID == n.id {
		n.lock.Lock()
		n.transfers[id] = serverID
		n.lock.Unlock()
	}
	return n.bus.Publish(proto.TopicPlayerSend, proto.PlayerSend{UUID: id, ServerID: serverID}.Encode())
}

// Status is the node state served by the status endpoint
type Status struct {
	ServerID     string
	Servers      []netstate.ServerRecord
	OnlineCount  int
	CPUPercent   float64
	PoolCapacity int
	PoolRunning  int
}

// Status returns a summary of the node state
func (n *Node) Status() Status {
	capacity, running := n.pool.Status()
	return Status{
		ServerID:     n.id,
		Servers:      n.registry.Servers(),
		OnlineCount:  n.registry.OnlineCount(),
		CPUPercent:   n.load.CPUPercent(),
		PoolCapacity: capacity,
		PoolRunning:  running,
	}
}

func (n *Node) ID() string                        { return n.id }
func (n *Node) Config() *config.NetsyncConfig     { return n.cfg }
func (n *Node) Pool() *async.Pool                 { return n.pool }
func (n *Node) Store() *store.Store               { return n.store }
func (n *Node) Bus() *bus.Bus                     { return n.bus }
func (n *Node) Registry() *netstate.Registry      { return n.registry }
func (n *Node) Ranks() *rank.Manager              { return n.ranks }
func (n *Node) Prefs() *pref.Manager              { return n.prefs }
func (n *Node) Friends() *friend.Manager          { return n.friends }
func (n *Node) Chat() *chat.Chat                  { return n.chat }
func (n *Node) Snoops() *snoop.Snooper            { return n.snoops }
func (n *Node) Moderation() *moderation.Moderator { return n.mod }
