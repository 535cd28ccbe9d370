// Package moderation implements mutes and warnings. Every punishment is audited and
// announced to staff through snoops.
package moderation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/bus"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/netstate"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/proto"
	"github.com/lattice-mc/netsync/engine/rank"
	"github.com/lattice-mc/netsync/engine/snoop"
	"github.com/lattice-mc/netsync/engine/store"
	"github.com/pkg/errors"
)

var (
	ErrPermission    = errors.New("moderation: insufficient rank")
	ErrAlreadyMuted  = errors.New("moderation: player is already muted")
	ErrNotMuted      = errors.New("moderation: player is not muted")
	ErrCannotPunish  = errors.New("moderation: player cannot be punished")
	ErrPlayerOffline = errors.New("moderation: player is offline")
)

// Audit categories
const (
	CategoryMute   = "MUTE"
	CategoryUnmute = "UNMUTE"
	CategoryWarn   = "WARN"
)

// Moderator carries out moderation actions
type Moderator struct {
	store    *store.Store
	ranks    *rank.Manager
	registry *netstate.Registry
	snoops   *snoop.Snooper
	players  common.LocalPlayers
	pub      bus.Publisher
	pool     *async.Pool
}

// New creates a Moderator
func New(st *store.Store, ranks *rank.Manager, registry *netstate.Registry, snoops *snoop.Snooper, players common.LocalPlayers, pub bus.Publisher, pool *async.Pool) *Moderator {
	return &Moderator{
		store:    st,
		ranks:    ranks,
		registry: registry,
		snoops:   snoops,
		players:  players,
		pub:      pub,
		pool:     pool,
	}
}

// targetRank resolves the rank of a player that may be on another server or offline
func (m *Moderator) targetRank(id uuid.UUID) *async.Future[common.Rank] {
	if m.ranks.Loaded(id) {
		return async.Completed(m.pool, m.ranks.Rank(id), nil)
	}
	if r, ok := m.registry.CachedRank(id); ok {
		return async.Completed(m.pool, r, nil)
	}
	return m.store.GetRank(id)
}

func (m *Moderator) name(id uuid.UUID) string {
	if p, ok := m.registry.Presence(id); ok && p.Username != "" {
		return p.Username
	}
	return id.String()
}

func (m *Moderator) audit(entry store.AuditEntry, sn proto.Snoop) *async.Future[struct{}] {
	nslog.Infof("moderation: %s %s by %s: %s", entry.Category, entry.Target, entry.Actor, entry.Reason)
	m.pool.Submit(func() {
		if err := m.snoops.Send(sn); err != nil {
			nslog.Errorf("moderation: snoop on %s failed: %v", sn.Channel, err)
		}
	})
	return m.store.RecordAuditEntry(entry)
}

// checkTarget fails for staff targets
func (m *Moderator) checkTarget(target uuid.UUID) *async.Future[struct{}] {
	return async.Chain(m.targetRank(target), func(r common.Rank) *async.Future[struct{}] {
		if r.IsStaff() {
			return async.Failed[struct{}](m.pool, ErrCannotPunish)
		}
		return async.Completed(m.pool, struct{}{}, nil)
	})
}

// Mute mutes target until the given time; a zero until mutes forever. The actor must be a moderator.
func (m *Moderator) Mute(actor, target uuid.UUID, until time.Time, reason string) *async.Future[struct{}] {
	if !m.ranks.IsModerator(actor) {
		return async.Failed[struct{}](m.pool, ErrPermission)
	}
	if actor == target {
		return async.Failed[struct{}](m.pool, ErrCannotPunish)
	}
	checked := async.Chain(m.checkTarget(target), func(struct{}) *async.Future[bool] {
		return m.store.IsMuted(target)
	})
	muted := async.Chain(checked, func(muted bool) *async.Future[struct{}] {
		if muted {
			return async.Failed[struct{}](m.pool, ErrAlreadyMuted)
		}
		return m.store.MutePlayer(target, until)
	})
	return async.Chain(muted, func(struct{}) *async.Future[struct{}] {
		length := "forever"
		if !until.IsZero() {
			length = "until " + until.UTC().Format(time.RFC3339)
		}
		return m.audit(store.AuditEntry{
			Target:   target,
			Actor:    actor,
			Category: CategoryMute,
			Reason:   reason,
		}, proto.Snoop{
			Channel:      snoop.ChannelMutes,
			RequiredRank: common.RankModerator,
			Component:    fmt.Sprintf("%s muted %s %s: %s", m.name(actor), m.name(target), length, reason),
		})
	})
}

// Unmute lifts a mute. The actor must be a moderator.
func (m *Moderator) Unmute(actor, target uuid.UUID) *async.Future[struct{}] {
	if !m.ranks.IsModerator(actor) {
		return async.Failed[struct{}](m.pool, ErrPermission)
	}
	unmuted := async.Chain(m.store.IsMuted(target), func(muted bool) *async.Future[struct{}] {
		if !muted {
			return async.Failed[struct{}](m.pool, ErrNotMuted)
		}
		return m.store.UnmutePlayer(target)
	})
	return async.Chain(unmuted, func(struct{}) *async.Future[struct{}] {
		return m.audit(store.AuditEntry{
			Target:   target,
			Actor:    actor,
			Category: CategoryUnmute,
		}, proto.Snoop{
			Channel:      snoop.ChannelMutes,
			RequiredRank: common.RankModerator,
			Component:    fmt.Sprintf("%s unmuted %s", m.name(actor), m.name(target)),
		})
	})
}

// Warn sends a warning component to an online player. The actor must be a helper.
func (m *Moderator) Warn(actor, target uuid.UUID, component string) *async.Future[struct{}] {
	if !m.ranks.IsHelper(actor) {
		return async.Failed[struct{}](m.pool, ErrPermission)
	}
	if actor == target {
		return async.Failed[struct{}](m.pool, ErrCannotPunish)
	}
	if !m.registry.IsOnline(target) {
		return async.Failed[struct{}](m.pool, ErrPlayerOffline)
	}
	return async.Chain(m.checkTarget(target), func(struct{}) *async.Future[struct{}] {
		warn := proto.PlayerWarn{Target: target, Actor: actor, Component: component}
		bus.PublishAsync(m.pool, m.pub, proto.TopicPlayerWarn, warn.Encode())
		return m.audit(store.AuditEntry{
			Target:   target,
			Actor:    actor,
			Category: CategoryWarn,
			Reason:   component,
		}, proto.Snoop{
			Channel:      snoop.ChannelWarns,
			RequiredRank: common.RankHelper,
			Component:    fmt.Sprintf("%s warned %s: %s", m.name(actor), m.name(target), component),
		})
	})
}

// DeliverWarn shows a received warning to its target when connected to this node
func (m *Moderator) DeliverWarn(w proto.PlayerWarn) bool {
	for _, id := range m.players.Online() {
		if id == w.Target {
			m.players.Deliver(id, w.Component)
			return true
		}
	}
	return false
}

// IsMuted reports whether a player is muted now
func (m *Moderator) IsMuted(id uuid.UUID) *async.Future[bool] {
	return m.store.IsMuted(id)
}
