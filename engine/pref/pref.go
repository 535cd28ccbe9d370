// Package pref keeps per-player preferences. Values are cached per player and written through
// to the durable store as one msgpack blob.
package pref

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/async"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/store"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

var (
	ErrUnregisteredKey = errors.New("pref: unregistered key")
	ErrTypeMismatch    = errors.New("pref: value type mismatch")
)

type playerPrefs struct {
	values    map[string]interface{}
	touched   common.StringSet // keys set before the stored blob was loaded
	loaded    bool
	loading   *async.Future[struct{}]
	saveAfter bool
}

// Manager caches the preferences of players
type Manager struct {
	store *store.Store

	lock    sync.Mutex
	players map[uuid.UUID]*playerPrefs
}

// NewManager creates a preference manager
func NewManager(st *store.Store) *Manager {
	return &Manager{
		store:   st,
		players: map[uuid.UUID]*playerPrefs{},
	}
}

func (m *Manager) entryLocked(id uuid.UUID) *playerPrefs {
	entry := m.players[id]
	if entry == nil {
		entry = &playerPrefs{values: map[string]interface{}{}, touched: common.StringSet{}}
		m.players[id] = entry
	}
	return entry
}

// Get returns a preference value, or its default when unset or not loaded yet.
// Unregistered names return nil.
func (m *Manager) Get(id uuid.UUID, name string) interface{} {
	def, ok := Lookup(name)
	if !ok {
		return nil
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if entry := m.players[id]; entry != nil {
		if v, ok := entry.values[name]; ok {
			return clone(v)
		}
	}
	return clone(def.Default)
}

// Value returns a typed preference value
func Value[T any](m *Manager, id uuid.UUID, key TypedKey[T]) T {
	v, _ := m.Get(id, key.Name()).(T)
	return v
}

// SetValue sets a typed preference value
func SetValue[T any](m *Manager, id uuid.UUID, key TypedKey[T], value T) error {
	return m.Set(id, key.Name(), value)
}

// Set updates a preference in the cache and writes the player's preferences through to the store
func (m *Manager) Set(id uuid.UUID, name string, value interface{}) error {
	def, ok := Lookup(name)
	if !ok {
		return errors.Wrap(ErrUnregisteredKey, name)
	}
	v, err := check(def.Kind, value)
	if err != nil {
		return errors.Wrap(err, name)
	}

	m.lock.Lock()
	entry := m.entryLocked(id)
	entry.values[name] = v
	if entry.loaded {
		blob, err := encode(entry.values)
		m.lock.Unlock()
		if err != nil {
			return err
		}
		m.save(id, blob)
		return nil
	}
	entry.touched.Add(name)
	entry.saveAfter = true
	m.lock.Unlock()

	// the blob is written once the stored values were merged in
	m.Load(id)
	return nil
}

func (m *Manager) save(id uuid.UUID, blob []byte) {
	m.store.SavePreferences(id, blob).Then(func(_ struct{}, err error) {
		if err != nil {
			nslog.Errorf("pref: save preferences of %s failed: %v", id, err)
		}
	})
}

// Load loads a player's stored preferences. Values set before the load completes win.
func (m *Manager) Load(id uuid.UUID) *async.Future[struct{}] {
	m.lock.Lock()
	entry := m.entryLocked(id)
	if entry.loaded {
		m.lock.Unlock()
		return async.Completed(m.store.Pool(), struct{}{}, nil)
	}
	if entry.loading != nil {
		fut := entry.loading
		m.lock.Unlock()
		return fut
	}
	fut := async.NewFuture[struct{}](m.store.Pool())
	entry.loading = fut
	m.lock.Unlock()

	m.store.LoadPreferences(id).Then(func(blob []byte, err error) {
		var stored map[string]interface{}
		if err == nil {
			stored, err = decode(blob)
		}

		m.lock.Lock()
		if m.players[id] != entry {
			// unloaded meanwhile
			m.lock.Unlock()
			fut.Complete(struct{}{}, err)
			return
		}
		entry.loading = nil
		if err != nil {
			m.lock.Unlock()
			nslog.Errorf("pref: load preferences of %s failed: %v", id, err)
			fut.Complete(struct{}{}, err)
			return
		}
		for name, v := range stored {
			if !entry.touched.Contains(name) {
				entry.values[name] = v
			}
		}
		entry.loaded = true
		entry.touched = common.StringSet{}
		var out []byte
		var encErr error
		if entry.saveAfter {
			entry.saveAfter = false
			out, encErr = encode(entry.values)
		}
		m.lock.Unlock()

		if encErr != nil {
			nslog.Errorf("pref: encode preferences of %s failed: %v", id, encErr)
		} else if out != nil {
			m.save(id, out)
		}
		fut.Complete(struct{}{}, nil)
	})
	return fut
}

// Loaded tells whether a player's stored preferences are in the cache
func (m *Manager) Loaded(id uuid.UUID) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	entry := m.players[id]
	return entry != nil && entry.loaded
}

// Unload drops a player's preferences from the cache
func (m *Manager) Unload(id uuid.UUID) {
	m.lock.Lock()
	delete(m.players, id)
	m.lock.Unlock()
}

// AcceptsFriendRequests reports the accept_friend_requests preference
func (m *Manager) AcceptsFriendRequests(id uuid.UUID) bool {
	return Value(m, id, AcceptFriendRequests)
}

// encode packs the values of registered preferences in their wire form. Values of names that
// are not registered on this node are kept as they were loaded.
func encode(values map[string]interface{}) ([]byte, error) {
	wire := make(map[string]interface{}, len(values))
	for name, v := range values {
		if def, ok := Lookup(name); ok {
			wire[name] = toWire(def.Kind, v)
		} else {
			wire[name] = v
		}
	}
	blob, err := msgpack.Marshal(wire)
	return blob, errors.Wrap(err, "pref: encode")
}

// decode unpacks a blob. Values that do not fit their registered kind are dropped.
func decode(blob []byte) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	if len(blob) == 0 {
		return values, nil
	}
	var wire map[string]interface{}
	if err := msgpack.Unmarshal(blob, &wire); err != nil {
		return nil, errors.Wrap(err, "pref: decode")
	}
	for name, raw := range wire {
		def, ok := Lookup(name)
		if !ok {
			values[name] = raw
			continue
		}
		v, err := normalize(def.Kind, raw)
		if err != nil {
			nslog.Warnf("pref: dropping stored %s: %v", name, err)
			continue
		}
		values[name] = v
	}
	return values, nil
}
