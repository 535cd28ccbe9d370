package pref

import (
	"reflect"
	"sort"
	"sync"

	"github.com/lattice-mc/netsync/engine/common"
	"github.com/pkg/errors"
	"github.com/xiaonanln/typeconv"
)

// Kind is the value kind of a preference
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
	KindChannel
	KindStringSet
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindChannel:
		return "channel"
	case KindStringSet:
		return "stringset"
	default:
		return "unknown"
	}
}

// Def declares a preference
type Def struct {
	Name    string
	Kind    Kind
	Default interface{}
}

// TypedKey is a preference name bound to the Go type of its values
type TypedKey[T any] struct {
	name string
}

// Name returns the preference name
func (k TypedKey[T]) Name() string {
	return k.name
}

var (
	defsLock sync.RWMutex
	defs     = map[string]Def{}
)

// Register declares a preference. Names are registered once.
func Register(def Def) error {
	val, err := check(def.Kind, def.Default)
	if err != nil {
		return errors.Wrapf(err, "pref %s", def.Name)
	}
	def.Default = val

	defsLock.Lock()
	defer defsLock.Unlock()
	if _, ok := defs[def.Name]; ok {
		return errors.Errorf("pref %s is already registered", def.Name)
	}
	defs[def.Name] = def
	return nil
}

// NewKey registers a preference and returns its typed key. It panics if registration fails.
func NewKey[T any](name string, kind Kind, def T) TypedKey[T] {
	if err := Register(Def{Name: name, Kind: kind, Default: def}); err != nil {
		panic(err)
	}
	return TypedKey[T]{name}
}

// Lookup returns the declaration of a preference
func Lookup(name string) (Def, bool) {
	defsLock.RLock()
	defer defsLock.RUnlock()
	def, ok := defs[name]
	return def, ok
}

// Names returns all registered preference names, sorted
func Names() []string {
	defsLock.RLock()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	defsLock.RUnlock()
	sort.Strings(names)
	return names
}

// Built-in preferences
var (
	AcceptFriendRequests = NewKey[bool]("netsync:accept_friend_requests", KindBool, true)
	ServerAlerts         = NewKey[bool]("netsync:server_alerts", KindBool, false)
	ChatChannel          = NewKey[common.ChatChannel]("netsync:chat_channel", KindChannel, common.ChannelAll)
	Vanished             = NewKey[bool]("netsync:vanished", KindBool, false)
	IgnoredChatChannels  = NewKey[common.StringSet]("netsync:ignored_chat_channels", KindStringSet, common.StringSet{})
	MutedSnoops          = NewKey[common.StringSet]("netsync:muted_snoops", KindStringSet, common.StringSet{})
)

// check accepts only the canonical Go type of kind: bool, int, string, common.ChatChannel
// or common.StringSet. Sets are copied.
func check(kind Kind, v interface{}) (interface{}, error) {
	ok := false
	switch kind {
	case KindBool:
		_, ok = v.(bool)
	case KindInt:
		_, ok = v.(int)
	case KindString:
		_, ok = v.(string)
	case KindChannel:
		c, isChannel := v.(common.ChatChannel)
		ok = isChannel && c.Valid()
	case KindStringSet:
		if set, isSet := v.(common.StringSet); isSet {
			return set.Copy(), nil
		}
	default:
		return nil, errors.Errorf("unknown pref kind %d", kind)
	}
	if !ok {
		return nil, errors.Wrapf(ErrTypeMismatch, "%T is not %s", v, kind)
	}
	return v, nil
}

// normalize converts a decoded stored value to the canonical Go type of kind. msgpack
// widens integers and stores channels as names and sets as lists.
func normalize(kind Kind, v interface{}) (interface{}, error) {
	switch kind {
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindInt:
		if v != nil {
			switch reflect.TypeOf(v).Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
				reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				return int(typeconv.Int(v)), nil
			}
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindChannel:
		switch c := v.(type) {
		case common.ChatChannel:
			if c.Valid() {
				return c, nil
			}
		case string:
			if ch, err := common.ParseChatChannel(c); err == nil {
				return ch, nil
			}
		}
	case KindStringSet:
		switch s := v.(type) {
		case common.StringSet:
			return s.Copy(), nil
		case []string:
			return common.NewStringSet(s...), nil
		case []interface{}:
			set := common.StringSet{}
			for _, elem := range s {
				str, ok := elem.(string)
				if !ok {
					return nil, errors.Wrapf(ErrTypeMismatch, "%T in %s", elem, kind)
				}
				set.Add(str)
			}
			return set, nil
		}
	default:
		return nil, errors.Errorf("unknown pref kind %d", kind)
	}
	return nil, errors.Wrapf(ErrTypeMismatch, "%T is not %s", v, kind)
}

// toWire converts a canonical value to what is stored in the blob
func toWire(kind Kind, v interface{}) interface{} {
	switch kind {
	case KindInt:
		return int64(v.(int))
	case KindChannel:
		return v.(common.ChatChannel).String()
	case KindStringSet:
		return v.(common.StringSet).ToList()
	default:
		return v
	}
}

func clone(v interface{}) interface{} {
	if set, ok := v.(common.StringSet); ok {
		return set.Copy()
	}
	return v
}
