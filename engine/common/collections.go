package common

import (
	"sort"

	"github.com/google/uuid"
)

// StringSet is a set of strings
type StringSet map[string]struct{}

// Contains checks if Stringset contains the string
func (ss StringSet) Contains(elem string) bool {
	_, ok := ss[elem]
	return ok
}

// Add adds the string to StringSet
func (ss StringSet) Add(elem string) {
	ss[elem] = struct{}{}
}

// Remove removes the string from StringSet
func (ss StringSet) Remove(elem string) {
	delete(ss, elem)
}

// ToList convert StringSet to a sorted string slice
func (ss StringSet) ToList() []string {
	keys := make([]string, 0, len(ss))
	for s := range ss {
		keys = append(keys, s)
	}
	sort.Strings(keys)
	return keys
}

// Copy returns an independent copy
func (ss StringSet) Copy() StringSet {
	cp := make(StringSet, len(ss))
	for s := range ss {
		cp[s] = struct{}{}
	}
	return cp
}

// NewStringSet creates a StringSet holding elems
func NewStringSet(elems ...string) StringSet {
	ss := make(StringSet, len(elems))
	for _, e := range elems {
		ss.Add(e)
	}
	return ss
}

// UUIDSet is a set of player or request ids
type UUIDSet map[uuid.UUID]struct{}

// Contains checks if the set contains id
func (us UUIDSet) Contains(id uuid.UUID) bool {
	_, ok := us[id]
	return ok
}

// Add adds id to the set
func (us UUIDSet) Add(id uuid.UUID) {
	us[id] = struct{}{}
}

// Remove removes id from the set
func (us UUIDSet) Remove(id uuid.UUID) {
	delete(us, id)
}

// ToList converts the set to a slice ordered by the string form of the ids
func (us UUIDSet) ToList() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(us))
	for id := range us {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}
