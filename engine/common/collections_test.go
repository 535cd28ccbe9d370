package common

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/google/uuid"
)

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Add("1")
	ss.Add("2")
	assert.T(t, ss.Contains("1"), "should contain")
	assert.T(t, ss.Contains("2"), "should contain")
	ss.Remove("2")
	assert.T(t, !ss.Contains("2"), "should not contain")

	cp := ss.Copy()
	cp.Add("3")
	assert.T(t, !ss.Contains("3"), "copy must be independent")
	assert.Equal(t, []string{"1", "3"}, cp.ToList())
}

func TestUUIDSet(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	us := UUIDSet{}
	us.Add(a)
	us.Add(a)
	us.Add(b)
	assert.Equal(t, 2, len(us))
	us.Remove(a)
	assert.T(t, !us.Contains(a), "a removed")
	assert.Equal(t, []uuid.UUID{b}, us.ToList())
}

func TestMemoryPlayers(t *testing.T) {
	mp := NewMemoryPlayers()
	a, b := uuid.New(), uuid.New()
	mp.Join(a)
	mp.Deliver(a, "hello")
	mp.Deliver(b, "lost")
	assert.Equal(t, []string{"hello"}, mp.Delivered(a))
	assert.Equal(t, 0, len(mp.Delivered(b)))
	mp.Leave(a)
	assert.Equal(t, 0, len(mp.Online()))
}
