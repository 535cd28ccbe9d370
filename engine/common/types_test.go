package common

import (
	"testing"

	"github.com/bmizerany/assert"
)

type rankPredicate struct {
	name string
	f    func(Rank) bool
}

var rankPredicates = []rankPredicate{
	{"IsHelper", Rank.IsHelper},
	{"IsStaff", Rank.IsStaff},
	{"IsModerator", Rank.IsModerator},
	{"IsAdmin", Rank.IsAdmin},
	{"IsOwner", Rank.IsOwner},
}

func TestPermissionMonotonicity(t *testing.T) {
	ranks := AllRanks()
	for i, low := range ranks {
		for _, high := range ranks[i:] {
			for _, p := range rankPredicates {
				if p.f(low) && !p.f(high) {
					t.Errorf("%s true for %s but false for %s", p.name, low, high)
				}
			}
			for _, ch := range AllChannels() {
				if CanUseChannel(low, ch) && !CanUseChannel(high, ch) {
					t.Errorf("channel %s usable by %s but not by %s", ch, low, high)
				}
			}
		}
	}
}

func TestRankPredicates(t *testing.T) {
	assert.T(t, !RankElysian.IsStaff(), "donor ranks are not staff")
	assert.T(t, RankHelper.IsStaff(), "helper is staff")
	assert.T(t, !RankHelper.IsModerator(), "helper is not moderator")
	assert.T(t, RankAdmin.IsModerator(), "admin has moderator permissions")
	assert.T(t, RankOwner.IsAdmin(), "owner has admin permissions")
}

func TestParseRank(t *testing.T) {
	for _, r := range AllRanks() {
		parsed, err := ParseRank(r.String())
		assert.Equal(t, nil, err)
		assert.Equal(t, r, parsed)
	}
	r, err := ParseRank(" moderator ")
	assert.Equal(t, nil, err)
	assert.Equal(t, RankModerator, r)

	_, err = ParseRank("EMPEROR")
	assert.NotEqual(t, nil, err)
	assert.Equal(t, "UNKNOWN", Rank(99).String())
}

func TestParseChatChannel(t *testing.T) {
	for _, c := range AllChannels() {
		parsed, err := ParseChatChannel(c.String())
		assert.Equal(t, nil, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseChatChannel("GUILD")
	assert.NotEqual(t, nil, err)
}

func TestCanUseChannel(t *testing.T) {
	assert.T(t, CanUseChannel(RankDefault, ChannelAll), "everyone uses ALL")
	assert.T(t, !CanUseChannel(RankDefault, ChannelStaff), "default cannot use STAFF")
	assert.T(t, CanUseChannel(RankHelper, ChannelStaff), "helper uses STAFF")
	assert.T(t, !CanUseChannel(RankHelper, ChannelMod), "helper cannot use MOD")
	assert.T(t, CanUseChannel(RankModerator, ChannelMod), "moderator uses MOD")
	assert.T(t, !CanUseChannel(RankModerator, ChannelAdmin), "moderator cannot use ADMIN")
	assert.T(t, !CanUseChannel(RankOwner, ChannelInternal), "nobody reads INTERNAL")
}
