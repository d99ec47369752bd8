package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSnapshot_Normalizes(t *testing.T) {
	raw := map[string][]string{
		"b": {"b", "a", "ghost", "a", "c"},
		"a": {"c"},
		"c": nil,
	}

	snap := NewSnapshot(raw)

	assert.Equal(t, []string{"a", "b", "c"}, snap.ProfileIDs())
	assert.Equal(t, []string{"a", "c"}, snap.Preferences("b"))
	assert.Empty(t, snap.Preferences("c"))
	assert.Equal(t, 3, snap.Dropped())
	assert.Equal(t, 3, snap.TotalPreferences())
	assert.Equal(t, 1, snap.rankOf("b", "c"))
	assert.Equal(t, absentRank, snap.rankOf("a", "b"))
}

func TestNewSnapshot_IsDetachedFromInput(t *testing.T) {
	raw := map[string][]string{"a": {"b"}, "b": {"a"}}
	snap := NewSnapshot(raw)

	raw["a"][0] = "zzz"
	raw["c"] = []string{"a"}
	exported := snap.Export()
	exported["b"][0] = "yyy"

	assert.Equal(t, []string{"b"}, snap.Preferences("a"))
	assert.Equal(t, []string{"a"}, snap.Preferences("b"))
	assert.Equal(t, 2, snap.Len())
}

func TestPassBound(t *testing.T) {
	snap := NewSnapshot(map[string][]string{
		"a": {"b", "c"},
		"b": {"a"},
		"c": {},
	})
	// 3 preferences + ceil(3/2) + 1
	assert.Equal(t, 6, PassBound(snap))
}
