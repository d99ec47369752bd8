package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"prestige_server/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// roundRobin gives each of n profiles the next three profiles as preferences.
func roundRobin(n int) map[string][]string {
	prefs := make(map[string][]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%d", i+1)
		for k := 1; k <= 3; k++ {
			prefs[id] = append(prefs[id], fmt.Sprintf("p%d", (i+k)%n+1))
		}
	}
	return prefs
}

func requireValidMatching(t *testing.T, res *Result) {
	t.Helper()
	for p, partner := range res.Matched {
		require.NotEqual(t, p, partner, "self match for %s", p)
		require.Equal(t, p, res.Matched[partner], "asymmetric pair %s -> %s", p, partner)
	}
	for _, id := range res.Unmatched {
		_, ok := res.Matched[id]
		require.False(t, ok, "%s is both matched and unmatched", id)
	}
}

func TestRun_RoundRobinFixtureYieldsFivePairs(t *testing.T) {
	snap := NewSnapshot(roundRobin(10))

	res, err := Run(context.Background(), snap, Options{})
	require.NoError(t, err)
	requireValidMatching(t, res)

	assert.Len(t, res.Matched, 10)
	assert.Empty(t, res.Unmatched)
	assert.Equal(t, []Pair{
		{A: "p1", B: "p2"},
		{A: "p10", B: "p9"},
		{A: "p3", B: "p4"},
		{A: "p5", B: "p6"},
		{A: "p7", B: "p8"},
	}, res.Pairs())
	assert.Equal(t, 2, res.Passes)
	assert.Equal(t, 6, res.Proposals)
	assert.Equal(t, 1, res.Rejections)
	assert.Equal(t, 0, res.Displacements)
}

func TestRun_OddEvenFixtureLeavesOneProfilePerGroup(t *testing.T) {
	// Odd profiles only list odd profiles and even only even, so each group of
	// five can form at most two pairs.
	snap := NewSnapshot(map[string][]string{
		"p1":  {"p3", "p5", "p7"},
		"p2":  {"p4", "p6", "p8"},
		"p3":  {"p1", "p9", "p5"},
		"p4":  {"p2", "p10", "p6"},
		"p5":  {"p1", "p3", "p7"},
		"p6":  {"p2", "p4", "p8"},
		"p7":  {"p1", "p5", "p9"},
		"p8":  {"p2", "p6", "p10"},
		"p9":  {"p3", "p7", "p1"},
		"p10": {"p4", "p8", "p2"},
	})

	res, err := Run(context.Background(), snap, Options{})
	require.NoError(t, err)
	requireValidMatching(t, res)

	assert.Equal(t, map[string]string{
		"p1": "p3", "p3": "p1",
		"p2": "p4", "p4": "p2",
		"p5": "p7", "p7": "p5",
		"p6": "p8", "p8": "p6",
	}, res.Matched)
	assert.Equal(t, []string{"p10", "p9"}, res.Unmatched)
	assert.Equal(t, 5, res.Passes)
	assert.Equal(t, 2, res.Displacements)
	assert.Equal(t, 10, res.Rejections)
}

func TestRun_DisplacementUnmatchesEarlierPartner(t *testing.T) {
	// p1 pairs with p2 first; p3 then proposes to p2, which ranks p3 above p1.
	snap := NewSnapshot(map[string][]string{
		"p1": {"p2"},
		"p2": {"p3", "p1"},
		"p3": {"p2"},
	})

	res, err := Run(context.Background(), snap, Options{})
	require.NoError(t, err)
	requireValidMatching(t, res)

	assert.Equal(t, map[string]string{"p2": "p3", "p3": "p2"}, res.Matched)
	assert.Equal(t, []string{"p1"}, res.Unmatched)
	assert.Equal(t, 1, res.Displacements)
	assert.Equal(t, 2, res.Passes)
}

func TestRun_UnlistedProposerIsRejected(t *testing.T) {
	// p2 lists nobody: p1 and p3 both rank as absent, so the incumbent stays.
	snap := NewSnapshot(map[string][]string{
		"p1": {"p2"},
		"p2": {},
		"p3": {"p2"},
	})

	res, err := Run(context.Background(), snap, Options{})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"p1": "p2", "p2": "p1"}, res.Matched)
	assert.Equal(t, []string{"p3"}, res.Unmatched)
	assert.Equal(t, 1, res.Rejections)
}

func TestRun_CyclicPreferences(t *testing.T) {
	snap := NewSnapshot(map[string][]string{
		"a": {"b", "c"},
		"b": {"c", "a"},
		"c": {"a", "b"},
	})

	res, err := Run(context.Background(), snap, Options{})
	require.NoError(t, err)
	requireValidMatching(t, res)

	assert.Equal(t, map[string]string{"a": "b", "b": "a"}, res.Matched)
	assert.Equal(t, []string{"c"}, res.Unmatched)
	assert.Equal(t, 4, res.Passes)
	assert.Equal(t, 3, res.Displacements)
	assert.LessOrEqual(t, res.Passes, PassBound(snap))
}

func TestRun_PassCapSignalsDidNotConverge(t *testing.T) {
	snap := NewSnapshot(map[string][]string{
		"a": {"b", "c"},
		"b": {"c", "a"},
		"c": {"a", "b"},
	})

	res, err := Run(context.Background(), snap, Options{MaxPasses: 2})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrDidNotConverge)
	assert.True(t, errors.Is(err, models.ErrDidNotConverge))
}

func TestRun_Deterministic(t *testing.T) {
	prefs := roundRobin(25)
	prefs["p3"] = []string{"p1", "p25", "p4", "p2"}
	prefs["p7"] = []string{"p3", "p9"}

	first, err := Run(context.Background(), NewSnapshot(prefs), Options{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := Run(context.Background(), NewSnapshot(prefs), Options{})
		require.NoError(t, err)
		assert.Equal(t, first.Matched, again.Matched)
		assert.Equal(t, first.Unmatched, again.Unmatched)
		assert.Equal(t, first.Passes, again.Passes)
	}
}

func TestRun_TerminatesWithinBoundForDenseInput(t *testing.T) {
	// Every profile lists every other profile in a rotated order.
	const n = 30
	prefs := make(map[string][]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("u%02d", i)
		for k := 1; k < n; k++ {
			prefs[id] = append(prefs[id], fmt.Sprintf("u%02d", (i*7+k)%n))
		}
	}
	snap := NewSnapshot(prefs)

	res, err := Run(context.Background(), snap, Options{})
	require.NoError(t, err)
	requireValidMatching(t, res)
	assert.LessOrEqual(t, res.Passes, PassBound(snap))
}

func TestRun_EmptySnapshot(t *testing.T) {
	res, err := Run(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Matched)
	assert.Empty(t, res.Unmatched)
	assert.Equal(t, 1, res.Passes)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, NewSnapshot(roundRobin(10)), Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}
