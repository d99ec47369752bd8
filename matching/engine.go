// Package matching computes a one-to-one pairing of profiles from their
// preference sequences.
//
// Every profile is both proposer and acceptor. Passes run over the profiles in
// ascending identifier order; an unmatched profile proposes to the candidate its
// cursor points at, and the candidate keeps whichever proposer ranks better in its
// own sequence. A displaced partner resumes from its next candidate on a later
// pass. The run ends when a full pass changes nothing.
//
// Run keeps no state between calls and never touches a store.
package matching

import (
	"context"
	"fmt"
	"math"
	"sort"

	"prestige_server/models"
)

const absentRank = math.MaxInt

// ErrDidNotConverge is returned when a run exceeds its pass bound.
var ErrDidNotConverge = fmt.Errorf("matching: %w", models.ErrDidNotConverge)

// Options tunes a run.
type Options struct {
	// MaxPasses caps the number of passes. Zero selects PassBound(snapshot).
	MaxPasses int
}

// Result is the output of a converged run.
type Result struct {
	// Matched is symmetric: Matched[a] == b implies Matched[b] == a.
	Matched map[string]string
	// Unmatched lists profiles without a partner, sorted.
	Unmatched []string
	// Passes counts every executed pass, including the final pass without changes.
	Passes        int
	Proposals     int
	Displacements int
	Rejections    int
}

// Pair is an unordered matched pair with A < B.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Pairs returns the matched pairs ordered by their lower identifier.
func (r *Result) Pairs() []Pair {
	pairs := make([]Pair, 0, len(r.Matched)/2)
	for a, b := range r.Matched {
		if a < b {
			pairs = append(pairs, Pair{A: a, B: b})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].A < pairs[j].A })
	return pairs
}

// PassBound is the default pass cap for a snapshot. Each change either advances a
// cursor or matches two more profiles, and the matched count never drops, so a run
// needs at most sum(len) + ceil(n/2) passes with changes plus one quiet pass.
func PassBound(s *Snapshot) int {
	return s.TotalPreferences() + (s.Len()+1)/2 + 1
}

// Run computes the matching for snapshot.
func Run(ctx context.Context, snapshot *Snapshot, opts Options) (*Result, error) {
	if snapshot == nil {
		snapshot = NewSnapshot(nil)
	}
	maxPasses := opts.MaxPasses
	if maxPasses <= 0 {
		maxPasses = PassBound(snapshot)
	}

	st := &state{
		snap:    snapshot,
		cursor:  make(map[string]int, snapshot.Len()),
		matched: make(map[string]string, snapshot.Len()),
	}

	res := &Result{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.Passes >= maxPasses {
			return nil, fmt.Errorf("%w after %d passes (%d profiles, %d preferences)",
				ErrDidNotConverge, res.Passes, snapshot.Len(), snapshot.TotalPreferences())
		}
		res.Passes++
		if !st.pass(res) {
			break
		}
	}

	res.Matched = st.matched
	for _, id := range snapshot.ids {
		if _, ok := st.matched[id]; !ok {
			res.Unmatched = append(res.Unmatched, id)
		}
	}
	return res, nil
}

type state struct {
	snap    *Snapshot
	cursor  map[string]int
	matched map[string]string
}

// pass runs one sweep and reports whether anything changed.
func (st *state) pass(res *Result) bool {
	changed := false
	for _, p := range st.snap.ids {
		if _, ok := st.matched[p]; ok {
			continue
		}
		seq := st.snap.prefs[p]
		c := st.cursor[p]
		if c >= len(seq) {
			continue
		}

		target := seq[c]
		res.Proposals++
		current, taken := st.matched[target]
		switch {
		case !taken:
			st.matched[p] = target
			st.matched[target] = p
		case st.snap.rankOf(target, p) < st.snap.rankOf(target, current):
			delete(st.matched, current)
			st.matched[target] = p
			st.matched[p] = target
			st.cursor[current]++
			res.Displacements++
		default:
			st.cursor[p]++
			res.Rejections++
		}
		changed = true
	}
	return changed
}
