package matching

import "sort"

// Snapshot is an immutable, point-in-time copy of every profile and its preference
// sequence. Build it with NewSnapshot; the zero value is an empty snapshot.
type Snapshot struct {
	ids   []string
	prefs map[string][]string
	// rank[target][candidate] is candidate's index in target's sequence.
	rank map[string]map[string]int

	dropped int
}

// NewSnapshot copies prefs and normalizes every sequence: self references,
// duplicates and identifiers of profiles missing from prefs are dropped.
// Profiles are ordered by ascending identifier.
func NewSnapshot(prefs map[string][]string) *Snapshot {
	s := &Snapshot{
		ids:   make([]string, 0, len(prefs)),
		prefs: make(map[string][]string, len(prefs)),
		rank:  make(map[string]map[string]int, len(prefs)),
	}
	for id := range prefs {
		s.ids = append(s.ids, id)
	}
	sort.Strings(s.ids)

	for _, id := range s.ids {
		raw := prefs[id]
		seq := make([]string, 0, len(raw))
		ranks := make(map[string]int, len(raw))
		for _, target := range raw {
			if target == id {
				s.dropped++
				continue
			}
			if _, known := prefs[target]; !known {
				s.dropped++
				continue
			}
			if _, dup := ranks[target]; dup {
				s.dropped++
				continue
			}
			ranks[target] = len(seq)
			seq = append(seq, target)
		}
		s.prefs[id] = seq
		s.rank[id] = ranks
	}
	return s
}

// ProfileIDs returns the profile identifiers in iteration order.
func (s *Snapshot) ProfileIDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Preferences returns a copy of the normalized sequence of profileID.
func (s *Snapshot) Preferences(profileID string) []string {
	seq := s.prefs[profileID]
	out := make([]string, len(seq))
	copy(out, seq)
	return out
}

// Len is the number of profiles in the snapshot.
func (s *Snapshot) Len() int { return len(s.ids) }

// TotalPreferences is the sum of all normalized sequence lengths.
func (s *Snapshot) TotalPreferences() int {
	total := 0
	for _, seq := range s.prefs {
		total += len(seq)
	}
	return total
}

// Dropped is the number of entries removed during normalization.
func (s *Snapshot) Dropped() int { return s.dropped }

// Export returns the normalized sequences keyed by profile id, e.g. for archiving.
func (s *Snapshot) Export() map[string][]string {
	out := make(map[string][]string, len(s.prefs))
	for id := range s.prefs {
		out[id] = s.Preferences(id)
	}
	return out
}

// rankOf returns candidate's position in target's sequence; absence ranks last.
func (s *Snapshot) rankOf(target, candidate string) int {
	if r, ok := s.rank[target][candidate]; ok {
		return r
	}
	return absentRank
}
