package models

// PreferenceRecord is the persisted preference sequence of one profile.
// Preferences are ordered by rank: index 0 is the most preferred candidate.
type PreferenceRecord struct {
	PK          string   `dynamodbav:"PK" json:"-"`                    // ✅ Partition Key: "PROFILE#id"
	ProfileID   string   `dynamodbav:"profileId" json:"profileId"`     // ✅ Owner of the sequence
	Preferences []string `dynamodbav:"preferences" json:"preferences"` // ✅ Append-only, deduplicated
	Version     int64    `dynamodbav:"version" json:"version"`         // ✅ Bumped on every append (CAS)
	CreatedAt   string   `dynamodbav:"createdAt" json:"createdAt"`     // ✅ RFC3339
	UpdatedAt   string   `dynamodbav:"updatedAt" json:"updatedAt"`     // ✅ RFC3339
}

// Contains reports whether targetID is already in the sequence.
func (r *PreferenceRecord) Contains(targetID string) bool {
	for _, id := range r.Preferences {
		if id == targetID {
			return true
		}
	}
	return false
}

// AppendResult is the outcome of an append-if-absent.
type AppendResult struct {
	Length   int  `json:"length"`
	Appended bool `json:"appended"`
}
