package models

// ✅ DynamoDB table names
const (
	PreferencesTable = "Preferences"
	MatchesTable     = "Matches"
	MatchRunsTable   = "MatchRuns"
)

// ✅ Key prefixes (single-table PK/SK style)
const (
	ProfileKeyPrefix = "PROFILE#"
	RunKeyPrefix     = "RUN#"
)

// CurrentRunID is the runId of the pointer item naming the committed run.
const CurrentRunID = "CURRENT"

// ✅ Match run statuses
const (
	RunStatusCommitted      = "committed"
	RunStatusPublished      = "published"
	RunStatusDidNotConverge = "did_not_converge"
	RunStatusCancelled      = "cancelled"
	RunStatusFailed         = "failed"
	RunStatusRejected       = "rejected"
)

// MatchTimeLayout is a fixed-width UTC layout so sort keys order chronologically.
const MatchTimeLayout = "2006-01-02T15:04:05.000000000Z"

// ProfileKey builds the partition key for a profile-scoped item.
func ProfileKey(profileID string) string {
	return ProfileKeyPrefix + profileID
}

// MatchSortKey builds the sort key of a match record: "RUN#<publishedAt>#<runId>".
func MatchSortKey(publishedAt, runID string) string {
	return RunKeyPrefix + publishedAt + "#" + runID
}
