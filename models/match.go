package models

import "time"

// MatchRecord is one directed row of a published pair. A pair yields two records.
type MatchRecord struct {
	PK        string `dynamodbav:"PK" json:"-"`                  // ✅ "PROFILE#id"
	SK        string `dynamodbav:"SK" json:"-"`                  // ✅ "RUN#<publishedAt>#<runId>"
	ProfileID string `dynamodbav:"profileId" json:"profileId"`
	PartnerID string `dynamodbav:"partnerId" json:"partnerId"`
	RunID     string `dynamodbav:"runId" json:"runId"`
	MatchedAt string `dynamodbav:"matchedAt" json:"matchedAt"` // ✅ RFC3339Nano, UTC
}

// MatchRun describes one matching run. Committed runs make their match records visible.
type MatchRun struct {
	RunID         string    `dynamodbav:"runId" json:"runId"`
	Status        string    `dynamodbav:"status" json:"status"`
	Profiles      int       `dynamodbav:"profiles" json:"profiles"`
	Pairs         int       `dynamodbav:"pairs" json:"pairs"`
	Unmatched     int       `dynamodbav:"unmatched" json:"unmatched"`
	Passes        int       `dynamodbav:"passes" json:"passes"`
	Displacements int       `dynamodbav:"displacements" json:"displacements"`
	StartedAt     time.Time `dynamodbav:"startedAt" json:"startedAt"`
	FinishedAt    time.Time `dynamodbav:"finishedAt" json:"finishedAt"`
}

// MatchRunCompletedEvent is broadcast after a successful publication.
type MatchRunCompletedEvent struct {
	RunID     string    `json:"run_id"`
	Pairs     int       `json:"pairs"`
	Unmatched int       `json:"unmatched"`
	Passes    int       `json:"passes"`
	At        time.Time `json:"at"`
}

// RunPointer is the single item that names the committed run. Flipping it
// publishes every record of that run at once.
type RunPointer struct {
	RunID        string `dynamodbav:"runId"` // ✅ Always CurrentRunID
	CurrentRunID string `dynamodbav:"currentRunId"`
	PublishedAt  string `dynamodbav:"publishedAt"` // ✅ MatchTimeLayout
}
