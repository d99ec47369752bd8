package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3PutAPI is the subset of *s3.Client used by the archiver.
type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchivedSnapshot is the document stored for a run that did not converge.
type ArchivedSnapshot struct {
	RunID       string              `json:"runId"`
	Reason      string              `json:"reason"`
	MaxPasses   int                 `json:"maxPasses"`
	ArchivedAt  time.Time           `json:"archivedAt"`
	Preferences map[string][]string `json:"preferences"`
}

// SnapshotArchiver stores snapshots of failed runs in S3 for offline inspection.
type SnapshotArchiver struct {
	client s3PutAPI
	bucket string
	prefix string
}

func NewSnapshotArchiver(client s3PutAPI, bucket, prefix string) *SnapshotArchiver {
	return &SnapshotArchiver{client: client, bucket: bucket, prefix: prefix}
}

// Archive uploads doc as <prefix><runId>.json and returns the object key.
func (a *SnapshotArchiver) Archive(ctx context.Context, doc ArchivedSnapshot) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	key := path.Join(a.prefix, doc.RunID+".json")
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload snapshot to s3://%s/%s: %w", a.bucket, key, err)
	}
	return key, nil
}
