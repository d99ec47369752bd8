package models

import "errors"

var (
	// ErrNotFound is returned when a referenced profile (or record) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for requests that can never succeed, e.g. a self-swipe.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDidNotConverge is returned when a matching run exceeds its pass bound.
	ErrDidNotConverge = errors.New("matching did not converge")
	// ErrSnapshotRead is returned when the preference snapshot cannot be read.
	ErrSnapshotRead = errors.New("snapshot read failed")
	// ErrPublishFailed is returned when the match batch could not be committed.
	ErrPublishFailed = errors.New("publish failed")
	// ErrRunInProgress is returned when a matching run is requested while another is in flight.
	ErrRunInProgress = errors.New("matching run already in progress")
)
