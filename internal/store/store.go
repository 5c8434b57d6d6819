// Package store defines the persistence contract for submission records.
// By using an interface, the application is decoupled from the concrete
// database, which keeps the orchestrator testable against the in-memory
// implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/spunwebtech/wayback-submitter/internal/archive"
)

// ErrNotFound is returned when a record id or content id has no rows.
var ErrNotFound = errors.New("submission record not found")

// Draft is the caller-supplied portion of a submission record. The store
// assigns the id; everything else is persisted as given.
type Draft struct {
	ContentID       int64
	SourceURL       string
	Status          archive.Status
	ArchiveURL      string
	ResponsePayload string
	SubmittedAt     time.Time
	DueAt           *time.Time
}

// Filter narrows List results.
type Filter struct {
	Status archive.Status // empty matches all
	Limit  int
	Offset int
}

// SubmissionStore is the append-only log of submission attempts. History is
// never rewritten: Append always inserts, and the only in-place mutation is
// the single pending→terminal status transition.
type SubmissionStore interface {
	// Append inserts a new record and returns it with the assigned id.
	Append(ctx context.Context, draft Draft) (archive.SubmissionRecord, error)

	// UpdateStatus transitions a record's status, optionally setting the
	// archive URL and response payload. Returns ErrNotFound for unknown
	// ids; callers treat that as best-effort (log only), since callback
	// delivery is not exactly-once.
	UpdateStatus(ctx context.Context, id int64, status archive.Status, archiveURL, payload string, at time.Time) error

	// LatestFor returns the most recent record for a content item by
	// submission time, or ErrNotFound.
	LatestFor(ctx context.Context, contentID int64) (archive.SubmissionRecord, error)

	// HistoryFor returns all records for a content item, newest first.
	HistoryFor(ctx context.Context, contentID int64) ([]archive.SubmissionRecord, error)

	// RecentlySubmitted reports whether any record for the content item
	// was submitted after the cutoff. This is the sole deduplication
	// mechanism.
	RecentlySubmitted(ctx context.Context, contentID int64, since time.Time) (bool, error)

	// FailedWithin returns failed records submitted after the cutoff,
	// most recent first, capped at limit.
	FailedWithin(ctx context.Context, since time.Time, limit int) ([]archive.SubmissionRecord, error)

	// PendingDue returns pending records whose due time has passed as of
	// asOf, oldest first, capped at limit.
	PendingDue(ctx context.Context, asOf time.Time, limit int) ([]archive.SubmissionRecord, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]archive.SubmissionRecord, error)

	// Stats aggregates counts by status with a full scan; volumes are low
	// enough that maintaining incremental counters is not worth the drift
	// risk.
	Stats(ctx context.Context) (archive.Stats, error)

	// Close releases underlying resources.
	Close()
}
