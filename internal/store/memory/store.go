// Package memory provides an in-memory submission store for development and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spunwebtech/wayback-submitter/internal/archive"
	"github.com/spunwebtech/wayback-submitter/internal/store"
)

// Store keeps submission records in a slice guarded by a mutex. IDs are
// monotonic, assigned at append time.
type Store struct {
	mu      sync.RWMutex
	records []archive.SubmissionRecord
	nextID  int64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{nextID: 1}
}

var _ store.SubmissionStore = (*Store)(nil)

// Append inserts a new record, never updating in place.
func (s *Store) Append(_ context.Context, draft store.Draft) (archive.SubmissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := archive.SubmissionRecord{
		ID:              s.nextID,
		ContentID:       draft.ContentID,
		SourceURL:       draft.SourceURL,
		Status:          draft.Status,
		ArchiveURL:      draft.ArchiveURL,
		ResponsePayload: draft.ResponsePayload,
		SubmittedAt:     draft.SubmittedAt,
		DueAt:           draft.DueAt,
	}
	s.nextID++
	s.records = append(s.records, record)
	return record, nil
}

// UpdateStatus transitions a record by id.
func (s *Store) UpdateStatus(_ context.Context, id int64, status archive.Status, archiveURL, payload string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		s.records[i].Status = status
		if archiveURL != "" {
			s.records[i].ArchiveURL = archiveURL
		}
		if payload != "" {
			s.records[i].ResponsePayload = payload
		}
		s.records[i].UpdatedAt = &at
		return nil
	}
	return store.ErrNotFound
}

// LatestFor returns the most recent record for a content item.
func (s *Store) LatestFor(_ context.Context, contentID int64) (archive.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *archive.SubmissionRecord
	for i := range s.records {
		r := &s.records[i]
		if r.ContentID != contentID {
			continue
		}
		if latest == nil || r.SubmittedAt.After(latest.SubmittedAt) {
			latest = r
		}
	}
	if latest == nil {
		return archive.SubmissionRecord{}, store.ErrNotFound
	}
	return *latest, nil
}

// HistoryFor returns all records for a content item, newest first.
func (s *Store) HistoryFor(_ context.Context, contentID int64) ([]archive.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []archive.SubmissionRecord
	for _, r := range s.records {
		if r.ContentID == contentID {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// RecentlySubmitted reports whether the content item has any record newer
// than the cutoff.
func (s *Store) RecentlySubmitted(_ context.Context, contentID int64, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ContentID == contentID && r.SubmittedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

// FailedWithin returns failed records newer than the cutoff, most recent
// first, capped at limit.
func (s *Store) FailedWithin(_ context.Context, since time.Time, limit int) ([]archive.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []archive.SubmissionRecord
	for _, r := range s.records {
		if r.Status == archive.StatusFailed && r.SubmittedAt.After(since) {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PendingDue returns pending records whose due time has passed, oldest
// first.
func (s *Store) PendingDue(_ context.Context, asOf time.Time, limit int) ([]archive.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []archive.SubmissionRecord
	for _, r := range s.records {
		if r.Status == archive.StatusPending && r.DueAt != nil && !r.DueAt.After(asOf) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueAt.Before(*out[j].DueAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// List returns records matching the filter, newest first.
func (s *Store) List(_ context.Context, filter store.Filter) ([]archive.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []archive.SubmissionRecord
	for _, r := range s.records {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sortNewestFirst(out)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Stats aggregates counts by status.
func (s *Store) Stats(_ context.Context) (archive.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats archive.Stats
	for _, r := range s.records {
		stats.Total++
		switch r.Status {
		case archive.StatusSuccess:
			stats.Success++
		case archive.StatusFailed:
			stats.Failed++
		case archive.StatusPending:
			stats.Pending++
		}
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}

func sortNewestFirst(records []archive.SubmissionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SubmittedAt.After(records[j].SubmittedAt)
	})
}
