package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spunwebtech/wayback-submitter/internal/archive"
	"github.com/spunwebtech/wayback-submitter/internal/store"
)

var base = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func draft(contentID int64, status archive.Status, at time.Time) store.Draft {
	return store.Draft{
		ContentID:   contentID,
		SourceURL:   "https://example.com/hello",
		Status:      status,
		SubmittedAt: at,
	}
}

func TestAppend_AssignsMonotonicIDs(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	first, err := s.Append(ctx, draft(1, archive.StatusSuccess, base))
	require.NoError(t, err)
	second, err := s.Append(ctx, draft(1, archive.StatusFailed, base.Add(time.Minute)))
	require.NoError(t, err)

	require.Equal(t, int64(1), first.ID)
	require.Equal(t, int64(2), second.ID)

	// Append never collapses attempts: two records exist.
	history, err := s.HistoryFor(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	rec, err := s.Append(ctx, draft(1, archive.StatusPending, base))
	require.NoError(t, err)

	at := base.Add(5 * time.Minute)
	err = s.UpdateStatus(ctx, rec.ID, archive.StatusSuccess, "https://web.archive.org/web/x", `{"ok":true}`, at)
	require.NoError(t, err)

	latest, err := s.LatestFor(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, archive.StatusSuccess, latest.Status)
	require.Equal(t, "https://web.archive.org/web/x", latest.ArchiveURL)
	require.NotNil(t, latest.UpdatedAt)
	require.True(t, latest.UpdatedAt.Equal(at))
}

func TestUpdateStatus_UnknownID(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.UpdateStatus(context.Background(), 99, archive.StatusSuccess, "", "", base)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLatestFor_PicksMostRecent(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, err := s.Append(ctx, draft(7, archive.StatusFailed, base))
	require.NoError(t, err)
	_, err = s.Append(ctx, draft(7, archive.StatusSuccess, base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = s.Append(ctx, draft(8, archive.StatusFailed, base.Add(2*time.Hour)))
	require.NoError(t, err)

	latest, err := s.LatestFor(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, archive.StatusSuccess, latest.Status)

	_, err = s.LatestFor(ctx, 42)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecentlySubmitted(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, err := s.Append(ctx, draft(3, archive.StatusSuccess, base))
	require.NoError(t, err)

	recent, err := s.RecentlySubmitted(ctx, 3, base.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, recent)

	recent, err = s.RecentlySubmitted(ctx, 3, base.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, recent)

	recent, err = s.RecentlySubmitted(ctx, 4, base.Add(-time.Hour))
	require.NoError(t, err)
	require.False(t, recent)
}

func TestFailedWithin_OrderAndLimit(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := s.Append(ctx, draft(int64(i), archive.StatusFailed, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	// Outside the window.
	_, err := s.Append(ctx, draft(99, archive.StatusFailed, base.Add(-48*time.Hour)))
	require.NoError(t, err)
	// Not failed.
	_, err = s.Append(ctx, draft(98, archive.StatusSuccess, base))
	require.NoError(t, err)

	failed, err := s.FailedWithin(ctx, base.Add(-24*time.Hour), 4)
	require.NoError(t, err)
	require.Len(t, failed, 4)
	// Most recent first.
	require.Equal(t, int64(5), failed[0].ContentID)
	require.Equal(t, int64(2), failed[3].ContentID)
}

func TestPendingDue(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	due := base.Add(-time.Minute)
	notDue := base.Add(time.Hour)
	for _, d := range []store.Draft{
		{ContentID: 1, Status: archive.StatusPending, SubmittedAt: base.Add(-10 * time.Minute), DueAt: &due},
		{ContentID: 2, Status: archive.StatusPending, SubmittedAt: base, DueAt: &notDue},
		{ContentID: 3, Status: archive.StatusFailed, SubmittedAt: base, DueAt: &due},
	} {
		_, err := s.Append(ctx, d)
		require.NoError(t, err)
	}

	duePending, err := s.PendingDue(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, duePending, 1)
	require.Equal(t, int64(1), duePending[0].ContentID)
}

func TestListAndStats(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, err := s.Append(ctx, draft(1, archive.StatusSuccess, base))
	require.NoError(t, err)
	_, err = s.Append(ctx, draft(2, archive.StatusFailed, base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = s.Append(ctx, draft(3, archive.StatusPending, base.Add(2*time.Minute)))
	require.NoError(t, err)

	all, err := s.List(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, int64(3), all[0].ContentID, "newest first")

	failedOnly, err := s.List(ctx, store.Filter{Status: archive.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failedOnly, 1)

	paged, err := s.List(ctx, store.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, int64(2), paged[0].ContentID)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, archive.Stats{Total: 3, Success: 1, Failed: 1, Pending: 1}, stats)
}
