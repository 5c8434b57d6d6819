package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spunwebtech/wayback-submitter/internal/notify"
)

func TestPublisher_RecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx := context.Background()

	id, err := pub.Publish(ctx, notify.EventArchived, notify.SubmissionEvent{
		Event:      notify.EventArchived,
		ContentID:  7,
		SourceURL:  "https://example.com/a",
		ArchiveURL: "https://web.archive.org/web/20240101000000/https://example.com/a",
	})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	id, err = pub.Publish(ctx, notify.EventArchiveFailed, notify.SubmissionEvent{
		Event:     notify.EventArchiveFailed,
		ContentID: 8,
		SourceURL: "https://example.com/b",
		ErrorKind: "timeout",
	})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, notify.EventArchived, msgs[0].Topic)
	require.Equal(t, notify.EventArchiveFailed, msgs[1].Topic)
}
