package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spunwebtech/wayback-submitter/internal/archive"
)

func TestRegistry_PutGetRemove(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	ctx := context.Background()

	_, ok := reg.Get(ctx, 42)
	require.False(t, ok)

	reg.Put(archive.ContentItem{ID: 42, Type: "post", Status: "publish", URL: "https://example.com/hello"})
	item, ok := reg.Get(ctx, 42)
	require.True(t, ok)
	require.Equal(t, "post", item.Type)
	require.True(t, item.Published())

	// Later events overwrite earlier state.
	reg.Put(archive.ContentItem{ID: 42, Type: "post", Status: "draft", URL: "https://example.com/hello"})
	item, _ = reg.Get(ctx, 42)
	require.False(t, item.Published())

	reg.Remove(42)
	_, ok = reg.Get(ctx, 42)
	require.False(t, ok)
}
