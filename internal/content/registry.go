// Package content tracks the host system's content items as reported by
// publish/update events. The registry stands in for direct host lookups: the
// retry sweep asks it whether an item still exists and is published, and the
// CSV export reads titles from it.
package content

import (
	"context"
	"sync"

	"github.com/spunwebtech/wayback-submitter/internal/archive"
)

// Source resolves content items by id.
type Source interface {
	Get(ctx context.Context, contentID int64) (archive.ContentItem, bool)
}

// Registry is an in-memory Source fed by host events.
type Registry struct {
	mu    sync.RWMutex
	items map[int64]archive.ContentItem
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[int64]archive.ContentItem)}
}

var _ Source = (*Registry)(nil)

// Put records the latest known state of a content item.
func (r *Registry) Put(item archive.ContentItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
}

// Remove forgets an item, typically on an unpublish/delete event. Pending
// and retry work for removed items is skipped at execution time.
func (r *Registry) Remove(contentID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, contentID)
}

// Get returns the last known state of an item.
func (r *Registry) Get(_ context.Context, contentID int64) (archive.ContentItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[contentID]
	return item, ok
}
