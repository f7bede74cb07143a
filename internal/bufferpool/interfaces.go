package bufferpool

import "github.com/tuannm99/minidb/internal/storage"

// Replacer tracks which frame indices are eviction candidates.
// Only unpinned frames are ever registered.
type Replacer interface {
	// Unpin registers the frame as evictable, refreshing its recency.
	Unpin(frameID int)

	// Pin removes the frame from the candidate set. No-op if absent.
	Pin(frameID int)

	// Victim removes and returns the least-recently-unpinned frame.
	Victim() (frameID int, ok bool)

	Size() int
}

// Manager is the buffer pool surface the heap layer depends on.
type Manager interface {
	// FetchPage returns the cached page (pin count is increased).
	FetchPage(pageID int32) (*storage.Page, error)

	// NewPage allocates a fresh on-disk page and pins it, zero-filled.
	NewPage() (int32, *storage.Page, error)

	// UnpinPage releases one pin and ORs the dirty flag into the frame.
	UnpinPage(pageID int32, dirty bool) error

	// FlushAll writes every cached page to disk.
	FlushAll() error
}
