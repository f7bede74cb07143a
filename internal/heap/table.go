package heap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tuannm99/minidb/internal/bufferpool"
	"github.com/tuannm99/minidb/internal/storage"
)

// Tuple is an opaque byte record plus the TID it lives at.
type Tuple struct {
	Data []byte
	ID   TID
}

// TableHeap owns the doubly-linked page chain of one table. Inserts go
// to the tail page; a full tail gets a freshly allocated page linked
// after it. The first page id is the heap's persistent handle.
//
// TableHeap is not safe for concurrent use; callers serialize mutating
// operations on the same heap.
type TableHeap struct {
	bp          bufferpool.Manager
	firstPageID int32
	lastPageID  int32
}

// NewTableHeap creates a fresh heap with one empty page.
func NewTableHeap(bp bufferpool.Manager) (*TableHeap, error) {
	pageID, page, err := bp.NewPage()
	if err != nil {
		return nil, fmt.Errorf("heap: create first page: %w", err)
	}

	tp := storage.AsTablePage(page)
	tp.Init(pageID, storage.InvalidPageID)
	if err := bp.UnpinPage(pageID, true); err != nil {
		return nil, err
	}

	return &TableHeap{
		bp:          bp,
		firstPageID: pageID,
		lastPageID:  pageID,
	}, nil
}

// OpenTableHeap reopens a heap from its stored first page id, walking
// the next chain to rediscover the tail.
func OpenTableHeap(bp bufferpool.Manager, firstPageID int32) (*TableHeap, error) {
	cur := firstPageID
	for {
		page, err := bp.FetchPage(cur)
		if err != nil {
			return nil, fmt.Errorf("heap: open at page %d: %w", cur, err)
		}
		next := storage.AsTablePage(page).NextPageID()
		if err := bp.UnpinPage(cur, false); err != nil {
			return nil, err
		}
		if next == storage.InvalidPageID {
			break
		}
		cur = next
	}

	return &TableHeap{
		bp:          bp,
		firstPageID: firstPageID,
		lastPageID:  cur,
	}, nil
}

// FirstPageID is the heap's persistent handle; higher layers store it
// in a catalog.
func (t *TableHeap) FirstPageID() int32 {
	return t.firstPageID
}

// Insert appends data to the tail page, allocating and linking a new
// tail when the current one is full. Returns the new tuple's TID.
func (t *TableHeap) Insert(data []byte) (TID, error) {
	page, err := t.bp.FetchPage(t.lastPageID)
	if err != nil {
		return TID{}, fmt.Errorf("heap: fetch tail page %d: %w", t.lastPageID, err)
	}

	tp := storage.AsTablePage(page)
	slot, err := tp.InsertTuple(data)
	if err == nil {
		id := TID{PageID: t.lastPageID, Slot: slot}
		if err := t.bp.UnpinPage(t.lastPageID, true); err != nil {
			return TID{}, err
		}
		return id, nil
	}
	if !errors.Is(err, storage.ErrNoSpace) {
		_ = t.bp.UnpinPage(t.lastPageID, false)
		return TID{}, err
	}

	// Tail is full: allocate a new page and link it after the tail.
	// A full page stays full for the lifetime of the heap; earlier
	// pages are never re-scanned for space.
	newID, newPage, err := t.bp.NewPage()
	if err != nil {
		_ = t.bp.UnpinPage(t.lastPageID, false)
		return TID{}, err
	}

	ntp := storage.AsTablePage(newPage)
	ntp.Init(newID, t.lastPageID)
	tp.SetNextPageID(newID)

	// The tuple passed the per-page size check above, so it fits here.
	slot, err = ntp.InsertTuple(data)
	if err != nil {
		_ = t.bp.UnpinPage(t.lastPageID, true)
		_ = t.bp.UnpinPage(newID, true)
		return TID{}, err
	}

	if err := t.bp.UnpinPage(t.lastPageID, true); err != nil {
		return TID{}, err
	}
	if err := t.bp.UnpinPage(newID, true); err != nil {
		return TID{}, err
	}

	t.lastPageID = newID
	return TID{PageID: newID, Slot: slot}, nil
}

// Get returns the tuple at id, or nil for tombstoned/out-of-range
// slots. Buffer pool failures on this read path are logged and
// reported as nil.
func (t *TableHeap) Get(id TID) *Tuple {
	page, err := t.bp.FetchPage(id.PageID)
	if err != nil {
		slog.Warn("heap: get failed to fetch page", "tid", id, "err", err)
		return nil
	}

	data, err := storage.AsTablePage(page).GetTuple(id.Slot)
	_ = t.bp.UnpinPage(id.PageID, false)
	if err != nil {
		return nil
	}
	return &Tuple{Data: data, ID: id}
}

// Update overwrites the tuple at id in place. Reports false for dead
// slots and for updates larger than the existing tuple; the page is
// untouched on failure.
func (t *TableHeap) Update(id TID, data []byte) bool {
	page, err := t.bp.FetchPage(id.PageID)
	if err != nil {
		slog.Warn("heap: update failed to fetch page", "tid", id, "err", err)
		return false
	}

	err = storage.AsTablePage(page).UpdateTuple(id.Slot, data)
	_ = t.bp.UnpinPage(id.PageID, err == nil)
	return err == nil
}

// MarkDeleted tombstones the tuple at id. The slot id is retired for
// the lifetime of the page.
func (t *TableHeap) MarkDeleted(id TID) bool {
	page, err := t.bp.FetchPage(id.PageID)
	if err != nil {
		slog.Warn("heap: delete failed to fetch page", "tid", id, "err", err)
		return false
	}

	err = storage.AsTablePage(page).MarkDeleted(id.Slot)
	_ = t.bp.UnpinPage(id.PageID, err == nil)
	return err == nil
}

// Delete tombstones the tuple at the id carried by tup. Returns the
// retired slot id, or -1 when tup carries no usable id or the slot is
// already dead.
func (t *TableHeap) Delete(tup *Tuple) int32 {
	if tup == nil || tup.ID.PageID == storage.InvalidPageID {
		return -1
	}
	if !t.MarkDeleted(tup.ID) {
		return -1
	}
	return tup.ID.Slot
}
