package heap

import (
	"errors"
	"log/slog"

	"github.com/tuannm99/minidb/internal/storage"
)

// ErrNoMoreTuples is returned by Next on an exhausted iterator.
var ErrNoMoreTuples = errors.New("heap: no more tuples")

// Iterator yields live tuples in ascending (page id, slot) order:
// insertion order within a page, page order along the next chain.
// Behavior under concurrent mutation of the heap is unspecified.
type Iterator struct {
	heap   *TableHeap
	pageID int32
	slot   int32
	next   *Tuple
}

// Iterator returns a forward iterator positioned at the first live tuple.
func (t *TableHeap) Iterator() *Iterator {
	it := &Iterator{
		heap:   t,
		pageID: t.firstPageID,
	}
	it.next = it.fetchNext()
	return it
}

func (it *Iterator) HasNext() bool {
	return it.next != nil
}

// Next returns the buffered tuple and pre-fetches the following one.
func (it *Iterator) Next() (*Tuple, error) {
	if it.next == nil {
		return nil, ErrNoMoreTuples
	}
	cur := it.next
	it.next = it.fetchNext()
	return cur, nil
}

// fetchNext advances to the next live slot, hopping pages along the
// chain. Each visited page is held pinned only while it is scanned.
func (it *Iterator) fetchNext() *Tuple {
	for it.pageID != storage.InvalidPageID {
		page, err := it.heap.bp.FetchPage(it.pageID)
		if err != nil {
			slog.Warn("heap: iterator failed to fetch page", "pageID", it.pageID, "err", err)
			it.pageID = storage.InvalidPageID
			return nil
		}

		tp := storage.AsTablePage(page)
		for it.slot < tp.TupleCount() {
			data, err := tp.GetTuple(it.slot)
			it.slot++
			if err != nil {
				continue // tombstone
			}
			id := TID{PageID: it.pageID, Slot: it.slot - 1}
			_ = it.heap.bp.UnpinPage(it.pageID, false)
			return &Tuple{Data: data, ID: id}
		}

		next := tp.NextPageID()
		_ = it.heap.bp.UnpinPage(it.pageID, false)
		it.pageID = next
		it.slot = 0
	}
	return nil
}
