package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/minidb/internal/storage"
)

var (
	logDebugPrefix  = "bufferpool: "
	DefaultCapacity = 128

	// ErrNoFreeFrame is returned when every frame is pinned and no
	// victim is available for replacement.
	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")

	// ErrPagePinned is returned when trying to delete a pinned page.
	ErrPagePinned = errors.New("bufferpool: page is pinned")
)

var _ Manager = (*Pool)(nil)

// Pool is a fixed-size buffer pool over one DiskManager. Victim frames
// come from the free list first, then from the LRU replacer. A single
// coarse mutex serializes every public operation.
type Pool struct {
	disk *storage.DiskManager

	mu        sync.Mutex
	frames    []*Frame      // fixed-size, preallocated
	pageTable map[int32]int // page id -> index in frames
	freeList  []int         // never-used or deleted frame indices
	repl      Replacer
}

// NewPool creates a buffer pool with the given number of frames.
func NewPool(disk *storage.DiskManager, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	frames := make([]*Frame, capacity)
	freeList := make([]int, capacity)
	for i := range frames {
		frames[i] = newFrame()
		freeList[i] = i
	}

	return &Pool{
		disk:      disk,
		frames:    frames,
		pageTable: make(map[int32]int),
		freeList:  freeList,
		repl:      newLRUReplacer(),
	}
}

// FetchPage returns the page with the given id, pinned. On a miss the
// page is read from disk into a victim frame, flushing the victim's old
// content first when dirty.
func (p *Pool) FetchPage(pageID int32) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[pageID]; ok {
		f := p.frames[idx]
		f.pin()
		p.repl.Pin(idx)
		slog.Debug(logDebugPrefix+"fetch hit",
			"pageID", pageID,
			"frameIdx", idx,
			"pin", f.Pin)
		return f.Page, nil
	}

	idx, err := p.acquireFrameLocked()
	if err != nil {
		return nil, err
	}

	f := p.frames[idx]
	if err := p.disk.ReadPage(pageID, f.Page.Buf); err != nil {
		f.reset()
		p.freeList = append(p.freeList, idx)
		return nil, fmt.Errorf("fetch page %d: %w", pageID, err)
	}

	f.PageID = pageID
	f.Dirty = false
	f.Pin = 1
	p.pageTable[pageID] = idx

	slog.Debug(logDebugPrefix+"fetch miss, loaded from disk",
		"pageID", pageID,
		"frameIdx", idx)
	return f.Page, nil
}

// NewPage allocates a new on-disk page, installs it zero-filled in a
// victim frame and returns it pinned.
func (p *Pool) NewPage() (int32, *storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pageID, err := p.disk.AllocatePage()
	if err != nil {
		return storage.InvalidPageID, nil, err
	}

	idx, err := p.acquireFrameLocked()
	if err != nil {
		// The allocated page id is never exposed; the file keeps one
		// unused page. Accepted trade-off over un-allocating.
		slog.Warn(logDebugPrefix+"no frame for new page, on-disk page leaked",
			"pageID", pageID)
		return storage.InvalidPageID, nil, err
	}

	f := p.frames[idx]
	f.reset()
	f.PageID = pageID
	f.Pin = 1
	p.pageTable[pageID] = idx

	slog.Debug(logDebugPrefix+"new page",
		"pageID", pageID,
		"frameIdx", idx)
	return pageID, f.Page, nil
}

// UnpinPage releases one pin on the page and ORs in the dirty flag.
// When the pin count reaches zero the frame becomes evictable.
func (p *Pool) UnpinPage(pageID int32, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		slog.Warn(logDebugPrefix+"unpin of page not in pool", "pageID", pageID)
		return nil
	}

	f := p.frames[idx]
	if dirty {
		f.Dirty = true
	}

	if f.Pin == 0 {
		slog.Warn(logDebugPrefix+"unpin past zero", "pageID", pageID, "frameIdx", idx)
		return nil
	}

	f.unpin()
	if f.Pin == 0 {
		p.repl.Unpin(idx)
	}
	return nil
}

// FlushPage writes the page to disk if it is cached and clears its
// dirty flag. Reports whether the page was present.
func (p *Pool) FlushPage(pageID int32) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return false, nil
	}
	if err := p.flushFrameLocked(idx); err != nil {
		return true, err
	}
	return true, nil
}

// FlushAll writes every currently-cached page to disk.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, idx := range p.pageTable {
		if err := p.flushFrameLocked(idx); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage drops the page from the cache (disk space is not
// reclaimed). Fails with ErrPagePinned while the page is in use.
func (p *Pool) DeletePage(pageID int32) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		return false, nil
	}

	f := p.frames[idx]
	if f.Pin != 0 {
		return false, fmt.Errorf("%w: page %d, pin %d", ErrPagePinned, pageID, f.Pin)
	}

	if f.Dirty {
		if err := p.flushFrameLocked(idx); err != nil {
			return false, err
		}
	}

	p.repl.Pin(idx)
	f.reset()
	delete(p.pageTable, pageID)
	p.freeList = append(p.freeList, idx)
	return true, nil
}

// Stats renders a one-line summary of pool occupancy.
func (p *Pool) Stats() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	used, dirty, pinned := 0, 0, 0
	for _, f := range p.frames {
		if !f.occupied() {
			continue
		}
		used++
		if f.Dirty {
			dirty++
		}
		if f.Pin > 0 {
			pinned++
		}
	}
	return fmt.Sprintf("pool_size=%d used=%d free=%d dirty=%d pinned=%d evictable=%d",
		len(p.frames), used, len(p.freeList), dirty, pinned, p.repl.Size())
}

// Close flushes all pages and clears the pool structures. The disk
// manager is owned by the caller and stays open.
func (p *Pool) Close() error {
	if err := p.FlushAll(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for idx, f := range p.frames {
		if f.occupied() {
			p.repl.Pin(idx)
			f.reset()
			p.freeList = append(p.freeList, idx)
		}
	}
	p.pageTable = make(map[int32]int)
	return nil
}

// acquireFrameLocked picks the frame for an incoming page: free list
// first, then an LRU victim (flushed and evicted if occupied).
// The caller must hold p.mu.
func (p *Pool) acquireFrameLocked() (int, error) {
	if len(p.freeList) > 0 {
		idx := p.freeList[0]
		p.freeList = p.freeList[1:]
		return idx, nil
	}

	idx, ok := p.repl.Victim()
	if !ok {
		return -1, ErrNoFreeFrame
	}

	f := p.frames[idx]
	if f.occupied() {
		if f.Dirty {
			if err := p.disk.WritePage(f.PageID, f.Page.Buf); err != nil {
				// Keep the frame evictable so a retry can pick it again.
				p.repl.Unpin(idx)
				return -1, fmt.Errorf("flush victim page %d: %w", f.PageID, err)
			}
			f.Dirty = false
		}
		slog.Debug(logDebugPrefix+"evicting victim",
			"victimPageID", f.PageID,
			"frameIdx", idx)
		delete(p.pageTable, f.PageID)
	}
	return idx, nil
}

// flushFrameLocked writes one occupied frame to disk and clears dirty.
// The caller must hold p.mu.
func (p *Pool) flushFrameLocked(idx int) error {
	f := p.frames[idx]
	if !f.occupied() {
		return nil
	}
	if err := p.disk.WritePage(f.PageID, f.Page.Buf); err != nil {
		return fmt.Errorf("flush page %d: %w", f.PageID, err)
	}
	f.Dirty = false
	return nil
}
