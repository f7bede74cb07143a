package bufferpool

import "github.com/tuannm99/minidb/internal/storage"

// Frame is one reusable in-memory slot holding at most one page.
// Frames are created once at pool construction and never freed.
// The pool's mutex guards all metadata here.
type Frame struct {
	PageID int32 // storage.InvalidPageID when the frame is empty
	Page   *storage.Page
	Dirty  bool
	Pin    int32
}

func newFrame() *Frame {
	return &Frame{
		PageID: storage.InvalidPageID,
		Page:   storage.NewPage(),
	}
}

func (f *Frame) occupied() bool {
	return f.PageID != storage.InvalidPageID
}

func (f *Frame) pin() {
	f.Pin++
}

// unpin decrements the pin count, saturating at zero.
func (f *Frame) unpin() {
	if f.Pin > 0 {
		f.Pin--
	}
}

// reset clears metadata and zeroes the page buffer for reuse.
func (f *Frame) reset() {
	f.PageID = storage.InvalidPageID
	f.Dirty = false
	f.Pin = 0
	for i := range f.Page.Buf {
		f.Page.Buf[i] = 0
	}
}
