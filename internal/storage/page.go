package storage

import (
	"fmt"

	"github.com/tuannm99/minidb/pkg/bx"
)

// Page is one in-memory page image. The buffer is always PageSize bytes;
// the buffer pool owns it for the lifetime of a frame.
type Page struct {
	Buf []byte
}

func NewPage() *Page {
	return &Page{Buf: make([]byte, PageSize)}
}

// Slotted page layout. All fields big-endian.
//
// +--------------------+ 0
// | page id       (i32)|
// | prev page id  (i32)|
// | next page id  (i32)|
// | free space ptr(i32)|
// | tuple count   (i32)|
// | reserved      (4B) |
// +--------------------+ HeaderSize (24)
// | slot directory     |  4 bytes per slot: offset u16, length u16
// | (grows forward)    |  length == 0 marks a tombstone
// +--------------------+ <-- free space pointer
// | tuple data         |
// | (grows backward)   |
// +--------------------+ PageSize (4096)
const (
	offPageID     = 0
	offPrevPageID = 4
	offNextPageID = 8
	offFreeSpace  = 12
	offTupleCount = 16
)

// TablePage interprets a page buffer as a slotted tuple page.
// It is a view: no state outside the buffer, not safe for concurrent writes.
type TablePage struct {
	*Page
}

func AsTablePage(p *Page) TablePage {
	return TablePage{p}
}

// Init formats the page as an empty slotted page linked after prevPageID.
func (tp TablePage) Init(pageID, prevPageID int32) {
	for i := range tp.Buf {
		tp.Buf[i] = 0
	}
	bx.PutI32At(tp.Buf, offPageID, pageID)
	bx.PutI32At(tp.Buf, offPrevPageID, prevPageID)
	bx.PutI32At(tp.Buf, offNextPageID, InvalidPageID)
	bx.PutI32At(tp.Buf, offFreeSpace, PageSize)
	bx.PutI32At(tp.Buf, offTupleCount, 0)
}

// ---- header accessors ----

func (tp TablePage) PageID() int32 {
	return bx.I32At(tp.Buf, offPageID)
}

func (tp TablePage) PrevPageID() int32 {
	return bx.I32At(tp.Buf, offPrevPageID)
}

func (tp TablePage) SetPrevPageID(id int32) {
	bx.PutI32At(tp.Buf, offPrevPageID, id)
}

func (tp TablePage) NextPageID() int32 {
	return bx.I32At(tp.Buf, offNextPageID)
}

func (tp TablePage) SetNextPageID(id int32) {
	bx.PutI32At(tp.Buf, offNextPageID, id)
}

func (tp TablePage) FreeSpacePointer() int32 {
	return bx.I32At(tp.Buf, offFreeSpace)
}

func (tp TablePage) setFreeSpacePointer(v int32) {
	bx.PutI32At(tp.Buf, offFreeSpace, v)
}

// TupleCount is the number of slots ever allocated, tombstones included.
func (tp TablePage) TupleCount() int32 {
	return bx.I32At(tp.Buf, offTupleCount)
}

func (tp TablePage) setTupleCount(v int32) {
	bx.PutI32At(tp.Buf, offTupleCount, v)
}

// FreeSpace is the gap between the slot directory and the tuple heap.
func (tp TablePage) FreeSpace() int {
	slotRegionEnd := HeaderSize + SlotSize*int(tp.TupleCount())
	return int(tp.FreeSpacePointer()) - slotRegionEnd
}

// ---- slot directory ----

func (tp TablePage) slotOff(slot int32) int {
	return HeaderSize + int(slot)*SlotSize
}

func (tp TablePage) getSlot(slot int32) (offset, length int) {
	o := tp.slotOff(slot)
	return int(bx.U16At(tp.Buf, o)), int(bx.U16At(tp.Buf, o+2))
}

func (tp TablePage) putSlot(slot int32, offset, length int) {
	o := tp.slotOff(slot)
	bx.PutU16At(tp.Buf, o, uint16(offset))
	bx.PutU16At(tp.Buf, o+2, uint16(length))
}

// ---- tuple operations ----

// InsertTuple copies tup into the page and appends a slot for it.
// Returns the new slot id, or (-1, ErrNoSpace) when the page is full.
// A tuple that can never fit on any page is ErrInvalidTupleSize.
func (tp TablePage) InsertTuple(tup []byte) (int32, error) {
	if len(tup) == 0 || len(tup) > MaxTupleSize {
		return -1, fmt.Errorf("%w: got %d bytes", ErrInvalidTupleSize, len(tup))
	}
	if tp.FreeSpace() < len(tup)+SlotSize {
		return -1, ErrNoSpace
	}

	fsp := tp.FreeSpacePointer() - int32(len(tup))
	copy(tp.Buf[fsp:], tup)
	tp.setFreeSpacePointer(fsp)

	slot := tp.TupleCount()
	tp.putSlot(slot, int(fsp), len(tup))
	tp.setTupleCount(slot + 1)
	return slot, nil
}

// GetTuple returns a copy of the tuple bytes at slot.
// Out-of-range and tombstoned slots are ErrBadSlot.
func (tp TablePage) GetTuple(slot int32) ([]byte, error) {
	if slot < 0 || slot >= tp.TupleCount() {
		return nil, fmt.Errorf("%w: slot %d of %d", ErrBadSlot, slot, tp.TupleCount())
	}
	offset, length := tp.getSlot(slot)
	if length == 0 {
		return nil, fmt.Errorf("%w: slot %d is deleted", ErrBadSlot, slot)
	}
	out := make([]byte, length)
	copy(out, tp.Buf[offset:offset+length])
	return out, nil
}

// UpdateTuple overwrites the tuple at slot in place. The new tuple must
// not be larger than the existing one; larger updates are the caller's
// problem (delete + insert).
func (tp TablePage) UpdateTuple(slot int32, newTup []byte) error {
	if len(newTup) == 0 || len(newTup) > MaxTupleSize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidTupleSize, len(newTup))
	}
	if slot < 0 || slot >= tp.TupleCount() {
		return fmt.Errorf("%w: slot %d of %d", ErrBadSlot, slot, tp.TupleCount())
	}
	offset, length := tp.getSlot(slot)
	if length == 0 {
		return fmt.Errorf("%w: slot %d is deleted", ErrBadSlot, slot)
	}
	if len(newTup) > length {
		return fmt.Errorf("%w: %d > %d bytes", ErrTupleTooLarge, len(newTup), length)
	}

	copy(tp.Buf[offset:], newTup)
	tp.putSlot(slot, offset, len(newTup))
	return nil
}

// MarkDeleted tombstones the slot. The slot id is never reused within
// this page; the tuple bytes are left behind and not reclaimed.
func (tp TablePage) MarkDeleted(slot int32) error {
	if slot < 0 || slot >= tp.TupleCount() {
		return fmt.Errorf("%w: slot %d of %d", ErrBadSlot, slot, tp.TupleCount())
	}
	offset, length := tp.getSlot(slot)
	if length == 0 {
		return fmt.Errorf("%w: slot %d already deleted", ErrBadSlot, slot)
	}
	tp.putSlot(slot, offset, 0)
	return nil
}
