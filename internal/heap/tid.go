package heap

import (
	"fmt"

	"github.com/tuannm99/minidb/pkg/bx"
)

// TID (tuple ID) names one tuple inside a heap file:
// PageID: page logic ID
// Slot  : slot index of page
type TID struct {
	PageID int32
	Slot   int32
}

// TIDSize is the serialized width: page id then slot, both int32 BE.
const TIDSize = 8

// Bytes serializes the TID. Both components are non-negative, so
// byte-wise comparison of serialized TIDs agrees with Less.
func (t TID) Bytes() []byte {
	b := make([]byte, TIDSize)
	bx.PutI32At(b, 0, t.PageID)
	bx.PutI32At(b, 4, t.Slot)
	return b
}

func TIDFromBytes(b []byte) (TID, error) {
	if len(b) != TIDSize {
		return TID{}, fmt.Errorf("heap: tid must be %d bytes, got %d", TIDSize, len(b))
	}
	return TID{
		PageID: bx.I32At(b, 0),
		Slot:   bx.I32At(b, 4),
	}, nil
}

// Less orders TIDs lexicographically by (page id, slot).
func (t TID) Less(o TID) bool {
	if t.PageID != o.PageID {
		return t.PageID < o.PageID
	}
	return t.Slot < o.Slot
}

func (t TID) String() string {
	return fmt.Sprintf("(%d,%d)", t.PageID, t.Slot)
}
