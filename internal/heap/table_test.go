package heap

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/minidb/internal/bufferpool"
	"github.com/tuannm99/minidb/internal/storage"
)

// newTestHeap creates a fresh heap over a file in a temp directory and
// returns it along with the pool, disk manager and file path so tests
// can flush, close and reopen.
func newTestHeap(t *testing.T, capacity int) (*TableHeap, *bufferpool.Pool, *storage.DiskManager, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "heap.db")
	d, err := storage.NewDiskManager(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	pool := bufferpool.NewPool(d, capacity)
	tbl, err := NewTableHeap(pool)
	require.NoError(t, err)

	return tbl, pool, d, path
}

func TestHeap_InsertGetRoundTrip(t *testing.T) {
	tbl, _, _, _ := newTestHeap(t, 16)

	id, err := tbl.Insert([]byte("hello heap"))
	require.NoError(t, err)
	require.Equal(t, TID{PageID: 0, Slot: 0}, id)

	tup := tbl.Get(id)
	require.NotNil(t, tup)
	require.Equal(t, []byte("hello heap"), tup.Data)
	require.Equal(t, id, tup.ID)
}

func TestHeap_TwoLargeTuplesCrossPages(t *testing.T) {
	tbl, _, _, _ := newTestHeap(t, 2)

	tid1, err := tbl.Insert(bytes.Repeat([]byte{'a'}, 3000))
	require.NoError(t, err)
	tid2, err := tbl.Insert(bytes.Repeat([]byte{'b'}, 3000))
	require.NoError(t, err)

	require.Equal(t, int32(0), tid1.PageID)
	require.Equal(t, int32(1), tid2.PageID)

	// Iteration yields both tuples in insertion order.
	it := tbl.Iterator()

	tup, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{'a'}, 3000), tup.Data)

	tup, err = it.Next()
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{'b'}, 3000), tup.Data)

	require.False(t, it.HasNext())
}

func TestHeap_TombstonePersistsAcrossReopen(t *testing.T) {
	tbl, pool, d, path := newTestHeap(t, 16)

	tidA, err := tbl.Insert(bytes.Repeat([]byte{'a'}, 100))
	require.NoError(t, err)
	tidB, err := tbl.Insert(bytes.Repeat([]byte{'b'}, 100))
	require.NoError(t, err)
	tidC, err := tbl.Insert(bytes.Repeat([]byte{'c'}, 100))
	require.NoError(t, err)

	require.True(t, tbl.MarkDeleted(tidB))

	var got [][]byte
	for it := tbl.Iterator(); it.HasNext(); {
		tup, err := it.Next()
		require.NoError(t, err)
		got = append(got, tup.Data)
	}
	require.Equal(t, [][]byte{
		bytes.Repeat([]byte{'a'}, 100),
		bytes.Repeat([]byte{'c'}, 100),
	}, got)

	first := tbl.FirstPageID()
	require.NoError(t, pool.Close())
	require.NoError(t, d.Close())

	// Reopen from the persistent handle.
	d2, err := storage.NewDiskManager(path)
	require.NoError(t, err)
	defer d2.Close()

	pool2 := bufferpool.NewPool(d2, 16)
	tbl2, err := OpenTableHeap(pool2, first)
	require.NoError(t, err)

	require.NotNil(t, tbl2.Get(tidA))
	require.Nil(t, tbl2.Get(tidB))
	require.NotNil(t, tbl2.Get(tidC))
}

func TestHeap_UpdateInPlacePersists(t *testing.T) {
	tbl, pool, d, path := newTestHeap(t, 16)

	id, err := tbl.Insert(bytes.Repeat([]byte{'x'}, 200))
	require.NoError(t, err)

	require.True(t, tbl.Update(id, bytes.Repeat([]byte{'z'}, 50)))

	first := tbl.FirstPageID()
	require.NoError(t, pool.Close())
	require.NoError(t, d.Close())

	d2, err := storage.NewDiskManager(path)
	require.NoError(t, err)
	defer d2.Close()

	pool2 := bufferpool.NewPool(d2, 16)
	tbl2, err := OpenTableHeap(pool2, first)
	require.NoError(t, err)

	tup := tbl2.Get(id)
	require.NotNil(t, tup)
	require.Equal(t, bytes.Repeat([]byte{'z'}, 50), tup.Data)
}

func TestHeap_SlotIDsNotReusedAfterDelete(t *testing.T) {
	tbl, _, _, _ := newTestHeap(t, 16)

	tidA, err := tbl.Insert([]byte("first"))
	require.NoError(t, err)
	require.True(t, tbl.MarkDeleted(tidA))

	tidB, err := tbl.Insert([]byte("second"))
	require.NoError(t, err)

	require.Equal(t, tidA.PageID, tidB.PageID)
	require.Equal(t, tidA.Slot+1, tidB.Slot)

	// The dead slot stays dead.
	require.Nil(t, tbl.Get(tidA))
	require.False(t, tbl.Update(tidA, []byte("x")))
	require.False(t, tbl.MarkDeleted(tidA))
}

func TestHeap_UpdateLargerFailsWithoutMutation(t *testing.T) {
	tbl, _, _, _ := newTestHeap(t, 16)

	id, err := tbl.Insert([]byte("abc"))
	require.NoError(t, err)

	require.False(t, tbl.Update(id, []byte("abcd")))

	tup := tbl.Get(id)
	require.NotNil(t, tup)
	require.Equal(t, []byte("abc"), tup.Data)
}

func TestHeap_OversizedInsertRejected(t *testing.T) {
	tbl, _, _, _ := newTestHeap(t, 16)

	_, err := tbl.Insert(make([]byte, storage.PageSize))
	require.ErrorIs(t, err, storage.ErrInvalidTupleSize)

	_, err = tbl.Insert(nil)
	require.ErrorIs(t, err, storage.ErrInvalidTupleSize)

	// The heap is still usable.
	_, err = tbl.Insert([]byte("fits"))
	require.NoError(t, err)
}

func TestHeap_DeleteByTuple(t *testing.T) {
	tbl, _, _, _ := newTestHeap(t, 16)

	id, err := tbl.Insert([]byte("bye"))
	require.NoError(t, err)

	tup := tbl.Get(id)
	require.NotNil(t, tup)

	require.Equal(t, id.Slot, tbl.Delete(tup))
	require.Nil(t, tbl.Get(id))

	// Already dead and nil tuples report -1.
	require.Equal(t, int32(-1), tbl.Delete(tup))
	require.Equal(t, int32(-1), tbl.Delete(nil))
}

func TestHeap_GetOfUnknownTIDReturnsNil(t *testing.T) {
	tbl, _, _, _ := newTestHeap(t, 16)

	_, err := tbl.Insert([]byte("only one"))
	require.NoError(t, err)

	require.Nil(t, tbl.Get(TID{PageID: 0, Slot: 99}))
	require.Nil(t, tbl.Get(TID{PageID: 42, Slot: 0}))
}

func TestHeap_ReopenFindsTailAcrossPages(t *testing.T) {
	tbl, pool, d, path := newTestHeap(t, 4)

	// Fill several pages.
	var last TID
	for i := 0; i < 100; i++ {
		id, err := tbl.Insert(bytes.Repeat([]byte{byte('a' + i%26)}, 100))
		require.NoError(t, err)
		last = id
	}
	require.Greater(t, last.PageID, int32(0))

	first := tbl.FirstPageID()
	require.NoError(t, pool.Close())
	require.NoError(t, d.Close())

	d2, err := storage.NewDiskManager(path)
	require.NoError(t, err)
	defer d2.Close()

	pool2 := bufferpool.NewPool(d2, 4)
	tbl2, err := OpenTableHeap(pool2, first)
	require.NoError(t, err)

	// Inserting after reopen continues on the rediscovered tail.
	id, err := tbl2.Insert([]byte("after reopen"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, id.PageID, last.PageID)
	require.Equal(t, []byte("after reopen"), tbl2.Get(id).Data)
}
