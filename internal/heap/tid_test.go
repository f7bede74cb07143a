package heap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTID_BytesRoundTrip(t *testing.T) {
	for _, id := range []TID{
		{PageID: 0, Slot: 0},
		{PageID: 1, Slot: 42},
		{PageID: 1<<31 - 1, Slot: 1<<31 - 1},
	} {
		b := id.Bytes()
		require.Len(t, b, TIDSize)

		got, err := TIDFromBytes(b)
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
}

func TestTID_FromBytesRejectsBadLength(t *testing.T) {
	_, err := TIDFromBytes(nil)
	require.Error(t, err)
	_, err = TIDFromBytes(make([]byte, 7))
	require.Error(t, err)
	_, err = TIDFromBytes(make([]byte, 9))
	require.Error(t, err)
}

func TestTID_OrderMatchesSerializedOrder(t *testing.T) {
	ids := []TID{
		{PageID: 0, Slot: 0},
		{PageID: 0, Slot: 1},
		{PageID: 0, Slot: 500},
		{PageID: 1, Slot: 0},
		{PageID: 2, Slot: 3},
		{PageID: 300, Slot: 7},
	}

	for i, a := range ids {
		for j, b := range ids {
			wantLess := i < j
			require.Equal(t, wantLess, a.Less(b), "%v < %v", a, b)

			cmp := bytes.Compare(a.Bytes(), b.Bytes())
			require.Equal(t, wantLess, cmp < 0, "serialized %v < %v", a, b)
		}
	}
}
