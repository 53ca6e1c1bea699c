package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oliverhu/kdb/page"
)

func TestLeafInsertAndFindCell(t *testing.T) {
	p := page.New(1)
	n := InitLeaf(p, 1, true)
	require.Equal(t, 0, n.NumCells())

	idx, exact := n.FindCell([]byte{0, 0, 0, 0, 0, 0, 0, 5})
	require.False(t, exact)
	require.Equal(t, 0, idx)

	n.InsertCell(0, []byte{0, 0, 0, 0, 0, 0, 0, 5}, []byte("five"))
	n.InsertCell(0, []byte{0, 0, 0, 0, 0, 0, 0, 1}, []byte("one"))
	n.InsertCell(1, []byte{0, 0, 0, 0, 0, 0, 0, 3}, []byte("three"))

	require.Equal(t, 3, n.NumCells())
	require.Equal(t, []byte("one"), n.CellData(0))
	require.Equal(t, []byte("three"), n.CellData(1))
	require.Equal(t, []byte("five"), n.CellData(2))

	idx, exact = n.FindCell([]byte{0, 0, 0, 0, 0, 0, 0, 3})
	require.True(t, exact)
	require.Equal(t, 1, idx)
}

func TestLeafCanInsertCellRespectsPointerArray(t *testing.T) {
	p := page.New(1)
	n := InitLeaf(p, 1, true)

	big := make([]byte, page.PageSize-64)
	require.True(t, n.CanInsertCell(8, len(big)))
	n.InsertCell(0, []byte{0, 0, 0, 0, 0, 0, 0, 1}, big)
	require.False(t, n.CanInsertCell(8, 64))
}

func TestInternalInsertEntryAndFindChild(t *testing.T) {
	p := page.New(9)
	n := InitInternal(p, 9, true, page.PageNum(99))

	n.InsertEntry(page.PageNum(10), 5)
	n.InsertEntry(page.PageNum(11), 2)
	n.InsertEntry(page.PageNum(12), 8)

	require.Equal(t, 3, n.NumKeys())
	require.Equal(t, uint64(2), n.EntryKey(0))
	require.Equal(t, uint64(5), n.EntryKey(1))
	require.Equal(t, uint64(8), n.EntryKey(2))
	require.Equal(t, page.PageNum(11), n.EntryChild(0))
	require.Equal(t, page.PageNum(10), n.EntryChild(1))
	require.Equal(t, page.PageNum(12), n.EntryChild(2))

	require.Equal(t, page.PageNum(11), n.FindChild(1))
	require.Equal(t, page.PageNum(11), n.FindChild(2))
	require.Equal(t, page.PageNum(10), n.FindChild(3))
	require.Equal(t, page.PageNum(12), n.FindChild(8))
	require.Equal(t, page.PageNum(99), n.FindChild(9))
}

func TestUint64KeyRoundTrip(t *testing.T) {
	require.Equal(t, uint64(1234), Uint64Key([]byte{0, 0, 0, 0, 0, 0, 4, 210}))
}
