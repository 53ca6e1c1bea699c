package cursor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oliverhu/kdb/btree"
	"github.com/oliverhu/kdb/pager"
	"github.com/oliverhu/kdb/record"
)

func newPopulatedTree(t *testing.T, n int) (*pager.Pager, *btree.Tree) {
	t.Helper()
	pgr, err := pager.Open("", true)
	require.NoError(t, err)
	tr, err := btree.Create(pgr)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, tr.Insert(record.EncodeKey(uint64(i)), []byte(fmt.Sprintf("v%04d", i))))
	}
	return pgr, tr
}

func TestCursorScansEmptyTree(t *testing.T) {
	pgr, tr := newPopulatedTree(t, 0)
	c, err := FromStart(pgr, tr.Root())
	require.NoError(t, err)
	require.False(t, c.Valid())
}

func TestCursorScansSingleLeafInOrder(t *testing.T) {
	pgr, tr := newPopulatedTree(t, 10)
	c, err := FromStart(pgr, tr.Root())
	require.NoError(t, err)

	var got []uint64
	for c.Valid() {
		k, err := record.DecodeKey(c.Key())
		require.NoError(t, err)
		got = append(got, k)
		_, err = c.Advance()
		require.NoError(t, err)
	}
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestCursorScansAcrossLeafSplitsInOrder(t *testing.T) {
	const n = 4000
	pgr, tr := newPopulatedTree(t, n)

	c, err := FromStart(pgr, tr.Root())
	require.NoError(t, err)

	count := 0
	var prev uint64
	for c.Valid() {
		k, err := record.DecodeKey(c.Key())
		require.NoError(t, err)
		if count > 0 {
			require.Greater(t, k, prev, "keys must be strictly ascending")
		}
		prev = k
		count++
		_, err = c.Advance()
		require.NoError(t, err)
	}
	require.Equal(t, n, count)
}

func TestCursorFindPositionsOnExactKey(t *testing.T) {
	pgr, tr := newPopulatedTree(t, 2000)
	c, found, err := Find(pgr, tr.Root(), record.EncodeKey(1500))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1500", string(c.Value()))

	next, err := c.Advance()
	require.NoError(t, err)
	require.True(t, next)
	k, err := record.DecodeKey(c.Key())
	require.NoError(t, err)
	require.Equal(t, uint64(1501), k)
}

func TestCursorFindMissingKey(t *testing.T) {
	pgr, tr := newPopulatedTree(t, 10)
	_, found, err := Find(pgr, tr.Root(), record.EncodeKey(999))
	require.NoError(t, err)
	require.False(t, found)
}
