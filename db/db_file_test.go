package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFileRoundTrip exercises a real on-disk file: data inserted before
// Close must still be there after a fresh Open of the same path.
func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.kdb")

	d1, err := Open(path, false)
	require.NoError(t, err)
	tbl, err := d1.CreateTable("widgets", widgetsSchema(), "CREATE TABLE widgets (...)")
	require.NoError(t, err)
	require.NoError(t, d1.Insert(tbl, []any{uint64(1), "sprocket", nil}))
	require.NoError(t, d1.Insert(tbl, []any{uint64(2), "cog", "spare"}))
	require.NoError(t, d1.Close())

	d2, err := Open(path, false)
	require.NoError(t, err)
	defer d2.Close()

	tbl2, err := d2.OpenTable("widgets")
	require.NoError(t, err)
	require.Equal(t, widgetsSchema(), tbl2.Schema())

	row, found, err := d2.SelectByPKey(tbl2, 2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Row{uint64(2), "cog", "spare"}, row)
}

// TestFileRoundTripManyRowsAcrossSplits forces the table's B-tree to split
// several times before closing, so reopening must walk a multi-level tree.
func TestFileRoundTripManyRowsAcrossSplits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.kdb")
	const n = 3000

	d1, err := Open(path, false)
	require.NoError(t, err)
	tbl, err := d1.CreateTable("widgets", widgetsSchema(), "sql")
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, d1.Insert(tbl, []any{uint64(i), "w", nil}))
	}
	require.NoError(t, d1.Close())

	d2, err := Open(path, false)
	require.NoError(t, err)
	defer d2.Close()
	tbl2, err := d2.OpenTable("widgets")
	require.NoError(t, err)

	rows, err := d2.SelectAll(tbl2)
	require.NoError(t, err)
	count := 0
	for rows.Next() {
		count++
	}
	require.NoError(t, rows.Err())
	require.Equal(t, n, count)
}
