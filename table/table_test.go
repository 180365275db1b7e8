package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableEmptyOpenProducesOnePageLeafRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")

	tb, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, tb.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, 4096, info.Size())

	tb2, err := Open(path)
	require.NoError(t, err)
	defer tb2.Close()
	rows, err := tb2.Scan()
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestTableSingleInsertSelect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")

	tb, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, tb.Insert(1, Record{ID: 1, Username: "user1", Email: "e@x"}))
	rows, err := tb.Scan()
	require.NoError(t, err)
	require.Equal(t, []Record{{ID: 1, Username: "user1", Email: "e@x"}}, rows)
	require.NoError(t, tb.Close())

	tb2, err := Open(path)
	require.NoError(t, err)
	defer tb2.Close()
	rows2, err := tb2.Scan()
	require.NoError(t, err)
	require.Equal(t, rows, rows2)
}

func TestTableDuplicateKeyRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")

	tb, err := Open(path)
	require.NoError(t, err)
	defer tb.Close()

	require.NoError(t, tb.Insert(1, Record{ID: 1, Username: "a", Email: "a@x"}))
	err = tb.Insert(1, Record{ID: 1, Username: "b", Email: "b@x"})
	require.ErrorIs(t, err, ErrDuplicateKey)

	rows, err := tb.Scan()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a", rows[0].Username)
}

func TestTableDurabilityRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")

	tb, err := Open(path, WithInternalMaxCells(3))
	require.NoError(t, err)
	for i := uint32(1); i <= 50; i++ {
		require.NoError(t, tb.Insert(i, Record{ID: i, Username: "u", Email: "e"}))
	}
	require.NoError(t, tb.Close())

	tb2, err := Open(path, WithInternalMaxCells(3))
	require.NoError(t, err)
	defer tb2.Close()
	rows, err := tb2.Scan()
	require.NoError(t, err)
	require.Len(t, rows, 50)
	for i, r := range rows {
		require.EqualValues(t, i+1, r.ID)
	}
}

func TestTableDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.db")

	tb, err := Open(path)
	require.NoError(t, err)
	defer tb.Close()

	for _, k := range []uint32{1, 2, 3} {
		require.NoError(t, tb.Insert(k, rec(k)))
	}

	ok, err := tb.Delete(2)
	require.NoError(t, err)
	require.True(t, ok)

	rows, err := tb.Scan()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.EqualValues(t, 1, rows[0].ID)
	require.EqualValues(t, 3, rows[1].ID)

	ok, err = tb.Delete(2)
	require.NoError(t, err)
	require.False(t, ok)
}
