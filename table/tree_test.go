package table

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"bptable/pager"
)

func openTestTree(t *testing.T, opts ...TreeOption) *Tree {
	t.Helper()
	f, err := os.CreateTemp("", "tree_test_*.db")
	require.NoError(t, err)
	path := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(path) })

	p, err := pager.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	tr, err := OpenTree(p, opts...)
	require.NoError(t, err)
	return tr
}

func rec(id uint32) Record {
	return Record{ID: id, Username: fmt.Sprintf("user%d", id), Email: fmt.Sprintf("user%d@example.com", id)}
}

func insert(t *testing.T, tr *Tree, key uint32) {
	t.Helper()
	c, err := tr.Find(key)
	require.NoError(t, err)
	require.NoError(t, tr.LeafInsert(c, key, rec(key)))
}

func scanAll(t *testing.T, tr *Tree) []uint32 {
	t.Helper()
	c, err := tr.TableStart()
	require.NoError(t, err)
	var keys []uint32
	for c.Valid() {
		k, err := c.Key()
		require.NoError(t, err)
		keys = append(keys, k)
		require.NoError(t, c.Advance())
	}
	return keys
}

func TestOpenTreeFreshFileIsRootLeaf(t *testing.T) {
	tr := openTestTree(t)
	n, err := tr.node(RootPage)
	require.NoError(t, err)
	require.True(t, n.IsLeaf())
	require.True(t, n.IsRoot())
	require.Equal(t, uint32(0), n.CellsCount())
}

func TestFindOnEmptyTreePositionsAtStart(t *testing.T) {
	tr := openTestTree(t)
	c, err := tr.TableStart()
	require.NoError(t, err)
	require.True(t, c.EndOfTable)
}

func TestSingleInsertAndFind(t *testing.T) {
	tr := openTestTree(t)
	insert(t, tr, 1)

	c, err := tr.Find(1)
	require.NoError(t, err)
	require.True(t, c.Valid())
	k, err := c.Key()
	require.NoError(t, err)
	require.Equal(t, uint32(1), k)
	v, err := c.Value()
	require.NoError(t, err)
	require.Equal(t, rec(1), v)
}

func TestFindOfAbsentKeyPositionsAtInsertionSlot(t *testing.T) {
	tr := openTestTree(t)
	for _, k := range []uint32{10, 20, 30} {
		insert(t, tr, k)
	}
	c, err := tr.Find(15)
	require.NoError(t, err)
	require.True(t, c.Valid())
	k, err := c.Key()
	require.NoError(t, err)
	require.Equal(t, uint32(20), k, "cursor should land on the first key >= target")
}

func TestLeafFillAndSplit(t *testing.T) {
	tr := openTestTree(t)
	max := LeafMaxCells()
	for i := uint32(1); i <= max; i++ {
		insert(t, tr, i)
	}
	root, err := tr.node(RootPage)
	require.NoError(t, err)
	require.True(t, root.IsLeaf(), "root should still be a single leaf at capacity")
	require.Equal(t, max, root.CellsCount())

	// One more insert overflows the leaf and forces a root split.
	insert(t, tr, max+1)

	root, err = tr.node(RootPage)
	require.NoError(t, err)
	require.False(t, root.IsLeaf(), "root should now be internal")
	require.True(t, root.IsRoot())
	require.Equal(t, uint32(1), root.KeysCount())

	leftPage := root.InternalChildPage(0)
	left, err := tr.node(leftPage)
	require.NoError(t, err)
	require.True(t, left.IsLeaf())
	require.Equal(t, root.InternalKey(0), left.LeafKey(left.CellsCount()-1))

	keys := scanAll(t, tr)
	require.Len(t, keys, int(max+1))
	for i, k := range keys {
		require.Equal(t, uint32(i+1), k)
	}

	// Leaf chain has exactly two leaves.
	chainLen := 0
	pageNum := leftPage
	for {
		n, err := tr.node(pageNum)
		require.NoError(t, err)
		chainLen++
		if n.NextLeafPage() == NoNextLeaf {
			break
		}
		pageNum = n.NextLeafPage()
	}
	require.Equal(t, 2, chainLen)
}

func TestUnsortedInsertionDrivesMultipleSplits(t *testing.T) {
	tr := openTestTree(t, WithTreeInternalMaxCells(3))
	perm := []uint32{18, 7, 10, 29, 23, 4, 14, 30, 15, 26, 22, 19, 2, 1, 21, 11, 6, 20, 5, 8, 9, 3, 12, 27, 17, 16, 13, 24, 25, 28}
	for _, k := range perm {
		insert(t, tr, k)
	}

	keys := scanAll(t, tr)
	require.Len(t, keys, 30)
	for i, k := range keys {
		require.Equal(t, uint32(i+1), k)
	}

	for _, k := range perm {
		c, err := tr.Find(k)
		require.NoError(t, err)
		require.True(t, c.Valid())
		got, err := c.Key()
		require.NoError(t, err)
		require.Equal(t, k, got)
	}
}

func TestNodeKeyOrderHoldsAfterSplits(t *testing.T) {
	tr := openTestTree(t, WithTreeInternalMaxCells(3))
	for i := uint32(1); i <= 40; i++ {
		insert(t, tr, i)
	}

	var walk func(pageNum uint32)
	walk = func(pageNum uint32) {
		n, err := tr.node(pageNum)
		require.NoError(t, err)
		if n.IsLeaf() {
			var prev uint32
			for i := uint32(0); i < n.CellsCount(); i++ {
				k := n.LeafKey(i)
				if i > 0 {
					require.Greater(t, k, prev)
				}
				prev = k
			}
			return
		}
		var prev uint32
		for i := uint32(0); i < n.KeysCount(); i++ {
			k := n.InternalKey(i)
			if i > 0 {
				require.Greater(t, k, prev)
			}
			prev = k
			walk(n.InternalChildPage(i))
		}
		walk(n.RightChildPage())
	}
	walk(RootPage)
}
