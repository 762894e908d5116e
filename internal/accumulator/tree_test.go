package accumulator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hamzazf/shieldwallet/internal/shielded"
)

func leaf(i uint64) shielded.Field {
	return shielded.Hash(shielded.FieldFromUint64(1000 + i))
}

func TestEmptyRoot(t *testing.T) {
	tree, err := New(4)
	require.NoError(t, err)
	d := shielded.Field{}
	for l := 0; l < 4; l++ {
		d = shielded.Hash(d, d)
	}
	root := tree.Root()
	require.True(t, root.Equal(&d))

	_, err = New(0)
	require.ErrorIs(t, err, ErrHeight)
	_, err = New(shielded.MaxAccumulatorHeight + 1)
	require.ErrorIs(t, err, ErrHeight)
}

func TestPathsVerify(t *testing.T) {
	tree, err := New(4)
	require.NoError(t, err)
	for i := uint64(0); i < 11; i++ {
		idx, err := tree.Insert(leaf(i))
		require.NoError(t, err)
		require.Equal(t, i, idx)
	}
	root := tree.Root()
	for i := uint64(0); i < 11; i++ {
		path, err := tree.Path(i)
		require.NoError(t, err)
		require.Len(t, path.InnerPath, 3)
		got := ComputeRoot(leaf(i), &path)
		require.True(t, got.Equal(&root), "leaf %d", i)
	}
	_, err = tree.Path(11)
	require.ErrorIs(t, err, ErrUnknownLeaf)
}

func TestInsertOrderMatters(t *testing.T) {
	a, _ := New(3)
	b, _ := New(3)
	_, _ = a.Insert(leaf(1))
	_, _ = a.Insert(leaf(2))
	_, _ = b.Insert(leaf(2))
	_, _ = b.Insert(leaf(1))
	ra, rb := a.Root(), b.Root()
	require.False(t, ra.Equal(&rb))
}

func TestFull(t *testing.T) {
	tree, err := New(2)
	require.NoError(t, err)
	for i := uint64(0); i < 4; i++ {
		_, err := tree.Insert(leaf(i))
		require.NoError(t, err)
	}
	_, err = tree.Insert(leaf(4))
	require.ErrorIs(t, err, ErrFull)
}

func TestPruneKeepsMarkedPaths(t *testing.T) {
	tree, err := New(5)
	require.NoError(t, err)
	for i := uint64(0); i < 13; i++ {
		if i == 3 || i == 8 {
			_, err = tree.InsertMarked(leaf(i))
		} else {
			_, err = tree.Insert(leaf(i))
		}
		require.NoError(t, err)
	}
	before := tree.Root()
	full := tree.NodeCount()
	removed := tree.Prune()
	require.Positive(t, removed)
	require.Equal(t, full-removed, tree.NodeCount())
	after := tree.Root()
	require.True(t, before.Equal(&after))

	_, err = tree.Path(5)
	require.ErrorIs(t, err, ErrPruned)
	require.ErrorIs(t, tree.Mark(5), ErrPruned)

	// Inserting after a prune must produce the same root as an unpruned tree.
	ref, _ := New(5)
	for i := uint64(0); i < 20; i++ {
		_, _ = ref.Insert(leaf(i))
	}
	for i := uint64(13); i < 20; i++ {
		_, err := tree.Insert(leaf(i))
		require.NoError(t, err)
	}
	got, want := tree.Root(), ref.Root()
	require.True(t, got.Equal(&want))

	for _, m := range []uint64{3, 8} {
		path, err := tree.Path(m)
		require.NoError(t, err)
		r := ComputeRoot(leaf(m), &path)
		require.True(t, r.Equal(&want), "marked leaf %d", m)
	}
	for i := uint64(13); i < 20; i++ {
		path, err := tree.Path(i)
		require.NoError(t, err)
		r := ComputeRoot(leaf(i), &path)
		require.True(t, r.Equal(&want), "fresh leaf %d", i)
	}
}

func TestUnmarkReleases(t *testing.T) {
	tree, _ := New(3)
	_, _ = tree.InsertMarked(leaf(0))
	_, _ = tree.Insert(leaf(1))
	_, _ = tree.Insert(leaf(2))
	require.True(t, tree.IsMarked(0))
	tree.Unmark(0)
	require.False(t, tree.IsMarked(0))
	tree.Prune()
	_, err := tree.Leaf(0)
	require.ErrorIs(t, err, ErrPruned)
}

func TestCloneIsIndependent(t *testing.T) {
	tree, _ := New(4)
	_, _ = tree.Insert(leaf(0))
	c := tree.Clone()
	_, _ = c.Insert(leaf(1))
	require.Equal(t, uint64(1), tree.Size())
	require.Equal(t, uint64(2), c.Size())
	r1, r2 := tree.Root(), c.Root()
	require.False(t, r1.Equal(&r2))
}

func TestSnapshotRoundTrip(t *testing.T) {
	tree, _ := New(6)
	for i := uint64(0); i < 9; i++ {
		if i%4 == 1 {
			_, _ = tree.InsertMarked(leaf(i))
		} else {
			_, _ = tree.Insert(leaf(i))
		}
	}
	tree.Prune()
	snap := tree.Snapshot()
	restored, err := FromSnapshot(&snap)
	require.NoError(t, err)
	require.Equal(t, tree.Size(), restored.Size())
	r1, r2 := tree.Root(), restored.Root()
	require.True(t, r1.Equal(&r2))
	require.Equal(t, snap, restored.Snapshot())

	_, _ = tree.Insert(leaf(9))
	_, _ = restored.Insert(leaf(9))
	r1, r2 = tree.Root(), restored.Root()
	require.True(t, r1.Equal(&r2))

	bad := snap
	bad.Marked = append([]uint64{}, snap.Marked...)
	bad.Marked = append(bad.Marked, 100)
	_, err = FromSnapshot(&bad)
	require.ErrorIs(t, err, ErrCorruptSnapshot)
}
