// Package accumulator implements the UTXO accumulator: an append-only MiMC
// merkle tree of fixed height that retains membership paths of marked leaves
// and forgets everything else on Prune.
package accumulator

import (
	"errors"
	"fmt"

	"github.com/hamzazf/shieldwallet/internal/shielded"
)

var (
	ErrFull        = errors.New("accumulator: tree is full")
	ErrUnknownLeaf = errors.New("accumulator: leaf index out of range")
	ErrPruned      = errors.New("accumulator: path data was pruned")
	ErrHeight      = errors.New("accumulator: unsupported height")
)

type nodeKey struct {
	Level uint8
	Index uint64
}

// Tree is a sparse merkle tree. Level 0 holds the leaves, level height the
// root. Missing nodes are the digests of empty subtrees.
type Tree struct {
	height int
	size   uint64
	root   shielded.Field
	empty  []shielded.Field
	nodes  map[nodeKey]shielded.Field
	marked map[uint64]struct{}
}

// New returns an empty tree of the given height.
func New(height int) (*Tree, error) {
	if height < 1 || height > shielded.MaxAccumulatorHeight {
		return nil, fmt.Errorf("%w: %d", ErrHeight, height)
	}
	empty := emptyDigests(height)
	return &Tree{
		height: height,
		root:   empty[height],
		empty:  empty,
		nodes:  make(map[nodeKey]shielded.Field),
		marked: make(map[uint64]struct{}),
	}, nil
}

func emptyDigests(height int) []shielded.Field {
	out := make([]shielded.Field, height+1)
	for l := 0; l < height; l++ {
		out[l+1] = shielded.Hash(out[l], out[l])
	}
	return out
}

// Height returns the number of levels above the leaves.
func (t *Tree) Height() int { return t.height }

// Size returns the number of inserted leaves.
func (t *Tree) Size() uint64 { return t.size }

// Root returns the current root digest.
func (t *Tree) Root() shielded.Field { return t.root }

// Capacity returns the maximum number of leaves.
func (t *Tree) Capacity() uint64 { return uint64(1) << uint(t.height) }

func (t *Tree) node(level int, index uint64) shielded.Field {
	if v, ok := t.nodes[nodeKey{uint8(level), index}]; ok {
		return v
	}
	return t.empty[level]
}

// Insert appends a leaf and returns its index.
func (t *Tree) Insert(leaf shielded.Field) (uint64, error) {
	if t.size >= t.Capacity() {
		return 0, ErrFull
	}
	idx := t.size
	t.nodes[nodeKey{0, idx}] = leaf
	cur := leaf
	for l := 0; l < t.height; l++ {
		i := idx >> uint(l)
		var left, right shielded.Field
		if i&1 == 1 {
			left, right = t.node(l, i-1), cur
		} else {
			left, right = cur, t.empty[l]
		}
		cur = shielded.Hash(left, right)
		if l+1 < t.height {
			t.nodes[nodeKey{uint8(l + 1), i >> 1}] = cur
		}
	}
	t.root = cur
	t.size++
	return idx, nil
}

// InsertMarked appends a leaf and retains its path across prunes.
func (t *Tree) InsertMarked(leaf shielded.Field) (uint64, error) {
	idx, err := t.Insert(leaf)
	if err != nil {
		return 0, err
	}
	t.marked[idx] = struct{}{}
	return idx, nil
}

// Mark retains the path of an existing leaf across prunes.
func (t *Tree) Mark(index uint64) error {
	if index >= t.size {
		return ErrUnknownLeaf
	}
	if _, ok := t.nodes[nodeKey{0, index}]; !ok {
		return ErrPruned
	}
	t.marked[index] = struct{}{}
	return nil
}

// Unmark releases a leaf so the next prune may drop its path.
func (t *Tree) Unmark(index uint64) {
	delete(t.marked, index)
}

// IsMarked reports whether the leaf path is retained.
func (t *Tree) IsMarked(index uint64) bool {
	_, ok := t.marked[index]
	return ok
}

// Leaf returns a stored leaf.
func (t *Tree) Leaf(index uint64) (shielded.Field, error) {
	if index >= t.size {
		return shielded.Field{}, ErrUnknownLeaf
	}
	v, ok := t.nodes[nodeKey{0, index}]
	if !ok {
		return shielded.Field{}, ErrPruned
	}
	return v, nil
}

// Path returns the membership path of a leaf against the current root.
func (t *Tree) Path(index uint64) (shielded.CurrentPath, error) {
	if index >= t.size {
		return shielded.CurrentPath{}, ErrUnknownLeaf
	}
	siblings := make([]shielded.Field, t.height)
	for l := 0; l < t.height; l++ {
		s := (index >> uint(l)) ^ 1
		v, ok := t.nodes[nodeKey{uint8(l), s}]
		if !ok && s<<uint(l) < t.size {
			return shielded.CurrentPath{}, ErrPruned
		}
		if !ok {
			v = t.empty[l]
		}
		siblings[l] = v
	}
	return shielded.CurrentPath{
		SiblingDigest: siblings[0],
		LeafIndex:     uint32(index),
		InnerPath:     siblings[1:],
	}, nil
}

// ComputeRoot folds a leaf with its membership path.
func ComputeRoot(leaf shielded.Field, path *shielded.CurrentPath) shielded.Field {
	index := uint64(path.LeafIndex)
	cur := hashPair(index&1 == 1, path.SiblingDigest, leaf)
	for l, sibling := range path.InnerPath {
		cur = hashPair((index>>uint(l+1))&1 == 1, sibling, cur)
	}
	return cur
}

func hashPair(isRight bool, sibling, cur shielded.Field) shielded.Field {
	if isRight {
		return shielded.Hash(sibling, cur)
	}
	return shielded.Hash(cur, sibling)
}

// Prune drops every node not needed for marked paths or future inserts.
// Roots and paths of marked leaves are unchanged.
func (t *Tree) Prune() int {
	keep := make(map[nodeKey]struct{}, len(t.marked)*(t.height+1)+t.height)
	for m := range t.marked {
		keep[nodeKey{0, m}] = struct{}{}
		for l := 0; l < t.height; l++ {
			keep[nodeKey{uint8(l), (m >> uint(l)) ^ 1}] = struct{}{}
		}
	}
	for l := 0; l < t.height; l++ {
		i := t.size >> uint(l)
		if i&1 == 1 {
			keep[nodeKey{uint8(l), i - 1}] = struct{}{}
		}
	}
	removed := 0
	for k := range t.nodes {
		if _, ok := keep[k]; !ok {
			delete(t.nodes, k)
			removed++
		}
	}
	return removed
}

// NodeCount returns the number of stored nodes.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// Clone returns an independent copy.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		height: t.height,
		size:   t.size,
		root:   t.root,
		empty:  t.empty,
		nodes:  make(map[nodeKey]shielded.Field, len(t.nodes)),
		marked: make(map[uint64]struct{}, len(t.marked)),
	}
	for k, v := range t.nodes {
		c.nodes[k] = v
	}
	for k := range t.marked {
		c.marked[k] = struct{}{}
	}
	return c
}
