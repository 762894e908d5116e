package accumulator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Node is a stored digest in a snapshot.
type Node struct {
	Level  uint8    `cbor:"1,keyasint" json:"level"`
	Index  uint64   `cbor:"2,keyasint" json:"index"`
	Digest [32]byte `cbor:"3,keyasint" json:"digest"`
}

// Snapshot is the serializable form of a tree.
type Snapshot struct {
	Height int      `cbor:"1,keyasint" json:"height"`
	Size   uint64   `cbor:"2,keyasint" json:"size"`
	Root   [32]byte `cbor:"3,keyasint" json:"root"`
	Nodes  []Node   `cbor:"4,keyasint" json:"nodes"`
	Marked []uint64 `cbor:"5,keyasint" json:"marked"`
}

var ErrCorruptSnapshot = errors.New("accumulator: corrupt snapshot")

// Snapshot exports the tree. Node order is deterministic.
func (t *Tree) Snapshot() Snapshot {
	s := Snapshot{
		Height: t.height,
		Size:   t.size,
		Root:   t.root.Bytes(),
		Nodes:  make([]Node, 0, len(t.nodes)),
		Marked: make([]uint64, 0, len(t.marked)),
	}
	for k, v := range t.nodes {
		s.Nodes = append(s.Nodes, Node{Level: k.Level, Index: k.Index, Digest: v.Bytes()})
	}
	sort.Slice(s.Nodes, func(i, j int) bool {
		if s.Nodes[i].Level != s.Nodes[j].Level {
			return s.Nodes[i].Level < s.Nodes[j].Level
		}
		return s.Nodes[i].Index < s.Nodes[j].Index
	})
	for m := range t.marked {
		s.Marked = append(s.Marked, m)
	}
	sort.Slice(s.Marked, func(i, j int) bool { return s.Marked[i] < s.Marked[j] })
	return s
}

// FromSnapshot rebuilds a tree exported by Snapshot.
func FromSnapshot(s *Snapshot) (*Tree, error) {
	t, err := New(s.Height)
	if err != nil {
		return nil, err
	}
	if s.Size > t.Capacity() {
		return nil, fmt.Errorf("%w: size %d exceeds capacity", ErrCorruptSnapshot, s.Size)
	}
	t.size = s.Size
	root, err := fr.BigEndian.Element(&s.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: root: %v", ErrCorruptSnapshot, err)
	}
	t.root = root
	for _, n := range s.Nodes {
		if int(n.Level) >= t.height || n.Index > (t.size>>n.Level) {
			return nil, fmt.Errorf("%w: node (%d, %d) out of range", ErrCorruptSnapshot, n.Level, n.Index)
		}
		d, err := fr.BigEndian.Element(&n.Digest)
		if err != nil {
			return nil, fmt.Errorf("%w: node (%d, %d): %v", ErrCorruptSnapshot, n.Level, n.Index, err)
		}
		t.nodes[nodeKey{n.Level, n.Index}] = d
	}
	for _, m := range s.Marked {
		if m >= t.size {
			return nil, fmt.Errorf("%w: marked leaf %d out of range", ErrCorruptSnapshot, m)
		}
		t.marked[m] = struct{}{}
	}
	if t.size == 0 && !t.root.Equal(&t.empty[t.height]) {
		return nil, fmt.Errorf("%w: empty tree with non-empty root", ErrCorruptSnapshot)
	}
	return t, nil
}
