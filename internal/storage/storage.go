// Package storage persists wallet snapshots in a LevelDB key-value store,
// one snapshot per network.
package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when no snapshot is stored for a network.
var ErrNotFound = errors.New("storage: not found")

const snapshotPrefix = "snapshot/"

// Store is a LevelDB-backed snapshot store. It is safe for concurrent use.
type Store struct {
	db *leveldb.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory returns a store that lives in memory only.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open memory: %w", err)
	}
	return &Store{db: db}, nil
}

func snapshotKey(network string) []byte {
	return []byte(snapshotPrefix + network)
}

// Put stores the snapshot of a network, replacing any previous one.
func (s *Store) Put(network string, snapshot []byte) error {
	if err := s.db.Put(snapshotKey(network), snapshot, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("storage: put %s: %w", network, err)
	}
	return nil
}

// Get returns the snapshot of a network.
func (s *Store) Get(network string) ([]byte, error) {
	v, err := s.db.Get(snapshotKey(network), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, network)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", network, err)
	}
	return v, nil
}

// Delete removes the snapshot of a network. Deleting a missing snapshot is
// not an error.
func (s *Store) Delete(network string) error {
	if err := s.db.Delete(snapshotKey(network), nil); err != nil {
		return fmt.Errorf("storage: delete %s: %w", network, err)
	}
	return nil
}

// Networks lists the networks with a stored snapshot, sorted.
func (s *Store) Networks() ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(snapshotPrefix)), nil)
	defer it.Release()
	var out []string
	for it.Next() {
		out = append(out, strings.TrimPrefix(string(it.Key()), snapshotPrefix))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
