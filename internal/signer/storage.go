package signer

import (
	"fmt"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"

	"github.com/hamzazf/shieldwallet/internal/accumulator"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

// Version 2 added the unmatched nullifier set. Older snapshots cannot tell
// which owned receivers were already spent and need a resync.
const storageVersion = 2

type assetDTO struct {
	ID    [32]byte `cbor:"1,keyasint"`
	Value [32]byte `cbor:"2,keyasint"`
}

type utxoDTO struct {
	LeafIndex  uint64   `cbor:"1,keyasint"`
	Asset      assetDTO `cbor:"2,keyasint"`
	Randomness [32]byte `cbor:"3,keyasint"`
	Commitment [32]byte `cbor:"4,keyasint"`
	Nullifier  [32]byte `cbor:"5,keyasint"`
	Spendable  bool     `cbor:"6,keyasint"`
}

type historyDTO struct {
	Kind       uint8               `cbor:"1,keyasint"`
	Asset      assetDTO            `cbor:"2,keyasint"`
	Checkpoint shielded.Checkpoint `cbor:"3,keyasint"`
}

type storageDTO struct {
	Version    int                  `cbor:"1,keyasint"`
	Checkpoint shielded.Checkpoint  `cbor:"2,keyasint"`
	Tree       accumulator.Snapshot `cbor:"3,keyasint"`
	Assets     []utxoDTO            `cbor:"4,keyasint"`
	Spent      [][32]byte           `cbor:"5,keyasint"`
	History    []historyDTO         `cbor:"6,keyasint"`
	Unmatched  [][32]byte           `cbor:"7,keyasint"`
}

func fieldBytes(f shielded.Field) [32]byte { return f.Bytes() }

func fieldFrom(b [32]byte) (shielded.Field, error) { return fr.BigEndian.Element(&b) }

func toAssetDTO(a shielded.Asset) assetDTO {
	return assetDTO{ID: fieldBytes(a.ID), Value: a.Value.Bytes32()}
}

func fromAssetDTO(d assetDTO) (shielded.Asset, error) {
	id, err := fieldFrom(d.ID)
	if err != nil {
		return shielded.Asset{}, err
	}
	var v uint256.Int
	v.SetBytes32(d.Value[:])
	if v.BitLen() > shielded.MaxValueBits {
		return shielded.Asset{}, fmt.Errorf("value exceeds %d bits", shielded.MaxValueBits)
	}
	return shielded.Asset{ID: id, Value: v}, nil
}

func sortedFields(set map[shielded.Field]struct{}) [][32]byte {
	out := make([][32]byte, 0, len(set))
	for f := range set {
		out = append(out, fieldBytes(f))
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i][:]) < string(out[j][:]) })
	return out
}

func fieldSet(in [][32]byte) (map[shielded.Field]struct{}, error) {
	out := make(map[shielded.Field]struct{}, len(in))
	for _, b := range in {
		f, err := fieldFrom(b)
		if err != nil {
			return nil, err
		}
		out[f] = struct{}{}
	}
	return out, nil
}

// Storage exports the ledger-derived state as an opaque CBOR snapshot.
// Keys are not part of the snapshot.
func (s *Signer) Storage() ([]byte, error) {
	st := s.state
	dto := storageDTO{
		Version:    storageVersion,
		Checkpoint: st.checkpoint,
		Tree:       st.tree.Snapshot(),
	}
	for _, a := range st.assets {
		dto.Assets = append(dto.Assets, utxoDTO{
			LeafIndex:  a.LeafIndex,
			Asset:      toAssetDTO(a.Asset),
			Randomness: fieldBytes(a.Randomness),
			Commitment: fieldBytes(a.Commitment),
			Nullifier:  fieldBytes(a.Nullifier),
			Spendable:  a.Spendable,
		})
	}
	sort.Slice(dto.Assets, func(i, j int) bool { return dto.Assets[i].LeafIndex < dto.Assets[j].LeafIndex })
	dto.Spent = sortedFields(st.spent)
	dto.Unmatched = sortedFields(st.unmatched)
	for _, h := range st.history {
		dto.History = append(dto.History, historyDTO{Kind: uint8(h.Kind), Asset: toAssetDTO(h.Asset), Checkpoint: h.Checkpoint})
	}
	return cbor.Marshal(dto)
}

// SetStorage replaces the ledger-derived state with a snapshot produced by
// Storage. On error the current state is kept.
func (s *Signer) SetStorage(data []byte) error {
	var dto storageDTO
	if err := cbor.Unmarshal(data, &dto); err != nil {
		return fmt.Errorf("decode signer storage: %w", err)
	}
	if dto.Version != storageVersion {
		return fmt.Errorf("%w: %d", ErrStorageVersion, dto.Version)
	}
	if dto.Tree.Height != s.params.AccumulatorHeight {
		return fmt.Errorf("signer storage: accumulator height %d, want %d", dto.Tree.Height, s.params.AccumulatorHeight)
	}
	tree, err := accumulator.FromSnapshot(&dto.Tree)
	if err != nil {
		return fmt.Errorf("signer storage: %w", err)
	}
	spent, err := fieldSet(dto.Spent)
	if err != nil {
		return fmt.Errorf("signer storage: spent nullifier: %w", err)
	}
	unmatched, err := fieldSet(dto.Unmatched)
	if err != nil {
		return fmt.Errorf("signer storage: unmatched nullifier: %w", err)
	}
	st := &state{
		checkpoint: dto.Checkpoint,
		tree:       tree,
		assets:     make(map[uint64]*ownedUtxo, len(dto.Assets)),
		spent:      spent,
		unmatched:  unmatched,
	}
	for _, a := range dto.Assets {
		asset, err := fromAssetDTO(a.Asset)
		if err != nil {
			return fmt.Errorf("signer storage: asset %d: %w", a.LeafIndex, err)
		}
		u := &ownedUtxo{LeafIndex: a.LeafIndex, Asset: asset, Spendable: a.Spendable}
		for _, f := range []struct {
			dst *shielded.Field
			src [32]byte
		}{{&u.Randomness, a.Randomness}, {&u.Commitment, a.Commitment}, {&u.Nullifier, a.Nullifier}} {
			v, err := fieldFrom(f.src)
			if err != nil {
				return fmt.Errorf("signer storage: asset %d: %w", a.LeafIndex, err)
			}
			*f.dst = v
		}
		st.assets[u.LeafIndex] = u
	}
	for _, h := range dto.History {
		asset, err := fromAssetDTO(h.Asset)
		if err != nil {
			return fmt.Errorf("signer storage: history: %w", err)
		}
		st.history = append(st.history, HistoryEntry{Kind: HistoryKind(h.Kind), Asset: asset, Checkpoint: h.Checkpoint})
	}
	s.state = st
	s.cache.Purge()
	return nil
}
