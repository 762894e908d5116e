package signer

import (
	"github.com/hamzazf/shieldwallet/internal/accumulator"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

type opened struct {
	owned bool
	asset shielded.IdentifiedAsset
}

type pendingLeaf struct {
	leaf  shielded.Field
	owned *ownedUtxo
	// spentEarlier marks an owned receiver whose nullifier was applied
	// in an earlier step.
	spentEarlier bool
}

type pendingSpend struct {
	utxo *ownedUtxo
	note shielded.OutgoingNote
}

// Sync applies one incremental pull that started at origin. Data the signer
// already applied (origin behind the signer checkpoint) is skipped.
// Validation happens before any mutation: on error the state is unchanged.
func (s *Signer) Sync(origin shielded.Checkpoint, data shielded.SyncData) (SyncResponse, error) {
	return s.apply(origin, data, true)
}

// SbtSync applies one pull of a soul-bound asset network. Owned assets are
// recorded as non-spendable and the accumulator is left untouched.
func (s *Signer) SbtSync(origin shielded.Checkpoint, data shielded.SyncData) (SyncResponse, error) {
	return s.apply(origin, data, false)
}

func (s *Signer) apply(origin shielded.Checkpoint, data shielded.SyncData, spendable bool) (SyncResponse, error) {
	if s.accounts == nil {
		return SyncResponse{}, ErrAccountsNotLoaded
	}
	st := s.state
	cur := st.checkpoint
	if cur.Behind(origin) {
		return SyncResponse{}, inconsistent(InconsistentSynchronization, cur, "ledger answered from %s", origin)
	}
	if spendable && st.tree.Size() != cur.ReceiverIndex {
		return SyncResponse{}, inconsistent(AccumulatorMismatch, cur, "accumulator holds %d leaves", st.tree.Size())
	}

	receivers := data.UtxoNoteData[skip(cur.ReceiverIndex-origin.ReceiverIndex, len(data.UtxoNoteData)):]
	nullifiers := data.NullifierData[skip(cur.SenderIndex-origin.SenderIndex, len(data.NullifierData)):]
	if spendable && st.tree.Size()+uint64(len(receivers)) > st.tree.Capacity() {
		return SyncResponse{}, inconsistent(AccumulatorMismatch, cur, "%d receivers overflow the accumulator", len(receivers))
	}

	// Phase 1: decrypt, match and validate without touching state.
	address := s.accounts.Address()
	partition := address.Partition()
	leaves := make([]pendingLeaf, len(receivers))
	known := st.byNullifier()
	for i := range receivers {
		r := &receivers[i]
		leaves[i].leaf = shielded.ItemHash(&r.Utxo)
		o := s.open(&address, partition, r)
		if !o.owned || o.asset.Asset.IsZero() {
			continue
		}
		cm := r.Utxo.Commitment
		owned := &ownedUtxo{
			LeafIndex:  cur.ReceiverIndex + uint64(i),
			Asset:      o.asset.Asset,
			Randomness: o.asset.Identifier.UtxoCommitmentRandomness,
			Commitment: cm,
			Nullifier:  shielded.NullifierCommitment(&s.accounts.SpendingKey, &cm),
			Spendable:  spendable,
		}
		leaves[i].owned = owned
		if _, ok := st.unmatched[owned.Nullifier]; ok {
			leaves[i].spentEarlier = true
			continue
		}
		known[owned.Nullifier] = owned
	}

	seen := make(map[shielded.Field]struct{}, len(nullifiers))
	var (
		spends  []pendingSpend
		orphans []shielded.Field
	)
	for i := range nullifiers {
		n := &nullifiers[i]
		if _, dup := seen[n.Commitment]; dup {
			return SyncResponse{}, inconsistent(DuplicateNullifier, cur, "nullifier repeated within one response")
		}
		seen[n.Commitment] = struct{}{}
		if _, was := st.spent[n.Commitment]; was {
			return SyncResponse{}, inconsistent(DuplicateNullifier, cur, "nullifier of an already spent asset")
		}
		if _, was := st.unmatched[n.Commitment]; was {
			return SyncResponse{}, inconsistent(DuplicateNullifier, cur, "nullifier already applied")
		}
		if u, ok := known[n.Commitment]; ok {
			spends = append(spends, pendingSpend{utxo: u, note: n.OutgoingNote})
		} else {
			orphans = append(orphans, n.Commitment)
		}
	}

	// Phase 2: commit.
	next := cur
	target := origin.Advance(len(data.UtxoNoteData), len(data.NullifierData))
	if target.ReceiverIndex > next.ReceiverIndex {
		next.ReceiverIndex = target.ReceiverIndex
	}
	if target.SenderIndex > next.SenderIndex {
		next.SenderIndex = target.SenderIndex
	}

	// Inserts cannot fail after the capacity check above. A failure leaves
	// the accumulator ahead of the checkpoint, which only a resync repairs.
	if spendable {
		for _, l := range leaves {
			var err error
			if l.owned != nil && !l.spentEarlier {
				_, err = st.tree.InsertMarked(l.leaf)
			} else {
				_, err = st.tree.Insert(l.leaf)
			}
			if err != nil {
				s.log.Error().Err(err).Str("checkpoint", cur.String()).Msg("accumulator insert failed")
				return SyncResponse{}, inconsistent(AccumulatorMismatch, cur, "insert leaf: %v", err)
			}
		}
	}

	var update BalanceUpdate
	for _, l := range leaves {
		if l.owned == nil {
			continue
		}
		st.history = append(st.history, HistoryEntry{Kind: Received, Asset: l.owned.Asset, Checkpoint: next})
		if l.spentEarlier {
			delete(st.unmatched, l.owned.Nullifier)
			st.spent[l.owned.Nullifier] = struct{}{}
			st.history = append(st.history, HistoryEntry{Kind: Spent, Asset: l.owned.Asset, Checkpoint: next})
			continue
		}
		st.assets[l.owned.LeafIndex] = l.owned
		update.Deposit = append(update.Deposit, l.owned.Asset)
	}
	for _, n := range orphans {
		st.unmatched[n] = struct{}{}
	}
	vk := s.accounts.ViewingKey.Scalar()
	for _, sp := range spends {
		u := sp.utxo
		delete(st.assets, u.LeafIndex)
		st.spent[u.Nullifier] = struct{}{}
		st.tree.Unmark(u.LeafIndex)
		update.Withdraw = append(update.Withdraw, u.Asset)

		asset := u.Asset
		if recovered, err := shielded.DecryptOutgoing(vk, &sp.note); err == nil && recovered.ID.Equal(&asset.ID) && recovered.Value.Eq(&asset.Value) {
			asset = recovered
		} else {
			s.log.Debug().Uint64("leaf", u.LeafIndex).Msg("outgoing note of own nullifier does not open")
		}
		st.history = append(st.history, HistoryEntry{Kind: Spent, Asset: asset, Checkpoint: next})
	}
	st.checkpoint = next

	s.log.Debug().
		Str("checkpoint", next.String()).
		Int("receivers", len(receivers)).
		Int("nullifiers", len(nullifiers)).
		Int("deposits", len(update.Deposit)).
		Int("withdrawals", len(update.Withdraw)).
		Bool("sbt", !spendable).
		Msg("sync data applied")
	return SyncResponse{Checkpoint: next, Balance: update}, nil
}

func skip(ahead uint64, n int) int {
	if ahead > uint64(n) {
		return n
	}
	return int(ahead)
}

// open trial-decrypts the incoming note of a receiver and checks that it
// opens the UTXO commitment under the signer's spend tag.
func (s *Signer) open(address *shielded.Address, partition uint8, r *shielded.UtxoNote) opened {
	if r.Note.AddressPartition != partition {
		return opened{}
	}
	var key [64]byte
	cm := r.Utxo.Commitment.Bytes()
	epk := r.Note.IncomingNote.EphemeralPublicKey.Bytes()
	copy(key[:32], cm[:])
	copy(key[32:], epk[:])
	if v, ok := s.cache.Get(key); ok {
		return v.(opened)
	}

	result := opened{}
	ia, err := shielded.DecryptIncoming(s.accounts.ViewingKey.Scalar(), &r.Note.IncomingNote)
	if err == nil {
		tag := address.SpendTag
		cmp := shielded.Commitment(&ia.Asset, &tag, &ia.Identifier.UtxoCommitmentRandomness)
		matches := cmp.Equal(&r.Utxo.Commitment)
		if r.Utxo.IsTransparent {
			matches = matches && r.Utxo.PublicAsset.ID.Equal(&ia.Asset.ID) && r.Utxo.PublicAsset.Value.Eq(&ia.Asset.Value)
		}
		if matches {
			ia.Identifier.IsTransparent = r.Utxo.IsTransparent
			result = opened{owned: true, asset: ia}
		} else {
			s.log.Warn().Msg("incoming note decrypts but does not open its commitment")
		}
	}
	s.cache.Add(key, result)
	return result
}

// InitialSync rebuilds the accumulator from the complete UTXO list and
// checks it against the supplied membership paths. It requires a reset
// signer and either applies everything or nothing.
func (s *Signer) InitialSync(data shielded.InitialSyncData) (SyncResponse, error) {
	if !s.state.isReset() {
		return SyncResponse{}, inconsistent(NotReset, s.state.checkpoint, "reset the state before an initial synchronization")
	}
	st, err := newState(s.params.AccumulatorHeight)
	if err != nil {
		return SyncResponse{}, err
	}
	for i := range data.UtxoData {
		if _, err := st.tree.Insert(shielded.ItemHash(&data.UtxoData[i])); err != nil {
			return SyncResponse{}, inconsistent(AccumulatorMismatch, st.checkpoint, "utxo %d: %v", i, err)
		}
	}
	root := st.tree.Root()
	for i := range data.MembershipProofData {
		p := &data.MembershipProofData[i]
		if len(p.InnerPath) != st.tree.Height()-1 {
			return SyncResponse{}, inconsistent(AccumulatorMismatch, st.checkpoint, "path %d has %d inner digests", i, len(p.InnerPath))
		}
		leaf, err := st.tree.Leaf(uint64(p.LeafIndex))
		if err != nil {
			return SyncResponse{}, inconsistent(AccumulatorMismatch, st.checkpoint, "path %d: leaf %d: %v", i, p.LeafIndex, err)
		}
		got := accumulator.ComputeRoot(leaf, p)
		if !got.Equal(&root) {
			return SyncResponse{}, inconsistent(AccumulatorMismatch, st.checkpoint, "path %d does not reach the rebuilt root", i)
		}
	}
	st.checkpoint = shielded.Checkpoint{ReceiverIndex: uint64(len(data.UtxoData)), SenderIndex: data.NullifierCount}
	s.state = st
	s.cache.Purge()

	s.log.Info().
		Str("checkpoint", st.checkpoint.String()).
		Int("paths", len(data.MembershipProofData)).
		Msg("initial state loaded")
	return SyncResponse{Checkpoint: st.checkpoint, Balance: BalanceUpdate{Full: true}}, nil
}
