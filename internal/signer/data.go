package signer

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hamzazf/shieldwallet/internal/accumulator"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/zkp"
)

// TransactionData decrypts what a post carries for this wallet: receivers
// addressed to it and the assets it spent, recovered from outgoing notes.
func (s *Signer) TransactionData(post *shielded.TransferPost) (TransactionData, error) {
	if s.accounts == nil {
		return TransactionData{}, ErrAccountsNotLoaded
	}
	kind, err := zkp.KindOf(post)
	if err != nil {
		return TransactionData{}, err
	}
	out := TransactionData{Kind: kind}
	address := s.accounts.Address()
	partition := address.Partition()
	for i := range post.ReceiverPosts {
		r := shielded.UtxoNote{Utxo: post.ReceiverPosts[i].Utxo, Note: post.ReceiverPosts[i].Note}
		if o := s.open(&address, partition, &r); o.owned {
			out.Received = append(out.Received, o.asset)
		}
	}

	vk := s.accounts.ViewingKey.Scalar()
	own := s.state.byNullifier()
	for i := range post.SenderPosts {
		n := &post.SenderPosts[i].Nullifier
		u, owned := own[n.Commitment]
		_, spent := s.state.spent[n.Commitment]
		if !owned && !spent {
			continue
		}
		asset, err := shielded.DecryptOutgoing(vk, &n.OutgoingNote)
		if err != nil {
			if owned {
				asset = u.Asset
			} else {
				continue
			}
		}
		out.Spent = append(out.Spent, asset)
	}
	return out, nil
}

// BatchedTransactionData runs TransactionData over posts concurrently.
// Results keep the order of posts.
func (s *Signer) BatchedTransactionData(posts []shielded.TransferPost) ([]TransactionData, error) {
	out := make([]TransactionData, len(posts))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range posts {
		i := i
		g.Go(func() error {
			d, err := s.TransactionData(&posts[i])
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// IdentityProof proves ownership of a soul-bound asset with a virtual
// ToPublic post: the owned UTXO is re-committed into a one-leaf accumulator
// and withdrawn to the requested account. The post is never submitted.
func (s *Signer) IdentityProof(req IdentityRequest) (IdentityProof, error) {
	var owned *ownedUtxo
	for _, a := range s.state.assets {
		if a.Asset.ID.Equal(&req.AssetID) {
			if owned == nil || (!a.Spendable && owned.Spendable) {
				owned = a
			}
		}
	}
	if owned == nil {
		return IdentityProof{}, signErr(InvalidTransaction, "asset %s is not owned", req.AssetID.String())
	}
	b, err := s.newBuilder(true)
	if err != nil {
		return IdentityProof{}, err
	}
	virtual, err := accumulator.New(s.params.AccumulatorHeight)
	if err != nil {
		return IdentityProof{}, signErr(ProofSystemError, "%v", err)
	}
	r, err := randomness()
	if err != nil {
		return IdentityProof{}, err
	}
	tag := b.address.SpendTag
	cm := shielded.Commitment(&owned.Asset, &tag, &r)
	if _, err := virtual.Insert(shielded.ItemHash(&shielded.Utxo{Commitment: cm})); err != nil {
		return IdentityProof{}, signErr(ProofSystemError, "%v", err)
	}
	b.work = virtual

	u := &ownedUtxo{
		LeafIndex:  0,
		Asset:      owned.Asset,
		Randomness: r,
		Commitment: cm,
		Nullifier:  shielded.NullifierCommitment(&s.accounts.SpendingKey, &cm),
		Spendable:  true,
	}
	post, err := b.final(NewToPublic(owned.Asset, req.Account), []*ownedUtxo{u})
	if err != nil {
		return IdentityProof{}, err
	}
	return IdentityProof{Post: post}, nil
}

// BatchedIdentityProof proves several identity requests. Proofs are
// generated concurrently, bounded by GOMAXPROCS.
func (s *Signer) BatchedIdentityProof(reqs []IdentityRequest) ([]IdentityProof, error) {
	out := make([]IdentityProof, len(reqs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range reqs {
		i := i
		g.Go(func() error {
			p, err := s.IdentityProof(reqs[i])
			if err != nil {
				return err
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
