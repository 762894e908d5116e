package signer

import (
	"errors"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"github.com/hamzazf/shieldwallet/internal/accumulator"
	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/zkp"
)

// Sign turns a transaction into proven, authorized transfer posts.
//
// Owned UTXOs are selected largest first. When more than two are needed,
// pairs are first merged by self transfers; every merge post is proven
// against a local accumulator copy that already contains the outputs of the
// previous posts, so the ledger must apply the posts in order. Signing never
// mutates the signer: a post that is later rejected leaves nothing to undo.
func (s *Signer) Sign(tx Transaction, meta *AssetMetadata) ([]shielded.TransferPost, error) {
	if s.accounts == nil {
		return nil, &SignError{Kind: MissingAuthorization, Err: ErrAccountsNotLoaded}
	}
	if tx.Asset.IsZero() {
		return nil, signErr(InvalidTransaction, "zero value transfer")
	}
	if tx.Asset.Value.BitLen() > shielded.MaxValueBits {
		return nil, signErr(InvalidTransaction, "value exceeds %d bits", shielded.MaxValueBits)
	}

	start := time.Now()
	var posts []shielded.TransferPost
	switch tx.Kind {
	case zkp.ToPrivate:
		b, err := s.newBuilder(false)
		if err != nil {
			return nil, err
		}
		post, err := b.toPrivate(tx.Asset)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	case zkp.PrivateTransfer, zkp.ToPublic:
		selected, err := s.selectUtxos(tx.Asset)
		if err != nil {
			return nil, err
		}
		b, err := s.newBuilder(true)
		if err != nil {
			return nil, err
		}
		for len(selected) > 2 {
			merged, post, err := b.merge(selected[0], selected[1])
			if err != nil {
				return nil, err
			}
			posts = append(posts, post)
			selected = append(selected[2:], merged)
		}
		post, err := b.final(tx, selected)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	default:
		return nil, signErr(InvalidTransaction, "unknown transaction kind %s", tx.Kind)
	}

	s.log.Info().
		Str("kind", tx.Kind.String()).
		Str("amount", meta.Display(&tx.Asset.Value)).
		Int("posts", len(posts)).
		Dur("took", time.Since(start)).
		Msg("transaction signed")
	return posts, nil
}

// selectUtxos picks spendable UTXOs of the asset id, largest first, until
// their sum covers the amount.
func (s *Signer) selectUtxos(want shielded.Asset) ([]*ownedUtxo, error) {
	var candidates []*ownedUtxo
	total := new(uint256.Int)
	for _, a := range s.state.assets {
		if a.Spendable && a.Asset.ID.Equal(&want.ID) {
			candidates = append(candidates, a)
			total.Add(total, &a.Asset.Value)
		}
	}
	if total.Lt(&want.Value) {
		return nil, signErr(InsufficientBalance, "have %s, need %s", total.Dec(), want.Value.Dec())
	}
	sort.Slice(candidates, func(i, j int) bool {
		if c := candidates[i].Asset.Value.Cmp(&candidates[j].Asset.Value); c != 0 {
			return c > 0
		}
		return candidates[i].LeafIndex < candidates[j].LeafIndex
	})
	sum := new(uint256.Int)
	for i, c := range candidates {
		sum.Add(sum, &c.Asset.Value)
		if !sum.Lt(&want.Value) {
			return candidates[:i+1], nil
		}
	}
	return candidates, nil
}

type builder struct {
	s        *Signer
	accounts *keys.AccountTable
	auth     *keys.AuthorizationContext
	address  shielded.Address
	work     *accumulator.Tree
}

func (s *Signer) newBuilder(needsAuth bool) (*builder, error) {
	if s.accounts == nil {
		return nil, &SignError{Kind: MissingAuthorization, Err: ErrAccountsNotLoaded}
	}
	if needsAuth {
		if s.auth == nil {
			return nil, signErr(MissingAuthorization, "no authorization context loaded")
		}
		if !s.accounts.Matches(s.auth) {
			return nil, &SignError{Kind: MissingAuthorization, Err: keys.ErrAuthorizationMismatch}
		}
	}
	if s.proving == nil {
		return nil, signErr(ProofSystemError, "no proving context loaded")
	}
	if s.proving.Height() != s.params.AccumulatorHeight {
		return nil, signErr(ProofSystemError, "proving context height %d, accumulator height %d", s.proving.Height(), s.params.AccumulatorHeight)
	}
	return &builder{
		s:        s,
		accounts: s.accounts,
		auth:     s.auth,
		address:  s.accounts.Address(),
		work:     s.state.tree.Clone(),
	}, nil
}

func randomness() (shielded.Field, error) {
	r, err := shielded.RandomField()
	if err != nil {
		return r, signErr(ProofSystemError, "%v", err)
	}
	return r, nil
}

func (b *builder) receiver(to *shielded.Address, asset shielded.Asset) (zkp.ReceiverWitness, shielded.ReceiverPost, error) {
	r, err := randomness()
	if err != nil {
		return zkp.ReceiverWitness{}, shielded.ReceiverPost{}, err
	}
	e, err := shielded.RandomScalar()
	if err != nil {
		return zkp.ReceiverWitness{}, shielded.ReceiverPost{}, signErr(ProofSystemError, "%v", err)
	}
	tag := to.SpendTag
	cm := shielded.Commitment(&asset, &tag, &r)
	w := zkp.ReceiverWitness{Asset: asset, SpendTag: tag, Randomness: r, Commitment: cm}
	post := shielded.ReceiverPost{
		Utxo: shielded.Utxo{Commitment: cm},
		Note: shielded.EncryptIncoming(to, &r, &asset, e),
	}
	return w, post, nil
}

func (b *builder) sender(u *ownedUtxo) (zkp.SenderWitness, shielded.SenderPost, error) {
	path, err := b.work.Path(u.LeafIndex)
	if err != nil {
		return zkp.SenderWitness{}, shielded.SenderPost{}, signErr(InvalidTransaction, "membership path of leaf %d: %v", u.LeafIndex, err)
	}
	return b.senderWith(u.Asset, u.Randomness, u.Nullifier, path)
}

// padding is a zero-value sender filling an unused circuit slot.
func (b *builder) padding(id shielded.Field) (zkp.SenderWitness, shielded.SenderPost, error) {
	r, err := randomness()
	if err != nil {
		return zkp.SenderWitness{}, shielded.SenderPost{}, err
	}
	asset := shielded.Asset{ID: id}
	tag := b.address.SpendTag
	cm := shielded.Commitment(&asset, &tag, &r)
	nf := shielded.NullifierCommitment(&b.accounts.SpendingKey, &cm)
	return b.senderWith(asset, r, nf, shielded.CurrentPath{})
}

func (b *builder) senderWith(asset shielded.Asset, r, nf shielded.Field, path shielded.CurrentPath) (zkp.SenderWitness, shielded.SenderPost, error) {
	e, err := shielded.RandomScalar()
	if err != nil {
		return zkp.SenderWitness{}, shielded.SenderPost{}, signErr(ProofSystemError, "%v", err)
	}
	root := b.work.Root()
	w := zkp.SenderWitness{
		SpendingKey: b.accounts.SpendingKey,
		Asset:       asset,
		Randomness:  r,
		Path:        path,
		Root:        root,
		Nullifier:   nf,
	}
	post := shielded.SenderPost{
		UtxoAccumulatorOutput: root,
		Nullifier: shielded.Nullifier{
			Commitment:   nf,
			OutgoingNote: shielded.EncryptOutgoing(&b.address.ReceivingKey, &asset, e),
		},
	}
	return w, post, nil
}

func (b *builder) senders(id shielded.Field, utxos []*ownedUtxo) ([]zkp.SenderWitness, []shielded.SenderPost, error) {
	var ws []zkp.SenderWitness
	var ps []shielded.SenderPost
	for _, u := range utxos {
		w, p, err := b.sender(u)
		if err != nil {
			return nil, nil, err
		}
		ws, ps = append(ws, w), append(ps, p)
	}
	for len(ws) < 2 {
		w, p, err := b.padding(id)
		if err != nil {
			return nil, nil, err
		}
		ws, ps = append(ws, w), append(ps, p)
	}
	return ws, ps, nil
}

func (b *builder) prove(st *zkp.Statement, post *shielded.TransferPost) error {
	proof, err := b.s.proving.Prove(st)
	if err != nil {
		return &SignError{Kind: ProofSystemError, Err: err}
	}
	post.Proof = proof
	if len(post.SenderPosts) == 0 {
		return nil
	}
	if err := b.auth.SignPost(post); err != nil {
		return &SignError{Kind: ProofSystemError, Err: err}
	}
	return nil
}

func (b *builder) toPrivate(asset shielded.Asset) (shielded.TransferPost, error) {
	rw, rp, err := b.receiver(&b.address, asset)
	if err != nil {
		return shielded.TransferPost{}, err
	}
	id := asset.ID
	post := shielded.TransferPost{
		AssetID:       &id,
		Sources:       []uint256.Int{asset.Value},
		ReceiverPosts: []shielded.ReceiverPost{rp},
	}
	st := &zkp.Statement{Kind: zkp.ToPrivate, AssetID: id, Public: asset.Value, Receivers: []zkp.ReceiverWitness{rw}}
	if err := b.prove(st, &post); err != nil {
		return shielded.TransferPost{}, err
	}
	return post, nil
}

// merge spends two UTXOs into one self-owned UTXO carrying their sum and
// appends the outputs to the working accumulator.
func (b *builder) merge(x, y *ownedUtxo) (*ownedUtxo, shielded.TransferPost, error) {
	id := x.Asset.ID
	sw, sp, err := b.senders(id, []*ownedUtxo{x, y})
	if err != nil {
		return nil, shielded.TransferPost{}, err
	}
	sum := shielded.Asset{ID: id}
	sum.Value.Add(&x.Asset.Value, &y.Asset.Value)
	mw, mp, err := b.receiver(&b.address, sum)
	if err != nil {
		return nil, shielded.TransferPost{}, err
	}
	zw, zp, err := b.receiver(&b.address, shielded.Asset{ID: id})
	if err != nil {
		return nil, shielded.TransferPost{}, err
	}
	post := shielded.TransferPost{
		SenderPosts:   sp,
		ReceiverPosts: []shielded.ReceiverPost{mp, zp},
	}
	st := &zkp.Statement{
		Kind:             zkp.PrivateTransfer,
		AuthorizationKey: b.auth.PublicKey(),
		Senders:          sw,
		Receivers:        []zkp.ReceiverWitness{mw, zw},
	}
	if err := b.prove(st, &post); err != nil {
		return nil, shielded.TransferPost{}, err
	}

	idx, err := b.work.Insert(shielded.ItemHash(&mp.Utxo))
	if err != nil {
		return nil, shielded.TransferPost{}, signErr(InvalidTransaction, "accumulator: %v", err)
	}
	if _, err := b.work.Insert(shielded.ItemHash(&zp.Utxo)); err != nil {
		return nil, shielded.TransferPost{}, signErr(InvalidTransaction, "accumulator: %v", err)
	}
	merged := &ownedUtxo{
		LeafIndex:  idx,
		Asset:      sum,
		Randomness: mw.Randomness,
		Commitment: mw.Commitment,
		Nullifier:  shielded.NullifierCommitment(&b.accounts.SpendingKey, &mw.Commitment),
		Spendable:  true,
	}
	return merged, post, nil
}

func (b *builder) final(tx Transaction, utxos []*ownedUtxo) (shielded.TransferPost, error) {
	id := tx.Asset.ID
	sw, sp, err := b.senders(id, utxos)
	if err != nil {
		return shielded.TransferPost{}, err
	}
	total := new(uint256.Int)
	for _, u := range utxos {
		total.Add(total, &u.Asset.Value)
	}
	change := shielded.Asset{ID: id}
	if _, underflow := change.Value.SubOverflow(total, &tx.Asset.Value); underflow {
		return shielded.TransferPost{}, signErr(InsufficientBalance, "selected %s, need %s", total.Dec(), tx.Asset.Value.Dec())
	}
	cw, cp, err := b.receiver(&b.address, change)
	if err != nil {
		return shielded.TransferPost{}, err
	}

	st := &zkp.Statement{Kind: tx.Kind, AuthorizationKey: b.auth.PublicKey(), Senders: sw}
	post := shielded.TransferPost{SenderPosts: sp}
	if tx.Kind == zkp.PrivateTransfer {
		to := tx.Address
		rw, rp, err := b.receiver(&to, tx.Asset)
		if err != nil {
			return shielded.TransferPost{}, err
		}
		st.Receivers = []zkp.ReceiverWitness{rw, cw}
		post.ReceiverPosts = []shielded.ReceiverPost{rp, cp}
	} else {
		st.AssetID = id
		st.Public = tx.Asset.Value
		st.Receivers = []zkp.ReceiverWitness{cw}
		post.AssetID = &id
		post.ReceiverPosts = []shielded.ReceiverPost{cp}
		post.Sinks = []uint256.Int{tx.Asset.Value}
		post.SinkAccounts = []shielded.AccountID{tx.Account}
	}
	if err := b.prove(st, &post); err != nil {
		return shielded.TransferPost{}, err
	}
	return post, nil
}

// IsSignError reports whether err is a signing error of the given kind.
func IsSignError(err error, kind SignErrorKind) bool {
	var se *SignError
	return errors.As(err, &se) && se.Kind == kind
}
