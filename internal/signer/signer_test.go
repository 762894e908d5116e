package signer

import (
	"errors"
	"sync"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/hamzazf/shieldwallet/internal/accumulator"
	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/zkp"
)

const (
	testHeight = 3
	testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
)

var testID = shielded.FieldFromUint64(7)

func testParams() shielded.Parameters {
	return shielded.Parameters{Generator: shielded.Base(), AccumulatorHeight: testHeight}
}

type wallet struct {
	signer   *Signer
	accounts *keys.AccountTable
	auth     *keys.AuthorizationContext
}

func newWallet(t *testing.T, proving *zkp.MultiProvingContext) wallet {
	t.Helper()
	logger.Disable()
	m, err := keys.MnemonicFromPhrase(testPhrase)
	require.NoError(t, err)
	accounts, err := keys.AccountsFromMnemonic(m)
	require.NoError(t, err)
	auth, err := keys.AuthorizationContextFromMnemonic(m)
	require.NoError(t, err)
	s, err := New(testParams(), proving, WithAccounts(accounts))
	require.NoError(t, err)
	return wallet{signer: s, accounts: accounts, auth: auth}
}

func foreignAddress(t *testing.T) shielded.Address {
	t.Helper()
	m, err := keys.GenerateMnemonic(keys.DefaultMnemonicBits)
	require.NoError(t, err)
	a, err := keys.AddressFromMnemonic(m)
	require.NoError(t, err)
	return a
}

func noteTo(t *testing.T, to shielded.Address, value uint64) shielded.UtxoNote {
	t.Helper()
	asset := shielded.NewAsset(testID, value)
	r, err := shielded.RandomField()
	require.NoError(t, err)
	e, err := shielded.RandomScalar()
	require.NoError(t, err)
	tag := to.SpendTag
	return shielded.UtxoNote{
		Utxo: shielded.Utxo{Commitment: shielded.Commitment(&asset, &tag, &r)},
		Note: shielded.EncryptIncoming(&to, &r, &asset, e),
	}
}

func (w wallet) nullifier(t *testing.T, n shielded.UtxoNote, value uint64) shielded.Nullifier {
	t.Helper()
	e, err := shielded.RandomScalar()
	require.NoError(t, err)
	cm := n.Utxo.Commitment
	asset := shielded.NewAsset(testID, value)
	rk := w.accounts.ViewingKey.ReceivingKey()
	return shielded.Nullifier{
		Commitment:   shielded.NullifierCommitment(&w.accounts.SpendingKey, &cm),
		OutgoingNote: shielded.EncryptOutgoing(&rk, &asset, e),
	}
}

func randomNullifier(t *testing.T) shielded.Nullifier {
	t.Helper()
	f, err := shielded.RandomField()
	require.NoError(t, err)
	return shielded.Nullifier{Commitment: f}
}

func referenceRoot(t *testing.T, notes ...shielded.UtxoNote) shielded.Field {
	t.Helper()
	tree, err := accumulator.New(testHeight)
	require.NoError(t, err)
	for i := range notes {
		_, err := tree.Insert(shielded.ItemHash(&notes[i].Utxo))
		require.NoError(t, err)
	}
	return tree.Root()
}

func requireInconsistency(t *testing.T, err error, kind InconsistencyKind) {
	t.Helper()
	require.ErrorIs(t, err, ErrInconsistency)
	var ie *InconsistencyError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, kind, ie.Kind, ie.Error())
}

func TestSyncDepositAndWithdraw(t *testing.T) {
	w := newWallet(t, nil)
	own := noteTo(t, w.accounts.Address(), 10)
	other := noteTo(t, foreignAddress(t), 5)

	resp, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{UtxoNoteData: []shielded.UtxoNote{own, other}})
	require.NoError(t, err)
	require.Equal(t, shielded.Checkpoint{ReceiverIndex: 2}, resp.Checkpoint)
	require.Len(t, resp.Balance.Deposit, 1)
	require.Equal(t, uint64(10), resp.Balance.Deposit[0].Value.Uint64())
	require.Equal(t, referenceRoot(t, own, other), w.signer.Root())
	require.Len(t, w.signer.Assets(), 1)

	resp, err = w.signer.Sync(resp.Checkpoint, shielded.SyncData{
		NullifierData: []shielded.Nullifier{randomNullifier(t), w.nullifier(t, own, 10)},
	})
	require.NoError(t, err)
	require.Equal(t, shielded.Checkpoint{ReceiverIndex: 2, SenderIndex: 2}, resp.Checkpoint)
	require.Len(t, resp.Balance.Withdraw, 1)
	require.Empty(t, w.signer.Assets())

	history := w.signer.History()
	require.Len(t, history, 2)
	require.Equal(t, Received, history[0].Kind)
	require.Equal(t, Spent, history[1].Kind)
	require.Equal(t, uint64(10), history[1].Asset.Value.Uint64())
}

func TestSyncSkipsAppliedData(t *testing.T) {
	w := newWallet(t, nil)
	a := noteTo(t, w.accounts.Address(), 1)
	b := noteTo(t, w.accounts.Address(), 2)
	c := noteTo(t, w.accounts.Address(), 3)

	_, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{UtxoNoteData: []shielded.UtxoNote{a, b}})
	require.NoError(t, err)

	resp, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{UtxoNoteData: []shielded.UtxoNote{a, b, c}})
	require.NoError(t, err)
	require.Equal(t, uint64(3), resp.Checkpoint.ReceiverIndex)
	require.Len(t, resp.Balance.Deposit, 1)
	require.Equal(t, uint64(3), resp.Balance.Deposit[0].Value.Uint64())
	require.Equal(t, referenceRoot(t, a, b, c), w.signer.Root())
	require.Equal(t, uint64(6), w.signer.Assets()[0].Value.Uint64())
}

func TestSyncFromAheadOfSigner(t *testing.T) {
	w := newWallet(t, nil)
	root := w.signer.Root()
	_, err := w.signer.Sync(shielded.Checkpoint{ReceiverIndex: 4}, shielded.SyncData{
		UtxoNoteData: []shielded.UtxoNote{noteTo(t, w.accounts.Address(), 1)},
	})
	requireInconsistency(t, err, InconsistentSynchronization)
	require.False(t, InconsistentSynchronization.RequiresResync())
	require.True(t, w.signer.Checkpoint().IsZero())
	require.Equal(t, root, w.signer.Root())
}

func TestDuplicateNullifierLeavesStateUnchanged(t *testing.T) {
	w := newWallet(t, nil)
	own := noteTo(t, w.accounts.Address(), 4)
	nf := w.nullifier(t, own, 4)

	_, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{
		UtxoNoteData:  []shielded.UtxoNote{own},
		NullifierData: []shielded.Nullifier{nf, nf},
	})
	requireInconsistency(t, err, DuplicateNullifier)
	require.True(t, w.signer.Checkpoint().IsZero())
	require.Equal(t, referenceRoot(t), w.signer.Root())
	require.Empty(t, w.signer.Assets())

	resp, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{
		UtxoNoteData:  []shielded.UtxoNote{own},
		NullifierData: []shielded.Nullifier{nf},
	})
	require.NoError(t, err)

	_, err = w.signer.Sync(resp.Checkpoint, shielded.SyncData{NullifierData: []shielded.Nullifier{nf}})
	requireInconsistency(t, err, DuplicateNullifier)
	require.True(t, DuplicateNullifier.RequiresResync())
	require.Equal(t, resp.Checkpoint, w.signer.Checkpoint())
}

func TestNullifierBeforeReceiver(t *testing.T) {
	w := newWallet(t, nil)
	other := noteTo(t, foreignAddress(t), 2)
	own := noteTo(t, w.accounts.Address(), 9)
	nf := w.nullifier(t, own, 9)

	// The ledger pages nullifiers independently of receivers, so the spend
	// of own can arrive one step before own itself.
	resp, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{
		UtxoNoteData:  []shielded.UtxoNote{other},
		NullifierData: []shielded.Nullifier{nf},
	})
	require.NoError(t, err)
	require.Empty(t, resp.Balance.Withdraw)
	require.Equal(t, shielded.Checkpoint{ReceiverIndex: 1, SenderIndex: 1}, resp.Checkpoint)

	blob, err := w.signer.Storage()
	require.NoError(t, err)
	restored := newWallet(t, nil)
	require.NoError(t, restored.signer.SetStorage(blob))

	step := shielded.SyncData{UtxoNoteData: []shielded.UtxoNote{own}}
	for name, s := range map[string]*Signer{"live": w.signer, "restored": restored.signer} {
		t.Run(name, func(t *testing.T) {
			resp, err := s.Sync(shielded.Checkpoint{ReceiverIndex: 1, SenderIndex: 1}, step)
			require.NoError(t, err)
			require.Empty(t, resp.Balance.Deposit)
			require.Empty(t, resp.Balance.Withdraw)
			require.Empty(t, s.Assets())
			require.Equal(t, referenceRoot(t, other, own), s.Root())

			history := s.History()
			require.Len(t, history, 2)
			require.Equal(t, Received, history[0].Kind)
			require.Equal(t, Spent, history[1].Kind)
			require.Equal(t, uint64(9), history[1].Asset.Value.Uint64())

			_, err = s.Sync(resp.Checkpoint, shielded.SyncData{NullifierData: []shielded.Nullifier{nf}})
			requireInconsistency(t, err, DuplicateNullifier)
		})
	}
}

func TestForeignNullifierReplayRejected(t *testing.T) {
	w := newWallet(t, nil)
	nf := randomNullifier(t)
	resp, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{NullifierData: []shielded.Nullifier{nf}})
	require.NoError(t, err)

	_, err = w.signer.Sync(resp.Checkpoint, shielded.SyncData{NullifierData: []shielded.Nullifier{nf}})
	requireInconsistency(t, err, DuplicateNullifier)
	require.Equal(t, resp.Checkpoint, w.signer.Checkpoint())

	// A reset forgets unmatched nullifiers too.
	require.NoError(t, w.signer.ResetState())
	_, err = w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{NullifierData: []shielded.Nullifier{nf}})
	require.NoError(t, err)
}

func TestSyncRejectsAccumulatorOverflow(t *testing.T) {
	w := newWallet(t, nil)
	capacity := int(w.signer.state.tree.Capacity())
	notes := make([]shielded.UtxoNote, capacity+1)
	for i := range notes {
		notes[i] = noteTo(t, w.accounts.Address(), 1)
	}

	_, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{UtxoNoteData: notes})
	requireInconsistency(t, err, AccumulatorMismatch)
	require.True(t, w.signer.Checkpoint().IsZero())
	require.Equal(t, referenceRoot(t), w.signer.Root())
	require.Empty(t, w.signer.Assets())

	resp, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{UtxoNoteData: notes[:capacity]})
	require.NoError(t, err)
	require.Equal(t, uint64(capacity), resp.Checkpoint.ReceiverIndex)
	require.Equal(t, referenceRoot(t, notes[:capacity]...), w.signer.Root())

	_, err = w.signer.Sync(resp.Checkpoint, shielded.SyncData{UtxoNoteData: notes[capacity:]})
	requireInconsistency(t, err, AccumulatorMismatch)
	require.Equal(t, resp.Checkpoint, w.signer.Checkpoint())
}

func TestSbtSyncKeepsAccumulator(t *testing.T) {
	w := newWallet(t, nil)
	w.signer.LoadAuthorizationContext(w.auth)
	root := w.signer.Root()

	resp, err := w.signer.SbtSync(shielded.Checkpoint{}, shielded.SyncData{
		UtxoNoteData: []shielded.UtxoNote{noteTo(t, w.accounts.Address(), 1), noteTo(t, foreignAddress(t), 1)},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), resp.Checkpoint.ReceiverIndex)
	require.Equal(t, root, w.signer.Root())
	require.Len(t, w.signer.Assets(), 1)

	_, err = w.signer.Sign(NewToPublic(shielded.NewAsset(testID, 1), shielded.AccountID{1}), nil)
	require.True(t, IsSignError(err, InsufficientBalance), err)
}

func TestInitialSync(t *testing.T) {
	w := newWallet(t, nil)
	notes := []shielded.UtxoNote{
		noteTo(t, w.accounts.Address(), 1),
		noteTo(t, foreignAddress(t), 2),
		noteTo(t, w.accounts.Address(), 3),
	}
	ref, err := accumulator.New(testHeight)
	require.NoError(t, err)
	data := shielded.InitialSyncData{NullifierCount: 5}
	for i := range notes {
		_, err := ref.Insert(shielded.ItemHash(&notes[i].Utxo))
		require.NoError(t, err)
		data.UtxoData = append(data.UtxoData, notes[i].Utxo)
	}
	for i := range notes {
		p, err := ref.Path(uint64(i))
		require.NoError(t, err)
		data.MembershipProofData = append(data.MembershipProofData, p)
	}

	t.Run("bad path applies nothing", func(t *testing.T) {
		bad := data
		bad.MembershipProofData = append([]shielded.CurrentPath(nil), data.MembershipProofData...)
		bad.MembershipProofData[1].SiblingDigest = shielded.FieldFromUint64(99)
		_, err := w.signer.InitialSync(bad)
		requireInconsistency(t, err, AccumulatorMismatch)
		require.True(t, w.signer.Checkpoint().IsZero())
		require.Equal(t, referenceRoot(t), w.signer.Root())
	})

	resp, err := w.signer.InitialSync(data)
	require.NoError(t, err)
	require.True(t, resp.Balance.Full)
	require.Equal(t, shielded.Checkpoint{ReceiverIndex: 3, SenderIndex: 5}, resp.Checkpoint)
	require.Equal(t, ref.Root(), w.signer.Root())

	_, err = w.signer.InitialSync(data)
	requireInconsistency(t, err, NotReset)

	// Incremental sync continues from the initial checkpoint.
	next := noteTo(t, w.accounts.Address(), 8)
	resp, err = w.signer.Sync(resp.Checkpoint, shielded.SyncData{UtxoNoteData: []shielded.UtxoNote{next}})
	require.NoError(t, err)
	require.Equal(t, referenceRoot(t, append(notes, next)...), w.signer.Root())
	require.Len(t, resp.Balance.Deposit, 1)

	require.NoError(t, w.signer.ResetState())
	require.True(t, w.signer.Checkpoint().IsZero())
}

func TestSignPreconditions(t *testing.T) {
	w := newWallet(t, nil)
	asset := shielded.NewAsset(testID, 5)
	_, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{
		UtxoNoteData: []shielded.UtxoNote{noteTo(t, w.accounts.Address(), 10)},
	})
	require.NoError(t, err)

	_, err = w.signer.Sign(NewToPublic(shielded.NewAsset(testID, 0), shielded.AccountID{}), nil)
	require.True(t, IsSignError(err, InvalidTransaction), err)

	_, err = w.signer.Sign(NewToPublic(shielded.NewAsset(testID, 11), shielded.AccountID{}), nil)
	require.True(t, IsSignError(err, InsufficientBalance), err)

	_, err = w.signer.Sign(NewToPublic(asset, shielded.AccountID{}), nil)
	require.True(t, IsSignError(err, MissingAuthorization), err)

	other, err := keys.GenerateMnemonic(keys.DefaultMnemonicBits)
	require.NoError(t, err)
	foreign, err := keys.AuthorizationContextFromMnemonic(other)
	require.NoError(t, err)
	require.False(t, w.signer.TryLoadAuthorizationContext(foreign))
	require.True(t, w.signer.TryLoadAuthorizationContext(w.auth))

	_, err = w.signer.Sign(NewToPublic(asset, shielded.AccountID{}), nil)
	require.True(t, IsSignError(err, ProofSystemError), err)
	require.ErrorIs(t, err, ErrSign)

	w.signer.DropAccounts()
	_, err = w.signer.Sign(NewToPrivate(asset), nil)
	require.True(t, IsSignError(err, MissingAuthorization), err)
	_, err = w.signer.Address()
	require.ErrorIs(t, err, ErrAccountsNotLoaded)
}

func TestStorageRoundTrip(t *testing.T) {
	w := newWallet(t, nil)
	own := noteTo(t, w.accounts.Address(), 12)
	resp, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{
		UtxoNoteData:  []shielded.UtxoNote{noteTo(t, foreignAddress(t), 1), own},
		NullifierData: []shielded.Nullifier{randomNullifier(t)},
	})
	require.NoError(t, err)
	w.signer.Prune()

	blob, err := w.signer.Storage()
	require.NoError(t, err)

	restored := newWallet(t, nil)
	require.NoError(t, restored.signer.SetStorage(blob))
	require.Equal(t, resp.Checkpoint, restored.signer.Checkpoint())
	require.Equal(t, w.signer.Root(), restored.signer.Root())
	require.Equal(t, w.signer.Assets(), restored.signer.Assets())
	require.Equal(t, w.signer.History(), restored.signer.History())

	// Both continue identically.
	next := noteTo(t, w.accounts.Address(), 3)
	data := shielded.SyncData{UtxoNoteData: []shielded.UtxoNote{next}}
	_, err = w.signer.Sync(resp.Checkpoint, data)
	require.NoError(t, err)
	_, err = restored.signer.Sync(resp.Checkpoint, data)
	require.NoError(t, err)
	require.Equal(t, w.signer.Root(), restored.signer.Root())

	bad, err := cbor.Marshal(storageDTO{Version: storageVersion + 1})
	require.NoError(t, err)
	require.ErrorIs(t, restored.signer.SetStorage(bad), ErrStorageVersion)
	require.Error(t, restored.signer.SetStorage([]byte{0xff}))
	require.Equal(t, w.signer.Root(), restored.signer.Root())
}

func TestTransactionData(t *testing.T) {
	w := newWallet(t, nil)
	own := noteTo(t, w.accounts.Address(), 6)
	_, err := w.signer.Sync(shielded.Checkpoint{}, shielded.SyncData{UtxoNoteData: []shielded.UtxoNote{own}})
	require.NoError(t, err)

	received := noteTo(t, w.accounts.Address(), 2)
	foreign := noteTo(t, foreignAddress(t), 4)
	post := shielded.TransferPost{
		SenderPosts: []shielded.SenderPost{
			{Nullifier: w.nullifier(t, own, 6)},
			{Nullifier: randomNullifier(t)},
		},
		ReceiverPosts: []shielded.ReceiverPost{
			{Utxo: received.Utxo, Note: received.Note},
			{Utxo: foreign.Utxo, Note: foreign.Note},
		},
	}
	data, err := w.signer.BatchedTransactionData([]shielded.TransferPost{post, post})
	require.NoError(t, err)
	require.Len(t, data, 2)
	require.Equal(t, zkp.PrivateTransfer, data[0].Kind)
	require.Len(t, data[0].Received, 1)
	require.Equal(t, uint64(2), data[0].Received[0].Asset.Value.Uint64())
	require.Len(t, data[0].Spent, 1)
	require.Equal(t, uint64(6), data[0].Spent[0].Value.Uint64())

	_, err = w.signer.TransactionData(&shielded.TransferPost{SenderPosts: post.SenderPosts})
	require.ErrorIs(t, err, zkp.ErrUnknownShape)
}

func TestAssetMetadataDisplay(t *testing.T) {
	var none *AssetMetadata
	require.Equal(t, "1500", none.Display(uint256.NewInt(1500)))
	m := &AssetMetadata{Decimals: 3, Symbol: "DOT"}
	require.Equal(t, "1.500 DOT", m.Display(uint256.NewInt(1500)))
	require.Equal(t, "0.007 DOT", m.Display(uint256.NewInt(7)))
}

// chain is a minimal ordered ledger feeding posts back into signers.
type chain struct {
	receivers  []shielded.UtxoNote
	nullifiers []shielded.Nullifier
}

func (c *chain) post(p *shielded.TransferPost) {
	for _, r := range p.ReceiverPosts {
		c.receivers = append(c.receivers, shielded.UtxoNote{Utxo: r.Utxo, Note: r.Note})
	}
	for _, s := range p.SenderPosts {
		c.nullifiers = append(c.nullifiers, s.Nullifier)
	}
}

func (c *chain) pull(from shielded.Checkpoint) shielded.SyncData {
	return shielded.SyncData{
		UtxoNoteData:  c.receivers[from.ReceiverIndex:],
		NullifierData: c.nullifiers[from.SenderIndex:],
	}
}

var (
	provingOnce sync.Once
	provingCtx  *zkp.MultiProvingContext
	provingErr  error
)

func testProving(t *testing.T) *zkp.MultiProvingContext {
	t.Helper()
	if testing.Short() {
		t.Skip("groth16 setup in short mode")
	}
	provingOnce.Do(func() {
		logger.Disable()
		provingCtx, provingErr = zkp.Setup(testHeight)
	})
	require.NoError(t, provingErr)
	return provingCtx
}

func TestSignProvesAndMerges(t *testing.T) {
	proving := testProving(t)
	verifier := proving.Verifying()
	w := newWallet(t, proving)
	w.signer.LoadAuthorizationContext(w.auth)

	var ledger chain
	for _, v := range []uint64{3, 4, 5} {
		posts, err := w.signer.Sign(NewToPrivate(shielded.NewAsset(testID, v)), nil)
		require.NoError(t, err)
		require.Len(t, posts, 1)
		require.NoError(t, verifier.Verify(&posts[0]))
		require.Nil(t, posts[0].AuthorizationSignature)
		ledger.post(&posts[0])
	}
	_, err := w.signer.Sync(shielded.Checkpoint{}, ledger.pull(shielded.Checkpoint{}))
	require.NoError(t, err)
	require.Equal(t, uint64(12), w.signer.Assets()[0].Value.Uint64())

	before := w.signer.Checkpoint()
	posts, err := w.signer.Sign(NewToPublic(shielded.NewAsset(testID, 11), shielded.AccountID{9}), &AssetMetadata{Symbol: "T"})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Equal(t, before, w.signer.Checkpoint())
	for i := range posts {
		require.NoError(t, verifier.Verify(&posts[i]))
		require.True(t, keys.VerifyPost(&posts[i]))
		ledger.post(&posts[i])
	}
	kind, err := zkp.KindOf(&posts[1])
	require.NoError(t, err)
	require.Equal(t, zkp.ToPublic, kind)

	resp, err := w.signer.Sync(before, ledger.pull(before))
	require.NoError(t, err)
	require.Len(t, resp.Balance.Withdraw, 4)
	require.Len(t, resp.Balance.Deposit, 2)
	require.Len(t, w.signer.Assets(), 1)
	require.Equal(t, uint64(1), w.signer.Assets()[0].Value.Uint64())

	to := foreignAddress(t)
	posts, err = w.signer.Sign(NewPrivateTransfer(shielded.NewAsset(testID, 1), to), nil)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.NoError(t, verifier.Verify(&posts[0]))
}

func TestIdentityProof(t *testing.T) {
	proving := testProving(t)
	w := newWallet(t, proving)
	w.signer.LoadAuthorizationContext(w.auth)

	_, err := w.signer.IdentityProof(IdentityRequest{AssetID: testID})
	require.True(t, IsSignError(err, InvalidTransaction), err)

	_, err = w.signer.SbtSync(shielded.Checkpoint{}, shielded.SyncData{
		UtxoNoteData: []shielded.UtxoNote{noteTo(t, w.accounts.Address(), 1)},
	})
	require.NoError(t, err)
	proofs, err := w.signer.BatchedIdentityProof([]IdentityRequest{{AssetID: testID, Account: shielded.AccountID{3}}})
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	require.NoError(t, proving.Verifying().Verify(&proofs[0].Post))
	require.Equal(t, shielded.AccountID{3}, proofs[0].Post.SinkAccounts[0])
}
