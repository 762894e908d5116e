package memledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/hamzazf/shieldwallet/internal/accumulator"
	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/ledger"
	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

const testHeight = 4

var testID = shielded.FieldFromUint64(11)

type fixture struct {
	ledger  *Ledger
	auth    *keys.AuthorizationContext
	address shielded.Address
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger.Disable()
	l, err := New(shielded.Parameters{Generator: shielded.Base(), AccumulatorHeight: testHeight}, opts...)
	require.NoError(t, err)
	m, err := keys.GenerateMnemonic(keys.DefaultMnemonicBits)
	require.NoError(t, err)
	auth, err := keys.AuthorizationContextFromMnemonic(m)
	require.NoError(t, err)
	address, err := keys.AddressFromMnemonic(m)
	require.NoError(t, err)
	return &fixture{ledger: l, auth: auth, address: address}
}

func testProof() shielded.Proof {
	_, _, g1, g2 := bn254.Generators()
	return shielded.Proof{Ar: g1, Bs: g2, Krs: g1}
}

func (f *fixture) receiver(t *testing.T, value uint64) shielded.ReceiverPost {
	t.Helper()
	asset := shielded.NewAsset(testID, value)
	r, err := shielded.RandomField()
	require.NoError(t, err)
	e, err := shielded.RandomScalar()
	require.NoError(t, err)
	tag := f.address.SpendTag
	return shielded.ReceiverPost{
		Utxo: shielded.Utxo{Commitment: shielded.Commitment(&asset, &tag, &r)},
		Note: shielded.EncryptIncoming(&f.address, &r, &asset, e),
	}
}

func (f *fixture) sender(t *testing.T, root shielded.Field) shielded.SenderPost {
	t.Helper()
	nf, err := shielded.RandomField()
	require.NoError(t, err)
	e, err := shielded.RandomScalar()
	require.NoError(t, err)
	asset := shielded.NewAsset(testID, 1)
	return shielded.SenderPost{
		UtxoAccumulatorOutput: root,
		Nullifier: shielded.Nullifier{
			Commitment:   nf,
			OutgoingNote: shielded.EncryptOutgoing(&f.address.ReceivingKey, &asset, e),
		},
	}
}

func (f *fixture) toPrivate(t *testing.T, value uint64) shielded.TransferPost {
	t.Helper()
	id := testID
	return shielded.TransferPost{
		AssetID:       &id,
		Sources:       []uint256.Int{*uint256.NewInt(value)},
		ReceiverPosts: []shielded.ReceiverPost{f.receiver(t, value)},
		Proof:         testProof(),
	}
}

func (f *fixture) transfer(t *testing.T, senders ...shielded.SenderPost) shielded.TransferPost {
	t.Helper()
	post := shielded.TransferPost{
		SenderPosts:   senders,
		ReceiverPosts: []shielded.ReceiverPost{f.receiver(t, 1), f.receiver(t, 0)},
		Proof:         testProof(),
	}
	require.NoError(t, f.auth.SignPost(&post))
	return post
}

func requireRejected(t *testing.T, resp ledger.Response, code string) {
	t.Helper()
	require.False(t, resp.Accepted, resp.String())
	require.Equal(t, code, resp.Code, resp.Reason)
}

func TestPullPages(t *testing.T) {
	f := newFixture(t, WithPageSize(2))
	ctx := context.Background()
	for v := uint64(1); v <= 3; v++ {
		p := f.toPrivate(t, v)
		require.True(t, f.ledger.Submit([]shielded.TransferPost{p}).Accepted)
	}
	require.Equal(t, shielded.Checkpoint{ReceiverIndex: 3}, f.ledger.Checkpoint())

	first, err := ledger.ReadSync(ctx, f.ledger, shielded.Checkpoint{})
	require.NoError(t, err)
	require.True(t, first.ShouldContinue)
	require.Len(t, first.Data.UtxoNoteData, 2)

	last, err := ledger.ReadSync(ctx, f.ledger, shielded.Checkpoint{ReceiverIndex: 2})
	require.NoError(t, err)
	require.False(t, last.ShouldContinue)
	require.Len(t, last.Data.UtxoNoteData, 1)

	beyond, err := ledger.ReadSync(ctx, f.ledger, shielded.Checkpoint{ReceiverIndex: 9})
	require.NoError(t, err)
	require.False(t, beyond.ShouldContinue)
	require.Empty(t, beyond.Data.UtxoNoteData)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ledger.ReadSync(cancelled, f.ledger, shielded.Checkpoint{})
	require.ErrorIs(t, err, ledger.ErrConnection)
}

func TestInitialPullPathMatchesRoot(t *testing.T) {
	f := newFixture(t, WithPageSize(2))
	ctx := context.Background()
	for v := uint64(1); v <= 3; v++ {
		require.True(t, f.ledger.Submit([]shielded.TransferPost{f.toPrivate(t, v)}).Accepted)
	}

	var data shielded.InitialSyncData
	cp := shielded.Checkpoint{}
	for {
		resp, err := ledger.ReadInitialSync(ctx, f.ledger, cp)
		require.NoError(t, err)
		if resp.ShouldContinue {
			require.Empty(t, resp.Data.MembershipProofData)
		}
		data.Extend(resp.Data)
		cp.ReceiverIndex = uint64(len(data.UtxoData))
		if !resp.ShouldContinue {
			break
		}
	}
	require.Len(t, data.UtxoData, 3)
	require.Len(t, data.MembershipProofData, 1)

	tree, err := accumulator.New(testHeight)
	require.NoError(t, err)
	for i := range data.UtxoData {
		_, err := tree.Insert(shielded.ItemHash(&data.UtxoData[i]))
		require.NoError(t, err)
	}
	require.Equal(t, f.ledger.Root(), tree.Root())
	path := data.MembershipProofData[0]
	leaf, err := tree.Leaf(uint64(path.LeafIndex))
	require.NoError(t, err)
	require.Equal(t, tree.Root(), accumulator.ComputeRoot(leaf, &path))
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.ledger.Submit([]shielded.TransferPost{f.toPrivate(t, 5)}).Accepted)
	root := f.ledger.Root()

	spent := f.transfer(t, f.sender(t, root), f.sender(t, root))
	require.True(t, f.ledger.Submit([]shielded.TransferPost{spent}).Accepted)
	cp := f.ledger.Checkpoint()
	root = f.ledger.Root()

	t.Run("double spend", func(t *testing.T) {
		again := f.transfer(t, spent.SenderPosts[0], f.sender(t, root))
		requireRejected(t, f.ledger.Submit([]shielded.TransferPost{again}), CodeDoubleSpend)
	})
	t.Run("double spend within a post", func(t *testing.T) {
		s := f.sender(t, root)
		requireRejected(t, f.ledger.Submit([]shielded.TransferPost{f.transfer(t, s, s)}), CodeDoubleSpend)
	})
	t.Run("unknown root", func(t *testing.T) {
		requireRejected(t, f.ledger.Submit([]shielded.TransferPost{
			f.transfer(t, f.sender(t, shielded.FieldFromUint64(3)), f.sender(t, root)),
		}), CodeUnknownRoot)
	})
	t.Run("missing authorization", func(t *testing.T) {
		p := f.transfer(t, f.sender(t, root), f.sender(t, root))
		p.AuthorizationSignature = nil
		requireRejected(t, f.ledger.Submit([]shielded.TransferPost{p}), CodeInvalidAuthorization)
	})
	t.Run("tampered body", func(t *testing.T) {
		p := f.transfer(t, f.sender(t, root), f.sender(t, root))
		p.ReceiverPosts[1] = f.receiver(t, 0)
		requireRejected(t, f.ledger.Submit([]shielded.TransferPost{p}), CodeInvalidAuthorization)
	})
	t.Run("duplicate commitment", func(t *testing.T) {
		p := f.toPrivate(t, 1)
		p.ReceiverPosts[0].Utxo = spent.ReceiverPosts[0].Utxo
		requireRejected(t, f.ledger.Submit([]shielded.TransferPost{p}), CodeDuplicateCommitment)
	})
	t.Run("shape", func(t *testing.T) {
		p := f.toPrivate(t, 1)
		p.Sinks = []uint256.Int{*uint256.NewInt(1)}
		requireRejected(t, f.ledger.Submit([]shielded.TransferPost{p}), CodeInvalidShape)
	})

	require.Equal(t, cp, f.ledger.Checkpoint())
	require.Equal(t, root, f.ledger.Root())
}

func TestBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	root := f.ledger.Root()
	good := f.toPrivate(t, 2)
	bad := f.transfer(t, f.sender(t, shielded.FieldFromUint64(3)), f.sender(t, root))

	requireRejected(t, f.ledger.Submit([]shielded.TransferPost{good, bad}), CodeUnknownRoot)
	require.True(t, f.ledger.Checkpoint().IsZero())
	require.Equal(t, root, f.ledger.Root())

	// A later post of a batch may spend against a root of an earlier one.
	first := f.toPrivate(t, 2)
	tree, err := accumulator.New(testHeight)
	require.NoError(t, err)
	_, err = tree.Insert(shielded.ItemHash(&first.ReceiverPosts[0].Utxo))
	require.NoError(t, err)
	next := f.transfer(t, f.sender(t, tree.Root()), f.sender(t, tree.Root()))
	require.True(t, f.ledger.Submit([]shielded.TransferPost{first, next}).Accepted)
	require.Equal(t, shielded.Checkpoint{ReceiverIndex: 3, SenderIndex: 2}, f.ledger.Checkpoint())
}

func TestPushDecodesAndCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.True(t, f.ledger.Submit([]shielded.TransferPost{f.toPrivate(t, 9)}).Accepted)
	root := f.ledger.Root()

	id := testID
	account := shielded.AccountID{4}
	withdraw := shielded.TransferPost{
		AssetID:       &id,
		SenderPosts:   []shielded.SenderPost{f.sender(t, root), f.sender(t, root)},
		ReceiverPosts: []shielded.ReceiverPost{f.receiver(t, 2)},
		Sinks:         []uint256.Int{*uint256.NewInt(7)},
		SinkAccounts:  []shielded.AccountID{account},
		Proof:         testProof(),
	}
	require.NoError(t, f.auth.SignPost(&withdraw))

	resp, err := ledger.Write(ctx, f.ledger, []shielded.TransferPost{withdraw})
	require.NoError(t, err)
	require.True(t, resp.Accepted, resp.String())
	require.NotEmpty(t, resp.Receipt)
	credit := f.ledger.Credit(account, testID)
	require.Equal(t, uint64(7), credit.Uint64())

	encoded, err := raw.EncodeTransferPosts([]shielded.TransferPost{f.toPrivate(t, 1)})
	require.NoError(t, err)
	encoded[0].Proof[0] ^= 0xff
	resp, err = f.ledger.Push(ctx, encoded)
	require.NoError(t, err)
	requireRejected(t, resp, CodeMalformed)
}

func TestSaveAndLoad(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.ledger.Submit([]shielded.TransferPost{f.toPrivate(t, 4)}).Accepted)
	root := f.ledger.Root()
	spent := f.transfer(t, f.sender(t, root), f.sender(t, root))
	require.True(t, f.ledger.Submit([]shielded.TransferPost{spent}).Accepted)

	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, f.ledger.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, f.ledger.Checkpoint(), loaded.Checkpoint())
	require.Equal(t, f.ledger.Root(), loaded.Root())
	require.Equal(t, f.ledger.Parameters().AccumulatorHeight, loaded.Parameters().AccumulatorHeight)

	again := f.transfer(t, spent.SenderPosts[0], f.sender(t, root))
	requireRejected(t, loaded.Submit([]shielded.TransferPost{again}), CodeDoubleSpend)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
