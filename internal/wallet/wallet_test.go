package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/ledger"
	"github.com/hamzazf/shieldwallet/internal/ledger/memledger"
	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/metrics"
	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/signer"
	"github.com/hamzazf/shieldwallet/internal/zkp"
)

const testHeight = 3

var testID = shielded.FieldFromUint64(5)

func testParams() shielded.Parameters {
	return shielded.Parameters{Generator: shielded.Base(), AccumulatorHeight: testHeight}
}

type fixture struct {
	wallet   *Wallet
	ledger   *memledger.Ledger
	address  shielded.Address
	auth     *keys.AuthorizationContext
	metrics  *metrics.Collector
	accounts *keys.AccountTable
}

func newFixture(t *testing.T, proving *zkp.MultiProvingContext, wrap func(ledger.Connection) ledger.Connection, opts ...memledger.Option) *fixture {
	t.Helper()
	logger.Disable()
	m, err := keys.GenerateMnemonic(keys.DefaultMnemonicBits)
	require.NoError(t, err)
	accounts, err := keys.AccountsFromMnemonic(m)
	require.NoError(t, err)
	auth, err := keys.AuthorizationContextFromMnemonic(m)
	require.NoError(t, err)
	s, err := signer.New(testParams(), proving, signer.WithAccounts(accounts))
	require.NoError(t, err)
	l, err := memledger.New(testParams(), opts...)
	require.NoError(t, err)

	var conn ledger.Connection = l
	if wrap != nil {
		conn = wrap(l)
	}
	c := metrics.New()
	w := New(s, conn, WithNetwork("dolphin"), WithMetrics(c), WithMaxStalledSteps(3))
	return &fixture{wallet: w, ledger: l, address: accounts.Address(), auth: auth, metrics: c, accounts: accounts}
}

// deposit records an unproven ToPrivate post straight on the ledger and
// returns the commitment of its receiver.
func (f *fixture) deposit(t *testing.T, to shielded.Address, value uint64) shielded.Field {
	t.Helper()
	id := testID
	asset := shielded.NewAsset(id, value)
	r, err := shielded.RandomField()
	require.NoError(t, err)
	e, err := shielded.RandomScalar()
	require.NoError(t, err)
	tag := to.SpendTag
	_, _, g1, g2 := bn254.Generators()
	post := shielded.TransferPost{
		AssetID: &id,
		Sources: []uint256.Int{asset.Value},
		ReceiverPosts: []shielded.ReceiverPost{{
			Utxo: shielded.Utxo{Commitment: shielded.Commitment(&asset, &tag, &r)},
			Note: shielded.EncryptIncoming(&to, &r, &asset, e),
		}},
		Proof: shielded.Proof{Ar: g1, Bs: g2, Krs: g1},
	}
	resp := f.ledger.Submit([]shielded.TransferPost{post})
	require.True(t, resp.Accepted, resp.String())
	return post.ReceiverPosts[0].Utxo.Commitment
}

// spend builds the nullifier the fixture's keys derive for a commitment.
func (f *fixture) spend(t *testing.T, cm shielded.Field, value uint64) shielded.Nullifier {
	t.Helper()
	e, err := shielded.RandomScalar()
	require.NoError(t, err)
	asset := shielded.NewAsset(testID, value)
	rk := f.accounts.ViewingKey.ReceivingKey()
	return shielded.Nullifier{
		Commitment:   shielded.NullifierCommitment(&f.accounts.SpendingKey, &cm),
		OutgoingNote: shielded.EncryptOutgoing(&rk, &asset, e),
	}
}

func (f *fixture) balance() uint64 {
	v := f.wallet.Balance(testID)
	return v.Uint64()
}

// stub overrides single operations of a connection.
type stub struct {
	ledger.Connection
	pull        func(context.Context, shielded.Checkpoint) (*raw.PullResponse, error)
	initialPull func(context.Context, shielded.Checkpoint) (*raw.InitialPullResponse, error)
	push        func(context.Context, []raw.TransferPost) (ledger.Response, error)
}

func (s *stub) Pull(ctx context.Context, cp shielded.Checkpoint) (*raw.PullResponse, error) {
	if s.pull != nil {
		return s.pull(ctx, cp)
	}
	return s.Connection.Pull(ctx, cp)
}

func (s *stub) InitialPull(ctx context.Context, cp shielded.Checkpoint) (*raw.InitialPullResponse, error) {
	if s.initialPull != nil {
		return s.initialPull(ctx, cp)
	}
	return s.Connection.InitialPull(ctx, cp)
}

func (s *stub) Push(ctx context.Context, posts []raw.TransferPost) (ledger.Response, error) {
	if s.push != nil {
		return s.push(ctx, posts)
	}
	return s.Connection.Push(ctx, posts)
}

func TestSyncAcrossPages(t *testing.T) {
	f := newFixture(t, nil, nil, memledger.WithPageSize(1))
	ctx := context.Background()
	f.deposit(t, f.address, 3)
	f.deposit(t, f.address, 4)

	// Two pulls: the first promises more data, the second is terminal.
	delta, err := f.wallet.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, delta.Deposit, 2)
	require.Empty(t, delta.Withdraw)
	require.Equal(t, uint64(7), f.balance())
	require.Equal(t, f.ledger.Checkpoint(), f.wallet.Checkpoint())
	require.Equal(t, f.ledger.Root(), f.wallet.Root())
	state, _ := f.wallet.State()
	require.Equal(t, Done, state)

	steps := f.metrics.Get(metrics.SyncSteps, map[string]string{"network": "dolphin"})
	require.NotNil(t, steps)
	assert.Equal(t, float64(2), steps.Value)

	f.deposit(t, f.address, 5)
	f.deposit(t, f.address, 6)
	flow, err := f.wallet.SyncPartial(ctx)
	require.NoError(t, err)
	require.Equal(t, Continue, flow)
	require.Equal(t, uint64(12), f.balance())
	state, _ = f.wallet.State()
	require.Equal(t, Pulling, state)

	flow, err = f.wallet.SyncPartial(ctx)
	require.NoError(t, err)
	require.Equal(t, Break, flow)
	require.Equal(t, uint64(18), f.balance())
	require.Equal(t, f.ledger.Root(), f.wallet.Root())

	require.True(t, f.wallet.Contains(shielded.NewAsset(testID, 18)))
	require.False(t, f.wallet.Contains(shielded.NewAsset(testID, 19)))
	require.Len(t, f.wallet.Assets(), 1)

	// A synchronized wallet pulls an empty terminal page.
	flow, err = f.wallet.SyncPartial(ctx)
	require.NoError(t, err)
	require.Equal(t, Break, flow)
	require.Equal(t, uint64(18), f.balance())
}

func TestSyncFromZeroWithSpendsAcrossPages(t *testing.T) {
	// Receivers come from the ledger one per page; senders are served from
	// their own list, one per page, so a spend can precede its receiver.
	var senders []shielded.Nullifier
	f := newFixture(t, nil, func(c ledger.Connection) ledger.Connection {
		s := &stub{Connection: c}
		s.pull = func(ctx context.Context, cp shielded.Checkpoint) (*raw.PullResponse, error) {
			resp, err := c.Pull(ctx, cp)
			if err != nil {
				return nil, err
			}
			more, data, err := raw.DecodePullResponse(*resp)
			if err != nil {
				return nil, err
			}
			data.NullifierData = nil
			if cp.SenderIndex < uint64(len(senders)) {
				data.NullifierData = senders[cp.SenderIndex : cp.SenderIndex+1]
				more = more || cp.SenderIndex+1 < uint64(len(senders))
			}
			out, err := raw.EncodePullResponse(more, data)
			if err != nil {
				return nil, err
			}
			return &out, nil
		}
		return s
	}, memledger.WithPageSize(1))

	a := f.deposit(t, f.address, 3)
	f.deposit(t, f.address, 4)
	c := f.deposit(t, f.address, 5)
	// Step 1 pulls receiver a with the spend of c, step 2 the second
	// receiver with the spend of a, step 3 receiver c alone.
	senders = []shielded.Nullifier{f.spend(t, c, 5), f.spend(t, a, 3)}

	delta, err := f.wallet.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(4), f.balance())
	require.Len(t, f.wallet.Assets(), 1)
	require.Equal(t, shielded.Checkpoint{ReceiverIndex: 3, SenderIndex: 2}, f.wallet.Checkpoint())
	require.Equal(t, f.ledger.Root(), f.wallet.Root())
	// c never shows up as a deposit; a does, then leaves again.
	require.Len(t, delta.Deposit, 2)
	require.Len(t, delta.Withdraw, 1)
	require.Equal(t, uint64(3), delta.Withdraw[0].Value.Uint64())

	steps := f.metrics.Get(metrics.SyncSteps, map[string]string{"network": "dolphin"})
	require.NotNil(t, steps)
	assert.Equal(t, float64(3), steps.Value)

	kinds := make(map[signer.HistoryKind]int)
	for _, e := range f.wallet.History() {
		kinds[e.Kind]++
	}
	require.Equal(t, map[signer.HistoryKind]int{signer.Received: 3, signer.Spent: 2}, kinds)

	// Restoring the snapshot keeps both spends.
	snapshot, err := f.wallet.Storage()
	require.NoError(t, err)
	require.NoError(t, f.wallet.ResetState())
	require.NoError(t, f.wallet.SetStorage(snapshot))
	require.Equal(t, uint64(4), f.balance())
	require.Equal(t, f.ledger.Root(), f.wallet.Root())
}

func TestSyncIgnoresForeignNotes(t *testing.T) {
	f := newFixture(t, nil, nil)
	other, err := keys.GenerateMnemonic(keys.DefaultMnemonicBits)
	require.NoError(t, err)
	address, err := keys.AddressFromMnemonic(other)
	require.NoError(t, err)

	f.deposit(t, address, 9)
	f.deposit(t, f.address, 2)
	delta, err := f.wallet.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, delta.Deposit, 1)
	require.Equal(t, uint64(2), f.balance())
	require.Equal(t, f.ledger.Root(), f.wallet.Root())
	require.Len(t, f.wallet.History(), 1)
}

func TestDecodeErrorLeavesStateUnchanged(t *testing.T) {
	var corrupt bool
	f := newFixture(t, nil, func(c ledger.Connection) ledger.Connection {
		s := &stub{Connection: c}
		s.pull = func(ctx context.Context, cp shielded.Checkpoint) (*raw.PullResponse, error) {
			resp, err := c.Pull(ctx, cp)
			if err == nil && corrupt && len(resp.Receivers) > 0 {
				for i := range resp.Receivers[0].Utxo.Commitment {
					resp.Receivers[0].Utxo.Commitment[i] = 0xff
				}
			}
			return resp, err
		}
		return s
	})
	ctx := context.Background()
	f.deposit(t, f.address, 1)
	_, err := f.wallet.Sync(ctx)
	require.NoError(t, err)

	f.deposit(t, f.address, 2)
	corrupt = true
	cp, root := f.wallet.Checkpoint(), f.wallet.Root()
	_, err = f.wallet.Sync(ctx)
	require.ErrorIs(t, err, raw.ErrDecode)
	require.Equal(t, cp, f.wallet.Checkpoint())
	require.Equal(t, root, f.wallet.Root())
	require.Equal(t, uint64(1), f.balance())
	state, last := f.wallet.State()
	require.Equal(t, Failed, state)
	require.ErrorIs(t, last, raw.ErrDecode)
	require.Equal(t, int64(1), f.metrics.Summary().Counters[metrics.Key(metrics.DecodeFailures, map[string]string{"network": "dolphin"})])

	corrupt = false
	_, err = f.wallet.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), f.balance())
}

func TestConnectionErrorIsClassified(t *testing.T) {
	f := newFixture(t, nil, func(c ledger.Connection) ledger.Connection {
		return &stub{Connection: c, pull: func(context.Context, shielded.Checkpoint) (*raw.PullResponse, error) {
			return nil, errors.New("connection refused")
		}}
	})
	_, err := f.wallet.Sync(context.Background())
	require.ErrorIs(t, err, ledger.ErrConnection)
	require.True(t, f.wallet.Checkpoint().IsZero())
}

func TestSyncStalls(t *testing.T) {
	calls := 0
	f := newFixture(t, nil, func(c ledger.Connection) ledger.Connection {
		return &stub{Connection: c, pull: func(context.Context, shielded.Checkpoint) (*raw.PullResponse, error) {
			calls++
			return &raw.PullResponse{ShouldContinue: true}, nil
		}}
	})
	_, err := f.wallet.Sync(context.Background())
	require.ErrorIs(t, err, ErrStalled)
	require.Equal(t, 3, calls)
	state, _ := f.wallet.State()
	require.Equal(t, Failed, state)
}

func TestSbtSyncKeepsRoot(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.deposit(t, f.address, 1)
	root := f.wallet.Root()

	_, err := f.wallet.SbtSync(context.Background())
	require.NoError(t, err)
	require.Equal(t, root, f.wallet.Root())
	require.Equal(t, uint64(1), f.wallet.Checkpoint().ReceiverIndex)
	require.Equal(t, uint64(1), f.balance())
}

func TestInitialSyncIsAllOrNothing(t *testing.T) {
	var fail bool
	f := newFixture(t, nil, func(c ledger.Connection) ledger.Connection {
		s := &stub{Connection: c}
		s.initialPull = func(ctx context.Context, cp shielded.Checkpoint) (*raw.InitialPullResponse, error) {
			if fail && cp.ReceiverIndex > 0 {
				return nil, errors.New("reset by peer")
			}
			return c.InitialPull(ctx, cp)
		}
		return s
	}, memledger.WithPageSize(1))
	ctx := context.Background()
	for v := uint64(1); v <= 3; v++ {
		f.deposit(t, f.address, v)
	}
	empty := f.wallet.Root()

	fail = true
	err := f.wallet.InitialSync(ctx)
	require.ErrorIs(t, err, ledger.ErrConnection)
	require.True(t, f.wallet.Checkpoint().IsZero())
	require.Equal(t, empty, f.wallet.Root())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	fail = false
	require.ErrorIs(t, f.wallet.InitialSync(cancelled), context.Canceled)
	require.True(t, f.wallet.Checkpoint().IsZero())

	require.NoError(t, f.wallet.InitialSync(ctx))
	require.Equal(t, f.ledger.Checkpoint(), f.wallet.Checkpoint())
	require.Equal(t, f.ledger.Root(), f.wallet.Root())
	// UTXOs loaded in bulk are not spendable by this wallet.
	require.Zero(t, f.balance())

	var ie *signer.InconsistencyError
	require.True(t, errors.As(f.wallet.InitialSync(ctx), &ie))
	require.Equal(t, signer.NotReset, ie.Kind)

	f.deposit(t, f.address, 6)
	_, err = f.wallet.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(6), f.balance())
	require.Equal(t, f.ledger.Root(), f.wallet.Root())
}

func TestRestart(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.deposit(t, f.address, 2)
	_, err := f.wallet.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), f.balance())

	require.NoError(t, f.wallet.Restart(ctx))
	require.Equal(t, f.ledger.Checkpoint(), f.wallet.Checkpoint())
	require.Equal(t, f.ledger.Root(), f.wallet.Root())
	require.Empty(t, f.wallet.Assets())
}

func TestStorageRebuildsBalance(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.deposit(t, f.address, 4)
	_, err := f.wallet.Sync(ctx)
	require.NoError(t, err)
	snapshot, err := f.wallet.Storage()
	require.NoError(t, err)

	require.NoError(t, f.wallet.ResetState())
	require.Zero(t, f.balance())
	require.True(t, f.wallet.Checkpoint().IsZero())

	require.NoError(t, f.wallet.SetStorage(snapshot))
	require.Equal(t, uint64(4), f.balance())
	require.Equal(t, f.ledger.Root(), f.wallet.Root())
	require.GreaterOrEqual(t, f.wallet.Prune(), 0)
}

func TestKeyForwarding(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, ok := f.wallet.AuthorizationContext()
	require.False(t, ok)
	require.True(t, f.wallet.TryLoadAuthorizationContext(f.auth))
	_, ok = f.wallet.AuthorizationContext()
	require.True(t, ok)

	f.wallet.DropAccounts()
	_, err := f.wallet.Address()
	require.Error(t, err)
	_, err = f.wallet.Sign(context.Background(), signer.NewToPrivate(shielded.NewAsset(testID, 1)), nil)
	require.True(t, signer.IsSignError(err, signer.MissingAuthorization))

	f.wallet.LoadAccounts(f.accounts)
	address, err := f.wallet.Address()
	require.NoError(t, err)
	require.True(t, address.Equal(&f.address))
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

func TestPost(t *testing.T) {
	proving := testProving(t)
	var reject bool
	f := newFixture(t, proving, func(c ledger.Connection) ledger.Connection {
		s := &stub{Connection: c}
		s.push = func(ctx context.Context, posts []raw.TransferPost) (ledger.Response, error) {
			if reject {
				return ledger.Reject(memledger.CodeUnknownRoot, "stale root"), nil
			}
			return c.Push(ctx, posts)
		}
		return s
	}, memledger.WithVerifier(proving.Verifying()))
	f.wallet.LoadAuthorizationContext(f.auth)
	ctx := context.Background()

	resp, err := f.wallet.Post(ctx, signer.NewToPrivate(shielded.NewAsset(testID, 5)), nil)
	require.NoError(t, err)
	require.True(t, resp.Accepted, resp.String())
	require.Zero(t, f.balance())
	_, err = f.wallet.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(5), f.balance())

	reject = true
	cp, root := f.wallet.Checkpoint(), f.wallet.Root()
	account := shielded.AccountID{3}
	resp, err = f.wallet.Post(ctx, signer.NewToPublic(shielded.NewAsset(testID, 2), account), nil)
	require.NoError(t, err)
	require.False(t, resp.Accepted)
	require.Equal(t, cp, f.wallet.Checkpoint())
	require.Equal(t, root, f.wallet.Root())
	require.Equal(t, uint64(5), f.balance())

	reject = false
	posts, data, err := f.wallet.SignWithTransactionData(ctx, signer.NewToPublic(shielded.NewAsset(testID, 2), account), nil)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Len(t, data, 1)
	require.Equal(t, zkp.ToPublic, data[0].Kind)

	resp, err = f.wallet.Post(ctx, signer.NewToPublic(shielded.NewAsset(testID, 2), account), nil)
	require.NoError(t, err)
	require.True(t, resp.Accepted, resp.String())
	_, err = f.wallet.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), f.balance())
	credit := f.ledger.Credit(account, testID)
	require.Equal(t, uint64(2), credit.Uint64())
}
