package httpledger

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/ledger"
	"github.com/hamzazf/shieldwallet/internal/ledger/memledger"
	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

func toPrivate(t *testing.T, to shielded.Address, value uint64) shielded.TransferPost {
	t.Helper()
	id := shielded.FieldFromUint64(1)
	asset := shielded.NewAsset(id, value)
	r, err := shielded.RandomField()
	require.NoError(t, err)
	e, err := shielded.RandomScalar()
	require.NoError(t, err)
	tag := to.SpendTag
	_, _, g1, g2 := bn254.Generators()
	return shielded.TransferPost{
		AssetID: &id,
		Sources: []uint256.Int{asset.Value},
		ReceiverPosts: []shielded.ReceiverPost{{
			Utxo: shielded.Utxo{Commitment: shielded.Commitment(&asset, &tag, &r)},
			Note: shielded.EncryptIncoming(&to, &r, &asset, e),
		}},
		Proof: shielded.Proof{Ar: g1, Bs: g2, Krs: g1},
	}
}

func TestClientServerRoundTrip(t *testing.T) {
	logger.Disable()
	backend, err := memledger.New(shielded.Parameters{Generator: shielded.Base(), AccumulatorHeight: 4}, memledger.WithPageSize(1))
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(backend))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()
	require.NoError(t, client.Health(ctx))

	m, err := keys.GenerateMnemonic(keys.DefaultMnemonicBits)
	require.NoError(t, err)
	address, err := keys.AddressFromMnemonic(m)
	require.NoError(t, err)

	posts := []shielded.TransferPost{toPrivate(t, address, 3), toPrivate(t, address, 4)}
	resp, err := ledger.Write(ctx, client, posts)
	require.NoError(t, err)
	require.True(t, resp.Accepted, resp.String())
	require.Equal(t, backend.Checkpoint(), shielded.Checkpoint{ReceiverIndex: 2})

	first, err := ledger.ReadSync(ctx, client, shielded.Checkpoint{})
	require.NoError(t, err)
	require.True(t, first.ShouldContinue)
	require.Len(t, first.Data.UtxoNoteData, 1)
	require.Equal(t, posts[0].ReceiverPosts[0].Utxo, first.Data.UtxoNoteData[0].Utxo)

	initial, err := ledger.ReadInitialSync(ctx, client, shielded.Checkpoint{ReceiverIndex: 1})
	require.NoError(t, err)
	require.False(t, initial.ShouldContinue)
	require.Len(t, initial.Data.UtxoData, 1)
	require.Len(t, initial.Data.MembershipProofData, 1)

	resp, err = ledger.Write(ctx, client, posts)
	require.NoError(t, err)
	require.False(t, resp.Accepted)
	require.Equal(t, memledger.CodeDuplicateCommitment, resp.Code)
}

type failing struct{}

func (failing) Pull(context.Context, shielded.Checkpoint) (*raw.PullResponse, error) {
	return nil, errors.New("database offline")
}

func (failing) InitialPull(context.Context, shielded.Checkpoint) (*raw.InitialPullResponse, error) {
	return nil, errors.New("database offline")
}

func (failing) Push(context.Context, []raw.TransferPost) (ledger.Response, error) {
	return ledger.Response{}, errors.New("database offline")
}

func TestErrorsAreConnectionErrors(t *testing.T) {
	logger.Disable()
	srv := httptest.NewServer(NewServer(failing{}))
	client := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	_, err := ledger.ReadSync(ctx, client, shielded.Checkpoint{})
	require.ErrorIs(t, err, ledger.ErrConnection)
	require.Contains(t, err.Error(), "database offline")

	_, err = ledger.Write(ctx, client, nil)
	require.ErrorIs(t, err, ledger.ErrConnection)

	srv.Close()
	_, err = client.Pull(ctx, shielded.Checkpoint{})
	require.ErrorIs(t, err, ledger.ErrConnection)
	require.Error(t, client.Health(ctx))
}

func TestServerRejectsBadEnvelopes(t *testing.T) {
	logger.Disable()
	srv := httptest.NewServer(NewServer(failing{}))
	defer srv.Close()

	for _, body := range []string{
		`not json`,
		`{"type":"gossip","payload":{}}`,
		`{"type":"pull","payload":"x"}`,
	} {
		resp, err := http.Post(srv.URL+"/message", "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}
