// Package registry holds one wallet per supported network and forwards
// wallet operations by network.
//
// The registry lock guards the slot table only. Operations on a wallet are
// serialized by the wallet itself, so different networks run in parallel.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/ledger"
	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/signer"
	"github.com/hamzazf/shieldwallet/internal/wallet"
)

// ErrNoWalletForNetwork matches every *NoWalletForNetworkError.
var ErrNoWalletForNetwork = errors.New("registry: no wallet for network")

// NoWalletForNetworkError reports an operation on an empty slot.
type NoWalletForNetworkError struct {
	Network Network
}

func (e *NoWalletForNetworkError) Error() string {
	return fmt.Sprintf("registry: no wallet for network %s", e.Network)
}

func (e *NoWalletForNetworkError) Is(target error) bool { return target == ErrNoWalletForNetwork }

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	slots [NumberOfNetworks]*wallet.Wallet
	log   zerolog.Logger
}

// New returns an empty registry.
func New(log ...zerolog.Logger) *Registry {
	r := &Registry{log: logger.Logger()}
	if len(log) > 0 {
		r.log = log[0]
	}
	r.log = r.log.With().Str("component", "registry").Logger()
	return r
}

// SetNetwork installs w in the slot of n, replacing any previous wallet
// without merging its state.
func (r *Registry) SetNetwork(n Network, w *wallet.Wallet) error {
	if !n.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownNetwork, uint8(n))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := r.slots[n] != nil
	r.slots[n] = w
	r.log.Info().Str("network", n.String()).Bool("replaced", replaced).Msg("wallet set")
	return nil
}

// Wallet returns the wallet of n.
func (r *Registry) Wallet(n Network) (*wallet.Wallet, error) {
	if !n.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNetwork, uint8(n))
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	w := r.slots[n]
	if w == nil {
		return nil, &NoWalletForNetworkError{Network: n}
	}
	return w, nil
}

// Populated lists the networks holding a wallet.
func (r *Registry) Populated() []Network {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Network
	for i, w := range r.slots {
		if w != nil {
			out = append(out, Network(i))
		}
	}
	return out
}

// SyncAll synchronizes every populated slot concurrently. The first error
// cancels the others at their next step boundary.
func (r *Registry) SyncAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, n := range r.Populated() {
		n := n
		g.Go(func() error {
			w, err := r.Wallet(n)
			if err != nil {
				return err
			}
			if _, err := w.Sync(ctx); err != nil {
				return fmt.Errorf("%s: %w", n, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ---- forwarded wallet operations ----

func (r *Registry) LoadAuthorizationContext(n Network, c *keys.AuthorizationContext) error {
	w, err := r.Wallet(n)
	if err != nil {
		return err
	}
	w.LoadAuthorizationContext(c)
	return nil
}

func (r *Registry) TryLoadAuthorizationContext(n Network, c *keys.AuthorizationContext) (bool, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return false, err
	}
	return w.TryLoadAuthorizationContext(c), nil
}

func (r *Registry) DropAuthorizationContext(n Network) error {
	w, err := r.Wallet(n)
	if err != nil {
		return err
	}
	w.DropAuthorizationContext()
	return nil
}

func (r *Registry) AuthorizationContext(n Network) (*keys.AuthorizationContext, bool, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return nil, false, err
	}
	c, ok := w.AuthorizationContext()
	return c, ok, nil
}

func (r *Registry) LoadAccounts(n Network, a *keys.AccountTable) error {
	w, err := r.Wallet(n)
	if err != nil {
		return err
	}
	w.LoadAccounts(a)
	return nil
}

func (r *Registry) DropAccounts(n Network) error {
	w, err := r.Wallet(n)
	if err != nil {
		return err
	}
	w.DropAccounts()
	return nil
}

func (r *Registry) Storage(n Network) ([]byte, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return nil, err
	}
	return w.Storage()
}

func (r *Registry) SetStorage(n Network, b []byte) error {
	w, err := r.Wallet(n)
	if err != nil {
		return err
	}
	return w.SetStorage(b)
}

func (r *Registry) Sync(ctx context.Context, n Network) (signer.BalanceUpdate, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return signer.BalanceUpdate{}, err
	}
	return w.Sync(ctx)
}

func (r *Registry) SbtSync(ctx context.Context, n Network) (signer.BalanceUpdate, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return signer.BalanceUpdate{}, err
	}
	return w.SbtSync(ctx)
}

func (r *Registry) SyncPartial(ctx context.Context, n Network) (wallet.ControlFlow, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return wallet.Break, err
	}
	return w.SyncPartial(ctx)
}

func (r *Registry) SbtSyncPartial(ctx context.Context, n Network) (wallet.ControlFlow, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return wallet.Break, err
	}
	return w.SbtSyncPartial(ctx)
}

func (r *Registry) InitialSync(ctx context.Context, n Network) error {
	w, err := r.Wallet(n)
	if err != nil {
		return err
	}
	return w.InitialSync(ctx)
}

func (r *Registry) Restart(ctx context.Context, n Network) error {
	w, err := r.Wallet(n)
	if err != nil {
		return err
	}
	return w.Restart(ctx)
}

func (r *Registry) Sign(ctx context.Context, n Network, tx signer.Transaction, meta *signer.AssetMetadata) ([]shielded.TransferPost, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return nil, err
	}
	return w.Sign(ctx, tx, meta)
}

func (r *Registry) SignWithTransactionData(ctx context.Context, n Network, tx signer.Transaction, meta *signer.AssetMetadata) ([]shielded.TransferPost, []signer.TransactionData, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return nil, nil, err
	}
	return w.SignWithTransactionData(ctx, tx, meta)
}

func (r *Registry) Post(ctx context.Context, n Network, tx signer.Transaction, meta *signer.AssetMetadata) (ledger.Response, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return ledger.Response{}, err
	}
	return w.Post(ctx, tx, meta)
}

func (r *Registry) Address(n Network) (shielded.Address, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return shielded.Address{}, err
	}
	return w.Address()
}

// Balance fails on an empty slot rather than reporting zero.
func (r *Registry) Balance(n Network, id shielded.Field) (uint256.Int, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return uint256.Int{}, err
	}
	return w.Balance(id), nil
}

func (r *Registry) Contains(n Network, asset shielded.Asset) (bool, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return false, err
	}
	return w.Contains(asset), nil
}

func (r *Registry) Assets(n Network) ([]shielded.Asset, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return nil, err
	}
	return w.Assets(), nil
}

func (r *Registry) Checkpoint(n Network) (shielded.Checkpoint, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return shielded.Checkpoint{}, err
	}
	return w.Checkpoint(), nil
}

func (r *Registry) TransactionData(n Network, posts []shielded.TransferPost) ([]signer.TransactionData, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return nil, err
	}
	return w.TransactionData(posts)
}

func (r *Registry) IdentityProof(n Network, reqs []signer.IdentityRequest) ([]signer.IdentityProof, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return nil, err
	}
	return w.IdentityProof(reqs)
}

func (r *Registry) Prune(n Network) (int, error) {
	w, err := r.Wallet(n)
	if err != nil {
		return 0, err
	}
	return w.Prune(), nil
}

func (r *Registry) ResetState(n Network) error {
	w, err := r.Wallet(n)
	if err != nil {
		return err
	}
	return w.ResetState()
}
