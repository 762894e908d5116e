// Package signer holds the secret side of a shielded wallet: the UTXO
// accumulator, the owned assets and their nullifiers, and the checkpoint of
// the last applied ledger data. It applies ledger data (Sync, SbtSync,
// InitialSync), builds and proves transfer posts (Sign) and exports its
// state as an opaque snapshot.
//
// A Signer is not safe for concurrent use; the wallet serializes access.
package signer

import (
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/hamzazf/shieldwallet/internal/accumulator"
	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/zkp"
)

const DefaultCacheSize = 4096

// ownedUtxo is an asset the signer can open and, when spendable, spend.
type ownedUtxo struct {
	LeafIndex  uint64
	Asset      shielded.Asset
	Randomness shielded.Field
	Commitment shielded.Field
	Nullifier  shielded.Field
	Spendable  bool
}

type state struct {
	checkpoint shielded.Checkpoint
	tree       *accumulator.Tree
	assets     map[uint64]*ownedUtxo
	spent      map[shielded.Field]struct{}
	// unmatched holds ledger nullifiers that no owned asset claimed yet.
	// Pages may deliver a nullifier before the receiver it spends.
	unmatched map[shielded.Field]struct{}
	history   []HistoryEntry
}

func newState(height int) (*state, error) {
	tree, err := accumulator.New(height)
	if err != nil {
		return nil, err
	}
	return &state{
		tree:   tree,
		assets:    make(map[uint64]*ownedUtxo),
		spent:     make(map[shielded.Field]struct{}),
		unmatched: make(map[shielded.Field]struct{}),
	}, nil
}

func (s *state) isReset() bool {
	return s.checkpoint.IsZero() && s.tree.Size() == 0 && len(s.assets) == 0 && len(s.spent) == 0 && len(s.unmatched) == 0
}

// byNullifier indexes owned assets by their nullifier commitment.
func (s *state) byNullifier() map[shielded.Field]*ownedUtxo {
	out := make(map[shielded.Field]*ownedUtxo, len(s.assets))
	for _, a := range s.assets {
		out[a.Nullifier] = a
	}
	return out
}

// Signer is the wallet's secret state machine.
type Signer struct {
	params  shielded.Parameters
	proving *zkp.MultiProvingContext

	accounts *keys.AccountTable
	auth     *keys.AuthorizationContext

	state *state
	cache *lru.Cache
	log   zerolog.Logger
}

// Option configures a Signer.
type Option func(*Signer)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Signer) { s.log = l }
}

// WithAccounts loads an account table at construction.
func WithAccounts(a *keys.AccountTable) Option {
	return func(s *Signer) { s.accounts = a }
}

// New returns a signer in the reset state. The proving context may be nil,
// in which case signing fails with ProofSystemError.
func New(params shielded.Parameters, proving *zkp.MultiProvingContext, opts ...Option) (*Signer, error) {
	st, err := newState(params.AccumulatorHeight)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Signer{
		params:  params,
		proving: proving,
		state:   st,
		cache:   cache,
		log:     logger.Logger().With().Str("component", "signer").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Parameters returns the public parameters.
func (s *Signer) Parameters() shielded.Parameters { return s.params }

// LoadAccounts replaces the account table. Cached trial decryptions are
// dropped since ownership depends on the keys.
func (s *Signer) LoadAccounts(a *keys.AccountTable) {
	s.accounts = a
	s.cache.Purge()
}

// DropAccounts unloads the account table and the authorization context.
func (s *Signer) DropAccounts() {
	s.accounts = nil
	s.auth = nil
	s.cache.Purge()
}

// Accounts returns the loaded account table.
func (s *Signer) Accounts() (*keys.AccountTable, bool) {
	return s.accounts, s.accounts != nil
}

// LoadAuthorizationContext installs the key signing posts.
func (s *Signer) LoadAuthorizationContext(c *keys.AuthorizationContext) {
	s.auth = c
}

// TryLoadAuthorizationContext installs c only when it belongs to the loaded
// account table.
func (s *Signer) TryLoadAuthorizationContext(c *keys.AuthorizationContext) bool {
	if s.accounts == nil || c == nil || !s.accounts.Matches(c) {
		return false
	}
	s.auth = c
	return true
}

// DropAuthorizationContext unloads the authorization context.
func (s *Signer) DropAuthorizationContext() { s.auth = nil }

// AuthorizationContext returns the loaded authorization context.
func (s *Signer) AuthorizationContext() (*keys.AuthorizationContext, bool) {
	return s.auth, s.auth != nil
}

// Address returns the receiving address of the loaded account.
func (s *Signer) Address() (shielded.Address, error) {
	if s.accounts == nil {
		return shielded.Address{}, ErrAccountsNotLoaded
	}
	return s.accounts.Address(), nil
}

// Checkpoint returns the checkpoint of the last applied data.
func (s *Signer) Checkpoint() shielded.Checkpoint { return s.state.checkpoint }

// Root returns the accumulator root.
func (s *Signer) Root() shielded.Field { return s.state.tree.Root() }

// History returns the received and spent entries in application order.
func (s *Signer) History() []HistoryEntry {
	return append([]HistoryEntry(nil), s.state.history...)
}

// Assets returns the owned balance per asset id, sorted by id.
func (s *Signer) Assets() []shielded.Asset {
	totals := make(map[shielded.Field]*uint256.Int)
	for _, a := range s.state.assets {
		t, ok := totals[a.Asset.ID]
		if !ok {
			t = new(uint256.Int)
			totals[a.Asset.ID] = t
		}
		t.Add(t, &a.Asset.Value)
	}
	out := make([]shielded.Asset, 0, len(totals))
	for id, v := range totals {
		out = append(out, shielded.Asset{ID: id, Value: *v})
	}
	sortAssets(out)
	return out
}

func sortAssets(assets []shielded.Asset) {
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID.Cmp(&assets[j].ID) < 0 })
}

// Prune drops accumulator data not needed by owned assets or future
// inserts. It does not change any later sign or sync result.
func (s *Signer) Prune() int {
	removed := s.state.tree.Prune()
	s.log.Debug().Int("removed", removed).Int("kept", s.state.tree.NodeCount()).Msg("accumulator pruned")
	return removed
}

// ResetState drops all ledger-derived state. Keys stay loaded.
func (s *Signer) ResetState() error {
	st, err := newState(s.params.AccumulatorHeight)
	if err != nil {
		return err
	}
	s.state = st
	s.cache.Purge()
	return nil
}
