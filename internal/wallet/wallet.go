// Package wallet couples a signer with a ledger connection. It drives the
// checkpoint-based synchronization loop, keeps the balance map in step with
// the signer, and signs and posts transactions.
//
// Every operation on a Wallet holds its mutex: calls are serialized, and a
// sync call runs all of its steps without interleaving other operations.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/ledger"
	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/metrics"
	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/signer"
)

// DefaultMaxStalledSteps bounds consecutive steps that promise more data
// without advancing the checkpoint.
const DefaultMaxStalledSteps = 16

// ErrStalled is returned when the ledger keeps answering ShouldContinue
// without the checkpoint moving.
var ErrStalled = errors.New("wallet: synchronization stalled")

// ControlFlow tells the caller of a partial sync whether to keep going.
type ControlFlow int

const (
	Continue ControlFlow = iota
	Break
)

func (c ControlFlow) String() string {
	if c == Break {
		return "break"
	}
	return "continue"
}

// State is the position of the sync state machine.
type State int

const (
	Idle State = iota
	Pulling
	Applying
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pulling:
		return "pulling"
	case Applying:
		return "applying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Wallet is safe for concurrent use.
type Wallet struct {
	mu sync.Mutex

	network    string
	signer     *signer.Signer
	conn       ledger.Connection
	balance    map[shielded.Field]*uint256.Int
	state      State
	lastErr    error
	maxStalled int
	metrics    *metrics.Collector
	log        zerolog.Logger
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithNetwork names the wallet's network in logs and metrics.
func WithNetwork(name string) Option {
	return func(w *Wallet) { w.network = name }
}

// WithMetrics records sync and post metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(w *Wallet) { w.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Wallet) { w.log = l }
}

// WithMaxStalledSteps sets the stall bound of sync loops.
func WithMaxStalledSteps(n int) Option {
	return func(w *Wallet) {
		if n > 0 {
			w.maxStalled = n
		}
	}
}

// New returns a wallet over s and conn. The balance map starts from the
// signer's owned assets.
func New(s *signer.Signer, conn ledger.Connection, opts ...Option) *Wallet {
	w := &Wallet{
		network:    "default",
		signer:     s,
		conn:       conn,
		maxStalled: DefaultMaxStalledSteps,
		log:        logger.Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With().Str("network", w.network).Logger()
	w.resetBalance()
	return w
}

// Network returns the network name.
func (w *Wallet) Network() string { return w.network }

// Connection returns the ledger connection.
func (w *Wallet) Connection() ledger.Connection { return w.conn }

// State returns the sync state and the error of a failed state.
func (w *Wallet) State() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.lastErr
}

func (w *Wallet) fail(err error) error {
	w.state = Failed
	w.lastErr = err
	switch {
	case errors.Is(err, raw.ErrDecode):
		w.metrics.RecordFailure(w.network, metrics.DecodeFailures)
	case errors.Is(err, ledger.ErrConnection):
		w.metrics.RecordFailure(w.network, metrics.ConnectionFailures)
	case errors.Is(err, signer.ErrInconsistency):
		w.metrics.RecordFailure(w.network, metrics.Inconsistencies)
	}
	w.log.Warn().Err(err).Str("checkpoint", w.signer.Checkpoint().String()).Msg("sync failed")
	return err
}

// SyncPartial runs one sync step: pull at the signer checkpoint, decode,
// apply. It returns Break once the ledger reports no more data.
func (w *Wallet) SyncPartial(ctx context.Context) (ControlFlow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	flow, _, err := w.step(ctx, false)
	return flow, err
}

// SbtSyncPartial is SyncPartial for a soul-bound asset network.
func (w *Wallet) SbtSyncPartial(ctx context.Context) (ControlFlow, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	flow, _, err := w.step(ctx, true)
	return flow, err
}

// step applies one pull. The signer validates the whole response before
// mutating, and the balance map follows only a committed step.
func (w *Wallet) step(ctx context.Context, sbt bool) (ControlFlow, *signer.SyncResponse, error) {
	if err := ctx.Err(); err != nil {
		return Break, nil, err
	}
	w.state = Pulling
	w.lastErr = nil
	origin := w.signer.Checkpoint()
	read, err := ledger.ReadSync(ctx, w.conn, origin)
	if err != nil {
		return Break, nil, w.fail(err)
	}

	w.state = Applying
	var resp signer.SyncResponse
	if sbt {
		resp, err = w.signer.SbtSync(origin, read.Data)
	} else {
		resp, err = w.signer.Sync(origin, read.Data)
	}
	if err != nil {
		return Break, nil, w.fail(err)
	}
	if err := shielded.ValidateProgress(origin, resp.Checkpoint); err != nil {
		return Break, nil, w.fail(&signer.InconsistencyError{Kind: signer.CheckpointRegression, Checkpoint: origin, Detail: err.Error()})
	}
	w.applyBalance(&resp.Balance)
	w.metrics.RecordSyncStep(w.network, resp.Checkpoint.ReceiverIndex)
	w.log.Debug().
		Str("checkpoint", resp.Checkpoint.String()).
		Int("receivers", len(read.Data.UtxoNoteData)).
		Int("nullifiers", len(read.Data.NullifierData)).
		Bool("continue", read.ShouldContinue).
		Msg("sync step applied")

	if !read.ShouldContinue {
		w.state = Done
		return Break, &resp, nil
	}
	w.state = Pulling
	return Continue, &resp, nil
}

// loop runs steps until Break and returns the combined balance delta of
// every applied step.
func (w *Wallet) loop(ctx context.Context, sbt bool) (signer.BalanceUpdate, error) {
	var total signer.BalanceUpdate
	start := time.Now()
	stalled := 0
	for {
		origin := w.signer.Checkpoint()
		flow, resp, err := w.step(ctx, sbt)
		if err != nil {
			return total, err
		}
		total.Deposit = append(total.Deposit, resp.Balance.Deposit...)
		total.Withdraw = append(total.Withdraw, resp.Balance.Withdraw...)
		if flow == Break {
			break
		}
		if !resp.Checkpoint.Equal(origin) {
			stalled = 0
			continue
		}
		stalled++
		if stalled >= w.maxStalled {
			return total, w.fail(fmt.Errorf("%w after %d steps at %s", ErrStalled, stalled, origin))
		}
	}
	w.metrics.RecordSync(w.network, time.Since(start))
	w.log.Info().Str("checkpoint", w.signer.Checkpoint().String()).Dur("took", time.Since(start)).Bool("sbt", sbt).Msg("synchronized")
	return total, nil
}

// Sync pulls and applies until the ledger reports no more data and returns
// the combined balance delta. Steps applied before an error stay applied and
// are included in the returned delta.
func (w *Wallet) Sync(ctx context.Context) (signer.BalanceUpdate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loop(ctx, false)
}

// SbtSync is Sync for a soul-bound asset network: the accumulator is never
// touched.
func (w *Wallet) SbtSync(ctx context.Context) (signer.BalanceUpdate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loop(ctx, true)
}

// InitialSync fetches every initial pull before applying anything, then
// loads the accumulated data in one signer call. The signer must be reset.
func (w *Wallet) InitialSync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.initialSync(ctx)
}

func (w *Wallet) initialSync(ctx context.Context) error {
	var data shielded.InitialSyncData
	cursor := shielded.Checkpoint{}
	stalled := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.state = Pulling
		w.lastErr = nil
		read, err := ledger.ReadInitialSync(ctx, w.conn, cursor)
		if err != nil {
			return w.fail(err)
		}
		data.Extend(read.Data)
		if !read.ShouldContinue {
			break
		}
		if len(read.Data.UtxoData) == 0 {
			stalled++
			if stalled >= w.maxStalled {
				return w.fail(fmt.Errorf("%w after %d initial pulls", ErrStalled, stalled))
			}
		} else {
			stalled = 0
		}
		cursor = shielded.Checkpoint{ReceiverIndex: uint64(len(data.UtxoData))}
	}

	w.state = Applying
	resp, err := w.signer.InitialSync(data)
	if err != nil {
		return w.fail(err)
	}
	w.applyBalance(&resp.Balance)
	w.state = Done
	w.log.Info().Str("checkpoint", resp.Checkpoint.String()).Int("utxos", len(data.UtxoData)).Msg("initial synchronization done")
	return nil
}

// Restart resets the signer, runs an initial synchronization and then an
// incremental one.
func (w *Wallet) Restart(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.resetState(); err != nil {
		return err
	}
	if err := w.initialSync(ctx); err != nil {
		return err
	}
	_, err := w.loop(ctx, false)
	return err
}

// Sign builds proven posts for tx. It does not touch the checkpoint.
func (w *Wallet) Sign(ctx context.Context, tx signer.Transaction, meta *signer.AssetMetadata) ([]shielded.TransferPost, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sign(ctx, tx, meta)
}

func (w *Wallet) sign(ctx context.Context, tx signer.Transaction, meta *signer.AssetMetadata) ([]shielded.TransferPost, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	posts, err := w.signer.Sign(tx, meta)
	if err != nil {
		return nil, err
	}
	w.metrics.RecordProofGeneration(w.network, time.Since(start))
	return posts, nil
}

// SignWithTransactionData signs tx and describes every resulting post.
func (w *Wallet) SignWithTransactionData(ctx context.Context, tx signer.Transaction, meta *signer.AssetMetadata) ([]shielded.TransferPost, []signer.TransactionData, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	posts, err := w.sign(ctx, tx, meta)
	if err != nil {
		return nil, nil, err
	}
	data, err := w.signer.BatchedTransactionData(posts)
	if err != nil {
		return nil, nil, err
	}
	return posts, data, nil
}

// Post synchronizes, signs tx and pushes the posts. A rejection is returned
// as a Response; the signer keeps no reservation, so the call may be
// repeated.
func (w *Wallet) Post(ctx context.Context, tx signer.Transaction, meta *signer.AssetMetadata) (ledger.Response, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.loop(ctx, false); err != nil {
		return ledger.Response{}, err
	}
	posts, err := w.sign(ctx, tx, meta)
	if err != nil {
		return ledger.Response{}, err
	}
	resp, err := ledger.Write(ctx, w.conn, posts)
	if err != nil {
		return ledger.Response{}, err
	}
	w.metrics.RecordPost(w.network, resp.Accepted)
	if resp.Accepted {
		w.log.Info().Str("kind", tx.Kind.String()).Int("posts", len(posts)).Str("receipt", resp.Receipt).Msg("posted")
	} else {
		w.log.Warn().Str("kind", tx.Kind.String()).Str("code", resp.Code).Str("reason", resp.Reason).Msg("post rejected")
	}
	return resp, nil
}

// ---- balance map ----

func (w *Wallet) resetBalance() {
	w.balance = make(map[shielded.Field]*uint256.Int)
	for _, a := range w.signer.Assets() {
		v := a.Value
		w.balance[a.ID] = &v
	}
}

func (w *Wallet) applyBalance(u *signer.BalanceUpdate) {
	if u.Full {
		w.resetBalance()
		return
	}
	for _, a := range u.Deposit {
		v, ok := w.balance[a.ID]
		if !ok {
			v = new(uint256.Int)
			w.balance[a.ID] = v
		}
		v.Add(v, &a.Value)
	}
	for _, a := range u.Withdraw {
		v, ok := w.balance[a.ID]
		if !ok {
			continue
		}
		if _, underflow := v.SubOverflow(v, &a.Value); underflow || v.IsZero() {
			delete(w.balance, a.ID)
		}
	}
}

// Balance returns the owned value of an asset id.
func (w *Wallet) Balance(id shielded.Field) uint256.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, ok := w.balance[id]; ok {
		return *v
	}
	return uint256.Int{}
}

// Contains reports whether the wallet owns at least asset.Value of its id.
func (w *Wallet) Contains(asset shielded.Asset) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.balance[asset.ID]
	if !ok {
		return asset.Value.IsZero()
	}
	return !v.Lt(&asset.Value)
}

// Assets returns the balance map as assets sorted by id.
func (w *Wallet) Assets() []shielded.Asset {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]shielded.Asset, 0, len(w.balance))
	for id, v := range w.balance {
		out = append(out, shielded.Asset{ID: id, Value: *v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Cmp(&out[j].ID) < 0 })
	return out
}

// Checkpoint returns the signer checkpoint.
func (w *Wallet) Checkpoint() shielded.Checkpoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.Checkpoint()
}

// Root returns the signer accumulator root.
func (w *Wallet) Root() shielded.Field {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.Root()
}

// Address returns the receiving address.
func (w *Wallet) Address() (shielded.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.Address()
}

// History returns the received and spent entries.
func (w *Wallet) History() []signer.HistoryEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.History()
}

// TransactionData describes posts from this wallet's point of view.
func (w *Wallet) TransactionData(posts []shielded.TransferPost) ([]signer.TransactionData, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.BatchedTransactionData(posts)
}

// IdentityProof proves ownership of soul-bound assets.
func (w *Wallet) IdentityProof(reqs []signer.IdentityRequest) ([]signer.IdentityProof, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.BatchedIdentityProof(reqs)
}

// Prune drops accumulator data no longer needed.
func (w *Wallet) Prune() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.Prune()
}

// ResetState drops all ledger-derived state.
func (w *Wallet) ResetState() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resetState()
}

func (w *Wallet) resetState() error {
	if err := w.signer.ResetState(); err != nil {
		return err
	}
	w.resetBalance()
	w.state = Idle
	w.lastErr = nil
	return nil
}

// ---- keys ----

// LoadAuthorizationContext installs c.
func (w *Wallet) LoadAuthorizationContext(c *keys.AuthorizationContext) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signer.LoadAuthorizationContext(c)
}

// TryLoadAuthorizationContext installs c if it matches the loaded accounts.
func (w *Wallet) TryLoadAuthorizationContext(c *keys.AuthorizationContext) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.TryLoadAuthorizationContext(c)
}

// DropAuthorizationContext unloads the authorization context.
func (w *Wallet) DropAuthorizationContext() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signer.DropAuthorizationContext()
}

// AuthorizationContext returns the loaded authorization context.
func (w *Wallet) AuthorizationContext() (*keys.AuthorizationContext, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.AuthorizationContext()
}

// LoadAccounts installs an account table.
func (w *Wallet) LoadAccounts(a *keys.AccountTable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signer.LoadAccounts(a)
}

// DropAccounts unloads the account table and authorization context.
func (w *Wallet) DropAccounts() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signer.DropAccounts()
}

// ---- storage ----

// Storage exports the signer state snapshot.
func (w *Wallet) Storage() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.signer.Storage()
}

// SetStorage restores a snapshot and rebuilds the balance map from it.
func (w *Wallet) SetStorage(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.signer.SetStorage(b); err != nil {
		return err
	}
	w.resetBalance()
	w.state = Idle
	w.lastErr = nil
	return nil
}
