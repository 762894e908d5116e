// ledger.go - In-memory append-only shielded ledger.
//
// The ledger records receivers (UTXO and incoming note) and nullifiers in
// arrival order, keeps its own MiMC accumulator so its roots match the
// wallets', and rejects posts that double-spend, reuse a commitment, spend
// against an unknown root or fail proof or authorization checks. A batch of
// posts is applied all-or-nothing, in order, so a post may spend against the
// root produced by an earlier post of the same batch.

package memledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/hamzazf/shieldwallet/internal/accumulator"
	"github.com/hamzazf/shieldwallet/internal/keys"
	"github.com/hamzazf/shieldwallet/internal/ledger"
	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/zkp"
)

// DefaultPageSize bounds the receivers and nullifiers of one pull.
const DefaultPageSize = 128

// Rejection codes.
const (
	CodeMalformed            = "malformed"
	CodeInvalidShape         = "invalid_shape"
	CodeInvalidProof         = "invalid_proof"
	CodeInvalidAuthorization = "invalid_authorization"
	CodeUnknownRoot          = "unknown_root"
	CodeDoubleSpend          = "double_spend"
	CodeDuplicateCommitment  = "duplicate_commitment"
	CodeAccumulatorFull      = "accumulator_full"
)

// Ledger is safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	params   shielded.Parameters
	verifier *zkp.MultiVerifyingContext
	pageSize int
	log      zerolog.Logger

	receivers   []shielded.UtxoNote
	nullifiers  []shielded.Nullifier
	tree        *accumulator.Tree
	roots       map[shielded.Field]struct{}
	spent       map[shielded.Field]struct{}
	commitments map[shielded.Field]struct{}
	credits     map[shielded.AccountID]map[shielded.Field]*uint256.Int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithVerifier makes the ledger verify every post proof.
func WithVerifier(v *zkp.MultiVerifyingContext) Option {
	return func(l *Ledger) { l.verifier = v }
}

// WithPageSize sets the page size of pulls.
func WithPageSize(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New returns an empty ledger.
func New(params shielded.Parameters, opts ...Option) (*Ledger, error) {
	tree, err := accumulator.New(params.AccumulatorHeight)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		params:      params,
		pageSize:    DefaultPageSize,
		log:         logger.Logger().With().Str("component", "memledger").Logger(),
		tree:        tree,
		roots:       map[shielded.Field]struct{}{tree.Root(): {}},
		spent:       make(map[shielded.Field]struct{}),
		commitments: make(map[shielded.Field]struct{}),
		credits:     make(map[shielded.AccountID]map[shielded.Field]*uint256.Int),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.verifier != nil && l.verifier.Height() != params.AccumulatorHeight {
		return nil, fmt.Errorf("memledger: verifier height %d, accumulator height %d", l.verifier.Height(), params.AccumulatorHeight)
	}
	return l, nil
}

// Parameters returns the public parameters of the ledger.
func (l *Ledger) Parameters() shielded.Parameters { return l.params }

// Checkpoint returns the number of receivers and nullifiers recorded.
func (l *Ledger) Checkpoint() shielded.Checkpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return shielded.Checkpoint{ReceiverIndex: uint64(len(l.receivers)), SenderIndex: uint64(len(l.nullifiers))}
}

// Root returns the current accumulator root.
func (l *Ledger) Root() shielded.Field {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tree.Root()
}

// Credit returns the public value sunk to account for an asset id.
func (l *Ledger) Credit(account shielded.AccountID, id shielded.Field) uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.credits[account][id]; ok {
		return *v
	}
	return uint256.Int{}
}

func page(from uint64, total, size int) (int, int) {
	if from > uint64(total) {
		return total, total
	}
	start := int(from)
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}

// Pull implements ledger.Connection.
func (l *Ledger) Pull(ctx context.Context, checkpoint shielded.Checkpoint) (*raw.PullResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	rs, re := page(checkpoint.ReceiverIndex, len(l.receivers), l.pageSize)
	ns, ne := page(checkpoint.SenderIndex, len(l.nullifiers), l.pageSize)
	data := shielded.SyncData{
		UtxoNoteData:  append([]shielded.UtxoNote(nil), l.receivers[rs:re]...),
		NullifierData: append([]shielded.Nullifier(nil), l.nullifiers[ns:ne]...),
	}
	more := re < len(l.receivers) || ne < len(l.nullifiers)
	l.mu.Unlock()

	resp, err := raw.EncodePullResponse(more, data)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// InitialPull implements ledger.Connection. UTXOs are paged; the terminal
// response carries the current path of the latest leaf, which checks the
// whole rebuilt accumulator.
func (l *Ledger) InitialPull(ctx context.Context, checkpoint shielded.Checkpoint) (*raw.InitialPullResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	start, end := page(checkpoint.ReceiverIndex, len(l.receivers), l.pageSize)
	data := shielded.InitialSyncData{
		UtxoData:       make([]shielded.Utxo, 0, end-start),
		NullifierCount: uint64(len(l.nullifiers)),
	}
	for _, r := range l.receivers[start:end] {
		data.UtxoData = append(data.UtxoData, r.Utxo)
	}
	more := end < len(l.receivers)
	if !more && l.tree.Size() > 0 {
		path, err := l.tree.Path(l.tree.Size() - 1)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		data.MembershipProofData = []shielded.CurrentPath{path}
	}
	l.mu.Unlock()

	resp, err := raw.EncodeInitialPullResponse(more, data)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push implements ledger.Connection.
func (l *Ledger) Push(ctx context.Context, posts []raw.TransferPost) (ledger.Response, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Response{}, err
	}
	decoded, err := raw.DecodeTransferPosts(posts)
	if err != nil {
		return ledger.Reject(CodeMalformed, "%v", err), nil
	}
	return l.Submit(decoded), nil
}

// staged is a batch being validated on top of the committed state.
type staged struct {
	base        *Ledger
	tree        *accumulator.Tree
	roots       map[shielded.Field]struct{}
	spent       map[shielded.Field]struct{}
	commitments map[shielded.Field]struct{}
	receivers   []shielded.UtxoNote
	nullifiers  []shielded.Nullifier
	credits     []credit
}

type credit struct {
	account shielded.AccountID
	id      shielded.Field
	value   uint256.Int
}

func (l *Ledger) credit(c credit) {
	m, ok := l.credits[c.account]
	if !ok {
		m = make(map[shielded.Field]*uint256.Int)
		l.credits[c.account] = m
	}
	v, ok := m[c.id]
	if !ok {
		v = new(uint256.Int)
		m[c.id] = v
	}
	v.Add(v, &c.value)
}

func (s *staged) has(m map[shielded.Field]struct{}, base map[shielded.Field]struct{}, f shielded.Field) bool {
	if _, ok := base[f]; ok {
		return true
	}
	_, ok := m[f]
	return ok
}

// Submit validates and applies typed posts as one batch.
func (l *Ledger) Submit(posts []shielded.TransferPost) ledger.Response {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &staged{
		base:        l,
		tree:        l.tree.Clone(),
		roots:       make(map[shielded.Field]struct{}),
		spent:       make(map[shielded.Field]struct{}),
		commitments: make(map[shielded.Field]struct{}),
	}
	for i := range posts {
		if resp, ok := s.apply(&posts[i]); !ok {
			resp.Reason = fmt.Sprintf("post %d: %s", i, resp.Reason)
			l.log.Warn().Str("code", resp.Code).Str("reason", resp.Reason).Msg("batch rejected")
			return resp
		}
	}

	l.tree = s.tree
	l.receivers = append(l.receivers, s.receivers...)
	l.nullifiers = append(l.nullifiers, s.nullifiers...)
	for f := range s.roots {
		l.roots[f] = struct{}{}
	}
	for f := range s.spent {
		l.spent[f] = struct{}{}
	}
	for f := range s.commitments {
		l.commitments[f] = struct{}{}
	}
	for _, c := range s.credits {
		l.credit(c)
	}
	receipt := uuid.NewString()
	l.log.Info().
		Str("receipt", receipt).
		Int("posts", len(posts)).
		Int("receivers", len(s.receivers)).
		Int("nullifiers", len(s.nullifiers)).
		Msg("batch accepted")
	return ledger.Accept(receipt)
}

func (s *staged) apply(post *shielded.TransferPost) (ledger.Response, bool) {
	l := s.base
	kind, err := zkp.KindOf(post)
	if err != nil {
		return ledger.Reject(CodeInvalidShape, "%v", err), false
	}
	if len(post.SinkAccounts) != len(post.Sinks) {
		return ledger.Reject(CodeInvalidShape, "%d sinks, %d sink accounts", len(post.Sinks), len(post.SinkAccounts)), false
	}
	if l.verifier != nil {
		if err := l.verifier.Verify(post); err != nil {
			return ledger.Reject(CodeInvalidProof, "%s: %v", kind, err), false
		}
	}
	if !keys.VerifyPost(post) {
		return ledger.Reject(CodeInvalidAuthorization, "%s: authorization signature does not verify", kind), false
	}
	for i := range post.SenderPosts {
		sp := &post.SenderPosts[i]
		if !s.has(s.roots, l.roots, sp.UtxoAccumulatorOutput) {
			return ledger.Reject(CodeUnknownRoot, "sender %d spends against an unknown root", i), false
		}
		nf := sp.Nullifier.Commitment
		if s.has(s.spent, l.spent, nf) {
			return ledger.Reject(CodeDoubleSpend, "sender %d: nullifier already spent", i), false
		}
		s.spent[nf] = struct{}{}
	}
	for i := range post.ReceiverPosts {
		cm := post.ReceiverPosts[i].Utxo.Commitment
		if s.has(s.commitments, l.commitments, cm) {
			return ledger.Reject(CodeDuplicateCommitment, "receiver %d: commitment already recorded", i), false
		}
		s.commitments[cm] = struct{}{}
	}

	for i := range post.SenderPosts {
		s.nullifiers = append(s.nullifiers, post.SenderPosts[i].Nullifier)
	}
	for i := range post.ReceiverPosts {
		rp := &post.ReceiverPosts[i]
		if _, err := s.tree.Insert(shielded.ItemHash(&rp.Utxo)); err != nil {
			return ledger.Reject(CodeAccumulatorFull, "receiver %d: %v", i, err), false
		}
		s.roots[s.tree.Root()] = struct{}{}
		s.receivers = append(s.receivers, shielded.UtxoNote{Utxo: rp.Utxo, Note: rp.Note})
	}
	if post.AssetID != nil {
		for i := range post.Sinks {
			s.credits = append(s.credits, credit{account: post.SinkAccounts[i], id: *post.AssetID, value: post.Sinks[i]})
		}
	}
	return ledger.Response{}, true
}
