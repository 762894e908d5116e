// Package zkp instantiates the transfer proof system: three Groth16 circuits
// over BN254 sharing MiMC commitment, nullifier and accumulator gadgets.
//
//	ToPrivate        0 senders, 1 receiver, public source
//	PrivateTransfer  2 senders, 2 receivers
//	ToPublic         2 senders, 1 receiver, public sink
//
// The circuits prove commitment openings, accumulator membership, nullifier
// derivation and value conservation. Incoming note encryption is checked by
// recipients when they open notes, not inside the circuits.
package zkp

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/holiman/uint256"

	"github.com/hamzazf/shieldwallet/internal/logger"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

const valueBits = shielded.MaxValueBits

var (
	ErrUnknownShape = errors.New("zkp: post shape matches no circuit")
	ErrInvalidProof = errors.New("zkp: proof verification failed")
	ErrWitness      = errors.New("zkp: invalid witness")
)

// Kind selects one of the transfer circuits.
type Kind uint8

const (
	ToPrivate Kind = iota
	PrivateTransfer
	ToPublic
	numKinds
)

// Kinds lists every circuit in context order.
var Kinds = [...]Kind{ToPrivate, PrivateTransfer, ToPublic}

func (k Kind) String() string {
	switch k {
	case ToPrivate:
		return "to_private"
	case PrivateTransfer:
		return "private_transfer"
	case ToPublic:
		return "to_public"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Shape is the number of each post component a circuit expects.
type Shape struct {
	Sources   int
	Senders   int
	Receivers int
	Sinks     int
}

// Shape returns the component counts of the circuit.
func (k Kind) Shape() Shape {
	switch k {
	case ToPrivate:
		return Shape{Sources: 1, Receivers: 1}
	case PrivateTransfer:
		return Shape{Senders: 2, Receivers: 2}
	case ToPublic:
		return Shape{Senders: 2, Receivers: 1, Sinks: 1}
	}
	return Shape{}
}

// HasPublicAsset reports whether posts of this kind carry an asset id.
func (k Kind) HasPublicAsset() bool { return k != PrivateTransfer }

// KindOf classifies a post by its shape.
func KindOf(post *shielded.TransferPost) (Kind, error) {
	s := Shape{
		Sources:   len(post.Sources),
		Senders:   len(post.SenderPosts),
		Receivers: len(post.ReceiverPosts),
		Sinks:     len(post.Sinks),
	}
	for _, k := range Kinds {
		if k.Shape() == s && k.HasPublicAsset() == (post.AssetID != nil) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %+v", ErrUnknownShape, s)
}

// SenderWitness is the secret opening of one spent UTXO.
type SenderWitness struct {
	SpendingKey shielded.Field
	Asset       shielded.Asset
	Randomness  shielded.Field
	Path        shielded.CurrentPath
	Root        shielded.Field
	Nullifier   shielded.Field
}

// ReceiverWitness is the secret opening of one created UTXO.
type ReceiverWitness struct {
	Asset      shielded.Asset
	SpendTag   shielded.Field
	Randomness shielded.Field
	Commitment shielded.Field
}

// Statement is everything needed to prove one post.
type Statement struct {
	Kind             Kind
	AssetID          shielded.Field
	Public           uint256.Int
	AuthorizationKey shielded.Group
	Senders          []SenderWitness
	Receivers        []ReceiverWitness
}

func newCircuit(kind Kind, height int) frontend.Circuit {
	switch kind {
	case ToPrivate:
		return &ToPrivateCircuit{}
	case PrivateTransfer:
		c := &PrivateTransferCircuit{}
		for i := range c.Senders {
			c.Senders[i].Path = make([]frontend.Variable, height)
		}
		return c
	default:
		c := &ToPublicCircuit{}
		for i := range c.Senders {
			c.Senders[i].Path = make([]frontend.Variable, height)
		}
		return c
	}
}

func compile(kind Kind, height int) (constraint.ConstraintSystem, error) {
	start := time.Now()
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, newCircuit(kind, height))
	if err != nil {
		return nil, fmt.Errorf("compile %s circuit: %w", kind, err)
	}
	log := logger.Logger()
	log.Debug().
		Str("circuit", kind.String()).
		Int("height", height).
		Int("constraints", ccs.GetNbConstraints()).
		Dur("took", time.Since(start)).
		Msg("circuit compiled")
	return ccs, nil
}

func bi(f shielded.Field) *big.Int { return f.BigInt(new(big.Int)) }

func value(v *uint256.Int) *big.Int { return v.ToBig() }

func assignSender(w *SenderWitness, height int) (Sender, error) {
	path := make([]frontend.Variable, height)
	switch {
	case len(w.Path.InnerPath) == height-1:
		path[0] = bi(w.Path.SiblingDigest)
		for i := range w.Path.InnerPath {
			path[i+1] = bi(w.Path.InnerPath[i])
		}
	case w.Asset.IsZero():
		for i := range path {
			path[i] = 0
		}
	default:
		return Sender{}, fmt.Errorf("%w: path length %d for height %d", ErrWitness, len(w.Path.InnerPath)+1, height)
	}
	return Sender{
		Root:        bi(w.Root),
		Nullifier:   bi(w.Nullifier),
		SpendingKey: bi(w.SpendingKey),
		AssetID:     bi(w.Asset.ID),
		Value:       value(&w.Asset.Value),
		Randomness:  bi(w.Randomness),
		LeafIndex:   uint64(w.Path.LeafIndex),
		Path:        path,
	}, nil
}

func assignReceiver(w *ReceiverWitness) Receiver {
	return Receiver{
		Commitment: bi(w.Commitment),
		AssetID:    bi(w.Asset.ID),
		Value:      value(&w.Asset.Value),
		SpendTag:   bi(w.SpendTag),
		Randomness: bi(w.Randomness),
	}
}

func assign(st *Statement, height int) (frontend.Circuit, error) {
	shape := st.Kind.Shape()
	if len(st.Senders) != shape.Senders || len(st.Receivers) != shape.Receivers {
		return nil, fmt.Errorf("%w: %s expects %d senders and %d receivers", ErrWitness, st.Kind, shape.Senders, shape.Receivers)
	}
	senders := make([]Sender, len(st.Senders))
	for i := range st.Senders {
		s, err := assignSender(&st.Senders[i], height)
		if err != nil {
			return nil, err
		}
		senders[i] = s
	}
	switch st.Kind {
	case ToPrivate:
		return &ToPrivateCircuit{
			AssetID:  bi(st.AssetID),
			Source:   value(&st.Public),
			Receiver: assignReceiver(&st.Receivers[0]),
		}, nil
	case PrivateTransfer:
		return &PrivateTransferCircuit{
			AuthKeyX:  bi(st.AuthorizationKey.X),
			AuthKeyY:  bi(st.AuthorizationKey.Y),
			Senders:   [2]Sender{senders[0], senders[1]},
			Receivers: [2]Receiver{assignReceiver(&st.Receivers[0]), assignReceiver(&st.Receivers[1])},
		}, nil
	case ToPublic:
		return &ToPublicCircuit{
			AssetID:  bi(st.AssetID),
			Sink:     value(&st.Public),
			AuthKeyX: bi(st.AuthorizationKey.X),
			AuthKeyY: bi(st.AuthorizationKey.Y),
			Senders:  [2]Sender{senders[0], senders[1]},
			Receiver: assignReceiver(&st.Receivers[0]),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownShape, st.Kind)
}

func publicSender(p *shielded.SenderPost, height int) Sender {
	return Sender{
		Root:      bi(p.UtxoAccumulatorOutput),
		Nullifier: bi(p.Nullifier.Commitment),
		Path:      make([]frontend.Variable, height),
	}
}

func publicReceiver(p *shielded.ReceiverPost) Receiver {
	return Receiver{Commitment: bi(p.Utxo.Commitment)}
}

// publicAssignment rebuilds the public inputs of a post.
func publicAssignment(post *shielded.TransferPost, height int) (Kind, frontend.Circuit, error) {
	kind, err := KindOf(post)
	if err != nil {
		return 0, nil, err
	}
	var authX, authY *big.Int
	if kind != ToPrivate {
		if post.AuthorizationSignature == nil {
			return 0, nil, fmt.Errorf("%w: %s post without authorization key", ErrUnknownShape, kind)
		}
		authX = bi(post.AuthorizationSignature.AuthorizationKey.X)
		authY = bi(post.AuthorizationSignature.AuthorizationKey.Y)
	}
	switch kind {
	case ToPrivate:
		return kind, &ToPrivateCircuit{
			AssetID:  bi(*post.AssetID),
			Source:   value(&post.Sources[0]),
			Receiver: publicReceiver(&post.ReceiverPosts[0]),
		}, nil
	case PrivateTransfer:
		return kind, &PrivateTransferCircuit{
			AuthKeyX:  authX,
			AuthKeyY:  authY,
			Senders:   [2]Sender{publicSender(&post.SenderPosts[0], height), publicSender(&post.SenderPosts[1], height)},
			Receivers: [2]Receiver{publicReceiver(&post.ReceiverPosts[0]), publicReceiver(&post.ReceiverPosts[1])},
		}, nil
	default:
		return kind, &ToPublicCircuit{
			AssetID:  bi(*post.AssetID),
			Sink:     value(&post.Sinks[0]),
			AuthKeyX: authX,
			AuthKeyY: authY,
			Senders:  [2]Sender{publicSender(&post.SenderPosts[0], height), publicSender(&post.SenderPosts[1], height)},
			Receiver: publicReceiver(&post.ReceiverPosts[0]),
		}, nil
	}
}

func toProof(p groth16.Proof) (shielded.Proof, error) {
	bp, ok := p.(*groth16_bn254.Proof)
	if !ok {
		return shielded.Proof{}, fmt.Errorf("unexpected proof type %T", p)
	}
	return shielded.Proof{Ar: bp.Ar, Bs: bp.Bs, Krs: bp.Krs}, nil
}

func fromProof(p *shielded.Proof) groth16.Proof {
	return &groth16_bn254.Proof{Ar: p.Ar, Bs: p.Bs, Krs: p.Krs}
}
