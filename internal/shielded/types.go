package shielded

import (
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/holiman/uint256"
)

// Asset is an (id, value) pair. Values are u128.
type Asset struct {
	ID    Field
	Value uint256.Int
}

// NewAsset builds an asset from an id and a uint64 amount.
func NewAsset(id Field, value uint64) Asset {
	return Asset{ID: id, Value: *uint256.NewInt(value)}
}

// IsZero reports whether the asset carries no value.
func (a *Asset) IsZero() bool {
	return a.Value.IsZero()
}

// Utxo is a ledger output: a transparency flag, the public part of the asset
// (zero for opaque UTXOs) and the binding commitment.
type Utxo struct {
	IsTransparent bool
	PublicAsset   Asset
	Commitment    Field
}

// Identifier is the secret needed to open a UTXO commitment.
type Identifier struct {
	IsTransparent            bool
	UtxoCommitmentRandomness Field
}

// IdentifiedAsset pairs an asset with the identifier of the UTXO holding it.
type IdentifiedAsset struct {
	Identifier Identifier
	Asset      Asset
}

// IncomingNote carries the identifier and asset of a UTXO to its recipient.
type IncomingNote struct {
	EphemeralPublicKey Group
	Tag                Field
	Ciphertext         [3]Field
}

// LightIncomingNote is the byte-level variant of IncomingNote for light
// clients.
type LightIncomingNote struct {
	EphemeralPublicKey Group
	Ciphertext         [96]byte
}

// FullIncomingNote bundles both note variants with the recipient's address
// partition.
type FullIncomingNote struct {
	AddressPartition  uint8
	IncomingNote      IncomingNote
	LightIncomingNote LightIncomingNote
}

// OutgoingNote lets a sender recover the asset it spent.
type OutgoingNote struct {
	EphemeralPublicKey Group
	Ciphertext         [64]byte
}

// Nullifier is the spend token of a UTXO together with its outgoing note.
type Nullifier struct {
	Commitment   Field
	OutgoingNote OutgoingNote
}

// CurrentPath is a membership proof of the leaf at LeafIndex: the sibling at
// the leaf level and the inner digests from the leaf towards the root.
type CurrentPath struct {
	SiblingDigest Field
	LeafIndex     uint32
	InnerPath     []Field
}

// UtxoNote is one receiver entry of a pull.
type UtxoNote struct {
	Utxo Utxo
	Note FullIncomingNote
}

// SyncData is the payload of one incremental pull.
type SyncData struct {
	UtxoNoteData  []UtxoNote
	NullifierData []Nullifier
}

// InitialSyncData is the payload of a from-scratch resynchronization.
type InitialSyncData struct {
	UtxoData            []Utxo
	MembershipProofData []CurrentPath
	NullifierCount      uint64
}

// Extend appends the data of a later initial pull.
func (d *InitialSyncData) Extend(other InitialSyncData) {
	d.UtxoData = append(d.UtxoData, other.UtxoData...)
	d.MembershipProofData = append(d.MembershipProofData, other.MembershipProofData...)
	d.NullifierCount = other.NullifierCount
}

// SenderPost spends one UTXO against an accumulator root.
type SenderPost struct {
	UtxoAccumulatorOutput Field
	Nullifier             Nullifier
}

// ReceiverPost creates one UTXO.
type ReceiverPost struct {
	Utxo Utxo
	Note FullIncomingNote
}

// Signature is an EdDSA signature over the BN254 twisted Edwards curve.
type Signature struct {
	Scalar     [32]byte
	NoncePoint Group
}

// AuthorizationSignature authorizes the spend of every sender of a post.
type AuthorizationSignature struct {
	AuthorizationKey Group
	Signature        Signature
}

// Proof is a Groth16 proof over BN254.
type Proof struct {
	Ar  bn254.G1Affine
	Bs  bn254.G2Affine
	Krs bn254.G1Affine
}

// AccountID is a public ledger account receiving sink values.
type AccountID [32]byte

// TransferPost is the unit submitted to the ledger.
type TransferPost struct {
	AuthorizationSignature *AuthorizationSignature
	AssetID                *Field
	Sources                []uint256.Int
	SenderPosts            []SenderPost
	ReceiverPosts          []ReceiverPost
	Sinks                  []uint256.Int
	Proof                  Proof
	SinkAccounts           []AccountID
}

// BodyDigest hashes every field of the post except the authorization
// signature. It is the message signed by the authorization key.
func (p *TransferPost) BodyDigest() Field {
	inputs := make([]Field, 0, 8+4*len(p.SenderPosts)+2*len(p.ReceiverPosts))
	if p.AssetID != nil {
		inputs = append(inputs, FieldFromUint64(1), *p.AssetID)
	} else {
		inputs = append(inputs, FieldFromUint64(0))
	}
	inputs = append(inputs, FieldFromUint64(uint64(len(p.Sources))))
	for i := range p.Sources {
		inputs = append(inputs, FieldFromValue(&p.Sources[i]))
	}
	inputs = append(inputs, FieldFromUint64(uint64(len(p.SenderPosts))))
	for i := range p.SenderPosts {
		inputs = append(inputs, p.SenderPosts[i].UtxoAccumulatorOutput, p.SenderPosts[i].Nullifier.Commitment)
	}
	inputs = append(inputs, FieldFromUint64(uint64(len(p.ReceiverPosts))))
	for i := range p.ReceiverPosts {
		inputs = append(inputs, ItemHash(&p.ReceiverPosts[i].Utxo))
	}
	inputs = append(inputs, FieldFromUint64(uint64(len(p.Sinks))))
	for i := range p.Sinks {
		inputs = append(inputs, FieldFromValue(&p.Sinks[i]))
	}
	for _, account := range p.SinkAccounts {
		var f Field
		f.SetBytes(account[:])
		inputs = append(inputs, f)
	}
	ar := p.Proof.Ar.Bytes()
	bs := p.Proof.Bs.Bytes()
	krs := p.Proof.Krs.Bytes()
	for _, chunk := range [][]byte{ar[:], bs[:32], bs[32:], krs[:]} {
		var f Field
		f.SetBytes(chunk)
		inputs = append(inputs, f)
	}
	return Hash(inputs...)
}

// Accumulator heights supported by the protocol.
const (
	DefaultAccumulatorHeight = 20
	MaxAccumulatorHeight     = 32
)

// Parameters are the public parameters shared by wallets and ledger.
type Parameters struct {
	Generator         Group
	AccumulatorHeight int
}

// DefaultParameters returns the canonical generator with the default tree
// height.
func DefaultParameters() Parameters {
	return Parameters{Generator: Base(), AccumulatorHeight: DefaultAccumulatorHeight}
}
