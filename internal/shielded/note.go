// note.go - Incoming/outgoing note encryption.
//
// The sender samples an ephemeral scalar e and publishes e·Base. Both sides
// derive the shared point e·rk = vk·(e·Base), hash it to a seed and expand
// the seed into a MiMC mask chain. Field ciphertexts add the masks, byte
// ciphertexts xor them.

package shielded

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	// ErrNoteNotOwned is returned when a note does not decrypt under the
	// given viewing key.
	ErrNoteNotOwned = errors.New("note not addressed to this viewing key")

	lightDomain    = FieldFromUint64(1)
	outgoingDomain = FieldFromUint64(2)
)

// Address is the receiving end of a shielded transfer.
type Address struct {
	ReceivingKey Group
	SpendTag     Field
}

// Partition is the one-byte bucket of an address carried in full incoming
// notes. Recipients skip trial decryption of other partitions.
func (a *Address) Partition() uint8 {
	h := Hash(a.ReceivingKey.X, a.ReceivingKey.Y)
	b := h.Bytes()
	return b[len(b)-1]
}

// Equal reports whether both components match.
func (a *Address) Equal(other *Address) bool {
	return a.ReceivingKey.Equal(&other.ReceivingKey) && a.SpendTag.Equal(&other.SpendTag)
}

func sharedSeed(shared *Group) Field {
	return Hash(shared.X, shared.Y)
}

// EncryptIncoming encrypts (randomness, asset) to address under the
// ephemeral scalar e.
func EncryptIncoming(address *Address, randomness *Field, asset *Asset, e *big.Int) FullIncomingNote {
	epk := ScalarBaseMul(e)
	shared := ScalarMul(&address.ReceivingKey, e)
	seed := sharedSeed(&shared)

	plain := [3]Field{*randomness, asset.ID, FieldFromValue(&asset.Value)}
	masks := maskChain(seed, 3)
	var note FullIncomingNote
	note.AddressPartition = address.Partition()
	note.IncomingNote.EphemeralPublicKey = epk
	for i := range plain {
		note.IncomingNote.Ciphertext[i].Add(&plain[i], &masks[i])
	}
	c := note.IncomingNote.Ciphertext
	note.IncomingNote.Tag = Hash(seed, c[0], c[1], c[2])

	note.LightIncomingNote.EphemeralPublicKey = epk
	lightMasks := maskChain(Hash(seed, lightDomain), 3)
	for i := range plain {
		b := plain[i].Bytes()
		xorBlock(note.LightIncomingNote.Ciphertext[32*i:32*(i+1)], b[:], &lightMasks[i])
	}
	return note
}

// DecryptIncoming opens an incoming note with viewing key vk.
func DecryptIncoming(vk *big.Int, note *IncomingNote) (IdentifiedAsset, error) {
	var out IdentifiedAsset
	shared := ScalarMul(&note.EphemeralPublicKey, vk)
	seed := sharedSeed(&shared)
	c := note.Ciphertext
	tag := Hash(seed, c[0], c[1], c[2])
	if !tag.Equal(&note.Tag) {
		return out, ErrNoteNotOwned
	}
	masks := maskChain(seed, 3)
	var plain [3]Field
	for i := range plain {
		plain[i].Sub(&c[i], &masks[i])
	}
	value, err := ValueFromField(&plain[2])
	if err != nil {
		return out, ErrNoteNotOwned
	}
	out.Identifier.UtxoCommitmentRandomness = plain[0]
	out.Asset = Asset{ID: plain[1], Value: value}
	return out, nil
}

// DecryptLight opens the light variant. It carries no tag: callers confirm
// ownership by recomputing the commitment.
func DecryptLight(vk *big.Int, note *LightIncomingNote) (IdentifiedAsset, error) {
	var out IdentifiedAsset
	shared := ScalarMul(&note.EphemeralPublicKey, vk)
	masks := maskChain(Hash(sharedSeed(&shared), lightDomain), 3)
	var plain [3]Field
	for i := range plain {
		var block [fr.Bytes]byte
		xorBlock(block[:], note.Ciphertext[32*i:32*(i+1)], &masks[i])
		f, err := fr.BigEndian.Element(&block)
		if err != nil {
			return out, ErrNoteNotOwned
		}
		plain[i] = f
	}
	value, err := ValueFromField(&plain[2])
	if err != nil {
		return out, ErrNoteNotOwned
	}
	out.Identifier.UtxoCommitmentRandomness = plain[0]
	out.Asset = Asset{ID: plain[1], Value: value}
	return out, nil
}

// EncryptOutgoing encrypts the spent asset back to the sender's own
// receiving key.
func EncryptOutgoing(receivingKey *Group, asset *Asset, e *big.Int) OutgoingNote {
	shared := ScalarMul(receivingKey, e)
	masks := maskChain(Hash(sharedSeed(&shared), outgoingDomain), 2)
	var note OutgoingNote
	note.EphemeralPublicKey = ScalarBaseMul(e)
	id := asset.ID.Bytes()
	value := FieldFromValue(&asset.Value)
	vb := value.Bytes()
	xorBlock(note.Ciphertext[:32], id[:], &masks[0])
	xorBlock(note.Ciphertext[32:], vb[:], &masks[1])
	return note
}

// DecryptOutgoing recovers the asset of an outgoing note.
func DecryptOutgoing(vk *big.Int, note *OutgoingNote) (Asset, error) {
	shared := ScalarMul(&note.EphemeralPublicKey, vk)
	masks := maskChain(Hash(sharedSeed(&shared), outgoingDomain), 2)
	var idBlock, valueBlock [fr.Bytes]byte
	xorBlock(idBlock[:], note.Ciphertext[:32], &masks[0])
	xorBlock(valueBlock[:], note.Ciphertext[32:], &masks[1])
	id, err := fr.BigEndian.Element(&idBlock)
	if err != nil {
		return Asset{}, ErrNoteNotOwned
	}
	vf, err := fr.BigEndian.Element(&valueBlock)
	if err != nil {
		return Asset{}, ErrNoteNotOwned
	}
	value, err := ValueFromField(&vf)
	if err != nil {
		return Asset{}, ErrNoteNotOwned
	}
	return Asset{ID: id, Value: value}, nil
}
