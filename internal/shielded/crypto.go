// crypto.go - MiMC hashing, commitments and curve helpers.

package shielded

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/holiman/uint256"
)

// Field is an element of the BN254 scalar field.
type Field = fr.Element

// Group is a point of the BN254 twisted Edwards curve.
type Group = twistededwards.PointAffine

// MaxValueBits bounds asset values to u128.
const MaxValueBits = 128

var curve = twistededwards.GetEdwardsCurve()

// Hash computes the MiMC digest of a list of field elements. The same
// sequence of Write calls inside a gnark circuit yields the same digest.
func Hash(inputs ...Field) Field {
	h := mimc.NewMiMC()
	for i := range inputs {
		b := inputs[i].Bytes()
		h.Write(b[:])
	}
	var out Field
	out.SetBytes(h.Sum(nil))
	return out
}

// FieldFromUint64 returns x as a field element.
func FieldFromUint64(x uint64) Field {
	var f Field
	f.SetUint64(x)
	return f
}

// FieldFromValue maps a u128 value into the field.
func FieldFromValue(v *uint256.Int) Field {
	var f Field
	f.SetBigInt(v.ToBig())
	return f
}

// ValueFromField is the inverse of FieldFromValue. It fails when the element
// does not fit in 128 bits.
func ValueFromField(f *Field) (uint256.Int, error) {
	var v uint256.Int
	b := f.BigInt(new(big.Int))
	if b.BitLen() > MaxValueBits {
		return v, fmt.Errorf("field element exceeds %d bits", MaxValueBits)
	}
	v.SetFromBig(b)
	return v, nil
}

// RandomField samples a uniform field element.
func RandomField() (Field, error) {
	var f Field
	if _, err := f.SetRandom(); err != nil {
		return f, fmt.Errorf("sample field element: %w", err)
	}
	return f, nil
}

// RandomScalar samples a non-zero scalar of the prime order subgroup.
func RandomScalar() (*big.Int, error) {
	for {
		k, err := rand.Int(rand.Reader, &curve.Order)
		if err != nil {
			return nil, fmt.Errorf("sample scalar: %w", err)
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
}

// ScalarOrder returns the order of the prime subgroup.
func ScalarOrder() *big.Int {
	return new(big.Int).Set(&curve.Order)
}

// Base returns the subgroup generator.
func Base() Group {
	return curve.Base
}

// Identity returns the neutral element (0, 1).
func Identity() Group {
	var p Group
	p.X.SetZero()
	p.Y.SetOne()
	return p
}

// IsIdentity reports whether p is the neutral element.
func IsIdentity(p *Group) bool {
	return p.X.IsZero() && p.Y.IsOne()
}

// ScalarMul returns k·p.
func ScalarMul(p *Group, k *big.Int) Group {
	var out Group
	out.ScalarMultiplication(p, k)
	return out
}

// ScalarBaseMul returns k·Base.
func ScalarBaseMul(k *big.Int) Group {
	base := curve.Base
	return ScalarMul(&base, k)
}

// InPrimeSubgroup reports whether p is on the curve and killed by the
// subgroup order.
func InPrimeSubgroup(p *Group) bool {
	if !p.IsOnCurve() {
		return false
	}
	var q Group
	q.ScalarMultiplication(p, &curve.Order)
	return IsIdentity(&q)
}

// Commitment binds an asset to its owner's spend tag under randomness r.
// cm = H(id || value || tag || r)
func Commitment(asset *Asset, spendTag, r *Field) Field {
	return Hash(asset.ID, FieldFromValue(&asset.Value), *spendTag, *r)
}

// SpendTag derives the ownership tag of an address from the spending key
// and the authorization key that must sign posts spending its UTXOs.
func SpendTag(spendingKey *Field, authorizationKey *Group) Field {
	return Hash(*spendingKey, authorizationKey.X, authorizationKey.Y)
}

// NullifierCommitment derives the one-time spend token of a commitment.
func NullifierCommitment(spendingKey, commitment *Field) Field {
	return Hash(*spendingKey, *commitment)
}

// ItemHash is the accumulator leaf of a UTXO.
func ItemHash(u *Utxo) Field {
	var flag Field
	if u.IsTransparent {
		flag.SetOne()
	}
	return Hash(flag, u.PublicAsset.ID, FieldFromValue(&u.PublicAsset.Value), u.Commitment)
}

// maskChain expands a seed into n masks: m1 = H(seed), m(i+1) = H(m(i)).
func maskChain(seed Field, n int) []Field {
	masks := make([]Field, n)
	cur := seed
	for i := 0; i < n; i++ {
		cur = Hash(cur)
		masks[i] = cur
	}
	return masks
}

// xorBlock xors a 32-byte block with the big endian encoding of a mask.
func xorBlock(dst []byte, src []byte, mask *Field) {
	m := mask.Bytes()
	for i := 0; i < fr.Bytes; i++ {
		dst[i] = src[i] ^ m[i]
	}
}
