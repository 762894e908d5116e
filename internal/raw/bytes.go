// bytes.go - Fixed-size byte arrays with exact-length hex text forms.

package raw

import (
	"encoding/hex"
	"strings"
)

// Protocol-pinned element sizes.
const (
	FieldSize       = 32
	GroupSize       = 32
	ValueSize       = 16
	ProofSize       = 128
	ScalarSize      = 32
	IncomingBlocks  = 3
	OutgoingBlocks  = 2
	MaxInnerPathLen = 64
)

// Bytes16 is a u128 in little endian order.
type Bytes16 [ValueSize]byte

// Bytes32 is a field element, group element or scalar encoding.
type Bytes32 [FieldSize]byte

// Bytes128 is a compressed Groth16 proof.
type Bytes128 [ProofSize]byte

func (b Bytes16) MarshalText() ([]byte, error)  { return marshalHex(b[:]), nil }
func (b Bytes32) MarshalText() ([]byte, error)  { return marshalHex(b[:]), nil }
func (b Bytes128) MarshalText() ([]byte, error) { return marshalHex(b[:]), nil }

func (b *Bytes16) UnmarshalText(text []byte) error  { return unmarshalHex("Bytes16", text, b[:]) }
func (b *Bytes32) UnmarshalText(text []byte) error  { return unmarshalHex("Bytes32", text, b[:]) }
func (b *Bytes128) UnmarshalText(text []byte) error { return unmarshalHex("Bytes128", text, b[:]) }

// Bytes16FromSlice copies b after checking its length.
func Bytes16FromSlice(b []byte) (Bytes16, error) {
	var out Bytes16
	if len(b) != len(out) {
		return out, decodeErr("Bytes16", "", reasonLength)
	}
	copy(out[:], b)
	return out, nil
}

// Bytes32FromSlice copies b after checking its length.
func Bytes32FromSlice(b []byte) (Bytes32, error) {
	var out Bytes32
	if len(b) != len(out) {
		return out, decodeErr("Bytes32", "", reasonLength)
	}
	copy(out[:], b)
	return out, nil
}

// Bytes128FromSlice copies b after checking its length.
func Bytes128FromSlice(b []byte) (Bytes128, error) {
	var out Bytes128
	if len(b) != len(out) {
		return out, decodeErr("Bytes128", "", reasonLength)
	}
	copy(out[:], b)
	return out, nil
}

func marshalHex(b []byte) []byte {
	out := make([]byte, 2+hex.EncodedLen(len(b)))
	copy(out, "0x")
	hex.Encode(out[2:], b)
	return out
}

func unmarshalHex(typ string, text []byte, dst []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	if hex.DecodedLen(len(s)) != len(dst) || len(s)%2 != 0 {
		return decodeErr(typ, "", reasonLength)
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return decodeErr(typ, "", "invalid hex")
	}
	return nil
}
