package raw

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/hamzazf/shieldwallet/internal/shielded"
)

// ParseAssetID parses the decimal u128 form used by hosts for asset ids.
func ParseAssetID(s string) (shielded.Field, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return shielded.Field{}, fmt.Errorf("parse asset id %q: %w", s, err)
	}
	if v.BitLen() > shielded.MaxValueBits {
		return shielded.Field{}, fmt.Errorf("parse asset id %q: exceeds u128", s)
	}
	return shielded.FieldFromValue(v), nil
}

// FormatAssetID renders an asset id in decimal.
func FormatAssetID(id shielded.Field) string {
	return id.BigInt(new(big.Int)).String()
}

// AssetIDFromUint64 is a shorthand for small numeric asset ids.
func AssetIDFromUint64(n uint64) Bytes32 {
	return EncodeField(shielded.FieldFromUint64(n))
}

// AssetIDFromString packs a short ASCII symbol (at most 16 bytes) into an
// asset id, so that symbolic ids stay inside the u128 range.
func AssetIDFromString(s string) (Bytes32, error) {
	if len(s) == 0 || len(s) > ValueSize {
		return Bytes32{}, fmt.Errorf("asset id %q: length must be 1..%d", s, ValueSize)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return Bytes32{}, fmt.Errorf("asset id %q: non printable byte at %d", s, i)
		}
	}
	var v uint256.Int
	v.SetBytes([]byte(s))
	return EncodeField(shielded.FieldFromValue(&v)), nil
}

// AssetIDString renders an asset id as its symbol when it was built by
// AssetIDFromString, and in decimal otherwise.
func AssetIDString(b Bytes32) (string, error) {
	id, err := DecodeField(b)
	if err != nil {
		return "", err
	}
	v, err := shielded.ValueFromField(&id)
	if err != nil || v.IsZero() {
		return FormatAssetID(id), nil
	}
	buf := v.Bytes()
	for _, c := range buf {
		if c < 0x21 || c > 0x7e {
			return FormatAssetID(id), nil
		}
	}
	return string(buf), nil
}
