// Package keys derives wallet key material from a BIP-39 mnemonic.
//
// The mnemonic seed is expanded with HKDF-SHA512 into independent keys:
//
//	spending key        fr element, owns UTXOs (spend tag, nullifiers)
//	viewing key         twisted Edwards scalar, decrypts incoming notes
//	authorization key   EdDSA key signing transfer posts
//
// The address of an account is (viewing key · Base, SpendTag(spending key,
// authorization public key)).
package keys

import (
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"github.com/hamzazf/shieldwallet/internal/shielded"
)

const (
	DefaultMnemonicBits = 256
	hkdfSalt            = "shieldwallet/v1"

	purposeSpending      = "spending-key"
	purposeViewing       = "viewing-key"
	purposeAuthorization = "authorization-key"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// Mnemonic is a validated BIP-39 phrase.
type Mnemonic struct {
	phrase string
}

// GenerateMnemonic returns a fresh phrase with the given entropy size.
func GenerateMnemonic(bits int) (Mnemonic, error) {
	switch bits {
	case 128, 160, 192, 224, 256:
	default:
		return Mnemonic{}, fmt.Errorf("invalid mnemonic bits %d (allowed: 128,160,192,224,256)", bits)
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return Mnemonic{}, err
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return Mnemonic{}, err
	}
	return Mnemonic{phrase: phrase}, nil
}

// MnemonicFromPhrase validates a phrase (word list and checksum).
func MnemonicFromPhrase(phrase string) (Mnemonic, error) {
	if !bip39.IsMnemonicValid(phrase) {
		return Mnemonic{}, ErrInvalidMnemonic
	}
	return Mnemonic{phrase: phrase}, nil
}

// Phrase returns the words of the mnemonic.
func (m Mnemonic) Phrase() string { return m.phrase }

func (m Mnemonic) String() string { return "Mnemonic(****)" }

func (m Mnemonic) reader(purpose string) (io.Reader, error) {
	if m.phrase == "" {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(m.phrase, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return hkdf.New(sha512.New, seed, []byte(hkdfSalt), []byte(purpose)), nil
}

func deriveField(m Mnemonic, purpose string) (shielded.Field, error) {
	r, err := m.reader(purpose)
	if err != nil {
		return shielded.Field{}, err
	}
	var buf [64]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return shielded.Field{}, fmt.Errorf("derive %s: %w", purpose, err)
		}
		var f shielded.Field
		f.SetBigInt(new(big.Int).SetBytes(buf[:]))
		if !f.IsZero() {
			return f, nil
		}
	}
}

func deriveScalar(m Mnemonic, purpose string) (*big.Int, error) {
	r, err := m.reader(purpose)
	if err != nil {
		return nil, err
	}
	order := shielded.ScalarOrder()
	var buf [64]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("derive %s: %w", purpose, err)
		}
		k := new(big.Int).SetBytes(buf[:])
		k.Mod(k, order)
		if k.Sign() != 0 {
			return k, nil
		}
	}
}
