package keys

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/hamzazf/shieldwallet/internal/shielded"
)

// ViewingKey decrypts incoming and outgoing notes.
type ViewingKey struct {
	scalar *big.Int
}

// ViewingKeyFromMnemonic derives the viewing key.
func ViewingKeyFromMnemonic(m Mnemonic) (ViewingKey, error) {
	k, err := deriveScalar(m, purposeViewing)
	if err != nil {
		return ViewingKey{}, err
	}
	return ViewingKey{scalar: k}, nil
}

// Scalar returns a copy of the secret scalar.
func (vk ViewingKey) Scalar() *big.Int { return new(big.Int).Set(vk.scalar) }

// ReceivingKey is the public half published in addresses.
func (vk ViewingKey) ReceivingKey() shielded.Group { return shielded.ScalarBaseMul(vk.scalar) }

// AccountTable holds the secret keys of the wallet account.
type AccountTable struct {
	SpendingKey      shielded.Field
	ViewingKey       ViewingKey
	AuthorizationKey shielded.Group
}

// AccountsFromMnemonic derives the account table.
func AccountsFromMnemonic(m Mnemonic) (*AccountTable, error) {
	sk, err := deriveField(m, purposeSpending)
	if err != nil {
		return nil, err
	}
	vk, err := ViewingKeyFromMnemonic(m)
	if err != nil {
		return nil, err
	}
	auth, err := AuthorizationContextFromMnemonic(m)
	if err != nil {
		return nil, err
	}
	return &AccountTable{SpendingKey: sk, ViewingKey: vk, AuthorizationKey: auth.PublicKey()}, nil
}

// AddressFromMnemonic derives the account address.
func AddressFromMnemonic(m Mnemonic) (shielded.Address, error) {
	accounts, err := AccountsFromMnemonic(m)
	if err != nil {
		return shielded.Address{}, err
	}
	return accounts.Address(), nil
}

// SpendTag returns the ownership tag bound into commitments.
func (a *AccountTable) SpendTag() shielded.Field {
	return shielded.SpendTag(&a.SpendingKey, &a.AuthorizationKey)
}

// Address returns the receiving address of the account.
func (a *AccountTable) Address() shielded.Address {
	return shielded.Address{ReceivingKey: a.ViewingKey.ReceivingKey(), SpendTag: a.SpendTag()}
}

// Matches reports whether an authorization context belongs to the account.
func (a *AccountTable) Matches(c *AuthorizationContext) bool {
	pk := c.PublicKey()
	return pk.Equal(&a.AuthorizationKey)
}

type accountTableJSON struct {
	SpendingKey      string `json:"spending_key"`
	ViewingKey       string `json:"viewing_key"`
	AuthorizationKey string `json:"authorization_key"`
}

// MarshalJSON exports the table as hex strings.
func (a *AccountTable) MarshalJSON() ([]byte, error) {
	sk := a.SpendingKey.Bytes()
	var vk [fr.Bytes]byte
	a.ViewingKey.scalar.FillBytes(vk[:])
	ak := a.AuthorizationKey.Bytes()
	return json.Marshal(accountTableJSON{
		SpendingKey:      hex.EncodeToString(sk[:]),
		ViewingKey:       hex.EncodeToString(vk[:]),
		AuthorizationKey: hex.EncodeToString(ak[:]),
	})
}

// UnmarshalJSON restores a table exported with MarshalJSON.
func (a *AccountTable) UnmarshalJSON(data []byte) error {
	var j accountTableJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var sk, vk, ak [fr.Bytes]byte
	for _, f := range []struct {
		name string
		src  string
		dst  *[fr.Bytes]byte
	}{{"spending_key", j.SpendingKey, &sk}, {"viewing_key", j.ViewingKey, &vk}, {"authorization_key", j.AuthorizationKey, &ak}} {
		b, err := hex.DecodeString(f.src)
		if err != nil || len(b) != fr.Bytes {
			return fmt.Errorf("account table: invalid %s", f.name)
		}
		copy(f.dst[:], b)
	}
	spending, err := fr.BigEndian.Element(&sk)
	if err != nil {
		return fmt.Errorf("account table: spending_key: %w", err)
	}
	scalar := new(big.Int).SetBytes(vk[:])
	if scalar.Sign() == 0 || scalar.Cmp(shielded.ScalarOrder()) >= 0 {
		return fmt.Errorf("account table: viewing_key out of range")
	}
	var auth shielded.Group
	if _, err := auth.SetBytes(ak[:]); err != nil || !shielded.InPrimeSubgroup(&auth) {
		return fmt.Errorf("account table: invalid authorization_key")
	}
	a.SpendingKey = spending
	a.ViewingKey = ViewingKey{scalar: scalar}
	a.AuthorizationKey = auth
	return nil
}
