package signer

import (
	"strings"

	"github.com/holiman/uint256"

	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/zkp"
)

// Transaction is a user intent turned into transfer posts by Sign.
type Transaction struct {
	Kind    zkp.Kind
	Asset   shielded.Asset
	Address shielded.Address
	Account shielded.AccountID
}

// NewToPrivate deposits a public asset into the wallet.
func NewToPrivate(asset shielded.Asset) Transaction {
	return Transaction{Kind: zkp.ToPrivate, Asset: asset}
}

// NewPrivateTransfer sends a shielded asset to an address.
func NewPrivateTransfer(asset shielded.Asset, to shielded.Address) Transaction {
	return Transaction{Kind: zkp.PrivateTransfer, Asset: asset, Address: to}
}

// NewToPublic withdraws a shielded asset to a public account.
func NewToPublic(asset shielded.Asset, to shielded.AccountID) Transaction {
	return Transaction{Kind: zkp.ToPublic, Asset: asset, Account: to}
}

// AssetMetadata is display information for an asset id.
type AssetMetadata struct {
	Decimals uint32 `json:"decimals"`
	Symbol   string `json:"symbol"`
}

// Display renders a value with the metadata decimals and symbol.
func (m *AssetMetadata) Display(v *uint256.Int) string {
	if m == nil {
		return v.Dec()
	}
	s := v.Dec()
	if m.Decimals > 0 {
		d := int(m.Decimals)
		if len(s) <= d {
			s = strings.Repeat("0", d+1-len(s)) + s
		}
		s = s[:len(s)-d] + "." + s[len(s)-d:]
	}
	if m.Symbol != "" {
		s += " " + m.Symbol
	}
	return s
}

// BalanceUpdate is the balance change produced by one applied step.
// A full update replaces the balance map, a partial one adjusts it.
type BalanceUpdate struct {
	Full     bool
	Assets   []shielded.Asset
	Deposit  []shielded.Asset
	Withdraw []shielded.Asset
}

// IsEmpty reports whether the update changes nothing.
func (u *BalanceUpdate) IsEmpty() bool {
	return !u.Full && len(u.Deposit) == 0 && len(u.Withdraw) == 0
}

// SyncResponse is the outcome of applying one step.
type SyncResponse struct {
	Checkpoint shielded.Checkpoint
	Balance    BalanceUpdate
}

// HistoryKind tags a history entry.
type HistoryKind uint8

const (
	Received HistoryKind = iota + 1
	Spent
)

func (k HistoryKind) String() string {
	if k == Spent {
		return "spent"
	}
	return "received"
}

// HistoryEntry records an owned UTXO being received or spent.
type HistoryEntry struct {
	Kind       HistoryKind
	Asset      shielded.Asset
	Checkpoint shielded.Checkpoint
}

// TransactionData is what one post means to this wallet.
type TransactionData struct {
	Kind     zkp.Kind
	Received []shielded.IdentifiedAsset
	Spent    []shielded.Asset
}

// IdentityRequest asks for a virtual ToPublic proof of ownership of a
// soul-bound asset, addressed to a public account.
type IdentityRequest struct {
	AssetID shielded.Field
	Account shielded.AccountID
}

// IdentityProof carries the virtual post proving the ownership.
type IdentityProof struct {
	Post shielded.TransferPost
}
