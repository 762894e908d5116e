package main

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
	"github.com/hamzazf/shieldwallet/internal/signer"
	"github.com/hamzazf/shieldwallet/internal/zkp"
)

// Host-boundary JSON forms. Wallet types stay typed past decode.

type addressJSON struct {
	ReceivingKey raw.Bytes32 `json:"receiving_key"`
	SpendTag     raw.Bytes32 `json:"spend_tag"`
}

func encodeAddress(a shielded.Address) addressJSON {
	return addressJSON{ReceivingKey: raw.EncodeGroup(a.ReceivingKey), SpendTag: raw.EncodeField(a.SpendTag)}
}

func (a addressJSON) decode() (shielded.Address, error) {
	rk, err := raw.DecodeGroup(a.ReceivingKey)
	if err != nil {
		return shielded.Address{}, err
	}
	tag, err := raw.DecodeField(a.SpendTag)
	if err != nil {
		return shielded.Address{}, err
	}
	return shielded.Address{ReceivingKey: rk, SpendTag: tag}, nil
}

type assetJSON struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func encodeAsset(a shielded.Asset) assetJSON {
	return assetJSON{ID: raw.FormatAssetID(a.ID), Value: a.Value.Dec()}
}

func encodeAssets(in []shielded.Asset) []assetJSON {
	out := make([]assetJSON, 0, len(in))
	for _, a := range in {
		out = append(out, encodeAsset(a))
	}
	return out
}

func (a assetJSON) decode() (shielded.Asset, error) {
	id, err := raw.ParseAssetID(a.ID)
	if err != nil {
		return shielded.Asset{}, err
	}
	v, err := uint256.FromDecimal(a.Value)
	if err != nil {
		return shielded.Asset{}, fmt.Errorf("parse value %q: %w", a.Value, err)
	}
	return shielded.Asset{ID: id, Value: *v}, nil
}

type transactionJSON struct {
	Kind     string                `json:"kind"`
	Asset    assetJSON             `json:"asset"`
	Address  *addressJSON          `json:"address,omitempty"`
	Account  *raw.Bytes32          `json:"account,omitempty"`
	Metadata *signer.AssetMetadata `json:"metadata,omitempty"`
}

func (t transactionJSON) decode() (signer.Transaction, error) {
	asset, err := t.Asset.decode()
	if err != nil {
		return signer.Transaction{}, err
	}
	switch t.Kind {
	case zkp.ToPrivate.String():
		return signer.NewToPrivate(asset), nil
	case zkp.PrivateTransfer.String():
		if t.Address == nil {
			return signer.Transaction{}, fmt.Errorf("%s needs an address", t.Kind)
		}
		to, err := t.Address.decode()
		if err != nil {
			return signer.Transaction{}, err
		}
		return signer.NewPrivateTransfer(asset, to), nil
	case zkp.ToPublic.String():
		if t.Account == nil {
			return signer.Transaction{}, fmt.Errorf("%s needs an account", t.Kind)
		}
		return signer.NewToPublic(asset, shielded.AccountID(*t.Account)), nil
	default:
		return signer.Transaction{}, fmt.Errorf("unknown transaction kind %q", t.Kind)
	}
}

type checkpointJSON struct {
	Checkpoint shielded.Checkpoint `json:"checkpoint"`
}

type balanceUpdateJSON struct {
	Deposit  []assetJSON `json:"deposit"`
	Withdraw []assetJSON `json:"withdraw"`
}

func encodeBalanceUpdate(u signer.BalanceUpdate) balanceUpdateJSON {
	return balanceUpdateJSON{Deposit: encodeAssets(u.Deposit), Withdraw: encodeAssets(u.Withdraw)}
}

type transactionDataJSON struct {
	Kind     string      `json:"kind"`
	Received []assetJSON `json:"received"`
	Spent    []assetJSON `json:"spent"`
}

func encodeTransactionData(in []signer.TransactionData) []transactionDataJSON {
	out := make([]transactionDataJSON, 0, len(in))
	for _, d := range in {
		j := transactionDataJSON{Kind: d.Kind.String(), Spent: encodeAssets(d.Spent)}
		for _, r := range d.Received {
			j.Received = append(j.Received, encodeAsset(r.Asset))
		}
		out = append(out, j)
	}
	return out
}

type signResponse struct {
	Posts           []raw.TransferPost    `json:"posts"`
	TransactionData []transactionDataJSON `json:"transaction_data,omitempty"`
}

type identityRequestJSON struct {
	AssetID string      `json:"asset_id"`
	Account raw.Bytes32 `json:"account"`
}

type mnemonicJSON struct {
	Mnemonic string `json:"mnemonic"`
}

type taskJSON struct {
	ID      string `json:"id"`
	Network string `json:"network"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}
