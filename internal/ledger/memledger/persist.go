package memledger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

type fileCredit struct {
	Account raw.Bytes32 `json:"account"`
	AssetID raw.Bytes32 `json:"asset_id"`
	Value   raw.Bytes16 `json:"value"`
}

type file struct {
	Parameters raw.FullParameters  `json:"parameters"`
	Receivers  []raw.ReceiverChunk `json:"receivers"`
	Nullifiers []raw.SenderChunk   `json:"nullifiers"`
	Credits    []fileCredit        `json:"credits"`
}

// SaveToFile writes the ledger as indented JSON, overwriting path.
func (l *Ledger) SaveToFile(path string) error {
	l.mu.Lock()
	records, err := raw.EncodePullResponse(false, shielded.SyncData{UtxoNoteData: l.receivers, NullifierData: l.nullifiers})
	if err != nil {
		l.mu.Unlock()
		return err
	}
	out := file{
		Parameters: raw.EncodeParameters(l.params),
		Receivers:  records.Receivers,
		Nullifiers: records.Senders,
	}
	for account, m := range l.credits {
		for id, v := range m {
			value, err := raw.EncodeValue(v)
			if err != nil {
				l.mu.Unlock()
				return err
			}
			out.Credits = append(out.Credits, fileCredit{Account: raw.Bytes32(account), AssetID: raw.EncodeField(id), Value: value})
		}
	}
	l.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(&out)
}

// LoadFromFile reads a ledger written by SaveToFile and replays its records.
func LoadFromFile(path string, opts ...Option) (*Ledger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var in file
	if err := json.NewDecoder(f).Decode(&in); err != nil {
		return nil, fmt.Errorf("memledger: %s: %w", path, err)
	}
	params, err := raw.DecodeParameters(in.Parameters)
	if err != nil {
		return nil, fmt.Errorf("memledger: %s: %w", path, err)
	}
	_, data, err := raw.DecodePullResponse(raw.PullResponse{Receivers: in.Receivers, Senders: in.Nullifiers})
	if err != nil {
		return nil, fmt.Errorf("memledger: %s: %w", path, err)
	}
	l, err := New(params, opts...)
	if err != nil {
		return nil, err
	}
	for _, r := range data.UtxoNoteData {
		if _, err := l.tree.Insert(shielded.ItemHash(&r.Utxo)); err != nil {
			return nil, fmt.Errorf("memledger: %s: %w", path, err)
		}
		l.roots[l.tree.Root()] = struct{}{}
		l.commitments[r.Utxo.Commitment] = struct{}{}
	}
	for _, n := range data.NullifierData {
		l.spent[n.Commitment] = struct{}{}
	}
	l.receivers = data.UtxoNoteData
	l.nullifiers = data.NullifierData
	for _, c := range in.Credits {
		id, err := raw.DecodeField(c.AssetID)
		if err != nil {
			return nil, fmt.Errorf("memledger: %s: credit: %w", path, err)
		}
		l.credit(credit{account: shielded.AccountID(c.Account), id: id, value: raw.DecodeValue(c.Value)})
	}
	return l, nil
}
