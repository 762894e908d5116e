package zkp

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// Sender proves ownership and unspent-ness of one UTXO.
//
// The membership check is conditional on a non-zero value so that
// zero-value padding senders need no accumulator entry.
type Sender struct {
	Root      frontend.Variable `gnark:",public"`
	Nullifier frontend.Variable `gnark:",public"`

	SpendingKey frontend.Variable
	AssetID     frontend.Variable
	Value       frontend.Variable
	Randomness  frontend.Variable
	LeafIndex   frontend.Variable
	Path        []frontend.Variable
}

// Receiver proves that a public commitment opens to a well-formed asset.
type Receiver struct {
	Commitment frontend.Variable `gnark:",public"`

	AssetID    frontend.Variable
	Value      frontend.Variable
	SpendTag   frontend.Variable
	Randomness frontend.Variable
}

// ToPrivateCircuit moves a public source into one shielded UTXO.
type ToPrivateCircuit struct {
	AssetID  frontend.Variable `gnark:",public"`
	Source   frontend.Variable `gnark:",public"`
	Receiver Receiver
}

// PrivateTransferCircuit spends two UTXOs into two new ones.
type PrivateTransferCircuit struct {
	AuthKeyX  frontend.Variable `gnark:",public"`
	AuthKeyY  frontend.Variable `gnark:",public"`
	Senders   [2]Sender
	Receivers [2]Receiver
}

// ToPublicCircuit spends two UTXOs into one UTXO and a public sink.
type ToPublicCircuit struct {
	AssetID  frontend.Variable `gnark:",public"`
	Sink     frontend.Variable `gnark:",public"`
	AuthKeyX frontend.Variable `gnark:",public"`
	AuthKeyY frontend.Variable `gnark:",public"`
	Senders  [2]Sender
	Receiver Receiver
}

func (c *ToPrivateCircuit) Define(api frontend.API) error {
	if err := c.Receiver.define(api); err != nil {
		return err
	}
	rangeCheck(api, c.Source)
	api.AssertIsEqual(c.Receiver.AssetID, c.AssetID)
	api.AssertIsEqual(c.Receiver.Value, c.Source)
	return nil
}

func (c *PrivateTransferCircuit) Define(api frontend.API) error {
	for i := range c.Senders {
		if err := c.Senders[i].define(api, c.AuthKeyX, c.AuthKeyY); err != nil {
			return err
		}
		api.AssertIsEqual(c.Senders[i].AssetID, c.Senders[0].AssetID)
	}
	for i := range c.Receivers {
		if err := c.Receivers[i].define(api); err != nil {
			return err
		}
		api.AssertIsEqual(c.Receivers[i].AssetID, c.Senders[0].AssetID)
	}
	in := api.Add(c.Senders[0].Value, c.Senders[1].Value)
	out := api.Add(c.Receivers[0].Value, c.Receivers[1].Value)
	api.AssertIsEqual(in, out)
	return nil
}

func (c *ToPublicCircuit) Define(api frontend.API) error {
	for i := range c.Senders {
		if err := c.Senders[i].define(api, c.AuthKeyX, c.AuthKeyY); err != nil {
			return err
		}
		api.AssertIsEqual(c.Senders[i].AssetID, c.AssetID)
	}
	if err := c.Receiver.define(api); err != nil {
		return err
	}
	rangeCheck(api, c.Sink)
	api.AssertIsEqual(c.Receiver.AssetID, c.AssetID)
	in := api.Add(c.Senders[0].Value, c.Senders[1].Value)
	out := api.Add(c.Receiver.Value, c.Sink)
	api.AssertIsEqual(in, out)
	return nil
}

func (s *Sender) define(api frontend.API, authX, authY frontend.Variable) error {
	rangeCheck(api, s.Value)

	tag, err := hash(api, s.SpendingKey, authX, authY)
	if err != nil {
		return err
	}
	cm, err := hash(api, s.AssetID, s.Value, tag, s.Randomness)
	if err != nil {
		return err
	}
	// Leaf of an opaque UTXO: H(0, 0, 0, cm).
	cur, err := hash(api, 0, 0, 0, cm)
	if err != nil {
		return err
	}
	bits := api.ToBinary(s.LeafIndex, len(s.Path))
	for l, sibling := range s.Path {
		left := api.Select(bits[l], sibling, cur)
		right := api.Select(bits[l], cur, sibling)
		if cur, err = hash(api, left, right); err != nil {
			return err
		}
	}
	api.AssertIsEqual(api.Mul(s.Value, api.Sub(s.Root, cur)), 0)

	nf, err := hash(api, s.SpendingKey, cm)
	if err != nil {
		return err
	}
	api.AssertIsEqual(s.Nullifier, nf)
	return nil
}

func (r *Receiver) define(api frontend.API) error {
	rangeCheck(api, r.Value)
	cm, err := hash(api, r.AssetID, r.Value, r.SpendTag, r.Randomness)
	if err != nil {
		return err
	}
	api.AssertIsEqual(r.Commitment, cm)
	return nil
}

// hash uses a fresh MiMC instance per digest to match shielded.Hash.
func hash(api frontend.API, inputs ...frontend.Variable) (frontend.Variable, error) {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return nil, err
	}
	h.Write(inputs...)
	return h.Sum(), nil
}

func rangeCheck(api frontend.API, v frontend.Variable) {
	api.ToBinary(v, valueBits)
}
