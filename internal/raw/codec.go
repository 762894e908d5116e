// codec.go - Conversion between wire values and typed shielded values.
//
// Every decoder checks lengths before any algebraic decoding and rejects
// non-canonical encodings. Encoders are the exact inverse of the decoders:
// Encode(Decode(x)) == x for every valid x.

package raw

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/hamzazf/shieldwallet/internal/shielded"
)

// ---- scalars ----

func decodeField(b *Bytes32) (shielded.Field, error) {
	f, err := fr.LittleEndian.Element((*[fr.Bytes]byte)(b))
	if err != nil {
		return f, decodeErr("Field", "", reasonNotInField)
	}
	return f, nil
}

func encodeField(f *shielded.Field) Bytes32 {
	var out Bytes32
	fr.LittleEndian.PutElement((*[fr.Bytes]byte)(&out), *f)
	return out
}

// DecodeField decodes a little endian field element.
func DecodeField(b Bytes32) (shielded.Field, error) {
	return decodeField(&b)
}

// EncodeField encodes a field element in little endian order.
func EncodeField(f shielded.Field) Bytes32 {
	return encodeField(&f)
}

func decodeGroup(b *Bytes32) (shielded.Group, error) {
	var p shielded.Group
	if _, err := p.SetBytes(b[:]); err != nil {
		return p, decodeErr("Group", "", reasonNotOnCurve)
	}
	if !p.IsOnCurve() {
		return p, decodeErr("Group", "", reasonNotOnCurve)
	}
	if Bytes32(p.Bytes()) != *b {
		return p, decodeErr("Group", "", reasonNonCanonical)
	}
	if !shielded.InPrimeSubgroup(&p) {
		return p, decodeErr("Group", "", reasonSubgroup)
	}
	return p, nil
}

func encodeGroup(p *shielded.Group) Bytes32 {
	return Bytes32(p.Bytes())
}

// DecodeGroup decodes a compressed twisted Edwards point.
func DecodeGroup(b Bytes32) (shielded.Group, error) {
	return decodeGroup(&b)
}

// EncodeGroup compresses a twisted Edwards point.
func EncodeGroup(p shielded.Group) Bytes32 {
	return encodeGroup(&p)
}

// DecodeValue decodes a little endian u128.
func DecodeValue(b Bytes16) uint256.Int {
	var be [ValueSize]byte
	for i := range b {
		be[ValueSize-1-i] = b[i]
	}
	var v uint256.Int
	v.SetBytes(be[:])
	return v
}

// EncodeValue encodes a u128 in little endian order.
func EncodeValue(v *uint256.Int) (Bytes16, error) {
	var out Bytes16
	if v.BitLen() > shielded.MaxValueBits {
		return out, decodeErr("Value", "", reasonOverflow)
	}
	be := v.Bytes32()
	for i := 0; i < ValueSize; i++ {
		out[i] = be[len(be)-1-i]
	}
	return out, nil
}

// ---- assets and utxos ----

// DecodeAsset converts a wire asset.
func DecodeAsset(a Asset) (shielded.Asset, error) {
	id, err := decodeField(&a.ID)
	if err != nil {
		return shielded.Asset{}, within(err, "Asset", "id")
	}
	return shielded.Asset{ID: id, Value: DecodeValue(a.Value)}, nil
}

// EncodeAsset converts a typed asset.
func EncodeAsset(a shielded.Asset) (Asset, error) {
	v, err := EncodeValue(&a.Value)
	if err != nil {
		return Asset{}, within(err, "Asset", "value")
	}
	return Asset{ID: encodeField(&a.ID), Value: v}, nil
}

// DecodeUtxo converts a wire UTXO.
func DecodeUtxo(u Utxo) (shielded.Utxo, error) {
	asset, err := DecodeAsset(u.PublicAsset)
	if err != nil {
		return shielded.Utxo{}, within(err, "Utxo", "public_asset")
	}
	cm, err := decodeField(&u.Commitment)
	if err != nil {
		return shielded.Utxo{}, within(err, "Utxo", "commitment")
	}
	return shielded.Utxo{IsTransparent: u.IsTransparent, PublicAsset: asset, Commitment: cm}, nil
}

// EncodeUtxo converts a typed UTXO.
func EncodeUtxo(u shielded.Utxo) (Utxo, error) {
	asset, err := EncodeAsset(u.PublicAsset)
	if err != nil {
		return Utxo{}, within(err, "Utxo", "public_asset")
	}
	return Utxo{IsTransparent: u.IsTransparent, PublicAsset: asset, Commitment: encodeField(&u.Commitment)}, nil
}

// ---- notes ----

// DecodeIncomingNote converts a wire incoming note.
func DecodeIncomingNote(n IncomingNote) (shielded.IncomingNote, error) {
	var out shielded.IncomingNote
	epk, err := decodeGroup(&n.EphemeralPublicKey)
	if err != nil {
		return out, within(err, "IncomingNote", "ephemeral_public_key")
	}
	tag, err := decodeField(&n.Tag)
	if err != nil {
		return out, within(err, "IncomingNote", "tag")
	}
	out.EphemeralPublicKey = epk
	out.Tag = tag
	for i := range n.Ciphertext {
		c, err := decodeField(&n.Ciphertext[i])
		if err != nil {
			return shielded.IncomingNote{}, within(err, "IncomingNote", "ciphertext")
		}
		out.Ciphertext[i] = c
	}
	return out, nil
}

// EncodeIncomingNote converts a typed incoming note.
func EncodeIncomingNote(n shielded.IncomingNote) IncomingNote {
	out := IncomingNote{
		EphemeralPublicKey: encodeGroup(&n.EphemeralPublicKey),
		Tag:                encodeField(&n.Tag),
	}
	for i := range n.Ciphertext {
		out.Ciphertext[i] = encodeField(&n.Ciphertext[i])
	}
	return out
}

// DecodeLightIncomingNote converts a wire light incoming note.
func DecodeLightIncomingNote(n LightIncomingNote) (shielded.LightIncomingNote, error) {
	var out shielded.LightIncomingNote
	epk, err := decodeGroup(&n.EphemeralPublicKey)
	if err != nil {
		return out, within(err, "LightIncomingNote", "ephemeral_public_key")
	}
	out.EphemeralPublicKey = epk
	for i := range n.Ciphertext {
		copy(out.Ciphertext[32*i:], n.Ciphertext[i][:])
	}
	return out, nil
}

// EncodeLightIncomingNote converts a typed light incoming note.
func EncodeLightIncomingNote(n shielded.LightIncomingNote) LightIncomingNote {
	out := LightIncomingNote{EphemeralPublicKey: encodeGroup(&n.EphemeralPublicKey)}
	for i := range out.Ciphertext {
		copy(out.Ciphertext[i][:], n.Ciphertext[32*i:32*(i+1)])
	}
	return out
}

// DecodeFullIncomingNote converts a wire full incoming note.
func DecodeFullIncomingNote(n FullIncomingNote) (shielded.FullIncomingNote, error) {
	incoming, err := DecodeIncomingNote(n.IncomingNote)
	if err != nil {
		return shielded.FullIncomingNote{}, within(err, "FullIncomingNote", "")
	}
	light, err := DecodeLightIncomingNote(n.LightIncomingNote)
	if err != nil {
		return shielded.FullIncomingNote{}, within(err, "FullIncomingNote", "")
	}
	return shielded.FullIncomingNote{
		AddressPartition:  n.AddressPartition,
		IncomingNote:      incoming,
		LightIncomingNote: light,
	}, nil
}

// EncodeFullIncomingNote converts a typed full incoming note.
func EncodeFullIncomingNote(n shielded.FullIncomingNote) FullIncomingNote {
	return FullIncomingNote{
		AddressPartition:  n.AddressPartition,
		IncomingNote:      EncodeIncomingNote(n.IncomingNote),
		LightIncomingNote: EncodeLightIncomingNote(n.LightIncomingNote),
	}
}

// DecodeOutgoingNote converts a wire outgoing note.
func DecodeOutgoingNote(n OutgoingNote) (shielded.OutgoingNote, error) {
	var out shielded.OutgoingNote
	epk, err := decodeGroup(&n.EphemeralPublicKey)
	if err != nil {
		return out, within(err, "OutgoingNote", "ephemeral_public_key")
	}
	out.EphemeralPublicKey = epk
	for i := range n.Ciphertext {
		copy(out.Ciphertext[32*i:], n.Ciphertext[i][:])
	}
	return out, nil
}

// EncodeOutgoingNote converts a typed outgoing note.
func EncodeOutgoingNote(n shielded.OutgoingNote) OutgoingNote {
	out := OutgoingNote{EphemeralPublicKey: encodeGroup(&n.EphemeralPublicKey)}
	for i := range out.Ciphertext {
		copy(out.Ciphertext[i][:], n.Ciphertext[32*i:32*(i+1)])
	}
	return out
}

// DecodeNullifier converts a wire nullifier.
func DecodeNullifier(n Nullifier) (shielded.Nullifier, error) {
	cm, err := decodeField(&n.Commitment)
	if err != nil {
		return shielded.Nullifier{}, within(err, "Nullifier", "nullifier_commitment")
	}
	note, err := DecodeOutgoingNote(n.OutgoingNote)
	if err != nil {
		return shielded.Nullifier{}, within(err, "Nullifier", "")
	}
	return shielded.Nullifier{Commitment: cm, OutgoingNote: note}, nil
}

// EncodeNullifier converts a typed nullifier.
func EncodeNullifier(n shielded.Nullifier) Nullifier {
	return Nullifier{Commitment: encodeField(&n.Commitment), OutgoingNote: EncodeOutgoingNote(n.OutgoingNote)}
}

// ---- membership paths ----

// DecodeCurrentPath converts a wire membership path.
func DecodeCurrentPath(p CurrentPath) (shielded.CurrentPath, error) {
	if len(p.InnerPath) > MaxInnerPathLen {
		return shielded.CurrentPath{}, decodeErr("CurrentPath", "inner_path", reasonLength)
	}
	sibling, err := decodeField(&p.SiblingDigest)
	if err != nil {
		return shielded.CurrentPath{}, within(err, "CurrentPath", "sibling_digest")
	}
	inner := make([]shielded.Field, len(p.InnerPath))
	for i := range p.InnerPath {
		d, err := decodeField(&p.InnerPath[i])
		if err != nil {
			return shielded.CurrentPath{}, within(err, "CurrentPath", "inner_path")
		}
		inner[i] = d
	}
	return shielded.CurrentPath{SiblingDigest: sibling, LeafIndex: p.LeafIndex, InnerPath: inner}, nil
}

// EncodeCurrentPath converts a typed membership path.
func EncodeCurrentPath(p shielded.CurrentPath) CurrentPath {
	inner := make([]Bytes32, len(p.InnerPath))
	for i := range p.InnerPath {
		inner[i] = encodeField(&p.InnerPath[i])
	}
	return CurrentPath{SiblingDigest: encodeField(&p.SiblingDigest), LeafIndex: p.LeafIndex, InnerPath: inner}
}

// ---- pull responses ----

// DecodePullResponse converts a pull response. One malformed element fails
// the whole response.
func DecodePullResponse(r PullResponse) (bool, shielded.SyncData, error) {
	data := shielded.SyncData{
		UtxoNoteData:  make([]shielded.UtxoNote, len(r.Receivers)),
		NullifierData: make([]shielded.Nullifier, len(r.Senders)),
	}
	for i := range r.Receivers {
		utxo, err := DecodeUtxo(r.Receivers[i].Utxo)
		if err != nil {
			return false, shielded.SyncData{}, within(err, "PullResponse", "receivers")
		}
		note, err := DecodeFullIncomingNote(r.Receivers[i].Note)
		if err != nil {
			return false, shielded.SyncData{}, within(err, "PullResponse", "receivers")
		}
		data.UtxoNoteData[i] = shielded.UtxoNote{Utxo: utxo, Note: note}
	}
	for i := range r.Senders {
		n, err := DecodeNullifier(Nullifier(r.Senders[i]))
		if err != nil {
			return false, shielded.SyncData{}, within(err, "PullResponse", "senders")
		}
		data.NullifierData[i] = n
	}
	return r.ShouldContinue, data, nil
}

// EncodePullResponse converts typed sync data into a pull response.
func EncodePullResponse(shouldContinue bool, data shielded.SyncData) (PullResponse, error) {
	out := PullResponse{
		ShouldContinue: shouldContinue,
		Receivers:      make([]ReceiverChunk, len(data.UtxoNoteData)),
		Senders:        make([]SenderChunk, len(data.NullifierData)),
	}
	for i := range data.UtxoNoteData {
		utxo, err := EncodeUtxo(data.UtxoNoteData[i].Utxo)
		if err != nil {
			return PullResponse{}, err
		}
		out.Receivers[i] = ReceiverChunk{Utxo: utxo, Note: EncodeFullIncomingNote(data.UtxoNoteData[i].Note)}
	}
	for i := range data.NullifierData {
		out.Senders[i] = SenderChunk(EncodeNullifier(data.NullifierData[i]))
	}
	return out, nil
}

// DecodeInitialPullResponse converts an initial pull response.
func DecodeInitialPullResponse(r InitialPullResponse) (bool, shielded.InitialSyncData, error) {
	count := DecodeValue(r.NullifierCount)
	if !count.IsUint64() {
		return false, shielded.InitialSyncData{}, decodeErr("InitialPullResponse", "nullifier_count", reasonOverflow)
	}
	data := shielded.InitialSyncData{
		UtxoData:            make([]shielded.Utxo, len(r.UtxoData)),
		MembershipProofData: make([]shielded.CurrentPath, len(r.MembershipProofData)),
		NullifierCount:      count.Uint64(),
	}
	for i := range r.UtxoData {
		u, err := DecodeUtxo(r.UtxoData[i])
		if err != nil {
			return false, shielded.InitialSyncData{}, within(err, "InitialPullResponse", "utxo_data")
		}
		data.UtxoData[i] = u
	}
	for i := range r.MembershipProofData {
		p, err := DecodeCurrentPath(r.MembershipProofData[i])
		if err != nil {
			return false, shielded.InitialSyncData{}, within(err, "InitialPullResponse", "membership_proof_data")
		}
		data.MembershipProofData[i] = p
	}
	return r.ShouldContinue, data, nil
}

// EncodeInitialPullResponse converts typed initial sync data.
func EncodeInitialPullResponse(shouldContinue bool, data shielded.InitialSyncData) (InitialPullResponse, error) {
	count, _ := EncodeValue(uint256.NewInt(data.NullifierCount))
	out := InitialPullResponse{
		ShouldContinue:      shouldContinue,
		UtxoData:            make([]Utxo, len(data.UtxoData)),
		MembershipProofData: make([]CurrentPath, len(data.MembershipProofData)),
		NullifierCount:      count,
	}
	for i := range data.UtxoData {
		u, err := EncodeUtxo(data.UtxoData[i])
		if err != nil {
			return InitialPullResponse{}, err
		}
		out.UtxoData[i] = u
	}
	for i := range data.MembershipProofData {
		out.MembershipProofData[i] = EncodeCurrentPath(data.MembershipProofData[i])
	}
	return out, nil
}

// ---- posts ----

// DecodeSenderPost converts a wire sender post.
func DecodeSenderPost(p SenderPost) (shielded.SenderPost, error) {
	root, err := decodeField(&p.UtxoAccumulatorOutput)
	if err != nil {
		return shielded.SenderPost{}, within(err, "SenderPost", "utxo_accumulator_output")
	}
	n, err := DecodeNullifier(p.Nullifier)
	if err != nil {
		return shielded.SenderPost{}, within(err, "SenderPost", "")
	}
	return shielded.SenderPost{UtxoAccumulatorOutput: root, Nullifier: n}, nil
}

// EncodeSenderPost converts a typed sender post.
func EncodeSenderPost(p shielded.SenderPost) SenderPost {
	return SenderPost{UtxoAccumulatorOutput: encodeField(&p.UtxoAccumulatorOutput), Nullifier: EncodeNullifier(p.Nullifier)}
}

// DecodeReceiverPost converts a wire receiver post.
func DecodeReceiverPost(p ReceiverPost) (shielded.ReceiverPost, error) {
	utxo, err := DecodeUtxo(p.Utxo)
	if err != nil {
		return shielded.ReceiverPost{}, within(err, "ReceiverPost", "")
	}
	note, err := DecodeFullIncomingNote(p.Note)
	if err != nil {
		return shielded.ReceiverPost{}, within(err, "ReceiverPost", "")
	}
	return shielded.ReceiverPost{Utxo: utxo, Note: note}, nil
}

// EncodeReceiverPost converts a typed receiver post.
func EncodeReceiverPost(p shielded.ReceiverPost) (ReceiverPost, error) {
	utxo, err := EncodeUtxo(p.Utxo)
	if err != nil {
		return ReceiverPost{}, within(err, "ReceiverPost", "")
	}
	return ReceiverPost{Utxo: utxo, Note: EncodeFullIncomingNote(p.Note)}, nil
}

// DecodeAuthorizationSignature converts a wire authorization signature.
func DecodeAuthorizationSignature(s AuthorizationSignature) (shielded.AuthorizationSignature, error) {
	var out shielded.AuthorizationSignature
	key, err := decodeGroup(&s.AuthorizationKey)
	if err != nil {
		return out, within(err, "AuthorizationSignature", "authorization_key")
	}
	nonce, err := decodeGroup(&s.Signature.NoncePoint)
	if err != nil {
		return out, within(err, "AuthorizationSignature", "signature.nonce_point")
	}
	if new(big.Int).SetBytes(s.Signature.Scalar[:]).Cmp(shielded.ScalarOrder()) >= 0 {
		return out, decodeErr("AuthorizationSignature", "signature.scalar", reasonScalarRange)
	}
	out.AuthorizationKey = key
	out.Signature = shielded.Signature{Scalar: s.Signature.Scalar, NoncePoint: nonce}
	return out, nil
}

// EncodeAuthorizationSignature converts a typed authorization signature.
func EncodeAuthorizationSignature(s shielded.AuthorizationSignature) AuthorizationSignature {
	return AuthorizationSignature{
		AuthorizationKey: encodeGroup(&s.AuthorizationKey),
		Signature: Signature{
			Scalar:     s.Signature.Scalar,
			NoncePoint: encodeGroup(&s.Signature.NoncePoint),
		},
	}
}

// DecodeProof converts a compressed Groth16 proof.
func DecodeProof(b Bytes128) (shielded.Proof, error) {
	var p shielded.Proof
	if _, err := p.Ar.SetBytes(b[0:32]); err != nil {
		return p, decodeErr("Proof", "a", reasonNotOnCurve)
	}
	if _, err := p.Bs.SetBytes(b[32:96]); err != nil {
		return p, decodeErr("Proof", "b", reasonNotOnCurve)
	}
	if _, err := p.Krs.SetBytes(b[96:128]); err != nil {
		return p, decodeErr("Proof", "c", reasonNotOnCurve)
	}
	if EncodeProof(p) != b {
		return p, decodeErr("Proof", "", reasonNonCanonical)
	}
	return p, nil
}

// DecodeProofBytes checks the length of b and decodes it as a proof.
func DecodeProofBytes(b []byte) (shielded.Proof, error) {
	arr, err := Bytes128FromSlice(b)
	if err != nil {
		return shielded.Proof{}, within(err, "Proof", "")
	}
	return DecodeProof(arr)
}

// EncodeProof compresses a Groth16 proof.
func EncodeProof(p shielded.Proof) Bytes128 {
	var out Bytes128
	ar := p.Ar.Bytes()
	bs := p.Bs.Bytes()
	krs := p.Krs.Bytes()
	copy(out[0:32], ar[:])
	copy(out[32:96], bs[:])
	copy(out[96:128], krs[:])
	return out
}

// DecodeTransferPost converts a wire transfer post.
func DecodeTransferPost(p TransferPost) (shielded.TransferPost, error) {
	var out shielded.TransferPost
	if p.AuthorizationSignature != nil {
		sig, err := DecodeAuthorizationSignature(*p.AuthorizationSignature)
		if err != nil {
			return shielded.TransferPost{}, within(err, "TransferPost", "")
		}
		out.AuthorizationSignature = &sig
	}
	if p.AssetID != nil {
		id, err := decodeField(p.AssetID)
		if err != nil {
			return shielded.TransferPost{}, within(err, "TransferPost", "asset_id")
		}
		out.AssetID = &id
	}
	out.Sources = decodeValues(p.Sources)
	out.Sinks = decodeValues(p.Sinks)
	out.SenderPosts = make([]shielded.SenderPost, len(p.SenderPosts))
	for i := range p.SenderPosts {
		s, err := DecodeSenderPost(p.SenderPosts[i])
		if err != nil {
			return shielded.TransferPost{}, within(err, "TransferPost", "sender_posts")
		}
		out.SenderPosts[i] = s
	}
	out.ReceiverPosts = make([]shielded.ReceiverPost, len(p.ReceiverPosts))
	for i := range p.ReceiverPosts {
		r, err := DecodeReceiverPost(p.ReceiverPosts[i])
		if err != nil {
			return shielded.TransferPost{}, within(err, "TransferPost", "receiver_posts")
		}
		out.ReceiverPosts[i] = r
	}
	proof, err := DecodeProof(p.Proof)
	if err != nil {
		return shielded.TransferPost{}, within(err, "TransferPost", "")
	}
	out.Proof = proof
	out.SinkAccounts = make([]shielded.AccountID, len(p.SinkAccounts))
	for i := range p.SinkAccounts {
		out.SinkAccounts[i] = shielded.AccountID(p.SinkAccounts[i])
	}
	return out, nil
}

// EncodeTransferPost converts a typed transfer post.
func EncodeTransferPost(p shielded.TransferPost) (TransferPost, error) {
	var out TransferPost
	if p.AuthorizationSignature != nil {
		sig := EncodeAuthorizationSignature(*p.AuthorizationSignature)
		out.AuthorizationSignature = &sig
	}
	if p.AssetID != nil {
		id := encodeField(p.AssetID)
		out.AssetID = &id
	}
	var err error
	if out.Sources, err = encodeValues(p.Sources); err != nil {
		return TransferPost{}, within(err, "TransferPost", "sources")
	}
	if out.Sinks, err = encodeValues(p.Sinks); err != nil {
		return TransferPost{}, within(err, "TransferPost", "sinks")
	}
	out.SenderPosts = make([]SenderPost, len(p.SenderPosts))
	for i := range p.SenderPosts {
		out.SenderPosts[i] = EncodeSenderPost(p.SenderPosts[i])
	}
	out.ReceiverPosts = make([]ReceiverPost, len(p.ReceiverPosts))
	for i := range p.ReceiverPosts {
		r, err := EncodeReceiverPost(p.ReceiverPosts[i])
		if err != nil {
			return TransferPost{}, within(err, "TransferPost", "receiver_posts")
		}
		out.ReceiverPosts[i] = r
	}
	out.Proof = EncodeProof(p.Proof)
	out.SinkAccounts = make([]Bytes32, len(p.SinkAccounts))
	for i := range p.SinkAccounts {
		out.SinkAccounts[i] = Bytes32(p.SinkAccounts[i])
	}
	return out, nil
}

// DecodeTransferPosts converts a batch of posts.
func DecodeTransferPosts(posts []TransferPost) ([]shielded.TransferPost, error) {
	out := make([]shielded.TransferPost, len(posts))
	for i := range posts {
		p, err := DecodeTransferPost(posts[i])
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// EncodeTransferPosts converts a batch of posts.
func EncodeTransferPosts(posts []shielded.TransferPost) ([]TransferPost, error) {
	out := make([]TransferPost, len(posts))
	for i := range posts {
		p, err := EncodeTransferPost(posts[i])
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func decodeValues(in []Bytes16) []uint256.Int {
	out := make([]uint256.Int, len(in))
	for i := range in {
		out[i] = DecodeValue(in[i])
	}
	return out
}

func encodeValues(in []uint256.Int) ([]Bytes16, error) {
	out := make([]Bytes16, len(in))
	for i := range in {
		v, err := EncodeValue(&in[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ---- parameters ----

// DecodeParameters checks the generator against the canonical one and the
// accumulator height against the supported range.
func DecodeParameters(p FullParameters) (shielded.Parameters, error) {
	g, err := decodeGroup(&p.GroupGenerator)
	if err != nil {
		return shielded.Parameters{}, within(err, "FullParameters", "group_generator")
	}
	base := shielded.Base()
	if !g.Equal(&base) {
		return shielded.Parameters{}, decodeErr("FullParameters", "group_generator", "unexpected generator")
	}
	h := int(p.UtxoAccumulatorHeight)
	if h < 1 || h > shielded.MaxAccumulatorHeight {
		return shielded.Parameters{}, decodeErr("FullParameters", "utxo_accumulator_height", "unsupported height")
	}
	return shielded.Parameters{Generator: g, AccumulatorHeight: h}, nil
}

// EncodeParameters converts typed parameters.
func EncodeParameters(p shielded.Parameters) FullParameters {
	return FullParameters{GroupGenerator: encodeGroup(&p.Generator), UtxoAccumulatorHeight: uint8(p.AccumulatorHeight)}
}
