package raw

// Asset is the wire form of shielded.Asset.
type Asset struct {
	ID    Bytes32 `json:"id"`
	Value Bytes16 `json:"value"`
}

// Utxo is the wire form of shielded.Utxo.
type Utxo struct {
	IsTransparent bool    `json:"is_transparent"`
	PublicAsset   Asset   `json:"public_asset"`
	Commitment    Bytes32 `json:"commitment"`
}

// IncomingNote is the wire form of shielded.IncomingNote.
type IncomingNote struct {
	EphemeralPublicKey Bytes32                 `json:"ephemeral_public_key"`
	Tag                Bytes32                 `json:"tag"`
	Ciphertext         [IncomingBlocks]Bytes32 `json:"ciphertext"`
}

// LightIncomingNote is the wire form of shielded.LightIncomingNote.
type LightIncomingNote struct {
	EphemeralPublicKey Bytes32                 `json:"ephemeral_public_key"`
	Ciphertext         [IncomingBlocks]Bytes32 `json:"ciphertext"`
}

// FullIncomingNote is the wire form of shielded.FullIncomingNote.
type FullIncomingNote struct {
	AddressPartition  uint8             `json:"address_partition"`
	IncomingNote      IncomingNote      `json:"incoming_note"`
	LightIncomingNote LightIncomingNote `json:"light_incoming_note"`
}

// OutgoingNote is the wire form of shielded.OutgoingNote.
type OutgoingNote struct {
	EphemeralPublicKey Bytes32                 `json:"ephemeral_public_key"`
	Ciphertext         [OutgoingBlocks]Bytes32 `json:"ciphertext"`
}

// Nullifier is the wire form of shielded.Nullifier.
type Nullifier struct {
	Commitment   Bytes32      `json:"nullifier_commitment"`
	OutgoingNote OutgoingNote `json:"outgoing_note"`
}

// CurrentPath is the wire form of shielded.CurrentPath.
type CurrentPath struct {
	SiblingDigest Bytes32   `json:"sibling_digest"`
	LeafIndex     uint32    `json:"leaf_index"`
	InnerPath     []Bytes32 `json:"inner_path"`
}

// ReceiverChunk is one (Utxo, FullIncomingNote) entry of a pull response.
type ReceiverChunk struct {
	Utxo Utxo             `json:"utxo"`
	Note FullIncomingNote `json:"note"`
}

// SenderChunk is one (nullifier commitment, OutgoingNote) entry of a pull
// response.
type SenderChunk struct {
	Commitment   Bytes32      `json:"nullifier_commitment"`
	OutgoingNote OutgoingNote `json:"outgoing_note"`
}

// PullResponse is the ledger answer to pull(checkpoint).
type PullResponse struct {
	ShouldContinue bool            `json:"should_continue"`
	Receivers      []ReceiverChunk `json:"receivers"`
	Senders        []SenderChunk   `json:"senders"`
}

// InitialPullResponse is the ledger answer to initial_pull(checkpoint).
type InitialPullResponse struct {
	ShouldContinue      bool          `json:"should_continue"`
	UtxoData            []Utxo        `json:"utxo_data"`
	MembershipProofData []CurrentPath `json:"membership_proof_data"`
	NullifierCount      Bytes16       `json:"nullifier_count"`
}

// SenderPost is the wire form of shielded.SenderPost.
type SenderPost struct {
	UtxoAccumulatorOutput Bytes32   `json:"utxo_accumulator_output"`
	Nullifier             Nullifier `json:"nullifier"`
}

// ReceiverPost is the wire form of shielded.ReceiverPost.
type ReceiverPost struct {
	Utxo Utxo             `json:"utxo"`
	Note FullIncomingNote `json:"note"`
}

// Signature is the wire form of shielded.Signature.
type Signature struct {
	Scalar     Bytes32 `json:"scalar"`
	NoncePoint Bytes32 `json:"nonce_point"`
}

// AuthorizationSignature is the wire form of shielded.AuthorizationSignature.
type AuthorizationSignature struct {
	AuthorizationKey Bytes32   `json:"authorization_key"`
	Signature        Signature `json:"signature"`
}

// TransferPost is the wire form of shielded.TransferPost.
type TransferPost struct {
	AuthorizationSignature *AuthorizationSignature `json:"authorization_signature,omitempty"`
	AssetID                *Bytes32                `json:"asset_id,omitempty"`
	Sources                []Bytes16               `json:"sources"`
	SenderPosts            []SenderPost            `json:"sender_posts"`
	ReceiverPosts          []ReceiverPost          `json:"receiver_posts"`
	Sinks                  []Bytes16               `json:"sinks"`
	Proof                  Bytes128                `json:"proof"`
	SinkAccounts           []Bytes32               `json:"sink_accounts"`
}

// FullParameters pins the public parameters shared by wallets and ledger.
type FullParameters struct {
	GroupGenerator        Bytes32 `json:"group_generator"`
	UtxoAccumulatorHeight uint8   `json:"utxo_accumulator_height"`
}
