// Package shielded holds the typed values exchanged between the wire codec,
// the signer and the ledger: field and group elements, assets, UTXOs,
// incoming/outgoing notes, nullifiers, membership paths, checkpoints and
// transfer posts.
//
// Cryptographic setting:
//   - Field elements live in the BN254 scalar field (gnark-crypto fr)
//   - Group elements are points of the BN254 twisted Edwards curve
//   - Commitments, nullifiers and note key streams use MiMC
//   - Notes are encrypted with a DH shared point and a MiMC mask chain
//
// Values in this package are plain Go values. Once decoded they are handed by
// value to the next processing stage and never mutated in place.
package shielded
