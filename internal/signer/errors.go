package signer

import (
	"errors"
	"fmt"

	"github.com/hamzazf/shieldwallet/internal/shielded"
)

var (
	// ErrInconsistency matches every *InconsistencyError.
	ErrInconsistency = errors.New("signer: inconsistent with ledger")
	// ErrSign matches every *SignError.
	ErrSign = errors.New("signer: signing failed")

	ErrAccountsNotLoaded = errors.New("signer: account table not loaded")
	ErrStorageVersion    = errors.New("signer: unsupported storage version")
)

// InconsistencyKind classifies a mismatch between local and ledger state.
type InconsistencyKind int

const (
	// InconsistentSynchronization: the ledger answered from a checkpoint
	// ahead of the signer. Retrying at the signer checkpoint recovers.
	InconsistentSynchronization InconsistencyKind = iota
	// DuplicateNullifier: a nullifier of an already spent UTXO was seen again.
	DuplicateNullifier
	// CheckpointRegression: a step moved the checkpoint backwards.
	CheckpointRegression
	// AccumulatorMismatch: the local accumulator disagrees with the ledger.
	AccumulatorMismatch
	// NotReset: initial synchronization on a signer holding state.
	NotReset
)

func (k InconsistencyKind) String() string {
	switch k {
	case InconsistentSynchronization:
		return "inconsistent synchronization"
	case DuplicateNullifier:
		return "duplicate nullifier"
	case CheckpointRegression:
		return "checkpoint regression"
	case AccumulatorMismatch:
		return "accumulator mismatch"
	case NotReset:
		return "state not reset"
	default:
		return fmt.Sprintf("inconsistency(%d)", int(k))
	}
}

// RequiresResync reports whether recovery needs ResetState followed by a
// full initial synchronization, as opposed to a retry at the checkpoint.
func (k InconsistencyKind) RequiresResync() bool {
	return k != InconsistentSynchronization && k != NotReset
}

// InconsistencyError reports local state that cannot follow the ledger.
type InconsistencyError struct {
	Kind       InconsistencyKind
	Checkpoint shielded.Checkpoint
	Detail     string
}

func (e *InconsistencyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("signer: %s at %s", e.Kind, e.Checkpoint)
	}
	return fmt.Sprintf("signer: %s at %s: %s", e.Kind, e.Checkpoint, e.Detail)
}

func (e *InconsistencyError) Is(target error) bool { return target == ErrInconsistency }

func inconsistent(kind InconsistencyKind, cp shielded.Checkpoint, format string, args ...interface{}) *InconsistencyError {
	return &InconsistencyError{Kind: kind, Checkpoint: cp, Detail: fmt.Sprintf(format, args...)}
}

// SignErrorKind classifies signing failures.
type SignErrorKind int

const (
	InsufficientBalance SignErrorKind = iota
	ProofSystemError
	MissingAuthorization
	InvalidTransaction
)

func (k SignErrorKind) String() string {
	switch k {
	case InsufficientBalance:
		return "insufficient balance"
	case ProofSystemError:
		return "proof system error"
	case MissingAuthorization:
		return "missing authorization"
	case InvalidTransaction:
		return "invalid transaction"
	default:
		return fmt.Sprintf("sign error(%d)", int(k))
	}
}

// SignError is returned by Sign and IdentityProof.
type SignError struct {
	Kind SignErrorKind
	Err  error
}

func (e *SignError) Error() string {
	if e.Err == nil {
		return "signer: " + e.Kind.String()
	}
	return fmt.Sprintf("signer: %s: %v", e.Kind, e.Err)
}

func (e *SignError) Unwrap() error { return e.Err }

func (e *SignError) Is(target error) bool { return target == ErrSign }

func signErr(kind SignErrorKind, format string, args ...interface{}) *SignError {
	return &SignError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
