// Package ledger defines how a wallet reaches its ledger: the raw pull,
// initial pull and push operations of a Connection, and typed readers that
// run the wire codec over them.
//
// A connection only answers questions asked at a checkpoint. It never
// advances a checkpoint itself.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

// ErrConnection matches every *ConnectionError.
var ErrConnection = errors.New("ledger: connection failed")

// ConnectionError is a transport failure. The wallet state is untouched and
// the same request may be retried.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// Wrap turns a transport error into a *ConnectionError. Errors that already
// are connection errors are returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}

// Connection is the ledger side of the sync protocol.
type Connection interface {
	// Pull returns receivers and nullifiers recorded after checkpoint.
	Pull(ctx context.Context, checkpoint shielded.Checkpoint) (*raw.PullResponse, error)
	// InitialPull returns every UTXO after checkpoint with membership
	// paths, for a from-scratch rebuild.
	InitialPull(ctx context.Context, checkpoint shielded.Checkpoint) (*raw.InitialPullResponse, error)
	// Push submits posts. A rejection is a Response, not an error.
	Push(ctx context.Context, posts []raw.TransferPost) (Response, error)
}

// Response is the ledger verdict on a push. Rejections are final; they are
// not retried.
type Response struct {
	Accepted bool   `json:"accepted"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Receipt  string `json:"receipt,omitempty"`
}

// Accept builds an accepting response.
func Accept(receipt string) Response {
	return Response{Accepted: true, Receipt: receipt}
}

// Reject builds a rejecting response.
func Reject(code, format string, args ...interface{}) Response {
	return Response{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func (r Response) String() string {
	if r.Accepted {
		return "accepted " + r.Receipt
	}
	return fmt.Sprintf("rejected (%s): %s", r.Code, r.Reason)
}

// ReadResponse is one decoded answer of the ledger. ShouldContinue is false
// on the terminal answer of a sync.
type ReadResponse[T any] struct {
	ShouldContinue bool
	Data           T
}

// ReadSync pulls at checkpoint and decodes the answer.
func ReadSync(ctx context.Context, c Connection, checkpoint shielded.Checkpoint) (ReadResponse[shielded.SyncData], error) {
	resp, err := c.Pull(ctx, checkpoint)
	if err != nil {
		return ReadResponse[shielded.SyncData]{}, Wrap("pull", err)
	}
	more, data, err := raw.DecodePullResponse(*resp)
	if err != nil {
		return ReadResponse[shielded.SyncData]{}, err
	}
	return ReadResponse[shielded.SyncData]{ShouldContinue: more, Data: data}, nil
}

// ReadInitialSync pulls initial sync data at checkpoint and decodes it.
func ReadInitialSync(ctx context.Context, c Connection, checkpoint shielded.Checkpoint) (ReadResponse[shielded.InitialSyncData], error) {
	resp, err := c.InitialPull(ctx, checkpoint)
	if err != nil {
		return ReadResponse[shielded.InitialSyncData]{}, Wrap("initial_pull", err)
	}
	more, data, err := raw.DecodeInitialPullResponse(*resp)
	if err != nil {
		return ReadResponse[shielded.InitialSyncData]{}, err
	}
	return ReadResponse[shielded.InitialSyncData]{ShouldContinue: more, Data: data}, nil
}

// Write encodes posts and pushes them.
func Write(ctx context.Context, c Connection, posts []shielded.TransferPost) (Response, error) {
	encoded, err := raw.EncodeTransferPosts(posts)
	if err != nil {
		return Response{}, fmt.Errorf("encode posts: %w", err)
	}
	resp, err := c.Push(ctx, encoded)
	if err != nil {
		return Response{}, Wrap("push", err)
	}
	return resp, nil
}
