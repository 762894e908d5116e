// Package httpledger carries the ledger protocol over HTTP. Every request is
// a JSON Message envelope POSTed to /message; its Type selects the
// operation and Payload holds the operation's arguments.
package httpledger

import (
	"encoding/json"

	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

// Message types.
const (
	TypePull        = "pull"
	TypeInitialPull = "initial_pull"
	TypePush        = "push"
)

// Message is the envelope of every request.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"requestId,omitempty"`
}

// PullPayload is the payload of pull and initial_pull.
type PullPayload struct {
	Checkpoint shielded.Checkpoint `json:"checkpoint"`
}

// PushPayload is the payload of push.
type PushPayload struct {
	Posts []raw.TransferPost `json:"posts"`
}

// ErrorBody is returned with non-200 statuses.
type ErrorBody struct {
	Error string `json:"error"`
}
