package httpledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hamzazf/shieldwallet/internal/ledger"
	"github.com/hamzazf/shieldwallet/internal/raw"
	"github.com/hamzazf/shieldwallet/internal/shielded"
)

// DefaultTimeout bounds one request.
const DefaultTimeout = 30 * time.Second

// Client is a ledger.Connection talking to a Server.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ ledger.Connection = (*Client)(nil)

// NewClient returns a client for the server at baseURL
// (for example "http://127.0.0.1:9000").
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// Pull implements ledger.Connection.
func (c *Client) Pull(ctx context.Context, checkpoint shielded.Checkpoint) (*raw.PullResponse, error) {
	var resp raw.PullResponse
	if err := c.send(ctx, TypePull, PullPayload{Checkpoint: checkpoint}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InitialPull implements ledger.Connection.
func (c *Client) InitialPull(ctx context.Context, checkpoint shielded.Checkpoint) (*raw.InitialPullResponse, error) {
	var resp raw.InitialPullResponse
	if err := c.send(ctx, TypeInitialPull, PullPayload{Checkpoint: checkpoint}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push implements ledger.Connection.
func (c *Client) Push(ctx context.Context, posts []raw.TransferPost) (ledger.Response, error) {
	var resp ledger.Response
	if err := c.send(ctx, TypePush, PushPayload{Posts: posts}, &resp); err != nil {
		return ledger.Response{}, err
	}
	return resp, nil
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return ledger.Wrap("health", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ledger.Wrap("health", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ledger.Wrap("health", fmt.Errorf("server returned %s", resp.Status))
	}
	return nil
}

func (c *Client) send(ctx context.Context, typ string, payload, out interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	body, err := json.Marshal(Message{Type: typ, Payload: payloadBytes, RequestID: uuid.NewString()})
	if err != nil {
		return fmt.Errorf("marshal message envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/message", bytes.NewReader(body))
	if err != nil {
		return ledger.Wrap(typ, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ledger.Wrap(typ, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e ErrorBody
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return ledger.Wrap(typ, fmt.Errorf("server returned %s: %s", resp.Status, e.Error))
		}
		return ledger.Wrap(typ, fmt.Errorf("server returned %s", resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ledger.Wrap(typ, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
