// Package transport implements the single-endpoint JSON/HTTP client used to
// talk to the desired-state server (spec.md §4.3, §6).
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrNoResult is the sentinel returned whenever the server is unreachable,
// replies with non-JSON, or replies {good: false}. Per spec.md §7.1 this is
// not retried within a sync pass — the periodic service supplies the retry
// cadence, not this client.
var ErrNoResult = errors.New("transport: no result")

// Client is an HTTP client for the desired-state server's single action
// endpoint. It deliberately does not retry: spec.md §9 preserves the
// original's no-intra-pass-retry behaviour.
type Client struct {
	address    string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. httpClient may be nil to use http.DefaultClient with
// no timeout override — callers should supply one bounded by
// config.Config.ResolvedHTTPTimeout.
func New(address, password string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		address:    address,
		password:   password,
		httpClient: httpClient,
		logger:     logger,
	}
}

// envelope is the wire request body: the action name, shared password, and
// whatever parameters the action needs, flattened into one JSON object.
type envelope map[string]any

// response is the wire response body (spec.md §4.3).
type response struct {
	Good bool            `json:"good"`
	Data json.RawMessage `json:"data"`
}

// Call issues one request for the given action with the given parameters
// and decodes the "data" field into out (which may be nil to discard it).
// On any transport error, non-JSON reply, or {good: false}, Call returns
// ErrNoResult — the caller treats the object as unavailable this cycle and
// moves on (spec.md §7.1).
func (c *Client) Call(ctx context.Context, action string, params map[string]any, out any) error {
	body := make(envelope, len(params)+2)
	for k, v := range params {
		body[k] = v
	}

	body["action"] = action
	body["password"] = c.password

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("transport: encoding request for %s: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.address, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("transport: building request for %s: %w", action, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", slog.String("action", action), slog.String("error", err.Error()))
		return ErrNoResult
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("reading response failed", slog.String("action", action), slog.String("error", err.Error()))
		return ErrNoResult
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.logger.Warn("response was not valid JSON", slog.String("action", action))
		return ErrNoResult
	}

	if !decoded.Good {
		c.logger.Debug("server reported failure", slog.String("action", action))
		return ErrNoResult
	}

	if out == nil || len(decoded.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("transport: decoding data for %s: %w", action, err)
	}

	return nil
}

// Check calls the "check" action used by `auth` to validate credentials
// before they are persisted (spec.md §4.3).
func (c *Client) Check(ctx context.Context) bool {
	var ok bool
	if err := c.Call(ctx, "check", nil, &ok); err != nil {
		return false
	}

	return ok
}
