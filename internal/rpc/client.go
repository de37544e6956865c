// Package rpc is a client for the managed database service, which exposes
// SQL execution only through a single-statement RPC endpoint
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dbrestore/internal/logger"
	"dbrestore/internal/retry"
)

// ExecPath is the RPC function that runs one SQL statement
const ExecPath = "/rest/v1/rpc/exec_sql"

// Error is a non-2xx response from the service. SQL errors carry the
// SQLSTATE in Code.
type Error struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (SQLSTATE %s)", msg, e.Code)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// SQLState returns the SQLSTATE reported by the service
func (e *Error) SQLState() string {
	return e.Code
}

// Temporary reports whether the request may succeed when repeated
func (e *Error) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client calls the managed service
type Client struct {
	baseURL    string
	serviceKey string
	client     *http.Client
	retry      *retry.Config
	log        logger.Logger
}

// NewClient creates a client for baseURL authenticated with a service key
func NewClient(baseURL, serviceKey string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: timeout},
		retry:      retry.RPCConfig(),
		log:        log,
	}
}

// WithRetry replaces the transport retry ladder
func (c *Client) WithRetry(cfg *retry.Config) *Client {
	c.retry = cfg
	return c
}

type execRequest struct {
	Query string `json:"query"`
}

// ExecuteSQL runs one statement and returns the raw JSON result (rows array
// or null). Transport failures and 5xx responses are retried; SQL errors are
// returned at once as *Error.
func (c *Client) ExecuteSQL(ctx context.Context, query string) (json.RawMessage, error) {
	body, err := json.Marshal(execRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("rpc: failed to marshal request: %w", err)
	}

	var result json.RawMessage
	attempts, err := retry.Do(ctx, c.retry, func() error {
		res, err := c.doRequest(ctx, body)
		if err != nil {
			var rpcErr *Error
			if errors.As(err, &rpcErr) && !rpcErr.Temporary() {
				return retry.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}, func(err error, wait time.Duration) {
		c.log.Debug("Retrying managed RPC call", "error", err, "wait", wait)
	})
	if err != nil {
		if attempts > 1 {
			c.log.Warn("Managed RPC call failed after retries", "attempts", attempts, "error", err)
		}
		return nil, err
	}
	return result, nil
}

// Rows runs a query and decodes its rows into out
func (c *Client) Rows(ctx context.Context, query string, out any) error {
	raw, err := c.ExecuteSQL(ctx, query)
	if err != nil {
		return err
	}
	return DecodeRows(raw, out)
}

// DecodeRows decodes an exec_sql result into out. An empty or null result
// leaves out untouched.
func DecodeRows(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("rpc: failed to decode rows: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ExecPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("rpc: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rpcErr := &Error{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(payload, rpcErr); jsonErr != nil || rpcErr.Message == "" {
			rpcErr.Message = strings.TrimSpace(string(payload))
		}
		return nil, rpcErr
	}
	return json.RawMessage(payload), nil
}
