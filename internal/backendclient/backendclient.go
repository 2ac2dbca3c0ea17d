// Package backendclient is the generic JSON-RPC-over-HTTP client shared by
// the summarizer, image generator, and deck renderer tool backends (spec.md
// §1 "external collaborators whose contracts are fixed in §6"). It is
// grounded on the teacher's a2a/httpclient.Client: a bare net/http.Client
// POSTing a JSON-RPC envelope and decoding the response.
package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/deckgen/deckgen/internal/toolerr"
)

// Option configures a Client.
type Option func(*Client)

// Client calls a single backend method over HTTP JSON-RPC.
type Client struct {
	endpoint string
	http     *http.Client
	headers  http.Header
	id       uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithHeader adds a static header to every outgoing request.
func WithHeader(name, value string) Option {
	return func(cl *Client) {
		if cl.headers == nil {
			cl.headers = make(http.Header)
		}
		cl.headers.Add(name, value)
	}
}

// WithBearerToken configures an Authorization: Bearer header.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// New constructs a Client targeting endpoint.
func New(endpoint string, opts ...Option) *Client {
	cl := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
		headers:  make(http.Header),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	return cl
}

func (c *Client) nextID() uint64 { return atomic.AddUint64(&c.id, 1) }

// Call posts method/params as a JSON-RPC request and decodes the result into
// out. Errors are classified per spec.md §4.5: a transport failure or an
// HTTP status in {429,500,502,503,504} produces a *toolerr.Error tagged
// Transient; any other HTTP status and any RPC error object are tagged
// Permanent, and undecodable responses InvalidOutput, so callers can plug
// the result straight into retry.IsRetryableToolErr.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	rpcReq := rpcRequest{JSONRPC: "2.0", Method: method, ID: c.nextID(), Params: params}
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return toolerr.Wrap(toolerr.Permanent, "marshal backend request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return toolerr.Wrap(toolerr.Permanent, "build backend request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return toolerr.Wrap(toolerr.Transient, "backend request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		kind := toolerr.Permanent
		if isRetryableStatus(resp.StatusCode) {
			kind = toolerr.Transient
		}
		return toolerr.New(kind, fmt.Sprintf("backend http status %d", resp.StatusCode))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return toolerr.Wrap(toolerr.InvalidOutput, "decode backend response", err)
	}
	if rpcResp.Error != nil {
		return toolerr.New(toolerr.Permanent, fmt.Sprintf("backend error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return toolerr.Wrap(toolerr.InvalidOutput, "unmarshal backend result", err)
	}
	return nil
}

// isRetryableStatus reports the HTTP statuses spec.md §4.5 marks retryable.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
