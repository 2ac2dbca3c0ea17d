package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ToolError is returned by Client.Call when the dispatcher responds with a
// JSON-RPC error object.
type ToolError struct {
	Code    int
	Message string
}

func (e *ToolError) Error() string { return fmt.Sprintf("tool error %d: %s", e.Code, e.Message) }

// Client starts a tool-server subprocess and speaks JSON-RPC over its
// stdin/stdout, grounded on the reference MCPClient: one process per client,
// a single in-flight call per connection (spec.md §9 "serial queue").
type Client struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu sync.Mutex
}

// NewClient starts name(args...) as a subprocess and wires its stdio for
// JSON-RPC calls. The caller must call Close when done.
func NewClient(ctx context.Context, name string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("jsonrpc: start tool server: %w", err)
	}
	return &Client{cmd: cmd, stdin: stdin, stdout: bufio.NewReaderSize(stdout, 64*1024)}, nil
}

// Close terminates the subprocess, closing stdin first so it sees EOF and
// can shut down cleanly (spec.md §4.2). A process still running five
// seconds after EOF is killed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return c.cmd.Process.Kill()
	}
}

// Call issues method(params), blocking for the matching response. Only one
// call may be in flight at a time per Client (enforced by mu), matching the
// single-threaded-per-connection model in spec.md §4.2/§9.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal params: %w", err)
	}
	idJSON, _ := json.Marshal(id)
	req := Request{JSONRPC: "2.0", ID: idJSON, Method: method, Params: paramsJSON}

	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("jsonrpc: marshal request: %w", err)
	}
	line = append(line, '\n')

	type outcome struct {
		resp Response
		err  error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		if _, err := c.stdin.Write(line); err != nil {
			resultCh <- outcome{err: fmt.Errorf("jsonrpc: write request: %w", err)}
			return
		}
		for {
			respLine, err := c.stdout.ReadString('\n')
			if err != nil {
				resultCh <- outcome{err: fmt.Errorf("jsonrpc: read response: %w", err)}
				return
			}
			var resp Response
			if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
				continue
			}
			if string(resp.ID) != string(idJSON) {
				continue
			}
			resultCh <- outcome{resp: resp}
			return
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case o := <-resultCh:
		if o.err != nil {
			return o.err
		}
		if o.resp.Error != nil {
			return &ToolError{Code: o.resp.Error.Code, Message: o.resp.Error.Message}
		}
		if result == nil {
			return nil
		}
		return json.Unmarshal(o.resp.Result, result)
	}
}
