package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/internal/toolerr"
)

// Dispatcher serves one connection's worth of tool calls (C1+C2). Scheduling
// is single-threaded cooperative: requests are read and handled strictly
// FIFO, never interleaved (spec.md §4.2).
type Dispatcher struct {
	registry *Registry
	log      telemetry.Logger
}

// NewDispatcher builds a Dispatcher over registry. log may be
// telemetry.NewNoopLogger() in tests.
func NewDispatcher(registry *Registry, log telemetry.Logger) *Dispatcher {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Dispatcher{registry: registry, log: log}
}

// Serve reads newline-delimited JSON-RPC requests from r and writes
// responses to w, one per line, until EOF (spec.md §4.2). It returns nil on
// clean EOF shutdown. Empty/whitespace-only lines are ignored; malformed
// JSON yields a -32700 response with id=null and processing continues.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp := d.handleLine(ctx, line)
		if err := writeLine(bw, resp); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("jsonrpc: read loop: %w", err)
	}
	d.log.Info(ctx, "dispatcher received EOF, shutting down")
	return nil
}

func (d *Dispatcher) handleLine(ctx context.Context, line string) Response {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return newErrorResponse(nil, CodeParseError, "Invalid JSON")
	}
	return d.handleRequest(ctx, req)
}

func (d *Dispatcher) handleRequest(ctx context.Context, req Request) Response {
	entry, ok := d.registry.Lookup(req.Method)
	if !ok {
		return newErrorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}

	if err := entry.ValidateParams(req.Params); err != nil {
		return newErrorResponse(req.ID, CodeToolError, formatToolErr(err))
	}

	result, err := entry.handler(ctx, req.Params)
	if err != nil {
		d.log.Warn(ctx, "tool call failed", "method", req.Method, "error", err.Error())
		return newErrorResponse(req.ID, CodeToolError, formatToolErr(err))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return newErrorResponse(req.ID, CodeToolError, formatToolErr(
			toolerr.Wrap(toolerr.InvalidOutput, "handler result is not JSON-marshalable", err)))
	}
	return newResultResponse(req.ID, payload)
}

// formatToolErr renders "<ErrorKind>: <message>" with no stack traces
// leaked (spec.md §4.1).
func formatToolErr(err error) string {
	if te, ok := err.(*toolerr.Error); ok {
		return fmt.Sprintf("%s: %s", te.Kind, te.Message)
	}
	return err.Error()
}

func writeLine(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
