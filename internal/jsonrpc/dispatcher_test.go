package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckgen/deckgen/internal/telemetry"
	"github.com/deckgen/deckgen/internal/toolerr"
)

func newTestDispatcher() (*Registry, *Dispatcher) {
	reg := NewRegistry()
	disp := NewDispatcher(reg, telemetry.NewNoopLogger())
	return reg, disp
}

func decodeLines(t *testing.T, out *bytes.Buffer) []Response {
	t.Helper()
	var resps []Response
	for _, line := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		var r Response
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		resps = append(resps, r)
	}
	return resps
}

func TestDispatcher_SuccessRoundTrip(t *testing.T) {
	reg, disp := newTestDispatcher()
	reg.Register("echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		var m map[string]any
		_ = json.Unmarshal(params, &m)
		return m, nil
	})

	in := strings.NewReader(`{"jsonrpc":"2.0","id":"1","method":"echo","params":{"a":1}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, disp.Serve(context.Background(), in, &out))

	resps := decodeLines(t, &out)
	require.Len(t, resps, 1)
	assert.Equal(t, `"1"`, string(resps[0].ID))
	assert.Nil(t, resps[0].Error)
}

func TestDispatcher_MethodNotFound(t *testing.T) {
	_, disp := newTestDispatcher()
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"nope","params":{}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, disp.Serve(context.Background(), in, &out))

	resps := decodeLines(t, &out)
	require.Len(t, resps, 1)
	require.NotNil(t, resps[0].Error)
	assert.Equal(t, CodeMethodNotFound, resps[0].Error.Code)
}

func TestDispatcher_InvalidJSONYieldsParseErrorAndContinues(t *testing.T) {
	reg, disp := newTestDispatcher()
	reg.Register("echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]string{"ok": "yes"}, nil
	})

	in := strings.NewReader("not json\n" + `{"jsonrpc":"2.0","id":2,"method":"echo","params":{}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, disp.Serve(context.Background(), in, &out))

	resps := decodeLines(t, &out)
	require.Len(t, resps, 2)
	require.NotNil(t, resps[0].Error)
	assert.Equal(t, CodeParseError, resps[0].Error.Code)
	assert.Equal(t, "null", string(resps[0].ID))
	assert.Nil(t, resps[1].Error)
}

func TestDispatcher_EmptyLinesIgnored(t *testing.T) {
	reg, disp := newTestDispatcher()
	reg.Register("echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]string{"ok": "yes"}, nil
	})
	in := strings.NewReader("\n   \n" + `{"jsonrpc":"2.0","id":1,"method":"echo","params":{}}` + "\n\n")
	var out bytes.Buffer
	require.NoError(t, disp.Serve(context.Background(), in, &out))

	resps := decodeLines(t, &out)
	require.Len(t, resps, 1)
}

func TestDispatcher_ToolErrorFormatsKindAndMessage(t *testing.T) {
	reg, disp := newTestDispatcher()
	reg.Register("fails", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, toolerr.New(toolerr.BadRequest, "bad field")
	})
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"fails","params":{}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, disp.Serve(context.Background(), in, &out))

	resps := decodeLines(t, &out)
	require.Len(t, resps, 1)
	require.NotNil(t, resps[0].Error)
	assert.Equal(t, CodeToolError, resps[0].Error.Code)
	assert.Equal(t, "BadRequest: bad field", resps[0].Error.Message)
}

func TestDispatcher_SchemaRejectsUnknownParams(t *testing.T) {
	reg, disp := newTestDispatcher()
	schema := `{"type":"object","properties":{"name":{"type":"string"}},"required":["name"],"additionalProperties":false}`
	err := reg.RegisterWithSchema("greet", schema, func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]string{"ok": "yes"}, nil
	})
	require.NoError(t, err)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"greet","params":{"name":"a","extra":1}}` + "\n")
	var out bytes.Buffer
	require.NoError(t, disp.Serve(context.Background(), in, &out))

	resps := decodeLines(t, &out)
	require.Len(t, resps, 1)
	require.NotNil(t, resps[0].Error)
	assert.Equal(t, CodeToolError, resps[0].Error.Code)
}

func TestDispatcher_RequestsAreServedInOrder(t *testing.T) {
	reg, disp := newTestDispatcher()
	reg.Register("echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		var m map[string]int
		_ = json.Unmarshal(params, &m)
		return m, nil
	})

	var lines []string
	for i := 1; i <= 5; i++ {
		lines = append(lines, `{"jsonrpc":"2.0","id":`+string(rune('0'+i))+`,"method":"echo","params":{"n":`+string(rune('0'+i))+`}}`)
	}
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	require.NoError(t, disp.Serve(context.Background(), in, &out))

	resps := decodeLines(t, &out)
	require.Len(t, resps, 5)
	for i, r := range resps {
		assert.Equal(t, string(rune('0'+i+1)), string(r.ID))
	}
}
