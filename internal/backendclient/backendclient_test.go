package backendclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckgen/deckgen/internal/retry"
	"github.com/deckgen/deckgen/internal/toolerr"
)

func TestClient_Call_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llm.summarize", req.Method)
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"ok":true}`)})
	}))
	defer srv.Close()

	c := New(srv.URL)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Call(context.Background(), "llm.summarize", map[string]string{"a": "b"}, &out))
	assert.True(t, out.OK)
}

func TestClient_Call_RetryableStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Call(context.Background(), "image.generate", nil, nil)
	require.Error(t, err)
	assert.True(t, retry.IsRetryableToolErr(err))
	assert.Equal(t, toolerr.Transient, toolerr.KindOf(err))
}

func TestClient_Call_NonRetryableStatusIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Call(context.Background(), "image.generate", nil, nil)
	require.Error(t, err)
	assert.False(t, retry.IsRetryableToolErr(err))
	assert.Equal(t, toolerr.Permanent, toolerr.KindOf(err))
}

func TestClient_Call_RPCErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: "boom"}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Call(context.Background(), "slides.create", nil, nil)
	require.Error(t, err)
	assert.Equal(t, toolerr.Permanent, toolerr.KindOf(err))
}
