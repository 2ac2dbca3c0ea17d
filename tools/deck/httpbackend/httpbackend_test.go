package httpbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_CreatePresentation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "slides.presentations.create", req.Method)
		result, _ := json.Marshal(createPresentationResult{PresentationID: "p1", URL: "https://x/p1", BlankSlideID: "b1"})
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": json.RawMessage(result)})
	}))
	defer srv.Close()

	backend := New(srv.URL)
	pid, url, blank, err := backend.CreatePresentation(context.Background(), "Title")
	require.NoError(t, err)
	assert.Equal(t, "p1", pid)
	assert.Equal(t, "https://x/p1", url)
	assert.Equal(t, "b1", blank)
}
