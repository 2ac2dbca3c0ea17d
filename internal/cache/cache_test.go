package cache

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_Deterministic(t *testing.T) {
	k1, err := Key("gpt-x", "report text", 5, 700)
	require.NoError(t, err)
	k2, err := Key("gpt-x", "report text", 5, 700)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}

func TestKey_ChangesWithInput(t *testing.T) {
	k1, err := Key("gpt-x", "report text", 5, 700)
	require.NoError(t, err)
	k2, err := Key("gpt-x", "report text", 6, 700)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2, "changing max_sections must change the cache key (spec.md invariant 4)")
}

func TestKey_OrderInsensitiveObjectFields(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}
	k1, err := Key("v1", a)
	require.NoError(t, err)
	k2, err := Key("v1", b)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestFileStore_SetGetRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	val, err := json.Marshal(map[string]string{"title": "hello"})
	require.NoError(t, err)

	require.NoError(t, store.Set("llm_summarize", "abc123", val))
	got, ok := store.Get("llm_summarize", "abc123", time.Hour)
	require.True(t, ok)
	assert.JSONEq(t, string(val), string(got))
}

func TestFileStore_ExpiredEntryIsAbsent(t *testing.T) {
	store := NewFileStore(t.TempDir())
	restore := stubNow(time.Now().Add(-2 * time.Hour))
	defer restore()

	val, _ := json.Marshal(map[string]string{"a": "b"})
	require.NoError(t, store.Set("imagen", "k1", val))

	restoreNow := stubNow(time.Now())
	defer restoreNow()

	_, ok := store.Get("imagen", "k1", time.Hour)
	assert.False(t, ok)
}

func TestFileStore_MissingEntryIsAbsent(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, ok := store.Get("imagen", "nope", time.Hour)
	assert.False(t, ok)
}

func TestFileStore_CorruptEntryIsAbsentNotFatal(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	path := store.path("llm_summarize", "bad")
	require.NoError(t, os.MkdirAll(dir+"/llm_summarize", 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, ok := store.Get("llm_summarize", "bad", time.Hour)
	assert.False(t, ok)
}

func stubNow(t time.Time) func() {
	prev := nowFunc
	nowFunc = func() time.Time { return t }
	return func() { nowFunc = prev }
}
