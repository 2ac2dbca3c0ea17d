// Package cache implements the content-addressed result store (C3, spec.md
// §4.3): per-namespace TTL-bounded entries keyed by a SHA-256 hash over a
// canonicalized input tuple plus a model/version tag.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deckgen/deckgen/internal/atomicfile"
)

// Entry is the persisted shape of one cache record (spec.md §3 CacheEntry).
type Entry struct {
	Key       string          `json:"key"`
	Namespace string          `json:"namespace"`
	Value     json.RawMessage `json:"value"`
	CreatedAt int64           `json:"created_at"`
}

// Store is a namespaced, TTL-aware key/value cache.
type Store interface {
	// Get returns the raw JSON value for key if present and not expired.
	Get(namespace, key string, ttl time.Duration) (json.RawMessage, bool)
	// Set stores value under namespace/key, stamped with the current time.
	Set(namespace, key string, value json.RawMessage) error
}

// Key canonicalizes parts (sorted-key JSON per part, joined with a unit
// separator) and a trailing model/version tag, then returns the first 32 hex
// characters of its SHA-256 digest, satisfying the "≥16 chars" floor in
// spec.md §4.3 with headroom.
func Key(tag string, parts ...any) (string, error) {
	h := sha256.New()
	for _, p := range parts {
		canon, err := canonicalize(p)
		if err != nil {
			return "", err
		}
		h.Write(canon)
		h.Write([]byte{0x1f})
	}
	h.Write([]byte(tag))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:32], nil
}

// canonicalize round-trips v through encoding/json with sorted map keys
// (the default since Go 1.12) and no insignificant whitespace.
func canonicalize(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(strings.TrimSpace(t)), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return nil, err
		}
		return marshalSorted(generic)
	}
}

func marshalSorted(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			vb, err := marshalSorted(t[k])
			if err != nil {
				return nil, err
			}
			b.Write(vb)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			eb, err := marshalSorted(e)
			if err != nil {
				return nil, err
			}
			b.Write(eb)
		}
		b.WriteByte(']')
		return []byte(b.String()), nil
	default:
		return json.Marshal(t)
	}
}

// FileStore is a Store backed by one JSON file per namespace/key under dir,
// using atomic rename on every write (spec.md §5 "Shared resources").
// Concurrent readers are safe; writers for the same key are serialized by
// an in-process mutex (write-last-wins across processes is acceptable per
// spec.md §4.3 since the value is a pure function of the key).
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir (suggested: out/cache).
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(namespace, key string) string {
	return filepath.Join(s.dir, namespace, key+".json")
}

// Get implements Store. A corrupt entry is treated as absent, not fatal,
// per spec.md §4.3.
func (s *FileStore) Get(namespace, key string, ttl time.Duration) (json.RawMessage, bool) {
	data, err := os.ReadFile(s.path(namespace, key))
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	age := time.Since(time.Unix(e.CreatedAt, 0))
	if ttl > 0 && age > ttl {
		return nil, false
	}
	return e.Value, true
}

// Set implements Store.
func (s *FileStore) Set(namespace, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{Key: key, Namespace: namespace, Value: value, CreatedAt: nowFunc().Unix()}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}
	return atomicfile.Write(s.path(namespace, key), data, 0o644)
}

// nowFunc is overridable in tests.
var nowFunc = time.Now
