// Package idempotency implements the persistent client-key → DeckRef store
// (C4, spec.md §4.4). Deck creation is keyed on the request's base
// client_key; per-slide append operations use the derived key
// "<client_key>#s<index>".
package idempotency

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/deckgen/deckgen/internal/atomicfile"
	"github.com/deckgen/deckgen/section"
)

// Entry is the persisted shape of one idempotency record (spec.md §3).
type Entry struct {
	ClientKey  string          `json:"client_key"`
	DeckRef    section.DeckRef `json:"deck_ref"`
	RecordedAt int64           `json:"recorded_at"`
}

// Store records deck-construction side effects against caller-supplied keys
// so repeated calls are observably no-ops (spec.md §8 invariant 1).
type Store interface {
	Lookup(clientKey string) (section.DeckRef, bool)
	Record(clientKey string, ref section.DeckRef) error
}

// SlideKey derives the per-slide idempotency key for slide index i (1-based)
// under clientKey, per spec.md §4.4.
func SlideKey(clientKey string, index int) string {
	return fmt.Sprintf("%s#s%d", clientKey, index)
}

// FileStore is a Store backed by a single durable JSON file (spec.md
// "durable backing file"). The whole map is rewritten atomically on every
// Record call; reads take an in-memory snapshot refreshed from disk under
// lock so concurrent Lookup/Record calls within one process observe a
// consistent view without re-reading the file on every Lookup.
type FileStore struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
	loaded  bool
}

// NewFileStore creates a FileStore backed by path (suggested:
// out/state/idempotency.json). The file is created lazily on first Record.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, entries: map[string]Entry{}}
}

func (s *FileStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := atomicfile.Read(s.path)
	if err != nil {
		s.loaded = true
		return nil
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt store is treated as empty rather than fatal; it will be
		// overwritten on the next successful Record.
		s.loaded = true
		return nil
	}
	s.entries = entries
	s.loaded = true
	return nil
}

// Lookup implements Store.
func (s *FileStore) Lookup(clientKey string) (section.DeckRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return section.DeckRef{}, false
	}
	e, ok := s.entries[clientKey]
	if !ok {
		return section.DeckRef{}, false
	}
	return e.DeckRef, true
}

// Record implements Store, persisting the full map atomically.
func (s *FileStore) Record(clientKey string, ref section.DeckRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.entries[clientKey] = Entry{
		ClientKey:  clientKey,
		DeckRef:    ref,
		RecordedAt: nowFunc().Unix(),
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("idempotency: marshal store: %w", err)
	}
	return atomicfile.Write(s.path, data, 0o644)
}

// nowFunc is overridable in tests.
var nowFunc = time.Now
