// Package cache implements the content-addressed, per-package symbol/call
// graph cache described in spec.md §6: entries are keyed by (PackageId,
// content-hash of source tree) so a version-string collision across
// repositories cannot poison results. Grounded on gorisk's
// internal/interproc/cache.go sha256-keyed CacheEntry scheme.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/1homsi/reachscan/internal/model"
)

// Key uniquely identifies one package's cached parse/symbol/call-graph output.
type Key struct {
	Package  model.PackageId
	CodeHash string // sha256 of the package's source file contents
}

func (k Key) hash() string {
	h := sha256.New()
	h.Write([]byte(k.Package.String()))
	h.Write([]byte{0})
	h.Write([]byte(k.CodeHash))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// Entry is the serialized payload stored for one Key. Payload is left as
// raw JSON so each component (symbol builder, intra-package builder) can
// cache its own shape without cache.go depending on them.
type Entry struct {
	Key     Key             `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// Store is a directory-backed, content-addressed cache. A nil/disabled
// Store is always a correctness-preserving no-op cache miss.
type Store struct {
	dir     string
	enabled bool
	mu      sync.RWMutex
	hits    int
	misses  int
}

// Disabled returns a Store that never hits — used when the optional
// REACHSCAN_NO_CACHE environment variable (spec.md §6) is set.
func Disabled() *Store { return &Store{enabled: false} }

// Open creates (or reuses) a cache rooted at dir. An empty dir defaults to
// ~/.cache/reachscan/summaries.
func Open(dir string) *Store {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Disabled()
		}
		dir = filepath.Join(home, ".cache", "reachscan", "summaries")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Disabled()
	}
	return &Store{dir: dir, enabled: true}
}

func (s *Store) entryPath(k Key) string {
	return filepath.Join(s.dir, string(k.Package.Ecosystem), k.Package.Name, k.hash()+".json")
}

// Load returns the cached payload for key, if present and still valid.
func (s *Store) Load(key Key) (json.RawMessage, bool) {
	if s == nil || !s.enabled {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.entryPath(key))
	if err != nil {
		s.misses++
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key.hash() != key.hash() {
		s.misses++
		return nil, false
	}
	s.hits++
	return entry.Payload, true
}

// Store persists payload under key. Failures are swallowed: the cache is an
// optimization, never a source of truth.
func (s *Store) Store(key Key, payload json.RawMessage) {
	if s == nil || !s.enabled {
		return
	}
	entry := Entry{Key: key, Payload: payload}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	path := s.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o600)
}

// Stats returns (hits, misses) observed so far.
func (s *Store) Stats() (hits, misses int) {
	if s == nil {
		return 0, 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits, s.misses
}

// HashFiles hashes the contents of files (relative to dir) in sorted order,
// so adding/removing/renaming/editing any file invalidates the cache.
func HashFiles(dir string, files []string) string {
	if len(files) == 0 {
		return ""
	}
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Strings(sorted)

	h := sha256.New()
	for _, name := range sorted {
		h.Write([]byte(name))
		h.Write([]byte{0})
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		_, _ = io.Copy(h, f)
		f.Close()
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
