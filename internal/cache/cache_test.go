package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/1homsi/reachscan/internal/model"
)

func TestDisabledStoreAlwaysMisses(t *testing.T) {
	s := Disabled()
	key := Key{Package: model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad"}, CodeHash: "abc"}
	s.Store(key, json.RawMessage(`{"ok":true}`))
	if _, ok := s.Load(key); ok {
		t.Error("expected a disabled store to never hit")
	}
}

func TestOpenStoreRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir)
	key := Key{Package: model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad", Version: "1.0.0"}, CodeHash: "abc123"}
	payload := json.RawMessage(`{"functions":["pad"]}`)

	if _, ok := s.Load(key); ok {
		t.Fatal("expected a miss before the first Store")
	}
	s.Store(key, payload)

	got, ok := s.Load(key)
	if !ok {
		t.Fatal("expected a hit after Store")
	}
	if string(got) != string(payload) {
		t.Errorf("expected payload %s, got %s", payload, got)
	}

	hits, misses := s.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestOpenStoreDistinguishesCodeHash(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir)
	pkg := model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad", Version: "1.0.0"}
	keyA := Key{Package: pkg, CodeHash: "aaa"}
	keyB := Key{Package: pkg, CodeHash: "bbb"}

	s.Store(keyA, json.RawMessage(`{"v":"a"}`))
	if _, ok := s.Load(keyB); ok {
		t.Error("expected a different CodeHash for the same package to miss")
	}
}

func TestHashFilesIsOrderIndependentAndContentSensitive(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.js"), []byte("const a = 1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.js"), []byte("const b = 2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	h1 := HashFiles(dir, []string{"a.js", "b.js"})
	h2 := HashFiles(dir, []string{"b.js", "a.js"})
	if h1 != h2 {
		t.Error("expected hash to be independent of input file order")
	}

	if err := os.WriteFile(filepath.Join(dir, "a.js"), []byte("const a = 999"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	h3 := HashFiles(dir, []string{"a.js", "b.js"})
	if h3 == h1 {
		t.Error("expected editing a file's content to change the hash")
	}
}
