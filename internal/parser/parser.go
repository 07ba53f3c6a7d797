// Package parser implements C3, the Parser Pool: dispatching each located
// package to a per-language backend and running those backends with bounded
// concurrency. Grounded on gorisk's per-ecosystem adapters/ split (one
// backend per language) and golang-vuln's worker/server.go errgroup pattern
// for bounded fan-out.
package parser

import (
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/1homsi/reachscan/internal/cache"
	"github.com/1homsi/reachscan/internal/logging"
	"github.com/1homsi/reachscan/internal/model"
)

// ParsedPackage is one package's parser output: its defined functions plus
// the raw import bindings discovered while parsing, to be resolved by the
// symbol table builder and linker downstream.
type ParsedPackage struct {
	Package  model.PackageId
	Root     string
	Language string
	Files    []ParsedFile
	Opaque   bool   // true when the backend could not produce any symbols
	Reason   string // populated when Opaque
}

// ParsedFile is one source file's extracted functions and import bindings.
type ParsedFile struct {
	Path      string
	Functions []model.FunctionNode
	Imports   []model.ImportBinding

	// Type hierarchy metadata. Only the JVM backend populates these (one
	// class per .class file); every other backend leaves them zero. C6
	// uses them to build the implementers-of index for interface/abstract
	// class dispatch fan-out (§4.6).
	ClassName      string
	SuperClass     string
	Interfaces     []string
	IsAbstractType bool
}

// Backend parses one package's source tree for a specific language.
type Backend interface {
	Language() string
	Parse(ctx context.Context, pkg model.PackageRecord, root string) (*ParsedPackage, error)
}

// Pool dispatches packages to the backend matching their Language and runs
// them with bounded concurrency.
type Pool struct {
	backends map[string]Backend
	limit    int
	cache    *cache.Store
}

// NewPool builds a pool with the default backend set (one per language this
// module understands) and a concurrency limit derived from GOMAXPROCS, the
// same bound golang-vuln's worker pool uses for CPU-bound fan-out.
func NewPool() *Pool {
	limit := runtime.GOMAXPROCS(0)
	if limit < 1 {
		limit = 1
	}
	p := &Pool{backends: make(map[string]Backend), limit: limit, cache: cache.Disabled()}
	p.Register(NewGoBackend())
	p.Register(NewJSBackend())
	p.Register(NewPythonBackend())
	p.Register(NewRustBackend())
	p.Register(NewPHPBackend())
	p.Register(NewRubyBackend())
	p.Register(NewJVMBackend())
	return p
}

// SetLimit overrides the pool's concurrency bound (spec.md §4.10's
// max_parallel_files config option). A non-positive limit is ignored.
func (p *Pool) SetLimit(limit int) {
	if limit > 0 {
		p.limit = limit
	}
}

func (p *Pool) Register(b Backend) {
	p.backends[b.Language()] = b
}

// SetCache wires a content-addressed cache so re-parsing an unchanged
// dependency across scans is skipped. A nil store is treated as disabled.
func (p *Pool) SetCache(store *cache.Store) {
	if store == nil {
		store = cache.Disabled()
	}
	p.cache = store
}

// listFiles collects root's files, relative to root, for cache.HashFiles.
func listFiles(root string) []string {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	return files
}

// ParseAll parses every (package, root) pair concurrently, bounded by the
// pool's limit. A backend error for one package does not abort the others:
// it degrades that package to Opaque per spec.md §7's MissingSourceError/
// ParseFailureError continue-on-error contract.
func (p *Pool) ParseAll(ctx context.Context, roots map[model.PackageId]string, recs map[model.PackageId]model.PackageRecord) ([]*ParsedPackage, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	results := make([]*ParsedPackage, len(roots))
	idx := 0
	indices := make(map[model.PackageId]int, len(roots))
	for id := range roots {
		indices[id] = idx
		idx++
	}

	for id, root := range roots {
		id, root := id, root
		i := indices[id]
		g.Go(func() error {
			rec := recs[id]
			backend, ok := p.backends[rec.Language]
			if !ok {
				results[i] = &ParsedPackage{Package: id, Root: root, Language: rec.Language, Opaque: true, Reason: "no parser backend for language"}
				return nil
			}

			key := cache.Key{Package: id, CodeHash: cache.HashFiles(root, listFiles(root))}
			if raw, hit := p.cache.Load(key); hit {
				var cached ParsedPackage
				if err := json.Unmarshal(raw, &cached); err == nil {
					results[i] = &cached
					return nil
				}
			}

			parsed, err := backend.Parse(ctx, rec, root)
			if err != nil {
				logging.Warnf("[parser] %s: %v", id, err)
				results[i] = &ParsedPackage{Package: id, Root: root, Language: rec.Language, Opaque: true, Reason: err.Error()}
				return nil
			}
			if raw, marshalErr := json.Marshal(parsed); marshalErr == nil {
				p.cache.Store(key, raw)
			}
			results[i] = parsed
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
