// Package entrypoint implements C7, Entrypoint Discovery: deciding which
// defined functions are the roots a reachability traversal starts from.
// Three tiers, applied per application package: language entry-function
// conventions (main/init), framework hook patterns (route handlers,
// lifecycle methods), and — when neither fires — every exported symbol as
// a public-API fallback. Grounded on gorisk's languages.go pattern-driven
// detection, retargeted from capability tags to entrypoint roots.
package entrypoint

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/1homsi/reachscan/internal/langdata"
	"github.com/1homsi/reachscan/internal/logging"
	"github.com/1homsi/reachscan/internal/model"
	"github.com/1homsi/reachscan/internal/parser"
)

// Hit records why one symbol was selected as an entrypoint, for audit output.
type Hit struct {
	Symbol model.SymbolId
	Reason string
}

// Result is C7's output: the entrypoint set plus the reason each member
// was selected, keyed by SymbolId.String().
type Result struct {
	Set     *model.EntryPointSet
	Reasons map[string]string
}

func newResult() *Result {
	return &Result{Set: model.NewEntryPointSet(), Reasons: make(map[string]string)}
}

func (r *Result) add(sym model.SymbolId, reason string) {
	key := sym.String()
	if _, exists := r.Reasons[key]; exists {
		return
	}
	r.Set.Add(sym)
	r.Reasons[key] = reason
}

// Discover finds entrypoints across every application package in parsed.
// Non-application (dependency) packages are never entrypoint sources: the
// spec's reachability model starts only from the scanned application's own
// code (spec.md §7).
//
// allowPublicAPIFallback gates the third tier (every exported symbol in a
// package with no recognized main/init/framework hook). It must mirror the
// façade's EntrypointsFallbackPublicAPI config: spec.md §4.7/§7 requires the
// fallback to be used "only when explicitly configured", so a library
// package with public symbols but no main/hooks must leave the entrypoint
// set empty (and surface NoEntrypointsError upstream) when the caller has
// not opted in, rather than silently falling back to its public API.
func Discover(parsed []*parser.ParsedPackage, recs map[model.PackageId]model.PackageRecord, allowPublicAPIFallback bool) *Result {
	result := newResult()

	for _, pp := range parsed {
		if pp == nil || pp.Opaque {
			continue
		}
		rec, ok := recs[pp.Package]
		if !ok || !rec.IsApplication {
			continue
		}

		patterns, err := langdata.Load(rec.Language)
		if err != nil {
			logging.Warnf("[entrypoint] no entry patterns for language %q: %v", rec.Language, err)
			patterns = &langdata.EntryPatterns{}
		}

		before := result.Set.Len()
		discoverConventional(pp, patterns, result)
		discoverFrameworkHooks(pp, patterns, result)

		if allowPublicAPIFallback && result.Set.Len() == before {
			discoverPublicAPIFallback(pp, result)
		}
	}

	return result
}

func discoverConventional(pp *parser.ParsedPackage, patterns *langdata.EntryPatterns, result *Result) {
	entrySet := make(map[string]bool, len(patterns.EntryFunctions))
	for _, name := range patterns.EntryFunctions {
		entrySet[name] = true
	}
	if len(entrySet) == 0 {
		return
	}
	for _, file := range pp.Files {
		for _, fn := range file.Functions {
			if entrySet[fn.Symbol.Name] {
				result.add(fn.Symbol, "language entry function: "+fn.Symbol.Name)
			}
		}
	}
}

func discoverFrameworkHooks(pp *parser.ParsedPackage, patterns *langdata.EntryPatterns, result *Result) {
	if len(patterns.FrameworkHooks) == 0 {
		return
	}
	for _, file := range pp.Files {
		if len(file.Functions) == 0 {
			continue
		}
		hits := scanFileForHooks(file.Path, patterns.FrameworkHooks)
		if len(hits) == 0 {
			continue
		}
		for line, reason := range hits {
			if fn := enclosingFunction(file, line); fn != nil {
				result.add(fn.Symbol, reason)
			}
		}
	}
}

// discoverPublicAPIFallback treats every exported symbol as a reachability
// root when a package has no main/init and no recognized framework hooks —
// the "it's a library" case (spec.md §7, public-API fallback).
func discoverPublicAPIFallback(pp *parser.ParsedPackage, result *Result) {
	for _, file := range pp.Files {
		for _, fn := range file.Functions {
			if fn.Visibility == model.VisibilityPublic {
				result.add(fn.Symbol, "public API fallback (no main/init/framework hook found)")
			}
		}
	}
}

// scanFileForHooks returns, for every matching line, the 1-based line number
// and the hook's reason. Best-effort: a missing or unreadable file yields no
// hits rather than an error, since the package may already be degraded.
func scanFileForHooks(path string, hooks []langdata.FrameworkHook) map[int]string {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil
	}
	defer f.Close()

	hits := make(map[int]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		for _, hook := range hooks {
			if strings.Contains(text, hook.Pattern) {
				hits[line] = hook.Reason
			}
		}
	}
	return hits
}

func enclosingFunction(file parser.ParsedFile, line int) *model.FunctionNode {
	for i := range file.Functions {
		fn := &file.Functions[i]
		if fn.LineStart <= line && line <= fn.LineEnd {
			return fn
		}
	}
	// Module-level hook (e.g. a top-level route table) with no enclosing
	// function: attribute it to the nearest preceding function, if any.
	var nearest *model.FunctionNode
	for i := range file.Functions {
		fn := &file.Functions[i]
		if fn.LineStart <= line {
			if nearest == nil || fn.LineStart > nearest.LineStart {
				nearest = fn
			}
		}
	}
	return nearest
}
