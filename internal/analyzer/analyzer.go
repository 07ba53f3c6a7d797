// Package analyzer implements C10, the Analyzer Façade: wiring C1-C9 into
// the single `Analyze(applicationRoot, config) -> ReachabilityReport`
// contract every ecosystem shares. Grounded on gorisk's cmd/gorisk
// top-level orchestration (resolve deps, then walk, then report) and
// golang-vuln's phased vulncheck.Source pipeline.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/1homsi/reachscan/internal/cache"
	"github.com/1homsi/reachscan/internal/callgraph"
	"github.com/1homsi/reachscan/internal/entrypoint"
	"github.com/1homsi/reachscan/internal/locator"
	"github.com/1homsi/reachscan/internal/logging"
	"github.com/1homsi/reachscan/internal/model"
	"github.com/1homsi/reachscan/internal/parser"
	"github.com/1homsi/reachscan/internal/reachability"
	"github.com/1homsi/reachscan/internal/resolver"
	"github.com/1homsi/reachscan/internal/symbols"
	"github.com/1homsi/reachscan/internal/vuln"
)

// Config is the façade's recognized option set (spec.md §4.10).
type Config struct {
	IncludeDevDependencies       bool
	DynamicPolicy                reachability.DynamicPolicy
	DepthCap                     int
	EntrypointsFallbackPublicAPI bool
	MaxParallelFiles             int
	Advisories                   []model.VulnerabilityLocation
}

// DefaultConfig matches the spec's stated defaults: unlimited-but-finite
// depth, taint-all-reachable dynamic policy, dev dependencies excluded.
func DefaultConfig() Config {
	return Config{
		DynamicPolicy: reachability.TaintPackage,
	}
}

// Analyzer runs one ecosystem's full C1-C9 pipeline.
type Analyzer struct {
	resolvers []resolver.Resolver
	pool      *parser.Pool
}

func New() *Analyzer {
	pool := parser.NewPool()
	if os.Getenv("REACHSCAN_NO_CACHE") == "" {
		pool.SetCache(cache.Open(""))
	}
	return &Analyzer{resolvers: resolver.All(), pool: pool}
}

// Analyze runs the complete pipeline for every ecosystem detected under
// applicationRoot and returns one report per ecosystem, in the resolver
// registration order from resolver.All (a polyglot repo yields several).
func (a *Analyzer) Analyze(ctx context.Context, applicationRoot string, cfg Config) ([]*model.ReachabilityReport, error) {
	detected := resolver.Detect(applicationRoot)
	if len(detected) == 0 {
		return nil, fmt.Errorf("analyzer: no supported ecosystem detected under %s", applicationRoot)
	}

	var reports []*model.ReachabilityReport
	for _, r := range detected {
		report, err := a.analyzeOne(ctx, applicationRoot, r, cfg)
		var noEntrypoints *model.NoEntrypointsError
		if errors.As(err, &noEntrypoints) {
			logging.Warnf("[analyzer] %s: %v", r.Ecosystem(), err)
			reports = append(reports, &model.ReachabilityReport{Ecosystem: r.Ecosystem()})
			continue
		}
		if err != nil {
			logging.Warnf("[analyzer] %s: %v", r.Ecosystem(), err)
			continue
		}
		reports = append(reports, report)
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("analyzer: every detected ecosystem failed under %s", applicationRoot)
	}
	return reports, nil
}

func (a *Analyzer) analyzeOne(ctx context.Context, applicationRoot string, r resolver.Resolver, cfg Config) (*model.ReachabilityReport, error) {
	// C1: resolve the dependency graph.
	records, err := r.Resolve(applicationRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", r.Ecosystem(), err)
	}
	recs := make(map[model.PackageId]model.PackageRecord, len(records))
	for _, rec := range records {
		if rec.DevOnly && !cfg.IncludeDevDependencies {
			continue
		}
		recs[rec.ID] = rec
	}

	// C2: locate each package's source tree, degrading missing ones to
	// opaque packages rather than failing the whole analysis.
	loc := locator.New(applicationRoot)
	roots := make(map[model.PackageId]string, len(recs))
	var missing []model.PackageId
	for id, rec := range recs {
		located := loc.Locate(rec)
		if located.Missing {
			missing = append(missing, id)
			continue
		}
		roots[id] = located.Root
	}

	// C3 (+ the C4/C5 aggregation folded into parser output): parse every
	// located package with bounded concurrency.
	a.pool.SetLimit(cfg.MaxParallelFiles)
	parsed, err := a.pool.ParseAll(ctx, roots, recs)
	if err != nil {
		return nil, fmt.Errorf("parse %s packages: %w", r.Ecosystem(), err)
	}
	for _, id := range missing {
		parsed = append(parsed, &parser.ParsedPackage{Package: id, Opaque: true, Reason: "source not found"})
	}

	// C4: build per-package symbol tables from the parser output.
	tables := symbols.Build(parsed)
	symbolIndex := symbols.SymbolIds(tables)

	// C5 + C6: build the unified call graph and resolve cross-package links.
	graph := callgraph.NewBuilder(recs).Build(parsed)

	// C7: discover entrypoints within the application's own package(s). The
	// public-API fallback tier is applied inside Discover itself, gated on
	// cfg.EntrypointsFallbackPublicAPI; an empty result here means every
	// tier came up dry (or the fallback was withheld), either of which is
	// NoEntrypointsError (spec.md §4.7/§7, scenario S5).
	entryResult := entrypoint.Discover(parsed, recs, cfg.EntrypointsFallbackPublicAPI)
	if entryResult.Set.Len() == 0 {
		return nil, &model.NoEntrypointsError{Ecosystem: r.Ecosystem(), Dir: applicationRoot}
	}

	// C8: forward-reach traversal from the entrypoints.
	reachCfg := reachability.Config{DynamicPolicy: cfg.DynamicPolicy, DepthCap: cfg.DepthCap}
	reached := reachability.Traverse(graph, entryResult.Set, reachCfg)

	// C9: map advisories against the reach set.
	verdicts := vuln.Map(cfg.Advisories, reached, recs, symbolIndex)

	report := &model.ReachabilityReport{
		Ecosystem: r.Ecosystem(),
		Reachable: reached.Reached,
		Truncated: reached.Truncated,
		Verdicts:  verdicts,
	}
	for _, pkg := range reached.OpaquePackages {
		report.OpaquePackages = append(report.OpaquePackages, pkg)
	}
	return report, nil
}
