// Package reachability implements C8: the forward-reach traversal over the
// unified CallGraph starting from the EntryPointSet. Grounded on gorisk's
// internal/interproc worklist (fixpoint.go's deterministic sorted-keys pop)
// and SCC handling (scc.go), retargeted from capability-summary propagation
// to a plain visited-set reachability BFS with a predecessor map.
package reachability

import (
	"sort"

	"github.com/1homsi/reachscan/internal/model"
)

// DynamicPolicy controls how an UnresolvedDynamic edge expands (spec.md §4.8).
type DynamicPolicy int

const (
	// TaintPackage marks every symbol defined in the targeted sink's
	// associated package as reached (the default, over-approximating).
	TaintPackage DynamicPolicy = iota
	// TaintHierarchy is like TaintPackage but additionally walks
	// Overrides edges to include the inferred type hierarchy.
	TaintHierarchy
	// Strict only marks the sink itself reached-opaquely; no fanout.
	Strict
)

// Config holds C8's tunables, mirroring the façade's recognized options.
type Config struct {
	DynamicPolicy DynamicPolicy
	DepthCap      int // <=0 means the spec's effectively-unlimited default
}

const defaultDepthCap = 100000

// Report is C8's output: the reach set, predecessor map, and truncation flag.
type Report struct {
	Reached        map[string]bool
	Predecessors   map[string]string // symbol key -> predecessor key (entrypoint has none)
	OpaquePackages map[string]model.PackageId
	Truncated      bool
}

type frontierItem struct {
	key   string
	depth int
}

// Traverse runs the worklist BFS. Entrypoints are processed in the
// EntryPointSet's stable insertion order; within a node's outgoing edges,
// callees are visited in sorted key order, which together with a
// deterministic input graph guarantees run-to-run identical output
// (spec.md §4's ordering guarantee).
func Traverse(graph *model.CallGraph, entries *model.EntryPointSet, cfg Config) *Report {
	depthCap := cfg.DepthCap
	if depthCap <= 0 {
		depthCap = defaultDepthCap
	}

	report := &Report{
		Reached:        make(map[string]bool),
		Predecessors:   make(map[string]string),
		OpaquePackages: make(map[string]model.PackageId),
	}

	var worklist []frontierItem
	for _, key := range entries.Keys() {
		if report.Reached[key] {
			continue
		}
		report.Reached[key] = true
		worklist = append(worklist, frontierItem{key: key, depth: 0})
	}

	for len(worklist) > 0 {
		item := worklist[0]
		worklist = worklist[1:]

		if item.depth >= depthCap {
			report.Truncated = true
			continue
		}

		for _, callee := range sortedEdges(graph, item.key) {
			if sink, isSink := graph.SinkNodes[callee]; isSink {
				applySink(graph, sink, item.key, report, cfg, &worklist, item.depth)
				continue
			}
			if report.Reached[callee] {
				continue
			}
			report.Reached[callee] = true
			report.Predecessors[callee] = item.key
			worklist = append(worklist, frontierItem{key: callee, depth: item.depth + 1})
		}
	}

	return report
}

func sortedEdges(graph *model.CallGraph, from string) []string {
	edges := graph.Edges[from]
	out := make([]string, len(edges))
	copy(out, edges)
	sort.Strings(out)
	return out
}

func sortedNodeKeys(graph *model.CallGraph) []string {
	keys := make([]string, 0, len(graph.Nodes))
	for key := range graph.Nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// applySink handles an edge landing on a synthetic sink. Opaque sinks mark
// their package as reached-opaquely (§8: "any vulnerability ... must be
// considered Reachable"). Unresolved-dynamic sinks fan out per policy.
func applySink(graph *model.CallGraph, sink *model.SinkNode, fromKey string, report *Report, cfg Config, worklist *[]frontierItem, depth int) {
	if sink.Kind == model.SinkOpaque {
		report.OpaquePackages[sink.Package.String()] = sink.Package
		return
	}

	// SinkUnresolved: dynamic-dispatch / reflection / eval fallout.
	report.OpaquePackages[sink.Package.String()] = sink.Package

	switch cfg.DynamicPolicy {
	case Strict:
		return
	case TaintPackage, TaintHierarchy:
		for _, key := range sortedNodeKeys(graph) {
			node := graph.Nodes[key]
			if node.Symbol.Package != sink.Package {
				continue
			}
			if report.Reached[key] {
				continue
			}
			report.Reached[key] = true
			report.Predecessors[key] = fromKey
			*worklist = append(*worklist, frontierItem{key: key, depth: depth + 1})
		}
		if cfg.DynamicPolicy == TaintHierarchy {
			taintOverrides(graph, sink, fromKey, report, worklist, depth)
		}
	}
}

// taintOverrides additionally marks any symbol whose Overrides list
// references a now-reached method in the sink's package, approximating the
// inferred type hierarchy for the TaintHierarchy policy.
func taintOverrides(graph *model.CallGraph, sink *model.SinkNode, fromKey string, report *Report, worklist *[]frontierItem, depth int) {
	for _, key := range sortedNodeKeys(graph) {
		node := graph.Nodes[key]
		if report.Reached[key] {
			continue
		}
		for _, overridden := range node.Overrides {
			if overridden.Package != sink.Package {
				continue
			}
			report.Reached[key] = true
			report.Predecessors[key] = fromKey
			*worklist = append(*worklist, frontierItem{key: key, depth: depth + 1})
			break
		}
	}
}

// Chain reconstructs one shortest path from an entrypoint to target using
// report's predecessor map. Returns nil if target was never reached.
func Chain(report *Report, target string) model.CallChain {
	if !report.Reached[target] {
		return nil
	}
	var rev model.CallChain
	cur := target
	seen := make(map[string]bool)
	for {
		rev = append(rev, cur)
		if seen[cur] {
			break // defensive: a predecessor cycle should never occur, but never infinite-loop on one
		}
		seen[cur] = true
		pred, ok := report.Predecessors[cur]
		if !ok {
			break
		}
		cur = pred
	}
	chain := make(model.CallChain, len(rev))
	for i, k := range rev {
		chain[len(rev)-1-i] = k
	}
	return chain
}
