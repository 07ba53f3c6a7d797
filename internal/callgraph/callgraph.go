// Package callgraph implements C5 (intra-package call graph construction)
// and C6 (cross-package linking): turning each parser backend's per-file
// function/call output into the unified model.CallGraph, resolving
// CallExternalRef descriptors against the resolver's DirectDeps edges and
// falling back to synthetic sinks for anything that can't be matched.
package callgraph

import (
	"strings"

	"github.com/1homsi/reachscan/internal/logging"
	"github.com/1homsi/reachscan/internal/model"
	"github.com/1homsi/reachscan/internal/parser"
)

// Builder accumulates parsed packages into one unified CallGraph.
type Builder struct {
	graph *model.CallGraph
	recs  map[model.PackageId]model.PackageRecord

	// byPackage indexes every defined symbol by its owning package, for
	// cross-package link resolution (C6).
	byPackage map[model.PackageId][]*model.FunctionNode
	// byFile indexes symbols by (package, file) for intra-package local
	// call resolution against the regex backends' file-scoped targets.
	byFile map[string][]*model.FunctionNode

	// implementersOf maps a trait/interface/abstract-class name to every
	// class or interface (abstract ones included) discovered across the whole
	// dependency closure that implements or extends it (directly or
	// transitively), populated once
	// per Build() call. Used to fan out VirtualDispatch call sites (§4.6).
	implementersOf map[string][]classRef
}

// classRef names one class within a specific resolved package, used by the
// implementers-of index.
type classRef struct {
	pkg   model.PackageId
	class string
}

// classRecord is the type-hierarchy metadata one parsed class contributes
// toward the implementers-of index.
type classRecord struct {
	pkg        model.PackageId
	class      string
	superClass string
	interfaces []string
}

func NewBuilder(recs map[model.PackageId]model.PackageRecord) *Builder {
	return &Builder{
		graph:          model.NewCallGraph(),
		recs:           recs,
		byPackage:      make(map[model.PackageId][]*model.FunctionNode),
		byFile:         make(map[string][]*model.FunctionNode),
		implementersOf: make(map[string][]classRef),
	}
}

// Build ingests every parsed package's functions into the graph, then
// resolves their call descriptors into edges. Opaque packages get a single
// opaque sink so edges into them still count as "reached" (spec.md §8).
func (b *Builder) Build(parsed []*parser.ParsedPackage) *model.CallGraph {
	var classRecords []classRecord

	for _, pp := range parsed {
		if pp == nil {
			continue
		}
		if pp.Opaque {
			b.graph.AddSink(model.SinkOpaque, pp.Package, pp.Reason)
			continue
		}
		for _, file := range pp.Files {
			for i := range file.Functions {
				fn := file.Functions[i]
				b.graph.AddNode(&fn)
				key := fn.Symbol.String()
				node := b.graph.Nodes[key]
				b.byPackage[pp.Package] = append(b.byPackage[pp.Package], node)
				b.byFile[fileKey(pp.Package, file.Path)] = append(b.byFile[fileKey(pp.Package, file.Path)], node)
			}
			if file.ClassName != "" {
				classRecords = append(classRecords, classRecord{
					pkg: pp.Package, class: file.ClassName,
					superClass: file.SuperClass, interfaces: file.Interfaces,
				})
			}
		}
	}

	b.implementersOf = buildImplementersIndex(classRecords)
	b.populateOverrides(classRecords)

	for _, pp := range parsed {
		if pp == nil || pp.Opaque {
			continue
		}
		for _, file := range pp.Files {
			for _, fn := range file.Functions {
				b.linkCalls(pp.Package, file.Path, fn)
			}
		}
	}

	return b.graph
}

func fileKey(pkg model.PackageId, path string) string {
	return pkg.String() + "\x00" + path
}

func (b *Builder) linkCalls(pkg model.PackageId, file string, fn model.FunctionNode) {
	callerKey := fn.Symbol.String()
	for _, call := range fn.Calls {
		switch call.Kind {
		case model.CallLocal:
			b.linkLocal(pkg, file, callerKey, call)
		case model.CallExternalRef:
			if call.VirtualDispatch {
				b.linkVirtual(pkg, callerKey, call)
			} else {
				b.linkExternal(pkg, callerKey, call)
			}
		case model.CallUnresolvedDynamic:
			sink := b.graph.AddSink(model.SinkUnresolved, pkg, call.Reason)
			b.graph.AddEdge(callerKey, sink)
		}
	}
}

func (b *Builder) linkLocal(pkg model.PackageId, file, callerKey string, call model.CallDescriptor) {
	// Go backend targets are already fully-qualified SymbolIds.
	if call.Target.Package.Name != "" {
		if target, ok := b.graph.Nodes[call.Target.String()]; ok {
			b.graph.AddEdge(callerKey, target.Symbol.String())
			return
		}
	}
	// Regex backends target a bare name within the same file.
	for _, candidate := range b.byFile[fileKey(pkg, file)] {
		if candidate.Symbol.Name == call.Target.Name {
			b.graph.AddEdge(callerKey, candidate.Symbol.String())
			return
		}
	}
	// Fall back to any same-package function with that name (methods
	// calling siblings defined in a different file of the same package).
	for _, candidate := range b.byPackage[pkg] {
		if candidate.Symbol.Name == call.Target.Name {
			b.graph.AddEdge(callerKey, candidate.Symbol.String())
			return
		}
	}
	sink := b.graph.AddSink(model.SinkUnresolved, pkg, "local call target not found: "+call.Target.Name)
	b.graph.AddEdge(callerKey, sink)
}

func (b *Builder) linkExternal(pkg model.PackageId, callerKey string, call model.CallDescriptor) {
	rec, ok := b.recs[pkg]
	if !ok {
		sink := b.graph.AddSink(model.SinkUnresolved, pkg, "unknown caller package")
		b.graph.AddEdge(callerKey, sink)
		return
	}

	dep, found := resolveDependency(rec, call.Binding.TargetModule)
	if !found {
		sink := b.graph.AddSink(model.SinkUnresolved, pkg, "import did not resolve to a known dependency: "+call.Binding.TargetModule)
		b.graph.AddEdge(callerKey, sink)
		return
	}

	name := call.Callee
	if call.Binding.Symbol != "" && call.Binding.Symbol != "default" {
		name = call.Binding.Symbol
	}
	for _, candidate := range b.byPackage[dep] {
		if candidate.Symbol.Name == name {
			b.graph.AddEdge(callerKey, candidate.Symbol.String())
			return
		}
	}

	// Dependency is known but either opaque, or this specific symbol
	// wasn't found among its parsed functions (e.g. parser backend
	// mismatch, or a re-exported binding): degrade to an opaque sink
	// rather than silently dropping the edge.
	sink := b.graph.AddSink(model.SinkOpaque, dep, "symbol not found in parsed dependency: "+name)
	b.graph.AddEdge(callerKey, sink)
	logging.Debugf("[callgraph] %s -> %s#%s fell back to opaque sink", callerKey, dep, name)
}

// linkVirtual resolves a dispatch-through-an-interface (or abstract class)
// call site by fanning out to every concrete implementation the
// implementers-of index found across the dependency closure (§4.6 bullet 3,
// the JVM invokeinterface scenario): the receiver's static type tells us
// nothing about which override actually runs, so every reachable override
// must be treated as reachable too.
func (b *Builder) linkVirtual(pkg model.PackageId, callerKey string, call model.CallDescriptor) {
	refs := b.implementersOf[call.DispatchClass]
	if len(refs) == 0 {
		// No implementers discovered in the parsed closure (interface
		// defined outside anything located, or a library with zero
		// concrete subtypes on this path): fall back to ordinary external
		// resolution against the interface's own class.
		b.linkExternal(pkg, callerKey, call)
		return
	}

	name := call.Callee
	if call.Binding.Symbol != "" && call.Binding.Symbol != "default" {
		name = call.Binding.Symbol
	}

	matched := false
	for _, ref := range refs {
		for _, candidate := range b.byPackage[ref.pkg] {
			if candidate.Symbol.ModulePath == ref.class && candidate.Symbol.Name == name {
				b.graph.AddEdge(callerKey, candidate.Symbol.String())
				matched = true
			}
		}
	}
	if !matched {
		sink := b.graph.AddSink(model.SinkOpaque, pkg, "no concrete implementation of "+call.DispatchClass+"."+name+" found among discovered implementers")
		b.graph.AddEdge(callerKey, sink)
	}
}

// populateOverrides records, on each concrete implementer's method, the
// directly-declared interface method it overrides, so reachability's
// TaintHierarchy dynamic policy (which walks Overrides edges) has something
// to walk for the common case of a class implementing an interface it
// declares directly. Transitive overrides through an abstract superclass
// aren't recorded here: buildImplementersIndex's dispatch fan-out already
// resolves those cases precisely, without needing the Overrides fallback.
func (b *Builder) populateOverrides(records []classRecord) {
	byClass := make(map[string]classRecord, len(records))
	for _, r := range records {
		byClass[r.class] = r
	}
	for _, r := range records {
		for _, iface := range r.interfaces {
			ifaceRec, ok := byClass[iface]
			if !ok {
				continue
			}
			for _, ifaceFn := range b.byPackage[ifaceRec.pkg] {
				if ifaceFn.Symbol.ModulePath != iface {
					continue
				}
				for _, implFn := range b.byPackage[r.pkg] {
					if implFn.Symbol.ModulePath == r.class && implFn.Symbol.Name == ifaceFn.Symbol.Name {
						implFn.Overrides = append(implFn.Overrides, ifaceFn.Symbol)
					}
				}
			}
		}
	}
}

// buildImplementersIndex turns the flat set of parsed classes into a
// name -> implementers map, closing over the extends chain so a concrete
// class inherits its abstract ancestors' declared interfaces even when it
// doesn't redeclare them itself (the JVM classfile's interfaces table only
// lists interfaces a class directly implements).
func buildImplementersIndex(records []classRecord) map[string][]classRef {
	byClass := make(map[string]classRecord, len(records))
	children := make(map[string][]string)
	for _, r := range records {
		byClass[r.class] = r
		if r.superClass != "" {
			children[r.superClass] = append(children[r.superClass], r.class)
		}
	}

	out := make(map[string][]classRef)
	seen := make(map[string]map[string]bool) // interface name -> classes already recorded

	var markDescendants func(iface, class string)
	markDescendants = func(iface, class string) {
		rec, ok := byClass[class]
		if !ok {
			return
		}
		if seen[iface] == nil {
			seen[iface] = make(map[string]bool)
		}
		if seen[iface][class] {
			return
		}
		seen[iface][class] = true
		out[iface] = append(out[iface], classRef{pkg: rec.pkg, class: class})
		for _, child := range children[class] {
			markDescendants(iface, child)
		}
	}

	for _, r := range records {
		for _, iface := range r.interfaces {
			markDescendants(iface, r.class)
		}
	}
	return out
}

// resolveDependency matches an import/require specifier against rec's
// direct dependencies. Go import paths are matched by longest-prefix;
// every other ecosystem matches by exact or package-relative name.
func resolveDependency(rec model.PackageRecord, specifier string) (model.PackageId, bool) {
	if specifier == "" {
		return model.PackageId{}, false
	}
	var best model.PackageId
	bestLen := -1
	for _, dep := range rec.DirectDeps {
		if dep.Ecosystem == model.EcosystemGo {
			if specifier == dep.Name || strings.HasPrefix(specifier, dep.Name+"/") {
				if len(dep.Name) > bestLen {
					best, bestLen = dep, len(dep.Name)
				}
			}
			continue
		}
		if dep.Name == specifier || strings.HasPrefix(specifier, dep.Name+"/") || strings.HasPrefix(specifier, dep.Name+".") {
			if len(dep.Name) > bestLen {
				best, bestLen = dep, len(dep.Name)
			}
		}
	}
	return best, bestLen >= 0
}
