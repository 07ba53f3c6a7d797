package parser

import (
	"context"
	"fmt"

	"golang.org/x/tools/go/callgraph/rta"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/1homsi/reachscan/internal/logging"
	"github.com/1homsi/reachscan/internal/model"
)

// GoBackend builds a whole-package SSA representation and an RTA call
// graph, the same pipeline golang-vuln's internal/vulncheck.Source uses
// (go/packages -> ssautil.AllPackages -> rta.Analyze), adapted here to
// produce per-package model.FunctionNode/CallDescriptor values instead of
// a vulnerability-specific result type.
type GoBackend struct{}

func NewGoBackend() *GoBackend { return &GoBackend{} }

func (GoBackend) Language() string { return "go" }

func (GoBackend) Parse(ctx context.Context, pkg model.PackageRecord, root string) (*ParsedPackage, error) {
	cfg := &packages.Config{
		Context: ctx,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedImports | packages.NeedDeps,
		Dir: root,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", pkg.ID, err)
	}
	if n := packages.PrintErrors(pkgs); n > 0 {
		// Compile errors don't prevent SSA construction of the portions
		// that did parse; degrade gracefully rather than aborting.
		logging.Warnf("[parser/go] %s: %d package load errors", pkg.ID, n)
	}

	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	prog.Build()

	var roots []*ssa.Function
	for _, sp := range ssaPkgs {
		if sp == nil {
			continue
		}
		if fn := sp.Func("main"); fn != nil {
			roots = append(roots, fn)
		}
		if fn := sp.Func("init"); fn != nil {
			roots = append(roots, fn)
		}
	}
	// Packages with no main/init (libraries) still need every exported
	// function as a provisional root so RTA doesn't prune them away; the
	// entrypoint discovery stage decides which ones are real entrypoints.
	for _, sp := range ssaPkgs {
		if sp == nil {
			continue
		}
		for _, mem := range sp.Members {
			if fn, ok := mem.(*ssa.Function); ok && fn.Object() != nil && fn.Object().Exported() {
				roots = append(roots, fn)
			}
		}
	}

	res := rta.Analyze(roots, true)
	cg := res.CallGraph
	cg.DeleteSyntheticNodes()

	result := &ParsedPackage{Package: pkg.ID, Root: root, Language: "go"}

	for fn, node := range cg.Nodes {
		if fn == nil || fn.Package() == nil {
			continue
		}
		symbol := goSymbolFor(fn)
		if symbol.Package.Name != pkg.ID.Name {
			continue
		}
		vis := model.VisibilityPrivate
		if fn.Object() != nil {
			if fn.Object().Exported() {
				vis = model.VisibilityPublic
			} else {
				vis = model.VisibilityPackageInternal
			}
		}

		fset := fn.Prog.Fset
		position := fset.Position(fn.Pos())

		fnNode := model.FunctionNode{
			Symbol:     symbol,
			Visibility: vis,
			File:       position.Filename,
			LineStart:  position.Line,
		}

		for _, edge := range node.Out {
			callee := edge.Callee.Func
			if callee == nil {
				continue
			}
			calleeSym := goSymbolFor(callee)
			callPos := fset.Position(edge.Site.Pos())
			if calleeSym.Package.Name == pkg.ID.Name || isSamePackage(fn, callee) {
				fnNode.Calls = append(fnNode.Calls, model.CallDescriptor{
					Kind:   model.CallLocal,
					Target: calleeSym,
					File:   callPos.Filename,
					Line:   callPos.Line,
				})
				continue
			}
			fnNode.Calls = append(fnNode.Calls, model.CallDescriptor{
				Kind: model.CallExternalRef,
				Binding: model.ImportBinding{
					TargetModule: calleeSym.Package.Name,
				},
				Callee: calleeSym.Name,
				File:   callPos.Filename,
				Line:   callPos.Line,
			})
		}

		appendFunction(result, position.Filename, fnNode)
	}

	if len(result.Files) == 0 {
		result.Opaque = true
		result.Reason = "no functions discovered"
	}

	return result, nil
}

func isSamePackage(a, b *ssa.Function) bool {
	return a.Package() != nil && b.Package() != nil && a.Package().Pkg == b.Package().Pkg
}

func goSymbolFor(fn *ssa.Function) model.SymbolId {
	pkgPath := "unknown"
	if fn.Package() != nil && fn.Package().Pkg != nil {
		pkgPath = fn.Package().Pkg.Path()
	}
	name := fn.Name()
	if recv := fn.Signature.Recv(); recv != nil {
		name = recvTypeName(recv.Type()) + "." + name
	}
	return model.SymbolId{
		Package:    model.PackageId{Ecosystem: model.EcosystemGo, Name: pkgPath},
		ModulePath: pkgPath,
		Name:       name,
		Arity:      fn.Signature.Params().Len(),
		HasArity:   true,
	}
}

func recvTypeName(t interface{ String() string }) string {
	s := t.String()
	if len(s) > 0 && s[0] == '*' {
		s = s[1:]
	}
	// Strip any package qualifier, keeping only the bare type name.
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return s[i+1:]
		}
	}
	return s
}

func appendFunction(result *ParsedPackage, filename string, fn model.FunctionNode) {
	for i := range result.Files {
		if result.Files[i].Path == filename {
			result.Files[i].Functions = append(result.Files[i].Functions, fn)
			return
		}
	}
	result.Files = append(result.Files, ParsedFile{Path: filename, Functions: []model.FunctionNode{fn}})
}
