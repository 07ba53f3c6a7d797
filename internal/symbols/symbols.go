// Package symbols implements C4, the Symbol Table Builder: aggregating a
// parsed package's per-file FunctionNodes into one per-package Table,
// indexed by name; the vulnerability mapper (C9) consumes the flattened
// SymbolIds view of these tables. Grounded on gorisk's astdetector.go SymbolTable (a
// per-file local-identifier index), generalized here to the exported
// per-package function index the rest of the pipeline consumes.
package symbols

import (
	"github.com/1homsi/reachscan/internal/model"
	"github.com/1homsi/reachscan/internal/parser"
)

// Table is one package's aggregated symbol index.
type Table struct {
	Package   model.PackageId
	Functions []model.FunctionNode
	ByName    map[string][]*model.FunctionNode
}

func newTable(pkg model.PackageId) *Table {
	return &Table{Package: pkg, ByName: make(map[string][]*model.FunctionNode)}
}

func (t *Table) add(fn model.FunctionNode) {
	t.Functions = append(t.Functions, fn)
	ref := &t.Functions[len(t.Functions)-1]
	t.ByName[fn.Symbol.Name] = append(t.ByName[fn.Symbol.Name], ref)
}

// Exported returns every public FunctionNode in the table.
func (t *Table) Exported() []model.FunctionNode {
	var out []model.FunctionNode
	for _, fn := range t.Functions {
		if fn.Visibility == model.VisibilityPublic {
			out = append(out, fn)
		}
	}
	return out
}

// Build produces one Table per non-opaque parsed package. Opaque packages
// are omitted: their absence from the returned map is itself the signal
// downstream consumers use to treat them as opaque (mirroring
// parser.ParsedPackage.Opaque).
func Build(parsed []*parser.ParsedPackage) map[model.PackageId]*Table {
	tables := make(map[model.PackageId]*Table)
	for _, pp := range parsed {
		if pp == nil || pp.Opaque {
			continue
		}
		t := newTable(pp.Package)
		for _, file := range pp.Files {
			for _, fn := range file.Functions {
				t.add(fn)
			}
		}
		tables[pp.Package] = t
	}
	return tables
}

// SymbolIds flattens every table into the (PackageId -> []SymbolId) shape
// the vulnerability mapper matches advisories against.
func SymbolIds(tables map[model.PackageId]*Table) map[model.PackageId][]model.SymbolId {
	out := make(map[model.PackageId][]model.SymbolId, len(tables))
	for pkg, t := range tables {
		ids := make([]model.SymbolId, len(t.Functions))
		for i, fn := range t.Functions {
			ids[i] = fn.Symbol
		}
		out[pkg] = ids
	}
	return out
}
