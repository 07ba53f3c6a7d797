package model

import "testing"

func TestPackageIdStringAndLess(t *testing.T) {
	a := PackageId{Ecosystem: EcosystemNpm, Name: "left-pad", Version: "1.0.0"}
	b := PackageId{Ecosystem: EcosystemNpm, Name: "left-pad", Version: "1.0.1"}
	if got := a.String(); got != "npm:left-pad@1.0.0" {
		t.Errorf("unexpected String(): %q", got)
	}
	if !a.Less(b) {
		t.Error("expected lower version to sort first")
	}
	if b.Less(a) {
		t.Error("did not expect higher version to sort first")
	}

	c := PackageId{Ecosystem: EcosystemGo, Name: "zzz"}
	if !c.Less(a) {
		t.Error("expected go ecosystem to sort before npm")
	}
}

func TestSymbolIdStringIncludesArityOnlyWhenSet(t *testing.T) {
	pkg := PackageId{Ecosystem: EcosystemGo, Name: "example.com/app"}
	withArity := SymbolId{Package: pkg, ModulePath: "main.go", Name: "run", Arity: 2, HasArity: true}
	withoutArity := SymbolId{Package: pkg, ModulePath: "main.go", Name: "run"}

	if got := withArity.String(); got != "go:example.com/app@#main.go#run/2" {
		t.Errorf("unexpected arity-qualified String(): %q", got)
	}
	if got := withoutArity.String(); got != "go:example.com/app@#main.go#run" {
		t.Errorf("unexpected arity-free String(): %q", got)
	}
}

func TestVisibilityString(t *testing.T) {
	cases := map[Visibility]string{
		VisibilityPublic:           "public",
		VisibilityPackageInternal:  "package-internal",
		VisibilityPrivate:          "private",
	}
	for v, want := range cases {
		if got := v.String(); got != want {
			t.Errorf("Visibility(%d).String() = %q, want %q", v, got, want)
		}
	}
}

func TestVerdictString(t *testing.T) {
	cases := map[Verdict]string{
		VerdictReachable:   "Reachable",
		VerdictUnknown:     "Unknown",
		VerdictUnreachable: "Unreachable",
	}
	for v, want := range cases {
		if got := v.String(); got != want {
			t.Errorf("Verdict(%d).String() = %q, want %q", v, got, want)
		}
	}
}

func TestCallGraphAddNodeDoesNotOverwrite(t *testing.T) {
	g := NewCallGraph()
	sym := SymbolId{Name: "run"}
	first := &FunctionNode{Symbol: sym, LineStart: 1}
	second := &FunctionNode{Symbol: sym, LineStart: 99}

	g.AddNode(first)
	g.AddNode(second)

	if g.Nodes[sym.String()].LineStart != 1 {
		t.Error("expected AddNode to keep the first-inserted node")
	}
}

func TestCallGraphAddEdgeDeduplicates(t *testing.T) {
	g := NewCallGraph()
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")

	if len(g.Edges["a"]) != 2 {
		t.Fatalf("expected 2 deduplicated edges, got %d: %v", len(g.Edges["a"]), g.Edges["a"])
	}
}

func TestCallGraphAddSinkReusesExistingKey(t *testing.T) {
	g := NewCallGraph()
	pkg := PackageId{Ecosystem: EcosystemNpm, Name: "left-pad"}

	k1 := g.AddSink(SinkOpaque, pkg, "no source located")
	k2 := g.AddSink(SinkOpaque, pkg, "a different reason, should be ignored")

	if k1 != k2 {
		t.Fatalf("expected the same sink key on repeat AddSink, got %q and %q", k1, k2)
	}
	if len(g.SinkNodes) != 1 {
		t.Fatalf("expected exactly one sink node, got %d", len(g.SinkNodes))
	}
	if g.SinkNodes[k1].Reason != "no source located" {
		t.Error("expected the first-registered reason to be preserved")
	}

	k3 := g.AddSink(SinkUnresolved, pkg, "unresolved ref")
	if k3 == k1 {
		t.Error("expected SinkUnresolved and SinkOpaque to produce distinct keys for the same package")
	}
}

func TestEntryPointSetAddDeduplicatesAndPreservesOrder(t *testing.T) {
	e := NewEntryPointSet()
	first := SymbolId{Name: "main"}
	second := SymbolId{Name: "init"}

	e.Add(first)
	e.Add(second)
	e.Add(first) // duplicate, should not append again

	if e.Len() != 2 {
		t.Fatalf("expected 2 entrypoints, got %d", e.Len())
	}
	keys := e.Keys()
	if len(keys) != 2 || keys[0] != first.String() || keys[1] != second.String() {
		t.Errorf("expected insertion order to be preserved, got %v", keys)
	}
}
