package resolver

import (
	"errors"
	"strings"
	"testing"

	"github.com/1homsi/reachscan/internal/model"
)

func TestGoResolverDetect(t *testing.T) {
	dir := t.TempDir()
	r := GoResolver{}
	if r.Detect(dir) {
		t.Error("expected no detection without a go.mod")
	}
	writeFile(t, dir, "go.mod", "module example.com/app\n\ngo 1.21\n")
	if !r.Detect(dir) {
		t.Error("expected detection once go.mod exists")
	}
}

func TestAddDepDeduplicates(t *testing.T) {
	rec := &model.PackageRecord{}
	addDep(rec, "example.com/left-pad")
	addDep(rec, "example.com/left-pad")
	if len(rec.DirectDeps) != 1 {
		t.Fatalf("expected addDep to dedupe, got %v", rec.DirectDeps)
	}
}

func TestModulePathOfResolvesImport(t *testing.T) {
	pkgs := []goListPackage{
		{ImportPath: "example.com/left-pad", Module: &goListModule{Path: "example.com/left-pad"}},
		{ImportPath: "fmt", Standard: true},
	}
	if got := modulePathOf(pkgs, "example.com/left-pad"); got != "example.com/left-pad" {
		t.Errorf("expected example.com/left-pad, got %q", got)
	}
	if got := modulePathOf(pkgs, "nonexistent"); got != "" {
		t.Errorf("expected empty string for an unknown import, got %q", got)
	}
}

// TestGoResolverResolveRejectsBrokenLocalReplace checks that a `replace`
// directive pointing at a missing local directory is caught before `go
// list` ever runs, surfacing the broken directive by name rather than an
// opaque `go list` build failure.
func TestGoResolverResolveRejectsBrokenLocalReplace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/app\n\ngo 1.21\n\nrequire example.com/left-pad v1.0.0\n\nreplace example.com/left-pad => ./missing-vendor\n")

	_, err := GoResolver{}.Resolve(dir)
	var unresolvable *model.UnresolvableLockfileError
	if !errors.As(err, &unresolvable) {
		t.Fatalf("expected an UnresolvableLockfileError for a replace target that doesn't exist on disk, got %v", err)
	}
}

// TestGoResolverResolveAllowsVersionedReplace checks that a versioned
// replace (pointing at another module, not a local path) never triggers
// the local-path existence check: no fixture directory exists for the
// fork, so failing for any reason other than "go list" itself being
// unavailable would mean the versioned case was wrongly treated as local.
func TestGoResolverResolveAllowsVersionedReplace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/app\n\ngo 1.21\n\nrequire example.com/left-pad v1.0.0\n\nreplace example.com/left-pad => example.com/left-pad-fork v1.0.1\n")

	_, err := GoResolver{}.Resolve(dir)
	var unresolvable *model.UnresolvableLockfileError
	if errors.As(err, &unresolvable) && strings.Contains(unresolvable.Error(), "target directory not found") {
		t.Fatalf("a versioned replace must never be checked against the filesystem, got %v", err)
	}
}
