package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/mod/modfile"

	"github.com/1homsi/reachscan/internal/logging"
	"github.com/1homsi/reachscan/internal/model"
)

// GoResolver resolves go.mod (§4.1's Go row): `go list -json -deps ./...`
// gives the concrete package/module set, already honoring `replace`
// directives when it fills in Module.Dir. golang.org/x/mod/modfile parses
// the same directives independently to catch what `go list` can't: a local
// filesystem-path replace whose target directory no longer exists surfaces
// here as an actionable UnresolvableLockfileError naming the broken
// directive, instead of an opaque `go list` build failure; a resolved
// target is also cross-checked against go list's own Dir. Grounded on
// gorisk's internal/graph/loader.go dependency-graph construction.
type GoResolver struct{}

func (GoResolver) Ecosystem() model.Ecosystem { return model.EcosystemGo }

func (GoResolver) Detect(root string) bool {
	return fileExists(filepath.Join(root, "go.mod"))
}

type goListModule struct {
	Path     string `json:"Path"`
	Version  string `json:"Version"`
	Dir      string `json:"Dir"`
	Main     bool   `json:"Main"`
	Indirect bool   `json:"Indirect"`
	Replace  *goListModule `json:"Replace"`
}

type goListPackage struct {
	ImportPath string        `json:"ImportPath"`
	Dir        string        `json:"Dir"`
	Imports    []string      `json:"Imports"`
	Module     *goListModule `json:"Module"`
	Standard   bool          `json:"Standard"`
}

func (g GoResolver) Resolve(root string) ([]model.PackageRecord, error) {
	modPath := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(modPath)
	if err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemGo, Dir: root, Primary: "go.mod", Cause: err,
		}
	}

	mf, err := modfile.Parse(modPath, data, nil)
	if err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemGo, Dir: root, Primary: "go.mod", Cause: err,
		}
	}

	// `go list` already applies every replace directive when resolving
	// Module.Dir, so modfile's replaces map only needs to cover what `go
	// list` can't: a local filesystem-path replace (no version on the New
	// side) whose target directory is missing, which would otherwise
	// surface as an opaque `go list` build failure instead of naming the
	// broken replace directive.
	localReplaces := make(map[string]string, len(mf.Replace))
	for _, r := range mf.Replace {
		if r.New.Version != "" {
			continue // a versioned replace; go list resolves it like any other module
		}
		target := r.New.Path
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(modPath), target)
		}
		if info, statErr := os.Stat(target); statErr != nil || !info.IsDir() {
			return nil, &model.UnresolvableLockfileError{
				Ecosystem: model.EcosystemGo, Dir: root, Primary: "go.mod",
				Cause: fmt.Errorf("replace %s => %s: target directory not found: %w", r.Old.Path, r.New.Path, statErr),
			}
		}
		localReplaces[r.Old.Path] = target
		logging.Debugf("[resolver/go] local replace %s => %s", r.Old.Path, target)
	}

	pkgs, err := goListDeps(root)
	if err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemGo, Dir: root, Primary: "go.mod", Cause: err,
		}
	}

	byModule := make(map[string]*model.PackageRecord)
	var mainModulePath string

	for _, p := range pkgs {
		if p.Standard || p.Module == nil {
			continue
		}
		modPath := p.Module.Path
		if p.Module.Main {
			mainModulePath = modPath
		}
		rec, exists := byModule[modPath]
		if !exists {
			sourceRoot := p.Module.Dir
			if local, ok := localReplaces[modPath]; ok {
				// go list already resolved Module.Dir through the replace;
				// cross-check it against modfile's own resolution and trust
				// the local path when go list left Dir empty (a replace
				// target outside the module cache it couldn't otherwise see).
				if sourceRoot == "" {
					sourceRoot = local
				} else if abs, err := filepath.Abs(sourceRoot); err != nil || abs != local {
					logging.Warnf("[resolver/go] replace %s: go list resolved %s, modfile resolved %s", modPath, sourceRoot, local)
				}
			}
			id := model.PackageId{Ecosystem: model.EcosystemGo, Name: modPath, Version: p.Module.Version}
			rec = &model.PackageRecord{
				ID:            id,
				SourceRoot:    sourceRoot,
				IsApplication: p.Module.Main,
				Language:      "go",
			}
			byModule[modPath] = rec
		}
		for _, imp := range p.Imports {
			depModPath := modulePathOf(pkgs, imp)
			if depModPath == "" || depModPath == modPath {
				continue
			}
			addDep(rec, depModPath)
		}
	}

	if mainModulePath == "" {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemGo, Dir: root, Primary: "go.mod",
			Cause: fmt.Errorf("no main module found in go list output"),
		}
	}

	out := make([]model.PackageRecord, 0, len(byModule))
	for _, rec := range byModule {
		out = append(out, *rec)
	}
	return dedupe(out), nil
}

func addDep(rec *model.PackageRecord, modPath string) {
	for _, d := range rec.DirectDeps {
		if d.Name == modPath {
			return
		}
	}
	rec.DirectDeps = append(rec.DirectDeps, model.PackageId{Ecosystem: model.EcosystemGo, Name: modPath})
}

func modulePathOf(pkgs []goListPackage, importPath string) string {
	for _, p := range pkgs {
		if p.ImportPath == importPath && p.Module != nil {
			return p.Module.Path
		}
	}
	return ""
}

func goListDeps(dir string) ([]goListPackage, error) {
	cmd := exec.Command("go", "list", "-json", "-deps", "./...")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("go list: %w", err)
	}
	var pkgs []goListPackage
	dec := json.NewDecoder(bytes.NewReader(out))
	for dec.More() {
		var p goListPackage
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, nil
}
