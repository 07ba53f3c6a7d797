package resolver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/1homsi/reachscan/internal/model"
)

// CargoResolver resolves Cargo.lock (falling back to Cargo.toml's direct
// dependency table), per spec.md §4.1's Rust/Cargo row. Cargo.lock is TOML,
// parsed with github.com/BurntSushi/toml (promoted from an indirect
// dependency of the teacher's own go.mod to a directly exercised one here).
type CargoResolver struct{}

func (CargoResolver) Ecosystem() model.Ecosystem { return model.EcosystemCargo }

func (CargoResolver) Detect(root string) bool {
	return fileExists(filepath.Join(root, "Cargo.lock")) || fileExists(filepath.Join(root, "Cargo.toml"))
}

type cargoLock struct {
	Package []cargoLockPkg `toml:"package"`
}

type cargoLockPkg struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Dependencies []string `toml:"dependencies"`
}

type cargoManifest struct {
	Package      cargoManifestPkg  `toml:"package"`
	Dependencies map[string]any    `toml:"dependencies"`
	DevDeps      map[string]any    `toml:"dev-dependencies"`
}

type cargoManifestPkg struct {
	Name string `toml:"name"`
}

func (r CargoResolver) Resolve(root string) ([]model.PackageRecord, error) {
	lockPath := filepath.Join(root, "Cargo.lock")
	data, err := os.ReadFile(lockPath)

	manifestName, directSet, devSet := readCargoManifest(root)
	rootName := manifestName
	if rootName == "" {
		rootName = filepath.Base(root)
	}

	root0 := model.PackageRecord{
		ID:            model.PackageId{Ecosystem: model.EcosystemCargo, Name: rootName},
		SourceRoot:    root,
		IsApplication: true,
		Language:      "rust",
	}

	if err != nil {
		if directSet == nil {
			return nil, &model.UnresolvableLockfileError{
				Ecosystem: model.EcosystemCargo, Dir: root,
				Primary: "Cargo.lock", Fallback: "Cargo.toml", Cause: err,
			}
		}
		records := []model.PackageRecord{root0}
		for name := range directSet {
			id := model.PackageId{Ecosystem: model.EcosystemCargo, Name: name}
			root0.DirectDeps = append(root0.DirectDeps, id)
			records = append(records, model.PackageRecord{ID: id, Language: "rust", DevOnly: devSet[name]})
		}
		return dedupe(records), nil
	}

	var lock cargoLock
	if _, err := toml.Decode(string(data), &lock); err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemCargo, Dir: root, Primary: "Cargo.lock", Cause: err,
		}
	}

	records := []model.PackageRecord{root0}
	for _, pkg := range lock.Package {
		var deps []model.PackageId
		for _, depLine := range pkg.Dependencies {
			// Cargo.lock dependency entries are "name", "name version", or
			// "name version (source)" — only the leading name disambiguates
			// against the synthetic PackageId keyspace used here.
			name := strings.Fields(depLine)[0]
			deps = append(deps, model.PackageId{Ecosystem: model.EcosystemCargo, Name: name})
		}
		id := model.PackageId{Ecosystem: model.EcosystemCargo, Name: pkg.Name, Version: pkg.Version}
		records = append(records, model.PackageRecord{
			ID:         id,
			Language:   "rust",
			DirectDeps: deps,
			DevOnly:    devSet[pkg.Name],
		})
		if _, ok := directSet[pkg.Name]; ok {
			records[0].DirectDeps = append(records[0].DirectDeps, id)
		}
	}

	return dedupe(records), nil
}

func readCargoManifest(dir string) (name string, direct map[string]bool, dev map[string]bool) {
	data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	if err != nil {
		return "", nil, nil
	}
	var manifest cargoManifest
	if _, err := toml.Decode(string(data), &manifest); err != nil {
		return "", nil, nil
	}
	direct = make(map[string]bool)
	dev = make(map[string]bool)
	for depName := range manifest.Dependencies {
		direct[depName] = true
	}
	for depName := range manifest.DevDeps {
		direct[depName] = true
		dev[depName] = true
	}
	return manifest.Package.Name, direct, dev
}
