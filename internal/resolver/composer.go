package resolver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/1homsi/reachscan/internal/model"
)

// ComposerResolver resolves composer.lock (falling back to composer.json),
// per spec.md §4.1's PHP/Composer row. Adapted almost verbatim from
// gorisk's internal/adapters/php/lockfile.go, generalized to model.PackageRecord.
type ComposerResolver struct{}

func (ComposerResolver) Ecosystem() model.Ecosystem { return model.EcosystemComposer }

func (ComposerResolver) Detect(root string) bool {
	return fileExists(filepath.Join(root, "composer.lock")) || fileExists(filepath.Join(root, "composer.json"))
}

type composerLock struct {
	Packages    []composerPkg `json:"packages"`
	PackagesDev []composerPkg `json:"packages-dev"`
}

type composerPkg struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Require map[string]string `json:"require"`
}

func (r ComposerResolver) Resolve(root string) ([]model.PackageRecord, error) {
	rootName := filepath.Base(root)
	direct, dev := readComposerManifest(root)

	lockPath := filepath.Join(root, "composer.lock")
	data, err := os.ReadFile(lockPath)
	if err != nil {
		if direct == nil {
			return nil, &model.UnresolvableLockfileError{
				Ecosystem: model.EcosystemComposer, Dir: root,
				Primary: "composer.lock", Fallback: "composer.json", Cause: err,
			}
		}
		var records []model.PackageRecord
		root0 := model.PackageRecord{
			ID:            model.PackageId{Ecosystem: model.EcosystemComposer, Name: rootName},
			SourceRoot:    root,
			IsApplication: true,
			Language:      "php",
		}
		for name, version := range direct {
			id := model.PackageId{Ecosystem: model.EcosystemComposer, Name: name, Version: version}
			root0.DirectDeps = append(root0.DirectDeps, id)
			records = append(records, model.PackageRecord{ID: id, Language: "php", DevOnly: dev[name]})
		}
		return dedupe(append([]model.PackageRecord{root0}, records...)), nil
	}

	var lock composerLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemComposer, Dir: root, Primary: "composer.lock",
			Cause: fmt.Errorf("parse composer.lock: %w", err),
		}
	}

	root0 := model.PackageRecord{
		ID:            model.PackageId{Ecosystem: model.EcosystemComposer, Name: rootName},
		SourceRoot:    root,
		IsApplication: true,
		Language:      "php",
	}

	all := append(append([]composerPkg{}, lock.Packages...), lock.PackagesDev...)
	devSet := make(map[string]bool, len(lock.PackagesDev))
	for _, p := range lock.PackagesDev {
		devSet[p.Name] = true
	}

	records := []model.PackageRecord{root0}
	for _, pkg := range all {
		var deps []model.PackageId
		for depName := range pkg.Require {
			if depName == "php" || strings.HasPrefix(depName, "ext-") {
				continue
			}
			deps = append(deps, model.PackageId{Ecosystem: model.EcosystemComposer, Name: depName})
		}
		id := model.PackageId{Ecosystem: model.EcosystemComposer, Name: pkg.Name, Version: pkg.Version}
		records = append(records, model.PackageRecord{
			ID:         id,
			SourceRoot: filepath.Join(root, "vendor", pkg.Name),
			Language:   "php",
			DirectDeps: deps,
			DevOnly:    devSet[pkg.Name],
		})
		if direct[pkg.Name] != "" {
			records[0].DirectDeps = append(records[0].DirectDeps, id)
		}
	}

	return dedupe(records), nil
}

func readComposerManifest(dir string) (map[string]string, map[string]bool) {
	data, err := os.ReadFile(filepath.Join(dir, "composer.json"))
	if err != nil {
		return nil, nil
	}
	var composerJSON struct {
		Require    map[string]string `json:"require"`
		RequireDev map[string]string `json:"require-dev"`
	}
	if json.Unmarshal(data, &composerJSON) != nil {
		return nil, nil
	}
	direct := make(map[string]string)
	dev := make(map[string]bool)
	for name, v := range composerJSON.Require {
		if name == "php" || strings.HasPrefix(name, "ext-") {
			continue
		}
		direct[name] = v
	}
	for name, v := range composerJSON.RequireDev {
		direct[name] = v
		dev[name] = true
	}
	return direct, dev
}
