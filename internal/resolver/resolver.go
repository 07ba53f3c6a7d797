// Package resolver implements C1, the Lockfile Resolver: parsing each
// ecosystem's primary lockfile (falling back to its manifest when absent)
// into a concrete list of model.PackageRecord.
package resolver

import (
	"os"
	"path/filepath"

	"github.com/1homsi/reachscan/internal/model"
)

// Resolver resolves one ecosystem's lockfile/manifest into package records.
type Resolver interface {
	Ecosystem() model.Ecosystem
	// Detect reports whether this ecosystem's primary lockfile or fallback
	// manifest is present at root.
	Detect(root string) bool
	// Resolve parses root's lockfile (falling back to the manifest) into a
	// deduplicated list of PackageRecord. It fails with
	// *model.UnresolvableLockfileError when neither is usable.
	Resolve(root string) ([]model.PackageRecord, error)
}

// All returns every ecosystem resolver this module understands, in a
// fixed registration order (iteration order does not affect output since
// each is independent, but a fixed order keeps CLI auto-detection messages
// reproducible).
func All() []Resolver {
	return []Resolver{
		&GoResolver{},
		&NpmResolver{},
		&PythonResolver{},
		&CargoResolver{},
		&GemResolver{},
		&ComposerResolver{},
		&MavenResolver{},
	}
}

// Detect returns every resolver whose Detect(root) is true.
func Detect(root string) []Resolver {
	var found []Resolver
	for _, r := range All() {
		if r.Detect(root) {
			found = append(found, r)
		}
	}
	return found
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dedupe(records []model.PackageRecord) []model.PackageRecord {
	seen := make(map[model.PackageId]bool, len(records))
	out := make([]model.PackageRecord, 0, len(records))
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

func join(root, rel string) string {
	if rel == "" {
		return root
	}
	return filepath.Join(root, rel)
}
