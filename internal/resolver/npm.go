package resolver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/1homsi/reachscan/internal/model"
)

// NpmResolver resolves package-lock.json v2+ (falling back to yarn.lock,
// pnpm-lock.yaml, then a direct-deps-only read of package.json), per
// spec.md §4.1's npm row. Adapted from gorisk's internal/adapters/node/lockfile.go.
type NpmResolver struct{}

func (NpmResolver) Ecosystem() model.Ecosystem { return model.EcosystemNpm }

func (NpmResolver) Detect(root string) bool {
	return fileExists(filepath.Join(root, "package-lock.json")) ||
		fileExists(filepath.Join(root, "yarn.lock")) ||
		fileExists(filepath.Join(root, "pnpm-lock.yaml")) ||
		fileExists(filepath.Join(root, "package.json"))
}

type npmPackage struct {
	Name         string
	Version      string
	Dir          string
	Dependencies []string
	Direct       bool
	Dev          bool
}

func (r NpmResolver) Resolve(root string) ([]model.PackageRecord, error) {
	rootName := filepath.Base(root)
	if name := readPackageJSONName(root); name != "" {
		rootName = name
	}

	pkgs, err := r.loadLockfile(root)
	if err != nil {
		// Fallback manifest: package.json alone gives direct deps with
		// version ranges, not resolved versions — treat the range string
		// itself as the verbatim "version" per §4.1 ("never re-normalized").
		direct, devSet, ferr := readManifestDeps(root)
		if ferr != nil {
			return nil, &model.UnresolvableLockfileError{
				Ecosystem: model.EcosystemNpm, Dir: root,
				Primary: "package-lock.json", Fallback: "package.json", Cause: err,
			}
		}
		var fallback []npmPackage
		for name, version := range direct {
			fallback = append(fallback, npmPackage{Name: name, Version: version, Direct: true, Dev: devSet[name]})
		}
		pkgs = fallback
	}

	records := []model.PackageRecord{{
		ID:            model.PackageId{Ecosystem: model.EcosystemNpm, Name: rootName, Version: ""},
		SourceRoot:    root,
		IsApplication: true,
		Language:      "javascript",
	}}

	root0 := &records[0]
	for _, p := range pkgs {
		id := model.PackageId{Ecosystem: model.EcosystemNpm, Name: p.Name, Version: p.Version}
		rec := model.PackageRecord{
			ID:         id,
			SourceRoot: p.Dir,
			Language:   "javascript",
			DevOnly:    p.Dev,
		}
		for _, dep := range p.Dependencies {
			rec.DirectDeps = append(rec.DirectDeps, model.PackageId{Ecosystem: model.EcosystemNpm, Name: dep})
		}
		records = append(records, rec)
		if p.Direct {
			root0.DirectDeps = append(root0.DirectDeps, id)
		}
	}

	return dedupe(records), nil
}

func (NpmResolver) loadLockfile(dir string) ([]npmPackage, error) {
	if fileExists(filepath.Join(dir, "package-lock.json")) {
		return loadPackageLock(dir)
	}
	if fileExists(filepath.Join(dir, "yarn.lock")) {
		return loadYarnLock(dir)
	}
	if fileExists(filepath.Join(dir, "pnpm-lock.yaml")) {
		return loadPnpmLock(dir)
	}
	return nil, fmt.Errorf("no package-lock.json, yarn.lock, or pnpm-lock.yaml in %s", dir)
}

// ---------------------------------------------------------------------------
// package-lock.json (v1 and v2+)
// ---------------------------------------------------------------------------

type packageLockJSON struct {
	LockfileVersion int                  `json:"lockfileVersion"`
	Dependencies    map[string]lockDepV1 `json:"dependencies"`
	Packages        map[string]lockPkgV2 `json:"packages"`
}

type lockDepV1 struct {
	Version      string               `json:"version"`
	Requires     map[string]string    `json:"requires"`
	Dev          bool                 `json:"dev"`
	Dependencies map[string]lockDepV1 `json:"dependencies"`
}

type lockPkgV2 struct {
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Dev          bool              `json:"dev"`
	Link         bool              `json:"link"`
}

func loadPackageLock(dir string) ([]npmPackage, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package-lock.json"))
	if err != nil {
		return nil, err
	}
	var lf packageLockJSON
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse package-lock.json: %w", err)
	}

	direct, _ := readManifestDeps(dir)

	if lf.LockfileVersion >= 2 && len(lf.Packages) > 0 {
		return parsePackageLockV2(dir, lf.Packages, direct), nil
	}
	return parsePackageLockV1(dir, lf.Dependencies, direct), nil
}

func parsePackageLockV2(dir string, packages map[string]lockPkgV2, direct map[string]string) []npmPackage {
	var result []npmPackage
	for key, pkg := range packages {
		if key == "" || pkg.Link {
			continue
		}
		name := strings.TrimPrefix(key, "node_modules/")
		if idx := strings.LastIndex(name, "node_modules/"); idx >= 0 {
			name = name[idx+len("node_modules/"):]
		}
		var deps []string
		for depName := range pkg.Dependencies {
			deps = append(deps, depName)
		}
		_, isDirect := direct[name]
		result = append(result, npmPackage{
			Name: name, Version: pkg.Version, Dir: filepath.Join(dir, key),
			Dependencies: deps, Direct: isDirect, Dev: pkg.Dev,
		})
	}
	return result
}

func parsePackageLockV1(dir string, dependencies map[string]lockDepV1, direct map[string]string) []npmPackage {
	var result []npmPackage
	var walk func(name string, dep lockDepV1, dirPrefix string)
	walk = func(name string, dep lockDepV1, dirPrefix string) {
		var deps []string
		for depName := range dep.Requires {
			deps = append(deps, depName)
		}
		_, isDirect := direct[name]
		result = append(result, npmPackage{
			Name: name, Version: dep.Version, Dir: filepath.Join(dirPrefix, "node_modules", name),
			Dependencies: deps, Direct: isDirect, Dev: dep.Dev,
		})
		for nestedName, nestedDep := range dep.Dependencies {
			walk(nestedName, nestedDep, filepath.Join(dirPrefix, "node_modules", name))
		}
	}
	for name, dep := range dependencies {
		walk(name, dep, dir)
	}
	return result
}

// ---------------------------------------------------------------------------
// yarn.lock (v1 classic)
// ---------------------------------------------------------------------------

var rePkgName = regexp.MustCompile(`^"?(@?[^@"]+)@`)

func loadYarnLock(dir string) ([]npmPackage, error) {
	data, err := os.ReadFile(filepath.Join(dir, "yarn.lock"))
	if err != nil {
		return nil, err
	}
	direct, _ := readManifestDeps(dir)
	return parseYarnLock(dir, data, direct), nil
}

func parseYarnLock(dir string, data []byte, direct map[string]string) []npmPackage {
	var result []npmPackage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var currentName, currentVersion string
	var currentDeps []string
	var inDeps bool

	flush := func() {
		if currentName == "" {
			return
		}
		_, isDirect := direct[currentName]
		result = append(result, npmPackage{
			Name: currentName, Version: currentVersion,
			Dir: filepath.Join(dir, "node_modules", currentName),
			Dependencies: currentDeps, Direct: isDirect,
		})
		currentName, currentVersion, currentDeps, inDeps = "", "", nil, false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			flush()
			decl := strings.TrimSuffix(strings.TrimSpace(line), ":")
			first := strings.TrimSpace(strings.Split(decl, ",")[0])
			if m := rePkgName.FindStringSubmatch(first); m != nil {
				currentName = m[1]
			}
			inDeps = false
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "dependencies:" {
			inDeps = true
			continue
		}
		if strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "    ") {
			inDeps = false
		}
		if strings.HasPrefix(trimmed, "version ") {
			currentVersion = strings.Trim(strings.TrimPrefix(trimmed, "version "), `"`)
			continue
		}
		if inDeps && strings.HasPrefix(line, "    ") {
			if parts := strings.Fields(trimmed); len(parts) >= 1 {
				currentDeps = append(currentDeps, strings.Trim(parts[0], `"`))
			}
		}
	}
	flush()
	return result
}

// ---------------------------------------------------------------------------
// pnpm-lock.yaml (regex-only; the file's own schema is simple enough that a
// full YAML parser buys nothing over targeted line patterns)
// ---------------------------------------------------------------------------

var (
	rePnpmPkg = regexp.MustCompile(`^  /?(@?[^@/\s][^@\s]*)@([^\s:]+):`)
	rePnpmDep = regexp.MustCompile(`^    ([^:\s]+):\s+(\S+)`)
)

func loadPnpmLock(dir string) ([]npmPackage, error) {
	data, err := os.ReadFile(filepath.Join(dir, "pnpm-lock.yaml"))
	if err != nil {
		return nil, err
	}
	direct, _ := readManifestDeps(dir)
	return parsePnpmLock(dir, data, direct), nil
}

func parsePnpmLock(dir string, data []byte, direct map[string]string) []npmPackage {
	seen := make(map[string]bool)
	var result []npmPackage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var currentName, currentVer string
	var currentDeps []string
	var inDepsBlock bool

	flush := func() {
		if currentName == "" {
			return
		}
		key := currentName + "@" + currentVer
		if seen[key] {
			currentName, currentVer, currentDeps, inDepsBlock = "", "", nil, false
			return
		}
		seen[key] = true
		_, isDirect := direct[currentName]
		result = append(result, npmPackage{
			Name: currentName, Version: currentVer,
			Dir: filepath.Join(dir, "node_modules", currentName),
			Dependencies: currentDeps, Direct: isDirect,
		})
		currentName, currentVer, currentDeps, inDepsBlock = "", "", nil, false
	}

	for scanner.Scan() {
		line := scanner.Text()
		if m := rePnpmPkg.FindStringSubmatch(line); m != nil {
			flush()
			currentName, currentVer = m[1], m[2]
			inDepsBlock = false
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "dependencies:" {
			inDepsBlock = true
			continue
		}
		if len(line) > 0 && !strings.HasPrefix(line, "    ") {
			if !strings.HasPrefix(line, "  ") {
				flush()
			}
			inDepsBlock = false
		}
		if inDepsBlock {
			if m := rePnpmDep.FindStringSubmatch(line); m != nil {
				currentDeps = append(currentDeps, m[1])
			}
		}
	}
	flush()
	return result
}

// ---------------------------------------------------------------------------
// package.json (manifest; fallback + direct-deps lookup for lockfile parsing)
// ---------------------------------------------------------------------------

func readPackageJSONName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var pkgJSON struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(data, &pkgJSON) != nil {
		return ""
	}
	return pkgJSON.Name
}

// readManifestDeps returns (name -> version range) for dependencies, and the
// set of names that are dev-only.
func readManifestDeps(dir string) (map[string]string, map[string]bool) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, nil
	}
	var pkgJSON struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if json.Unmarshal(data, &pkgJSON) != nil {
		return nil, nil
	}
	direct := make(map[string]string)
	dev := make(map[string]bool)
	for name, v := range pkgJSON.Dependencies {
		direct[name] = v
	}
	for name, v := range pkgJSON.DevDependencies {
		direct[name] = v
		dev[name] = true
	}
	return direct, dev
}
