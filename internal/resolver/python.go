package resolver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/1homsi/reachscan/internal/model"
)

// PythonResolver resolves poetry.lock (TOML) first, then Pipfile.lock
// (JSON), then falls back to a regex scan of requirements.txt, per
// spec.md §4.1's PyPI row. Mirrors the multi-format fallback chain the
// teacher's npm resolver uses for package-lock.json/yarn.lock/pnpm-lock.yaml.
type PythonResolver struct{}

func (PythonResolver) Ecosystem() model.Ecosystem { return model.EcosystemPyPI }

func (PythonResolver) Detect(root string) bool {
	return fileExists(filepath.Join(root, "poetry.lock")) ||
		fileExists(filepath.Join(root, "Pipfile.lock")) ||
		fileExists(filepath.Join(root, "requirements.txt")) ||
		fileExists(filepath.Join(root, "pyproject.toml"))
}

type poetryLock struct {
	Package []poetryPkg `toml:"package"`
}

type poetryPkg struct {
	Name         string         `toml:"name"`
	Version      string         `toml:"version"`
	Dependencies map[string]any `toml:"dependencies"`
}

type pipfileLock struct {
	Default map[string]pipfileDep `json:"default"`
	Develop map[string]pipfileDep `json:"develop"`
}

type pipfileDep struct {
	Version string `json:"version"`
}

func (r PythonResolver) Resolve(root string) ([]model.PackageRecord, error) {
	rootName := pyprojectName(root)
	if rootName == "" {
		rootName = filepath.Base(root)
	}
	directNames, _ := pyprojectDeps(root)

	root0 := model.PackageRecord{
		ID:            model.PackageId{Ecosystem: model.EcosystemPyPI, Name: rootName},
		SourceRoot:    root,
		IsApplication: true,
		Language:      "python",
	}

	if fileExists(filepath.Join(root, "poetry.lock")) {
		records, err := r.resolvePoetry(root, root0, directNames)
		if err != nil {
			return nil, err
		}
		return records, nil
	}
	if fileExists(filepath.Join(root, "Pipfile.lock")) {
		records, err := r.resolvePipfile(root, root0)
		if err != nil {
			return nil, err
		}
		return records, nil
	}
	if fileExists(filepath.Join(root, "requirements.txt")) {
		records, err := r.resolveRequirements(root, root0)
		if err != nil {
			return nil, err
		}
		return records, nil
	}
	if directNames != nil {
		records := []model.PackageRecord{root0}
		for name := range directNames {
			id := model.PackageId{Ecosystem: model.EcosystemPyPI, Name: name}
			root0.DirectDeps = append(root0.DirectDeps, id)
			records = append(records, model.PackageRecord{ID: id, Language: "python"})
		}
		return dedupe(records), nil
	}

	return nil, &model.UnresolvableLockfileError{
		Ecosystem: model.EcosystemPyPI, Dir: root,
		Primary: "poetry.lock", Fallback: "requirements.txt",
	}
}

func (PythonResolver) resolvePoetry(root string, root0 model.PackageRecord, directNames map[string]bool) ([]model.PackageRecord, error) {
	data, err := os.ReadFile(filepath.Join(root, "poetry.lock"))
	if err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemPyPI, Dir: root, Primary: "poetry.lock", Cause: err,
		}
	}
	var lock poetryLock
	if _, err := toml.Decode(string(data), &lock); err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemPyPI, Dir: root, Primary: "poetry.lock", Cause: err,
		}
	}

	records := []model.PackageRecord{root0}
	for _, pkg := range lock.Package {
		var deps []model.PackageId
		for depName := range pkg.Dependencies {
			deps = append(deps, model.PackageId{Ecosystem: model.EcosystemPyPI, Name: normalizePyName(depName)})
		}
		id := model.PackageId{Ecosystem: model.EcosystemPyPI, Name: normalizePyName(pkg.Name), Version: pkg.Version}
		records = append(records, model.PackageRecord{ID: id, Language: "python", DirectDeps: deps})
		if directNames[normalizePyName(pkg.Name)] {
			records[0].DirectDeps = append(records[0].DirectDeps, id)
		}
	}
	return dedupe(records), nil
}

func (PythonResolver) resolvePipfile(root string, root0 model.PackageRecord) ([]model.PackageRecord, error) {
	data, err := os.ReadFile(filepath.Join(root, "Pipfile.lock"))
	if err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemPyPI, Dir: root, Primary: "Pipfile.lock", Cause: err,
		}
	}
	var lock pipfileLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemPyPI, Dir: root, Primary: "Pipfile.lock",
			Cause: err,
		}
	}

	records := []model.PackageRecord{root0}
	for name, dep := range lock.Default {
		id := model.PackageId{Ecosystem: model.EcosystemPyPI, Name: normalizePyName(name), Version: strings.TrimPrefix(dep.Version, "==")}
		records[0].DirectDeps = append(records[0].DirectDeps, id)
		records = append(records, model.PackageRecord{ID: id, Language: "python"})
	}
	for name, dep := range lock.Develop {
		id := model.PackageId{Ecosystem: model.EcosystemPyPI, Name: normalizePyName(name), Version: strings.TrimPrefix(dep.Version, "==")}
		records = append(records, model.PackageRecord{ID: id, Language: "python", DevOnly: true})
	}
	return dedupe(records), nil
}

var reRequirement = regexp.MustCompile(`^([A-Za-z0-9_.\-\[\]]+)\s*(==|>=|<=|~=|>|<)?\s*([A-Za-z0-9_.\-]*)`)

func (PythonResolver) resolveRequirements(root string, root0 model.PackageRecord) ([]model.PackageRecord, error) {
	data, err := os.ReadFile(filepath.Join(root, "requirements.txt"))
	if err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemPyPI, Dir: root, Primary: "requirements.txt", Cause: err,
		}
	}
	records := []model.PackageRecord{root0}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		m := reRequirement.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := normalizePyName(m[1])
		id := model.PackageId{Ecosystem: model.EcosystemPyPI, Name: name, Version: m[3]}
		records[0].DirectDeps = append(records[0].DirectDeps, id)
		records = append(records, model.PackageRecord{ID: id, Language: "python"})
	}
	return dedupe(records), nil
}

// normalizePyName applies PEP 503 normalization (case-fold, "_"/"." -> "-")
// so the same package referenced inconsistently across files still maps to
// one PackageId.
func normalizePyName(name string) string {
	lower := strings.ToLower(name)
	replaced := strings.NewReplacer("_", "-", ".", "-").Replace(lower)
	for strings.Contains(replaced, "--") {
		replaced = strings.ReplaceAll(replaced, "--", "-")
	}
	return replaced
}

type pyprojectFile struct {
	Tool struct {
		Poetry struct {
			Name         string         `toml:"name"`
			Dependencies map[string]any `toml:"dependencies"`
			Group        map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
	Project struct {
		Name         string   `toml:"name"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
}

func pyprojectName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "pyproject.toml"))
	if err != nil {
		return ""
	}
	var p pyprojectFile
	if _, err := toml.Decode(string(data), &p); err != nil {
		return ""
	}
	if p.Tool.Poetry.Name != "" {
		return p.Tool.Poetry.Name
	}
	return p.Project.Name
}

func pyprojectDeps(dir string) (map[string]bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, "pyproject.toml"))
	if err != nil {
		return nil, nil
	}
	var p pyprojectFile
	if _, err := toml.Decode(string(data), &p); err != nil {
		return nil, nil
	}
	direct := make(map[string]bool)
	for name := range p.Tool.Poetry.Dependencies {
		if name == "python" {
			continue
		}
		direct[normalizePyName(name)] = true
	}
	for _, dep := range p.Project.Dependencies {
		name := reRequirement.FindStringSubmatch(dep)
		if name != nil {
			direct[normalizePyName(name[1])] = true
		}
	}
	if len(direct) == 0 {
		return nil, nil
	}
	return direct, nil
}
