package resolver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/1homsi/reachscan/internal/model"
)

// MavenResolver resolves a Bazel-style maven_install.json pin file first
// (the only fully-resolved, machine-readable lockfile form in the JVM
// ecosystem), falling back to a best-effort regex scan of pom.xml's
// <dependency> blocks, per spec.md §4.1's Maven row.
type MavenResolver struct{}

func (MavenResolver) Ecosystem() model.Ecosystem { return model.EcosystemMaven }

func (MavenResolver) Detect(root string) bool {
	return fileExists(filepath.Join(root, "maven_install.json")) || fileExists(filepath.Join(root, "pom.xml"))
}

type mavenInstallJSON struct {
	DependencyTree struct {
		Dependencies []mavenPin `json:"dependencies"`
	} `json:"dependency_tree"`
}

type mavenPin struct {
	Coord             string   `json:"coord"`
	Dependencies      []string `json:"dependencies"`
	DirectDependencies []string `json:"directDependencies"`
}

func (r MavenResolver) Resolve(root string) ([]model.PackageRecord, error) {
	rootName := filepath.Base(root)
	root0 := model.PackageRecord{
		ID:            model.PackageId{Ecosystem: model.EcosystemMaven, Name: rootName},
		SourceRoot:    root,
		IsApplication: true,
		Language:      "java",
	}

	if fileExists(filepath.Join(root, "maven_install.json")) {
		return r.resolvePin(root, root0)
	}
	if fileExists(filepath.Join(root, "pom.xml")) {
		return r.resolvePom(root, root0)
	}
	return nil, &model.UnresolvableLockfileError{
		Ecosystem: model.EcosystemMaven, Dir: root,
		Primary: "maven_install.json", Fallback: "pom.xml",
	}
}

func (MavenResolver) resolvePin(root string, root0 model.PackageRecord) ([]model.PackageRecord, error) {
	data, err := os.ReadFile(filepath.Join(root, "maven_install.json"))
	if err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemMaven, Dir: root, Primary: "maven_install.json", Cause: err,
		}
	}
	var pin mavenInstallJSON
	if err := json.Unmarshal(data, &pin); err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemMaven, Dir: root, Primary: "maven_install.json", Cause: err,
		}
	}

	directSet := make(map[string]bool)
	for _, d := range pin.DependencyTree.Dependencies {
		for _, dd := range d.DirectDependencies {
			directSet[coordToName(dd)] = true
		}
	}

	records := []model.PackageRecord{root0}
	for _, dep := range pin.DependencyTree.Dependencies {
		id := coordToID(dep.Coord)
		var deps []model.PackageId
		for _, childCoord := range dep.Dependencies {
			deps = append(deps, model.PackageId{Ecosystem: model.EcosystemMaven, Name: coordToName(childCoord)})
		}
		records = append(records, model.PackageRecord{ID: id, Language: "java", DirectDeps: deps})
		if directSet[id.Name] {
			records[0].DirectDeps = append(records[0].DirectDeps, id)
		}
	}
	return dedupe(records), nil
}

// coordToName extracts "group:artifact" from a Maven coordinate string
// ("group:artifact:version" or bare "group:artifact").
func coordToName(coord string) string {
	parts := strings.Split(coord, ":")
	if len(parts) >= 2 {
		return parts[0] + ":" + parts[1]
	}
	return coord
}

func coordToID(coord string) model.PackageId {
	parts := strings.Split(coord, ":")
	if len(parts) >= 3 {
		return model.PackageId{Ecosystem: model.EcosystemMaven, Name: parts[0] + ":" + parts[1], Version: parts[2]}
	}
	return model.PackageId{Ecosystem: model.EcosystemMaven, Name: coord}
}

var reMavenDependency = regexp.MustCompile(`(?s)<dependency>(.*?)</dependency>`)
var reMavenGroupID = regexp.MustCompile(`<groupId>([^<]+)</groupId>`)
var reMavenArtifactID = regexp.MustCompile(`<artifactId>([^<]+)</artifactId>`)
var reMavenVersion = regexp.MustCompile(`<version>([^<]+)</version>`)

func (MavenResolver) resolvePom(root string, root0 model.PackageRecord) ([]model.PackageRecord, error) {
	data, err := os.ReadFile(filepath.Join(root, "pom.xml"))
	if err != nil {
		return nil, &model.UnresolvableLockfileError{
			Ecosystem: model.EcosystemMaven, Dir: root, Primary: "pom.xml", Cause: err,
		}
	}

	records := []model.PackageRecord{root0}
	for _, block := range reMavenDependency.FindAllStringSubmatch(string(data), -1) {
		body := block[1]
		g := reMavenGroupID.FindStringSubmatch(body)
		a := reMavenArtifactID.FindStringSubmatch(body)
		if g == nil || a == nil {
			continue
		}
		version := ""
		if v := reMavenVersion.FindStringSubmatch(body); v != nil {
			version = v[1]
		}
		id := model.PackageId{Ecosystem: model.EcosystemMaven, Name: g[1] + ":" + a[1], Version: version}
		records[0].DirectDeps = append(records[0].DirectDeps, id)
		records = append(records, model.PackageRecord{ID: id, Language: "java"})
	}
	return dedupe(records), nil
}
