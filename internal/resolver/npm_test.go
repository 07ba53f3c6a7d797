package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/1homsi/reachscan/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestNpmResolverDetect(t *testing.T) {
	dir := t.TempDir()
	r := NpmResolver{}
	if r.Detect(dir) {
		t.Error("expected no detection in an empty directory")
	}
	writeFile(t, dir, "package.json", `{"name":"app"}`)
	if !r.Detect(dir) {
		t.Error("expected detection once package.json exists")
	}
}

func TestNpmResolverResolvesLockV2(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{
  "name": "demo-app",
  "dependencies": { "left-pad": "^1.0.0" }
}`)
	writeFile(t, dir, "package-lock.json", `{
  "lockfileVersion": 2,
  "packages": {
    "": { "name": "demo-app" },
    "node_modules/left-pad": { "version": "1.0.0" }
  }
}`)

	records, err := NpmResolver{}.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	var root, dep *model.PackageRecord
	for i := range records {
		if records[i].ID.Name == "demo-app" {
			root = &records[i]
		}
		if records[i].ID.Name == "left-pad" {
			dep = &records[i]
		}
	}
	if root == nil || !root.IsApplication {
		t.Fatal("expected an application record named demo-app")
	}
	if dep == nil {
		t.Fatal("expected a left-pad record")
	}
	if dep.ID.Version != "1.0.0" {
		t.Errorf("expected resolved version 1.0.0, got %q", dep.ID.Version)
	}
	if len(root.DirectDeps) != 1 || root.DirectDeps[0].Name != "left-pad" {
		t.Errorf("expected left-pad recorded as a direct dependency, got %v", root.DirectDeps)
	}
}

func TestNpmResolverMarksDevDependencies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{
  "name": "demo-app",
  "devDependencies": { "mocha": "^9.0.0" }
}`)
	writeFile(t, dir, "package-lock.json", `{
  "lockfileVersion": 2,
  "packages": {
    "": { "name": "demo-app" },
    "node_modules/mocha": { "version": "9.0.0", "dev": true }
  }
}`)

	records, err := NpmResolver{}.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, rec := range records {
		if rec.ID.Name == "mocha" && !rec.DevOnly {
			t.Error("expected mocha to be marked DevOnly")
		}
	}
}

func TestNpmResolverFallsBackToManifestWithoutLockfile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{
  "name": "demo-app",
  "dependencies": { "left-pad": "^1.0.0" }
}`)

	records, err := NpmResolver{}.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var dep *model.PackageRecord
	for i := range records {
		if records[i].ID.Name == "left-pad" {
			dep = &records[i]
		}
	}
	if dep == nil {
		t.Fatal("expected left-pad resolved from package.json alone")
	}
	if dep.ID.Version != "^1.0.0" {
		t.Errorf("expected the verbatim version range preserved, got %q", dep.ID.Version)
	}
}

func TestNpmResolverParsesYarnLock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{
  "name": "demo-app",
  "dependencies": { "left-pad": "^1.0.0" }
}`)
	writeFile(t, dir, "yarn.lock", "# THIS IS AN AUTOGENERATED FILE\n\n"+
		"left-pad@^1.0.0:\n  version \"1.0.0\"\n  dependencies:\n    foo \"^1.0.0\"\n")

	records, err := NpmResolver{}.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var dep *model.PackageRecord
	for i := range records {
		if records[i].ID.Name == "left-pad" {
			dep = &records[i]
		}
	}
	if dep == nil || dep.ID.Version != "1.0.0" {
		t.Fatalf("expected left-pad@1.0.0 parsed from yarn.lock, got %+v", dep)
	}
	if len(dep.DirectDeps) != 1 || dep.DirectDeps[0].Name != "foo" {
		t.Errorf("expected transitive dependency foo recorded, got %v", dep.DirectDeps)
	}
}
