package analyzer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/1homsi/reachscan/internal/model"
	"github.com/1homsi/reachscan/internal/resolver"
)

// writeNpmFixture lays out a minimal npm application on disk: an app entry
// file that requires a single direct dependency and calls one of its
// exported functions, resolved through a v2 package-lock.json. Exercises the
// full C1-C9 pipeline without shelling out to any package-manager CLI.
func writeNpmFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	mustWrite := func(rel, content string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	mustWrite("package.json", `{
  "name": "demo-app",
  "version": "1.0.0",
  "dependencies": { "left-pad": "^1.0.0" }
}
`)
	mustWrite("package-lock.json", `{
  "name": "demo-app",
  "version": "1.0.0",
  "lockfileVersion": 2,
  "packages": {
    "": { "name": "demo-app", "version": "1.0.0" },
    "node_modules/left-pad": { "version": "1.0.0" }
  }
}
`)
	mustWrite("index.js", "const leftPad = require('left-pad')\n\nfunction main() {\n  leftPad.pad('x')\n}\n")
	mustWrite("node_modules/left-pad/index.js", "module.exports.pad = function pad(str) {\n  return str\n}\n")

	return dir
}

func TestAnalyzeNpmEndToEndReachesDependencyFunction(t *testing.T) {
	dir := writeNpmFixture(t)

	reports, err := New().Analyze(context.Background(), dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(reports))
	}

	report := reports[0]
	if report.Ecosystem != model.EcosystemNpm {
		t.Fatalf("expected npm ecosystem, got %s", report.Ecosystem)
	}
	if report.Truncated {
		t.Error("did not expect the depth cap to be hit on a two-function chain")
	}

	var sawMain, sawPad bool
	for key, reached := range report.Reachable {
		if !reached {
			continue
		}
		if strings.Contains(key, "#main") {
			sawMain = true
		}
		if strings.Contains(key, "left-pad") && strings.Contains(key, "#pad") {
			sawPad = true
		}
	}
	if !sawMain {
		t.Errorf("expected main() to be reached, reachable set: %v", report.Reachable)
	}
	if !sawPad {
		t.Errorf("expected left-pad's pad() to be reached through main()'s call, reachable set: %v", report.Reachable)
	}
}

func TestAnalyzeNpmMapsAdvisoryAgainstReachedSymbol(t *testing.T) {
	dir := writeNpmFixture(t)

	cfg := DefaultConfig()
	cfg.Advisories = []model.VulnerabilityLocation{{
		CVEID:            "CVE-2024-9999",
		PackageEcosystem: model.EcosystemNpm,
		PackageName:      "left-pad",
		AffectedSymbols:  []string{"pad"},
	}}

	reports, err := New().Analyze(context.Background(), dir, cfg)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	report := reports[0]
	if len(report.Verdicts) != 1 {
		t.Fatalf("expected one verdict, got %d", len(report.Verdicts))
	}
	if report.Verdicts[0].Verdict != model.VerdictReachable {
		t.Errorf("expected the advisory against the called function to be Reachable, got %s", report.Verdicts[0].Verdict)
	}
	if len(report.Verdicts[0].ExampleChain) == 0 {
		t.Error("expected a non-empty example call chain for a reachable verdict")
	}
}

// writeGoLibraryFixture builds a Go module with no main/init function and a
// single exported function, to exercise the EntrypointsFallbackPublicAPI gate.
func writeGoLibraryFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustWrite := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("go.mod", "module libfixture\n\ngo 1.21\n")
	mustWrite("lib.go", "package libfixture\n\nfunc DoThing() string {\n\treturn \"ok\"\n}\n")
	return dir
}

func TestAnalyzeOneRejectsLibraryWithNoEntrypointsWhenFallbackDisabled(t *testing.T) {
	dir := writeGoLibraryFixture(t)
	cfg := DefaultConfig()
	cfg.EntrypointsFallbackPublicAPI = false

	_, err := New().analyzeOne(context.Background(), dir, &resolver.GoResolver{}, cfg)
	var noEntrypoints *model.NoEntrypointsError
	if !errors.As(err, &noEntrypoints) {
		t.Fatalf("expected a NoEntrypointsError for a library with no main and the fallback disabled, got %v", err)
	}
}

func TestAnalyzeOneAcceptsLibraryWithFallbackEnabled(t *testing.T) {
	dir := writeGoLibraryFixture(t)
	cfg := DefaultConfig()
	cfg.EntrypointsFallbackPublicAPI = true

	report, err := New().analyzeOne(context.Background(), dir, &resolver.GoResolver{}, cfg)
	if err != nil {
		t.Fatalf("analyzeOne: %v", err)
	}
	foundExported := false
	for key := range report.Reachable {
		if strings.Contains(key, "DoThing") {
			foundExported = true
		}
	}
	if !foundExported {
		t.Errorf("expected the exported DoThing symbol to be reached via the public-API fallback, reachable set: %v", report.Reachable)
	}
}

func TestAnalyzeNpmNoSupportedEcosystemErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := New().Analyze(context.Background(), dir, DefaultConfig()); err == nil {
		t.Error("expected an error when no ecosystem manifest is present")
	}
}
