package analyze

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRunReturnsUsageErrorWithNoApplicationRoot(t *testing.T) {
	if got := Run(nil); got != 2 {
		t.Errorf("expected exit code 2 with no application root, got %d", got)
	}
}

func TestRunRejectsUnknownDynamicPolicy(t *testing.T) {
	dir := t.TempDir()
	if got := Run([]string{"-dynamic-policy", "bogus", dir}); got != 2 {
		t.Errorf("expected exit code 2 for an unknown -dynamic-policy value, got %d", got)
	}
}

func TestRunRejectsUnreadableAdvisoriesFile(t *testing.T) {
	dir := t.TempDir()
	if got := Run([]string{"-advisories", filepath.Join(dir, "missing.json"), dir}); got != 1 {
		t.Errorf("expected exit code 1 for an unreadable advisories file, got %d", got)
	}
}

func TestRunRejectsMalformedAdvisoriesJSON(t *testing.T) {
	dir := t.TempDir()
	advisories := filepath.Join(dir, "advisories.json")
	if err := os.WriteFile(advisories, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if got := Run([]string{"-advisories", advisories, dir}); got != 1 {
		t.Errorf("expected exit code 1 for malformed advisories JSON, got %d", got)
	}
}

func TestRunEndToEndWithNpmFixtureProducesJSONReport(t *testing.T) {
	dir := writeCmdNpmFixture(t)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	origStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = origStdout }()

	code := Run([]string{"-json", dir})
	w.Close()
	os.Stdout = origStdout

	buf := make([]byte, 64*1024)
	n, _ := r.Read(buf)
	out := buf[:n]

	if code != 0 {
		t.Fatalf("expected exit code 0 with no advisories supplied, got %d; output: %s", code, out)
	}

	var reports []map[string]any
	if err := json.Unmarshal(out, &reports); err != nil {
		t.Fatalf("expected valid JSON output, got error %v for: %s", err, out)
	}
	if len(reports) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(reports))
	}
	if reports[0]["ecosystem"] != "npm" {
		t.Errorf("expected the npm ecosystem in the report, got %v", reports[0]["ecosystem"])
	}
}

// writeCmdNpmFixture builds the same minimal npm+JS application fixture used
// by the analyzer's own end-to-end test: a package.json/package-lock.json
// pair, an entrypoint that calls into a vendored dependency, and the
// dependency's node_modules tree.
func writeCmdNpmFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustWrite := func(rel, content string) {
		t.Helper()
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	mustWrite("package.json", `{
  "name": "cmd-fixture-app",
  "version": "1.0.0",
  "dependencies": { "left-pad": "1.3.0" }
}`)
	mustWrite("package-lock.json", `{
  "name": "cmd-fixture-app",
  "version": "1.0.0",
  "lockfileVersion": 2,
  "packages": {
    "": { "name": "cmd-fixture-app", "version": "1.0.0", "dependencies": { "left-pad": "1.3.0" } },
    "node_modules/left-pad": { "version": "1.3.0" }
  }
}`)
	mustWrite("index.js", `const leftPad = require('left-pad');

function main() {
    return leftPad.pad('x');
}

main();
`)
	mustWrite("node_modules/left-pad/index.js", `module.exports.pad = function pad(str) {
    return str;
};
`)
	return dir
}
