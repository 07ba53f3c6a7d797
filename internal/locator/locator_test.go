package locator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/1homsi/reachscan/internal/model"
)

func TestLocateUsesSourceRootWhenPresent(t *testing.T) {
	dir := t.TempDir()
	rec := model.PackageRecord{
		ID:         model.PackageId{Ecosystem: model.EcosystemGo, Name: "app"},
		SourceRoot: dir,
	}

	got := New(dir).Locate(rec)
	if got.Missing {
		t.Fatal("expected the advertised SourceRoot to resolve")
	}
	if got.Root != dir {
		t.Errorf("expected root %q, got %q", dir, got.Root)
	}
}

func TestLocateFallsBackToNpmVendorConvention(t *testing.T) {
	appRoot := t.TempDir()
	depDir := filepath.Join(appRoot, "node_modules", "left-pad")
	if err := os.MkdirAll(depDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	rec := model.PackageRecord{ID: model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad"}}
	got := New(appRoot).Locate(rec)
	if got.Missing {
		t.Fatal("expected the node_modules convention path to resolve")
	}
	real, _ := filepath.EvalSymlinks(depDir)
	if got.Root != real {
		t.Errorf("expected root %q, got %q", real, got.Root)
	}
}

func TestLocateReportsMissingWhenNoCandidateExists(t *testing.T) {
	appRoot := t.TempDir()
	rec := model.PackageRecord{ID: model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad"}}
	got := New(appRoot).Locate(rec)
	if !got.Missing {
		t.Error("expected Missing when neither SourceRoot nor the convention path exists")
	}
}

func TestLocateDoesNotLoopOnRepeatedRequest(t *testing.T) {
	dir := t.TempDir()
	rec := model.PackageRecord{
		ID:         model.PackageId{Ecosystem: model.EcosystemGo, Name: "app"},
		SourceRoot: dir,
	}
	loc := New(dir)

	first := loc.Locate(rec)
	second := loc.Locate(rec)
	if first.Missing || second.Missing {
		t.Fatal("expected both lookups to resolve")
	}
	if first.Root != second.Root {
		t.Errorf("expected the same resolved root on repeated lookups, got %q vs %q", first.Root, second.Root)
	}
}
