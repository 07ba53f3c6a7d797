package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/1homsi/reachscan/internal/model"
)

func TestPythonBackendExtractsFunctionsAndLocalCalls(t *testing.T) {
	dir := t.TempDir()
	src := "def main():\n    helper()\n\ndef helper():\n    pass\n"
	if err := os.WriteFile(filepath.Join(dir, "app.py"), []byte(src), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	pkg := model.PackageRecord{ID: model.PackageId{Ecosystem: model.EcosystemPyPI, Name: "app"}}
	parsed, err := PythonBackend{}.Parse(context.Background(), pkg, dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Opaque {
		t.Fatal("did not expect an opaque result for a package with .py files")
	}
	if len(parsed.Files) != 1 || len(parsed.Files[0].Functions) != 2 {
		t.Fatalf("expected 2 functions in 1 file, got %+v", parsed.Files)
	}

	var mainFn *model.FunctionNode
	for i := range parsed.Files[0].Functions {
		if parsed.Files[0].Functions[i].Symbol.Name == "main" {
			mainFn = &parsed.Files[0].Functions[i]
		}
	}
	if mainFn == nil {
		t.Fatal("expected a main function")
	}
	if len(mainFn.Calls) != 1 || mainFn.Calls[0].Kind != model.CallLocal || mainFn.Calls[0].Target.Name != "helper" {
		t.Errorf("expected main to record a local call to helper, got %+v", mainFn.Calls)
	}
}

func TestPythonBackendResolvesFromImportBinding(t *testing.T) {
	dir := t.TempDir()
	src := "from utils import clean\n\ndef main():\n    clean()\n"
	if err := os.WriteFile(filepath.Join(dir, "app.py"), []byte(src), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	pkg := model.PackageRecord{ID: model.PackageId{Ecosystem: model.EcosystemPyPI, Name: "app"}}
	parsed, err := PythonBackend{}.Parse(context.Background(), pkg, dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fn := parsed.Files[0].Functions[0]
	if len(fn.Calls) != 1 || fn.Calls[0].Kind != model.CallExternalRef || fn.Calls[0].Binding.TargetModule != "utils" {
		t.Errorf("expected an external ref to module utils, got %+v", fn.Calls)
	}
}

func TestPythonBackendOpaqueWhenNoSourceFiles(t *testing.T) {
	dir := t.TempDir()
	pkg := model.PackageRecord{ID: model.PackageId{Ecosystem: model.EcosystemPyPI, Name: "app"}}
	parsed, err := PythonBackend{}.Parse(context.Background(), pkg, dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !parsed.Opaque {
		t.Error("expected an opaque result when no .py files are present")
	}
}

func TestPyVisibilityClassifiesDunderAndPrivate(t *testing.T) {
	if pyVisibility("__init__") != model.VisibilityPublic {
		t.Error("expected a dunder method to be public")
	}
	if pyVisibility("__secret") != model.VisibilityPrivate {
		t.Error("expected a name-mangled double-underscore prefix to be private")
	}
	if pyVisibility("_helper") != model.VisibilityPackageInternal {
		t.Error("expected a single leading underscore to be package-internal")
	}
}
