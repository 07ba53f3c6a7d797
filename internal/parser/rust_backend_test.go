package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/1homsi/reachscan/internal/model"
)

func TestRustBackendExtractsFunctionsAndLocalCalls(t *testing.T) {
	dir := t.TempDir()
	src := "fn main() {\n    helper();\n}\n\nfn helper() {\n    println!(\"hi\");\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "main.rs"), []byte(src), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	pkg := model.PackageRecord{ID: model.PackageId{Ecosystem: model.EcosystemCargo, Name: "app"}}
	parsed, err := RustBackend{}.Parse(context.Background(), pkg, dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Files) != 1 || len(parsed.Files[0].Functions) != 2 {
		t.Fatalf("expected 2 functions in 1 file, got %+v", parsed.Files)
	}

	var mainFn, helperFn *model.FunctionNode
	for i := range parsed.Files[0].Functions {
		switch parsed.Files[0].Functions[i].Symbol.Name {
		case "main":
			mainFn = &parsed.Files[0].Functions[i]
		case "helper":
			helperFn = &parsed.Files[0].Functions[i]
		}
	}
	if mainFn == nil || helperFn == nil {
		t.Fatal("expected both main and helper to be extracted")
	}
	if len(mainFn.Calls) != 1 || mainFn.Calls[0].Kind != model.CallLocal || mainFn.Calls[0].Target.Name != "helper" {
		t.Errorf("expected main to call helper locally (not itself), got %+v", mainFn.Calls)
	}
	if len(helperFn.Calls) != 1 || helperFn.Calls[0].Kind != model.CallUnresolvedDynamic {
		t.Errorf("expected the println! macro invocation to be an unresolved dynamic call, got %+v", helperFn.Calls)
	}
}

func TestRustBackendResolvesUseBinding(t *testing.T) {
	dir := t.TempDir()
	src := "use std::collections::HashMap;\n\nfn main() {\n    HashMap::new();\n}\n"
	if err := os.WriteFile(filepath.Join(dir, "main.rs"), []byte(src), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	pkg := model.PackageRecord{ID: model.PackageId{Ecosystem: model.EcosystemCargo, Name: "app"}}
	parsed, err := RustBackend{}.Parse(context.Background(), pkg, dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	fn := parsed.Files[0].Functions[0]
	if len(fn.Calls) != 1 || fn.Calls[0].Kind != model.CallExternalRef {
		t.Fatalf("expected one external ref call, got %+v", fn.Calls)
	}
}

func TestRustVisibilityDetectsPub(t *testing.T) {
	if rustVisibility("pub fn run() {") != model.VisibilityPublic {
		t.Error("expected a pub fn to be public")
	}
	if rustVisibility("fn run() {") != model.VisibilityPackageInternal {
		t.Error("expected a non-pub fn to be package-internal")
	}
}
