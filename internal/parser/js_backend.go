package parser

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/1homsi/reachscan/internal/model"
)

// JSBackend extracts per-file function symbols and call sites for
// JavaScript/TypeScript source using line-oriented regexes, the same
// technique gorisk's internal/adapters/node/astdetector.go uses to resolve
// import bindings — extended here from capability detection to full
// function-level symbol tables and call descriptors (no JS/TS parser
// library exists anywhere in the example corpus).
type JSBackend struct{}

func NewJSBackend() *JSBackend { return &JSBackend{} }

func (JSBackend) Language() string { return "javascript" }

var (
	jsVarBind        = regexp.MustCompile(`(?:const|let|var)\s+(\w+)\s*=\s*require\(['"]([^'"]+)['"]\)`)
	jsDestructured   = regexp.MustCompile(`(?:const|let|var)\s*\{([^}]+)\}\s*=\s*require\(['"]([^'"]+)['"]\)`)
	jsImportDefault  = regexp.MustCompile(`import\s+(\w+)\s+from\s+['"]([^'"]+)['"]`)
	jsImportNamed    = regexp.MustCompile(`import\s*\{([^}]+)\}\s*from\s+['"]([^'"]+)['"]`)
	jsImportNS       = regexp.MustCompile(`import\s*\*\s*as\s+(\w+)\s+from\s+['"]([^'"]+)['"]`)
	jsFuncDecl       = regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s+(\w+)\s*\(`)
	jsArrowAssign    = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s*)?\([^)]*\)\s*=>`)
	jsMethodDecl     = regexp.MustCompile(`^\s*(?:static\s+)?(?:async\s+)?(\w+)\s*\([^)]*\)\s*\{`)
	jsModuleExports  = regexp.MustCompile(`(?:module\.)?exports\.(\w+)\s*=\s*(?:async\s+)?function`)
	jsCallSite       = regexp.MustCompile(`\b([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*)?)\s*\(`)
)

func (JSBackend) Parse(ctx context.Context, pkg model.PackageRecord, root string) (*ParsedPackage, error) {
	result := &ParsedPackage{Package: pkg.ID, Root: root, Language: "javascript"}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".js" && ext != ".ts" && ext != ".jsx" && ext != ".tsx" && ext != ".mjs" {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil && strings.Contains(rel, "node_modules"+string(filepath.Separator)) {
			// Nested node_modules belong to their own PackageRecord.
			return filepath.SkipDir
		}

		src, ferr := os.ReadFile(path)
		if ferr != nil {
			return nil
		}
		file := parseJSFile(pkg.ID, path, src)
		result.Files = append(result.Files, file)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Files) == 0 {
		result.Opaque = true
		result.Reason = "no JS/TS source files found"
	}
	return result, nil
}

func parseJSFile(pkgID model.PackageId, path string, src []byte) ParsedFile {
	file := ParsedFile{Path: path}
	bindings := make(map[string]model.ImportBinding)

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var current *model.FunctionNode
	lineNo := 0

	flushCurrent := func() {
		if current != nil {
			file.Functions = append(file.Functions, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		lineNo++

		if m := jsVarBind.FindStringSubmatch(line); m != nil {
			b := model.ImportBinding{LocalAlias: m[1], TargetModule: m[2]}
			bindings[m[1]] = b
			file.Imports = append(file.Imports, b)
		}
		if m := jsDestructured.FindStringSubmatch(line); m != nil {
			module := m[2]
			for _, part := range strings.Split(m[1], ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				local, sym := part, part
				if exp, loc, found := strings.Cut(part, ":"); found {
					sym, local = strings.TrimSpace(exp), strings.TrimSpace(loc)
				}
				b := model.ImportBinding{LocalAlias: local, TargetModule: module, Symbol: sym}
				bindings[local] = b
				file.Imports = append(file.Imports, b)
			}
		}
		if m := jsImportDefault.FindStringSubmatch(line); m != nil {
			b := model.ImportBinding{LocalAlias: m[1], TargetModule: m[2], Symbol: "default"}
			bindings[m[1]] = b
			file.Imports = append(file.Imports, b)
		}
		if m := jsImportNamed.FindStringSubmatch(line); m != nil {
			module := m[2]
			for _, part := range strings.Split(m[1], ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				local, sym := part, part
				if idx := strings.Index(strings.ToLower(part), " as "); idx >= 0 {
					sym = strings.TrimSpace(part[:idx])
					local = strings.TrimSpace(part[idx+4:])
				}
				b := model.ImportBinding{LocalAlias: local, TargetModule: module, Symbol: sym}
				bindings[local] = b
				file.Imports = append(file.Imports, b)
			}
		}
		if m := jsImportNS.FindStringSubmatch(line); m != nil {
			b := model.ImportBinding{LocalAlias: m[1], TargetModule: m[2], Wildcard: true}
			bindings[m[1]] = b
			file.Imports = append(file.Imports, b)
		}

		if m := jsFuncDecl.FindStringSubmatch(line); m != nil {
			flushCurrent()
			current = &model.FunctionNode{
				Symbol:     jsSymbol(pkgID, path, m[1]),
				Visibility: jsVisibility(line, m[1]),
				File:       path,
				LineStart:  lineNo,
			}
			continue
		}
		if m := jsArrowAssign.FindStringSubmatch(line); m != nil {
			flushCurrent()
			current = &model.FunctionNode{
				Symbol:     jsSymbol(pkgID, path, m[1]),
				Visibility: jsVisibility(line, m[1]),
				File:       path,
				LineStart:  lineNo,
			}
			continue
		}
		if m := jsModuleExports.FindStringSubmatch(line); m != nil {
			flushCurrent()
			current = &model.FunctionNode{
				Symbol:     jsSymbol(pkgID, path, m[1]),
				Visibility: model.VisibilityPublic,
				File:       path,
				LineStart:  lineNo,
			}
			continue
		}

		if current != nil {
			for _, m := range jsCallSite.FindAllStringSubmatch(line, -1) {
				recordJSCall(current, bindings, m[1], path, lineNo)
			}
			if strings.TrimSpace(line) == "}" {
				flushCurrent()
			}
		}
	}
	flushCurrent()
	return file
}

func recordJSCall(fn *model.FunctionNode, bindings map[string]model.ImportBinding, expr, file string, line int) {
	name := expr
	recv := ""
	if idx := strings.Index(expr, "."); idx >= 0 {
		recv = expr[:idx]
		name = expr[idx+1:]
	}
	if recv != "" {
		if b, ok := bindings[recv]; ok {
			fn.Calls = append(fn.Calls, model.CallDescriptor{
				Kind: model.CallExternalRef, Binding: b, Callee: name, File: file, Line: line,
			})
			return
		}
	}
	if b, ok := bindings[name]; ok && (b.Symbol == "" || b.Symbol == name) {
		fn.Calls = append(fn.Calls, model.CallDescriptor{
			Kind: model.CallExternalRef, Binding: b, Callee: name, File: file, Line: line,
		})
		return
	}
	// Unqualified call to something not in the binding table: treated as a
	// same-file local reference, resolved later by the call-graph builder.
	fn.Calls = append(fn.Calls, model.CallDescriptor{
		Kind:   model.CallLocal,
		Target: model.SymbolId{ModulePath: file, Name: name},
		File:   file, Line: line,
	})
}

func jsSymbol(pkgID model.PackageId, path, name string) model.SymbolId {
	return model.SymbolId{Package: pkgID, ModulePath: path, Name: name}
}

func jsVisibility(declLine, name string) model.Visibility {
	if strings.Contains(declLine, "export") {
		return model.VisibilityPublic
	}
	if strings.HasPrefix(name, "_") {
		return model.VisibilityPrivate
	}
	return model.VisibilityPackageInternal
}
