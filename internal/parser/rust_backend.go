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

// RustBackend extracts fn declarations, use-statement bindings, and call
// sites from Rust source with the same line-oriented technique as the other
// non-Go backends. Macro invocations (`foo!(...)`) cannot be resolved
// without expansion, so they're recorded as CallUnresolvedDynamic rather
// than guessed at, per the Rust row's treatment of macros in SPEC_FULL.md.
type RustBackend struct{}

func NewRustBackend() *RustBackend { return &RustBackend{} }

func (RustBackend) Language() string { return "rust" }

var (
	rustUse      = regexp.MustCompile(`^\s*use\s+([\w:]+)(?:::\{([^}]+)\})?(?:\s+as\s+(\w+))?\s*;`)
	rustFn       = regexp.MustCompile(`^(\s*)(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+(\w+)\s*[<(]`)
	rustCallSite = regexp.MustCompile(`\b([A-Za-z_][\w]*(?:::[A-Za-z_][\w]*)*)\s*(!)?\s*\(`)
)

func (RustBackend) Parse(ctx context.Context, pkg model.PackageRecord, root string) (*ParsedPackage, error) {
	result := &ParsedPackage{Package: pkg.ID, Root: root, Language: "rust"}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".rs" {
			return nil
		}
		src, ferr := os.ReadFile(path)
		if ferr != nil {
			return nil
		}
		result.Files = append(result.Files, parseRustFile(pkg.ID, path, src))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Files) == 0 {
		result.Opaque = true
		result.Reason = "no Rust source files found"
	}
	return result, nil
}

func parseRustFile(pkgID model.PackageId, path string, src []byte) ParsedFile {
	file := ParsedFile{Path: path}
	bindings := make(map[string]model.ImportBinding)

	var stack []pyFrame // indentation-agnostic: Rust is brace-delimited, reused for "current fn" tracking
	depth := 0
	var fnDepth []int

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNo := 0

	for scanner.Scan() {
		line := scanner.Text()
		lineNo++

		if m := rustUse.FindStringSubmatch(line); m != nil {
			base := m[1]
			if m[2] != "" {
				for _, part := range strings.Split(m[2], ",") {
					part = strings.TrimSpace(part)
					if part == "" {
						continue
					}
					local := part
					module := base
					if idx := strings.LastIndex(part, "::"); idx >= 0 {
						module = base + "::" + part[:idx]
						local = part[idx+2:]
					}
					b := model.ImportBinding{LocalAlias: local, TargetModule: module, Symbol: local}
					bindings[local] = b
					file.Imports = append(file.Imports, b)
				}
			} else {
				local := base
				if idx := strings.LastIndex(base, "::"); idx >= 0 {
					local = base[idx+2:]
				}
				if m[3] != "" {
					local = m[3]
				}
				b := model.ImportBinding{LocalAlias: local, TargetModule: base}
				bindings[local] = b
				file.Imports = append(file.Imports, b)
			}
		}

		if m := rustFn.FindStringSubmatch(line); m != nil {
			fn := &model.FunctionNode{
				Symbol:     model.SymbolId{Package: pkgID, ModulePath: path, Name: m[2]},
				Visibility: rustVisibility(line),
				File:       path,
				LineStart:  lineNo,
			}
			stack = append(stack, pyFrame{indent: depth, fn: fn})
			fnDepth = append(fnDepth, depth)
		} else if len(stack) > 0 {
			// Only scan for call sites on lines that aren't themselves a
			// fn declaration, else a decl like "fn main(" reads as main
			// calling itself.
			current := stack[len(stack)-1].fn
			for _, m := range rustCallSite.FindAllStringSubmatch(line, -1) {
				name := m[1]
				if m[2] == "!" {
					current.Calls = append(current.Calls, model.CallDescriptor{
						Kind: model.CallUnresolvedDynamic, Reason: "macro invocation " + name + "!", File: path, Line: lineNo,
					})
					continue
				}
				recordRustCall(current, bindings, name, path, lineNo)
			}
		}

		depth += strings.Count(line, "{") - strings.Count(line, "}")
		for len(stack) > 0 && depth <= fnDepth[len(fnDepth)-1] {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			fnDepth = fnDepth[:len(fnDepth)-1]
			file.Functions = append(file.Functions, *top.fn)
		}
	}
	for _, f := range stack {
		file.Functions = append(file.Functions, *f.fn)
	}
	return file
}

func recordRustCall(fn *model.FunctionNode, bindings map[string]model.ImportBinding, expr, file string, line int) {
	name := expr
	recv := ""
	if idx := strings.LastIndex(expr, "::"); idx >= 0 {
		recv = expr[:idx]
		name = expr[idx+2:]
	}
	if recv != "" {
		if b, ok := bindings[recv]; ok {
			fn.Calls = append(fn.Calls, model.CallDescriptor{Kind: model.CallExternalRef, Binding: b, Callee: name, File: file, Line: line})
			return
		}
	}
	if b, ok := bindings[name]; ok {
		fn.Calls = append(fn.Calls, model.CallDescriptor{Kind: model.CallExternalRef, Binding: b, Callee: name, File: file, Line: line})
		return
	}
	fn.Calls = append(fn.Calls, model.CallDescriptor{
		Kind: model.CallLocal, Target: model.SymbolId{ModulePath: file, Name: name}, File: file, Line: line,
	})
}

func rustVisibility(declLine string) model.Visibility {
	if strings.Contains(declLine, "pub") {
		return model.VisibilityPublic
	}
	return model.VisibilityPackageInternal
}
