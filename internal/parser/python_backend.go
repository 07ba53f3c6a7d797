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

// PythonBackend mirrors JSBackend's line-oriented symbol/call extraction,
// adapted to Python's indentation-delimited function bodies instead of
// brace-delimited ones. Grounded on the same astdetector.go regex-table
// technique; no Python parser library exists in the example corpus.
type PythonBackend struct{}

func NewPythonBackend() *PythonBackend { return &PythonBackend{} }

func (PythonBackend) Language() string { return "python" }

var (
	pyImport     = regexp.MustCompile(`^\s*import\s+([\w.]+)(?:\s+as\s+(\w+))?`)
	pyFromImport = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\s+(.+)`)
	pyDef        = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)\s*\(`)
	pyCallSite   = regexp.MustCompile(`\b([A-Za-z_][\w]*(?:\.[A-Za-z_][\w]*)?)\s*\(`)
)

func (PythonBackend) Parse(ctx context.Context, pkg model.PackageRecord, root string) (*ParsedPackage, error) {
	result := &ParsedPackage{Package: pkg.ID, Root: root, Language: "python"}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".py" {
			return nil
		}
		src, ferr := os.ReadFile(path)
		if ferr != nil {
			return nil
		}
		result.Files = append(result.Files, parsePythonFile(pkg.ID, path, src))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Files) == 0 {
		result.Opaque = true
		result.Reason = "no Python source files found"
	}
	return result, nil
}

func parsePythonFile(pkgID model.PackageId, path string, src []byte) ParsedFile {
	file := ParsedFile{Path: path}
	bindings := make(map[string]model.ImportBinding)

	var stack []pyFrame

	popTo := func(indent int) {
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			file.Functions = append(file.Functions, *top.fn)
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNo := 0

	for scanner.Scan() {
		rawLine := scanner.Text()
		lineNo++

		if m := pyImport.FindStringSubmatch(rawLine); m != nil {
			alias := m[2]
			if alias == "" {
				alias = m[1]
			}
			b := model.ImportBinding{LocalAlias: alias, TargetModule: m[1]}
			bindings[alias] = b
			file.Imports = append(file.Imports, b)
			continue
		}
		if m := pyFromImport.FindStringSubmatch(rawLine); m != nil {
			module := m[1]
			for _, part := range strings.Split(m[2], ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				local, sym := part, part
				if fields := strings.Fields(part); len(fields) == 3 && fields[1] == "as" {
					sym, local = fields[0], fields[2]
				}
				b := model.ImportBinding{LocalAlias: local, TargetModule: module, Symbol: sym}
				bindings[local] = b
				file.Imports = append(file.Imports, b)
			}
			continue
		}

		if m := pyDef.FindStringSubmatch(rawLine); m != nil {
			indent := len(m[1])
			popTo(indent)
			fn := &model.FunctionNode{
				Symbol:     model.SymbolId{Package: pkgID, ModulePath: path, Name: m[2]},
				Visibility: pyVisibility(m[2]),
				File:       path,
				LineStart:  lineNo,
			}
			stack = append(stack, pyFrame{indent: indent, fn: fn})
			continue
		}

		trimmed := strings.TrimLeft(rawLine, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(rawLine) - len(trimmed)
		if len(stack) > 0 {
			popTo2(&stack, indent, &file)
			if len(stack) > 0 {
				current := stack[len(stack)-1].fn
				for _, m := range pyCallSite.FindAllStringSubmatch(rawLine, -1) {
					recordPythonCall(current, bindings, m[1], path, lineNo)
				}
			}
		}
	}
	popTo(0)
	return file
}

// popTo2 closes frames whose body has ended (a line at or below their def's
// indent that isn't itself a nested def) without double-popping via popTo.
func popTo2(stack *[]pyFrame, indent int, file *ParsedFile) {
	s := *stack
	for len(s) > 0 && indent <= s[len(s)-1].indent {
		top := s[len(s)-1]
		s = s[:len(s)-1]
		file.Functions = append(file.Functions, *top.fn)
	}
	*stack = s
}

type pyFrame struct {
	indent int
	fn     *model.FunctionNode
}

func recordPythonCall(fn *model.FunctionNode, bindings map[string]model.ImportBinding, expr, file string, line int) {
	name := expr
	recv := ""
	if idx := strings.Index(expr, "."); idx >= 0 {
		recv = expr[:idx]
		name = expr[idx+1:]
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

func pyVisibility(name string) model.Visibility {
	if strings.HasPrefix(name, "__") && !strings.HasSuffix(name, "__") {
		return model.VisibilityPrivate
	}
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return model.VisibilityPublic
	}
	if strings.HasPrefix(name, "_") {
		return model.VisibilityPackageInternal
	}
	return model.VisibilityPublic
}
