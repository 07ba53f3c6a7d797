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

// RubyBackend mirrors PHPBackend's package-granularity approach: Ruby's
// dynamic require/autoload conventions make reliable function-level
// resolution unrealistic without a real interpreter, so reachability is
// tracked at "was this gem required anywhere" granularity.
type RubyBackend struct{}

func NewRubyBackend() *RubyBackend { return &RubyBackend{} }

func (RubyBackend) Language() string { return "ruby" }

var reRubyRequire = regexp.MustCompile(`require(?:_relative)?\s+['"]([^'"]+)['"]`)

func (RubyBackend) Parse(ctx context.Context, pkg model.PackageRecord, root string) (*ParsedPackage, error) {
	result := &ParsedPackage{Package: pkg.ID, Root: root, Language: "ruby"}

	synthetic := &model.FunctionNode{
		Symbol:     model.SymbolId{Package: pkg.ID, ModulePath: root, Name: "<package>"},
		Visibility: model.VisibilityPublic,
		File:       root,
	}
	var imports []model.ImportBinding

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".rb" {
			return nil
		}
		src, ferr := os.ReadFile(path)
		if ferr != nil {
			return nil
		}
		scanner := bufio.NewScanner(bytes.NewReader(src))
		scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			for _, m := range reRubyRequire.FindAllStringSubmatch(scanner.Text(), -1) {
				name := strings.TrimSuffix(m[1], ".rb")
				b := model.ImportBinding{TargetModule: name}
				imports = append(imports, b)
				synthetic.Calls = append(synthetic.Calls, model.CallDescriptor{
					Kind: model.CallExternalRef, Binding: b, Callee: name, File: path, Line: lineNo,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Files = []ParsedFile{{Path: root, Functions: []model.FunctionNode{*synthetic}, Imports: imports}}
	if len(synthetic.Calls) == 0 {
		result.Opaque = true
		result.Reason = "no require statements found"
	}
	return result, nil
}
