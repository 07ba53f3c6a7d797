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

// PHPBackend scans `use` statements to build a package-granularity import
// graph rather than function-level call descriptors, matching the tiering
// gorisk's own internal/reachability/php.go uses: PHP reachability there is
// computed at "which Composer package got used" granularity, not per-symbol.
type PHPBackend struct{}

func NewPHPBackend() *PHPBackend { return &PHPBackend{} }

func (PHPBackend) Language() string { return "php" }

var reUseStatement = regexp.MustCompile(`^\s*use\s+([\\A-Za-z0-9_]+)`)

func (PHPBackend) Parse(ctx context.Context, pkg model.PackageRecord, root string) (*ParsedPackage, error) {
	result := &ParsedPackage{Package: pkg.ID, Root: root, Language: "php"}

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
		if filepath.Ext(path) != ".php" {
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
			m := reUseStatement.FindStringSubmatch(scanner.Text())
			if m == nil {
				continue
			}
			namespace := strings.TrimPrefix(m[1], `\`)
			b := model.ImportBinding{TargetModule: namespace}
			imports = append(imports, b)
			synthetic.Calls = append(synthetic.Calls, model.CallDescriptor{
				Kind: model.CallExternalRef, Binding: b, Callee: namespace, File: path, Line: lineNo,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Files = []ParsedFile{{Path: root, Functions: []model.FunctionNode{*synthetic}, Imports: imports}}
	if len(synthetic.Calls) == 0 && len(imports) == 0 {
		result.Opaque = true
		result.Reason = "no PHP use statements found"
	}
	return result, nil
}
