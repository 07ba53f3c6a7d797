package resolver

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/1homsi/reachscan/internal/model"
)

// GemResolver resolves Gemfile.lock's "specs:" block (falling back to a
// direct-deps-only read of the Gemfile), per spec.md §4.1's Ruby/RubyGems
// row. Gemfile.lock has no JSON/TOML/YAML-standard form, so — in the same
// spirit as the teacher's yarn.lock/pnpm-lock.yaml state-machine parsers —
// this walks it by indentation depth.
type GemResolver struct{}

func (GemResolver) Ecosystem() model.Ecosystem { return model.EcosystemRubyGems }

func (GemResolver) Detect(root string) bool {
	return fileExists(filepath.Join(root, "Gemfile.lock")) || fileExists(filepath.Join(root, "Gemfile"))
}

var (
	reGemSpec = regexp.MustCompile(`^    ([A-Za-z0-9_.\-]+) \(([^)]+)\)`)
	reGemDep  = regexp.MustCompile(`^      ([A-Za-z0-9_.\-]+)`)
	reGemfileDep = regexp.MustCompile(`^\s*gem\s+["']([^"']+)["']`)
)

func (r GemResolver) Resolve(root string) ([]model.PackageRecord, error) {
	rootName := filepath.Base(root)
	direct := readGemfileDeps(root)

	lockPath := filepath.Join(root, "Gemfile.lock")
	data, err := os.ReadFile(lockPath)

	root0 := model.PackageRecord{
		ID:            model.PackageId{Ecosystem: model.EcosystemRubyGems, Name: rootName},
		SourceRoot:    root,
		IsApplication: true,
		Language:      "ruby",
	}

	if err != nil {
		if direct == nil {
			return nil, &model.UnresolvableLockfileError{
				Ecosystem: model.EcosystemRubyGems, Dir: root,
				Primary: "Gemfile.lock", Fallback: "Gemfile", Cause: err,
			}
		}
		records := []model.PackageRecord{root0}
		for name := range direct {
			id := model.PackageId{Ecosystem: model.EcosystemRubyGems, Name: name}
			root0.DirectDeps = append(root0.DirectDeps, id)
			records = append(records, model.PackageRecord{ID: id, Language: "ruby"})
		}
		return dedupe(records), nil
	}

	records := []model.PackageRecord{root0}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	inSpecs := false
	var current *model.PackageRecord

	flush := func() {
		if current != nil {
			records = append(records, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "specs:" {
			inSpecs = true
			continue
		}
		if !inSpecs {
			continue
		}
		if trimmed == "" || (!strings.HasPrefix(line, " ") ) {
			flush()
			inSpecs = false
			continue
		}
		if m := reGemSpec.FindStringSubmatch(line); m != nil {
			flush()
			id := model.PackageId{Ecosystem: model.EcosystemRubyGems, Name: m[1], Version: m[2]}
			current = &model.PackageRecord{ID: id, Language: "ruby"}
			if direct[m[1]] {
				records[0].DirectDeps = append(records[0].DirectDeps, id)
			}
			continue
		}
		if current != nil {
			if m := reGemDep.FindStringSubmatch(line); m != nil {
				current.DirectDeps = append(current.DirectDeps, model.PackageId{Ecosystem: model.EcosystemRubyGems, Name: m[1]})
			}
		}
	}
	flush()

	return dedupe(records), nil
}

func readGemfileDeps(dir string) map[string]bool {
	data, err := os.ReadFile(filepath.Join(dir, "Gemfile"))
	if err != nil {
		return nil
	}
	direct := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if m := reGemfileDep.FindStringSubmatch(scanner.Text()); m != nil {
			direct[m[1]] = true
		}
	}
	return direct
}
