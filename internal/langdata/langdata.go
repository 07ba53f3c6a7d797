// Package langdata embeds per-language entrypoint pattern definitions.
// Each YAML file lists convention-based entry function names and framework
// "hook" substrings (route-handler decorators, interface methods) used by
// C7 entrypoint discovery alongside its explicit main/init tier. Grounded on
// gorisk's languages/languages.go embed.FS + internal/capability/patternset.go
// loader, retargeted from capability taxonomy to entrypoint patterns.
package langdata

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed patterns/*.yaml
var fs embed.FS

// FrameworkHook is one recognizable entrypoint convention: a substring match
// against source lines, with a human-readable reason for audit output.
type FrameworkHook struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// EntryPatterns holds one language's entrypoint discovery conventions.
type EntryPatterns struct {
	Name           string          `yaml:"name"`
	EntryFunctions []string        `yaml:"entry_functions"`
	FrameworkHooks []FrameworkHook `yaml:"framework_hooks"`
}

var cache = make(map[string]*EntryPatterns)

// Load reads patterns/<lang>.yaml from the embedded FS, caching the result.
func Load(lang string) (*EntryPatterns, error) {
	if p, ok := cache[lang]; ok {
		return p, nil
	}
	data, err := fs.ReadFile("patterns/" + lang + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("load entry patterns for %q: %w", lang, err)
	}
	var p EntryPatterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse patterns/%s.yaml: %w", lang, err)
	}
	cache[lang] = &p
	return &p, nil
}

// MustLoad is like Load but panics on error. Safe at package-init time since
// the YAML is embedded at compile time.
func MustLoad(lang string) *EntryPatterns {
	p, err := Load(lang)
	if err != nil {
		panic(fmt.Sprintf("reachscan: %v", err))
	}
	return p
}
