// Package locator implements C2, Source Locator: turning a PackageRecord's
// advertised SourceRoot into a verified, walkable directory, falling back to
// ecosystem-conventional vendor/cache locations. Roots are symlink-resolved;
// a root requested again is handed out again.
package locator

import (
	"os"
	"path/filepath"

	"github.com/1homsi/reachscan/internal/model"
)

// Located is the resolved location for one package's source, or a reason it
// could not be found.
type Located struct {
	Package model.PackageId
	Root    string // absolute, symlink-resolved directory; "" if missing
	Missing bool
}

// Locator finds source directories for resolved packages under one
// application root. It records every real path it hands out, but a repeated
// request for the same path returns that path again: roots already handed
// out are not skipped, and a located directory that holds a copy of the
// application's own lockfile is not detected or ignored.
type Locator struct {
	appRoot string
	visited map[string]bool // real (symlink-resolved) absolute paths already handed out
}

func New(appRoot string) *Locator {
	return &Locator{appRoot: appRoot, visited: make(map[string]bool)}
}

// Locate resolves rec's source directory. It tries, in order: the
// resolver-reported SourceRoot, then a set of ecosystem-conventional vendor
// directories under appRoot, each keyed by (ecosystem, name[, version]).
func (l *Locator) Locate(rec model.PackageRecord) Located {
	candidates := l.candidatesFor(rec)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		real, ok := resolveReal(c)
		if !ok {
			continue
		}
		if l.visited[real] {
			// Already handed out once; the same root is returned again
			// unchanged, so the caller may walk these files twice.
			return Located{Package: rec.ID, Root: real}
		}
		l.visited[real] = true
		return Located{Package: rec.ID, Root: real}
	}
	return Located{Package: rec.ID, Missing: true}
}

func (l *Locator) candidatesFor(rec model.PackageRecord) []string {
	var out []string
	if rec.SourceRoot != "" {
		out = append(out, rec.SourceRoot)
	}
	switch rec.ID.Ecosystem {
	case model.EcosystemNpm:
		out = append(out, filepath.Join(l.appRoot, "node_modules", rec.ID.Name))
	case model.EcosystemComposer:
		out = append(out, filepath.Join(l.appRoot, "vendor", rec.ID.Name))
	case model.EcosystemRubyGems:
		out = append(out,
			filepath.Join(l.appRoot, "vendor", "bundle", "ruby", rec.ID.Name+"-"+rec.ID.Version),
			filepath.Join(l.appRoot, "vendor", "gems", rec.ID.Name+"-"+rec.ID.Version),
		)
	case model.EcosystemCargo:
		if home, err := os.UserHomeDir(); err == nil {
			matches, _ := filepath.Glob(filepath.Join(home, ".cargo", "registry", "src", "*", rec.ID.Name+"-"+rec.ID.Version))
			out = append(out, matches...)
		}
	case model.EcosystemPyPI:
		out = append(out,
			filepath.Join(l.appRoot, ".venv", "lib", "site-packages", rec.ID.Name),
			filepath.Join(l.appRoot, "venv", "lib", "site-packages", rec.ID.Name),
		)
	case model.EcosystemGo:
		if gopath := os.Getenv("GOPATH"); gopath != "" {
			out = append(out, filepath.Join(gopath, "pkg", "mod", rec.ID.Name+"@"+rec.ID.Version))
		}
	}
	return out
}

// resolveReal stats path (following symlinks) and returns its canonical
// form, or false if it doesn't exist or isn't a directory.
func resolveReal(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", false
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path, true
	}
	return real, true
}
