// Package analyze implements the `reachscan analyze` subcommand: run the
// full C1-C9 pipeline over an application root and print a report.
// Grounded on gorisk's cmd/gorisk/scan package's flag.NewFlagSet + Run(args)
// int convention.
package analyze

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/1homsi/reachscan/internal/analyzer"
	"github.com/1homsi/reachscan/internal/logging"
	"github.com/1homsi/reachscan/internal/model"
	"github.com/1homsi/reachscan/internal/reachability"
	"github.com/1homsi/reachscan/internal/reportio"
)

// advisoryJSON is the on-disk shape of one advisory entry; it mirrors
// model.VulnerabilityLocation with json tags, since that type intentionally
// carries none (it is filled in-process by a Fetcher, never decoded).
type advisoryJSON struct {
	CVEID            string   `json:"cve_id"`
	PackageEcosystem string   `json:"ecosystem"`
	PackageName      string   `json:"package"`
	AffectedRange    string   `json:"affected_range"`
	AffectedSymbols  []string `json:"affected_symbols"`
}

func Run(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "JSON output")
	devDeps := fs.Bool("dev-dependencies", false, "include dev-scoped dependencies in resolution")
	dynamicPolicy := fs.String("dynamic-policy", "taint_package", "UnresolvedDynamic expansion: taint_package|taint_hierarchy|strict")
	depthCap := fs.Int("depth-cap", 0, "max BFS depth in reachability traversal (0 = spec default)")
	publicAPIFallback := fs.Bool("entrypoints-fallback-public-api", false, "treat every exported symbol as an entrypoint when none is found")
	maxParallel := fs.Int("max-parallel-files", 0, "parser pool concurrency (0 = number of cores)")
	advisoriesFile := fs.String("advisories", "", "JSON file of VulnerabilityLocation advisories to evaluate")
	verbose := fs.Bool("verbose", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logging.SetVerbose(*verbose)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: reachscan analyze [flags] <application-root>")
		return 2
	}
	root := fs.Arg(0)

	cfg := analyzer.DefaultConfig()
	cfg.IncludeDevDependencies = *devDeps
	cfg.EntrypointsFallbackPublicAPI = *publicAPIFallback
	cfg.DepthCap = *depthCap
	cfg.MaxParallelFiles = *maxParallel

	switch *dynamicPolicy {
	case "taint_package":
		cfg.DynamicPolicy = reachability.TaintPackage
	case "taint_hierarchy":
		cfg.DynamicPolicy = reachability.TaintHierarchy
	case "strict":
		cfg.DynamicPolicy = reachability.Strict
	default:
		fmt.Fprintf(os.Stderr, "unknown -dynamic-policy %q\n", *dynamicPolicy)
		return 2
	}

	if *advisoriesFile != "" {
		advisories, err := loadAdvisories(*advisoriesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load advisories: %v\n", err)
			return 1
		}
		cfg.Advisories = advisories
	}

	reports, err := analyzer.New().Analyze(context.Background(), root, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		return 1
	}

	var renderErr error
	if *jsonOut {
		renderErr = reportio.WriteJSON(os.Stdout, reports)
	} else {
		renderErr = reportio.WriteText(os.Stdout, reports)
	}
	if renderErr != nil {
		fmt.Fprintf(os.Stderr, "render report: %v\n", renderErr)
		return 1
	}

	for _, r := range reports {
		for _, v := range r.Verdicts {
			if v.Verdict.String() == "Reachable" {
				return 1
			}
		}
	}
	return 0
}

func loadAdvisories(path string) ([]model.VulnerabilityLocation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []advisoryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]model.VulnerabilityLocation, len(raw))
	for i, a := range raw {
		out[i] = model.VulnerabilityLocation{
			CVEID:            a.CVEID,
			PackageEcosystem: model.Ecosystem(a.PackageEcosystem),
			PackageName:      a.PackageName,
			AffectedRange:    a.AffectedRange,
			AffectedSymbols:  a.AffectedSymbols,
		}
	}
	return out, nil
}
