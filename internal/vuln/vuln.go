// Package vuln implements C9, the Vulnerability Mapper: comparing advisory
// VulnerabilityLocations against a reachability Report's reach set to
// produce a Reachable/Unreachable/Unknown verdict per (CVE, ecosystem,
// package name), plus an example call chain when reachable. The advisory data
// itself is out of scope (spec.md non-goals exclude OSV/NVD polling); this
// package only defines the Fetcher contract an external client satisfies
// and consumes whatever it returns.
package vuln

import (
	"context"

	"github.com/1homsi/reachscan/internal/model"
	"github.com/1homsi/reachscan/internal/reachability"
)

// Fetcher retrieves advisory data for a resolved set of packages. The
// concrete OSV/GitHub-Advisory HTTP client is intentionally not implemented
// here; this interface is the seam an external caller wires in.
type Fetcher interface {
	Fetch(ctx context.Context, packages []model.PackageId) ([]model.VulnerabilityLocation, error)
}

// Map evaluates every advisory against one ecosystem's reachability report,
// resolved packages, and symbol index, in the order advisories were
// supplied. Verdicts are deduplicated per (CVE, ecosystem, package name),
// keeping the first occurrence's evaluation; one verdict covers every
// resolved version of that package.
func Map(advisories []model.VulnerabilityLocation, report *reachability.Report, recs map[model.PackageId]model.PackageRecord, symbols map[model.PackageId][]model.SymbolId) []model.VulnerabilityVerdict {
	seen := make(map[string]bool)
	var verdicts []model.VulnerabilityVerdict

	for _, adv := range advisories {
		dedupKey := adv.CVEID + "\x00" + string(adv.PackageEcosystem) + "\x00" + adv.PackageName
		if seen[dedupKey] {
			continue
		}
		seen[dedupKey] = true

		pkgs := matchingPackages(adv, recs)
		verdict := model.VulnerabilityVerdict{Vulnerability: adv, Verdict: model.VerdictUnreachable}

		for _, pkg := range pkgs {
			v, chainTarget := evaluate(adv, pkg, report, symbols[pkg])
			if v == model.VerdictReachable {
				verdict.Verdict = model.VerdictReachable
				verdict.ExampleChain = reachability.Chain(report, chainTarget)
				break
			}
			if v == model.VerdictUnknown && verdict.Verdict == model.VerdictUnreachable {
				verdict.Verdict = model.VerdictUnknown
			}
		}

		verdicts = append(verdicts, verdict)
	}

	return verdicts
}

// matchingPackages returns every resolved package whose (ecosystem, name)
// matches the advisory. Version matching against AffectedRange is the
// Fetcher's responsibility (it already filtered by version before handing
// us the VulnerabilityLocation); the mapper only needs the resolved IDs.
func matchingPackages(adv model.VulnerabilityLocation, recs map[model.PackageId]model.PackageRecord) []model.PackageId {
	var out []model.PackageId
	for id, rec := range recs {
		if id.Ecosystem != adv.PackageEcosystem {
			continue
		}
		if rec.ID.Name != adv.PackageName {
			continue
		}
		out = append(out, id)
	}
	return out
}

func evaluate(adv model.VulnerabilityLocation, pkg model.PackageId, report *reachability.Report, pkgSymbols []model.SymbolId) (model.Verdict, string) {
	_, reachedOpaquely := report.OpaquePackages[pkg.String()]

	if len(adv.AffectedSymbols) == 0 {
		if reachedOpaquely {
			return model.VerdictReachable, ""
		}
		for _, sym := range pkgSymbols {
			if report.Reached[sym.String()] {
				return model.VerdictReachable, sym.String()
			}
		}
		return model.VerdictUnreachable, ""
	}

	if reachedOpaquely {
		// Affected symbols are named but the package itself was only
		// reached through an opaque sink: we can't prove which symbol
		// ran, so per §8 any advisory naming symbols in a reached-
		// opaquely package must be considered Reachable.
		return model.VerdictReachable, ""
	}

	for _, affected := range adv.AffectedSymbols {
		for _, sym := range pkgSymbols {
			if qualifiedNameMatches(sym, affected) && report.Reached[sym.String()] {
				return model.VerdictReachable, sym.String()
			}
		}
	}
	return model.VerdictUnreachable, ""
}

func qualifiedNameMatches(sym model.SymbolId, affected string) bool {
	return sym.Name == affected || sym.String() == affected
}
