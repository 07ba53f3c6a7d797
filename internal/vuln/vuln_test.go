package vuln

import (
	"testing"

	"github.com/1homsi/reachscan/internal/model"
	"github.com/1homsi/reachscan/internal/reachability"
)

func TestMapReachableBySpecificSymbol(t *testing.T) {
	pkg := model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad", Version: "1.0.0"}
	sym := model.SymbolId{Package: pkg, ModulePath: "index.js", Name: "pad"}

	report := &reachability.Report{
		Reached:        map[string]bool{sym.String(): true},
		OpaquePackages: map[string]model.PackageId{},
	}
	recs := map[model.PackageId]model.PackageRecord{pkg: {ID: pkg}}
	symbols := map[model.PackageId][]model.SymbolId{pkg: {sym}}

	advisories := []model.VulnerabilityLocation{{
		CVEID: "CVE-2024-0001", PackageEcosystem: model.EcosystemNpm, PackageName: "left-pad",
		AffectedSymbols: []string{"pad"},
	}}

	verdicts := Map(advisories, report, recs, symbols)
	if len(verdicts) != 1 {
		t.Fatalf("expected one verdict, got %d", len(verdicts))
	}
	if verdicts[0].Verdict != model.VerdictReachable {
		t.Errorf("expected Reachable, got %s", verdicts[0].Verdict)
	}
}

func TestMapUnreachableWhenSymbolNotReached(t *testing.T) {
	pkg := model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad", Version: "1.0.0"}
	sym := model.SymbolId{Package: pkg, ModulePath: "index.js", Name: "pad"}

	report := &reachability.Report{
		Reached:        map[string]bool{},
		OpaquePackages: map[string]model.PackageId{},
	}
	recs := map[model.PackageId]model.PackageRecord{pkg: {ID: pkg}}
	symbols := map[model.PackageId][]model.SymbolId{pkg: {sym}}

	advisories := []model.VulnerabilityLocation{{
		CVEID: "CVE-2024-0001", PackageEcosystem: model.EcosystemNpm, PackageName: "left-pad",
		AffectedSymbols: []string{"pad"},
	}}

	verdicts := Map(advisories, report, recs, symbols)
	if verdicts[0].Verdict != model.VerdictUnreachable {
		t.Errorf("expected Unreachable, got %s", verdicts[0].Verdict)
	}
}

func TestMapOpaquePackageWithNamedSymbolsIsReachable(t *testing.T) {
	pkg := model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad", Version: "1.0.0"}

	report := &reachability.Report{
		Reached:        map[string]bool{},
		OpaquePackages: map[string]model.PackageId{pkg.String(): pkg},
	}
	recs := map[model.PackageId]model.PackageRecord{pkg: {ID: pkg}}

	advisories := []model.VulnerabilityLocation{{
		CVEID: "CVE-2024-0002", PackageEcosystem: model.EcosystemNpm, PackageName: "left-pad",
		AffectedSymbols: []string{"pad"},
	}}

	verdicts := Map(advisories, report, recs, nil)
	if verdicts[0].Verdict != model.VerdictReachable {
		t.Errorf("a reached-opaquely package with named affected symbols must be Reachable, got %s", verdicts[0].Verdict)
	}
}

func TestMapWholePackageVerdictWithNoAffectedSymbols(t *testing.T) {
	pkg := model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad", Version: "1.0.0"}
	sym := model.SymbolId{Package: pkg, ModulePath: "index.js", Name: "pad"}

	report := &reachability.Report{
		Reached:        map[string]bool{sym.String(): true},
		OpaquePackages: map[string]model.PackageId{},
	}
	symbols := map[model.PackageId][]model.SymbolId{pkg: {sym}}
	recs := map[model.PackageId]model.PackageRecord{pkg: {ID: pkg}}

	advisories := []model.VulnerabilityLocation{{
		CVEID: "CVE-2024-0003", PackageEcosystem: model.EcosystemNpm, PackageName: "left-pad",
	}}

	verdicts := Map(advisories, report, recs, symbols)
	if verdicts[0].Verdict != model.VerdictReachable {
		t.Errorf("expected whole-package Reachable when any symbol of it is reached, got %s", verdicts[0].Verdict)
	}
}

func TestMapDeduplicatesByCVEPackage(t *testing.T) {
	pkg := model.PackageId{Ecosystem: model.EcosystemNpm, Name: "left-pad", Version: "1.0.0"}
	advisories := []model.VulnerabilityLocation{
		{CVEID: "CVE-2024-0001", PackageEcosystem: model.EcosystemNpm, PackageName: "left-pad"},
		{CVEID: "CVE-2024-0001", PackageEcosystem: model.EcosystemNpm, PackageName: "left-pad"},
	}
	report := &reachability.Report{Reached: map[string]bool{}, OpaquePackages: map[string]model.PackageId{}}
	_ = pkg

	verdicts := Map(advisories, report, nil, nil)
	if len(verdicts) != 1 {
		t.Fatalf("expected duplicate (CVE, package) advisories collapsed to one verdict, got %d", len(verdicts))
	}
}
