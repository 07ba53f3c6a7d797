// Package reportio renders a ReachabilityReport as JSON or a short text
// summary for the CLI. SARIF/SBOM rendering is explicitly out of scope
// (spec.md's non-goals: "Report consumed by external SARIF/SBOM layers"),
// so this package stays deliberately small. Grounded on gorisk's
// internal/report package's plain-struct JSON marshaling style.
package reportio

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/1homsi/reachscan/internal/model"
)

// jsonReport is the wire shape: ReachabilityReport's maps flattened to
// sorted slices so output is stable across runs.
type jsonReport struct {
	Ecosystem      model.Ecosystem        `json:"ecosystem"`
	Truncated      bool                   `json:"truncated"`
	Partial        bool                   `json:"partial"`
	ReachedCount   int                    `json:"reached_count"`
	OpaquePackages []string               `json:"opaque_packages"`
	Verdicts       []jsonVerdict          `json:"verdicts"`
}

type jsonVerdict struct {
	CVEID     string   `json:"cve_id"`
	Package   string   `json:"package"`
	Verdict   string   `json:"verdict"`
	CallChain []string `json:"call_chain,omitempty"`
}

func toJSONReport(r *model.ReachabilityReport) jsonReport {
	out := jsonReport{
		Ecosystem:    r.Ecosystem,
		Truncated:    r.Truncated,
		Partial:      r.Partial,
		ReachedCount: len(r.Reachable),
	}
	for _, pkg := range r.OpaquePackages {
		out.OpaquePackages = append(out.OpaquePackages, pkg.String())
	}
	sort.Strings(out.OpaquePackages)
	for _, v := range r.Verdicts {
		out.Verdicts = append(out.Verdicts, jsonVerdict{
			CVEID:     v.Vulnerability.CVEID,
			Package:   v.Vulnerability.PackageName,
			Verdict:   v.Verdict.String(),
			CallChain: v.ExampleChain,
		})
	}
	return out
}

// WriteJSON marshals every report as a JSON array.
func WriteJSON(w io.Writer, reports []*model.ReachabilityReport) error {
	out := make([]jsonReport, len(reports))
	for i, r := range reports {
		out[i] = toJSONReport(r)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteText renders a short human-readable summary per ecosystem.
func WriteText(w io.Writer, reports []*model.ReachabilityReport) error {
	for _, r := range reports {
		fmt.Fprintf(w, "== %s ==\n", r.Ecosystem)
		fmt.Fprintf(w, "reached symbols: %d\n", len(r.Reachable))
		if r.Truncated {
			fmt.Fprintln(w, "traversal truncated: depth cap reached")
		}
		if r.Partial {
			fmt.Fprintln(w, "report partial: analysis was cancelled or timed out")
		}
		if len(r.OpaquePackages) > 0 {
			fmt.Fprintf(w, "opaque packages: %d\n", len(r.OpaquePackages))
		}
		if len(r.Verdicts) == 0 {
			fmt.Fprintln(w, "no advisories evaluated")
			continue
		}
		for _, v := range r.Verdicts {
			fmt.Fprintf(w, "  %s  %s  %s\n", v.Vulnerability.CVEID, v.Vulnerability.PackageName, v.Verdict)
			if v.Verdict == model.VerdictReachable && len(v.ExampleChain) > 0 {
				fmt.Fprintf(w, "    chain: %v\n", []string(v.ExampleChain))
			}
		}
	}
	return nil
}
