// Package deps implements the doctor checks behind ldseq check: external
// tool availability, workspace access, reference inputs, and the run ledger.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"ldseq/internal/config"
)

// Requirement defines an external dependency ldseq invokes.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the outcome of one check. Optional failures are advisory;
// required failures mean a run cannot succeed.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the external tools for the configured binaries. Tools
// needed only by the counting and analysis passes are optional so check
// output separates "run will fail" from "count or analyze will fail".
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "smalt", Command: cfg.SmaltBinary(), Description: "read mapping"},
		{Name: "samtools", Command: cfg.SamtoolsBinary(), Description: "BAM filtering, sorting, indexing"},
		{Name: "featureCounts", Command: cfg.FeatureCountsBinary(), Description: "read counting (ldseq count)", Optional: true},
		{Name: "Rscript", Command: cfg.RscriptBinary(), Description: "DESeq2 delegation (ldseq analyze)", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
