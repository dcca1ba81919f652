package engine

import (
	"github.com/xab-mack/contractscan/internal/model"
)

// filterBySeverity removes findings below the configured severity threshold
func filterBySeverity(findings []model.Finding, threshold model.Severity) []model.Finding {
	if threshold == model.SeverityInfo {
		return findings
	}
	var out []model.Finding
	for _, f := range findings {
		if model.SeverityGTE(f.Severity, threshold) {
			out = append(out, f)
		}
	}
	return out
}
