package report

import (
	"sort"

	"github.com/xab-mack/contractscan/internal/model"
)

// severityWeight is the contribution of one finding to the risk score.
var severityWeight = map[model.Severity]float64{
	model.SeverityCritical: 0.4,
	model.SeverityHigh:     0.3,
	model.SeverityMedium:   0.2,
	model.SeverityLow:      0.1,
}

var recommendations = map[string]string{
	"SOL-REENTRANCY":           "Implement ReentrancyGuard or checks-effects-interactions pattern",
	"SOL-UNCHECKED-CALL":       "Add require() statements to check return values",
	"SOL-INTEGER-OVERFLOW":     "Bound user-supplied operands or use checked arithmetic (pragma >=0.8, no unchecked blocks)",
	"SOL-ACCESS-CONTROL":       "Restrict state-changing functions that touch privileged storage with onlyOwner/onlyRole",
	"SOL-TX-ORIGIN":            "Replace tx.origin with msg.sender",
	"SOL-SELFDESTRUCT":         "Remove selfdestruct or guard it behind owner/timelock checks",
	"SOL-TAINTED-DELEGATECALL": "Only delegatecall to fixed, vetted implementation addresses",
}

type dedupKey struct {
	rule, file string
	start, end int
}

// Dedup drops findings with the same rule id and span, keeping the first.
// It is idempotent.
func Dedup(in []model.Finding) []model.Finding {
	seen := make(map[dedupKey]struct{}, len(in))
	out := make([]model.Finding, 0, len(in))
	for _, f := range in {
		k := dedupKey{f.RuleID, f.File, f.StartOffset, f.EndOffset}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Sort orders findings by severity, most severe first, then by location.
func Sort(fs []model.Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartOffset != b.StartOffset {
			return a.StartOffset < b.StartOffset
		}
		if a.EndOffset != b.EndOffset {
			return a.EndOffset < b.EndOffset
		}
		return a.RuleID < b.RuleID
	})
}

// Aggregate builds the run report from per-file results. Every file is kept,
// including clean ones, so the report accounts for the whole input set.
func Aggregate(runID string, files []model.FileReport) *model.ScanResult {
	res := &model.ScanResult{RunID: runID}
	byPath := map[string]int{}
	for _, fr := range files {
		if i, ok := byPath[fr.Path]; ok {
			merged := &res.Files[i]
			merged.Findings = append(merged.Findings, fr.Findings...)
			merged.Errors = append(merged.Errors, fr.Errors...)
			merged.Warnings = append(merged.Warnings, fr.Warnings...)
			continue
		}
		byPath[fr.Path] = len(res.Files)
		res.Files = append(res.Files, model.FileReport{
			Path:     fr.Path,
			Findings: append([]model.Finding(nil), fr.Findings...),
			Errors:   append([]model.FileError(nil), fr.Errors...),
			Warnings: append([]model.FileError(nil), fr.Warnings...),
		})
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })

	for i := range res.Files {
		fr := &res.Files[i]
		fr.Findings = Dedup(fr.Findings)
		Sort(fr.Findings)
		if fr.Findings == nil {
			fr.Findings = []model.Finding{}
		}
		res.Findings = append(res.Findings, fr.Findings...)
	}
	Sort(res.Findings)
	if res.Findings == nil {
		res.Findings = []model.Finding{}
	}
	res.Summary = Summarize(res)
	return res
}

// Summarize counts findings per severity and derives the risk score and
// recommendations.
func Summarize(res *model.ScanResult) model.Summary {
	s := model.Summary{
		Files:      len(res.Files),
		Total:      len(res.Findings),
		BySeverity: map[model.Severity]int{},
	}
	for _, fr := range res.Files {
		if fr.Failed() {
			s.FailedFiles++
		}
	}
	seen := map[string]bool{}
	for _, f := range res.Findings {
		s.BySeverity[f.Severity]++
		s.RiskScore += severityWeight[f.Severity]
		if rec, ok := recommendations[f.RuleID]; ok && !seen[f.RuleID] {
			seen[f.RuleID] = true
			s.Recommendations = append(s.Recommendations, rec)
		}
	}
	if s.RiskScore > 1 {
		s.RiskScore = 1
	}
	return s
}
