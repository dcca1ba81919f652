package report

import (
	"io"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/xab-mack/contractscan/internal/model"
)

const (
	toolName = "contractscan"
	toolURI  = "https://github.com/xab-mack/contractscan"
)

// WriteSARIF renders the report as SARIF 2.1.0. Rule descriptors come from
// rules; findings of unknown rules get a bare descriptor.
func WriteSARIF(w io.Writer, res *model.ScanResult, rules []model.RuleMeta) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return err
	}
	run := sarif.NewRunWithInformationURI(toolName, toolURI)
	known := map[string]bool{}
	for _, m := range rules {
		addRule(run, m)
		known[m.ID] = true
	}
	for _, f := range res.Findings {
		if !known[f.RuleID] {
			addRule(run, model.RuleMeta{ID: f.RuleID, Severity: f.Severity})
			known[f.RuleID] = true
		}
		region := sarif.NewRegion().
			WithStartLine(f.StartLine).
			WithStartColumn(f.StartColumn).
			WithEndLine(f.EndLine).
			WithEndColumn(f.EndColumn)
		if f.Snippet != "" {
			region.WithSnippet(sarif.NewArtifactContent().WithText(f.Snippet))
		}
		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(f.File)).
				WithRegion(region),
		)
		result := sarif.NewRuleResult(f.RuleID).
			WithMessage(sarif.NewTextMessage(f.Message)).
			WithLevel(sarifLevel(f.Severity)).
			WithLocations([]*sarif.Location{location})
		result.Properties = sarif.Properties{
			"severity":    string(f.Severity),
			"fingerprint": f.Fingerprint,
		}
		if f.Entity != "" {
			result.Properties["entity"] = f.Entity
		}
		if f.Fix != "" {
			result.Properties["fix"] = f.Fix
		}
		run.AddResult(result)
	}
	report.AddRun(run)
	return report.PrettyWrite(w)
}

func addRule(run *sarif.Run, m model.RuleMeta) {
	desc := m.Title
	if desc == "" {
		desc = m.ID
	}
	run.AddRule(m.ID).
		WithDescription(desc).
		WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: sarifLevel(m.Severity)}).
		WithProperties(sarif.Properties{"tags": m.Tags, "references": m.References})
}

func sarifLevel(s model.Severity) string {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	case model.SeverityLow:
		return "note"
	}
	return "none"
}
