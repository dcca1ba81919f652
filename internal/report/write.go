package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/xab-mack/contractscan/internal/model"
)

type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatTable, "text", "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatSARIF:
		return FormatSARIF, nil
	}
	return "", fmt.Errorf("unknown format %q (want table, json or sarif)", s)
}

// WriteJSON writes the machine-readable report. Field names are stable.
func WriteJSON(w io.Writer, res *model.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

var severityColor = map[model.Severity]*color.Color{
	model.SeverityCritical: color.New(color.FgHiRed, color.Bold),
	model.SeverityHigh:     color.New(color.FgRed),
	model.SeverityMedium:   color.New(color.FgYellow),
	model.SeverityLow:      color.New(color.FgCyan),
	model.SeverityInfo:     color.New(color.FgWhite),
}

// WriteText writes the human-readable report grouped by file. Colors follow
// color.NoColor, which is set for non-terminals.
func WriteText(w io.Writer, res *model.ScanResult) error {
	bold := color.New(color.Bold)
	p := &errWriter{w: w}
	for _, fr := range res.Files {
		p.printf("%s\n", bold.Sprint(fr.Path))
		for _, e := range fr.Errors {
			p.printf("  %s %s\n", color.RedString("error[%s]", e.Kind), describe(e))
		}
		for _, e := range fr.Warnings {
			p.printf("  %s %s\n", color.YellowString("warning[%s]", e.Kind), describe(e))
		}
		if len(fr.Findings) == 0 && len(fr.Errors) == 0 {
			p.printf("  %s\n", color.GreenString("no findings"))
		}
		for _, f := range fr.Findings {
			sev := severityColor[f.Severity]
			if sev == nil {
				sev = severityColor[model.SeverityInfo]
			}
			p.printf("  %d:%d-%d:%d %s %s %s\n", f.StartLine, f.StartColumn, f.EndLine, f.EndColumn,
				sev.Sprintf("%-8s", f.Severity), f.RuleID, f.Message)
			if f.Entity != "" {
				p.printf("      in %s\n", f.Entity)
			}
			if f.Fix != "" {
				p.printf("      fix: %s\n", f.Fix)
			}
		}
		p.printf("\n")
	}
	s := res.Summary
	p.printf("Findings: %d in %d files (%d failed), risk score %.2f (elapsed %s)\n",
		s.Total, s.Files, s.FailedFiles, s.RiskScore, res.Elapsed)
	for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow, model.SeverityInfo} {
		if n := s.BySeverity[sev]; n > 0 {
			p.printf("  %s %d\n", severityColor[sev].Sprintf("%-8s", sev), n)
		}
	}
	for _, r := range s.Recommendations {
		p.printf("  - %s\n", r)
	}
	return p.err
}

func describe(e model.FileError) string {
	loc := ""
	if e.Line > 0 {
		loc = fmt.Sprintf("%d:%d: ", e.Line, e.Column)
	}
	if e.Function != "" {
		return fmt.Sprintf("%s%s (in %s)", loc, e.Message, e.Function)
	}
	return loc + e.Message
}

type errWriter struct {
	w   io.Writer
	err error
}

func (p *errWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// Write renders res in the given format. Writer failures surface as a write
// IOError.
func Write(w io.Writer, format Format, res *model.ScanResult, rules []model.RuleMeta) error {
	var err error
	switch format {
	case FormatJSON:
		err = WriteJSON(w, res)
	case FormatSARIF:
		err = WriteSARIF(w, res, rules)
	default:
		err = WriteText(w, res)
	}
	if err != nil {
		return model.WriteError("", err)
	}
	return nil
}

// WriteFile renders res into path, replacing any existing file.
func WriteFile(path string, format Format, res *model.ScanResult, rules []model.RuleMeta) error {
	f, err := os.Create(path)
	if err != nil {
		return model.WriteError(path, err)
	}
	if err := Write(f, format, res, rules); err != nil {
		_ = f.Close()
		var ioe *model.IOError
		if errors.As(err, &ioe) {
			err = ioe.Err
		}
		return model.WriteError(path, err)
	}
	if err := f.Close(); err != nil {
		return model.WriteError(path, err)
	}
	return nil
}
