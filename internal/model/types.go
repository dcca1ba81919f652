package model

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityOrder = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ParseSeverity maps a case-insensitive name onto a Severity. Unknown names
// fall back to info so that a typo never hides findings.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SeverityCritical):
		return SeverityCritical
	case string(SeverityHigh):
		return SeverityHigh
	case string(SeverityMedium):
		return SeverityMedium
	case string(SeverityLow):
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int { return severityOrder[s] }

func (s Severity) Valid() bool {
	_, ok := severityOrder[s]
	return ok
}

func SeverityGTE(a, b Severity) bool {
	return a.Rank() >= b.Rank()
}

type RuleMeta struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	Tags        []string `json:"tags"`
	References  []string `json:"references"`
	SupportsFix bool     `json:"supportsFix"`
}

// Finding is a single detector result. Line and column numbers are 1-based;
// offsets are byte offsets into the file.
type Finding struct {
	RuleID      string   `json:"ruleId"`
	Severity    Severity `json:"severity"`
	File        string   `json:"file"`
	StartLine   int      `json:"startLine"`
	StartColumn int      `json:"startColumn"`
	EndLine     int      `json:"endLine"`
	EndColumn   int      `json:"endColumn"`
	StartOffset int      `json:"startOffset"`
	EndOffset   int      `json:"endOffset"`
	Message     string   `json:"message"`
	Fix         string   `json:"fix,omitempty"`
	Entity      string   `json:"entity,omitempty"`
	Selector    string   `json:"selector,omitempty"`
	Snippet     string   `json:"snippet,omitempty"`
	References  []string `json:"references,omitempty"`
	Fingerprint string   `json:"fingerprint"`
}

// FileError describes why a file, or part of it, could not be analyzed.
type FileError struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Function string `json:"function,omitempty"`
}

const (
	ErrKindSyntax     = "syntax"
	ErrKindUnresolved = "unresolved-reference"
	ErrKindDuplicate  = "duplicate-declaration"
	ErrKindRule       = "rule-execution"
	ErrKindIO         = "io"
	ErrKindCancelled  = "cancelled"
	ErrKindChecksum   = "address-checksum"
)

// FileReport is the per-file section of a report. A file always carries
// findings, errors, or both; an empty section means the file is clean.
type FileReport struct {
	Path     string      `json:"path"`
	Findings []Finding   `json:"findings"`
	Errors   []FileError `json:"errors,omitempty"`
	Warnings []FileError `json:"warnings,omitempty"`
}

// Failed reports whether the file could not be read or parsed.
func (f FileReport) Failed() bool {
	for _, e := range f.Errors {
		if e.Kind == ErrKindSyntax || e.Kind == ErrKindIO {
			return true
		}
	}
	return false
}

type Summary struct {
	Files           int              `json:"files"`
	FailedFiles     int              `json:"failedFiles"`
	Total           int              `json:"total"`
	BySeverity      map[Severity]int `json:"bySeverity"`
	RiskScore       float64          `json:"riskScore"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

type ScanRequest struct {
	Paths      []string
	DeltaOnly  bool
	TimeBudget time.Duration
	ConfigPath string
}

type ScanResult struct {
	RunID    string        `json:"runId"`
	Files    []FileReport  `json:"files"`
	Findings []Finding     `json:"findings"`
	Summary  Summary       `json:"summary"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Failed implements the exit contract: a run fails when any finding meets the
// threshold or any input file could not be read or parsed.
func (r *ScanResult) Failed(threshold Severity) bool {
	for _, f := range r.Findings {
		if SeverityGTE(f.Severity, threshold) {
			return true
		}
	}
	for _, fr := range r.Files {
		if fr.Failed() {
			return true
		}
	}
	return false
}
