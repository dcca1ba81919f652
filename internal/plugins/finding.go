package plugins

import (
	"strings"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
	"github.com/xab-mack/contractscan/internal/util"
)

// newFinding locates a finding of rule meta at node inside the function
// described by ff.
func newFinding(meta model.RuleMeta, ff *analysis.FunctionFacts, node solidity.Node, msg, fix string) model.Finding {
	sp := node.Span()
	file := ff.Unit.Path
	text := strings.TrimSpace(ff.Unit.Text(sp))
	f := model.Finding{
		RuleID:      meta.ID,
		Severity:    meta.Severity,
		File:        file,
		StartLine:   sp.Start.Line,
		StartColumn: sp.Start.Column,
		EndLine:     sp.End.Line,
		EndColumn:   sp.End.Column,
		StartOffset: sp.Start.Offset,
		EndOffset:   sp.End.Offset,
		Message:     msg,
		Fix:         fix,
		Entity:      ff.Entity,
		Snippet:     util.ExtractSnippet(ff.Unit.Source, sp.Start.Line, sp.End.Line, 4),
		References:  meta.References,
		Fingerprint: util.Fingerprint(meta.ID, file, sp.Start.Line, sp.End.Line, text),
	}
	if ff.Symbol != nil {
		f.Selector = ff.Symbol.Selector
	}
	return f
}

// spanKey identifies a syntax node by position for per-rule deduplication.
type spanKey struct{ start, end int }

func keyOf(n solidity.Node) spanKey {
	sp := n.Span()
	return spanKey{sp.Start.Offset, sp.End.Offset}
}

func symbolNames(syms []*semantic.Symbol) string {
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}
