package plugins

import (
	"fmt"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// solidityAccessControl flags externally callable functions that can write
// protected storage, directly or through internal calls, on a path that
// passed no authorization check.
type solidityAccessControl struct{}

func (d *solidityAccessControl) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "SOL-ACCESS-CONTROL",
		Title:       "Missing access control on protected state",
		Severity:    model.SeverityHigh,
		Tags:        []string{"access-control"},
		References:  []string{"SWC-105"},
		SupportsFix: true,
	}
}

func (d *solidityAccessControl) Evaluate(ff *analysis.FunctionFacts) ([]model.Finding, error) {
	fn := ff.Function
	if !fn.IsEntryPoint() || fn.IsReadOnly() {
		return nil, nil
	}
	var first solidity.Node
	var written []*semantic.Symbol
	seen := map[*semantic.Symbol]bool{}
	add := func(node solidity.Node, sym *semantic.Symbol) {
		if !ff.Protected(sym) || seen[sym] {
			return
		}
		seen[sym] = true
		written = append(written, sym)
		if first == nil {
			first = node
		}
	}
	ff.Visit(func(blk *analysis.BasicBlock, _ int, in *analysis.Instr) {
		if ff.Authorized(blk.ID) {
			return
		}
		for _, w := range analysis.StateWrites(ff.Table, in) {
			add(in.Node, w.Symbol)
		}
		if in.Kind == analysis.InstrCall && in.Call.Callee != nil {
			for _, sym := range ff.ExposedWrites(in.Call.Callee) {
				add(in.Node, sym)
			}
		}
	})
	if first == nil {
		return nil, nil
	}
	msg := fmt.Sprintf("Public/external state-changing function without clear access control writes %s", symbolNames(written))
	return []model.Finding{newFinding(d.Meta(), ff, first, msg,
		"Add appropriate access control (e.g., onlyOwner/onlyRole) or explicit require() checks.")}, nil
}
