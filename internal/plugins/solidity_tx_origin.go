package plugins

import (
	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// solidityTxOrigin flags tx.origin used in authorization-sensitive checks
type solidityTxOrigin struct{}

func (d *solidityTxOrigin) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "SOL-TX-ORIGIN",
		Title:       "tx.origin used for authorization",
		Severity:    model.SeverityHigh,
		Tags:        []string{"access-control"},
		References:  []string{"SWC-115"},
		SupportsFix: true,
	}
}

func (d *solidityTxOrigin) Evaluate(ff *analysis.FunctionFacts) ([]model.Finding, error) {
	meta := d.Meta()
	seen := map[spanKey]bool{}
	var out []model.Finding
	ff.Visit(func(_ *analysis.BasicBlock, _ int, in *analysis.Instr) {
		if in.Kind != analysis.InstrCond || !d.originCheck(ff, in.Expr) || seen[keyOf(in.Node)] {
			return
		}
		seen[keyOf(in.Node)] = true
		out = append(out, newFinding(meta, ff, in.Node, "tx.origin used in authorization logic",
			"Replace tx.origin with msg.sender and implement proper access control."))
	})
	return out, nil
}

// originCheck matches a condition that compares tx.origin against something
// other than msg.sender or keys a lookup with it. tx.origin == msg.sender is
// the usual externally-owned-account test and is not authorization.
func (d *solidityTxOrigin) originCheck(ff *analysis.FunctionFacts, cond solidity.Expr) bool {
	found := false
	solidity.Inspect(cond, func(n solidity.Node) bool {
		switch x := n.(type) {
		case *solidity.BinaryExpr:
			if x.Op != "==" && x.Op != "!=" {
				return true
			}
			l, r := analysis.IsTxOrigin(ff.Table, x.X), analysis.IsTxOrigin(ff.Table, x.Y)
			if l && !analysis.IsCaller(ff.Table, x.Y) || r && !analysis.IsCaller(ff.Table, x.X) {
				found = true
			}
		case *solidity.IndexExpr:
			if analysis.IsTxOrigin(ff.Table, x.Index) {
				found = true
			}
		case *solidity.CallExpr:
			for _, a := range x.Args {
				if analysis.IsTxOrigin(ff.Table, a) {
					found = true
				}
			}
		}
		return !found
	})
	return found
}
