package plugins

import (
	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// soliditySelfdestruct flags selfdestruct reachable without an authorization
// check on every path.
type soliditySelfdestruct struct{}

func (d *soliditySelfdestruct) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "SOL-SELFDESTRUCT",
		Title:       "Unprotected selfdestruct",
		Severity:    model.SeverityCritical,
		Tags:        []string{"access-control"},
		References:  []string{"SWC-106"},
		SupportsFix: true,
	}
}

func (d *soliditySelfdestruct) Evaluate(ff *analysis.FunctionFacts) ([]model.Finding, error) {
	meta := d.Meta()
	var out []model.Finding
	ff.Visit(func(blk *analysis.BasicBlock, _ int, in *analysis.Instr) {
		if in.Kind != analysis.InstrEval || ff.Authorized(blk.ID) {
			return
		}
		call, ok := solidity.Unparen(in.Expr).(*solidity.CallExpr)
		if !ok {
			return
		}
		id, ok := solidity.Unparen(call.Fun).(*solidity.Identifier)
		if !ok || id.Name != "selfdestruct" && id.Name != "suicide" {
			return
		}
		if sym := ff.Table.Ref(id); sym == nil || sym.Kind != semantic.Builtin {
			return
		}
		out = append(out, newFinding(meta, ff, in.Node, id.Name+" reachable without access control",
			"Avoid selfdestruct; if needed, restrict via onlyOwner/timelock and use fixed, vetted payout addresses."))
	})
	return out, nil
}
