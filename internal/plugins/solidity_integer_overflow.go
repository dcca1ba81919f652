package plugins

import (
	"fmt"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// solidityIntegerOverflow flags arithmetic on an untrusted operand whose
// range is unbounded at that point, i.e. no check constrained it first.
type solidityIntegerOverflow struct{}

func (d *solidityIntegerOverflow) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "SOL-INTEGER-OVERFLOW",
		Title:       "Integer overflow/underflow on unbounded input",
		Severity:    model.SeverityHigh,
		Tags:        []string{"arithmetic"},
		References:  []string{"SWC-101"},
		SupportsFix: true,
	}
}

var overflowOps = map[string]bool{"+": true, "-": true, "*": true, "**": true}

var compoundOps = map[string]string{"+=": "+", "-=": "-", "*=": "*"}

const overflowFix = "Bound the operand with require() before the operation, or rely on checked arithmetic (pragma >=0.8, no unchecked block)."

func (d *solidityIntegerOverflow) Evaluate(ff *analysis.FunctionFacts) ([]model.Finding, error) {
	if ff.Flow == nil {
		return nil, nil
	}
	meta := d.Meta()
	checked := ff.CheckedArithmetic()
	seen := map[spanKey]bool{}
	var out []model.Finding
	ff.Visit(func(blk *analysis.BasicBlock, i int, in *analysis.Instr) {
		if checked && !in.Unchecked {
			return
		}
		var st *analysis.State
		flag := func(node solidity.Node, op string, operands ...solidity.Expr) {
			if seen[keyOf(node)] {
				return
			}
			if st == nil {
				st = ff.Flow.Before(blk.ID, i)
			}
			for _, x := range operands {
				v := ff.Flow.Eval(st, x)
				if !v.Labels.Tainted() || v.Range.Kind != analysis.RangeUnbounded {
					continue
				}
				seen[keyOf(node)] = true
				msg := fmt.Sprintf("Arithmetic %q on unbounded %s value %s without a bounds check",
					op, v.Labels, solidity.ExprString(x))
				out = append(out, newFinding(meta, ff, node, msg, overflowFix))
				return
			}
		}
		if in.Kind == analysis.InstrAssign {
			if op, ok := compoundOps[in.Op]; ok {
				flag(in.Node, op, in.LHS, in.Expr)
			}
		}
		for _, root := range []solidity.Expr{in.Expr, in.LHS} {
			if root == nil {
				continue
			}
			solidity.Inspect(root, func(n solidity.Node) bool {
				switch x := n.(type) {
				case *solidity.BinaryExpr:
					if overflowOps[x.Op] {
						flag(x, x.Op, x.X, x.Y)
					}
				case *solidity.AssignExpr:
					if op, ok := compoundOps[x.Op]; ok {
						flag(x, op, x.LHS, x.RHS)
					}
				}
				return true
			})
		}
	})
	return out, nil
}
