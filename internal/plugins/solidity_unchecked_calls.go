package plugins

import (
	"fmt"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// solidityUncheckedCalls flags low-level calls whose success flag is dropped,
// or is not inspected on some path before the next storage write or return.
type solidityUncheckedCalls struct{}

func (d *solidityUncheckedCalls) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "SOL-UNCHECKED-CALL",
		Title:       "Unchecked low-level call",
		Severity:    model.SeverityMedium,
		Tags:        []string{"external-call"},
		References:  []string{"SWC-104"},
		SupportsFix: true,
	}
}

var flaggedLowLevel = map[string]bool{"call": true, "delegatecall": true, "staticcall": true, "send": true}

const uncheckedFix = "Capture the boolean return and handle failures (require/if/rollback)"

func (d *solidityUncheckedCalls) Evaluate(ff *analysis.FunctionFacts) ([]model.Finding, error) {
	meta := d.Meta()
	var out []model.Finding
	ff.Visit(func(blk *analysis.BasicBlock, i int, in *analysis.Instr) {
		if in.Kind != analysis.InstrExternalCall || !flaggedLowLevel[in.Call.LowLevel] {
			return
		}
		if d.unchecked(ff, blk.ID, in.Call.Call) {
			msg := fmt.Sprintf("Return value of low-level %s is not checked", in.Call.LowLevel)
			out = append(out, newFinding(meta, ff, in.Call.Call, msg, uncheckedFix))
		}
	})
	return out, nil
}

// unchecked finds the instruction consuming the call result and decides
// whether the success flag reaches a check on every path.
func (d *solidityUncheckedCalls) unchecked(ff *analysis.FunctionFacts, from int, call *solidity.CallExpr) bool {
	block, index, in := consumer(ff, from, call)
	if in == nil {
		return true
	}
	switch in.Kind {
	case analysis.InstrEval:
		return solidity.Unparen(in.Expr) == solidity.Expr(call)
	case analysis.InstrDecl:
		if solidity.Unparen(in.Expr) != solidity.Expr(call) {
			return false
		}
		if len(in.Vars) == 0 || in.Vars[0] == nil {
			return true
		}
		return !d.inspected(ff, block, index+1, in.Vars[0])
	case analysis.InstrAssign:
		if solidity.Unparen(in.Expr) != solidity.Expr(call) || in.Op != "=" {
			return false
		}
		lhs := solidity.Unparen(in.LHS)
		if tup, ok := lhs.(*solidity.TupleExpr); ok {
			if len(tup.Elems) == 0 || tup.Elems[0] == nil {
				return true
			}
			lhs = solidity.Unparen(tup.Elems[0])
		}
		id, ok := lhs.(*solidity.Identifier)
		if !ok {
			return false
		}
		sym := ff.Table.Ref(id)
		if sym == nil || sym.Kind == semantic.StateVar {
			return false
		}
		return !d.inspected(ff, block, index+1, sym)
	}
	return false
}

// consumer returns the first instruction after the call block that mentions
// the call expression.
func consumer(ff *analysis.FunctionFacts, from int, call *solidity.CallExpr) (int, int, *analysis.Instr) {
	next := -1
	for _, e := range ff.CFG.Successors(from) {
		if e.Kind == analysis.EdgeExternalCall {
			next = e.To
		}
	}
	seen := map[int]bool{}
	for next >= 0 && !seen[next] {
		seen[next] = true
		blk := ff.CFG.Blocks[next]
		for i, in := range blk.Instrs {
			if in.Call != nil && in.Call.Call == call {
				continue
			}
			if mentions(in, call) {
				return blk.ID, i, in
			}
		}
		// only straight-line continuations can consume the result
		succ := ff.CFG.Successors(next)
		if len(succ) != 1 {
			break
		}
		next = succ[0].To
	}
	return -1, 0, nil
}

func mentions(in *analysis.Instr, call *solidity.CallExpr) bool {
	found := false
	for _, root := range []solidity.Expr{in.Expr, in.LHS} {
		if root == nil || found {
			continue
		}
		solidity.Inspect(root, func(n solidity.Node) bool {
			if n == solidity.Node(call) {
				found = true
			}
			return !found
		})
	}
	return found
}

// inspected reports whether every path from (block, index) reads sym before
// a storage write or the normal exit. Paths that revert are fine.
func (d *solidityUncheckedCalls) inspected(ff *analysis.FunctionFacts, block, index int, sym *semantic.Symbol) bool {
	g := ff.CFG
	visited := map[int]bool{}
	var walk func(id, start int) bool
	walk = func(id, start int) bool {
		if id == g.RevertExit {
			return true
		}
		if id == g.Exit {
			return false
		}
		instrs := g.Blocks[id].Instrs
		for i := start; i < len(instrs); i++ {
			in := instrs[i]
			if analysis.References(ff.Table, in.Expr, sym) || analysis.References(ff.Table, in.LHS, sym) {
				return true
			}
			if len(analysis.StateWrites(ff.Table, in)) > 0 {
				return false
			}
		}
		for _, e := range g.Successors(id) {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			if !walk(e.To, 0) {
				return false
			}
		}
		return true
	}
	return walk(block, index)
}
