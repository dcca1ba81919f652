package plugins

import (
	"fmt"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/semantic"
)

// solidityReentrancy flags storage writes that can run after an external call
// returns, unless a state lock is held across the call.
type solidityReentrancy struct{}

func (d *solidityReentrancy) Meta() model.RuleMeta {
	return model.RuleMeta{
		ID:          "SOL-REENTRANCY",
		Title:       "State update after external call",
		Severity:    model.SeverityCritical,
		Tags:        []string{"reentrancy", "checks-effects-interactions"},
		References:  []string{"SWC-107"},
		SupportsFix: true,
	}
}

// transfer and send forward too little gas to re-enter; staticcall cannot
// write state.
var reentrancySafe = map[string]bool{"transfer": true, "send": true, "staticcall": true}

func (d *solidityReentrancy) Evaluate(ff *analysis.FunctionFacts) ([]model.Finding, error) {
	type site struct {
		block, index int
		target       string
	}
	var sites []site
	ff.Visit(func(blk *analysis.BasicBlock, i int, in *analysis.Instr) {
		if in.Kind != analysis.InstrExternalCall || reentrancySafe[in.Call.LowLevel] {
			return
		}
		if ff.Locked(blk.ID, i) {
			return
		}
		target := in.Call.Target
		if in.Call.LowLevel != "" {
			target = in.Call.LowLevel
		}
		sites = append(sites, site{block: blk.ID, index: i, target: target})
	})
	if len(sites) == 0 {
		return nil, nil
	}

	meta := d.Meta()
	seen := map[spanKey]bool{}
	var out []model.Finding
	for _, s := range sites {
		ff.Visit(func(blk *analysis.BasicBlock, i int, in *analysis.Instr) {
			if blk.ID == s.block && i <= s.index {
				if !ff.Reachable(s.block, s.block) {
					return
				}
			} else if blk.ID != s.block && !ff.Reachable(s.block, blk.ID) {
				return
			}
			written := d.mutations(ff, in)
			if len(written) == 0 || seen[keyOf(in.Node)] {
				return
			}
			seen[keyOf(in.Node)] = true
			msg := fmt.Sprintf("State variable %s written after external call to %s", symbolNames(written), s.target)
			out = append(out, newFinding(meta, ff, in.Node, msg,
				"Reorder to update state before external calls, add ReentrancyGuard, or switch to pull pattern."))
		})
	}
	return out, nil
}

// mutations returns the storage written by in, directly or through internal
// callees, leaving out lock variables.
func (d *solidityReentrancy) mutations(ff *analysis.FunctionFacts, in *analysis.Instr) []*semantic.Symbol {
	var out []*semantic.Symbol
	seen := map[*semantic.Symbol]bool{}
	add := func(sym *semantic.Symbol) {
		if !seen[sym] && !ff.IsLockVar(sym) {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	for _, w := range analysis.StateWrites(ff.Table, in) {
		add(w.Symbol)
	}
	if in.Kind == analysis.InstrCall && in.Call.Callee != nil {
		for _, sym := range ff.CalleeWrites(in.Call.Callee) {
			add(sym)
		}
	}
	return out
}
