package analysis

import (
	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// FunctionFacts is everything a rule may inspect about one function. It is
// immutable once handed to rule workers.
type FunctionFacts struct {
	Unit     *solidity.SourceUnit
	Table    *semantic.Table
	Contract *semantic.ContractInfo
	Function *solidity.FunctionDecl
	Symbol   *semantic.Symbol
	// Entity is Contract.function.
	Entity  string
	CFG     *CFG
	Dom     *Dominators
	Flow    *Flow
	Options Options

	contract  *ContractFacts
	authorize []bool
	// locks maps a lock variable to the blocks where it was set.
	locks     map[*semantic.Symbol][]lockSite
	lockGuard []int
}

type lockSite struct {
	block int
	index int
}

// Visit calls fn for every instruction in live blocks, in block order.
func (ff *FunctionFacts) Visit(fn func(blk *BasicBlock, i int, in *Instr)) {
	for _, blk := range ff.CFG.Blocks {
		if blk.Dead {
			continue
		}
		for i, in := range blk.Instrs {
			fn(blk, i, in)
		}
	}
}

// Authorized reports whether every path to block passed an authorization
// check.
func (ff *FunctionFacts) Authorized(block int) bool {
	return block < len(ff.authorize) && ff.authorize[block]
}

// Protected reports whether writes to sym require authorization.
func (ff *FunctionFacts) Protected(sym *semantic.Symbol) bool {
	return ff.contract.Protected(sym)
}

func (ff *FunctionFacts) CalleeWrites(callee *semantic.Symbol) []*semantic.Symbol {
	return ff.contract.CalleeWrites(callee)
}

func (ff *FunctionFacts) ExposedWrites(callee *semantic.Symbol) []*semantic.Symbol {
	return ff.contract.ExposedWrites(callee)
}

// CheckedArithmetic reports whether arithmetic outside unchecked blocks can
// be trusted to revert on overflow.
func (ff *FunctionFacts) CheckedArithmetic() bool {
	return ff.Options.AssumeCheckedArithmetic && ff.Unit.CheckedArithmetic()
}

// findLocks records mutex-style guards: a bool state variable tested on the
// way to a write that stores the value failing the test. Opaque lock
// modifiers count too.
func (ff *FunctionFacts) findLocks() {
	ff.locks = map[*semantic.Symbol][]lockSite{}
	type test struct {
		block int
		want  bool
	}
	tests := map[*semantic.Symbol][]test{}
	ff.Visit(func(blk *BasicBlock, _ int, in *Instr) {
		if in.Kind == InstrGuard && in.Guard == GuardLock {
			ff.lockGuard = append(ff.lockGuard, blk.ID)
		}
		if in.Kind != InstrCond || in != blk.Last() {
			return
		}
		if sym, want, ok := lockTest(ff.Table, in.Expr); ok {
			tests[sym] = append(tests[sym], test{block: blk.ID, want: want})
		}
	})
	ff.Visit(func(blk *BasicBlock, i int, in *Instr) {
		if in.Kind != InstrAssign || in.Op != "=" {
			return
		}
		id, ok := solidity.Unparen(in.LHS).(*solidity.Identifier)
		if !ok {
			return
		}
		sym := ff.Table.Ref(id)
		value, ok := boolConstant(ff.Table, in.Expr)
		if !ok || len(tests[sym]) == 0 {
			return
		}
		for _, c := range tests[sym] {
			pass, ok := ff.passingEdge(c.block, blk.ID)
			if !ok {
				continue
			}
			// On re-entry the stored value must take the other edge.
			if value != (c.want == (pass == EdgeTrue)) {
				ff.locks[sym] = append(ff.locks[sym], lockSite{block: blk.ID, index: i})
				break
			}
		}
	})
}

// passingEdge returns the kind of the only edge out of condition block cond
// from which block can be reached.
func (ff *FunctionFacts) passingEdge(cond, block int) (EdgeKind, bool) {
	if !ff.Dom.StrictlyDominates(cond, block) {
		return 0, false
	}
	var pass []EdgeKind
	for _, e := range ff.CFG.Successors(cond) {
		if (e.Kind == EdgeTrue || e.Kind == EdgeFalse) && ff.CFG.Reachable(e.To, block) {
			pass = append(pass, e.Kind)
		}
	}
	if len(pass) != 1 {
		return 0, false
	}
	return pass[0], true
}

// IsLockVar reports whether sym serves as a reentrancy lock in the function.
func (ff *FunctionFacts) IsLockVar(sym *semantic.Symbol) bool {
	_, ok := ff.locks[sym]
	return ok
}

// Locked reports whether a lock is held before instruction i of block.
func (ff *FunctionFacts) Locked(block, i int) bool {
	for _, g := range ff.lockGuard {
		if ff.Dom.StrictlyDominates(g, block) {
			return true
		}
	}
	for _, sites := range ff.locks {
		for _, s := range sites {
			if ff.Dom.StrictlyDominates(s.block, block) || s.block == block && s.index < i {
				return true
			}
		}
	}
	return false
}

// Reachable reports whether block to can execute after block from, not
// counting the trivial path when from == to.
func (ff *FunctionFacts) Reachable(from, to int) bool {
	for _, e := range ff.CFG.Successors(from) {
		if ff.CFG.Reachable(e.To, to) {
			return true
		}
	}
	return false
}
