package analysis

import (
	"github.com/dominikbraun/graph"

	"github.com/xab-mack/contractscan/internal/semantic"
	"github.com/xab-mack/contractscan/internal/solidity"
)

// Options tune the facts handed to rules.
type Options struct {
	// AssumeCheckedArithmetic trusts the 0.8 compiler overflow checks outside
	// unchecked blocks.
	AssumeCheckedArithmetic bool
	// ProtectedStorage names state variables that only authorized callers
	// may write, in addition to @custom:protected ones.
	ProtectedStorage []string
}

type funcInfo struct {
	sym *semantic.Symbol
	cfg *CFG
	dom *Dominators

	// auth[b] holds when every path from entry to block b passed an
	// authorization check.
	auth       []bool
	authState  int
	authorizes bool

	// direct are the state writes of the function body; exposed are the
	// ones performed without authorization.
	direct  []*semantic.Symbol
	exposed []*semantic.Symbol
}

// ContractFacts holds the per-contract context shared by the functions of one
// contract: every reachable CFG, the internal call graph, authorization
// summaries and the protected storage set. It is read-only once built.
type ContractFacts struct {
	Unit     *solidity.SourceUnit
	Table    *semantic.Table
	Contract *semantic.ContractInfo
	Options  Options

	infos     map[*solidity.FunctionDecl]*funcInfo
	byID      map[int]*funcInfo
	order     []*funcInfo
	calls     graph.Graph[int, int]
	unguarded graph.Graph[int, int]
	protected map[*semantic.Symbol]bool
	targets   []*solidity.FunctionDecl
}

// NewContractFacts builds the CFGs of c's functions and of every internal
// function they reach, then the summaries rules rely on.
func NewContractFacts(unit *solidity.SourceUnit, table *semantic.Table, c *semantic.ContractInfo, opts Options) *ContractFacts {
	cf := &ContractFacts{
		Unit:      unit,
		Table:     table,
		Contract:  c,
		Options:   opts,
		infos:     map[*solidity.FunctionDecl]*funcInfo{},
		byID:      map[int]*funcInfo{},
		calls:     graph.New(graph.IntHash, graph.Directed()),
		unguarded: graph.New(graph.IntHash, graph.Directed()),
		protected: map[*semantic.Symbol]bool{},
	}

	var work []*funcInfo
	for _, m := range c.Decl.Members {
		fn, ok := m.(*solidity.FunctionDecl)
		if !ok || fn.Body == nil || table.Excluded(fn) {
			continue
		}
		if fi := cf.info(table.SymbolOf(fn)); fi != nil {
			cf.targets = append(cf.targets, fn)
			work = append(work, fi)
		}
	}
	for len(work) > 0 {
		fi := work[0]
		work = work[1:]
		cf.eachInstr(fi, func(_ *BasicBlock, _ int, in *Instr) {
			if in.Kind != InstrCall || in.Call.Callee == nil {
				return
			}
			_, seen := cf.infos[in.Call.Callee.FunctionDecl()]
			callee := cf.info(in.Call.Callee)
			if callee == nil {
				return
			}
			_ = cf.calls.AddEdge(fi.sym.ID, callee.sym.ID)
			if !seen {
				work = append(work, callee)
			}
		})
	}

	for _, fi := range cf.order {
		cf.computeAuth(fi)
	}
	for _, fi := range cf.order {
		cf.summarize(fi)
	}
	cf.collectProtected()
	return cf
}

// info returns the CFG bundle for a function symbol, building it on first use.
// It returns nil for functions without a body or excluded by resolution.
func (cf *ContractFacts) info(sym *semantic.Symbol) *funcInfo {
	fn := sym.FunctionDecl()
	if fn == nil || fn.Body == nil || cf.Table.Excluded(fn) {
		return nil
	}
	if fi, ok := cf.infos[fn]; ok {
		return fi
	}
	ctx := cf.Contract
	if sym.Owner != nil && !inherits(cf.Contract, sym.Owner) {
		ctx = sym.Owner
	}
	g := BuildCFG(fn, ctx, cf.Table)
	fi := &funcInfo{sym: sym, cfg: g, dom: ComputeDominators(g)}
	cf.infos[fn] = fi
	cf.byID[sym.ID] = fi
	cf.order = append(cf.order, fi)
	_ = cf.calls.AddVertex(sym.ID)
	_ = cf.unguarded.AddVertex(sym.ID)
	return fi
}

func inherits(c, base *semantic.ContractInfo) bool {
	for _, x := range c.Linearized() {
		if x == base {
			return true
		}
	}
	return false
}

func (cf *ContractFacts) eachInstr(fi *funcInfo, visit func(*BasicBlock, int, *Instr)) {
	for _, blk := range fi.cfg.Blocks {
		if blk.Dead {
			continue
		}
		for i, in := range blk.Instrs {
			visit(blk, i, in)
		}
	}
}

// computeAuth solves the must-pass authorization problem for one function.
// Calls to functions that always authorize count as checks, so summaries are
// computed callee first; recursion is treated as unauthorized.
func (cf *ContractFacts) computeAuth(fi *funcInfo) {
	if fi.authState != 0 {
		return
	}
	fi.authState = 1
	g := fi.cfg
	auth := make([]bool, len(g.Blocks))
	for i := range auth {
		auth[i] = true
	}
	auth[g.Entry] = false
	fi.auth = auth

	passes := func(e Edge) bool {
		if auth[e.From] {
			return true
		}
		last := g.Blocks[e.From].Last()
		if last == nil {
			return false
		}
		switch last.Kind {
		case InstrGuard:
			return last.Guard == GuardAuth
		case InstrCall:
			return last.Call.Callee != nil && cf.authorizes(last.Call.Callee)
		case InstrCond:
			if authCondition(cf.Table, last.Expr) {
				return (e.Kind == EdgeTrue) == authPolarity(last.Expr)
			}
		}
		return false
	}

	order := reversePostOrder(g)
	for changed := true; changed; {
		changed = false
		for _, id := range order {
			if id == g.Entry {
				continue
			}
			v, reached := true, false
			for _, ei := range g.Blocks[id].Preds {
				e := g.Edges[ei]
				if g.Blocks[e.From].Dead {
					continue
				}
				reached = true
				if !passes(e) {
					v = false
					break
				}
			}
			if !reached {
				v = false
			}
			if auth[id] != v {
				auth[id] = v
				changed = true
			}
		}
	}
	fi.authorizes = !g.Blocks[g.Exit].Dead && auth[g.Exit]
	fi.authState = 2
}

func (cf *ContractFacts) authorizes(callee *semantic.Symbol) bool {
	fi := cf.infoFor(callee)
	if fi == nil {
		return false
	}
	cf.computeAuth(fi)
	return fi.authState == 2 && fi.authorizes
}

func (cf *ContractFacts) infoFor(sym *semantic.Symbol) *funcInfo {
	if sym == nil {
		return nil
	}
	return cf.byID[sym.ID]
}

// summarize records the direct state writes of a function and adds its
// unauthorized call edges to the unguarded call graph.
func (cf *ContractFacts) summarize(fi *funcInfo) {
	seen := map[*semantic.Symbol]bool{}
	exposed := map[*semantic.Symbol]bool{}
	cf.eachInstr(fi, func(blk *BasicBlock, _ int, in *Instr) {
		for _, w := range StateWrites(cf.Table, in) {
			if w.Symbol.Kind != semantic.StateVar {
				continue
			}
			if !seen[w.Symbol] {
				seen[w.Symbol] = true
				fi.direct = append(fi.direct, w.Symbol)
			}
			if !fi.auth[blk.ID] && !exposed[w.Symbol] {
				exposed[w.Symbol] = true
				fi.exposed = append(fi.exposed, w.Symbol)
			}
		}
		if in.Kind == InstrCall && !fi.auth[blk.ID] {
			if callee := cf.infoFor(in.Call.Callee); callee != nil {
				_ = cf.unguarded.AddEdge(fi.sym.ID, callee.sym.ID)
			}
		}
	})
}

func (cf *ContractFacts) collectProtected() {
	names := map[string]bool{}
	for _, n := range cf.Options.ProtectedStorage {
		names[n] = true
	}
	for _, sym := range cf.Contract.StateVars() {
		if sym.Protected || names[sym.Name] {
			cf.protected[sym] = true
		}
	}
	for _, fi := range cf.order {
		cf.eachInstr(fi, func(_ *BasicBlock, _ int, in *Instr) {
			if in.Kind != InstrCond || !authCondition(cf.Table, in.Expr) {
				return
			}
			for _, sym := range identities(cf.Table, in.Expr) {
				if sym.IsState() {
					cf.protected[sym] = true
				}
			}
		})
	}
}

// Targets returns the functions declared in the contract that rules run on.
func (cf *ContractFacts) Targets() []*solidity.FunctionDecl { return cf.targets }

// Protected reports whether writes to sym require authorization.
func (cf *ContractFacts) Protected(sym *semantic.Symbol) bool { return cf.protected[sym] }

// reach collects a per-function symbol list over every function reachable
// from start in g, start included.
func (cf *ContractFacts) reach(g graph.Graph[int, int], start *semantic.Symbol, pick func(*funcInfo) []*semantic.Symbol) []*semantic.Symbol {
	fi := cf.infoFor(start)
	if fi == nil {
		return nil
	}
	seen := map[*semantic.Symbol]bool{}
	var out []*semantic.Symbol
	_ = graph.BFS(g, fi.sym.ID, func(id int) bool {
		for _, sym := range pick(cf.byID[id]) {
			if !seen[sym] {
				seen[sym] = true
				out = append(out, sym)
			}
		}
		return false
	})
	return out
}

// CalleeWrites returns the state variables callee writes, directly or
// through its own internal calls.
func (cf *ContractFacts) CalleeWrites(callee *semantic.Symbol) []*semantic.Symbol {
	return cf.reach(cf.calls, callee, func(fi *funcInfo) []*semantic.Symbol { return fi.direct })
}

// ExposedWrites returns the state variables callee writes without an
// authorization check on the way.
func (cf *ContractFacts) ExposedWrites(callee *semantic.Symbol) []*semantic.Symbol {
	return cf.reach(cf.unguarded, callee, func(fi *funcInfo) []*semantic.Symbol { return fi.exposed })
}

// Facts solves the data flow of one target function. The returned facts are
// usable even when err reports a non-converging flow; Flow is nil then.
func (cf *ContractFacts) Facts(fn *solidity.FunctionDecl) (*FunctionFacts, error) {
	fi := cf.infos[fn]
	if fi == nil {
		return nil, nil
	}
	ff := &FunctionFacts{
		Unit:      cf.Unit,
		Table:     cf.Table,
		Contract:  cf.Contract,
		Function:  fn,
		Symbol:    fi.sym,
		Entity:    semantic.Entity(cf.Contract, fn),
		CFG:       fi.cfg,
		Dom:       fi.dom,
		Options:   cf.Options,
		contract:  cf,
		authorize: fi.auth,
	}
	ff.findLocks()
	flow, err := Solve(fi.cfg, cf.Table)
	if err != nil {
		return ff, err
	}
	ff.Flow = flow
	return ff, nil
}
